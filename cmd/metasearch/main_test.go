package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"audiostream/metasearch/internal/quality"
)

const profilesTOML = `
[[profile]]
id = 3
name = "Audiobooks"
preferred_formats = ["m4b"]
preferred_languages = ["English"]
must_not_contain = ["sample"]
minimum_seeders = 1
is_default = true

[[indexer]]
id = 4
name = "tracker"
type = "Torrent"
priority = 10
`

const releasesJSON = `[
  {"title": "Dune [M4B] sample", "size": 419430400, "seeders": 20, "format": "m4b", "language": "English"},
  {"title": "Dune Unabridged [M4B]", "size": 524288000, "seeders": 40, "format": "m4b", "language": "English", "quality": "m4b", "indexerId": 4}
]`

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func runCommand(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestScoreCommandRendersTable(t *testing.T) {
	profiles := writeFile(t, "profiles.toml", profilesTOML)
	releases := writeFile(t, "releases.json", releasesJSON)

	out, err := runCommand(t, "score", "--profiles", profiles, "--releases", releases)
	if err != nil {
		t.Fatalf("score: %v", err)
	}
	for _, want := range []string{"Dune Unabridged [M4B]", "accepted", "rejected", `profile "Audiobooks": 1 of 2 accepted`} {
		if !strings.Contains(out, want) {
			t.Fatalf("output missing %q:\n%s", want, out)
		}
	}
	if strings.Index(out, "Dune Unabridged") > strings.Index(out, "Dune [M4B] sample") {
		t.Fatalf("accepted release should be listed first:\n%s", out)
	}
}

func TestScoreCommandJSON(t *testing.T) {
	releases := writeFile(t, "releases.json", `{"releases": `+releasesJSON+`}`)

	out, err := runCommand(t, "score", "--json", "--releases", releases)
	if err != nil {
		t.Fatalf("score: %v", err)
	}
	var ranked []quality.Ranked
	if err := json.Unmarshal([]byte(out), &ranked); err != nil {
		t.Fatalf("decode %s: %v", out, err)
	}
	if len(ranked) != 2 {
		t.Fatalf("expected 2 ranked releases, got %d", len(ranked))
	}
}

func TestScoreCommandErrors(t *testing.T) {
	profiles := writeFile(t, "profiles.toml", profilesTOML)
	releases := writeFile(t, "releases.json", releasesJSON)

	if _, err := runCommand(t, "score"); err == nil {
		t.Fatal("expected missing --releases error")
	}
	if _, err := runCommand(t, "score", "--profiles", profiles, "--profile", "99", "--releases", releases); err == nil {
		t.Fatal("expected unknown profile error")
	}
	empty := writeFile(t, "empty.json", "[]")
	if _, err := runCommand(t, "score", "--releases", empty); err == nil {
		t.Fatal("expected empty releases error")
	}
}

func TestReleasesCommandWithoutIndexers(t *testing.T) {
	t.Setenv("TORZNAB_ENDPOINT", "")
	t.Setenv("NEWZNAB_ENDPOINT", "")
	if _, err := runCommand(t, "releases", "dune"); err == nil || !strings.Contains(err.Error(), "no release indexers") {
		t.Fatalf("expected no-indexer error, got %v", err)
	}
}

func TestClip(t *testing.T) {
	long := strings.Repeat("á", maxCellWidth+5)
	if got := []rune(clip(long)); len(got) != maxCellWidth {
		t.Fatalf("expected %d runes, got %d", maxCellWidth, len(got))
	}
	if clip("  short ") != "short" {
		t.Fatal("expected trimmed value")
	}
}
