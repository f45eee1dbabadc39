package app

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
)

func TestParseLogLevel(t *testing.T) {
	for raw, want := range map[string]slog.Level{
		"debug":   slog.LevelDebug,
		" WARN ":  slog.LevelWarn,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"verbose": slog.LevelInfo,
	} {
		if got := ParseLogLevel(raw); got != want {
			t.Fatalf("ParseLogLevel(%q) = %v, want %v", raw, got, want)
		}
	}
}

func TestConnectRedisWithoutURL(t *testing.T) {
	if client := ConnectRedis(context.Background(), Config{}, slog.Default()); client != nil {
		t.Fatal("expected nil client without REDIS_URL")
	}
	if client := ConnectRedis(context.Background(), Config{RedisURL: "not a url"}, slog.Default()); client != nil {
		t.Fatal("expected nil client for an invalid url")
	}
}

func TestLoadQualityCatalog(t *testing.T) {
	catalog, err := LoadQualityCatalog(Config{}, slog.Default())
	if err != nil || len(catalog.Profiles) != 0 {
		t.Fatalf("expected empty catalog, got %+v %v", catalog, err)
	}

	path := filepath.Join(t.TempDir(), "profiles.toml")
	content := "[[profile]]\nid = 1\nname = \"Audiobooks\"\n\n[[indexer]]\nid = 2\nname = \"nzbgeek\"\ntype = \"Usenet\"\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write profiles: %v", err)
	}
	catalog, err = LoadQualityCatalog(Config{QualityProfilesFile: path}, slog.Default())
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if catalog.Default().Name != "Audiobooks" || catalog.IndexerMap()[2].Type != "Usenet" {
		t.Fatalf("unexpected catalog: %+v", catalog)
	}

	if _, err := LoadQualityCatalog(Config{QualityProfilesFile: filepath.Join(t.TempDir(), "missing.toml")}, slog.Default()); err == nil {
		t.Fatal("expected error for a missing file")
	}
}

func TestReleaseFinder(t *testing.T) {
	if finder := ReleaseFinder(Config{}, nil); finder != nil {
		t.Fatal("expected nil finder without indexers")
	}
	cfg := Config{Indexers: []IndexerConfig{{ID: 1, Name: "jackett", Endpoint: "http://jackett:9117/api", APIKey: "k"}}}
	finder := ReleaseFinder(cfg, nil)
	if finder == nil || !finder.Enabled() {
		t.Fatal("expected an enabled finder")
	}
}

func TestSearchOptionsRespectCacheSwitch(t *testing.T) {
	cfg := LoadConfig()
	enabled := SearchOptions(cfg, nil)
	cfg.CacheDisabled = true
	disabled := SearchOptions(cfg, nil)
	if len(enabled) != len(disabled) {
		t.Fatalf("expected cache ttl or cache-disabled option, got %d vs %d", len(enabled), len(disabled))
	}
	if len(enabled) < 7 {
		t.Fatalf("expected catalog, index, source and cache options, got %d", len(enabled))
	}
}
