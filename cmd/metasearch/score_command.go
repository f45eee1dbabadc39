package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"audiostream/metasearch/internal/domain"
	"audiostream/metasearch/internal/quality"
)

type releaseFile struct {
	Releases []domain.Release `json:"releases"`
	Indexers []domain.Indexer `json:"indexers"`
}

func newScoreCommand(ctx *commandContext) *cobra.Command {
	var (
		profilesPath string
		profileID    int
		releasesPath string
	)
	cmd := &cobra.Command{
		Use:   "score",
		Short: "Score releases against a quality profile",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			profile, catalog, err := resolveProfile(profilesPath, profileID)
			if err != nil {
				return err
			}
			input, err := readReleaseFile(releasesPath)
			if err != nil {
				return err
			}

			indexers := catalog.IndexerMap()
			for _, indexer := range input.Indexers {
				indexers[indexer.ID] = indexer
			}
			ranked := quality.NewScorer().Rank(input.Releases, profile, indexers)
			if ctx.jsonOut {
				return writeJSON(cmd, ranked)
			}
			renderRanked(cmd.OutOrStdout(), profile.Name, ranked)
			return nil
		},
	}
	cmd.Flags().StringVar(&profilesPath, "profiles", "", "TOML file with [[profile]] and [[indexer]] tables")
	cmd.Flags().IntVar(&profileID, "profile", 0, "Profile id (default: the catalog default)")
	cmd.Flags().StringVar(&releasesPath, "releases", "", "JSON file: a release array or {releases, indexers}")
	_ = cmd.MarkFlagRequired("releases")
	return cmd
}

// resolveProfile loads the optional catalog and picks profileID, or the
// catalog default when profileID is zero.
func resolveProfile(profilesPath string, profileID int) (domain.QualityProfile, *quality.Catalog, error) {
	catalog := &quality.Catalog{}
	if strings.TrimSpace(profilesPath) != "" {
		loaded, err := quality.LoadProfiles(profilesPath)
		if err != nil {
			return domain.QualityProfile{}, nil, err
		}
		catalog = loaded
	}
	if profileID == 0 {
		return catalog.Default(), catalog, nil
	}
	profile, err := catalog.Profile(profileID)
	if err != nil {
		return domain.QualityProfile{}, nil, err
	}
	return profile, catalog, nil
}

func readReleaseFile(path string) (releaseFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return releaseFile{}, fmt.Errorf("read releases: %w", err)
	}
	data = bytes.TrimSpace(data)
	var out releaseFile
	if len(data) > 0 && data[0] == '[' {
		err = json.Unmarshal(data, &out.Releases)
	} else {
		err = json.Unmarshal(data, &out)
	}
	if err != nil {
		return releaseFile{}, fmt.Errorf("parse releases: %w", err)
	}
	if len(out.Releases) == 0 {
		return releaseFile{}, fmt.Errorf("no releases in %s", path)
	}
	return out, nil
}
