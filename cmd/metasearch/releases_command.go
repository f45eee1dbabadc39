package main

import (
	"strings"

	"github.com/spf13/cobra"

	"audiostream/metasearch/internal/app"
	"audiostream/metasearch/internal/releases"
)

func newReleasesCommand(ctx *commandContext) *cobra.Command {
	var (
		profilesPath string
		profileID    int
	)
	cmd := &cobra.Command{
		Use:   "releases <query>",
		Short: "Search the configured Torznab/Newznab indexers and rank releases",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			profile, catalog, err := resolveProfile(profilesPath, profileID)
			if err != nil {
				return err
			}
			finder := app.ReleaseFinder(app.LoadConfig(), catalog)
			if finder == nil {
				return releases.ErrNoSources
			}
			result, err := finder.Find(cmd.Context(), strings.Join(args, " "), profile)
			if err != nil {
				return err
			}
			if ctx.jsonOut {
				return writeJSON(cmd, result)
			}
			renderRanked(cmd.OutOrStdout(), result.Profile, result.Items)
			renderProviders(cmd.OutOrStdout(), result.Providers)
			return nil
		},
	}
	cmd.Flags().StringVar(&profilesPath, "profiles", "", "TOML file with [[profile]] and [[indexer]] tables")
	cmd.Flags().IntVar(&profileID, "profile", 0, "Profile id (default: the catalog default)")
	return cmd
}
