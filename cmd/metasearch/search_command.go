package main

import (
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/spf13/cobra"

	"audiostream/metasearch/internal/app"
	"audiostream/metasearch/internal/domain"
	"audiostream/metasearch/internal/progress"
	"audiostream/metasearch/internal/search"
)

const cliProgressChannel = "cli"

func newSearchCommand(ctx *commandContext) *cobra.Command {
	var (
		limit        int
		noCache      bool
		showProgress bool
	)
	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Run a metadata search in-process",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := app.LoadConfig()
			redisClient := app.ConnectRedis(cmd.Context(), cfg, slog.Default())
			if redisClient != nil {
				defer redisClient.Close()
			}

			opts := app.SearchOptions(cfg, redisClient)
			request := domain.SearchRequest{
				Query:   strings.Join(args, " "),
				Limit:   limit,
				NoCache: noCache,
			}

			var wg sync.WaitGroup
			if showProgress {
				hub := progress.NewHub(progress.WithBuffer(256))
				events, unsubscribe := hub.Subscribe(cliProgressChannel)
				defer func() {
					unsubscribe()
					wg.Wait()
				}()
				wg.Add(1)
				go func() {
					defer wg.Done()
					for event := range events {
						fmt.Fprintf(cmd.ErrOrStderr(), "  %s\n", event.Message)
					}
				}()
				opts = append(opts, search.WithBroadcaster(hub))
				request.Channel = cliProgressChannel
			}

			service := search.NewService(cfg.RequestTimeout, opts...)
			response, err := service.Search(cmd.Context(), request)
			if err != nil {
				return err
			}
			if ctx.jsonOut {
				return writeJSON(cmd, response)
			}
			renderSearchResponse(cmd.OutOrStdout(), response)
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 0, "Maximum results (default SEARCH_MAX_RESULTS)")
	cmd.Flags().BoolVar(&noCache, "no-cache", false, "Bypass the response cache")
	cmd.Flags().BoolVarP(&showProgress, "progress", "p", false, "Print pipeline progress to stderr")
	return cmd
}
