package main

import (
	"context"

	"github.com/spf13/cobra"
	"imgharvest/pkg/runloop"
)

// crawlCmd runs the given queries without prompting
var crawlCmd = &cobra.Command{
	Use:   "crawl <query>...",
	Short: "Harvest images for the given queries and exit",
	Long: `Run one harvest session per argument, in order, sharing one browser and one
dedupe store. Output is the same as the interactive loop.`,
	Example: `  # Two queries in one run
  imgharvest crawl "red fox" "arctic fox"

  # Parallel fetches, no cross-run seeding
  imgharvest crawl owls --concurrency 4 --no-seed

  # Bounded scrolling for quick runs
  imgharvest crawl owls --max-rounds 3 --settle-delay 500ms`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runHarvest(cmd, func(ctx context.Context, loop *runloop.Loop) (runloop.Totals, error) {
			return loop.RunQueries(ctx, args)
		})
	},
}

func init() {
	rootCmd.AddCommand(crawlCmd)
	addHarvestFlags(crawlCmd.Flags())
}
