package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/spf13/cobra"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		stop()
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "unified-hex",
		Short: "Experiment analysis: reach, metric profiles, uplift and conversion breakdowns",
		Long: `unified-hex analyzes an A/B experiment from its warehouse events.

The experiment is read from a YAML file (--experiment) and can be adjusted
with flags or EXPERIMENT_* environment variables. Warehouse access, plot
outputs and logging are configured through the environment or a .env file.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	pf := rootCmd.PersistentFlags()
	pf.String("experiment", "", "experiment definition file (YAML)")
	pf.String("name", "", "experiment name")
	pf.String("start-date", "", "experiment start date (YYYY-MM-DD)")
	pf.String("end-date", "", "experiment end date (YYYY-MM-DD)")
	pf.String("actions-end-date", "", "end of the action tracking window (YYYY-MM-DD)")
	pf.StringSlice("segments", nil, "segment labels, comma separated")
	pf.String("output-dir", "", "directory for charts and reports (default $OUTPUT_DIR)")
	pf.String("metrics-file", "", "write warehouse metrics in Prometheus text format to this file")

	rootCmd.AddCommand(
		newRunCmd(),
		newMetricCmd(),
		newQueriesCmd(),
		newConfigCmd(),
		newCatalogCmd(),
		newBreakdownsCmd(),
	)
	return rootCmd
}
