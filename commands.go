package main

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/pcer96/unified-hex/analyzer"
	"github.com/pcer96/unified-hex/experiment"
	"github.com/pcer96/unified-hex/metrics"
	"github.com/pcer96/unified-hex/queries"
	"github.com/pcer96/unified-hex/report"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

func loadExperiment(cmd *cobra.Command) (*experiment.Config, error) {
	path, _ := cmd.Flags().GetString("experiment")
	return experiment.Load(path, cmd.Flags())
}

func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the full analysis of an experiment",
		Example: `  unified-hex run --experiment pricing.yaml
  unified-hex run --experiment pricing.yaml --metrics ConversionToSubscription,AutoRenewOff`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) (err error) {
			exp, err := loadExperiment(cmd)
			if err != nil {
				return err
			}
			s, err := openSession(cmd, exp)
			if err != nil {
				return err
			}
			defer func() { err = s.close(err) }()

			res, runErr := s.analyzer.RunFullAnalysis(cmd.Context(), nil)
			out := cmd.OutOrStdout()
			if res != nil {
				if res.Reach != nil {
					for _, seg := range res.Reach.BySegment {
						fmt.Fprintf(out, "segment %s: %d users\n", seg.Segment, seg.Users)
					}
				}
				for _, m := range res.Metrics {
					fmt.Fprintf(out, "\n%s\n%s\n", m.Metric, report.ProfileTable(m.Profiles))
				}
				if res.Breakdowns != nil {
					path := filepath.Join(s.dir, "conversion_breakdowns.csv.lz4")
					if err := report.WriteCSV(path, *res.Breakdowns); err != nil {
						return err
					}
					fmt.Fprintf(out, "\nconversion breakdowns: %d rows written to %s\n", res.Breakdowns.Len(), path)
				}
			}
			return runErr
		},
	}
	cmd.Flags().StringSlice("metrics", nil, "metrics to analyze instead of the configured list")
	cmd.Flags().Bool("only-free-users", false, "restrict metrics to users who never converted")
	return cmd
}

func newMetricCmd() *cobra.Command {
	var opts analyzer.PlotOptions
	cmd := &cobra.Command{
		Use:     "metric NAME",
		Short:   "Compute and plot one metric",
		Example: `  unified-hex metric SubscriptionArpu --experiment pricing.yaml --uplift-vs control_segment`,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) (err error) {
			exp, err := loadExperiment(cmd)
			if err != nil {
				return err
			}
			s, err := openSession(cmd, exp)
			if err != nil {
				return err
			}
			defer func() { err = s.close(err) }()

			m, err := s.analyzer.AnalyzeSingleMetric(cmd.Context(), args[0], opts)
			if m != nil {
				fmt.Fprintln(cmd.OutOrStdout(), report.ProfileTable(m.Profiles))
				for _, u := range m.Uplift {
					fmt.Fprintln(cmd.OutOrStdout(), report.Table(upliftFrame(u)))
				}
			}
			return err
		},
	}
	cmd.Flags().StringVar(&opts.UpliftVs, "uplift-vs", "", "segment to compute the uplift against")
	cmd.Flags().BoolVar(&opts.ExcludeConverted, "exclude-converted", false, "only users who never converted")
	cmd.Flags().StringVar(&opts.Title, "title", "", "chart title")
	return cmd
}

func newQueriesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "queries",
		Short: "Print the SQL generated for an experiment without running it",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			exp, err := loadExperiment(cmd)
			if err != nil {
				return err
			}
			q := queries.New(queries.DefaultTables())
			defs := metrics.NewDefinitions(q, exp.StartDate(), exp.ActionsEndDate())
			list, err := defs.List(exp.Metrics())
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			section := func(title, sql string) {
				fmt.Fprintf(out, "-- %s\n%s;\n\n", title, sql)
			}
			for _, seg := range exp.Segments() {
				ub := q.ExperimentUserBase(exp.Name(), queries.UserBaseOptions{
					Segments:  []string{seg},
					StartDate: exp.StartDate(),
					EndDate:   exp.EndDate(),
				})
				section("user base: "+seg, ub.ToSQL())
			}
			all := q.ExperimentUserBase(exp.Name(), queries.UserBaseOptions{StartDate: exp.StartDate(), EndDate: exp.EndDate()})
			section("segmentation by client", queries.SegmentationByClient(all).ToSQL())
			section("segmentation by segment", queries.SegmentationBySegment(all).ToSQL())
			for i, m := range list {
				for _, r := range m.Requests {
					section(fmt.Sprintf("metric %s (%s, %s)", exp.Metrics()[i], m.Name, r.Kind), r.TargetQuery)
				}
			}
			section("conversion breakdown", q.ConversionBreakdown(exp.Name(), exp.StartDate(), exp.EndDate()).ToSQL())
			return nil
		},
	}
}

func newConfigCmd() *cobra.Command {
	var asYAML bool
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Print the resolved experiment configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			exp, err := loadExperiment(cmd)
			if err != nil {
				return err
			}
			if !asYAML {
				fmt.Fprintln(cmd.OutOrStdout(), report.ConfigTable(exp.ToMap()))
				return nil
			}
			b, err := yaml.Marshal(exp.ToMap())
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(b)
			return err
		},
	}
	cmd.Flags().BoolVar(&asYAML, "yaml", false, "print as YAML")
	return cmd
}

func newCatalogCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "catalog",
		Short: "List the available metrics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			fmt.Fprintln(cmd.OutOrStdout(), strings.Join(metrics.Names(), "\n"))
			return nil
		},
	}
}

func newBreakdownsCmd() *cobra.Command {
	var out string
	cmd := &cobra.Command{
		Use:     "breakdowns",
		Short:   "Export the conversion breakdowns of an experiment",
		Example: `  unified-hex breakdowns --experiment pricing.yaml --out breakdowns.csv.lz4`,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) (err error) {
			if !strings.HasSuffix(out, ".csv") && !strings.HasSuffix(out, ".csv.lz4") {
				return fmt.Errorf("--out must end in .csv or .csv.lz4, got %q", out)
			}
			exp, err := loadExperiment(cmd)
			if err != nil {
				return err
			}
			s, err := openSession(cmd, exp)
			if err != nil {
				return err
			}
			defer func() { err = s.close(err) }()

			frame, err := s.analyzer.ConversionBreakdowns(cmd.Context())
			if err != nil {
				return err
			}
			if err := report.WriteCSV(out, frame); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%d rows written to %s\n", frame.Len(), out)
			return nil
		},
	}
	cmd.Flags().StringVar(&out, "out", "", "output file (.csv or .csv.lz4)")
	_ = cmd.MarkFlagRequired("out")
	return cmd
}
