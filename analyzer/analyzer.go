// Package analyzer runs the reporting phases of an experiment: reach,
// metric profiles with uplift, and conversion breakdowns.
package analyzer

import (
	"context"
	"fmt"

	"github.com/pcer96/unified-hex/compute"
	"github.com/pcer96/unified-hex/domain/models"
	"github.com/pcer96/unified-hex/experiment"
	"github.com/pcer96/unified-hex/metrics"
	"github.com/pcer96/unified-hex/plot"
	"github.com/pcer96/unified-hex/queries"
	"github.com/pcer96/unified-hex/warehouse"
	"github.com/pivolan/go_utils"
	"github.com/rs/zerolog"
)

// DefaultApp is the application the metrics service reports on.
const DefaultApp = "HarvestWeb"

// Deps are the capabilities an Analyzer works with. App defaults to
// DefaultApp and Tables to queries.DefaultTables.
type Deps struct {
	Warehouse warehouse.Executor
	Compute   compute.Service
	Plotter   plot.Plotter
	Logger    zerolog.Logger
	App       string
	Tables    *queries.Tables
}

// Analyzer is bound to one experiment configuration. It is not safe for
// concurrent use.
type Analyzer struct {
	cfg     *experiment.Config
	deps    Deps
	queries *queries.DataQueries
	metrics *metrics.Definitions
	common  compute.CommonParams
	log     zerolog.Logger

	allUsers     []compute.Segment
	neverConvert []compute.Segment
}

func New(cfg *experiment.Config, deps Deps) (*Analyzer, error) {
	if cfg == nil {
		return nil, fmt.Errorf("analyzer: nil experiment config")
	}
	if deps.Warehouse == nil || deps.Compute == nil || deps.Plotter == nil {
		return nil, fmt.Errorf("analyzer: warehouse, compute and plotter are required")
	}
	if deps.App == "" {
		deps.App = DefaultApp
	}
	tables := queries.DefaultTables()
	if deps.Tables != nil {
		tables = *deps.Tables
	}
	q := queries.New(tables)
	return &Analyzer{
		cfg:     cfg,
		deps:    deps,
		queries: q,
		metrics: metrics.NewDefinitions(q, cfg.StartDate(), cfg.ActionsEndDate()),
		common:  compute.CommonParamsFor(cfg, deps.App),
		log:     deps.Logger.With().Str("experiment", cfg.Name()).Logger(),
	}, nil
}

func (a *Analyzer) Config() *experiment.Config { return a.cfg }

func (a *Analyzer) Queries() *queries.DataQueries { return a.queries }

func (a *Analyzer) Metrics() *metrics.Definitions { return a.metrics }

// Segments returns one labelled user base per experiment segment. The sets
// are built on first use.
func (a *Analyzer) Segments(excludeConverted bool) []compute.Segment {
	if excludeConverted {
		if a.neverConvert == nil {
			a.neverConvert = a.buildSegments(true)
		}
		return a.neverConvert
	}
	if a.allUsers == nil {
		a.allUsers = a.buildSegments(false)
	}
	return a.allUsers
}

func (a *Analyzer) buildSegments(excludeConverted bool) []compute.Segment {
	segments := a.cfg.Segments()
	out := make([]compute.Segment, 0, len(segments))
	for _, seg := range segments {
		ub := a.queries.ExperimentUserBase(a.cfg.Name(), queries.UserBaseOptions{
			Segments:         []string{seg},
			StartDate:        a.cfg.StartDate(),
			EndDate:          a.cfg.EndDate(),
			ExcludeConverted: excludeConverted,
		})
		out = append(out, compute.Segment{Label: seg, UserBaseSQL: ub.ToSQL()})
	}
	return out
}

// PlotOptions customizes RequestAndPlotMetric.
type PlotOptions struct {
	// Title replaces the default "<metric>" title and date subtitle.
	Title            string
	UpliftVs         string
	ExcludeConverted bool
	Layout           plot.Layout
}

// MetricReport holds what was computed for one metric.
type MetricReport struct {
	Metric   string
	Profiles []models.SegmentResult
	Uplift   []models.UpliftSeries
}

// RequestAndPlotMetric computes the profile of a catalog metric for every
// segment, renders it, and renders the uplift against opts.UpliftVs when set.
func (a *Analyzer) RequestAndPlotMetric(ctx context.Context, name string, opts PlotOptions) (*MetricReport, error) {
	metric, err := a.metrics.ByName(name)
	if err != nil {
		return nil, err
	}
	if name == "Retention" {
		a.log.Warn().Str("metric", name).Msg("Retention is reported as session counts")
	}
	if opts.UpliftVs != "" && !a.hasSegment(opts.UpliftVs) {
		return nil, &experiment.ConfigurationError{
			Field:  "uplift_vs",
			Value:  opts.UpliftVs,
			Reason: "is not one of the experiment segments",
		}
	}

	results, err := a.deps.Compute.RequestMultipleMetrics(ctx, a.common, metric, a.Segments(opts.ExcludeConverted))
	if err != nil {
		return nil, err
	}
	report := &MetricReport{Metric: metric.Name, Profiles: results}

	if err := a.deps.Plotter.Render(ctx, a.profileChart(metric, results, opts)); err != nil {
		return report, fmt.Errorf("plot %s: %w", metric.Name, err)
	}

	if opts.UpliftVs == "" {
		return report, nil
	}
	uplift, err := ComputeUplift(results, opts.UpliftVs)
	if err != nil {
		return report, err
	}
	report.Uplift = uplift
	if len(uplift) == 0 {
		return report, nil
	}
	if err := a.deps.Plotter.Render(ctx, upliftChart(uplift, opts)); err != nil {
		return report, fmt.Errorf("plot uplift %s: %w", metric.Name, err)
	}
	return report, nil
}

func (a *Analyzer) hasSegment(label string) bool {
	return go_utils.InArray(label, a.cfg.Segments())
}

func (a *Analyzer) profileChart(metric models.Metric, results []models.SegmentResult, opts PlotOptions) plot.Chart {
	c := plot.Chart{
		Kind:     plot.Line,
		Title:    metric.Name,
		Subtitle: a.dateSubtitle(),
		XName:    "Days",
		Layout:   opts.Layout,
	}
	if opts.Title != "" {
		c.Title, c.Subtitle = opts.Title, ""
	}
	for _, r := range results {
		name := r.Segment
		if len(metric.Requests) > 1 {
			name = r.Segment + " " + r.Metric
		}
		s := plot.Series{Name: name}
		for _, p := range r.Profile {
			s.X = append(s.X, float64(p.TimeBin))
			s.Y = append(s.Y, p.Value)
		}
		c.Series = append(c.Series, s)
	}
	return c
}

func (a *Analyzer) dateSubtitle() string {
	return fmt.Sprintf("StartDate=%s EndDate=%s ActionsEndDate=%s", a.cfg.StartDate(), a.cfg.EndDate(), a.cfg.ActionsEndDate())
}

// AnalyzeAllMetrics runs every metric of the experiment configuration.
func (a *Analyzer) AnalyzeAllMetrics(ctx context.Context, excludeConverted bool) ([]*MetricReport, error) {
	return a.AnalyzeSpecificMetrics(ctx, a.cfg.Metrics(), excludeConverted)
}

// AnalyzeSpecificMetrics validates every name before requesting anything and
// stops at the first failing metric, returning the reports built so far.
// RunFullAnalysis instead records the failure and moves on to the next metric.
func (a *Analyzer) AnalyzeSpecificMetrics(ctx context.Context, names []string, excludeConverted bool) ([]*MetricReport, error) {
	if _, err := a.metrics.List(names); err != nil {
		return nil, err
	}
	reports := make([]*MetricReport, 0, len(names))
	for _, name := range names {
		a.log.Info().Str("metric", name).Msg("analyzing metric")
		r, err := a.RequestAndPlotMetric(ctx, name, PlotOptions{ExcludeConverted: excludeConverted})
		if err != nil {
			return reports, fmt.Errorf("metric %s: %w", name, err)
		}
		reports = append(reports, r)
	}
	return reports, nil
}

// AnalyzeSingleMetric is RequestAndPlotMetric with logging.
func (a *Analyzer) AnalyzeSingleMetric(ctx context.Context, name string, opts PlotOptions) (*MetricReport, error) {
	a.log.Info().Str("metric", name).Str("uplift_vs", opts.UpliftVs).Msg("analyzing metric")
	return a.RequestAndPlotMetric(ctx, name, opts)
}
