package analyzer

import (
	"context"
	"fmt"

	"github.com/pcer96/unified-hex/domain/models"
	"go.uber.org/multierr"
)

const (
	PhaseReach      = "reach"
	PhaseMetrics    = "metrics"
	PhaseBreakdowns = "conversion_breakdowns"
)

// PhaseError tells which part of a full analysis failed.
type PhaseError struct {
	Experiment string
	Phase      string
	Metric     string
	Err        error
}

func (e *PhaseError) Error() string {
	if e.Metric != "" {
		return fmt.Sprintf("experiment %s, phase %s, metric %s: %v", e.Experiment, e.Phase, e.Metric, e.Err)
	}
	return fmt.Sprintf("experiment %s, phase %s: %v", e.Experiment, e.Phase, e.Err)
}

func (e *PhaseError) Unwrap() error {
	return e.Err
}

// RunReport collects what a full analysis produced, including partial
// results of failed phases.
type RunReport struct {
	Reach      *Reach
	Metrics    []*MetricReport
	Breakdowns *models.Frame
}

// RunFullAnalysis runs the reach, metrics and conversion breakdown phases in
// order. A failing phase or metric is logged and recorded; the remaining work
// still runs and the returned error combines every failure. An empty names
// list analyzes the configured metrics.
func (a *Analyzer) RunFullAnalysis(ctx context.Context, names []string) (*RunReport, error) {
	if len(names) == 0 {
		names = a.cfg.Metrics()
	}
	flags := a.cfg.Flags()
	a.log.Info().
		Str("start_date", a.cfg.StartDate()).
		Str("end_date", a.cfg.EndDate()).
		Strs("segments", a.cfg.Segments()).
		Msg("starting analysis")

	report := &RunReport{}
	var errs error
	fail := func(phase, metric string, err error) {
		a.log.Error().Err(err).Str("phase", phase).Str("metric", metric).Msg("analysis phase failed")
		errs = multierr.Append(errs, &PhaseError{Experiment: a.cfg.Name(), Phase: phase, Metric: metric, Err: err})
	}

	if flags.IncludeReachSection {
		a.log.Info().Str("phase", PhaseReach).Msg("plotting segmentation breakdowns")
		reach, err := a.PlotSegmentationBreakdowns(ctx)
		report.Reach = reach
		if err != nil {
			fail(PhaseReach, "", err)
		}
	}

	a.log.Info().Str("phase", PhaseMetrics).Bool("only_free_users", flags.OnlyFreeUsers).Msg("analyzing metrics")
	if _, err := a.metrics.List(names); err != nil {
		fail(PhaseMetrics, "", err)
	} else {
		for _, name := range names {
			if err := ctx.Err(); err != nil {
				fail(PhaseMetrics, name, err)
				break
			}
			r, err := a.RequestAndPlotMetric(ctx, name, PlotOptions{ExcludeConverted: flags.OnlyFreeUsers})
			if r != nil {
				report.Metrics = append(report.Metrics, r)
			}
			if err != nil {
				fail(PhaseMetrics, name, err)
			}
		}
	}

	if flags.IncludeConversionBreakdowns {
		a.log.Info().Str("phase", PhaseBreakdowns).Msg("getting conversion breakdowns")
		frame, err := a.ConversionBreakdowns(ctx)
		if err != nil {
			fail(PhaseBreakdowns, "", err)
		} else {
			report.Breakdowns = &frame
			a.log.Info().Int("rows", frame.Len()).Int("columns", len(frame.Columns)).Msg("conversion breakdowns ready")
		}
	}

	a.log.Info().Int("failures", len(multierr.Errors(errs))).Msg("analysis complete")
	return report, errs
}
