package analyzer

import (
	"bytes"
	"context"
	"errors"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/pcer96/unified-hex/compute"
	"github.com/pcer96/unified-hex/domain/models"
	"github.com/pcer96/unified-hex/experiment"
	"github.com/pcer96/unified-hex/metrics"
	"github.com/pcer96/unified-hex/plot"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeWarehouse struct {
	queries []string
	handler func(sql string) ([]map[string]interface{}, error)
}

func (f *fakeWarehouse) Query(ctx context.Context, sql string) ([]map[string]interface{}, error) {
	f.queries = append(f.queries, sql)
	if f.handler == nil {
		return nil, nil
	}
	return f.handler(sql)
}

type fakeCompute struct {
	calls    []models.Metric
	segments [][]compute.Segment
	common   compute.CommonParams
	profiles map[string][]models.ProfilePoint
	fail     map[string]error
}

func (f *fakeCompute) RequestMultipleMetrics(ctx context.Context, common compute.CommonParams, metric models.Metric, segments []compute.Segment) ([]models.SegmentResult, error) {
	f.calls = append(f.calls, metric)
	f.segments = append(f.segments, segments)
	f.common = common
	if err := f.fail[metric.Name]; err != nil {
		return nil, err
	}
	var out []models.SegmentResult
	for _, s := range segments {
		out = append(out, models.SegmentResult{Segment: s.Label, Metric: metric.Name, Profile: f.profiles[s.Label]})
	}
	return out, nil
}

type fakePlotter struct {
	charts []plot.Chart
	err    error
}

func (f *fakePlotter) Render(ctx context.Context, c plot.Chart) error {
	f.charts = append(f.charts, c)
	return f.err
}

func newConfig(t *testing.T, opts ...experiment.Option) *experiment.Config {
	t.Helper()
	cfg, err := experiment.New("pricing_page_v2", "2025-01-01", "2025-01-31", opts...)
	require.NoError(t, err)
	return cfg
}

func newAnalyzer(t *testing.T, cfg *experiment.Config, wh *fakeWarehouse, cs *fakeCompute, pl *fakePlotter) *Analyzer {
	t.Helper()
	a, err := New(cfg, Deps{Warehouse: wh, Compute: cs, Plotter: pl, Logger: zerolog.Nop()})
	require.NoError(t, err)
	return a
}

func twoSegmentProfiles() map[string][]models.ProfilePoint {
	return map[string][]models.ProfilePoint{
		"control_segment":   {{TimeBin: 0, Value: 10}, {TimeBin: 1, Value: 20}},
		"treatment_segment": {{TimeBin: 0, Value: 15}, {TimeBin: 1, Value: 18}},
	}
}

func TestNewRequiresDeps(t *testing.T) {
	_, err := New(nil, Deps{})
	assert.Error(t, err)
	_, err = New(newConfig(t), Deps{Warehouse: &fakeWarehouse{}})
	assert.Error(t, err)
}

func TestSegmentsAreBuiltOnce(t *testing.T) {
	a := newAnalyzer(t, newConfig(t), &fakeWarehouse{}, &fakeCompute{}, &fakePlotter{})

	all := a.Segments(false)
	require.Len(t, all, 2)
	assert.Equal(t, "control_segment", all[0].Label)
	assert.Equal(t, "treatment_segment", all[1].Label)
	assert.Same(t, &all[0], &a.Segments(false)[0])

	noft := a.Segments(true)
	require.Len(t, noft, 2)
	for i := range noft {
		assert.NotContains(t, all[i].UserBaseSQL, "final.uid IS NULL")
		assert.Contains(t, noft[i].UserBaseSQL, "final.uid IS NULL")
		assert.Contains(t, noft[i].UserBaseSQL, "LEFT JOIN")
	}
	assert.Contains(t, all[0].UserBaseSQL, "('control_segment')")
}

func TestRequestAndPlotMetricWithUplift(t *testing.T) {
	cs := &fakeCompute{profiles: twoSegmentProfiles()}
	pl := &fakePlotter{}
	a := newAnalyzer(t, newConfig(t, experiment.WithActionsEndDate("2025-02-14")), &fakeWarehouse{}, cs, pl)

	report, err := a.RequestAndPlotMetric(context.Background(), "ConversionToSubscription", PlotOptions{UpliftVs: "control_segment"})
	require.NoError(t, err)

	require.Len(t, cs.calls, 1)
	assert.Equal(t, "C2S", cs.calls[0].Name)
	assert.Equal(t, DefaultApp, cs.common.App)
	assert.Equal(t, 44, cs.common.HorizonInDays)
	assert.Equal(t, 7, cs.common.GranularityInDays)
	assert.Contains(t, cs.calls[0].Requests[0].TargetQuery, "'2025-02-14'")

	require.Len(t, pl.charts, 2)
	profile := pl.charts[0]
	assert.Equal(t, plot.Line, profile.Kind)
	assert.Equal(t, "C2S", profile.Title)
	assert.Equal(t, "StartDate=2025-01-01 EndDate=2025-01-31 ActionsEndDate=2025-02-14", profile.Subtitle)
	assert.Equal(t, "Days", profile.XName)
	require.Len(t, profile.Series, 2)
	assert.Equal(t, []float64{0, 1}, profile.Series[0].X)

	uplift := pl.charts[1]
	assert.Equal(t, plot.Scatter, uplift.Kind)
	assert.True(t, uplift.ZeroLine)
	assert.Equal(t, "Uplift vs control_segment", uplift.Title)
	require.Len(t, uplift.Series, 1)
	assert.Equal(t, "treatment_segment_uplift_vs_control_segment", uplift.Series[0].Name)
	assert.InDelta(t, 0.5, uplift.Series[0].Y[0], 1e-9)
	assert.InDelta(t, -0.1, uplift.Series[0].Y[1], 1e-9)

	require.Len(t, report.Uplift, 1)
	assert.Len(t, report.Profiles, 2)
}

func TestRequestAndPlotMetricCustomTitle(t *testing.T) {
	pl := &fakePlotter{}
	a := newAnalyzer(t, newConfig(t), &fakeWarehouse{}, &fakeCompute{profiles: twoSegmentProfiles()}, pl)

	_, err := a.RequestAndPlotMetric(context.Background(), "SubscriptionArpu", PlotOptions{Title: "ARPU since launch", ExcludeConverted: true})
	require.NoError(t, err)
	require.Len(t, pl.charts, 1)
	assert.Equal(t, "ARPU since launch", pl.charts[0].Title)
	assert.Empty(t, pl.charts[0].Subtitle)
}

func TestRequestAndPlotMetricErrors(t *testing.T) {
	t.Run("unknown metric", func(t *testing.T) {
		cs := &fakeCompute{}
		a := newAnalyzer(t, newConfig(t), &fakeWarehouse{}, cs, &fakePlotter{})
		_, err := a.RequestAndPlotMetric(context.Background(), "Churn", PlotOptions{})
		var unknown *metrics.UnknownMetricError
		require.True(t, errors.As(err, &unknown))
		assert.Len(t, unknown.Known, 9)
		assert.Empty(t, cs.calls)
	})

	t.Run("uplift against unknown segment", func(t *testing.T) {
		a := newAnalyzer(t, newConfig(t), &fakeWarehouse{}, &fakeCompute{}, &fakePlotter{})
		_, err := a.RequestAndPlotMetric(context.Background(), "AutoRenewOff", PlotOptions{UpliftVs: "holdout"})
		var cfgErr *experiment.ConfigurationError
		assert.True(t, errors.As(err, &cfgErr))
	})

	t.Run("compute failure", func(t *testing.T) {
		boom := errors.New("boom")
		pl := &fakePlotter{}
		a := newAnalyzer(t, newConfig(t), &fakeWarehouse{}, &fakeCompute{fail: map[string]error{"C2P": boom}}, pl)
		_, err := a.RequestAndPlotMetric(context.Background(), "ConversionToPaySubscription", PlotOptions{})
		assert.ErrorIs(t, err, boom)
		assert.Empty(t, pl.charts)
	})

	t.Run("plot failure", func(t *testing.T) {
		boom := errors.New("disk full")
		a := newAnalyzer(t, newConfig(t), &fakeWarehouse{}, &fakeCompute{profiles: twoSegmentProfiles()}, &fakePlotter{err: boom})
		report, err := a.RequestAndPlotMetric(context.Background(), "SubscriptionArps", PlotOptions{})
		assert.ErrorIs(t, err, boom)
		assert.NotNil(t, report)
	})
}

func TestRetentionLogsWarning(t *testing.T) {
	var buf bytes.Buffer
	a, err := New(newConfig(t), Deps{
		Warehouse: &fakeWarehouse{},
		Compute:   &fakeCompute{profiles: twoSegmentProfiles()},
		Plotter:   &fakePlotter{},
		Logger:    zerolog.New(&buf),
	})
	require.NoError(t, err)

	_, err = a.RequestAndPlotMetric(context.Background(), "Retention", PlotOptions{})
	require.NoError(t, err)
	assert.Contains(t, buf.String(), `"level":"warn"`)
	assert.Contains(t, buf.String(), `"experiment":"pricing_page_v2"`)
}

func TestAnalyzeSpecificMetricsValidatesFirst(t *testing.T) {
	cs := &fakeCompute{profiles: twoSegmentProfiles()}
	a := newAnalyzer(t, newConfig(t), &fakeWarehouse{}, cs, &fakePlotter{})

	_, err := a.AnalyzeSpecificMetrics(context.Background(), []string{"ConversionToSubscription", "Bogus"}, false)
	var unknown *metrics.UnknownMetricError
	require.True(t, errors.As(err, &unknown))
	assert.Equal(t, "Bogus", unknown.Name)
	assert.Empty(t, cs.calls)
}

func TestAnalyzeSpecificMetricsStopsAtFirstFailure(t *testing.T) {
	boom := errors.New("boom")
	cs := &fakeCompute{profiles: twoSegmentProfiles(), fail: map[string]error{"C2P": boom}}
	a := newAnalyzer(t, newConfig(t), &fakeWarehouse{}, cs, &fakePlotter{})

	names := []string{"ConversionToSubscription", "ConversionToPaySubscription", "HoursTracked"}
	reports, err := a.AnalyzeSpecificMetrics(context.Background(), names, false)
	assert.ErrorIs(t, err, boom)
	require.Len(t, reports, 1)
	assert.Equal(t, "C2S", reports[0].Metric)
	require.Len(t, cs.calls, 2)
	assert.Equal(t, "C2P", cs.calls[1].Name)
}

func TestAnalyzeAllMetrics(t *testing.T) {
	cs := &fakeCompute{profiles: twoSegmentProfiles()}
	cfg := newConfig(t, experiment.WithMetrics("ConversionToSubscription", "HoursTracked"))
	a := newAnalyzer(t, cfg, &fakeWarehouse{}, cs, &fakePlotter{})

	reports, err := a.AnalyzeAllMetrics(context.Background(), true)
	require.NoError(t, err)
	require.Len(t, reports, 2)
	assert.Equal(t, "HoursTracked", reports[1].Metric)
	assert.Contains(t, cs.segments[0][0].UserBaseSQL, "final.uid IS NULL")

	single, err := a.AnalyzeSingleMetric(context.Background(), "Sessions", PlotOptions{})
	require.NoError(t, err)
	assert.Equal(t, "Sessions", single.Metric)
}

func TestComputeUplift(t *testing.T) {
	results := []models.SegmentResult{
		{Segment: "control", Metric: "ARPU", Profile: []models.ProfilePoint{{TimeBin: 0, Value: 0}, {TimeBin: 1, Value: 10}, {TimeBin: 2, Value: 20}}},
		{Segment: "treatment", Metric: "ARPU", Profile: []models.ProfilePoint{{TimeBin: 0, Value: 3}, {TimeBin: 1, Value: 12}, {TimeBin: 3, Value: 40}}},
		{Segment: "treatment_b", Metric: "ARPU", Profile: []models.ProfilePoint{{TimeBin: 2, Value: 10}}},
	}

	uplift, err := ComputeUplift(results, "control")
	require.NoError(t, err)
	require.Len(t, uplift, 2)

	first := uplift[0]
	assert.Equal(t, "treatment", first.Segment)
	assert.Equal(t, "control", first.Baseline)
	require.Len(t, first.Points, 2)
	assert.False(t, first.Points[0].Defined)
	assert.True(t, math.IsNaN(first.Points[0].Value))
	assert.True(t, first.Points[1].Defined)
	assert.InDelta(t, 0.2, first.Points[1].Value, 1e-9)

	require.Len(t, uplift[1].Points, 1)
	assert.InDelta(t, -0.5, uplift[1].Points[0].Value, 1e-9)
	assert.Equal(t, "treatment_b_uplift_vs_control", UpliftSeriesName(uplift[1]))

	_, err = ComputeUplift(results, "holdout")
	assert.Error(t, err)
}

func TestConversionBreakdowns(t *testing.T) {
	t.Run("disabled", func(t *testing.T) {
		wh := &fakeWarehouse{}
		flags := experiment.DefaultFlags()
		flags.IncludeConversionBreakdowns = false
		a := newAnalyzer(t, newConfig(t, experiment.WithFlags(flags)), wh, &fakeCompute{}, &fakePlotter{})

		frame, err := a.ConversionBreakdowns(context.Background())
		require.NoError(t, err)
		assert.Equal(t, []string{"segment_name", "global_user_id", "offer_group", "plan", "periodicity", "net_revenues_usd"}, frame.Columns)
		assert.Equal(t, 0, frame.Len())
		assert.Empty(t, wh.queries)
	})

	t.Run("enabled", func(t *testing.T) {
		wh := &fakeWarehouse{handler: func(string) ([]map[string]interface{}, error) {
			return []map[string]interface{}{{"segment_name": "control_segment", "global_user_id": int64(7), "plan": "premium"}}, nil
		}}
		a := newAnalyzer(t, newConfig(t), wh, &fakeCompute{}, &fakePlotter{})

		frame, err := a.ConversionBreakdowns(context.Background())
		require.NoError(t, err)
		require.Equal(t, 1, frame.Len())
		assert.Equal(t, "segment_name", frame.Columns[0])
		assert.Equal(t, int64(7), frame.Rows[0][1])
		require.Len(t, wh.queries, 1)
		assert.Contains(t, wh.queries[0], "'pricing_page_v2'")
	})
}

func reachHandler(sql string) ([]map[string]interface{}, error) {
	if strings.Contains(sql, "TIMESTAMP_TRUNC") {
		h := func(hour int) time.Time { return time.Date(2025, 1, 1, hour, 0, 0, 0, time.UTC) }
		return []map[string]interface{}{
			{"time": h(2), "segmentation_client": "web", "users": int64(4)},
			{"time": h(1), "segmentation_client": "web", "users": int64(1)},
			{"time": "2025-01-01 01:00:00", "segmentation_client": []byte("ios"), "users": []byte("2")},
			{"time": h(3), "segmentation_client": nil, "users": int64(1)},
			{"time": h(2), "segmentation_client": "android", "users": 3},
		}, nil
	}
	return []map[string]interface{}{
		{"segment_name": "treatment_segment", "users": int64(12)},
		{"segment_name": "control_segment", "users": int64(10)},
	}, nil
}

func TestPlotSegmentationBreakdowns(t *testing.T) {
	pl := &fakePlotter{}
	wh := &fakeWarehouse{handler: reachHandler}
	a := newAnalyzer(t, newConfig(t), wh, &fakeCompute{}, pl)

	reach, err := a.PlotSegmentationBreakdowns(context.Background())
	require.NoError(t, err)
	require.Len(t, wh.queries, 2)

	var clients []string
	for _, c := range reach.ByClient {
		clients = append(clients, c.Client)
	}
	assert.Equal(t, []string{"ios", "android", "web", "unknown"}, clients)

	web := reach.ByClient[2]
	require.Len(t, web.Points, 2)
	assert.Equal(t, int64(1), web.Points[0].Cumulative)
	assert.Equal(t, int64(5), web.Points[1].Cumulative)

	assert.Equal(t, []SegmentReach{{"control_segment", 10}, {"treatment_segment", 12}}, reach.BySegment)

	require.Len(t, pl.charts, 2)
	assert.True(t, pl.charts[0].XIsTime)
	assert.Equal(t, []float64{1, 5}, pl.charts[0].Series[2].Y)
	assert.Equal(t, plot.Bar, pl.charts[1].Kind)
	assert.Equal(t, []string{"control_segment", "treatment_segment"}, pl.charts[1].Categories)
}

func TestSegmentationBreakdownQueries(t *testing.T) {
	a := newAnalyzer(t, newConfig(t), &fakeWarehouse{}, &fakeCompute{}, &fakePlotter{})
	byClient, bySegment := a.SegmentationBreakdowns()
	assert.Contains(t, byClient.ToSQL(), "GROUP BY 1, 2")
	assert.Contains(t, bySegment.ToSQL(), "COUNT(DISTINCT uid) AS users")
	assert.NotContains(t, byClient.ToSQL(), "final.uid IS NULL")
}

func TestRunFullAnalysisCollectsPhaseErrors(t *testing.T) {
	boom := errors.New("quota exceeded")
	wh := &fakeWarehouse{handler: func(sql string) ([]map[string]interface{}, error) {
		if strings.Contains(sql, "TIMESTAMP_TRUNC") {
			return nil, boom
		}
		return nil, nil
	}}
	cs := &fakeCompute{profiles: twoSegmentProfiles(), fail: map[string]error{"ARPU": boom}}
	pl := &fakePlotter{}
	cfg := newConfig(t, experiment.WithMetrics("ConversionToSubscription", "SubscriptionArpu", "AutoRenewOff"))
	a := newAnalyzer(t, cfg, wh, cs, pl)

	report, err := a.RunFullAnalysis(context.Background(), nil)
	require.Error(t, err)

	var phase *PhaseError
	require.True(t, errors.As(err, &phase))
	assert.Equal(t, PhaseReach, phase.Phase)
	assert.Equal(t, "pricing_page_v2", phase.Experiment)
	assert.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "phase metrics, metric SubscriptionArpu")

	assert.Len(t, cs.calls, 3)
	assert.Len(t, report.Metrics, 2)
	require.NotNil(t, report.Breakdowns)
	assert.Equal(t, "segment_name", report.Breakdowns.Columns[0])
}

func TestRunFullAnalysisFlags(t *testing.T) {
	wh := &fakeWarehouse{}
	cs := &fakeCompute{profiles: twoSegmentProfiles()}
	flags := experiment.Flags{OnlyFreeUsers: true}
	a := newAnalyzer(t, newConfig(t, experiment.WithFlags(flags)), wh, cs, &fakePlotter{})

	report, err := a.RunFullAnalysis(context.Background(), []string{"ConversionToSubscription"})
	require.NoError(t, err)
	assert.Empty(t, wh.queries)
	assert.Nil(t, report.Reach)
	assert.Nil(t, report.Breakdowns)
	require.Len(t, cs.segments, 1)
	assert.Contains(t, cs.segments[0][0].UserBaseSQL, "final.uid IS NULL")
}

func TestRunFullAnalysisUnknownMetric(t *testing.T) {
	cs := &fakeCompute{}
	a := newAnalyzer(t, newConfig(t, experiment.WithFlags(experiment.Flags{})), &fakeWarehouse{}, cs, &fakePlotter{})

	_, err := a.RunFullAnalysis(context.Background(), []string{"Nope"})
	var unknown *metrics.UnknownMetricError
	assert.True(t, errors.As(err, &unknown))
	assert.Empty(t, cs.calls)
}
