package analyzer

import (
	"fmt"
	"math"

	"github.com/pcer96/unified-hex/domain/models"
	"github.com/pcer96/unified-hex/plot"
)

// ComputeUplift returns, for every non-baseline segment, the relative
// difference (other - base) / base on the time bins both profiles share.
// A zero baseline yields an undefined point holding NaN.
func ComputeUplift(results []models.SegmentResult, baseline string) ([]models.UpliftSeries, error) {
	bases := map[string]models.SegmentResult{}
	for _, r := range results {
		if r.Segment == baseline {
			bases[r.Metric] = r
		}
	}
	if len(bases) == 0 {
		return nil, fmt.Errorf("uplift: baseline segment %q has no results", baseline)
	}

	var out []models.UpliftSeries
	for _, r := range results {
		if r.Segment == baseline {
			continue
		}
		base, ok := bases[r.Metric]
		if !ok {
			return nil, fmt.Errorf("uplift: baseline segment %q has no results for %s", baseline, r.Metric)
		}
		baseByBin := make(map[int]float64, len(base.Profile))
		for _, p := range base.Profile {
			baseByBin[p.TimeBin] = p.Value
		}

		series := models.UpliftSeries{Segment: r.Segment, Baseline: baseline, Metric: r.Metric}
		for _, p := range r.Profile {
			b, ok := baseByBin[p.TimeBin]
			if !ok {
				continue
			}
			point := models.UpliftPoint{TimeBin: p.TimeBin, Value: math.NaN()}
			if b != 0 {
				point.Value = (p.Value - b) / b
				point.Defined = true
			}
			series.Points = append(series.Points, point)
		}
		out = append(out, series)
	}
	return out, nil
}

// UpliftSeriesName labels an uplift series the way the charts show it.
func UpliftSeriesName(s models.UpliftSeries) string {
	return s.Segment + "_uplift_vs_" + s.Baseline
}

func upliftChart(uplift []models.UpliftSeries, opts PlotOptions) plot.Chart {
	c := plot.Chart{
		Kind:     plot.Scatter,
		Title:    "Uplift vs " + uplift[0].Baseline,
		Subtitle: uplift[0].Metric,
		XName:    "Days",
		ZeroLine: true,
		Layout:   opts.Layout,
	}
	for _, u := range uplift {
		s := plot.Series{Name: UpliftSeriesName(u)}
		for _, p := range u.Points {
			s.X = append(s.X, float64(p.TimeBin))
			s.Y = append(s.Y, p.Value)
		}
		c.Series = append(c.Series, s)
	}
	return c
}
