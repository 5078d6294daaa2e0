package plot

import (
	"context"
	"fmt"
	"math"
	"os"
	"sort"
	"strconv"
	"time"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"
)

// missing is how echarts marks an absent point.
const missing = "-"

// HTML collects interactive charts into a single page written by Close.
type HTML struct {
	path   string
	page   *components.Page
	charts int
}

func NewHTML(path string) *HTML {
	return &HTML{path: path, page: components.NewPage()}
}

func (h *HTML) Render(ctx context.Context, c Chart) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := c.Validate(); err != nil {
		return err
	}

	l := c.layout()
	global := []charts.GlobalOpts{
		charts.WithTitleOpts(opts.Title{Title: c.Title, Subtitle: c.Subtitle}),
		charts.WithInitializationOpts(opts.Initialization{
			Width:  strconv.Itoa(l.Width) + "px",
			Height: strconv.Itoa(l.Height) + "px",
		}),
		charts.WithXAxisOpts(opts.XAxis{Name: c.XName}),
		charts.WithYAxisOpts(opts.YAxis{Name: c.YName}),
	}

	switch c.Kind {
	case Bar:
		bar := charts.NewBar()
		bar.SetGlobalOptions(global...)
		data := make([]opts.BarData, 0, len(c.Categories))
		for _, v := range c.Series[0].Y {
			data = append(data, opts.BarData{Value: echartsValue(v)})
		}
		bar.SetXAxis(c.Categories).AddSeries(c.Series[0].Name, data)
		h.page.AddCharts(bar)
	case Scatter:
		xs, labels := xCategories(c)
		scatter := charts.NewScatter()
		scatter.SetGlobalOptions(global...)
		scatter.SetXAxis(labels)
		for _, s := range c.Series {
			aligned := align(xs, s)
			data := make([]opts.ScatterData, 0, len(aligned))
			for _, v := range aligned {
				data = append(data, opts.ScatterData{Value: v})
			}
			scatter.AddSeries(s.Name, data)
		}
		h.page.AddCharts(scatter)
	default:
		xs, labels := xCategories(c)
		line := charts.NewLine()
		line.SetGlobalOptions(global...)
		line.SetXAxis(labels)
		for _, s := range c.Series {
			aligned := align(xs, s)
			data := make([]opts.LineData, 0, len(aligned))
			for _, v := range aligned {
				data = append(data, opts.LineData{Value: v})
			}
			line.AddSeries(s.Name, data)
		}
		h.page.AddCharts(line)
	}
	h.charts++
	return nil
}

// Close writes the page. Nothing is written when no chart was rendered.
func (h *HTML) Close() error {
	if h.charts == 0 {
		return nil
	}
	f, err := os.Create(h.path)
	if err != nil {
		return fmt.Errorf("create %s: %w", h.path, err)
	}
	if err := h.page.Render(f); err != nil {
		f.Close()
		return fmt.Errorf("render %s: %w", h.path, err)
	}
	return f.Close()
}

// xCategories returns the sorted union of x values and their axis labels.
func xCategories(c Chart) ([]float64, []string) {
	set := map[float64]bool{}
	for _, s := range c.Series {
		for _, x := range s.X {
			set[x] = true
		}
	}
	xs := make([]float64, 0, len(set))
	for x := range set {
		xs = append(xs, x)
	}
	sort.Float64s(xs)

	labels := make([]string, len(xs))
	for i, x := range xs {
		if c.XIsTime {
			labels[i] = time.Unix(int64(x), 0).UTC().Format("2006-01-02 15:04")
		} else {
			labels[i] = strconv.FormatFloat(x, 'f', -1, 64)
		}
	}
	return xs, labels
}

func align(xs []float64, s Series) []interface{} {
	byX := make(map[float64]float64, len(s.X))
	for i, x := range s.X {
		byX[x] = s.Y[i]
	}
	out := make([]interface{}, len(xs))
	for i, x := range xs {
		if y, ok := byX[x]; ok {
			out[i] = echartsValue(y)
		} else {
			out[i] = missing
		}
	}
	return out
}

// echartsValue keeps NaN out of the JSON payload.
func echartsValue(v float64) interface{} {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return missing
	}
	return v
}
