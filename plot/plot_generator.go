package plot

import (
	"bytes"
	"fmt"
	"math"
	"time"

	"github.com/wcharczuk/go-chart/v2"
	"github.com/wcharczuk/go-chart/v2/drawing"
)

// DrawChart renders c as PNG bytes.
func DrawChart(c Chart) ([]byte, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	if c.Kind == Bar {
		return drawBar(c)
	}
	return drawXY(c)
}

func drawXY(c Chart) ([]byte, error) {
	l := c.layout()
	graph := chart.Chart{
		Title:  title(c),
		Width:  l.Width,
		Height: l.Height,
		Background: chart.Style{
			Padding: chart.Box{
				Top:    l.MarginTop,
				Left:   20,
				Right:  20,
				Bottom: 20,
			},
			FillColor: drawing.ColorWhite,
		},
		XAxis: chart.XAxis{
			Name:           c.XName,
			ValueFormatter: chart.IntValueFormatter,
		},
		YAxis: chart.YAxis{
			Name: c.YName,
			ValueFormatter: func(v interface{}) string {
				if vf, isFloat := v.(float64); isFloat {
					return fmt.Sprintf("%.3f", vf)
				}
				return ""
			},
			GridMajorStyle: chart.Style{
				StrokeColor:     drawing.ColorFromHex("d3d3d3"),
				StrokeWidth:     1,
				StrokeDashArray: []float64{5.0, 5.0},
			},
		},
	}
	if c.XIsTime {
		graph.XAxis.ValueFormatter = chart.TimeValueFormatterWithFormat("2006-01-02 15h")
	}
	if c.ZeroLine {
		graph.YAxis.Zero = chart.GridLine{Style: chart.Style{StrokeColor: chart.ColorBlack, StrokeWidth: 1}}
	}

	for i, s := range c.Series {
		x, y := finitePoints(s.X, s.Y)
		if len(x) == 0 {
			continue
		}
		style := chart.Style{StrokeColor: chart.GetDefaultColor(i), StrokeWidth: 2}
		if c.Kind == Scatter {
			style = chart.Style{StrokeWidth: chart.Disabled, DotWidth: 5, DotColor: chart.GetDefaultColor(i)}
		}
		if c.XIsTime {
			graph.Series = append(graph.Series, chart.TimeSeries{Name: s.Name, Style: style, XValues: unixTimes(x), YValues: y})
		} else {
			graph.Series = append(graph.Series, chart.ContinuousSeries{Name: s.Name, Style: style, XValues: x, YValues: y})
		}
	}
	if len(graph.Series) == 0 {
		return nil, fmt.Errorf("chart %q has no finite values", c.Title)
	}
	if lo, hi := yBounds(graph.Series); lo == hi {
		// A flat profile has no y range to scale against.
		graph.YAxis.Range = &chart.ContinuousRange{Min: lo - 1, Max: hi + 1}
	}
	graph.Elements = []chart.Renderable{chart.Legend(&graph)}

	buffer := bytes.NewBuffer([]byte{})
	if err := graph.Render(chart.PNG, buffer); err != nil {
		return nil, fmt.Errorf("error rendering chart: %v", err)
	}
	return buffer.Bytes(), nil
}

func drawBar(c Chart) ([]byte, error) {
	values := c.Series[0].Y
	bars := generateBarValues(c.Categories, values)
	paddingX := customizePaddingXBottom(bars)
	width, height := calculateChartDimensions(len(bars), 100)
	max := findMaxValue(values)
	if max <= 0 {
		max = 1
	}

	bar := chart.BarChart{
		Title: title(c),
		Background: chart.Style{
			StrokeColor: chart.ColorBlack,
			Padding: chart.Box{
				Bottom: paddingX,
				Top:    c.layout().MarginTop,
			},
		},
		Height:   height + 50,
		Width:    width + paddingX + 50,
		BarWidth: 60,
		Bars:     bars,
		YAxis: chart.YAxis{
			Name: c.YName,
			Range: &chart.ContinuousRange{
				Min: 0.0,
				Max: max,
			},
			Style: chart.Style{
				StrokeWidth: 2,
				StrokeColor: chart.ColorBlack,
				FontSize:    12,
			},
			Ticks: generateGrid(max),
			GridMajorStyle: chart.Style{
				StrokeColor:     chart.ColorBlack,
				StrokeWidth:     1,
				DotWidth:        1,
				StrokeDashArray: []float64{5.0, 5.0},
			},
		},
		XAxis: chart.Style{
			StrokeWidth: 2,
			StrokeColor: chart.ColorBlack,
			FontSize:    12,
		},
	}

	buffer := bytes.NewBuffer([]byte{})
	if err := bar.Render(chart.PNG, buffer); err != nil {
		return nil, fmt.Errorf("error rendering chart: %v", err)
	}
	return buffer.Bytes(), nil
}

func title(c Chart) string {
	if c.Subtitle == "" {
		return c.Title
	}
	return c.Title + " | " + c.Subtitle
}

// finitePoints drops NaN and infinite values, which go-chart cannot range.
func finitePoints(xs, ys []float64) ([]float64, []float64) {
	x := make([]float64, 0, len(xs))
	y := make([]float64, 0, len(ys))
	for i := range xs {
		if math.IsNaN(ys[i]) || math.IsInf(ys[i], 0) {
			continue
		}
		x = append(x, xs[i])
		y = append(y, ys[i])
	}
	return x, y
}

func yBounds(series []chart.Series) (lo, hi float64) {
	lo, hi = math.MaxFloat64, -math.MaxFloat64
	for _, s := range series {
		var ys []float64
		switch v := s.(type) {
		case chart.ContinuousSeries:
			ys = v.YValues
		case chart.TimeSeries:
			ys = v.YValues
		}
		for _, y := range ys {
			lo = math.Min(lo, y)
			hi = math.Max(hi, y)
		}
	}
	return lo, hi
}

func unixTimes(xs []float64) []time.Time {
	ts := make([]time.Time, len(xs))
	for i, v := range xs {
		ts[i] = time.Unix(int64(v), 0).UTC()
	}
	return ts
}

func generateBarValues(labels []string, values []float64) []chart.Value {
	bars := make([]chart.Value, 0, len(values))
	for i, v := range values {
		bars = append(bars, chart.Value{
			Value: v,
			Label: labels[i],
			Style: chart.Style{
				FillColor:   chart.GetDefaultColor(i).WithAlpha(200),
				StrokeColor: chart.GetDefaultColor(i),
			},
		})
	}
	return bars
}

func calculateChartDimensions(bars int, minBarWidth float64) (width, height int) {
	if bars <= 0 || minBarWidth <= 0 {
		return 0, 0
	}
	x := 1.1
	if bars < 2 {
		x = 10.0
	} else if bars < 10 {
		x = 3.0
	}

	const (
		paddingY     = 100
		spacingRatio = 0.2
		aspectRatio  = 9.0 / 16.0
	)

	barSpacing := minBarWidth * spacingRatio
	totalWidth := (minBarWidth+barSpacing)*float64(bars) + paddingY
	width = int(totalWidth*x) + paddingY
	height = int(float64(width) * aspectRatio)
	return width, height
}

func generateGrid(max float64) []chart.Tick {
	var ticks []chart.Tick
	gridStep := calculateGridStep(max)
	if gridStep <= 0 {
		return nil
	}
	for i := 0.0; i <= max+gridStep/2; i += gridStep {
		ticks = append(ticks, chart.Tick{
			Value: i,
			Label: fmt.Sprintf("%.1f", i),
		})
	}
	return ticks
}

// calculateGridStep picks a 1-2-5 style step for an axis ending at maxValue.
func calculateGridStep(maxValue float64) float64 {
	if maxValue <= 0 {
		return 0
	}
	if maxValue < 1e-10 {
		return 1e-10
	}

	magnitude := math.Pow(10, math.Floor(math.Log10(maxValue)))
	normalized := maxValue / magnitude

	var step float64
	switch {
	case normalized <= 1:
		step = 0.2
	case normalized <= 2:
		step = 0.5
	case normalized <= 5:
		step = 1.0
	default:
		step = 2.0
	}

	finalStep := step * magnitude
	if finalStep >= 1000 {
		return math.Round(finalStep/100) * 100
	}
	if finalStep >= 100 {
		return math.Round(finalStep/10) * 10
	}
	return finalStep
}

func findMaxValue(y []float64) float64 {
	if len(y) == 0 {
		return 0
	}
	max := y[0]
	for _, v := range y {
		if v > max {
			max = v
		}
	}
	return max
}

func customizePaddingXBottom(values []chart.Value) int {
	count := 0
	for _, v := range values {
		if len(v.Label) > count {
			count = len(v.Label)
		}
	}
	return count * 8
}
