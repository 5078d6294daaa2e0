// Package plot renders experiment charts to PNG files, an HTML report and
// Telegram.
package plot

import (
	"context"
	"fmt"
)

type Kind int

const (
	Line Kind = iota
	Scatter
	Bar
)

func (k Kind) String() string {
	switch k {
	case Line:
		return "line"
	case Scatter:
		return "scatter"
	case Bar:
		return "bar"
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Series is one named trace. For time axes X holds unix seconds.
type Series struct {
	Name string
	X    []float64
	Y    []float64
}

type Layout struct {
	Width     int
	Height    int
	MarginTop int
}

func DefaultLayout() Layout {
	return Layout{Width: 1200, Height: 500, MarginTop: 80}
}

// Chart describes what to draw independently of the output format.
// Bar charts read their labels from Categories and values from the first
// series.
type Chart struct {
	Kind       Kind
	Title      string
	Subtitle   string
	XName      string
	YName      string
	XIsTime    bool
	Series     []Series
	Categories []string
	ZeroLine   bool
	Layout     Layout
}

// Plotter is a chart sink.
type Plotter interface {
	Render(ctx context.Context, c Chart) error
}

func (c Chart) layout() Layout {
	l := c.Layout
	d := DefaultLayout()
	if l.Width <= 0 {
		l.Width = d.Width
	}
	if l.Height <= 0 {
		l.Height = d.Height
	}
	if l.MarginTop <= 0 {
		l.MarginTop = d.MarginTop
	}
	return l
}

// Validate reports charts that no sink could draw.
func (c Chart) Validate() error {
	if len(c.Series) == 0 {
		return fmt.Errorf("chart %q has no series", c.Title)
	}
	if c.Kind == Bar {
		if len(c.Categories) != len(c.Series[0].Y) {
			return fmt.Errorf("chart %q: %d categories for %d values", c.Title, len(c.Categories), len(c.Series[0].Y))
		}
		return nil
	}
	for _, s := range c.Series {
		if len(s.X) != len(s.Y) {
			return fmt.Errorf("chart %q: series %q has %d x and %d y values", c.Title, s.Name, len(s.X), len(s.Y))
		}
	}
	return nil
}
