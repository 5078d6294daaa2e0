package plot

import (
	"context"
	"io"

	"go.uber.org/multierr"
)

// Multi renders every chart on all sinks. A failing sink does not stop the
// others; the errors are combined.
type Multi []Plotter

func (m Multi) Render(ctx context.Context, c Chart) error {
	var err error
	for _, p := range m {
		err = multierr.Append(err, p.Render(ctx, c))
	}
	return err
}

// Close closes every sink that holds resources.
func (m Multi) Close() error {
	var err error
	for _, p := range m {
		if c, ok := p.(io.Closer); ok {
			err = multierr.Append(err, c.Close())
		}
	}
	return err
}
