package plot

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"
)

// PNG writes one image per chart into a directory.
type PNG struct {
	dir     string
	log     zerolog.Logger
	seen    map[string]int
	written []string
}

func NewPNG(dir string, log zerolog.Logger) (*PNG, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create plot dir: %w", err)
	}
	return &PNG{dir: dir, log: log, seen: map[string]int{}}, nil
}

func (p *PNG) Render(ctx context.Context, c Chart) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := DrawChart(c)
	if err != nil {
		return err
	}

	name := Slug(c.Title)
	p.seen[name]++
	if n := p.seen[name]; n > 1 {
		name = fmt.Sprintf("%s_%d", name, n)
	}
	path := filepath.Join(p.dir, name+".png")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	p.written = append(p.written, path)
	p.log.Info().Str("file", path).Str("chart", c.Title).Msg("chart saved")
	return nil
}

// Files lists the images written so far, in order.
func (p *PNG) Files() []string {
	return append([]string(nil), p.written...)
}
