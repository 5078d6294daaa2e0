package warehouse

import (
	"context"
	"io"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
)

// Instrumented logs every query and records its outcome on a private
// Prometheus registry.
type Instrumented struct {
	next     Executor
	backend  string
	log      zerolog.Logger
	registry *prometheus.Registry

	queries  *prometheus.CounterVec
	rows     *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

func NewInstrumented(next Executor, backend string, log zerolog.Logger) *Instrumented {
	registry := prometheus.NewRegistry()
	factory := promauto.With(registry)
	return &Instrumented{
		next:     next,
		backend:  backend,
		log:      log.With().Str("backend", backend).Logger(),
		registry: registry,
		queries: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "warehouse_queries_total",
				Help: "Warehouse queries by outcome",
			},
			[]string{"backend", "status"},
		),
		rows: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "warehouse_rows_total",
				Help: "Rows returned by the warehouse",
			},
			[]string{"backend"},
		),
		duration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "warehouse_query_duration_seconds",
				Help:    "Warehouse query latency",
				Buckets: []float64{0.1, 0.5, 1, 5, 15, 30, 60, 120, 300},
			},
			[]string{"backend"},
		),
	}
}

func (i *Instrumented) Query(ctx context.Context, sql string) ([]map[string]interface{}, error) {
	started := time.Now()
	i.log.Debug().Str("sql", sql).Msg("running warehouse query")

	rows, err := i.next.Query(ctx, sql)
	elapsed := time.Since(started)
	i.duration.WithLabelValues(i.backend).Observe(elapsed.Seconds())
	if err != nil {
		i.queries.WithLabelValues(i.backend, "error").Inc()
		i.log.Error().Err(err).Dur("elapsed", elapsed).Msg("warehouse query failed")
		return nil, err
	}

	i.queries.WithLabelValues(i.backend, "ok").Inc()
	i.rows.WithLabelValues(i.backend).Add(float64(len(rows)))
	i.log.Debug().Int("rows", len(rows)).Dur("elapsed", elapsed).Msg("warehouse query done")
	return rows, nil
}

func (i *Instrumented) Registry() *prometheus.Registry {
	return i.registry
}

// WriteTextfile dumps the collected metrics in the node exporter textfile format.
func (i *Instrumented) WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, i.registry)
}

// Close closes the wrapped executor when it holds resources.
func (i *Instrumented) Close() error {
	if c, ok := i.next.(io.Closer); ok {
		return c.Close()
	}
	return nil
}
