package main

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/pcer96/unified-hex/analyzer"
	"github.com/pcer96/unified-hex/compute"
	"github.com/pcer96/unified-hex/config"
	"github.com/pcer96/unified-hex/credentials"
	"github.com/pcer96/unified-hex/domain/models"
	"github.com/pcer96/unified-hex/experiment"
	"github.com/pcer96/unified-hex/plot"
	"github.com/pcer96/unified-hex/warehouse"
	"github.com/rs/zerolog"
	uuid "github.com/satori/go.uuid"
	"github.com/spf13/cobra"
	"go.uber.org/multierr"
)

// session owns everything a warehouse-backed command opens.
type session struct {
	runID       string
	dir         string
	log         zerolog.Logger
	analyzer    *analyzer.Analyzer
	warehouse   *warehouse.Instrumented
	plotter     plot.Multi
	lease       *credentials.Lease
	metricsFile string
}

func openSession(cmd *cobra.Command, exp *experiment.Config) (*session, error) {
	env, err := config.GetConfig()
	if err != nil {
		return nil, err
	}

	s := &session{runID: uuid.NewV4().String()}
	s.log = config.NewLogger(env.AppEnv, env.LogLevel).With().
		Str("run_id", s.runID).
		Str("experiment", exp.Name()).
		Logger()

	s.metricsFile, _ = cmd.Flags().GetString("metrics-file")
	if s.metricsFile == "" {
		s.metricsFile = env.MetricsFile
	}
	outputDir, _ := cmd.Flags().GetString("output-dir")
	if outputDir == "" {
		outputDir = env.OutputDir
	}
	s.dir = filepath.Join(outputDir, fmt.Sprintf("%s_%s", plot.Slug(exp.Name()), s.runID[:8]))

	exec, err := s.openWarehouse(cmd.Context(), env)
	if err != nil {
		return nil, s.close(err)
	}
	s.warehouse = warehouse.NewInstrumented(exec, env.WarehouseBackend, s.log)

	if err := s.openPlotters(env); err != nil {
		return nil, s.close(err)
	}

	s.analyzer, err = analyzer.New(exp, analyzer.Deps{
		Warehouse: s.warehouse,
		Compute:   compute.NewWarehouseService(s.warehouse, s.log),
		Plotter:   s.plotter,
		Logger:    s.log,
		App:       env.App,
	})
	if err != nil {
		return nil, s.close(err)
	}
	s.log.Info().Str("backend", env.WarehouseBackend).Str("output", s.dir).Msg("session opened")
	return s, nil
}

func (s *session) openWarehouse(ctx context.Context, env *config.Config) (warehouse.Executor, error) {
	switch env.WarehouseBackend {
	case config.BackendMySQL:
		return warehouse.OpenMySQL(env.WarehouseDSN)
	case config.BackendBigQuery:
		lease, err := credentials.Acquire(ctx, credentials.EnvProvider{Key: env.CredentialsEnv, Files: []string{".env"}}, credentials.DefaultEnvVar)
		if err != nil {
			return nil, fmt.Errorf("warehouse credentials: %w", err)
		}
		s.lease = lease
		return warehouse.NewBigQuery(ctx, env.BigQueryProject, lease.Path())
	}
	return nil, fmt.Errorf("unknown warehouse backend %q", env.WarehouseBackend)
}

func (s *session) openPlotters(env *config.Config) error {
	if env.HasPlotFormat("png") {
		p, err := plot.NewPNG(s.dir, s.log)
		if err != nil {
			return err
		}
		s.plotter = append(s.plotter, p)
	}
	if env.HasPlotFormat("html") {
		s.plotter = append(s.plotter, plot.NewHTML(filepath.Join(s.dir, "report.html")))
	}
	if env.HasPlotFormat("telegram") {
		if env.TgToken == "" || env.TgChatID == 0 {
			return fmt.Errorf("telegram plots need TG_TOKEN and TG_CHAT_ID")
		}
		t, err := plot.NewTelegram(env.TgToken, env.TgChatID, s.log)
		if err != nil {
			return err
		}
		s.plotter = append(s.plotter, t)
	}
	return nil
}

// close releases the session and returns err combined with any cleanup
// failure.
func (s *session) close(err error) error {
	err = multierr.Append(err, s.plotter.Close())
	if s.warehouse != nil {
		if s.metricsFile != "" {
			err = multierr.Append(err, s.warehouse.WriteTextfile(s.metricsFile))
		}
		err = multierr.Append(err, s.warehouse.Close())
	}
	if s.lease != nil {
		err = multierr.Append(err, s.lease.Close())
	}
	if err != nil {
		s.log.Error().Err(err).Msg("run finished with errors")
	} else {
		s.log.Info().Msg("run finished")
	}
	return err
}

func upliftFrame(u models.UpliftSeries) models.Frame {
	f := models.Frame{Columns: []string{"time_bin", analyzer.UpliftSeriesName(u)}}
	for _, p := range u.Points {
		f.Rows = append(f.Rows, []interface{}{p.TimeBin, p.Value})
	}
	return f
}
