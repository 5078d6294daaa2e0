package experiment

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewDerivedValues(t *testing.T) {
	tests := []struct {
		name        string
		start       string
		end         string
		actionsEnd  string
		horizon     int
		granularity int
	}{
		{"short experiment", "2025-01-01", "2025-01-31", "", 30, 1},
		{"long experiment", "2025-01-01", "2025-03-15", "", 73, 7},
		{"horizon just below weekly", "2025-01-01", "2025-02-09", "", 39, 1},
		{"horizon at weekly threshold", "2025-01-01", "2025-02-10", "", 40, 7},
		{"actions end extends horizon", "2025-01-01", "2025-01-10", "2025-03-01", 59, 7},
		{"same day", "2025-01-01", "2025-01-01", "", 0, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := New("exp", tt.start, tt.end, WithActionsEndDate(tt.actionsEnd))
			require.NoError(t, err)
			assert.Equal(t, tt.horizon, cfg.HorizonInDays())
			assert.Equal(t, tt.granularity, cfg.GranularityInDays())
		})
	}
}

func TestNewDefaults(t *testing.T) {
	cfg, err := New("pricing_test", "2025-01-01", "2025-01-31")
	require.NoError(t, err)

	assert.Equal(t, "pricing_test", cfg.Name())
	assert.Equal(t, "2025-01-31", cfg.ActionsEndDate())
	assert.Equal(t, []string{"control_segment", "treatment_segment"}, cfg.Segments())
	assert.Equal(t, DefaultMetrics, cfg.Metrics())
	assert.Equal(t, DefaultBreakdowns, cfg.Breakdowns())
	assert.Equal(t, DefaultMetricsForBreakdowns, cfg.MetricsForBreakdowns())
	assert.Equal(t, DefaultFlags(), cfg.Flags())
	assert.Empty(t, cfg.EngagementModelActions())
}

func TestAccessorsReturnCopies(t *testing.T) {
	cfg, err := New("exp", "2025-01-01", "2025-01-31", WithSegments("a", "b"))
	require.NoError(t, err)

	segments := cfg.Segments()
	segments[0] = "mutated"
	assert.Equal(t, []string{"a", "b"}, cfg.Segments())
}

func TestNewValidation(t *testing.T) {
	tests := []struct {
		name  string
		start string
		end   string
		opts  []Option
		field string
	}{
		{"missing name", "2025-01-01", "2025-01-31", nil, "experiment_name"},
		{"bad start date", "2025-13-01", "2025-01-31", nil, "start_date"},
		{"bad end date", "2025-01-01", "31/01/2025", nil, "end_date"},
		{"bad actions end date", "2025-01-01", "2025-01-31", []Option{WithActionsEndDate("soon")}, "actions_end_date"},
		{"start after actions end", "2025-02-01", "2025-01-31", nil, "actions_end_date"},
		{"duplicate segment", "2025-01-01", "2025-01-31", []Option{WithSegments("a", "a")}, "experiment_segments"},
		{"empty segment", "2025-01-01", "2025-01-31", []Option{WithSegments("a", "")}, "experiment_segments"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			name := "exp"
			if tt.field == "experiment_name" {
				name = ""
			}
			cfg, err := New(name, tt.start, tt.end, tt.opts...)
			assert.Nil(t, cfg)

			var cfgErr *ConfigurationError
			require.True(t, errors.As(err, &cfgErr), "got %v", err)
			assert.Equal(t, tt.field, cfgErr.Field)
		})
	}
}

func TestEngagementModelActions(t *testing.T) {
	cfg, err := New("exp", "2025-01-01", "2025-01-31", WithEngagementModelActions("", "log_time"))
	require.NoError(t, err)
	assert.Equal(t, []string{"log_time"}, cfg.EngagementModelActions())

	_, err = New("exp", "2025-01-01", "2025-01-31", WithEngagementModelActions("a", "b", "c"))
	assert.Error(t, err)
}

func TestToMap(t *testing.T) {
	cfg, err := New("exp", "2025-01-01", "2025-03-15",
		WithEngagementModelActions("log_time"),
		WithTargetPaywall("paywall_shown", "paywall_converted"),
	)
	require.NoError(t, err)

	m := cfg.ToMap()
	assert.Equal(t, "exp", m["experiment_name"])
	assert.Equal(t, 73, m["horizon_in_days"])
	assert.Equal(t, 7, m["granularity_in_days"])
	assert.Equal(t, "log_time", m["action_engagement_model"])
	assert.Equal(t, "", m["action_engagement_model_2"])
	assert.Equal(t, "paywall_shown", m["target_paywall_display_event"])
	assert.Equal(t, true, m["include_reach_section"])
}

func TestConfigurationErrorUnwrap(t *testing.T) {
	_, err := New("exp", "not-a-date", "2025-01-31")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "start_date")
	assert.NotNil(t, errors.Unwrap(err))
}
