package experiment

import (
	"fmt"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/pflag"
)

// EnvPrefix marks environment variables that override experiment file values,
// e.g. EXPERIMENT_END_DATE.
const EnvPrefix = "EXPERIMENT_"

// File is the on-disk shape of an experiment definition.
type File struct {
	Name                    string   `koanf:"experiment_name" yaml:"experiment_name"`
	StartDate               string   `koanf:"start_date" yaml:"start_date"`
	EndDate                 string   `koanf:"end_date" yaml:"end_date"`
	ActionsEndDate          string   `koanf:"actions_end_date" yaml:"actions_end_date,omitempty"`
	Segments                []string `koanf:"experiment_segments" yaml:"experiment_segments"`
	OnlyFreeUsers           bool     `koanf:"only_free_users" yaml:"only_free_users"`
	IncludeReachSection     bool     `koanf:"include_reach_section" yaml:"include_reach_section"`
	IncludeConvBreakdowns   bool     `koanf:"include_conversion_breakdowns" yaml:"include_conversion_breakdowns"`
	IncludeTargetPaywall    bool     `koanf:"include_conversions_at_target_paywall_profiles" yaml:"include_conversions_at_target_paywall_profiles"`
	IncludeEngagementModel  bool     `koanf:"include_engagement_model" yaml:"include_engagement_model"`
	IncludeProjections      bool     `koanf:"include_projections" yaml:"include_projections"`
	Metrics                 []string `koanf:"metrics_list" yaml:"metrics_list"`
	Breakdowns              []string `koanf:"breakdowns" yaml:"breakdowns"`
	MetricsForBreakdowns    []string `koanf:"metrics_for_breakdowns" yaml:"metrics_for_breakdowns"`
	EngagementAction        string   `koanf:"action_engagement_model" yaml:"action_engagement_model,omitempty"`
	EngagementAction2       string   `koanf:"action_engagement_model_2" yaml:"action_engagement_model_2,omitempty"`
	TargetPaywallDisplay    string   `koanf:"target_paywall_display_event" yaml:"target_paywall_display_event,omitempty"`
	TargetPaywallConversion string   `koanf:"target_paywall_conversion_event" yaml:"target_paywall_conversion_event,omitempty"`
}

// flagKeys maps CLI flag names onto experiment file keys.
var flagKeys = map[string]string{
	"name":             "experiment_name",
	"start-date":       "start_date",
	"end-date":         "end_date",
	"actions-end-date": "actions_end_date",
	"segments":         "experiment_segments",
	"metrics":          "metrics_list",
	"only-free-users":  "only_free_users",
}

func defaults() map[string]interface{} {
	flags := DefaultFlags()
	return map[string]interface{}{
		"only_free_users":                                flags.OnlyFreeUsers,
		"include_reach_section":                          flags.IncludeReachSection,
		"include_conversion_breakdowns":                  flags.IncludeConversionBreakdowns,
		"include_conversions_at_target_paywall_profiles": flags.IncludeConversionsAtTargetPaywallProfiles,
		"include_engagement_model":                       flags.IncludeEngagementModel,
		"include_projections":                            flags.IncludeProjections,
		"metrics_list":                                   DefaultMetrics,
		"breakdowns":                                     DefaultBreakdowns,
		"metrics_for_breakdowns":                         DefaultMetricsForBreakdowns,
	}
}

// Load reads an experiment definition. Precedence, highest first: changed CLI
// flags, EXPERIMENT_* environment variables, the YAML file, defaults.
// An empty path skips the file.
func Load(path string, flags *pflag.FlagSet) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(confmap.Provider(defaults(), "."), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}
	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("error reading experiment file %s: %w", path, err)
		}
	}
	if err := k.Load(env.Provider(EnvPrefix, ".", func(s string) string {
		return strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	}), nil); err != nil {
		return nil, fmt.Errorf("failed to load env vars: %w", err)
	}
	if flags != nil {
		if err := k.Load(posflag.ProviderWithFlag(flags, ".", k, func(f *pflag.Flag) (string, interface{}) {
			key, ok := flagKeys[f.Name]
			if !ok || !f.Changed {
				return "", nil
			}
			return key, posflag.FlagVal(flags, f)
		}), nil); err != nil {
			return nil, fmt.Errorf("failed to load flags: %w", err)
		}
	}

	var f File
	if err := k.Unmarshal("", &f); err != nil {
		return nil, fmt.Errorf("unable to decode experiment: %w", err)
	}
	return f.Config()
}

// Config validates the definition and builds the immutable Config.
func (f File) Config() (*Config, error) {
	return New(f.Name, f.StartDate, f.EndDate,
		WithActionsEndDate(f.ActionsEndDate),
		WithSegments(f.Segments...),
		WithFlags(Flags{
			OnlyFreeUsers:                             f.OnlyFreeUsers,
			IncludeReachSection:                       f.IncludeReachSection,
			IncludeConversionBreakdowns:               f.IncludeConvBreakdowns,
			IncludeConversionsAtTargetPaywallProfiles: f.IncludeTargetPaywall,
			IncludeEngagementModel:                    f.IncludeEngagementModel,
			IncludeProjections:                        f.IncludeProjections,
		}),
		WithMetrics(f.Metrics...),
		WithBreakdowns(f.Breakdowns...),
		WithMetricsForBreakdowns(f.MetricsForBreakdowns...),
		WithEngagementModelActions(f.EngagementAction, f.EngagementAction2),
		WithTargetPaywall(f.TargetPaywallDisplay, f.TargetPaywallConversion),
	)
}
