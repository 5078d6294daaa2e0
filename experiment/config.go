// Package experiment holds the parameters of a single experiment analysis run.
package experiment

import (
	"fmt"
	"time"
)

// DateLayout is the textual format of every experiment date.
const DateLayout = "2006-01-02"

// Segments used when the experiment does not name its own.
var DefaultSegments = []string{"control_segment", "treatment_segment"}

var (
	DefaultMetrics = []string{
		"ConversionToSubscription",
		"ConversionToPaySubscription",
		"SubscriptionArpu",
		"SubscriptionArps",
		"Retention",
		"AutoRenewOff",
	}
	DefaultBreakdowns           = []string{"Client", "Tenure", "User State"}
	DefaultMetricsForBreakdowns = []string{
		"ConversionToSubscription",
		"ConversionToPaySubscription",
		"SubscriptionArpu",
		"Retention",
		"AutoRenewOff",
	}
)

// longHorizonDays is the horizon from which profiles are reported weekly.
const longHorizonDays = 40

// Flags toggles optional parts of the analysis.
type Flags struct {
	OnlyFreeUsers                             bool
	IncludeReachSection                       bool
	IncludeConversionBreakdowns               bool
	IncludeConversionsAtTargetPaywallProfiles bool
	IncludeEngagementModel                    bool
	IncludeProjections                        bool
}

// DefaultFlags mirrors what most experiments want reported.
func DefaultFlags() Flags {
	return Flags{
		IncludeReachSection:                       true,
		IncludeConversionBreakdowns:               true,
		IncludeConversionsAtTargetPaywallProfiles: true,
		IncludeProjections:                        true,
	}
}

// TargetPaywall identifies the paywall whose profiles are tracked.
type TargetPaywall struct {
	DisplayEvent    string
	ConversionEvent string
}

// Config is an experiment configuration. It is immutable once built by New.
type Config struct {
	name             string
	start            time.Time
	end              time.Time
	actionsEnd       time.Time
	segments         []string
	flags            Flags
	metrics          []string
	breakdowns       []string
	breakdownMetrics []string
	engagement       []string
	paywall          TargetPaywall
}

type settings struct {
	actionsEnd       string
	segments         []string
	flags            Flags
	metrics          []string
	breakdowns       []string
	breakdownMetrics []string
	engagement       []string
	paywall          TargetPaywall
}

// Option customizes a Config during construction.
type Option func(*settings)

// WithActionsEndDate sets the end of the action tracking window.
func WithActionsEndDate(date string) Option {
	return func(s *settings) { s.actionsEnd = date }
}

// WithSegments sets the ordered list of segment labels.
func WithSegments(segments ...string) Option {
	return func(s *settings) { s.segments = append([]string(nil), segments...) }
}

func WithFlags(flags Flags) Option {
	return func(s *settings) { s.flags = flags }
}

func WithMetrics(names ...string) Option {
	return func(s *settings) { s.metrics = append([]string(nil), names...) }
}

func WithBreakdowns(names ...string) Option {
	return func(s *settings) { s.breakdowns = append([]string(nil), names...) }
}

func WithMetricsForBreakdowns(names ...string) Option {
	return func(s *settings) { s.breakdownMetrics = append([]string(nil), names...) }
}

// WithEngagementModelActions sets up to two engagement model action identifiers.
// Empty identifiers are ignored.
func WithEngagementModelActions(actions ...string) Option {
	return func(s *settings) {
		s.engagement = nil
		for _, a := range actions {
			if a != "" {
				s.engagement = append(s.engagement, a)
			}
		}
	}
}

func WithTargetPaywall(displayEvent, conversionEvent string) Option {
	return func(s *settings) {
		s.paywall = TargetPaywall{DisplayEvent: displayEvent, ConversionEvent: conversionEvent}
	}
}

// New builds a Config. Dates must be in DateLayout; the actions end date defaults
// to the end date and the segments default to DefaultSegments.
func New(name, startDate, endDate string, opts ...Option) (*Config, error) {
	s := settings{
		flags:            DefaultFlags(),
		metrics:          append([]string(nil), DefaultMetrics...),
		breakdowns:       append([]string(nil), DefaultBreakdowns...),
		breakdownMetrics: append([]string(nil), DefaultMetricsForBreakdowns...),
	}
	for _, opt := range opts {
		opt(&s)
	}

	if name == "" {
		return nil, &ConfigurationError{Field: "experiment_name", Reason: "is required"}
	}
	start, err := parseDate("start_date", startDate)
	if err != nil {
		return nil, err
	}
	end, err := parseDate("end_date", endDate)
	if err != nil {
		return nil, err
	}
	actionsEnd := end
	if s.actionsEnd != "" {
		if actionsEnd, err = parseDate("actions_end_date", s.actionsEnd); err != nil {
			return nil, err
		}
	}
	if start.After(actionsEnd) {
		return nil, &ConfigurationError{
			Field:  "actions_end_date",
			Value:  actionsEnd.Format(DateLayout),
			Reason: fmt.Sprintf("is before start_date %s", start.Format(DateLayout)),
		}
	}

	segments := s.segments
	if len(segments) == 0 {
		segments = append([]string(nil), DefaultSegments...)
	}
	seen := make(map[string]bool, len(segments))
	for _, seg := range segments {
		if seg == "" {
			return nil, &ConfigurationError{Field: "experiment_segments", Reason: "contains an empty segment name"}
		}
		if seen[seg] {
			return nil, &ConfigurationError{Field: "experiment_segments", Value: seg, Reason: "is listed more than once"}
		}
		seen[seg] = true
	}
	if len(s.engagement) > 2 {
		return nil, &ConfigurationError{Field: "action_engagement_model", Reason: "accepts at most two actions"}
	}

	return &Config{
		name:             name,
		start:            start,
		end:              end,
		actionsEnd:       actionsEnd,
		segments:         segments,
		flags:            s.flags,
		metrics:          s.metrics,
		breakdowns:       s.breakdowns,
		breakdownMetrics: s.breakdownMetrics,
		engagement:       s.engagement,
		paywall:          s.paywall,
	}, nil
}

func parseDate(field, value string) (time.Time, error) {
	t, err := time.Parse(DateLayout, value)
	if err != nil {
		return time.Time{}, &ConfigurationError{Field: field, Value: value, Reason: "is not a YYYY-MM-DD date", Err: err}
	}
	return t, nil
}

func (c *Config) Name() string           { return c.name }
func (c *Config) StartDate() string      { return c.start.Format(DateLayout) }
func (c *Config) EndDate() string        { return c.end.Format(DateLayout) }
func (c *Config) ActionsEndDate() string { return c.actionsEnd.Format(DateLayout) }
func (c *Config) Flags() Flags           { return c.flags }

func (c *Config) Segments() []string             { return append([]string(nil), c.segments...) }
func (c *Config) Metrics() []string              { return append([]string(nil), c.metrics...) }
func (c *Config) Breakdowns() []string           { return append([]string(nil), c.breakdowns...) }
func (c *Config) MetricsForBreakdowns() []string { return append([]string(nil), c.breakdownMetrics...) }
func (c *Config) TargetPaywall() TargetPaywall   { return c.paywall }

// EngagementModelActions returns the configured actions, at most two.
func (c *Config) EngagementModelActions() []string {
	return append([]string(nil), c.engagement...)
}

// HorizonInDays is the number of days from the start date to the actions end date.
func (c *Config) HorizonInDays() int {
	return int(c.actionsEnd.Sub(c.start).Hours() / 24)
}

// GranularityInDays is the profile bucket width: daily for short experiments,
// weekly once the horizon reaches 40 days.
func (c *Config) GranularityInDays() int {
	if c.HorizonInDays() < longHorizonDays {
		return 1
	}
	return 7
}

// ToMap flattens the configuration, derived values included, for display and logs.
func (c *Config) ToMap() map[string]interface{} {
	engagement := c.EngagementModelActions()
	action := func(i int) string {
		if i < len(engagement) {
			return engagement[i]
		}
		return ""
	}
	return map[string]interface{}{
		"experiment_name":                                c.name,
		"start_date":                                     c.StartDate(),
		"end_date":                                       c.EndDate(),
		"actions_end_date":                               c.ActionsEndDate(),
		"experiment_segments":                            c.Segments(),
		"only_free_users":                                c.flags.OnlyFreeUsers,
		"include_reach_section":                          c.flags.IncludeReachSection,
		"include_conversion_breakdowns":                  c.flags.IncludeConversionBreakdowns,
		"include_conversions_at_target_paywall_profiles": c.flags.IncludeConversionsAtTargetPaywallProfiles,
		"include_engagement_model":                       c.flags.IncludeEngagementModel,
		"include_projections":                            c.flags.IncludeProjections,
		"metrics_list":                                   c.Metrics(),
		"breakdowns":                                     c.Breakdowns(),
		"metrics_for_breakdowns":                         c.MetricsForBreakdowns(),
		"action_engagement_model":                        action(0),
		"action_engagement_model_2":                      action(1),
		"target_paywall_display_event":                   c.paywall.DisplayEvent,
		"target_paywall_conversion_event":                c.paywall.ConversionEvent,
		"horizon_in_days":                                c.HorizonInDays(),
		"granularity_in_days":                            c.GranularityInDays(),
	}
}
