// Package metrics binds metric names to the warehouse queries and estimator
// directives the metrics service needs.
package metrics

import (
	"fmt"
	"strings"

	"github.com/pcer96/unified-hex/domain/models"
	"github.com/pcer96/unified-hex/queries"
)

// UnknownMetricError is returned for a name outside the catalog.
type UnknownMetricError struct {
	Name  string
	Known []string
}

func (e *UnknownMetricError) Error() string {
	return fmt.Sprintf("unknown metric: %s. Available metrics: %s", e.Name, strings.Join(e.Known, ", "))
}

type factory func(d *Definitions) models.Metric

type entry struct {
	name  string
	build factory
}

// catalog is kept in reporting order.
var catalog = []entry{
	{"ConversionToSubscription", func(d *Definitions) models.Metric {
		return single("C2S", models.FirstSuccessRate, d.q.Conversions(d.start, d.end, false).ToSQL(), false)
	}},
	{"ConversionToPaySubscription", func(d *Definitions) models.Metric {
		return single("C2P", models.FirstSuccessRate, d.q.Conversions(d.start, d.end, true).ToSQL(), false)
	}},
	{"SubscriptionArpu", func(d *Definitions) models.Metric {
		return single("ARPU", models.Valued, d.q.Conversions(d.start, d.end, false).ToSQL(), false)
	}},
	{"SubscriptionArps", func(d *Definitions) models.Metric {
		return single("ARPS", models.Valued, d.q.Conversions(d.start, d.end, true).ToSQL(), false)
	}},
	// Retention counts sessions until a retention definition is agreed on.
	{"Retention", func(d *Definitions) models.Metric {
		return single("Retention", models.Count, d.q.Sessions(d.start, d.end), true)
	}},
	{"AutoRenewOff", func(d *Definitions) models.Metric {
		return single("AutoRenewOff", models.FirstSuccessRate, d.q.AutoRenewOff(d.start, d.end).ToSQL(), false)
	}},
	{"QualifiedActivityDaily", func(d *Definitions) models.Metric {
		return single("QualifiedActivityDaily", models.Count, d.q.ActivityRateQualified(d.start, d.end), true)
	}},
	{"Sessions", func(d *Definitions) models.Metric {
		return single("Sessions", models.Count, d.q.Sessions(d.start, d.end), true)
	}},
	{"HoursTracked", func(d *Definitions) models.Metric {
		return single("HoursTracked", models.Valued, d.q.TimeEntries(d.start, d.end), true)
	}},
}

func single(name string, kind models.MetricKind, target string, cumulative bool) models.Metric {
	return models.Metric{
		Name: name,
		Requests: []models.MetricRequest{{
			Kind:        kind,
			TargetQuery: target,
			Estimator:   models.EstimatorCumulated,
			Cumulative:  cumulative,
		}},
	}
}

// Names returns the catalog names in reporting order.
func Names() []string {
	names := make([]string, 0, len(catalog))
	for _, e := range catalog {
		names = append(names, e.name)
	}
	return names
}

// Definitions builds metrics for a fixed date window.
type Definitions struct {
	q     *queries.DataQueries
	start string
	end   string
}

// NewDefinitions filters target events to [startDate, endDate]. The analyzer
// passes the experiment's actions end date as endDate so conversions after
// the exposure window still count.
func NewDefinitions(q *queries.DataQueries, startDate, endDate string) *Definitions {
	return &Definitions{q: q, start: startDate, end: endDate}
}

// ByName builds the named metric. Every call returns a new value with the
// same query text.
func (d *Definitions) ByName(name string) (models.Metric, error) {
	for _, e := range catalog {
		if e.name == name {
			return e.build(d), nil
		}
	}
	return models.Metric{}, &UnknownMetricError{Name: name, Known: Names()}
}

// List resolves names in order and stops at the first unknown one.
func (d *Definitions) List(names []string) ([]models.Metric, error) {
	list := make([]models.Metric, 0, len(names))
	for _, name := range names {
		m, err := d.ByName(name)
		if err != nil {
			return nil, err
		}
		list = append(list, m)
	}
	return list, nil
}
