package models

type MetricKind string

const (
	FirstSuccessRate MetricKind = "first_success_rate"
	Valued           MetricKind = "valued"
	Count            MetricKind = "count"
)

// EstimatorCumulated accumulates the target over the time bins.
const EstimatorCumulated = "cumulated"

// MetricRequest is what the metrics service needs to compute one profile:
// a target query returning (uid, event_timestamp[, event_value]) and how to
// estimate it. Cumulative forces a running window when no estimator is set;
// a request without either is profiled per time bin.
type MetricRequest struct {
	Kind        MetricKind
	TargetQuery string
	Estimator   string
	Cumulative  bool
}

// IsCumulative reports whether each time bin accumulates every event since
// the user's origin. First success is cumulative by definition.
func (r MetricRequest) IsCumulative() bool {
	return r.Kind == FirstSuccessRate || r.Estimator == EstimatorCumulated || r.Cumulative
}

// Metric is a display name bound to its requests.
type Metric struct {
	Name     string
	Requests []MetricRequest
}

type ProfilePoint struct {
	TimeBin int     `db:"time_bin"`
	Value   float64 `db:"value"`
}

// SegmentResult is the profile of one metric for one segment.
type SegmentResult struct {
	Segment string
	Metric  string
	Profile []ProfilePoint
}

// UpliftPoint is the relative difference against a baseline at one time bin.
// Defined is false when the baseline is zero; Value is NaN then.
type UpliftPoint struct {
	TimeBin int
	Value   float64
	Defined bool
}

type UpliftSeries struct {
	Segment  string
	Baseline string
	Metric   string
	Points   []UpliftPoint
}

// Frame is a tabular result with a fixed column order.
type Frame struct {
	Columns []string
	Rows    [][]interface{}
}

func (f Frame) Len() int {
	return len(f.Rows)
}

// FrameFromRows orders map rows by columns; missing keys become nil.
func FrameFromRows(columns []string, rows []map[string]interface{}) Frame {
	f := Frame{Columns: append([]string(nil), columns...), Rows: make([][]interface{}, 0, len(rows))}
	for _, row := range rows {
		values := make([]interface{}, len(columns))
		for i, c := range columns {
			values[i] = row[c]
		}
		f.Rows = append(f.Rows, values)
	}
	return f
}
