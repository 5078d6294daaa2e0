package compute

import (
	"context"
	"fmt"
	"sort"

	"github.com/pcer96/unified-hex/domain/models"
	"github.com/pcer96/unified-hex/query"
	"github.com/pcer96/unified-hex/warehouse"
	"github.com/rs/zerolog"
)

// WarehouseService computes profiles in the warehouse itself, one query per
// request and segment, sequentially.
type WarehouseService struct {
	exec warehouse.Executor
	log  zerolog.Logger
}

func NewWarehouseService(exec warehouse.Executor, log zerolog.Logger) *WarehouseService {
	return &WarehouseService{exec: exec, log: log}
}

func (s *WarehouseService) RequestMultipleMetrics(ctx context.Context, common CommonParams, metric models.Metric, segments []Segment) ([]models.SegmentResult, error) {
	if common.GranularityInDays <= 0 {
		return nil, fmt.Errorf("metric %s: granularity must be positive, got %d", metric.Name, common.GranularityInDays)
	}

	var results []models.SegmentResult
	for i, req := range metric.Requests {
		name := metric.Name
		if len(metric.Requests) > 1 {
			name = fmt.Sprintf("%s#%d", metric.Name, i+1)
		}
		for _, seg := range segments {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			s.log.Debug().Str("metric", name).Str("segment", seg.Label).Msg("requesting profile")

			rows, err := s.exec.Query(ctx, ProfileSQL(common, req, seg.UserBaseSQL))
			if err != nil {
				return nil, fmt.Errorf("metric %s, segment %s: %w", name, seg.Label, err)
			}
			profile, err := parseProfile(rows)
			if err != nil {
				return nil, fmt.Errorf("metric %s, segment %s: %w", name, seg.Label, err)
			}
			results = append(results, models.SegmentResult{Segment: seg.Label, Metric: name, Profile: profile})
		}
	}
	return results, nil
}

// ProfileSQL builds the profile query of one request for one user base: for
// each day bin from 0 to the horizon, the target aggregated over every
// user's events since segmentation, divided by the user base size.
func ProfileSQL(common CommonParams, req models.MetricRequest, userBaseSQL string) string {
	value := "1"
	if req.Kind == models.Valued {
		value = "t.event_value"
	}

	var aggregate string
	switch req.Kind {
	case models.FirstSuccessRate:
		aggregate = "COUNT(DISTINCT e.uid)"
	case models.Valued:
		aggregate = "SUM(e.event_value)"
	default:
		aggregate = "COUNT(e.uid)"
	}

	window := "e.day <= b.time_bin"
	if !req.IsCumulative() {
		window = fmt.Sprintf("e.day <= b.time_bin AND e.day > b.time_bin - %d", common.GranularityInDays)
	}

	return fmt.Sprintf(`WITH user_base AS (
%[1]s
),
target AS (
%[2]s
),
bins AS (
  SELECT time_bin FROM UNNEST(GENERATE_ARRAY(0, %[3]d, %[4]d)) AS time_bin
),
events AS (
  SELECT
    CAST(u.uid AS STRING) AS uid,
    DATE_DIFF(DATE(t.event_timestamp), DATE(u.origin_timestamp), DAY) AS day,
    %[5]s AS event_value
  FROM user_base AS u
  INNER JOIN target AS t ON CAST(t.uid AS STRING) = CAST(u.uid AS STRING)
  WHERE t.event_timestamp >= u.origin_timestamp
    AND DATE(t.event_timestamp) <= %[6]s
)
SELECT
  b.time_bin AS time_bin,
  SAFE_DIVIDE(IFNULL(%[7]s, 0), (SELECT COUNT(DISTINCT uid) FROM user_base)) AS value
FROM bins AS b
LEFT JOIN events AS e ON %[8]s
GROUP BY 1
ORDER BY 1`,
		userBaseSQL, req.TargetQuery, common.HorizonInDays, common.GranularityInDays,
		value, query.Quote(common.ActionsEndDate), aggregate, window)
}

func parseProfile(rows []map[string]interface{}) ([]models.ProfilePoint, error) {
	profile := make([]models.ProfilePoint, 0, len(rows))
	for _, row := range rows {
		bin, err := models.ToInt(row["time_bin"])
		if err != nil {
			return nil, fmt.Errorf("time_bin: %w", err)
		}
		value, err := models.ToFloat(row["value"])
		if err != nil {
			return nil, fmt.Errorf("value at bin %d: %w", bin, err)
		}
		profile = append(profile, models.ProfilePoint{TimeBin: bin, Value: value})
	}
	sort.Slice(profile, func(i, j int) bool { return profile[i].TimeBin < profile[j].TimeBin })
	return profile, nil
}
