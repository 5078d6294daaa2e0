// Package queries builds the warehouse SQL for an experiment: user bases per
// segment, conversion targets, engagement events and reporting breakdowns.
// Nothing here talks to the warehouse.
package queries

import (
	"strings"

	"github.com/pcer96/unified-hex/query"
)

const (
	// Open bounds used by the literal queries when a date is not given.
	openStart = "1970-01-01"
	openEnd   = "2030-01-01"
)

// Tables names the warehouse objects the queries read. Analytics and
// Replicated are datasets; the literal queries address several tables inside
// them.
type Tables struct {
	Segmentation query.Table
	Bookings     query.Table
	Analytics    string
	Replicated   string
}

func DefaultTables() Tables {
	return Tables{
		Segmentation: "harvest-picox-42.harvest_orion.service_improvement",
		Bookings:     "harvest-lumenx-42.verified.bookings",
		Analytics:    "harvesthq-production.harvest_analytics",
		Replicated:   "harvesthq-production.harvestapp_replicated_vitess",
	}
}

// DataQueries produces a fresh query value on every call.
type DataQueries struct {
	tables Tables
}

func New(tables Tables) *DataQueries {
	return &DataQueries{tables: tables}
}

func (d *DataQueries) Tables() Tables {
	return d.tables
}

// UserBaseOptions narrows an experiment user base.
type UserBaseOptions struct {
	Segments         []string
	StartDate        string
	EndDate          string
	ExcludeConverted bool
}

const productDescription = "JSON_EXTRACT_SCALAR(product_info, '$.product_description')"

// eligibilityPredicates is the single definition of a conversion: a purchase or
// free trial that is not an expansion, a plan update, an extra seat or an
// adjustment line, carrying no add-on other than additional_user.
func eligibilityPredicates() []string {
	addOns := "JSON_EXTRACT_ARRAY(product_info, '$.add_on_ids')"
	return []string{
		"event_type IN ('purchase', 'free_trial')",
		"JSON_EXTRACT_SCALAR(event_info, '$.is_mid_subscription_expansion') IS NULL" +
			" OR JSON_EXTRACT_SCALAR(event_info, '$.is_mid_subscription_expansion') = 'false'",
		productDescription + " <> 'Subscription update' OR " + productDescription + " IS NULL",
		productDescription + " NOT LIKE '%Additional%' OR " + productDescription + " IS NULL",
		productDescription + " NOT LIKE '%adjustment%' OR " + productDescription + " IS NULL",
		"ARRAY_LENGTH(" + addOns + ") = 0 OR " + addOns + " IS NULL" +
			" OR JSON_VALUE(" + addOns + "[OFFSET(0)]) = 'additional_user'",
	}
}

func whereAll(q *query.Query, preds []string) *query.Query {
	for _, p := range preds {
		q.Where(p)
	}
	return q
}

// segmentation returns one row per user seen in the experiment with the
// earliest event, client and segment label.
func (d *DataQueries) segmentation(experimentName string, segments []string, start, end string) *query.Query {
	q := query.New().
		Select(
			query.As("JSON_EXTRACT_SCALAR(identifiers, '$.harvest_account_id')", "uid"),
			query.As("MIN(event_timestamp)", "origin_timestamp"),
			query.As("MIN_BY(JSON_VALUE(payload, '$.bsp_id'), event_timestamp)", "segmentation_client"),
			query.As("MIN_BY(JSON_VALUE(payload, '$.segment_name'), event_timestamp)", "segment_name"),
		).
		From(d.tables.Segmentation, "").
		Where("JSON_VALUE(payload, '$.experiment_name') = " + query.Quote(experimentName)).
		GroupBy("1")
	if len(segments) > 0 {
		q.Where("JSON_VALUE(payload, '$.segment_name') IN " + query.QuoteList(segments))
	}
	if start != "" {
		q.Where("DATE(event_timestamp) >= " + query.Quote(start))
	}
	if end != "" {
		q.Where("DATE(event_timestamp) <= " + query.Quote(end))
	}
	return q
}

// ExperimentUserBase selects the users segmented into the experiment. With
// ExcludeConverted the same query is anti-joined against every user's first
// conversion, so its result is always a subset of the unfiltered user base.
func (d *DataQueries) ExperimentUserBase(experimentName string, opts UserBaseOptions) *query.Query {
	userBase := query.New().
		Select(
			query.Col("seg.uid"),
			query.Col("seg.origin_timestamp"),
			query.Col("seg.segmentation_client"),
			query.Col("seg.segment_name"),
		).
		From(d.segmentation(experimentName, opts.Segments, opts.StartDate, opts.EndDate), "seg")

	if opts.ExcludeConverted {
		userBase.
			Join(query.LeftJoin, d.firstConversions(), "final", "uid").
			Where("final.uid IS NULL")
	}
	return userBase
}

func (d *DataQueries) firstConversions() *query.Query {
	return query.New().
		Select(query.Col("uid"), query.As("MIN(event_timestamp)", "event_timestamp")).
		From(d.Conversions("", "", false), "").
		GroupBy("1")
}

func (d *DataQueries) eligibleBookings(onlyPaid bool) *query.Query {
	q := query.New().
		Select(
			query.As("user_id", "uid"),
			query.As("timestamp", "event_timestamp"),
			query.Col("subscription_id"),
			query.Col("subscription_manager"),
			query.As("bookings_net_of_platform_fees_usd", "event_value"),
			query.As("JSON_EXTRACT_SCALAR(product_info, '$.periodicity')", "product_periodicity"),
			query.As("SAFE_CAST(REGEXP_EXTRACT(JSON_VALUE(product_info, '$.product_description'), r'^\\s*(\\d+)') AS INT64)", "seat_number"),
			query.Col("event_type"),
		).
		From(d.tables.Bookings, "")
	whereAll(q, eligibilityPredicates())
	if onlyPaid {
		q.Where("bookings_net_of_platform_fees_usd > 0")
	}
	return q
}

// Conversions selects (uid, event_timestamp, event_value) for eligible
// bookings. Empty dates leave the booking window open on that side.
func (d *DataQueries) Conversions(startDate, endDate string, onlyPaid bool) *query.Query {
	bookings := d.eligibleBookings(onlyPaid)
	if startDate != "" {
		bookings.Where("DATE(timestamp) >= " + query.Quote(startDate))
	}
	if endDate != "" {
		bookings.Where("DATE(timestamp) <= " + query.Quote(endDate))
	}
	return query.New().
		Select(query.Col("uid"), query.Col("event_timestamp"), query.Col("event_value")).
		From(bookings, "")
}

// AutoRenewOff selects (uid, event_timestamp) for auto renew cancellations.
func (d *DataQueries) AutoRenewOff(startDate, endDate string) *query.Query {
	aro := query.New().
		Select(query.As("user_id", "uid"), query.As("timestamp", "event_timestamp")).
		From(d.tables.Bookings, "").
		Where("event_type = 'auto_renew_off'")
	if startDate != "" {
		aro.Where("timestamp >= " + query.Quote(startDate))
	}
	if endDate != "" {
		aro.Where("timestamp <= " + query.Quote(endDate))
	}
	return query.New().
		Select(query.Col("uid"), query.Col("event_timestamp")).
		From(aro, "")
}

// ConversionBreakdown attributes every eligible booking made after a user's
// first segmentation to that segmentation's segment and client.
func (d *DataQueries) ConversionBreakdown(experimentName, startDate, endDate string) *query.Query {
	q := query.New().
		Select(
			query.As("s.segment_name", "segment_name"),
			query.As("p.user_id", "global_user_id"),
			query.As("JSON_EXTRACT_SCALAR(product_info, '$.offer_group')", "offer_group"),
			query.As("JSON_EXTRACT_SCALAR(product_info, '$.plan')", "plan"),
			query.As("JSON_EXTRACT_SCALAR(product_info, '$.periodicity')", "periodicity"),
			query.As("p.bookings_net_of_platform_fees_usd", "net_revenues_usd"),
			query.As("s.segmentation_client", "client"),
			query.As("p.event_type", "event_type"),
			query.As("p.timestamp", "purchase_timestamp"),
		).
		From(d.tables.Bookings, "p").
		JoinOn(query.InnerJoin, d.segmentation(experimentName, nil, startDate, endDate), "s", "s.uid = p.user_id").
		Where("p.timestamp >= s.origin_timestamp")
	return whereAll(q, eligibilityPredicates())
}

// BreakdownColumns is the column order of ConversionBreakdown.
var BreakdownColumns = []string{
	"segment_name", "global_user_id", "offer_group", "plan", "periodicity",
	"net_revenues_usd", "client", "event_type", "purchase_timestamp",
}

// ClientCase maps raw segmentation clients onto platforms.
const ClientCase = "CASE" +
	" WHEN segmentation_client = 'harvest_ios' THEN 'ios'" +
	" WHEN segmentation_client = 'harvest_android' THEN 'android'" +
	" WHEN segmentation_client = 'harvest_web' THEN 'web'" +
	" WHEN segmentation_client IN ('harvest_mac_store', 'harvest_windows_store') THEN 'desktop'" +
	" END"

// SegmentationByClient counts distinct users per hour and client platform.
func SegmentationByClient(userBase *query.Query) *query.Query {
	return query.New().
		Select(
			query.As("TIMESTAMP_TRUNC(origin_timestamp, HOUR)", "time"),
			query.As(ClientCase, "segmentation_client"),
			query.As("COUNT(DISTINCT uid)", "users"),
		).
		From(userBase.Clone(), "").
		GroupBy("1", "2")
}

// SegmentationBySegment counts distinct users per segment label.
func SegmentationBySegment(userBase *query.Query) *query.Query {
	return query.New().
		Select(query.Col("segment_name"), query.As("COUNT(DISTINCT uid)", "users")).
		From(userBase.Clone(), "").
		GroupBy("1")
}

func window(startDate, endDate string) (string, string) {
	if strings.TrimSpace(startDate) == "" {
		startDate = openStart
	}
	if strings.TrimSpace(endDate) == "" {
		endDate = openEnd
	}
	return startDate, endDate
}
