package queries

import (
	"fmt"

	"github.com/pcer96/unified-hex/query"
)

// TimeEntries sums tracked hours per company and day.
// Columns: uid, event_timestamp, event_value.
func (d *DataQueries) TimeEntries(startDate, endDate string) string {
	start, end := window(startDate, endDate)
	return fmt.Sprintf(`WITH time_entries AS (
  SELECT
    TIMESTAMP(DATE(created_at)) AS event_timestamp,
    CAST(company_id AS STRING) AS uid,
    SUM(hours) AS event_value
  FROM `+"`%[1]s.time_entries`"+`
  WHERE created_at BETWEEN %[2]s AND %[3]s
  GROUP BY 1, 2
)
SELECT uid, event_timestamp, event_value
FROM time_entries`, d.tables.Analytics, query.Quote(start), query.Quote(end))
}

// Sessions lists distinct session starts per user.
// Columns: uid, event_timestamp.
func (d *DataQueries) Sessions(startDate, endDate string) string {
	start, end := window(startDate, endDate)
	return fmt.Sprintf(`WITH sessions AS (
  SELECT DISTINCT
    session_start_time AS event_timestamp,
    CAST(user_id AS STRING) AS uid
  FROM `+"`%[1]s.sessions`"+`
  WHERE session_start_time BETWEEN %[2]s AND %[3]s
)
SELECT uid, event_timestamp
FROM sessions`, d.tables.Analytics, query.Quote(start), query.Quote(end))
}

// ActivityRateQualified flags user days with qualified activity: time
// tracked, expenses, invoices, timesheet submission or approval, estimates or
// project work, for users active in a converted account on that day.
// Columns: uid, event_timestamp.
func (d *DataQueries) ActivityRateQualified(startDate, endDate string) string {
	start, end := window(startDate, endDate)
	return fmt.Sprintf(`WITH
active_users_daily AS (
  SELECT dates.date AS event_date, users.user_id, users.company_id
  FROM `+"`%[1]s.reporting_dates`"+` AS dates
  CROSS JOIN `+"`%[1]s.users`"+` AS users
  INNER JOIN `+"`%[1]s.customers`"+` AS customers
    ON users.company_id = customers.company_id
  WHERE dates.date BETWEEN %[3]s AND %[4]s
    AND dates.date < CURRENT_DATE()
    AND DATE(users.created_at) < dates.date
    AND (users.is_active = 1 OR DATE(users.deactivated_at) > dates.date)
    AND DATE(customers.converted_at) < dates.date
    AND (customers.churned = 0 OR DATE(customers.churn_date) > dates.date)
),
time_entries AS (
  SELECT DISTINCT DATE(created_at) AS event_date, user_id
  FROM `+"`%[1]s.time_entries`"+`
  WHERE created_at BETWEEN %[3]s AND %[4]s
),
expenses AS (
  SELECT DISTINCT DATE(created_at) AS event_date, user_id
  FROM `+"`%[1]s.expenses`"+`
  WHERE created_at BETWEEN %[3]s AND %[4]s
),
invoices AS (
  SELECT DISTINCT DATE(invoice_created_at) AS event_date, invoice_creator_user_id AS user_id
  FROM `+"`%[1]s.invoices`"+`
  WHERE invoice_created_at BETWEEN %[3]s AND %[4]s
),
submitted_timesheets AS (
  SELECT DISTINCT DATE(created_at) AS event_date, user_id
  FROM `+"`%[1]s.stg_harvest__approval_units`"+`
  WHERE created_at BETWEEN %[3]s AND %[4]s
),
approved_timesheets AS (
  SELECT DISTINCT DATE(event_time) AS event_date, user_id
  FROM `+"`%[1]s.events`"+`
  WHERE event_time BETWEEN %[3]s AND %[4]s
    AND clicked_element_id = 'approval-pending-approve-confirm'
),
estimates AS (
  SELECT DISTINCT DATE(created_at) AS event_date, created_by_id AS user_id
  FROM `+"`%[2]s.estimates`"+`
  WHERE created_at BETWEEN %[3]s AND %[4]s
),
project_activity AS (
  SELECT DISTINCT DATE(created_at) AS event_date, creator_user_id AS user_id
  FROM `+"`%[1]s.projects`"+`
  WHERE created_at BETWEEN %[3]s AND %[4]s
  UNION DISTINCT
  SELECT DISTINCT DATE(event_time) AS event_date, user_id
  FROM `+"`%[1]s.events`"+`
  WHERE event_time BETWEEN %[3]s AND %[4]s
    AND (page_id IN ('/projects/show', '/projects/edit', '/projects/index/active')
      OR clicked_element_id IN ('project-actions-edit', 'project-actions-archive',
        'project-actions-duplicate', 'project-actions-delete-confirm',
        'project-actions-restore', 'project-actions-pin', 'project-actions-unpin',
        'project-bulk-archive-confirm', 'project-bulk-delete-confirm',
        'projects-filter-by-client-select', 'projects-filter-archived',
        'projects-filter-active', 'projects-filter-by-manager-select',
        'projects-clear-filters', 'projects-filter-budgeted',
        'projects-export-confirm', 'projects-import-confirm'))
)
SELECT
  CAST(users.user_id AS STRING) AS uid,
  TIMESTAMP(users.event_date) AS event_timestamp
FROM active_users_daily AS users
LEFT JOIN time_entries AS t USING (user_id, event_date)
LEFT JOIN expenses AS e USING (user_id, event_date)
LEFT JOIN invoices AS i USING (user_id, event_date)
LEFT JOIN submitted_timesheets AS s USING (user_id, event_date)
LEFT JOIN approved_timesheets AS a USING (user_id, event_date)
LEFT JOIN estimates AS est USING (user_id, event_date)
LEFT JOIN project_activity AS p USING (user_id, event_date)
WHERE t.user_id IS NOT NULL
  OR e.user_id IS NOT NULL
  OR i.user_id IS NOT NULL
  OR s.user_id IS NOT NULL
  OR a.user_id IS NOT NULL
  OR est.user_id IS NOT NULL
  OR p.user_id IS NOT NULL`, d.tables.Analytics, d.tables.Replicated, query.Quote(start), query.Quote(end))
}
