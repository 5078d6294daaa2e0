package analyzer

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/pcer96/unified-hex/domain/models"
	"github.com/pcer96/unified-hex/plot"
	"github.com/pcer96/unified-hex/queries"
	"github.com/pcer96/unified-hex/query"
)

// ClientOrder is the display order of segmentation clients. Other values are
// shown after these, sorted by name.
var ClientOrder = []string{"ios", "android", "desktop", "web"}

const unknownClient = "unknown"

// ReachPoint is the number of users segmented in one hour and the running
// total up to it.
type ReachPoint struct {
	Time       time.Time
	Users      int64
	Cumulative int64
}

type ClientReach struct {
	Client string
	Points []ReachPoint
}

type SegmentReach struct {
	Segment string
	Users   int64
}

// Reach is the segmentation breakdown of an experiment.
type Reach struct {
	ByClient  []ClientReach
	BySegment []SegmentReach
}

// SegmentationBreakdowns returns the per-client hourly and the per-segment
// user count queries over the whole experiment user base.
func (a *Analyzer) SegmentationBreakdowns() (byClient, bySegment *query.Query) {
	userBase := a.queries.ExperimentUserBase(a.cfg.Name(), queries.UserBaseOptions{
		StartDate: a.cfg.StartDate(),
		EndDate:   a.cfg.EndDate(),
	})
	return queries.SegmentationByClient(userBase), queries.SegmentationBySegment(userBase)
}

// PlotSegmentationBreakdowns runs both breakdown queries and renders the
// cumulative users per client and the users per segment.
func (a *Analyzer) PlotSegmentationBreakdowns(ctx context.Context) (*Reach, error) {
	byClient, bySegment := a.SegmentationBreakdowns()

	rows, err := a.deps.Warehouse.Query(ctx, byClient.ToSQL())
	if err != nil {
		return nil, err
	}
	clients, err := cumulativeByClient(rows)
	if err != nil {
		return nil, fmt.Errorf("segmentation by client: %w", err)
	}

	rows, err = a.deps.Warehouse.Query(ctx, bySegment.ToSQL())
	if err != nil {
		return nil, err
	}
	segments, err := usersBySegment(rows)
	if err != nil {
		return nil, fmt.Errorf("segmentation by segment: %w", err)
	}

	reach := &Reach{ByClient: clients, BySegment: segments}
	if len(clients) > 0 {
		if err := a.deps.Plotter.Render(ctx, clientChart(clients)); err != nil {
			return reach, fmt.Errorf("plot segmentation by client: %w", err)
		}
	}
	if len(segments) > 0 {
		if err := a.deps.Plotter.Render(ctx, segmentChart(segments)); err != nil {
			return reach, fmt.Errorf("plot segmentation by segment: %w", err)
		}
	}
	return reach, nil
}

// cumulativeByClient sorts the hourly rows by time and accumulates users per
// client.
func cumulativeByClient(rows []map[string]interface{}) ([]ClientReach, error) {
	type hourly struct {
		client string
		at     time.Time
		users  int64
	}
	data := make([]hourly, 0, len(rows))
	for _, row := range rows {
		at, err := models.ToTime(row["time"])
		if err != nil {
			return nil, err
		}
		users, err := models.ToInt64(row["users"])
		if err != nil {
			return nil, err
		}
		client := unknownClient
		if c, ok := row["segmentation_client"]; ok && c != nil {
			client = fmt.Sprint(c)
			if b, isBytes := c.([]byte); isBytes {
				client = string(b)
			}
		}
		data = append(data, hourly{client: client, at: at, users: users})
	}
	sort.SliceStable(data, func(i, j int) bool {
		return data[i].at.Before(data[j].at)
	})

	byClient := map[string]*ClientReach{}
	var names []string
	for _, d := range data {
		cr, ok := byClient[d.client]
		if !ok {
			cr = &ClientReach{Client: d.client}
			byClient[d.client] = cr
			names = append(names, d.client)
		}
		var total int64
		if n := len(cr.Points); n > 0 {
			total = cr.Points[n-1].Cumulative
		}
		cr.Points = append(cr.Points, ReachPoint{Time: d.at, Users: d.users, Cumulative: total + d.users})
	}

	sort.Slice(names, func(i, j int) bool {
		return clientRank(names[i]) < clientRank(names[j]) ||
			clientRank(names[i]) == clientRank(names[j]) && names[i] < names[j]
	})
	out := make([]ClientReach, 0, len(names))
	for _, n := range names {
		out = append(out, *byClient[n])
	}
	return out, nil
}

func clientRank(client string) int {
	for i, c := range ClientOrder {
		if c == client {
			return i
		}
	}
	return len(ClientOrder)
}

func usersBySegment(rows []map[string]interface{}) ([]SegmentReach, error) {
	out := make([]SegmentReach, 0, len(rows))
	for _, row := range rows {
		users, err := models.ToInt64(row["users"])
		if err != nil {
			return nil, err
		}
		name := ""
		switch v := row["segment_name"].(type) {
		case string:
			name = v
		case []byte:
			name = string(v)
		case nil:
		default:
			name = fmt.Sprint(v)
		}
		out = append(out, SegmentReach{Segment: name, Users: users})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Segment < out[j].Segment })
	return out, nil
}

func clientChart(clients []ClientReach) plot.Chart {
	c := plot.Chart{
		Kind:    plot.Line,
		Title:   "Segmented Users - Breakdown by Client",
		XName:   "time",
		YName:   "users_cumulative",
		XIsTime: true,
	}
	for _, cr := range clients {
		s := plot.Series{Name: cr.Client}
		for _, p := range cr.Points {
			s.X = append(s.X, float64(p.Time.Unix()))
			s.Y = append(s.Y, float64(p.Cumulative))
		}
		c.Series = append(c.Series, s)
	}
	return c
}

func segmentChart(segments []SegmentReach) plot.Chart {
	c := plot.Chart{
		Kind:   plot.Bar,
		Title:  "Segmented Users - Breakdown by Segment",
		XName:  "segment_name",
		YName:  "users",
		Series: []plot.Series{{Name: "users"}},
	}
	for _, s := range segments {
		c.Categories = append(c.Categories, s.Segment)
		c.Series[0].Y = append(c.Series[0].Y, float64(s.Users))
	}
	return c
}
