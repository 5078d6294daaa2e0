// Package report prints analysis results on the console and exports frames.
package report

import (
	"fmt"
	"math"
	"math/big"
	"sort"
	"strconv"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/pcer96/unified-hex/domain/models"
)

// Table renders a frame with its columns in order.
func Table(f models.Frame) string {
	t := table.NewWriter()
	header := make(table.Row, 0, len(f.Columns))
	for _, c := range f.Columns {
		header = append(header, c)
	}
	t.AppendHeader(header)
	for _, r := range f.Rows {
		row := make(table.Row, 0, len(r))
		for _, v := range r {
			row = append(row, FormatValue(v))
		}
		t.AppendRow(row)
	}
	t.AppendFooter(table.Row{fmt.Sprintf("%d rows", f.Len())})
	t.SetStyle(table.StyleLight)
	return t.Render()
}

// ConfigTable renders a flat configuration sorted by key.
func ConfigTable(m map[string]interface{}) string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	t := table.NewWriter()
	t.AppendHeader(table.Row{"Parameter", "Value"})
	for _, k := range keys {
		t.AppendRow(table.Row{k, fmt.Sprint(m[k])})
	}
	t.SetStyle(table.StyleLight)
	return t.Render()
}

// ProfileTable lays out profiles with a column per segment. When the results
// span several metric requests the columns are keyed by segment and metric.
func ProfileTable(results []models.SegmentResult) string {
	metrics := map[string]bool{}
	for _, r := range results {
		metrics[r.Metric] = true
	}
	column := func(r models.SegmentResult) string {
		if len(metrics) > 1 {
			return r.Segment + " " + r.Metric
		}
		return r.Segment
	}

	bins := map[int]map[string]float64{}
	var columns []string
	for _, r := range results {
		col := column(r)
		columns = append(columns, col)
		for _, p := range r.Profile {
			if bins[p.TimeBin] == nil {
				bins[p.TimeBin] = map[string]float64{}
			}
			bins[p.TimeBin][col] = p.Value
		}
	}
	order := make([]int, 0, len(bins))
	for b := range bins {
		order = append(order, b)
	}
	sort.Ints(order)

	t := table.NewWriter()
	header := table.Row{"time_bin"}
	for _, c := range columns {
		header = append(header, c)
	}
	t.AppendHeader(header)
	for _, b := range order {
		row := table.Row{b}
		for _, c := range columns {
			if v, ok := bins[b][c]; ok {
				row = append(row, FormatValue(v))
			} else {
				row = append(row, "")
			}
		}
		t.AppendRow(row)
	}
	configs := make([]table.ColumnConfig, 0, len(columns))
	for i := range columns {
		configs = append(configs, table.ColumnConfig{Number: i + 2, Align: text.AlignRight})
	}
	t.SetColumnConfigs(configs)
	t.SetStyle(table.StyleLight)
	return t.Render()
}

// FormatValue prints warehouse values the same way in tables and CSV files.
func FormatValue(v interface{}) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case []byte:
		return string(x)
	case float64:
		if math.IsNaN(x) {
			return "NaN"
		}
		return strconv.FormatFloat(x, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(x), 'f', -1, 32)
	case *big.Rat:
		return x.FloatString(6)
	case time.Time:
		return x.UTC().Format(time.RFC3339)
	}
	return fmt.Sprint(v)
}
