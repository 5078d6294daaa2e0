package analyzer

import (
	"context"

	"github.com/pcer96/unified-hex/domain/models"
	"github.com/pcer96/unified-hex/queries"
)

// EmptyBreakdownColumns are the columns of the breakdown frame returned when
// conversion breakdowns are disabled.
var EmptyBreakdownColumns = []string{"segment_name", "global_user_id", "offer_group", "plan", "periodicity", "net_revenues_usd"}

// ConversionBreakdowns returns one row per eligible conversion after
// segmentation, or an empty frame when the breakdowns are switched off.
func (a *Analyzer) ConversionBreakdowns(ctx context.Context) (models.Frame, error) {
	if !a.cfg.Flags().IncludeConversionBreakdowns {
		return models.Frame{Columns: append([]string(nil), EmptyBreakdownColumns...), Rows: [][]interface{}{}}, nil
	}
	q := a.queries.ConversionBreakdown(a.cfg.Name(), a.cfg.StartDate(), a.cfg.EndDate())
	rows, err := a.deps.Warehouse.Query(ctx, q.ToSQL())
	if err != nil {
		return models.Frame{}, err
	}
	return models.FrameFromRows(queries.BreakdownColumns, rows), nil
}
