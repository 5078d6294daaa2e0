// Package compute turns metric requests into per-segment profiles.
package compute

import (
	"context"

	"github.com/pcer96/unified-hex/domain/models"
	"github.com/pcer96/unified-hex/experiment"
)

// CommonParams are shared by every request of an analysis run.
type CommonParams struct {
	App               string
	StartDate         string
	EndDate           string
	ActionsEndDate    string
	GranularityInDays int
	HorizonInDays     int
}

func CommonParamsFor(cfg *experiment.Config, app string) CommonParams {
	return CommonParams{
		App:               app,
		StartDate:         cfg.StartDate(),
		EndDate:           cfg.EndDate(),
		ActionsEndDate:    cfg.ActionsEndDate(),
		GranularityInDays: cfg.GranularityInDays(),
		HorizonInDays:     cfg.HorizonInDays(),
	}
}

// Segment is a labelled user base. UserBaseSQL must return uid and
// origin_timestamp.
type Segment struct {
	Label       string
	UserBaseSQL string
}

// Service computes metric profiles.
type Service interface {
	RequestMultipleMetrics(ctx context.Context, common CommonParams, metric models.Metric, segments []Segment) ([]models.SegmentResult, error)
}
