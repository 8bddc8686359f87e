package risk

import (
	"context"
	"fmt"

	"aegisher/api/internal/geo"
	"aegisher/api/internal/model"
)

const (
	// GridRadius is the number of cells on each side of the center
	GridRadius = 5
	// GridStep is the cell spacing in degrees, roughly 1km
	GridStep = 0.01
	// HeatmapTimeOfDay is the time bucket every cell is scored for
	HeatmapTimeOfDay = model.TimeEvening
)

// Cell is one heatmap sample
type Cell struct {
	Lat         float64 `json:"lat"`
	Lng         float64 `json:"lng"`
	Intensity   float64 `json:"intensity"`
	DangerLevel string  `json:"dangerLevel"`
}

// GridSize is the grid label, e.g. "11x11"
func GridSize() string {
	side := GridRadius*2 + 1
	return fmt.Sprintf("%dx%d", side, side)
}

// GridBounds returns the box spanned by the grid cell centers around center
func GridBounds(center geo.Point) geo.Box {
	span := GridRadius * GridStep
	return geo.Box{
		MinLat: center.Lat - span,
		MaxLat: center.Lat + span,
		MinLon: center.Lon - span,
		MaxLon: center.Lon + span,
	}
}

// Heatmap scores every cell of the grid around center, row by row.
// Each cell degrades to the neutral prediction on its own when its lookup fails.
func (e *Engine) Heatmap(ctx context.Context, lookup Lookup, center geo.Point) []Cell {
	cells := make([]Cell, 0, (GridRadius*2+1)*(GridRadius*2+1))
	for i := -GridRadius; i <= GridRadius; i++ {
		for j := -GridRadius; j <= GridRadius; j++ {
			p := geo.Point{
				Lat: center.Lat + float64(i)*GridStep,
				Lon: center.Lon + float64(j)*GridStep,
			}
			pred := e.Predict(ctx, lookup, p, HeatmapTimeOfDay)
			cells = append(cells, Cell{
				Lat:         p.Lat,
				Lng:         p.Lon,
				Intensity:   pred.DangerScore.Rounded() / maxScore,
				DangerLevel: pred.DangerLevel,
			})
		}
	}
	return cells
}
