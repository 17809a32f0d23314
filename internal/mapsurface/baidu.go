package mapsurface

import "github.com/ThomasChan/Farm-Land/internal/models"

// Baidu speaks the BMapGL vocabulary: paths are [lng, lat] pairs and style
// options keep their names and separate opacities.
type Baidu struct{}

// Name implements Dialect.
func (Baidu) Name() string { return "baidu" }

// MapOptions enables satellite imagery, wheel zoom and the polygon tool.
func (Baidu) MapOptions() map[string]interface{} {
	return map[string]interface{}{
		"mapType":               "BMAP_SATELLITE_MAP",
		"enableScrollWheelZoom": true,
		"drawingTool": map[string]interface{}{
			"anchor":         "BMAP_ANCHOR_TOP_RIGHT",
			"offset":         [2]int{5, 5},
			"drawingModes":   []string{"BMAP_DRAWING_POLYGON"},
			"polygonOptions": Baidu{}.PolygonOptions(models.DefaultStyle()),
		},
	}
}

// PolygonOptions implements Dialect.
func (Baidu) PolygonOptions(style models.ResolvedStyle) map[string]interface{} {
	return map[string]interface{}{
		models.KeyStrokeWeight:  style.StrokeWeight,
		models.KeyStrokeColor:   style.StrokeColor,
		models.KeyFillColor:     style.FillColor,
		models.KeyStrokeOpacity: style.StrokeOpacity,
		models.KeyFillOpacity:   style.FillOpacity,
		models.KeyStrokeStyle:   style.StrokeStyle,
	}
}

// Path implements Dialect.
func (Baidu) Path(points []models.Point) [][2]float64 {
	path := make([][2]float64, len(points))
	for i, p := range points {
		path[i] = [2]float64{p.Lng, p.Lat}
	}
	return path
}

// DecodePath implements Dialect.
func (Baidu) DecodePath(path [][2]float64) []models.Point {
	points := make([]models.Point, len(path))
	for i, pair := range path {
		points[i] = models.Point{Lng: pair[0], Lat: pair[1]}
	}
	return points
}

// View implements Dialect as a centerAndZoom call.
func (Baidu) View(center models.Point, zoom int) map[string]interface{} {
	return map[string]interface{}{
		"center": [2]float64{center.Lng, center.Lat},
		"zoom":   zoom,
	}
}
