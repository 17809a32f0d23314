package mapsurface

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/ThomasChan/Farm-Land/internal/models"
)

// dashPattern is the strokeDashArray used for dashed outlines.
var dashPattern = []int{4, 4}

// Bing speaks the Bing Maps vocabulary: locations are [lat, lng] pairs,
// the outline width is strokeThickness and opacity is folded into rgba colours.
type Bing struct{}

// Name implements Dialect.
func (Bing) Name() string { return "bing" }

// MapOptions loads the drawing tools module with the polygon action.
func (Bing) MapOptions() map[string]interface{} {
	return map[string]interface{}{
		"modules":            []string{"Microsoft.Maps.DrawingTools"},
		"drawingBarActions":  "polygon",
		"polygonOptions":     Bing{}.PolygonOptions(models.DefaultStyle()),
		"enableScrollWheel":  true,
		"showDrawingManager": true,
	}
}

// PolygonOptions implements Dialect.
func (Bing) PolygonOptions(style models.ResolvedStyle) map[string]interface{} {
	options := map[string]interface{}{
		"strokeThickness": style.StrokeWeight,
		"strokeColor":     rgba(style.StrokeColor, style.StrokeOpacity),
		"fillColor":       rgba(style.FillColor, style.FillOpacity),
	}
	if style.StrokeStyle == models.StrokeDashed {
		options["strokeDashArray"] = dashPattern
	}
	return options
}

// Path implements Dialect.
func (Bing) Path(points []models.Point) [][2]float64 {
	path := make([][2]float64, len(points))
	for i, p := range points {
		path[i] = [2]float64{p.Lat, p.Lng}
	}
	return path
}

// DecodePath implements Dialect.
func (Bing) DecodePath(path [][2]float64) []models.Point {
	points := make([]models.Point, len(path))
	for i, pair := range path {
		points[i] = models.Point{Lat: pair[0], Lng: pair[1]}
	}
	return points
}

// View implements Dialect as a setView call.
func (Bing) View(center models.Point, zoom int) map[string]interface{} {
	return map[string]interface{}{
		"center": [2]float64{center.Lat, center.Lng},
		"zoom":   zoom,
	}
}

// rgba converts a #RRGGBB (or #RGB) colour and an opacity into an rgba()
// string. Colours in any other notation pass through unchanged.
func rgba(color string, opacity float64) string {
	hex := strings.TrimPrefix(color, "#")
	if hex == color {
		return color
	}
	if len(hex) == 3 {
		hex = string([]byte{hex[0], hex[0], hex[1], hex[1], hex[2], hex[2]})
	}
	if len(hex) != 6 {
		return color
	}

	rgb, err := strconv.ParseUint(hex, 16, 32)
	if err != nil {
		return color
	}
	return fmt.Sprintf("rgba(%d, %d, %d, %s)",
		(rgb>>16)&0xFF, (rgb>>8)&0xFF, rgb&0xFF,
		strconv.FormatFloat(opacity, 'f', -1, 64))
}
