// Package overlay draws the parcel list onto a map surface and keeps the
// drawing in step with the parcel store.
package overlay

import (
	"context"

	"github.com/ThomasChan/Farm-Land/internal/models"
)

// Shape is one polygon to draw.
type Shape struct {
	// ParcelID is empty for a placeholder that has geometry but no id.
	ParcelID string
	Points   []models.Point
	Style    models.ResolvedStyle
	Index    int
}

// Overlay is a polygon handle returned by a Surface.
type Overlay interface {
	SetFillOpacity(opacity float64)
	OnMouseOver(fn func())
	OnMouseOut(fn func())
	OnClick(fn func())
}

// Surface is the capability set every map backend provides.
type Surface interface {
	Initialize(ctx context.Context) error
	DrawPolygon(shape Shape) Overlay
	ClearAll()
	CenterOn(center models.Point, zoom int)
	// OnDrawComplete registers the handler for polygons the operator
	// finishes with the drawing tool.
	OnDrawComplete(fn func(points []models.Point))
	Close()
}
