package overlay

import (
	"sync"

	"github.com/ThomasChan/Farm-Land/internal/logger"
	"github.com/ThomasChan/Farm-Land/internal/models"
	"github.com/ThomasChan/Farm-Land/internal/store"
)

// Renderer redraws the surface whenever the store's list changes and
// recenters it when the selection moves.
type Renderer struct {
	surface     Surface
	store       *store.Store
	log         *logger.Logger
	unsubscribe func()
	mu          sync.Mutex
	drawnList   uint64
	focused     uint64
	rendered    bool
}

// NewRenderer creates a renderer for one surface and store.
func NewRenderer(surface Surface, st *store.Store, log *logger.Logger) *Renderer {
	return &Renderer{
		surface: surface,
		store:   st,
		log:     log.WithComponent("overlay"),
	}
}

// Start subscribes to the store and draws the current list.
func (r *Renderer) Start() {
	r.mu.Lock()
	if r.unsubscribe != nil {
		r.mu.Unlock()
		return
	}
	r.unsubscribe = r.store.Subscribe(r.onChange)
	r.mu.Unlock()

	snap := r.store.Snapshot()
	r.apply(store.Change{Snapshot: snap, ListChanged: true})
}

// Stop detaches from the store. The surface is left as it is.
func (r *Renderer) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.unsubscribe != nil {
		r.unsubscribe()
		r.unsubscribe = nil
	}
}

func (r *Renderer) onChange(change store.Change) {
	r.apply(change)
}

// apply draws from whichever snapshot carries a newer list than the one on
// the surface. Listeners may be called from concurrent requests in any
// order, so a selection-only change can be the first to bring a new list.
func (r *Renderer) apply(change store.Change) {
	r.mu.Lock()
	defer r.mu.Unlock()

	snap := change.Snapshot
	if !r.rendered || snap.ListVersion > r.drawnList {
		r.render(snap.Parcels)
		r.drawnList = snap.ListVersion
		r.rendered = true
	}
	if snap.SelectionVersion > r.focused {
		r.focus(snap)
		r.focused = snap.SelectionVersion
	}
}

// Render clears the surface and draws every parcel that has geometry.
func (r *Renderer) Render(parcels []models.Parcel) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.render(parcels)
}

func (r *Renderer) render(parcels []models.Parcel) {
	r.surface.ClearAll()

	drawn := 0
	for i := range parcels {
		parcel := parcels[i]
		if !parcel.HasGeometry() {
			continue
		}

		ov := r.surface.DrawPolygon(Shape{
			ParcelID: parcel.ID,
			Index:    i,
			Points:   parcel.Points,
			Style:    models.Effective(parcel.Style),
		})
		drawn++

		// Placeholders without an id are drawn but not interactive
		if !parcel.Persisted() {
			continue
		}
		index := i
		ov.OnMouseOver(func() { ov.SetFillOpacity(models.HighlightFillOpacity) })
		ov.OnMouseOut(func() { ov.SetFillOpacity(models.RestingFillOpacity) })
		ov.OnClick(func() { r.store.Select(index) })
	}

	r.log.Debug("Rendered parcels", map[string]interface{}{
		"total": len(parcels),
		"drawn": drawn,
	})
}

func (r *Renderer) focus(snap store.Snapshot) {
	parcel, ok := snap.Selection()
	if !ok || !parcel.HasGeometry() {
		return
	}
	r.surface.CenterOn(parcel.Points[0], models.FocusZoom)
}
