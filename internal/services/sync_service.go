package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/ThomasChan/Farm-Land/internal/logger"
	"github.com/ThomasChan/Farm-Land/internal/models"
	"github.com/ThomasChan/Farm-Land/internal/overlay"
	"github.com/ThomasChan/Farm-Land/internal/repository"
	"github.com/ThomasChan/Farm-Land/internal/store"
)

// Coordinate validation constants
const (
	MinLatitude  = -90.0
	MaxLatitude  = 90.0
	MinLongitude = -180.0
	MaxLongitude = 180.0
)

// Service-level errors
var (
	ErrInvalidCoordinates = errors.New("invalid coordinates")
)

// View is a map center and zoom level.
type View struct {
	Center models.Point `json:"center"`
	Zoom   int          `json:"zoom"`
}

// SyncService applies the collection's answers to the parcel store.
// Every successful call replaces the whole list with the server's; a failed
// call leaves the store exactly as it was.
type SyncService interface {
	// Load fetches the collection, replaces the list and centers the map
	// on the initial view, which it returns.
	Load(ctx context.Context) (*View, error)

	// Create sends a freshly drawn boundary.
	Create(ctx context.Context, points []models.Point) error

	// Update sends the whole parcel record.
	Update(ctx context.Context, parcel models.Parcel) error

	// Delete removes the parcel with the given id.
	Delete(ctx context.Context, id string) error

	// Recenter persists the map center. The list is not touched.
	Recenter(ctx context.Context, center models.Point) error
}

// syncService is the concrete implementation of SyncService.
type syncService struct {
	repo    repository.ParcelRepository
	store   *store.Store
	surface overlay.Surface
	log     *logger.Logger
}

// NewSyncService creates a SyncService. surface may be nil when no map is attached.
func NewSyncService(repo repository.ParcelRepository, st *store.Store, surface overlay.Surface, log *logger.Logger) SyncService {
	return &syncService{
		repo:    repo,
		store:   st,
		surface: surface,
		log:     log.WithComponent("sync"),
	}
}

// InitialView picks the first view of a freshly loaded screen: the first
// point of the first parcel with geometry, else the server's hint, else the
// fallback center.
func InitialView(result *repository.ListResult) View {
	view := View{Center: models.FallbackCenter, Zoom: models.FallbackZoom}
	if result == nil {
		return view
	}

	for _, parcel := range result.Parcels {
		if parcel.HasGeometry() {
			return View{Center: parcel.Points[0], Zoom: models.FocusZoom}
		}
	}

	if result.Center != nil {
		view.Center = *result.Center
		if result.ZoomLevel != nil {
			view.Zoom = *result.ZoomLevel
		}
	}
	return view
}

func (s *syncService) Load(ctx context.Context) (*View, error) {
	s.log.Info("Loading parcel collection", nil)

	result, err := s.repo.FetchAll(ctx)
	if err != nil {
		s.log.Error("Failed to load parcel collection", err, nil)
		return nil, fmt.Errorf("failed to load parcels: %w", err)
	}

	view := InitialView(result)
	if s.surface != nil {
		s.surface.CenterOn(view.Center, view.Zoom)
	}
	s.store.ReplaceAll(result.Parcels)

	s.log.Info("Parcel collection loaded", map[string]interface{}{
		"count": len(result.Parcels),
		"lng":   view.Center.Lng,
		"lat":   view.Center.Lat,
		"zoom":  view.Zoom,
	})
	return &view, nil
}

func (s *syncService) Create(ctx context.Context, points []models.Point) error {
	for _, p := range points {
		if err := validatePoint(p); err != nil {
			s.log.Warn("Rejected drawn boundary", map[string]interface{}{
				"lng": p.Lng,
				"lat": p.Lat,
			})
			return err
		}
	}

	s.log.Info("Creating parcel from drawn boundary", map[string]interface{}{
		"points": len(points),
	})

	list, err := s.repo.CreateFromGeometry(ctx, points)
	if err != nil {
		s.log.Error("Failed to create parcel", err, map[string]interface{}{
			"points": len(points),
		})
		return fmt.Errorf("failed to create parcel: %w", err)
	}

	s.store.ReplaceAll(list)
	return nil
}

func (s *syncService) Update(ctx context.Context, parcel models.Parcel) error {
	s.log.Info("Updating parcel", map[string]interface{}{
		"parcel_id": parcel.ID,
	})

	list, err := s.repo.Update(ctx, parcel)
	if err != nil {
		s.log.Error("Failed to update parcel", err, map[string]interface{}{
			"parcel_id": parcel.ID,
		})
		return fmt.Errorf("failed to update parcel: %w", err)
	}

	s.store.ReplaceAll(list)
	return nil
}

func (s *syncService) Delete(ctx context.Context, id string) error {
	s.log.Info("Deleting parcel", map[string]interface{}{
		"parcel_id": id,
	})

	list, err := s.repo.Delete(ctx, id)
	if err != nil {
		s.log.Error("Failed to delete parcel", err, map[string]interface{}{
			"parcel_id": id,
		})
		return fmt.Errorf("failed to delete parcel: %w", err)
	}

	s.store.ReplaceAll(list)
	return nil
}

func (s *syncService) Recenter(ctx context.Context, center models.Point) error {
	if err := validatePoint(center); err != nil {
		s.log.Warn("Invalid map center provided", map[string]interface{}{
			"lng": center.Lng,
			"lat": center.Lat,
		})
		return err
	}

	if err := s.repo.Recenter(ctx, center); err != nil {
		s.log.Error("Failed to persist map center", err, map[string]interface{}{
			"lng": center.Lng,
			"lat": center.Lat,
		})
		return fmt.Errorf("failed to persist map center: %w", err)
	}
	return nil
}

func validatePoint(p models.Point) error {
	if p.Lat < MinLatitude || p.Lat > MaxLatitude {
		return fmt.Errorf("%w: latitude must be between %f and %f, got %f",
			ErrInvalidCoordinates, MinLatitude, MaxLatitude, p.Lat)
	}
	if p.Lng < MinLongitude || p.Lng > MaxLongitude {
		return fmt.Errorf("%w: longitude must be between %f and %f, got %f",
			ErrInvalidCoordinates, MinLongitude, MaxLongitude, p.Lng)
	}
	return nil
}
