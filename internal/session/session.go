// Package session holds the per-screen state of the console: one Session per
// mounted screen, created on login and torn down on logout or when idle.
package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ThomasChan/Farm-Land/internal/auth"
	"github.com/ThomasChan/Farm-Land/internal/config"
	"github.com/ThomasChan/Farm-Land/internal/editform"
	"github.com/ThomasChan/Farm-Land/internal/hub"
	"github.com/ThomasChan/Farm-Land/internal/logger"
	"github.com/ThomasChan/Farm-Land/internal/mapsurface"
	"github.com/ThomasChan/Farm-Land/internal/models"
	"github.com/ThomasChan/Farm-Land/internal/navigation"
	"github.com/ThomasChan/Farm-Land/internal/overlay"
	"github.com/ThomasChan/Farm-Land/internal/repository"
	"github.com/ThomasChan/Farm-Land/internal/services"
	"github.com/ThomasChan/Farm-Land/internal/store"
	"github.com/ThomasChan/Farm-Land/internal/upstream"
)

// Session is one mounted console screen.
type Session struct {
	lastSeen time.Time
	ctx      context.Context
	cancel   context.CancelFunc
	Gate     *auth.Gate
	Store    *store.Store
	Hub      *hub.Hub
	Surface  *mapsurface.Scene
	Renderer *overlay.Renderer
	Form     *editform.Form
	Sync     services.SyncService
	log      *logger.Logger
	ID       string
	mu       sync.Mutex
	closed   bool
}

// newSession wires a screen for an already authenticated gate.
func newSession(id string, gate *auth.Gate, cfg *config.Config, client *upstream.Client, log *logger.Logger) (*Session, error) {
	log = log.WithSession(id)

	h := hub.New(hub.Options{AllowedOrigins: cfg.CORS.Origins}, log)
	scene, err := mapsurface.New(cfg.Map.Backend, h, log)
	if err != nil {
		return nil, err
	}
	h.SetSource(scene)

	st := store.New()
	repo := repository.NewParcelRepository(client, cfg.Map.LayerAPI())
	syncer := services.NewSyncService(repo, st, scene, log)

	ctx, cancel := context.WithCancel(context.Background())
	s := &Session{
		ID:       id,
		Gate:     gate,
		Store:    st,
		Hub:      h,
		Surface:  scene,
		Renderer: overlay.NewRenderer(scene, st, log),
		Form:     editform.New(st, syncer, scene, log),
		Sync:     syncer,
		log:      log,
		ctx:      ctx,
		cancel:   cancel,
		lastSeen: time.Now(),
	}

	if err := scene.Initialize(ctx); err != nil {
		cancel()
		return nil, fmt.Errorf("failed to initialize map surface: %w", err)
	}
	scene.OnDrawComplete(s.onDrawComplete)
	s.Renderer.Start()

	return s, nil
}

// Select moves the selection to index.
func (s *Session) Select(index int) {
	s.Store.Select(index)
}

// Next selects the next parcel with geometry and returns its index.
func (s *Session) Next() int {
	snap := s.Store.Snapshot()
	index := navigation.Next(snap.Parcels, snap.Selected)
	s.Store.Select(index)
	return index
}

// Prev selects the previous parcel with geometry and returns its index.
func (s *Session) Prev() int {
	snap := s.Store.Snapshot()
	index := navigation.Prev(snap.Parcels, snap.Selected)
	s.Store.Select(index)
	return index
}

// Closed reports whether the session has been torn down.
func (s *Session) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Close unmounts the screen. Requests still in flight finish against a
// closed store and change nothing.
func (s *Session) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.mu.Unlock()

	s.cancel()
	s.Renderer.Stop()
	s.Store.Close()
	s.Surface.Close()
	s.Hub.Close()
	s.Gate.Logout()
}

func (s *Session) touch(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastSeen = now
}

func (s *Session) idleSince() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastSeen
}

// onDrawComplete sends a finished drawing to the collection. It runs off
// the websocket reader so a slow upstream does not stall the tab.
func (s *Session) onDrawComplete(points []models.Point) {
	go func() {
		if err := s.Sync.Create(s.ctx, points); err != nil {
			if s.ctx.Err() != nil {
				return
			}
			s.Surface.Notify(editform.LevelError, "Create failed: "+err.Error())
		}
	}()
}
