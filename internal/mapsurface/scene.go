// Package mapsurface implements overlay.Surface for the supported map SDKs.
//
// A Scene keeps the drawing state of one session and turns every change into
// a JSON command for the browser tabs attached to it. The browser side only
// replays commands against the real SDK and reports pointer and drawing events
// back, which Dispatch routes to the handlers registered on each overlay.
package mapsurface

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync"

	"github.com/ThomasChan/Farm-Land/internal/config"
	"github.com/ThomasChan/Farm-Land/internal/logger"
	"github.com/ThomasChan/Farm-Land/internal/models"
	"github.com/ThomasChan/Farm-Land/internal/overlay"
)

// Command ops sent to the browser.
const (
	OpInit   = "init"
	OpDraw   = "draw"
	OpStyle  = "style"
	OpClear  = "clear"
	OpCenter = "center"
	OpNotify = "notify"
	OpClose  = "close"
)

// Event types received from the browser.
const (
	EventMouseOver    = "mouseover"
	EventMouseOut     = "mouseout"
	EventClick        = "click"
	EventDrawComplete = "drawComplete"
)

// Surface errors
var (
	ErrUnknownBackend = errors.New("unknown map backend")
	ErrUnknownEvent   = errors.New("unknown surface event")
	ErrBadEvent       = errors.New("malformed surface event")
	ErrSurfaceClosed  = errors.New("surface is closed")
)

// Sink receives every encoded command. The websocket hub is the production sink.
type Sink interface {
	Broadcast(msg []byte)
}

// Command is one instruction for the browser map.
type Command struct {
	Payload interface{} `json:"payload,omitempty"`
	Op      string      `json:"op"`
	Backend string      `json:"backend"`
	Overlay string      `json:"overlay,omitempty"`
}

// Event is one notification from the browser map.
type Event struct {
	Path    json.RawMessage `json:"path,omitempty"`
	Type    string          `json:"type"`
	Overlay string          `json:"overlay,omitempty"`
}

// Dialect translates scene state into one SDK's vocabulary.
type Dialect interface {
	Name() string
	MapOptions() map[string]interface{}
	PolygonOptions(style models.ResolvedStyle) map[string]interface{}
	Path(points []models.Point) [][2]float64
	DecodePath(path [][2]float64) []models.Point
	View(center models.Point, zoom int) map[string]interface{}
}

// New returns the surface for the configured backend.
func New(backend string, sink Sink, log *logger.Logger) (*Scene, error) {
	switch backend {
	case config.BackendBaidu:
		return NewScene(Baidu{}, sink, log), nil
	case config.BackendBing:
		return NewScene(Bing{}, sink, log), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownBackend, backend)
	}
}

// Scene is the drawing state of one session's map.
type Scene struct {
	dialect      Dialect
	sink         Sink
	log          *logger.Logger
	overlays     map[string]*polygon
	order        []string
	view         *Command
	drawComplete func([]models.Point)
	mu           sync.Mutex
	seq          uint64
	initialized  bool
	closed       bool
}

// NewScene creates a scene that speaks dialect to sink.
func NewScene(dialect Dialect, sink Sink, log *logger.Logger) *Scene {
	return &Scene{
		dialect:  dialect,
		sink:     sink,
		log:      log.WithComponent("mapsurface").With(map[string]interface{}{"backend": dialect.Name()}),
		overlays: make(map[string]*polygon),
	}
}

// Backend names the dialect in use.
func (s *Scene) Backend() string {
	return s.dialect.Name()
}

// Initialize announces the map options. It is safe to call more than once.
func (s *Scene) Initialize(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrSurfaceClosed
	}
	s.initialized = true
	cmd := s.initCommand()
	s.mu.Unlock()

	s.send(cmd)
	return nil
}

// DrawPolygon adds a polygon and returns its handle.
func (s *Scene) DrawPolygon(shape overlay.Shape) overlay.Overlay {
	s.mu.Lock()
	s.seq++
	p := &polygon{
		scene: s,
		id:    "ov-" + strconv.FormatUint(s.seq, 10),
		shape: shape,
	}
	if s.closed {
		s.mu.Unlock()
		return p
	}
	s.overlays[p.id] = p
	s.order = append(s.order, p.id)
	cmd := s.drawCommand(p)
	s.mu.Unlock()

	s.send(cmd)
	return p
}

// ClearAll removes every polygon. Handlers of removed polygons stop firing.
func (s *Scene) ClearAll() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.overlays = make(map[string]*polygon)
	s.order = nil
	s.mu.Unlock()

	s.send(Command{Op: OpClear})
}

// CenterOn moves the view.
func (s *Scene) CenterOn(center models.Point, zoom int) {
	cmd := Command{Op: OpCenter, Payload: s.dialect.View(center, zoom)}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.view = &cmd
	s.mu.Unlock()

	s.send(cmd)
}

// OnDrawComplete registers the handler for finished drawings.
func (s *Scene) OnDrawComplete(fn func(points []models.Point)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.drawComplete = fn
}

// Notify shows a transient message in every attached tab.
func (s *Scene) Notify(level, message string) {
	s.send(Command{Op: OpNotify, Payload: map[string]string{
		"level":   level,
		"message": message,
	}})
}

// Close tells the tabs the screen is gone and drops all state.
func (s *Scene) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.overlays = make(map[string]*polygon)
	s.order = nil
	s.drawComplete = nil
	s.mu.Unlock()

	s.send(Command{Op: OpClose})
}

// Replay returns the commands that rebuild the current scene in a newly
// attached tab: init, view, then every polygon in drawing order.
func (s *Scene) Replay() [][]byte {
	s.mu.Lock()
	var cmds []Command
	if s.initialized && !s.closed {
		cmds = append(cmds, s.initCommand())
		if s.view != nil {
			cmds = append(cmds, *s.view)
		}
		for _, id := range s.order {
			cmds = append(cmds, s.drawCommand(s.overlays[id]))
		}
	}
	s.mu.Unlock()

	out := make([][]byte, 0, len(cmds))
	for _, cmd := range cmds {
		if msg, ok := s.encode(cmd); ok {
			out = append(out, msg)
		}
	}
	return out
}

// Dispatch decodes one browser event and runs the matching handler.
// Events for polygons that are no longer drawn are ignored.
func (s *Scene) Dispatch(msg []byte) error {
	var event Event
	if err := json.Unmarshal(msg, &event); err != nil {
		return fmt.Errorf("%w: %v", ErrBadEvent, err)
	}

	switch event.Type {
	case EventMouseOver, EventMouseOut, EventClick:
		s.mu.Lock()
		p, ok := s.overlays[event.Overlay]
		var handler func()
		if ok {
			handler = p.handler(event.Type)
		}
		s.mu.Unlock()

		if handler != nil {
			handler()
		}
		return nil

	case EventDrawComplete:
		var path [][2]float64
		if err := json.Unmarshal(event.Path, &path); err != nil {
			return fmt.Errorf("%w: drawComplete path: %v", ErrBadEvent, err)
		}
		if len(path) == 0 {
			return fmt.Errorf("%w: drawComplete path is empty", ErrBadEvent)
		}

		s.mu.Lock()
		fn := s.drawComplete
		s.mu.Unlock()

		if fn != nil {
			fn(s.dialect.DecodePath(path))
		}
		return nil

	default:
		return fmt.Errorf("%w: %q", ErrUnknownEvent, event.Type)
	}
}

func (s *Scene) initCommand() Command {
	return Command{Op: OpInit, Payload: s.dialect.MapOptions()}
}

// drawCommand must be called with the lock held.
func (s *Scene) drawCommand(p *polygon) Command {
	return Command{
		Op:      OpDraw,
		Overlay: p.id,
		Payload: map[string]interface{}{
			"path":        s.dialect.Path(p.shape.Points),
			"options":     s.dialect.PolygonOptions(p.shape.Style),
			"interactive": p.shape.ParcelID != "",
		},
	}
}

func (s *Scene) send(cmd Command) {
	if msg, ok := s.encode(cmd); ok {
		s.sink.Broadcast(msg)
	}
}

func (s *Scene) encode(cmd Command) ([]byte, bool) {
	cmd.Backend = s.dialect.Name()
	msg, err := json.Marshal(cmd)
	if err != nil {
		s.log.Error("Failed to encode surface command", err, map[string]interface{}{"op": cmd.Op})
		return nil, false
	}
	return msg, true
}

// polygon is the overlay handle handed out by DrawPolygon.
type polygon struct {
	scene     *Scene
	mouseOver func()
	mouseOut  func()
	click     func()
	id        string
	shape     overlay.Shape
}

// ID is the identifier used in commands and events.
func (p *polygon) ID() string {
	return p.id
}

// SetFillOpacity restyles the polygon in place. The new opacity is kept so
// a replay shows the polygon as it currently looks.
func (p *polygon) SetFillOpacity(opacity float64) {
	s := p.scene
	s.mu.Lock()
	if _, live := s.overlays[p.id]; !live {
		s.mu.Unlock()
		return
	}
	p.shape.Style.FillOpacity = opacity
	cmd := Command{Op: OpStyle, Overlay: p.id, Payload: s.dialect.PolygonOptions(p.shape.Style)}
	s.mu.Unlock()

	s.send(cmd)
}

func (p *polygon) OnMouseOver(fn func()) { p.setHandler(&p.mouseOver, fn) }

func (p *polygon) OnMouseOut(fn func()) { p.setHandler(&p.mouseOut, fn) }

func (p *polygon) OnClick(fn func()) { p.setHandler(&p.click, fn) }

func (p *polygon) setHandler(slot *func(), fn func()) {
	p.scene.mu.Lock()
	defer p.scene.mu.Unlock()
	*slot = fn
}

// handler must be called with the scene lock held.
func (p *polygon) handler(eventType string) func() {
	switch eventType {
	case EventMouseOver:
		return p.mouseOver
	case EventMouseOut:
		return p.mouseOut
	default:
		return p.click
	}
}
