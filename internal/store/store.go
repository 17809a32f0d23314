// Package store holds the console's ordered parcel list and the selected index.
//
// The list is copy-on-write: every change produces a new slice, so a consumer
// can compare snapshots by version (or slice identity) to decide whether to
// redraw. ReplaceAll keeps the caller's slice as is; that slice is the
// server's authoritative answer and must not be merged with local state.
package store

import (
	"errors"
	"fmt"
	"sync"

	"github.com/ThomasChan/Farm-Land/internal/models"
)

// NoSelection is the selected index when nothing is selected.
const NoSelection = -1

// Store errors
var (
	ErrIndexOutOfRange = errors.New("parcel index out of range")
	ErrClosed          = errors.New("store is closed")
)

// Snapshot is an immutable view of the store at one version.
// Parcels must be treated as read-only. ListVersion and SelectionVersion
// are the versions at which the list and the selection last changed.
type Snapshot struct {
	Parcels          []models.Parcel
	Selected         int
	Version          uint64
	ListVersion      uint64
	SelectionVersion uint64
}

// Selection returns the selected parcel, or false when the selected index
// does not point into the list.
func (s Snapshot) Selection() (models.Parcel, bool) {
	if s.Selected < 0 || s.Selected >= len(s.Parcels) {
		return models.Parcel{}, false
	}
	return s.Parcels[s.Selected], true
}

// Change tells a listener what moved between two snapshots.
type Change struct {
	Snapshot         Snapshot
	ListChanged      bool
	SelectionChanged bool
}

// Listener is called after every change, outside the store lock.
type Listener func(Change)

// Store is the single source of truth for the map overlay and the edit form.
type Store struct {
	listeners map[int]Listener
	parcels   []models.Parcel
	mu        sync.Mutex
	version   uint64
	listVer   uint64
	selectVer uint64
	selected  int
	nextID    int
	closed    bool
}

// New creates an empty store with the first index selected, matching a
// freshly mounted screen.
func New() *Store {
	return &Store{
		parcels:   []models.Parcel{},
		listeners: make(map[int]Listener),
	}
}

// Snapshot returns the current state.
func (s *Store) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

// Parcels returns the current list. Callers must not modify it.
func (s *Store) Parcels() []models.Parcel {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.parcels
}

// Selected returns the selected index, which may be out of range.
func (s *Store) Selected() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.selected
}

// Subscribe registers fn for every later change and returns a function
// that removes it.
func (s *Store) Subscribe(fn Listener) func() {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.nextID
	s.nextID++
	s.listeners[id] = fn

	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.listeners, id)
	}
}

// ReplaceAll swaps in list as the entire contents. The slice is stored
// as given, never copied or merged. The selected index is left alone;
// it is transient UI state owned by navigation and the overlay.
func (s *Store) ReplaceAll(list []models.Parcel) {
	if list == nil {
		list = []models.Parcel{}
	}
	s.update(func() (bool, bool, error) {
		s.parcels = list
		return true, false, nil
	})
}

// Select moves the selection. Any index is accepted; an out-of-range
// index means nothing is selected.
func (s *Store) Select(index int) {
	if index < NoSelection {
		index = NoSelection
	}
	s.update(func() (bool, bool, error) {
		if s.selected == index {
			return false, false, nil
		}
		s.selected = index
		return false, true, nil
	})
}

// SetDraftGeometry stores text as the parcel's unparsed geometry draft.
func (s *Store) SetDraftGeometry(index int, text string) error {
	return s.update(func() (bool, bool, error) {
		return true, false, s.replaceAt(index, func(p *models.Parcel) error {
			p.DraftText = &text
			return nil
		})
	})
}

// CommitGeometry parses the parcel's draft into points. On success the
// points replace the committed geometry. Either way the draft is cleared;
// a failed parse leaves the last committed points and returns the
// parse error for display. Without a draft it is a no-op.
func (s *Store) CommitGeometry(index int) error {
	var parseErr error
	err := s.update(func() (bool, bool, error) {
		if index < 0 || index >= len(s.parcels) {
			return false, false, fmt.Errorf("%w: %d", ErrIndexOutOfRange, index)
		}
		if s.parcels[index].DraftText == nil {
			return false, false, nil
		}
		return true, false, s.replaceAt(index, func(p *models.Parcel) error {
			points, err := models.ParsePoints(*p.DraftText)
			p.DraftText = nil
			if err != nil {
				parseErr = err
				return nil
			}
			p.Points = points
			return nil
		})
	})
	if err != nil {
		return err
	}
	return parseErr
}

// SetStyleAttribute merges one attribute into the parcel's style override.
// The change is local until the parcel is sent for update.
func (s *Store) SetStyleAttribute(index int, key string, value interface{}) error {
	return s.update(func() (bool, bool, error) {
		return true, false, s.replaceAt(index, func(p *models.Parcel) error {
			style, err := p.Style.With(key, value)
			if err != nil {
				return err
			}
			p.Style = style
			return nil
		})
	})
}

// Close turns every later mutation into a no-op and drops listeners.
// Responses that arrive after the screen is gone land here harmlessly.
func (s *Store) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.listeners = make(map[int]Listener)
}

// replaceAt copies the list and the parcel at index, applies fn to the copy
// and installs the new list. Must be called with the lock held.
func (s *Store) replaceAt(index int, fn func(*models.Parcel) error) error {
	if index < 0 || index >= len(s.parcels) {
		return fmt.Errorf("%w: %d", ErrIndexOutOfRange, index)
	}

	parcel := s.parcels[index].Clone()
	if err := fn(&parcel); err != nil {
		return err
	}

	next := make([]models.Parcel, len(s.parcels))
	copy(next, s.parcels)
	next[index] = parcel
	s.parcels = next
	return nil
}

// update runs fn under the lock and notifies listeners when it reports a
// change. fn returns (listChanged, selectionChanged, err); nothing is
// published on error.
func (s *Store) update(fn func() (bool, bool, error)) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}

	listChanged, selectionChanged, err := fn()
	if err != nil || (!listChanged && !selectionChanged) {
		s.mu.Unlock()
		return err
	}

	s.version++
	if listChanged {
		s.listVer = s.version
	}
	if selectionChanged {
		s.selectVer = s.version
	}
	change := Change{
		Snapshot:         s.snapshotLocked(),
		ListChanged:      listChanged,
		SelectionChanged: selectionChanged,
	}
	listeners := make([]Listener, 0, len(s.listeners))
	for _, l := range s.listeners {
		listeners = append(listeners, l)
	}
	s.mu.Unlock()

	for _, l := range listeners {
		l(change)
	}
	return nil
}

func (s *Store) snapshotLocked() Snapshot {
	return Snapshot{
		Parcels:          s.parcels,
		Selected:         s.selected,
		Version:          s.version,
		ListVersion:      s.listVer,
		SelectionVersion: s.selectVer,
	}
}
