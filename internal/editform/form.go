// Package editform implements the edit panel bound to the selected parcel.
//
// The form edits the selected parcel locally through the store and sends it
// to the collection on request. Rows are keyed by parcel id: while an update
// or delete of a row is in flight, every action on that row is refused, and
// other rows stay editable.
package editform

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"

	"github.com/google/uuid"

	"github.com/ThomasChan/Farm-Land/internal/logger"
	"github.com/ThomasChan/Farm-Land/internal/metrics"
	"github.com/ThomasChan/Farm-Land/internal/models"
	"github.com/ThomasChan/Farm-Land/internal/repository"
	"github.com/ThomasChan/Farm-Land/internal/services"
	"github.com/ThomasChan/Farm-Land/internal/store"
)

// Notification levels.
const (
	LevelError = "error"
	LevelInfo  = "info"
)

// DeletePrompt is shown before a parcel is removed.
const DeletePrompt = "Are you sure you want to delete this area?"

// Form errors
var (
	ErrNoSelection  = errors.New("no parcel selected")
	ErrRowBusy      = errors.New("parcel has a request in flight")
	ErrUnknownToken = errors.New("unknown or expired delete confirmation")
)

// Notifier shows a transient message to the operator.
type Notifier interface {
	Notify(level, message string)
}

// View is what the panel displays for the selected parcel.
type View struct {
	Style         models.ResolvedStyle `json:"style"`
	ID            string               `json:"id"`
	Geometry      string               `json:"geometry"`
	GeometryError string               `json:"geometryError,omitempty"`
	Index         int                  `json:"index"`
	Draft         bool                 `json:"draft"`
	Pending       bool                 `json:"pending"`
	Persisted     bool                 `json:"persisted"`
}

// Confirmation is an outstanding delete awaiting the operator's answer.
type Confirmation struct {
	Token    string `json:"token"`
	ParcelID string `json:"parcelId"`
	Prompt   string `json:"prompt"`
}

// Form is the edit panel of one session.
type Form struct {
	store    *store.Store
	sync     services.SyncService
	notifier Notifier
	log      *logger.Logger
	busy     map[string]struct{}
	deletes  map[string]string
	errs     map[string]string
	mu       sync.Mutex
}

// New creates a form over st. notifier may be nil.
func New(st *store.Store, syncer services.SyncService, notifier Notifier, log *logger.Logger) *Form {
	return &Form{
		store:    st,
		sync:     syncer,
		notifier: notifier,
		log:      log.WithComponent("editform"),
		busy:     make(map[string]struct{}),
		deletes:  make(map[string]string),
		errs:     make(map[string]string),
	}
}

// View returns nil when the selected index does not point at a parcel.
func (f *Form) View() *View {
	snap := f.store.Snapshot()
	parcel, ok := snap.Selection()
	if !ok {
		return nil
	}

	key := rowKey(parcel, snap.Selected)

	f.mu.Lock()
	_, pending := f.busy[key]
	geomErr := f.errs[key]
	f.mu.Unlock()

	return &View{
		ID:            parcel.ID,
		Index:         snap.Selected,
		Geometry:      parcel.GeometryText(),
		GeometryError: geomErr,
		Style:         models.Effective(parcel.Style),
		Draft:         parcel.DraftText != nil,
		Pending:       pending,
		Persisted:     parcel.Persisted(),
	}
}

// EditGeometry stores text as the selected parcel's draft.
func (f *Form) EditGeometry(text string) error {
	index, parcel, err := f.selection()
	if err != nil {
		return err
	}
	key := rowKey(parcel, index)
	if err := f.checkIdle(key); err != nil {
		return err
	}

	if err := f.store.SetDraftGeometry(index, text); err != nil {
		return err
	}
	f.setGeometryError(key, "")
	return nil
}

// CommitGeometry parses the draft. A parse failure reverts the draft to the
// last committed points, is kept for display and is returned.
func (f *Form) CommitGeometry() error {
	index, parcel, err := f.selection()
	if err != nil {
		return err
	}
	key := rowKey(parcel, index)
	if err := f.checkIdle(key); err != nil {
		return err
	}

	if err := f.store.CommitGeometry(index); err != nil {
		if errors.Is(err, models.ErrGeometryParse) {
			metrics.GeometryParseFailuresTotal.Inc()
			f.setGeometryError(key, err.Error())
			f.log.Warn("Geometry draft rejected", map[string]interface{}{
				"parcel_id": parcel.ID,
				"index":     index,
				"error":     err.Error(),
			})
		}
		return err
	}
	f.setGeometryError(key, "")
	return nil
}

// SetStyle changes one style attribute locally.
func (f *Form) SetStyle(key string, value interface{}) error {
	index, parcel, err := f.selection()
	if err != nil {
		return err
	}
	if err := f.checkIdle(rowKey(parcel, index)); err != nil {
		return err
	}
	return f.store.SetStyleAttribute(index, key, value)
}

// Update sends the selected parcel's whole record.
func (f *Form) Update(ctx context.Context) error {
	index, parcel, err := f.selection()
	if err != nil {
		return err
	}
	if !parcel.Persisted() {
		return repository.ErrMissingID
	}

	release, err := f.acquire(rowKey(parcel, index))
	if err != nil {
		return err
	}
	defer release()

	if err := f.sync.Update(ctx, parcel); err != nil {
		f.notifyFailure("Update failed", err)
		return err
	}
	return nil
}

// RequestDelete asks for confirmation before deleting the selected parcel.
func (f *Form) RequestDelete() (*Confirmation, error) {
	index, parcel, err := f.selection()
	if err != nil {
		return nil, err
	}
	if !parcel.Persisted() {
		return nil, repository.ErrMissingID
	}
	if err := f.checkIdle(rowKey(parcel, index)); err != nil {
		return nil, err
	}

	token := uuid.New().String()

	f.mu.Lock()
	f.deletes[token] = parcel.ID
	f.mu.Unlock()

	return &Confirmation{Token: token, ParcelID: parcel.ID, Prompt: DeletePrompt}, nil
}

// ConfirmDelete deletes the parcel the token was issued for, whatever is
// selected now. Tokens are single-use.
func (f *Form) ConfirmDelete(ctx context.Context, token string) error {
	f.mu.Lock()
	id, ok := f.deletes[token]
	delete(f.deletes, token)
	f.mu.Unlock()
	if !ok {
		return ErrUnknownToken
	}

	release, err := f.acquire(id)
	if err != nil {
		return err
	}
	defer release()

	if err := f.sync.Delete(ctx, id); err != nil {
		f.notifyFailure("Delete failed", err)
		return err
	}
	return nil
}

// CancelDelete discards a pending confirmation.
func (f *Form) CancelDelete(token string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.deletes[token]; !ok {
		return ErrUnknownToken
	}
	delete(f.deletes, token)
	return nil
}

func (f *Form) selection() (int, models.Parcel, error) {
	snap := f.store.Snapshot()
	parcel, ok := snap.Selection()
	if !ok {
		return 0, models.Parcel{}, ErrNoSelection
	}
	return snap.Selected, parcel, nil
}

func (f *Form) checkIdle(key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, busy := f.busy[key]; busy {
		return fmt.Errorf("%w: %s", ErrRowBusy, key)
	}
	return nil
}

// acquire marks a row as having a request in flight.
func (f *Form) acquire(key string) (func(), error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, busy := f.busy[key]; busy {
		return nil, fmt.Errorf("%w: %s", ErrRowBusy, key)
	}
	f.busy[key] = struct{}{}

	return func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		delete(f.busy, key)
	}, nil
}

func (f *Form) setGeometryError(key, msg string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if msg == "" {
		delete(f.errs, key)
		return
	}
	f.errs[key] = msg
}

func (f *Form) notifyFailure(action string, err error) {
	if f.notifier == nil {
		return
	}
	f.notifier.Notify(LevelError, action+": "+err.Error())
}

// rowKey identifies a row across list replacements. Placeholders have no
// id, so they fall back to their position.
func rowKey(parcel models.Parcel, index int) string {
	if parcel.ID != "" {
		return parcel.ID
	}
	return "#" + strconv.Itoa(index)
}
