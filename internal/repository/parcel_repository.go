package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/ThomasChan/Farm-Land/internal/metrics"
	"github.com/ThomasChan/Farm-Land/internal/models"
	"github.com/ThomasChan/Farm-Land/internal/upstream"
)

// Operation names used in errors, logs and metrics.
const (
	OpFetchAll = "fetch_all"
	OpCreate   = "create"
	OpUpdate   = "update"
	OpDelete   = "delete"
	OpRecenter = "recenter"
)

// Repository errors
var (
	ErrTransport = errors.New("transport error")
	ErrMissingID = errors.New("parcel has no id")
)

// TransportError reports a failed call to the layer collection endpoint:
// a network failure, a non-2xx status, or a body that is not a valid list.
type TransportError struct {
	Err    error
	Op     string
	Status int
}

func (e *TransportError) Error() string {
	switch {
	case e.Status != 0 && e.Err != nil:
		return fmt.Sprintf("%s: %s: status %d: %v", ErrTransport, e.Op, e.Status, e.Err)
	case e.Status != 0:
		return fmt.Sprintf("%s: %s: status %d", ErrTransport, e.Op, e.Status)
	default:
		return fmt.Sprintf("%s: %s: %v", ErrTransport, e.Op, e.Err)
	}
}

// Is lets errors.Is(err, ErrTransport) match.
func (e *TransportError) Is(target error) bool {
	return target == ErrTransport
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// ListResult is the response of FetchAll: the authoritative list plus
// optional view hints from the server.
type ListResult struct {
	Center    *models.Point
	ZoomLevel *int
	Parcels   []models.Parcel
}

// ParcelRepository defines the remote operations on the parcel collection.
// Every mutation returns the entire updated list, never a delta.
type ParcelRepository interface {
	// FetchAll loads the whole collection with optional map view hints.
	FetchAll(ctx context.Context) (*ListResult, error)

	// CreateFromGeometry asks the server to append a parcel with the given
	// boundary. The server assigns the id.
	CreateFromGeometry(ctx context.Context, points []models.Point) ([]models.Parcel, error)

	// Update sends the entire parcel record; the server applies it by id.
	Update(ctx context.Context, parcel models.Parcel) ([]models.Parcel, error)

	// Delete removes the parcel with the given id.
	Delete(ctx context.Context, id string) ([]models.Parcel, error)

	// Recenter persists the map center. It does not change the list.
	Recenter(ctx context.Context, center models.Point) error
}

// parcelRepository is the HTTP implementation of ParcelRepository.
type parcelRepository struct {
	client   *upstream.Client
	endpoint string
}

// NewParcelRepository creates a ParcelRepository talking to one collection endpoint.
func NewParcelRepository(client *upstream.Client, endpoint string) ParcelRepository {
	return &parcelRepository{
		client:   client,
		endpoint: endpoint,
	}
}

// listResponse is the collection's response envelope.
type listResponse struct {
	Data      *[]models.Parcel `json:"data"`
	Center    json.RawMessage  `json:"center"`
	ZoomLevel *float64         `json:"zoomLevel"`
}

// Request bodies, one shape per operation.
type createRequest struct {
	Points []models.Point `json:"points"`
}

type updateRequest struct {
	Row models.Parcel `json:"row"`
}

type deleteRequest struct {
	ID string `json:"id"`
}

type recenterRequest struct {
	Center models.Point `json:"center"`
}

// FetchAll issues GET on the collection endpoint.
func (r *parcelRepository) FetchAll(ctx context.Context) (*ListResult, error) {
	start := time.Now()
	resp, err := r.client.Get(ctx, r.endpoint)
	result, err := r.decodeList(OpFetchAll, resp, err)
	observe(OpFetchAll, start, err)
	if err != nil {
		return nil, err
	}
	return result, nil
}

// CreateFromGeometry issues POST {points}.
func (r *parcelRepository) CreateFromGeometry(ctx context.Context, points []models.Point) ([]models.Parcel, error) {
	if len(points) == 0 {
		return nil, &models.GeometryParseError{Reason: "geometry must contain at least one point"}
	}
	return r.mutate(ctx, OpCreate, createRequest{Points: points})
}

// Update issues POST {row}. The draft buffer is never part of the row.
func (r *parcelRepository) Update(ctx context.Context, parcel models.Parcel) ([]models.Parcel, error) {
	if !parcel.Persisted() {
		return nil, ErrMissingID
	}
	row := parcel.Clone()
	row.DraftText = nil
	return r.mutate(ctx, OpUpdate, updateRequest{Row: row})
}

// Delete issues POST {id}.
func (r *parcelRepository) Delete(ctx context.Context, id string) ([]models.Parcel, error) {
	if id == "" {
		return nil, ErrMissingID
	}
	return r.mutate(ctx, OpDelete, deleteRequest{ID: id})
}

// Recenter issues POST {center}. Only the status is checked.
func (r *parcelRepository) Recenter(ctx context.Context, center models.Point) error {
	start := time.Now()
	resp, err := r.client.PostJSON(ctx, r.endpoint, recenterRequest{Center: center})
	if err != nil {
		err = &TransportError{Op: OpRecenter, Err: err}
	} else if !resp.OK() {
		err = &TransportError{Op: OpRecenter, Status: resp.Status}
	}
	observe(OpRecenter, start, err)
	return err
}

func (r *parcelRepository) mutate(ctx context.Context, op string, body interface{}) ([]models.Parcel, error) {
	start := time.Now()
	resp, err := r.client.PostJSON(ctx, r.endpoint, body)
	result, err := r.decodeList(op, resp, err)
	observe(op, start, err)
	if err != nil {
		return nil, err
	}
	return result.Parcels, nil
}

// decodeList turns a raw upstream response into a ListResult.
// A response without a data array is not authoritative and is rejected.
func (r *parcelRepository) decodeList(op string, resp *upstream.Response, err error) (*ListResult, error) {
	if err != nil {
		return nil, &TransportError{Op: op, Err: err}
	}
	if !resp.OK() {
		return nil, &TransportError{Op: op, Status: resp.Status}
	}

	var envelope listResponse
	if err := json.Unmarshal(resp.Body, &envelope); err != nil {
		return nil, &TransportError{Op: op, Status: resp.Status, Err: fmt.Errorf("failed to decode response: %w", err)}
	}
	if envelope.Data == nil {
		return nil, &TransportError{Op: op, Status: resp.Status, Err: errors.New("response has no data list")}
	}

	result := &ListResult{Parcels: *envelope.Data}
	if result.Parcels == nil {
		result.Parcels = []models.Parcel{}
	}

	// View hints are advisory; a malformed center is dropped, not fatal.
	if len(envelope.Center) > 0 && string(envelope.Center) != "null" {
		var center models.Point
		if err := json.Unmarshal(envelope.Center, &center); err == nil {
			result.Center = &center
		}
	}
	if envelope.ZoomLevel != nil {
		zoom := int(*envelope.ZoomLevel)
		result.ZoomLevel = &zoom
	}

	return result, nil
}

func observe(op string, start time.Time, err error) {
	metrics.ObserveUpstream(op, float64(time.Since(start).Milliseconds()), err)
}
