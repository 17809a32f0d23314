package models

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/tidwall/jsonc"
)

// Map view constants shared by every backend.
const (
	// FallbackZoom is used with FallbackCenter when nothing better is known.
	FallbackZoom = 11
	// FocusZoom is used when the view is centered on a parcel.
	FocusZoom = 17
)

// FallbackCenter is the initial map center before any parcel is known.
var FallbackCenter = Point{Lng: 116.331398, Lat: 39.897445}

// ErrGeometryParse is matched by every GeometryParseError.
var ErrGeometryParse = errors.New("invalid geometry")

// Point is a single WGS84 coordinate pair.
// The JSON form is always {"lng":..,"lat":..}, longitude first, regardless of
// the order the map SDK uses natively.
type Point struct {
	Lng float64 `json:"lng"`
	Lat float64 `json:"lat"`
}

// UnmarshalJSON rejects pairs that are missing either coordinate.
// Extra attributes some SDKs attach to points are ignored.
func (p *Point) UnmarshalJSON(data []byte) error {
	var raw struct {
		Lng *float64 `json:"lng"`
		Lat *float64 `json:"lat"`
	}

	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("failed to unmarshal point: %w", err)
	}
	if raw.Lng == nil || raw.Lat == nil {
		return fmt.Errorf("point requires both lng and lat, got %s", string(data))
	}

	p.Lng = *raw.Lng
	p.Lat = *raw.Lat
	return nil
}

// GeometryParseError reports draft geometry text that could not be committed.
type GeometryParseError struct {
	Reason string
	Err    error
}

func (e *GeometryParseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", ErrGeometryParse, e.Reason, e.Err)
	}
	return fmt.Sprintf("%s: %s", ErrGeometryParse, e.Reason)
}

// Is lets errors.Is(err, ErrGeometryParse) match.
func (e *GeometryParseError) Is(target error) bool {
	return target == ErrGeometryParse
}

func (e *GeometryParseError) Unwrap() error {
	return e.Err
}

// ParsePoints parses geometry text typed into the edit form.
// The text must be a JSON array of {lng, lat} objects with at least one entry.
// Comments and trailing commas are tolerated.
func ParsePoints(text string) ([]Point, error) {
	if strings.TrimSpace(text) == "" {
		return nil, &GeometryParseError{Reason: "geometry text is empty"}
	}

	var points []Point
	if err := json.Unmarshal(jsonc.ToJSON([]byte(text)), &points); err != nil {
		return nil, &GeometryParseError{Reason: "geometry is not an array of {lng, lat} pairs", Err: err}
	}

	if len(points) == 0 {
		return nil, &GeometryParseError{Reason: "geometry must contain at least one point"}
	}

	return points, nil
}

// FormatPoints renders points the way the edit form displays them:
// a pretty-printed array, "[]" when there is no geometry.
func FormatPoints(points []Point) string {
	if points == nil {
		points = []Point{}
	}

	data, err := json.MarshalIndent(points, "", "    ")
	if err != nil {
		// []Point always marshals; keep the form usable regardless.
		return "[]"
	}
	return string(data)
}
