package models

import (
	"encoding/json"
	"fmt"
)

// Wire field names of the layer collection contract.
const (
	fieldID     = "_id"
	fieldPoints = "points"
	fieldStyle  = "polygonOptions"
)

// Parcel is one land polygon record as held by the console.
// Field order is optimized for memory alignment.
type Parcel struct {
	// Extra holds wire attributes the console does not interpret.
	// They are written back unchanged when the record is sent for update.
	Extra map[string]json.RawMessage `json:"-"`
	// Style is the per-parcel override; nil means the default style.
	Style *Style `json:"-"`
	// DraftText is the local, unparsed geometry edit buffer. Never serialised.
	DraftText *string `json:"-"`
	// ID is empty for an unsaved placeholder.
	ID string `json:"-"`
	// Points is nil when the parcel has no geometry yet.
	Points []Point `json:"-"`
}

// HasGeometry reports whether the parcel can be drawn.
func (p Parcel) HasGeometry() bool {
	return len(p.Points) > 0
}

// Persisted reports whether the parcel has a server-assigned id.
func (p Parcel) Persisted() bool {
	return p.ID != ""
}

// GeometryText is what the edit form shows for the geometry field:
// the draft while one exists, the committed points otherwise.
func (p Parcel) GeometryText() string {
	if p.DraftText != nil {
		return *p.DraftText
	}
	return FormatPoints(p.Points)
}

// Clone returns a deep copy that shares no mutable state with p.
func (p Parcel) Clone() Parcel {
	out := Parcel{
		ID:    p.ID,
		Style: p.Style.Clone(),
	}
	if p.Points != nil {
		out.Points = make([]Point, len(p.Points))
		copy(out.Points, p.Points)
	}
	if p.DraftText != nil {
		draft := *p.DraftText
		out.DraftText = &draft
	}
	if p.Extra != nil {
		out.Extra = make(map[string]json.RawMessage, len(p.Extra))
		for k, v := range p.Extra {
			out.Extra[k] = v
		}
	}
	return out
}

// MarshalJSON writes the record in the collection's wire shape.
func (p Parcel) MarshalJSON() ([]byte, error) {
	out := make(map[string]json.RawMessage, len(p.Extra)+3)
	for k, v := range p.Extra {
		out[k] = v
	}

	if p.ID != "" {
		raw, err := json.Marshal(p.ID)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal parcel id: %w", err)
		}
		out[fieldID] = raw
	}
	if p.Points != nil {
		raw, err := json.Marshal(p.Points)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal parcel points: %w", err)
		}
		out[fieldPoints] = raw
	}
	if p.Style != nil {
		raw, err := json.Marshal(p.Style)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal parcel style: %w", err)
		}
		out[fieldStyle] = raw
	}

	return json.Marshal(out)
}

// UnmarshalJSON reads a record in the collection's wire shape.
// A null or missing points field means "no geometry".
func (p *Parcel) UnmarshalJSON(data []byte) error {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return fmt.Errorf("failed to unmarshal parcel: %w", err)
	}

	var parcel Parcel

	if raw, ok := fields[fieldID]; ok {
		delete(fields, fieldID)
		if !isNull(raw) {
			if err := json.Unmarshal(raw, &parcel.ID); err != nil {
				return fmt.Errorf("failed to unmarshal parcel id: %w", err)
			}
		}
	}

	if raw, ok := fields[fieldPoints]; ok {
		delete(fields, fieldPoints)
		if !isNull(raw) {
			if err := json.Unmarshal(raw, &parcel.Points); err != nil {
				return fmt.Errorf("failed to unmarshal points for parcel %q: %w", parcel.ID, err)
			}
		}
	}

	if raw, ok := fields[fieldStyle]; ok {
		delete(fields, fieldStyle)
		if !isNull(raw) {
			var style Style
			if err := json.Unmarshal(raw, &style); err != nil {
				return fmt.Errorf("failed to unmarshal style for parcel %q: %w", parcel.ID, err)
			}
			parcel.Style = &style
		}
	}

	if len(fields) > 0 {
		parcel.Extra = fields
	}

	*p = parcel
	return nil
}

func isNull(raw json.RawMessage) bool {
	return string(raw) == "null"
}
