package models

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/go-playground/validator/v10"
)

// Style attribute keys as they appear on the wire and in the edit form.
const (
	KeyStrokeWeight  = "strokeWeight"
	KeyStrokeColor   = "strokeColor"
	KeyFillColor     = "fillColor"
	KeyStrokeOpacity = "strokeOpacity"
	KeyFillOpacity   = "fillOpacity"
	KeyStrokeStyle   = "strokeStyle"
)

// Stroke dash patterns.
const (
	StrokeSolid  = "solid"
	StrokeDashed = "dashed"
)

// Fill opacities applied by overlay hover handlers.
const (
	HighlightFillOpacity = 0.6
	RestingFillOpacity   = 0.2
)

// Style errors
var (
	ErrUnknownStyleKey   = errors.New("unknown style attribute")
	ErrInvalidStyleValue = errors.New("invalid style value")
)

// StyleKeys lists every editable attribute in display order.
var StyleKeys = []string{
	KeyStrokeWeight,
	KeyStrokeColor,
	KeyFillColor,
	KeyStrokeOpacity,
	KeyFillOpacity,
	KeyStrokeStyle,
}

// keyAliases maps names used by other map SDKs onto ours.
var keyAliases = map[string]string{
	"strokeThickness": KeyStrokeWeight,
}

var validate = validator.New()

// Style is a partial, per-parcel override of the default style.
// Nil fields fall back to the default attribute by attribute.
type Style struct {
	// Extra holds option keys the console does not model, written back as received.
	Extra map[string]json.RawMessage `json:"-" validate:"-"`
	StrokeWeight  *float64 `json:"strokeWeight,omitempty" validate:"omitempty,gte=1"`
	StrokeColor   *string  `json:"strokeColor,omitempty" validate:"omitempty,iscolor"`
	FillColor     *string  `json:"fillColor,omitempty" validate:"omitempty,iscolor"`
	StrokeOpacity *float64 `json:"strokeOpacity,omitempty" validate:"omitempty,gte=0,lte=1"`
	FillOpacity   *float64 `json:"fillOpacity,omitempty" validate:"omitempty,gte=0,lte=1"`
	StrokeStyle   *string  `json:"strokeStyle,omitempty" validate:"omitempty,oneof=solid dashed"`
	// weightKey is the wire name the stroke weight arrived under.
	weightKey string
}

// styleWire is the modelled part of polygonOptions.
type styleWire struct {
	StrokeWeight  *float64 `json:"strokeWeight,omitempty"`
	StrokeColor   *string  `json:"strokeColor,omitempty"`
	FillColor     *string  `json:"fillColor,omitempty"`
	StrokeOpacity *float64 `json:"strokeOpacity,omitempty"`
	FillOpacity   *float64 `json:"fillOpacity,omitempty"`
	StrokeStyle   *string  `json:"strokeStyle,omitempty"`
}

// UnmarshalJSON reads polygonOptions. Aliased keys such as Bing's
// strokeThickness fill the matching attribute; keys nobody models are kept.
func (s *Style) UnmarshalJSON(data []byte) error {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return fmt.Errorf("failed to unmarshal style: %w", err)
	}

	out := Style{}
	if _, ok := fields[KeyStrokeWeight]; !ok {
		for alias, key := range keyAliases {
			raw, found := fields[alias]
			if !found || key != KeyStrokeWeight {
				continue
			}
			delete(fields, alias)
			fields[KeyStrokeWeight] = raw
			out.weightKey = alias
		}
	}

	known := make(map[string]json.RawMessage, len(StyleKeys))
	for _, key := range StyleKeys {
		if raw, ok := fields[key]; ok {
			known[key] = raw
			delete(fields, key)
		}
	}

	packed, err := json.Marshal(known)
	if err != nil {
		return fmt.Errorf("failed to unmarshal style: %w", err)
	}
	var wire styleWire
	if err := json.Unmarshal(packed, &wire); err != nil {
		return fmt.Errorf("failed to unmarshal style: %w", err)
	}

	out.StrokeWeight = wire.StrokeWeight
	out.StrokeColor = wire.StrokeColor
	out.FillColor = wire.FillColor
	out.StrokeOpacity = wire.StrokeOpacity
	out.FillOpacity = wire.FillOpacity
	out.StrokeStyle = wire.StrokeStyle
	if len(fields) > 0 {
		out.Extra = fields
	}

	*s = out
	return nil
}

// MarshalJSON writes polygonOptions with the stroke weight under the key it
// was read with, followed by every unmodelled key.
func (s Style) MarshalJSON() ([]byte, error) {
	out := make(map[string]json.RawMessage, len(s.Extra)+len(StyleKeys))
	for k, v := range s.Extra {
		out[k] = v
	}

	wire, err := json.Marshal(styleWire{
		StrokeWeight:  s.StrokeWeight,
		StrokeColor:   s.StrokeColor,
		FillColor:     s.FillColor,
		StrokeOpacity: s.StrokeOpacity,
		FillOpacity:   s.FillOpacity,
		StrokeStyle:   s.StrokeStyle,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal style: %w", err)
	}
	var known map[string]json.RawMessage
	if err := json.Unmarshal(wire, &known); err != nil {
		return nil, fmt.Errorf("failed to marshal style: %w", err)
	}

	for k, v := range known {
		if k == KeyStrokeWeight && s.weightKey != "" {
			k = s.weightKey
		}
		out[k] = v
	}
	return json.Marshal(out)
}

// ResolvedStyle is a style with every attribute set.
type ResolvedStyle struct {
	StrokeColor   string  `json:"strokeColor"`
	FillColor     string  `json:"fillColor"`
	StrokeStyle   string  `json:"strokeStyle"`
	StrokeWeight  float64 `json:"strokeWeight"`
	StrokeOpacity float64 `json:"strokeOpacity"`
	FillOpacity   float64 `json:"fillOpacity"`
}

var defaultStyle = ResolvedStyle{
	StrokeWeight:  1,
	StrokeColor:   "#4250FF",
	FillColor:     "#4250FF",
	StrokeOpacity: 1,
	FillOpacity:   RestingFillOpacity,
	StrokeStyle:   StrokeSolid,
}

// DefaultStyle returns a copy of the global default style.
func DefaultStyle() ResolvedStyle {
	return defaultStyle
}

// Effective merges an override over the default style.
func Effective(override *Style) ResolvedStyle {
	resolved := defaultStyle
	if override == nil {
		return resolved
	}

	if override.StrokeWeight != nil {
		resolved.StrokeWeight = *override.StrokeWeight
	}
	if override.StrokeColor != nil {
		resolved.StrokeColor = *override.StrokeColor
	}
	if override.FillColor != nil {
		resolved.FillColor = *override.FillColor
	}
	if override.StrokeOpacity != nil {
		resolved.StrokeOpacity = *override.StrokeOpacity
	}
	if override.FillOpacity != nil {
		resolved.FillOpacity = *override.FillOpacity
	}
	if override.StrokeStyle != nil {
		resolved.StrokeStyle = *override.StrokeStyle
	}
	return resolved
}

// Clone returns a deep copy. A nil style clones to nil.
func (s *Style) Clone() *Style {
	if s == nil {
		return nil
	}
	out := &Style{weightKey: s.weightKey}
	if s.Extra != nil {
		out.Extra = make(map[string]json.RawMessage, len(s.Extra))
		for k, v := range s.Extra {
			out.Extra[k] = v
		}
	}
	if s.StrokeWeight != nil {
		out.StrokeWeight = float64Ptr(*s.StrokeWeight)
	}
	if s.StrokeColor != nil {
		out.StrokeColor = stringPtr(*s.StrokeColor)
	}
	if s.FillColor != nil {
		out.FillColor = stringPtr(*s.FillColor)
	}
	if s.StrokeOpacity != nil {
		out.StrokeOpacity = float64Ptr(*s.StrokeOpacity)
	}
	if s.FillOpacity != nil {
		out.FillOpacity = float64Ptr(*s.FillOpacity)
	}
	if s.StrokeStyle != nil {
		out.StrokeStyle = stringPtr(*s.StrokeStyle)
	}
	return out
}

// With returns a copy of s with one attribute merged in.
// The receiver may be nil, in which case the result holds only that attribute.
func (s *Style) With(key string, value interface{}) (*Style, error) {
	if alias, ok := keyAliases[key]; ok {
		key = alias
	}

	out := s.Clone()
	if out == nil {
		out = &Style{}
	}

	switch key {
	case KeyStrokeWeight, KeyStrokeOpacity, KeyFillOpacity:
		n, err := toFloat(value)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrInvalidStyleValue, key, err)
		}
		switch key {
		case KeyStrokeWeight:
			out.StrokeWeight = &n
		case KeyStrokeOpacity:
			out.StrokeOpacity = &n
		default:
			out.FillOpacity = &n
		}
	case KeyStrokeColor, KeyFillColor, KeyStrokeStyle:
		str, ok := value.(string)
		if !ok {
			return nil, fmt.Errorf("%w: %s must be a string, got %T", ErrInvalidStyleValue, key, value)
		}
		switch key {
		case KeyStrokeColor:
			out.StrokeColor = &str
		case KeyFillColor:
			out.FillColor = &str
		default:
			out.StrokeStyle = &str
		}
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownStyleKey, key)
	}

	if err := out.Validate(); err != nil {
		return nil, err
	}
	return out, nil
}

// Validate checks every set attribute.
func (s *Style) Validate() error {
	if s == nil {
		return nil
	}
	if err := validate.Struct(s); err != nil {
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
			fe := fieldErrs[0]
			return fmt.Errorf("%w: %s failed %q", ErrInvalidStyleValue, fe.Field(), fe.Tag())
		}
		return fmt.Errorf("%w: %v", ErrInvalidStyleValue, err)
	}
	return nil
}

// toFloat accepts the numeric shapes a decoded JSON value or form input can take.
func toFloat(value interface{}) (float64, error) {
	switch v := value.(type) {
	case float64:
		return v, nil
	case float32:
		return float64(v), nil
	case int:
		return float64(v), nil
	case int64:
		return float64(v), nil
	case json.Number:
		return v.Float64()
	case string:
		return strconv.ParseFloat(v, 64)
	default:
		return 0, fmt.Errorf("expected a number, got %T", value)
	}
}

func float64Ptr(v float64) *float64 { return &v }

func stringPtr(v string) *string { return &v }
