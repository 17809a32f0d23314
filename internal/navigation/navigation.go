// Package navigation steps the selection between parcels that can be drawn.
package navigation

import "github.com/ThomasChan/Farm-Land/internal/models"

// None is returned when no parcel in the list has geometry.
const None = -1

// Next returns the nearest index after current whose parcel has geometry.
// With no such index it wraps to the first drawable parcel.
func Next(parcels []models.Parcel, current int) int {
	start := current + 1
	if start < 0 {
		start = 0
	}
	for i := start; i < len(parcels); i++ {
		if parcels[i].HasGeometry() {
			return i
		}
	}
	return First(parcels)
}

// Prev returns the nearest index before current whose parcel has geometry.
// With no such index it wraps to the last drawable parcel.
func Prev(parcels []models.Parcel, current int) int {
	start := current - 1
	if start >= len(parcels) {
		start = len(parcels) - 1
	}
	for i := start; i >= 0; i-- {
		if parcels[i].HasGeometry() {
			return i
		}
	}
	return Last(parcels)
}

// First returns the first drawable index, or None.
func First(parcels []models.Parcel) int {
	for i := range parcels {
		if parcels[i].HasGeometry() {
			return i
		}
	}
	return None
}

// Last returns the last drawable index, or None.
func Last(parcels []models.Parcel) int {
	for i := len(parcels) - 1; i >= 0; i-- {
		if parcels[i].HasGeometry() {
			return i
		}
	}
	return None
}
