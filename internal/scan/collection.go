package scan

import (
	"errors"
	"fmt"
)

// ErrDuplicateID is returned when a prepended scan's id is already present.
var ErrDuplicateID = errors.New("duplicate scan id")

// Prepend returns a new list with s at the front.
func Prepend(list []Scan, s Scan) ([]Scan, error) {
	if _, ok := Find(list, s.ID); ok {
		return list, fmt.Errorf("%w: %s", ErrDuplicateID, s.ID)
	}
	out := make([]Scan, 0, len(list)+1)
	out = append(out, s)
	return append(out, list...), nil
}

// Remove returns list without the scan with id. A missing id leaves the
// list as is.
func Remove(list []Scan, id string) []Scan {
	idx := indexOf(list, id)
	if idx < 0 {
		return list
	}
	out := make([]Scan, 0, len(list)-1)
	out = append(out, list[:idx]...)
	return append(out, list[idx+1:]...)
}

// UpdateByID returns a copy of list with fn applied once to the scan with
// id. The result's id and createdAt are restored from the original. Other
// scans are copied unchanged. Reports false, and returns list itself, when
// no scan matches.
func UpdateByID(list []Scan, id string, fn func(Scan) Scan) ([]Scan, bool) {
	idx := indexOf(list, id)
	if idx < 0 {
		return list, false
	}
	out := make([]Scan, len(list))
	copy(out, list)

	orig := list[idx]
	next := fn(orig)
	next.ID = orig.ID
	next.CreatedAt = orig.CreatedAt
	out[idx] = next
	return out, true
}

// Favorites returns the favourite scans in collection order.
func Favorites(list []Scan) []Scan {
	out := []Scan{}
	for _, s := range list {
		if s.IsFavorite {
			out = append(out, s)
		}
	}
	return out
}

// Find returns the scan with id.
func Find(list []Scan, id string) (Scan, bool) {
	idx := indexOf(list, id)
	if idx < 0 {
		return Scan{}, false
	}
	return list[idx], true
}

func indexOf(list []Scan, id string) int {
	for i := range list {
		if list[i].ID == id {
			return i
		}
	}
	return -1
}
