package scan

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/kalambet/leafwise/internal/localstore"
)

var (
	// ErrNotFound is returned when no scan has the requested id.
	ErrNotFound = errors.New("scan not found")
	// ErrNotLoaded is returned before the collection has been loaded.
	ErrNotLoaded = errors.New("collection not loaded")
	// ErrNewerVersion is returned by writes while the stored collection
	// has a schema version newer than CurrentVersion.
	ErrNewerVersion = errors.New("collection was written by a newer version of leafwise")
)

// ManualEntry is a plant the user adds by hand.
type ManualEntry struct {
	Image          string `json:"image"`
	CommonName     string `json:"commonName"`
	ScientificName string `json:"scientificName"`
	CareTips       string `json:"careTips"`
	Notes          string `json:"notes,omitempty"`
}

// History is the scan collection of one execution context.
type History struct {
	value  *localstore.Value[Document]
	loaded atomic.Bool
	now    func() time.Time
	newID  func() string
	logger *slog.Logger
}

// HistoryOption configures a History.
type HistoryOption func(*History)

// WithClock overrides time.Now.
func WithClock(now func() time.Time) HistoryOption {
	return func(h *History) { h.now = now }
}

// WithIDGenerator overrides uuid generation.
func WithIDGenerator(newID func() string) HistoryOption {
	return func(h *History) { h.newID = newID }
}

// WithHistoryLogger sets the logger.
func WithHistoryLogger(l *slog.Logger) HistoryOption {
	return func(h *History) { h.logger = l }
}

// NewHistory returns a History over store. Call Load before use.
func NewHistory(store *localstore.Store, opts ...HistoryOption) *History {
	h := &History{
		value:  localstore.NewValue(store, StorageKey, Document{Version: CurrentVersion}),
		now:    time.Now,
		newID:  uuid.NewString,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Load reads the collection and marks it loaded.
func (h *History) Load() []Scan {
	doc := h.value.Get()
	h.loaded.Store(true)
	if doc.Newer() {
		h.logger.Warn("collection has a newer schema version, it is read as empty and kept read-only",
			"version", doc.Version, "supported", CurrentVersion)
	}
	h.logger.Debug("collection loaded", "scans", len(doc.Scans))
	return doc.Scans
}

// Loaded reports whether Load has completed.
func (h *History) Loaded() bool { return h.loaded.Load() }

func (h *History) scans() ([]Scan, error) {
	if !h.loaded.Load() {
		return nil, ErrNotLoaded
	}
	return h.value.Get().Scans, nil
}

// List returns every scan, newest first.
func (h *History) List() ([]Scan, error) {
	list, err := h.scans()
	if err != nil {
		return nil, err
	}
	if list == nil {
		list = []Scan{}
	}
	return list, nil
}

// Favorites returns the favourite scans, newest first.
func (h *History) Favorites() ([]Scan, error) {
	list, err := h.scans()
	if err != nil {
		return nil, err
	}
	return Favorites(list), nil
}

// Find returns the scan with id, ErrNotFound when it is absent, or
// ErrNotLoaded when the collection has not been read yet.
func (h *History) Find(id string) (Scan, error) {
	list, err := h.scans()
	if err != nil {
		return Scan{}, err
	}
	s, ok := Find(list, id)
	if !ok {
		return Scan{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return s, nil
}

// Add stamps s with a fresh id and creation time when they are unset,
// validates it and prepends it to the collection.
func (h *History) Add(s Scan) (Scan, error) {
	if !h.loaded.Load() {
		return Scan{}, ErrNotLoaded
	}
	if s.ID == "" {
		s.ID = h.newID()
	}
	if s.CreatedAt == 0 {
		s.CreatedAt = Millis(h.now())
	}
	if err := s.Validate(); err != nil {
		return Scan{}, err
	}

	var addErr error
	h.value.Modify(func(d Document) (Document, bool) {
		if d.Newer() {
			addErr = newerVersion(d)
			return d, false
		}
		next, err := Prepend(d.Scans, s)
		if err != nil {
			addErr = err
			return d, false
		}
		d.Scans = next
		return d, true
	})
	if addErr != nil {
		return Scan{}, addErr
	}
	h.logger.Info("scan added", "id", s.ID, "name", s.CommonName)
	return s, nil
}

// AddManual adds a hand-entered plant. Manual entries are certain and
// start as favourites.
func (h *History) AddManual(e ManualEntry) (Scan, error) {
	return h.Add(Scan{
		Image:          e.Image,
		CommonName:     strings.TrimSpace(e.CommonName),
		ScientificName: strings.TrimSpace(e.ScientificName),
		Confidence:     1,
		CareTips:       e.CareTips,
		IsFavorite:     true,
		Notes:          e.Notes,
	})
}

// Delete removes the scan with id. Deleting a missing id is not an error.
func (h *History) Delete(id string) error {
	if !h.loaded.Load() {
		return ErrNotLoaded
	}
	var delErr error
	h.value.Modify(func(d Document) (Document, bool) {
		if d.Newer() {
			delErr = newerVersion(d)
			return d, false
		}
		next := Remove(d.Scans, id)
		if len(next) == len(d.Scans) {
			return d, false
		}
		d.Scans = next
		return d, true
	})
	return delErr
}

// Clear removes every scan.
func (h *History) Clear() error {
	if !h.loaded.Load() {
		return ErrNotLoaded
	}
	var clearErr error
	h.value.Modify(func(d Document) (Document, bool) {
		if d.Newer() {
			clearErr = newerVersion(d)
			return d, false
		}
		return Document{Version: CurrentVersion, Scans: []Scan{}}, true
	})
	if clearErr != nil {
		return clearErr
	}
	h.logger.Info("collection cleared")
	return nil
}

func newerVersion(d Document) error {
	return fmt.Errorf("%w (stored v%d, supported v%d)", ErrNewerVersion, d.Version, CurrentVersion)
}

// update applies fn to the scan with id and persists the result.
func (h *History) update(id string, fn func(Scan) (Scan, error)) (Scan, error) {
	if !h.loaded.Load() {
		return Scan{}, ErrNotLoaded
	}

	var (
		out   Scan
		found bool
		fnErr error
	)
	h.value.Modify(func(d Document) (Document, bool) {
		if d.Newer() {
			fnErr = newerVersion(d)
			found = true
			return d, false
		}
		next, ok := UpdateByID(d.Scans, id, func(s Scan) Scan {
			n, err := fn(s)
			if err != nil {
				fnErr = err
				return s
			}
			return n
		})
		if !ok {
			return d, false
		}
		found = true
		if fnErr != nil {
			return d, false
		}
		out, _ = Find(next, id)
		d.Scans = next
		return d, true
	})

	if !found {
		return Scan{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if fnErr != nil {
		return Scan{}, fnErr
	}
	return out, nil
}

// ToggleFavorite flips the favourite flag.
func (h *History) ToggleFavorite(id string) (Scan, error) {
	return h.update(id, func(s Scan) (Scan, error) {
		s.IsFavorite = !s.IsFavorite
		return s, nil
	})
}

// SetFavorite sets the favourite flag.
func (h *History) SetFavorite(id string, favorite bool) (Scan, error) {
	return h.update(id, func(s Scan) (Scan, error) {
		s.IsFavorite = favorite
		return s, nil
	})
}

// SetNotes replaces the scan's notes.
func (h *History) SetNotes(id, notes string) (Scan, error) {
	return h.update(id, func(s Scan) (Scan, error) {
		s.Notes = notes
		return s, nil
	})
}

// SetReminder creates or replaces the watering reminder. A new reminder
// counts from now; replacing one keeps its last watering time.
func (h *History) SetReminder(id string, frequencyDays int) (Scan, error) {
	r := Reminder{FrequencyDays: frequencyDays}
	if err := r.Validate(); err != nil {
		return Scan{}, err
	}
	return h.update(id, func(s Scan) (Scan, error) {
		if s.Reminder != nil {
			r.LastWatered = s.Reminder.LastWatered
		} else {
			r.LastWatered = Millis(h.now())
		}
		s.Reminder = &r
		return s, nil
	})
}

// ClearReminder removes the watering reminder.
func (h *History) ClearReminder(id string) (Scan, error) {
	return h.update(id, func(s Scan) (Scan, error) {
		s.Reminder = nil
		return s, nil
	})
}

// MarkWatered records a watering now.
func (h *History) MarkWatered(id string) (Scan, error) {
	return h.update(id, func(s Scan) (Scan, error) {
		if s.Reminder == nil {
			return s, fmt.Errorf("%w: scan %s has no reminder", ErrInvalid, id)
		}
		r := *s.Reminder
		r.LastWatered = Millis(h.now())
		s.Reminder = &r
		return s, nil
	})
}

// DueReminders returns the scans whose watering is due at now, in
// collection order.
func (h *History) DueReminders(now time.Time) ([]Scan, error) {
	list, err := h.scans()
	if err != nil {
		return nil, err
	}
	due := []Scan{}
	for _, s := range list {
		if s.Reminder != nil && s.Reminder.Due(now) {
			due = append(due, s)
		}
	}
	return due, nil
}

// Subscribe calls fn with the full collection after every change, local
// or from another context.
func (h *History) Subscribe(fn func([]Scan)) func() {
	return h.value.Subscribe(func(d Document) {
		fn(d.Scans)
	})
}
