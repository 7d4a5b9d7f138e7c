// Package scan defines the plant scan record, its persisted document and
// the operations over the scan collection.
package scan

import (
	"encoding/json"
	"time"
)

// Scan is one identified plant in the collection.
type Scan struct {
	ID             string    `json:"id"`
	Image          string    `json:"image"`
	CreatedAt      int64     `json:"createdAt"`
	CommonName     string    `json:"commonName"`
	ScientificName string    `json:"scientificName"`
	Confidence     float64   `json:"confidence"`
	CareTips       string    `json:"careTips"`
	IsFavorite     bool      `json:"isFavorite"`
	Notes          string    `json:"notes,omitempty"`
	Reminder       *Reminder `json:"reminder,omitempty"`
	Enrichment
}

// Enrichment holds optional details filled in by the identification
// gateway. Any of them may be empty.
type Enrichment struct {
	CareSummary     string       `json:"careSummary,omitempty"`
	PlantType       string       `json:"plantType,omitempty"`
	Toxicity        string       `json:"toxicity,omitempty"`
	GrowthHabit     string       `json:"growthHabit,omitempty"`
	Origin          string       `json:"origin,omitempty"`
	FloweringPeriod string       `json:"floweringPeriod,omitempty"`
	PropagationTips string       `json:"propagationTips,omitempty"`
	FunFact         string       `json:"funFact,omitempty"`
	Suggestions     []Suggestion `json:"suggestions,omitempty"`
}

// Suggestion is a related or look-alike plant.
type Suggestion struct {
	CommonName     string  `json:"commonName"`
	ScientificName string  `json:"scientificName"`
	Confidence     float64 `json:"confidence"`
}

// UnmarshalJSON accepts the object form and the bare name strings stored
// by older versions.
func (s *Suggestion) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err == nil {
		*s = Suggestion{CommonName: name}
		return nil
	}
	type plain Suggestion
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	*s = Suggestion(p)
	return nil
}

// UnmarshalJSON reads createdAt, falling back to the legacy timestamp field.
func (s *Scan) UnmarshalJSON(data []byte) error {
	type plain Scan
	aux := struct {
		*plain
		Timestamp *int64 `json:"timestamp"`
	}{plain: (*plain)(s)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	if s.CreatedAt == 0 && aux.Timestamp != nil {
		s.CreatedAt = *aux.Timestamp
	}
	return nil
}

// Reminder is a periodic watering reminder.
type Reminder struct {
	FrequencyDays int   `json:"frequencyDays"`
	LastWatered   int64 `json:"lastWatered"`
}

// NextDue returns when the plant should next be watered.
func (r Reminder) NextDue() time.Time {
	return time.UnixMilli(r.LastWatered).Add(time.Duration(r.FrequencyDays) * 24 * time.Hour)
}

// Due reports whether watering is due at now.
func (r Reminder) Due(now time.Time) bool {
	return !now.Before(r.NextDue())
}

// Millis converts t to the millisecond timestamps used in records.
func Millis(t time.Time) int64 { return t.UnixMilli() }
