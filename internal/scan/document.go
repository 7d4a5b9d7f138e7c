package scan

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// CurrentVersion is the schema version written by this build.
//
//	1: bare JSON array of scans, "timestamp" instead of "createdAt",
//	   suggestions as plain names.
//	2: {"version":2,"scans":[...]}.
const CurrentVersion = 2

// StorageKey is the key the collection document lives under.
const StorageKey = "leafwise.history"

// Document is the persisted form of the collection.
type Document struct {
	Version int    `json:"version"`
	Scans   []Scan `json:"scans"`
}

// Newer reports whether the document was written by a later schema
// version than this build understands.
func (d Document) Newer() bool { return d.Version > CurrentVersion }

// MarshalJSON always writes the current version and a non-null list.
func (d Document) MarshalJSON() ([]byte, error) {
	scans := d.Scans
	if scans == nil {
		scans = []Scan{}
	}
	return json.Marshal(struct {
		Version int    `json:"version"`
		Scans   []Scan `json:"scans"`
	}{CurrentVersion, scans})
}

// UnmarshalJSON decodes any known version and migrates it to the current one.
func (d *Document) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '[' {
		var scans []Scan
		if err := json.Unmarshal(data, &scans); err != nil {
			return fmt.Errorf("decoding v1 collection: %w", err)
		}
		*d = Document{Version: CurrentVersion, Scans: scans}
		return nil
	}

	var raw struct {
		Version int             `json:"version"`
		Scans   json.RawMessage `json:"scans"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("decoding collection: %w", err)
	}
	if raw.Version < 1 {
		return fmt.Errorf("unsupported collection version %d", raw.Version)
	}
	if raw.Version > CurrentVersion {
		// Scans stay unread; writers check Newer and leave the value alone.
		*d = Document{Version: raw.Version}
		return nil
	}

	var scans []Scan
	if len(raw.Scans) > 0 {
		if err := json.Unmarshal(raw.Scans, &scans); err != nil {
			return fmt.Errorf("decoding collection v%d: %w", raw.Version, err)
		}
	}
	*d = Document{Version: CurrentVersion, Scans: scans}
	return nil
}
