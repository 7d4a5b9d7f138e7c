// Package identify turns a plant photo into an identification with care
// information by combining an image recognizer and a prompt backend.
package identify

import (
	"context"

	"github.com/kalambet/leafwise/internal/plantnet"
	"github.com/kalambet/leafwise/internal/scan"
)

// Request is one identification call.
type Request struct {
	Image              string `json:"image"`
	CommonNameHint     string `json:"commonNameHint,omitempty"`
	ScientificNameHint string `json:"scientificNameHint,omitempty"`
}

// Result is a successful identification.
type Result struct {
	CommonName     string  `json:"commonName"`
	ScientificName string  `json:"scientificName"`
	Confidence     float64 `json:"confidence"`
	CareTips       string  `json:"careTips"`
	scan.Enrichment
}

// Gateway identifies plants.
type Gateway interface {
	Identify(ctx context.Context, req Request) (Result, error)
	Diagnose(ctx context.Context, image string) (Diagnosis, error)
}

// Recognizer returns ranked species candidates for a photo.
type Recognizer interface {
	Identify(ctx context.Context, mediaType string, image []byte) ([]plantnet.Candidate, error)
}

// Diagnosis is a plant health check.
type Diagnosis struct {
	IsHealthy bool    `json:"isHealthy"`
	Issues    []Issue `json:"issues"`
}

// Issue is one suspected disease, pest or deficiency.
type Issue struct {
	Issue       string `json:"issue"`
	Description string `json:"description"`
	Treatment   string `json:"treatment"`
}
