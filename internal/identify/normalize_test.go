package identify

import (
	"math"
	"testing"

	"github.com/kalambet/leafwise/internal/scan"
)

func TestNormalizeSuggestions(t *testing.T) {
	tests := []struct {
		name  string
		lists [][]scan.Suggestion
		want  []scan.Suggestion
	}{
		{
			name: "drops primary by either name",
			lists: [][]scan.Suggestion{{
				{CommonName: "MONSTERA", ScientificName: "Other"},
				{CommonName: "Swiss cheese", ScientificName: "monstera  deliciosa"},
				{CommonName: "Pothos", ScientificName: "Epipremnum aureum", Confidence: 0.5},
			}},
			want: []scan.Suggestion{{CommonName: "Pothos", ScientificName: "Epipremnum aureum", Confidence: 0.5}},
		},
		{
			name: "earlier list wins duplicates",
			lists: [][]scan.Suggestion{
				{{CommonName: "Pothos", ScientificName: "Epipremnum aureum", Confidence: 0.3}},
				{{CommonName: "Devil's ivy", ScientificName: "EPIPREMNUM AUREUM", Confidence: 0.9}},
			},
			want: []scan.Suggestion{{CommonName: "Pothos", ScientificName: "Epipremnum aureum", Confidence: 0.3}},
		},
		{
			name: "skips nameless and fills common name",
			lists: [][]scan.Suggestion{{
				{CommonName: "  ", ScientificName: ""},
				{ScientificName: " Ficus lyrata "},
			}},
			want: []scan.Suggestion{{CommonName: "Ficus lyrata", ScientificName: "Ficus lyrata"}},
		},
		{
			name: "clamps confidence",
			lists: [][]scan.Suggestion{{
				{CommonName: "A", Confidence: -1},
				{CommonName: "B", Confidence: 3},
				{CommonName: "C", Confidence: math.NaN()},
			}},
			want: []scan.Suggestion{
				{CommonName: "A", Confidence: 0},
				{CommonName: "B", Confidence: 1},
				{CommonName: "C", Confidence: 0},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := NormalizeSuggestions("Monstera", "Monstera deliciosa", tt.lists...)
			if len(got) != len(tt.want) {
				t.Fatalf("got %+v, want %+v", got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("[%d] = %+v, want %+v", i, got[i], tt.want[i])
				}
			}
		})
	}
}

func TestNormalizeSuggestions_Truncates(t *testing.T) {
	var list []scan.Suggestion
	for _, n := range []string{"a", "b", "c", "d", "e", "f", "g"} {
		list = append(list, scan.Suggestion{CommonName: n})
	}
	got := NormalizeSuggestions("", "", list)
	if len(got) != MaxSuggestions {
		t.Fatalf("len = %d, want %d", len(got), MaxSuggestions)
	}
	if got[0].CommonName != "a" || got[4].CommonName != "e" {
		t.Errorf("order not kept: %+v", got)
	}
}

func TestNormalizeSuggestions_Empty(t *testing.T) {
	if got := NormalizeSuggestions("x", "y"); len(got) != 0 {
		t.Errorf("got %+v", got)
	}
}
