package scan

import (
	"errors"
	"fmt"
	"reflect"
	"testing"
)

const testImage = "data:image/png;base64,iVBORw0KGgo="

func makeScan(id string) Scan {
	return Scan{
		ID:             id,
		Image:          testImage,
		CreatedAt:      1700000000000,
		CommonName:     "Plant " + id,
		ScientificName: "Planta " + id,
		Confidence:     0.5,
	}
}

func buildList(t *testing.T, n int) []Scan {
	t.Helper()
	var list []Scan
	for i := 0; i < n; i++ {
		var err error
		list, err = Prepend(list, makeScan(fmt.Sprintf("s%d", i)))
		if err != nil {
			t.Fatalf("Prepend: %v", err)
		}
	}
	return list
}

func TestPrependNewestFirst(t *testing.T) {
	list := buildList(t, 3)
	want := []string{"s2", "s1", "s0"}
	for i, s := range list {
		if s.ID != want[i] {
			t.Errorf("list[%d] = %s, want %s", i, s.ID, want[i])
		}
	}
}

func TestPrependDuplicate(t *testing.T) {
	list := buildList(t, 2)
	got, err := Prepend(list, makeScan("s1"))
	if !errors.Is(err, ErrDuplicateID) {
		t.Fatalf("err = %v, want ErrDuplicateID", err)
	}
	if len(got) != 2 {
		t.Errorf("list changed on duplicate: len %d", len(got))
	}
}

func TestFindReturnsLatestUnderID(t *testing.T) {
	list := buildList(t, 5)
	for i := 0; i < 5; i++ {
		id := fmt.Sprintf("s%d", i)
		s, ok := Find(list, id)
		if !ok || !reflect.DeepEqual(s, makeScan(id)) {
			t.Errorf("Find(%s) = %+v, %v", id, s, ok)
		}
	}

	list, _ = UpdateByID(list, "s3", func(s Scan) Scan {
		s.Notes = "repotted"
		return s
	})
	s, _ := Find(list, "s3")
	if s.Notes != "repotted" {
		t.Errorf("Find after update: notes = %q", s.Notes)
	}
}

func TestRemove(t *testing.T) {
	list := buildList(t, 3)

	after := Remove(list, "s1")
	if len(after) != 2 {
		t.Fatalf("len = %d, want 2", len(after))
	}
	if _, ok := Find(after, "s1"); ok {
		t.Error("s1 still present after Remove")
	}
	if len(list) != 3 {
		t.Error("Remove modified its input")
	}

	same := Remove(after, "missing")
	if len(same) != 2 {
		t.Errorf("Remove of missing id changed length to %d", len(same))
	}
}

func TestUpdateByIDLeavesOthersUnchanged(t *testing.T) {
	list := buildList(t, 4)
	orig := make([]Scan, len(list))
	copy(orig, list)

	calls := 0
	next, ok := UpdateByID(list, "s2", func(s Scan) Scan {
		calls++
		s.IsFavorite = true
		return s
	})
	if !ok {
		t.Fatal("UpdateByID reported not found")
	}
	if calls != 1 {
		t.Errorf("mutator called %d times, want 1", calls)
	}
	for i := range next {
		if next[i].ID == "s2" {
			if !next[i].IsFavorite {
				t.Error("mutation not applied")
			}
			continue
		}
		if !reflect.DeepEqual(next[i], orig[i]) {
			t.Errorf("element %d changed: %+v", i, next[i])
		}
	}
	if !reflect.DeepEqual(list, orig) {
		t.Error("UpdateByID modified its input")
	}
}

func TestUpdateByIDKeepsIdentity(t *testing.T) {
	list := buildList(t, 1)
	next, _ := UpdateByID(list, "s0", func(s Scan) Scan {
		s.ID = "hijacked"
		s.CreatedAt = 1
		return s
	})
	if next[0].ID != "s0" || next[0].CreatedAt != 1700000000000 {
		t.Errorf("id/createdAt changed: %s %d", next[0].ID, next[0].CreatedAt)
	}
}

func TestUpdateByIDMissing(t *testing.T) {
	list := buildList(t, 2)
	calls := 0
	next, ok := UpdateByID(list, "nope", func(s Scan) Scan {
		calls++
		return s
	})
	if ok || calls != 0 {
		t.Errorf("ok=%v calls=%d, want false 0", ok, calls)
	}
	if !reflect.DeepEqual(next, list) {
		t.Error("list changed for missing id")
	}
}

func TestFavoritesSubsequence(t *testing.T) {
	list := buildList(t, 6)
	for _, id := range []string{"s4", "s1", "s0"} {
		list, _ = UpdateByID(list, id, func(s Scan) Scan {
			s.IsFavorite = true
			return s
		})
	}

	favs := Favorites(list)
	want := []string{"s4", "s1", "s0"}
	if len(favs) != len(want) {
		t.Fatalf("Favorites len = %d, want %d", len(favs), len(want))
	}
	for i := range favs {
		if favs[i].ID != want[i] || !favs[i].IsFavorite {
			t.Errorf("favs[%d] = %s, want %s", i, favs[i].ID, want[i])
		}
	}

	if got := Favorites(nil); got == nil || len(got) != 0 {
		t.Errorf("Favorites(nil) = %#v, want empty slice", got)
	}
}

func TestMonsteraFavoriteScenario(t *testing.T) {
	a := Scan{ID: "a", Image: testImage, CommonName: "Monstera", ScientificName: "Monstera deliciosa", Confidence: 0.92}
	list, err := Prepend(nil, a)
	if err != nil {
		t.Fatalf("Prepend: %v", err)
	}
	list, _ = UpdateByID(list, "a", func(s Scan) Scan {
		s.IsFavorite = true
		return s
	})

	favs := Favorites(list)
	if len(favs) != 1 || favs[0].ID != "a" || !favs[0].IsFavorite || favs[0].CommonName != "Monstera" {
		t.Errorf("Favorites = %+v", favs)
	}
}
