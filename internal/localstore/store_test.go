package localstore

import (
	"context"
	"io"
	"log/slog"
	"math"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/goleak"

	"github.com/kalambet/leafwise/internal/storage"
)

type item struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestReadFallbackWhenAbsent(t *testing.T) {
	s := New(NewMemoryBackend(), WithLogger(quietLogger()))

	got := Read(s, "missing", item{Name: "fallback"})
	if got.Name != "fallback" {
		t.Errorf("Read = %+v, want fallback", got)
	}
}

func TestReadFallbackWhenMalformed(t *testing.T) {
	b := NewMemoryBackend()
	b.SetItem("k", "{not json")
	s := New(b, WithLogger(quietLogger()))

	got := Read(s, "k", item{Name: "fallback"})
	if got.Name != "fallback" {
		t.Errorf("Read = %+v, want fallback", got)
	}
}

func TestWriteThenRead(t *testing.T) {
	b := NewMemoryBackend()
	s := New(b, WithLogger(quietLogger()))

	Write(s, "k", item{Name: "fern", Count: 2})

	got := Read(s, "k", item{})
	if got != (item{Name: "fern", Count: 2}) {
		t.Errorf("Read = %+v", got)
	}
	raw, err := b.GetItem("k")
	if err != nil {
		t.Fatalf("backend GetItem: %v", err)
	}
	if raw != `{"name":"fern","count":2}` {
		t.Errorf("persisted %q", raw)
	}
}

func TestWriteKeepsMemoryViewOnQuota(t *testing.T) {
	db, err := storage.Open(":memory:", storage.WithMaxValueBytes(8))
	if err != nil {
		t.Fatalf("storage.Open: %v", err)
	}
	defer db.Close()
	s := New(db, WithLogger(quietLogger()))

	Write(s, "k", item{Name: "monstera deliciosa"})

	if got := Read(s, "k", item{}); got.Name != "monstera deliciosa" {
		t.Errorf("in-memory view lost after quota error: %+v", got)
	}
	if _, err := db.GetItem("k"); err != storage.ErrNotFound {
		t.Errorf("value persisted despite quota: err = %v", err)
	}
}

type gauge struct {
	Level float64 `json:"level"`
}

func TestWriteKeepsMemoryViewOnEncodingError(t *testing.T) {
	b := NewMemoryBackend()
	s := New(b, WithLogger(quietLogger()))
	Write(s, "k", gauge{Level: 1})

	var got []gauge
	cancel := Subscribe(s, "k", gauge{}, func(v gauge) { got = append(got, v) })
	defer cancel()

	Write(s, "k", gauge{Level: math.Inf(1)})

	if v := Read(s, "k", gauge{}); !math.IsInf(v.Level, 1) {
		t.Errorf("in-memory view lost after encoding error: %+v", v)
	}
	if len(got) != 1 || !math.IsInf(got[0].Level, 1) {
		t.Errorf("notifications = %+v, want the unencodable value", got)
	}
	if raw, _ := b.GetItem("k"); raw != `{"level":1}` {
		t.Errorf("persisted %q, want previous value", raw)
	}

	Write(s, "k", gauge{Level: 2})
	if v := Read(s, "k", gauge{}); v.Level != 2 {
		t.Errorf("later write not visible: %+v", v)
	}
}

func TestSubscribeReceivesLocalWrite(t *testing.T) {
	s := New(NewMemoryBackend(), WithLogger(quietLogger()))

	var got []item
	cancel := Subscribe(s, "k", item{}, func(v item) { got = append(got, v) })

	Write(s, "k", item{Name: "a"})
	Write(s, "k", item{Name: "b"})
	cancel()
	Write(s, "k", item{Name: "c"})

	if len(got) != 2 || got[0].Name != "a" || got[1].Name != "b" {
		t.Errorf("notifications = %+v, want [a b]", got)
	}
}

func TestSubscribeIsolatedByKey(t *testing.T) {
	s := New(NewMemoryBackend(), WithLogger(quietLogger()))

	var calls int
	cancel := Subscribe(s, "a", item{}, func(item) { calls++ })
	defer cancel()

	Write(s, "b", item{Name: "other"})
	if calls != 0 {
		t.Errorf("subscriber of a called %d times for write to b", calls)
	}
}

func TestValueUpdateSerialises(t *testing.T) {
	s := New(NewMemoryBackend(), WithLogger(quietLogger()))
	v := NewValue(s, "counter", item{})

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			v.Update(func(cur item) item {
				cur.Count++
				return cur
			})
		}()
	}
	wg.Wait()

	if got := v.Get().Count; got != 50 {
		t.Errorf("Count = %d, want 50", got)
	}
}

func TestValueRemove(t *testing.T) {
	s := New(NewMemoryBackend(), WithLogger(quietLogger()))
	v := NewValue(s, "k", item{Name: "fallback"})

	v.Set(item{Name: "x"})
	var last item
	cancel := v.Subscribe(func(i item) { last = i })
	defer cancel()

	v.Remove()
	if got := v.Get(); got.Name != "fallback" {
		t.Errorf("Get after Remove = %+v", got)
	}
	if last.Name != "fallback" {
		t.Errorf("subscriber saw %+v after Remove", last)
	}
}

func TestCrossContextSignal(t *testing.T) {
	dir := t.TempDir()
	shared := NewMemoryBackend()
	a := New(shared, WithSignalDir(dir), WithLogger(quietLogger()))
	b := New(shared, WithSignalDir(dir), WithLogger(quietLogger()))

	// Prime a's cache so the test also covers invalidation.
	Write(a, "k", item{Name: "old"})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Watch(ctx) }()
	defer func() {
		cancel()
		<-done
	}()

	received := make(chan item, 4)
	unsub := Subscribe(a, "k", item{}, func(v item) { received <- v })
	defer unsub()

	// Give the watcher time to register the directory.
	time.Sleep(100 * time.Millisecond)
	Write(b, "k", item{Name: "new"})

	select {
	case v := <-received:
		if v.Name != "new" {
			t.Errorf("subscriber got %+v, want new", v)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("no cross-context notification")
	}
	if got := Read(a, "k", item{}); got.Name != "new" {
		t.Errorf("a reads %+v after external change", got)
	}
}

func TestWatchIgnoresOwnOrigin(t *testing.T) {
	dir := t.TempDir()
	s := New(NewMemoryBackend(), WithSignalDir(dir), WithLogger(quietLogger()))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Watch(ctx) }()
	defer func() {
		cancel()
		<-done
	}()

	var calls atomic.Int32
	unsub := Subscribe(s, "k", item{}, func(item) { calls.Add(1) })
	defer unsub()

	time.Sleep(100 * time.Millisecond)
	Write(s, "k", item{Name: "mine"})
	time.Sleep(300 * time.Millisecond)

	if n := calls.Load(); n != 1 {
		t.Errorf("subscriber called %d times, want 1 (local write only)", n)
	}
}

func TestWatchStopsOnCancel(t *testing.T) {
	defer goleak.VerifyNone(t)

	s := New(NewMemoryBackend(), WithSignalDir(t.TempDir()), WithLogger(quietLogger()))
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Watch(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Watch returned %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Watch did not return after cancel")
	}
}

func TestWatchWithoutSignalDir(t *testing.T) {
	s := New(NewMemoryBackend())
	if err := s.Watch(context.Background()); err != nil {
		t.Errorf("Watch = %v, want nil", err)
	}
}
