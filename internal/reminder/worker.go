// Package reminder reports plants whose watering is due.
package reminder

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/kalambet/leafwise/internal/scan"
)

// DefaultInterval is the poll interval used when none is given.
const DefaultInterval = time.Minute

var dueTotal = promauto.NewCounter(prometheus.CounterOpts{
	Name: "leafwise_reminders_due_total",
	Help: "Watering reminders reported as due.",
})

// DueSource lists the scans whose watering is due.
type DueSource interface {
	DueReminders(now time.Time) ([]scan.Scan, error)
}

// Notifier is called once for every reminder that becomes due.
type Notifier func(ctx context.Context, s scan.Scan)

// Worker polls a DueSource and reports each due reminder once per
// watering cycle. Marking a plant watered starts a new cycle.
type Worker struct {
	source DueSource
	notify Notifier
	poll   time.Duration
	now    func() time.Time
	logger *slog.Logger

	mu       sync.Mutex
	reported map[string]int64 // scan id -> LastWatered already reported
}

// Option configures a Worker.
type Option func(*Worker)

// WithNotifier adds a callback run for each newly due reminder.
func WithNotifier(n Notifier) Option {
	return func(w *Worker) { w.notify = n }
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(w *Worker) { w.now = now }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(w *Worker) { w.logger = l }
}

// NewWorker creates a Worker. If pollInterval is <= 0, it defaults to
// DefaultInterval.
func NewWorker(source DueSource, pollInterval time.Duration, opts ...Option) *Worker {
	if pollInterval <= 0 {
		pollInterval = DefaultInterval
	}
	w := &Worker{
		source:   source,
		poll:     pollInterval,
		now:      time.Now,
		logger:   slog.Default(),
		reported: make(map[string]int64),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Run checks for due reminders until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) {
	ticker := time.NewTicker(w.poll)
	defer ticker.Stop()

	for {
		if _, err := w.RunOnce(ctx); err != nil {
			w.logger.Error("reminder check failed", "error", err)
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// RunOnce performs a single check and returns the reminders that became
// due since the previous one.
func (w *Worker) RunOnce(ctx context.Context) ([]scan.Scan, error) {
	due, err := w.source.DueReminders(w.now())
	if err != nil {
		return nil, fmt.Errorf("listing due reminders: %w", err)
	}

	w.mu.Lock()
	stillDue := make(map[string]bool, len(due))
	var fresh []scan.Scan
	for _, s := range due {
		stillDue[s.ID] = true
		if last, ok := w.reported[s.ID]; ok && last == s.Reminder.LastWatered {
			continue
		}
		w.reported[s.ID] = s.Reminder.LastWatered
		fresh = append(fresh, s)
	}
	for id := range w.reported {
		if !stillDue[id] {
			delete(w.reported, id)
		}
	}
	w.mu.Unlock()

	for _, s := range fresh {
		dueTotal.Inc()
		w.logger.Info("watering due", "id", s.ID, "name", s.CommonName, "every_days", s.Reminder.FrequencyDays)
		if w.notify != nil {
			w.notify(ctx, s)
		}
	}
	return fresh, nil
}
