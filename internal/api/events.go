package api

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/kalambet/leafwise/internal/scan"
)

const (
	eventCollection = "collection"
	eventReminder   = "reminder"

	clientBuffer      = 16
	heartbeatInterval = 30 * time.Second
)

// Event is one server-sent event.
type Event struct {
	Name string
	Data any
}

// Hub fans events out to connected /events clients. A client that falls
// behind misses events rather than blocking publishers.
type Hub struct {
	mu      sync.Mutex
	clients map[chan Event]struct{}
	logger  *slog.Logger
}

func NewHub(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		clients: make(map[chan Event]struct{}),
		logger:  logger,
	}
}

// Follow publishes a collection event with the full scan list after every
// change to h. It returns the unsubscribe function.
func (hub *Hub) Follow(h *scan.History) func() {
	return h.Subscribe(func(list []scan.Scan) {
		if list == nil {
			list = []scan.Scan{}
		}
		hub.Publish(eventCollection, list)
	})
}

// PublishReminder announces a due watering reminder.
func (hub *Hub) PublishReminder(s scan.Scan) {
	hub.Publish(eventReminder, map[string]any{
		"id":         s.ID,
		"commonName": s.CommonName,
		"dueAt":      s.Reminder.NextDue().UTC(),
	})
}

// Publish sends an event to every connected client.
func (hub *Hub) Publish(name string, data any) {
	hub.mu.Lock()
	defer hub.mu.Unlock()
	for ch := range hub.clients {
		select {
		case ch <- Event{Name: name, Data: data}:
		default:
			hub.logger.Debug("sse client lagging, event dropped", "event", name)
		}
	}
}

// Clients returns the number of connected clients.
func (hub *Hub) Clients() int {
	hub.mu.Lock()
	defer hub.mu.Unlock()
	return len(hub.clients)
}

func (hub *Hub) add() chan Event {
	ch := make(chan Event, clientBuffer)
	hub.mu.Lock()
	hub.clients[ch] = struct{}{}
	hub.mu.Unlock()
	return ch
}

func (hub *Hub) remove(ch chan Event) {
	hub.mu.Lock()
	delete(hub.clients, ch)
	hub.mu.Unlock()
}

// ServeHTTP streams events until the client disconnects.
func (hub *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		httpError(w, http.StatusInternalServerError, "api_error", "streaming not supported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	ch := hub.add()
	defer hub.remove(ch)

	heartbeat := time.NewTicker(heartbeatInterval)
	defer heartbeat.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case ev := <-ch:
			payload, err := json.Marshal(ev.Data)
			if err != nil {
				hub.logger.Warn("marshaling sse event", "event", ev.Name, "error", err)
				continue
			}
			if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.Name, payload); err != nil {
				return
			}
			flusher.Flush()
		case <-heartbeat.C:
			if _, err := fmt.Fprint(w, ":\n\n"); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}
