package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/kalambet/leafwise/internal/identify"
	"github.com/kalambet/leafwise/internal/scan"
)

// Photos arrive as base64 data URIs, a third larger than the decoded limit.
const maxImageBodySize = identify.DefaultMaxImageBytes*4/3 + 64<<10
const maxRequestBodySize = 1 << 20 // 1MB

// AppDeps holds what the HTTP API needs.
type AppDeps struct {
	History *scan.History
	Gateway identify.Gateway
	Events  *Hub // optional; /events is not served when nil
	Token   string
	Logger  *slog.Logger
}

// NewAppHandler returns the leafwise HTTP API. /health and /metrics are
// public; every other route requires the bearer token.
func NewAppHandler(deps AppDeps) http.Handler {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}

	r := chi.NewRouter()
	r.Use(MetricsMiddleware())

	r.Get("/health", handleHealth(deps))
	r.Handle("/metrics", promhttp.Handler())

	r.Group(func(r chi.Router) {
		r.Use(BearerAuth(deps.Token))

		r.Post("/identify", handleIdentify(deps))
		r.Post("/diagnose", handleDiagnose(deps))

		r.Get("/scans", handleListScans(deps))
		r.Post("/scans", handleAddManual(deps))
		r.Delete("/scans", handleClearScans(deps))
		r.Get("/scans/{id}", handleGetScan(deps))
		r.Delete("/scans/{id}", handleDeleteScan(deps))
		r.Post("/scans/{id}/favorite", handleToggleFavorite(deps))
		r.Put("/scans/{id}/favorite", handleSetFavorite(deps))
		r.Put("/scans/{id}/notes", handleSetNotes(deps))
		r.Put("/scans/{id}/reminder", handleSetReminder(deps))
		r.Delete("/scans/{id}/reminder", handleClearReminder(deps))
		r.Post("/scans/{id}/watered", handleMarkWatered(deps))

		r.Get("/reminders/due", handleDueReminders(deps))

		if deps.Events != nil {
			r.Get("/events", deps.Events.ServeHTTP)
		}
	})

	return r
}

func handleHealth(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status := "ok"
		if !deps.History.Loaded() {
			status = "loading"
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": status})
	}
}

func decodeBody(w http.ResponseWriter, r *http.Request, limit int64, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, limit)
	defer r.Body.Close()
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
		return false
	}
	return true
}

// handleIdentify identifies the photo and stores the result as a new scan.
// Nothing is stored when identification fails.
func handleIdentify(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req identify.Request
		if !decodeBody(w, r, maxImageBodySize, &req) {
			return
		}
		if !deps.History.Loaded() {
			writeError(w, scan.ErrNotLoaded)
			return
		}

		res, err := deps.Gateway.Identify(r.Context(), req)
		if err != nil {
			writeError(w, err)
			return
		}

		s, err := deps.History.Add(ScanFromResult(req.Image, res))
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, s)
	}
}

// ScanFromResult builds the record stored for a successful identification.
func ScanFromResult(image string, res identify.Result) scan.Scan {
	return scan.Scan{
		Image:          image,
		CommonName:     res.CommonName,
		ScientificName: res.ScientificName,
		Confidence:     res.Confidence,
		CareTips:       res.CareTips,
		Enrichment:     res.Enrichment,
	}
}

func handleDiagnose(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Image string `json:"image"`
		}
		if !decodeBody(w, r, maxImageBodySize, &req) {
			return
		}

		d, err := deps.Gateway.Diagnose(r.Context(), req.Image)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, d)
	}
}

func handleListScans(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		favorites, _ := strconv.ParseBool(r.URL.Query().Get("favorites"))

		var (
			list []scan.Scan
			err  error
		)
		if favorites {
			list, err = deps.History.Favorites()
		} else {
			list, err = deps.History.List()
		}
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, list)
	}
}

func handleAddManual(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var entry scan.ManualEntry
		if !decodeBody(w, r, maxImageBodySize, &entry) {
			return
		}

		s, err := deps.History.AddManual(entry)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, s)
	}
}

func handleClearScans(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := deps.History.Clear(); err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "cleared"})
	}
}

func handleGetScan(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s, err := deps.History.Find(chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, s)
	}
}

func handleDeleteScan(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := deps.History.Delete(chi.URLParam(r, "id")); err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
	}
}

// scanMutation adapts a History mutator to a handler that responds with
// the updated scan.
func scanMutation(fn func(r *http.Request, id string) (scan.Scan, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s, err := fn(r, chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, s)
	}
}

func handleToggleFavorite(deps AppDeps) http.HandlerFunc {
	return scanMutation(func(_ *http.Request, id string) (scan.Scan, error) {
		return deps.History.ToggleFavorite(id)
	})
}

func handleSetFavorite(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Favorite *bool `json:"favorite"`
		}
		if !decodeBody(w, r, maxRequestBodySize, &req) {
			return
		}
		if req.Favorite == nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "favorite is required")
			return
		}
		scanMutation(func(_ *http.Request, id string) (scan.Scan, error) {
			return deps.History.SetFavorite(id, *req.Favorite)
		})(w, r)
	}
}

func handleSetNotes(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Notes string `json:"notes"`
		}
		if !decodeBody(w, r, maxRequestBodySize, &req) {
			return
		}
		scanMutation(func(_ *http.Request, id string) (scan.Scan, error) {
			return deps.History.SetNotes(id, req.Notes)
		})(w, r)
	}
}

func handleSetReminder(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			FrequencyDays int `json:"frequencyDays"`
		}
		if !decodeBody(w, r, maxRequestBodySize, &req) {
			return
		}
		scanMutation(func(_ *http.Request, id string) (scan.Scan, error) {
			return deps.History.SetReminder(id, req.FrequencyDays)
		})(w, r)
	}
}

func handleClearReminder(deps AppDeps) http.HandlerFunc {
	return scanMutation(func(_ *http.Request, id string) (scan.Scan, error) {
		return deps.History.ClearReminder(id)
	})
}

func handleMarkWatered(deps AppDeps) http.HandlerFunc {
	return scanMutation(func(_ *http.Request, id string) (scan.Scan, error) {
		return deps.History.MarkWatered(id)
	})
}

// dueReminder is a due scan with the time its watering fell due.
type dueReminder struct {
	scan.Scan
	DueAt time.Time `json:"dueAt"`
}

func handleDueReminders(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		due, err := deps.History.DueReminders(time.Now())
		if err != nil {
			writeError(w, err)
			return
		}
		out := make([]dueReminder, 0, len(due))
		for _, s := range due {
			out = append(out, dueReminder{Scan: s, DueAt: s.Reminder.NextDue().UTC()})
		}
		writeJSON(w, http.StatusOK, out)
	}
}
