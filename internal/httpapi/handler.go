// Package httpapi exposes the dashboard read API and the browser
// extension's tab-event ingest endpoint.
package httpapi

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"timekeep/internal/arbiter"
	"timekeep/internal/clock"
	"timekeep/internal/store"
	"timekeep/internal/tabqueue"
)

type Handler struct {
	store  *store.Store
	queue  *tabqueue.Queue
	arb    *arbiter.Arbiter
	clk    clock.Clock
	logger *slog.Logger
}

func NewHandler(st *store.Store, queue *tabqueue.Queue, arb *arbiter.Arbiter, clk clock.Clock, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{store: st, queue: queue, arb: arb, clk: clk, logger: logger}
}

func (h *Handler) Router() chi.Router {
	r := chi.NewRouter()
	r.Use(corsMiddleware)
	r.Use(h.loggingMiddleware)
	r.Get("/v1/health", h.handleHealth)
	r.Get("/v1/current", h.handleCurrent)
	r.Get("/v1/summaries/programs", h.summaries(h.store.Programs()))
	r.Get("/v1/summaries/tabs", h.summaries(h.store.Tabs()))
	r.Get("/v1/timeline/programs", h.timeline(h.store.Programs()))
	r.Get("/v1/timeline/tabs", h.timeline(h.store.Tabs()))
	r.Get("/v1/status/recent", h.handleStatusRecent)
	r.Post("/v1/tabs", h.handleTabEvent)
	return r
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := h.store.Health(); err != nil {
		respondError(w, http.StatusInternalServerError, "store unavailable")
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type currentResponse struct {
	Active    bool      `json:"active"`
	Kind      string    `json:"kind,omitempty"`
	Identity  string    `json:"identity,omitempty"`
	Title     string    `json:"title,omitempty"`
	StartTime time.Time `json:"start_time,omitempty"`
}

func (h *Handler) handleCurrent(w http.ResponseWriter, r *http.Request) {
	s, ok := h.arb.Current()
	if !ok {
		respondJSON(w, http.StatusOK, currentResponse{Active: false})
		return
	}
	respondJSON(w, http.StatusOK, currentResponse{
		Active:    true,
		Kind:      s.Kind.String(),
		Identity:  s.Identity(),
		Title:     s.Title(),
		StartTime: s.StartTime,
	})
}

type summaryItem struct {
	Identity   string  `json:"identity"`
	HoursSpent float64 `json:"hours_spent"`
	Date       string  `json:"date"`
}

func (h *Handler) summaries(entity *store.Entity) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ref, err := h.refDate(r)
		if err != nil {
			respondError(w, http.StatusBadRequest, err.Error())
			return
		}
		var rows []store.SummaryRow
		switch r.URL.Query().Get("range") {
		case "", "day":
			rows, err = entity.ReadDay(ref)
		case "week":
			rows, err = entity.ReadPastWeek(ref)
		case "month":
			rows, err = entity.ReadPastMonth(ref)
		case "all":
			rows, err = entity.ReadAll()
		default:
			respondError(w, http.StatusBadRequest, "range must be day, week, month, or all")
			return
		}
		if err != nil {
			h.logger.Error("summary read failed", slog.Any("error", err))
			respondError(w, http.StatusInternalServerError, "summary read failed")
			return
		}
		items := make([]summaryItem, 0, len(rows))
		for _, row := range rows {
			items = append(items, summaryItem{
				Identity:   row.Identity,
				HoursSpent: row.HoursSpent,
				Date:       row.GatheringDateLocal,
			})
		}
		respondJSON(w, http.StatusOK, map[string]any{"summaries": items})
	}
}

type timelineItem struct {
	Identity      string    `json:"identity"`
	Title         string    `json:"title,omitempty"`
	StartTime     time.Time `json:"start_time"`
	EndTime       time.Time `json:"end_time"`
	DurationInSec int64     `json:"duration_in_sec"`
	Productive    bool      `json:"productive"`
}

func (h *Handler) timeline(entity *store.Entity) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ref, err := h.refDate(r)
		if err != nil {
			respondError(w, http.StatusBadRequest, err.Error())
			return
		}
		var rows []store.LogRow
		switch r.URL.Query().Get("range") {
		case "", "day":
			rows, err = entity.LogsForDay(ref)
		case "week":
			rows, err = entity.LogsBetween(ref.AddDate(0, 0, -6), ref)
		default:
			respondError(w, http.StatusBadRequest, "range must be day or week")
			return
		}
		if err != nil {
			h.logger.Error("timeline read failed", slog.Any("error", err))
			respondError(w, http.StatusInternalServerError, "timeline read failed")
			return
		}
		items := make([]timelineItem, 0, len(rows))
		for _, row := range rows {
			title := row.WindowTitle
			if title == "" {
				title = row.TabTitle
			}
			items = append(items, timelineItem{
				Identity:      row.Identity,
				Title:         title,
				StartTime:     row.StartTime,
				EndTime:       row.EndTime,
				DurationInSec: row.DurationInSec,
				Productive:    row.Productive,
			})
		}
		respondJSON(w, http.StatusOK, map[string]any{"timeline": items})
	}
}

func (h *Handler) handleStatusRecent(w http.ResponseWriter, r *http.Request) {
	rows, err := h.store.RecentStatuses(100)
	if err != nil {
		h.logger.Error("status read failed", slog.Any("error", err))
		respondError(w, http.StatusInternalServerError, "status read failed")
		return
	}
	type item struct {
		Status string    `json:"status"`
		TS     time.Time `json:"ts"`
	}
	items := make([]item, 0, len(rows))
	for _, row := range rows {
		items = append(items, item{Status: row.Status, TS: row.TS})
	}
	respondJSON(w, http.StatusOK, map[string]any{"statuses": items})
}

type tabEventRequest struct {
	URL       string `json:"url"`
	Title     string `json:"title"`
	StartTime string `json:"start_time"`
}

// handleTabEvent ingests one tab change from the browser extension. The
// event is acknowledged as accepted; durability is queued.
func (h *Handler) handleTabEvent(w http.ResponseWriter, r *http.Request) {
	var req tabEventRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid json")
		return
	}
	if req.URL == "" {
		respondError(w, http.StatusBadRequest, "url is required")
		return
	}
	start := h.clk.Now()
	if req.StartTime != "" {
		parsed, err := time.Parse(time.RFC3339, req.StartTime)
		if err != nil {
			respondError(w, http.StatusBadRequest, "start_time must be RFC 3339")
			return
		}
		start = parsed.In(start.Location())
	}
	h.queue.Add(tabqueue.Event{URL: req.URL, Title: req.Title, StartTime: start})
	respondJSON(w, http.StatusAccepted, map[string]string{"status": "queued"})
}

func (h *Handler) refDate(r *http.Request) (time.Time, error) {
	raw := r.URL.Query().Get("date")
	if raw == "" {
		return h.clk.Now(), nil
	}
	loc := h.clk.Now().Location()
	parsed, err := time.ParseInLocation("2006-01-02", raw, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("date must be YYYY-MM-DD")
	}
	return parsed, nil
}

func (h *Handler) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := uuid.NewString()
		start := time.Now()
		next.ServeHTTP(w, r)
		h.logger.Debug("request handled",
			slog.String("request_id", requestID),
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Duration("elapsed", time.Since(start)))
	})
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func decodeJSON(r *http.Request, v any) error {
	defer r.Body.Close()
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, status int, msg string) {
	respondJSON(w, status, map[string]string{"error": msg})
}
