package api

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/jinzhu/copier"
	"github.com/tendant/discord-verify/pkg/stats"
)

const (
	defaultWindowHours  = 24
	defaultActivityRows = 50
	maxActivityRows     = 500
)

// Handler exposes verification statistics over HTTP
type Handler struct {
	service *stats.Service
}

// NewHandler creates a new statistics API handler
func NewHandler(service *stats.Service) *Handler {
	return &Handler{
		service: service,
	}
}

// Routes returns the router for the statistics endpoints
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/overview", h.GetOverview)
	r.Get("/activity", h.GetActivity)
	return r
}

// GetOverview handles GET /overview
func (h *Handler) GetOverview(w http.ResponseWriter, r *http.Request) {
	hours := defaultWindowHours
	if raw := r.URL.Query().Get("hours"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			render.Status(r, http.StatusBadRequest)
			render.JSON(w, r, ErrorResponse{Error: "Invalid hours parameter"})
			return
		}
		hours = parsed
	}

	overview, err := h.service.Overview(r.Context(), time.Duration(hours)*time.Hour)
	if err != nil {
		slog.Error("Failed to compute overview", "err", err)
		render.Status(r, http.StatusInternalServerError)
		render.JSON(w, r, ErrorResponse{Error: "An error occurred while computing statistics"})
		return
	}

	response := OverviewResponse{}
	copier.Copy(&response, &overview)
	response.WindowHours = hours
	response.GeneratedAt = time.Now().UTC().Format(time.RFC3339)

	render.Status(r, http.StatusOK)
	render.JSON(w, r, response)
}

// GetActivity handles GET /activity
func (h *Handler) GetActivity(w http.ResponseWriter, r *http.Request) {
	limit := defaultActivityRows
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			render.Status(r, http.StatusBadRequest)
			render.JSON(w, r, ErrorResponse{Error: "Invalid limit parameter"})
			return
		}
		limit = parsed
	}
	if limit > maxActivityRows {
		limit = maxActivityRows
	}

	entries, err := h.service.RecentActivity(r.Context(), limit)
	if err != nil {
		slog.Error("Failed to list recent activity", "err", err)
		render.Status(r, http.StatusInternalServerError)
		render.JSON(w, r, ErrorResponse{Error: "An error occurred while listing activity"})
		return
	}

	response := ActivityResponse{Entries: make([]ActivityEntry, 0, len(entries))}
	for _, entry := range entries {
		row := ActivityEntry{}
		copier.Copy(&row, &entry)
		row.ID = entry.ID.String()
		row.Action = string(entry.Action)
		row.Timestamp = entry.Timestamp.UTC().Format(time.RFC3339)
		response.Entries = append(response.Entries, row)
	}

	render.Status(r, http.StatusOK)
	render.JSON(w, r, response)
}
