package handler

import (
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/mcoot/dicefunnel/internal/api/response"
	"github.com/mcoot/dicefunnel/internal/model"
	"github.com/mcoot/dicefunnel/internal/services/campaign"
	"github.com/mcoot/dicefunnel/internal/services/funnel"
	"github.com/mcoot/dicefunnel/internal/sse"
)

const dateLayout = "2006-01-02"

// AdminHandler handles the dashboard endpoints
type AdminHandler struct {
	controller *campaign.Controller
	events     *funnel.Log
	hub        *sse.Hub
}

// NewAdminHandler creates a new admin handler
func NewAdminHandler(controller *campaign.Controller, events *funnel.Log, hub *sse.Hub) *AdminHandler {
	return &AdminHandler{
		controller: controller,
		events:     events,
		hub:        hub,
	}
}

// Events handles GET /api/v1/admin/funnel/events
func (h *AdminHandler) Events(w http.ResponseWriter, r *http.Request) {
	filter, err := parseEventFilter(r)
	if err != nil {
		WriteError(w, err)
		return
	}

	page, err := h.events.Query(r.Context(), filter)
	if err != nil {
		WriteError(w, err)
		return
	}

	response.JSON(w, http.StatusOK, response.EventsResponseFromPage(page))
}

// Stats handles GET /api/v1/admin/funnel/stats
func (h *AdminHandler) Stats(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	from, err := parseTime(q.Get("from"), false)
	if err != nil {
		WriteError(w, NewInvalidRequestError("from must be a date or RFC3339 time"))
		return
	}
	to, err := parseTime(q.Get("to"), true)
	if err != nil {
		WriteError(w, NewInvalidRequestError("to must be a date or RFC3339 time"))
		return
	}

	counts, err := h.events.Stats(r.Context(), from, to)
	if err != nil {
		WriteError(w, err)
		return
	}

	response.JSON(w, http.StatusOK, response.StatsResponseFromCounts(counts, from, to))
}

// Stream handles GET /api/v1/admin/funnel/stream
func (h *AdminHandler) Stream(w http.ResponseWriter, r *http.Request) {
	sse.ServeSSE(w, r, h.hub, uuid.NewString())
}

// CreditStamp handles POST /api/v1/admin/players/{identity}/credit-stamp
func (h *AdminHandler) CreditStamp(w http.ResponseWriter, r *http.Request) {
	ref := mux.Vars(r)["identity"]

	player, err := h.controller.StampCredit(r.Context(), ref)
	if err != nil {
		WriteError(w, err)
		return
	}

	response.JSON(w, http.StatusOK, response.CreditStampResponse{
		Success:            true,
		PlayerID:           string(player.ID),
		LastCreditIssuedAt: player.LastCreditIssuedAt,
	})
}

func parseEventFilter(r *http.Request) (model.EventFilter, error) {
	q := r.URL.Query()
	var filter model.EventFilter

	if s := q.Get("stage"); s != "" {
		stage, err := model.ParseStage(s)
		if err != nil {
			return filter, err
		}
		filter.Stage = stage
	}

	var err error
	if filter.From, err = parseTime(q.Get("from"), false); err != nil {
		return filter, NewInvalidRequestError("from must be a date or RFC3339 time")
	}
	if filter.To, err = parseTime(q.Get("to"), true); err != nil {
		return filter, NewInvalidRequestError("to must be a date or RFC3339 time")
	}

	filter.IdentitySubstring = q.Get("identity")

	if s := q.Get("page"); s != "" {
		if filter.Page, err = strconv.Atoi(s); err != nil {
			return filter, NewInvalidRequestError("page must be a number")
		}
	}
	if s := q.Get("limit"); s != "" {
		if filter.Limit, err = strconv.Atoi(s); err != nil {
			return filter, NewInvalidRequestError("limit must be a number")
		}
	}

	return filter.Normalize(), nil
}

// parseTime accepts RFC3339 or a bare date. A bare date used as an upper
// bound covers the whole day.
func parseTime(s string, endOfDay bool) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	t, err := time.Parse(dateLayout, s)
	if err != nil {
		return time.Time{}, err
	}
	if endOfDay {
		t = t.Add(24*time.Hour - time.Nanosecond)
	}
	return t, nil
}
