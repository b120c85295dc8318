package handler

import (
	"net/http"

	"github.com/mcoot/dicefunnel/internal/api/response"
	"github.com/mcoot/dicefunnel/internal/dependencies/clock"
	"github.com/mcoot/dicefunnel/internal/services/campaign"
)

// HealthHandler reports service health
type HealthHandler struct {
	controller *campaign.Controller
	clock      clock.Clock
}

// NewHealthHandler creates a new health handler
func NewHealthHandler(controller *campaign.Controller, clock clock.Clock) *HealthHandler {
	return &HealthHandler{
		controller: controller,
		clock:      clock,
	}
}

// Health handles GET /api/v1/health. Storage being down answers 503; the
// loyalty platform is reported but optional.
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	report := h.controller.Health(r.Context())
	status := http.StatusOK
	if !report.Healthy() {
		status = http.StatusServiceUnavailable
	}
	response.JSON(w, status, response.HealthResponseFromReport(report, h.clock.Now()))
}
