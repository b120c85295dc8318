package handler

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/mcoot/dicefunnel/internal/api/request"
	"github.com/mcoot/dicefunnel/internal/api/response"
	"github.com/mcoot/dicefunnel/internal/services/campaign"
)

// WebhookHandler handles callbacks from the loyalty platform
type WebhookHandler struct {
	controller *campaign.Controller
}

// NewWebhookHandler creates a new webhook handler
func NewWebhookHandler(controller *campaign.Controller) *WebhookHandler {
	return &WebhookHandler{
		controller: controller,
	}
}

// DiscountUsed handles POST /api/v1/webhooks/discount-used
func (h *WebhookHandler) DiscountUsed(w http.ResponseWriter, r *http.Request) {
	var req request.DiscountUsedRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteError(w, NewInvalidRequestError("invalid request body"))
		return
	}

	updated, err := h.controller.HandleDiscountUsed(r.Context(), req.Codes())
	if err != nil {
		WriteError(w, err)
		return
	}

	response.JSON(w, http.StatusOK, response.WebhookResponse{
		Success: true,
		Message: fmt.Sprintf("Marked %d discount code(s) as used", updated),
		Updated: updated,
	})
}

// CustomerTagAdded handles POST /api/v1/webhooks/customer-tag-added
func (h *WebhookHandler) CustomerTagAdded(w http.ResponseWriter, r *http.Request) {
	var req request.CustomerTagAddedRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteError(w, NewInvalidRequestError("invalid request body"))
		return
	}
	// An empty tags array still refreshes the mirror; only a missing one is rejected
	if req.CustomerID == "" || req.Tags == nil {
		WriteError(w, NewInvalidRequestError("customerId and tags are required"))
		return
	}

	mirror, err := h.controller.HandleTagAdded(r.Context(), req.CustomerID, req.Tags)
	if err != nil {
		WriteError(w, err)
		return
	}

	response.JSON(w, http.StatusOK, response.TagMirrorResponse{
		Success:    true,
		CustomerID: mirror.CustomerID,
		Tags:       mirror.Tags,
	})
}
