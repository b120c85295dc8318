package handler

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/mcoot/dicefunnel/internal/api/middleware"
	"github.com/mcoot/dicefunnel/internal/api/request"
	"github.com/mcoot/dicefunnel/internal/api/response"
	"github.com/mcoot/dicefunnel/internal/services/campaign"
)

// FunnelHandler handles the player-facing funnel endpoints
type FunnelHandler struct {
	controller *campaign.Controller
}

// NewFunnelHandler creates a new funnel handler
func NewFunnelHandler(controller *campaign.Controller) *FunnelHandler {
	return &FunnelHandler{
		controller: controller,
	}
}

// Entry handles POST /api/v1/funnel/entry
func (h *FunnelHandler) Entry(w http.ResponseWriter, r *http.Request) {
	var req request.EntryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteError(w, NewInvalidRequestError("invalid request body"))
		return
	}

	result, err := h.controller.Enter(r.Context(), req.Name, req.Phone, req.Email)
	if err != nil {
		WriteError(w, err)
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     middleware.SessionCookieName,
		Value:    result.SessionToken,
		Path:     "/api/v1/funnel",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	response.JSON(w, http.StatusOK, response.EntryResponseFromResult(result))
}

// Verify handles POST /api/v1/funnel/verify
func (h *FunnelHandler) Verify(w http.ResponseWriter, r *http.Request) {
	var req request.VerifyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteError(w, NewInvalidRequestError("invalid request body"))
		return
	}
	if req.OTP == "" {
		WriteError(w, NewInvalidRequestError("otp is required"))
		return
	}

	token := middleware.MustGetSessionToken(r.Context())
	if err := h.controller.Verify(r.Context(), token, req.OTP); err != nil {
		WriteError(w, err)
		return
	}

	response.JSON(w, http.StatusOK, response.MessageResponse{Success: true, Message: "OTP verified successfully"})
}

// Draw handles POST /api/v1/funnel/draw
func (h *FunnelHandler) Draw(w http.ResponseWriter, r *http.Request) {
	token := middleware.MustGetSessionToken(r.Context())
	result, err := h.controller.Draw(r.Context(), token)
	if err != nil {
		WriteError(w, err)
		return
	}

	response.JSON(w, http.StatusOK, response.DrawResponseFromResult(result))
}

// Status handles GET /api/v1/funnel/status
func (h *FunnelHandler) Status(w http.ResponseWriter, r *http.Request) {
	token := middleware.MustGetSessionToken(r.Context())
	status, err := h.controller.Status(r.Context(), token)
	if err != nil {
		WriteError(w, err)
		return
	}

	response.JSON(w, http.StatusOK, response.SessionStatusFromResult(status))
}

// MarkRedeemed handles POST /api/v1/funnel/mark-redeemed
func (h *FunnelHandler) MarkRedeemed(w http.ResponseWriter, r *http.Request) {
	var req request.MarkRedeemedRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteError(w, NewInvalidRequestError("invalid request body"))
		return
	}
	if req.DiscountCode == "" {
		WriteError(w, NewInvalidRequestError("discount_code is required"))
		return
	}

	player, err := h.controller.MarkRedeemed(r.Context(), req.DiscountCode)
	if err != nil {
		WriteError(w, err)
		return
	}

	response.JSON(w, http.StatusOK, response.RedeemResponse{
		Success:      true,
		Message:      "Discount marked as used",
		DiscountCode: player.AssignedCode,
		RedeemedAt:   player.RewardRedeemedAt,
	})
}

// DiscountStatus handles GET /api/v1/discounts/{code}/status
func (h *FunnelHandler) DiscountStatus(w http.ResponseWriter, r *http.Request) {
	code := mux.Vars(r)["code"]

	status, err := h.controller.DiscountStatus(r.Context(), code)
	if err != nil {
		WriteError(w, err)
		return
	}

	response.JSON(w, http.StatusOK, response.DiscountStatusFromModel(status))
}
