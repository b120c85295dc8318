package response

import (
	"time"

	"github.com/mcoot/dicefunnel/internal/model"
	"github.com/mcoot/dicefunnel/internal/services/campaign"
)

// MessageResponse is a plain success acknowledgement
type MessageResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// EntryResponse is the response for POST /funnel/entry
type EntryResponse struct {
	Success      bool   `json:"success"`
	Message      string `json:"message"`
	SessionToken string `json:"session_token"`
	DebugOTP     string `json:"debug_otp,omitempty"`
	NewCustomer  bool   `json:"new_customer"`
}

// EntryResponseFromResult converts a campaign.EntryResult
func EntryResponseFromResult(r *campaign.EntryResult) EntryResponse {
	return EntryResponse{
		Success:      true,
		Message:      r.Message,
		SessionToken: r.SessionToken,
		DebugOTP:     r.DebugOTP,
		NewCustomer:  r.NewCustomer,
	}
}

// DrawResponse is the response for POST /funnel/draw
type DrawResponse struct {
	Success                 bool   `json:"success"`
	DiceResult              int    `json:"dice_result"`
	DiscountCode            string `json:"discount_code"`
	DiscountPercent         int    `json:"discount_percent"`
	RedemptionURL           string `json:"redemption_url,omitempty"`
	IsExternallyProvisioned bool   `json:"is_externally_provisioned"`
	Message                 string `json:"message"`
}

// DrawResponseFromResult converts a campaign.DrawResult
func DrawResponseFromResult(r *campaign.DrawResult) DrawResponse {
	return DrawResponse{
		Success:                 true,
		DiceResult:              r.DiceResult,
		DiscountCode:            r.DiscountCode,
		DiscountPercent:         r.DiscountPercent,
		RedemptionURL:           r.RedemptionURL,
		IsExternallyProvisioned: r.IsExternallyProvisioned,
		Message:                 r.Message,
	}
}

// SessionStatusResponse is the response for GET /funnel/status
type SessionStatusResponse struct {
	State     string    `json:"state"`
	Verified  bool      `json:"verified"`
	Name      string    `json:"name"`
	Phone     string    `json:"phone"`
	ExpiresAt time.Time `json:"expires_at"`
}

// SessionStatusFromResult converts a campaign.SessionStatus
func SessionStatusFromResult(s *campaign.SessionStatus) SessionStatusResponse {
	return SessionStatusResponse{
		State:     string(s.State),
		Verified:  s.Verified,
		Name:      s.Name,
		Phone:     s.Phone,
		ExpiresAt: s.ExpiresAt,
	}
}

// RedeemResponse is the response for POST /funnel/mark-redeemed
type RedeemResponse struct {
	Success      bool       `json:"success"`
	Message      string     `json:"message"`
	DiscountCode string     `json:"discount_code"`
	RedeemedAt   *time.Time `json:"redeemed_at,omitempty"`
}

// DiscountStatusResponse is the response for GET /discounts/{code}/status
type DiscountStatusResponse struct {
	Code                    string `json:"code"`
	Valid                   bool   `json:"valid"`
	UsageCount              int    `json:"usage_count"`
	IsExternallyProvisioned bool   `json:"is_externally_provisioned"`
}

// DiscountStatusFromModel converts a model.DiscountStatus
func DiscountStatusFromModel(s *model.DiscountStatus) DiscountStatusResponse {
	return DiscountStatusResponse{
		Code:                    s.Code,
		Valid:                   s.Valid,
		UsageCount:              s.UsageCount,
		IsExternallyProvisioned: s.IsExternallyProvisioned,
	}
}

// WebhookResponse acknowledges a webhook delivery
type WebhookResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Updated int    `json:"updated,omitempty"`
}

// TagMirrorResponse is the customer tag mirror after a webhook
type TagMirrorResponse struct {
	Success    bool     `json:"success"`
	CustomerID string   `json:"customer_id"`
	Tags       []string `json:"tags"`
}

// Event is one funnel event row
type Event struct {
	ID           string    `json:"id"`
	Identity     string    `json:"identity"`
	Name         string    `json:"name,omitempty"`
	Stage        string    `json:"stage"`
	Timestamp    time.Time `json:"timestamp"`
	PlayerRef    string    `json:"player_ref,omitempty"`
	RewardCode   string    `json:"reward_code,omitempty"`
	AssignedCode string    `json:"assigned_code,omitempty"`
	PlayerName   string    `json:"player_name,omitempty"`
}

// EventFromRow converts a model.EventRow
func EventFromRow(r model.EventRow) Event {
	return Event{
		ID:           r.ID,
		Identity:     r.Identity,
		Name:         r.Name,
		Stage:        string(r.Stage),
		Timestamp:    r.Timestamp,
		PlayerRef:    string(r.PlayerRef),
		RewardCode:   r.RewardCode,
		AssignedCode: r.AssignedCode,
		PlayerName:   r.PlayerName,
	}
}

// EventsResponse is one page of funnel events
type EventsResponse struct {
	Count      int     `json:"count"`
	Page       int     `json:"page"`
	TotalPages int     `json:"total_pages"`
	Limit      int     `json:"limit"`
	HasNext    bool    `json:"has_next"`
	HasPrev    bool    `json:"has_prev"`
	Events     []Event `json:"events"`
}

// EventsResponseFromPage converts a model.EventPage
func EventsResponseFromPage(p model.EventPage) EventsResponse {
	events := make([]Event, len(p.Events))
	for i, row := range p.Events {
		events[i] = EventFromRow(row)
	}
	return EventsResponse{
		Count:      p.Total,
		Page:       p.Page,
		TotalPages: p.TotalPages,
		Limit:      p.Limit,
		HasNext:    p.Page < p.TotalPages,
		HasPrev:    p.Page > 1,
		Events:     events,
	}
}

// StatsResponse counts funnel events per stage
type StatsResponse struct {
	From   *time.Time     `json:"from,omitempty"`
	To     *time.Time     `json:"to,omitempty"`
	Counts map[string]int `json:"counts"`
}

// StatsResponseFromCounts converts model.StageCounts. Every stage is present.
func StatsResponseFromCounts(counts model.StageCounts, from, to time.Time) StatsResponse {
	resp := StatsResponse{Counts: make(map[string]int, len(model.Stages))}
	for _, stage := range model.Stages {
		resp.Counts[string(stage)] = counts[stage]
	}
	if !from.IsZero() {
		resp.From = &from
	}
	if !to.IsZero() {
		resp.To = &to
	}
	return resp
}

// CreditStampResponse is the response for a manual credit stamp
type CreditStampResponse struct {
	Success            bool       `json:"success"`
	PlayerID           string     `json:"player_id"`
	LastCreditIssuedAt *time.Time `json:"last_credit_issued_at"`
}

// HealthResponse reports dependency reachability
type HealthResponse struct {
	Status    string    `json:"status"`
	Storage   string    `json:"storage"`
	Loyalty   string    `json:"loyalty"`
	Timestamp time.Time `json:"timestamp"`
}

// HealthResponseFromReport converts a campaign.HealthReport
func HealthResponseFromReport(r campaign.HealthReport, at time.Time) HealthResponse {
	status := "ok"
	if !r.Healthy() {
		status = "degraded"
	}
	return HealthResponse{
		Status:    status,
		Storage:   r.Storage,
		Loyalty:   r.Loyalty,
		Timestamp: at,
	}
}
