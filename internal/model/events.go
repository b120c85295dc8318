package model

import (
	"fmt"
	"time"
)

// Stage identifies a funnel stage transition
type Stage string

const (
	StageEntered        Stage = "entered"
	StageOtpSent        Stage = "otp_sent"
	StageOtpVerified    Stage = "otp_verified"
	StageRewardDrawn    Stage = "reward_drawn"
	StageRewardRedeemed Stage = "reward_redeemed"
)

// Stages lists every stage in funnel order
var Stages = []Stage{
	StageEntered,
	StageOtpSent,
	StageOtpVerified,
	StageRewardDrawn,
	StageRewardRedeemed,
}

// ParseStage validates a stage name
func ParseStage(s string) (Stage, error) {
	for _, st := range Stages {
		if string(st) == s {
			return st, nil
		}
	}
	return "", NewValidationError("stage", fmt.Sprintf("unknown stage %q", s))
}

// FunnelEvent is an append-only record of one stage transition.
// Only PlayerRef and Name are ever back-filled after creation.
type FunnelEvent struct {
	ID         string    `json:"id"`
	Identity   string    `json:"identity"`
	Name       string    `json:"name,omitempty"`
	Stage      Stage     `json:"stage"`
	Timestamp  time.Time `json:"timestamp"`
	PlayerRef  PlayerID  `json:"player_ref,omitempty"`
	RewardCode string    `json:"reward_code,omitempty"`
}

// Default and maximum page sizes for event queries
const (
	DefaultEventLimit = 50
	MaxEventLimit     = 200
)

// EventFilter selects funnel events. Zero values mean "no constraint".
type EventFilter struct {
	Stage             Stage
	From              time.Time
	To                time.Time
	IdentitySubstring string
	Page              int
	Limit             int
}

// Normalize clamps paging to page >= 1 and limit in [1, MaxEventLimit]
func (f EventFilter) Normalize() EventFilter {
	if f.Page < 1 {
		f.Page = 1
	}
	if f.Limit <= 0 {
		f.Limit = DefaultEventLimit
	}
	if f.Limit > MaxEventLimit {
		f.Limit = MaxEventLimit
	}
	return f
}

// Offset returns the number of events to skip for the filter's page
func (f EventFilter) Offset() int {
	return (f.Page - 1) * f.Limit
}

// Matches reports whether e satisfies the filter's non-paging constraints
func (f EventFilter) Matches(e *FunnelEvent) bool {
	if f.Stage != "" && e.Stage != f.Stage {
		return false
	}
	if !f.From.IsZero() && e.Timestamp.Before(f.From) {
		return false
	}
	if !f.To.IsZero() && e.Timestamp.After(f.To) {
		return false
	}
	if f.IdentitySubstring != "" && !containsFold(e.Identity, f.IdentitySubstring) {
		return false
	}
	return true
}

// EventRow is a funnel event enriched with the owning player's current data
type EventRow struct {
	FunnelEvent
	AssignedCode string `json:"assigned_code,omitempty"`
	PlayerName   string `json:"player_name,omitempty"`
}

// EventPage is one page of a funnel query
type EventPage struct {
	Events     []EventRow
	Total      int
	Page       int
	TotalPages int
	Limit      int
}

// NewEventPage computes paging metadata. TotalPages is at least 1.
func NewEventPage(rows []EventRow, total int, f EventFilter) EventPage {
	pages := 1
	if total > 0 {
		pages = (total + f.Limit - 1) / f.Limit
	}
	return EventPage{
		Events:     rows,
		Total:      total,
		Page:       f.Page,
		TotalPages: pages,
		Limit:      f.Limit,
	}
}

// StageCounts maps each stage to its event count in a time range
type StageCounts map[Stage]int
