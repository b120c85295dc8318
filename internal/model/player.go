package model

import "time"

// PlayerID uniquely identifies a player record
type PlayerID string

// Player is the durable record for one identity. IdentityHash is unique.
// Version is bumped on every successful UpdatePlayer and used as the
// expected state for conditional updates.
type Player struct {
	ID                 PlayerID `json:"id"`
	IdentityHash       string   `json:"identity_hash"`
	LegacyIdentityHash string   `json:"legacy_identity_hash,omitempty"`
	Name               string   `json:"name"`
	Email              string   `json:"email,omitempty"`

	RewardTier              int    `json:"reward_tier"`
	AssignedCode            string `json:"assigned_code"`
	ExternalPriceRuleRef    string `json:"external_price_rule_ref,omitempty"`
	ExternalCodeRef         string `json:"external_code_ref,omitempty"`
	IsExternallyProvisioned bool   `json:"is_externally_provisioned"`
	NewCustomer             bool   `json:"new_customer"`

	PlayedAt           time.Time  `json:"played_at"`
	OtpIssuedAt        time.Time  `json:"otp_issued_at"`
	OtpEnteredAt       time.Time  `json:"otp_entered_at"`
	RewardDrawnAt      time.Time  `json:"reward_drawn_at"`
	RewardRedeemedAt   *time.Time `json:"reward_redeemed_at,omitempty"`
	LastCreditIssuedAt *time.Time `json:"last_credit_issued_at,omitempty"`
	AlreadyRedeemed    bool       `json:"already_redeemed"`

	Version   int64     `json:"version"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Clone returns a deep copy so storage backends never share pointers with callers
func (p *Player) Clone() *Player {
	if p == nil {
		return nil
	}
	c := *p
	if p.RewardRedeemedAt != nil {
		t := *p.RewardRedeemedAt
		c.RewardRedeemedAt = &t
	}
	if p.LastCreditIssuedAt != nil {
		t := *p.LastCreditIssuedAt
		c.LastCreditIssuedAt = &t
	}
	return &c
}
