package model

import "time"

// Customer is a loyalty platform customer record
type Customer struct {
	ID        string `json:"id"`
	Phone     string `json:"phone,omitempty"`
	Email     string `json:"email,omitempty"`
	FirstName string `json:"first_name,omitempty"`
	Tags      string `json:"tags"`
}

// Discount is the outcome of reward provisioning. A locally synthesized code
// has no external refs and IsExternallyProvisioned false.
type Discount struct {
	Code                    string `json:"code"`
	Percentage              int    `json:"percentage"`
	PriceRuleRef            string `json:"price_rule_ref,omitempty"`
	CodeRef                 string `json:"code_ref,omitempty"`
	RedemptionURL           string `json:"redemption_url,omitempty"`
	IsExternallyProvisioned bool   `json:"is_externally_provisioned"`
}

// DiscountStatus reports whether a discount code can still be redeemed
type DiscountStatus struct {
	Code                    string `json:"code"`
	Valid                   bool   `json:"valid"`
	UsageCount              int    `json:"usage_count"`
	IsExternallyProvisioned bool   `json:"is_externally_provisioned"`
}

// CustomerTagMirror is the local copy of tags reported by the platform's webhook
type CustomerTagMirror struct {
	CustomerID string    `json:"customer_id"`
	Tags       []string  `json:"tags"`
	Phone      string    `json:"phone,omitempty"`
	UpdatedAt  time.Time `json:"updated_at"`
}
