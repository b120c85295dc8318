package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"time"

	"github.com/mcoot/dicefunnel/internal/model"
)

// Output handles formatting output based on the configured format
type Output struct {
	format string
	w      io.Writer
}

// NewOutput creates a new Output formatter writing to w
func NewOutput(format string, w io.Writer) *Output {
	if w == nil {
		w = os.Stdout
	}
	return &Output{format: format, w: w}
}

// Print outputs data in the configured format
func (o *Output) Print(data any) {
	if o.format == "json" {
		o.printJSON(data)
	} else {
		o.printText(data)
	}
}

// PrintError outputs an error
func (o *Output) PrintError(err error) {
	if o.format == "json" {
		errData := map[string]any{
			"error": map[string]string{
				"message": err.Error(),
			},
		}
		data, _ := json.Marshal(errData)
		fmt.Fprintln(os.Stderr, string(data))
	} else {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
	}
}

// PrintMessage outputs a simple message
func (o *Output) PrintMessage(msg string) {
	if o.format == "json" {
		data, _ := json.Marshal(map[string]string{"message": msg})
		fmt.Fprintln(o.w, string(data))
	} else {
		fmt.Fprintln(o.w, msg)
	}
}

func (o *Output) printJSON(data any) {
	enc := json.NewEncoder(o.w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(data)
}

func (o *Output) printText(data any) {
	switch v := data.(type) {
	case EntryResult:
		o.printEntryResult(v)
	case DrawResult:
		o.printDrawResult(v)
	case SessionStatus:
		o.printSessionStatus(v)
	case RedeemResult:
		o.printRedeemResult(v)
	case DiscountStatus:
		o.printDiscountStatus(v)
	case EventsPage:
		o.printEventsPage(v)
	case Stats:
		o.printStats(v)
	case CreditStamp:
		o.printCreditStamp(v)
	case Odds:
		o.printOdds(v)
	case HealthResult:
		o.printHealthResult(v)
	default:
		// Fallback to JSON for unknown types
		o.printJSON(data)
	}
}

// EntryResult response type (matches API)
type EntryResult struct {
	Success      bool   `json:"success"`
	Message      string `json:"message"`
	SessionToken string `json:"session_token"`
	DebugOTP     string `json:"debug_otp,omitempty"`
	NewCustomer  bool   `json:"new_customer"`
}

// DrawResult response type
type DrawResult struct {
	Success                 bool   `json:"success"`
	DiceResult              int    `json:"dice_result"`
	DiscountCode            string `json:"discount_code"`
	DiscountPercent         int    `json:"discount_percent"`
	RedemptionURL           string `json:"redemption_url,omitempty"`
	IsExternallyProvisioned bool   `json:"is_externally_provisioned"`
	Message                 string `json:"message"`
}

// SessionStatus response type
type SessionStatus struct {
	State     string    `json:"state"`
	Verified  bool      `json:"verified"`
	Name      string    `json:"name"`
	Phone     string    `json:"phone"`
	ExpiresAt time.Time `json:"expires_at"`
}

// RedeemResult response type
type RedeemResult struct {
	Success      bool       `json:"success"`
	Message      string     `json:"message"`
	DiscountCode string     `json:"discount_code"`
	RedeemedAt   *time.Time `json:"redeemed_at,omitempty"`
}

// DiscountStatus response type
type DiscountStatus struct {
	Code                    string `json:"code"`
	Valid                   bool   `json:"valid"`
	UsageCount              int    `json:"usage_count"`
	IsExternallyProvisioned bool   `json:"is_externally_provisioned"`
}

// Event response type
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

// EventsPage response type
type EventsPage struct {
	Count      int     `json:"count"`
	Page       int     `json:"page"`
	TotalPages int     `json:"total_pages"`
	Limit      int     `json:"limit"`
	HasNext    bool    `json:"has_next"`
	HasPrev    bool    `json:"has_prev"`
	Events     []Event `json:"events"`
}

// Stats response type
type Stats struct {
	From   *time.Time     `json:"from,omitempty"`
	To     *time.Time     `json:"to,omitempty"`
	Counts map[string]int `json:"counts"`
}

// CreditStamp response type
type CreditStamp struct {
	Success            bool       `json:"success"`
	PlayerID           string     `json:"player_id"`
	LastCreditIssuedAt *time.Time `json:"last_credit_issued_at"`
}

// TierOdds is one tier's configured and simulated share
type TierOdds struct {
	Tier        int     `json:"tier"`
	Percent     int     `json:"discount_percent"`
	Probability float64 `json:"probability"`
	Simulated   int     `json:"simulated"`
}

// Odds is the local reward table report
type Odds struct {
	Draws int        `json:"draws"`
	Tiers []TierOdds `json:"tiers"`
}

// HealthResult response type
type HealthResult struct {
	Status  string `json:"status"`
	Storage string `json:"storage"`
	Loyalty string `json:"loyalty"`
}

func (o *Output) printEntryResult(e EntryResult) {
	fmt.Fprintln(o.w, e.Message)
	fmt.Fprintf(o.w, "Token: %s\n", e.SessionToken)
	if e.DebugOTP != "" {
		fmt.Fprintf(o.w, "OTP (debug): %s\n", e.DebugOTP)
	}
}

func (o *Output) printDrawResult(d DrawResult) {
	fmt.Fprintf(o.w, "Rolled: %d\n", d.DiceResult)
	fmt.Fprintln(o.w, d.Message)
	fmt.Fprintf(o.w, "Code: %s (%d%% off)\n", d.DiscountCode, d.DiscountPercent)
	if d.RedemptionURL != "" {
		fmt.Fprintf(o.w, "Redeem at: %s\n", d.RedemptionURL)
	}
}

func (o *Output) printSessionStatus(s SessionStatus) {
	fmt.Fprintf(o.w, "State: %s\n", s.State)
	fmt.Fprintf(o.w, "Verified: %t\n", s.Verified)
	fmt.Fprintf(o.w, "Player: %s (%s)\n", s.Name, s.Phone)
	fmt.Fprintf(o.w, "Expires: %s\n", s.ExpiresAt.Format(time.RFC3339))
}

func (o *Output) printRedeemResult(r RedeemResult) {
	fmt.Fprintf(o.w, "%s: %s\n", r.DiscountCode, r.Message)
}

func (o *Output) printDiscountStatus(d DiscountStatus) {
	state := "used"
	if d.Valid {
		state = "valid"
	}
	fmt.Fprintf(o.w, "%s: %s (uses: %d)\n", d.Code, state, d.UsageCount)
}

func (o *Output) printEventsPage(p EventsPage) {
	fmt.Fprintf(o.w, "Events: %d (page %d of %d)\n", p.Count, p.Page, p.TotalPages)
	for _, e := range p.Events {
		fmt.Fprintf(o.w, "  %s  %-16s %s", e.Timestamp.Format("2006-01-02 15:04:05"), e.Stage, e.Identity)
		if e.Name != "" {
			fmt.Fprintf(o.w, " (%s)", e.Name)
		}
		if e.AssignedCode != "" {
			fmt.Fprintf(o.w, " -> %s", e.AssignedCode)
		}
		fmt.Fprintln(o.w)
	}
}

func (o *Output) printStats(s Stats) {
	for _, stage := range model.Stages {
		fmt.Fprintf(o.w, "%-16s %d\n", stage, s.Counts[string(stage)])
	}
}

func (o *Output) printCreditStamp(c CreditStamp) {
	if c.LastCreditIssuedAt == nil {
		fmt.Fprintf(o.w, "Player %s has no credit stamp\n", c.PlayerID)
		return
	}
	fmt.Fprintf(o.w, "Player %s credit stamped at %s\n", c.PlayerID, c.LastCreditIssuedAt.Format(time.RFC3339))
}

func (o *Output) printOdds(d Odds) {
	tiers := append([]TierOdds(nil), d.Tiers...)
	sort.Slice(tiers, func(i, j int) bool { return tiers[i].Tier < tiers[j].Tier })
	fmt.Fprintf(o.w, "Tier  Discount  Probability  Simulated (%d draws)\n", d.Draws)
	for _, t := range tiers {
		fmt.Fprintf(o.w, "%4d  %7d%%  %10.1f%%  %d\n", t.Tier, t.Percent, t.Probability*100, t.Simulated)
	}
}

func (o *Output) printHealthResult(h HealthResult) {
	fmt.Fprintf(o.w, "Status: %s\n", h.Status)
	fmt.Fprintf(o.w, "Storage: %s\n", h.Storage)
	fmt.Fprintf(o.w, "Loyalty: %s\n", h.Loyalty)
}
