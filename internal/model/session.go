package model

import "time"

// SessionState is the position of a session in the entry/OTP/verify flow
type SessionState string

const (
	SessionEntered    SessionState = "entered"
	SessionOtpIssued  SessionState = "otp_issued"
	SessionOtpExpired SessionState = "otp_expired"
	SessionVerified   SessionState = "verified"
)

// Candidate is the unconfirmed identity submitted at entry
type Candidate struct {
	Name  string `json:"name"`
	Phone string `json:"phone"`
	Email string `json:"email"`
}

// OtpChallenge is the pending one-time code. Present only in SessionOtpIssued.
type OtpChallenge struct {
	Code     string    `json:"code"`
	IssuedAt time.Time `json:"issued_at"`
}

// Verification records a successful OTP check. Present only in SessionVerified.
type Verification struct {
	OtpIssuedAt time.Time `json:"otp_issued_at"`
	EnteredAt   time.Time `json:"entered_at"`
}

// Session is the server-side, single-use state for one pass through the funnel
type Session struct {
	Token     string       `json:"token"`
	State     SessionState `json:"state"`
	Candidate Candidate    `json:"candidate"`

	Otp          *OtpChallenge `json:"otp,omitempty"`
	Verification *Verification `json:"verification,omitempty"`

	// Loyalty platform context captured at entry
	CustomerRef string      `json:"customer_ref,omitempty"`
	NewCustomer bool        `json:"new_customer"`
	Eligibility Eligibility `json:"eligibility"`

	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// IssueOtp moves the session to SessionOtpIssued with a fresh challenge
func (s *Session) IssueOtp(code string, at time.Time) {
	s.State = SessionOtpIssued
	s.Otp = &OtpChallenge{Code: code, IssuedAt: at}
	s.Verification = nil
}

// ExpireOtp drops the pending code and marks it expired
func (s *Session) ExpireOtp() {
	s.State = SessionOtpExpired
	s.Otp = nil
}

// MarkVerified consumes the pending code and records the verification
func (s *Session) MarkVerified(at time.Time) {
	issuedAt := time.Time{}
	if s.Otp != nil {
		issuedAt = s.Otp.IssuedAt
	}
	s.State = SessionVerified
	s.Otp = nil
	s.Verification = &Verification{OtpIssuedAt: issuedAt, EnteredAt: at}
}

// IsVerified reports whether the session may proceed to a reward draw
func (s *Session) IsVerified() bool {
	return s.State == SessionVerified && s.Verification != nil
}
