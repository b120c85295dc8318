package otp

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/mcoot/dicefunnel/internal/dependencies/clock"
	"github.com/mcoot/dicefunnel/internal/dependencies/random"
	"github.com/mcoot/dicefunnel/internal/model"
	"github.com/mcoot/dicefunnel/internal/services/dispatch"
	"github.com/mcoot/dicefunnel/internal/services/funnel"
	"github.com/mcoot/dicefunnel/internal/services/sms"
	"github.com/mcoot/dicefunnel/internal/storage"
)

// Config holds configuration for the OTP service
type Config struct {
	// Length is the number of digits; the first digit is never zero
	Length int
	// Validity is how long an issued code may be verified
	Validity time.Duration
	// MessageTemplate is the SMS text; %s is replaced by the code
	MessageTemplate string
}

// DefaultConfig returns default OTP configuration
func DefaultConfig() Config {
	return Config{
		Length:          4,
		Validity:        10 * time.Minute,
		MessageTemplate: "Your OTP is %s. Do not share this code with anyone. Valid for 10 minutes only.",
	}
}

// Service issues and verifies session-scoped one-time codes
type Service struct {
	storage    storage.Storage
	clock      clock.Clock
	random     random.Random
	sender     sms.Sender
	dispatcher *dispatch.Dispatcher
	events     *funnel.Log
	cfg        Config
	logger     *slog.Logger
}

// New creates a new OTP Service
func New(
	storage storage.Storage,
	clock clock.Clock,
	random random.Random,
	sender sms.Sender,
	dispatcher *dispatch.Dispatcher,
	events *funnel.Log,
	cfg Config,
	logger *slog.Logger,
) *Service {
	defaults := DefaultConfig()
	if cfg.Length == 0 {
		cfg.Length = defaults.Length
	}
	if cfg.Validity == 0 {
		cfg.Validity = defaults.Validity
	}
	if cfg.MessageTemplate == "" {
		cfg.MessageTemplate = defaults.MessageTemplate
	}
	return &Service{
		storage:    storage,
		clock:      clock,
		random:     random,
		sender:     sender,
		dispatcher: dispatcher,
		events:     events,
		cfg:        cfg,
		logger:     logger.With(slog.String("component", "otp")),
	}
}

// Validity returns the configured OTP validity window
func (s *Service) Validity() time.Duration {
	return s.cfg.Validity
}

// Issue generates a fresh code for the session, saves it and sends it by SMS.
// Sending happens in the background and its failure does not fail Issue.
func (s *Service) Issue(ctx context.Context, session *model.Session) (string, error) {
	code := s.random.Digits(s.cfg.Length)
	session.IssueOtp(code, s.clock.Now())

	if err := s.storage.SaveSession(ctx, session); err != nil {
		return "", err
	}

	phone := session.Candidate.Phone
	message := fmt.Sprintf(s.cfg.MessageTemplate, code)
	s.dispatcher.Go("sms-otp", func(ctx context.Context) error {
		return s.sender.Send(ctx, phone, message)
	})

	s.events.Record(ctx, model.StageOtpSent, phone, session.Candidate.Name)
	s.logger.Info("otp issued", slog.String("phone", model.MaskPhone(phone)))
	return code, nil
}

// Verify checks candidate against the session's pending code. A code can be
// verified once; an expired code is cleared and cannot be retried.
func (s *Service) Verify(ctx context.Context, token, candidate string) (*model.Session, error) {
	session, err := s.storage.GetSession(ctx, token)
	if err != nil {
		if errors.Is(err, model.ErrSessionNotFound) {
			return nil, model.ErrSessionExpired
		}
		return nil, err
	}

	switch session.State {
	case model.SessionOtpIssued:
	case model.SessionOtpExpired:
		return nil, model.ErrOtpExpired
	case model.SessionVerified:
		return nil, model.ErrOtpMismatch
	default:
		return nil, model.ErrSessionExpired
	}
	if session.Otp == nil {
		return nil, model.ErrSessionExpired
	}

	if clock.Elapsed(s.clock, session.Otp.IssuedAt) > s.cfg.Validity {
		session.ExpireOtp()
		if err := s.storage.SaveSession(ctx, session); err != nil {
			return nil, err
		}
		return nil, model.ErrOtpExpired
	}

	if subtle.ConstantTimeCompare([]byte(candidate), []byte(session.Otp.Code)) != 1 {
		return nil, model.ErrOtpMismatch
	}

	session.MarkVerified(s.clock.Now())
	if err := s.storage.SaveSession(ctx, session); err != nil {
		return nil, err
	}

	s.events.Record(ctx, model.StageOtpVerified, session.Candidate.Phone, session.Candidate.Name)
	return session, nil
}
