package sms

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/mcoot/dicefunnel/internal/model"
)

// Sender delivers a text message to a phone number
type Sender interface {
	Send(ctx context.Context, phone, message string) error
}

// Config holds settings for the bulk-SMS HTTP gateway
type Config struct {
	// Endpoint is the gateway's send URL. Empty selects the logging sender.
	Endpoint   string
	User       string
	Password   string
	SenderID   string
	Channel    string
	Route      string
	TemplateID string
	EntityID   string
	Timeout    time.Duration
}

// DefaultConfig returns default SMS configuration
func DefaultConfig() Config {
	return Config{
		Channel: "Trans",
		Route:   "15",
		Timeout: 10 * time.Second,
	}
}

// New returns a GatewaySender when an endpoint is configured, otherwise a LogSender
func New(cfg Config, logger *slog.Logger) Sender {
	if cfg.Endpoint == "" {
		return NewLogSender(logger)
	}
	return NewGatewaySender(cfg, nil)
}

// GatewaySender sends messages through a query-string HTTP gateway
type GatewaySender struct {
	cfg    Config
	client *http.Client
}

// NewGatewaySender creates a GatewaySender. A nil client gets one with cfg.Timeout.
func NewGatewaySender(cfg Config, client *http.Client) *GatewaySender {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultConfig().Timeout
	}
	if client == nil {
		client = &http.Client{Timeout: cfg.Timeout}
	}
	return &GatewaySender{cfg: cfg, client: client}
}

func (g *GatewaySender) Send(ctx context.Context, phone, message string) error {
	params := url.Values{}
	params.Set("user", g.cfg.User)
	params.Set("password", g.cfg.Password)
	params.Set("senderid", g.cfg.SenderID)
	params.Set("channel", g.cfg.Channel)
	params.Set("DCS", "0")
	params.Set("flashsms", "0")
	params.Set("number", phone)
	params.Set("text", message)
	params.Set("route", g.cfg.Route)
	if g.cfg.TemplateID != "" {
		params.Set("DLTTemplateId", g.cfg.TemplateID)
	}
	if g.cfg.EntityID != "" {
		params.Set("PEID", g.cfg.EntityID)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.cfg.Endpoint+"?"+params.Encode(), nil)
	if err != nil {
		return err
	}

	resp, err := g.client.Do(req)
	if err != nil {
		return &model.ExternalServiceError{Service: "sms", Op: "send", Err: err}
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &model.ExternalServiceError{
			Service:    "sms",
			Op:         "send",
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("gateway returned %s", resp.Status),
		}
	}
	return nil
}

// LogSender logs messages instead of sending them
type LogSender struct {
	logger *slog.Logger
}

// NewLogSender creates a LogSender
func NewLogSender(logger *slog.Logger) *LogSender {
	return &LogSender{logger: logger.With(slog.String("component", "sms"))}
}

func (l *LogSender) Send(ctx context.Context, phone, message string) error {
	l.logger.Info("sms not sent, no gateway configured",
		slog.String("phone", model.MaskPhone(phone)),
		slog.Int("length", len(message)))
	return nil
}
