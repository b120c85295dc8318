package credit

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"github.com/mcoot/dicefunnel/internal/model"
)

// CreditRequest is one wallet credit for a customer
type CreditRequest struct {
	CustomerEmail string
	Amount        decimal.Decimal
	Comment       string
}

// Wallet issues store-credit to a customer's wallet
type Wallet interface {
	Credit(ctx context.Context, req CreditRequest) error
}

type creditPayload struct {
	CustomerEmail string        `json:"customer_email"`
	CreditDetails creditDetails `json:"credit_details"`
}

type creditDetails struct {
	CreditValue json.Number `json:"credit_value"`
	CommentText string      `json:"comment_text"`
}

// HTTPWallet posts credits to the wallet provider's custom-action endpoint
type HTTPWallet struct {
	endpoint string
	apiKey   string
	client   *http.Client
}

// NewHTTPWallet creates an HTTPWallet. A nil client gets one with timeout.
func NewHTTPWallet(endpoint, apiKey string, timeout time.Duration, client *http.Client) *HTTPWallet {
	if client == nil {
		client = &http.Client{Timeout: timeout}
	}
	return &HTTPWallet{endpoint: endpoint, apiKey: apiKey, client: client}
}

func (w *HTTPWallet) Credit(ctx context.Context, req CreditRequest) error {
	body, err := json.Marshal(creditPayload{
		CustomerEmail: req.CustomerEmail,
		CreditDetails: creditDetails{
			CreditValue: json.Number(req.Amount.String()),
			CommentText: req.Comment,
		},
	})
	if err != nil {
		return err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, w.endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-key", w.apiKey)

	resp, err := w.client.Do(httpReq)
	if err != nil {
		return &model.ExternalServiceError{Service: "wallet", Op: "credit", Err: err}
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &model.ExternalServiceError{
			Service:    "wallet",
			Op:         "credit",
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("wallet returned %s", resp.Status),
		}
	}
	return nil
}

// LogWallet logs credits without issuing them
type LogWallet struct {
	logger *slog.Logger
}

// NewLogWallet creates a LogWallet
func NewLogWallet(logger *slog.Logger) *LogWallet {
	return &LogWallet{logger: logger.With(slog.String("component", "wallet"))}
}

func (w *LogWallet) Credit(ctx context.Context, req CreditRequest) error {
	w.logger.Info("wallet credit not sent, no endpoint configured",
		slog.String("amount", req.Amount.StringFixed(2)))
	return nil
}
