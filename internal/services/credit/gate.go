package credit

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/mcoot/dicefunnel/internal/dependencies/clock"
	"github.com/mcoot/dicefunnel/internal/model"
	"github.com/mcoot/dicefunnel/internal/storage"
)

// Outcome is the gate's decision for one evaluation
type Outcome string

const (
	OutcomeIssued          Outcome = "issued"
	OutcomeSkippedTerminal Outcome = "skipped_terminal"
	OutcomeSkippedCooldown Outcome = "skipped_cooldown"
	OutcomeSkippedNoEmail  Outcome = "skipped_no_email"
	OutcomeFailed          Outcome = "failed"
)

// Config holds configuration for wallet credits
type Config struct {
	// Endpoint is the wallet provider URL. Empty selects the logging wallet.
	Endpoint string
	APIKey   string
	Amount   decimal.Decimal
	Comment  string
	// Cooldown is the minimum time between two credits for one identity
	Cooldown time.Duration
	Timeout  time.Duration
}

// DefaultConfig returns default credit configuration
func DefaultConfig() Config {
	return Config{
		Amount:   decimal.NewFromInt(399),
		Comment:  "Rewarding the user 399 in his wallet",
		Cooldown: time.Hour,
		Timeout:  10 * time.Second,
	}
}

// NewWallet returns an HTTPWallet when an endpoint is configured, otherwise a LogWallet
func NewWallet(cfg Config, logger *slog.Logger) Wallet {
	if cfg.Endpoint == "" {
		return NewLogWallet(logger)
	}
	return NewHTTPWallet(cfg.Endpoint, cfg.APIKey, cfg.Timeout, nil)
}

// Gate decides whether a reward earns a wallet credit and issues it at most
// once per cooldown window
type Gate struct {
	storage storage.Storage
	clock   clock.Clock
	wallet  Wallet
	cfg     Config
	logger  *slog.Logger
}

// NewGate creates a new credit Gate
func NewGate(storage storage.Storage, clock clock.Clock, wallet Wallet, cfg Config, logger *slog.Logger) *Gate {
	if cfg.Cooldown == 0 {
		cfg.Cooldown = DefaultConfig().Cooldown
	}
	return &Gate{
		storage: storage,
		clock:   clock,
		wallet:  wallet,
		cfg:     cfg,
		logger:  logger.With(slog.String("component", "credit")),
	}
}

// Evaluate applies the ladder and cooldown rules for the player identified by
// identityHash and calls the wallet when both allow it. The credit time is
// claimed with a conditional update before the call, so concurrent
// evaluations for one player produce at most one credit.
func (g *Gate) Evaluate(ctx context.Context, identityHash, email string, elig model.Eligibility) (Outcome, error) {
	if elig.Terminal {
		return OutcomeSkippedTerminal, nil
	}
	if email == "" {
		return OutcomeSkippedNoEmail, nil
	}

	player, previous, outcome, err := g.claim(ctx, identityHash)
	if err != nil || outcome != "" {
		return outcome, err
	}

	err = g.wallet.Credit(ctx, CreditRequest{
		CustomerEmail: email,
		Amount:        g.cfg.Amount,
		Comment:       g.cfg.Comment,
	})
	if err != nil {
		g.release(ctx, player, previous)
		return OutcomeFailed, err
	}

	g.logger.Info("wallet credit issued",
		slog.String("player_id", string(player.ID)),
		slog.String("amount", g.cfg.Amount.String()))
	return OutcomeIssued, nil
}

// claim stamps LastCreditIssuedAt unless the cooldown forbids it. A non-empty
// outcome means the caller must stop with that outcome.
func (g *Gate) claim(ctx context.Context, identityHash string) (*model.Player, *time.Time, Outcome, error) {
	for attempt := 0; attempt < 2; attempt++ {
		player, err := g.storage.GetPlayerByIdentity(ctx, identityHash)
		if err != nil {
			return nil, nil, OutcomeFailed, err
		}
		if player.LastCreditIssuedAt != nil && clock.Within(g.clock, *player.LastCreditIssuedAt, g.cfg.Cooldown) {
			return nil, nil, OutcomeSkippedCooldown, nil
		}

		previous := player.LastCreditIssuedAt
		now := g.clock.Now()
		player.LastCreditIssuedAt = &now
		player.UpdatedAt = now

		err = g.storage.UpdatePlayer(ctx, player, player.Version)
		if err == nil {
			return player, previous, "", nil
		}
		if !errors.Is(err, model.ErrVersionConflict) {
			return nil, nil, OutcomeFailed, err
		}
	}
	return nil, nil, OutcomeFailed, model.ErrVersionConflict
}

// release restores the previous credit time after a failed wallet call,
// unless someone else has written the player since
func (g *Gate) release(ctx context.Context, player *model.Player, previous *time.Time) {
	player.LastCreditIssuedAt = previous
	if err := g.storage.UpdatePlayer(ctx, player, player.Version); err != nil {
		g.logger.Warn("failed to release credit claim",
			slog.String("player_id", string(player.ID)),
			slog.String("error", err.Error()))
	}
}

// Stamp records a credit as issued now without calling the wallet
func (g *Gate) Stamp(ctx context.Context, identityHash string) (*model.Player, error) {
	for attempt := 0; attempt < 2; attempt++ {
		player, err := g.storage.GetPlayerByIdentity(ctx, identityHash)
		if err != nil {
			return nil, err
		}
		now := g.clock.Now()
		player.LastCreditIssuedAt = &now
		player.UpdatedAt = now

		err = g.storage.UpdatePlayer(ctx, player, player.Version)
		if err == nil {
			return player, nil
		}
		if !errors.Is(err, model.ErrVersionConflict) {
			return nil, err
		}
	}
	return nil, model.ErrVersionConflict
}
