package identity

import (
	"context"
	"errors"
	"log/slog"

	"golang.org/x/crypto/bcrypt"

	"github.com/mcoot/dicefunnel/internal/model"
	"github.com/mcoot/dicefunnel/internal/storage"
)

// Config holds configuration for identity resolution
type Config struct {
	// DigestKey is the secret for the keyed identity digest
	DigestKey string
	// LegacyCost is the bcrypt cost used when generating legacy hashes
	LegacyCost int
}

// DefaultConfig returns default identity configuration
func DefaultConfig() Config {
	return Config{
		DigestKey:  "dev-digest-key",
		LegacyCost: bcrypt.DefaultCost,
	}
}

// Resolver maps phone numbers to stable identities and finds their players
type Resolver struct {
	digester *Digester
	lookups  []Lookup
	cfg      Config
	logger   *slog.Logger
}

// New creates a Resolver that tries the digest lookup and then the legacy lookup
func New(storage storage.Storage, cfg Config, logger *slog.Logger) *Resolver {
	if cfg.LegacyCost == 0 {
		cfg.LegacyCost = DefaultConfig().LegacyCost
	}
	digester := NewDigester(cfg.DigestKey)
	return NewWithLookups(digester, cfg, logger,
		NewDigestLookup(storage, digester),
		NewLegacyLookup(storage, digester, logger),
	)
}

// NewWithLookups creates a Resolver with an explicit lookup chain
func NewWithLookups(digester *Digester, cfg Config, logger *slog.Logger, lookups ...Lookup) *Resolver {
	return &Resolver{
		digester: digester,
		lookups:  lookups,
		cfg:      cfg,
		logger:   logger.With(slog.String("component", "identity")),
	}
}

// Resolve returns the identity hash for phone
func (r *Resolver) Resolve(phone string) string {
	return r.digester.Digest(phone)
}

// FindPlayer runs the lookup chain in order and returns the first match,
// or model.ErrPlayerNotFound
func (r *Resolver) FindPlayer(ctx context.Context, phone, name string) (*model.Player, error) {
	for _, l := range r.lookups {
		p, err := l.Find(ctx, phone, name)
		if err == nil {
			if l.Name() != r.lookups[0].Name() {
				r.logger.Debug("player found by fallback lookup",
					slog.String("lookup", l.Name()),
					slog.String("phone", model.MaskPhone(phone)))
			}
			return p, nil
		}
		if !errors.Is(err, model.ErrPlayerNotFound) {
			return nil, err
		}
	}
	return nil, model.ErrPlayerNotFound
}

// LegacyHash produces a salted hash of phone in the old scheme
func (r *Resolver) LegacyHash(phone string) (string, error) {
	h, err := bcrypt.GenerateFromPassword([]byte(phone), r.cfg.LegacyCost)
	if err != nil {
		return "", err
	}
	return string(h), nil
}
