package identity

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"log/slog"

	"golang.org/x/crypto/bcrypt"

	"github.com/mcoot/dicefunnel/internal/model"
	"github.com/mcoot/dicefunnel/internal/storage"
)

// Lookup is one strategy for finding the player that owns a phone number
type Lookup interface {
	Name() string
	// Find returns model.ErrPlayerNotFound on a miss
	Find(ctx context.Context, phone, name string) (*model.Player, error)
}

// Digester computes the keyed identity digest of a phone number
type Digester struct {
	key []byte
}

// NewDigester creates a Digester for the given secret key
func NewDigester(key string) *Digester {
	return &Digester{key: []byte(key)}
}

// Digest returns the hex HMAC-SHA256 of phone
func (d *Digester) Digest(phone string) string {
	mac := hmac.New(sha256.New, d.key)
	mac.Write([]byte(phone))
	return hex.EncodeToString(mac.Sum(nil))
}

// DigestLookup finds players by their keyed identity digest
type DigestLookup struct {
	storage  storage.Storage
	digester *Digester
}

// NewDigestLookup creates the primary lookup strategy
func NewDigestLookup(storage storage.Storage, digester *Digester) *DigestLookup {
	return &DigestLookup{storage: storage, digester: digester}
}

func (l *DigestLookup) Name() string { return "digest" }

func (l *DigestLookup) Find(ctx context.Context, phone, name string) (*model.Player, error) {
	return l.storage.GetPlayerByIdentity(ctx, l.digester.Digest(phone))
}

// LegacyLookup finds players created under the salted bcrypt scheme. Only
// players sharing the caller's name are compared, and a hit is upgraded in
// place with the keyed digest so the next lookup is served by DigestLookup.
type LegacyLookup struct {
	storage  storage.Storage
	digester *Digester
	logger   *slog.Logger
}

// NewLegacyLookup creates the fallback lookup strategy
func NewLegacyLookup(storage storage.Storage, digester *Digester, logger *slog.Logger) *LegacyLookup {
	return &LegacyLookup{
		storage:  storage,
		digester: digester,
		logger:   logger.With(slog.String("component", "identity-legacy")),
	}
}

func (l *LegacyLookup) Name() string { return "legacy" }

func (l *LegacyLookup) Find(ctx context.Context, phone, name string) (*model.Player, error) {
	if name == "" {
		return nil, model.ErrPlayerNotFound
	}
	candidates, err := l.storage.FindPlayersByName(ctx, name)
	if err != nil {
		return nil, err
	}

	for _, p := range candidates {
		if p.LegacyIdentityHash == "" {
			continue
		}
		if bcrypt.CompareHashAndPassword([]byte(p.LegacyIdentityHash), []byte(phone)) != nil {
			continue
		}
		return l.upgrade(ctx, p, l.digester.Digest(phone)), nil
	}
	return nil, model.ErrPlayerNotFound
}

// upgrade stores the digest on p. Failure to upgrade is logged; the match stands.
func (l *LegacyLookup) upgrade(ctx context.Context, p *model.Player, digest string) *model.Player {
	if p.IdentityHash == digest {
		return p
	}

	for attempt := 0; attempt < 2; attempt++ {
		p.IdentityHash = digest
		err := l.storage.UpdatePlayer(ctx, p, p.Version)
		if err == nil {
			l.logger.Info("upgraded legacy identity", slog.String("player_id", string(p.ID)))
			return p
		}
		if !errors.Is(err, model.ErrVersionConflict) {
			l.logger.Warn("legacy identity upgrade failed",
				slog.String("player_id", string(p.ID)),
				slog.String("error", err.Error()))
			return p
		}
		fresh, getErr := l.storage.GetPlayer(ctx, p.ID)
		if getErr != nil {
			return p
		}
		p = fresh
	}

	l.logger.Warn("legacy identity upgrade lost a race", slog.String("player_id", string(p.ID)))
	return p
}
