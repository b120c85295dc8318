package storage

import (
	"context"

	"github.com/mcoot/dicefunnel/internal/model"
)

// Storage defines the interface for data persistence
type Storage interface {
	// Player operations
	CreatePlayer(ctx context.Context, player *model.Player) error
	GetPlayer(ctx context.Context, id model.PlayerID) (*model.Player, error)
	GetPlayerByIdentity(ctx context.Context, identityHash string) (*model.Player, error)
	GetPlayerByCode(ctx context.Context, code string) (*model.Player, error)
	FindPlayersByName(ctx context.Context, name string) ([]*model.Player, error)
	// UpdatePlayer writes player only if the stored version equals
	// expectedVersion, otherwise it returns model.ErrVersionConflict.
	// On success player.Version is set to the new stored version.
	UpdatePlayer(ctx context.Context, player *model.Player, expectedVersion int64) error

	// Funnel event operations
	AppendEvent(ctx context.Context, event *model.FunnelEvent) error
	BackfillEvents(ctx context.Context, identity string, playerRef model.PlayerID, name string) (int, error)
	// QueryEvents returns the requested page sorted by timestamp descending,
	// plus the total number of matching events
	QueryEvents(ctx context.Context, filter model.EventFilter) ([]*model.FunnelEvent, int, error)

	// Session operations
	SaveSession(ctx context.Context, session *model.Session) error
	GetSession(ctx context.Context, token string) (*model.Session, error)
	// TakeSession atomically reads and deletes a session
	TakeSession(ctx context.Context, token string) (*model.Session, error)
	DeleteSession(ctx context.Context, token string) error

	// Customer tag mirror operations
	GetCustomerTags(ctx context.Context, customerID string) (*model.CustomerTagMirror, error)
	SaveCustomerTags(ctx context.Context, mirror *model.CustomerTagMirror) error

	// Ping checks that the backend is reachable
	Ping(ctx context.Context) error
}
