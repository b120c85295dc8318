package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"

	"github.com/mcoot/dicefunnel/internal/dependencies/clock"
	"github.com/mcoot/dicefunnel/internal/model"
	"github.com/mcoot/dicefunnel/internal/storage"
)

// uniqueViolation is the PostgreSQL SQLSTATE for unique_violation
const uniqueViolation = "23505"

// Storage is a PostgreSQL-backed implementation of the storage interface
type Storage struct {
	db    *sql.DB
	clock clock.Clock
}

// New opens a connection pool, verifies it and ensures the schema exists
func New(ctx context.Context, cfg Config, clk clock.Clock) (*Storage, error) {
	db, err := sql.Open("postgres", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := EnsureSchema(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ensure schema: %w", err)
	}

	return NewWithDB(db, clk), nil
}

// NewWithDB wraps an existing pool. The schema must already exist.
func NewWithDB(db *sql.DB, clk clock.Clock) *Storage {
	if clk == nil {
		clk = clock.New()
	}
	return &Storage{db: db, clock: clk}
}

// Close closes the connection pool
func (s *Storage) Close() error {
	return s.db.Close()
}

// Ensure Storage implements the interface
var _ storage.Storage = (*Storage)(nil)

func nullIfEmpty(v string) sql.NullString {
	return sql.NullString{String: v, Valid: v != ""}
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == uniqueViolation
}

// Player operations

func (s *Storage) CreatePlayer(ctx context.Context, player *model.Player) error {
	stored := player.Clone()
	stored.Version = 1
	data, err := json.Marshal(stored)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO funnel_players (id, identity_hash, name, assigned_code, version, data)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, string(stored.ID), nullIfEmpty(stored.IdentityHash), stored.Name, nullIfEmpty(stored.AssignedCode), stored.Version, data)
	if isUniqueViolation(err) {
		return model.ErrPlayerExists
	}
	if err != nil {
		return err
	}

	player.Version = stored.Version
	return nil
}

func (s *Storage) scanPlayer(row *sql.Row, notFound error) (*model.Player, error) {
	var data []byte
	if err := row.Scan(&data); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, notFound
		}
		return nil, err
	}
	var player model.Player
	if err := json.Unmarshal(data, &player); err != nil {
		return nil, err
	}
	return &player, nil
}

func (s *Storage) GetPlayer(ctx context.Context, id model.PlayerID) (*model.Player, error) {
	row := s.db.QueryRowContext(ctx, `SELECT data FROM funnel_players WHERE id = $1`, string(id))
	return s.scanPlayer(row, model.ErrPlayerNotFound)
}

func (s *Storage) GetPlayerByIdentity(ctx context.Context, identityHash string) (*model.Player, error) {
	if identityHash == "" {
		return nil, model.ErrPlayerNotFound
	}
	row := s.db.QueryRowContext(ctx, `SELECT data FROM funnel_players WHERE identity_hash = $1`, identityHash)
	return s.scanPlayer(row, model.ErrPlayerNotFound)
}

func (s *Storage) GetPlayerByCode(ctx context.Context, code string) (*model.Player, error) {
	if code == "" {
		return nil, model.ErrCodeNotFound
	}
	row := s.db.QueryRowContext(ctx, `SELECT data FROM funnel_players WHERE assigned_code = $1 LIMIT 1`, code)
	return s.scanPlayer(row, model.ErrCodeNotFound)
}

func (s *Storage) FindPlayersByName(ctx context.Context, name string) ([]*model.Player, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT data FROM funnel_players WHERE name = $1`, name)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	players := []*model.Player{}
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, err
		}
		var player model.Player
		if err := json.Unmarshal(data, &player); err != nil {
			continue // Skip invalid data
		}
		players = append(players, &player)
	}
	return players, rows.Err()
}

func (s *Storage) UpdatePlayer(ctx context.Context, player *model.Player, expectedVersion int64) error {
	next := player.Clone()
	next.Version = expectedVersion + 1
	data, err := json.Marshal(next)
	if err != nil {
		return err
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE funnel_players
		SET identity_hash = $2, name = $3, assigned_code = $4, version = $5, data = $6
		WHERE id = $1 AND version = $7
	`, string(next.ID), nullIfEmpty(next.IdentityHash), next.Name, nullIfEmpty(next.AssignedCode), next.Version, data, expectedVersion)
	if isUniqueViolation(err) {
		return model.ErrPlayerExists
	}
	if err != nil {
		return err
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		var exists bool
		err := s.db.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM funnel_players WHERE id = $1)`, string(next.ID)).Scan(&exists)
		if err != nil {
			return err
		}
		if !exists {
			return model.ErrPlayerNotFound
		}
		return model.ErrVersionConflict
	}

	player.Version = next.Version
	return nil
}

// Funnel event operations

func (s *Storage) AppendEvent(ctx context.Context, event *model.FunnelEvent) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO funnel_events (id, identity, name, stage, ts, player_ref, reward_code)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, event.ID, event.Identity, event.Name, string(event.Stage), event.Timestamp, string(event.PlayerRef), event.RewardCode)
	return err
}

func (s *Storage) BackfillEvents(ctx context.Context, identity string, playerRef model.PlayerID, name string) (int, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE funnel_events
		SET player_ref = $2, name = CASE WHEN $3::text = '' THEN name ELSE $3::text END
		WHERE identity = $1
	`, identity, string(playerRef), name)
	if err != nil {
		return 0, err
	}
	affected, err := res.RowsAffected()
	return int(affected), err
}

func (s *Storage) QueryEvents(ctx context.Context, filter model.EventFilter) ([]*model.FunnelEvent, int, error) {
	filter = filter.Normalize()

	var conds []string
	var args []any
	add := func(cond string, arg any) {
		args = append(args, arg)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}
	if filter.Stage != "" {
		add("stage = $%d", string(filter.Stage))
	}
	if !filter.From.IsZero() {
		add("ts >= $%d", filter.From)
	}
	if !filter.To.IsZero() {
		add("ts <= $%d", filter.To)
	}
	if filter.IdentitySubstring != "" {
		add("strpos(lower(identity), lower($%d::text)) > 0", filter.IdentitySubstring)
	}
	where := ""
	if len(conds) > 0 {
		where = "WHERE " + strings.Join(conds, " AND ")
	}

	var total int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM funnel_events "+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	pageArgs := append(append([]any{}, args...), filter.Limit, filter.Offset())
	query := fmt.Sprintf(`
		SELECT id, identity, name, stage, ts, player_ref, reward_code
		FROM funnel_events %s
		ORDER BY ts DESC, seq DESC
		LIMIT $%d OFFSET $%d
	`, where, len(args)+1, len(args)+2)

	rows, err := s.db.QueryContext(ctx, query, pageArgs...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	events := []*model.FunnelEvent{}
	for rows.Next() {
		var e model.FunnelEvent
		var stage, playerRef string
		if err := rows.Scan(&e.ID, &e.Identity, &e.Name, &stage, &e.Timestamp, &playerRef, &e.RewardCode); err != nil {
			return nil, 0, err
		}
		e.Stage = model.Stage(stage)
		e.PlayerRef = model.PlayerID(playerRef)
		e.Timestamp = e.Timestamp.UTC()
		events = append(events, &e)
	}
	return events, total, rows.Err()
}

// Session operations

func (s *Storage) SaveSession(ctx context.Context, session *model.Session) error {
	data, err := json.Marshal(session)
	if err != nil {
		return err
	}
	var expiresAt sql.NullTime
	if !session.ExpiresAt.IsZero() {
		expiresAt = sql.NullTime{Time: session.ExpiresAt, Valid: true}
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO funnel_sessions (token, data, expires_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (token) DO UPDATE SET data = EXCLUDED.data, expires_at = EXCLUDED.expires_at
	`, session.Token, data, expiresAt)
	return err
}

func (s *Storage) GetSession(ctx context.Context, token string) (*model.Session, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT data FROM funnel_sessions
		WHERE token = $1 AND (expires_at IS NULL OR expires_at > $2)
	`, token, s.clock.Now())
	return scanSession(row)
}

func (s *Storage) TakeSession(ctx context.Context, token string) (*model.Session, error) {
	row := s.db.QueryRowContext(ctx, `
		DELETE FROM funnel_sessions
		WHERE token = $1 AND (expires_at IS NULL OR expires_at > $2)
		RETURNING data
	`, token, s.clock.Now())
	return scanSession(row)
}

func scanSession(row *sql.Row) (*model.Session, error) {
	var data []byte
	if err := row.Scan(&data); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, model.ErrSessionNotFound
		}
		return nil, err
	}
	var session model.Session
	if err := json.Unmarshal(data, &session); err != nil {
		return nil, err
	}
	return &session, nil
}

func (s *Storage) DeleteSession(ctx context.Context, token string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM funnel_sessions WHERE token = $1`, token)
	return err
}

// DeleteExpiredSessions removes sessions whose expiry has passed
func (s *Storage) DeleteExpiredSessions(ctx context.Context) (int, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM funnel_sessions WHERE expires_at <= $1`, s.clock.Now())
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	return int(n), err
}

// Customer tag mirror operations

func (s *Storage) GetCustomerTags(ctx context.Context, customerID string) (*model.CustomerTagMirror, error) {
	mirror := model.CustomerTagMirror{CustomerID: customerID}
	err := s.db.QueryRowContext(ctx, `
		SELECT tags, phone, updated_at FROM funnel_customer_tags WHERE customer_id = $1
	`, customerID).Scan(pq.Array(&mirror.Tags), &mirror.Phone, &mirror.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, model.ErrCustomerNotFound
		}
		return nil, err
	}
	mirror.UpdatedAt = mirror.UpdatedAt.UTC()
	return &mirror, nil
}

func (s *Storage) SaveCustomerTags(ctx context.Context, mirror *model.CustomerTagMirror) error {
	tags := mirror.Tags
	if tags == nil {
		tags = []string{}
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO funnel_customer_tags (customer_id, tags, phone, updated_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (customer_id) DO UPDATE
		SET tags = EXCLUDED.tags, phone = EXCLUDED.phone, updated_at = EXCLUDED.updated_at
	`, mirror.CustomerID, pq.Array(tags), mirror.Phone, mirror.UpdatedAt)
	return err
}

func (s *Storage) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}
