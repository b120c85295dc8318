package redis

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/mcoot/dicefunnel/internal/dependencies/clock"
	"github.com/mcoot/dicefunnel/internal/model"
	"github.com/mcoot/dicefunnel/internal/storage"
)

// Storage is a Redis-backed implementation of the storage interface
type Storage struct {
	client *redis.Client
	cfg    Config
	clock  clock.Clock
}

// New creates a new Redis storage instance
func New(cfg Config, clk clock.Clock) (*Storage, error) {
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, err
	}

	opts.PoolSize = cfg.PoolSize
	opts.MinIdleConns = cfg.MinIdleConns

	client := redis.NewClient(opts)

	// Verify connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, err
	}

	return NewWithClient(client, cfg, clk), nil
}

// NewWithClient creates a Redis storage with an existing client (for testing)
func NewWithClient(client *redis.Client, cfg Config, clk clock.Clock) *Storage {
	if clk == nil {
		clk = clock.New()
	}
	return &Storage{
		client: client,
		cfg:    cfg,
		clock:  clk,
	}
}

// Close closes the Redis connection
func (s *Storage) Close() error {
	return s.client.Close()
}

// Ensure Storage implements the interface
var _ storage.Storage = (*Storage)(nil)

// Player operations

func (s *Storage) CreatePlayer(ctx context.Context, player *model.Player) error {
	if player.IdentityHash != "" {
		// Claim the identity first so concurrent creates for one identity collide
		ok, err := s.client.SetNX(ctx, identityIndexKey(player.IdentityHash), string(player.ID), s.cfg.PlayerTTL).Result()
		if err != nil {
			return err
		}
		if !ok {
			return model.ErrPlayerExists
		}
	}

	stored := player.Clone()
	stored.Version = 1
	data, err := json.Marshal(stored)
	if err != nil {
		return err
	}

	ok, err := s.client.SetNX(ctx, playerKey(player.ID), data, s.cfg.PlayerTTL).Result()
	if err != nil {
		return err
	}
	if !ok {
		if player.IdentityHash != "" {
			s.client.Del(ctx, identityIndexKey(player.IdentityHash))
		}
		return model.ErrPlayerExists
	}

	pipe := s.client.Pipeline()
	if stored.AssignedCode != "" {
		pipe.Set(ctx, codeIndexKey(stored.AssignedCode), string(stored.ID), s.cfg.PlayerTTL)
	}
	pipe.SAdd(ctx, nameIndexKey(stored.Name), string(stored.ID))
	if _, err := pipe.Exec(ctx); err != nil {
		return err
	}

	player.Version = stored.Version
	return nil
}

func (s *Storage) GetPlayer(ctx context.Context, id model.PlayerID) (*model.Player, error) {
	data, err := s.client.Get(ctx, playerKey(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, model.ErrPlayerNotFound
		}
		return nil, err
	}

	var player model.Player
	if err := json.Unmarshal(data, &player); err != nil {
		return nil, err
	}
	return &player, nil
}

func (s *Storage) GetPlayerByIdentity(ctx context.Context, identityHash string) (*model.Player, error) {
	if identityHash == "" {
		return nil, model.ErrPlayerNotFound
	}
	playerID, err := s.client.Get(ctx, identityIndexKey(identityHash)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, model.ErrPlayerNotFound
		}
		return nil, err
	}
	return s.GetPlayer(ctx, model.PlayerID(playerID))
}

func (s *Storage) GetPlayerByCode(ctx context.Context, code string) (*model.Player, error) {
	if code == "" {
		return nil, model.ErrCodeNotFound
	}
	playerID, err := s.client.Get(ctx, codeIndexKey(code)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, model.ErrCodeNotFound
		}
		return nil, err
	}
	player, err := s.GetPlayer(ctx, model.PlayerID(playerID))
	if errors.Is(err, model.ErrPlayerNotFound) {
		return nil, model.ErrCodeNotFound
	}
	return player, err
}

func (s *Storage) FindPlayersByName(ctx context.Context, name string) ([]*model.Player, error) {
	ids, err := s.client.SMembers(ctx, nameIndexKey(name)).Result()
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return []*model.Player{}, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = playerKey(model.PlayerID(id))
	}
	values, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, err
	}

	players := make([]*model.Player, 0, len(values))
	for _, val := range values {
		if val == nil {
			continue // Player may have expired
		}
		var player model.Player
		if err := json.Unmarshal([]byte(val.(string)), &player); err != nil {
			continue // Skip invalid data
		}
		players = append(players, &player)
	}
	return players, nil
}

func (s *Storage) UpdatePlayer(ctx context.Context, player *model.Player, expectedVersion int64) error {
	key := playerKey(player.ID)
	next := player.Clone()
	next.Version = expectedVersion + 1
	data, err := json.Marshal(next)
	if err != nil {
		return err
	}

	watched := []string{key}
	if player.IdentityHash != "" {
		watched = append(watched, identityIndexKey(player.IdentityHash))
	}

	err = s.client.Watch(ctx, func(tx *redis.Tx) error {
		raw, err := tx.Get(ctx, key).Bytes()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				return model.ErrPlayerNotFound
			}
			return err
		}
		var current model.Player
		if err := json.Unmarshal(raw, &current); err != nil {
			return err
		}
		if current.Version != expectedVersion {
			return model.ErrVersionConflict
		}

		identityMoved := next.IdentityHash != current.IdentityHash
		if identityMoved && next.IdentityHash != "" {
			owner, err := tx.Get(ctx, identityIndexKey(next.IdentityHash)).Result()
			if err != nil && !errors.Is(err, redis.Nil) {
				return err
			}
			if err == nil && owner != string(next.ID) {
				return model.ErrPlayerExists
			}
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, data, s.cfg.PlayerTTL)
			if identityMoved {
				if current.IdentityHash != "" {
					pipe.Del(ctx, identityIndexKey(current.IdentityHash))
				}
				if next.IdentityHash != "" {
					pipe.Set(ctx, identityIndexKey(next.IdentityHash), string(next.ID), s.cfg.PlayerTTL)
				}
			}
			if next.AssignedCode != current.AssignedCode {
				if current.AssignedCode != "" {
					pipe.Del(ctx, codeIndexKey(current.AssignedCode))
				}
				if next.AssignedCode != "" {
					pipe.Set(ctx, codeIndexKey(next.AssignedCode), string(next.ID), s.cfg.PlayerTTL)
				}
			}
			if next.Name != current.Name {
				pipe.SRem(ctx, nameIndexKey(current.Name), string(next.ID))
				pipe.SAdd(ctx, nameIndexKey(next.Name), string(next.ID))
			}
			return nil
		})
		return err
	}, watched...)

	if errors.Is(err, redis.TxFailedErr) {
		return model.ErrVersionConflict
	}
	if err != nil {
		return err
	}

	player.Version = next.Version
	return nil
}

// Funnel event operations

func eventScore(t time.Time) float64 {
	return float64(t.UnixMilli())
}

func (s *Storage) AppendEvent(ctx context.Context, event *model.FunnelEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}

	seq, err := s.client.Incr(ctx, eventSeqKey()).Result()
	if err != nil {
		return err
	}
	member := redis.Z{Score: eventScore(event.Timestamp), Member: eventMember(seq, event.ID)}

	pipe := s.client.TxPipeline()
	pipe.Set(ctx, eventKey(event.ID), data, s.cfg.EventTTL)
	pipe.ZAdd(ctx, eventsTimelineKey(), member)
	pipe.ZAdd(ctx, eventsByStageKey(event.Stage), member)
	pipe.SAdd(ctx, eventsByIdentityKey(event.Identity), event.ID)
	_, err = pipe.Exec(ctx)
	return err
}

func (s *Storage) BackfillEvents(ctx context.Context, identity string, playerRef model.PlayerID, name string) (int, error) {
	ids, err := s.client.SMembers(ctx, eventsByIdentityKey(identity)).Result()
	if err != nil {
		return 0, err
	}
	events, err := s.loadEvents(ctx, ids)
	if err != nil {
		return 0, err
	}
	if len(events) == 0 {
		return 0, nil
	}

	pipe := s.client.Pipeline()
	for _, e := range events {
		e.PlayerRef = playerRef
		if name != "" {
			e.Name = name
		}
		data, err := json.Marshal(e)
		if err != nil {
			return 0, err
		}
		pipe.Set(ctx, eventKey(e.ID), data, redis.KeepTTL)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, err
	}
	return len(events), nil
}

func (s *Storage) QueryEvents(ctx context.Context, filter model.EventFilter) ([]*model.FunnelEvent, int, error) {
	filter = filter.Normalize()

	key := eventsTimelineKey()
	if filter.Stage != "" {
		key = eventsByStageKey(filter.Stage)
	}
	rng := &redis.ZRangeBy{Min: "-inf", Max: "+inf"}
	if !filter.From.IsZero() {
		rng.Min = strconv.FormatInt(filter.From.UnixMilli(), 10)
	}
	if !filter.To.IsZero() {
		rng.Max = strconv.FormatInt(filter.To.UnixMilli(), 10)
	}

	if filter.IdentitySubstring == "" {
		total, err := s.client.ZCount(ctx, key, rng.Min, rng.Max).Result()
		if err != nil {
			return nil, 0, err
		}
		rng.Offset = int64(filter.Offset())
		rng.Count = int64(filter.Limit)
		ids, err := s.client.ZRevRangeByScore(ctx, key, rng).Result()
		if err != nil {
			return nil, 0, err
		}
		events, err := s.loadEvents(ctx, ids)
		return events, int(total), err
	}

	// Substring matching cannot be expressed as a score range, so filter the
	// whole range and page in memory
	ids, err := s.client.ZRevRangeByScore(ctx, key, rng).Result()
	if err != nil {
		return nil, 0, err
	}
	all, err := s.loadEvents(ctx, ids)
	if err != nil {
		return nil, 0, err
	}
	matched := make([]*model.FunnelEvent, 0, len(all))
	for _, e := range all {
		if filter.Matches(e) {
			matched = append(matched, e)
		}
	}
	total := len(matched)
	start := filter.Offset()
	if start >= total {
		return []*model.FunnelEvent{}, total, nil
	}
	end := start + filter.Limit
	if end > total {
		end = total
	}
	return matched[start:end], total, nil
}

// loadEvents fetches events by id or ZSET member, preserving order and skipping
// expired entries
func (s *Storage) loadEvents(ctx context.Context, ids []string) ([]*model.FunnelEvent, error) {
	if len(ids) == 0 {
		return []*model.FunnelEvent{}, nil
	}
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = eventKey(eventIDFromMember(id))
	}
	values, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, err
	}

	events := make([]*model.FunnelEvent, 0, len(values))
	for _, val := range values {
		if val == nil {
			continue
		}
		var e model.FunnelEvent
		if err := json.Unmarshal([]byte(val.(string)), &e); err != nil {
			continue
		}
		events = append(events, &e)
	}
	return events, nil
}

// Session operations

func (s *Storage) SaveSession(ctx context.Context, session *model.Session) error {
	ttl := session.ExpiresAt.Sub(s.clock.Now())
	if session.ExpiresAt.IsZero() {
		ttl = 0
	} else if ttl <= 0 {
		return s.client.Del(ctx, sessionKey(session.Token)).Err()
	}

	data, err := json.Marshal(session)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, sessionKey(session.Token), data, ttl).Err()
}

func (s *Storage) GetSession(ctx context.Context, token string) (*model.Session, error) {
	data, err := s.client.Get(ctx, sessionKey(token)).Bytes()
	return s.decodeSession(data, err)
}

func (s *Storage) TakeSession(ctx context.Context, token string) (*model.Session, error) {
	data, err := s.client.GetDel(ctx, sessionKey(token)).Bytes()
	return s.decodeSession(data, err)
}

func (s *Storage) decodeSession(data []byte, err error) (*model.Session, error) {
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, model.ErrSessionNotFound
		}
		return nil, err
	}

	var session model.Session
	if err := json.Unmarshal(data, &session); err != nil {
		return nil, err
	}
	if !session.ExpiresAt.IsZero() && !s.clock.Now().Before(session.ExpiresAt) {
		return nil, model.ErrSessionNotFound
	}
	return &session, nil
}

func (s *Storage) DeleteSession(ctx context.Context, token string) error {
	return s.client.Del(ctx, sessionKey(token)).Err()
}

// Customer tag mirror operations

func (s *Storage) GetCustomerTags(ctx context.Context, customerID string) (*model.CustomerTagMirror, error) {
	data, err := s.client.Get(ctx, customerTagsKey(customerID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, model.ErrCustomerNotFound
		}
		return nil, err
	}

	var mirror model.CustomerTagMirror
	if err := json.Unmarshal(data, &mirror); err != nil {
		return nil, err
	}
	return &mirror, nil
}

func (s *Storage) SaveCustomerTags(ctx context.Context, mirror *model.CustomerTagMirror) error {
	data, err := json.Marshal(mirror)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, customerTagsKey(mirror.CustomerID), data, s.cfg.TagMirrorTTL).Err()
}

func (s *Storage) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}
