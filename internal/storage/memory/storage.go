package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/mcoot/dicefunnel/internal/dependencies/clock"
	"github.com/mcoot/dicefunnel/internal/model"
	"github.com/mcoot/dicefunnel/internal/storage"
)

// Storage is an in-memory implementation of the storage interface
type Storage struct {
	mu    sync.RWMutex
	clock clock.Clock

	players       map[model.PlayerID]*model.Player
	identityIndex map[string]model.PlayerID
	codeIndex     map[string]model.PlayerID
	events        []*model.FunnelEvent
	sessions      map[string]*model.Session
	customerTags  map[string]*model.CustomerTagMirror
}

// New creates a new in-memory storage instance. Session expiry is judged
// against clk so tests can advance time.
func New(clk clock.Clock) *Storage {
	if clk == nil {
		clk = clock.New()
	}
	return &Storage{
		clock:         clk,
		players:       make(map[model.PlayerID]*model.Player),
		identityIndex: make(map[string]model.PlayerID),
		codeIndex:     make(map[string]model.PlayerID),
		sessions:      make(map[string]*model.Session),
		customerTags:  make(map[string]*model.CustomerTagMirror),
	}
}

// Ensure Storage implements the interface
var _ storage.Storage = (*Storage)(nil)

// Player operations

func (s *Storage) CreatePlayer(ctx context.Context, player *model.Player) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.identityIndex[player.IdentityHash]; ok && player.IdentityHash != "" {
		return model.ErrPlayerExists
	}
	if _, ok := s.players[player.ID]; ok {
		return model.ErrPlayerExists
	}
	player.Version = 1
	s.putPlayer(player.Clone(), nil)
	return nil
}

func (s *Storage) GetPlayer(ctx context.Context, id model.PlayerID) (*model.Player, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	player, ok := s.players[id]
	if !ok {
		return nil, model.ErrPlayerNotFound
	}
	return player.Clone(), nil
}

func (s *Storage) GetPlayerByIdentity(ctx context.Context, identityHash string) (*model.Player, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.identityIndex[identityHash]
	if !ok || identityHash == "" {
		return nil, model.ErrPlayerNotFound
	}
	return s.players[id].Clone(), nil
}

func (s *Storage) GetPlayerByCode(ctx context.Context, code string) (*model.Player, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.codeIndex[code]
	if !ok || code == "" {
		return nil, model.ErrCodeNotFound
	}
	return s.players[id].Clone(), nil
}

func (s *Storage) FindPlayersByName(ctx context.Context, name string) ([]*model.Player, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var players []*model.Player
	for _, p := range s.players {
		if p.Name == name {
			players = append(players, p.Clone())
		}
	}
	return players, nil
}

func (s *Storage) UpdatePlayer(ctx context.Context, player *model.Player, expectedVersion int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.players[player.ID]
	if !ok {
		return model.ErrPlayerNotFound
	}
	if current.Version != expectedVersion {
		return model.ErrVersionConflict
	}
	if player.IdentityHash != "" && player.IdentityHash != current.IdentityHash {
		if owner, taken := s.identityIndex[player.IdentityHash]; taken && owner != player.ID {
			return model.ErrPlayerExists
		}
	}
	player.Version = expectedVersion + 1
	s.putPlayer(player.Clone(), current)
	return nil
}

// putPlayer stores p and moves its index entries off previous. Caller holds the lock.
func (s *Storage) putPlayer(p, previous *model.Player) {
	if previous != nil {
		if previous.IdentityHash != p.IdentityHash {
			delete(s.identityIndex, previous.IdentityHash)
		}
		if previous.AssignedCode != p.AssignedCode {
			delete(s.codeIndex, previous.AssignedCode)
		}
	}
	s.players[p.ID] = p
	if p.IdentityHash != "" {
		s.identityIndex[p.IdentityHash] = p.ID
	}
	if p.AssignedCode != "" {
		s.codeIndex[p.AssignedCode] = p.ID
	}
}

// Funnel event operations

func (s *Storage) AppendEvent(ctx context.Context, event *model.FunnelEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := *event
	s.events = append(s.events, &e)
	return nil
}

func (s *Storage) BackfillEvents(ctx context.Context, identity string, playerRef model.PlayerID, name string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	updated := 0
	for _, e := range s.events {
		if e.Identity != identity {
			continue
		}
		e.PlayerRef = playerRef
		if name != "" {
			e.Name = name
		}
		updated++
	}
	return updated, nil
}

func (s *Storage) QueryEvents(ctx context.Context, filter model.EventFilter) ([]*model.FunnelEvent, int, error) {
	filter = filter.Normalize()

	s.mu.RLock()
	// Newest append first so equal timestamps keep reverse append order
	var matched []*model.FunnelEvent
	for i := len(s.events) - 1; i >= 0; i-- {
		if e := s.events[i]; filter.Matches(e) {
			c := *e
			matched = append(matched, &c)
		}
	}
	s.mu.RUnlock()

	sort.SliceStable(matched, func(i, j int) bool {
		return matched[i].Timestamp.After(matched[j].Timestamp)
	})

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

// Session operations

func (s *Storage) SaveSession(ctx context.Context, session *model.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := cloneSession(session)
	s.sessions[session.Token] = c
	return nil
}

func (s *Storage) GetSession(ctx context.Context, token string) (*model.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	session, err := s.liveSession(token)
	if err != nil {
		return nil, err
	}
	return cloneSession(session), nil
}

func (s *Storage) TakeSession(ctx context.Context, token string) (*model.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	session, err := s.liveSession(token)
	if err != nil {
		return nil, err
	}
	delete(s.sessions, token)
	return session, nil
}

func (s *Storage) DeleteSession(ctx context.Context, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, token)
	return nil
}

// liveSession returns the session if present and unexpired, evicting it
// otherwise. Caller holds the write lock.
func (s *Storage) liveSession(token string) (*model.Session, error) {
	session, ok := s.sessions[token]
	if !ok {
		return nil, model.ErrSessionNotFound
	}
	if !session.ExpiresAt.IsZero() && !s.clock.Now().Before(session.ExpiresAt) {
		delete(s.sessions, token)
		return nil, model.ErrSessionNotFound
	}
	return session, nil
}

func cloneSession(session *model.Session) *model.Session {
	c := *session
	if session.Otp != nil {
		otp := *session.Otp
		c.Otp = &otp
	}
	if session.Verification != nil {
		v := *session.Verification
		c.Verification = &v
	}
	return &c
}

// Customer tag mirror operations

func (s *Storage) GetCustomerTags(ctx context.Context, customerID string) (*model.CustomerTagMirror, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.customerTags[customerID]
	if !ok {
		return nil, model.ErrCustomerNotFound
	}
	c := *m
	c.Tags = append([]string(nil), m.Tags...)
	return &c, nil
}

func (s *Storage) SaveCustomerTags(ctx context.Context, mirror *model.CustomerTagMirror) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := *mirror
	c.Tags = append([]string(nil), mirror.Tags...)
	s.customerTags[mirror.CustomerID] = &c
	return nil
}

func (s *Storage) Ping(ctx context.Context) error {
	return nil
}

// SessionCount returns the number of stored sessions, including expired ones
// not yet evicted
func (s *Storage) SessionCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// EvictExpiredSessions removes expired sessions (call periodically)
func (s *Storage) EvictExpiredSessions(now time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	removed := 0
	for token, session := range s.sessions {
		if !session.ExpiresAt.IsZero() && !now.Before(session.ExpiresAt) {
			delete(s.sessions, token)
			removed++
		}
	}
	return removed
}
