package postgres

import (
	"context"
	"database/sql"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"github.com/mcoot/dicefunnel/internal/dependencies/mocks"
	"github.com/mcoot/dicefunnel/internal/model"
)

// The suite runs against a real database and is skipped unless
// DICEFUNNEL_TEST_POSTGRES_DSN is set.
const dsnEnv = "DICEFUNNEL_TEST_POSTGRES_DSN"

type StorageSuite struct {
	suite.Suite
	clock   *mocks.MockClock
	storage *Storage
	ctx     context.Context
}

func TestStorageSuite(t *testing.T) {
	if os.Getenv(dsnEnv) == "" {
		t.Skipf("%s not set", dsnEnv)
	}
	suite.Run(t, new(StorageSuite))
}

func (s *StorageSuite) SetupTest() {
	s.ctx = context.Background()
	s.clock = mocks.NewMockClock(time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC))

	cfg := DefaultConfig()
	cfg.DSN = os.Getenv(dsnEnv)

	st, err := New(s.ctx, cfg, s.clock)
	s.Require().NoError(err)
	s.storage = st

	s.truncate(st.db)
}

func (s *StorageSuite) TearDownTest() {
	if s.storage != nil {
		_ = s.storage.Close()
	}
}

func (s *StorageSuite) truncate(db *sql.DB) {
	_, err := db.ExecContext(s.ctx, `TRUNCATE funnel_players, funnel_events, funnel_sessions, funnel_customer_tags`)
	s.Require().NoError(err)
}

func (s *StorageSuite) TestCreateAndLookupPlayer() {
	player := &model.Player{ID: "p1", IdentityHash: "h1", Name: "Asha", AssignedCode: "DICE100_9876543210"}
	s.Require().NoError(s.storage.CreatePlayer(s.ctx, player))
	s.Equal(int64(1), player.Version)

	byIdentity, err := s.storage.GetPlayerByIdentity(s.ctx, "h1")
	s.Require().NoError(err)
	s.Equal("Asha", byIdentity.Name)

	byCode, err := s.storage.GetPlayerByCode(s.ctx, "DICE100_9876543210")
	s.Require().NoError(err)
	s.Equal(player.ID, byCode.ID)

	err = s.storage.CreatePlayer(s.ctx, &model.Player{ID: "p2", IdentityHash: "h1", Name: "Other"})
	s.ErrorIs(err, model.ErrPlayerExists)
}

func (s *StorageSuite) TestUpdatePlayerVersioning() {
	player := &model.Player{ID: "p1", IdentityHash: "h1", Name: "Asha"}
	s.Require().NoError(s.storage.CreatePlayer(s.ctx, player))
	stale := player.Clone()

	player.RewardTier = 6
	s.Require().NoError(s.storage.UpdatePlayer(s.ctx, player, 1))
	s.Equal(int64(2), player.Version)

	err := s.storage.UpdatePlayer(s.ctx, stale, 1)
	s.ErrorIs(err, model.ErrVersionConflict)

	err = s.storage.UpdatePlayer(s.ctx, &model.Player{ID: "ghost"}, 1)
	s.ErrorIs(err, model.ErrPlayerNotFound)
}

func (s *StorageSuite) TestEventsQueryAndBackfill() {
	for i, stage := range []model.Stage{model.StageEntered, model.StageOtpSent, model.StageOtpVerified} {
		s.Require().NoError(s.storage.AppendEvent(s.ctx, &model.FunnelEvent{
			ID:        string(stage),
			Identity:  "9876543210",
			Stage:     stage,
			Timestamp: s.clock.Now().Add(time.Duration(i) * time.Minute),
		}))
	}

	events, total, err := s.storage.QueryEvents(s.ctx, model.EventFilter{Limit: 2, IdentitySubstring: "6543"})
	s.Require().NoError(err)
	s.Equal(3, total)
	s.Require().Len(events, 2)
	s.Equal(model.StageOtpVerified, events[0].Stage)

	n, err := s.storage.BackfillEvents(s.ctx, "9876543210", "p1", "Asha")
	s.Require().NoError(err)
	s.Equal(3, n)

	events, _, err = s.storage.QueryEvents(s.ctx, model.EventFilter{Stage: model.StageEntered})
	s.Require().NoError(err)
	s.Require().Len(events, 1)
	s.Equal(model.PlayerID("p1"), events[0].PlayerRef)
	s.Equal("Asha", events[0].Name)
}

func (s *StorageSuite) TestEventsSameMillisecondKeepAppendOrder() {
	for _, e := range []struct {
		id     string
		offset time.Duration
	}{{"c", 0}, {"a", 0}, {"b", 300 * time.Microsecond}} {
		s.Require().NoError(s.storage.AppendEvent(s.ctx, &model.FunnelEvent{
			ID:        e.id,
			Identity:  "9876543210",
			Stage:     model.StageEntered,
			Timestamp: s.clock.Now().Add(e.offset),
		}))
	}

	events, _, err := s.storage.QueryEvents(s.ctx, model.EventFilter{})
	s.Require().NoError(err)
	s.Require().Len(events, 3)
	s.Equal([]string{"b", "a", "c"}, []string{events[0].ID, events[1].ID, events[2].ID})
}

func (s *StorageSuite) TestSessions() {
	session := &model.Session{
		Token:     "tok",
		State:     model.SessionEntered,
		ExpiresAt: s.clock.Now().Add(30 * time.Minute),
	}
	s.Require().NoError(s.storage.SaveSession(s.ctx, session))

	_, err := s.storage.GetSession(s.ctx, "tok")
	s.Require().NoError(err)

	_, err = s.storage.TakeSession(s.ctx, "tok")
	s.Require().NoError(err)
	_, err = s.storage.TakeSession(s.ctx, "tok")
	s.ErrorIs(err, model.ErrSessionNotFound)

	s.Require().NoError(s.storage.SaveSession(s.ctx, session))
	s.clock.Advance(time.Hour)
	_, err = s.storage.GetSession(s.ctx, "tok")
	s.ErrorIs(err, model.ErrSessionNotFound)

	n, err := s.storage.DeleteExpiredSessions(s.ctx)
	s.Require().NoError(err)
	s.Equal(1, n)
}

func (s *StorageSuite) TestCustomerTags() {
	mirror := &model.CustomerTagMirror{
		CustomerID: "123",
		Tags:       []string{"credited-once", "vip"},
		Phone:      "9876543210",
		UpdatedAt:  s.clock.Now(),
	}
	s.Require().NoError(s.storage.SaveCustomerTags(s.ctx, mirror))

	got, err := s.storage.GetCustomerTags(s.ctx, "123")
	s.Require().NoError(err)
	s.Equal([]string{"credited-once", "vip"}, got.Tags)
	s.Equal("9876543210", got.Phone)
}
