package otp

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"github.com/mcoot/dicefunnel/internal/dependencies/mocks"
	"github.com/mcoot/dicefunnel/internal/model"
	"github.com/mcoot/dicefunnel/internal/services/dispatch"
	"github.com/mcoot/dicefunnel/internal/services/funnel"
	"github.com/mcoot/dicefunnel/internal/storage/memory"
	"github.com/mcoot/dicefunnel/internal/testutil"
)

type fakeSender struct {
	mu       sync.Mutex
	messages []string
	err      error
}

func (f *fakeSender) Send(ctx context.Context, phone, message string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.messages = append(f.messages, phone+": "+message)
	return f.err
}

type ServiceSuite struct {
	suite.Suite
	storage    *memory.Storage
	clock      *mocks.MockClock
	random     *mocks.MockRandom
	sender     *fakeSender
	dispatcher *dispatch.Dispatcher
	events     *funnel.Log
	service    *Service
	ctx        context.Context
}

func TestServiceSuite(t *testing.T) {
	suite.Run(t, new(ServiceSuite))
}

func (s *ServiceSuite) SetupTest() {
	s.clock = mocks.NewMockClock(time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC))
	s.storage = memory.New(s.clock)
	s.random = mocks.NewMockRandom()
	s.sender = &fakeSender{}
	s.dispatcher = dispatch.New(dispatch.DefaultConfig(), testutil.NopLogger())
	s.events = funnel.New(s.storage, s.clock, nil, testutil.NopLogger())
	s.service = New(s.storage, s.clock, s.random, s.sender, s.dispatcher, s.events, DefaultConfig(), testutil.NopLogger())
	s.ctx = context.Background()
}

func (s *ServiceSuite) newSession() *model.Session {
	session := &model.Session{
		Token:     "tok",
		State:     model.SessionEntered,
		Candidate: model.Candidate{Name: "Asha", Phone: "9876543210"},
		CreatedAt: s.clock.Now(),
		ExpiresAt: s.clock.Now().Add(time.Hour),
	}
	s.Require().NoError(s.storage.SaveSession(s.ctx, session))
	return session
}

func (s *ServiceSuite) issue(code string) {
	s.random.QueueDigits(code)
	got, err := s.service.Issue(s.ctx, s.newSession())
	s.Require().NoError(err)
	s.Require().Equal(code, got)
}

func (s *ServiceSuite) stageCount(stage model.Stage) int {
	counts, err := s.events.Stats(s.ctx, time.Time{}, time.Time{})
	s.Require().NoError(err)
	return counts[stage]
}

// Issue tests

func (s *ServiceSuite) TestIssueStoresCodeAndSendsSMS() {
	s.issue("4821")
	s.dispatcher.Wait()

	session, err := s.storage.GetSession(s.ctx, "tok")
	s.Require().NoError(err)
	s.Equal(model.SessionOtpIssued, session.State)
	s.Equal("4821", session.Otp.Code)
	s.Equal(s.clock.Now(), session.Otp.IssuedAt)

	s.Require().Len(s.sender.messages, 1)
	s.Contains(s.sender.messages[0], "9876543210: Your OTP is 4821")
	s.Equal(1, s.stageCount(model.StageOtpSent))
}

func (s *ServiceSuite) TestIssueDefaultCodeIsFourDigits() {
	s.random.QueueIntn(0)
	code, err := s.service.Issue(s.ctx, s.newSession())
	s.Require().NoError(err)
	s.Equal("1000", code)
}

func (s *ServiceSuite) TestIssueSucceedsWhenSMSFails() {
	s.sender.err = errors.New("gateway down")
	s.random.QueueDigits("4821")

	_, err := s.service.Issue(s.ctx, s.newSession())
	s.dispatcher.Wait()
	s.NoError(err)
}

// Verify tests

func (s *ServiceSuite) TestVerifySucceedsOnce() {
	s.issue("4821")
	s.clock.Advance(2 * time.Minute)

	session, err := s.service.Verify(s.ctx, "tok", "4821")
	s.Require().NoError(err)
	s.True(session.IsVerified())
	s.Nil(session.Otp)
	s.Equal(s.clock.Now(), session.Verification.EnteredAt)
	s.Equal(1, s.stageCount(model.StageOtpVerified))

	_, err = s.service.Verify(s.ctx, "tok", "4821")
	s.ErrorIs(err, model.ErrOtpMismatch)
	s.Equal(1, s.stageCount(model.StageOtpVerified))
}

func (s *ServiceSuite) TestVerifyMismatchAllowsRetry() {
	s.issue("4821")

	_, err := s.service.Verify(s.ctx, "tok", "0000")
	s.ErrorIs(err, model.ErrOtpMismatch)

	_, err = s.service.Verify(s.ctx, "tok", "4821")
	s.NoError(err)
}

func (s *ServiceSuite) TestVerifyAtExactlyValidityStillSucceeds() {
	s.issue("4821")
	s.clock.Advance(10 * time.Minute)

	_, err := s.service.Verify(s.ctx, "tok", "4821")
	s.NoError(err)
}

func (s *ServiceSuite) TestVerifyAfterValidityExpires() {
	s.issue("4821")
	s.clock.Advance(10*time.Minute + time.Second)

	_, err := s.service.Verify(s.ctx, "tok", "4821")
	s.ErrorIs(err, model.ErrOtpExpired)

	session, err := s.storage.GetSession(s.ctx, "tok")
	s.Require().NoError(err)
	s.Equal(model.SessionOtpExpired, session.State)
	s.Nil(session.Otp)

	// Stays expired regardless of code
	_, err = s.service.Verify(s.ctx, "tok", "4821")
	s.ErrorIs(err, model.ErrOtpExpired)
}

func (s *ServiceSuite) TestVerifyWithoutSession() {
	_, err := s.service.Verify(s.ctx, "missing", "4821")
	s.ErrorIs(err, model.ErrSessionExpired)
}

func (s *ServiceSuite) TestVerifyBeforeIssue() {
	s.newSession()
	_, err := s.service.Verify(s.ctx, "tok", "4821")
	s.ErrorIs(err, model.ErrSessionExpired)
}
