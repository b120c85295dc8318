package dispatch

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"github.com/mcoot/dicefunnel/internal/testutil"
)

type DispatcherSuite struct {
	suite.Suite
	dispatcher *Dispatcher
}

func TestDispatcherSuite(t *testing.T) {
	suite.Run(t, new(DispatcherSuite))
}

func (s *DispatcherSuite) SetupTest() {
	s.dispatcher = New(Config{TaskTimeout: time.Second}, testutil.NopLogger())
}

func (s *DispatcherSuite) TestGoRunsInBackground() {
	var ran atomic.Int32
	for i := 0; i < 5; i++ {
		s.dispatcher.Go("count", func(ctx context.Context) error {
			ran.Add(1)
			return nil
		})
	}
	s.dispatcher.Wait()
	s.Equal(int32(5), ran.Load())
}

func (s *DispatcherSuite) TestDoReturnsTaskError() {
	boom := errors.New("boom")
	err := s.dispatcher.Do(context.Background(), "fail", func(ctx context.Context) error {
		return boom
	})
	s.ErrorIs(err, boom)
}

func (s *DispatcherSuite) TestPanicIsRecovered() {
	err := s.dispatcher.Do(context.Background(), "panic", func(ctx context.Context) error {
		panic("kaboom")
	})
	s.Require().Error(err)
	s.Contains(err.Error(), "kaboom")

	s.NotPanics(func() {
		s.dispatcher.Go("panic", func(ctx context.Context) error {
			panic("kaboom")
		})
		s.dispatcher.Wait()
	})
}

func (s *DispatcherSuite) TestTaskContextHasTimeout() {
	d := New(Config{TaskTimeout: 10 * time.Millisecond}, testutil.NopLogger())
	err := d.Do(context.Background(), "slow", func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})
	s.ErrorIs(err, context.DeadlineExceeded)
}

func (s *DispatcherSuite) TestWaitTimeout() {
	release := make(chan struct{})
	s.dispatcher.Go("blocked", func(ctx context.Context) error {
		<-release
		return nil
	})
	s.False(s.dispatcher.WaitTimeout(10 * time.Millisecond))
	close(release)
	s.True(s.dispatcher.WaitTimeout(time.Second))
}
