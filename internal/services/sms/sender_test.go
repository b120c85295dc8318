package sms

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/stretchr/testify/suite"

	"github.com/mcoot/dicefunnel/internal/model"
	"github.com/mcoot/dicefunnel/internal/testutil"
)

type SenderSuite struct {
	suite.Suite
	server   *httptest.Server
	status   int
	received url.Values
}

func TestSenderSuite(t *testing.T) {
	suite.Run(t, new(SenderSuite))
}

func (s *SenderSuite) SetupTest() {
	s.status = http.StatusOK
	s.received = nil
	s.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.received = r.URL.Query()
		w.WriteHeader(s.status)
		_, _ = w.Write([]byte(`{"ErrorCode":"000"}`))
	}))
}

func (s *SenderSuite) TearDownTest() {
	s.server.Close()
}

func (s *SenderSuite) newSender() *GatewaySender {
	cfg := DefaultConfig()
	cfg.Endpoint = s.server.URL + "/api/mt/SendSMS"
	cfg.User = "user"
	cfg.Password = "secret"
	cfg.SenderID = "DICEFN"
	cfg.TemplateID = "tmpl"
	return NewGatewaySender(cfg, s.server.Client())
}

func (s *SenderSuite) TestSendEncodesQuery() {
	err := s.newSender().Send(context.Background(), "9876543210", "Your OTP is 4821")
	s.Require().NoError(err)

	s.Equal("9876543210", s.received.Get("number"))
	s.Equal("Your OTP is 4821", s.received.Get("text"))
	s.Equal("DICEFN", s.received.Get("senderid"))
	s.Equal("tmpl", s.received.Get("DLTTemplateId"))
	s.Equal("15", s.received.Get("route"))
	s.Empty(s.received.Get("PEID"))
}

func (s *SenderSuite) TestSendNon2xxIsExternalServiceError() {
	s.status = http.StatusBadGateway

	err := s.newSender().Send(context.Background(), "9876543210", "hi")

	var extErr *model.ExternalServiceError
	s.Require().True(errors.As(err, &extErr))
	s.Equal("sms", extErr.Service)
	s.Equal(http.StatusBadGateway, extErr.StatusCode)
}

func (s *SenderSuite) TestNewWithoutEndpointLogs() {
	sender := New(DefaultConfig(), testutil.NopLogger())
	s.IsType(&LogSender{}, sender)
	s.NoError(sender.Send(context.Background(), "9876543210", "hi"))
}
