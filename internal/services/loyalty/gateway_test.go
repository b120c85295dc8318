package loyalty_test

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"github.com/mcoot/dicefunnel/internal/dependencies/mocks"
	"github.com/mcoot/dicefunnel/internal/model"
	"github.com/mcoot/dicefunnel/internal/services/loyalty"
	"github.com/mcoot/dicefunnel/internal/services/loyalty/loyaltytest"
	"github.com/mcoot/dicefunnel/internal/services/reward"
	"github.com/mcoot/dicefunnel/internal/testutil"
)

type GatewaySuite struct {
	suite.Suite
	platform *loyaltytest.Server
	clock    *mocks.MockClock
	gateway  *loyalty.Gateway
	ctx      context.Context
}

func TestGatewaySuite(t *testing.T) {
	suite.Run(t, new(GatewaySuite))
}

func (s *GatewaySuite) SetupTest() {
	s.platform = loyaltytest.New()
	s.clock = mocks.NewMockClock(time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC))

	engine, err := reward.New(reward.DefaultConfig(), mocks.NewMockRandom())
	s.Require().NoError(err)

	cfg := loyalty.DefaultConfig()
	cfg.BaseURL = s.platform.BaseURL()
	cfg.RedemptionBaseURL = s.platform.RedemptionBaseURL()
	cfg.AccessToken = "token"

	s.gateway = loyalty.NewGateway(loyalty.NewClient(cfg, s.platform.Client()), engine, s.clock, cfg, testutil.NopLogger())
	s.ctx = context.Background()
}

func (s *GatewaySuite) TearDownTest() {
	s.platform.Close()
}

// Customer tests

func (s *GatewaySuite) TestFindOrCreateFindsExisting() {
	id := s.platform.AddCustomer("+919876543210", "Asha", "asha@example.com", "vip")

	c, created, err := s.gateway.FindOrCreateCustomer(s.ctx, "9876543210", "Asha", "asha@example.com")
	s.Require().NoError(err)
	s.False(created)
	s.Equal(id, c.ID)
	s.Equal("vip", c.Tags)
}

func (s *GatewaySuite) TestFindOrCreateCreatesWithCountryCode() {
	c, created, err := s.gateway.FindOrCreateCustomer(s.ctx, "9876543210", "Asha", "asha@example.com")
	s.Require().NoError(err)
	s.True(created)
	s.Equal("+919876543210", c.Phone)
	s.Equal(1, s.platform.CustomerCount())
}

func (s *GatewaySuite) TestInternationalPhone() {
	s.Equal("+919876543210", s.gateway.InternationalPhone("9876543210"))
	s.Equal("+919123456789", s.gateway.InternationalPhone("9123456789"))
	s.Equal("+919876543210", s.gateway.InternationalPhone("919876543210"))
	s.Equal("+15551234567", s.gateway.InternationalPhone("+15551234567"))
}

func (s *GatewaySuite) TestPlatformDownIsExternalServiceError() {
	s.platform.SetDown(true)

	_, _, err := s.gateway.FindOrCreateCustomer(s.ctx, "9876543210", "Asha", "asha@example.com")
	var extErr *model.ExternalServiceError
	s.Require().ErrorAs(err, &extErr)
	s.Equal(503, extErr.StatusCode)
}

// Tag tests

func (s *GatewaySuite) TestAddTagsPreservesExisting() {
	id := s.platform.AddCustomer("+919876543210", "Asha", "", "VIP, newsletter")

	set, err := s.gateway.AddTags(s.ctx, id, model.TagCreditedOnce)
	s.Require().NoError(err)
	s.Equal(3, set.Len())
	s.Equal("VIP, newsletter, credited-once", s.platform.CustomerTags(id))
}

func (s *GatewaySuite) TestAddTagsIsMonotonic() {
	id := s.platform.AddCustomer("+919876543210", "Asha", "", "a")

	_, err := s.gateway.AddTags(s.ctx, id, "b", "c")
	s.Require().NoError(err)
	_, err = s.gateway.AddTags(s.ctx, id, "C", "d")
	s.Require().NoError(err)

	tags := model.ParseTags(s.platform.CustomerTags(id))
	for _, t := range []string{"a", "b", "c", "d"} {
		s.True(tags.Has(t), t)
	}
	s.Equal(4, tags.Len())
}

func (s *GatewaySuite) TestAddTagsSkipsWriteWhenNothingNew() {
	id := s.platform.AddCustomer("+919876543210", "Asha", "", "credited-once")

	_, err := s.gateway.AddTags(s.ctx, id, "Credited-Once")
	s.Require().NoError(err)
	s.Equal(0, s.platform.Calls("PUT /customers/{id}.json"))
}

// Discount tests

func (s *GatewaySuite) TestProvisionDiscountExternal() {
	d, err := s.gateway.ProvisionDiscount(s.ctx, 6, "Asha", "9876543210")
	s.Require().NoError(err)

	s.True(d.IsExternallyProvisioned)
	s.Equal(100, d.Percentage)
	s.Equal("DICE100_1772359200000", d.Code)
	s.NotEmpty(d.PriceRuleRef)
	s.NotEmpty(d.CodeRef)
	s.Equal(s.platform.RedemptionBaseURL()+d.Code, d.RedemptionURL)
}

func (s *GatewaySuite) TestProvisionDiscountFallsBack() {
	s.platform.SetFailDiscounts(true)

	d, err := s.gateway.ProvisionDiscount(s.ctx, 6, "Asha", "9876543210")
	s.Require().NoError(err)

	s.False(d.IsExternallyProvisioned)
	s.Equal("DICE100_9876543210", d.Code)
	s.Empty(d.PriceRuleRef)
	s.Empty(d.RedemptionURL)
}

func (s *GatewaySuite) TestProvisionDiscountDisabledPlatform() {
	engine, err := reward.New(reward.DefaultConfig(), mocks.NewMockRandom())
	s.Require().NoError(err)
	gw := loyalty.NewGateway(nil, engine, s.clock, loyalty.DefaultConfig(), testutil.NopLogger())

	d, err := gw.ProvisionDiscount(s.ctx, 2, "Asha", "9876543210")
	s.Require().NoError(err)
	s.Equal("DICE15_9876543210", d.Code)
	s.ErrorIs(gw.Ping(s.ctx), loyalty.ErrDisabled)
}

func (s *GatewaySuite) TestProvisionDiscountUnknownTier() {
	_, err := s.gateway.ProvisionDiscount(s.ctx, 9, "Asha", "9876543210")
	s.ErrorIs(err, model.ErrInvalidTier)
}

func (s *GatewaySuite) TestDiscountStatus() {
	d, err := s.gateway.ProvisionDiscount(s.ctx, 6, "Asha", "9876543210")
	s.Require().NoError(err)

	status, err := s.gateway.DiscountStatus(s.ctx, d.Code)
	s.Require().NoError(err)
	s.True(status.Valid)

	s.platform.MarkUsed(d.Code)
	status, err = s.gateway.DiscountStatus(s.ctx, d.Code)
	s.Require().NoError(err)
	s.False(status.Valid)
	s.Equal(1, status.UsageCount)

	_, err = s.gateway.DiscountStatus(s.ctx, "NOPE")
	s.ErrorIs(err, model.ErrCodeNotFound)
}

func (s *GatewaySuite) TestPing() {
	s.NoError(s.gateway.Ping(s.ctx))
	s.True(strings.HasPrefix(s.platform.BaseURL(), "http://"))
}
