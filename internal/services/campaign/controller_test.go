package campaign_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"github.com/mcoot/dicefunnel/internal/dependencies/mocks"
	"github.com/mcoot/dicefunnel/internal/model"
	"github.com/mcoot/dicefunnel/internal/services/campaign"
	"github.com/mcoot/dicefunnel/internal/services/credit"
	"github.com/mcoot/dicefunnel/internal/services/dispatch"
	"github.com/mcoot/dicefunnel/internal/services/funnel"
	"github.com/mcoot/dicefunnel/internal/services/identity"
	"github.com/mcoot/dicefunnel/internal/services/loyalty"
	"github.com/mcoot/dicefunnel/internal/services/loyalty/loyaltytest"
	"github.com/mcoot/dicefunnel/internal/services/otp"
	"github.com/mcoot/dicefunnel/internal/services/reward"
	"github.com/mcoot/dicefunnel/internal/storage/memory"
	"github.com/mcoot/dicefunnel/internal/testutil"
)

type nopSender struct{}

func (nopSender) Send(ctx context.Context, phone, message string) error { return nil }

type countingWallet struct {
	calls atomic.Int32
	mu    sync.Mutex
	last  credit.CreditRequest
}

func (w *countingWallet) Credit(ctx context.Context, req credit.CreditRequest) error {
	w.calls.Add(1)
	w.mu.Lock()
	w.last = req
	w.mu.Unlock()
	return nil
}

type ControllerSuite struct {
	suite.Suite
	platform   *loyaltytest.Server
	storage    *memory.Storage
	clock      *mocks.MockClock
	random     *mocks.MockRandom
	wallet     *countingWallet
	dispatcher *dispatch.Dispatcher
	resolver   *identity.Resolver
	events     *funnel.Log
	controller *campaign.Controller
	ctx        context.Context
}

func TestControllerSuite(t *testing.T) {
	suite.Run(t, new(ControllerSuite))
}

func (s *ControllerSuite) SetupTest() {
	s.platform = loyaltytest.New()
	s.clock = mocks.NewMockClock(time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC))
	s.storage = memory.New(s.clock)
	s.random = mocks.NewMockRandom()
	s.wallet = &countingWallet{}
	s.ctx = context.Background()

	logger := testutil.NopLogger()
	s.dispatcher = dispatch.New(dispatch.DefaultConfig(), logger)
	s.events = funnel.New(s.storage, s.clock, nil, logger)
	s.resolver = identity.New(s.storage, identity.DefaultConfig(), logger)

	engine, err := reward.New(reward.DefaultConfig(), s.random)
	s.Require().NoError(err)

	lcfg := loyalty.DefaultConfig()
	lcfg.BaseURL = s.platform.BaseURL()
	lcfg.RedemptionBaseURL = s.platform.RedemptionBaseURL()
	lcfg.AccessToken = "token"
	gateway := loyalty.NewGateway(loyalty.NewClient(lcfg, s.platform.Client()), engine, s.clock, lcfg, logger)

	otpSvc := otp.New(s.storage, s.clock, s.random, nopSender{}, s.dispatcher, s.events, otp.DefaultConfig(), logger)
	gate := credit.NewGate(s.storage, s.clock, s.wallet, credit.DefaultConfig(), logger)

	s.controller = campaign.NewController(campaign.Dependencies{
		Storage:    s.storage,
		Clock:      s.clock,
		Identity:   s.resolver,
		OTP:        otpSvc,
		Reward:     engine,
		Loyalty:    gateway,
		Credit:     gate,
		Events:     s.events,
		Dispatcher: s.dispatcher,
	}, campaign.DefaultConfig(), logger)
}

func (s *ControllerSuite) TearDownTest() {
	s.dispatcher.Wait()
	s.platform.Close()
}

// play runs one full pass through the funnel and waits for follow-up work
func (s *ControllerSuite) play(name, phone, email, code string) *campaign.DrawResult {
	s.random.QueueDigits(code)
	entry, err := s.controller.Enter(s.ctx, name, phone, email)
	s.Require().NoError(err)

	s.clock.Advance(time.Minute)
	s.Require().NoError(s.controller.Verify(s.ctx, entry.SessionToken, code))

	result, err := s.controller.Draw(s.ctx, entry.SessionToken)
	s.Require().NoError(err)
	s.dispatcher.Wait()
	return result
}

func (s *ControllerSuite) stageCount(stage model.Stage) int {
	counts, err := s.events.Stats(s.ctx, time.Time{}, time.Time{})
	s.Require().NoError(err)
	return counts[stage]
}

// Entry tests

func (s *ControllerSuite) TestEnterRejectsMissingFields() {
	_, err := s.controller.Enter(s.ctx, "Asha", "", "asha@example.com")
	var verr *model.ValidationError
	s.Require().ErrorAs(err, &verr)
	s.Equal("name, email and phone number required", verr.Message)
}

func (s *ControllerSuite) TestEnterRejectsBadEmail() {
	_, err := s.controller.Enter(s.ctx, "Asha", "9876543210", "not-an-email")
	var verr *model.ValidationError
	s.Require().ErrorAs(err, &verr)
	s.Equal("invalid email format", verr.Message)
}

func (s *ControllerSuite) TestEnterCreatesCustomerAndSession() {
	s.random.QueueDigits("4821")
	entry, err := s.controller.Enter(s.ctx, "Asha", "98765 43210", "asha@example.com")
	s.Require().NoError(err)
	s.NotEmpty(entry.SessionToken)
	s.True(entry.NewCustomer)
	s.Empty(entry.DebugOTP)
	s.Equal(1, s.platform.CustomerCount())

	status, err := s.controller.Status(s.ctx, entry.SessionToken)
	s.Require().NoError(err)
	s.Equal(model.SessionOtpIssued, status.State)
	s.False(status.Verified)

	s.Equal(1, s.stageCount(model.StageEntered))
	s.Equal(1, s.stageCount(model.StageOtpSent))
}

func (s *ControllerSuite) TestEnterContinuesWhenPlatformDown() {
	s.platform.SetDown(true)
	s.random.QueueDigits("4821")

	entry, err := s.controller.Enter(s.ctx, "Asha", "9876543210", "asha@example.com")
	s.Require().NoError(err)
	s.False(entry.NewCustomer)
}

func (s *ControllerSuite) TestStatusUnknownSession() {
	_, err := s.controller.Status(s.ctx, "missing")
	s.ErrorIs(err, model.ErrSessionExpired)
}

// Draw tests

func (s *ControllerSuite) TestDrawFallsBackToLocalCode() {
	s.platform.SetFailDiscounts(true)

	result := s.play("Asha", "9876543210", "asha@example.com", "4821")
	s.Equal(6, result.DiceResult)
	s.Equal(100, result.DiscountPercent)
	s.Equal("DICE100_9876543210", result.DiscountCode)
	s.False(result.IsExternallyProvisioned)
	s.Equal("Congratulations! You won 100% off!", result.Message)

	player, err := s.storage.GetPlayerByCode(s.ctx, "DICE100_9876543210")
	s.Require().NoError(err)
	s.Equal(s.resolver.Resolve("9876543210"), player.IdentityHash)
	s.Equal(6, player.RewardTier)
	s.True(player.NewCustomer)
	s.False(player.OtpEnteredAt.IsZero())

	s.Equal(1, s.stageCount(model.StageOtpVerified))
	s.Equal(1, s.stageCount(model.StageRewardDrawn))
}

func (s *ControllerSuite) TestDrawProvisionsExternalCode() {
	result := s.play("Asha", "9876543210", "asha@example.com", "4821")
	s.True(result.IsExternallyProvisioned)
	s.NotEmpty(result.RedemptionURL)
	s.Contains(result.RedemptionURL, result.DiscountCode)
}

func (s *ControllerSuite) TestDrawBackfillsEarlierEvents() {
	result := s.play("Asha", "9876543210", "asha@example.com", "4821")

	page, err := s.events.Query(s.ctx, model.EventFilter{})
	s.Require().NoError(err)
	s.Require().NotEmpty(page.Events)
	for _, row := range page.Events {
		s.Equal(result.PlayerID, row.PlayerRef, "stage %s", row.Stage)
		s.Equal(result.DiscountCode, row.AssignedCode)
	}
}

func (s *ControllerSuite) TestDrawRequiresVerification() {
	s.random.QueueDigits("4821")
	entry, err := s.controller.Enter(s.ctx, "Asha", "9876543210", "asha@example.com")
	s.Require().NoError(err)

	_, err = s.controller.Draw(s.ctx, entry.SessionToken)
	s.ErrorIs(err, model.ErrNotVerified)
}

func (s *ControllerSuite) TestDrawIsSingleUse() {
	s.random.QueueDigits("4821")
	entry, err := s.controller.Enter(s.ctx, "Asha", "9876543210", "asha@example.com")
	s.Require().NoError(err)
	s.Require().NoError(s.controller.Verify(s.ctx, entry.SessionToken, "4821"))

	_, err = s.controller.Draw(s.ctx, entry.SessionToken)
	s.Require().NoError(err)

	_, err = s.controller.Draw(s.ctx, entry.SessionToken)
	s.ErrorIs(err, model.ErrNotVerified)
}

func (s *ControllerSuite) TestDrawAfterWindowExpires() {
	s.random.QueueDigits("4821")
	entry, err := s.controller.Enter(s.ctx, "Asha", "9876543210", "asha@example.com")
	s.Require().NoError(err)
	s.Require().NoError(s.controller.Verify(s.ctx, entry.SessionToken, "4821"))

	s.clock.Advance(11 * time.Minute)
	_, err = s.controller.Draw(s.ctx, entry.SessionToken)
	s.ErrorIs(err, model.ErrSessionExpired)
}

func (s *ControllerSuite) TestRepeatPlayUpdatesSamePlayer() {
	first := s.play("Asha", "9876543210", "asha@example.com", "4821")
	s.clock.Advance(time.Hour)
	second := s.play("Asha", "9876543210", "asha@example.com", "1234")

	s.Equal(first.PlayerID, second.PlayerID)
	player, err := s.storage.GetPlayer(s.ctx, first.PlayerID)
	s.Require().NoError(err)
	s.Equal(second.DiscountCode, player.AssignedCode)
}

// Credit follow-up tests

func (s *ControllerSuite) TestFirstPlayTagsAndCredits() {
	s.play("Asha", "9876543210", "asha@example.com", "4821")

	customer, err := s.findCustomer("9876543210")
	s.Require().NoError(err)
	s.True(model.ParseTags(customer.Tags).Has(model.TagCreditedOnce))
	s.Equal(int32(1), s.wallet.calls.Load())
	s.Equal("asha@example.com", s.wallet.last.CustomerEmail)
}

func (s *ControllerSuite) TestSecondPlayWithinCooldownDoesNotCreditAgain() {
	s.play("Asha", "9876543210", "asha@example.com", "4821")
	s.clock.Advance(20 * time.Minute)
	s.play("Asha", "9876543210", "asha@example.com", "1234")

	s.Equal(int32(1), s.wallet.calls.Load())

	customer, err := s.findCustomer("9876543210")
	s.Require().NoError(err)
	tags := model.ParseTags(customer.Tags)
	s.True(tags.Has(model.TagCreditedOnce))
	s.True(tags.Has(model.TagCreditedTwice))
}

func (s *ControllerSuite) TestSecondPlayAfterCooldownCreditsAgain() {
	s.play("Asha", "9876543210", "asha@example.com", "4821")
	s.clock.Advance(2 * time.Hour)
	s.play("Asha", "9876543210", "asha@example.com", "1234")

	s.Equal(int32(2), s.wallet.calls.Load())
}

func (s *ControllerSuite) TestTerminalCustomerIsNotCredited() {
	s.platform.AddCustomer("+919876543210", "Asha", "asha@example.com",
		"credited-once, credited-twice, credited-thrice")

	s.play("Asha", "9876543210", "asha@example.com", "4821")
	s.Equal(int32(0), s.wallet.calls.Load())
	s.Equal(0, s.platform.Calls("PUT /customers/{id}.json"))
}

func (s *ControllerSuite) TestNoFollowUpWithoutCustomer() {
	s.platform.SetDown(true)
	s.play("Asha", "9876543210", "asha@example.com", "4821")
	s.Equal(int32(0), s.wallet.calls.Load())
}

func (s *ControllerSuite) findCustomer(phone string) (*model.Customer, error) {
	lcfg := loyalty.DefaultConfig()
	lcfg.BaseURL = s.platform.BaseURL()
	lcfg.AccessToken = "token"
	return loyalty.NewClient(lcfg, s.platform.Client()).FindCustomerByPhone(s.ctx, "+91"+phone)
}

// Redemption tests

func (s *ControllerSuite) TestMarkRedeemedIsIdempotent() {
	s.platform.SetFailDiscounts(true)
	result := s.play("Asha", "9876543210", "asha@example.com", "4821")

	player, err := s.controller.MarkRedeemed(s.ctx, result.DiscountCode)
	s.Require().NoError(err)
	s.True(player.AlreadyRedeemed)
	s.Require().NotNil(player.RewardRedeemedAt)

	_, err = s.controller.MarkRedeemed(s.ctx, result.DiscountCode)
	s.Require().NoError(err)
	s.Equal(1, s.stageCount(model.StageRewardRedeemed))
}

func (s *ControllerSuite) TestReplayWithNewCodeCanBeRedeemedAgain() {
	first := s.play("Asha", "9876543210", "asha@example.com", "4821")
	_, err := s.controller.MarkRedeemed(s.ctx, first.DiscountCode)
	s.Require().NoError(err)

	s.clock.Advance(2 * time.Hour)
	second := s.play("Asha", "9876543210", "asha@example.com", "1234")
	s.Require().NotEqual(first.DiscountCode, second.DiscountCode)

	player, err := s.storage.GetPlayer(s.ctx, second.PlayerID)
	s.Require().NoError(err)
	s.False(player.AlreadyRedeemed)
	s.Nil(player.RewardRedeemedAt)

	status, err := s.controller.DiscountStatus(s.ctx, second.DiscountCode)
	s.Require().NoError(err)
	s.Zero(status.UsageCount)

	redeemed, err := s.controller.MarkRedeemed(s.ctx, second.DiscountCode)
	s.Require().NoError(err)
	s.True(redeemed.AlreadyRedeemed)
	s.Require().NotNil(redeemed.RewardRedeemedAt)
	s.True(redeemed.RewardRedeemedAt.Equal(s.clock.Now()))
	s.Equal(2, s.stageCount(model.StageRewardRedeemed))
}

func (s *ControllerSuite) TestReplayWithSameFallbackCodeStaysRedeemed() {
	s.platform.SetFailDiscounts(true)
	first := s.play("Asha", "9876543210", "asha@example.com", "4821")
	_, err := s.controller.MarkRedeemed(s.ctx, first.DiscountCode)
	s.Require().NoError(err)

	s.clock.Advance(2 * time.Hour)
	second := s.play("Asha", "9876543210", "asha@example.com", "1234")
	s.Require().Equal(first.DiscountCode, second.DiscountCode)

	player, err := s.storage.GetPlayer(s.ctx, second.PlayerID)
	s.Require().NoError(err)
	s.True(player.AlreadyRedeemed)
	s.Equal(1, s.stageCount(model.StageRewardRedeemed))
}

func (s *ControllerSuite) TestMarkRedeemedUnknownCode() {
	_, err := s.controller.MarkRedeemed(s.ctx, "NOPE")
	s.ErrorIs(err, model.ErrCodeNotFound)
}

func (s *ControllerSuite) TestHandleDiscountUsed() {
	s.platform.SetFailDiscounts(true)
	result := s.play("Asha", "9876543210", "asha@example.com", "4821")

	n, err := s.controller.HandleDiscountUsed(s.ctx, []string{result.DiscountCode, "UNKNOWN"})
	s.Require().NoError(err)
	s.Equal(1, n)

	_, err = s.controller.HandleDiscountUsed(s.ctx, []string{"UNKNOWN"})
	s.ErrorIs(err, model.ErrNoMatchingCodes)

	_, err = s.controller.HandleDiscountUsed(s.ctx, nil)
	var verr *model.ValidationError
	s.ErrorAs(err, &verr)
}

func (s *ControllerSuite) TestDiscountStatusLocalCode() {
	s.platform.SetFailDiscounts(true)
	result := s.play("Asha", "9876543210", "asha@example.com", "4821")

	status, err := s.controller.DiscountStatus(s.ctx, result.DiscountCode)
	s.Require().NoError(err)
	s.True(status.Valid)

	_, err = s.controller.MarkRedeemed(s.ctx, result.DiscountCode)
	s.Require().NoError(err)

	status, err = s.controller.DiscountStatus(s.ctx, result.DiscountCode)
	s.Require().NoError(err)
	s.False(status.Valid)
}

func (s *ControllerSuite) TestDiscountStatusExternalCode() {
	result := s.play("Asha", "9876543210", "asha@example.com", "4821")
	s.platform.MarkUsed(result.DiscountCode)

	status, err := s.controller.DiscountStatus(s.ctx, result.DiscountCode)
	s.Require().NoError(err)
	s.False(status.Valid)
	s.Equal(1, status.UsageCount)
}

func (s *ControllerSuite) TestDiscountStatusUnknownCode() {
	_, err := s.controller.DiscountStatus(s.ctx, "NOPE")
	s.ErrorIs(err, model.ErrCodeNotFound)
}

// Admin and webhook tests

func (s *ControllerSuite) TestHandleTagAddedMergesTags() {
	id := s.platform.AddCustomer("+919876543210", "Asha", "asha@example.com", "")

	_, err := s.controller.HandleTagAdded(s.ctx, "gid://shopify/Customer/"+id, []string{"vip"})
	s.Require().NoError(err)
	mirror, err := s.controller.HandleTagAdded(s.ctx, id, []string{"VIP", "credited-once"})
	s.Require().NoError(err)

	s.Equal([]string{"vip", "credited-once"}, mirror.Tags)
	s.Equal("+919876543210", mirror.Phone)
}

func (s *ControllerSuite) TestHandleTagAddedRejectsBadReference() {
	_, err := s.controller.HandleTagAdded(s.ctx, "gid://shopify/Order/12", []string{"vip"})
	var verr *model.ValidationError
	s.ErrorAs(err, &verr)
}

func (s *ControllerSuite) TestStampCreditByPhone() {
	s.platform.SetDown(true)
	s.play("Asha", "9876543210", "asha@example.com", "4821")

	player, err := s.controller.StampCredit(s.ctx, "9876543210")
	s.Require().NoError(err)
	s.Require().NotNil(player.LastCreditIssuedAt)
	s.Equal(s.clock.Now(), *player.LastCreditIssuedAt)
}

func (s *ControllerSuite) TestHealth() {
	report := s.controller.Health(s.ctx)
	s.True(report.Healthy())
	s.Equal("connected", report.Loyalty)

	s.platform.SetDown(true)
	report = s.controller.Health(s.ctx)
	s.True(report.Healthy())
	s.Equal("disconnected", report.Loyalty)
}
