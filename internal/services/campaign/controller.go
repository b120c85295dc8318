package campaign

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/mcoot/dicefunnel/internal/dependencies/clock"
	"github.com/mcoot/dicefunnel/internal/model"
	"github.com/mcoot/dicefunnel/internal/services/credit"
	"github.com/mcoot/dicefunnel/internal/services/dispatch"
	"github.com/mcoot/dicefunnel/internal/services/funnel"
	"github.com/mcoot/dicefunnel/internal/services/identity"
	"github.com/mcoot/dicefunnel/internal/services/loyalty"
	"github.com/mcoot/dicefunnel/internal/services/otp"
	"github.com/mcoot/dicefunnel/internal/services/reward"
	"github.com/mcoot/dicefunnel/internal/storage"
)

// Config holds configuration for the campaign controller
type Config struct {
	// SessionTTL bounds the whole entry -> draw flow
	SessionTTL time.Duration
	// DebugOTP echoes issued codes in entry results (development only)
	DebugOTP bool
	// Ladder is the credit tag escalation
	Ladder model.Ladder
}

// DefaultConfig returns default campaign configuration
func DefaultConfig() Config {
	return Config{
		SessionTTL: 30 * time.Minute,
		Ladder:     model.DefaultLadder,
	}
}

// Dependencies groups the services the controller orchestrates
type Dependencies struct {
	Storage    storage.Storage
	Clock      clock.Clock
	Identity   *identity.Resolver
	OTP        *otp.Service
	Reward     *reward.Engine
	Loyalty    *loyalty.Gateway
	Credit     *credit.Gate
	Events     *funnel.Log
	Dispatcher *dispatch.Dispatcher
}

// Controller runs the funnel: entry, OTP verification, reward draw and the
// follow-up side effects
type Controller struct {
	Dependencies
	cfg    Config
	logger *slog.Logger
}

// NewController creates a new campaign Controller
func NewController(deps Dependencies, cfg Config, logger *slog.Logger) *Controller {
	if cfg.SessionTTL == 0 {
		cfg.SessionTTL = DefaultConfig().SessionTTL
	}
	if len(cfg.Ladder) == 0 {
		cfg.Ladder = model.DefaultLadder
	}
	return &Controller{
		Dependencies: deps,
		cfg:          cfg,
		logger:       logger.With(slog.String("component", "campaign")),
	}
}

// EntryResult is returned to a player after entry
type EntryResult struct {
	SessionToken string
	Message      string
	DebugOTP     string
	NewCustomer  bool
}

// DrawResult is the outcome of a reward draw
type DrawResult struct {
	DiceResult              int
	DiscountCode            string
	DiscountPercent         int
	RedemptionURL           string
	IsExternallyProvisioned bool
	Message                 string
	PlayerID                model.PlayerID
}

// SessionStatus is the caller-visible view of a session
type SessionStatus struct {
	State     model.SessionState
	Verified  bool
	Name      string
	Phone     string
	ExpiresAt time.Time
}

// Enter validates the entry form, resolves the loyalty customer, opens a
// session and issues an OTP. Loyalty failures degrade to a session without a
// customer reference.
func (c *Controller) Enter(ctx context.Context, name, phone, email string) (*EntryResult, error) {
	candidate, err := ValidateEntry(name, phone, email)
	if err != nil {
		return nil, err
	}
	now := c.Clock.Now()

	session := &model.Session{
		Token:     uuid.NewString(),
		State:     model.SessionEntered,
		Candidate: candidate,
		CreatedAt: now,
		ExpiresAt: now.Add(c.cfg.SessionTTL),
	}

	customer, created, err := c.Loyalty.FindOrCreateCustomer(ctx, candidate.Phone, candidate.Name, candidate.Email)
	switch {
	case err == nil:
		session.CustomerRef = customer.ID
		session.NewCustomer = created
		session.Eligibility = c.cfg.Ladder.Evaluate(model.ParseTags(customer.Tags))
	case errors.Is(err, loyalty.ErrDisabled):
	default:
		c.logger.Warn("loyalty customer lookup failed, continuing without customer",
			slog.String("phone", model.MaskPhone(candidate.Phone)),
			slog.String("error", err.Error()))
	}

	c.Events.Record(ctx, model.StageEntered, candidate.Phone, candidate.Name)

	code, err := c.OTP.Issue(ctx, session)
	if err != nil {
		return nil, err
	}

	result := &EntryResult{
		SessionToken: session.Token,
		Message:      "OTP sent successfully",
		NewCustomer:  session.NewCustomer,
	}
	if c.cfg.DebugOTP {
		result.DebugOTP = code
	}
	return result, nil
}

// Verify checks the OTP for the session
func (c *Controller) Verify(ctx context.Context, token, code string) error {
	_, err := c.OTP.Verify(ctx, token, code)
	return err
}

// Status reports the state of the caller's session
func (c *Controller) Status(ctx context.Context, token string) (*SessionStatus, error) {
	session, err := c.Storage.GetSession(ctx, token)
	if err != nil {
		if errors.Is(err, model.ErrSessionNotFound) {
			return nil, model.ErrSessionExpired
		}
		return nil, err
	}
	return &SessionStatus{
		State:     session.State,
		Verified:  session.IsVerified(),
		Name:      session.Candidate.Name,
		Phone:     model.MaskPhone(session.Candidate.Phone),
		ExpiresAt: session.ExpiresAt,
	}, nil
}

// Draw consumes a verified session, draws a tier and provisions the reward.
// The tag update and credit gate run in the background afterwards.
func (c *Controller) Draw(ctx context.Context, token string) (*DrawResult, error) {
	session, err := c.Storage.GetSession(ctx, token)
	if err != nil {
		if errors.Is(err, model.ErrSessionNotFound) {
			return nil, model.ErrNotVerified
		}
		return nil, err
	}
	if !session.IsVerified() {
		return nil, model.ErrNotVerified
	}
	if clock.Elapsed(c.Clock, session.Verification.EnteredAt) > c.OTP.Validity() {
		_ = c.Storage.DeleteSession(ctx, token)
		return nil, model.ErrSessionExpired
	}

	// Single use: whoever takes the session owns the draw
	session, err = c.Storage.TakeSession(ctx, token)
	if err != nil {
		if errors.Is(err, model.ErrSessionNotFound) {
			return nil, model.ErrNotVerified
		}
		return nil, err
	}

	candidate := session.Candidate
	tier := c.Reward.Draw()
	discount, err := c.Loyalty.ProvisionDiscount(ctx, tier, candidate.Name, candidate.Phone)
	if err != nil {
		return nil, err
	}

	player, err := c.recordDraw(ctx, session, tier, discount)
	if err != nil {
		return nil, err
	}

	c.Events.Record(ctx, model.StageRewardDrawn, candidate.Phone, candidate.Name,
		funnel.WithPlayer(player.ID), funnel.WithRewardCode(discount.Code))
	if _, err := c.Events.Backfill(ctx, candidate.Phone, player.ID, candidate.Name); err != nil {
		c.logger.Warn("failed to back-fill funnel events",
			slog.String("player_id", string(player.ID)),
			slog.String("error", err.Error()))
	}

	if session.CustomerRef != "" {
		c.dispatchFollowUp(session, player.IdentityHash)
	}

	c.logger.Info("reward drawn",
		slog.String("player_id", string(player.ID)),
		slog.Int("tier", tier),
		slog.Bool("external", discount.IsExternallyProvisioned))

	return &DrawResult{
		DiceResult:              tier,
		DiscountCode:            discount.Code,
		DiscountPercent:         discount.Percentage,
		RedemptionURL:           discount.RedemptionURL,
		IsExternallyProvisioned: discount.IsExternallyProvisioned,
		Message:                 fmt.Sprintf("Congratulations! You won %d%% off!", discount.Percentage),
		PlayerID:                player.ID,
	}, nil
}

// recordDraw creates or updates the player for the session's identity
func (c *Controller) recordDraw(ctx context.Context, session *model.Session, tier int, discount *model.Discount) (*model.Player, error) {
	candidate := session.Candidate
	now := c.Clock.Now()

	apply := func(p *model.Player) {
		p.Name = candidate.Name
		p.Email = candidate.Email
		p.RewardTier = tier
		// A new code starts unredeemed; the local fallback code repeats across plays
		if p.AssignedCode != discount.Code {
			p.AlreadyRedeemed = false
			p.RewardRedeemedAt = nil
		}
		p.AssignedCode = discount.Code
		p.ExternalPriceRuleRef = discount.PriceRuleRef
		p.ExternalCodeRef = discount.CodeRef
		p.IsExternallyProvisioned = discount.IsExternallyProvisioned
		p.PlayedAt = session.CreatedAt
		p.RewardDrawnAt = now
		p.UpdatedAt = now
		if session.Verification != nil {
			p.OtpIssuedAt = session.Verification.OtpIssuedAt
			p.OtpEnteredAt = session.Verification.EnteredAt
		}
	}

	for attempt := 0; attempt < 2; attempt++ {
		existing, err := c.Identity.FindPlayer(ctx, candidate.Phone, candidate.Name)
		if errors.Is(err, model.ErrPlayerNotFound) {
			player := &model.Player{
				ID:           model.PlayerID(uuid.NewString()),
				IdentityHash: c.Identity.Resolve(candidate.Phone),
				NewCustomer:  session.NewCustomer,
				CreatedAt:    now,
			}
			apply(player)
			err = c.Storage.CreatePlayer(ctx, player)
			if err == nil {
				return player, nil
			}
			if errors.Is(err, model.ErrPlayerExists) {
				continue
			}
			return nil, err
		}
		if err != nil {
			return nil, err
		}

		apply(existing)
		err = c.Storage.UpdatePlayer(ctx, existing, existing.Version)
		if err == nil {
			return existing, nil
		}
		if !errors.Is(err, model.ErrVersionConflict) {
			return nil, err
		}
	}
	return nil, model.ErrVersionConflict
}

// dispatchFollowUp advances the customer's credit tag and then runs the
// credit gate. A failed tag update skips the credit.
func (c *Controller) dispatchFollowUp(session *model.Session, identityHash string) {
	customerID := session.CustomerRef
	email := session.Candidate.Email
	elig := session.Eligibility

	c.Dispatcher.Go("reward-follow-up", func(ctx context.Context) error {
		if elig.NextTag != "" {
			if _, err := c.Loyalty.AddTags(ctx, customerID, elig.NextTag); err != nil {
				return fmt.Errorf("add tag %s: %w", elig.NextTag, err)
			}
		}
		outcome, err := c.Credit.Evaluate(ctx, identityHash, email, elig)
		c.logger.Info("credit gate evaluated",
			slog.String("customer_id", customerID),
			slog.String("outcome", string(outcome)))
		return err
	})
}

// MarkRedeemed records the redemption of a reward code. Redeeming an already
// redeemed code succeeds without a second event.
func (c *Controller) MarkRedeemed(ctx context.Context, code string) (*model.Player, error) {
	if code == "" {
		return nil, model.NewValidationError("discount_code", "is required")
	}

	for attempt := 0; attempt < 2; attempt++ {
		player, err := c.Storage.GetPlayerByCode(ctx, code)
		if err != nil {
			return nil, err
		}
		if player.AlreadyRedeemed {
			return player, nil
		}

		now := c.Clock.Now()
		player.RewardRedeemedAt = &now
		player.AlreadyRedeemed = true
		player.UpdatedAt = now

		err = c.Storage.UpdatePlayer(ctx, player, player.Version)
		if err == nil {
			c.Events.Record(ctx, model.StageRewardRedeemed, player.IdentityHash, player.Name,
				funnel.WithPlayer(player.ID), funnel.WithRewardCode(player.AssignedCode))
			return player, nil
		}
		if !errors.Is(err, model.ErrVersionConflict) {
			return nil, err
		}
	}
	return nil, model.ErrVersionConflict
}

// HandleDiscountUsed marks every known code as redeemed and returns how many matched
func (c *Controller) HandleDiscountUsed(ctx context.Context, codes []string) (int, error) {
	if len(codes) == 0 {
		return 0, model.NewValidationError("discount_codes", "must not be empty")
	}

	updated := 0
	for _, code := range codes {
		if code == "" {
			continue
		}
		_, err := c.MarkRedeemed(ctx, code)
		if errors.Is(err, model.ErrCodeNotFound) {
			continue
		}
		if err != nil {
			return updated, err
		}
		updated++
	}
	if updated == 0 {
		return 0, model.ErrNoMatchingCodes
	}
	return updated, nil
}

// HandleTagAdded merges tags reported by the platform into the local mirror.
// The customer's phone is fetched best-effort.
func (c *Controller) HandleTagAdded(ctx context.Context, customerRef string, tags []string) (*model.CustomerTagMirror, error) {
	customerID, err := ParseCustomerID(customerRef)
	if err != nil {
		return nil, err
	}

	mirror, err := c.Storage.GetCustomerTags(ctx, customerID)
	if errors.Is(err, model.ErrCustomerNotFound) {
		mirror = &model.CustomerTagMirror{CustomerID: customerID}
	} else if err != nil {
		return nil, err
	}

	if customer, err := c.Loyalty.GetCustomer(ctx, customerID); err == nil {
		if customer.Phone != "" {
			mirror.Phone = customer.Phone
		}
	} else if !errors.Is(err, loyalty.ErrDisabled) {
		c.logger.Warn("failed to fetch customer for tag mirror",
			slog.String("customer_id", customerID),
			slog.String("error", err.Error()))
	}

	set := model.NewTagSet(mirror.Tags...)
	set.Add(tags...)
	mirror.Tags = set.Slice()
	mirror.UpdatedAt = c.Clock.Now()

	if err := c.Storage.SaveCustomerTags(ctx, mirror); err != nil {
		return nil, err
	}
	return mirror, nil
}

// DiscountStatus reports whether code can still be used. Local codes are
// answered from the player record; provisioned codes are checked with the platform.
func (c *Controller) DiscountStatus(ctx context.Context, code string) (*model.DiscountStatus, error) {
	player, err := c.Storage.GetPlayerByCode(ctx, code)
	if err != nil && !errors.Is(err, model.ErrCodeNotFound) {
		return nil, err
	}
	if player != nil && !player.IsExternallyProvisioned {
		status := &model.DiscountStatus{Code: code, Valid: !player.AlreadyRedeemed}
		if player.AlreadyRedeemed {
			status.UsageCount = 1
		}
		return status, nil
	}

	status, err := c.Loyalty.DiscountStatus(ctx, code)
	if errors.Is(err, loyalty.ErrDisabled) {
		return nil, model.ErrCodeNotFound
	}
	return status, err
}

// StampCredit records a manual wallet credit. ref is either a phone
// number or an identity hash.
func (c *Controller) StampCredit(ctx context.Context, ref string) (*model.Player, error) {
	if ref == "" {
		return nil, model.NewValidationError("identity", "is required")
	}
	if phone, err := NormalizePhone(ref); err == nil {
		ref = c.Identity.Resolve(phone)
	}
	return c.Credit.Stamp(ctx, ref)
}

// HealthReport is the reachability of the funnel's dependencies
type HealthReport struct {
	Storage string
	Loyalty string
}

// Healthy reports whether storage is reachable. The loyalty platform is
// optional and does not affect health.
func (h HealthReport) Healthy() bool {
	return h.Storage == "connected"
}

// Health checks storage and the loyalty platform
func (c *Controller) Health(ctx context.Context) HealthReport {
	report := HealthReport{Storage: "connected", Loyalty: "connected"}
	if err := c.Storage.Ping(ctx); err != nil {
		report.Storage = "disconnected"
	}
	switch err := c.Loyalty.Ping(ctx); {
	case err == nil:
	case errors.Is(err, loyalty.ErrDisabled):
		report.Loyalty = "disabled"
	default:
		report.Loyalty = "disconnected"
	}
	return report
}
