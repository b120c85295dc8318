package loyalty

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/mcoot/dicefunnel/internal/dependencies/clock"
	"github.com/mcoot/dicefunnel/internal/model"
	"github.com/mcoot/dicefunnel/internal/services/reward"
)

// Errors
var (
	ErrDisabled = errors.New("loyalty platform not configured")
)

// Gateway wraps the loyalty platform with the funnel's policies: tag updates
// never drop existing tags, and reward provisioning always yields a code.
type Gateway struct {
	client *Client
	engine *reward.Engine
	clock  clock.Clock
	cfg    Config
	logger *slog.Logger
}

// NewGateway creates a Gateway. A nil client means the platform is disabled.
func NewGateway(client *Client, engine *reward.Engine, clock clock.Clock, cfg Config, logger *slog.Logger) *Gateway {
	if cfg.CountryCode == "" {
		cfg.CountryCode = DefaultConfig().CountryCode
	}
	return &Gateway{
		client: client,
		engine: engine,
		clock:  clock,
		cfg:    cfg,
		logger: logger.With(slog.String("component", "loyalty")),
	}
}

// Enabled reports whether calls reach a real platform
func (g *Gateway) Enabled() bool {
	return g.client != nil
}

// FindCustomerByPhone returns model.ErrCustomerNotFound when no customer matches
func (g *Gateway) FindCustomerByPhone(ctx context.Context, phone string) (*model.Customer, error) {
	if g.client == nil {
		return nil, ErrDisabled
	}
	return g.client.FindCustomerByPhone(ctx, phone)
}

// CreateCustomer creates a customer with the phone in international form
func (g *Gateway) CreateCustomer(ctx context.Context, phone, name, email string) (*model.Customer, error) {
	if g.client == nil {
		return nil, ErrDisabled
	}
	return g.client.CreateCustomer(ctx, g.InternationalPhone(phone), name, email)
}

// FindOrCreateCustomer looks the customer up by phone and creates it when
// absent. created reports whether a new customer was made.
func (g *Gateway) FindOrCreateCustomer(ctx context.Context, phone, name, email string) (customer *model.Customer, created bool, err error) {
	customer, err = g.FindCustomerByPhone(ctx, phone)
	if err == nil {
		return customer, false, nil
	}
	if !errors.Is(err, model.ErrCustomerNotFound) {
		return nil, false, err
	}
	customer, err = g.CreateCustomer(ctx, phone, name, email)
	if err != nil {
		return nil, false, err
	}
	g.logger.Info("created loyalty customer",
		slog.String("customer_id", customer.ID),
		slog.String("phone", model.MaskPhone(phone)))
	return customer, true, nil
}

// GetCustomer fetches a customer by id
func (g *Gateway) GetCustomer(ctx context.Context, id string) (*model.Customer, error) {
	if g.client == nil {
		return nil, ErrDisabled
	}
	return g.client.GetCustomer(ctx, id)
}

// AddTags unions tags into the customer's current tag set and writes the full
// set back. Existing tags keep their spelling and position; the write is
// skipped when nothing is new.
func (g *Gateway) AddTags(ctx context.Context, customerID string, tags ...string) (*model.TagSet, error) {
	if g.client == nil {
		return nil, ErrDisabled
	}
	customer, err := g.client.GetCustomer(ctx, customerID)
	if err != nil {
		return nil, err
	}

	set := model.ParseTags(customer.Tags)
	if set.Add(tags...) == 0 {
		return set, nil
	}

	if _, err := g.client.UpdateCustomerTags(ctx, customerID, set.String()); err != nil {
		return nil, err
	}
	return set, nil
}

// ProvisionDiscount creates a single-use platform discount for tier. Any
// platform failure falls back to a locally synthesized code; only an unknown
// tier is an error.
func (g *Gateway) ProvisionDiscount(ctx context.Context, tier int, name, phone string) (*model.Discount, error) {
	pct, err := g.engine.Percentage(tier)
	if err != nil {
		return nil, err
	}
	prefix := g.engine.CodePrefix()

	if g.client != nil {
		code := fmt.Sprintf("%s%d_%d", prefix, pct, g.clock.Now().UnixMilli())
		discount, err := g.provisionExternal(ctx, code, pct, name)
		if err == nil {
			return discount, nil
		}
		g.logger.Warn("external discount provisioning failed, using local code",
			slog.Int("tier", tier),
			slog.String("phone", model.MaskPhone(phone)),
			slog.String("error", err.Error()))
	}

	return FallbackDiscount(prefix, pct, phone), nil
}

func (g *Gateway) provisionExternal(ctx context.Context, code string, pct int, name string) (*model.Discount, error) {
	title := fmt.Sprintf("Dice Roll Discount %d%% - %s", pct, code)
	if name != "" {
		title += " (" + name + ")"
	}
	ruleID, err := g.client.CreatePriceRule(ctx, title, pct, g.clock.Now())
	if err != nil {
		return nil, err
	}
	info, err := g.client.CreateDiscountCode(ctx, ruleID, code)
	if err != nil {
		return nil, err
	}

	discount := &model.Discount{
		Code:                    info.Code,
		Percentage:              pct,
		PriceRuleRef:            ruleID,
		CodeRef:                 info.ID,
		IsExternallyProvisioned: true,
	}
	if base := g.cfg.redemptionBase(); base != "" {
		discount.RedemptionURL = base + info.Code
	}
	return discount, nil
}

// FallbackDiscount is the locally synthesized reward used when the platform
// cannot provision one
func FallbackDiscount(prefix string, pct int, phone string) *model.Discount {
	return &model.Discount{
		Code:       fmt.Sprintf("%s%d_%s", prefix, pct, phone),
		Percentage: pct,
	}
}

// DiscountStatus checks a platform-provisioned code. Codes are single use, so
// any recorded usage makes the code invalid.
func (g *Gateway) DiscountStatus(ctx context.Context, code string) (*model.DiscountStatus, error) {
	if g.client == nil {
		return nil, ErrDisabled
	}
	info, err := g.client.LookupDiscountCode(ctx, code)
	if err != nil {
		var extErr *model.ExternalServiceError
		if errors.As(err, &extErr) && extErr.IsNotFound() {
			return nil, model.ErrCodeNotFound
		}
		return nil, err
	}
	return &model.DiscountStatus{
		Code:                    info.Code,
		Valid:                   info.UsageCount < 1,
		UsageCount:              info.UsageCount,
		IsExternallyProvisioned: true,
	}, nil
}

// Ping checks platform reachability
func (g *Gateway) Ping(ctx context.Context) error {
	if g.client == nil {
		return ErrDisabled
	}
	return g.client.Ping(ctx)
}

// InternationalPhone prefixes the configured country code unless phone
// already carries one
func (g *Gateway) InternationalPhone(phone string) string {
	phone = strings.TrimSpace(phone)
	if strings.HasPrefix(phone, "+") {
		return phone
	}
	cc := strings.TrimPrefix(g.cfg.CountryCode, "+")
	if len(phone) > 10 && strings.HasPrefix(phone, cc) {
		return "+" + phone
	}
	return g.cfg.CountryCode + phone
}
