package factory

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/mcoot/dicefunnel/internal/config"
	"github.com/mcoot/dicefunnel/internal/dependencies/clock"
	"github.com/mcoot/dicefunnel/internal/dependencies/random"
	"github.com/mcoot/dicefunnel/internal/services/campaign"
	"github.com/mcoot/dicefunnel/internal/services/credit"
	"github.com/mcoot/dicefunnel/internal/services/dispatch"
	"github.com/mcoot/dicefunnel/internal/services/funnel"
	"github.com/mcoot/dicefunnel/internal/services/identity"
	"github.com/mcoot/dicefunnel/internal/services/loyalty"
	"github.com/mcoot/dicefunnel/internal/services/otp"
	"github.com/mcoot/dicefunnel/internal/services/reward"
	"github.com/mcoot/dicefunnel/internal/services/sms"
	"github.com/mcoot/dicefunnel/internal/sse"
	"github.com/mcoot/dicefunnel/internal/storage"
	"github.com/mcoot/dicefunnel/internal/storage/memory"
	"github.com/mcoot/dicefunnel/internal/storage/postgres"
	redisstorage "github.com/mcoot/dicefunnel/internal/storage/redis"
)

// App contains all wired application components
type App struct {
	// Storage
	Storage storage.Storage

	// External dependencies
	Clock  clock.Clock
	Random random.Random

	// Collaborators
	SMS    sms.Sender
	Wallet credit.Wallet

	// Services
	Dispatcher  *dispatch.Dispatcher
	Hub         *sse.Hub
	Broadcaster *sse.Broadcaster
	Events      *funnel.Log
	Identity    *identity.Resolver
	OTP         *otp.Service
	Reward      *reward.Engine
	Loyalty     *loyalty.Gateway
	Credit      *credit.Gate
	Controller  *campaign.Controller

	// Settings is the configuration the app was built from
	Settings *config.Config

	closers []io.Closer
}

// Config holds configuration for the application factory
type Config struct {
	// Settings is the loaded application configuration (optional)
	// If nil, config.Default() is used
	Settings *config.Config
	// Logger is the application logger (optional)
	// If nil, a no-op logger is used
	Logger *slog.Logger
}

// New creates a new application with all dependencies wired
func New(ctx context.Context, cfg Config) (*App, error) {
	// Use no-op logger if not provided
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	settings := cfg.Settings
	if settings == nil {
		settings = config.Default()
	}

	clk := clock.New()

	// Create storage based on type
	var store storage.Storage
	var closers []io.Closer
	switch settings.Storage.Type {
	case "", config.StorageMemory:
		store = memory.New(clk)
	case config.StorageRedis:
		redisStore, err := redisstorage.New(settings.Storage.Redis, clk)
		if err != nil {
			return nil, fmt.Errorf("connect redis: %w", err)
		}
		store = redisStore
		closers = append(closers, redisStore)
	case config.StoragePostgres:
		pgStore, err := postgres.New(ctx, settings.Storage.Postgres, clk)
		if err != nil {
			return nil, fmt.Errorf("connect postgres: %w", err)
		}
		store = pgStore
		closers = append(closers, pgStore)
	default:
		return nil, errors.New("invalid storage type: must be 'memory', 'redis' or 'postgres'")
	}

	var loyaltyClient *loyalty.Client
	if settings.Loyalty.Enabled() {
		loyaltyClient = loyalty.NewClient(settings.Loyalty, nil)
	}

	app, err := newWithDependencies(dependencies{
		store:   store,
		clock:   clk,
		random:  random.New(),
		sender:  sms.New(settings.SMS, logger),
		wallet:  credit.NewWallet(settings.Credit, logger),
		loyalty: loyaltyClient,
	}, settings, logger)
	if err != nil {
		for _, c := range closers {
			_ = c.Close()
		}
		return nil, err
	}
	app.closers = closers
	return app, nil
}

// dependencies are the swappable edges of the application
type dependencies struct {
	store   storage.Storage
	clock   clock.Clock
	random  random.Random
	sender  sms.Sender
	wallet  credit.Wallet
	loyalty *loyalty.Client
}

// newWithDependencies creates an App with the given dependencies (useful for testing)
func newWithDependencies(deps dependencies, settings *config.Config, logger *slog.Logger) (*App, error) {
	engine, err := reward.New(settings.Reward, deps.random)
	if err != nil {
		return nil, err
	}

	// Create services
	dispatcher := dispatch.New(settings.Dispatch, logger)
	hub := sse.NewHub(logger)
	go hub.Run()
	broadcaster := sse.NewBroadcaster(hub, logger)
	events := funnel.New(deps.store, deps.clock, broadcaster, logger)
	resolver := identity.New(deps.store, settings.Identity, logger)
	otpService := otp.New(deps.store, deps.clock, deps.random, deps.sender, dispatcher, events, settings.OTP, logger)
	gateway := loyalty.NewGateway(deps.loyalty, engine, deps.clock, settings.Loyalty, logger)
	gate := credit.NewGate(deps.store, deps.clock, deps.wallet, settings.Credit, logger)

	controller := campaign.NewController(campaign.Dependencies{
		Storage:    deps.store,
		Clock:      deps.clock,
		Identity:   resolver,
		OTP:        otpService,
		Reward:     engine,
		Loyalty:    gateway,
		Credit:     gate,
		Events:     events,
		Dispatcher: dispatcher,
	}, settings.Campaign, logger)

	return &App{
		Storage:     deps.store,
		Clock:       deps.clock,
		Random:      deps.random,
		SMS:         deps.sender,
		Wallet:      deps.wallet,
		Dispatcher:  dispatcher,
		Hub:         hub,
		Broadcaster: broadcaster,
		Events:      events,
		Identity:    resolver,
		OTP:         otpService,
		Reward:      engine,
		Loyalty:     gateway,
		Credit:      gate,
		Controller:  controller,
		Settings:    settings,
	}, nil
}

// Close stops the broadcast hub and releases storage connections.
// Call after the HTTP server and dispatcher have drained.
func (a *App) Close() error {
	a.Hub.Close()
	var errs []error
	for _, c := range a.closers {
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
