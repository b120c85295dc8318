package factory

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/mcoot/dicefunnel/internal/config"
	"github.com/mcoot/dicefunnel/internal/dependencies/mocks"
	"github.com/mcoot/dicefunnel/internal/services/credit"
	"github.com/mcoot/dicefunnel/internal/services/loyalty"
	"github.com/mcoot/dicefunnel/internal/services/loyalty/loyaltytest"
	"github.com/mcoot/dicefunnel/internal/storage"
	"github.com/mcoot/dicefunnel/internal/storage/memory"
)

// TestAdminKey is the admin API key configured on test apps
const TestAdminKey = "test-admin-key"

// RecordingSender captures SMS messages instead of sending them
type RecordingSender struct {
	mu       sync.Mutex
	messages map[string][]string
}

// Send records message for phone
func (s *RecordingSender) Send(_ context.Context, phone, message string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.messages == nil {
		s.messages = make(map[string][]string)
	}
	s.messages[phone] = append(s.messages[phone], message)
	return nil
}

// Messages returns the messages sent to phone
func (s *RecordingSender) Messages(phone string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.messages[phone]...)
}

// RecordingWallet captures wallet credits instead of issuing them
type RecordingWallet struct {
	mu      sync.Mutex
	credits []credit.CreditRequest
}

// Credit records req
func (w *RecordingWallet) Credit(_ context.Context, req credit.CreditRequest) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.credits = append(w.credits, req)
	return nil
}

// Credits returns every recorded credit
func (w *RecordingWallet) Credits() []credit.CreditRequest {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]credit.CreditRequest(nil), w.credits...)
}

// TestApp extends App with test-specific helpers
type TestApp struct {
	*App

	// Mocks for test control
	MockClock  *mocks.MockClock
	MockRandom *mocks.MockRandom
	SMS        *RecordingSender
	Wallet     *RecordingWallet
	// Platform is the fake loyalty platform, nil unless WithPlatform was given
	Platform *loyaltytest.Server
}

type testOptions struct {
	store    storage.Storage
	platform bool
	settings func(*config.Config)
}

// TestOption customizes NewTestApp
type TestOption func(*testOptions)

// WithPlatform starts a fake loyalty platform and points the app at it
func WithPlatform() TestOption {
	return func(o *testOptions) { o.platform = true }
}

// WithStorage replaces the in-memory storage
func WithStorage(store storage.Storage) TestOption {
	return func(o *testOptions) { o.store = store }
}

// WithSettings adjusts the configuration before wiring
func WithSettings(fn func(*config.Config)) TestOption {
	return func(o *testOptions) { o.settings = fn }
}

// NewTestApp creates an App configured for testing with mocked dependencies.
// Call Close when done.
func NewTestApp(opts ...TestOption) *TestApp {
	var o testOptions
	for _, opt := range opts {
		opt(&o)
	}

	mockClock := mocks.NewMockClock(time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC))
	mockRandom := mocks.NewMockRandom()

	settings := config.Default()
	settings.Admin.APIKey = TestAdminKey
	settings.Campaign.DebugOTP = true

	var platform *loyaltytest.Server
	var client *loyalty.Client
	if o.platform {
		platform = loyaltytest.New()
		settings.Loyalty.BaseURL = platform.BaseURL()
		settings.Loyalty.RedemptionBaseURL = platform.RedemptionBaseURL()
		settings.Loyalty.AccessToken = "test-token"
		client = loyalty.NewClient(settings.Loyalty, platform.Client())
	}
	if o.settings != nil {
		o.settings(settings)
	}

	store := o.store
	if store == nil {
		store = memory.New(mockClock)
	}

	sender := &RecordingSender{}
	wallet := &RecordingWallet{}
	logger := slog.New(slog.NewJSONHandler(io.Discard, nil))

	app, err := newWithDependencies(dependencies{
		store:   store,
		clock:   mockClock,
		random:  mockRandom,
		sender:  sender,
		wallet:  wallet,
		loyalty: client,
	}, settings, logger)
	if err != nil {
		panic("test app: " + err.Error())
	}

	return &TestApp{
		App:        app,
		MockClock:  mockClock,
		MockRandom: mockRandom,
		SMS:        sender,
		Wallet:     wallet,
		Platform:   platform,
	}
}

// Close drains background work and stops the fake platform
func (t *TestApp) Close() {
	t.Dispatcher.Wait()
	_ = t.App.Close()
	if t.Platform != nil {
		t.Platform.Close()
	}
}
