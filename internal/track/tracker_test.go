package track_test

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"meta-pixel-relay/internal/config"
	"meta-pixel-relay/internal/dedup"
	"meta-pixel-relay/internal/logx"
	"meta-pixel-relay/internal/model"
	"meta-pixel-relay/internal/track"
	"meta-pixel-relay/internal/usercontext"
)

type fakeSender struct {
	sent []model.Envelope
	last config.Settings
	err  error
}

func (f *fakeSender) Send(_ context.Context, settings config.Settings, env model.Envelope) error {
	f.last = settings
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, env)
	return nil
}

func testConfig(t *testing.T, mutate func(*config.Settings)) *config.Config {
	s := config.DefaultSettings()
	s.PixelEnabled = true
	s.CAPIEnabled = true
	s.PixelID = "123456789012345"
	s.AccessToken = "token-1"
	if mutate != nil {
		mutate(&s)
	}
	cfg := &config.Config{}
	cfg.SetStore(config.NewMemoryStore(s))
	require.NoError(t, cfg.Reload())
	return cfg
}

func newTracker(t *testing.T, cfg *config.Config, client, delivery track.Sender) *track.Tracker {
	logger := logx.New(filepath.Join(t.TempDir(), "relay.log"), false, 0, 0)
	return track.New(cfg, client, delivery, dedup.NewMemoryMarkerStore(), logger)
}

func newRequest() *track.Request {
	return track.NewRequest(usercontext.Input{SessionID: "sess-1"}, "https://shop.example/page")
}

func sampleOrder() model.Order {
	return model.Order{
		ID: 900,
		Items: []model.OrderItem{
			{
				Product:   model.Product{ID: 42, SKU: "WID-9", Price: decimal.RequireFromString("19.99"), Currency: "USD"},
				Quantity:  1,
				LineTotal: decimal.RequireFromString("19.99"),
			},
		},
		Total:    decimal.RequireFromString("19.99"),
		Currency: "USD",
		Billing:  model.Customer{Email: "buyer@example.com"},
	}
}

func TestBothPathsShareEventID(t *testing.T) {
	sender := &fakeSender{}
	tracker := newTracker(t, testConfig(t, nil), sender, nil)
	req := newRequest()

	id := tracker.ViewContent(context.Background(), req, model.Product{ID: 42, SKU: "WID-9", Currency: "USD"})
	require.Len(t, id, 32)

	require.Len(t, sender.sent, 1)
	require.Equal(t, id, sender.sent[0].EventID)
	require.Equal(t, model.ViewContent, sender.sent[0].EventName)
	require.Equal(t, "https://shop.example/page", sender.sent[0].EventSourceURL)

	events := req.Pixel.Events()
	require.Len(t, events, 1)
	require.Equal(t, id, events[0].EventID)
	require.Equal(t, model.ViewContent, events[0].EventName)
}

func TestDisabledEventIsSkipped(t *testing.T) {
	sender := &fakeSender{}
	cfg := testConfig(t, func(s *config.Settings) { s.Events.Search = false })
	tracker := newTracker(t, cfg, sender, nil)
	req := newRequest()

	require.Empty(t, tracker.Search(context.Background(), req, "widgets"))
	require.Empty(t, sender.sent)
	require.Empty(t, req.Pixel.Events())
}

func TestSameEventTypeFiresOncePerRequest(t *testing.T) {
	sender := &fakeSender{}
	tracker := newTracker(t, testConfig(t, nil), sender, nil)
	req := newRequest()

	first := tracker.PageView(context.Background(), req, "home")
	second := tracker.PageView(context.Background(), req, "home")
	require.NotEmpty(t, first)
	require.Empty(t, second)
	require.Len(t, sender.sent, 1)
}

func TestPixelDisabledStillDeliversServerSide(t *testing.T) {
	sender := &fakeSender{}
	cfg := testConfig(t, func(s *config.Settings) { s.PixelEnabled = false })
	tracker := newTracker(t, cfg, sender, nil)
	req := newRequest()

	id := tracker.PageView(context.Background(), req, "home")
	require.NotEmpty(t, id)
	require.Len(t, sender.sent, 1)
	require.Empty(t, req.Pixel.Events())
}

func TestPurchaseMarkedOnlyAfterDelivery(t *testing.T) {
	sender := &fakeSender{}
	tracker := newTracker(t, testConfig(t, nil), sender, nil)

	id := tracker.Purchase(context.Background(), newRequest(), sampleOrder())
	require.NotEmpty(t, id)
	require.Len(t, sender.sent, 1)

	// A second lifecycle trigger for the same order must not send again.
	require.Empty(t, tracker.Purchase(context.Background(), newRequest(), sampleOrder()))
	require.Len(t, sender.sent, 1)
}

func TestFailedPurchaseStaysRetryable(t *testing.T) {
	sender := &fakeSender{err: errors.New("delivery failed")}
	tracker := newTracker(t, testConfig(t, nil), sender, nil)

	tracker.Purchase(context.Background(), newRequest(), sampleOrder())
	require.Empty(t, sender.sent)

	// The marker was not set, so the next trigger retries and succeeds.
	sender.err = nil
	id := tracker.Purchase(context.Background(), newRequest(), sampleOrder())
	require.NotEmpty(t, id)
	require.Len(t, sender.sent, 1)
}

func TestPurchaseIgnoresZeroOrderID(t *testing.T) {
	sender := &fakeSender{}
	tracker := newTracker(t, testConfig(t, nil), sender, nil)

	order := sampleOrder()
	order.ID = 0
	require.Empty(t, tracker.Purchase(context.Background(), newRequest(), order))
	require.Empty(t, sender.sent)
}

func TestPurchaseBypassesAsyncDelivery(t *testing.T) {
	client := &fakeSender{}
	delivery := &fakeSender{}
	tracker := newTracker(t, testConfig(t, nil), client, delivery)

	tracker.PageView(context.Background(), newRequest(), "home")
	require.Len(t, delivery.sent, 1)
	require.Empty(t, client.sent)

	tracker.Purchase(context.Background(), newRequest(), sampleOrder())
	require.Len(t, client.sent, 1)
	require.Len(t, delivery.sent, 1)
}

func TestPurchaseUsesOrderIdentity(t *testing.T) {
	sender := &fakeSender{}
	tracker := newTracker(t, testConfig(t, nil), sender, nil)

	tracker.Purchase(context.Background(), newRequest(), sampleOrder())
	require.Len(t, sender.sent, 1)
	require.NotEmpty(t, sender.sent[0].UserData.Email)
}

func TestEmptySearchTermIgnored(t *testing.T) {
	sender := &fakeSender{}
	tracker := newTracker(t, testConfig(t, nil), sender, nil)

	require.Empty(t, tracker.Search(context.Background(), newRequest(), ""))
	require.Empty(t, sender.sent)
}

func TestSelfTestSuppressesTestMode(t *testing.T) {
	client := &fakeSender{}
	cfg := testConfig(t, func(s *config.Settings) {
		s.TestMode = true
		s.TestEventCode = "TEST123"
	})
	tracker := newTracker(t, cfg, client, &fakeSender{})

	require.NoError(t, tracker.SelfTest(context.Background()))
	require.Len(t, client.sent, 1)
	require.Equal(t, model.PageView, client.sent[0].EventName)
	require.Contains(t, client.sent[0].EventID, "test_connection_")
	require.False(t, client.last.TestMode)
	require.Empty(t, client.last.TestEventCode)
}

func TestSelfTestRejectsBadConfig(t *testing.T) {
	client := &fakeSender{}

	cfg := testConfig(t, func(s *config.Settings) { s.PixelID = "" })
	require.Error(t, newTracker(t, cfg, client, nil).SelfTest(context.Background()))

	cfg = testConfig(t, func(s *config.Settings) { s.AccessToken = "" })
	require.Error(t, newTracker(t, cfg, client, nil).SelfTest(context.Background()))

	cfg = testConfig(t, func(s *config.Settings) { s.CAPIEnabled = false })
	require.Error(t, newTracker(t, cfg, client, nil).SelfTest(context.Background()))

	require.Empty(t, client.sent)
}
