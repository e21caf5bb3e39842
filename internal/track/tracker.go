// Package track maps storefront lifecycle moments to Meta Pixel business
// events. For each trigger it generates one event id, queues the browser-side
// emission and delivers the server-side copy, so both paths share the
// deduplication key. Tracking failures are logged and never propagate to the
// hosting storefront request.
package track

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"meta-pixel-relay/internal/config"
	"meta-pixel-relay/internal/dedup"
	"meta-pixel-relay/internal/eventid"
	"meta-pixel-relay/internal/logx"
	"meta-pixel-relay/internal/model"
	"meta-pixel-relay/internal/payload"
	"meta-pixel-relay/internal/pixel"
	"meta-pixel-relay/internal/usercontext"
)

// Sender delivers one envelope under the given settings. capi.Client is the
// synchronous implementation; pkg/dispatch wraps one for async delivery.
type Sender interface {
	Send(ctx context.Context, settings config.Settings, env model.Envelope) error
}

// Request bundles the per-request state of one storefront invocation: the
// one-shot dedup scope, the browser emission queue and the visitor context.
type Request struct {
	Scope     *dedup.RequestScope
	Pixel     *pixel.Queue
	User      usercontext.Input
	SourceURL string
}

// NewRequest returns a request with a fresh scope and queue.
func NewRequest(user usercontext.Input, sourceURL string) *Request {
	return &Request{
		Scope:     dedup.NewRequestScope(),
		Pixel:     pixel.NewQueue(),
		User:      user,
		SourceURL: sourceURL,
	}
}

// Tracker orchestrates event emission for every business event type.
type Tracker struct {
	cfg      *config.Config
	client   Sender // synchronous path, used for Purchase and the self-test
	delivery Sender // default path, may be an async dispatcher
	resolver *usercontext.Resolver
	markers  dedup.MarkerStore
	logger   *logx.Logger
	now      func() time.Time
}

// New wires a tracker. delivery may be nil, in which case every event goes
// through the synchronous client.
func New(cfg *config.Config, client Sender, delivery Sender, markers dedup.MarkerStore, logger *logx.Logger) *Tracker {
	if delivery == nil {
		delivery = client
	}
	return &Tracker{
		cfg:      cfg,
		client:   client,
		delivery: delivery,
		resolver: usercontext.NewResolver(),
		markers:  markers,
		logger:   logger,
		now:      time.Now,
	}
}

// SetNow overrides the clock, for tests.
func (t *Tracker) SetNow(now func() time.Time) { t.now = now }

// emit runs the shared pipeline for one trigger: toggle check, per-request
// latch, id generation, browser queueing and server delivery. It returns the
// event id used for both paths, or "" when the event was skipped.
func (t *Tracker) emit(ctx context.Context, req *Request, name model.EventName, identifier string, data model.CustomData, sync bool) (string, error) {
	settings := t.cfg.Settings()
	if !settings.EventEnabled(name) {
		return "", nil
	}
	if !req.Scope.FirstFire(name) {
		return "", nil
	}

	id := eventid.New(name, identifier)
	if settings.PixelEnabled && settings.PixelID != "" {
		req.Pixel.Add(name, id, data)
	}

	user := t.resolver.Resolve(req.User, settings.DefaultGeo)
	env := model.NewEnvelope(name, id, t.now(), req.SourceURL, user, data)

	sender := t.delivery
	if sync {
		sender = t.client
	}
	if err := sender.Send(ctx, settings, env); err != nil {
		return id, err
	}
	return id, nil
}

// Tracking failures must never abort the hosting storefront request, so the
// public trigger methods swallow delivery errors; the client already logged
// them. Purchase inspects the error before the marker is set.

// PageView tracks a page render. pageID ties the id to the rendered page.
func (t *Tracker) PageView(ctx context.Context, req *Request, pageID string) string {
	id, _ := t.emit(ctx, req, model.PageView, pageID, model.CustomData{}, false)
	return id
}

// ViewContent tracks a product page view.
func (t *Tracker) ViewContent(ctx context.Context, req *Request, p model.Product) string {
	data := t.builder().ViewContent(p)
	id, _ := t.emit(ctx, req, model.ViewContent, strconv.FormatInt(p.ID, 10), data, false)
	return id
}

// ViewCategory tracks a category listing view.
func (t *Tracker) ViewCategory(ctx context.Context, req *Request, name string, termID int64) string {
	data := t.builder().ViewCategory(name)
	id, _ := t.emit(ctx, req, model.ViewCategory, strconv.FormatInt(termID, 10), data, false)
	return id
}

// AddToWishlist tracks a wishlist addition.
func (t *Tracker) AddToWishlist(ctx context.Context, req *Request, p model.Product, wishlistID string) string {
	data := t.builder().AddToWishlist(p)
	identifier := fmt.Sprintf("%d_%s", p.ID, wishlistID)
	id, _ := t.emit(ctx, req, model.AddToWishlist, identifier, data, false)
	return id
}

// AddToCart tracks a cart addition.
func (t *Tracker) AddToCart(ctx context.Context, req *Request, p model.Product, quantity int) string {
	data := t.builder().AddToCart(p, quantity)
	identifier := fmt.Sprintf("%d_%d", p.ID, quantity)
	id, _ := t.emit(ctx, req, model.AddToCart, identifier, data, false)
	return id
}

// InitiateCheckout tracks the start of checkout for the cart.
func (t *Tracker) InitiateCheckout(ctx context.Context, req *Request, cart model.Cart) string {
	data := t.builder().Checkout(cart)
	id, _ := t.emit(ctx, req, model.InitiateCheckout, cart.Hash, data, false)
	return id
}

// AddPaymentInfo tracks payment-info entry for the cart.
func (t *Tracker) AddPaymentInfo(ctx context.Context, req *Request, cart model.Cart) string {
	data := t.builder().Checkout(cart)
	id, _ := t.emit(ctx, req, model.AddPaymentInfo, cart.Hash, data, false)
	return id
}

// Purchase tracks a completed order. Multiple trigger points (thank-you
// render, payment webhook) funnel here; the durable marker dedupes them. The
// marker is set only after confirmed delivery so a failed send stays eligible
// for retry on the next trigger, and delivery is always synchronous for the
// same reason.
func (t *Tracker) Purchase(ctx context.Context, req *Request, order model.Order) string {
	settings := t.cfg.Settings()
	if !settings.EventEnabled(model.Purchase) || order.ID == 0 {
		return ""
	}
	tracked, err := t.markers.Tracked(order.ID)
	if err != nil {
		t.logger.Errorf("purchase marker lookup failed for order %d: %v", order.ID, err)
		return ""
	}
	if tracked {
		t.logger.Infof("purchase for order %d already tracked, skipping", order.ID)
		return ""
	}
	if req.User.Order == nil {
		req.User.Order = &order
	}
	data := t.builder().Purchase(order)
	id, err := t.emit(ctx, req, model.Purchase, strconv.FormatInt(order.ID, 10), data, true)
	if err != nil {
		return id
	}
	if id != "" {
		if err := t.markers.MarkTracked(order.ID); err != nil {
			t.logger.Errorf("failed to persist purchase marker for order %d: %v", order.ID, err)
		}
	}
	return id
}

// Search tracks a search submission. Empty terms are ignored.
func (t *Tracker) Search(ctx context.Context, req *Request, term string) string {
	if term == "" {
		return ""
	}
	data := t.builder().Search(term)
	id, _ := t.emit(ctx, req, model.Search, term, data, false)
	return id
}

// Lead tracks a contact-form submission.
func (t *Tracker) Lead(ctx context.Context, req *Request, formName, formID string) string {
	data := t.builder().Lead(formName)
	id, _ := t.emit(ctx, req, model.Lead, formID, data, false)
	return id
}

// CompleteRegistration tracks a new customer registration.
func (t *Tracker) CompleteRegistration(ctx context.Context, req *Request, customerID int64) string {
	data := t.builder().Registration()
	id, _ := t.emit(ctx, req, model.CompleteRegistration, strconv.FormatInt(customerID, 10), data, false)
	return id
}

// SelfTest validates the delivery configuration and sends one synthetic
// PageView with test-mode tagging suppressed, so the probe does not show up
// in the test events console. The settings copy keeps the suppression scoped
// to this call; nothing is persisted and nothing is marked tracked.
func (t *Tracker) SelfTest(ctx context.Context) error {
	settings := t.cfg.Settings()
	if settings.PixelID == "" {
		return fmt.Errorf("self-test: pixel id is not configured")
	}
	if err := config.ValidatePixelID(settings.PixelID); err != nil {
		return fmt.Errorf("self-test: %w", err)
	}
	if settings.AccessToken == "" {
		return fmt.Errorf("self-test: access token is not configured")
	}
	if !settings.CAPIEnabled {
		return fmt.Errorf("self-test: CAPI is disabled in settings")
	}

	settings.TestMode = false
	settings.TestEventCode = ""

	id := fmt.Sprintf("test_connection_%d", t.now().Unix())
	user := t.resolver.Resolve(usercontext.Input{SessionID: id}, settings.DefaultGeo)
	env := model.NewEnvelope(model.PageView, id, t.now(), "", user, model.CustomData{})
	if err := t.client.Send(ctx, settings, env); err != nil {
		return fmt.Errorf("self-test: %w", err)
	}
	return nil
}

func (t *Tracker) builder() *payload.Builder {
	return payload.NewBuilder(t.cfg.Settings().ContentIDFormat)
}
