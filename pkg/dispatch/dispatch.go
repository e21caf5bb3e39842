// Package dispatch provides a bounded in-process delivery queue that moves
// CAPI sends off the storefront request path. The event id generated during
// the synchronous request travels with the queued envelope, so deduplication
// with the browser emission is unaffected. The queue is not durable: items
// dropped on overflow or at shutdown are logged and lost, matching the
// relay's best-effort delivery contract.
package dispatch

import (
	"context"
	"errors"
	"sync"
	"time"

	"meta-pixel-relay/internal/config"
	"meta-pixel-relay/internal/logx"
	"meta-pixel-relay/internal/model"
)

// Sender is the downstream delivery function, normally a capi.Client.
type Sender interface {
	Send(ctx context.Context, settings config.Settings, env model.Envelope) error
}

// ErrQueueFull is returned when the bounded queue cannot accept an item.
var ErrQueueFull = errors.New("dispatch: queue full, event dropped")

type item struct {
	settings config.Settings
	envelope model.Envelope
}

// Dispatcher consumes queued envelopes with a single background worker,
// applying the sender's own retry policy per item.
type Dispatcher struct {
	queue       chan item
	sender      Sender
	logger      *logx.Logger
	sendTimeout time.Duration
	stop        chan struct{}
	wg          sync.WaitGroup
}

// New starts a dispatcher with the given queue capacity. sendTimeout bounds
// one full delivery cycle including retries.
func New(sender Sender, size int, sendTimeout time.Duration, logger *logx.Logger) *Dispatcher {
	if size <= 0 {
		size = 256
	}
	if sendTimeout <= 0 {
		sendTimeout = 2 * time.Minute
	}
	d := &Dispatcher{
		queue:       make(chan item, size),
		sender:      sender,
		logger:      logger,
		sendTimeout: sendTimeout,
		stop:        make(chan struct{}),
	}
	d.wg.Add(1)
	go d.loop()
	return d
}

// Send enqueues the envelope without blocking the caller. A full queue drops
// the event and returns ErrQueueFull; there is no durable retry.
func (d *Dispatcher) Send(_ context.Context, settings config.Settings, env model.Envelope) error {
	select {
	case d.queue <- item{settings: settings, envelope: env}:
		return nil
	default:
		d.logger.Errorf("delivery queue full, dropping %s (ID: %s)", env.EventName, env.EventID)
		return ErrQueueFull
	}
}

// Close stops the worker after draining items already queued.
func (d *Dispatcher) Close() {
	close(d.stop)
	d.wg.Wait()
}

func (d *Dispatcher) loop() {
	defer d.wg.Done()
	for {
		select {
		case it := <-d.queue:
			d.deliver(it)
		case <-d.stop:
			for {
				select {
				case it := <-d.queue:
					d.deliver(it)
				default:
					return
				}
			}
		}
	}
}

func (d *Dispatcher) deliver(it item) {
	ctx, cancel := context.WithTimeout(context.Background(), d.sendTimeout)
	defer cancel()
	// Errors are already logged by the sender; nothing to do here.
	_ = d.sender.Send(ctx, it.settings, it.envelope)
}
