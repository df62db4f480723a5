package notifier

import (
	"context"
	"sync"

	"PreBurstSentinel/internal/metrics"
	"PreBurstSentinel/internal/model"

	"github.com/rs/zerolog/log"
)

// Notifier receives lifecycle events. Notify must not block the caller.
type Notifier interface {
	Notify(ev model.Event)
}

// Sender delivers a formatted message.
type Sender interface {
	SendWithRetry(ctx context.Context, text string, maxRetries int) error
}

// Nop discards every event.
type Nop struct{}

func (Nop) Notify(model.Event) {}

// Dispatcher queues events on a bounded buffer and delivers them from a single goroutine,
// so a slow or failing chat never stalls a scan. Events arriving while the buffer is full are dropped.
type Dispatcher struct {
	sender  Sender
	retries int
	metrics *metrics.Metrics
	queue   chan model.Event
	done    chan struct{}
	once    sync.Once
}

// NewDispatcher creates a dispatcher with the given buffer size.
func NewDispatcher(sender Sender, buffer, retries int, m *metrics.Metrics) *Dispatcher {
	if buffer <= 0 {
		buffer = 64
	}
	return &Dispatcher{
		sender:  sender,
		retries: retries,
		metrics: m,
		queue:   make(chan model.Event, buffer),
		done:    make(chan struct{}),
	}
}

// Notify enqueues ev without blocking.
func (d *Dispatcher) Notify(ev model.Event) {
	select {
	case d.queue <- ev:
	default:
		d.metrics.NotifyDrop()
		log.Warn().Str("pair", ev.Pair).Str("kind", string(ev.Kind)).Msg("notification buffer full, dropping event")
	}
}

// Run delivers queued events until ctx is cancelled. Events still queued at that point are logged and discarded.
func (d *Dispatcher) Run(ctx context.Context) {
	defer d.once.Do(func() { close(d.done) })
	for {
		select {
		case ev := <-d.queue:
			d.deliver(ctx, ev)
		case <-ctx.Done():
			for {
				select {
				case ev := <-d.queue:
					log.Warn().Str("pair", ev.Pair).Str("kind", string(ev.Kind)).Msg("shutdown, notification not delivered")
				default:
					return
				}
			}
		}
	}
}

// Done is closed once Run returns.
func (d *Dispatcher) Done() <-chan struct{} { return d.done }

func (d *Dispatcher) deliver(ctx context.Context, ev model.Event) {
	if err := d.sender.SendWithRetry(ctx, FormatEvent(ev), d.retries); err != nil {
		d.metrics.NotifyFailure()
		log.Error().Err(err).Str("pair", ev.Pair).Str("kind", string(ev.Kind)).Msg("notification failed")
		return
	}
	log.Debug().Str("pair", ev.Pair).Str("kind", string(ev.Kind)).Msg("notification sent")
}
