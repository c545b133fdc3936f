// Package dispatcher manages the bus subscription, deserializes and
// validates incoming signals, decides between immediate execution and
// deferral per the mode/market-hours policy matrix, and
// ack/nacks each message. It is the boundary between the pub/sub bus and
// the rest of the execution core.
package dispatcher

import (
	"context"
	"time"

	"github.com/prism-insight/execution-core/internal/config"
	"github.com/prism-insight/execution-core/internal/domain"
	"github.com/prism-insight/execution-core/internal/validator"
	"github.com/rs/zerolog"
)

// Message is the minimal envelope the dispatcher needs from a bus delivery:
// the raw payload, and Ack/Nack to report processing disposition back to
// the subscription.
type Message struct {
	Data []byte
	Ack  func()
	Nack func()
}

// Subscriber abstracts cloud.google.com/go/pubsub's Subscription.Receive so
// tests can substitute an in-process fake; it is the one interface this
// core defines for an otherwise-external collaborator.
type Subscriber interface {
	Receive(ctx context.Context, handle func(ctx context.Context, msg Message)) error
}

// Submitter is the slice of coordinator.Coordinator the dispatcher depends
// on.
type Submitter interface {
	Submit(ctx context.Context, signal domain.Signal) (*domain.OrderResult, error)
}

// Enqueuer is the slice of scheduledorders.Store the dispatcher depends on.
type Enqueuer interface {
	Enqueue(signal domain.Signal, executeAfter time.Time) (int64, error)
}

// Calendar is the slice of marketcalendar.Calendar the dispatcher depends
// on to decide immediate-vs-deferred and compute the next open.
type Calendar interface {
	IsOpen(market domain.Market, t time.Time) bool
	NextOpen(market domain.Market, t time.Time) time.Time
}

// Notifier is the slice of notifier.Manager the dispatcher depends on for
// side-effect fan-out; never gates the dispatch decision.
type Notifier interface {
	NotifySignal(signal domain.Signal, result *domain.OrderResult)
}

// Dispatcher wires a Subscriber to validation, the mode/market-hours policy
// matrix, and the coordinator/scheduled-store handoff.
type Dispatcher struct {
	sub       Subscriber
	mode      config.Mode
	submitter Submitter
	enqueuer  Enqueuer
	calendar  Calendar
	notifier  Notifier
	log       zerolog.Logger
}

// New builds a Dispatcher. mode selects the policy-matrix row;
// it is fixed for the process lifetime (demo and real never cross).
func New(sub Subscriber, mode config.Mode, submitter Submitter, enqueuer Enqueuer, calendar Calendar, notifier Notifier, log zerolog.Logger) *Dispatcher {
	return &Dispatcher{
		sub:       sub,
		mode:      mode,
		submitter: submitter,
		enqueuer:  enqueuer,
		calendar:  calendar,
		notifier:  notifier,
		log:       log.With().Str("component", "dispatcher").Logger(),
	}
}

// Run blocks, receiving messages until ctx is cancelled or the subscriber's
// Receive call returns an error.
func (d *Dispatcher) Run(ctx context.Context) error {
	return d.sub.Receive(ctx, d.handle)
}

func (d *Dispatcher) handle(ctx context.Context, msg Message) {
	signal, err := validator.Parse(msg.Data)
	if err != nil {
		d.log.Error().Err(err).Msg("signal failed validation, nacking")
		msg.Nack()
		return
	}

	open := d.calendar.IsOpen(signal.Market, time.Now())

	switch d.mode {
	case config.ModeDryRun:
		d.log.Info().Str("ticker", signal.Ticker).Str("signal_type", string(signal.SignalType)).
			Bool("market_open", open).Msg("dry-run: signal logged, no broker call")
		if d.notifier != nil {
			d.notifier.NotifySignal(*signal, nil)
		}
		msg.Ack()
		return

	case config.ModeReal:
		// real mode submits regardless of market-open state; the venue
		// itself queues or rejects the order per its own rules.
		d.submit(ctx, msg, *signal)
		return

	case config.ModeDemo:
		if open {
			d.submit(ctx, msg, *signal)
			return
		}
		d.defer_(msg, *signal)
		return

	default:
		d.log.Error().Str("mode", string(d.mode)).Msg("unknown mode, nacking")
		msg.Nack()
	}
}

func (d *Dispatcher) submit(ctx context.Context, msg Message, signal domain.Signal) {
	result, err := d.submitter.Submit(ctx, signal)
	if err != nil {
		d.log.Error().Err(err).Str("ticker", signal.Ticker).Msg("coordinator submit failed")
		msg.Nack()
		return
	}
	if d.notifier != nil {
		d.notifier.NotifySignal(signal, result)
	}
	msg.Ack()
}

func (d *Dispatcher) defer_(msg Message, signal domain.Signal) {
	executeAfter := d.calendar.NextOpen(signal.Market, time.Now())
	if _, err := d.enqueuer.Enqueue(signal, executeAfter); err != nil {
		d.log.Error().Err(err).Str("ticker", signal.Ticker).Msg("enqueue failed")
		msg.Nack()
		return
	}
	if d.notifier != nil {
		d.notifier.NotifySignal(signal, &domain.OrderResult{Skipped: true, Reason: "deferred to next market open"})
	}
	msg.Ack()
}
