// Package listener fans the node adapter's long-lived subscription
// streams into a Redis-backed event bus, and runs the startup
// reconciliation pass before the first stream event is consumed (spec.md
// §4.5). Each stream reconnects independently with capped exponential
// backoff so a single feed dropping does not stall the others; publishing
// through internal/eventbus rather than calling the Event Service inline
// means a crashed listener process does not drop an in-flight event — the
// consumer group picks it back up on restart.
package listener

import (
	"context"
	"fmt"
	"sync"
	"time"

	"wallet-server/internal/eventbus"
	"wallet-server/internal/eventsvc"
	"wallet-server/internal/invoicesvc"
	"wallet-server/internal/metrics"
	"wallet-server/internal/nodeadapter"
	"wallet-server/internal/paymentsvc"
	"wallet-server/pkg/logger"

	"go.uber.org/zap"
)

const (
	initialBackoff = time.Second
	maxBackoff     = time.Minute

	streamName    = "wallet.events"
	consumerGroup = "eventsvc"
	consumerName  = "listener"
)

type Service struct {
	node     nodeadapter.Client
	events   *eventsvc.Service
	invoices *invoicesvc.Service
	payments *paymentsvc.Service
	bus      *eventbus.StreamBus
	currency string
	metrics  *metrics.Metrics
}

func New(node nodeadapter.Client, events *eventsvc.Service, invoices *invoicesvc.Service, payments *paymentsvc.Service, bus *eventbus.StreamBus, currency string, m *metrics.Metrics) *Service {
	if currency == "" {
		currency = "BTC"
	}
	return &Service{node: node, events: events, invoices: invoices, payments: payments, bus: bus, currency: currency, metrics: m}
}

// publish encodes payload as a stream envelope and hands it to the event
// bus; a publish failure only drops this one event, matching the
// at-most-once-from-listener / at-least-once-from-bus tradeoff the
// handler's idempotent WHERE predicates are built to tolerate.
func (s *Service) publish(ctx context.Context, eventType eventbus.EventType, payload any, timestamp *time.Time) {
	env, err := eventbus.NewEnvelope(eventType, payload, timestamp)
	if err != nil {
		logger.Error("failed to encode event envelope", zap.String("type", string(eventType)), zap.Error(err))
		return
	}
	data, err := env.ToJSON()
	if err != nil {
		logger.Error("failed to marshal event envelope", zap.String("type", string(eventType)), zap.Error(err))
		return
	}
	if _, err := s.bus.Publish(ctx, streamName, data); err != nil {
		logger.Error("failed to publish event", zap.String("type", string(eventType)), zap.Error(err))
	}
}

func (s *Service) reconnect(stream string) {
	if s.metrics != nil {
		s.metrics.ListenerReconnect(stream)
	}
}

func (s *Service) sawEvent(stream string) {
	if s.metrics != nil {
		s.metrics.ListenerEvent(stream)
	}
}

// Run blocks until ctx is cancelled. It first reconciles anything left
// Pending from a prior run, then streams live updates on three
// independent goroutines (spec.md §4.5).
func (s *Service) Run(ctx context.Context) error {
	if n, err := s.invoices.Sync(ctx); err != nil {
		logger.Warn("listener startup: invoice sync failed", zap.Error(err))
	} else {
		logger.Info("listener startup: invoice sync complete", zap.Int("settled", n))
	}
	if n, err := s.payments.Sync(ctx); err != nil {
		logger.Warn("listener startup: payment sync failed", zap.Error(err))
	} else {
		logger.Info("listener startup: payment sync complete", zap.Int("resolved", n))
	}

	if err := s.bus.DeclareStream(ctx, streamName, consumerGroup); err != nil {
		return fmt.Errorf("failed to declare event stream: %w", err)
	}

	var wg sync.WaitGroup
	wg.Add(4)
	go func() { defer wg.Done(); s.runInvoiceStream(ctx) }()
	go func() { defer wg.Done(); s.runPaymentStream(ctx) }()
	go func() { defer wg.Done(); s.runOnchainStream(ctx) }()
	go func() { defer wg.Done(); s.runDispatcher(ctx) }()
	wg.Wait()
	return ctx.Err()
}

// runDispatcher drains the event bus and applies each envelope to the
// Event Service, the consumer-group side of the producer/consumer split
// that lets the listener's subscription goroutines stay cheap and lossy
// while settlement itself is durable (spec.md §4.4 idempotent handlers).
func (s *Service) runDispatcher(ctx context.Context) {
	err := s.bus.Consume(ctx, streamName, consumerGroup, consumerName, func(_ string, data []byte) error {
		env, err := eventbus.FromJSON(data)
		if err != nil {
			logger.Error("failed to decode event envelope", zap.Error(err))
			return nil // malformed envelope can never succeed; ack and drop it.
		}
		return s.dispatch(ctx, env)
	})
	if err != nil && ctx.Err() == nil {
		logger.Error("event dispatcher stopped unexpectedly", zap.Error(err))
	}
}

func (s *Service) dispatch(ctx context.Context, env *eventbus.Envelope) error {
	var paymentTime time.Time
	if t := env.Time(); t != nil {
		paymentTime = *t
	}

	switch env.Type {
	case eventbus.EventInvoicePaid:
		var p eventbus.InvoicePaidPayload
		if err := env.DecodePayload(&p); err != nil {
			return err
		}
		return s.events.InvoicePaid(ctx, eventsvc.InvoicePaidInput{
			PaymentHash:        p.PaymentHash,
			AmountReceivedMsat: p.AmountReceivedMsat,
			FeeMsat:            p.FeeMsat,
			PaymentTime:        paymentTime,
		})
	case eventbus.EventPaySuccess:
		var p eventbus.PaySuccessPayload
		if err := env.DecodePayload(&p); err != nil {
			return err
		}
		return s.events.PaySuccess(ctx, eventsvc.PaySuccessInput{
			PaymentHash: p.PaymentHash,
			FeeMsat:     p.FeeMsat,
			Preimage:    p.Preimage,
			PaymentTime: paymentTime,
		})
	case eventbus.EventPayFailure:
		var p eventbus.PayFailurePayload
		if err := env.DecodePayload(&p); err != nil {
			return err
		}
		return s.events.PayFailure(ctx, eventsvc.PayFailureInput{PaymentHash: p.PaymentHash, Reason: p.Reason})
	case eventbus.EventOnchainDeposit:
		var p eventbus.OnchainDepositPayload
		if err := env.DecodePayload(&p); err != nil {
			return err
		}
		return s.events.OnchainDeposit(ctx, eventsvc.OnchainDepositInput{
			Txid:        p.Txid,
			OutputIndex: p.OutputIndex,
			Address:     p.Address,
			AmountSat:   p.AmountSat,
			BlockHeight: p.BlockHeight,
			Currency:    p.Currency,
		})
	case eventbus.EventOnchainWithdrawal:
		var p eventbus.OnchainWithdrawalPayload
		if err := env.DecodePayload(&p); err != nil {
			return err
		}
		return s.events.OnchainWithdrawal(ctx, eventsvc.OnchainWithdrawalInput{
			Txid:        p.Txid,
			BtcOutputID: p.BtcOutputID,
			BlockHeight: p.BlockHeight,
			Timestamp:   env.Time(),
		})
	default:
		logger.Warn("dropping event envelope of unknown type", zap.String("type", string(env.Type)))
		return nil
	}
}

func (s *Service) runInvoiceStream(ctx context.Context) {
	backoff := initialBackoff
	for ctx.Err() == nil {
		ch, err := s.node.SubscribeInvoices(ctx)
		if err != nil {
			logger.Error("failed to subscribe to invoice updates", zap.Error(err))
			s.reconnect("invoices")
			backoff = sleepBackoff(ctx, backoff)
			continue
		}
		backoff = initialBackoff

		for ev := range ch {
			s.sawEvent("invoices")
			s.publish(ctx, eventbus.EventInvoicePaid, &eventbus.InvoicePaidPayload{
				PaymentHash:        ev.PaymentHash,
				AmountReceivedMsat: ev.AmountReceivedMsat,
				FeeMsat:            ev.FeeMsat,
			}, &ev.SettledAt)
		}
		if ctx.Err() == nil {
			logger.Warn("invoice subscription stream closed, reconnecting")
		}
	}
}

func (s *Service) runPaymentStream(ctx context.Context) {
	backoff := initialBackoff
	for ctx.Err() == nil {
		ch, err := s.node.SubscribePayments(ctx)
		if err != nil {
			logger.Error("failed to subscribe to payment updates", zap.Error(err))
			s.reconnect("payments")
			backoff = sleepBackoff(ctx, backoff)
			continue
		}
		backoff = initialBackoff

		for ev := range ch {
			s.sawEvent("payments")
			if ev.Failed {
				s.publish(ctx, eventbus.EventPayFailure, &eventbus.PayFailurePayload{PaymentHash: ev.PaymentHash, Reason: ev.Reason}, nil)
				continue
			}
			s.publish(ctx, eventbus.EventPaySuccess, &eventbus.PaySuccessPayload{
				PaymentHash: ev.PaymentHash,
				FeeMsat:     ev.FeeMsat,
				Preimage:    ev.Preimage,
			}, &ev.SettledAt)
		}
		if ctx.Err() == nil {
			logger.Warn("payment subscription stream closed, reconnecting")
		}
	}
}

func (s *Service) runOnchainStream(ctx context.Context) {
	backoff := initialBackoff
	for ctx.Err() == nil {
		ch, err := s.node.SubscribeOnchainTx(ctx)
		if err != nil {
			logger.Error("failed to subscribe to onchain updates", zap.Error(err))
			s.reconnect("onchain")
			backoff = sleepBackoff(ctx, backoff)
			continue
		}
		backoff = initialBackoff

		for ev := range ch {
			s.sawEvent("onchain")
			// Outbound withdrawal confirmation is reconciled separately by
			// paymentsvc.Sync, which knows the payment-to-output linkage;
			// every event on this stream is published as a deposit, and
			// eventsvc.OnchainDeposit drops addresses it does not track.
			s.publish(ctx, eventbus.EventOnchainDeposit, &eventbus.OnchainDepositPayload{
				Txid:        ev.Txid,
				OutputIndex: ev.OutputIndex,
				Address:     ev.Address,
				AmountSat:   ev.AmountSat,
				BlockHeight: ev.BlockHeight,
				Currency:    s.currency,
			}, nil)
		}
		if ctx.Err() == nil {
			logger.Warn("onchain subscription stream closed, reconnecting")
		}
	}
}

// sleepBackoff waits out the current backoff (or ctx cancellation,
// whichever comes first) and returns the next, capped backoff duration.
func sleepBackoff(ctx context.Context, current time.Duration) time.Duration {
	select {
	case <-time.After(current):
	case <-ctx.Done():
	}
	next := current * 2
	if next > maxBackoff {
		next = maxBackoff
	}
	return next
}
