// Package reactor is the Customer-Event Reactor: a long-lived consumer
// loop on the customer.* routing keys that cascade-cancels a blocked or
// deleted customer's Pending transfers. The fetch loop and bounded
// concurrency follow messaging/consumers/graph_sync.go's worker-per-goroutine
// shape paired with engine/worker/pool.go's bounded gammazero/workerpool,
// generalized from Neo4j graph sync to transfer cascade-cancellation, with
// one deliberate departure from the teacher's delivery semantics: a
// handler failure here acknowledges without requeue (poison-pill
// isolation) instead of NAK-ing for redelivery, because the source of
// truth is the customer's own status, recoverable later via
// ReconcileCustomer rather than by replaying the same event forever.
package reactor

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/gammazero/workerpool"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/selcukyavuz/moneybee/internal/engine"
	"github.com/selcukyavuz/moneybee/internal/events"
	"github.com/selcukyavuz/moneybee/internal/logging"
)

// Config tunes the reactor's fetch/dispatch behavior.
type Config struct {
	Workers      int
	BatchSize    int
	FetchMaxWait time.Duration
}

func DefaultConfig() *Config {
	return &Config{
		Workers:      5,
		BatchSize:    20,
		FetchMaxWait: time.Second,
	}
}

// Reactor consumes customer.status.changed, customer.created, and
// customer.deleted, cascade-cancelling Pending transfers on block/delete.
type Reactor struct {
	eng      *engine.Engine
	pool     *workerpool.WorkerPool
	consumer jetstream.Consumer
	cfg      *Config
	log      *logging.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates the durable pull consumer on the customer.* subjects of the
// shared events stream and wires it to eng.
func New(ctx context.Context, bus *events.Bus, eng *engine.Engine, cfg *Config) (*Reactor, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}

	consumer, err := bus.JetStream().CreateOrUpdateConsumer(ctx, events.StreamName, jetstream.ConsumerConfig{
		Durable:       "moneybee-reactor",
		FilterSubject: events.SubjectPrefix + ".customer.>",
		AckPolicy:     jetstream.AckExplicitPolicy,
		MaxAckPending: cfg.Workers * cfg.BatchSize,
	})
	if err != nil {
		return nil, fmt.Errorf("reactor: create consumer: %w", err)
	}

	rctx, cancel := context.WithCancel(ctx)
	return &Reactor{
		eng:      eng,
		pool:     workerpool.New(cfg.Workers),
		consumer: consumer,
		cfg:      cfg,
		log:      logging.New("reactor"),
		ctx:      rctx,
		cancel:   cancel,
	}, nil
}

// NewForDispatchTesting builds a Reactor with no live consumer, for tests
// that exercise Dispatch directly without a NATS connection.
func NewForDispatchTesting(eng *engine.Engine) *Reactor {
	return &Reactor{eng: eng, log: logging.New("reactor")}
}

// Start launches the fetch loop in its own goroutine.
func (r *Reactor) Start() {
	r.wg.Add(1)
	go r.fetchLoop()
}

// Stop cancels the fetch loop and drains the worker pool before returning.
func (r *Reactor) Stop() {
	r.cancel()
	r.wg.Wait()
	r.pool.StopWait()
}

func (r *Reactor) fetchLoop() {
	defer r.wg.Done()

	for {
		select {
		case <-r.ctx.Done():
			return
		default:
		}

		msgs, err := r.consumer.Fetch(r.cfg.BatchSize, jetstream.FetchMaxWait(r.cfg.FetchMaxWait))
		if err != nil {
			if r.ctx.Err() != nil {
				return
			}
			continue
		}

		for msg := range msgs.Messages() {
			msg := msg
			r.pool.Submit(func() {
				if err := r.Dispatch(r.ctx, msg.Subject(), msg.Data()); err != nil {
					r.log.Printf("❌ handler failed for %s: %v (acking without requeue)", msg.Subject(), err)
				}
				msg.Ack()
			})
		}
	}
}

// Dispatch decodes and processes a single message by subject, independent
// of the NATS transport so it can be exercised directly in tests.
func (r *Reactor) Dispatch(ctx context.Context, subject string, data []byte) error {
	switch subject {
	case events.SubjectCustomerStatusChanged:
		var evt events.CustomerStatusChanged
		if err := json.Unmarshal(data, &evt); err != nil {
			return fmt.Errorf("reactor: unmarshal customer.status.changed: %w", err)
		}
		if evt.NewStatus != "Blocked" {
			return nil
		}
		_, err := r.eng.CascadeCancelCustomer(ctx, evt.CustomerID, fmt.Sprintf("customer %s was blocked", evt.CustomerID))
		return err

	case events.SubjectCustomerDeleted:
		var evt events.CustomerDeleted
		if err := json.Unmarshal(data, &evt); err != nil {
			return fmt.Errorf("reactor: unmarshal customer.deleted: %w", err)
		}
		_, err := r.eng.CascadeCancelCustomer(ctx, evt.CustomerID, fmt.Sprintf("customer %s was deleted", evt.CustomerID))
		return err

	case events.SubjectCustomerCreated:
		return nil

	default:
		r.log.Printf("unknown routing key %s, acknowledging", subject)
		return nil
	}
}
