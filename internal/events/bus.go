// Package events wraps the NATS JetStream connection this backplane
// publishes and consumes on, following the Config/DefaultConfig/NewClient
// shape of messaging/nats/client.go, with the stream and subjects
// generalized from the mesh's liquidity/settlement topics to MoneyBee's
// single topic exchange "moneybee.events".
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

const (
	StreamName    = "MONEYBEE_EVENTS"
	SubjectPrefix = "moneybee.events"

	SubjectTransferCreated   = SubjectPrefix + ".transfer.created"
	SubjectTransferCompleted = SubjectPrefix + ".transfer.completed"
	SubjectTransferCancelled = SubjectPrefix + ".transfer.cancelled"

	SubjectCustomerStatusChanged = SubjectPrefix + ".customer.status.changed"
	SubjectCustomerCreated       = SubjectPrefix + ".customer.created"
	SubjectCustomerDeleted       = SubjectPrefix + ".customer.deleted"
)

// Config holds NATS connection configuration.
type Config struct {
	URL             string
	MaxReconnects   int
	ReconnectWait   time.Duration
	ReconnectJitter time.Duration
}

func DefaultConfig(url string) *Config {
	return &Config{
		URL:             url,
		MaxReconnects:   -1,
		ReconnectWait:   2 * time.Second,
		ReconnectJitter: 500 * time.Millisecond,
	}
}

// Bus wraps the NATS connection with JetStream support.
type Bus struct {
	nc *nats.Conn
	js jetstream.JetStream
}

func Connect(ctx context.Context, cfg *Config) (*Bus, error) {
	opts := []nats.Option{
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.ReconnectJitter(cfg.ReconnectJitter, cfg.ReconnectJitter*2),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			if err != nil {
				log.Printf("[events] disconnected: %v", err)
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Printf("[events] reconnected to %s", nc.ConnectedUrl())
		}),
	}

	nc, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("events: connect: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("events: jetstream: %w", err)
	}

	return &Bus{nc: nc, js: js}, nil
}

func (b *Bus) Close() {
	if b.nc != nil {
		b.nc.Drain()
	}
}

func (b *Bus) JetStream() jetstream.JetStream { return b.js }

// SetupStream creates the durable topic stream transfer and customer
// events both flow through.
func (b *Bus) SetupStream(ctx context.Context) error {
	_, err := b.js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:        StreamName,
		Description: "MoneyBee transfer and customer lifecycle events",
		Subjects:    []string{SubjectPrefix + ".>"},
		Retention:   jetstream.LimitsPolicy,
		MaxAge:      7 * 24 * time.Hour,
		Storage:     jetstream.FileStorage,
		Replicas:    1,
	})
	if err != nil {
		return fmt.Errorf("events: setup stream: %w", err)
	}
	return nil
}

// ---- Outbound payloads ----

type TransferCreated struct {
	TransferID string  `json:"transfer_id"`
	SenderID   string  `json:"sender_id"`
	ReceiverID string  `json:"receiver_id"`
	Amount     float64 `json:"amount"`
	Currency   string  `json:"currency"`
}

type TransferCompleted struct {
	TransferID      string `json:"transfer_id"`
	TransactionCode string `json:"transaction_code"`
}

type TransferCancelled struct {
	TransferID string `json:"transfer_id"`
	Reason     string `json:"reason"`
}

// Publisher is the narrow capability the engine and reactor depend on.
type Publisher interface {
	PublishTransferCreated(ctx context.Context, e TransferCreated) error
	PublishTransferCompleted(ctx context.Context, e TransferCompleted) error
	PublishTransferCancelled(ctx context.Context, e TransferCancelled) error
}

// busPublisher publishes directly post-commit. A publish failure is
// logged with the already-committed transfer id so an operator or
// reconciler can republish; it never rolls back the write that triggered
// it, per the at-least-once design this bus is built for.
type busPublisher struct {
	bus *Bus
}

func NewPublisher(bus *Bus) Publisher {
	return &busPublisher{bus: bus}
}

func (p *busPublisher) publish(ctx context.Context, subject string, payload interface{}, transferID string) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("events: marshal: %w", err)
	}
	if _, err := p.bus.js.Publish(ctx, subject, data); err != nil {
		log.Printf("[events] ❌ publish failed for committed transfer %s on %s: %v", transferID, subject, err)
		return err
	}
	return nil
}

func (p *busPublisher) PublishTransferCreated(ctx context.Context, e TransferCreated) error {
	return p.publish(ctx, SubjectTransferCreated, e, e.TransferID)
}

func (p *busPublisher) PublishTransferCompleted(ctx context.Context, e TransferCompleted) error {
	return p.publish(ctx, SubjectTransferCompleted, e, e.TransferID)
}

func (p *busPublisher) PublishTransferCancelled(ctx context.Context, e TransferCancelled) error {
	return p.publish(ctx, SubjectTransferCancelled, e, e.TransferID)
}
