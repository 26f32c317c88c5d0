// Package stream publishes engine events to kafka.
package stream

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/log"
	"github.com/helinwang/matchdex/pkg/dex"
	"github.com/segmentio/kafka-go"
)

// DefaultTopic receives the events when no topic is configured.
const DefaultTopic = "matchdex.events"

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Publisher is a dex.EventSink writing every event as a JSON message.
// Events of the same pair share a key, so they stay ordered within a
// partition.
type Publisher struct {
	writer  messageWriter
	timeout time.Duration
}

// NewPublisher creates a publisher writing to topic on brokers.
func NewPublisher(brokers []string, topic string, timeout time.Duration) *Publisher {
	if topic == "" {
		topic = DefaultTopic
	}

	w := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
		WriteTimeout: timeout,
	}
	return newPublisher(w, timeout)
}

func newPublisher(w messageWriter, timeout time.Duration) *Publisher {
	return &Publisher{writer: w, timeout: timeout}
}

func eventKey(e dex.Event) []byte {
	if e.Token == (common.Address{}) && e.CounterToken == (common.Address{}) {
		return []byte(e.Type)
	}

	if e.CounterToken == (common.Address{}) {
		return []byte(e.Token.Hex())
	}
	return []byte(dex.NewPairKey(e.Token, e.CounterToken).String())
}

func (p *Publisher) Emit(ctx context.Context, e dex.Event) error {
	b, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("error encoding event %s: %w", e.ID, err)
	}

	if p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}

	err = p.writer.WriteMessages(ctx, kafka.Message{
		Key:   eventKey(e),
		Value: b,
		Headers: []kafka.Header{
			{Key: "type", Value: []byte(e.Type)},
		},
	})
	if err != nil {
		log.Warn("error publishing event", "id", e.ID, "type", e.Type, "err", err)
		return err
	}
	return nil
}

func (p *Publisher) Close() error {
	return p.writer.Close()
}
