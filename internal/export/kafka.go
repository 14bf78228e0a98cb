// Package export forwards domain events to Kafka for downstream consumers.
// Kafka is an observation path only; live fanout never depends on it.
package export

import (
	"context"
	"encoding/json"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/matheus3301/chatd/internal/bus"
)

const (
	maxBatch     = 100
	writeTimeout = 5 * time.Second
)

// Writer is the subset of *kafka.Writer the exporter uses.
type Writer interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// NewKafkaWriter returns a writer for the given brokers and topic.
func NewKafkaWriter(brokers []string, topic string) *kafka.Writer {
	return &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		BatchTimeout: 50 * time.Millisecond,
		RequiredAcks: kafka.RequireOne,
	}
}

// Record is the JSON value written for each event.
type Record struct {
	Kind      string    `json:"kind"`
	Timestamp time.Time `json:"timestamp"`
	Payload   any       `json:"payload"`
}

// Exporter drains the bus into Kafka in small batches. Events that arrive
// while Kafka is slow are dropped by the bus, never queued unboundedly.
type Exporter struct {
	w      Writer
	bus    *bus.Bus
	logger *zap.Logger
	cancel context.CancelFunc
	done   chan struct{}
}

func New(w Writer, b *bus.Bus, logger *zap.Logger) *Exporter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Exporter{w: w, bus: b, logger: logger}
}

// Start begins exporting every bus event.
func (e *Exporter) Start(ctx context.Context) {
	ch, unsub := e.bus.Subscribe("", 4096)
	ctx, e.cancel = context.WithCancel(ctx)
	e.done = make(chan struct{})
	go func() {
		defer close(e.done)
		defer unsub()
		e.loop(ctx, ch)
	}()
}

// Stop stops the exporter and closes the writer.
func (e *Exporter) Stop() error {
	if e.cancel != nil {
		e.cancel()
		<-e.done
	}
	return e.w.Close()
}

func (e *Exporter) loop(ctx context.Context, ch <-chan bus.Event) {
	for {
		select {
		case evt := <-ch:
			batch := []bus.Event{evt}
		drain:
			for len(batch) < maxBatch {
				select {
				case more := <-ch:
					batch = append(batch, more)
				default:
					break drain
				}
			}
			e.write(ctx, batch)
		case <-ctx.Done():
			return
		}
	}
}

func (e *Exporter) write(ctx context.Context, batch []bus.Event) {
	msgs := make([]kafka.Message, 0, len(batch))
	for _, evt := range batch {
		msg, err := encode(evt)
		if err != nil {
			e.logger.Warn("encode event failed", zap.String("kind", evt.Kind), zap.Error(err))
			continue
		}
		msgs = append(msgs, msg)
	}
	if len(msgs) == 0 {
		return
	}

	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	if err := e.w.WriteMessages(ctx, msgs...); err != nil {
		e.logger.Error("kafka export failed", zap.Int("count", len(msgs)), zap.Error(err))
	}
}

func encode(evt bus.Event) (kafka.Message, error) {
	value, err := json.Marshal(Record{Kind: evt.Kind, Timestamp: evt.Timestamp, Payload: evt.Payload})
	if err != nil {
		return kafka.Message{}, err
	}
	return kafka.Message{Key: []byte(evt.Kind), Value: value, Time: evt.Timestamp}, nil
}
