// Package broker tees accepted data lines into Kafka for downstream
// consumers, with a dead-letter topic for lines the coordinator could not
// parse. The tee is optional and fire-and-forget: Kafka being down never
// affects session state.
package broker

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/carnegiemellonracing/PiDAQ/internal/config"
)

type Tee struct {
	main   *kafka.Writer
	dlq    *kafka.Writer
	logger *log.Logger
}

// NewTee builds the tee, or returns nil when no Kafka brokers are configured.
// All methods are nil-safe.
func NewTee(cfg *config.Config) *Tee {
	if len(cfg.KafkaBrokers) == 0 {
		return nil
	}

	balancer := &kafka.Hash{}
	main := &kafka.Writer{
		Addr:     kafka.TCP(cfg.KafkaBrokers...),
		Topic:    cfg.KafkaTopic,
		Balancer: balancer,

		BatchSize:    1000,
		BatchBytes:   1 << 20,
		BatchTimeout: 5 * time.Millisecond,

		RequiredAcks: kafka.RequireOne,
		Async:        true,
		Compression:  kafka.Snappy,
	}
	dlq := &kafka.Writer{
		Addr:     kafka.TCP(cfg.KafkaBrokers...),
		Topic:    cfg.KafkaDLQTopic,
		Balancer: balancer,

		BatchSize:    200,
		BatchBytes:   512 << 10,
		BatchTimeout: 10 * time.Millisecond,

		RequiredAcks: kafka.RequireOne,
		Async:        true,
		Compression:  kafka.Snappy,
	}

	return &Tee{main: main, dlq: dlq, logger: cfg.Logger}
}

func (t *Tee) Close() {
	if t == nil {
		return
	}
	_ = t.main.Close()
	_ = t.dlq.Close()
}

// Publish tees one accepted raw line, keyed by device id so a device's points
// stay on one partition.
func (t *Tee) Publish(deviceID string, raw []byte) {
	if t == nil {
		return
	}
	err := t.main.WriteMessages(context.Background(), kafka.Message{
		Key:   []byte(deviceID),
		Value: raw,
	})
	if err != nil {
		t.logger.Printf("[kafka] write error (main): %v", err)
	}
}

// PublishMalformed wraps an unparseable line in a diagnostic envelope and
// sends it to the dead-letter topic.
func (t *Tee) PublishMalformed(raw []byte, cause error) {
	if t == nil {
		return
	}
	envelope := map[string]any{
		"error":      cause.Error(),
		"original":   string(raw),
		"receivedAt": time.Now().UTC().Format(time.RFC3339Nano),
	}
	buf, _ := json.Marshal(envelope)
	err := t.dlq.WriteMessages(context.Background(), kafka.Message{
		Key:   []byte("malformed"),
		Value: buf,
	})
	if err != nil {
		t.logger.Printf("[kafka] write error (dlq): %v", err)
	}
}
