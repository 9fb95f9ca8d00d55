// Package events publishes lifecycle records to Kafka: worker starts and
// stops, tenant downgrades. A nil Publisher is valid and publishes
// nothing.
package events

import (
	"context"
	"encoding/json"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/segmentio/kafka-go"
)

// Record is one lifecycle event on the wire.
type Record struct {
	Type     string    `json:"type"`
	TenantID int64     `json:"tenant_id"`
	Detail   string    `json:"detail,omitempty"`
	At       time.Time `json:"at"`
}

// Event types.
const (
	TypeWorkerStarted    = "worker_started"
	TypeWorkerStopped    = "worker_stopped"
	TypeTenantDowngraded = "tenant_downgraded"
)

// Publisher writes lifecycle records to one topic. Writes are best-effort
// and never block the flow that produced them beyond a short timeout.
type Publisher struct {
	writer *kafka.Writer
	logger *slog.Logger
}

// New builds a Publisher. Returns nil when brokers or topic is empty,
// which disables publishing.
func New(brokers, topic string, logger *slog.Logger) *Publisher {
	if brokers == "" || topic == "" {
		return nil
	}
	if logger == nil {
		logger = slog.Default()
	}
	w := &kafka.Writer{
		Addr:         kafka.TCP(strings.Split(brokers, ",")...),
		Topic:        topic,
		Balancer:     &kafka.LeastBytes{},
		RequiredAcks: kafka.RequireOne,
		Async:        false,
	}
	return &Publisher{writer: w, logger: logger}
}

// Publish writes one record.
func (p *Publisher) Publish(ctx context.Context, rec Record) {
	if p == nil {
		return
	}
	if rec.At.IsZero() {
		rec.At = time.Now().UTC()
	}
	value, err := json.Marshal(rec)
	if err != nil {
		p.logger.Error("lifecycle event encode failed", "type", rec.Type, "error", err)
		return
	}
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	msg := kafka.Message{
		Key:   []byte(strconv.FormatInt(rec.TenantID, 10)),
		Value: value,
		Time:  rec.At,
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		p.logger.Error("lifecycle event publish failed", "type", rec.Type, "tenant", rec.TenantID, "error", err)
	}
}

// Close flushes and closes the underlying writer.
func (p *Publisher) Close() error {
	if p == nil {
		return nil
	}
	return p.writer.Close()
}
