package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/segmentio/kafka-go"
)

// Message is one record handed to PublishBatch. Value follows the same encoding rules as Publish.
type Message struct {
	Key     []byte
	Value   interface{}
	Headers []kafka.Header
}

// Producer publishes records through a single shared kafka.Writer.
type Producer struct {
	writer *kafka.Writer
	codec  string
}

// NewProducer builds a producer; no connection is made until the first write.
func NewProducer(opts ...ProducerOption) (*Producer, error) {
	cfg := defaultProducerConfig()
	for _, opt := range opts {
		opt(cfg)
	}
	if len(cfg.Brokers) == 0 {
		return nil, errors.New("kafka producer: brokers are required")
	}
	producerStats.init()
	return &Producer{writer: cfg.writer(), codec: cfg.Compression}, nil
}

// Publish writes one record. []byte and string values are sent as is, anything else as JSON.
func (p *Producer) Publish(ctx context.Context, topic string, key []byte, value interface{}) error {
	return p.PublishBatch(ctx, topic, []Message{{Key: key, Value: value}})
}

// PublishMessage writes an unkeyed record. It satisfies the log collector's publisher interface.
func (p *Producer) PublishMessage(ctx context.Context, topic string, payload interface{}) error {
	return p.Publish(ctx, topic, nil, payload)
}

// PublishBatch writes all messages in one call. Nothing is sent if any value fails to encode.
func (p *Producer) PublishBatch(ctx context.Context, topic string, messages []Message) error {
	if len(messages) == 0 {
		return nil
	}
	records, size, err := toRecords(topic, messages)
	if err != nil {
		return err
	}

	started := time.Now()
	err = p.writer.WriteMessages(ctx, records...)
	producerStats.observe(topic, p.codec, len(records), size, time.Since(started), err)
	if err != nil {
		return fmt.Errorf("publish %d message(s) to %s: %w", len(records), topic, err)
	}
	return nil
}

func (p *Producer) Close() error {
	if p == nil || p.writer == nil {
		return nil
	}
	return p.writer.Close()
}

func toRecords(topic string, messages []Message) ([]kafka.Message, int, error) {
	now := time.Now()
	out := make([]kafka.Message, len(messages))
	size := 0
	for i, m := range messages {
		payload, err := encodeValue(m.Value)
		if err != nil {
			return nil, 0, fmt.Errorf("message %d: %w", i, err)
		}
		out[i] = kafka.Message{Topic: topic, Key: m.Key, Value: payload, Headers: m.Headers, Time: now}
		size += len(payload)
	}
	return out, size, nil
}

func encodeValue(value interface{}) ([]byte, error) {
	switch v := value.(type) {
	case []byte:
		return v, nil
	case string:
		return []byte(v), nil
	case json.RawMessage:
		return v, nil
	}
	b, err := json.Marshal(value)
	if err != nil {
		return nil, fmt.Errorf("encode value: %w", err)
	}
	return b, nil
}

type producerMetrics struct {
	once     sync.Once
	messages *prometheus.CounterVec
	bytes    *prometheus.CounterVec
	latency  *prometheus.HistogramVec
}

var producerStats producerMetrics

func (m *producerMetrics) init() {
	m.once.Do(func() {
		m.messages = promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "fincoord_kafka_producer_messages_total",
			Help: "Messages written to Kafka by outcome",
		}, []string{"topic", "compression", "result"})
		m.bytes = promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "fincoord_kafka_producer_bytes_total",
			Help: "Payload bytes written to Kafka",
		}, []string{"topic"})
		m.latency = promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "fincoord_kafka_producer_write_seconds",
			Help:    "WriteMessages latency",
			Buckets: prometheus.DefBuckets,
		}, []string{"topic"})
	})
}

func (m *producerMetrics) observe(topic, codec string, count, size int, took time.Duration, err error) {
	if m.messages == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.messages.WithLabelValues(topic, codec, result).Add(float64(count))
	if err == nil {
		m.bytes.WithLabelValues(topic).Add(float64(size))
	}
	m.latency.WithLabelValues(topic).Observe(took.Seconds())
}
