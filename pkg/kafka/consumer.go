package kafka

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/segmentio/kafka-go"

	applogger "FinCoord/pkg/logger"
)

// ErrPermanent marks a failure that retrying cannot fix. The message is dead-lettered on the first attempt.
var ErrPermanent = errors.New("permanent message failure")

// Permanent wraps err with ErrPermanent. Nil stays nil.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrPermanent, err)
}

// MessageHandler consumes the payloads of one topic.
type MessageHandler interface {
	Topic() string
	Handle(context.Context, []byte) error
}

type job struct {
	topic string
	km    kafka.Message
}

// Consumer fans messages from one reader per topic into a bounded worker pool.
// Messages of the same partition are handled one at a time, and an offset is
// committed only after success or after the message reached the DLQ.
type Consumer struct {
	cfg      *ConsumerConfig
	log      *applogger.Logger
	hook     ConsumerHook
	handlers map[string]MessageHandler
	readers  map[string]*kafka.Reader
	dlq      *kafka.Writer

	jobs    chan job
	ctx     context.Context
	cancel  context.CancelFunc
	fetchWG sync.WaitGroup
	workWG  sync.WaitGroup

	stopOnce sync.Once
	parts    sync.Map // "topic/partition" -> *sync.Mutex
}

// NewConsumer builds a consumer. Readers are created by Start.
func NewConsumer(opts ...ConsumerOption) (*Consumer, error) {
	cfg := defaultConsumerConfig()
	for _, opt := range opts {
		opt(cfg)
	}
	if len(cfg.Brokers) == 0 {
		return nil, errors.New("kafka consumer: brokers are required")
	}

	ctx, cancel := context.WithCancel(context.Background())
	c := &Consumer{
		cfg:      cfg,
		log:      cfg.Logger.With(applogger.String("component", "kafka_consumer")),
		hook:     NoopHook{},
		handlers: make(map[string]MessageHandler),
		readers:  make(map[string]*kafka.Reader),
		jobs:     make(chan job, cfg.BufferSize),
		ctx:      ctx,
		cancel:   cancel,
	}
	if cfg.DLQTopic != "" {
		c.dlq = &kafka.Writer{
			Addr:     kafka.TCP(cfg.Brokers...),
			Topic:    cfg.DLQTopic,
			Balancer: &kafka.Hash{},
		}
	}
	consumerStats.init()
	return c, nil
}

// WithConsumerHook replaces the lifecycle hook. Call before Start.
func (c *Consumer) WithConsumerHook(h ConsumerHook) {
	if h != nil {
		c.hook = h
	}
}

// RegisterHandler binds h to its topic. A second handler for the same topic is ignored.
func (c *Consumer) RegisterHandler(h MessageHandler) {
	topic := h.Topic()
	if _, dup := c.handlers[topic]; dup {
		c.log.Warn("duplicate topic handler ignored", applogger.String("topic", topic))
		return
	}
	c.handlers[topic] = h
}

// Start opens the readers and launches workers and fetch loops.
func (c *Consumer) Start() error {
	if len(c.handlers) == 0 {
		return errors.New("kafka consumer: no handlers registered")
	}

	for i := 0; i < c.cfg.WorkerCount; i++ {
		c.workWG.Add(1)
		go c.work()
	}
	for topic := range c.handlers {
		r := c.cfg.reader(topic)
		c.readers[topic] = r
		c.fetchWG.Add(1)
		go c.fetch(topic, r)
	}

	c.log.Info("consumer started",
		applogger.String("group_id", c.cfg.GroupID),
		applogger.Int("topics", len(c.readers)),
		applogger.Int("workers", c.cfg.WorkerCount))
	return nil
}

// Stop halts fetching, lets workers drain what was already queued, then
// closes readers. Offsets of unprocessed messages stay uncommitted.
func (c *Consumer) Stop(ctx context.Context) error {
	var err error
	c.stopOnce.Do(func() {
		c.cancel()
		c.fetchWG.Wait()
		close(c.jobs)

		drained := make(chan struct{})
		go func() {
			c.workWG.Wait()
			close(drained)
		}()
		select {
		case <-drained:
		case <-ctx.Done():
			err = fmt.Errorf("kafka consumer: drain workers: %w", ctx.Err())
		}

		for topic, r := range c.readers {
			if cerr := r.Close(); cerr != nil {
				c.log.Warn("reader close failed", applogger.String("topic", topic), applogger.Error(cerr))
			}
		}
		if c.dlq != nil {
			if cerr := c.dlq.Close(); cerr != nil {
				c.log.Warn("dlq writer close failed", applogger.Error(cerr))
			}
		}
		c.log.Info("consumer stopped")
	})
	return err
}

// fetch is the only sender on c.jobs for its topic; Stop waits for it before closing the channel.
func (c *Consumer) fetch(topic string, r *kafka.Reader) {
	defer c.fetchWG.Done()
	failures := 0
	for {
		km, err := r.FetchMessage(c.ctx)
		if c.ctx.Err() != nil {
			return
		}
		if err != nil {
			failures++
			c.log.Error("fetch failed", applogger.String("topic", topic), applogger.Int("failures", failures), applogger.Error(err))
			if !c.sleep(backoffWithJitter(c.cfg.BackoffMin, c.cfg.BackoffMax, failures)) {
				return
			}
			continue
		}
		failures = 0

		select {
		case c.jobs <- job{topic: topic, km: km}:
			consumerStats.queueDepth.WithLabelValues(topic).Set(float64(len(c.jobs)))
		case <-c.ctx.Done():
			return
		}
	}
}

func (c *Consumer) work() {
	defer c.workWG.Done()
	for j := range c.jobs {
		h, ok := c.handlers[j.topic]
		if !ok {
			continue
		}
		started := time.Now()
		outcome := c.process(h, j)
		consumerStats.handled.WithLabelValues(j.topic, outcome).Inc()
		consumerStats.latency.WithLabelValues(j.topic).Observe(time.Since(started).Seconds())
	}
}

// process runs one message to completion and reports its outcome label.
func (c *Consumer) process(h MessageHandler, j job) (outcome string) {
	mu := c.partitionLock(j.topic, j.km.Partition)
	mu.Lock()
	defer mu.Unlock()

	defer func() {
		if r := recover(); r != nil {
			c.log.Error("handler panic", applogger.String("topic", j.topic), applogger.Any("panic", r))
			outcome = "panic"
		}
	}()

	err, attempts, aborted := c.handleWithRetry(h, j)
	switch {
	case aborted:
		return "aborted"
	case err == nil:
		c.commit(j)
		return "ok"
	}

	c.hook.OnError(context.Background(), j.topic, j.km, j.km.Value, err)
	c.log.Error("message failed",
		applogger.String("topic", j.topic),
		applogger.Int("partition", j.km.Partition),
		applogger.Int64("offset", j.km.Offset),
		applogger.Int("attempts", attempts),
		applogger.Error(err))

	if c.dlq == nil {
		return "failed"
	}
	if derr := c.deadLetter(j, err); derr != nil {
		c.log.Error("dlq write failed", applogger.String("dlq_topic", c.cfg.DLQTopic), applogger.Error(derr))
		return "failed"
	}
	c.commit(j)
	return "dead_lettered"
}

// handleWithRetry returns aborted when the consumer stopped during a backoff wait.
func (c *Consumer) handleWithRetry(h MessageHandler, j job) (err error, attempts int, aborted bool) {
	for {
		attempts++
		ctx, km, data, herr := c.hook.BeforeHandle(context.Background(), j.topic, j.km, j.km.Value)
		if herr != nil {
			return herr, attempts, false
		}
		err = h.Handle(ctx, data)
		c.hook.AfterHandle(ctx, j.topic, km, data, err)

		if err == nil || errors.Is(err, ErrPermanent) || attempts > c.cfg.RetryMax {
			return err, attempts, false
		}
		c.hook.OnError(ctx, j.topic, km, data, err)
		if !c.sleep(backoffWithJitter(c.cfg.BackoffMin, c.cfg.BackoffMax, attempts)) {
			return err, attempts, true
		}
	}
}

func (c *Consumer) deadLetter(j job, cause error) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	headers := append([]kafka.Header{
		{Key: "source_topic", Value: []byte(j.topic)},
		{Key: "source_partition", Value: []byte(fmt.Sprint(j.km.Partition))},
		{Key: "source_offset", Value: []byte(fmt.Sprint(j.km.Offset))},
		{Key: "error", Value: []byte(cause.Error())},
	}, j.km.Headers...)
	return c.dlq.WriteMessages(ctx, kafka.Message{
		Key:     j.km.Key,
		Value:   j.km.Value,
		Headers: headers,
		Time:    time.Now(),
	})
}

func (c *Consumer) commit(j job) {
	r := c.readers[j.topic]
	if r == nil {
		return
	}
	var err error
	for attempt := 1; attempt <= 3; attempt++ {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		err = r.CommitMessages(ctx, j.km)
		cancel()
		if err == nil {
			return
		}
		time.Sleep(backoffWithJitter(50*time.Millisecond, 500*time.Millisecond, attempt))
	}
	c.log.Error("offset commit failed",
		applogger.String("topic", j.topic),
		applogger.Int64("offset", j.km.Offset),
		applogger.Error(err))
}

func (c *Consumer) partitionLock(topic string, partition int) *sync.Mutex {
	key := fmt.Sprintf("%s/%d", topic, partition)
	mu, _ := c.parts.LoadOrStore(key, &sync.Mutex{})
	return mu.(*sync.Mutex)
}

// sleep waits for d and reports false if the consumer stopped first.
func (c *Consumer) sleep(d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-c.ctx.Done():
		return false
	}
}

// backoffWithJitter doubles lo per attempt up to hi and subtracts up to half as jitter.
func backoffWithJitter(lo, hi time.Duration, attempt int) time.Duration {
	if lo <= 0 {
		lo = 50 * time.Millisecond
	}
	if hi < lo {
		hi = lo
	}
	d := lo
	for i := 1; i < attempt && d < hi; i++ {
		d *= 2
	}
	if d > hi {
		d = hi
	}
	if half := int64(d) / 2; half > 0 {
		d -= time.Duration(rand.Int63n(half))
	}
	return d
}

type consumerMetrics struct {
	once       sync.Once
	queueDepth *prometheus.GaugeVec
	handled    *prometheus.CounterVec
	latency    *prometheus.HistogramVec
}

var consumerStats consumerMetrics

func (m *consumerMetrics) init() {
	m.once.Do(func() {
		m.queueDepth = promauto.NewGaugeVec(prometheus.GaugeOpts{
			Name: "fincoord_kafka_consumer_queue_depth",
			Help: "Messages fetched but not yet picked up by a worker",
		}, []string{"topic"})
		m.handled = promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "fincoord_kafka_consumer_messages_total",
			Help: "Consumed messages by outcome",
		}, []string{"topic", "outcome"})
		m.latency = promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "fincoord_kafka_consumer_handle_seconds",
			Help:    "Time from dequeue to final outcome, retries included",
			Buckets: prometheus.DefBuckets,
		}, []string{"topic"})
	})
}
