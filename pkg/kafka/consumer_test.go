package kafka

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingHandler struct {
	calls   atomic.Int32
	failFor int32
	err     error
}

func (h *countingHandler) Topic() string { return "requests" }

func (h *countingHandler) Handle(context.Context, []byte) error {
	if n := h.calls.Add(1); n <= h.failFor {
		return h.err
	}
	return nil
}

func newTestConsumer(t *testing.T, retries int) *Consumer {
	t.Helper()
	c, err := NewConsumer(
		WithConsumerBrokers([]string{"localhost:9092"}),
		WithConsumerRetry(retries, time.Millisecond, 2*time.Millisecond),
	)
	require.NoError(t, err)
	return c
}

func TestNewConsumerRequiresBrokers(t *testing.T) {
	_, err := NewConsumer()
	assert.Error(t, err)
}

func TestStartWithoutHandlersFails(t *testing.T) {
	c := newTestConsumer(t, 0)
	assert.Error(t, c.Start())
}

func TestProcessRetriesTransientFailures(t *testing.T) {
	c := newTestConsumer(t, 3)
	h := &countingHandler{failFor: 2, err: errors.New("broker hiccup")}

	outcome := c.process(h, job{topic: "requests", km: kafka.Message{Value: []byte("{}")}})
	assert.Equal(t, "ok", outcome)
	assert.EqualValues(t, 3, h.calls.Load())
}

func TestProcessStopsOnPermanentError(t *testing.T) {
	c := newTestConsumer(t, 5)
	h := &countingHandler{failFor: 100, err: Permanent(errors.New("bad payload"))}

	outcome := c.process(h, job{topic: "requests"})
	assert.Equal(t, "failed", outcome)
	assert.EqualValues(t, 1, h.calls.Load())
}

func TestProcessGivesUpAfterRetryMax(t *testing.T) {
	c := newTestConsumer(t, 2)
	h := &countingHandler{failFor: 100, err: errors.New("still down")}

	assert.Equal(t, "failed", c.process(h, job{topic: "requests"}))
	assert.EqualValues(t, 3, h.calls.Load())
}

func TestProcessAbortsWhenStopped(t *testing.T) {
	c, err := NewConsumer(
		WithConsumerBrokers([]string{"localhost:9092"}),
		WithConsumerRetry(5, time.Hour, time.Hour),
	)
	require.NoError(t, err)
	c.cancel()

	h := &countingHandler{failFor: 100, err: errors.New("down")}
	assert.Equal(t, "aborted", c.process(h, job{topic: "requests"}))
	assert.EqualValues(t, 1, h.calls.Load())
}

func TestBeforeHookErrorSkipsHandler(t *testing.T) {
	c := newTestConsumer(t, 3)
	c.WithConsumerHook(HookFuncs{
		Before: func(ctx context.Context, _ string, km kafka.Message, data []byte) (context.Context, kafka.Message, []byte, error) {
			return ctx, km, data, &HookError{Code: "ERR_REJECTED"}
		},
	})
	h := &countingHandler{}

	assert.Equal(t, "failed", c.process(h, job{topic: "requests"}))
	assert.EqualValues(t, 0, h.calls.Load())
}

func TestHandlerPanicIsRecovered(t *testing.T) {
	c := newTestConsumer(t, 0)
	c.WithConsumerHook(HookFuncs{
		After: func(context.Context, string, kafka.Message, []byte, error) { panic("boom") },
	})
	assert.Equal(t, "panic", c.process(&countingHandler{}, job{topic: "requests"}))
}

func TestStopIsIdempotentBeforeStart(t *testing.T) {
	c := newTestConsumer(t, 0)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, c.Stop(ctx))
	require.NoError(t, c.Stop(ctx))
}

func TestPartitionLockIsShared(t *testing.T) {
	c := newTestConsumer(t, 0)
	assert.Same(t, c.partitionLock("a", 1), c.partitionLock("a", 1))
	assert.NotSame(t, c.partitionLock("a", 1), c.partitionLock("a", 2))
}
