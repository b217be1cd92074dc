package middleware

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"FinCoord/internal/domain/models"
	domrepo "FinCoord/internal/domain/repository"
	applogger "FinCoord/pkg/logger"
)

// ErrPipelineFull is returned when a result cannot be queued.
var ErrPipelineFull = errors.New("result pipeline buffer full")

type retryItem struct {
	sink     domrepo.ResultSink
	result   *models.CoordinationResult
	attempts int
}

// ResultPipeline fans coordination results out to every sink. Deliveries that
// fail are buffered and retried in the background with exponential backoff.
type ResultPipeline struct {
	sinks       []domrepo.ResultSink
	metrics     domrepo.PipelineMetrics
	log         *applogger.Logger
	bufSize     int
	retryMin    time.Duration
	retryMax    time.Duration
	maxAttempts int
	sendTimeout time.Duration

	intake  chan *models.CoordinationResult
	retryCh chan *retryItem
	stopCh  chan struct{}
	wg      sync.WaitGroup
	mu      sync.Mutex
	started bool
	stopped bool
}

type PipelineOption func(*ResultPipeline)

// WithBufferSize sets the size of both the intake and retry buffers.
func WithBufferSize(n int) PipelineOption {
	return func(p *ResultPipeline) {
		if n > 0 {
			p.bufSize = n
		}
	}
}

// WithRetryBackoff sets the retry delay bounds.
func WithRetryBackoff(min, max time.Duration) PipelineOption {
	return func(p *ResultPipeline) {
		if min > 0 {
			p.retryMin = min
		}
		if max >= p.retryMin {
			p.retryMax = max
		}
	}
}

// WithMaxAttempts caps deliveries per sink and result, the first one included.
func WithMaxAttempts(n int) PipelineOption {
	return func(p *ResultPipeline) {
		if n > 0 {
			p.maxAttempts = n
		}
	}
}

// WithSendTimeout bounds a single sink delivery.
func WithSendTimeout(d time.Duration) PipelineOption {
	return func(p *ResultPipeline) {
		if d > 0 {
			p.sendTimeout = d
		}
	}
}

func WithPipelineLogger(l *applogger.Logger) PipelineOption {
	return func(p *ResultPipeline) {
		if l != nil {
			p.log = l
		}
	}
}

// NewResultPipeline creates a pipeline. Nil sinks are skipped.
func NewResultPipeline(metrics domrepo.PipelineMetrics, sinks []domrepo.ResultSink, opts ...PipelineOption) *ResultPipeline {
	p := &ResultPipeline{
		metrics:     metrics,
		log:         applogger.Nop(),
		bufSize:     1000,
		retryMin:    500 * time.Millisecond,
		retryMax:    30 * time.Second,
		maxAttempts: 5,
		sendTimeout: 10 * time.Second,
		stopCh:      make(chan struct{}),
	}
	for _, s := range sinks {
		if s != nil {
			p.sinks = append(p.sinks, s)
		}
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.metrics == nil {
		p.metrics = noopPipelineMetrics{}
	}
	p.intake = make(chan *models.CoordinationResult, p.bufSize)
	p.retryCh = make(chan *retryItem, p.bufSize)
	return p
}

// Sinks lists the configured sink names.
func (p *ResultPipeline) Sinks() []string {
	names := make([]string, len(p.sinks))
	for i, s := range p.sinks {
		names[i] = s.Name()
	}
	return names
}

// Start launches the dispatch and retry loops.
func (p *ResultPipeline) Start(ctx context.Context) {
	p.mu.Lock()
	if p.started || p.stopped {
		p.mu.Unlock()
		return
	}
	p.started = true
	p.mu.Unlock()

	p.wg.Add(2)
	go p.dispatchLoop(ctx)
	go p.retryLoop(ctx)
}

// Deliver queues r for every sink. Before Start, or after Stop, it delivers
// synchronously.
func (p *ResultPipeline) Deliver(ctx context.Context, r *models.CoordinationResult) error {
	if r == nil || len(p.sinks) == 0 {
		return nil
	}
	p.mu.Lock()
	running := p.started && !p.stopped
	p.mu.Unlock()
	if !running {
		return p.dispatch(ctx, r, false)
	}

	select {
	case p.intake <- r:
		p.updateBuffered()
		return nil
	default:
		p.metrics.RecordPipelineDrop()
		p.log.Warn("result pipeline full, dropping result", applogger.String("result_id", r.ID))
		return ErrPipelineFull
	}
}

// Stop stops the loops and flushes queued results once, synchronously.
func (p *ResultPipeline) Stop(ctx context.Context) {
	p.mu.Lock()
	if !p.started || p.stopped {
		p.stopped = true
		p.mu.Unlock()
		return
	}
	p.stopped = true
	p.mu.Unlock()

	close(p.stopCh)
	p.wg.Wait()

	for {
		select {
		case r := <-p.intake:
			_ = p.dispatch(ctx, r, false)
		case it := <-p.retryCh:
			if err := p.send(ctx, it.sink, it.result); err != nil {
				p.metrics.RecordPipelineDrop()
			}
		default:
			p.updateBuffered()
			return
		}
	}
}

// Close stops the pipeline and closes every sink.
func (p *ResultPipeline) Close(ctx context.Context) error {
	p.Stop(ctx)
	var errs []error
	for _, s := range p.sinks {
		if err := s.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close %s: %w", s.Name(), err))
		}
	}
	return errors.Join(errs...)
}

func (p *ResultPipeline) dispatchLoop(ctx context.Context) {
	defer p.wg.Done()
	for {
		select {
		case <-p.stopCh:
			return
		case <-ctx.Done():
			return
		case r := <-p.intake:
			p.updateBuffered()
			_ = p.dispatch(ctx, r, true)
		}
	}
}

// dispatch sends r to every sink. With retry set, failures are queued for the
// retry loop; otherwise the joined error is returned.
func (p *ResultPipeline) dispatch(ctx context.Context, r *models.CoordinationResult, retry bool) error {
	var errs []error
	for _, s := range p.sinks {
		err := p.send(ctx, s, r)
		if err == nil {
			continue
		}
		if !retry {
			errs = append(errs, err)
			continue
		}
		p.requeue(&retryItem{sink: s, result: r, attempts: 1}, err)
	}
	return errors.Join(errs...)
}

func (p *ResultPipeline) send(ctx context.Context, s domrepo.ResultSink, r *models.CoordinationResult) error {
	sctx, cancel := context.WithTimeout(ctx, p.sendTimeout)
	defer cancel()
	err := s.Send(sctx, r)
	p.metrics.RecordSinkDelivery(s.Name(), err == nil)
	if err != nil {
		return fmt.Errorf("sink %s: %w", s.Name(), err)
	}
	return nil
}

func (p *ResultPipeline) requeue(it *retryItem, cause error) {
	if it.attempts >= p.maxAttempts {
		p.metrics.RecordPipelineDrop()
		p.log.Error("result delivery abandoned",
			applogger.String("sink", it.sink.Name()),
			applogger.String("result_id", it.result.ID),
			applogger.Int("attempts", it.attempts),
			applogger.Error(cause),
		)
		return
	}
	select {
	case p.retryCh <- it:
		p.updateBuffered()
		p.log.Warn("result delivery failed, will retry",
			applogger.String("sink", it.sink.Name()),
			applogger.String("result_id", it.result.ID),
			applogger.Int("attempts", it.attempts),
			applogger.Error(cause),
		)
	default:
		p.metrics.RecordPipelineDrop()
		p.log.Error("retry buffer full, dropping result",
			applogger.String("sink", it.sink.Name()),
			applogger.String("result_id", it.result.ID),
		)
	}
}

func (p *ResultPipeline) retryLoop(ctx context.Context) {
	defer p.wg.Done()
	for {
		select {
		case <-p.stopCh:
			return
		case <-ctx.Done():
			return
		case it := <-p.retryCh:
			p.updateBuffered()
			timer := time.NewTimer(p.backoff(it.attempts))
			select {
			case <-timer.C:
			case <-p.stopCh:
				timer.Stop()
				select {
				case p.retryCh <- it:
				default:
					p.metrics.RecordPipelineDrop()
				}
				return
			case <-ctx.Done():
				timer.Stop()
				return
			}
			if err := p.send(ctx, it.sink, it.result); err != nil {
				it.attempts++
				p.requeue(it, err)
			}
		}
	}
}

// backoff doubles from retryMin per attempt, capped at retryMax.
func (p *ResultPipeline) backoff(attempt int) time.Duration {
	d := p.retryMin
	for i := 1; i < attempt && d < p.retryMax; i++ {
		d *= 2
	}
	if d > p.retryMax {
		d = p.retryMax
	}
	return d
}

func (p *ResultPipeline) updateBuffered() {
	p.metrics.SetPipelineBuffered(len(p.intake) + len(p.retryCh))
}

type noopPipelineMetrics struct{}

func (noopPipelineMetrics) RecordSinkDelivery(string, bool) {}
func (noopPipelineMetrics) SetPipelineBuffered(int)         {}
func (noopPipelineMetrics) RecordPipelineDrop()             {}
