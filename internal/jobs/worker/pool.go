package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/yungbote/video-gateway/internal/platform/logger"
)

var (
	ErrQueueFull = errors.New("worker queue is full")
	ErrClosed    = errors.New("worker pool is closed")
)

// Task is a unit of background work. Kind labels logs and metrics.
type Task struct {
	Kind string
	Key  string
	Run  func(ctx context.Context) error
	// Timeout overrides the pool default for this task.
	Timeout time.Duration
}

// Observer receives task outcomes; observability wires prometheus in here.
type Observer interface {
	TaskFinished(kind, outcome string, d time.Duration)
	QueueDepth(n int)
}

type Config struct {
	Concurrency int
	QueueSize   int
	// TaskTimeout bounds tasks that carry no Timeout of their own. Zero means none.
	TaskTimeout time.Duration
}

// Pool drains a bounded queue with a fixed number of goroutines. Submit never
// blocks; the submitting request does not wait for the task.
type Pool struct {
	log      *logger.Logger
	observer Observer
	queue    chan Task
	conc     int
	timeout  time.Duration

	mu      sync.RWMutex
	closed  bool
	started bool
	wg      sync.WaitGroup

	ctx    context.Context
	cancel context.CancelFunc
}

func NewPool(baseLog *logger.Logger, cfg Config, observer Observer) *Pool {
	if cfg.Concurrency < 1 {
		cfg.Concurrency = 1
	}
	if cfg.QueueSize < 1 {
		cfg.QueueSize = 64
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Pool{
		log:      baseLog.With("component", "WorkerPool"),
		observer: observer,
		queue:    make(chan Task, cfg.QueueSize),
		conc:     cfg.Concurrency,
		timeout:  cfg.TaskTimeout,
		ctx:      ctx,
		cancel:   cancel,
	}
}

func (p *Pool) Start() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started || p.closed {
		return
	}
	p.started = true
	p.log.Info("Starting worker pool", "concurrency", p.conc, "queue_size", cap(p.queue))
	for i := 0; i < p.conc; i++ {
		p.wg.Add(1)
		go p.runLoop(i + 1)
	}
}

func (p *Pool) Submit(t Task) error {
	if t.Run == nil {
		return fmt.Errorf("task %q has no Run func", t.Kind)
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return ErrClosed
	}
	select {
	case p.queue <- t:
		if p.observer != nil {
			p.observer.QueueDepth(len(p.queue))
		}
		return nil
	default:
		return ErrQueueFull
	}
}

// Close stops intake and waits for queued and running tasks until ctx expires,
// after which running tasks see their context cancelled.
func (p *Pool) Close(ctx context.Context) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	close(p.queue)
	started := p.started
	p.mu.Unlock()

	if !started {
		p.cancel()
		return nil
	}
	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		p.cancel()
		return nil
	case <-ctx.Done():
		p.cancel()
		<-done
		return ctx.Err()
	}
}

func (p *Pool) runLoop(workerID int) {
	defer p.wg.Done()
	for t := range p.queue {
		if p.observer != nil {
			p.observer.QueueDepth(len(p.queue))
		}
		p.run(workerID, t)
	}
}

func (p *Pool) run(workerID int, t Task) {
	start := time.Now()
	outcome := "ok"
	defer func() {
		if r := recover(); r != nil {
			outcome = "panic"
			p.log.Error("Task panic",
				"worker_id", workerID,
				"kind", t.Kind,
				"key", t.Key,
				"panic", r,
			)
		}
		if p.observer != nil {
			p.observer.TaskFinished(t.Kind, outcome, time.Since(start))
		}
	}()
	ctx := p.ctx
	timeout := t.Timeout
	if timeout <= 0 {
		timeout = p.timeout
	}
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	if err := t.Run(ctx); err != nil {
		outcome = "error"
		p.log.Warn("Task failed",
			"worker_id", workerID,
			"kind", t.Kind,
			"key", t.Key,
			"error", err,
		)
	}
}
