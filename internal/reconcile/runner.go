package reconcile

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"fintrack/internal/desktop/cache"
)

const DefaultInterval = 5 * time.Minute

// Recorder persists the outcome of each cycle.
type Recorder interface {
	RecordSync(ctx context.Context, rec cache.SyncRecord) error
}

// Runner drives a Reconciler from a single background goroutine, on a ticker and
// whenever Trigger is called.
type Runner struct {
	rec      *Reconciler
	recorder Recorder
	interval time.Duration

	// Lifecycle management
	mu       sync.Mutex
	running  bool
	stopCh   chan struct{}
	stopOnce *sync.Once
	doneCh   chan struct{}
	trigger  chan struct{}
}

func NewRunner(rec *Reconciler, recorder Recorder, interval time.Duration) *Runner {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Runner{
		rec:      rec,
		recorder: recorder,
		interval: interval,
		trigger:  make(chan struct{}, 1),
	}
}

// Start launches the loop and runs a first cycle right away. Returns an error if
// already running.
func (r *Runner) Start(ctx context.Context) error {
	r.mu.Lock()
	if r.running {
		r.mu.Unlock()
		return fmt.Errorf("sync runner is already running")
	}
	r.running = true
	r.stopCh = make(chan struct{})
	r.stopOnce = &sync.Once{}
	r.doneCh = make(chan struct{})
	stopCh, doneCh := r.stopCh, r.doneCh
	r.mu.Unlock()

	go r.runLoop(ctx, stopCh, doneCh)

	r.rec.logger.InfoContext(ctx, "Sync runner started", "interval", r.interval)
	return nil
}

// Stop signals the loop and waits for the current cycle to end. A Stop that times
// out leaves the runner stopping; a later Stop waits for the same loop again.
func (r *Runner) Stop(ctx context.Context) error {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return nil
	}
	stopCh, stopOnce, doneCh := r.stopCh, r.stopOnce, r.doneCh
	r.mu.Unlock()

	stopOnce.Do(func() { close(stopCh) })

	select {
	case <-doneCh:
		r.rec.logger.InfoContext(ctx, "Sync runner stopped gracefully")
		return nil
	case <-ctx.Done():
		r.rec.logger.WarnContext(ctx, "Sync runner stop timed out")
		return ctx.Err()
	}
}

func (r *Runner) IsRunning() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.running
}

// Trigger requests a cycle without waiting for it. Requests made while one is
// already pending collapse into it.
func (r *Runner) Trigger() {
	select {
	case r.trigger <- struct{}{}:
	default:
	}
}

func (r *Runner) runLoop(ctx context.Context, stopCh <-chan struct{}, doneCh chan struct{}) {
	defer func() {
		r.mu.Lock()
		r.running = false
		r.mu.Unlock()
		close(doneCh)
	}()

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	r.RunOnce(ctx)

	for {
		select {
		case <-stopCh:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.RunOnce(ctx)
		case <-r.trigger:
			r.RunOnce(ctx)
		}
	}
}

// RunOnce performs one cycle and records its outcome.
func (r *Runner) RunOnce(ctx context.Context) (Result, error) {
	res, err := r.rec.Sync(ctx)
	if r.recorder == nil || errors.Is(err, context.Canceled) {
		return res, err
	}

	st := r.rec.Status()
	record := cache.SyncRecord{
		FinishedAt: r.rec.now().UTC(),
		State:      string(st.Outcome()),
		Fetched:    res.Fetched,
		Inserted:   res.Inserted,
		Uploaded:   res.Confirmed,
		Message:    st.Message,
	}
	if recErr := r.recorder.RecordSync(ctx, record); recErr != nil {
		r.rec.logger.WarnContext(ctx, "Failed to record sync outcome", "error", recErr)
	}
	return res, err
}
