package processor

import (
	"context"
	"log"
	"time"

	"dcbstore/internal/clock"
	"dcbstore/internal/metrics"
	"dcbstore/pkg/dcb"
)

// progressRepo is the subset of *ProgressStore the Runtime drives.
// Declared as an interface so Tick's state machine can be exercised
// against a fake in tests without a database.
type progressRepo interface {
	AutoRegister(ctx context.Context, processorID, instanceID string) error
	GetStatus(ctx context.Context, processorID string) (Status, error)
	GetLastPosition(ctx context.Context, processorID string) (uint64, error)
	UpdateProgress(ctx context.Context, processorID string, position uint64) error
	RecordError(ctx context.Context, processorID string, message string, maxErrors int) error
	ResetErrorCount(ctx context.Context, processorID string) error
	SetStatus(ctx context.Context, processorID string, status Status) error
}

// elector is the subset of *LeaderElector the Runtime drives.
type elector interface {
	TryAcquire(ctx context.Context, processorID, instanceID string) (bool, error)
	Release(ctx context.Context, processorID, instanceID string) error
}

// eventFetcher is the subset of *Fetcher the Runtime drives.
type eventFetcher interface {
	Fetch(ctx context.Context, cfg Config, lastPosition uint64) ([]dcb.Event, error)
}

// Runtime drives one processor's poll loop per spec §4.9: acquire
// leader -> auto-register -> check status -> check backoff -> fetch ->
// handle -> advance progress, one tick at a time. Built fresh - the
// teacher has no downstream processor, so there is nothing to adapt
// here beyond its pgx/advisory-lock idioms already folded into
// LeaderElector and ProgressStore.
type Runtime struct {
	cfg      Config
	progress progressRepo
	elector  elector
	fetcher  eventFetcher
	handler  Handler
	clock    clock.Clock
	metrics  metrics.Sink

	emptyPollCount int
	skipCounter    int
}

func NewRuntime(cfg Config, progress *ProgressStore, elector *LeaderElector, fetcher *Fetcher, handler Handler, clk clock.Clock, sink metrics.Sink) *Runtime {
	if clk == nil {
		clk = clock.Real()
	}
	if sink == nil {
		sink = metrics.NoOp()
	}
	return &Runtime{cfg: cfg, progress: progress, elector: elector, fetcher: fetcher, handler: handler, clock: clk, metrics: sink}
}

// Tick runs exactly one iteration of the state machine described in
// spec §4.9. It never blocks beyond the database calls it makes.
func (r *Runtime) Tick(ctx context.Context) error {
	isLeader, err := r.elector.TryAcquire(ctx, r.cfg.ProcessorID, r.cfg.InstanceID)
	if err != nil {
		return err
	}
	if !isLeader {
		return nil
	}

	if err := r.progress.AutoRegister(ctx, r.cfg.ProcessorID, r.cfg.InstanceID); err != nil {
		return err
	}

	status, err := r.progress.GetStatus(ctx, r.cfg.ProcessorID)
	if err != nil {
		return err
	}
	if status != StatusActive {
		return nil
	}

	if r.skipCounter > 0 {
		r.skipCounter--
		return nil
	}

	start := r.clock.Now()

	pos, err := r.progress.GetLastPosition(ctx, r.cfg.ProcessorID)
	if err != nil {
		return err
	}

	batch, err := r.fetcher.Fetch(ctx, r.cfg, pos)
	if err != nil {
		return err
	}

	if len(batch) == 0 {
		r.emptyPollCount++
		r.skipCounter = backoff(r.emptyPollCount, r.cfg.BaseSkip, r.cfg.Growth, r.cfg.MaxSkip)
		return nil
	}
	r.emptyPollCount = 0

	handled, handleErr := r.handler.Handle(ctx, r.cfg.ProcessorID, batch)
	if handled > 0 {
		if err := r.progress.UpdateProgress(ctx, r.cfg.ProcessorID, batch[handled-1].Position); err != nil {
			return err
		}
	}

	if handleErr != nil {
		if err := r.progress.RecordError(ctx, r.cfg.ProcessorID, handleErr.Error(), r.cfg.MaxErrors); err != nil {
			return err
		}
		r.metrics.ProcessingCycle(r.cfg.ProcessorID, handled, r.clock.Now().Sub(start))
		return nil
	}

	if err := r.progress.ResetErrorCount(ctx, r.cfg.ProcessorID); err != nil {
		return err
	}
	r.metrics.ProcessingCycle(r.cfg.ProcessorID, handled, r.clock.Now().Sub(start))
	return nil
}

// Run drives Tick on a fixed interval until ctx is cancelled, checking
// the shutdown signal between ticks as spec §5's cancellation model
// requires - an in-flight tick always runs to completion.
func (r *Runtime) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = defaultTickInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			_ = r.elector.Release(context.Background(), r.cfg.ProcessorID, r.cfg.InstanceID)
			return
		case <-ticker.C:
			if err := r.Tick(ctx); err != nil {
				log.Printf("processor %s: tick error: %v", r.cfg.ProcessorID, err)
			}
		}
	}
}

// Pause/Resume/Reset are the operator interventions spec §4.9's state
// machine names, surfaced here for cmd/walletd's control-plane HTTP
// handlers.
func (r *Runtime) Pause(ctx context.Context) error {
	return r.progress.SetStatus(ctx, r.cfg.ProcessorID, StatusPaused)
}

func (r *Runtime) Resume(ctx context.Context) error {
	return r.progress.SetStatus(ctx, r.cfg.ProcessorID, StatusActive)
}

func (r *Runtime) Reset(ctx context.Context) error {
	return r.progress.ResetErrorCount(ctx, r.cfg.ProcessorID)
}
