package pricefeed

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"

	"github.com/R3E-Network/feed_layer/internal/app/metrics"
	"github.com/R3E-Network/feed_layer/internal/app/system"
	"github.com/R3E-Network/feed_layer/pkg/logger"
)

// DefaultRefreshTimeout bounds a single refresh tick.
const DefaultRefreshTimeout = 25 * time.Second

// Updater is the part of Service the refresher drives.
type Updater interface {
	UpdateAll(ctx context.Context) error
}

var _ system.Service = (*Refresher)(nil)

// Refresher updates every feed tree on a cron schedule. A tick that is still
// running when the next one fires causes that one to be skipped.
type Refresher struct {
	updater  Updater
	schedule cron.Schedule
	spec     string
	timeout  time.Duration
	log      *logger.Logger

	mu      sync.Mutex
	cron    *cron.Cron
	cancel  context.CancelFunc
	first   sync.WaitGroup
	running bool
}

// NewRefresher parses spec with the standard cron parser, which also accepts
// descriptors such as "@every 30s".
func NewRefresher(updater Updater, spec string, timeout time.Duration, log *logger.Logger) (*Refresher, error) {
	schedule, err := cron.ParseStandard(spec)
	if err != nil {
		return nil, fmt.Errorf("parse refresh schedule %q: %w", spec, err)
	}
	if timeout <= 0 {
		timeout = DefaultRefreshTimeout
	}
	if log == nil {
		log = logger.NewDefault("pricefeed-refresher")
	}
	return &Refresher{
		updater:  updater,
		schedule: schedule,
		spec:     spec,
		timeout:  timeout,
		log:      log,
	}, nil
}

func (r *Refresher) Name() string { return "pricefeed-refresher" }

// Start runs one tick immediately and then follows the schedule until Stop
// is called or ctx is cancelled.
func (r *Refresher) Start(ctx context.Context) error {
	r.mu.Lock()
	if r.running {
		r.mu.Unlock()
		return nil
	}
	runCtx, cancel := context.WithCancel(ctx)
	c := cron.New(cron.WithChain(
		cron.Recover(cron.DiscardLogger),
		cron.SkipIfStillRunning(cron.DiscardLogger),
	))
	job := c.Schedule(r.schedule, cron.FuncJob(func() { r.tick(runCtx) }))
	r.cron = c
	r.cancel = cancel
	r.running = true
	r.mu.Unlock()

	// The first tick goes through the wrapped job so a slow start also
	// suppresses overlapping scheduled ticks.
	wrapped := c.Entry(job).WrappedJob
	r.first.Add(1)
	go func() {
		defer r.first.Done()
		wrapped.Run()
	}()
	c.Start()

	r.log.WithField("schedule", r.spec).Info("price feed refresher started")
	return nil
}

// Stop halts the schedule and waits for a running tick to finish, or for ctx.
func (r *Refresher) Stop(ctx context.Context) error {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return nil
	}
	c, cancel := r.cron, r.cancel
	r.running = false
	r.cron = nil
	r.cancel = nil
	r.mu.Unlock()

	cancel()
	stopped := c.Stop()
	done := make(chan struct{})
	go func() {
		defer close(done)
		<-stopped.Done()
		r.first.Wait()
	}()
	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}

	r.log.Info("price feed refresher stopped")
	return nil
}

func (r *Refresher) tick(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	id := uuid.NewString()
	start := time.Now()
	err := r.updater.UpdateAll(ctx)
	metrics.RecordRefresherTick(err)

	entry := r.log.WithField("tick", id).WithField("duration", time.Since(start).String())
	if err != nil {
		entry.WithError(err).Warn("price feed refresh finished with errors")
		return
	}
	entry.Debug("price feed refresh finished")
}
