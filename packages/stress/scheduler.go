package stress

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// IterationFunc runs one full session iteration for virtual user vu
type IterationFunc func(ctx context.Context, vu int)

// Scheduler decides how many virtual users should be running and paces
// iteration starts
type Scheduler struct {
	config  *Config
	limiter *rate.Limiter
}

// NewScheduler creates a new scheduler with the given config
func NewScheduler(config *Config) *Scheduler {
	s := &Scheduler{config: config}
	if config.IterationRate > 0 {
		burst := int(config.IterationRate)
		if burst < 1 {
			burst = 1
		}
		s.limiter = rate.NewLimiter(rate.Limit(config.IterationRate), burst)
	}
	return s
}

// Wait blocks until the next iteration may start. Without an iteration
// rate it returns immediately.
func (s *Scheduler) Wait(ctx context.Context) error {
	if s.limiter != nil {
		return s.limiter.Wait(ctx)
	}
	return ctx.Err()
}

// TargetUsers returns the virtual-user target at elapsed time
func (s *Scheduler) TargetUsers(elapsed time.Duration) int {
	return s.config.TargetAt(elapsed)
}

// VURunner loops iterations for one virtual user until stopped
type VURunner struct {
	id        int
	scheduler *Scheduler
	metrics   *Metrics
	iterate   IterationFunc
	cancel    context.CancelFunc
}

// NewVURunner creates a new VU runner
func NewVURunner(id int, scheduler *Scheduler, metrics *Metrics, iterate IterationFunc) *VURunner {
	return &VURunner{
		id:        id,
		scheduler: scheduler,
		metrics:   metrics,
		iterate:   iterate,
	}
}

// Start starts the VU runner
func (v *VURunner) Start(ctx context.Context, wg *sync.WaitGroup) {
	ctx, v.cancel = context.WithCancel(ctx)
	wg.Add(1)
	go v.run(ctx, wg)
}

// Stop stops the VU runner. An iteration in flight is cancelled.
func (v *VURunner) Stop() {
	if v.cancel != nil {
		v.cancel()
	}
}

func (v *VURunner) run(ctx context.Context, wg *sync.WaitGroup) {
	defer wg.Done()

	v.metrics.IncrementActiveVUs()
	defer v.metrics.DecrementActiveVUs()

	for {
		if err := v.scheduler.Wait(ctx); err != nil {
			return
		}
		v.iterate(ctx, v.id)
	}
}

// VUPool manages a pool of virtual users
type VUPool struct {
	scheduler *Scheduler
	metrics   *Metrics
	iterate   IterationFunc
	runners   []*VURunner
	nextID    int
	mu        sync.Mutex
	wg        sync.WaitGroup
	ctx       context.Context
	cancel    context.CancelFunc
}

// NewVUPool creates a new VU pool
func NewVUPool(scheduler *Scheduler, metrics *Metrics, iterate IterationFunc) *VUPool {
	return &VUPool{
		scheduler: scheduler,
		metrics:   metrics,
		iterate:   iterate,
	}
}

// Start prepares the pool and starts the users targeted at time zero
func (p *VUPool) Start(ctx context.Context) {
	p.ctx, p.cancel = context.WithCancel(ctx)
	p.Scale(p.scheduler.TargetUsers(0))
}

// Scale adjusts the number of running VUs. Newest users stop first.
func (p *VUPool) Scale(target int) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.ctx == nil || p.ctx.Err() != nil {
		return
	}
	for len(p.runners) < target {
		runner := NewVURunner(p.nextID, p.scheduler, p.metrics, p.iterate)
		p.nextID++
		runner.Start(p.ctx, &p.wg)
		p.runners = append(p.runners, runner)
	}
	for len(p.runners) > target {
		last := len(p.runners) - 1
		p.runners[last].Stop()
		p.runners = p.runners[:last]
	}
}

// Stop stops all VUs
func (p *VUPool) Stop() {
	p.mu.Lock()
	for _, r := range p.runners {
		r.Stop()
	}
	p.runners = nil
	p.mu.Unlock()

	if p.cancel != nil {
		p.cancel()
	}
}

// Wait waits for all VUs to finish
func (p *VUPool) Wait() {
	p.wg.Wait()
}

// Count returns the current number of running VUs
func (p *VUPool) Count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.runners)
}
