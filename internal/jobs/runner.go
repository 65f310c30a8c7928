package jobs

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/sells-group/crosswalk-cli/internal/pipeline"
	"github.com/sells-group/crosswalk-cli/internal/resilience"
)

// RunFunc executes one pipeline.
type RunFunc func(ctx context.Context, cfg pipeline.Config) (*pipeline.Result, error)

// Option configures a Runner.
type Option func(*Runner)

// WithConcurrency bounds the number of jobs running at once.
func WithConcurrency(n int) Option {
	return func(r *Runner) { r.concurrency = n }
}

// WithMaxAttempts sets the attempts per job, including the first.
func WithMaxAttempts(n int) Option {
	return func(r *Runner) { r.maxAttempts = n }
}

// WithMemorySlots sets the memory budget shared by running jobs. A
// standard job holds one slot, a large job two.
func WithMemorySlots(n int) Option {
	return func(r *Runner) { r.memorySlots = int64(n) }
}

// WithBackoff sets the delay between attempts of a failed job.
func WithBackoff(d time.Duration) Option {
	return func(r *Runner) { r.backoff = d }
}

// WithInvalidator sets the hook called after every job succeeded.
func WithInvalidator(inv Invalidator) Option {
	return func(r *Runner) { r.invalidator = inv }
}

// Runner executes manifests.
type Runner struct {
	run         RunFunc
	concurrency int
	maxAttempts int
	memorySlots int64
	backoff     time.Duration
	invalidator Invalidator
}

// NewRunner creates a Runner around run.
func NewRunner(run RunFunc, opts ...Option) *Runner {
	r := &Runner{
		run:         run,
		concurrency: 4,
		maxAttempts: 3,
		memorySlots: 4,
		backoff:     5 * time.Second,
		invalidator: NopInvalidator{},
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.concurrency < 1 {
		r.concurrency = 1
	}
	if r.memorySlots < 1 {
		r.memorySlots = 1
	}
	return r
}

// JobResult is the outcome of one job.
type JobResult struct {
	Name     string
	Level    string
	Attempts int
	Rows     int
	Duration time.Duration
	Err      error
}

// Summary is the outcome of a submission, in manifest order.
type Summary struct {
	Jobs        []JobResult
	Succeeded   int
	Failed      int
	Invalidated bool
	Duration    time.Duration
}

// Report renders a short human-readable summary.
func (s *Summary) Report() string {
	var b strings.Builder
	var rows int64
	for _, j := range s.Jobs {
		status := "ok"
		if j.Err != nil {
			status = "FAILED: " + j.Err.Error()
		}
		fmt.Fprintf(&b, "%-20s %-13s %12s rows  %d attempt(s)  %s  %s\n",
			j.Name, j.Level, humanize.Comma(int64(j.Rows)), j.Attempts, j.Duration.Round(time.Millisecond), status)
		rows += int64(j.Rows)
	}
	fmt.Fprintf(&b, "%d succeeded, %d failed, %s rows written in %s",
		s.Succeeded, s.Failed, humanize.Comma(rows), s.Duration.Round(time.Millisecond))
	if s.Invalidated {
		b.WriteString(", caches invalidated")
	}
	return b.String()
}

// Run executes every job of m. A failed job does not stop the others; the
// invalidator is called only when all of them succeeded.
func (r *Runner) Run(ctx context.Context, m *Manifest, base pipeline.Config) (*Summary, error) {
	start := time.Now()
	log := zap.L().With(zap.String("component", "jobs"))
	log.Info("jobs: starting",
		zap.Int("jobs", len(m.Jobs)),
		zap.Int("concurrency", r.concurrency),
		zap.Int64("memory_slots", r.memorySlots),
	)

	summary := &Summary{Jobs: make([]JobResult, len(m.Jobs))}
	sem := semaphore.NewWeighted(r.memorySlots)
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.concurrency)

	for i, job := range m.Jobs {
		g.Go(func() error {
			res := r.runJob(gctx, sem, m, job, base)
			mu.Lock()
			summary.Jobs[i] = res
			if res.Err != nil {
				summary.Failed++
			} else {
				summary.Succeeded++
			}
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	summary.Duration = time.Since(start)

	if summary.Failed > 0 {
		log.Error("jobs: submission failed, skipping invalidation",
			zap.Int("failed", summary.Failed),
			zap.Int("succeeded", summary.Succeeded),
		)
		return summary, eris.Errorf("jobs: %d of %d jobs failed", summary.Failed, len(m.Jobs))
	}
	if err := ctx.Err(); err != nil {
		return summary, eris.Wrap(err, "jobs: cancelled")
	}

	names := make([]string, len(m.Jobs))
	for i, j := range m.Jobs {
		names[i] = j.Name
	}
	if err := r.invalidator.Invalidate(ctx, names); err != nil {
		return summary, eris.Wrap(err, "jobs: invalidate")
	}
	summary.Invalidated = true

	log.Info("jobs: complete",
		zap.Int("succeeded", summary.Succeeded),
		zap.Duration("duration", summary.Duration),
	)
	return summary, nil
}

func (r *Runner) runJob(ctx context.Context, sem *semaphore.Weighted, m *Manifest, job Job, base pipeline.Config) JobResult {
	res := JobResult{Name: job.Name, Level: job.Level}
	log := zap.L().With(zap.String("component", "jobs"), zap.String("job", job.Name))

	weight, ok := tierSlots[job.MemoryTier]
	if !ok {
		weight = tierSlots[TierStandard]
	}
	// A job larger than the whole budget runs alone.
	weight = min(weight, r.memorySlots)
	if err := sem.Acquire(ctx, weight); err != nil {
		res.Err = eris.Wrap(err, "jobs: wait for memory slot")
		return res
	}
	defer sem.Release(weight)

	start := time.Now()
	cfg := job.Config(m, base)
	retry := resilience.FixedRetryConfig(r.maxAttempts, r.backoff)
	retry.ShouldRetry = resilience.RetryAll
	retry.OnRetry = resilience.RetryLogger("jobs", job.Name)

	out, err := resilience.DoVal(ctx, retry, func(ctx context.Context) (*pipeline.Result, error) {
		res.Attempts++
		return r.run(ctx, cfg)
	})
	res.Duration = time.Since(start)
	if err != nil {
		res.Err = err
		log.Error("jobs: job failed", zap.Int("attempts", res.Attempts), zap.Error(err))
		return res
	}
	if out != nil {
		res.Rows = out.Rows
	}
	log.Info("jobs: job complete",
		zap.Int("rows", res.Rows),
		zap.Int("attempts", res.Attempts),
		zap.Duration("duration", res.Duration),
	)
	return res
}
