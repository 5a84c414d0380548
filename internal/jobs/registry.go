// Package jobs runs conversions in the background for the API server and
// keeps their state and artifacts in memory.
package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"ranobepub/internal/convert"
	"ranobepub/internal/notify"
	"ranobepub/internal/scraper"
)

type Status string

const (
	StatusQueued  Status = "queued"
	StatusRunning Status = "running"
	StatusDone    Status = "done"
	StatusFailed  Status = "failed"
)

var ErrNotFound = errors.New("job not found")

type Job struct {
	ID         string    `json:"id"`
	WorkRef    string    `json:"work_ref"`
	Work       string    `json:"work"`
	Title      string    `json:"title,omitempty"`
	Status     Status    `json:"status"`
	Total      int       `json:"total"`
	Downloaded int       `json:"downloaded"`
	Failed     int       `json:"failed"`
	Bytes      int64     `json:"bytes,omitempty"`
	Error      string    `json:"error,omitempty"`
	Submitter  string    `json:"submitter,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// Runner performs one conversion, reporting progress to n and writing the
// artifact to sink.
type Runner func(ctx context.Context, workRef string, n notify.Notifier, sink convert.Sink) (*convert.Result, error)

// FromConverter runs jobs with copies of base.
func FromConverter(base *convert.Converter) Runner {
	return func(ctx context.Context, workRef string, n notify.Notifier, sink convert.Sink) (*convert.Result, error) {
		c := *base
		c.Notifier = n
		c.Sink = sink
		return c.Run(ctx, workRef)
	}
}

type entry struct {
	job      Job
	artifact convert.MemorySink
}

const (
	DefaultMaxJobs   = 100
	DefaultRetention = time.Hour
)

type Registry struct {
	// MaxJobs caps how many finished jobs are kept; the oldest go first.
	MaxJobs int
	// Retention is how long a finished job and its artifact stay available.
	Retention time.Duration
	// OnEvict is called with the id of every dropped job, outside the lock.
	OnEvict func(id string)

	mu     sync.Mutex
	jobs   map[string]*entry
	run    Runner
	out    notify.Notifier
	logger *slog.Logger
	now    func() time.Time

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewRegistry creates a registry whose job events are forwarded to out.
func NewRegistry(run Runner, out notify.Notifier, logger *slog.Logger) *Registry {
	if out == nil {
		out = notify.Nop{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Registry{
		MaxJobs:   DefaultMaxJobs,
		Retention: DefaultRetention,
		jobs:      make(map[string]*entry),
		run:       run,
		out:       out,
		logger:    logger.With("component", "jobs"),
		now:       time.Now,
		ctx:       ctx,
		cancel:    cancel,
	}
}

// Submit validates workRef and starts a conversion in the background.
func (r *Registry) Submit(workRef, submitter string) (Job, error) {
	slug, err := scraper.ParseWorkURL(workRef)
	if err != nil {
		return Job{}, err
	}
	if r.ctx.Err() != nil {
		return Job{}, fmt.Errorf("registry closed")
	}

	r.Prune()

	now := r.now().UTC()
	e := &entry{job: Job{
		ID:        uuid.NewString(),
		WorkRef:   workRef,
		Work:      slug,
		Status:    StatusQueued,
		Submitter: submitter,
		CreatedAt: now,
		UpdatedAt: now,
	}}

	r.mu.Lock()
	r.jobs[e.job.ID] = e
	r.mu.Unlock()

	r.wg.Add(1)
	go r.execute(e.job.ID, workRef)

	r.logger.Info("job submitted", "job", e.job.ID, "work", slug)
	return e.job, nil
}

func (r *Registry) execute(id, workRef string) {
	defer r.wg.Done()

	r.update(id, func(j *Job) { j.Status = StatusRunning })

	n := notify.WithJob(notify.Func(func(ev notify.Event) {
		r.update(id, func(j *Job) { track(j, ev) })
		r.out.Publish(ev)
	}), id)

	r.mu.Lock()
	sink := &r.jobs[id].artifact
	r.mu.Unlock()

	res, err := r.run(r.ctx, workRef, n, sink)
	if err != nil {
		r.logger.Warn("job failed", "job", id, "error", err)
		r.update(id, func(j *Job) {
			j.Status = StatusFailed
			j.Error = err.Error()
		})
		return
	}

	r.update(id, func(j *Job) {
		j.Status = StatusDone
		j.Title = res.Work.DisplayName()
		j.Failed = len(res.Failed)
		j.Downloaded = res.Chapters
		j.Bytes = res.Bytes
	})
	r.logger.Info("job done", "job", id, "chapters", res.Chapters, "failed", len(res.Failed))
}

func track(j *Job, ev notify.Event) {
	switch ev.Type {
	case notify.EventChapterDownloaded:
		j.Downloaded++
		j.Total = ev.Total
	case notify.EventChapterFailed:
		j.Failed++
		j.Total = ev.Total
	}
}

func (r *Registry) update(id string, fn func(*Job)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.jobs[id]; ok {
		fn(&e.job)
		e.job.UpdatedAt = r.now().UTC()
	}
}

func (r *Registry) Get(id string) (Job, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.jobs[id]
	if !ok {
		return Job{}, ErrNotFound
	}
	return e.job, nil
}

// Artifact returns the EPUB of a finished job. ok is false while the job is
// not done.
func (r *Registry) Artifact(id string) (name string, data []byte, ok bool, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, found := r.jobs[id]
	if !found {
		return "", nil, false, ErrNotFound
	}
	if e.job.Status != StatusDone {
		return "", nil, false, nil
	}
	return e.artifact.Name, e.artifact.Data, true, nil
}

// Prune drops finished jobs older than Retention, then the oldest finished
// jobs beyond MaxJobs. Queued and running jobs are never dropped.
func (r *Registry) Prune() int {
	r.mu.Lock()
	now := r.now().UTC()
	var finished []*entry
	var evicted []string
	for id, e := range r.jobs {
		if e.job.Status != StatusDone && e.job.Status != StatusFailed {
			continue
		}
		if r.Retention > 0 && now.Sub(e.job.UpdatedAt) > r.Retention {
			delete(r.jobs, id)
			evicted = append(evicted, id)
			continue
		}
		finished = append(finished, e)
	}
	if r.MaxJobs > 0 && len(finished) > r.MaxJobs {
		sort.Slice(finished, func(i, j int) bool {
			return finished[i].job.UpdatedAt.Before(finished[j].job.UpdatedAt)
		})
		for _, e := range finished[:len(finished)-r.MaxJobs] {
			delete(r.jobs, e.job.ID)
			evicted = append(evicted, e.job.ID)
		}
	}
	onEvict := r.OnEvict
	r.mu.Unlock()

	for _, id := range evicted {
		if onEvict != nil {
			onEvict(id)
		}
	}
	if len(evicted) > 0 {
		r.logger.Debug("jobs pruned", "count", len(evicted))
	}
	return len(evicted)
}

// Sweep prunes every interval until the registry is closed.
func (r *Registry) Sweep(interval time.Duration) {
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-r.ctx.Done():
			return
		case <-t.C:
			r.Prune()
		}
	}
}

// Close cancels running jobs and waits for them to settle.
func (r *Registry) Close() {
	r.cancel()
	r.wg.Wait()
}

// Wait blocks until every submitted job settled.
func (r *Registry) Wait() {
	r.wg.Wait()
}
