package embedding

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/avast/retry-go/v4"
	"golang.org/x/time/rate"

	"github.com/hupe1980/pagecorpus/model"
)

// Embedder is the external embedding model: it turns a rendered page image into a
// fixed-length vector.
type Embedder interface {
	Embed(ctx context.Context, imagePath string) ([]float32, error)
}

// EmbedderFunc adapts a function to Embedder.
type EmbedderFunc func(ctx context.Context, imagePath string) ([]float32, error)

// Embed implements Embedder.
func (f EmbedderFunc) Embed(ctx context.Context, imagePath string) ([]float32, error) {
	return f(ctx, imagePath)
}

// Sink receives every vector accepted by the store, typically the similarity index.
type Sink interface {
	Add(ctx context.Context, e Entry) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, e Entry) error

// Add implements Sink.
func (f SinkFunc) Add(ctx context.Context, e Entry) error { return f(ctx, e) }

// Job asks the pipeline to embed one curated page.
type Job struct {
	ID        model.PageID
	Label     string
	ImagePath string
	Version   model.Version
	Seq       uint64
}

// Status is the searchability of a page.
type Status int

const (
	// StatusCurated means the page is in the log but has no vector yet.
	StatusCurated Status = iota
	// StatusPending means embedding failed and the page waits for Heal.
	StatusPending
	// StatusSearchable means the vector was stored and handed to the sink.
	StatusSearchable
)

func (s Status) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusSearchable:
		return "searchable"
	default:
		return "curated"
	}
}

// PipelineOptions configures a Pipeline.
type PipelineOptions struct {
	// Workers is the number of concurrent embedding calls.
	Workers int
	// QueueSize bounds the number of queued jobs.
	QueueSize int
	// RateLimit caps embedding calls per second. Zero means unlimited.
	RateLimit float64
	// Burst is the rate limiter burst.
	Burst int
	// Attempts is the number of tries per job.
	Attempts uint
	// RetryDelay is the base delay between tries.
	RetryDelay time.Duration
	// CallTimeout bounds a single embedding call. Zero means no timeout.
	CallTimeout time.Duration

	Logger *slog.Logger
	// OnResult is invoked after every processed job.
	OnResult func(job Job, err error)
}

// DefaultPipelineOptions contains the default pipeline options.
var DefaultPipelineOptions = PipelineOptions{
	Workers:    2,
	QueueSize:  256,
	RateLimit:  0,
	Burst:      1,
	Attempts:   3,
	RetryDelay: 200 * time.Millisecond,
}

// Pipeline embeds curated pages asynchronously. Failed pages are kept pending until
// Heal succeeds for them.
type Pipeline struct {
	store    *Store
	embedder Embedder
	sink     Sink
	opts     PipelineOptions
	limiter  *rate.Limiter
	logger   *slog.Logger

	queue   chan Job
	stop    chan struct{}  // closed first by Close, releases blocked senders
	queueMu sync.RWMutex   // read-held while sending, write-held while closing
	wg      sync.WaitGroup // workers
	jobs    sync.WaitGroup // submitted, not yet processed

	commitMu sync.Mutex // orders store puts and sink adds

	mu      sync.Mutex
	closed  bool
	pending map[model.PageID]pendingJob
	status  map[model.PageID]Status
	deleted map[model.PageID]Entry // stamp of the deleting record
}

type pendingJob struct {
	job Job
	err error
}

// NewPipeline creates a pipeline. sink may be nil.
func NewPipeline(store *Store, embedder Embedder, sink Sink, optFns ...func(o *PipelineOptions)) *Pipeline {
	opts := DefaultPipelineOptions
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Workers <= 0 {
		opts.Workers = 1
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = DefaultPipelineOptions.QueueSize
	}
	if opts.Attempts == 0 {
		opts.Attempts = 1
	}
	if opts.Burst <= 0 {
		opts.Burst = 1
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	limit := rate.Inf
	if opts.RateLimit > 0 {
		limit = rate.Limit(opts.RateLimit)
	}

	return &Pipeline{
		store:    store,
		embedder: embedder,
		sink:     sink,
		opts:     opts,
		limiter:  rate.NewLimiter(limit, opts.Burst),
		logger:   opts.Logger.With("component", "embedding"),
		queue:    make(chan Job, opts.QueueSize),
		stop:     make(chan struct{}),
		pending:  map[model.PageID]pendingJob{},
		status:   map[model.PageID]Status{},
		deleted:  map[model.PageID]Entry{},
	}
}

// Start launches the workers. They stop when ctx is done or Close is called.
func (p *Pipeline) Start(ctx context.Context) {
	for i := 0; i < p.opts.Workers; i++ {
		p.wg.Add(1)
		go p.worker(ctx)
	}
}

func (p *Pipeline) worker(ctx context.Context) {
	defer p.wg.Done()
	for {
		select {
		case <-ctx.Done():
			p.drainAsPending(ctx.Err())
			return
		case job, ok := <-p.queue:
			if !ok {
				return
			}
			_ = p.process(ctx, job)
			p.jobs.Done()
		}
	}
}

// drainAsPending marks queued jobs pending after the workers were cancelled.
func (p *Pipeline) drainAsPending(cause error) {
	for {
		select {
		case job, ok := <-p.queue:
			if !ok {
				return
			}
			p.markPending(job, cause)
			p.jobs.Done()
		default:
			return
		}
	}
}

// Submit queues a job. It blocks while the queue is full.
func (p *Pipeline) Submit(ctx context.Context, job Job) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return ErrPipelineClosed
	}
	if cur, ok := p.status[job.ID]; !ok || cur != StatusPending {
		p.status[job.ID] = StatusCurated
	}
	p.jobs.Add(1)
	p.mu.Unlock()

	p.queueMu.RLock()
	defer p.queueMu.RUnlock()
	if p.isClosed() {
		p.jobs.Done()
		return ErrPipelineClosed
	}
	select {
	case p.queue <- job:
		return nil
	case <-p.stop:
		p.markPending(job, ErrPipelineClosed)
		p.jobs.Done()
		return ErrPipelineClosed
	case <-ctx.Done():
		p.markPending(job, ctx.Err())
		p.jobs.Done()
		return ctx.Err()
	}
}

// process embeds a job, stores the vector and forwards it to the sink.
func (p *Pipeline) process(ctx context.Context, job Job) error {
	err := p.run(ctx, job)
	switch {
	case err == nil:
		p.mu.Lock()
		delete(p.pending, job.ID)
		p.status[job.ID] = StatusSearchable
		p.mu.Unlock()
	case errors.Is(err, ErrStale):
		// a newer vector already landed
		err = nil
	default:
		p.markPending(job, err)
		err = &UnavailableError{ID: job.ID, Err: err}
		p.logger.Warn("embedding failed, page pending", "page", job.ID, "error", err)
	}
	if p.opts.OnResult != nil {
		p.opts.OnResult(job, err)
	}
	return err
}

func (p *Pipeline) run(ctx context.Context, job Job) error {
	if job.ImagePath == "" {
		return errors.New("page has no image")
	}

	var vec []float32
	err := retry.Do(
		func() error {
			if err := p.limiter.Wait(ctx); err != nil {
				return retry.Unrecoverable(err)
			}
			callCtx := ctx
			if p.opts.CallTimeout > 0 {
				var cancel context.CancelFunc
				callCtx, cancel = context.WithTimeout(ctx, p.opts.CallTimeout)
				defer cancel()
			}
			v, err := p.embedder.Embed(callCtx, job.ImagePath)
			if err != nil {
				return err
			}
			if err := Validate(v, p.store.Dim()); err != nil {
				return retry.Unrecoverable(err)
			}
			vec = v
			return nil
		},
		retry.Context(ctx),
		retry.Attempts(p.opts.Attempts),
		retry.Delay(p.opts.RetryDelay),
		retry.LastErrorOnly(true),
	)
	if err != nil {
		return err
	}

	e := Entry{ID: job.ID, Label: job.Label, Vector: vec, Version: job.Version, Seq: job.Seq}
	p.commitMu.Lock()
	defer p.commitMu.Unlock()
	if p.isDeleted(job) {
		return fmt.Errorf("%w: %s was deleted", ErrStale, job.ID)
	}
	if err := p.store.Put(e); err != nil {
		return err
	}
	if p.sink != nil {
		if err := p.sink.Add(ctx, e); err != nil {
			return err
		}
	}
	return nil
}

func (p *Pipeline) markPending(job Job, err error) {
	// a vector for a later record already landed
	if e, ok := p.store.Get(job.ID); ok && e.newer(Entry{Version: job.Version, Seq: job.Seq}) {
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if tomb, ok := p.deleted[job.ID]; ok && !jobEntry(job).newer(tomb) {
		return
	}
	if prev, ok := p.pending[job.ID]; ok && prev.job.Version == job.Version && prev.job.Seq > job.Seq {
		return
	}
	p.pending[job.ID] = pendingJob{job: job, err: err}
	p.status[job.ID] = StatusPending
}

func jobEntry(job Job) Entry {
	return Entry{ID: job.ID, Version: job.Version, Seq: job.Seq}
}

func (p *Pipeline) isDeleted(job Job) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	tomb, ok := p.deleted[job.ID]
	return ok && !jobEntry(job).newer(tomb)
}

// Forget records that a page was deleted by the record (version, seq). The page
// leaves the pending set, and jobs for earlier records are dropped instead of
// stored. A later record of the page is embedded as usual.
func (p *Pipeline) Forget(id model.PageID, version model.Version, seq uint64) {
	p.commitMu.Lock()
	defer p.commitMu.Unlock()

	p.mu.Lock()
	defer p.mu.Unlock()
	p.deleted[id] = Entry{ID: id, Version: version, Seq: seq}
	delete(p.pending, id)
	delete(p.status, id)
}

func (p *Pipeline) isClosed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

// Status returns the searchability of a page.
func (p *Pipeline) Status(id model.PageID) Status {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.status[id]
}

// Counts returns the number of pages per status.
func (p *Pipeline) Counts() map[Status]int {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := map[Status]int{}
	for _, s := range p.status {
		out[s]++
	}
	return out
}

// Pending returns the pending jobs sorted by page id.
func (p *Pipeline) Pending() []Job {
	p.mu.Lock()
	out := make([]Job, 0, len(p.pending))
	for _, pj := range p.pending {
		out = append(out, pj.job)
	}
	p.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// MarkPending records a page as pending without processing it, for example when a
// record is appended while the pipeline is not running.
func (p *Pipeline) MarkPending(job Job, cause error) {
	p.markPending(job, cause)
}

// Heal retries every pending job synchronously and returns how many became searchable.
func (p *Pipeline) Heal(ctx context.Context) (int, error) {
	healed := 0
	for _, job := range p.Pending() {
		if err := ctx.Err(); err != nil {
			return healed, err
		}
		if err := p.process(ctx, job); err == nil {
			healed++
		}
	}
	if healed > 0 {
		p.logger.Info("healed pending pages", "count", healed)
	}
	return healed, nil
}

// Wait blocks until every submitted job has been processed or ctx is done.
func (p *Pipeline) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		p.jobs.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops accepting jobs, lets the workers finish the queue and waits for them.
func (p *Pipeline) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	p.mu.Unlock()
	close(p.stop)

	p.queueMu.Lock()
	close(p.queue)
	p.queueMu.Unlock()
	p.wg.Wait()
	// jobs left behind by cancelled workers
	p.drainAsPending(ErrPipelineClosed)
	return nil
}
