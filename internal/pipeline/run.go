// Package pipeline orchestrates the document-generation pipeline: render the
// resume to markup, typeset it in a scoped directory, release the directory.
package pipeline

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"runtime"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	"github.com/jonathan/resume-render-api/internal/rendering"
	"github.com/jonathan/resume-render-api/internal/typeset"
	"github.com/jonathan/resume-render-api/internal/types"
)

// State is a step of the render state machine.
type State string

const (
	StateReceived    State = "received"
	StateRendering   State = "rendering"
	StateTypesetting State = "typesetting"
	StateComplete    State = "complete"
	StateFailed      State = "failed"
)

// Worker pool bounds when sizing from GOMAXPROCS.
const (
	MinWorkers = 1
	MaxWorkers = 8
	cpuDivisor = 2

	DefaultQueueTimeout = 60 * time.Second
)

// ProgressEvent reports a state transition of one render job.
type ProgressEvent struct {
	JobID string `json:"job_id"`
	State State  `json:"state"`
	Kind  Kind   `json:"kind,omitempty"`
}

// ProgressCallback is called on every state transition.
type ProgressCallback func(event ProgressEvent)

// Renderer produces markup from a resume record.
type Renderer interface {
	Render(record *types.ResumeRecord, style rendering.StyleOptions) (*rendering.MarkupDocument, error)
}

// Config holds the orchestrator settings.
type Config struct {
	// Workers is the number of jobs that may render at once; 0 sizes from GOMAXPROCS.
	Workers int
	// QueueTimeout bounds how long a job waits for a free worker.
	QueueTimeout time.Duration
	// WorkRoot is where scoped directories are created; empty means the OS temp dir.
	WorkRoot string
}

// Request is one render request. Both fields are required.
type Request struct {
	Resume json.RawMessage
	Style  *rendering.StyleOptions
}

// Result is a successfully rendered document.
type Result struct {
	JobID    string
	Artifact *typeset.Artifact
	Filename string
}

// Orchestrator runs render jobs through the pipeline with a bounded worker pool.
// It keeps no per-job state and is safe for concurrent use.
type Orchestrator struct {
	cfg        Config
	renderer   Renderer
	typesetter typeset.Typesetter
	logger     *slog.Logger
	slots      *semaphore.Weighted
	onProgress ProgressCallback
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithProgress registers a callback for state transitions.
func WithProgress(cb ProgressCallback) Option {
	return func(o *Orchestrator) {
		o.onProgress = cb
	}
}

// New creates an Orchestrator.
func New(cfg Config, renderer Renderer, typesetter typeset.Typesetter, logger *slog.Logger, opts ...Option) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	cfg.Workers = ResolveWorkers(cfg.Workers)
	if cfg.QueueTimeout <= 0 {
		cfg.QueueTimeout = DefaultQueueTimeout
	}

	o := &Orchestrator{
		cfg:        cfg,
		renderer:   renderer,
		typesetter: typesetter,
		logger:     logger,
		slots:      semaphore.NewWeighted(int64(cfg.Workers)),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Workers returns the size of the worker pool.
func (o *Orchestrator) Workers() int {
	return o.cfg.Workers
}

// ResolveWorkers determines the worker pool size.
// Priority: explicit workers > GOMAXPROCS-based calculation.
func ResolveWorkers(workers int) int {
	if workers > 0 {
		return workers
	}

	n := runtime.GOMAXPROCS(0) / cpuDivisor
	if n < MinWorkers {
		return MinWorkers
	}
	if n > MaxWorkers {
		return MaxWorkers
	}
	return n
}

// job is the per-request unit of work. It never outlives Run.
type job struct {
	id    uuid.UUID
	state State
	start time.Time
	log   *slog.Logger
}

// Run takes a request through Received -> Rendering -> Typesetting -> Complete.
// Any failure moves the job to Failed and returns a *Error. The scoped
// directory, once created, is removed before Run returns on every path.
func (o *Orchestrator) Run(ctx context.Context, req Request) (*Result, error) {
	j := &job{id: uuid.New(), start: time.Now()}
	j.log = o.logger.With("job_id", j.id.String())
	o.transition(j, StateReceived)

	trimmed := bytes.TrimSpace(req.Resume)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil, o.fail(j, &Error{Kind: KindInvalidRequest, Message: "resume is required"})
	}
	if req.Style == nil {
		return nil, o.fail(j, &Error{Kind: KindInvalidRequest, Message: "style is required"})
	}

	release, acquireErr := o.acquire(ctx)
	if acquireErr != nil {
		return nil, o.fail(j, acquireErr)
	}
	defer release()

	o.transition(j, StateRendering)
	record, err := types.ParseResumeRecord(req.Resume)
	if err != nil {
		return nil, o.fail(j, classify(err))
	}
	doc, err := o.renderer.Render(record, *req.Style)
	if err != nil {
		return nil, o.fail(j, classify(err))
	}

	o.transition(j, StateTypesetting)
	dir, err := newScopedDir(o.cfg.WorkRoot, j.id)
	if err != nil {
		return nil, o.fail(j, &Error{Kind: KindToolchainCrash, Message: msgInternal, Cause: err})
	}
	defer func() {
		if err := dir.Release(); err != nil {
			j.log.Error("failed to remove scoped directory", "error", err)
		}
	}()

	artifact, err := o.typesetter.Typeset(ctx, doc, dir.Path)
	if err != nil {
		return nil, o.fail(j, classify(err))
	}

	o.transition(j, StateComplete)
	j.log.Info("render complete",
		"format", doc.Format,
		"bytes", artifact.Size,
		"pages", artifact.Pages,
		"duration", time.Since(j.start),
	)

	style, _ := req.Style.Normalize()
	return &Result{
		JobID:    j.id.String(),
		Artifact: artifact,
		Filename: style.Filename,
	}, nil
}

// acquire waits for a worker slot, bounded by the caller's context and the queue timeout.
func (o *Orchestrator) acquire(ctx context.Context) (func(), *Error) {
	waitCtx, cancel := context.WithTimeout(ctx, o.cfg.QueueTimeout)
	defer cancel()

	if err := o.slots.Acquire(waitCtx, 1); err != nil {
		msg := "timed out waiting for a render worker"
		if errors.Is(ctx.Err(), context.Canceled) {
			msg = "request cancelled while waiting for a render worker"
		}
		return nil, &Error{Kind: KindToolchainTimeout, Message: msg, Cause: err}
	}
	return func() { o.slots.Release(1) }, nil
}

func (o *Orchestrator) transition(j *job, state State) {
	j.state = state
	j.log.Debug("render state", "state", state)
	if o.onProgress != nil {
		o.onProgress(ProgressEvent{JobID: j.id.String(), State: state})
	}
}

// fail moves the job to Failed and logs the error with its diagnostics.
func (o *Orchestrator) fail(j *job, err *Error) *Error {
	from := j.state
	j.state = StateFailed

	attrs := []any{"from", from, "kind", err.Kind, "duration", time.Since(j.start)}
	if err.Kind.IsClientError() {
		j.log.Info("render rejected", append(attrs, "reason", err.Message)...)
	} else {
		j.log.Error("render failed", append(attrs, "error", err.Cause, "diagnostics", err.Diagnostics)...)
	}

	if o.onProgress != nil {
		o.onProgress(ProgressEvent{JobID: j.id.String(), State: StateFailed, Kind: err.Kind})
	}
	return err
}
