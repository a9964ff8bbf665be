package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/timmy/deepresearch/internal/domain"
	"github.com/timmy/deepresearch/internal/logger"
)

const (
	defaultPollInterval  = 10 * time.Second
	defaultDeadline      = 60 * time.Minute
	defaultProgressStart = 5
	defaultProgressStep  = 10
	defaultProgressCap   = 90

	defaultRemoteFailure = "research job failed"
	emptyOutputFailure   = "research completed without any text output"
)

// errJobFinalized stops a write that would overwrite a terminal status.
var errJobFinalized = errors.New("job already reached a terminal state")

// ResearchAPI is the transport the orchestrator drives (implemented by ResearchClient).
type ResearchAPI interface {
	CreateJob(ctx context.Context, input string, cfg JobConfig) (string, error)
	GetJobStatus(ctx context.Context, remoteID string) (*RemoteStatus, error)
	CancelJob(ctx context.Context, remoteID string) bool
	GenerateOnce(ctx context.Context, prompt string, opts GenerateOptions) (*Generation, error)
}

// JobArchive persists terminal jobs (implemented by repository.ResearchRepository).
type JobArchive interface {
	Save(ctx context.Context, job *domain.Job) error
	Delete(ctx context.Context, id string) error
}

// EventHandler receives a job's events in emission order, on the job's goroutine.
type EventHandler func(domain.Event)

// OrchestratorConfig holds the polling policy and model settings.
// Progress values are a client-side estimate, not remote truth.
type OrchestratorConfig struct {
	PollInterval  time.Duration
	Deadline      time.Duration // cumulative, measured from submission
	ProgressStart int
	ProgressStep  int
	ProgressCap   int
	Agent         string

	// ThinkingSummaries asks the research agent to stream its reasoning summaries.
	ThinkingSummaries bool
	RefineModel       string
	RefineTemperature *float64 // nil uses the model default
}

// SubmitRequest is everything a caller supplies for a new job.
type SubmitRequest struct {
	Query     string
	Documents []domain.Document
	Options   domain.Options
}

// jobHandle is the live control surface of one running job.
type jobHandle struct {
	cancelled atomic.Bool
	deleted   atomic.Bool
	stopOnce  sync.Once
	stop      chan struct{}

	// archiveMu orders the terminal archive write against Delete removing
	// the archived copy.
	archiveMu sync.Mutex
}

func newJobHandle() *jobHandle {
	return &jobHandle{stop: make(chan struct{})}
}

func (h *jobHandle) requestStop() {
	h.cancelled.Store(true)
	h.stopOnce.Do(func() { close(h.stop) })
}

func (h *jobHandle) stopped() bool {
	return h.cancelled.Load()
}

// Orchestrator owns the lifecycle of research jobs: submission, polling,
// progress events, cancellation and optional refinement.
type Orchestrator struct {
	api      ResearchAPI
	registry *Registry
	bus      *EventBus
	archive  JobArchive
	log      *logger.Logger
	cfg      OrchestratorConfig
	now      func() time.Time
	wg       sync.WaitGroup
}

// NewOrchestrator creates a new orchestrator.
// Parameters:
//   - api: research transport.
//   - registry: job registry shared with the presentation layer.
//   - bus: event bus for streaming subscribers.
//   - archive: optional store for terminal jobs; may be nil.
//   - log: base logger.
//   - cfg: polling policy; zero values fall back to defaults.
//
// Returns:
//   - *Orchestrator: ready to accept submissions.
func NewOrchestrator(api ResearchAPI, registry *Registry, bus *EventBus, archive JobArchive, log *logger.Logger, cfg *OrchestratorConfig) *Orchestrator {
	c := OrchestratorConfig{}
	if cfg != nil {
		c = *cfg
	}
	if c.PollInterval <= 0 {
		c.PollInterval = defaultPollInterval
	}
	if c.Deadline <= 0 {
		c.Deadline = defaultDeadline
	}
	if c.ProgressStart <= 0 {
		c.ProgressStart = defaultProgressStart
	}
	if c.ProgressStep <= 0 {
		c.ProgressStep = defaultProgressStep
	}
	if c.ProgressCap <= 0 || c.ProgressCap >= 100 {
		c.ProgressCap = defaultProgressCap
	}
	if c.ProgressStart > c.ProgressCap {
		c.ProgressStart = c.ProgressCap
	}
	if registry == nil {
		registry = NewRegistry()
	}
	if bus == nil {
		bus = NewEventBus()
	}
	if log == nil {
		log = logger.GetDefault()
	}

	return &Orchestrator{
		api:      api,
		registry: registry,
		bus:      bus,
		archive:  archive,
		log:      log.WithField(logger.FieldComponent, "orchestrator"),
		cfg:      c,
		now:      time.Now,
	}
}

// Submit registers a new job and starts its lifecycle in the background.
// It returns as soon as the job id is assigned.
// Parameters:
//   - ctx: request context, used for logging only; the job outlives it.
//   - req: query, documents and options.
//   - onEvent: optional callback receiving the job's events in order.
//
// Returns:
//   - domain.Job: the pending job snapshot.
//   - error: wraps ErrInvalidRequest for an empty query or unknown option.
func (o *Orchestrator) Submit(ctx context.Context, req SubmitRequest, onEvent EventHandler) (domain.Job, error) {
	query := strings.TrimSpace(req.Query)
	if query == "" {
		return domain.Job{}, fmt.Errorf("%w: query is required", ErrInvalidRequest)
	}
	opts, err := req.Options.Normalize()
	if err != nil {
		return domain.Job{}, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}

	job := domain.Job{
		ID:        uuid.NewString(),
		Query:     query,
		Documents: append([]domain.Document(nil), req.Documents...),
		Options:   opts,
		Status:    domain.JobStatusPending,
		Stage:     domain.StageSubmitting,
		CreatedAt: o.now(),
	}
	handle := newJobHandle()
	o.registry.Put(job, handle)

	logger.CtxInfo(ctx, "Research job submitted: job_id=%s, depth=%s, format=%s, documents=%d, refine=%v",
		job.ID, opts.Depth, opts.OutputFormat, len(job.Documents), opts.Refine)

	o.wg.Add(1)
	go o.run(job.Clone(), handle, onEvent)

	return job.Clone(), nil
}

// GetStatus returns the latest snapshot of a job, or domain.ErrJobNotFound.
func (o *Orchestrator) GetStatus(jobID string) (domain.Job, error) {
	return o.registry.Get(jobID)
}

// List returns the most recent jobs first.
func (o *Orchestrator) List(limit int) []domain.Job {
	return o.registry.List(limit)
}

// Subscribe streams a job's events. The channel closes when the job ends.
func (o *Orchestrator) Subscribe(jobID string) (<-chan domain.Event, func()) {
	return o.bus.Subscribe(jobID)
}

// Cancel marks a job cancelled immediately and asks the remote service to stop it.
// The local status is cancelled whatever the remote answer is.
// Parameters:
//   - ctx: context for the advisory remote call.
//   - jobID: client-issued job id.
//
// Returns:
//   - bool: whether the remote cancel call succeeded.
//   - error: domain.ErrJobNotFound for unknown ids.
func (o *Orchestrator) Cancel(ctx context.Context, jobID string) (bool, error) {
	handle, ok := o.registry.handle(jobID)
	if !ok {
		return false, domain.ErrJobNotFound
	}

	job, err := o.transition(jobID, func(j *domain.Job) {
		now := o.now()
		j.Status = domain.JobStatusCancelled
		j.Stage = domain.StageDone
		j.CompletedAt = &now
	})
	if err != nil {
		if errors.Is(err, errJobFinalized) {
			return false, nil
		}
		return false, err
	}
	if handle != nil {
		handle.requestStop()
	}
	o.bus.Close(jobID)

	ctx = logger.SetJobID(ctx, jobID)
	if job.RemoteJobID == "" {
		logger.CtxWarn(ctx, "Research job cancelled before remote creation; cancellation is local only")
		return false, nil
	}

	remoteOK := o.api.CancelJob(ctx, job.RemoteJobID)
	if !remoteOK {
		logger.CtxWarn(ctx, "Remote cancel was not acknowledged: remote_job_id=%s", job.RemoteJobID)
	}
	logger.CtxInfo(ctx, "Research job cancelled: remote_job_id=%s, remote_cancelled=%v", job.RemoteJobID, remoteOK)
	return remoteOK, nil
}

// Delete removes a job. A job still running is stopped locally and cancelled
// remotely (best-effort) first. Deleting an unknown id succeeds.
func (o *Orchestrator) Delete(ctx context.Context, jobID string) error {
	handle, ok := o.registry.handle(jobID)
	if ok && handle != nil {
		handle.deleted.Store(true)
	}
	if ok {
		job, err := o.registry.Get(jobID)
		if err == nil && !job.Status.IsTerminal() {
			if handle != nil {
				handle.requestStop()
			}
			if job.RemoteJobID != "" {
				o.api.CancelJob(ctx, job.RemoteJobID)
			}
		}
	}

	o.registry.Delete(jobID)
	o.bus.Close(jobID)

	if o.archive == nil {
		return nil
	}
	// Waits out an archive write already in flight so it can't land after the delete.
	if handle != nil {
		handle.archiveMu.Lock()
		defer handle.archiveMu.Unlock()
	}
	if err := o.archive.Delete(ctx, jobID); err != nil {
		return fmt.Errorf("failed to delete archived job: %w", err)
	}
	return nil
}

// Wait blocks until every job goroutine has returned or ctx is done.
func (o *Orchestrator) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		o.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// run drives one job from submission to a terminal state.
func (o *Orchestrator) run(job domain.Job, handle *jobHandle, onEvent EventHandler) {
	defer o.wg.Done()

	ctx := o.log.WithContext(context.Background())
	ctx = logger.SetJobID(ctx, job.ID)
	start := o.now()

	emit := func(typ domain.EventType, data *domain.EventData) {
		e := domain.Event{JobID: job.ID, Type: typ, Timestamp: o.now(), Data: data}
		if onEvent != nil {
			onEvent(e)
		}
		o.bus.Publish(e)
	}
	defer o.finish(ctx, job.ID, handle, start)

	input := BuildResearchInput(job.Query, job.Documents, job.Options)
	remoteID, err := o.api.CreateJob(ctx, input, JobConfig{
		Agent:             o.cfg.Agent,
		ThinkingSummaries: o.cfg.ThinkingSummaries,
	})
	if err != nil {
		logger.CtxError(ctx, "Failed to create remote research job: %v", err)
		o.fail(ctx, job.ID, err.Error(), emit)
		return
	}
	ctx = logger.SetRemoteJobID(ctx, remoteID)

	progress := o.cfg.ProgressStart
	_, err = o.transition(job.ID, func(j *domain.Job) {
		j.RemoteJobID = remoteID
		j.Status = domain.JobStatusProcessing
		j.Stage = domain.StageResearching
		j.Progress = progress
	})
	if err != nil {
		// Cancelled or deleted while the create call was in flight.
		if errors.Is(err, errJobFinalized) {
			o.registry.Update(job.ID, func(j *domain.Job) error {
				j.RemoteJobID = remoteID
				return nil
			})
		}
		o.api.CancelJob(ctx, remoteID)
		return
	}
	logger.CtxInfo(ctx, "Remote research job created")
	emit(domain.EventStart, nil)
	emit(domain.EventProgress, progressData(progress))

	deadline := job.CreatedAt.Add(o.cfg.Deadline)
	for {
		if handle.stopped() {
			logger.CtxInfo(ctx, "Polling stopped: job cancelled")
			return
		}
		if !o.now().Before(deadline) {
			err := fmt.Errorf("%w: research did not finish within %s", ErrDeadlineExceeded, o.cfg.Deadline)
			logger.CtxError(ctx, "%v", err)
			o.fail(ctx, job.ID, fmt.Sprintf("research did not finish within %s", o.cfg.Deadline), emit)
			return
		}
		if !o.sleep(handle, o.cfg.PollInterval) {
			logger.CtxInfo(ctx, "Polling stopped: job cancelled")
			return
		}

		status, err := o.api.GetJobStatus(ctx, remoteID)
		if err != nil {
			logger.CtxError(ctx, "Failed to poll remote research job: %v", err)
			o.fail(ctx, job.ID, err.Error(), emit)
			return
		}

		switch status.State {
		case RemoteCompleted:
			o.complete(ctx, job, status, emit)
			return
		case RemoteFailed:
			msg := status.Error
			if msg == "" {
				msg = defaultRemoteFailure
			}
			logger.CtxWarn(ctx, "Remote research job failed: %s", msg)
			o.fail(ctx, job.ID, msg, emit)
			return
		case RemoteCancelled:
			logger.CtxWarn(ctx, "Remote research job was cancelled remotely")
			o.transition(job.ID, func(j *domain.Job) {
				now := o.now()
				j.Status = domain.JobStatusCancelled
				j.Stage = domain.StageDone
				j.CompletedAt = &now
			})
			return
		}

		progress = o.nextProgress(progress)
		if _, err := o.transition(job.ID, func(j *domain.Job) { j.Progress = progress }); err != nil {
			return
		}
		logger.With(logger.Fields{logger.FieldProgress: progress}).Debug(ctx, "Remote research job still running")
		emit(domain.EventProgress, progressData(progress))
	}
}

// complete stores the joined output (optionally refined) and emits the final events.
func (o *Orchestrator) complete(ctx context.Context, job domain.Job, status *RemoteStatus, emit func(domain.EventType, *domain.EventData)) {
	content := strings.Join(status.Outputs, "\n\n")
	if strings.TrimSpace(content) == "" {
		o.fail(ctx, job.ID, emptyOutputFailure, emit)
		return
	}

	if job.Options.Refine {
		if _, err := o.transition(job.ID, func(j *domain.Job) { j.Stage = domain.StageRefining }); err != nil {
			return
		}
		content = o.refine(ctx, content)
	}

	sources := append([]domain.Source(nil), status.Sources...)
	_, err := o.transition(job.ID, func(j *domain.Job) {
		now := o.now()
		j.Status = domain.JobStatusCompleted
		j.Stage = domain.StageDone
		j.Progress = 100
		j.Content = content
		j.Sources = sources
		j.Error = ""
		j.CompletedAt = &now
	})
	if err != nil {
		logger.CtxInfo(ctx, "Discarding remote result: %v", err)
		return
	}

	for i := range sources {
		src := sources[i]
		emit(domain.EventSource, &domain.EventData{Source: &src})
	}
	emit(domain.EventContent, &domain.EventData{Content: content})
	emit(domain.EventComplete, progressData(100))
}

// refine asks the model to improve the report's logical consistency.
// Any failure keeps the original content.
func (o *Orchestrator) refine(ctx context.Context, content string) string {
	if o.cfg.RefineModel == "" {
		logger.CtxWarn(ctx, "Refinement requested but no refine model is configured")
		return content
	}

	start := o.now()
	gen, err := o.api.GenerateOnce(ctx, buildRefinePrompt(content), GenerateOptions{
		Model:       o.cfg.RefineModel,
		Temperature: o.cfg.RefineTemperature,
	})
	if err != nil {
		logger.CtxWarn(ctx, "Refinement failed, keeping original content: %v", err)
		return content
	}
	if strings.TrimSpace(gen.Answer) == "" {
		logger.CtxWarn(ctx, "Refinement returned no answer, keeping original content")
		return content
	}

	logger.With(logger.Fields{
		logger.FieldDurationMs: o.now().Sub(start).Milliseconds(),
		logger.FieldSize:       len(gen.Answer),
	}).Info(ctx, "Refinement applied")
	return gen.Answer
}

func (o *Orchestrator) fail(ctx context.Context, jobID, msg string, emit func(domain.EventType, *domain.EventData)) {
	_, err := o.transition(jobID, func(j *domain.Job) {
		now := o.now()
		j.Status = domain.JobStatusFailed
		j.Stage = domain.StageDone
		j.Error = msg
		j.CompletedAt = &now
	})
	if err != nil {
		logger.CtxInfo(ctx, "Not recording failure: %v", err)
		return
	}
	emit(domain.EventError, &domain.EventData{Error: msg})
}

// finish closes the job's event streams and archives the terminal snapshot.
func (o *Orchestrator) finish(ctx context.Context, jobID string, handle *jobHandle, start time.Time) {
	o.bus.Close(jobID)

	job, err := o.registry.Get(jobID)
	if err != nil {
		return
	}
	logger.With(logger.Fields{}).
		WithDuration(o.now().Sub(start).Milliseconds()).
		WithStatus(string(job.Status)).
		Info(ctx, "Research job finished")

	if o.archive == nil || !job.Status.IsTerminal() {
		return
	}

	handle.archiveMu.Lock()
	defer handle.archiveMu.Unlock()
	if handle.deleted.Load() {
		return
	}
	if err := withRetry(ctx, func(ctx context.Context) error {
		return o.archive.Save(ctx, &job)
	}); err != nil {
		logger.CtxError(ctx, "Failed to archive research job: %v", err)
	}
}

// transition applies fn unless the job already reached a terminal status.
func (o *Orchestrator) transition(jobID string, fn func(j *domain.Job)) (domain.Job, error) {
	return o.registry.Update(jobID, func(j *domain.Job) error {
		if j.Status.IsTerminal() {
			return errJobFinalized
		}
		fn(j)
		return nil
	})
}

// nextProgress advances by one step, never past the cap and never backwards.
func (o *Orchestrator) nextProgress(current int) int {
	next := current + o.cfg.ProgressStep
	if next > o.cfg.ProgressCap {
		next = o.cfg.ProgressCap
	}
	if next < current {
		next = current
	}
	return next
}

// sleep waits d and reports false if the job was cancelled meanwhile.
func (o *Orchestrator) sleep(handle *jobHandle, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return !handle.stopped()
	case <-handle.stop:
		return false
	}
}

func progressData(p int) *domain.EventData {
	return &domain.EventData{Progress: &p}
}
