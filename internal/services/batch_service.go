package services

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"mktsummary/internal/infrastructure"
	"mktsummary/internal/operations"
	"mktsummary/internal/websocket"
	"mktsummary/pkg/contracts/domain"
)

// Runner executes one batch. *operations.Downloader implements it.
type Runner interface {
	Run(ctx context.Context, req operations.Request, emit func(domain.Outcome)) (domain.BatchSummary, error)
}

// Planner is implemented by runners that can report a batch's dates before
// running it. The total feeds progress events.
type Planner interface {
	Plan(req operations.Request) (*operations.Plan, error)
}

var (
	_ Runner  = (*operations.Downloader)(nil)
	_ Planner = (*operations.Downloader)(nil)
)

// Broadcaster pushes events to connected clients.
type Broadcaster interface {
	BroadcastWithTrace(eventType string, data interface{}, traceID string)
}

// StatusEvent is the payload of a batch:status event.
type StatusEvent struct {
	ID       string              `json:"id"`
	Status   domain.BatchStatus  `json:"status"`
	Summary  domain.BatchSummary `json:"summary"`
	Error    string              `json:"error,omitempty"`
	Progress *Progress           `json:"progress,omitempty"`
}

// Progress reports how far a running batch has got. Total is zero when the
// runner cannot plan ahead.
type Progress struct {
	Current    int     `json:"current"`
	Total      int     `json:"total"`
	Percentage float64 `json:"percentage"`
	ETA        string  `json:"eta"`
	Message    string  `json:"message,omitempty"`
	Complete   bool    `json:"complete"`
}

func progressOf(t *operations.ProgressTracker) *Progress {
	current, total, pct, msg := t.GetProgress()
	return &Progress{
		Current:    current,
		Total:      total,
		Percentage: pct,
		ETA:        t.GetETA(),
		Message:    msg,
		Complete:   total > 0 && t.IsComplete(),
	}
}

// BatchService queues batches and runs them on a single worker goroutine.
type BatchService struct {
	runner Runner
	store  *BatchStore
	hub    Broadcaster
	logger *slog.Logger
	limits BatchLimits

	queue chan string

	mu      sync.Mutex
	cancels map[string]context.CancelFunc
	baseCtx context.Context
	stop    context.CancelFunc
	started bool
	stopped bool
	done    chan struct{}
}

// NewBatchService creates a service. hub may be nil.
func NewBatchService(runner Runner, store *BatchStore, hub Broadcaster, queueSize int, logger *slog.Logger) *BatchService {
	if queueSize < 1 {
		queueSize = 1
	}
	return &BatchService{
		runner:  runner,
		store:   store,
		hub:     hub,
		logger:  infrastructure.WithComponent(logger, "batch_service"),
		queue:   make(chan string, queueSize),
		cancels: make(map[string]context.CancelFunc),
		done:    make(chan struct{}),
	}
}

// SetLimits installs the checks Submit applies. Call it before Start.
func (s *BatchService) SetLimits(l BatchLimits) {
	s.mu.Lock()
	s.limits = l
	s.mu.Unlock()
}

// Start launches the worker. Batches run under contexts derived from ctx.
func (s *BatchService) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return
	}
	s.started = true
	s.baseCtx, s.stop = context.WithCancel(context.WithoutCancel(ctx))
	go s.worker()
}

// Submit stores a new batch and queues it.
func (s *BatchService) Submit(ctx context.Context, req domain.BatchRequest) (*domain.Batch, error) {
	id := infrastructure.GenerateTraceID()
	// reject malformed dates before anything is stored
	if _, err := operations.RequestFromBatch(id, req); err != nil {
		return nil, err
	}
	s.mu.Lock()
	limits := s.limits
	s.mu.Unlock()
	req, err := limits.check(req)
	if err != nil {
		return nil, err
	}

	batch := &domain.Batch{
		ID:        id,
		Request:   req,
		Status:    domain.BatchQueued,
		CreatedAt: time.Now().UTC(),
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return nil, ErrServiceStopped
	}
	if err := s.store.Create(batch); err != nil {
		return nil, err
	}

	select {
	case s.queue <- id:
	default:
		_ = s.store.Delete(id)
		return nil, ErrQueueFull
	}

	s.logger.InfoContext(infrastructure.WithTraceID(ctx, id), "Batch queued",
		slog.String("batch_id", id),
		slog.String("from", req.StartDate),
		slog.String("to", req.EndDate))
	s.publishStatus(batch, nil)
	return s.store.Get(id)
}

// Get returns a batch by id.
func (s *BatchService) Get(id string) (*domain.Batch, error) {
	return s.store.Get(id)
}

// List returns batches matching filter, newest first.
func (s *BatchService) List(filter BatchFilter) []*domain.Batch {
	return s.store.List(filter)
}

// Cancel stops a queued or running batch. A queued batch is never started;
// a running one stops after its in-flight date.
func (s *BatchService) Cancel(id string) (*domain.Batch, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if cancel, running := s.cancels[id]; running {
		cancel()
		return s.store.Get(id)
	}

	var wasQueued bool
	b, err := s.store.Update(id, func(b *domain.Batch) {
		if b.Status == domain.BatchQueued {
			wasQueued = true
			b.Status = domain.BatchCancelled
			b.Summary.Cancelled = true
			now := time.Now().UTC()
			b.FinishedAt = &now
		}
	})
	if err != nil {
		return nil, err
	}
	if !wasQueued {
		return nil, ErrBatchNotRunning
	}
	s.publishStatus(b, nil)
	return b, nil
}

// Active returns the number of queued and running batches.
func (s *BatchService) Active() int {
	st := s.store.Stats()
	return st[string(domain.BatchQueued)] + st[string(domain.BatchRunning)]
}

// Shutdown cancels the running batch and waits for the worker to exit.
func (s *BatchService) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	if s.stopped || !s.started {
		s.stopped = true
		s.mu.Unlock()
		return nil
	}
	s.stopped = true
	s.stop()
	s.mu.Unlock()

	select {
	case <-s.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *BatchService) worker() {
	defer close(s.done)
	for {
		select {
		case <-s.baseCtx.Done():
			return
		case id := <-s.queue:
			s.execute(id)
		}
	}
}

func (s *BatchService) execute(id string) {
	b, err := s.store.Get(id)
	if err != nil || b.Status != domain.BatchQueued {
		return
	}
	req, err := operations.RequestFromBatch(id, b.Request)
	if err != nil {
		s.finish(id, domain.BatchSummary{}, nil, err)
		return
	}

	ctx, cancel := context.WithCancel(s.baseCtx)
	defer cancel()
	ctx = infrastructure.WithTraceID(ctx, id)

	// the queued -> running transition and the cancel registration happen
	// together so Cancel always sees one or the other
	s.mu.Lock()
	var started bool
	b, err = s.store.Update(id, func(b *domain.Batch) {
		if b.Status != domain.BatchQueued {
			return
		}
		started = true
		b.Status = domain.BatchRunning
		now := time.Now().UTC()
		b.StartedAt = &now
	})
	if err != nil || !started {
		s.mu.Unlock()
		return
	}
	s.cancels[id] = cancel
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		delete(s.cancels, id)
		s.mu.Unlock()
	}()

	tracker := operations.NewProgressTracker(0)
	if p, ok := s.runner.(Planner); ok {
		if plan, err := p.Plan(req); err == nil {
			tracker.SetTotal(len(plan.Dates))
		}
	}

	s.publishStatus(b, progressOf(tracker))
	s.logger.InfoContext(ctx, "Batch running", slog.String("batch_id", id))

	summary, err := s.runner.Run(ctx, req, func(o domain.Outcome) {
		tracker.Increment(o.Detail)
		updated, _ := s.store.Update(id, func(b *domain.Batch) {
			b.Outcomes = append(b.Outcomes, o)
			b.Summary.Add(o)
		})
		if s.hub == nil {
			return
		}
		s.hub.BroadcastWithTrace(websocket.EventBatchOutcome, o, id)
		if updated != nil {
			s.publishStatus(updated, progressOf(tracker))
		}
	})
	s.finish(id, summary, tracker, err)
}

func (s *BatchService) finish(id string, summary domain.BatchSummary, tracker *operations.ProgressTracker, err error) {
	b, updateErr := s.store.Update(id, func(b *domain.Batch) {
		b.Summary = summary
		now := time.Now().UTC()
		b.FinishedAt = &now
		switch {
		case err == nil:
			b.Status = domain.BatchCompleted
		case errors.Is(err, context.Canceled):
			b.Status = domain.BatchCancelled
		default:
			b.Status = domain.BatchFailed
			b.Error = err.Error()
		}
	})
	if updateErr != nil {
		return
	}

	ctx := infrastructure.WithTraceID(context.Background(), id)
	s.logger.InfoContext(ctx, "Batch finished",
		slog.String("batch_id", id),
		slog.String("status", string(b.Status)),
		slog.Int("succeeded", summary.Succeeded),
		slog.Int("skipped", summary.Skipped),
		slog.Int("failed", summary.Failed))

	var progress *Progress
	if tracker != nil {
		progress = progressOf(tracker)
	}
	s.publishStatus(b, progress)
}

func (s *BatchService) publishStatus(b *domain.Batch, progress *Progress) {
	if s.hub == nil {
		return
	}
	s.hub.BroadcastWithTrace(websocket.EventBatchStatus, StatusEvent{
		ID:       b.ID,
		Status:   b.Status,
		Summary:  b.Summary,
		Error:    b.Error,
		Progress: progress,
	}, b.ID)
}
