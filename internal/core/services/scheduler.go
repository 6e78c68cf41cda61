package services

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/custodia-labs/kgraph/internal/core/domain"
	"github.com/custodia-labs/kgraph/internal/core/ports/driven"
	"github.com/custodia-labs/kgraph/internal/logger"
)

// TaskFunc runs one maintenance task and reports how many items it handled.
type TaskFunc func(ctx context.Context) (int, error)

// maxResults is how many task results the scheduler remembers.
const maxResults = 100

// Scheduler runs maintenance tasks on their configured intervals.
// Task state lives in memory; every process start schedules each task one
// interval out.
type Scheduler struct {
	config domain.SchedulerConfig
	funcs  map[string]TaskFunc
	tick   time.Duration
	now    func() time.Time

	mu      sync.Mutex
	tasks   map[string]*domain.ScheduledTask
	results []domain.TaskResult
	active  map[string]bool
	running bool
	stopCh  chan struct{}
	wg      sync.WaitGroup
}

// NewScheduler creates a scheduler. Tasks without a TaskFunc, or disabled
// in config, never run.
func NewScheduler(config domain.SchedulerConfig, funcs map[string]TaskFunc) *Scheduler {
	return &Scheduler{
		config: config,
		funcs:  funcs,
		tick:   time.Minute,
		now:    time.Now,
		tasks:  make(map[string]*domain.ScheduledTask),
		active: make(map[string]bool),
	}
}

// WithTick overrides how often due tasks are checked.
func (s *Scheduler) WithTick(d time.Duration) *Scheduler {
	if d > 0 {
		s.tick = d
	}
	return s
}

// Start begins the scheduler loop. It blocks until Stop is called or ctx
// is done.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return nil
	}
	if !s.config.Enabled {
		s.mu.Unlock()
		logger.Debug("scheduler: disabled")
		return nil
	}
	s.running = true
	s.stopCh = make(chan struct{})
	stop := s.stopCh
	s.initialiseTasks()
	s.mu.Unlock()

	return s.run(ctx, stop)
}

// Stop shuts the loop down and waits for running tasks.
func (s *Scheduler) Stop() error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	close(s.stopCh)
	s.mu.Unlock()

	s.wg.Wait()
	return nil
}

// RunNow executes a task immediately and waits for it.
func (s *Scheduler) RunNow(ctx context.Context, id string) (domain.TaskResult, error) {
	fn, ok := s.funcs[id]
	if !ok {
		return domain.TaskResult{}, domain.ErrNotFound
	}
	s.mu.Lock()
	task, ok := s.tasks[id]
	if !ok {
		task = &domain.ScheduledTask{ID: id, Name: id, Interval: s.config.GetTaskConfig(id).Interval, Enabled: true}
		s.tasks[id] = task
	}
	s.mu.Unlock()
	return s.execute(ctx, task, fn), nil
}

// Tasks returns a snapshot of the scheduled tasks sorted by ID.
func (s *Scheduler) Tasks() []domain.ScheduledTask {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.ScheduledTask, 0, len(s.tasks))
	for _, t := range s.tasks {
		out = append(out, *t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Results returns the most recent task results, oldest first.
func (s *Scheduler) Results() []domain.TaskResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.TaskResult(nil), s.results...)
}

// initialiseTasks registers every enabled task that has a TaskFunc.
// Callers hold s.mu.
func (s *Scheduler) initialiseTasks() {
	names := map[string]string{
		domain.TaskIDIndexRebuild: "Vector Index Rebuild",
		domain.TaskIDHistoryPrune: "Status History Prune",
	}
	for id := range s.funcs {
		cfg := s.config.GetTaskConfig(id)
		if !cfg.Enabled || cfg.Interval <= 0 {
			continue
		}
		name := names[id]
		if name == "" {
			name = id
		}
		task, ok := s.tasks[id]
		if !ok {
			task = &domain.ScheduledTask{ID: id, Name: name}
			s.tasks[id] = task
		}
		if task.Interval != cfg.Interval || task.NextRun.IsZero() {
			task.Interval = cfg.Interval
			task.NextRun = s.now().Add(cfg.Interval)
		}
		task.Enabled = true
	}
}

func (s *Scheduler) run(ctx context.Context, stop <-chan struct{}) error {
	ticker := time.NewTicker(s.tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.wg.Wait()
			return ctx.Err()
		case <-stop:
			return nil
		case <-ticker.C:
			s.checkAndRunDueTasks(ctx)
		}
	}
}

// checkAndRunDueTasks starts every due task that is not already running.
func (s *Scheduler) checkAndRunDueTasks(ctx context.Context) {
	now := s.now()
	s.mu.Lock()
	var due []*domain.ScheduledTask
	for id, task := range s.tasks {
		if !task.Enabled || s.active[id] {
			continue
		}
		if !task.NextRun.After(now) {
			s.active[id] = true
			due = append(due, task)
		}
	}
	s.mu.Unlock()

	for _, task := range due {
		fn := s.funcs[task.ID]
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.execute(ctx, task, fn)
			s.mu.Lock()
			delete(s.active, task.ID)
			s.mu.Unlock()
		}()
	}
}

func (s *Scheduler) execute(ctx context.Context, task *domain.ScheduledTask, fn TaskFunc) domain.TaskResult {
	result := domain.TaskResult{TaskID: task.ID, StartedAt: s.now()}
	n, err := fn(ctx)
	result.ItemsProcessed = n
	result.EndedAt = s.now()

	s.mu.Lock()
	defer s.mu.Unlock()
	if err != nil {
		result.Error = err.Error()
		task.LastError = err.Error()
		logger.Warn("scheduler: task %s failed: %v", task.ID, err)
	} else {
		result.Success = true
		task.LastError = ""
		task.LastSuccess = result.EndedAt
		logger.Debug("scheduler: task %s processed %d items", task.ID, n)
	}
	task.LastRun = result.StartedAt
	if task.Interval > 0 {
		task.NextRun = result.EndedAt.Add(task.Interval)
	}

	s.results = append(s.results, result)
	if len(s.results) > maxResults {
		s.results = s.results[len(s.results)-maxResults:]
	}
	return result
}

// HistoryPruner trims stored status history.
type HistoryPruner interface {
	PruneHistory(ctx context.Context, keep int) error
}

// MaintenanceTasks builds the task table for the serve command. A nil
// indexer or pruner leaves the matching task out.
func MaintenanceTasks(indexer *Indexer, store driven.PassageStore, pruner HistoryPruner, keep int) map[string]TaskFunc {
	tasks := make(map[string]TaskFunc, 2)
	if indexer != nil && store != nil {
		tasks[domain.TaskIDIndexRebuild] = func(ctx context.Context) (int, error) {
			return indexer.Rebuild(ctx, store)
		}
	}
	if pruner != nil {
		if keep <= 0 {
			keep = domain.DefaultSchedulerConfig().HistoryKeep
		}
		tasks[domain.TaskIDHistoryPrune] = func(ctx context.Context) (int, error) {
			return 0, pruner.PruneHistory(ctx, keep)
		}
	}
	return tasks
}
