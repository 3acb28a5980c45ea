package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/hamed0406/urlmonitor/internal/domain"
	"github.com/hamed0406/urlmonitor/internal/notify"
	"github.com/hamed0406/urlmonitor/internal/policy"
	"github.com/hamed0406/urlmonitor/internal/probe"
)

var (
	ErrAlreadyRunning    = errors.New("monitor task already running")
	ErrInvalidDefinition = errors.New("invalid check definition")
)

// ResultSink persists one CheckResult per completed cycle.
type ResultSink interface {
	SaveResult(ctx context.Context, r *domain.CheckResult) error
}

// RecipientSource returns the e-mail addresses to alert for a definition.
type RecipientSource interface {
	Recipients(ctx context.Context, checkID int64) ([]string, error)
}

// Deps are the collaborators shared by every monitor task. They must be safe
// for concurrent use. Notifier, Results and Recipients may be nil.
type Deps struct {
	Checker    probe.Checker
	Policy     policy.Policy
	Notifier   notify.Notifier
	Results    ResultSink
	Recipients RecipientSource
}

type Options struct {
	// IntervalUnit is the duration of one Frequency unit. Defaults to a second.
	IntervalUnit time.Duration
	// StoreTimeout bounds each storage call made by a task.
	StoreTimeout time.Duration
	// NotifyTimeout bounds each notifier call made by a task.
	NotifyTimeout time.Duration
	// DNSDiagnostics logs a DNS classification after transport-level failures.
	DNSDiagnostics bool
}

// Registry owns one monitor task per definition id.
//
// Lifecycle calls hold mu across cancel and wait, so Start, Replace and
// StopByIdentity for the same id never interleave. Tasks never take mu.
// Waiting for an in-flight cycle can take up to the probe timeout (times the
// retry attempts), two StoreTimeouts and two NotifyTimeouts: over a minute
// with the defaults. Every other lifecycle call queues behind it.
//
// Map writes also take view, so Running and Failures only need view and do
// not block behind a lifecycle wait.
type Registry struct {
	logger *zap.Logger
	deps   Deps
	opts   Options

	mu    sync.Mutex
	view  sync.RWMutex
	tasks map[int64]*task
}

func NewRegistry(logger *zap.Logger, deps Deps, opts Options) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	if deps.Checker == nil {
		deps.Checker = probe.NewHTTPChecker(10 * time.Second)
	}
	if deps.Policy.Threshold < 1 {
		deps.Policy = policy.New(deps.Policy.Threshold)
	}
	if opts.IntervalUnit <= 0 {
		opts.IntervalUnit = time.Second
	}
	if opts.StoreTimeout <= 0 {
		opts.StoreTimeout = 5 * time.Second
	}
	if opts.NotifyTimeout <= 0 {
		opts.NotifyTimeout = 30 * time.Second
	}
	return &Registry{
		logger: logger,
		deps:   deps,
		opts:   opts,
		tasks:  make(map[int64]*task),
	}
}

func validate(def domain.CheckDefinition) error {
	if def.Frequency <= 0 {
		return fmt.Errorf("%w: frequency must be positive, got %d", ErrInvalidDefinition, def.Frequency)
	}
	if def.URL == "" {
		return fmt.Errorf("%w: empty url", ErrInvalidDefinition)
	}
	return nil
}

// Start launches a monitor task for def.ID.
func (r *Registry) Start(def domain.CheckDefinition) error {
	if err := validate(def); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.tasks[def.ID]; ok {
		return fmt.Errorf("%w: id %d", ErrAlreadyRunning, def.ID)
	}
	r.startLocked(def)
	return nil
}

// Replace stops the task for id, waits for it to exit and starts a new one
// bound to def with a fresh failure counter. Without a running task it
// behaves like Start.
func (r *Registry) Replace(id int64, def domain.CheckDefinition) error {
	def.ID = id
	if err := validate(def); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if old, ok := r.tasks[id]; ok {
		r.stopLocked(old)
	}
	r.startLocked(def)
	r.logger.Info("monitor_replaced", zap.Int64("check_id", id), zap.String("url", def.URL))
	return nil
}

// StopByIdentity cancels the task for id and returns once it has exited.
// It reports false when no task is registered under id.
func (r *Registry) StopByIdentity(id int64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	t, ok := r.tasks[id]
	if !ok {
		return false
	}
	r.stopLocked(t)
	return true
}

// LoadAll starts one task per definition. Invalid or duplicate definitions
// are logged and skipped.
func (r *Registry) LoadAll(defs []domain.CheckDefinition) {
	started := 0
	for _, d := range defs {
		if err := r.Start(d); err != nil {
			r.logger.Warn("monitor_load_skipped", zap.Int64("check_id", d.ID), zap.Error(err))
			continue
		}
		started++
	}
	r.logger.Info("monitors_loaded", zap.Int("started", started), zap.Int("total", len(defs)))
}

// StopAll cancels every task and waits for all of them to exit.
func (r *Registry) StopAll() {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, t := range r.tasks {
		t.cancel()
	}
	for id, t := range r.tasks {
		<-t.done
		r.view.Lock()
		delete(r.tasks, id)
		r.view.Unlock()
	}
	r.logger.Info("monitors_stopped")
}

// Running returns the ids of registered tasks in ascending order.
func (r *Registry) Running() []int64 {
	r.view.RLock()
	defer r.view.RUnlock()

	ids := make([]int64, 0, len(r.tasks))
	for id := range r.tasks {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Failures returns the current failure streak of the task for id.
func (r *Registry) Failures(id int64) (int, bool) {
	r.view.RLock()
	t, ok := r.tasks[id]
	r.view.RUnlock()
	if !ok {
		return 0, false
	}
	return int(t.failures.Load()), true
}

func (r *Registry) startLocked(def domain.CheckDefinition) {
	ctx, cancel := context.WithCancel(context.Background())
	t := &task{
		def:    def,
		deps:   r.deps,
		opts:   r.opts,
		log:    r.logger.With(zap.Int64("check_id", def.ID), zap.String("url", def.URL)),
		cancel: cancel,
		done:   make(chan struct{}),
	}
	r.view.Lock()
	r.tasks[def.ID] = t
	r.view.Unlock()
	go t.run(ctx)
}

func (r *Registry) stopLocked(t *task) {
	t.cancel()
	<-t.done
	r.view.Lock()
	delete(r.tasks, t.def.ID)
	r.view.Unlock()
}
