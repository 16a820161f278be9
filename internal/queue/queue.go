// Package queue runs the worker loop that drains the persistent pipeline
// queue. Workers poll the database on a fixed interval, claim one task at a
// time with an atomic claim query, and hand it to a task processor. Failed
// tasks are rescheduled with exponential backoff until their attempt budget
// runs out.
package queue

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"photoframe/internal/database"
	"photoframe/internal/logging"
	"photoframe/internal/metrics"
)

// DefaultPollInterval matches the cadence the queue was tuned for: fast
// enough that fresh uploads feel immediate, slow enough to keep the idle
// query load negligible.
const DefaultPollInterval = 3 * time.Second

// TaskProcessor executes one claimed task. Returning an error triggers the
// retry/backoff path.
type TaskProcessor interface {
	Process(ctx context.Context, task *database.Task) error
}

// WorkerStats is a snapshot of one worker's counters.
type WorkerStats struct {
	Worker      int       `json:"worker"`
	Processed   int64     `json:"processed"`
	Errors      int64     `json:"errors"`
	SuccessRate float64   `json:"successRate"`
	StartedAt   time.Time `json:"startedAt"`
	UptimeSec   float64   `json:"uptimeSeconds"`
}

// Stats aggregates queue depth by status with per-worker counters.
type Stats struct {
	Queue   map[string]int `json:"queue"`
	Workers []WorkerStats  `json:"workers"`
}

// Options configures a Manager.
type Options struct {
	// PollInterval between idle polls. Zero selects DefaultPollInterval.
	PollInterval time.Duration
	// Workers is the number of concurrent polling workers. Zero means one.
	Workers int
}

// Manager owns the worker goroutines that drain the queue.
type Manager struct {
	db        *database.Database
	processor TaskProcessor
	interval  time.Duration
	workers   int
	log       *logging.Logger

	mu        sync.Mutex
	stats     []*workerCounters
	startedAt time.Time
	running   bool
	cancel    context.CancelFunc
	wg        sync.WaitGroup
}

type workerCounters struct {
	processed atomic.Int64
	errors    atomic.Int64
}

// NewManager builds a queue manager. Start must be called before any tasks
// are processed.
func NewManager(db *database.Database, processor TaskProcessor, opts Options) *Manager {
	interval := opts.PollInterval
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	workers := opts.Workers
	if workers <= 0 {
		workers = 1
	}
	return &Manager{
		db:        db,
		processor: processor,
		interval:  interval,
		workers:   workers,
		log:       logging.Tagged("queue"),
	}
}

// Start launches the worker goroutines. Calling Start on a running manager
// is a no-op.
func (m *Manager) Start(ctx context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.running {
		return
	}
	m.running = true
	m.startedAt = time.Now()

	ctx, m.cancel = context.WithCancel(ctx)
	m.stats = make([]*workerCounters, m.workers)
	for i := 0; i < m.workers; i++ {
		m.stats[i] = &workerCounters{}
		m.wg.Add(1)
		go m.runWorker(ctx, i)
	}
	m.log.Info("Queue started with %d worker(s), poll interval %s", m.workers, m.interval)
}

// Stop signals all workers and waits for in-flight tasks to finish.
func (m *Manager) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	m.running = false
	cancel := m.cancel
	m.mu.Unlock()

	cancel()
	m.wg.Wait()
	m.log.Info("Queue stopped")
}

// runWorker polls for work. The first poll happens immediately so a restart
// picks up backlog without waiting a full interval. After draining every
// claimable task the worker sleeps until the next tick.
func (m *Manager) runWorker(ctx context.Context, id int) {
	defer m.wg.Done()

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	m.drain(ctx, id)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.drain(ctx, id)
			m.updateDepthGauge(ctx)
		}
	}
}

// drain claims and processes tasks until the queue has nothing eligible.
func (m *Manager) drain(ctx context.Context, id int) {
	for {
		if ctx.Err() != nil {
			return
		}
		task, err := m.db.ClaimNextTask(ctx)
		if err != nil {
			m.log.Error("[worker %d] claim failed: %v", id, err)
			return
		}
		if task == nil {
			return
		}
		m.processTask(ctx, id, task)
	}
}

func (m *Manager) processTask(ctx context.Context, id int, task *database.Task) {
	counters := m.stats[id]
	taskType := task.Payload.Type

	start := time.Now()
	err := m.runProcessor(ctx, task)
	metrics.QueueTaskDuration.WithLabelValues(taskType).Observe(time.Since(start).Seconds())

	if err == nil {
		if cerr := m.db.MarkTaskCompleted(ctx, task.ID); cerr != nil {
			m.log.Error("[worker %d] completing task %d: %v", id, task.ID, cerr)
		}
		counters.add(true)
		metrics.QueueTasksCompleted.WithLabelValues(taskType).Inc()
		return
	}

	m.log.Error("[worker %d] task %d failed: %v", id, task.ID, err)
	counters.add(false)
	metrics.QueueTasksFailed.WithLabelValues(taskType).Inc()

	willRetry, ferr := m.db.MarkTaskFailed(ctx, task.ID, err.Error())
	if ferr != nil {
		m.log.Error("[worker %d] recording failure for task %d: %v", id, task.ID, ferr)
		return
	}
	if willRetry {
		m.log.Warn("[worker %d] task %d scheduled for retry (attempt %d/%d)", id, task.ID, task.Attempts+1, task.MaxAttempts)
	} else {
		m.log.Error("[worker %d] task %d failed permanently after %d attempts", id, task.ID, task.Attempts+1)
	}
}

// runProcessor isolates processor panics so one poisoned task cannot take
// down the worker.
func (m *Manager) runProcessor(ctx context.Context, task *database.Task) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &panicError{value: r}
		}
	}()
	return m.processor.Process(ctx, task)
}

func (m *Manager) updateDepthGauge(ctx context.Context) {
	stats, err := m.db.QueueStats(ctx)
	if err != nil {
		return
	}
	for _, status := range []database.TaskStatus{
		database.TaskStatusPending, database.TaskStatusInStages,
		database.TaskStatusCompleted, database.TaskStatusFailed,
	} {
		metrics.QueueDepth.WithLabelValues(string(status)).Set(float64(stats[string(status)]))
	}
}

// Stats returns queue depth plus per-worker counters.
func (m *Manager) Stats(ctx context.Context) (*Stats, error) {
	queueStats, err := m.db.QueueStats(ctx)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	s := &Stats{Queue: queueStats}
	uptime := time.Since(m.startedAt).Seconds()
	for i, c := range m.stats {
		processed, errs := c.snapshot()
		ws := WorkerStats{
			Worker:    i,
			Processed: processed,
			Errors:    errs,
			StartedAt: m.startedAt,
			UptimeSec: uptime,
		}
		if total := processed + errs; total > 0 {
			ws.SuccessRate = float64(processed) / float64(total)
		}
		s.Workers = append(s.Workers, ws)
	}
	return s, nil
}

func (c *workerCounters) add(ok bool) {
	if ok {
		c.processed.Add(1)
	} else {
		c.errors.Add(1)
	}
}

func (c *workerCounters) snapshot() (int64, int64) {
	return c.processed.Load(), c.errors.Load()
}

type panicError struct{ value any }

func (e *panicError) Error() string {
	return fmt.Sprintf("task processor panicked: %v", e.value)
}
