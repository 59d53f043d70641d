package jobqueue

import (
	"context"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"github.com/redis/go-redis/v9"

	"github.com/ManuelReschke/ListingHub/internal/pkg/env"
)

type Config struct {
	Workers    int
	RetryDelay time.Duration
	// StuckAfter is how long a job may stay in processing before the sweeper requeues it.
	StuckAfter time.Duration
	// BacklogInterval is how often the queue depth is checked.
	BacklogInterval time.Duration
	// BacklogWarn is the pending job count that triggers a warning.
	BacklogWarn int64
}

func LoadConfig() Config {
	return Config{
		Workers:         env.GetInt("JOBQUEUE_WORKERS", 3),
		RetryDelay:      env.GetDuration("JOBQUEUE_RETRY_DELAY", time.Minute),
		StuckAfter:      env.GetDuration("JOBQUEUE_STUCK_AFTER", 10*time.Minute),
		BacklogInterval: env.GetDuration("JOBQUEUE_BACKLOG_INTERVAL", 5*time.Minute),
		BacklogWarn:     int64(env.GetInt("JOBQUEUE_BACKLOG_WARN", 100)),
	}
}

// Manager owns the job queue and its backlog monitor.
type Manager struct {
	queue *Queue
	cfg   Config

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

func NewManager(client *redis.Client, cfg Config, procs Processors) *Manager {
	if cfg.BacklogInterval <= 0 {
		cfg.BacklogInterval = 5 * time.Minute
	}
	q := NewQueue(client, cfg.Workers, procs)
	if cfg.RetryDelay > 0 {
		q.retryDelay = cfg.RetryDelay
	}
	if cfg.StuckAfter > 0 {
		q.stuckAfter = cfg.StuckAfter
	}
	return &Manager{queue: q, cfg: cfg}
}

func (m *Manager) GetQueue() *Queue {
	return m.queue
}

// Start runs the queue workers and the backlog monitor. Calling it twice is a no-op.
func (m *Manager) Start() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cancel != nil {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	m.cancel = cancel
	m.done = make(chan struct{})
	m.queue.Start()
	go m.monitor(ctx, m.done)
	log.Infof("[JobQueue Manager] Started with %d workers", m.queue.workers)
}

// Stop waits for the monitor and the workers to exit.
func (m *Manager) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cancel == nil {
		return
	}

	m.cancel()
	<-m.done
	m.cancel, m.done = nil, nil
	m.queue.Stop()
	log.Info("[JobQueue Manager] Stopped")
}

func (m *Manager) IsRunning() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cancel != nil
}

func (m *Manager) monitor(ctx context.Context, done chan<- struct{}) {
	defer close(done)
	ticker := time.NewTicker(m.cfg.BacklogInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.checkBacklog(ctx)
		}
	}
}

// Backlog is a point-in-time view of the queue depths.
type Backlog struct {
	Pending    int64
	Processing int64
	Delayed    int64
}

func (m *Manager) Backlog(ctx context.Context) (Backlog, error) {
	var (
		b   Backlog
		err error
	)
	if b.Pending, err = m.queue.GetQueueSize(ctx); err != nil {
		return b, err
	}
	if b.Processing, err = m.queue.GetProcessingSize(ctx); err != nil {
		return b, err
	}
	b.Delayed, err = m.queue.GetDelayedSize(ctx)
	return b, err
}

// checkBacklog warns once pending plus delayed jobs reach BacklogWarn.
func (m *Manager) checkBacklog(ctx context.Context) {
	b, err := m.Backlog(ctx)
	if err != nil {
		if ctx.Err() == nil {
			log.Errorf("[JobQueue Manager] Backlog check failed: %v", err)
		}
		return
	}
	if m.cfg.BacklogWarn > 0 && b.Pending+b.Delayed >= m.cfg.BacklogWarn {
		log.Warnf("[JobQueue Manager] Backlog: %d pending, %d delayed, %d processing", b.Pending, b.Delayed, b.Processing)
	}
}
