package health

import (
	"context"
	"sync"
	"time"

	"github.com/vietddude/snapcook/internal/syncqueue"
)

// QueueStats exposes sync queue depth.
type QueueStats interface {
	Stats(ctx context.Context) (syncqueue.Stats, error)
}

// Pinger checks a backing store.
type Pinger interface {
	Health(ctx context.Context) error
}

// Thresholds for queue status.
const (
	backlogDegraded = 50
	backlogCritical = 500
)

// Monitor aggregates health status from the queue, connectivity and stores.
type Monitor struct {
	queue      QueueStats
	online     syncqueue.ConnectivityChecker
	stores     map[string]Pinger
	cacheTTL   time.Duration
	lastCheck  time.Time
	lastReport map[string]ComponentHealth
	mu         sync.Mutex
}

// NewMonitor creates a new health monitor. online and stores may be nil.
func NewMonitor(queue QueueStats, online syncqueue.ConnectivityChecker, stores map[string]Pinger) *Monitor {
	return &Monitor{
		queue:      queue,
		online:     online,
		stores:     stores,
		cacheTTL:   10 * time.Second,
		lastReport: make(map[string]ComponentHealth),
	}
}

// CheckHealth performs a health check of every component.
func (m *Monitor) CheckHealth(ctx context.Context) map[string]ComponentHealth {
	m.mu.Lock()
	defer m.mu.Unlock()

	// Rate limit checks to avoid pinging stores on every request
	if time.Since(m.lastCheck) < m.cacheTTL && len(m.lastReport) > 0 {
		return m.lastReport
	}

	report := make(map[string]ComponentHealth)
	report["queue"] = m.checkQueue(ctx)

	if m.online != nil {
		online := m.online.IsOnline(ctx)
		c := ComponentHealth{Name: "connectivity", Status: StatusHealthy, Online: &online}
		if !online {
			// Offline is expected; tasks wait in the queue
			c.Status = StatusDegraded
		}
		report["connectivity"] = c
	}

	for name, p := range m.stores {
		c := ComponentHealth{Name: name, Status: StatusHealthy}
		if err := p.Health(ctx); err != nil {
			c.Status = StatusCritical
			c.Error = err.Error()
		}
		report[name] = c
	}

	m.lastCheck = time.Now()
	m.lastReport = report
	return report
}

func (m *Monitor) checkQueue(ctx context.Context) ComponentHealth {
	c := ComponentHealth{Name: "queue", Status: StatusHealthy}
	stats, err := m.queue.Stats(ctx)
	if err != nil {
		c.Status = StatusCritical
		c.Error = err.Error()
		return c
	}
	c.Pending = stats.Pending
	c.InFlight = stats.InFlight
	c.DeadLetters = stats.DeadLetters

	backlog := stats.Pending + stats.InFlight
	if backlog > backlogCritical {
		c.Status = StatusCritical
	} else if backlog > backlogDegraded || stats.DeadLetters > 0 {
		c.Status = StatusDegraded
	}
	return c
}
