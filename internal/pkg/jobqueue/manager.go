package jobqueue

import (
	"context"
	"sync"

	"github.com/gofiber/fiber/v2/log"
	"github.com/redis/go-redis/v9"
	"github.com/robfig/cron/v3"
	"gorm.io/gorm"

	"github.com/ManuelReschke/CourseFox/internal/pkg/env"
	"github.com/ManuelReschke/CourseFox/internal/pkg/mail"
)

// DefaultReconcileSchedule runs the nightly aggregate repair at 03:00.
const DefaultReconcileSchedule = "0 3 * * *"

// Manager owns the job queue and the cron scheduler.
type Manager struct {
	queue    *Queue
	notifier *Notifier
	cron     *cron.Cron
	schedule string
	mu       sync.Mutex
	running  bool
	entry    cron.EntryID
}

// NewManager wires the queue, its handlers and the scheduler. Worker count and
// schedule come from JOB_QUEUE_WORKERS and RECONCILE_SCHEDULE.
func NewManager(db *gorm.DB, client *redis.Client, mailer mail.Mailer) *Manager {
	q := NewQueue(client, env.GetEnvInt("JOB_QUEUE_WORKERS", 5))
	NewProcessors(db, mailer, env.GetEnv("PUBLIC_DOMAIN", "")).Register(q)
	return &Manager{
		queue:    q,
		notifier: NewNotifier(q),
		cron:     cron.New(),
		schedule: env.GetEnv("RECONCILE_SCHEDULE", DefaultReconcileSchedule),
	}
}

// GetQueue returns the managed job queue
func (m *Manager) GetQueue() *Queue {
	return m.queue
}

// Notifier returns the billing notifier backed by this queue.
func (m *Manager) Notifier() *Notifier {
	return m.notifier
}

// Start starts the workers and registers the reconcile schedule.
func (m *Manager) Start() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.running {
		return nil
	}

	if m.entry == 0 {
		id, err := m.cron.AddFunc(m.schedule, m.enqueueReconcileAll)
		if err != nil {
			return err
		}
		m.entry = id
	}
	m.queue.Start()
	m.cron.Start()
	m.running = true
	log.Infof("[JobQueue Manager] Started (reconcile schedule %q)", m.schedule)
	return nil
}

func (m *Manager) enqueueReconcileAll() {
	if err := m.ScheduleReconcileAll(); err != nil {
		log.Errorf("[JobQueue Manager] Failed to schedule reconcile: %v", err)
	}
}

// ScheduleReconcileAll queues a reconcile_all job outside the cron schedule.
func (m *Manager) ScheduleReconcileAll() error {
	_, err := m.notifier.ReconcileAll(context.Background())
	return err
}

// Stop stops the scheduler and waits for running jobs.
func (m *Manager) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.running {
		return
	}

	log.Info("[JobQueue Manager] Stopping...")
	<-m.cron.Stop().Done()
	m.queue.Stop()
	m.running = false
	log.Info("[JobQueue Manager] Stopped successfully")
}

// IsRunning returns whether the manager is currently running
func (m *Manager) IsRunning() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running
}
