package jobqueue

import (
	"strconv"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2/log"

	"github.com/justinrpoole/143-assessment-sub003/internal/pkg/database"
	"github.com/justinrpoole/143-assessment-sub003/internal/pkg/env"
)

// Manager owns the global email queue and its background tickers.
type Manager struct {
	queue     *Queue
	dueTicker *time.Ticker
	stopCh    chan struct{}
	wg        sync.WaitGroup
	mu        sync.Mutex
	running   bool
}

var (
	globalManager *Manager
	managerOnce   sync.Once
)

// GetManager returns the global email queue manager (singleton).
func GetManager() *Manager {
	managerOnce.Do(func() {
		workers := DefaultWorkers
		if raw := env.GetEnv("EMAIL_WORKER_COUNT", ""); raw != "" {
			if n, err := strconv.Atoi(raw); err == nil && n > 0 {
				workers = n
			}
		}
		globalManager = &Manager{
			queue:  NewQueue(database.GetDB(), workers),
			stopCh: make(chan struct{}),
		}
	})
	return globalManager
}

// GetQueue returns the managed email queue.
func (m *Manager) GetQueue() *Queue {
	return m.queue
}

// Start starts the queue workers and the due-job scanner.
func (m *Manager) Start() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.running {
		return
	}
	m.stopCh = make(chan struct{})
	m.running = true
	log.Info("[JobQueue Manager] Starting email queue and background tasks")

	m.queue.Start()

	m.dueTicker = time.NewTicker(time.Minute)
	m.wg.Add(1)
	go m.dueWorker()

	log.Info("[JobQueue Manager] Started successfully")
}

// Stop stops the queue workers and background tasks.
func (m *Manager) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.running {
		return
	}
	log.Info("[JobQueue Manager] Stopping email queue...")

	if m.dueTicker != nil {
		m.dueTicker.Stop()
	}
	close(m.stopCh)
	m.running = false
	m.wg.Wait()
	m.queue.Stop()

	log.Info("[JobQueue Manager] Stopped successfully")
}

// IsRunning returns whether the manager is currently running.
func (m *Manager) IsRunning() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running
}

// dueWorker periodically pushes due queued rows onto the redis queue.
func (m *Manager) dueWorker() {
	defer m.wg.Done()
	for {
		select {
		case <-m.stopCh:
			log.Info("[JobQueue Manager] Due-job worker stopping")
			return
		case <-m.dueTicker.C:
			if err := m.queue.EnqueueDueJobs(); err != nil {
				log.Errorf("[JobQueue Manager] Due-job scan error: %v", err)
			}
		}
	}
}
