package jobqueue

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"github.com/justinrpoole/143-assessment-sub003/app/models"
	"github.com/justinrpoole/143-assessment-sub003/internal/pkg/cache"
)

const (
	// Redis keys
	EmailQueueKey      = "email_job_queue"
	EmailProcessingKey = "email_job_processing"
	EmailStatsKey      = "email_job_stats"

	// Job settings
	DefaultMaxAttempts = 3
	DefaultWorkers     = 3
)

// errSkipJob marks jobs that must not be sent (unknown type, canceled row).
var errSkipJob = errors.New("jobqueue: job skipped")

// Queue delivers email jobs. The durable state lives in the email_jobs table;
// the redis list only carries job ids so workers wake up without polling.
type Queue struct {
	db      *gorm.DB
	client  *redis.Client
	workers int
	stopCh  chan struct{}
	wg      sync.WaitGroup
	mu      sync.Mutex
	running bool
}

// NewQueue creates a new email job queue.
func NewQueue(db *gorm.DB, workers int) *Queue {
	if workers <= 0 {
		workers = DefaultWorkers
	}
	return &Queue{
		db:      db,
		client:  cache.GetClient(),
		workers: workers,
		stopCh:  make(chan struct{}),
	}
}

// Nudge pushes a job id onto the queue so a worker picks it up promptly.
// Best effort: the due-job scanner recovers ids lost to a redis hiccup.
func Nudge(jobID string) {
	ctx := context.Background()
	if err := cache.GetClient().LPush(ctx, EmailQueueKey, jobID).Err(); err != nil {
		log.Warnf("[JobQueue] Nudge failed for job %s: %v", jobID, err)
	}
}

// Start starts the queue workers and the stuck-processing sweeper.
func (q *Queue) Start() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.running {
		return
	}
	q.running = true
	q.stopCh = make(chan struct{})
	log.Infof("[JobQueue] Starting %d email workers", q.workers)

	for i := 0; i < q.workers; i++ {
		q.wg.Add(1)
		go q.worker(i)
	}

	q.wg.Add(1)
	go q.stuckSweeper(10*time.Minute, time.Minute)
}

// Stop stops the queue workers.
func (q *Queue) Stop() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if !q.running {
		return
	}
	log.Info("[JobQueue] Stopping workers...")
	close(q.stopCh)
	q.running = false
	q.wg.Wait()
	log.Info("[JobQueue] All workers stopped")
}

// worker blocks on the redis queue and processes one job id at a time.
func (q *Queue) worker(id int) {
	defer q.wg.Done()
	log.Infof("[JobQueue] Worker %d started", id)

	ctx := context.Background()
	for {
		select {
		case <-q.stopCh:
			log.Infof("[JobQueue] Worker %d stopping", id)
			return
		default:
			jobID, err := q.client.BRPopLPush(ctx, EmailQueueKey, EmailProcessingKey, time.Second).Result()
			if err != nil {
				if err != redis.Nil {
					log.Errorf("[JobQueue] Worker %d dequeue error: %v", id, err)
					time.Sleep(time.Second)
				}
				continue
			}
			q.processJobID(ctx, jobID)
		}
	}
}

// processJobID claims the durable row for a nudged id and runs delivery.
// A lost claim means another worker or a duplicate nudge was here first.
func (q *Queue) processJobID(ctx context.Context, jobID string) {
	defer q.removeFromProcessing(ctx, jobID)

	job, claimed, err := q.claimJob(jobID)
	if err != nil {
		log.Errorf("[JobQueue] Claim error for job %s: %v", jobID, err)
		return
	}
	if !claimed {
		return
	}

	log.Infof("[JobQueue] Processing email job %s (type=%s user=%d)", job.ID, job.Type, job.UserID)
	q.finalizeJob(ctx, job, q.processEmailJob(job))
}

// claimJob flips a due queued row to processing. RowsAffected zero means the
// row is missing, not yet due, or already taken.
func (q *Queue) claimJob(jobID string) (*models.EmailJob, bool, error) {
	now := time.Now()
	res := q.db.Model(&models.EmailJob{}).
		Where("id = ? AND status = ? AND send_at <= ?", jobID, models.EmailJobStatusQueued, now).
		Updates(map[string]interface{}{
			"status":     models.EmailJobStatusProcessing,
			"attempts":   gorm.Expr("attempts + 1"),
			"updated_at": now,
		})
	if res.Error != nil {
		return nil, false, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, false, nil
	}

	var job models.EmailJob
	if err := q.db.Where("id = ?", jobID).First(&job).Error; err != nil {
		return nil, false, err
	}
	return &job, true, nil
}

// finalizeJob records the delivery outcome. Failed attempts below the retry
// budget go back to queued with a delayed re-nudge.
func (q *Queue) finalizeJob(ctx context.Context, job *models.EmailJob, procErr error) {
	now := time.Now()

	if procErr == nil {
		err := q.db.Model(job).Updates(map[string]interface{}{
			"status":     models.EmailJobStatusSent,
			"sent_at":    &now,
			"last_error": "",
			"updated_at": now,
		}).Error
		if err != nil {
			log.Errorf("[JobQueue] Failed to mark job %s sent: %v", job.ID, err)
		}
		q.bumpStats(ctx, models.EmailJobStatusSent)
		return
	}

	if errors.Is(procErr, errSkipJob) {
		log.Warnf("[JobQueue] Skipping email job %s: %v", job.ID, procErr)
		err := q.db.Model(job).Updates(map[string]interface{}{
			"status":     models.EmailJobStatusSkipped,
			"last_error": procErr.Error(),
			"updated_at": now,
		}).Error
		if err != nil {
			log.Errorf("[JobQueue] Failed to mark job %s skipped: %v", job.ID, err)
		}
		q.bumpStats(ctx, models.EmailJobStatusSkipped)
		return
	}

	log.Errorf("[JobQueue] Email job %s failed (attempt %d): %v", job.ID, job.Attempts, procErr)
	if job.Attempts < DefaultMaxAttempts {
		err := q.db.Model(job).Updates(map[string]interface{}{
			"status":     models.EmailJobStatusQueued,
			"last_error": procErr.Error(),
			"updated_at": now,
		}).Error
		if err != nil {
			log.Errorf("[JobQueue] Failed to requeue job %s: %v", job.ID, err)
			return
		}
		delay := time.Minute * time.Duration(job.Attempts)
		jobID := job.ID
		time.AfterFunc(delay, func() { Nudge(jobID) })
		return
	}

	err := q.db.Model(job).Updates(map[string]interface{}{
		"status":     models.EmailJobStatusFailed,
		"last_error": procErr.Error(),
		"updated_at": now,
	}).Error
	if err != nil {
		log.Errorf("[JobQueue] Failed to mark job %s failed: %v", job.ID, err)
	}
	q.bumpStats(ctx, models.EmailJobStatusFailed)
}

// stuckSweeper requeues rows stuck in processing, usually after a crash
// between claim and finalize.
func (q *Queue) stuckSweeper(maxAge time.Duration, interval time.Duration) {
	defer q.wg.Done()
	log.Infof("[JobQueue] Stuck sweeper running (maxAge=%s, interval=%s)", maxAge, interval)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-q.stopCh:
			log.Info("[JobQueue] Stuck sweeper stopping")
			return
		case <-ticker.C:
			if err := q.recoverStuckJobs(maxAge); err != nil {
				log.Errorf("[JobQueue] Sweeper error: %v", err)
			}
		}
	}
}

func (q *Queue) recoverStuckJobs(maxAge time.Duration) error {
	cutoff := time.Now().Add(-maxAge)
	var stuck []models.EmailJob
	err := q.db.Where("status = ? AND updated_at < ?", models.EmailJobStatusProcessing, cutoff).
		Limit(100).Find(&stuck).Error
	if err != nil {
		return err
	}
	for _, job := range stuck {
		log.Warnf("[JobQueue] Recovering stuck email job %s (type=%s)", job.ID, job.Type)
		err := q.db.Model(&job).Updates(map[string]interface{}{
			"status":     models.EmailJobStatusQueued,
			"last_error": "recovered by sweeper",
			"updated_at": time.Now(),
		}).Error
		if err != nil {
			log.Errorf("[JobQueue] Failed to recover job %s: %v", job.ID, err)
			continue
		}
		Nudge(job.ID)
	}
	return nil
}

// EnqueueDueJobs pushes queued rows whose send_at has arrived. Covers
// scheduled sends and nudges lost to redis restarts; duplicate pushes are
// harmless because the claim is atomic.
func (q *Queue) EnqueueDueJobs() error {
	ctx := context.Background()
	var due []models.EmailJob
	err := q.db.Where("status = ? AND send_at <= ?", models.EmailJobStatusQueued, time.Now()).
		Limit(200).Find(&due).Error
	if err != nil {
		return err
	}
	for _, job := range due {
		if err := q.client.LPush(ctx, EmailQueueKey, job.ID).Err(); err != nil {
			return err
		}
	}
	return nil
}

func (q *Queue) removeFromProcessing(ctx context.Context, jobID string) {
	if q.client == nil {
		return
	}
	if err := q.client.LRem(ctx, EmailProcessingKey, 1, jobID).Err(); err != nil {
		log.Errorf("[JobQueue] Failed to remove job %s from processing list: %v", jobID, err)
	}
}

// bumpStats tolerates a nil client; the stats hash is informational only.
func (q *Queue) bumpStats(ctx context.Context, status string) {
	if q.client == nil {
		return
	}
	if err := q.client.HIncrBy(ctx, EmailStatsKey, status, 1).Err(); err != nil {
		log.Errorf("[JobQueue] Failed to update job stats: %v", err)
	}
}

// GetQueueSize returns the number of nudges waiting in redis.
func (q *Queue) GetQueueSize(ctx context.Context) (int64, error) {
	return q.client.LLen(ctx, EmailQueueKey).Result()
}

// GetProcessingSize returns the number of nudges currently held by workers.
func (q *Queue) GetProcessingSize(ctx context.Context) (int64, error) {
	return q.client.LLen(ctx, EmailProcessingKey).Result()
}
