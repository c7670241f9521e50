package billing

import (
	"encoding/json"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"github.com/google/uuid"

	"github.com/justinrpoole/143-assessment-sub003/app/models"
	"github.com/justinrpoole/143-assessment-sub003/internal/pkg/analytics"
	"github.com/justinrpoole/143-assessment-sub003/internal/pkg/jobqueue"
)

// SideEffects is the capability surface for everything a webhook handler
// triggers beyond the entitlement write. Implementations must never fail the
// caller; a lost analytics event or email must not fail a paid upgrade.
type SideEffects interface {
	EmitAnalytics(event analytics.Event)
	QueueEmail(userID uint, jobType string, payload map[string]interface{})
}

type dispatcher struct {
	repo Repository
}

// NewDispatcher returns the production SideEffects implementation. Emails are
// written as durable job rows and nudged onto the redis queue; analytics go
// through the shared emitter. All failures are logged and swallowed.
func NewDispatcher(repo Repository) SideEffects {
	return &dispatcher{repo: repo}
}

func (d *dispatcher) EmitAnalytics(event analytics.Event) {
	analytics.Emit(event)
}

func (d *dispatcher) QueueEmail(userID uint, jobType string, payload map[string]interface{}) {
	payloadJSON, err := json.Marshal(payload)
	if err != nil {
		log.Errorf("[billing] email payload encode failed (type=%s user=%d): %v", jobType, userID, err)
		return
	}
	job := &models.EmailJob{
		ID:          uuid.New().String(),
		UserID:      userID,
		Type:        jobType,
		PayloadJSON: string(payloadJSON),
		SendAt:      time.Now(),
		Status:      models.EmailJobStatusQueued,
	}
	if err := d.repo.CreateEmailJob(job); err != nil {
		log.Errorf("[billing] email job create failed (type=%s user=%d): %v", jobType, userID, err)
		return
	}
	jobqueue.Nudge(job.ID)
}
