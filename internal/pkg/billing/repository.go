package billing

import (
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/justinrpoole/143-assessment-sub003/app/models"
)

// Repository is the persistence surface the webhook engine needs.
type Repository interface {
	GetEntitlementByUserID(userID uint) (*models.UserEntitlement, error)
	GetEntitlementByCustomerID(customerID string) (*models.UserEntitlement, error)
	UpsertEntitlement(ent *models.UserEntitlement) error

	// ClaimEvent atomically inserts a processing ledger row for the event id.
	// A failed row is re-claimed back to processing so Stripe's retry of the
	// same event runs the handler again. claimed=false means another delivery
	// already processed the event or still holds it.
	ClaimEvent(event *models.StripeWebhookEvent) (bool, *models.StripeWebhookEvent, error)
	FinalizeEvent(eventID string, success bool, failureReason string) error

	CreateEmailJob(job *models.EmailJob) error
}

type gormRepository struct {
	db *gorm.DB
}

// NewRepository returns a Repository backed by the given gorm handle.
func NewRepository(db *gorm.DB) Repository {
	return &gormRepository{db: db}
}

func (r *gormRepository) GetEntitlementByUserID(userID uint) (*models.UserEntitlement, error) {
	var ent models.UserEntitlement
	err := r.db.Where("user_id = ?", userID).First(&ent).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &ent, nil
}

func (r *gormRepository) GetEntitlementByCustomerID(customerID string) (*models.UserEntitlement, error) {
	var ent models.UserEntitlement
	err := r.db.Where("stripe_customer_id = ?", customerID).First(&ent).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &ent, nil
}

func (r *gormRepository) UpsertEntitlement(ent *models.UserEntitlement) error {
	ent.UpdatedAt = time.Now()
	// Select forces every column into the INSERT even when zero-valued;
	// gorm otherwise omits columns with a default tag and the conflict
	// assignments end up referencing columns the INSERT never provided.
	return r.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "user_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"user_state", "stripe_customer_id", "paid_43_at",
			"sub_status", "sub_current_period_end", "updated_at",
		}),
	}).Select(
		"user_id", "user_state", "stripe_customer_id", "paid_43_at",
		"sub_status", "sub_current_period_end", "created_at", "updated_at",
	).Create(ent).Error
}

func (r *gormRepository) ClaimEvent(event *models.StripeWebhookEvent) (bool, *models.StripeWebhookEvent, error) {
	event.Status = models.WebhookStatusProcessing
	tx := r.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "event_id"}},
		DoNothing: true,
	}).Create(event)
	if tx.Error != nil {
		return false, nil, tx.Error
	}
	if tx.RowsAffected > 0 {
		return true, event, nil
	}
	var existing models.StripeWebhookEvent
	if err := r.db.Where("event_id = ?", event.EventID).First(&existing).Error; err != nil {
		return false, nil, err
	}
	if existing.Status == models.WebhookStatusFailed {
		// The previous attempt answered 500, so this delivery is a retry.
		// The conditional update keeps concurrent retries to one winner.
		res := r.db.Model(&models.StripeWebhookEvent{}).
			Where("event_id = ? AND status = ?", event.EventID, models.WebhookStatusFailed).
			Updates(map[string]interface{}{
				"status":         models.WebhookStatusProcessing,
				"failure_reason": "",
				"processed_at":   nil,
			})
		if res.Error != nil {
			return false, nil, res.Error
		}
		if res.RowsAffected > 0 {
			existing.Status = models.WebhookStatusProcessing
			existing.FailureReason = ""
			existing.ProcessedAt = nil
			return true, &existing, nil
		}
	}
	return false, &existing, nil
}

func (r *gormRepository) FinalizeEvent(eventID string, success bool, failureReason string) error {
	now := time.Now()
	status := models.WebhookStatusProcessed
	if !success {
		status = models.WebhookStatusFailed
	}
	return r.db.Model(&models.StripeWebhookEvent{}).
		Where("event_id = ?", eventID).
		Updates(map[string]interface{}{
			"status":         status,
			"failure_reason": failureReason,
			"processed_at":   &now,
		}).Error
}

func (r *gormRepository) CreateEmailJob(job *models.EmailJob) error {
	return r.db.Create(job).Error
}
