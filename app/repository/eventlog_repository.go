package repository

import (
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/AndriyMelnyk/FinTrack/app/models"
)

// subscriptionCancellationRepository implements SubscriptionCancellationRepository
type subscriptionCancellationRepository struct {
	db *gorm.DB
}

// NewSubscriptionCancellationRepository creates a new cancellation repository instance
func NewSubscriptionCancellationRepository(db *gorm.DB) SubscriptionCancellationRepository {
	return &subscriptionCancellationRepository{db: db}
}

// Create creates a new cancellation record in the database
func (r *subscriptionCancellationRepository) Create(c *models.SubscriptionCancellation) error {
	return r.db.Create(c).Error
}

// ListBySubscription returns the cancellation history of a subscription, newest first
func (r *subscriptionCancellationRepository) ListBySubscription(subscriptionID uuid.UUID) ([]models.SubscriptionCancellation, error) {
	var records []models.SubscriptionCancellation
	err := r.db.Where("subscription_id = ?", subscriptionID).Order("created_at DESC").Find(&records).Error
	if err != nil {
		return nil, err
	}
	return records, nil
}

// subscriptionEventLogRepository implements SubscriptionEventLogRepository
type subscriptionEventLogRepository struct {
	db *gorm.DB
}

// NewSubscriptionEventLogRepository creates a new event log repository instance
func NewSubscriptionEventLogRepository(db *gorm.DB) SubscriptionEventLogRepository {
	return &subscriptionEventLogRepository{db: db}
}

// Create appends a new billing event to the log
func (r *subscriptionEventLogRepository) Create(e *models.SubscriptionEventLog) error {
	return r.db.Create(e).Error
}

// ListByUser returns the most recent billing events of a user
func (r *subscriptionEventLogRepository) ListByUser(userID uuid.UUID, limit int) ([]models.SubscriptionEventLog, error) {
	var events []models.SubscriptionEventLog
	query := r.db.Where("user_id = ?", userID).Order("created_at DESC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	err := query.Find(&events).Error
	if err != nil {
		return nil, err
	}
	return events, nil
}
