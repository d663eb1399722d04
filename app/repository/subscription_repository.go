package repository

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/AndriyMelnyk/FinTrack/app/models"
)

// userSubscriptionRepository implements the UserSubscriptionRepository interface
type userSubscriptionRepository struct {
	db *gorm.DB
}

// NewUserSubscriptionRepository creates a new subscription repository instance
func NewUserSubscriptionRepository(db *gorm.DB) UserSubscriptionRepository {
	return &userSubscriptionRepository{db: db}
}

// Create creates a new subscription in the database
func (r *userSubscriptionRepository) Create(sub *models.UserSubscription) error {
	return r.db.Create(sub).Error
}

// Save persists all fields of an existing subscription
func (r *userSubscriptionRepository) Save(sub *models.UserSubscription) error {
	return r.db.Save(sub).Error
}

// GetByID retrieves a subscription by its ID
func (r *userSubscriptionRepository) GetByID(id uuid.UUID) (*models.UserSubscription, error) {
	var sub models.UserSubscription
	err := r.db.Preload("Plan").Where("id = ?", id).First(&sub).Error
	if err != nil {
		return nil, err
	}
	return &sub, nil
}

// FindCurrentByUser returns the most recently created subscription of the user.
// A user has at most one current subscription; older rows are history.
func (r *userSubscriptionRepository) FindCurrentByUser(userID uuid.UUID) (*models.UserSubscription, error) {
	var sub models.UserSubscription
	err := r.db.Preload("Plan").
		Where("user_id = ?", userID).
		Order("created_at DESC").
		First(&sub).Error
	if err != nil {
		return nil, err
	}
	return &sub, nil
}

// FindTrialsEndingBetween returns subscriptions in the given status whose trial
// ends inside the window [from, to].
func (r *userSubscriptionRepository) FindTrialsEndingBetween(status string, from, to time.Time) ([]models.UserSubscription, error) {
	var subs []models.UserSubscription
	err := r.db.Preload("Plan").
		Where("status = ? AND trial_ends_at IS NOT NULL AND trial_ends_at BETWEEN ? AND ?", status, from, to).
		Find(&subs).Error
	if err != nil {
		return nil, err
	}
	return subs, nil
}

// FindTrialsExpiredBefore returns subscriptions in the given status whose trial
// ended before the cutoff.
func (r *userSubscriptionRepository) FindTrialsExpiredBefore(status string, cutoff time.Time) ([]models.UserSubscription, error) {
	var subs []models.UserSubscription
	err := r.db.Preload("Plan").
		Where("status = ? AND trial_ends_at IS NOT NULL AND trial_ends_at < ?", status, cutoff).
		Find(&subs).Error
	if err != nil {
		return nil, err
	}
	return subs, nil
}
