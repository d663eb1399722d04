package repository

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/AndriyMelnyk/FinTrack/app/models"
)

// UserRepository defines the interface for user-related database operations
type UserRepository interface {
	Create(user *models.User) error
	GetByID(id uuid.UUID) (*models.User, error)
	GetByEmail(email string) (*models.User, error)
	Update(user *models.User) error
}

// SubscriptionPlanRepository defines the interface for plan catalog operations
type SubscriptionPlanRepository interface {
	Create(plan *models.SubscriptionPlan) error
	GetByID(id uuid.UUID) (*models.SubscriptionPlan, error)
	GetByCode(code string) (*models.SubscriptionPlan, error)
	ListActive() ([]models.SubscriptionPlan, error)
	FindActiveByType(planType string) (*models.SubscriptionPlan, error)
}

// UserSubscriptionRepository defines the interface for subscription state operations
type UserSubscriptionRepository interface {
	Create(sub *models.UserSubscription) error
	Save(sub *models.UserSubscription) error
	GetByID(id uuid.UUID) (*models.UserSubscription, error)
	FindCurrentByUser(userID uuid.UUID) (*models.UserSubscription, error)
	FindTrialsEndingBetween(status string, from, to time.Time) ([]models.UserSubscription, error)
	FindTrialsExpiredBefore(status string, cutoff time.Time) ([]models.UserSubscription, error)
}

// SubscriptionCancellationRepository persists cancellation records
type SubscriptionCancellationRepository interface {
	Create(c *models.SubscriptionCancellation) error
	ListBySubscription(subscriptionID uuid.UUID) ([]models.SubscriptionCancellation, error)
}

// SubscriptionEventLogRepository persists billing audit events
type SubscriptionEventLogRepository interface {
	Create(e *models.SubscriptionEventLog) error
	ListByUser(userID uuid.UUID, limit int) ([]models.SubscriptionEventLog, error)
}

// Repositories holds all repository instances
type Repositories struct {
	User              UserRepository
	Plan              SubscriptionPlanRepository
	Subscription      UserSubscriptionRepository
	Cancellation      SubscriptionCancellationRepository
	SubscriptionEvent SubscriptionEventLogRepository
}

// NewRepositories creates a new instance of all repositories
func NewRepositories(db *gorm.DB) *Repositories {
	return &Repositories{
		User:              NewUserRepository(db),
		Plan:              NewSubscriptionPlanRepository(db),
		Subscription:      NewUserSubscriptionRepository(db),
		Cancellation:      NewSubscriptionCancellationRepository(db),
		SubscriptionEvent: NewSubscriptionEventLogRepository(db),
	}
}
