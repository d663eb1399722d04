package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Subscription statuses. The set is open-ended on purpose: status is stored
// as a string and new lifecycle states can be introduced without a schema
// change (EXPIRED was added after the first four).
const (
	SubscriptionStatusTrial     = "TRIAL"
	SubscriptionStatusActive    = "ACTIVE"
	SubscriptionStatusPastDue   = "PAST_DUE"
	SubscriptionStatusCancelled = "CANCELLED"
	SubscriptionStatusExpired   = "EXPIRED"
)

// UserSubscription is the mutable aggregate driven by the payment provider
// callbacks and the user-initiated cancellation flow. At most one row per
// user is considered current: the most recently created one.
type UserSubscription struct {
	ID     uuid.UUID         `gorm:"type:char(36);primaryKey" json:"id"`
	UserID uuid.UUID         `gorm:"type:char(36);not null;index:idx_user_subscription_user_created,priority:1" json:"user_id"`
	User   *User             `gorm:"foreignKey:UserID" json:"-"`
	PlanID uuid.UUID         `gorm:"type:char(36);not null" json:"plan_id"`
	Plan   *SubscriptionPlan `gorm:"foreignKey:PlanID" json:"plan,omitempty"`

	Status string `gorm:"type:varchar(32);not null;index" json:"status"`

	CreatedAt time.Time `gorm:"autoCreateTime;index:idx_user_subscription_user_created,priority:2,sort:desc" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`

	TrialStartedAt         *time.Time `gorm:"type:timestamp;default:null" json:"trial_started_at,omitempty"`
	TrialEndsAt            *time.Time `gorm:"type:timestamp;default:null" json:"trial_ends_at,omitempty"`
	CurrentPeriodStartedAt *time.Time `gorm:"type:timestamp;default:null" json:"current_period_started_at,omitempty"`
	CurrentPeriodEndsAt    *time.Time `gorm:"type:timestamp;default:null" json:"current_period_ends_at,omitempty"`
	NextBillingAt          *time.Time `gorm:"type:timestamp;default:null" json:"next_billing_at,omitempty"`

	// Provider linkage. Only ever written by the billing core itself, never
	// taken from direct user input.
	PaymentCustomerToken  string `gorm:"type:varchar(191);default:null" json:"-"`
	PaymentSubscriptionID string `gorm:"type:varchar(191);default:null;index" json:"-"`
	LastOrderID           string `gorm:"type:varchar(191);default:null" json:"-"`
	AutoRenew             bool   `gorm:"not null;default:false" json:"auto_renew"`

	// Notification de-duplication markers for the trial lifecycle sweeps.
	TrialReminderSentAt        *time.Time `gorm:"type:timestamp;default:null" json:"-"`
	TrialExpiredNotifiedAt     *time.Time `gorm:"type:timestamp;default:null" json:"-"`
	TrialExpiredReminderSentAt *time.Time `gorm:"type:timestamp;default:null" json:"-"`

	CancelledAt             *time.Time `gorm:"type:timestamp;default:null" json:"cancelled_at,omitempty"`
	CancellationEffectiveAt *time.Time `gorm:"type:timestamp;default:null" json:"cancellation_effective_at,omitempty"`

	Cancellations []SubscriptionCancellation `gorm:"foreignKey:SubscriptionID" json:"cancellations,omitempty"`
}

func (s *UserSubscription) BeforeCreate(tx *gorm.DB) error {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	return nil
}

func (s *UserSubscription) IsTrial() bool {
	return s.Status == SubscriptionStatusTrial
}

func (s *UserSubscription) IsActive() bool {
	return s.Status == SubscriptionStatusActive
}
