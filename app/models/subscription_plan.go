package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	PlanTypeTrial             = "TRIAL"
	PlanTypeStandardMonthly   = "STANDARD_MONTHLY"
	PlanTypeStandardYearly    = "STANDARD_YEARLY"
	PlanTypeStandardMonthlyUA = "STANDARD_MONTHLY_UA"
	PlanTypeStandardYearlyUA  = "STANDARD_YEARLY_UA"
)

const (
	BillingPeriodMonthly = "MONTHLY"
	BillingPeriodYearly  = "YEARLY"
)

// SubscriptionPlan is an immutable catalog entry. Plans are seeded by
// migrations or administered out of band; the billing core only reads them.
type SubscriptionPlan struct {
	ID              uuid.UUID `gorm:"type:char(36);primaryKey" json:"id"`
	Code            string    `gorm:"type:varchar(100);not null;uniqueIndex" json:"code"`
	Type            string    `gorm:"type:varchar(50);not null;index" json:"type"`
	BillingPeriod   string    `gorm:"type:varchar(16);not null" json:"billing_period"`
	Price           float64   `gorm:"type:decimal(8,2);not null" json:"price"`
	OldPrice        float64   `gorm:"type:decimal(8,2);not null" json:"old_price"`
	Currency        string    `gorm:"type:varchar(3);not null" json:"currency"`
	TrialAvailable  bool      `gorm:"not null;default:false" json:"trial_available"`
	TrialPeriodDays int       `gorm:"default:0" json:"trial_period_days"`
	IsActive        bool      `gorm:"not null;default:true;index" json:"is_active"`
	CreatedAt       time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt       time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (p *SubscriptionPlan) BeforeCreate(tx *gorm.DB) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	return nil
}

func (p *SubscriptionPlan) IsTrialPlan() bool {
	return p.Type == PlanTypeTrial
}

// PeriodFrom returns the end of one billing period starting at the given time.
func (p *SubscriptionPlan) PeriodFrom(start time.Time) time.Time {
	if p.BillingPeriod == BillingPeriodYearly {
		return start.AddDate(1, 0, 0)
	}
	return start.AddDate(0, 1, 0)
}
