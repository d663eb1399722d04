package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Cancellation reasons a user can pick in the cancellation form.
const (
	CancellationReasonTooExpensive    = "TOO_EXPENSIVE"
	CancellationReasonMissingFeatures = "MISSING_FEATURES"
	CancellationReasonNotUsingEnough  = "NOT_USING_ENOUGH"
	CancellationReasonTechnicalIssues = "TECHNICAL_ISSUES"
	CancellationReasonSwitching       = "SWITCHING_SERVICE"
	CancellationReasonOther           = "OTHER"
)

// SubscriptionCancellation is an immutable record of one cancellation event,
// user- or provider-initiated. A subscription keeps its full cancellation
// history, most recent first.
type SubscriptionCancellation struct {
	ID                uuid.UUID `gorm:"type:char(36);primaryKey" json:"id"`
	SubscriptionID    uuid.UUID `gorm:"type:char(36);not null;index" json:"subscription_id"`
	ReasonType        string    `gorm:"type:varchar(50);not null" json:"reason_type"`
	AdditionalDetails string    `gorm:"type:varchar(1000);default:null" json:"additional_details"`
	CreatedAt         time.Time `gorm:"autoCreateTime" json:"created_at"`
}

func (c *SubscriptionCancellation) BeforeCreate(tx *gorm.DB) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	return nil
}

// IsValidCancellationReason reports whether the given reason type is one of
// the supported form values.
func IsValidCancellationReason(reason string) bool {
	switch reason {
	case CancellationReasonTooExpensive,
		CancellationReasonMissingFeatures,
		CancellationReasonNotUsingEnough,
		CancellationReasonTechnicalIssues,
		CancellationReasonSwitching,
		CancellationReasonOther:
		return true
	default:
		return false
	}
}
