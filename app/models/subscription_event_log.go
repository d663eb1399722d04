package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Billing event types recorded in the subscription event log.
const (
	EventTypePurchase       = "PURCHASE"
	EventTypeRenewal        = "RENEWAL"
	EventTypeCancellation   = "CANCELLATION"
	EventTypePaymentPending = "PAYMENT_PENDING"
	EventTypePaymentFailure = "PAYMENT_FAILURE"
)

// SubscriptionEventLog is an append-only audit row for one billing event.
// SubscriptionID is nullable because some events arrive before a
// subscription row exists for the user.
type SubscriptionEventLog struct {
	ID             uuid.UUID  `gorm:"type:char(36);primaryKey" json:"id"`
	UserID         uuid.UUID  `gorm:"type:char(36);not null;index" json:"user_id"`
	SubscriptionID *uuid.UUID `gorm:"type:char(36);default:null;index" json:"subscription_id"`
	EventType      string     `gorm:"type:varchar(30);not null" json:"event_type"`
	OrderID        string     `gorm:"type:varchar(255);default:null" json:"order_id"`
	Message        string     `gorm:"type:varchar(500);default:null" json:"message"`
	Context        string     `gorm:"type:text" json:"context"`
	CreatedAt      time.Time  `gorm:"autoCreateTime;index" json:"created_at"`
}

func (e *SubscriptionEventLog) BeforeCreate(tx *gorm.DB) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	return nil
}
