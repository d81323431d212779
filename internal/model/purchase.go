package model

import "time"

type PurchaseStatus string

const (
	PurchasePending   PurchaseStatus = "pending"
	PurchaseCompleted PurchaseStatus = "completed"
	PurchaseFailed    PurchaseStatus = "failed"
)

// Purchase grants premium content for the message it references.
type Purchase struct {
	ID                int64          `gorm:"primaryKey;autoIncrement" json:"id"`
	Email             string         `gorm:"type:varchar(255);not null" json:"email"`
	OriginalMessageID int64          `gorm:"not null;index" json:"originalMessageId"`
	PaymentIntentID   *string        `gorm:"type:varchar(255);uniqueIndex" json:"-"`
	Status            PurchaseStatus `gorm:"type:varchar(16);not null;default:pending;index" json:"status"`

	OriginalMessage *Message `gorm:"foreignKey:OriginalMessageID;constraint:OnUpdate:CASCADE,OnDelete:RESTRICT" json:"-"`

	CreatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP" json:"createdAt"`
	UpdatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updatedAt"`
}

func (Purchase) TableName() string {
	return "purchases"
}
