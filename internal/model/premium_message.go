package model

import "time"

// PremiumMessage is one variant of the bonus bundle unlocked by a completed
// purchase. The (purchase_id, order_index) unique index is what keeps a
// purchase to a single batch under concurrent expansion.
type PremiumMessage struct {
	ID         int64  `gorm:"primaryKey;autoIncrement" json:"id"`
	PurchaseID int64  `gorm:"not null;uniqueIndex:idx_premium_purchase_order,priority:1" json:"purchaseId"`
	OrderIndex int    `gorm:"not null;uniqueIndex:idx_premium_purchase_order,priority:2" json:"orderIndex"`
	Content    string `gorm:"type:text;not null" json:"content"`

	Purchase *Purchase `gorm:"foreignKey:PurchaseID;constraint:OnUpdate:CASCADE,OnDelete:RESTRICT" json:"-"`

	CreatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP" json:"createdAt"`
}

func (PremiumMessage) TableName() string {
	return "premium_messages"
}
