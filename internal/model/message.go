package model

import "time"

// DeliveryMethod selects the channel(s) a message is sent through.
type DeliveryMethod string

const (
	DeliveryEmail DeliveryMethod = "email"
	DeliverySMS   DeliveryMethod = "sms"
	DeliveryBoth  DeliveryMethod = "both"
)

func (d DeliveryMethod) Valid() bool {
	switch d {
	case DeliveryEmail, DeliverySMS, DeliveryBoth:
		return true
	}
	return false
}

// Message is one generated birthday text. Rows are written once and never
// updated.
type Message struct {
	ID               int64          `gorm:"primaryKey;autoIncrement" json:"id"`
	RecipientName    string         `gorm:"type:varchar(100);not null" json:"recipientName"`
	RecipientEmail   string         `gorm:"type:varchar(255)" json:"recipientEmail,omitempty"`
	RecipientPhone   string         `gorm:"type:varchar(32)" json:"recipientPhone,omitempty"`
	RecipientGender  string         `gorm:"type:varchar(32)" json:"recipientGender,omitempty"`
	RelationshipRole string         `gorm:"type:varchar(100);not null" json:"relationshipRole"`
	Personality      string         `gorm:"type:text;not null" json:"personality"`
	Quirks           string         `gorm:"type:text" json:"quirks,omitempty"`
	Content          string         `gorm:"type:text;not null" json:"content"`
	ImageURL         *string        `gorm:"type:text" json:"imageUrl"`
	SenderEmail      string         `gorm:"type:varchar(255)" json:"senderEmail,omitempty"`
	SenderPhone      string         `gorm:"type:varchar(32)" json:"senderPhone,omitempty"`
	DeliveryMethod   DeliveryMethod `gorm:"type:varchar(8);not null;default:email" json:"deliveryMethod"`

	CreatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP" json:"createdAt"`
}

func (Message) TableName() string {
	return "messages"
}
