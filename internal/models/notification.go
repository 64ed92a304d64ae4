// internal/models/notification.go
package models

import (
	"github.com/google/uuid"
)

type NotificationType string

const (
	NotificationTypeTradeRequest  NotificationType = "trade_request"
	NotificationTypeTradeAccepted NotificationType = "trade_accepted"
	NotificationTypeTradeRejected NotificationType = "trade_rejected"
	NotificationTypeTradeMessage  NotificationType = "trade_message"
	NotificationTypeNewOffer      NotificationType = "new_offer"
	NotificationTypeOfferResponse NotificationType = "offer_response"
	NotificationTypeAuctionEnded  NotificationType = "auction_ended"
	NotificationTypeDisputeRaised NotificationType = "dispute_raised"
)

// Notification is an intent record only. Delivery, fan-out and read state are
// owned by the external notification service, which drains this table.
type Notification struct {
	BaseModel
	RecipientID    uuid.UUID        `json:"recipient_id" gorm:"type:uuid;not null;index"`
	SenderID       uuid.UUID        `json:"sender_id" gorm:"type:uuid;not null"`
	Type           NotificationType `json:"type" gorm:"type:varchar(30);not null"`
	Content        string           `json:"content" gorm:"size:500"`
	RelatedTradeID *uuid.UUID       `json:"related_trade_id" gorm:"type:uuid;index"`
	IsRead         bool             `json:"is_read" gorm:"default:false"`

	Recipient User `json:"recipient,omitempty" gorm:"foreignKey:RecipientID"`
	Sender    User `json:"sender,omitempty" gorm:"foreignKey:SenderID"`
}
