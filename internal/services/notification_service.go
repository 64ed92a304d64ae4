// internal/services/notification_service.go
package services

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/kinbech/backend/internal/models"
)

// NotificationService writes notification intent records after a trade
// mutation has committed. Delivery is owned by the external notification
// pipeline; a failed insert here is logged and never surfaced to the caller,
// because the trade state change has already durably committed.
type NotificationService struct {
	db *gorm.DB
}

func NewNotificationService(db *gorm.DB) *NotificationService {
	return &NotificationService{db: db}
}

func (s *NotificationService) emit(recipient, sender uuid.UUID, nType models.NotificationType, content string, tradeID uuid.UUID) {
	notification := &models.Notification{
		RecipientID:    recipient,
		SenderID:       sender,
		Type:           nType,
		Content:        content,
		RelatedTradeID: &tradeID,
	}

	if err := s.db.Create(notification).Error; err != nil {
		logrus.WithError(err).WithFields(logrus.Fields{
			"recipient": recipient,
			"type":      nType,
			"trade_id":  tradeID,
		}).Error("Failed to create notification intent")
	}
}

func (s *NotificationService) NotifyTradeRequest(trade *models.Trade, productTitle string) {
	content := fmt.Sprintf("New trade request for %s", productTitle)
	if trade.Auction.IsAuction {
		content = fmt.Sprintf("New auction for %s", productTitle)
	}
	s.emit(trade.SellerID, trade.BuyerID, models.NotificationTypeTradeRequest, content, trade.ID)
}

func (s *NotificationService) NotifyNewOffer(trade *models.Trade, offer *models.TradeOffer, productTitle string) {
	content := fmt.Sprintf("New offer of %s %.2f for %s", trade.Currency, offer.Amount, productTitle)
	s.emit(trade.SellerID, offer.BuyerID, models.NotificationTypeNewOffer, content, trade.ID)
}

func (s *NotificationService) NotifyOfferResponse(trade *models.Trade, offer *models.TradeOffer, action string, productTitle string) {
	content := fmt.Sprintf("Your offer for %s was %s", productTitle, action)
	s.emit(offer.BuyerID, trade.SellerID, models.NotificationTypeOfferResponse, content, trade.ID)
}

func (s *NotificationService) NotifyTradeResponse(trade *models.Trade, accepted bool, productTitle string) {
	nType := models.NotificationTypeTradeRejected
	verb := "rejected"
	if accepted {
		nType = models.NotificationTypeTradeAccepted
		verb = "accepted"
	}
	content := fmt.Sprintf("Your offer for %q has been %s", productTitle, verb)
	s.emit(trade.BuyerID, trade.SellerID, nType, content, trade.ID)
}

func (s *NotificationService) NotifyMessage(trade *models.Trade, sender uuid.UUID, productTitle string) {
	content := fmt.Sprintf("New message in trade for %s", productTitle)
	s.emit(trade.Counterparty(sender), sender, models.NotificationTypeTradeMessage, content, trade.ID)
}

func (s *NotificationService) NotifyAuctionEnded(trade *models.Trade, productTitle string) {
	content := fmt.Sprintf("Auction for %s has ended", productTitle)
	s.emit(trade.BuyerID, trade.SellerID, models.NotificationTypeAuctionEnded, content, trade.ID)
}

func (s *NotificationService) NotifyDisputeRaised(trade *models.Trade, raisedBy uuid.UUID, productTitle string) {
	content := fmt.Sprintf("A dispute was raised on the trade for %s", productTitle)
	s.emit(trade.Counterparty(raisedBy), raisedBy, models.NotificationTypeDisputeRaised, content, trade.ID)
}
