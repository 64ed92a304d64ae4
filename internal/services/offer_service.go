// internal/services/offer_service.go
package services

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/kinbech/backend/internal/apperrors"
	"github.com/kinbech/backend/internal/config"
	"github.com/kinbech/backend/internal/database"
	"github.com/kinbech/backend/internal/models"
)

// OfferAction is the seller's response to a pending offer.
type OfferAction string

const (
	OfferActionAccept  OfferAction = "accepted"
	OfferActionReject  OfferAction = "rejected"
	OfferActionCounter OfferAction = "countered"
)

// OfferService maintains the append-only offer ledger of a trade: bid
// submission, the seller's accept/reject/counter responses and the buyer's
// response to a counter-offer. All mutations run under the trade lock.
type OfferService struct {
	db            *gorm.DB
	cfg           *config.Config
	notifications *NotificationService
	products      *ProductService
}

func NewOfferService(db *gorm.DB, cfg *config.Config, notifications *NotificationService, products *ProductService) *OfferService {
	return &OfferService{
		db:            db,
		cfg:           cfg,
		notifications: notifications,
		products:      products,
	}
}

// rejectOtherPending marks every other pending offer rejected when one offer
// wins (auto-reject-losers).
func rejectOtherPending(tx *gorm.DB, trade *models.Trade, winnerID uuid.UUID, now time.Time) error {
	for i := range trade.Offers {
		o := &trade.Offers[i]
		if o.ID == winnerID || o.Status != models.OfferStatusPending {
			continue
		}
		o.Status = models.OfferStatusRejected
		o.RespondedAt = &now
		if err := tx.Save(o).Error; err != nil {
			return fmt.Errorf("failed to reject losing offer: %w", err)
		}
	}
	return nil
}

// acceptOffer settles the trade on the given offer: the offer wins, every
// other pending offer loses, and the trade moves to agreed.
func acceptOffer(tx *gorm.DB, trade *models.Trade, offer *models.TradeOffer, now time.Time) error {
	offer.Status = models.OfferStatusAccepted
	offer.RespondedAt = &now
	if err := tx.Save(offer).Error; err != nil {
		return fmt.Errorf("failed to accept offer: %w", err)
	}

	if err := rejectOtherPending(tx, trade, offer.ID, now); err != nil {
		return err
	}

	amount := offer.Amount
	trade.Status = models.TradeStatusAgreed
	trade.Amount = &amount
	trade.AgreedAt = &now
	return nil
}

// SubmitOffer appends a new bid to the trade. For 1:1 trades only the
// designated buyer may bid; for auctions any authenticated user except the
// seller may.
func (s *OfferService) SubmitOffer(buyerID, tradeID uuid.UUID, amount float64, message string) (*models.Trade, *models.TradeOffer, error) {
	if amount <= 0 {
		return nil, nil, apperrors.Validation("amount", "a positive amount is required")
	}

	var trade *models.Trade
	var offer *models.TradeOffer
	var autoAccepted bool
	err := database.WithTransaction(s.db, func(tx *gorm.DB) error {
		var err error
		trade, err = lockedTrade(tx, tradeID)
		if err != nil {
			return err
		}

		if trade.Auction.IsAuction {
			if buyerID == trade.SellerID {
				return apperrors.Authorization("the seller cannot bid on their own auction")
			}
			if trade.Status != models.TradeStatusAuctionActive {
				return apperrors.State("auction is not active")
			}
		} else {
			if buyerID != trade.BuyerID {
				return apperrors.Authorization("only the buyer can submit offers")
			}
			if trade.Status.IsTerminal() {
				return apperrors.State("trade is already %s", trade.Status)
			}
		}

		if !trade.Settings.AllowMultipleOffers && trade.PendingOfferBy(buyerID) {
			return apperrors.BusinessRule("amount", "you already have a pending offer")
		}
		if trade.Settings.AutoRejectBelowPrice != nil && amount < *trade.Settings.AutoRejectBelowPrice {
			return apperrors.BusinessRule("amount", "offer must be at least %s",
				money(trade.Currency, *trade.Settings.AutoRejectBelowPrice))
		}

		now := time.Now()
		expiresAt := now.Add(time.Duration(trade.Settings.OfferExpirationHours) * time.Hour)
		offer = &models.TradeOffer{
			TradeID:   trade.ID,
			BuyerID:   buyerID,
			Amount:    amount,
			Message:   message,
			Status:    models.OfferStatusPending,
			ExpiresAt: &expiresAt,
		}
		if err := tx.Create(offer).Error; err != nil {
			return fmt.Errorf("failed to create offer: %w", err)
		}
		trade.Offers = append(trade.Offers, *offer)
		offer = &trade.Offers[len(trade.Offers)-1]

		if trade.Auction.IsAuction {
			if trade.Auction.CurrentHighestBid == nil || amount > *trade.Auction.CurrentHighestBid {
				bid := amount
				trade.Auction.CurrentHighestBid = &bid
			}
		}

		text := fmt.Sprintf("New offer: %s", money(trade.Currency, amount))
		if message != "" {
			text += " - " + message
		}
		if err := appendMessage(tx, trade, &buyerID, text, "", false, models.MessageTypeOffer, &offer.ID); err != nil {
			return err
		}

		// An auction bid at or above the auto-accept price wins immediately.
		if trade.Auction.IsAuction && trade.Auction.AutoAcceptPrice != nil && amount >= *trade.Auction.AutoAcceptPrice {
			if err := acceptOffer(tx, trade, offer, now); err != nil {
				return err
			}
			autoAccepted = true
			text := fmt.Sprintf("Offer of %s met the auto-accept price and was accepted", money(trade.Currency, amount))
			if err := appendMessage(tx, trade, nil, text, "", true, models.MessageTypeSystem, &offer.ID); err != nil {
				return err
			}
		}

		return saveTrade(tx, trade)
	})
	if err != nil {
		return nil, nil, err
	}

	title := s.productTitle(trade.ProductID)
	s.notifications.NotifyNewOffer(trade, offer, title)
	if autoAccepted {
		s.notifications.NotifyOfferResponse(trade, offer, string(OfferActionAccept), title)
	}
	return trade, offer, nil
}

// RespondToOffer is the seller's decision on a pending offer: accept it,
// reject it, or counter with a different amount.
func (s *OfferService) RespondToOffer(sellerID, tradeID, offerID uuid.UUID, action OfferAction, counterAmount *float64, counterMessage string) (*models.Trade, *models.TradeOffer, error) {
	var trade *models.Trade
	var offer *models.TradeOffer
	err := database.WithTransaction(s.db, func(tx *gorm.DB) error {
		var err error
		trade, err = lockedTrade(tx, tradeID)
		if err != nil {
			return err
		}

		if trade.SellerID != sellerID {
			return apperrors.Authorization("only the seller can respond to offers")
		}

		offer = trade.OfferByID(offerID)
		if offer == nil {
			return apperrors.NotFound("offer")
		}
		if offer.Status != models.OfferStatusPending {
			return apperrors.State("offer has already been responded to")
		}

		now := time.Now()
		var text string
		var msgType models.MessageType

		switch action {
		case OfferActionAccept:
			if trade.Status.IsTerminal() {
				return apperrors.State("trade is already %s", trade.Status)
			}
			if err := acceptOffer(tx, trade, offer, now); err != nil {
				return err
			}
			text = fmt.Sprintf("Offer of %s accepted", money(trade.Currency, offer.Amount))
			msgType = models.MessageTypeAcceptance

		case OfferActionReject:
			offer.Status = models.OfferStatusRejected
			offer.RespondedAt = &now
			if err := tx.Save(offer).Error; err != nil {
				return fmt.Errorf("failed to reject offer: %w", err)
			}
			text = fmt.Sprintf("Offer of %s rejected", money(trade.Currency, offer.Amount))
			msgType = models.MessageTypeRejection

		case OfferActionCounter:
			if trade.Auction.IsAuction && !trade.Auction.AllowCounterOffers {
				return apperrors.BusinessRule("action", "counter-offers are not allowed on this auction")
			}
			if counterAmount == nil || *counterAmount <= 0 {
				return apperrors.Validation("counter_amount", "a positive counter amount is required")
			}
			offer.Status = models.OfferStatusCountered
			offer.RespondedAt = &now
			amount := *counterAmount
			expires := now.Add(time.Duration(s.cfg.Trade.CounterOfferTTLHours) * time.Hour)
			offer.CounterAmount = &amount
			offer.CounterMessage = counterMessage
			offer.CounterExpiresAt = &expires
			if err := tx.Save(offer).Error; err != nil {
				return fmt.Errorf("failed to counter offer: %w", err)
			}
			text = fmt.Sprintf("Counter offer: %s", money(trade.Currency, amount))
			if counterMessage != "" {
				text += " - " + counterMessage
			}
			msgType = models.MessageTypeCounterOffer

		default:
			return apperrors.Validation("action", "action must be accepted, rejected or countered")
		}

		if err := appendMessage(tx, trade, &sellerID, text, "", false, msgType, &offer.ID); err != nil {
			return err
		}
		return saveTrade(tx, trade)
	})
	if err != nil {
		return nil, nil, err
	}

	s.notifications.NotifyOfferResponse(trade, offer, string(action), s.productTitle(trade.ProductID))
	return trade, offer, nil
}

// RespondToCounter is the offer owner's decision on the seller's
// counter-offer. Accepting adopts the countered amount and settles the trade.
func (s *OfferService) RespondToCounter(buyerID, tradeID, offerID uuid.UUID, accept bool) (*models.Trade, *models.TradeOffer, error) {
	var trade *models.Trade
	var offer *models.TradeOffer
	err := database.WithTransaction(s.db, func(tx *gorm.DB) error {
		var err error
		trade, err = lockedTrade(tx, tradeID)
		if err != nil {
			return err
		}

		offer = trade.OfferByID(offerID)
		if offer == nil {
			return apperrors.NotFound("offer")
		}
		if offer.BuyerID != buyerID {
			return apperrors.Authorization("only the offer's buyer can respond to the counter offer")
		}

		now := time.Now()
		if offer.CounterAmount == nil {
			return apperrors.State("no counter offer to respond to")
		}
		if !offer.HasLiveCounter(now) {
			return apperrors.State("counter offer has expired")
		}

		counterAmount := *offer.CounterAmount
		var text string
		var msgType models.MessageType
		if accept {
			if trade.Status.IsTerminal() {
				return apperrors.State("trade is already %s", trade.Status)
			}
			offer.Amount = counterAmount
			offer.ClearCounter()
			if err := acceptOffer(tx, trade, offer, now); err != nil {
				return err
			}
			text = fmt.Sprintf("Counter offer of %s accepted", money(trade.Currency, counterAmount))
			msgType = models.MessageTypeAcceptance
		} else {
			offer.Status = models.OfferStatusRejected
			offer.RespondedAt = &now
			offer.ClearCounter()
			if err := tx.Save(offer).Error; err != nil {
				return fmt.Errorf("failed to reject counter offer: %w", err)
			}
			text = fmt.Sprintf("Counter offer of %s rejected", money(trade.Currency, counterAmount))
			msgType = models.MessageTypeRejection
		}

		if err := appendMessage(tx, trade, &buyerID, text, "", false, msgType, &offer.ID); err != nil {
			return err
		}
		return saveTrade(tx, trade)
	})
	if err != nil {
		return nil, nil, err
	}

	action := "rejected"
	if accept {
		action = "accepted"
	}
	s.notifications.NotifyOfferResponse(trade, offer, action, s.productTitle(trade.ProductID))
	return trade, offer, nil
}

func (s *OfferService) productTitle(productID uuid.UUID) string {
	product, err := s.products.GetProduct(productID)
	if err != nil {
		return "your product"
	}
	return product.Title
}
