// internal/services/trade_service.go
package services

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/kinbech/backend/internal/apperrors"
	"github.com/kinbech/backend/internal/config"
	"github.com/kinbech/backend/internal/database"
	"github.com/kinbech/backend/internal/models"
	"github.com/kinbech/backend/internal/utils"
)

// TradeService owns the trade lifecycle: creation, status transitions, the
// mutual-acceptance path, disputes and ratings. Every mutation runs inside a
// single transaction holding the trade's row lock, so concurrent operations
// on the same trade are serialized. Collaborator writes (product status,
// notifications) happen after commit and are best-effort.
type TradeService struct {
	db            *gorm.DB
	cfg           *config.Config
	notifications *NotificationService
	products      *ProductService
}

type AuctionSettingsRequest struct {
	StartingPrice      float64    `json:"starting_price" validate:"required,gt=0"`
	ReservePrice       *float64   `json:"reserve_price" validate:"omitempty,gt=0"`
	AuctionEndDate     *time.Time `json:"auction_end_date" validate:"required"`
	AutoAcceptPrice    *float64   `json:"auto_accept_price" validate:"omitempty,gt=0"`
	AllowCounterOffers *bool      `json:"allow_counter_offers"`
}

type TradeSettingsRequest struct {
	AllowMultipleOffers  *bool    `json:"allow_multiple_offers"`
	OfferExpirationHours *int     `json:"offer_expiration_hours" validate:"omitempty,min=1"`
	AutoRejectBelowPrice *float64 `json:"auto_reject_below_price" validate:"omitempty,gt=0"`
}

type CreateTradeRequest struct {
	ProductID          uuid.UUID               `json:"product_id" validate:"required"`
	ExchangedProductID *uuid.UUID              `json:"exchanged_product_id"`
	TradeType          models.TradeType        `json:"trade_type" validate:"required"`
	Amount             *float64                `json:"amount" validate:"omitempty,gt=0"`
	Message            string                  `json:"message" validate:"omitempty,max=2000"`
	IsAuction          bool                    `json:"is_auction"`
	AuctionSettings    *AuctionSettingsRequest `json:"auction_settings"`
	Settings           *TradeSettingsRequest   `json:"settings"`
}

func NewTradeService(db *gorm.DB, cfg *config.Config, notifications *NotificationService, products *ProductService) *TradeService {
	return &TradeService{
		db:            db,
		cfg:           cfg,
		notifications: notifications,
		products:      products,
	}
}

// money renders an amount with the trade's currency code for stored system
// messages; presentation-grade formatting stays with the clients.
func money(currency string, amount float64) string {
	return currency + " " + strconv.FormatFloat(amount, 'f', -1, 64)
}

// lockedTradeRaw loads a trade with its offers and messages under the row
// lock, without touching its status.
func lockedTradeRaw(tx *gorm.DB, tradeID uuid.UUID) (*models.Trade, error) {
	var trade models.Trade

	q := tx
	// SQLite (used in tests) has no FOR UPDATE; its writer lock serializes.
	if tx.Dialector.Name() == "postgres" {
		q = tx.Clauses(clause.Locking{Strength: "UPDATE"})
	}

	if err := q.First(&trade, "id = ?", tradeID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.NotFound("trade")
		}
		return nil, fmt.Errorf("failed to load trade: %w", err)
	}

	if err := tx.Where("trade_id = ?", trade.ID).Order("created_at ASC").Find(&trade.Offers).Error; err != nil {
		return nil, fmt.Errorf("failed to load offers: %w", err)
	}
	if err := tx.Where("trade_id = ?", trade.ID).Order("sequence ASC").Find(&trade.Messages).Error; err != nil {
		return nil, fmt.Errorf("failed to load messages: %w", err)
	}

	return &trade, nil
}

// lockedTrade is lockedTradeRaw plus lazy auction expiry: past-due active
// auctions flip to auction_ended without settlement. EndAuction is the one
// caller that must see the stored status and uses the raw variant.
func lockedTrade(tx *gorm.DB, tradeID uuid.UUID) (*models.Trade, error) {
	trade, err := lockedTradeRaw(tx, tradeID)
	if err != nil {
		return nil, err
	}

	if trade.NormalizeAuctionState(time.Now()) {
		if err := tx.Model(&models.Trade{}).Where("id = ?", trade.ID).
			Update("status", trade.Status).Error; err != nil {
			return nil, fmt.Errorf("failed to normalize auction state: %w", err)
		}
	}

	return trade, nil
}

// appendMessage writes one entry to the trade's message log. Sequence numbers
// are assigned under the trade lock, so append order is total.
func appendMessage(tx *gorm.DB, trade *models.Trade, sender *uuid.UUID, text, imageURL string, isSystem bool, msgType models.MessageType, offerID *uuid.UUID) error {
	msg := models.TradeMessage{
		TradeID:         trade.ID,
		Sequence:        trade.NextMessageSequence(),
		SenderID:        sender,
		Message:         text,
		ImageURL:        imageURL,
		IsSystemMessage: isSystem,
		MessageType:     msgType,
		OfferID:         offerID,
		Timestamp:       time.Now(),
	}
	if err := tx.Create(&msg).Error; err != nil {
		return fmt.Errorf("failed to append trade message: %w", err)
	}
	trade.Messages = append(trade.Messages, msg)
	return nil
}

// saveTrade persists the aggregate row and bumps its mutation counter.
// Associations are written explicitly by the callers.
func saveTrade(tx *gorm.DB, trade *models.Trade) error {
	trade.Version++
	if err := tx.Omit(clause.Associations).Save(trade).Error; err != nil {
		return fmt.Errorf("failed to save trade: %w", err)
	}
	return nil
}

// CreateTrade opens a negotiation between the caller (buyer) and the owner of
// the product. Auction trades start in auction_active, everything else in
// pending.
func (s *TradeService) CreateTrade(buyerID uuid.UUID, req *CreateTradeRequest) (*models.Trade, error) {
	if err := utils.ValidateStruct(req); err != nil {
		if fields := utils.GetValidationErrors(err); len(fields) > 0 {
			return nil, apperrors.Validation(fields[0].Field, "%s", fields[0].Message)
		}
		return nil, apperrors.Validation("request", "validation failed: %v", err)
	}
	if !req.TradeType.Valid() {
		return nil, apperrors.Validation("trade_type", "unknown trade type %q", req.TradeType)
	}

	product, err := s.products.GetProduct(req.ProductID)
	if err != nil {
		return nil, err
	}
	if product.OwnerID == buyerID {
		return nil, apperrors.Validation("product_id", "cannot trade with yourself")
	}

	if req.TradeType == models.TradeTypeExchange {
		if req.ExchangedProductID == nil {
			return nil, apperrors.Validation("exchanged_product_id", "exchange trades require a counter-product")
		}
		exchanged, err := s.products.GetProduct(*req.ExchangedProductID)
		if err != nil {
			return nil, err
		}
		if exchanged.OwnerID != buyerID {
			return nil, apperrors.Validation("exchanged_product_id", "exchanged product must belong to you")
		}
	}

	trade := &models.Trade{
		BuyerID:            buyerID,
		SellerID:           product.OwnerID,
		ProductID:          product.ID,
		ExchangedProductID: req.ExchangedProductID,
		TradeType:          req.TradeType,
		Amount:             req.Amount,
		Currency:           s.cfg.Trade.DefaultCurrency,
		Status:             models.TradeStatusPending,
		DeliveryMethod:     product.DeliveryType,
		InitiatedAt:        time.Now(),
		Settings: models.TradeSettings{
			AllowMultipleOffers:  true,
			OfferExpirationHours: 72,
		},
	}
	if product.Currency != "" {
		trade.Currency = product.Currency
	}

	if req.Settings != nil {
		if req.Settings.AllowMultipleOffers != nil {
			trade.Settings.AllowMultipleOffers = *req.Settings.AllowMultipleOffers
		}
		if req.Settings.OfferExpirationHours != nil {
			trade.Settings.OfferExpirationHours = *req.Settings.OfferExpirationHours
		}
		trade.Settings.AutoRejectBelowPrice = req.Settings.AutoRejectBelowPrice
	}

	var announcement string
	if req.IsAuction || req.TradeType == models.TradeTypeAuction {
		if req.AuctionSettings == nil {
			return nil, apperrors.Validation("auction_settings", "auction trades require auction settings")
		}
		starting := req.AuctionSettings.StartingPrice
		trade.Auction = models.TradeAuction{
			IsAuction:          true,
			StartingPrice:      &starting,
			ReservePrice:       req.AuctionSettings.ReservePrice,
			CurrentHighestBid:  &starting,
			AuctionEndDate:     req.AuctionSettings.AuctionEndDate,
			AutoAcceptPrice:    req.AuctionSettings.AutoAcceptPrice,
			AllowCounterOffers: req.AuctionSettings.AllowCounterOffers == nil || *req.AuctionSettings.AllowCounterOffers,
		}
		trade.Status = models.TradeStatusAuctionActive
		announcement = fmt.Sprintf("Auction initiated for %s starting at %s", product.Title, money(trade.Currency, starting))
	} else {
		announcement = fmt.Sprintf("Trade initiated for %s", product.Title)
	}

	err = database.WithTransaction(s.db, func(tx *gorm.DB) error {
		if err := tx.Create(trade).Error; err != nil {
			return fmt.Errorf("failed to create trade: %w", err)
		}
		if req.Message != "" {
			if err := appendMessage(tx, trade, &buyerID, req.Message, "", false, models.MessageTypeGeneral, nil); err != nil {
				return err
			}
		}
		return appendMessage(tx, trade, &buyerID, announcement, "", true, models.MessageTypeSystem, nil)
	})
	if err != nil {
		return nil, err
	}

	// Post-commit, best-effort collaborator writes.
	s.products.IncrementOfferActivity(product.ID)
	s.notifications.NotifyTradeRequest(trade, product.Title)

	return trade, nil
}

// GetTrade returns the trade with its offers and messages. Only the parties
// may read a trade. A party read normalizes lazy auction expiry as a side
// effect; a rejected read writes nothing.
func (s *TradeService) GetTrade(actorID, tradeID uuid.UUID) (*models.Trade, error) {
	var trade *models.Trade
	err := database.WithTransaction(s.db, func(tx *gorm.DB) error {
		var err error
		trade, err = lockedTradeRaw(tx, tradeID)
		if err != nil {
			return err
		}
		if !trade.IsParty(actorID) {
			return apperrors.Authorization("only trade participants may view this trade")
		}
		if trade.NormalizeAuctionState(time.Now()) {
			if err := tx.Model(&models.Trade{}).Where("id = ?", trade.ID).
				Update("status", trade.Status).Error; err != nil {
				return fmt.Errorf("failed to normalize auction state: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return trade, nil
}

// UpdateStatus applies a caller-chosen status transition. Terminal trades are
// immutable except through the dispute path.
func (s *TradeService) UpdateStatus(actorID, tradeID uuid.UUID, newStatus models.TradeStatus, details string) (*models.Trade, error) {
	if !newStatus.Valid() {
		return nil, apperrors.Validation("status", "unknown status %q", newStatus)
	}

	var trade *models.Trade
	var completed bool
	err := database.WithTransaction(s.db, func(tx *gorm.DB) error {
		var err error
		trade, err = lockedTrade(tx, tradeID)
		if err != nil {
			return err
		}

		if !trade.IsParty(actorID) {
			return apperrors.Authorization("only trade participants may update this trade")
		}
		if trade.Status.IsTerminal() {
			return apperrors.State("trade is already %s", trade.Status)
		}

		oldStatus := trade.Status
		trade.Status = newStatus
		now := time.Now()
		switch newStatus {
		case models.TradeStatusAgreed:
			trade.AgreedAt = &now
		case models.TradeStatusCompleted:
			trade.CompletedAt = &now
			completed = true
		}

		text := fmt.Sprintf("Trade status changed from %s to %s", oldStatus, newStatus)
		if details != "" {
			text += ": " + details
		}
		if err := appendMessage(tx, trade, &actorID, text, "", true, models.MessageTypeSystem, nil); err != nil {
			return err
		}
		return saveTrade(tx, trade)
	})
	if err != nil {
		return nil, err
	}

	if completed {
		s.products.MarkTraded(trade)
	}
	return trade, nil
}

// Respond is the seller's direct accept/reject of the trade as proposed,
// outside the offer ledger.
func (s *TradeService) Respond(sellerID, tradeID uuid.UUID, accepted bool) (*models.Trade, error) {
	var trade *models.Trade
	err := database.WithTransaction(s.db, func(tx *gorm.DB) error {
		var err error
		trade, err = lockedTrade(tx, tradeID)
		if err != nil {
			return err
		}

		if trade.SellerID != sellerID {
			return apperrors.Authorization("only the seller can respond to this trade")
		}
		if trade.Status.IsTerminal() {
			return apperrors.State("trade is already %s", trade.Status)
		}

		now := time.Now()
		var text string
		if accepted {
			trade.Status = models.TradeStatusAccepted
			trade.AgreedAt = &now
			text = "Seller accepted the trade"
		} else {
			trade.Status = models.TradeStatusRejected
			trade.RejectedAt = &now
			trade.RejectedByID = &sellerID
			text = "Seller rejected the trade"
		}

		if err := appendMessage(tx, trade, &sellerID, text, "", true, models.MessageTypeSystem, nil); err != nil {
			return err
		}
		return saveTrade(tx, trade)
	})
	if err != nil {
		return nil, err
	}

	s.notifications.NotifyTradeResponse(trade, accepted, s.productTitle(trade.ProductID))
	return trade, nil
}

// MutualAccept records the acting party's acceptance; when both parties have
// accepted the trade moves to accepted and the product is marked traded.
func (s *TradeService) MutualAccept(actorID, tradeID uuid.UUID) (*models.Trade, error) {
	var trade *models.Trade
	var became bool
	err := database.WithTransaction(s.db, func(tx *gorm.DB) error {
		var err error
		trade, err = lockedTrade(tx, tradeID)
		if err != nil {
			return err
		}

		role, ok := trade.RoleOf(actorID)
		if !ok {
			return apperrors.Authorization("only trade participants may accept this trade")
		}
		if trade.Status.IsTerminal() {
			return apperrors.State("trade is already %s", trade.Status)
		}

		if role == models.TradeRoleBuyer {
			trade.BuyerAccepted = true
		} else {
			trade.SellerAccepted = true
		}

		if trade.BuyerAccepted && trade.SellerAccepted && trade.Status != models.TradeStatusAccepted {
			now := time.Now()
			trade.Status = models.TradeStatusAccepted
			trade.AgreedAt = &now
			became = true
		}

		var actor models.User
		name := string(role)
		if err := tx.First(&actor, "id = ?", actorID).Error; err == nil {
			name = actor.DisplayName()
		}
		text := fmt.Sprintf("%s accepted the trade", name)
		if err := appendMessage(tx, trade, &actorID, text, "", true, models.MessageTypeSystem, nil); err != nil {
			return err
		}
		return saveTrade(tx, trade)
	})
	if err != nil {
		return nil, err
	}

	if became {
		s.products.MarkTraded(trade)
		s.notifications.NotifyTradeResponse(trade, true, s.productTitle(trade.ProductID))
	}
	return trade, nil
}

// Reject lets either party walk away before the trade reaches a terminal
// state.
func (s *TradeService) Reject(actorID, tradeID uuid.UUID) (*models.Trade, error) {
	var trade *models.Trade
	err := database.WithTransaction(s.db, func(tx *gorm.DB) error {
		var err error
		trade, err = lockedTrade(tx, tradeID)
		if err != nil {
			return err
		}

		if !trade.IsParty(actorID) {
			return apperrors.Authorization("only trade participants may reject this trade")
		}
		if trade.Status.IsTerminal() {
			return apperrors.State("trade is already %s", trade.Status)
		}

		now := time.Now()
		trade.Status = models.TradeStatusRejected
		trade.RejectedAt = &now
		trade.RejectedByID = &actorID

		var actor models.User
		name := "A participant"
		if err := tx.First(&actor, "id = ?", actorID).Error; err == nil {
			name = actor.DisplayName()
		}
		text := fmt.Sprintf("%s rejected the trade", name)
		if err := appendMessage(tx, trade, &actorID, text, "", true, models.MessageTypeSystem, nil); err != nil {
			return err
		}
		return saveTrade(tx, trade)
	})
	if err != nil {
		return nil, err
	}

	s.notifications.NotifyTradeResponse(trade, false, s.productTitle(trade.ProductID))
	return trade, nil
}

// RaiseDispute opens a dispute on the trade. One open dispute at a time.
func (s *TradeService) RaiseDispute(actorID, tradeID uuid.UUID, reason, description string) (*models.Trade, error) {
	if reason == "" || description == "" {
		return nil, apperrors.Validation("reason", "reason and description are required")
	}

	var trade *models.Trade
	err := database.WithTransaction(s.db, func(tx *gorm.DB) error {
		var err error
		trade, err = lockedTrade(tx, tradeID)
		if err != nil {
			return err
		}

		if !trade.IsParty(actorID) {
			return apperrors.Authorization("only trade participants may raise a dispute")
		}
		if trade.Dispute.Open() {
			return apperrors.State("an open dispute already exists on this trade")
		}

		now := time.Now()
		trade.Dispute = models.TradeDispute{
			RaisedByID:  &actorID,
			Reason:      reason,
			Description: description,
			Status:      models.DisputeStatusOpen,
			CreatedAt:   &now,
		}
		trade.Status = models.TradeStatusDisputed

		text := fmt.Sprintf("Dispute raised: %s", reason)
		if err := appendMessage(tx, trade, &actorID, text, "", true, models.MessageTypeSystem, nil); err != nil {
			return err
		}
		return saveTrade(tx, trade)
	})
	if err != nil {
		return nil, err
	}

	s.notifications.NotifyDisputeRaised(trade, actorID, s.productTitle(trade.ProductID))
	return trade, nil
}

// RateTrade records post-completion feedback for the acting party's role.
func (s *TradeService) RateTrade(actorID, tradeID uuid.UUID, role models.TradeRole, rating int, review string) (*models.Trade, error) {
	if rating < 1 || rating > 5 {
		return nil, apperrors.Validation("rating", "rating must be between 1 and 5")
	}
	if !role.Valid() {
		return nil, apperrors.Validation("role", "role must be buyer or seller")
	}

	var trade *models.Trade
	err := database.WithTransaction(s.db, func(tx *gorm.DB) error {
		var err error
		trade, err = lockedTrade(tx, tradeID)
		if err != nil {
			return err
		}

		actorRole, ok := trade.RoleOf(actorID)
		if !ok {
			return apperrors.Authorization("only trade participants may rate this trade")
		}
		if actorRole != role {
			return apperrors.Authorization("role does not match your position in this trade")
		}
		if trade.Status != models.TradeStatusCompleted {
			return apperrors.State("only completed trades can be rated")
		}

		now := time.Now()
		entry := models.TradeRating{Rating: &rating, Review: review, CreatedAt: &now}
		if role == models.TradeRoleBuyer {
			trade.BuyerRating = entry
		} else {
			trade.SellerRating = entry
		}

		return saveTrade(tx, trade)
	})
	if err != nil {
		return nil, err
	}
	return trade, nil
}

// PostMessage appends a user-authored message to the negotiation trail.
func (s *TradeService) PostMessage(actorID, tradeID uuid.UUID, text, imageURL string) (*models.TradeMessage, error) {
	if text == "" && imageURL == "" {
		return nil, apperrors.Validation("message", "message content or an image is required")
	}

	var trade *models.Trade
	err := database.WithTransaction(s.db, func(tx *gorm.DB) error {
		var err error
		trade, err = lockedTrade(tx, tradeID)
		if err != nil {
			return err
		}

		if !trade.IsParty(actorID) {
			return apperrors.Authorization("only trade participants may post messages")
		}

		if err := appendMessage(tx, trade, &actorID, text, imageURL, false, models.MessageTypeGeneral, nil); err != nil {
			return err
		}
		return saveTrade(tx, trade)
	})
	if err != nil {
		return nil, err
	}

	s.notifications.NotifyMessage(trade, actorID, s.productTitle(trade.ProductID))
	return &trade.Messages[len(trade.Messages)-1], nil
}

func (s *TradeService) productTitle(productID uuid.UUID) string {
	product, err := s.products.GetProduct(productID)
	if err != nil {
		return "your product"
	}
	return product.Title
}
