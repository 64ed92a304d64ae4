// internal/services/auction_service.go
package services

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/kinbech/backend/internal/apperrors"
	"github.com/kinbech/backend/internal/config"
	"github.com/kinbech/backend/internal/database"
	"github.com/kinbech/backend/internal/models"
)

// AuctionService owns the auction clock: explicit settlement through
// EndAuction and the background sweeper that flags expired auctions.
type AuctionService struct {
	db            *gorm.DB
	cfg           *config.Config
	notifications *NotificationService
	products      *ProductService
}

func NewAuctionService(db *gorm.DB, cfg *config.Config, notifications *NotificationService, products *ProductService) *AuctionService {
	return &AuctionService{
		db:            db,
		cfg:           cfg,
		notifications: notifications,
		products:      products,
	}
}

// EndAuction closes an active auction and settles it against the best live
// offer. With no reserve, or a best offer at or above it, that offer wins and
// the trade moves to agreed; otherwise the auction ends unsold.
func (s *AuctionService) EndAuction(sellerID, tradeID uuid.UUID) (*models.Trade, error) {
	var trade *models.Trade
	err := database.WithTransaction(s.db, func(tx *gorm.DB) error {
		var err error
		// The stored status decides whether settlement may run, so the
		// lazy-expiry normalization is skipped here.
		trade, err = lockedTradeRaw(tx, tradeID)
		if err != nil {
			return err
		}

		if trade.SellerID != sellerID {
			return apperrors.Authorization("only the seller can end the auction")
		}
		if !trade.Auction.IsAuction {
			return apperrors.State("trade is not an auction")
		}
		if trade.Status != models.TradeStatusAuctionActive {
			return apperrors.State("auction is not active")
		}

		now := time.Now()
		trade.Status = models.TradeStatusAuctionEnded
		trade.Auction.AuctionEndDate = &now

		best := trade.BestLiveOffer(now)
		var text string
		switch {
		case best == nil:
			text = "Auction ended with no valid offers."
		case trade.Auction.ReservePrice == nil || best.Amount >= *trade.Auction.ReservePrice:
			if err := acceptOffer(tx, trade, best, now); err != nil {
				return err
			}
			text = fmt.Sprintf("Auction ended. Best offer of %s accepted.", money(trade.Currency, best.Amount))
		default:
			text = fmt.Sprintf("Auction ended. Best offer of %s did not meet reserve price.", money(trade.Currency, best.Amount))
		}

		if err := appendMessage(tx, trade, nil, text, "", true, models.MessageTypeSystem, nil); err != nil {
			return err
		}
		return saveTrade(tx, trade)
	})
	if err != nil {
		return nil, err
	}

	s.notifications.NotifyAuctionEnded(trade, s.productTitle(trade.ProductID))
	return trade, nil
}

// SweepExpired flips past-due active auctions to auction_ended. It only
// normalizes the flag; settlement stays with EndAuction.
func (s *AuctionService) SweepExpired() (int64, error) {
	result := s.db.Model(&models.Trade{}).
		Where("status = ? AND auction_is_auction = ? AND auction_auction_end_date < ?",
			models.TradeStatusAuctionActive, true, time.Now()).
		Update("status", models.TradeStatusAuctionEnded)
	if result.Error != nil {
		return 0, fmt.Errorf("failed to sweep expired auctions: %w", result.Error)
	}
	return result.RowsAffected, nil
}

// StartSweeper runs SweepExpired on a fixed interval until the context is
// cancelled.
func (s *AuctionService) StartSweeper(ctx context.Context) {
	interval := time.Duration(s.cfg.Trade.AuctionSweepInterval) * time.Second
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				n, err := s.SweepExpired()
				if err != nil {
					logrus.WithError(err).Error("Auction sweep failed")
				} else if n > 0 {
					logrus.WithField("expired", n).Info("Flagged expired auctions")
				}
			}
		}
	}()
}

func (s *AuctionService) productTitle(productID uuid.UUID) string {
	product, err := s.products.GetProduct(productID)
	if err != nil {
		return "your product"
	}
	return product.Title
}
