// internal/services/query_service.go
package services

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/kinbech/backend/internal/apperrors"
	"github.com/kinbech/backend/internal/models"
	"github.com/kinbech/backend/internal/utils"
)

// TradeQueryService serves the read-side projections: active/history lists by
// role, trades on a product, the public auction board and per-user stats.
// Queries never mutate; lazy auction expiry is reported in the view without
// being written back.
type TradeQueryService struct {
	db *gorm.DB
}

func NewTradeQueryService(db *gorm.DB) *TradeQueryService {
	return &TradeQueryService{db: db}
}

// TradeView decorates a trade with the derived best-offer fields the clients
// render in lists.
type TradeView struct {
	models.Trade
	BestOffer  *models.TradeOffer `json:"best_offer,omitempty"`
	OfferCount int                `json:"offer_count"`
}

// TradeListFilter narrows ListTrades. Role is "buyer" or "seller" (empty for
// both); View is "active" or "history" (empty for all); Status pins one exact
// status and wins over View.
type TradeListFilter struct {
	Role   string
	View   string
	Status models.TradeStatus
}

func newTradeView(trade models.Trade, now time.Time) TradeView {
	trade.NormalizeAuctionState(now)
	view := TradeView{Trade: trade}
	if best := trade.BestLiveOffer(now); best != nil {
		b := *best
		view.BestOffer = &b
	}
	view.OfferCount = trade.LiveOfferCount(now)
	return view
}

// ListTrades returns the user's trades, newest first.
func (s *TradeQueryService) ListTrades(userID uuid.UUID, filter TradeListFilter, params utils.PaginationParams) ([]TradeView, int64, error) {
	q := s.db.Model(&models.Trade{})

	switch filter.Role {
	case "buyer":
		q = q.Where("buyer_id = ?", userID)
	case "seller":
		q = q.Where("seller_id = ?", userID)
	case "":
		q = q.Where("buyer_id = ? OR seller_id = ?", userID, userID)
	default:
		return nil, 0, apperrors.Validation("role", "role must be buyer or seller")
	}

	switch {
	case filter.Status != "":
		if !filter.Status.Valid() {
			return nil, 0, apperrors.Validation("status", "unknown status %q", filter.Status)
		}
		q = q.Where("status = ?", filter.Status)
	case filter.View == "active":
		q = q.Where("status IN ?", models.ActiveTradeStatuses)
	case filter.View == "history":
		q = q.Where("status IN ?", models.HistoryTradeStatuses)
	case filter.View != "":
		return nil, 0, apperrors.Validation("view", "view must be active or history")
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count trades: %w", err)
	}

	var trades []models.Trade
	err := utils.ApplyPagination(q, params).
		Preload("Product").Preload("Buyer").Preload("Seller").
		Preload("Offers", func(db *gorm.DB) *gorm.DB { return db.Order("created_at ASC") }).
		Order("created_at DESC").
		Find(&trades).Error
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list trades: %w", err)
	}

	return s.toViews(trades), total, nil
}

// TradesByProduct returns the caller's trades on one product. The owner sees
// every trade on their listing through the seller side of the predicate; a
// buyer sees only their own negotiations.
func (s *TradeQueryService) TradesByProduct(userID, productID uuid.UUID) ([]TradeView, error) {
	var product models.Product
	if err := s.db.First(&product, "id = ?", productID).Error; err != nil {
		return nil, apperrors.NotFound("product")
	}

	var trades []models.Trade
	err := s.db.Where("product_id = ? AND (buyer_id = ? OR seller_id = ?)", productID, userID, userID).
		Preload("Buyer").
		Preload("Offers", func(db *gorm.DB) *gorm.DB { return db.Order("created_at ASC") }).
		Order("created_at DESC").
		Find(&trades).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list product trades: %w", err)
	}

	return s.toViews(trades), nil
}

// ActiveAuctions is the public auction board: running auctions ordered by
// soonest end.
func (s *TradeQueryService) ActiveAuctions(params utils.PaginationParams) ([]TradeView, int64, error) {
	now := time.Now()
	q := s.db.Model(&models.Trade{}).
		Where("status = ? AND auction_is_auction = ?", models.TradeStatusAuctionActive, true).
		Where("auction_auction_end_date IS NULL OR auction_auction_end_date > ?", now)

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count auctions: %w", err)
	}

	var trades []models.Trade
	err := utils.ApplyPagination(q, params).
		Preload("Product").Preload("Seller").
		Preload("Offers", func(db *gorm.DB) *gorm.DB { return db.Order("created_at ASC") }).
		Order("auction_auction_end_date ASC").
		Find(&trades).Error
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list auctions: %w", err)
	}

	return s.toViews(trades), total, nil
}

// TradeStats is the per-user overview aggregate.
type TradeStats struct {
	TotalTrades     int64   `json:"total_trades"`
	ActiveTrades    int64   `json:"active_trades"`
	PendingTrades   int64   `json:"pending_trades"`
	CompletedTrades int64   `json:"completed_trades"`
	DisputedTrades  int64   `json:"disputed_trades"`
	AsBuyer         int64   `json:"as_buyer"`
	AsSeller        int64   `json:"as_seller"`
	CompletedValue  float64 `json:"completed_value"`
}

// Stats aggregates the user's trading activity across both roles.
func (s *TradeQueryService) Stats(userID uuid.UUID) (*TradeStats, error) {
	stats := &TradeStats{}
	base := func() *gorm.DB {
		return s.db.Model(&models.Trade{}).Where("buyer_id = ? OR seller_id = ?", userID, userID)
	}

	if err := base().Count(&stats.TotalTrades).Error; err != nil {
		return nil, fmt.Errorf("failed to aggregate trade stats: %w", err)
	}
	if err := base().Where("status IN ?", models.ActiveTradeStatuses).Count(&stats.ActiveTrades).Error; err != nil {
		return nil, fmt.Errorf("failed to aggregate trade stats: %w", err)
	}
	if err := base().Where("status = ?", models.TradeStatusPending).Count(&stats.PendingTrades).Error; err != nil {
		return nil, fmt.Errorf("failed to aggregate trade stats: %w", err)
	}
	if err := base().Where("status = ?", models.TradeStatusCompleted).Count(&stats.CompletedTrades).Error; err != nil {
		return nil, fmt.Errorf("failed to aggregate trade stats: %w", err)
	}
	if err := base().Where("status = ?", models.TradeStatusDisputed).Count(&stats.DisputedTrades).Error; err != nil {
		return nil, fmt.Errorf("failed to aggregate trade stats: %w", err)
	}
	if err := s.db.Model(&models.Trade{}).Where("buyer_id = ?", userID).Count(&stats.AsBuyer).Error; err != nil {
		return nil, fmt.Errorf("failed to aggregate trade stats: %w", err)
	}
	if err := s.db.Model(&models.Trade{}).Where("seller_id = ?", userID).Count(&stats.AsSeller).Error; err != nil {
		return nil, fmt.Errorf("failed to aggregate trade stats: %w", err)
	}

	var value sql.NullFloat64
	err := s.db.Model(&models.Trade{}).
		Where("(buyer_id = ? OR seller_id = ?) AND status = ?", userID, userID, models.TradeStatusCompleted).
		Select("SUM(amount)").Scan(&value).Error
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate trade stats: %w", err)
	}
	if value.Valid {
		stats.CompletedValue = value.Float64
	}

	return stats, nil
}

func (s *TradeQueryService) toViews(trades []models.Trade) []TradeView {
	now := time.Now()
	views := make([]TradeView, 0, len(trades))
	for _, t := range trades {
		views = append(views, newTradeView(t, now))
	}
	return views
}
