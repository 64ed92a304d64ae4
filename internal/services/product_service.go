// internal/services/product_service.go
package services

import (
	"errors"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/kinbech/backend/internal/apperrors"
	"github.com/kinbech/backend/internal/models"
)

// ProductService is the narrow catalog collaborator the negotiation engine
// talks to: ownership reads at trade creation and best-effort status updates
// after a trade commits. The catalog itself is owned elsewhere.
type ProductService struct {
	db *gorm.DB
}

func NewProductService(db *gorm.DB) *ProductService {
	return &ProductService{db: db}
}

func (s *ProductService) GetProduct(id uuid.UUID) (*models.Product, error) {
	var product models.Product
	if err := s.db.First(&product, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.NotFound("product")
		}
		return nil, err
	}
	return &product, nil
}

// MarkTraded flips the product (and the exchanged counter-product, if any) to
// its post-trade status. Called after the trade mutation has committed;
// failure is logged, never propagated.
func (s *ProductService) MarkTraded(trade *models.Trade) {
	status := models.ProductStatusSold
	if trade.TradeType == models.TradeTypeExchange {
		status = models.ProductStatusExchanged
	}

	if err := s.db.Model(&models.Product{}).
		Where("id = ?", trade.ProductID).
		Update("status", status).Error; err != nil {
		logrus.WithError(err).WithField("product_id", trade.ProductID).
			Error("Failed to update product status after trade")
	}

	if trade.ExchangedProductID != nil {
		if err := s.db.Model(&models.Product{}).
			Where("id = ?", *trade.ExchangedProductID).
			Update("status", models.ProductStatusExchanged).Error; err != nil {
			logrus.WithError(err).WithField("product_id", *trade.ExchangedProductID).
				Error("Failed to update exchanged product status after trade")
		}
	}
}

// IncrementOfferActivity bumps the product's offer counter. Best-effort.
func (s *ProductService) IncrementOfferActivity(productID uuid.UUID) {
	if err := s.db.Model(&models.Product{}).
		Where("id = ?", productID).
		UpdateColumn("offer_count", gorm.Expr("offer_count + 1")).Error; err != nil {
		logrus.WithError(err).WithField("product_id", productID).
			Error("Failed to increment product offer activity")
	}
}
