// internal/services/suite_test.go
package services

import (
	"time"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/suite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/kinbech/backend/internal/config"
	"github.com/kinbech/backend/internal/models"
)

// ServiceSuite gives every test a fresh in-memory database with a seller, a
// buyer, a bystander and one listed product.
type ServiceSuite struct {
	suite.Suite
	db       *gorm.DB
	cfg      *config.Config
	trades   *TradeService
	offers   *OfferService
	auctions *AuctionService
	queries  *TradeQueryService

	seller    *models.User
	buyer     *models.User
	bystander *models.User
	product   *models.Product
}

func (s *ServiceSuite) SetupTest() {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	s.Require().NoError(err)

	sqlDB, err := db.DB()
	s.Require().NoError(err)
	// One connection keeps every session on the same in-memory database.
	sqlDB.SetMaxOpenConns(1)

	s.Require().NoError(db.AutoMigrate(
		&models.User{},
		&models.Product{},
		&models.Trade{},
		&models.TradeOffer{},
		&models.TradeMessage{},
		&models.Notification{},
	))
	s.db = db

	s.cfg = &config.Config{
		Trade: config.TradeConfig{
			DefaultCurrency:       "NPR",
			CounterOfferTTLHours:  24,
			AuctionSweepInterval:  60,
			MessageImageMaxSizeMB: 10,
		},
	}

	notifications := NewNotificationService(db)
	products := NewProductService(db)
	s.trades = NewTradeService(db, s.cfg, notifications, products)
	s.offers = NewOfferService(db, s.cfg, notifications, products)
	s.auctions = NewAuctionService(db, s.cfg, notifications, products)
	s.queries = NewTradeQueryService(db)

	s.seller = s.createUser("seller")
	s.buyer = s.createUser("buyer")
	s.bystander = s.createUser("bystander")
	s.product = s.createProduct(s.seller, "Mountain Bike", 5000)
}

func (s *ServiceSuite) createUser(username string) *models.User {
	user := &models.User{
		Username: username,
		Email:    username + "@example.com",
		Status:   models.UserStatusActive,
	}
	s.Require().NoError(user.SetPassword("TestPass123!"))
	s.Require().NoError(s.db.Create(user).Error)
	return user
}

func (s *ServiceSuite) createProduct(owner *models.User, title string, price float64) *models.Product {
	product := &models.Product{
		OwnerID:   owner.ID,
		Title:     title,
		SellPrice: price,
		Currency:  "NPR",
		Status:    models.ProductStatusAvailable,
	}
	s.Require().NoError(s.db.Create(product).Error)
	return product
}

func (s *ServiceSuite) createTrade() *models.Trade {
	trade, err := s.trades.CreateTrade(s.buyer.ID, &CreateTradeRequest{
		ProductID: s.product.ID,
		TradeType: models.TradeTypeSale,
	})
	s.Require().NoError(err)
	return trade
}

func (s *ServiceSuite) createAuction(end time.Time, settings *AuctionSettingsRequest) *models.Trade {
	if settings == nil {
		settings = &AuctionSettingsRequest{StartingPrice: 1000}
	}
	settings.AuctionEndDate = &end

	trade, err := s.trades.CreateTrade(s.buyer.ID, &CreateTradeRequest{
		ProductID:       s.product.ID,
		TradeType:       models.TradeTypeAuction,
		IsAuction:       true,
		AuctionSettings: settings,
	})
	s.Require().NoError(err)
	return trade
}

// reload fetches the trade fresh, offers and messages included, without going
// through the service layer.
func (s *ServiceSuite) reload(tradeID interface{}) *models.Trade {
	var trade models.Trade
	s.Require().NoError(s.db.First(&trade, "id = ?", tradeID).Error)
	s.Require().NoError(s.db.Where("trade_id = ?", trade.ID).Order("created_at ASC").Find(&trade.Offers).Error)
	s.Require().NoError(s.db.Where("trade_id = ?", trade.ID).Order("sequence ASC").Find(&trade.Messages).Error)
	return &trade
}

func (s *ServiceSuite) lastMessage(trade *models.Trade) *models.TradeMessage {
	s.Require().NotEmpty(trade.Messages)
	return &trade.Messages[len(trade.Messages)-1]
}
