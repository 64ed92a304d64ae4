// internal/services/auction_service_test.go
package services

import (
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"github.com/kinbech/backend/internal/apperrors"
	"github.com/kinbech/backend/internal/models"
)

type AuctionServiceSuite struct {
	ServiceSuite
}

func (s *AuctionServiceSuite) TestEndAuctionAcceptsBestOffer() {
	end := time.Now().Add(24 * time.Hour)
	trade := s.createAuction(end, &AuctionSettingsRequest{StartingPrice: 1000})

	_, _, err := s.offers.SubmitOffer(s.buyer.ID, trade.ID, 1500, "")
	s.Require().NoError(err)
	_, best, err := s.offers.SubmitOffer(s.bystander.ID, trade.ID, 2000, "")
	s.Require().NoError(err)

	ended, err := s.auctions.EndAuction(s.seller.ID, trade.ID)
	s.Require().NoError(err)

	s.Equal(models.TradeStatusAgreed, ended.Status)
	s.Require().NotNil(ended.Amount)
	s.Equal(2000.0, *ended.Amount)
	s.NotNil(ended.AgreedAt)

	loaded := s.reload(trade.ID)
	winner := loaded.OfferByID(best.ID)
	s.Require().NotNil(winner)
	s.Equal(models.OfferStatusAccepted, winner.Status)
	s.Equal("Auction ended. Best offer of NPR 2000 accepted.", s.lastMessage(loaded).Message)
}

func (s *AuctionServiceSuite) TestEndAuctionBelowReserveStaysUnsold() {
	end := time.Now().Add(24 * time.Hour)
	trade := s.createAuction(end, &AuctionSettingsRequest{
		StartingPrice: 1000,
		ReservePrice:  fptr(3000),
	})

	_, _, err := s.offers.SubmitOffer(s.buyer.ID, trade.ID, 2000, "")
	s.Require().NoError(err)

	ended, err := s.auctions.EndAuction(s.seller.ID, trade.ID)
	s.Require().NoError(err)

	s.Equal(models.TradeStatusAuctionEnded, ended.Status)
	s.Nil(ended.Amount)
	s.Nil(ended.AgreedAt)
	s.Equal("Auction ended. Best offer of NPR 2000 did not meet reserve price.",
		s.lastMessage(s.reload(trade.ID)).Message)
}

func (s *AuctionServiceSuite) TestEndAuctionWithNoValidOffers() {
	end := time.Now().Add(24 * time.Hour)
	trade := s.createAuction(end, nil)

	ended, err := s.auctions.EndAuction(s.seller.ID, trade.ID)
	s.Require().NoError(err)

	s.Equal(models.TradeStatusAuctionEnded, ended.Status)
	s.Equal("Auction ended with no valid offers.", s.lastMessage(s.reload(trade.ID)).Message)
}

func (s *AuctionServiceSuite) TestEndAuctionIgnoresExpiredOffers() {
	end := time.Now().Add(24 * time.Hour)
	trade := s.createAuction(end, nil)

	_, offer, err := s.offers.SubmitOffer(s.buyer.ID, trade.ID, 2500, "")
	s.Require().NoError(err)

	expired := time.Now().Add(-time.Minute)
	s.Require().NoError(s.db.Model(&models.TradeOffer{}).Where("id = ?", offer.ID).
		Update("expires_at", expired).Error)

	ended, err := s.auctions.EndAuction(s.seller.ID, trade.ID)
	s.Require().NoError(err)

	s.Equal(models.TradeStatusAuctionEnded, ended.Status)
	s.Equal("Auction ended with no valid offers.", s.lastMessage(s.reload(trade.ID)).Message)
}

func (s *AuctionServiceSuite) TestEndAuctionGuards() {
	end := time.Now().Add(24 * time.Hour)
	trade := s.createAuction(end, nil)

	_, err := s.auctions.EndAuction(s.buyer.ID, trade.ID)
	s.True(apperrors.IsKind(err, apperrors.KindAuthorization))

	ordinary := s.createTrade()
	_, err = s.auctions.EndAuction(s.seller.ID, ordinary.ID)
	s.True(apperrors.IsKind(err, apperrors.KindState))
}

func (s *AuctionServiceSuite) TestEndAuctionIsNotRepeatable() {
	end := time.Now().Add(24 * time.Hour)
	trade := s.createAuction(end, nil)

	_, err := s.auctions.EndAuction(s.seller.ID, trade.ID)
	s.Require().NoError(err)

	before := len(s.reload(trade.ID).Messages)

	_, err = s.auctions.EndAuction(s.seller.ID, trade.ID)
	s.True(apperrors.IsKind(err, apperrors.KindState))

	// The failed call leaves no trace in the message log.
	s.Len(s.reload(trade.ID).Messages, before)
}

func (s *AuctionServiceSuite) TestLazyExpiryFlagsWithoutSettling() {
	end := time.Now().Add(24 * time.Hour)
	trade := s.createAuction(end, nil)

	_, _, err := s.offers.SubmitOffer(s.buyer.ID, trade.ID, 2000, "")
	s.Require().NoError(err)

	past := time.Now().Add(-time.Minute)
	s.Require().NoError(s.db.Model(&models.Trade{}).Where("id = ?", trade.ID).
		Update("auction_auction_end_date", past).Error)

	// Reading normalizes the flag but never settles: an auction that expires
	// without an explicit end call stays unsettled even with live offers on it.
	got, err := s.trades.GetTrade(s.buyer.ID, trade.ID)
	s.Require().NoError(err)
	s.Equal(models.TradeStatusAuctionEnded, got.Status)
	s.Nil(got.Amount)
	s.Nil(got.AgreedAt)

	loaded := s.reload(trade.ID)
	s.Equal(models.TradeStatusAuctionEnded, loaded.Status)
	for _, o := range loaded.Offers {
		s.Equal(models.OfferStatusPending, o.Status)
	}

	// Once the flag has been persisted the explicit end call is rejected too.
	_, err = s.auctions.EndAuction(s.seller.ID, trade.ID)
	s.True(apperrors.IsKind(err, apperrors.KindState))
}

func (s *AuctionServiceSuite) TestExplicitEndStillSettlesAfterDeadline() {
	end := time.Now().Add(24 * time.Hour)
	trade := s.createAuction(end, nil)

	_, _, err := s.offers.SubmitOffer(s.buyer.ID, trade.ID, 2000, "")
	s.Require().NoError(err)

	// Deadline passes but nothing has read (and normalized) the trade yet.
	past := time.Now().Add(-time.Minute)
	s.Require().NoError(s.db.Model(&models.Trade{}).Where("id = ?", trade.ID).
		Update("auction_auction_end_date", past).Error)

	ended, err := s.auctions.EndAuction(s.seller.ID, trade.ID)
	s.Require().NoError(err)
	s.Equal(models.TradeStatusAgreed, ended.Status)
	s.Require().NotNil(ended.Amount)
	s.Equal(2000.0, *ended.Amount)
}

func (s *AuctionServiceSuite) TestSweepExpiredFlagsOnly() {
	past := time.Now().Add(-time.Minute)
	future := time.Now().Add(24 * time.Hour)

	expired := s.createAuction(future, nil)
	running := s.createAuction(future, nil)

	_, _, err := s.offers.SubmitOffer(s.buyer.ID, expired.ID, 2000, "")
	s.Require().NoError(err)
	s.Require().NoError(s.db.Model(&models.Trade{}).Where("id = ?", expired.ID).
		Update("auction_auction_end_date", past).Error)

	n, err := s.auctions.SweepExpired()
	s.Require().NoError(err)
	s.Equal(int64(1), n)

	flagged := s.reload(expired.ID)
	s.Equal(models.TradeStatusAuctionEnded, flagged.Status)
	s.Nil(flagged.Amount)
	for _, o := range flagged.Offers {
		s.Equal(models.OfferStatusPending, o.Status)
	}

	untouched := s.reload(running.ID)
	s.Equal(models.TradeStatusAuctionActive, untouched.Status)
}

func TestAuctionServiceSuite(t *testing.T) {
	suite.Run(t, new(AuctionServiceSuite))
}
