// internal/services/offer_service_test.go
package services

import (
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"github.com/kinbech/backend/internal/apperrors"
	"github.com/kinbech/backend/internal/models"
)

type OfferServiceSuite struct {
	ServiceSuite
}

func fptr(v float64) *float64 { return &v }
func bptr(v bool) *bool       { return &v }

func (s *OfferServiceSuite) TestSubmitOfferHappyPath() {
	trade := s.createTrade()

	before := time.Now()
	_, offer, err := s.offers.SubmitOffer(s.buyer.ID, trade.ID, 4500, "cash today")
	s.Require().NoError(err)

	s.Equal(models.OfferStatusPending, offer.Status)
	s.Equal(4500.0, offer.Amount)
	s.Require().NotNil(offer.ExpiresAt)
	s.WithinDuration(before.Add(72*time.Hour), *offer.ExpiresAt, time.Minute)

	msg := s.lastMessage(s.reload(trade.ID))
	s.Equal(models.MessageTypeOffer, msg.MessageType)
	s.Contains(msg.Message, "NPR 4500")
	s.Contains(msg.Message, "cash today")
	s.Require().NotNil(msg.OfferID)
	s.Equal(offer.ID, *msg.OfferID)
}

func (s *OfferServiceSuite) TestSubmitOfferValidation() {
	trade := s.createTrade()

	_, _, err := s.offers.SubmitOffer(s.buyer.ID, trade.ID, 0, "")
	s.True(apperrors.IsKind(err, apperrors.KindValidation))

	_, _, err = s.offers.SubmitOffer(s.bystander.ID, trade.ID, 1000, "")
	s.True(apperrors.IsKind(err, apperrors.KindAuthorization))
}

func (s *OfferServiceSuite) TestSingleOfferSetting() {
	trade, err := s.trades.CreateTrade(s.buyer.ID, &CreateTradeRequest{
		ProductID: s.product.ID,
		TradeType: models.TradeTypeSale,
		Settings:  &TradeSettingsRequest{AllowMultipleOffers: bptr(false)},
	})
	s.Require().NoError(err)

	_, _, err = s.offers.SubmitOffer(s.buyer.ID, trade.ID, 4000, "")
	s.Require().NoError(err)

	_, _, err = s.offers.SubmitOffer(s.buyer.ID, trade.ID, 4200, "")
	s.True(apperrors.IsKind(err, apperrors.KindBusinessRule))
}

func (s *OfferServiceSuite) TestAutoRejectBelowPrice() {
	trade, err := s.trades.CreateTrade(s.buyer.ID, &CreateTradeRequest{
		ProductID: s.product.ID,
		TradeType: models.TradeTypeSale,
		Settings:  &TradeSettingsRequest{AutoRejectBelowPrice: fptr(3000)},
	})
	s.Require().NoError(err)

	_, _, err = s.offers.SubmitOffer(s.buyer.ID, trade.ID, 2999, "")
	s.True(apperrors.IsKind(err, apperrors.KindBusinessRule))

	_, _, err = s.offers.SubmitOffer(s.buyer.ID, trade.ID, 3000, "")
	s.NoError(err)
}

func (s *OfferServiceSuite) TestAcceptOfferSettlesAndRejectsLosers() {
	end := time.Now().Add(24 * time.Hour)
	trade := s.createAuction(end, &AuctionSettingsRequest{StartingPrice: 1000})

	third := s.createUser("thirdbidder")
	_, low, err := s.offers.SubmitOffer(s.buyer.ID, trade.ID, 1500, "")
	s.Require().NoError(err)
	_, high, err := s.offers.SubmitOffer(third.ID, trade.ID, 2000, "")
	s.Require().NoError(err)

	after, accepted, err := s.offers.RespondToOffer(s.seller.ID, trade.ID, high.ID, OfferActionAccept, nil, "")
	s.Require().NoError(err)

	s.Equal(models.TradeStatusAgreed, after.Status)
	s.Require().NotNil(after.Amount)
	s.Equal(2000.0, *after.Amount)
	s.NotNil(after.AgreedAt)
	s.Equal(models.OfferStatusAccepted, accepted.Status)

	loaded := s.reload(trade.ID)
	loser := loaded.OfferByID(low.ID)
	s.Require().NotNil(loser)
	s.Equal(models.OfferStatusRejected, loser.Status)
	s.NotNil(loser.RespondedAt)
}

func (s *OfferServiceSuite) TestRespondToOfferGuards() {
	trade := s.createTrade()
	_, offer, err := s.offers.SubmitOffer(s.buyer.ID, trade.ID, 4000, "")
	s.Require().NoError(err)

	_, _, err = s.offers.RespondToOffer(s.buyer.ID, trade.ID, offer.ID, OfferActionAccept, nil, "")
	s.True(apperrors.IsKind(err, apperrors.KindAuthorization))

	_, _, err = s.offers.RespondToOffer(s.seller.ID, trade.ID, offer.ID, "maybe", nil, "")
	s.True(apperrors.IsKind(err, apperrors.KindValidation))

	_, _, err = s.offers.RespondToOffer(s.seller.ID, trade.ID, offer.ID, OfferActionReject, nil, "")
	s.Require().NoError(err)

	// Already responded
	_, _, err = s.offers.RespondToOffer(s.seller.ID, trade.ID, offer.ID, OfferActionAccept, nil, "")
	s.True(apperrors.IsKind(err, apperrors.KindState))
}

func (s *OfferServiceSuite) TestCounterOfferRoundTrip() {
	trade := s.createTrade()
	_, offer, err := s.offers.SubmitOffer(s.buyer.ID, trade.ID, 4000, "")
	s.Require().NoError(err)

	_, _, err = s.offers.RespondToOffer(s.seller.ID, trade.ID, offer.ID, OfferActionCounter, nil, "")
	s.True(apperrors.IsKind(err, apperrors.KindValidation))

	before := time.Now()
	after, countered, err := s.offers.RespondToOffer(s.seller.ID, trade.ID, offer.ID, OfferActionCounter, fptr(4600), "meet me halfway")
	s.Require().NoError(err)

	s.Equal(models.TradeStatusPending, after.Status)
	s.Equal(models.OfferStatusCountered, countered.Status)
	s.Require().NotNil(countered.CounterAmount)
	s.Equal(4600.0, *countered.CounterAmount)
	s.Require().NotNil(countered.CounterExpiresAt)
	s.WithinDuration(before.Add(24*time.Hour), *countered.CounterExpiresAt, time.Minute)

	// Only the offer's buyer may answer the counter.
	_, _, err = s.offers.RespondToCounter(s.bystander.ID, trade.ID, offer.ID, true)
	s.True(apperrors.IsKind(err, apperrors.KindAuthorization))

	settled, won, err := s.offers.RespondToCounter(s.buyer.ID, trade.ID, offer.ID, true)
	s.Require().NoError(err)

	s.Equal(models.TradeStatusAgreed, settled.Status)
	s.Require().NotNil(settled.Amount)
	s.Equal(4600.0, *settled.Amount)
	s.Equal(models.OfferStatusAccepted, won.Status)
	s.Equal(4600.0, won.Amount)
	s.Nil(won.CounterAmount)
}

func (s *OfferServiceSuite) TestCounterOfferRejection() {
	trade := s.createTrade()
	_, offer, err := s.offers.SubmitOffer(s.buyer.ID, trade.ID, 4000, "")
	s.Require().NoError(err)

	_, _, err = s.offers.RespondToCounter(s.buyer.ID, trade.ID, offer.ID, true)
	s.True(apperrors.IsKind(err, apperrors.KindState))

	_, _, err = s.offers.RespondToOffer(s.seller.ID, trade.ID, offer.ID, OfferActionCounter, fptr(4600), "")
	s.Require().NoError(err)

	after, rejected, err := s.offers.RespondToCounter(s.buyer.ID, trade.ID, offer.ID, false)
	s.Require().NoError(err)

	s.Equal(models.TradeStatusPending, after.Status)
	s.Equal(models.OfferStatusRejected, rejected.Status)
	s.Nil(rejected.CounterAmount)
	s.Nil(after.Amount)
}

func (s *OfferServiceSuite) TestExpiredCounterCannotBeAccepted() {
	trade := s.createTrade()
	_, offer, err := s.offers.SubmitOffer(s.buyer.ID, trade.ID, 4000, "")
	s.Require().NoError(err)
	_, _, err = s.offers.RespondToOffer(s.seller.ID, trade.ID, offer.ID, OfferActionCounter, fptr(4600), "")
	s.Require().NoError(err)

	expired := time.Now().Add(-time.Minute)
	s.Require().NoError(s.db.Model(&models.TradeOffer{}).Where("id = ?", offer.ID).
		Update("counter_expires_at", expired).Error)

	_, _, err = s.offers.RespondToCounter(s.buyer.ID, trade.ID, offer.ID, true)
	s.True(apperrors.IsKind(err, apperrors.KindState))
}

func (s *OfferServiceSuite) TestAuctionBidding() {
	end := time.Now().Add(24 * time.Hour)
	trade := s.createAuction(end, &AuctionSettingsRequest{StartingPrice: 1000})

	// The seller cannot bid on their own auction.
	_, _, err := s.offers.SubmitOffer(s.seller.ID, trade.ID, 1500, "")
	s.True(apperrors.IsKind(err, apperrors.KindAuthorization))

	// Any other user may.
	after, _, err := s.offers.SubmitOffer(s.bystander.ID, trade.ID, 1500, "")
	s.Require().NoError(err)
	s.Equal(1500.0, *after.Auction.CurrentHighestBid)

	// A lower bid is recorded but does not move the highest-bid marker.
	after, _, err = s.offers.SubmitOffer(s.buyer.ID, trade.ID, 1200, "")
	s.Require().NoError(err)
	s.Equal(1500.0, *after.Auction.CurrentHighestBid)
	s.Equal(2, after.LiveOfferCount(time.Now()))
}

func (s *OfferServiceSuite) TestAuctionCounterOffersCanBeDisabled() {
	end := time.Now().Add(24 * time.Hour)
	trade := s.createAuction(end, &AuctionSettingsRequest{
		StartingPrice:      1000,
		AllowCounterOffers: bptr(false),
	})

	_, offer, err := s.offers.SubmitOffer(s.buyer.ID, trade.ID, 1500, "")
	s.Require().NoError(err)

	_, _, err = s.offers.RespondToOffer(s.seller.ID, trade.ID, offer.ID, OfferActionCounter, fptr(1800), "")
	s.True(apperrors.IsKind(err, apperrors.KindBusinessRule))
}

func (s *OfferServiceSuite) TestAutoAcceptPriceSettlesImmediately() {
	end := time.Now().Add(24 * time.Hour)
	trade := s.createAuction(end, &AuctionSettingsRequest{
		StartingPrice:   1000,
		AutoAcceptPrice: fptr(5000),
	})

	after, first, err := s.offers.SubmitOffer(s.buyer.ID, trade.ID, 4999, "")
	s.Require().NoError(err)
	s.Equal(models.TradeStatusAuctionActive, after.Status)

	after, offer, err := s.offers.SubmitOffer(s.bystander.ID, trade.ID, 5000, "")
	s.Require().NoError(err)

	s.Equal(models.TradeStatusAgreed, after.Status)
	s.Require().NotNil(after.Amount)
	s.Equal(5000.0, *after.Amount)
	s.Equal(models.OfferStatusAccepted, offer.Status)

	loaded := s.reload(trade.ID)
	loser := loaded.OfferByID(first.ID)
	s.Require().NotNil(loser)
	s.Equal(models.OfferStatusRejected, loser.Status)
	s.Contains(s.lastMessage(loaded).Message, "auto-accept")
}

func (s *OfferServiceSuite) TestNoBidsAfterAuctionCloses() {
	end := time.Now().Add(24 * time.Hour)
	trade := s.createAuction(end, nil)

	_, err := s.auctions.EndAuction(s.seller.ID, trade.ID)
	s.Require().NoError(err)

	_, _, err = s.offers.SubmitOffer(s.buyer.ID, trade.ID, 2000, "")
	s.True(apperrors.IsKind(err, apperrors.KindState))
}

func TestOfferServiceSuite(t *testing.T) {
	suite.Run(t, new(OfferServiceSuite))
}
