// internal/models/trade_test.go
package models

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func offerAt(amount float64, status OfferStatus, createdAt time.Time, expiresAt *time.Time) TradeOffer {
	o := TradeOffer{
		Amount:    amount,
		Status:    status,
		ExpiresAt: expiresAt,
	}
	o.ID = uuid.New()
	o.CreatedAt = createdAt
	return o
}

func TestBestLiveOfferPicksHighestAmount(t *testing.T) {
	now := time.Now()
	future := now.Add(time.Hour)

	trade := Trade{Offers: []TradeOffer{
		offerAt(100, OfferStatusPending, now.Add(-3*time.Minute), &future),
		offerAt(250, OfferStatusPending, now.Add(-2*time.Minute), &future),
		offerAt(180, OfferStatusPending, now.Add(-1*time.Minute), &future),
	}}

	best := trade.BestLiveOffer(now)
	assert.NotNil(t, best)
	assert.Equal(t, 250.0, best.Amount)
}

func TestBestLiveOfferTieGoesToFirstBidder(t *testing.T) {
	now := time.Now()
	first := offerAt(200, OfferStatusPending, now.Add(-10*time.Minute), nil)
	second := offerAt(200, OfferStatusPending, now.Add(-5*time.Minute), nil)

	trade := Trade{Offers: []TradeOffer{second, first}}

	best := trade.BestLiveOffer(now)
	assert.NotNil(t, best)
	assert.Equal(t, first.ID, best.ID)
}

func TestBestLiveOfferIgnoresExpiredAndSettled(t *testing.T) {
	now := time.Now()
	past := now.Add(-time.Hour)
	future := now.Add(time.Hour)

	trade := Trade{Offers: []TradeOffer{
		offerAt(500, OfferStatusPending, now.Add(-3*time.Minute), &past),  // expired, still "pending"
		offerAt(400, OfferStatusRejected, now.Add(-2*time.Minute), &future),
		offerAt(300, OfferStatusPending, now.Add(-1*time.Minute), &future),
	}}

	best := trade.BestLiveOffer(now)
	assert.NotNil(t, best)
	assert.Equal(t, 300.0, best.Amount)
}

func TestBestLiveOfferNilWhenNoneLive(t *testing.T) {
	now := time.Now()
	past := now.Add(-time.Minute)

	trade := Trade{Offers: []TradeOffer{
		offerAt(100, OfferStatusPending, now.Add(-2*time.Hour), &past),
		offerAt(200, OfferStatusAccepted, now.Add(-1*time.Hour), nil),
	}}

	assert.Nil(t, trade.BestLiveOffer(now))
}

func TestLiveOfferCount(t *testing.T) {
	now := time.Now()
	past := now.Add(-time.Minute)
	future := now.Add(time.Hour)

	trade := Trade{Offers: []TradeOffer{
		offerAt(100, OfferStatusPending, now, &future),
		offerAt(150, OfferStatusPending, now, nil), // no deadline, counts
		offerAt(200, OfferStatusPending, now, &past),
		offerAt(250, OfferStatusCountered, now, &future),
	}}

	assert.Equal(t, 2, trade.LiveOfferCount(now))
}

func TestNormalizeAuctionStateFlipsWithoutSettling(t *testing.T) {
	now := time.Now()
	ended := now.Add(-time.Minute)
	future := now.Add(time.Hour)

	trade := Trade{
		Status: TradeStatusAuctionActive,
		Auction: TradeAuction{
			IsAuction:      true,
			AuctionEndDate: &ended,
		},
		Offers: []TradeOffer{
			offerAt(300, OfferStatusPending, now.Add(-time.Hour), &future),
		},
	}

	assert.True(t, trade.NormalizeAuctionState(now))
	assert.Equal(t, TradeStatusAuctionEnded, trade.Status)

	// The flip is only a flag: the best offer is not accepted and no amount
	// is agreed. Settlement requires an explicit end-auction call.
	assert.Nil(t, trade.Amount)
	assert.Nil(t, trade.AgreedAt)
	assert.Equal(t, OfferStatusPending, trade.Offers[0].Status)
}

func TestNormalizeAuctionStateLeavesRunningAuctions(t *testing.T) {
	now := time.Now()
	future := now.Add(time.Hour)

	trade := Trade{
		Status:  TradeStatusAuctionActive,
		Auction: TradeAuction{IsAuction: true, AuctionEndDate: &future},
	}
	assert.False(t, trade.NormalizeAuctionState(now))
	assert.Equal(t, TradeStatusAuctionActive, trade.Status)

	ordinary := Trade{Status: TradeStatusPending}
	assert.False(t, ordinary.NormalizeAuctionState(now))
}

func TestHasLiveCounter(t *testing.T) {
	now := time.Now()
	amount := 150.0
	past := now.Add(-time.Minute)
	future := now.Add(time.Hour)

	o := TradeOffer{}
	assert.False(t, o.HasLiveCounter(now))

	o.CounterAmount = &amount
	o.CounterExpiresAt = &future
	assert.True(t, o.HasLiveCounter(now))

	o.CounterExpiresAt = &past
	assert.False(t, o.HasLiveCounter(now))

	o.CounterExpiresAt = nil
	assert.True(t, o.HasLiveCounter(now))

	o.ClearCounter()
	assert.False(t, o.HasLiveCounter(now))
	assert.Nil(t, o.CounterAmount)
	assert.Empty(t, o.CounterMessage)
}

func TestNextMessageSequence(t *testing.T) {
	trade := Trade{}
	assert.Equal(t, 0, trade.NextMessageSequence())

	trade.Messages = []TradeMessage{
		{Sequence: 0}, {Sequence: 1}, {Sequence: 2},
	}
	assert.Equal(t, 3, trade.NextMessageSequence())
}

func TestTerminalStatuses(t *testing.T) {
	terminal := []TradeStatus{
		TradeStatusCompleted, TradeStatusRejected, TradeStatusCancelled, TradeStatusAuctionEnded,
	}
	for _, s := range terminal {
		assert.True(t, s.IsTerminal(), string(s))
	}

	open := []TradeStatus{
		TradeStatusPending, TradeStatusNegotiating, TradeStatusAgreed, TradeStatusAccepted,
		TradeStatusInProgress, TradeStatusDisputed, TradeStatusAuctionActive,
	}
	for _, s := range open {
		assert.False(t, s.IsTerminal(), string(s))
	}
}

func TestRoleOfAndParties(t *testing.T) {
	buyer := uuid.New()
	seller := uuid.New()
	stranger := uuid.New()

	trade := Trade{BuyerID: buyer, SellerID: seller}

	role, ok := trade.RoleOf(buyer)
	assert.True(t, ok)
	assert.Equal(t, TradeRoleBuyer, role)

	role, ok = trade.RoleOf(seller)
	assert.True(t, ok)
	assert.Equal(t, TradeRoleSeller, role)

	_, ok = trade.RoleOf(stranger)
	assert.False(t, ok)

	assert.True(t, trade.IsParty(buyer))
	assert.False(t, trade.IsParty(stranger))
	assert.Equal(t, seller, trade.Counterparty(buyer))
	assert.Equal(t, buyer, trade.Counterparty(seller))
}
