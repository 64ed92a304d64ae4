// internal/models/trade.go
package models

import (
	"time"

	"github.com/google/uuid"
)

// Trade is the negotiation aggregate between a buyer and a seller over a
// product. Offers and messages belong exclusively to their trade and are only
// ever mutated through the trade services, never addressed on their own.
type Trade struct {
	BaseModel
	BuyerID  uuid.UUID `json:"buyer_id" gorm:"type:uuid;not null;index:idx_trades_buyer_status"`
	SellerID uuid.UUID `json:"seller_id" gorm:"type:uuid;not null;index:idx_trades_seller_status"`

	ProductID          uuid.UUID  `json:"product_id" gorm:"type:uuid;not null;index:idx_trades_product_status"`
	ExchangedProductID *uuid.UUID `json:"exchanged_product_id" gorm:"type:uuid"`

	TradeType TradeType   `json:"trade_type" gorm:"type:varchar(20);not null"`
	Amount    *float64    `json:"amount" gorm:"type:decimal(12,2)"`
	Currency  string      `json:"currency" gorm:"size:3;default:'NPR'"`
	Status    TradeStatus `json:"status" gorm:"type:varchar(20);default:'pending';index:idx_trades_buyer_status;index:idx_trades_seller_status;index:idx_trades_product_status"`

	Auction  TradeAuction  `json:"auction" gorm:"embedded;embeddedPrefix:auction_"`
	Settings TradeSettings `json:"settings" gorm:"embedded;embeddedPrefix:settings_"`

	BuyerAccepted  bool       `json:"buyer_accepted" gorm:"default:false"`
	SellerAccepted bool       `json:"seller_accepted" gorm:"default:false"`
	RejectedAt     *time.Time `json:"rejected_at"`
	RejectedByID   *uuid.UUID `json:"rejected_by" gorm:"type:uuid"`

	InitiatedAt time.Time  `json:"initiated_at" gorm:"autoCreateTime"`
	AgreedAt    *time.Time `json:"agreed_at"`
	CompletedAt *time.Time `json:"completed_at"`

	// Delivery and payment details are pass-through: stored for the parties,
	// never interpreted by the negotiation engine.
	DeliveryMethod  string        `json:"delivery_method" gorm:"size:20"`
	DeliveryAddress string        `json:"delivery_address" gorm:"size:500"`
	DeliveryDate    *time.Time    `json:"delivery_date"`
	PaymentMethod   string        `json:"payment_method" gorm:"size:50"`
	PaymentStatus   PaymentStatus `json:"payment_status" gorm:"type:varchar(20);default:'pending'"`

	BuyerRating  TradeRating  `json:"buyer_rating" gorm:"embedded;embeddedPrefix:buyer_rating_"`
	SellerRating TradeRating  `json:"seller_rating" gorm:"embedded;embeddedPrefix:seller_rating_"`
	Dispute      TradeDispute `json:"dispute" gorm:"embedded;embeddedPrefix:dispute_"`

	// Version increments on every mutating operation; writes are guarded by a
	// row lock plus a version check so concurrent responders cannot both win.
	Version int64 `json:"version" gorm:"default:0"`

	Offers   []TradeOffer   `json:"offers,omitempty" gorm:"foreignKey:TradeID"`
	Messages []TradeMessage `json:"messages,omitempty" gorm:"foreignKey:TradeID"`

	// Relationships
	Buyer            User     `json:"buyer,omitempty" gorm:"foreignKey:BuyerID"`
	Seller           User     `json:"seller,omitempty" gorm:"foreignKey:SellerID"`
	Product          Product  `json:"product,omitempty" gorm:"foreignKey:ProductID"`
	ExchangedProduct *Product `json:"exchanged_product,omitempty" gorm:"foreignKey:ExchangedProductID"`
}

type TradeAuction struct {
	IsAuction          bool       `json:"is_auction" gorm:"default:false"`
	StartingPrice      *float64   `json:"starting_price" gorm:"type:decimal(12,2)"`
	ReservePrice       *float64   `json:"reserve_price" gorm:"type:decimal(12,2)"`
	CurrentHighestBid  *float64   `json:"current_highest_bid" gorm:"type:decimal(12,2)"`
	AuctionEndDate     *time.Time `json:"auction_end_date" gorm:"index"`
	AutoAcceptPrice    *float64   `json:"auto_accept_price" gorm:"type:decimal(12,2)"`
	AllowCounterOffers bool       `json:"allow_counter_offers" gorm:"default:true"`
}

type TradeSettings struct {
	AllowMultipleOffers  bool     `json:"allow_multiple_offers" gorm:"default:true"`
	OfferExpirationHours int      `json:"offer_expiration_hours" gorm:"default:72"`
	AutoRejectBelowPrice *float64 `json:"auto_reject_below_price" gorm:"type:decimal(12,2)"`
	RequireDeposit       bool     `json:"require_deposit" gorm:"default:false"`
	DepositAmount        *float64 `json:"deposit_amount" gorm:"type:decimal(12,2)"`
}

type TradeRating struct {
	Rating    *int       `json:"rating"`
	Review    string     `json:"review" gorm:"size:2000"`
	CreatedAt *time.Time `json:"created_at"`
}

type TradeDispute struct {
	RaisedByID  *uuid.UUID    `json:"raised_by" gorm:"type:uuid"`
	Reason      string        `json:"reason" gorm:"size:255"`
	Description string        `json:"description" gorm:"type:text"`
	Status      DisputeStatus `json:"status" gorm:"type:varchar(20)"`
	Resolution  string        `json:"resolution" gorm:"type:text"`
	CreatedAt   *time.Time    `json:"created_at"`
	ResolvedAt  *time.Time    `json:"resolved_at"`
}

func (d TradeDispute) Open() bool {
	return d.Status == DisputeStatusOpen
}

// TradeOffer is a bid within a trade. At most one live counter-offer exists
// per offer; CounterAmount == nil means no counter.
type TradeOffer struct {
	BaseModel
	TradeID uuid.UUID   `json:"trade_id" gorm:"type:uuid;not null;index"`
	BuyerID uuid.UUID   `json:"buyer_id" gorm:"type:uuid;not null;index"`
	Amount  float64     `json:"amount" gorm:"type:decimal(12,2);not null"`
	Message string      `json:"message" gorm:"size:2000"`
	Status  OfferStatus `json:"status" gorm:"type:varchar(20);default:'pending'"`

	CounterAmount    *float64   `json:"counter_amount" gorm:"type:decimal(12,2)"`
	CounterMessage   string     `json:"counter_message" gorm:"size:2000"`
	CounterExpiresAt *time.Time `json:"counter_expires_at"`

	RespondedAt *time.Time `json:"responded_at"`
	ExpiresAt   *time.Time `json:"expires_at" gorm:"index"`

	Buyer User `json:"buyer,omitempty" gorm:"foreignKey:BuyerID"`
}

func (TradeOffer) TableName() string { return "trade_offers" }

// Live reports whether the offer still counts for best-offer and offer-count
// queries. Expiry is lazy: a pending offer past its deadline stops being live
// even though the stored status has not been flipped.
func (o *TradeOffer) Live(now time.Time) bool {
	if o.Status != OfferStatusPending {
		return false
	}
	return o.ExpiresAt == nil || o.ExpiresAt.After(now)
}

func (o *TradeOffer) HasLiveCounter(now time.Time) bool {
	if o.CounterAmount == nil {
		return false
	}
	return o.CounterExpiresAt == nil || o.CounterExpiresAt.After(now)
}

func (o *TradeOffer) ClearCounter() {
	o.CounterAmount = nil
	o.CounterMessage = ""
	o.CounterExpiresAt = nil
}

// TradeMessage is one entry in the append-only negotiation trail. Sequence is
// assigned under the trade lock; readers order by it and never reorder by
// content.
type TradeMessage struct {
	BaseModel
	TradeID         uuid.UUID   `json:"trade_id" gorm:"type:uuid;not null;index:idx_trade_messages_order"`
	Sequence        int         `json:"sequence" gorm:"not null;index:idx_trade_messages_order"`
	SenderID        *uuid.UUID  `json:"sender_id" gorm:"type:uuid"`
	Message         string      `json:"message" gorm:"type:text"`
	ImageURL        string      `json:"image_url" gorm:"size:1000"`
	IsSystemMessage bool        `json:"is_system_message" gorm:"default:false"`
	MessageType     MessageType `json:"message_type" gorm:"type:varchar(20);default:'general'"`
	OfferID         *uuid.UUID  `json:"offer_id" gorm:"type:uuid"`
	Timestamp       time.Time   `json:"timestamp" gorm:"autoCreateTime"`

	Sender *User `json:"sender,omitempty" gorm:"foreignKey:SenderID"`
}

func (TradeMessage) TableName() string { return "trade_messages" }

// IsParty reports whether the user is the buyer or the seller of the trade.
func (t *Trade) IsParty(userID uuid.UUID) bool {
	return t.BuyerID == userID || t.SellerID == userID
}

// RoleOf returns the party role of the user, if any.
func (t *Trade) RoleOf(userID uuid.UUID) (TradeRole, bool) {
	switch userID {
	case t.BuyerID:
		return TradeRoleBuyer, true
	case t.SellerID:
		return TradeRoleSeller, true
	}
	return "", false
}

// Counterparty returns the other party of the trade.
func (t *Trade) Counterparty(userID uuid.UUID) uuid.UUID {
	if t.BuyerID == userID {
		return t.SellerID
	}
	return t.BuyerID
}

// BestLiveOffer returns the highest live offer, ties broken by earliest
// CreatedAt so the first bidder wins.
func (t *Trade) BestLiveOffer(now time.Time) *TradeOffer {
	var best *TradeOffer
	for i := range t.Offers {
		o := &t.Offers[i]
		if !o.Live(now) {
			continue
		}
		if best == nil || o.Amount > best.Amount ||
			(o.Amount == best.Amount && o.CreatedAt.Before(best.CreatedAt)) {
			best = o
		}
	}
	return best
}

// LiveOfferCount counts offers satisfying the live predicate.
func (t *Trade) LiveOfferCount(now time.Time) int {
	n := 0
	for i := range t.Offers {
		if t.Offers[i].Live(now) {
			n++
		}
	}
	return n
}

// OfferByID finds an offer owned by this trade.
func (t *Trade) OfferByID(offerID uuid.UUID) *TradeOffer {
	for i := range t.Offers {
		if t.Offers[i].ID == offerID {
			return &t.Offers[i]
		}
	}
	return nil
}

// PendingOfferBy reports whether the buyer already has a pending offer.
func (t *Trade) PendingOfferBy(buyerID uuid.UUID) bool {
	for i := range t.Offers {
		if t.Offers[i].BuyerID == buyerID && t.Offers[i].Status == OfferStatusPending {
			return true
		}
	}
	return false
}

// NormalizeAuctionState flips an auction whose end date has passed from
// auction_active to auction_ended. This is only the lazy flag transition:
// settlement never runs here, only through an explicit end-auction call.
func (t *Trade) NormalizeAuctionState(now time.Time) bool {
	if !t.Auction.IsAuction || t.Status != TradeStatusAuctionActive {
		return false
	}
	if t.Auction.AuctionEndDate == nil || !t.Auction.AuctionEndDate.Before(now) {
		return false
	}
	t.Status = TradeStatusAuctionEnded
	return true
}

// NextMessageSequence returns the sequence number for the next appended
// message. Valid only while the trade's messages are loaded under the lock.
func (t *Trade) NextMessageSequence() int {
	max := -1
	for i := range t.Messages {
		if t.Messages[i].Sequence > max {
			max = t.Messages[i].Sequence
		}
	}
	return max + 1
}
