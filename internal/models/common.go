// internal/models/common.go
package models

import (
	"database/sql/driver"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Base model with common fields
type BaseModel struct {
	ID        uuid.UUID      `json:"id" gorm:"type:uuid;primary_key"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `json:"deleted_at,omitempty" gorm:"index"`
}

// BeforeCreate assigns the UUID in Go so models behave the same on Postgres
// and the sqlite driver used in tests.
func (m *BaseModel) BeforeCreate(tx *gorm.DB) error {
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	return nil
}

// JSONB type for PostgreSQL
type JSONB map[string]interface{}

func (j JSONB) Value() (driver.Value, error) {
	if j == nil {
		return nil, nil
	}
	return json.Marshal(j)
}

func (j *JSONB) Scan(value interface{}) error {
	if value == nil {
		*j = nil
		return nil
	}

	switch v := value.(type) {
	case []byte:
		return json.Unmarshal(v, j)
	case string:
		return json.Unmarshal([]byte(v), j)
	default:
		return nil
	}
}

// Enums
type UserStatus string

const (
	UserStatusActive    UserStatus = "active"
	UserStatusSuspended UserStatus = "suspended"
	UserStatusBanned    UserStatus = "banned"
)

type ProductStatus string

const (
	ProductStatusAvailable ProductStatus = "available"
	ProductStatusReserved  ProductStatus = "reserved"
	ProductStatusSold      ProductStatus = "sold"
	ProductStatusExchanged ProductStatus = "exchanged"
	ProductStatusRemoved   ProductStatus = "removed"
)

type TradeType string

const (
	TradeTypeSale     TradeType = "sale"
	TradeTypeExchange TradeType = "exchange"
	TradeTypeGiveaway TradeType = "giveaway"
	TradeTypeAuction  TradeType = "auction"
)

func (t TradeType) Valid() bool {
	switch t {
	case TradeTypeSale, TradeTypeExchange, TradeTypeGiveaway, TradeTypeAuction:
		return true
	}
	return false
}

type TradeStatus string

const (
	TradeStatusPending       TradeStatus = "pending"
	TradeStatusNegotiating   TradeStatus = "negotiating"
	TradeStatusAgreed        TradeStatus = "agreed"
	TradeStatusAccepted      TradeStatus = "accepted"
	TradeStatusRejected      TradeStatus = "rejected"
	TradeStatusInProgress    TradeStatus = "in_progress"
	TradeStatusCompleted     TradeStatus = "completed"
	TradeStatusCancelled     TradeStatus = "cancelled"
	TradeStatusDisputed      TradeStatus = "disputed"
	TradeStatusAuctionActive TradeStatus = "auction_active"
	TradeStatusAuctionEnded  TradeStatus = "auction_ended"
)

// ActiveTradeStatuses and HistoryTradeStatuses partition the states for the
// list views. "disputed" and "accepted" count as history because negotiation
// is over even though follow-up may still happen.
var (
	ActiveTradeStatuses = []TradeStatus{
		TradeStatusPending,
		TradeStatusAgreed,
		TradeStatusInProgress,
		TradeStatusAuctionActive,
		TradeStatusNegotiating,
	}
	HistoryTradeStatuses = []TradeStatus{
		TradeStatusCompleted,
		TradeStatusRejected,
		TradeStatusCancelled,
		TradeStatusAuctionEnded,
		TradeStatusDisputed,
		TradeStatusAccepted,
	}
)

// IsTerminal reports whether negotiation on the trade is over. Dispute
// transitions are still allowed from terminal states.
func (s TradeStatus) IsTerminal() bool {
	switch s {
	case TradeStatusCompleted, TradeStatusRejected, TradeStatusCancelled, TradeStatusAuctionEnded:
		return true
	}
	return false
}

func (s TradeStatus) Valid() bool {
	switch s {
	case TradeStatusPending, TradeStatusNegotiating, TradeStatusAgreed,
		TradeStatusAccepted, TradeStatusRejected, TradeStatusInProgress,
		TradeStatusCompleted, TradeStatusCancelled, TradeStatusDisputed,
		TradeStatusAuctionActive, TradeStatusAuctionEnded:
		return true
	}
	return false
}

type OfferStatus string

const (
	OfferStatusPending   OfferStatus = "pending"
	OfferStatusAccepted  OfferStatus = "accepted"
	OfferStatusRejected  OfferStatus = "rejected"
	OfferStatusCountered OfferStatus = "countered"
	OfferStatusExpired   OfferStatus = "expired"
)

type MessageType string

const (
	MessageTypeGeneral      MessageType = "general"
	MessageTypeOffer        MessageType = "offer"
	MessageTypeCounterOffer MessageType = "counter_offer"
	MessageTypeAcceptance   MessageType = "acceptance"
	MessageTypeRejection    MessageType = "rejection"
	MessageTypeSystem       MessageType = "system"
)

type DisputeStatus string

const (
	DisputeStatusOpen     DisputeStatus = "open"
	DisputeStatusResolved DisputeStatus = "resolved"
	DisputeStatusClosed   DisputeStatus = "closed"
)

type PaymentStatus string

const (
	PaymentStatusPending  PaymentStatus = "pending"
	PaymentStatusPaid     PaymentStatus = "paid"
	PaymentStatusRefunded PaymentStatus = "refunded"
)

type TradeRole string

const (
	TradeRoleBuyer  TradeRole = "buyer"
	TradeRoleSeller TradeRole = "seller"
)

func (r TradeRole) Valid() bool {
	return r == TradeRoleBuyer || r == TradeRoleSeller
}
