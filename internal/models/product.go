// internal/models/product.go
package models

import (
	"github.com/google/uuid"
	"github.com/lib/pq"
)

// Product is the catalog entry a trade is negotiated over. The catalog itself
// (categories, search, feeds) is an external collaborator; the negotiation
// engine reads ownership and price at trade creation and flips the status to
// sold/exchanged on completion.
type Product struct {
	BaseModel
	OwnerID      uuid.UUID      `json:"owner_id" gorm:"type:uuid;not null;index"`
	Title        string         `json:"title" gorm:"size:255;not null"`
	Description  string         `json:"description" gorm:"type:text"`
	Category     string         `json:"category" gorm:"size:100;index"`
	Condition    string         `json:"condition" gorm:"size:50"`
	Location     string         `json:"location" gorm:"size:255"`
	SellPrice    float64        `json:"sell_price" gorm:"type:decimal(12,2)"`
	MinimumPrice float64        `json:"minimum_price" gorm:"type:decimal(12,2)"`
	Currency     string         `json:"currency" gorm:"size:3;default:'NPR'"`
	DeliveryType string         `json:"delivery_type" gorm:"size:20"`
	Images       pq.StringArray `json:"images" gorm:"type:text[]"`
	Status       ProductStatus  `json:"status" gorm:"type:varchar(20);default:'available';index"`
	ViewCount    int64          `json:"view_count" gorm:"default:0"`
	OfferCount   int64          `json:"offer_count" gorm:"default:0"`

	// Relationships
	Owner User `json:"owner,omitempty" gorm:"foreignKey:OwnerID"`
}
