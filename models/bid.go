package models

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	BidStatusPending  = "PENDING"
	BidStatusAccepted = "ACCEPTED"
	BidStatusRejected = "REJECTED"
)

// Bid is a seller's offer. One row per (campaign, seller); re-bidding updates it.
type Bid struct {
	ID          uint            `gorm:"primaryKey" json:"id"`
	CampaignID  uint            `gorm:"not null;uniqueIndex:idx_bid_campaign_seller" json:"campaign_id"`
	SellerID    uint            `gorm:"not null;uniqueIndex:idx_bid_campaign_seller" json:"seller_id"`
	Seller      *User           `gorm:"foreignKey:SellerID" json:"seller,omitempty"`
	Price       decimal.Decimal `gorm:"type:decimal(12,2);not null" json:"price"`
	Description string          `gorm:"type:text" json:"description"`
	Status      string          `gorm:"type:varchar(20);not null;default:'PENDING'" json:"status"`
	CreatedAt   time.Time       `gorm:"not null" json:"created_at"`
	UpdatedAt   time.Time       `gorm:"not null" json:"updated_at"`
}
