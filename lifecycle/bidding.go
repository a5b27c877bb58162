package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/yeremiapane/groupbuy-app/models"
	"gorm.io/gorm"
)

// PlaceBid records the seller's offer for a campaign in BIDDING. A seller
// holds one bid per campaign; bidding again replaces the price and
// description. The returned bool is true when a new bid was created.
func (e *Engine) PlaceBid(ctx context.Context, campaignID uint, actor Principal, price decimal.Decimal, description string) (*models.Bid, bool, error) {
	if actor.Role != models.RoleSeller {
		return nil, false, fmt.Errorf("%w: only sellers can bid", ErrForbidden)
	}
	if !price.IsPositive() {
		return nil, false, fmt.Errorf("%w: price must be positive", ErrInvalidInput)
	}

	var (
		bid     models.Bid
		created bool
	)
	err := e.inTx(ctx, "place bid", func(t *txn) error {
		c, err := lockCampaign(t, campaignID, "bid", models.StatusBidding)
		if err != nil {
			return err
		}
		if !c.InAuctionWindow(t.now) {
			return &StateError{Op: "bid", Current: c.Status, Reason: "outside the auction window"}
		}

		err = t.tx.Where("campaign_id = ? AND seller_id = ?", campaignID, actor.UserID).First(&bid).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			bid = models.Bid{
				CampaignID:  campaignID,
				SellerID:    actor.UserID,
				Price:       price,
				Description: strings.TrimSpace(description),
				Status:      models.BidStatusPending,
			}
			created = true
			return t.tx.Create(&bid).Error
		case err != nil:
			return err
		}

		bid.Price = price
		bid.Description = strings.TrimSpace(description)
		bid.Status = models.BidStatusPending
		return t.tx.Model(&bid).Select("price", "description", "status", "updated_at").Updates(&bid).Error
	})
	if err != nil {
		return nil, false, err
	}
	return &bid, created, nil
}

// ListBids returns the campaign's bids, lowest price first.
func (e *Engine) ListBids(ctx context.Context, campaignID uint) ([]models.Bid, error) {
	db := e.db.WithContext(ctx)
	if _, err := loadCampaign(db, campaignID); err != nil {
		return nil, storeError("list bids", err)
	}
	var bids []models.Bid
	if err := db.Preload("Seller").Where("campaign_id = ?", campaignID).Find(&bids).Error; err != nil {
		return nil, storeError("list bids", err)
	}
	lowestFirst(bids)
	return bids, nil
}

func sortedBids(tx *gorm.DB, campaignID uint) ([]models.Bid, error) {
	var bids []models.Bid
	if err := tx.Where("campaign_id = ?", campaignID).Find(&bids).Error; err != nil {
		return nil, err
	}
	if len(bids) == 0 {
		return nil, &StateError{Op: string(EventCloseAuction), Current: models.StatusBidding, Reason: "no bids"}
	}
	lowestFirst(bids)
	return bids, nil
}
