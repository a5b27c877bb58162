package lifecycle

import (
	"context"
	"fmt"

	"github.com/yeremiapane/groupbuy-app/models"
	"gorm.io/gorm"
)

// Join adds userID to a recruiting campaign. The capacity check and the
// counter increment are a single conditional UPDATE, so concurrent joins can
// never push the counter past MaxParticipants.
func (e *Engine) Join(ctx context.Context, campaignID, userID uint) (*models.Participant, error) {
	var p models.Participant
	err := e.inTx(ctx, "join campaign", func(t *txn) error {
		res := t.tx.Model(&models.Campaign{}).
			Where("id = ? AND status = ? AND current_participants < max_participants", campaignID, models.StatusRecruiting).
			UpdateColumn("current_participants", gorm.Expr("current_participants + 1"))
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			c, err := loadCampaign(t.tx, campaignID)
			if err != nil {
				return err
			}
			if c.Status != models.StatusRecruiting {
				return &StateError{Op: "join", Current: c.Status}
			}
			return fmt.Errorf("campaign %d (%d/%d): %w", campaignID, c.CurrentParticipants, c.MaxParticipants, ErrFull)
		}

		p = models.Participant{CampaignID: campaignID, UserID: userID}
		if err := t.tx.Create(&p).Error; err != nil {
			if isDuplicateKey(err) {
				return fmt.Errorf("campaign %d: %w", campaignID, ErrAlreadyJoined)
			}
			return err
		}

		c, err := loadCampaign(t.tx, campaignID)
		if err != nil {
			return err
		}
		if c.CreatorID == userID {
			return nil
		}
		n, err := participantJoinedNotification(c, userID)
		if err != nil {
			return err
		}
		return t.notify([]uint{c.CreatorID}, n)
	})
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// Leave removes a non-creator participant from a recruiting campaign.
func (e *Engine) Leave(ctx context.Context, campaignID, userID uint) error {
	return e.inTx(ctx, "leave campaign", func(t *txn) error {
		c, err := loadCampaign(t.tx, campaignID)
		if err != nil {
			return err
		}
		if c.CreatorID == userID {
			return fmt.Errorf("%w: the creator cannot leave their own campaign", ErrForbidden)
		}
		if c.Status != models.StatusRecruiting {
			return &StateError{Op: "leave", Current: c.Status}
		}

		res := t.tx.Model(&models.Campaign{}).
			Where("id = ? AND status = ? AND current_participants > 0", campaignID, models.StatusRecruiting).
			UpdateColumn("current_participants", gorm.Expr("current_participants - 1"))
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			cur, err := loadCampaign(t.tx, campaignID)
			if err != nil {
				return err
			}
			return &StateError{Op: "leave", Current: cur.Status, Reason: "campaign changed concurrently"}
		}

		del := t.tx.Where("campaign_id = ? AND user_id = ?", campaignID, userID).Delete(&models.Participant{})
		if del.Error != nil {
			return del.Error
		}
		if del.RowsAffected == 0 {
			return fmt.Errorf("participant %d in campaign %d: %w", userID, campaignID, ErrNotFound)
		}
		return nil
	})
}

// Participants lists the campaign's participants in join order.
func (e *Engine) Participants(ctx context.Context, campaignID uint) ([]models.Participant, error) {
	var out []models.Participant
	if err := e.db.WithContext(ctx).Preload("User").
		Where("campaign_id = ?", campaignID).
		Order("id ASC").
		Find(&out).Error; err != nil {
		return nil, storeError("list participants", err)
	}
	return out, nil
}

// IsParticipant reports whether userID has joined campaignID.
func (e *Engine) IsParticipant(ctx context.Context, campaignID, userID uint) (bool, error) {
	ok, err := isParticipant(e.db.WithContext(ctx), campaignID, userID)
	if err != nil {
		return false, storeError("check participant", err)
	}
	return ok, nil
}
