package lifecycle

import (
	"context"

	"github.com/yeremiapane/groupbuy-app/models"
)

// apply loads the campaign and fires ev on behalf of actor.
func (e *Engine) apply(ctx context.Context, op string, id uint, ev Event, actor Principal, reason string) (*models.Campaign, error) {
	var c *models.Campaign
	err := e.inTx(ctx, op, func(t *txn) error {
		var err error
		if c, err = loadCampaign(t.tx, id); err != nil {
			return err
		}
		return e.fire(t, c, ev, &actor, reason)
	})
	if err != nil {
		return nil, err
	}
	return c, nil
}

// StartRecruitment publishes a draft campaign.
func (e *Engine) StartRecruitment(ctx context.Context, id uint, actor Principal) (*models.Campaign, error) {
	return e.apply(ctx, "start recruitment", id, EventRecruit, actor, "")
}

// StartBidding opens the auction early once enough participants have joined.
func (e *Engine) StartBidding(ctx context.Context, id uint, actor Principal) (*models.Campaign, error) {
	return e.apply(ctx, "start bidding", id, EventOpenAuction, actor, "")
}

// Cancel stops a campaign. The creator may cancel while it is a draft or
// recruiting; administrators may cancel any active campaign.
func (e *Engine) Cancel(ctx context.Context, id uint, actor Principal, reason string) (*models.Campaign, error) {
	return e.apply(ctx, "cancel campaign", id, EventCancel, actor, reason)
}

// Complete marks a confirmed campaign as fulfilled.
func (e *Engine) Complete(ctx context.Context, id uint, actor Principal) (*models.Campaign, error) {
	return e.apply(ctx, "complete campaign", id, EventComplete, actor, "")
}
