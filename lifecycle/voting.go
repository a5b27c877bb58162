package lifecycle

import (
	"context"
	"fmt"

	"github.com/yeremiapane/groupbuy-app/models"
)

type VoteResult struct {
	Vote      models.Vote           `json:"vote"`
	Approvals int64                 `json:"approvals"`
	Total     int                   `json:"total"`
	Confirmed bool                  `json:"confirmed"`
	Status    models.CampaignStatus `json:"status"`
}

// CastVote records a participant's vote on the winning bid. Reaching the
// approval threshold confirms the campaign in the same transaction.
func (e *Engine) CastVote(ctx context.Context, campaignID, userID uint, approved bool) (*VoteResult, error) {
	var out VoteResult
	err := e.inTx(ctx, "cast vote", func(t *txn) error {
		if _, err := loadCampaign(t.tx, campaignID); err != nil {
			return err
		}
		ok, err := isParticipant(t.tx, campaignID, userID)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("%w: only participants can vote", ErrForbidden)
		}

		c, err := lockCampaign(t, campaignID, "vote", models.StatusVoting)
		if err != nil {
			return err
		}
		if !c.InVoteWindow(t.now) {
			return &StateError{Op: "vote", Current: c.Status, Reason: "outside the vote window"}
		}

		out.Vote = models.Vote{CampaignID: campaignID, UserID: userID, Approved: approved}
		if err := t.tx.Create(&out.Vote).Error; err != nil {
			if isDuplicateKey(err) {
				return fmt.Errorf("campaign %d: %w", campaignID, ErrAlreadyVoted)
			}
			return err
		}

		approvals, err := approvalCount(t, campaignID)
		if err != nil {
			return err
		}
		out.Approvals, out.Total = approvals, c.CurrentParticipants
		out.Status = c.Status

		if meetsThreshold(approvals, int64(c.CurrentParticipants), c.VoteThreshold) {
			if err := e.fire(t, c, EventConfirm, nil, ""); err != nil {
				return err
			}
			out.Confirmed, out.Status = true, c.Status
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}
