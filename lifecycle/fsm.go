package lifecycle

import (
	"fmt"
	"sort"

	"github.com/sirupsen/logrus"
	"github.com/yeremiapane/groupbuy-app/models"
	"github.com/yeremiapane/groupbuy-app/utils"
)

// Event drives a campaign from one status to the next.
type Event string

const (
	EventRecruit      Event = "recruit"
	EventOpenAuction  Event = "open_auction"
	EventCloseAuction Event = "close_auction"
	EventConfirm      Event = "confirm"
	EventComplete     Event = "complete"
	EventCancel       Event = "cancel"
)

// transitionCtx is what guards and effects see. actor is nil when the
// deadline sweep fires the event.
type transitionCtx struct {
	t        *txn
	campaign *models.Campaign
	from     models.CampaignStatus
	actor    *Principal
	reason   string
}

type transition struct {
	to     models.CampaignStatus
	guard  func(tc *transitionCtx) error
	effect func(tc *transitionCtx) error
}

// transitions is the whole state machine. Anything not listed is rejected
// with ErrInvalidState.
var transitions = map[models.CampaignStatus]map[Event]transition{
	models.StatusDraft: {
		EventRecruit: {to: models.StatusRecruiting, guard: guardRecruit, effect: effectRecruit},
		EventCancel:  {to: models.StatusCancelled, guard: guardOwnerCancel, effect: effectCancelled},
	},
	models.StatusRecruiting: {
		EventOpenAuction: {to: models.StatusBidding, guard: guardOpenAuction, effect: effectOpenAuction},
		EventCancel:      {to: models.StatusCancelled, guard: guardRecruitingCancel, effect: effectCancelled},
	},
	models.StatusBidding: {
		EventCloseAuction: {to: models.StatusVoting, guard: guardCloseAuction, effect: effectCloseAuction},
		EventCancel:       {to: models.StatusCancelled, guard: guardBiddingCancel, effect: effectCancelled},
	},
	models.StatusVoting: {
		EventConfirm: {to: models.StatusConfirmed, guard: guardConfirm, effect: effectConfirmed},
		EventCancel:  {to: models.StatusCancelled, guard: guardVotingCancel, effect: effectCancelled},
	},
	models.StatusConfirmed: {
		EventComplete: {to: models.StatusCompleted, guard: guardComplete, effect: effectCompleted},
	},
}

// Next returns the status event leads to from the given status, ignoring guards.
func Next(from models.CampaignStatus, ev Event) (models.CampaignStatus, bool) {
	tr, ok := transitions[from][ev]
	return tr.to, ok
}

// Events lists the events defined for a status, sorted.
func Events(from models.CampaignStatus) []Event {
	out := make([]Event, 0, len(transitions[from]))
	for ev := range transitions[from] {
		out = append(out, ev)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// fire applies ev to c inside t. The status write is conditional on c still
// being in its loaded status, so a concurrent transition makes this one fail
// with a StateError instead of overwriting it.
func (e *Engine) fire(t *txn, c *models.Campaign, ev Event, actor *Principal, reason string) error {
	tr, ok := transitions[c.Status][ev]
	if !ok {
		return &StateError{Op: string(ev), Current: c.Status}
	}
	tc := &transitionCtx{t: t, campaign: c, from: c.Status, actor: actor, reason: reason}
	if tr.guard != nil {
		if err := tr.guard(tc); err != nil {
			return err
		}
	}

	res := t.tx.Model(&models.Campaign{}).
		Where("id = ? AND status = ?", c.ID, c.Status).
		Updates(map[string]interface{}{"status": tr.to, "updated_at": t.now})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		cur, err := loadCampaign(t.tx, c.ID)
		if err != nil {
			return err
		}
		return &StateError{Op: string(ev), Current: cur.Status, Reason: "campaign changed concurrently"}
	}
	c.Status = tr.to

	if tr.effect != nil {
		if err := tr.effect(tc); err != nil {
			return err
		}
	}

	from, to := tc.from, tr.to
	t.afterCommit(func() {
		transitionsTotal.WithLabelValues(string(from), string(to)).Inc()
		utils.InfoLogger.WithFields(logrus.Fields{
			"campaign_id": c.ID,
			"from":        from,
			"to":          to,
			"event":       ev,
		}).Info("campaign transition")
	})
	return nil
}

func isOwnerOrAdmin(tc *transitionCtx) bool {
	return tc.actor != nil && (tc.actor.IsAdmin() || tc.actor.UserID == tc.campaign.CreatorID)
}

// ----- guards -----

func guardRecruit(tc *transitionCtx) error {
	if tc.actor == nil || tc.actor.UserID != tc.campaign.CreatorID {
		return fmt.Errorf("%w: only the creator can start recruitment", ErrForbidden)
	}
	return checkActiveLimit(tc.t, tc.campaign.CreatorID)
}

func guardOwnerCancel(tc *transitionCtx) error {
	if !isOwnerOrAdmin(tc) {
		return fmt.Errorf("%w: only the creator can cancel this campaign", ErrForbidden)
	}
	return nil
}

func guardOpenAuction(tc *transitionCtx) error {
	c := tc.campaign
	if tc.actor != nil && !isOwnerOrAdmin(tc) {
		return fmt.Errorf("%w: only the creator can start bidding", ErrForbidden)
	}
	windowReached := c.AuctionStartTime != nil && !tc.t.now.Before(*c.AuctionStartTime)
	if c.CurrentParticipants >= c.MinParticipants || windowReached {
		return nil
	}
	return &StateError{
		Op:      string(EventOpenAuction),
		Current: c.Status,
		Reason:  fmt.Sprintf("%d of %d required participants", c.CurrentParticipants, c.MinParticipants),
	}
}

// guardRecruitingCancel allows the creator at any time, and the sweep once the
// auction start passed without enough participants.
func guardRecruitingCancel(tc *transitionCtx) error {
	if tc.actor != nil {
		return guardOwnerCancel(tc)
	}
	c := tc.campaign
	if c.AuctionStartTime != nil && !tc.t.now.Before(*c.AuctionStartTime) &&
		c.CurrentParticipants < c.MinParticipants {
		return nil
	}
	return &StateError{Op: string(EventCancel), Current: c.Status, Reason: "recruitment deadline not reached"}
}

func auctionEnded(tc *transitionCtx) bool {
	c := tc.campaign
	return c.AuctionEndTime != nil && !tc.t.now.Before(*c.AuctionEndTime)
}

func guardCloseAuction(tc *transitionCtx) error {
	if !auctionEnded(tc) {
		return &StateError{Op: string(EventCloseAuction), Current: tc.campaign.Status, Reason: "auction still open"}
	}
	n, err := bidCount(tc.t, tc.campaign.ID)
	if err != nil {
		return err
	}
	if n == 0 {
		return &StateError{Op: string(EventCloseAuction), Current: tc.campaign.Status, Reason: "no bids"}
	}
	return nil
}

// guardBiddingCancel: an administrator may cancel at any time; otherwise the
// auction must have ended with no bids.
func guardBiddingCancel(tc *transitionCtx) error {
	if tc.actor != nil {
		if tc.actor.IsAdmin() {
			return nil
		}
		return fmt.Errorf("%w: bidding can only be cancelled by an administrator", ErrForbidden)
	}
	if !auctionEnded(tc) {
		return &StateError{Op: string(EventCancel), Current: tc.campaign.Status, Reason: "auction still open"}
	}
	n, err := bidCount(tc.t, tc.campaign.ID)
	if err != nil {
		return err
	}
	if n > 0 {
		return &StateError{Op: string(EventCancel), Current: tc.campaign.Status, Reason: "auction has bids"}
	}
	return nil
}

func guardConfirm(tc *transitionCtx) error {
	met, err := thresholdMet(tc.t, tc.campaign)
	if err != nil {
		return err
	}
	if !met {
		return &StateError{Op: string(EventConfirm), Current: tc.campaign.Status, Reason: "vote threshold not reached"}
	}
	return nil
}

func guardVotingCancel(tc *transitionCtx) error {
	if tc.actor != nil {
		if tc.actor.IsAdmin() {
			return nil
		}
		return fmt.Errorf("%w: voting can only be cancelled by an administrator", ErrForbidden)
	}
	c := tc.campaign
	if c.VoteEndTime == nil || tc.t.now.Before(*c.VoteEndTime) {
		return &StateError{Op: string(EventCancel), Current: c.Status, Reason: "vote still open"}
	}
	met, err := thresholdMet(tc.t, c)
	if err != nil {
		return err
	}
	if met {
		return &StateError{Op: string(EventCancel), Current: c.Status, Reason: "vote threshold reached"}
	}
	return nil
}

func guardComplete(tc *transitionCtx) error {
	if tc.actor == nil {
		return fmt.Errorf("%w: completion must be acknowledged by a user", ErrForbidden)
	}
	if tc.actor.IsAdmin() {
		return nil
	}
	var winner models.Bid
	if tc.campaign.WinningBidID == nil {
		return fmt.Errorf("%w: campaign has no winning bid", ErrForbidden)
	}
	if err := tc.t.tx.First(&winner, *tc.campaign.WinningBidID).Error; err != nil {
		return err
	}
	if winner.SellerID != tc.actor.UserID {
		return fmt.Errorf("%w: only the winning seller can acknowledge fulfillment", ErrForbidden)
	}
	return nil
}

// ----- effects -----

func effectRecruit(tc *transitionCtx) error {
	c := tc.campaign
	p := models.Participant{CampaignID: c.ID, UserID: c.CreatorID}
	if err := tc.t.tx.Create(&p).Error; err != nil {
		return err
	}
	if err := tc.t.tx.Model(&models.Campaign{}).Where("id = ?", c.ID).
		UpdateColumn("current_participants", 1).Error; err != nil {
		return err
	}
	c.CurrentParticipants = 1
	return nil
}

func effectOpenAuction(tc *transitionCtx) error {
	c, now := tc.campaign, tc.t.now
	start := now
	if c.AuctionStartTime != nil && !c.AuctionStartTime.After(now) {
		start = *c.AuctionStartTime
	}
	end := start.Add(tc.t.e.opts.AuctionDuration)
	if c.AuctionEndTime != nil && c.AuctionEndTime.After(start) {
		end = *c.AuctionEndTime
	}
	// A late sweep must not open an auction whose window already closed.
	if !end.After(now) {
		start, end = now, now.Add(tc.t.e.opts.AuctionDuration)
	}
	if err := tc.t.tx.Model(&models.Campaign{}).Where("id = ?", c.ID).
		UpdateColumns(map[string]interface{}{"auction_start_time": start, "auction_end_time": end}).Error; err != nil {
		return err
	}
	c.AuctionStartTime, c.AuctionEndTime = &start, &end

	ids, err := participantIDs(tc.t.tx, c.ID)
	if err != nil {
		return err
	}
	n, err := auctionStartNotification(c)
	if err != nil {
		return err
	}
	return tc.t.notify(ids, n)
}

func effectCloseAuction(tc *transitionCtx) error {
	c, now := tc.campaign, tc.t.now
	bids, err := sortedBids(tc.t.tx, c.ID)
	if err != nil {
		return err
	}
	winner := bids[0]

	if err := tc.t.tx.Model(&models.Bid{}).Where("campaign_id = ? AND id <> ?", c.ID, winner.ID).
		Update("status", models.BidStatusRejected).Error; err != nil {
		return err
	}
	if err := tc.t.tx.Model(&models.Bid{}).Where("id = ?", winner.ID).
		Update("status", models.BidStatusAccepted).Error; err != nil {
		return err
	}

	voteEnd := now.Add(tc.t.e.opts.VoteDuration)
	if err := tc.t.tx.Model(&models.Campaign{}).Where("id = ?", c.ID).
		UpdateColumns(map[string]interface{}{
			"winning_bid_id":  winner.ID,
			"vote_start_time": now,
			"vote_end_time":   voteEnd,
		}).Error; err != nil {
		return err
	}
	c.WinningBidID, c.VoteStartTime, c.VoteEndTime = &winner.ID, &now, &voteEnd

	ids, err := participantIDs(tc.t.tx, c.ID)
	if err != nil {
		return err
	}
	voteStart, err := voteStartNotification(c, winner, len(ids))
	if err != nil {
		return err
	}
	if err := tc.t.notify(ids, voteStart); err != nil {
		return err
	}

	sellers := make([]uint, 0, len(bids))
	for _, b := range bids {
		sellers = append(sellers, b.SellerID)
	}
	auctionEnd, err := auctionEndNotification(c, winner)
	if err != nil {
		return err
	}
	return tc.t.notify(sellers, auctionEnd)
}

func effectConfirmed(tc *transitionCtx) error {
	c := tc.campaign
	ids, err := participantIDs(tc.t.tx, c.ID)
	if err != nil {
		return err
	}
	if c.WinningBidID != nil {
		var winner models.Bid
		if err := tc.t.tx.First(&winner, *c.WinningBidID).Error; err != nil {
			return err
		}
		ids = appendUnique(ids, winner.SellerID)
	}
	n, err := confirmedNotification(c)
	if err != nil {
		return err
	}
	if err := tc.t.notify(ids, n); err != nil {
		return err
	}
	return notifyVoteEnd(tc)
}

func effectCancelled(tc *transitionCtx) error {
	c := tc.campaign
	if c.WinningBidID != nil {
		if err := tc.t.tx.Model(&models.Bid{}).Where("id = ?", *c.WinningBidID).
			Update("status", models.BidStatusRejected).Error; err != nil {
			return err
		}
	}
	ids, err := participantIDs(tc.t.tx, c.ID)
	if err != nil {
		return err
	}
	reason := tc.reason
	if reason == "" {
		reason = cancelReason(tc.from)
	}
	n, err := cancelledNotification(c, reason)
	if err != nil {
		return err
	}
	if err := tc.t.notify(ids, n); err != nil {
		return err
	}
	if tc.from == models.StatusVoting {
		return notifyVoteEnd(tc)
	}
	return nil
}

// notifyVoteEnd tells the winning seller how the vote on their bid ended.
func notifyVoteEnd(tc *transitionCtx) error {
	c := tc.campaign
	if c.WinningBidID == nil {
		return nil
	}
	var winner models.Bid
	if err := tc.t.tx.First(&winner, *c.WinningBidID).Error; err != nil {
		return err
	}
	approvals, err := approvalCount(tc.t, c.ID)
	if err != nil {
		return err
	}
	n, err := voteEndNotification(c, int(approvals), c.CurrentParticipants)
	if err != nil {
		return err
	}
	return tc.t.notify([]uint{winner.SellerID}, n)
}

func effectCompleted(tc *transitionCtx) error {
	c := tc.campaign
	ids, err := participantIDs(tc.t.tx, c.ID)
	if err != nil {
		return err
	}
	n, err := reviewRequestNotification(c)
	if err != nil {
		return err
	}
	return tc.t.notify(ids, n)
}

// ----- helpers -----

func cancelReason(from models.CampaignStatus) string {
	switch from {
	case models.StatusRecruiting:
		return "not enough participants"
	case models.StatusBidding:
		return "no bids received"
	case models.StatusVoting:
		return "vote threshold not reached"
	}
	return "cancelled"
}

func bidCount(t *txn, campaignID uint) (int64, error) {
	var n int64
	err := t.tx.Model(&models.Bid{}).Where("campaign_id = ?", campaignID).Count(&n).Error
	return n, err
}

// thresholdMet reports approvals / participants >= VoteThreshold.
func thresholdMet(t *txn, c *models.Campaign) (bool, error) {
	approvals, err := approvalCount(t, c.ID)
	if err != nil {
		return false, err
	}
	return meetsThreshold(approvals, int64(c.CurrentParticipants), c.VoteThreshold), nil
}

func meetsThreshold(approvals, participants int64, threshold float64) bool {
	if participants <= 0 {
		return false
	}
	return float64(approvals)/float64(participants) >= threshold
}

func approvalCount(t *txn, campaignID uint) (int64, error) {
	var n int64
	err := t.tx.Model(&models.Vote{}).Where("campaign_id = ? AND approved = ?", campaignID, true).Count(&n).Error
	return n, err
}

// checkActiveLimit holds the creator's row lock while counting, so concurrent
// creates and recruitment starts by the same creator are serialized.
func checkActiveLimit(t *txn, creatorID uint) error {
	if err := lockUser(t, creatorID); err != nil {
		return err
	}
	var n int64
	if err := t.tx.Model(&models.Campaign{}).
		Where("creator_id = ? AND status IN ?", creatorID, models.ActiveStatuses).
		Count(&n).Error; err != nil {
		return err
	}
	if int(n) >= t.e.opts.MaxActivePerUser {
		return fmt.Errorf("%w: creator already runs %d active campaigns (limit %d)",
			ErrForbidden, n, t.e.opts.MaxActivePerUser)
	}
	return nil
}

func appendUnique(ids []uint, id uint) []uint {
	for _, v := range ids {
		if v == id {
			return ids
		}
	}
	return append(ids, id)
}

// lowestFirst orders bids by price, then creation time, then id.
func lowestFirst(bids []models.Bid) {
	sort.SliceStable(bids, func(i, j int) bool {
		if c := bids[i].Price.Cmp(bids[j].Price); c != 0 {
			return c < 0
		}
		if !bids[i].CreatedAt.Equal(bids[j].CreatedAt) {
			return bids[i].CreatedAt.Before(bids[j].CreatedAt)
		}
		return bids[i].ID < bids[j].ID
	})
}
