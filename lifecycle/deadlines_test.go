package lifecycle

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yeremiapane/groupbuy-app/models"
)

func TestDeadlineOpensAuctionWhenMinimumReached(t *testing.T) {
	f := newFixture(t)
	c := f.campaign(f.user(models.RoleBuyer))
	f.join(c.ID, 1)

	f.clock.Advance(time.Hour)
	report, err := f.engine.EvaluateDeadlines(f.ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Transitions)

	got := f.reload(c.ID)
	assert.Equal(t, models.StatusBidding, got.Status)
	require.NotNil(t, got.AuctionEndTime)
	assert.True(t, got.AuctionEndTime.Equal(c.AuctionEndTime.UTC()))
	assert.Len(t, f.notifier.pushedOf(models.NotifAuctionStart), 2)
}

func TestDeadlineCancelsUnderfilledRecruitment(t *testing.T) {
	f := newFixture(t)
	c := f.campaign(f.user(models.RoleBuyer), func(in *CreateInput) { in.MinParticipants = 3 })
	f.join(c.ID, 1)

	f.clock.Advance(time.Hour)
	_, err := f.engine.EvaluateDeadlines(f.ctx)
	require.NoError(t, err)

	assert.Equal(t, models.StatusCancelled, f.reload(c.ID).Status)
	cancelled := f.notifier.pushedOf(models.NotifGroupCanceled)
	require.Len(t, cancelled, 2)
	payload, err := cancelled[0].Payload()
	require.NoError(t, err)
	assert.Equal(t, "not enough participants", payload.(*models.OutcomePayload).Reason)
}

// Scenario B
func TestDeadlineCancelsAuctionWithoutBids(t *testing.T) {
	f := newFixture(t)
	c, _, _ := f.bidding(2)

	f.clock.Advance(3*time.Hour + time.Second)
	report, err := f.engine.EvaluateDeadlines(f.ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Transitions)

	got := f.reload(c.ID)
	assert.Equal(t, models.StatusCancelled, got.Status)
	assert.EqualValues(t, got.CurrentParticipants,
		f.rows(&models.Notification{}, "type = ?", models.NotifGroupCanceled),
		"one GROUP_CANCELED per participant")
}

func TestEvaluateDeadlinesIsIdempotent(t *testing.T) {
	f := newFixture(t)
	f.bidding(2)
	f.clock.Advance(3*time.Hour + time.Second)

	_, err := f.engine.EvaluateDeadlines(f.ctx)
	require.NoError(t, err)
	before := f.rows(&models.Notification{}, "1 = 1")

	report, err := f.engine.EvaluateDeadlines(f.ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, report.Transitions)
	assert.Equal(t, before, f.rows(&models.Notification{}, "1 = 1"))
}

func TestDeadlineLeavesOpenCampaignsAlone(t *testing.T) {
	f := newFixture(t)
	c, _, _ := f.bidding(1)

	report, err := f.engine.EvaluateDeadlines(f.ctx)
	require.NoError(t, err)
	assert.Equal(t, SweepReport{}, report)
	assert.Equal(t, models.StatusBidding, f.reload(c.ID).Status)
}

func TestVoteDeadlineCancelsWithoutMajority(t *testing.T) {
	f := newFixture(t)
	c, _, members, _ := f.voting(3)
	_, err := f.engine.CastVote(f.ctx, c.ID, members[0].UserID, true)
	require.NoError(t, err)

	f.clock.Advance(24*time.Hour + time.Second)
	_, err = f.engine.EvaluateDeadlines(f.ctx)
	require.NoError(t, err)

	got := f.reload(c.ID)
	assert.Equal(t, models.StatusCancelled, got.Status)
	var winner models.Bid
	require.NoError(t, f.db.First(&winner, *got.WinningBidID).Error)
	assert.Equal(t, models.BidStatusRejected, winner.Status)
}

func TestVoteReminderSentOnceToNonVoters(t *testing.T) {
	f := newFixture(t)
	c, creator, members, _ := f.voting(1)
	_, err := f.engine.CastVote(f.ctx, c.ID, creator.UserID, false)
	require.NoError(t, err)

	f.clock.Advance(23*time.Hour + 30*time.Minute)
	report, err := f.engine.EvaluateDeadlines(f.ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Reminders)

	reminders := f.notifier.pushedOf(models.NotifVoteReminder)
	require.Len(t, reminders, 1)
	assert.Equal(t, members[0].UserID, reminders[0].UserID)

	report, err = f.engine.EvaluateDeadlines(f.ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, report.Reminders)
	assert.Len(t, f.notifier.pushedOf(models.NotifVoteReminder), 1)
}

func TestLateSweepOpensAFreshAuctionWindow(t *testing.T) {
	f := newFixture(t)
	c := f.campaign(f.user(models.RoleBuyer))
	f.join(c.ID, 1)

	// Both auction boundaries pass before the sweep runs.
	f.clock.Advance(4 * time.Hour)
	report, err := f.engine.EvaluateDeadlines(f.ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Transitions)

	now := f.clock.Now()
	got := f.reload(c.ID)
	require.Equal(t, models.StatusBidding, got.Status)
	assert.True(t, got.AuctionStartTime.Equal(now))
	assert.True(t, got.AuctionEndTime.Equal(now.Add(48*time.Hour)))

	_, created, err := f.engine.PlaceBid(f.ctx, c.ID, f.user(models.RoleSeller), decimal.NewFromInt(40000), "")
	require.NoError(t, err)
	assert.True(t, created)

	report, err = f.engine.EvaluateDeadlines(f.ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, report.Transitions)
	assert.Equal(t, models.StatusBidding, f.reload(c.ID).Status)
}

func TestVoteRejectionTellsSeller(t *testing.T) {
	f := newFixture(t)
	c, _, _, seller := f.voting(1)

	f.clock.Advance(24*time.Hour + time.Second)
	_, err := f.engine.EvaluateDeadlines(f.ctx)
	require.NoError(t, err)
	require.Equal(t, models.StatusCancelled, f.reload(c.ID).Status)

	ended := f.notifier.pushedOf(models.NotifVoteEnd)
	require.Len(t, ended, 1)
	assert.Equal(t, seller.UserID, ended[0].UserID)
	assert.Contains(t, ended[0].Message, "rejected")
}

// At the vote deadline the sweep, a deciding vote and an admin cancel all
// race; exactly one of them may end the campaign.
func TestSweepRacesUserTransitionsAtVoteDeadline(t *testing.T) {
	for round := 0; round < 8; round++ {
		t.Run(fmt.Sprintf("round %d", round), func(t *testing.T) {
			f := newFixture(t)
			c, creator, members, seller := f.voting(3)
			_, err := f.engine.CastVote(f.ctx, c.ID, creator.UserID, true)
			require.NoError(t, err)
			admin := f.user(models.RoleAdmin)
			f.clock.Advance(c.VoteEndTime.Sub(f.clock.Now()))

			var (
				wg                 sync.WaitGroup
				voteErr, cancelErr error
				report             SweepReport
				sweepErr           error
			)
			start := make(chan struct{})
			wg.Add(3)
			go func() {
				defer wg.Done()
				<-start
				_, voteErr = f.engine.CastVote(f.ctx, c.ID, members[0].UserID, true)
			}()
			go func() {
				defer wg.Done()
				<-start
				_, cancelErr = f.engine.Cancel(f.ctx, c.ID, admin, "stopped by admin")
			}()
			go func() {
				defer wg.Done()
				<-start
				report, sweepErr = f.engine.EvaluateDeadlines(f.ctx)
			}()
			close(start)
			wg.Wait()

			require.NoError(t, sweepErr)
			winners := report.Transitions
			for _, err := range []error{voteErr, cancelErr} {
				if err == nil {
					winners++
					continue
				}
				assert.ErrorIs(t, err, ErrInvalidState)
			}
			assert.Equal(t, 1, winners, "exactly one terminal transition")

			got := f.reload(c.ID)
			require.Contains(t, []models.CampaignStatus{models.StatusConfirmed, models.StatusCancelled}, got.Status)
			assert.Equal(t, got.Status == models.StatusConfirmed, voteErr == nil)

			outcome := []models.NotificationType{models.NotifGroupConfirmed, models.NotifGroupCanceled}
			for _, u := range append([]Principal{creator}, members...) {
				assert.EqualValues(t, 1, f.rows(&models.Notification{}, "user_id = ? AND type IN ?", u.UserID, outcome),
					"user %d", u.UserID)
			}
			sellerOutcome := int64(0)
			if got.Status == models.StatusConfirmed {
				sellerOutcome = 1
			}
			assert.Equal(t, sellerOutcome, f.rows(&models.Notification{}, "user_id = ? AND type IN ?", seller.UserID, outcome))
			assert.EqualValues(t, 1, f.rows(&models.Notification{}, "type = ?", models.NotifVoteEnd))
		})
	}
}
