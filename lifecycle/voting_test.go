package lifecycle

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yeremiapane/groupbuy-app/models"
)

// Scenario C
func TestVoteConfirmsAsSoonAsThresholdIsMet(t *testing.T) {
	f := newFixture(t)
	c, creator, members, seller := f.voting(3)
	require.Equal(t, 4, c.CurrentParticipants)

	res, err := f.engine.CastVote(f.ctx, c.ID, creator.UserID, true)
	require.NoError(t, err)
	assert.False(t, res.Confirmed)
	assert.Equal(t, models.StatusVoting, res.Status)
	assert.EqualValues(t, 1, res.Approvals)

	res, err = f.engine.CastVote(f.ctx, c.ID, members[0].UserID, true)
	require.NoError(t, err)
	assert.True(t, res.Confirmed)
	assert.Equal(t, models.StatusConfirmed, res.Status)
	assert.Equal(t, models.StatusConfirmed, f.reload(c.ID).Status)

	confirmed := f.notifier.pushedOf(models.NotifGroupConfirmed)
	recipients := map[uint]bool{}
	for _, n := range confirmed {
		recipients[n.UserID] = true
	}
	assert.Len(t, confirmed, 5, "four participants and the winning seller")
	assert.True(t, recipients[seller.UserID])

	// Voting is over once confirmed.
	_, err = f.engine.CastVote(f.ctx, c.ID, members[1].UserID, true)
	assert.ErrorIs(t, err, ErrInvalidState)
}

func TestVoteRejectsNonParticipant(t *testing.T) {
	f := newFixture(t)
	c, _, _, seller := f.voting(1)

	_, err := f.engine.CastVote(f.ctx, c.ID, seller.UserID, true)
	assert.ErrorIs(t, err, ErrForbidden)
}

func TestVoteTwiceIsRejected(t *testing.T) {
	f := newFixture(t)
	c, _, members, _ := f.voting(3)

	_, err := f.engine.CastVote(f.ctx, c.ID, members[0].UserID, false)
	require.NoError(t, err)
	_, err = f.engine.CastVote(f.ctx, c.ID, members[0].UserID, true)
	assert.ErrorIs(t, err, ErrAlreadyVoted)
	assert.EqualValues(t, 1, f.rows(&models.Vote{}, "campaign_id = ?", c.ID))
}

func TestVoteOutsideVoting(t *testing.T) {
	f := newFixture(t)
	c, creator, _ := f.bidding(1)

	_, err := f.engine.CastVote(f.ctx, c.ID, creator.UserID, true)
	require.ErrorIs(t, err, ErrInvalidState)
	status, _ := CurrentStatus(err)
	assert.Equal(t, models.StatusBidding, status)
}

func TestMeetsThreshold(t *testing.T) {
	assert.True(t, meetsThreshold(2, 4, 0.5))
	assert.False(t, meetsThreshold(1, 4, 0.5))
	assert.True(t, meetsThreshold(3, 3, 1))
	assert.False(t, meetsThreshold(0, 0, 0.5))
}

func TestSellerIsToldHowTheVoteEnded(t *testing.T) {
	f := newFixture(t)
	c, creator, members, seller := f.voting(3)
	_, err := f.engine.CastVote(f.ctx, c.ID, creator.UserID, true)
	require.NoError(t, err)
	require.Empty(t, f.notifier.pushedOf(models.NotifVoteEnd))

	_, err = f.engine.CastVote(f.ctx, c.ID, members[0].UserID, true)
	require.NoError(t, err)

	ended := f.notifier.pushedOf(models.NotifVoteEnd)
	require.Len(t, ended, 1)
	assert.Equal(t, seller.UserID, ended[0].UserID)
	p, err := ended[0].Payload()
	require.NoError(t, err)
	tally := p.(*models.VotePayload)
	assert.Equal(t, 2, tally.CurrentVotes)
	assert.Equal(t, 4, tally.TotalVotes)
	assert.Contains(t, ended[0].Message, "approved")
}
