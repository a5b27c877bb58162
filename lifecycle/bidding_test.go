package lifecycle

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yeremiapane/groupbuy-app/models"
)

func TestPlaceBidRequiresSeller(t *testing.T) {
	f := newFixture(t)
	c, creator, _ := f.bidding(1)

	_, _, err := f.engine.PlaceBid(f.ctx, c.ID, creator, decimal.NewFromInt(1000), "")
	assert.ErrorIs(t, err, ErrForbidden)
}

func TestPlaceBidRejectsNonPositivePrice(t *testing.T) {
	f := newFixture(t)
	c, _, _ := f.bidding(1)

	_, _, err := f.engine.PlaceBid(f.ctx, c.ID, f.user(models.RoleSeller), decimal.Zero, "")
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestPlaceBidOutsideBidding(t *testing.T) {
	f := newFixture(t)
	c := f.campaign(f.user(models.RoleBuyer))

	_, _, err := f.engine.PlaceBid(f.ctx, c.ID, f.user(models.RoleSeller), decimal.NewFromInt(1000), "")
	require.ErrorIs(t, err, ErrInvalidState)
	status, _ := CurrentStatus(err)
	assert.Equal(t, models.StatusRecruiting, status)
}

func TestPlaceBidAfterAuctionWindow(t *testing.T) {
	f := newFixture(t)
	c, _, _ := f.bidding(1)
	f.clock.Advance(4 * time.Hour)

	_, _, err := f.engine.PlaceBid(f.ctx, c.ID, f.user(models.RoleSeller), decimal.NewFromInt(1000), "")
	assert.ErrorIs(t, err, ErrInvalidState)
	assert.EqualValues(t, 0, f.rows(&models.Bid{}, "campaign_id = ?", c.ID))
}

// Scenario D
func TestRebidUpdatesSingleRow(t *testing.T) {
	f := newFixture(t)
	c, _, _ := f.bidding(1)
	seller := f.user(models.RoleSeller)

	first, created, err := f.engine.PlaceBid(f.ctx, c.ID, seller, decimal.NewFromInt(1000), "first")
	require.NoError(t, err)
	assert.True(t, created)

	f.clock.Advance(time.Minute)
	second, created, err := f.engine.PlaceBid(f.ctx, c.ID, seller, decimal.NewFromInt(900), "cheaper")
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, first.ID, second.ID)

	var bids []models.Bid
	require.NoError(t, f.db.Where("campaign_id = ?", c.ID).Find(&bids).Error)
	require.Len(t, bids, 1)
	assert.True(t, decimal.NewFromInt(900).Equal(bids[0].Price))
	assert.Equal(t, "cheaper", bids[0].Description)
}

func TestListBidsLowestFirst(t *testing.T) {
	f := newFixture(t)
	c, _, _ := f.bidding(1)

	prices := []int64{1200, 900, 1000}
	for _, p := range prices {
		_, _, err := f.engine.PlaceBid(f.ctx, c.ID, f.user(models.RoleSeller), decimal.NewFromInt(p), "")
		require.NoError(t, err)
	}

	bids, err := f.engine.ListBids(f.ctx, c.ID)
	require.NoError(t, err)
	require.Len(t, bids, 3)
	assert.True(t, decimal.NewFromInt(900).Equal(bids[0].Price))
	assert.True(t, decimal.NewFromInt(1000).Equal(bids[1].Price))
	assert.True(t, decimal.NewFromInt(1200).Equal(bids[2].Price))
	assert.NotNil(t, bids[0].Seller)

	_, err = f.engine.ListBids(f.ctx, 999)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestLowestFirstBreaksTiesByCreation(t *testing.T) {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	bids := []models.Bid{
		{ID: 3, Price: decimal.NewFromInt(500), CreatedAt: base.Add(2 * time.Second)},
		{ID: 1, Price: decimal.NewFromInt(500), CreatedAt: base.Add(time.Second)},
		{ID: 2, Price: decimal.NewFromInt(700), CreatedAt: base},
	}
	lowestFirst(bids)
	assert.Equal(t, []uint{1, 3, 2}, []uint{bids[0].ID, bids[1].ID, bids[2].ID})
}

func TestAuctionCloseSelectsLowestBid(t *testing.T) {
	f := newFixture(t)
	c, _, members := f.bidding(2)
	cheap, pricey := f.user(models.RoleSeller), f.user(models.RoleSeller)

	_, _, err := f.engine.PlaceBid(f.ctx, c.ID, pricey, decimal.NewFromInt(48000), "")
	require.NoError(t, err)
	winner, _, err := f.engine.PlaceBid(f.ctx, c.ID, cheap, decimal.NewFromInt(45000), "")
	require.NoError(t, err)

	f.clock.Advance(3*time.Hour + time.Second)
	_, err = f.engine.EvaluateDeadlines(f.ctx)
	require.NoError(t, err)

	got := f.reload(c.ID)
	assert.Equal(t, models.StatusVoting, got.Status)
	require.NotNil(t, got.WinningBidID)
	assert.Equal(t, winner.ID, *got.WinningBidID)
	require.NotNil(t, got.VoteEndTime)
	assert.True(t, got.VoteEndTime.Equal(f.clock.Now().Add(24*time.Hour)))

	assert.EqualValues(t, 1, f.rows(&models.Bid{}, "campaign_id = ? AND status = ?", c.ID, models.BidStatusAccepted))
	assert.EqualValues(t, 1, f.rows(&models.Bid{}, "campaign_id = ? AND status = ?", c.ID, models.BidStatusRejected))

	assert.Len(t, f.notifier.pushedOf(models.NotifVoteStart), len(members)+1)
	assert.Len(t, f.notifier.pushedOf(models.NotifAuctionEnd), 2)
}

func TestBidsInTheSameInstantAllLand(t *testing.T) {
	f := newFixture(t)
	c, _, _ := f.bidding(1)
	before := f.reload(c.ID)

	// The clock does not move between bids.
	for i := 0; i < 3; i++ {
		_, created, err := f.engine.PlaceBid(f.ctx, c.ID, f.user(models.RoleSeller), decimal.NewFromInt(int64(40000+i)), "")
		require.NoError(t, err)
		assert.True(t, created)
	}
	assert.EqualValues(t, 3, f.rows(&models.Bid{}, "campaign_id = ?", c.ID))
	assert.True(t, f.reload(c.ID).UpdatedAt.Equal(before.UpdatedAt), "bidding does not write the campaign row")
}
