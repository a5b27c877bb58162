package lifecycle

import (
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yeremiapane/groupbuy-app/models"
)

func TestJoinNotifiesCreator(t *testing.T) {
	f := newFixture(t)
	creator := f.user(models.RoleBuyer)
	c := f.campaign(creator)
	buyer := f.user(models.RoleBuyer)

	p, err := f.engine.Join(f.ctx, c.ID, buyer.UserID)
	require.NoError(t, err)
	assert.NotZero(t, p.ID)
	assert.Equal(t, 2, f.reload(c.ID).CurrentParticipants)
	f.assertCounter(c.ID)

	pushed := f.notifier.pushedOf(models.NotifParticipant)
	require.Len(t, pushed, 1)
	assert.Equal(t, creator.UserID, pushed[0].UserID)
	assert.NotZero(t, pushed[0].ID, "pushed notifications are already persisted")

	payload, err := pushed[0].Payload()
	require.NoError(t, err)
	assert.Equal(t, &models.ParticipantPayload{CampaignID: c.ID, UserID: buyer.UserID, CurrentParticipants: 2}, payload)
}

func TestJoinTwiceIsRejected(t *testing.T) {
	f := newFixture(t)
	c := f.campaign(f.user(models.RoleBuyer))
	buyer := f.user(models.RoleBuyer)

	_, err := f.engine.Join(f.ctx, c.ID, buyer.UserID)
	require.NoError(t, err)
	_, err = f.engine.Join(f.ctx, c.ID, buyer.UserID)
	assert.ErrorIs(t, err, ErrAlreadyJoined)

	assert.Equal(t, 2, f.reload(c.ID).CurrentParticipants)
	f.assertCounter(c.ID)
}

func TestJoinUnknownCampaign(t *testing.T) {
	f := newFixture(t)
	_, err := f.engine.Join(f.ctx, 42, f.user(models.RoleBuyer).UserID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestJoinOutsideRecruitingReportsStatus(t *testing.T) {
	f := newFixture(t)
	c, _, _ := f.bidding(1)

	_, err := f.engine.Join(f.ctx, c.ID, f.user(models.RoleBuyer).UserID)
	require.ErrorIs(t, err, ErrInvalidState)
	status, ok := CurrentStatus(err)
	require.True(t, ok)
	assert.Equal(t, models.StatusBidding, status)
}

// Scenario A
func TestJoinFullAfterMaxLowered(t *testing.T) {
	f := newFixture(t)
	creator := f.user(models.RoleBuyer)
	c := f.campaign(creator, func(in *CreateInput) {
		in.MinParticipants = 3
		in.MaxParticipants = 5
	})
	f.join(c.ID, 2)
	assert.Equal(t, 3, f.reload(c.ID).CurrentParticipants)

	require.NoError(t, f.db.Model(&models.Campaign{}).Where("id = ?", c.ID).Update("max_participants", 3).Error)

	_, err := f.engine.Join(f.ctx, c.ID, f.user(models.RoleBuyer).UserID)
	assert.ErrorIs(t, err, ErrFull)
	assert.Equal(t, 3, f.reload(c.ID).CurrentParticipants)
	f.assertCounter(c.ID)
}

func TestConcurrentJoinsNeverExceedMax(t *testing.T) {
	f := newFixture(t)
	const max, attempts = 5, 12
	c := f.campaign(f.user(models.RoleBuyer), func(in *CreateInput) { in.MaxParticipants = max })

	users := make([]Principal, attempts)
	for i := range users {
		users[i] = f.user(models.RoleBuyer)
	}

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		ok   int
		full int
	)
	for _, u := range users {
		wg.Add(1)
		go func(u Principal) {
			defer wg.Done()
			_, err := f.engine.Join(f.ctx, c.ID, u.UserID)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				ok++
			case errors.Is(err, ErrFull):
				full++
			default:
				t.Errorf("unexpected join error: %v", err)
			}
		}(u)
	}
	wg.Wait()

	assert.Equal(t, max-1, ok, "the creator holds one seat")
	assert.Equal(t, attempts-(max-1), full)
	assert.EqualValues(t, max, f.rows(&models.Participant{}, "campaign_id = ?", c.ID))
	f.assertCounter(c.ID)
}

func TestLeave(t *testing.T) {
	f := newFixture(t)
	creator := f.user(models.RoleBuyer)
	c := f.campaign(creator)
	members := f.join(c.ID, 1)

	require.NoError(t, f.engine.Leave(f.ctx, c.ID, members[0].UserID))
	assert.Equal(t, 1, f.reload(c.ID).CurrentParticipants)
	f.assertCounter(c.ID)

	assert.ErrorIs(t, f.engine.Leave(f.ctx, c.ID, members[0].UserID), ErrNotFound)
	assert.ErrorIs(t, f.engine.Leave(f.ctx, c.ID, creator.UserID), ErrForbidden)
	f.assertCounter(c.ID)
}

func TestLeaveAfterRecruitingEnds(t *testing.T) {
	f := newFixture(t)
	c, _, members := f.bidding(2)

	err := f.engine.Leave(f.ctx, c.ID, members[0].UserID)
	assert.ErrorIs(t, err, ErrInvalidState)
	f.assertCounter(c.ID)
}
