package lifecycle

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yeremiapane/groupbuy-app/models"
)

func TestCreateStartsRecruitingWithCreator(t *testing.T) {
	f := newFixture(t)
	creator := f.user(models.RoleBuyer)

	c := f.campaign(creator)

	assert.Equal(t, models.StatusRecruiting, c.Status)
	assert.Equal(t, 1, c.CurrentParticipants)
	assert.EqualValues(t, 1, f.rows(&models.Participant{}, "campaign_id = ? AND user_id = ?", c.ID, creator.UserID))
	f.assertCounter(c.ID)
}

func TestCreateDraftHasNoParticipants(t *testing.T) {
	f := newFixture(t)
	creator := f.user(models.RoleBuyer)

	c := f.campaign(creator, func(in *CreateInput) { in.Draft = true })

	assert.Equal(t, models.StatusDraft, c.Status)
	assert.Equal(t, 0, c.CurrentParticipants)
	f.assertCounter(c.ID)
}

func TestCreateValidatesInput(t *testing.T) {
	f := newFixture(t)
	creator := f.user(models.RoleBuyer)

	cases := map[string]func(*CreateInput){
		"empty title":    func(in *CreateInput) { in.Title = "  " },
		"zero minimum":   func(in *CreateInput) { in.MinParticipants = 0 },
		"min above max":  func(in *CreateInput) { in.MinParticipants = 6 },
		"threshold > 1":  func(in *CreateInput) { in.VoteThreshold = 1.5 },
		"negative price": func(in *CreateInput) { in.TargetPrice = decimal.NewFromInt(-1) },
		"end before start": func(in *CreateInput) {
			e := in.AuctionStartTime.Add(-time.Hour)
			in.AuctionEndTime = &e
		},
	}
	for name, mod := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := f.engine.Create(f.ctx, creator, f.input(mod))
			assert.ErrorIs(t, err, ErrInvalidInput)
		})
	}
	assert.EqualValues(t, 0, f.rows(&models.Campaign{}, "1 = 1"))
}

func TestCreateDefaultsThreshold(t *testing.T) {
	f := newFixture(t)
	c := f.campaign(f.user(models.RoleBuyer), func(in *CreateInput) { in.VoteThreshold = 0 })
	assert.Equal(t, 0.5, c.VoteThreshold)
}

func TestActiveCampaignCap(t *testing.T) {
	f := newFixture(t)
	creator := f.user(models.RoleBuyer)

	f.campaign(creator)
	f.campaign(creator)

	_, err := f.engine.Create(f.ctx, creator, f.input())
	assert.ErrorIs(t, err, ErrForbidden)

	// Drafts do not count and can still be created.
	draft := f.campaign(creator, func(in *CreateInput) { in.Draft = true })
	_, err = f.engine.StartRecruitment(f.ctx, draft.ID, creator)
	assert.ErrorIs(t, err, ErrForbidden)
	assert.Equal(t, models.StatusDraft, f.reload(draft.ID).Status)
}

func TestStartRecruitmentFromDraft(t *testing.T) {
	f := newFixture(t)
	creator := f.user(models.RoleBuyer)
	draft := f.campaign(creator, func(in *CreateInput) { in.Draft = true })

	_, err := f.engine.StartRecruitment(f.ctx, draft.ID, f.user(models.RoleBuyer))
	assert.ErrorIs(t, err, ErrForbidden)

	c, err := f.engine.StartRecruitment(f.ctx, draft.ID, creator)
	require.NoError(t, err)
	assert.Equal(t, models.StatusRecruiting, c.Status)
	f.assertCounter(draft.ID)
	assert.Equal(t, 1, f.reload(draft.ID).CurrentParticipants)
}

func TestGetUnknownCampaign(t *testing.T) {
	f := newFixture(t)
	_, err := f.engine.Get(f.ctx, 999)
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestListPaginatesAndFilters(t *testing.T) {
	f := newFixture(t)
	for i := 0; i < 3; i++ {
		f.campaign(f.user(models.RoleBuyer))
	}
	f.campaign(f.user(models.RoleBuyer), func(in *CreateInput) { in.Draft = true })

	res, err := f.engine.List(f.ctx, ListQuery{Page: 1, Limit: 2})
	require.NoError(t, err)
	assert.EqualValues(t, 4, res.Total)
	assert.EqualValues(t, 2, res.Pages)
	assert.Len(t, res.Items, 2)

	res, err = f.engine.List(f.ctx, ListQuery{Status: models.StatusDraft})
	require.NoError(t, err)
	assert.EqualValues(t, 1, res.Total)
	require.Len(t, res.Items, 1)
	assert.NotNil(t, res.Items[0].Creator)

	_, err = f.engine.List(f.ctx, ListQuery{Status: "SOMETHING"})
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestCreateByUnknownUserIsUnauthorized(t *testing.T) {
	f := newFixture(t)
	_, err := f.engine.Create(f.ctx, Principal{UserID: 999, Role: models.RoleBuyer}, f.input())
	assert.ErrorIs(t, err, ErrUnauthorized)
	assert.EqualValues(t, 0, f.rows(&models.Campaign{}, "1 = 1"))
}

func TestConcurrentRecruitmentStartsRespectActiveCap(t *testing.T) {
	f := newFixture(t)
	creator := f.user(models.RoleBuyer)
	f.campaign(creator)

	drafts := make([]*models.Campaign, 3)
	for i := range drafts {
		drafts[i] = f.campaign(creator, func(in *CreateInput) { in.Draft = true })
	}

	errs := make([]error, len(drafts))
	var wg sync.WaitGroup
	start := make(chan struct{})
	for i, d := range drafts {
		wg.Add(1)
		go func(i int, id uint) {
			defer wg.Done()
			<-start
			_, errs[i] = f.engine.StartRecruitment(f.ctx, id, creator)
		}(i, d.ID)
	}
	close(start)
	wg.Wait()

	started := 0
	for _, err := range errs {
		if err == nil {
			started++
			continue
		}
		assert.ErrorIs(t, err, ErrForbidden)
	}
	assert.Equal(t, 1, started)
	assert.EqualValues(t, 2, f.rows(&models.Campaign{}, "creator_id = ? AND status IN ?", creator.UserID, models.ActiveStatuses))
}
