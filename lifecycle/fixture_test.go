package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"github.com/yeremiapane/groupbuy-app/database"
	"github.com/yeremiapane/groupbuy-app/models"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// recordingNotifier persists like the real pipeline and records pushes.
type recordingNotifier struct {
	mu        sync.Mutex
	pushed    []*models.Notification
	failTypes map[models.NotificationType]bool
}

func (r *recordingNotifier) Persist(tx *gorm.DB, n *models.Notification) error {
	if r.failTypes[n.Type] {
		return errors.New("notification store unavailable")
	}
	return tx.Create(n).Error
}

func (r *recordingNotifier) Push(n *models.Notification) {
	r.mu.Lock()
	r.pushed = append(r.pushed, n)
	r.mu.Unlock()
}

func (r *recordingNotifier) pushedOf(typ models.NotificationType) []*models.Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*models.Notification
	for _, n := range r.pushed {
		if n.Type == typ {
			out = append(out, n)
		}
	}
	return out
}

type fixture struct {
	t        *testing.T
	ctx      context.Context
	db       *gorm.DB
	clock    *fakeClock
	notifier *recordingNotifier
	engine   *Engine
	users    int
}

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		TranslateError: true,
		Logger:         logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })
	require.NoError(t, database.Migrate(db))
	return db
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		t:        t,
		ctx:      context.Background(),
		db:       openTestDB(t),
		clock:    &fakeClock{now: time.Date(2026, 1, 5, 10, 0, 0, 0, time.UTC)},
		notifier: &recordingNotifier{},
	}
	f.engine = NewEngine(f.db, f.notifier, Options{
		AuctionDuration:    48 * time.Hour,
		VoteDuration:       24 * time.Hour,
		VoteReminderWindow: time.Hour,
		MaxActivePerUser:   2,
		Now:                f.clock.Now,
	})
	return f
}

func (f *fixture) user(role string) Principal {
	f.t.Helper()
	f.users++
	u := models.User{
		Name:     fmt.Sprintf("user %d", f.users),
		Email:    fmt.Sprintf("user%d@example.com", f.users),
		Password: "x",
		Role:     role,
	}
	require.NoError(f.t, f.db.Create(&u).Error)
	return Principal{UserID: u.ID, Role: u.Role}
}

func (f *fixture) input(mods ...func(*CreateInput)) CreateInput {
	start := f.clock.Now().Add(time.Hour)
	end := f.clock.Now().Add(3 * time.Hour)
	in := CreateInput{
		Title:            "Bulk coffee beans",
		Description:      "10kg of single-origin beans",
		MinParticipants:  2,
		MaxParticipants:  5,
		TargetPrice:      decimal.NewFromInt(50000),
		VoteThreshold:    0.5,
		AuctionStartTime: &start,
		AuctionEndTime:   &end,
	}
	for _, m := range mods {
		m(&in)
	}
	return in
}

func (f *fixture) campaign(creator Principal, mods ...func(*CreateInput)) *models.Campaign {
	f.t.Helper()
	c, err := f.engine.Create(f.ctx, creator, f.input(mods...))
	require.NoError(f.t, err)
	return c
}

func (f *fixture) reload(id uint) models.Campaign {
	f.t.Helper()
	var c models.Campaign
	require.NoError(f.t, f.db.First(&c, id).Error)
	return c
}

func (f *fixture) join(id uint, n int) []Principal {
	f.t.Helper()
	out := make([]Principal, 0, n)
	for i := 0; i < n; i++ {
		u := f.user(models.RoleBuyer)
		_, err := f.engine.Join(f.ctx, id, u.UserID)
		require.NoError(f.t, err)
		out = append(out, u)
	}
	return out
}

// bidding returns a campaign in BIDDING with the creator plus joiners.
func (f *fixture) bidding(joiners int, mods ...func(*CreateInput)) (*models.Campaign, Principal, []Principal) {
	f.t.Helper()
	creator := f.user(models.RoleBuyer)
	c := f.campaign(creator, mods...)
	members := f.join(c.ID, joiners)
	c, err := f.engine.StartBidding(f.ctx, c.ID, creator)
	require.NoError(f.t, err)
	require.Equal(f.t, models.StatusBidding, c.Status)
	return c, creator, members
}

// voting returns a campaign in VOTING whose only bid came from seller.
func (f *fixture) voting(joiners int, mods ...func(*CreateInput)) (*models.Campaign, Principal, []Principal, Principal) {
	f.t.Helper()
	c, creator, members := f.bidding(joiners, mods...)
	seller := f.user(models.RoleSeller)
	_, _, err := f.engine.PlaceBid(f.ctx, c.ID, seller, decimal.NewFromInt(45000), "fresh roast")
	require.NoError(f.t, err)

	f.clock.Advance(3*time.Hour + time.Second)
	report, err := f.engine.EvaluateDeadlines(f.ctx)
	require.NoError(f.t, err)
	require.Equal(f.t, 1, report.Transitions)

	got := f.reload(c.ID)
	require.Equal(f.t, models.StatusVoting, got.Status)
	return &got, creator, members, seller
}

func (f *fixture) rows(model interface{}, query string, args ...interface{}) int64 {
	f.t.Helper()
	var n int64
	require.NoError(f.t, f.db.Model(model).Where(query, args...).Count(&n).Error)
	return n
}

// assertCounter checks the denormalized counter against the participant rows.
func (f *fixture) assertCounter(id uint) {
	f.t.Helper()
	c := f.reload(id)
	require.EqualValues(f.t, f.rows(&models.Participant{}, "campaign_id = ?", id), c.CurrentParticipants,
		"current_participants must equal participant rows")
}
