// Package lifecycle implements the campaign state machine: guarded
// transitions, participant counters, bid and vote tallies, and the
// notifications each of them emits.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/yeremiapane/groupbuy-app/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Principal is the authenticated caller.
type Principal struct {
	UserID uint
	Role   string
}

func (p Principal) IsAdmin() bool { return p.Role == models.RoleAdmin }

// Notifier persists notifications inside the lifecycle transaction and pushes
// them once it has committed. *notify.Pipeline implements it.
type Notifier interface {
	Persist(tx *gorm.DB, n *models.Notification) error
	Push(n *models.Notification)
}

type Options struct {
	AuctionDuration    time.Duration
	VoteDuration       time.Duration
	VoteReminderWindow time.Duration
	MaxActivePerUser   int
	Now                func() time.Time
}

func (o *Options) setDefaults() {
	if o.AuctionDuration <= 0 {
		o.AuctionDuration = 48 * time.Hour
	}
	if o.VoteDuration <= 0 {
		o.VoteDuration = 24 * time.Hour
	}
	if o.VoteReminderWindow <= 0 {
		o.VoteReminderWindow = time.Hour
	}
	if o.MaxActivePerUser <= 0 {
		o.MaxActivePerUser = 2
	}
	if o.Now == nil {
		o.Now = time.Now
	}
}

type Engine struct {
	db       *gorm.DB
	notifier Notifier
	opts     Options
}

func NewEngine(db *gorm.DB, notifier Notifier, opts Options) *Engine {
	opts.setDefaults()
	return &Engine{db: db, notifier: notifier, opts: opts}
}

func (e *Engine) now() time.Time {
	return e.opts.Now().UTC()
}

// txn is one lifecycle transaction. Notifications are written through tx and
// pushed only after commit.
type txn struct {
	tx       *gorm.DB
	e        *Engine
	now      time.Time
	pending  []*models.Notification
	onCommit []func()
}

func (t *txn) notify(userIDs []uint, tmpl models.Notification) error {
	for _, userID := range userIDs {
		n := tmpl
		n.UserID = userID
		if err := t.e.notifier.Persist(t.tx, &n); err != nil {
			return err
		}
		t.pending = append(t.pending, &n)
	}
	return nil
}

func (t *txn) afterCommit(fn func()) {
	t.onCommit = append(t.onCommit, fn)
}

// inTx runs fn in a transaction. A returned error rolls back every write fn
// made, including notification rows.
func (e *Engine) inTx(ctx context.Context, op string, fn func(t *txn) error) (err error) {
	tx := e.db.WithContext(ctx).Begin()
	if tx.Error != nil {
		return storeError(op, tx.Error)
	}
	defer func() {
		if r := recover(); r != nil {
			tx.Rollback()
			panic(r)
		}
	}()

	t := &txn{tx: tx, e: e, now: e.now()}
	if err := fn(t); err != nil {
		tx.Rollback()
		return storeError(op, err)
	}
	if err := tx.Commit().Error; err != nil {
		return storeError(op, err)
	}

	for _, fn := range t.onCommit {
		fn()
	}
	for _, n := range t.pending {
		e.notifier.Push(n)
	}
	return nil
}

func loadCampaign(tx *gorm.DB, id uint) (*models.Campaign, error) {
	var c models.Campaign
	if err := tx.First(&c, id).Error; err != nil {
		return nil, fmt.Errorf("campaign %d: %w", id, err)
	}
	return &c, nil
}

// lockCampaign loads the campaign with a row lock and checks it is in want.
// Engines without row locks (SQLite) serialize through the single writer.
func lockCampaign(t *txn, id uint, op string, want models.CampaignStatus) (*models.Campaign, error) {
	var c models.Campaign
	if err := t.tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&c, id).Error; err != nil {
		return nil, fmt.Errorf("campaign %d: %w", id, err)
	}
	if c.Status != want {
		return nil, &StateError{Op: op, Current: c.Status}
	}
	return &c, nil
}

// lockUser takes the user row lock that serializes a creator's active
// campaign count. A missing user has no valid session.
func lockUser(t *txn, userID uint) error {
	var u models.User
	err := t.tx.Clauses(clause.Locking{Strength: "UPDATE"}).Select("id").First(&u, userID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("user %d: %w", userID, ErrUnauthorized)
	}
	return err
}

func participantIDs(tx *gorm.DB, campaignID uint) ([]uint, error) {
	var ids []uint
	err := tx.Model(&models.Participant{}).
		Where("campaign_id = ?", campaignID).
		Order("id ASC").
		Pluck("user_id", &ids).Error
	return ids, err
}

func isParticipant(tx *gorm.DB, campaignID, userID uint) (bool, error) {
	var n int64
	err := tx.Model(&models.Participant{}).
		Where("campaign_id = ? AND user_id = ?", campaignID, userID).
		Count(&n).Error
	return n > 0, err
}
