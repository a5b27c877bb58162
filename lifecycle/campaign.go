package lifecycle

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/yeremiapane/groupbuy-app/models"
)

// CreateInput describes a new campaign. Draft campaigns start in DRAFT and
// have no participants until recruitment starts.
type CreateInput struct {
	Title            string
	Description      string
	MinParticipants  int
	MaxParticipants  int
	TargetPrice      decimal.Decimal
	VoteThreshold    float64
	AuctionStartTime *time.Time
	AuctionEndTime   *time.Time
	Draft            bool
}

func (in *CreateInput) validate() error {
	switch {
	case strings.TrimSpace(in.Title) == "":
		return fmt.Errorf("%w: title is required", ErrInvalidInput)
	case in.MinParticipants < 1:
		return fmt.Errorf("%w: min participants must be at least 1", ErrInvalidInput)
	case in.MinParticipants > in.MaxParticipants:
		return fmt.Errorf("%w: min participants exceeds max participants", ErrInvalidInput)
	case in.TargetPrice.IsNegative():
		return fmt.Errorf("%w: target price must not be negative", ErrInvalidInput)
	case in.VoteThreshold < 0 || in.VoteThreshold > 1:
		return fmt.Errorf("%w: vote threshold must be a fraction between 0 and 1", ErrInvalidInput)
	case in.AuctionStartTime != nil && in.AuctionEndTime != nil && in.AuctionEndTime.Before(*in.AuctionStartTime):
		return fmt.Errorf("%w: auction end precedes auction start", ErrInvalidInput)
	}
	return nil
}

// Create stores a new campaign owned by actor. A non-draft campaign enters
// RECRUITING directly with the creator as its first participant.
func (e *Engine) Create(ctx context.Context, actor Principal, in CreateInput) (*models.Campaign, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}
	if in.VoteThreshold == 0 {
		in.VoteThreshold = 0.5
	}

	c := &models.Campaign{
		Title:            strings.TrimSpace(in.Title),
		Description:      in.Description,
		Status:           models.StatusDraft,
		CreatorID:        actor.UserID,
		MinParticipants:  in.MinParticipants,
		MaxParticipants:  in.MaxParticipants,
		TargetPrice:      in.TargetPrice,
		VoteThreshold:    in.VoteThreshold,
		AuctionStartTime: utcPtr(in.AuctionStartTime),
		AuctionEndTime:   utcPtr(in.AuctionEndTime),
	}

	err := e.inTx(ctx, "create campaign", func(t *txn) error {
		if err := lockUser(t, actor.UserID); err != nil {
			return err
		}
		if !in.Draft {
			if err := checkActiveLimit(t, actor.UserID); err != nil {
				return err
			}
			c.Status = models.StatusRecruiting
			c.CurrentParticipants = 1
		}
		if err := t.tx.Create(c).Error; err != nil {
			return err
		}
		if !in.Draft {
			return t.tx.Create(&models.Participant{CampaignID: c.ID, UserID: actor.UserID}).Error
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return c, nil
}

func (e *Engine) Get(ctx context.Context, id uint) (*models.Campaign, error) {
	var c models.Campaign
	if err := e.db.WithContext(ctx).Preload("Creator").First(&c, id).Error; err != nil {
		return nil, storeError(fmt.Sprintf("campaign %d", id), err)
	}
	return &c, nil
}

type ListQuery struct {
	Status models.CampaignStatus
	Page   int
	Limit  int
}

type ListResult struct {
	Items []models.Campaign `json:"items"`
	Total int64             `json:"total"`
	Pages int64             `json:"pages"`
	Page  int               `json:"page"`
	Limit int               `json:"limit"`
}

// List returns campaigns newest first, optionally filtered by status.
func (e *Engine) List(ctx context.Context, q ListQuery) (*ListResult, error) {
	if q.Page < 1 {
		q.Page = 1
	}
	if q.Limit < 1 || q.Limit > 100 {
		q.Limit = 10
	}
	if q.Status != "" && !q.Status.Valid() {
		return nil, fmt.Errorf("%w: unknown status %q", ErrInvalidInput, q.Status)
	}

	db := e.db.WithContext(ctx).Model(&models.Campaign{})
	if q.Status != "" {
		db = db.Where("status = ?", q.Status)
	}

	var total int64
	if err := db.Count(&total).Error; err != nil {
		return nil, storeError("list campaigns", err)
	}

	res := &ListResult{Total: total, Page: q.Page, Limit: q.Limit}
	res.Pages = (total + int64(q.Limit) - 1) / int64(q.Limit)
	if err := db.Preload("Creator").
		Order("created_at DESC, id DESC").
		Offset((q.Page - 1) * q.Limit).
		Limit(q.Limit).
		Find(&res.Items).Error; err != nil {
		return nil, storeError("list campaigns", err)
	}
	return res, nil
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}
