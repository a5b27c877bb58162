package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type CampaignStatus string

const (
	StatusDraft      CampaignStatus = "DRAFT"
	StatusRecruiting CampaignStatus = "RECRUITING"
	StatusBidding    CampaignStatus = "BIDDING"
	StatusVoting     CampaignStatus = "VOTING"
	StatusConfirmed  CampaignStatus = "CONFIRMED"
	StatusCompleted  CampaignStatus = "COMPLETED"
	StatusCancelled  CampaignStatus = "CANCELLED"
)

// ActiveStatuses are the states counted against a creator's concurrent campaign cap.
var ActiveStatuses = []CampaignStatus{StatusRecruiting, StatusBidding, StatusVoting}

// Terminal reports whether no further transition is possible.
func (s CampaignStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

func (s CampaignStatus) Valid() bool {
	switch s {
	case StatusDraft, StatusRecruiting, StatusBidding, StatusVoting,
		StatusConfirmed, StatusCompleted, StatusCancelled:
		return true
	}
	return false
}

// Campaign is one group-purchase effort. CurrentParticipants mirrors the
// number of Participant rows and is only changed in the same transaction
// that inserts or deletes one.
type Campaign struct {
	ID                  uint            `gorm:"primaryKey" json:"id"`
	Title               string          `gorm:"type:varchar(255);not null" json:"title"`
	Description         string          `gorm:"type:text" json:"description"`
	Status              CampaignStatus  `gorm:"type:varchar(20);not null;default:'RECRUITING';index" json:"status"`
	CreatorID           uint            `gorm:"not null;index" json:"creator_id"`
	Creator             *User           `gorm:"foreignKey:CreatorID" json:"creator,omitempty"`
	MinParticipants     int             `gorm:"not null" json:"min_participants"`
	MaxParticipants     int             `gorm:"not null" json:"max_participants"`
	CurrentParticipants int             `gorm:"not null;default:0" json:"current_participants"`
	AuctionStartTime    *time.Time      `json:"auction_start_time,omitempty"`
	AuctionEndTime      *time.Time      `json:"auction_end_time,omitempty"`
	VoteStartTime       *time.Time      `json:"vote_start_time,omitempty"`
	VoteEndTime         *time.Time      `json:"vote_end_time,omitempty"`
	VoteThreshold       float64         `gorm:"not null;default:0.5" json:"vote_threshold"`
	TargetPrice         decimal.Decimal `gorm:"type:decimal(12,2);not null" json:"target_price"`
	WinningBidID        *uint           `json:"winning_bid_id,omitempty"`
	VoteReminderSent    bool            `gorm:"not null;default:false" json:"-"`
	CreatedAt           time.Time       `gorm:"not null" json:"created_at"`
	UpdatedAt           time.Time       `gorm:"not null" json:"updated_at"`
}

// InAuctionWindow reports whether t falls inside the bidding window. An unset
// bound is treated as open.
func (c *Campaign) InAuctionWindow(t time.Time) bool {
	return inWindow(c.AuctionStartTime, c.AuctionEndTime, t)
}

func (c *Campaign) InVoteWindow(t time.Time) bool {
	return inWindow(c.VoteStartTime, c.VoteEndTime, t)
}

func inWindow(start, end *time.Time, t time.Time) bool {
	if start != nil && t.Before(*start) {
		return false
	}
	if end != nil && t.After(*end) {
		return false
	}
	return true
}
