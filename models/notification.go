package models

import (
	"encoding/json"
	"fmt"
	"time"

	"gorm.io/datatypes"
)

type NotificationType string

const (
	NotifGroupPurchase  NotificationType = "GROUP_PURCHASE"
	NotifParticipant    NotificationType = "PARTICIPANT"
	NotifPoint          NotificationType = "POINT"
	NotifSystem         NotificationType = "SYSTEM"
	NotifAuctionStart   NotificationType = "AUCTION_START"
	NotifAuctionEnd     NotificationType = "AUCTION_END"
	NotifVoteStart      NotificationType = "VOTE_START"
	NotifVoteReminder   NotificationType = "VOTE_REMINDER"
	NotifVoteEnd        NotificationType = "VOTE_END"
	NotifGroupConfirmed NotificationType = "GROUP_CONFIRMED"
	NotifGroupCanceled  NotificationType = "GROUP_CANCELED"
	NotifReviewRequest  NotificationType = "REVIEW_REQUEST"
	NotifPenalty        NotificationType = "PENALTY"
)

type Notification struct {
	ID        uint             `gorm:"primaryKey" json:"id"`
	UserID    uint             `gorm:"not null;index" json:"user_id"`
	Type      NotificationType `gorm:"type:varchar(32);not null" json:"type"`
	Title     string           `gorm:"type:varchar(255);not null" json:"title"`
	Message   string           `gorm:"type:text;not null" json:"message"`
	IsRead    bool             `gorm:"not null;default:false;index" json:"is_read"`
	Link      *string          `gorm:"type:varchar(255)" json:"link,omitempty"`
	Data      datatypes.JSON   `json:"data,omitempty"`
	CreatedAt time.Time        `gorm:"not null" json:"created_at"`
}

// NotificationPayload is the variant-specific part of a notification. The
// concrete type is selected by Notification.Type.
type NotificationPayload interface {
	payloadKind() string
}

// ParticipantPayload is attached to PARTICIPANT notifications.
type ParticipantPayload struct {
	CampaignID          uint `json:"campaign_id"`
	UserID              uint `json:"user_id"`
	CurrentParticipants int  `json:"current_participants"`
}

// AuctionPayload is attached to AUCTION_START and AUCTION_END.
type AuctionPayload struct {
	CampaignID     uint       `json:"campaign_id"`
	AuctionEndTime *time.Time `json:"auction_end_time,omitempty"`
	WinningBidID   *uint      `json:"winning_bid_id,omitempty"`
}

// VotePayload is attached to VOTE_START, VOTE_REMINDER and VOTE_END.
type VotePayload struct {
	CampaignID   uint       `json:"campaign_id"`
	VoteEndTime  *time.Time `json:"vote_end_time,omitempty"`
	CurrentVotes int        `json:"current_votes"`
	TotalVotes   int        `json:"total_votes"`
}

// OutcomePayload is attached to GROUP_CONFIRMED, GROUP_CANCELED and REVIEW_REQUEST.
type OutcomePayload struct {
	CampaignID   uint   `json:"campaign_id"`
	Reason       string `json:"reason,omitempty"`
	WinningBidID *uint  `json:"winning_bid_id,omitempty"`
}

// PenaltyPayload is attached to PENALTY.
type PenaltyPayload struct {
	PenaltyEndTime time.Time `json:"penalty_end_time"`
}

// SystemPayload carries free-form key/values for SYSTEM, POINT and GROUP_PURCHASE.
type SystemPayload map[string]string

func (ParticipantPayload) payloadKind() string { return "participant" }
func (AuctionPayload) payloadKind() string     { return "auction" }
func (VotePayload) payloadKind() string        { return "vote" }
func (OutcomePayload) payloadKind() string     { return "outcome" }
func (PenaltyPayload) payloadKind() string     { return "penalty" }
func (SystemPayload) payloadKind() string      { return "system" }

// newPayload returns an empty payload of the variant matching t.
func newPayload(t NotificationType) (NotificationPayload, error) {
	switch t {
	case NotifParticipant:
		return &ParticipantPayload{}, nil
	case NotifAuctionStart, NotifAuctionEnd:
		return &AuctionPayload{}, nil
	case NotifVoteStart, NotifVoteReminder, NotifVoteEnd:
		return &VotePayload{}, nil
	case NotifGroupConfirmed, NotifGroupCanceled, NotifReviewRequest:
		return &OutcomePayload{}, nil
	case NotifPenalty:
		return &PenaltyPayload{}, nil
	case NotifGroupPurchase, NotifPoint, NotifSystem:
		return &SystemPayload{}, nil
	}
	return nil, fmt.Errorf("unknown notification type %q", t)
}

// SetPayload stores p in Data after checking it is the variant Type expects.
func (n *Notification) SetPayload(p NotificationPayload) error {
	want, err := newPayload(n.Type)
	if err != nil {
		return err
	}
	if want.payloadKind() != p.payloadKind() {
		return fmt.Errorf("payload %s does not match notification type %s", p.payloadKind(), n.Type)
	}
	raw, err := json.Marshal(p)
	if err != nil {
		return err
	}
	n.Data = datatypes.JSON(raw)
	return nil
}

// Payload decodes Data into the variant selected by Type. A notification
// without data yields a nil payload.
func (n *Notification) Payload() (NotificationPayload, error) {
	if len(n.Data) == 0 {
		return nil, nil
	}
	p, err := newPayload(n.Type)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(n.Data, p); err != nil {
		return nil, fmt.Errorf("decode %s payload: %w", n.Type, err)
	}
	return p, nil
}
