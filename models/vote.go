package models

import "time"

type Vote struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	CampaignID uint      `gorm:"not null;uniqueIndex:idx_vote_campaign_user" json:"campaign_id"`
	UserID     uint      `gorm:"not null;uniqueIndex:idx_vote_campaign_user" json:"user_id"`
	Approved   bool      `gorm:"not null" json:"approved"`
	CreatedAt  time.Time `gorm:"not null" json:"created_at"`
}
