package models

import "time"

type Participant struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	CampaignID uint      `gorm:"not null;uniqueIndex:idx_participant_campaign_user" json:"campaign_id"`
	UserID     uint      `gorm:"not null;uniqueIndex:idx_participant_campaign_user;index" json:"user_id"`
	User       *User     `gorm:"foreignKey:UserID" json:"user,omitempty"`
	CreatedAt  time.Time `gorm:"not null" json:"created_at"`
}
