package models

import "time"

// Project is the isolation boundary for agents and messages.
type Project struct {
	ID        uint   `gorm:"primaryKey;autoIncrement"`
	Slug      string `gorm:"size:64;not null;uniqueIndex"`
	HumanName string `gorm:"size:128"`
	CreatedAt time.Time
}
