package models

import "time"

// HumanApproval is a human-in-the-loop decision request about some entity
// (a message, contact request, or task).
type HumanApproval struct {
	ID          uint   `gorm:"primaryKey;autoIncrement"`
	EntityType  string `gorm:"size:16;not null"`
	EntityID    uint   `gorm:"not null"`
	Status      string `gorm:"size:16;default:pending"`
	RequestedAt time.Time
	ResolvedAt  *time.Time
	HumanNote   string `gorm:"size:512"`
}
