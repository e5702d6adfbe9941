package models

import "time"

// TaskLink mirrors an external tracker task and ties it to a message
// thread. The external tool owns the task; this row is a local cache plus
// the thread reference, outside the mailbox's invariants.
type TaskLink struct {
	ID              uint   `gorm:"primaryKey;autoIncrement"`
	TaskID          string `gorm:"size:64;not null;uniqueIndex"`
	ThreadID        string `gorm:"size:64;index"`
	Status          string `gorm:"size:32"`
	AssignedAgentID *uint
	CreatedAt       time.Time
	UpdatedAt       time.Time
}
