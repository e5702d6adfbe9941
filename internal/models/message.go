package models

import "time"

// Importance levels for a message.
const (
	ImportanceLow    = "low"
	ImportanceNormal = "normal"
	ImportanceHigh   = "high"
)

// Recipient kinds.
const (
	KindTo  = "to"
	KindCC  = "cc"
	KindBCC = "bcc"
)

// Message is one immutable entry in a conversation thread.
type Message struct {
	ID          uint   `gorm:"primaryKey;autoIncrement"`
	ProjectID   uint   `gorm:"not null;index"`
	ThreadID    string `gorm:"size:64;index"`
	FromAgentID uint   `gorm:"not null"`
	Subject     string `gorm:"size:256;not null"`
	Body        string `gorm:"type:text"`
	Importance  string `gorm:"size:8;default:normal"`
	AckRequired bool   `gorm:"default:false"`
	CreatedAt   time.Time

	// SenderName is hydrated by queries that join agents; not a column.
	SenderName string `gorm:"->;-:migration"`
}

// MessageRecipient records delivery of a message to one agent. Created in
// the same transaction as its Message; a message with zero recipient rows
// is never observable. ReadAt and AckAt only move from null to a timestamp.
type MessageRecipient struct {
	ID        uint   `gorm:"primaryKey;autoIncrement"`
	MessageID uint   `gorm:"not null;index"`
	AgentID   uint   `gorm:"not null;index"`
	Kind      string `gorm:"size:4;default:to"`
	ReadAt    *time.Time
	AckAt     *time.Time
}
