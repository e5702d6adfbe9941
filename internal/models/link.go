package models

import "time"

// LinkStatus is the state of a directed contact request.
type LinkStatus string

const (
	LinkPending  LinkStatus = "pending"
	LinkApproved LinkStatus = "approved"
	LinkDenied   LinkStatus = "denied"
)

// AgentLink is a directed consent record from one agent to another. The
// (project, from, to) pair is unique: re-requesting contact resets the
// existing row to pending rather than inserting a second one. Rows are
// never deleted.
type AgentLink struct {
	ID          uint       `gorm:"primaryKey;autoIncrement"`
	ProjectID   uint       `gorm:"not null;uniqueIndex:idx_links_pair"`
	FromAgentID uint       `gorm:"not null;uniqueIndex:idx_links_pair"`
	ToAgentID   uint       `gorm:"not null;uniqueIndex:idx_links_pair"`
	Status      LinkStatus `gorm:"size:16;default:pending"`
	Reason      string     `gorm:"size:256"`
	CreatedAt   time.Time
	ExpiresAt   *time.Time
}

// Expired reports whether an approval window has passed as of now.
func (l *AgentLink) Expired(now time.Time) bool {
	return l.ExpiresAt != nil && l.ExpiresAt.Before(now)
}
