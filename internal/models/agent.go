package models

import "time"

// ContactPolicy governs who may message an agent.
type ContactPolicy string

const (
	// PolicyOpen accepts mail from anyone in the project.
	PolicyOpen ContactPolicy = "open"
	// PolicyAuto is the registration default. The intended auto-approval
	// heuristics were never implemented; it currently behaves exactly like
	// PolicyContactsOnly when deciding delivery.
	PolicyAuto ContactPolicy = "auto"
	// PolicyContactsOnly requires an approved, unexpired contact link.
	PolicyContactsOnly ContactPolicy = "contacts_only"
)

// Valid reports whether p is one of the known policies.
func (p ContactPolicy) Valid() bool {
	switch p {
	case PolicyOpen, PolicyAuto, PolicyContactsOnly:
		return true
	}
	return false
}

// Agent is a registered identity within a project.
type Agent struct {
	ID            uint          `gorm:"primaryKey;autoIncrement"`
	ProjectID     uint          `gorm:"not null;index;uniqueIndex:idx_agents_project_name"`
	Name          string        `gorm:"size:64;not null;uniqueIndex:idx_agents_project_name"`
	Program       string        `gorm:"size:64"`
	Model         string        `gorm:"size:64"`
	ContactPolicy ContactPolicy `gorm:"size:16;default:auto"`
	CreatedAt     time.Time
	LastActiveAt  time.Time `gorm:"index"`
}
