// Package policy implements the consent layer between agents.
package policy

import (
	"errors"
	"fmt"
	"time"

	"github.com/zulandar/switchboard/internal/models"
	"gorm.io/gorm"
)

// ContactTTL is how long an approved link stays valid.
const ContactTTL = 7 * 24 * time.Hour

// ErrLinkNotFound is returned when responding to a contact request that
// was never made.
var ErrLinkNotFound = errors.New("contact link not found")

// RequestContact creates or resets the directed link from one agent to
// another. Re-requesting returns an existing row to pending with a fresh
// reason and timestamp and clears any earlier approval window; the unique
// (project, from, to) index means there is never more than one row per
// direction.
func RequestContact(db *gorm.DB, projectID, fromAgentID, toAgentID uint, reason string) (*models.AgentLink, error) {
	var link *models.AgentLink
	err := db.Transaction(func(tx *gorm.DB) error {
		var existing models.AgentLink
		err := tx.Where("project_id = ? AND from_agent_id = ? AND to_agent_id = ?",
			projectID, fromAgentID, toAgentID).First(&existing).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			created := models.AgentLink{
				ProjectID:   projectID,
				FromAgentID: fromAgentID,
				ToAgentID:   toAgentID,
				Status:      models.LinkPending,
				Reason:      reason,
				CreatedAt:   time.Now(),
			}
			if err := tx.Create(&created).Error; err != nil {
				return fmt.Errorf("policy: request contact: %w", err)
			}
			link = &created
			return nil
		}
		if err != nil {
			return fmt.Errorf("policy: request contact: %w", err)
		}

		existing.Status = models.LinkPending
		existing.Reason = reason
		existing.CreatedAt = time.Now()
		existing.ExpiresAt = nil
		if err := tx.Save(&existing).Error; err != nil {
			return fmt.Errorf("policy: reset contact request: %w", err)
		}
		link = &existing
		return nil
	})
	if err != nil {
		return nil, err
	}
	return link, nil
}

// RespondContact resolves a pending request. Approval opens a ContactTTL
// validity window from now; denial clears any expiry. Fails with
// ErrLinkNotFound if no request exists for the pair.
func RespondContact(db *gorm.DB, projectID, fromAgentID, toAgentID uint, decision models.LinkStatus) (*models.AgentLink, error) {
	if decision != models.LinkApproved && decision != models.LinkDenied {
		return nil, fmt.Errorf("policy: invalid decision %q", decision)
	}

	var link models.AgentLink
	err := db.Where("project_id = ? AND from_agent_id = ? AND to_agent_id = ?",
		projectID, fromAgentID, toAgentID).First(&link).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("policy: respond %d->%d: %w", fromAgentID, toAgentID, ErrLinkNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("policy: respond contact: %w", err)
	}

	link.Status = decision
	if decision == models.LinkApproved {
		expires := time.Now().Add(ContactTTL)
		link.ExpiresAt = &expires
	} else {
		link.ExpiresAt = nil
	}
	if err := db.Save(&link).Error; err != nil {
		return nil, fmt.Errorf("policy: respond contact: %w", err)
	}
	return &link, nil
}

// CanMessage decides whether a sender may deliver to a recipient with the
// given contact policy. Read-only.
//
// "open" always allows. "contacts_only" requires an approved, unexpired
// link from sender to recipient. "auto" behaves identically to
// "contacts_only": its intended approval heuristics were never built, and
// it differs only in being the registration default.
func CanMessage(db *gorm.DB, projectID, fromAgentID, toAgentID uint, recipientPolicy models.ContactPolicy) (bool, error) {
	if recipientPolicy == models.PolicyOpen {
		return true, nil
	}

	var link models.AgentLink
	err := db.Where("project_id = ? AND from_agent_id = ? AND to_agent_id = ?",
		projectID, fromAgentID, toAgentID).First(&link).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("policy: can-message check: %w", err)
	}

	return link.Status == models.LinkApproved && !link.Expired(time.Now()), nil
}

// ListContacts returns the approved links touching an agent, in either
// direction.
func ListContacts(db *gorm.DB, projectID, agentID uint) ([]models.AgentLink, error) {
	var links []models.AgentLink
	err := db.Where("project_id = ? AND (from_agent_id = ? OR to_agent_id = ?) AND status = ?",
		projectID, agentID, agentID, models.LinkApproved).Find(&links).Error
	if err != nil {
		return nil, fmt.Errorf("policy: list contacts for %d: %w", agentID, err)
	}
	return links, nil
}
