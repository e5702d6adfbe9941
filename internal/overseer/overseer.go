// Package overseer provides the human broadcast layer and the
// human-in-the-loop approval queue.
package overseer

import (
	"errors"
	"fmt"
	"time"

	"github.com/zulandar/switchboard/internal/directory"
	"github.com/zulandar/switchboard/internal/mailbox"
	"github.com/zulandar/switchboard/internal/models"
	"gorm.io/gorm"
)

// Name is the reserved identity broadcasts are sent from.
const Name = "HumanOverseer"

// ErrApprovalNotFound is returned when resolving an approval that does not
// exist.
var ErrApprovalNotFound = errors.New("approval not found")

// BroadcastParams holds parameters for a human broadcast.
type BroadcastParams struct {
	ProjectSlug string
	Subject     string
	Body        string
	To          []string // every agent in the project if empty
}

// EnsureAgent materializes the overseer identity in a project, creating it
// with an open policy on first use.
func EnsureAgent(db *gorm.DB, projectSlug string) (*models.Agent, error) {
	agent, err := directory.Whois(db, projectSlug, Name)
	if err == nil {
		return agent, nil
	}
	if !errors.Is(err, directory.ErrNotFound) {
		return nil, err
	}
	return directory.Register(db, directory.RegisterParams{
		ProjectSlug:   projectSlug,
		Name:          Name,
		Program:       "human",
		Model:         "human",
		ContactPolicy: models.PolicyOpen,
	})
}

// Broadcast sends a high-importance, ack-required message from the
// overseer to the given agents, or to every agent in the project when no
// recipients are named. Consent policies do not apply to the human.
func Broadcast(db *gorm.DB, p BroadcastParams) (*models.Message, error) {
	if _, err := EnsureAgent(db, p.ProjectSlug); err != nil {
		return nil, err
	}

	recipients := p.To
	if len(recipients) == 0 {
		agents, err := directory.List(db, p.ProjectSlug)
		if err != nil {
			return nil, err
		}
		for _, a := range agents {
			if a.Name != Name {
				recipients = append(recipients, a.Name)
			}
		}
	}
	if len(recipients) == 0 {
		return nil, fmt.Errorf("overseer: no agents to broadcast to in %q", p.ProjectSlug)
	}

	return mailbox.Send(db, mailbox.SendParams{
		ProjectSlug:  p.ProjectSlug,
		From:         Name,
		To:           recipients,
		Subject:      "🚨 " + p.Subject,
		Body:         p.Body,
		Importance:   models.ImportanceHigh,
		AckRequired:  true,
		BypassPolicy: true,
	})
}

// RequestApproval queues a decision request about an entity for the human.
func RequestApproval(db *gorm.DB, entityType string, entityID uint) (*models.HumanApproval, error) {
	approval := models.HumanApproval{
		EntityType:  entityType,
		EntityID:    entityID,
		Status:      "pending",
		RequestedAt: time.Now(),
	}
	if err := db.Create(&approval).Error; err != nil {
		return nil, fmt.Errorf("overseer: request approval: %w", err)
	}
	return &approval, nil
}

// ResolveApproval records the human's decision on a pending approval.
func ResolveApproval(db *gorm.DB, approvalID uint, decision, note string) (*models.HumanApproval, error) {
	if decision != "approved" && decision != "rejected" {
		return nil, fmt.Errorf("overseer: invalid decision %q", decision)
	}

	var approval models.HumanApproval
	err := db.Where("id = ?", approvalID).First(&approval).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("overseer: approval %d: %w", approvalID, ErrApprovalNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("overseer: resolve approval %d: %w", approvalID, err)
	}

	now := time.Now()
	approval.Status = decision
	approval.ResolvedAt = &now
	approval.HumanNote = note
	if err := db.Save(&approval).Error; err != nil {
		return nil, fmt.Errorf("overseer: resolve approval %d: %w", approvalID, err)
	}
	return &approval, nil
}

// ListPendingApprovals returns unresolved approvals, oldest first.
func ListPendingApprovals(db *gorm.DB) ([]models.HumanApproval, error) {
	var approvals []models.HumanApproval
	err := db.Where("status = ?", "pending").
		Order("requested_at ASC").Find(&approvals).Error
	if err != nil {
		return nil, fmt.Errorf("overseer: list pending approvals: %w", err)
	}
	return approvals, nil
}
