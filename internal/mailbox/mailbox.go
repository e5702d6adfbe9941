// Package mailbox provides the threaded, multi-recipient message bus.
package mailbox

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/zulandar/switchboard/internal/directory"
	"github.com/zulandar/switchboard/internal/models"
	"github.com/zulandar/switchboard/internal/policy"
	"gorm.io/gorm"
)

// PolicyError reports a recipient whose contact policy blocks delivery.
// The caller is expected to request contact and retry.
type PolicyError struct {
	Recipient string
}

func (e *PolicyError) Error() string {
	return fmt.Sprintf("mailbox: recipient %q does not accept messages from you; request contact first", e.Recipient)
}

// SendParams holds parameters for sending a message.
type SendParams struct {
	ProjectSlug string
	From        string
	To          []string
	Subject     string
	Body        string
	ThreadID    string // fresh thread if empty
	Importance  string // low, normal (default), high
	AckRequired bool
	// BypassPolicy skips recipient consent checks. Reserved for privileged
	// senders such as the human overseer.
	BypassPolicy bool
}

// Send delivers one message to every named recipient. The message row and
// all recipient rows commit as a single transaction: partial delivery is
// never observable.
func Send(db *gorm.DB, p SendParams) (*models.Message, error) {
	if p.From == "" {
		return nil, fmt.Errorf("mailbox: from is required")
	}
	if len(p.To) == 0 {
		return nil, fmt.Errorf("mailbox: at least one recipient is required")
	}
	if p.Subject == "" {
		return nil, fmt.Errorf("mailbox: subject is required")
	}

	sender, err := directory.Whois(db, p.ProjectSlug, p.From)
	if err != nil {
		return nil, err
	}

	recipients := make([]*models.Agent, 0, len(p.To))
	for _, name := range p.To {
		recipient, err := directory.Whois(db, p.ProjectSlug, name)
		if err != nil {
			return nil, err
		}
		recipients = append(recipients, recipient)
	}

	if !p.BypassPolicy {
		for _, recipient := range recipients {
			ok, err := policy.CanMessage(db, sender.ProjectID, sender.ID, recipient.ID, recipient.ContactPolicy)
			if err != nil {
				return nil, err
			}
			if !ok {
				return nil, &PolicyError{Recipient: recipient.Name}
			}
		}
	}

	threadID := p.ThreadID
	if threadID == "" {
		threadID = uuid.NewString()
	}
	importance := p.Importance
	if importance == "" {
		importance = models.ImportanceNormal
	}

	msg := models.Message{
		ProjectID:   sender.ProjectID,
		ThreadID:    threadID,
		FromAgentID: sender.ID,
		Subject:     p.Subject,
		Body:        p.Body,
		Importance:  importance,
		AckRequired: p.AckRequired,
		CreatedAt:   time.Now(),
	}

	err = db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&msg).Error; err != nil {
			return fmt.Errorf("mailbox: send: %w", err)
		}
		rows := make([]models.MessageRecipient, 0, len(recipients))
		for _, recipient := range recipients {
			rows = append(rows, models.MessageRecipient{
				MessageID: msg.ID,
				AgentID:   recipient.ID,
				Kind:      models.KindTo,
			})
		}
		if err := tx.Create(&rows).Error; err != nil {
			return fmt.Errorf("mailbox: send recipients: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	msg.SenderName = sender.Name
	return &msg, nil
}

// Inbox returns messages addressed to an agent, newest first, capped at
// limit. With unreadOnly set, messages already marked read are skipped.
func Inbox(db *gorm.DB, projectSlug, agentName string, limit int, unreadOnly bool) ([]models.Message, error) {
	agent, err := directory.Whois(db, projectSlug, agentName)
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 20
	}

	q := db.Model(&models.Message{}).
		Select("messages.*, senders.name AS sender_name").
		Joins("JOIN message_recipients mr ON mr.message_id = messages.id").
		Joins("JOIN agents senders ON senders.id = messages.from_agent_id").
		Where("mr.agent_id = ?", agent.ID).
		Order("messages.created_at DESC").
		Limit(limit)
	if unreadOnly {
		q = q.Where("mr.read_at IS NULL")
	}

	var msgs []models.Message
	if err := q.Find(&msgs).Error; err != nil {
		return nil, fmt.Errorf("mailbox: inbox %s: %w", agentName, err)
	}
	return msgs, nil
}

// MarkAsRead stamps read_at for the agent's recipient rows matching the
// given message ids. Ids not addressed to the agent are skipped; rows
// already read keep their original timestamp. An empty id list is a no-op.
func MarkAsRead(db *gorm.DB, projectSlug, agentName string, messageIDs []uint) error {
	return stampRecipients(db, projectSlug, agentName, messageIDs, "read_at")
}

// Acknowledge stamps ack_at the same way MarkAsRead stamps read_at.
func Acknowledge(db *gorm.DB, projectSlug, agentName string, messageIDs []uint) error {
	return stampRecipients(db, projectSlug, agentName, messageIDs, "ack_at")
}

func stampRecipients(db *gorm.DB, projectSlug, agentName string, messageIDs []uint, column string) error {
	if len(messageIDs) == 0 {
		return nil
	}
	agent, err := directory.Whois(db, projectSlug, agentName)
	if err != nil {
		return err
	}

	// Forward-only: rows with a timestamp keep it.
	err = db.Model(&models.MessageRecipient{}).
		Where("agent_id = ? AND message_id IN ? AND "+column+" IS NULL", agent.ID, messageIDs).
		Update(column, time.Now()).Error
	if err != nil {
		return fmt.Errorf("mailbox: mark %s for %s: %w", column, agentName, err)
	}
	return nil
}

// Thread returns every message in a thread within a project, oldest first.
func Thread(db *gorm.DB, projectSlug, threadID string) ([]models.Message, error) {
	var msgs []models.Message
	err := db.Model(&models.Message{}).
		Select("messages.*, senders.name AS sender_name").
		Joins("JOIN agents senders ON senders.id = messages.from_agent_id").
		Joins("JOIN projects ON projects.id = messages.project_id").
		Where("projects.slug = ? AND messages.thread_id = ?", projectSlug, threadID).
		Order("messages.created_at ASC").
		Find(&msgs).Error
	if err != nil {
		return nil, fmt.Errorf("mailbox: thread %s: %w", threadID, err)
	}
	return msgs, nil
}

// ProjectMessages returns the newest messages across a whole project, the
// admin "master inbox" view. Read-only; unknown projects yield nothing.
func ProjectMessages(db *gorm.DB, projectSlug string, limit int) ([]models.Message, error) {
	if limit <= 0 {
		limit = 50
	}
	var msgs []models.Message
	err := db.Model(&models.Message{}).
		Select("messages.*, senders.name AS sender_name").
		Joins("JOIN agents senders ON senders.id = messages.from_agent_id").
		Joins("JOIN projects ON projects.id = messages.project_id").
		Where("projects.slug = ?", projectSlug).
		Order("messages.created_at DESC").
		Limit(limit).
		Find(&msgs).Error
	if err != nil {
		return nil, fmt.Errorf("mailbox: project messages %s: %w", projectSlug, err)
	}
	return msgs, nil
}
