// Package tasks mirrors an external bd task tracker into the local store
// and announces task events into message threads. The external tool owns
// the tasks; the mirror table sits outside the mailbox's invariants.
package tasks

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"time"

	"github.com/zulandar/switchboard/internal/directory"
	"github.com/zulandar/switchboard/internal/mailbox"
	"github.com/zulandar/switchboard/internal/models"
	"github.com/zulandar/switchboard/internal/overseer"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Runner abstracts subprocess execution for testability.
type Runner interface {
	// Run executes a command and returns its stdout.
	Run(ctx context.Context, name string, args ...string) ([]byte, error)
}

// ExecRunner runs real subprocesses.
type ExecRunner struct{}

func (ExecRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).Output()
}

// Task is the external tracker's view of one work item.
type Task struct {
	ID       string `json:"id"`
	Title    string `json:"title"`
	Status   string `json:"status"`
	Priority string `json:"priority"`
	Assignee string `json:"assignee,omitempty"`
}

// trackerTask matches the bd CLI's JSON output.
type trackerTask struct {
	ID        string   `json:"id"`
	Title     string   `json:"title"`
	Status    string   `json:"status"`
	Priority  string   `json:"priority"`
	Assignees []string `json:"assignees"`
}

func (t trackerTask) toTask() Task {
	task := Task{ID: t.ID, Title: t.Title, Status: t.Status, Priority: t.Priority}
	if len(t.Assignees) > 0 {
		task.Assignee = t.Assignees[0]
	}
	return task
}

// Client talks to the bd CLI and maintains the mirror table.
type Client struct {
	db     *gorm.DB
	bin    string
	runner Runner
}

// NewClient builds a Client. A nil runner gets the real ExecRunner.
func NewClient(db *gorm.DB, bin string, runner Runner) *Client {
	if bin == "" {
		bin = "bd"
	}
	if runner == nil {
		runner = ExecRunner{}
	}
	return &Client{db: db, bin: bin, runner: runner}
}

// LinkTask ties a tracker task to a message thread, announces the link in
// the thread, and syncs the task's current state into the mirror.
func (c *Client) LinkTask(ctx context.Context, projectSlug, taskID, threadID string) error {
	link := models.TaskLink{
		TaskID:    taskID,
		ThreadID:  threadID,
		Status:    "unknown",
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}
	err := c.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "task_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"thread_id", "updated_at"}),
	}).Create(&link).Error
	if err != nil {
		return fmt.Errorf("tasks: link %s: %w", taskID, err)
	}

	if _, err := overseer.EnsureAgent(c.db, projectSlug); err != nil {
		return err
	}
	if err := c.announce(projectSlug, overseer.Name, threadID,
		fmt.Sprintf("Task Linked: %s", taskID),
		fmt.Sprintf("This thread is now linked to task `%s`. Updates will be synced.", taskID),
		models.ImportanceNormal,
	); err != nil {
		return err
	}

	_, err = c.syncTask(ctx, taskID)
	return err
}

// UpdateStatus pushes a status change to the tracker, refreshes the
// mirror, and announces the change in the linked thread if there is one.
func (c *Client) UpdateStatus(ctx context.Context, projectSlug, agentName, taskID, status, note string) (*Task, error) {
	if _, err := directory.Whois(c.db, projectSlug, agentName); err != nil {
		return nil, err
	}

	if _, err := c.runner.Run(ctx, c.bin, "update", taskID, "--status", status); err != nil {
		return nil, fmt.Errorf("tasks: update %s: %w", taskID, err)
	}

	task, err := c.syncTask(ctx, taskID)
	if err != nil {
		return nil, err
	}

	threadID, err := c.threadForTask(taskID)
	if err != nil {
		return nil, err
	}
	if threadID != "" {
		body := fmt.Sprintf("Updated task to `%s`.", status)
		if note != "" {
			body += " Note: " + note
		}
		if err := c.announce(projectSlug, agentName, threadID,
			fmt.Sprintf("Task Update: %s", taskID), body, models.ImportanceLow,
		); err != nil {
			return nil, err
		}
	}
	return task, nil
}

// ListTasks shells out to the tracker's list command. With an agent name,
// only that agent's tasks and ready work come back.
func (c *Client) ListTasks(ctx context.Context, agentName string) ([]Task, error) {
	out, err := c.runner.Run(ctx, c.bin, "list", "--json")
	if err != nil {
		return nil, fmt.Errorf("tasks: list: %w", err)
	}

	var raw []trackerTask
	if err := json.Unmarshal(out, &raw); err != nil {
		return nil, fmt.Errorf("tasks: parse list output: %w", err)
	}

	tasks := make([]Task, 0, len(raw))
	for _, t := range raw {
		if agentName != "" && !assignedTo(t, agentName) && t.Status != "ready" {
			continue
		}
		tasks = append(tasks, t.toTask())
	}
	return tasks, nil
}

func assignedTo(t trackerTask, agentName string) bool {
	for _, a := range t.Assignees {
		if a == agentName {
			return true
		}
	}
	return false
}

// syncTask refreshes one mirror row from the tracker.
func (c *Client) syncTask(ctx context.Context, taskID string) (*Task, error) {
	out, err := c.runner.Run(ctx, c.bin, "show", taskID, "--json")
	if err != nil {
		return nil, fmt.Errorf("tasks: show %s: %w", taskID, err)
	}

	var raw []trackerTask
	if err := json.Unmarshal(out, &raw); err != nil {
		return nil, fmt.Errorf("tasks: parse show output for %s: %w", taskID, err)
	}
	if len(raw) == 0 {
		return nil, fmt.Errorf("tasks: tracker has no task %s", taskID)
	}
	task := raw[0].toTask()

	err = c.db.Model(&models.TaskLink{}).Where("task_id = ?", taskID).
		Updates(map[string]interface{}{"status": task.Status, "updated_at": time.Now()}).Error
	if err != nil {
		return nil, fmt.Errorf("tasks: sync %s: %w", taskID, err)
	}
	return &task, nil
}

// threadForTask returns the linked thread id, or empty when unlinked.
func (c *Client) threadForTask(taskID string) (string, error) {
	var link models.TaskLink
	err := c.db.Where("task_id = ?", taskID).First(&link).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("tasks: thread for %s: %w", taskID, err)
	}
	return link.ThreadID, nil
}

// announce posts a system message into a thread, addressed to everyone who
// has participated in it. Nothing is sent for threads with no participants
// other than the sender.
func (c *Client) announce(projectSlug, from, threadID, subject, body, importance string) error {
	participants, err := c.threadParticipants(projectSlug, threadID, from)
	if err != nil {
		return err
	}
	if len(participants) == 0 {
		return nil
	}
	_, err = mailbox.Send(c.db, mailbox.SendParams{
		ProjectSlug:  projectSlug,
		From:         from,
		To:           participants,
		Subject:      subject,
		Body:         body,
		ThreadID:     threadID,
		Importance:   importance,
		BypassPolicy: true,
	})
	return err
}

// threadParticipants returns the distinct agent names that have sent or
// received mail in a thread, excluding the given sender.
func (c *Client) threadParticipants(projectSlug, threadID, exclude string) ([]string, error) {
	msgs, err := mailbox.Thread(c.db, projectSlug, threadID)
	if err != nil {
		return nil, err
	}

	seen := map[uint]bool{}
	var ids []uint
	for _, m := range msgs {
		if !seen[m.FromAgentID] {
			seen[m.FromAgentID] = true
			ids = append(ids, m.FromAgentID)
		}
		var recips []models.MessageRecipient
		if err := c.db.Where("message_id = ?", m.ID).Find(&recips).Error; err != nil {
			return nil, fmt.Errorf("tasks: thread participants: %w", err)
		}
		for _, r := range recips {
			if !seen[r.AgentID] {
				seen[r.AgentID] = true
				ids = append(ids, r.AgentID)
			}
		}
	}
	if len(ids) == 0 {
		return nil, nil
	}

	var agents []models.Agent
	if err := c.db.Where("id IN ?", ids).Find(&agents).Error; err != nil {
		return nil, fmt.Errorf("tasks: thread participants: %w", err)
	}
	var names []string
	for _, a := range agents {
		if a.Name != exclude {
			names = append(names, a.Name)
		}
	}
	return names, nil
}
