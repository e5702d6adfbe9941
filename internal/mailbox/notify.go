package mailbox

import (
	"log"
	"os/exec"
	"strings"

	"github.com/zulandar/switchboard/internal/models"
)

// NotifyConfig controls how push notifications are delivered for urgent mail.
type NotifyConfig struct {
	Command string // shell command template, e.g. "notify-send 'Switchboard' '{{.Subject}}'"
}

// Notify runs the configured command for a message. Best-effort: errors are
// logged, not returned.
func Notify(msg *models.Message, cfg NotifyConfig) {
	if cfg.Command == "" {
		return
	}
	cmdStr := templateMessage(cfg.Command, msg)
	cmd := exec.Command("sh", "-c", cmdStr)
	if out, err := cmd.CombinedOutput(); err != nil {
		log.Printf("notify: command failed: %v: %s", err, strings.TrimSpace(string(out)))
	}
}

// ShouldNotify returns true if the message warrants a push notification.
func ShouldNotify(msg *models.Message) bool {
	return msg.Importance == models.ImportanceHigh || msg.AckRequired
}

// templateMessage replaces placeholders in the command template with
// message values.
func templateMessage(command string, msg *models.Message) string {
	r := strings.NewReplacer(
		"{{.Subject}}", msg.Subject,
		"{{.Body}}", msg.Body,
		"{{.From}}", msg.SenderName,
		"{{.Thread}}", msg.ThreadID,
		"{{.Importance}}", msg.Importance,
	)
	return r.Replace(command)
}
