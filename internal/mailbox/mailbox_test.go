package mailbox

import (
	"errors"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/zulandar/switchboard/internal/db"
	"github.com/zulandar/switchboard/internal/directory"
	"github.com/zulandar/switchboard/internal/models"
	"github.com/zulandar/switchboard/internal/policy"
	"gorm.io/gorm"
)

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	gormDB, err := db.Open(filepath.Join(t.TempDir(), "switchboard.db"))
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	if err := db.AutoMigrate(gormDB); err != nil {
		t.Fatalf("migrate test db: %v", err)
	}
	return gormDB
}

// registerAgent registers an agent with the given policy, failing the test
// on error.
func registerAgent(t *testing.T, gormDB *gorm.DB, project, name string, pol models.ContactPolicy) *models.Agent {
	t.Helper()
	agent, err := directory.Register(gormDB, directory.RegisterParams{
		ProjectSlug:   project,
		Name:          name,
		ContactPolicy: pol,
	})
	if err != nil {
		t.Fatalf("register %s: %v", name, err)
	}
	return agent
}

// ---------------------------------------------------------------------------
// Send
// ---------------------------------------------------------------------------

func TestSend_Validation(t *testing.T) {
	gormDB := openTestDB(t)

	cases := []struct {
		name string
		p    SendParams
		want string
	}{
		{"missing from", SendParams{ProjectSlug: "acme", To: []string{"B"}, Subject: "hi"}, "from is required"},
		{"no recipients", SendParams{ProjectSlug: "acme", From: "A", Subject: "hi"}, "at least one recipient"},
		{"missing subject", SendParams{ProjectSlug: "acme", From: "A", To: []string{"B"}}, "subject is required"},
	}
	for _, tc := range cases {
		_, err := Send(gormDB, tc.p)
		if err == nil || !strings.Contains(err.Error(), tc.want) {
			t.Errorf("%s: err = %v, want %q", tc.name, err, tc.want)
		}
	}
}

func TestSend_UnknownSenderOrRecipient(t *testing.T) {
	gormDB := openTestDB(t)
	registerAgent(t, gormDB, "acme", "Alice", models.PolicyOpen)

	_, err := Send(gormDB, SendParams{ProjectSlug: "acme", From: "Ghost", To: []string{"Alice"}, Subject: "hi"})
	if !errors.Is(err, directory.ErrNotFound) {
		t.Errorf("unknown sender: err = %v, want ErrNotFound", err)
	}

	_, err = Send(gormDB, SendParams{ProjectSlug: "acme", From: "Alice", To: []string{"Ghost"}, Subject: "hi"})
	if !errors.Is(err, directory.ErrNotFound) {
		t.Errorf("unknown recipient: err = %v, want ErrNotFound", err)
	}

	// Failed sends leave no rows behind.
	var count int64
	gormDB.Model(&models.Message{}).Count(&count)
	if count != 0 {
		t.Errorf("failed send left %d message rows", count)
	}
}

func TestSend_DeliversToAllRecipients(t *testing.T) {
	gormDB := openTestDB(t)
	registerAgent(t, gormDB, "acme", "Alice", models.PolicyOpen)
	bob := registerAgent(t, gormDB, "acme", "Bob", models.PolicyOpen)
	carol := registerAgent(t, gormDB, "acme", "Carol", models.PolicyOpen)

	msg, err := Send(gormDB, SendParams{
		ProjectSlug: "acme",
		From:        "Alice",
		To:          []string{"Bob", "Carol"},
		Subject:     "standup",
		Body:        "notes attached",
	})
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if msg.ThreadID == "" {
		t.Error("expected a generated thread id")
	}
	if msg.SenderName != "Alice" {
		t.Errorf("SenderName = %q", msg.SenderName)
	}
	if msg.Importance != models.ImportanceNormal {
		t.Errorf("Importance = %q, want default normal", msg.Importance)
	}

	var rows []models.MessageRecipient
	if err := gormDB.Where("message_id = ?", msg.ID).Find(&rows).Error; err != nil {
		t.Fatalf("load recipients: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("got %d recipient rows, want 2", len(rows))
	}
	got := map[uint]bool{}
	for _, r := range rows {
		got[r.AgentID] = true
		if r.ReadAt != nil || r.AckAt != nil {
			t.Error("fresh delivery should be unread and unacked")
		}
	}
	if !got[bob.ID] || !got[carol.ID] {
		t.Errorf("recipient rows cover %v, want Bob and Carol", got)
	}
}

func TestSend_FreshThreadsAreDistinct(t *testing.T) {
	gormDB := openTestDB(t)
	registerAgent(t, gormDB, "acme", "Alice", models.PolicyOpen)
	registerAgent(t, gormDB, "acme", "Bob", models.PolicyOpen)

	a, err := Send(gormDB, SendParams{ProjectSlug: "acme", From: "Alice", To: []string{"Bob"}, Subject: "one"})
	if err != nil {
		t.Fatalf("send one: %v", err)
	}
	b, err := Send(gormDB, SendParams{ProjectSlug: "acme", From: "Alice", To: []string{"Bob"}, Subject: "two"})
	if err != nil {
		t.Fatalf("send two: %v", err)
	}
	if a.ThreadID == b.ThreadID {
		t.Error("two fresh sends should start distinct threads")
	}
}

func TestSend_PolicyBlocksDelivery(t *testing.T) {
	gormDB := openTestDB(t)
	alice := registerAgent(t, gormDB, "acme", "Alice", models.PolicyOpen)
	bob := registerAgent(t, gormDB, "acme", "Bob", models.PolicyContactsOnly)

	_, err := Send(gormDB, SendParams{ProjectSlug: "acme", From: "Alice", To: []string{"Bob"}, Subject: "hi"})
	var perr *PolicyError
	if !errors.As(err, &perr) {
		t.Fatalf("err = %v, want *PolicyError", err)
	}
	if perr.Recipient != "Bob" {
		t.Errorf("PolicyError.Recipient = %q", perr.Recipient)
	}

	// Request + approve, then the same send succeeds.
	if _, err := policy.RequestContact(gormDB, alice.ProjectID, alice.ID, bob.ID, "work"); err != nil {
		t.Fatalf("request contact: %v", err)
	}
	if _, err := policy.RespondContact(gormDB, alice.ProjectID, alice.ID, bob.ID, models.LinkApproved); err != nil {
		t.Fatalf("approve contact: %v", err)
	}
	if _, err := Send(gormDB, SendParams{ProjectSlug: "acme", From: "Alice", To: []string{"Bob"}, Subject: "hi"}); err != nil {
		t.Fatalf("send after approval: %v", err)
	}
}

func TestSend_OneBlockedRecipientBlocksAll(t *testing.T) {
	gormDB := openTestDB(t)
	registerAgent(t, gormDB, "acme", "Alice", models.PolicyOpen)
	registerAgent(t, gormDB, "acme", "Bob", models.PolicyOpen)
	registerAgent(t, gormDB, "acme", "Carol", models.PolicyContactsOnly)

	_, err := Send(gormDB, SendParams{ProjectSlug: "acme", From: "Alice", To: []string{"Bob", "Carol"}, Subject: "hi"})
	var perr *PolicyError
	if !errors.As(err, &perr) {
		t.Fatalf("err = %v, want *PolicyError", err)
	}

	// Nothing was delivered, not even to Bob.
	var count int64
	gormDB.Model(&models.MessageRecipient{}).Count(&count)
	if count != 0 {
		t.Errorf("blocked send left %d recipient rows", count)
	}
}

func TestSend_BypassPolicy(t *testing.T) {
	gormDB := openTestDB(t)
	registerAgent(t, gormDB, "acme", "Alice", models.PolicyOpen)
	registerAgent(t, gormDB, "acme", "Bob", models.PolicyContactsOnly)

	_, err := Send(gormDB, SendParams{
		ProjectSlug:  "acme",
		From:         "Alice",
		To:           []string{"Bob"},
		Subject:      "urgent",
		BypassPolicy: true,
	})
	if err != nil {
		t.Fatalf("bypass send: %v", err)
	}
}

func TestSend_Concurrent(t *testing.T) {
	gormDB := openTestDB(t)
	registerAgent(t, gormDB, "acme", "Alice", models.PolicyOpen)
	registerAgent(t, gormDB, "acme", "Bob", models.PolicyOpen)
	registerAgent(t, gormDB, "acme", "Carol", models.PolicyOpen)

	var wg sync.WaitGroup
	errs := make([]error, 10)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = Send(gormDB, SendParams{
				ProjectSlug: "acme",
				From:        "Alice",
				To:          []string{"Bob", "Carol"},
				Subject:     "burst",
			})
		}(i)
	}
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			t.Fatalf("send %d: %v", i, err)
		}
	}

	// Every committed message has its full recipient set.
	var msgCount, recipientCount int64
	gormDB.Model(&models.Message{}).Count(&msgCount)
	gormDB.Model(&models.MessageRecipient{}).Count(&recipientCount)
	if msgCount != 10 {
		t.Errorf("got %d messages, want 10", msgCount)
	}
	if recipientCount != msgCount*2 {
		t.Errorf("got %d recipient rows for %d messages", recipientCount, msgCount)
	}
}

// ---------------------------------------------------------------------------
// Inbox / read / ack
// ---------------------------------------------------------------------------

func TestInbox_NewestFirstWithLimit(t *testing.T) {
	gormDB := openTestDB(t)
	registerAgent(t, gormDB, "acme", "Alice", models.PolicyOpen)
	registerAgent(t, gormDB, "acme", "Bob", models.PolicyOpen)

	for _, subject := range []string{"first", "second", "third"} {
		if _, err := Send(gormDB, SendParams{ProjectSlug: "acme", From: "Alice", To: []string{"Bob"}, Subject: subject}); err != nil {
			t.Fatalf("send %s: %v", subject, err)
		}
		time.Sleep(5 * time.Millisecond)
	}

	msgs, err := Inbox(gormDB, "acme", "Bob", 2, false)
	if err != nil {
		t.Fatalf("Inbox: %v", err)
	}
	if len(msgs) != 2 {
		t.Fatalf("got %d messages, want 2", len(msgs))
	}
	if msgs[0].Subject != "third" || msgs[1].Subject != "second" {
		t.Errorf("order = %q, %q; want third, second", msgs[0].Subject, msgs[1].Subject)
	}
	if msgs[0].SenderName != "Alice" {
		t.Errorf("SenderName = %q", msgs[0].SenderName)
	}
}

func TestInbox_UnreadOnly(t *testing.T) {
	gormDB := openTestDB(t)
	registerAgent(t, gormDB, "acme", "Alice", models.PolicyOpen)
	registerAgent(t, gormDB, "acme", "Bob", models.PolicyOpen)

	read, err := Send(gormDB, SendParams{ProjectSlug: "acme", From: "Alice", To: []string{"Bob"}, Subject: "seen"})
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if _, err := Send(gormDB, SendParams{ProjectSlug: "acme", From: "Alice", To: []string{"Bob"}, Subject: "fresh"}); err != nil {
		t.Fatalf("send: %v", err)
	}

	if err := MarkAsRead(gormDB, "acme", "Bob", []uint{read.ID}); err != nil {
		t.Fatalf("MarkAsRead: %v", err)
	}

	msgs, err := Inbox(gormDB, "acme", "Bob", 0, true)
	if err != nil {
		t.Fatalf("Inbox: %v", err)
	}
	if len(msgs) != 1 || msgs[0].Subject != "fresh" {
		t.Fatalf("unread inbox = %+v, want only fresh", msgs)
	}

	// Without the filter both remain visible.
	msgs, err = Inbox(gormDB, "acme", "Bob", 0, false)
	if err != nil {
		t.Fatalf("Inbox: %v", err)
	}
	if len(msgs) != 2 {
		t.Errorf("full inbox has %d messages, want 2", len(msgs))
	}
}

func TestInbox_SenderDoesNotSeeOwnMessage(t *testing.T) {
	gormDB := openTestDB(t)
	registerAgent(t, gormDB, "acme", "Alice", models.PolicyOpen)
	registerAgent(t, gormDB, "acme", "Bob", models.PolicyOpen)

	if _, err := Send(gormDB, SendParams{ProjectSlug: "acme", From: "Alice", To: []string{"Bob"}, Subject: "hi"}); err != nil {
		t.Fatalf("send: %v", err)
	}

	msgs, err := Inbox(gormDB, "acme", "Alice", 0, false)
	if err != nil {
		t.Fatalf("Inbox: %v", err)
	}
	if len(msgs) != 0 {
		t.Errorf("sender's inbox has %d messages, want 0", len(msgs))
	}
}

func TestMarkAsRead_ForwardOnly(t *testing.T) {
	gormDB := openTestDB(t)
	registerAgent(t, gormDB, "acme", "Alice", models.PolicyOpen)
	bob := registerAgent(t, gormDB, "acme", "Bob", models.PolicyOpen)

	msg, err := Send(gormDB, SendParams{ProjectSlug: "acme", From: "Alice", To: []string{"Bob"}, Subject: "hi"})
	if err != nil {
		t.Fatalf("send: %v", err)
	}

	if err := MarkAsRead(gormDB, "acme", "Bob", []uint{msg.ID}); err != nil {
		t.Fatalf("MarkAsRead: %v", err)
	}
	var row models.MessageRecipient
	if err := gormDB.Where("message_id = ? AND agent_id = ?", msg.ID, bob.ID).First(&row).Error; err != nil {
		t.Fatalf("load recipient: %v", err)
	}
	if row.ReadAt == nil {
		t.Fatal("ReadAt not set")
	}
	first := *row.ReadAt

	// A second mark keeps the original timestamp.
	time.Sleep(10 * time.Millisecond)
	if err := MarkAsRead(gormDB, "acme", "Bob", []uint{msg.ID}); err != nil {
		t.Fatalf("second MarkAsRead: %v", err)
	}
	if err := gormDB.Where("message_id = ? AND agent_id = ?", msg.ID, bob.ID).First(&row).Error; err != nil {
		t.Fatalf("reload recipient: %v", err)
	}
	if !row.ReadAt.Equal(first) {
		t.Errorf("ReadAt moved from %v to %v", first, *row.ReadAt)
	}
}

func TestMarkAsRead_SkipsForeignAndUnknownIDs(t *testing.T) {
	gormDB := openTestDB(t)
	registerAgent(t, gormDB, "acme", "Alice", models.PolicyOpen)
	registerAgent(t, gormDB, "acme", "Bob", models.PolicyOpen)
	carol := registerAgent(t, gormDB, "acme", "Carol", models.PolicyOpen)

	msg, err := Send(gormDB, SendParams{ProjectSlug: "acme", From: "Alice", To: []string{"Carol"}, Subject: "hi"})
	if err != nil {
		t.Fatalf("send: %v", err)
	}

	// Bob is not a recipient; marking from Bob touches nothing.
	if err := MarkAsRead(gormDB, "acme", "Bob", []uint{msg.ID, 9999}); err != nil {
		t.Fatalf("MarkAsRead: %v", err)
	}
	var row models.MessageRecipient
	if err := gormDB.Where("message_id = ? AND agent_id = ?", msg.ID, carol.ID).First(&row).Error; err != nil {
		t.Fatalf("load recipient: %v", err)
	}
	if row.ReadAt != nil {
		t.Error("foreign mark stamped Carol's row")
	}
}

func TestMarkAsRead_EmptyIDsIsNoop(t *testing.T) {
	gormDB := openTestDB(t)

	// No Whois lookup happens for an empty list, so even an unknown agent
	// succeeds.
	if err := MarkAsRead(gormDB, "acme", "Ghost", nil); err != nil {
		t.Fatalf("MarkAsRead: %v", err)
	}
}

func TestAcknowledge(t *testing.T) {
	gormDB := openTestDB(t)
	registerAgent(t, gormDB, "acme", "Alice", models.PolicyOpen)
	bob := registerAgent(t, gormDB, "acme", "Bob", models.PolicyOpen)

	msg, err := Send(gormDB, SendParams{
		ProjectSlug: "acme",
		From:        "Alice",
		To:          []string{"Bob"},
		Subject:     "please confirm",
		AckRequired: true,
	})
	if err != nil {
		t.Fatalf("send: %v", err)
	}

	if err := Acknowledge(gormDB, "acme", "Bob", []uint{msg.ID}); err != nil {
		t.Fatalf("Acknowledge: %v", err)
	}
	var row models.MessageRecipient
	if err := gormDB.Where("message_id = ? AND agent_id = ?", msg.ID, bob.ID).First(&row).Error; err != nil {
		t.Fatalf("load recipient: %v", err)
	}
	if row.AckAt == nil {
		t.Error("AckAt not set")
	}
	if row.ReadAt != nil {
		t.Error("ack should not imply read")
	}
}

// ---------------------------------------------------------------------------
// Threads / project view
// ---------------------------------------------------------------------------

func TestThread_OldestFirst(t *testing.T) {
	gormDB := openTestDB(t)
	registerAgent(t, gormDB, "acme", "Alice", models.PolicyOpen)
	registerAgent(t, gormDB, "acme", "Bob", models.PolicyOpen)

	first, err := Send(gormDB, SendParams{ProjectSlug: "acme", From: "Alice", To: []string{"Bob"}, Subject: "kickoff"})
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	time.Sleep(5 * time.Millisecond)
	if _, err := Send(gormDB, SendParams{
		ProjectSlug: "acme", From: "Bob", To: []string{"Alice"},
		Subject: "re: kickoff", ThreadID: first.ThreadID,
	}); err != nil {
		t.Fatalf("reply: %v", err)
	}

	msgs, err := Thread(gormDB, "acme", first.ThreadID)
	if err != nil {
		t.Fatalf("Thread: %v", err)
	}
	if len(msgs) != 2 {
		t.Fatalf("got %d messages, want 2", len(msgs))
	}
	if msgs[0].Subject != "kickoff" || msgs[1].Subject != "re: kickoff" {
		t.Errorf("order = %q, %q", msgs[0].Subject, msgs[1].Subject)
	}
	if msgs[0].SenderName != "Alice" || msgs[1].SenderName != "Bob" {
		t.Errorf("senders = %q, %q", msgs[0].SenderName, msgs[1].SenderName)
	}
}

func TestThread_ScopedToProject(t *testing.T) {
	gormDB := openTestDB(t)
	registerAgent(t, gormDB, "acme", "Alice", models.PolicyOpen)
	registerAgent(t, gormDB, "acme", "Bob", models.PolicyOpen)

	msg, err := Send(gormDB, SendParams{ProjectSlug: "acme", From: "Alice", To: []string{"Bob"}, Subject: "hi"})
	if err != nil {
		t.Fatalf("send: %v", err)
	}

	msgs, err := Thread(gormDB, "globex", msg.ThreadID)
	if err != nil {
		t.Fatalf("Thread: %v", err)
	}
	if len(msgs) != 0 {
		t.Errorf("thread leaked across projects: %d messages", len(msgs))
	}
}

func TestProjectMessages(t *testing.T) {
	gormDB := openTestDB(t)
	registerAgent(t, gormDB, "acme", "Alice", models.PolicyOpen)
	registerAgent(t, gormDB, "acme", "Bob", models.PolicyOpen)

	for _, subject := range []string{"one", "two"} {
		if _, err := Send(gormDB, SendParams{ProjectSlug: "acme", From: "Alice", To: []string{"Bob"}, Subject: subject}); err != nil {
			t.Fatalf("send %s: %v", subject, err)
		}
		time.Sleep(5 * time.Millisecond)
	}

	msgs, err := ProjectMessages(gormDB, "acme", 0)
	if err != nil {
		t.Fatalf("ProjectMessages: %v", err)
	}
	if len(msgs) != 2 {
		t.Fatalf("got %d messages, want 2", len(msgs))
	}
	if msgs[0].Subject != "two" {
		t.Errorf("newest first: got %q", msgs[0].Subject)
	}

	// Unknown projects read empty without provisioning.
	empty, err := ProjectMessages(gormDB, "ghost", 0)
	if err != nil {
		t.Fatalf("ProjectMessages ghost: %v", err)
	}
	if len(empty) != 0 {
		t.Errorf("got %d messages for unknown project", len(empty))
	}
}
