package policy

import (
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/zulandar/switchboard/internal/db"
	"github.com/zulandar/switchboard/internal/models"
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

func TestRequestContact_CreatesPending(t *testing.T) {
	gormDB := openTestDB(t)

	link, err := RequestContact(gormDB, 1, 10, 20, "let's coordinate")
	if err != nil {
		t.Fatalf("RequestContact: %v", err)
	}
	if link.Status != models.LinkPending {
		t.Errorf("Status = %q, want pending", link.Status)
	}
	if link.Reason != "let's coordinate" {
		t.Errorf("Reason = %q", link.Reason)
	}
	if link.ExpiresAt != nil {
		t.Error("fresh request should have no expiry")
	}
}

func TestRequestContact_ReRequestResetsExistingRow(t *testing.T) {
	gormDB := openTestDB(t)

	first, err := RequestContact(gormDB, 1, 10, 20, "first ask")
	if err != nil {
		t.Fatalf("first request: %v", err)
	}
	if _, err := RespondContact(gormDB, 1, 10, 20, models.LinkDenied); err != nil {
		t.Fatalf("deny: %v", err)
	}

	second, err := RequestContact(gormDB, 1, 10, 20, "second ask")
	if err != nil {
		t.Fatalf("re-request: %v", err)
	}
	if second.ID != first.ID {
		t.Errorf("re-request created a new row: %d vs %d", second.ID, first.ID)
	}
	if second.Status != models.LinkPending {
		t.Errorf("Status = %q, want pending", second.Status)
	}
	if second.Reason != "second ask" {
		t.Errorf("Reason = %q", second.Reason)
	}

	var count int64
	gormDB.Model(&models.AgentLink{}).Count(&count)
	if count != 1 {
		t.Errorf("got %d link rows, want 1", count)
	}
}

func TestRequestContact_ReRequestClearsExpiry(t *testing.T) {
	gormDB := openTestDB(t)

	if _, err := RequestContact(gormDB, 1, 10, 20, ""); err != nil {
		t.Fatalf("request: %v", err)
	}
	if _, err := RespondContact(gormDB, 1, 10, 20, models.LinkApproved); err != nil {
		t.Fatalf("approve: %v", err)
	}

	link, err := RequestContact(gormDB, 1, 10, 20, "again")
	if err != nil {
		t.Fatalf("re-request: %v", err)
	}
	if link.ExpiresAt != nil {
		t.Error("re-request should clear the approval window")
	}
}

func TestRespondContact_ApproveOpensWindow(t *testing.T) {
	gormDB := openTestDB(t)

	if _, err := RequestContact(gormDB, 1, 10, 20, ""); err != nil {
		t.Fatalf("request: %v", err)
	}

	link, err := RespondContact(gormDB, 1, 10, 20, models.LinkApproved)
	if err != nil {
		t.Fatalf("approve: %v", err)
	}
	if link.Status != models.LinkApproved {
		t.Errorf("Status = %q", link.Status)
	}
	if link.ExpiresAt == nil {
		t.Fatal("approval should set an expiry")
	}
	remaining := time.Until(*link.ExpiresAt)
	if remaining < ContactTTL-time.Minute || remaining > ContactTTL {
		t.Errorf("expiry %v from now, want about %v", remaining, ContactTTL)
	}
}

func TestRespondContact_DenyClearsExpiry(t *testing.T) {
	gormDB := openTestDB(t)

	if _, err := RequestContact(gormDB, 1, 10, 20, ""); err != nil {
		t.Fatalf("request: %v", err)
	}
	if _, err := RespondContact(gormDB, 1, 10, 20, models.LinkApproved); err != nil {
		t.Fatalf("approve: %v", err)
	}

	link, err := RespondContact(gormDB, 1, 10, 20, models.LinkDenied)
	if err != nil {
		t.Fatalf("deny: %v", err)
	}
	if link.Status != models.LinkDenied {
		t.Errorf("Status = %q", link.Status)
	}
	if link.ExpiresAt != nil {
		t.Error("denial should clear the expiry")
	}
}

func TestRespondContact_NoRequest(t *testing.T) {
	gormDB := openTestDB(t)

	_, err := RespondContact(gormDB, 1, 10, 20, models.LinkApproved)
	if !errors.Is(err, ErrLinkNotFound) {
		t.Errorf("err = %v, want ErrLinkNotFound", err)
	}
}

func TestRespondContact_InvalidDecision(t *testing.T) {
	gormDB := openTestDB(t)

	if _, err := RespondContact(gormDB, 1, 10, 20, models.LinkPending); err == nil {
		t.Error("pending should not be a valid decision")
	}
	if _, err := RespondContact(gormDB, 1, 10, 20, "maybe"); err == nil {
		t.Error("arbitrary strings should not be valid decisions")
	}
}

func TestCanMessage_OpenAlwaysAllows(t *testing.T) {
	gormDB := openTestDB(t)

	ok, err := CanMessage(gormDB, 1, 10, 20, models.PolicyOpen)
	if err != nil {
		t.Fatalf("CanMessage: %v", err)
	}
	if !ok {
		t.Error("open policy should allow without any link")
	}
}

func TestCanMessage_ContactsOnly(t *testing.T) {
	gormDB := openTestDB(t)

	ok, err := CanMessage(gormDB, 1, 10, 20, models.PolicyContactsOnly)
	if err != nil {
		t.Fatalf("CanMessage: %v", err)
	}
	if ok {
		t.Error("no link should block contacts_only")
	}

	if _, err := RequestContact(gormDB, 1, 10, 20, ""); err != nil {
		t.Fatalf("request: %v", err)
	}
	ok, _ = CanMessage(gormDB, 1, 10, 20, models.PolicyContactsOnly)
	if ok {
		t.Error("pending link should block")
	}

	if _, err := RespondContact(gormDB, 1, 10, 20, models.LinkApproved); err != nil {
		t.Fatalf("approve: %v", err)
	}
	ok, _ = CanMessage(gormDB, 1, 10, 20, models.PolicyContactsOnly)
	if !ok {
		t.Error("approved link should allow")
	}

	if _, err := RespondContact(gormDB, 1, 10, 20, models.LinkDenied); err != nil {
		t.Fatalf("deny: %v", err)
	}
	ok, _ = CanMessage(gormDB, 1, 10, 20, models.PolicyContactsOnly)
	if ok {
		t.Error("denied link should block")
	}
}

func TestCanMessage_AutoMatchesContactsOnly(t *testing.T) {
	gormDB := openTestDB(t)

	ok, err := CanMessage(gormDB, 1, 10, 20, models.PolicyAuto)
	if err != nil {
		t.Fatalf("CanMessage: %v", err)
	}
	if ok {
		t.Error("auto without a link should block, like contacts_only")
	}

	if _, err := RequestContact(gormDB, 1, 10, 20, ""); err != nil {
		t.Fatalf("request: %v", err)
	}
	if _, err := RespondContact(gormDB, 1, 10, 20, models.LinkApproved); err != nil {
		t.Fatalf("approve: %v", err)
	}
	ok, _ = CanMessage(gormDB, 1, 10, 20, models.PolicyAuto)
	if !ok {
		t.Error("auto with an approved link should allow")
	}
}

func TestCanMessage_ExpiredApprovalBlocks(t *testing.T) {
	gormDB := openTestDB(t)

	if _, err := RequestContact(gormDB, 1, 10, 20, ""); err != nil {
		t.Fatalf("request: %v", err)
	}
	if _, err := RespondContact(gormDB, 1, 10, 20, models.LinkApproved); err != nil {
		t.Fatalf("approve: %v", err)
	}

	// Age the approval past its window.
	past := time.Now().Add(-time.Hour)
	if err := gormDB.Model(&models.AgentLink{}).
		Where("project_id = ? AND from_agent_id = ? AND to_agent_id = ?", 1, 10, 20).
		Update("expires_at", past).Error; err != nil {
		t.Fatalf("age link: %v", err)
	}

	ok, err := CanMessage(gormDB, 1, 10, 20, models.PolicyContactsOnly)
	if err != nil {
		t.Fatalf("CanMessage: %v", err)
	}
	if ok {
		t.Error("expired approval should block")
	}
}

func TestCanMessage_Directional(t *testing.T) {
	gormDB := openTestDB(t)

	if _, err := RequestContact(gormDB, 1, 10, 20, ""); err != nil {
		t.Fatalf("request: %v", err)
	}
	if _, err := RespondContact(gormDB, 1, 10, 20, models.LinkApproved); err != nil {
		t.Fatalf("approve: %v", err)
	}

	// Approval covers 10->20, not the reverse.
	ok, _ := CanMessage(gormDB, 1, 20, 10, models.PolicyContactsOnly)
	if ok {
		t.Error("reverse direction should not inherit the approval")
	}
}

func TestListContacts(t *testing.T) {
	gormDB := openTestDB(t)

	// 10->20 approved, 30->10 approved, 10->40 pending.
	for _, pair := range [][2]uint{{10, 20}, {30, 10}, {10, 40}} {
		if _, err := RequestContact(gormDB, 1, pair[0], pair[1], ""); err != nil {
			t.Fatalf("request %v: %v", pair, err)
		}
	}
	for _, pair := range [][2]uint{{10, 20}, {30, 10}} {
		if _, err := RespondContact(gormDB, 1, pair[0], pair[1], models.LinkApproved); err != nil {
			t.Fatalf("approve %v: %v", pair, err)
		}
	}

	links, err := ListContacts(gormDB, 1, 10)
	if err != nil {
		t.Fatalf("ListContacts: %v", err)
	}
	if len(links) != 2 {
		t.Fatalf("got %d contacts, want 2 (both directions, approved only)", len(links))
	}
	for _, l := range links {
		if l.Status != models.LinkApproved {
			t.Errorf("contact %d->%d status %q", l.FromAgentID, l.ToAgentID, l.Status)
		}
	}
}
