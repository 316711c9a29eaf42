package logwriter

import (
	"bytes"
	"strings"
	"testing"
	"time"
)

func TestAppendFormatsRecordWithText(t *testing.T) {
	var buf bytes.Buffer
	ts := time.Date(2026, 1, 2, 15, 4, 5, 0, time.UTC)
	err := Append(&buf, Record{
		Sender:          "Me",
		Timestamp:       ts,
		Text:            "hello",
		HasText:         true,
		AttachmentPaths: nil,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	got := buf.String()
	if !strings.HasPrefix(got, "===Me:"+ts.Format(time.RFC3339)+"\n") {
		t.Fatalf("unexpected header: %q", got)
	}
	if !strings.Contains(got, "Text: hello\n") {
		t.Fatalf("expected text line, got %q", got)
	}
	if !strings.HasSuffix(got, "Attachments:\n") {
		t.Fatalf("expected trailing empty attachments section, got %q", got)
	}
}

func TestAppendOmitsTextWhenAbsent(t *testing.T) {
	var buf bytes.Buffer
	err := Append(&buf, Record{Sender: "Me", Timestamp: time.Now(), HasText: false})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if strings.Contains(buf.String(), "Text:") {
		t.Fatalf("expected no Text: line, got %q", buf.String())
	}
}

func TestAppendListsAttachmentPaths(t *testing.T) {
	var buf bytes.Buffer
	err := Append(&buf, Record{
		Sender:          "Me",
		Timestamp:       time.Now(),
		AttachmentPaths: []string{"/root/permanent/0", "/root/permanent/1"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	got := buf.String()
	if !strings.Contains(got, "/root/permanent/0\n/root/permanent/1\n") {
		t.Fatalf("expected both attachment paths listed in order, got %q", got)
	}
}

func TestWhoResolvesMeAndUnknown(t *testing.T) {
	zero := int64(0)
	unresolved := int64(99)
	displayIDs := map[int]string{0: "Me", 1: "alice@x"}

	if got := Who(&zero, displayIDs, "", false, true); got != "Me" {
		t.Fatalf("expected Me for handle 0, got %q", got)
	}
	if got := Who(&unresolved, displayIDs, "", false, false); got != "Unknown" {
		t.Fatalf("expected Unknown for unresolved handle, got %q", got)
	}
	if got := Who(nil, displayIDs, "", false, false); got != "Unknown" {
		t.Fatalf("expected Unknown for nil handle, got %q", got)
	}
}

func TestWhoPrefersCustomNameWhenCallerIDEnabledAndFromMe(t *testing.T) {
	zero := int64(0)
	displayIDs := map[int]string{0: "Me"}
	got := Who(&zero, displayIDs, "Archer", true, true)
	if got != "Archer" {
		t.Fatalf("expected custom name override, got %q", got)
	}
}

func TestWhoIgnoresCustomNameForContactMessages(t *testing.T) {
	alice := int64(1)
	displayIDs := map[int]string{1: "alice@x"}
	got := Who(&alice, displayIDs, "Archer", true, false)
	if got != "alice@x" {
		t.Fatalf("expected contact's own display name, got %q (custom-name override must not apply to messages not from me)", got)
	}
}
