package store

import (
	"context"
	"database/sql"
	"testing"

	_ "modernc.org/sqlite"
)

// newTestStore builds an in-memory chat.db fixture with the subset of
// schema the reconciler reads, mirroring the fixture style in
// imsg-rpc's db_test.go.
func newTestStore(t *testing.T) *Store {
	t.Helper()
	db, err := sql.Open("sqlite", "file:undeleter_test?mode=memory&cache=shared")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	stmts := []string{
		`CREATE TABLE chat (ROWID INTEGER PRIMARY KEY, chat_identifier TEXT, display_name TEXT);`,
		`CREATE TABLE handle (ROWID INTEGER PRIMARY KEY, id TEXT, person_centric_id TEXT);`,
		`CREATE TABLE chat_handle_join (chat_id INTEGER, handle_id INTEGER);`,
		`CREATE TABLE chat_message_join (chat_id INTEGER, message_id INTEGER);`,
		`CREATE TABLE message (
			ROWID INTEGER PRIMARY KEY, guid TEXT, deleted_from INTEGER, handle_id INTEGER,
			is_from_me INTEGER, date INTEGER, date_edited INTEGER, item_type INTEGER,
			associated_message_guid TEXT, associated_message_type INTEGER,
			expressive_send_style_id TEXT, subject TEXT, balloon_bundle_id TEXT,
			attributedBody BLOB, message_summary_info BLOB, text TEXT
		);`,
		`CREATE TABLE attachment (
			ROWID INTEGER PRIMARY KEY, filename TEXT, transfer_name TEXT, mime_type TEXT,
			uti TEXT, total_bytes INTEGER, is_sticker INTEGER, hide_attachment INTEGER
		);`,
		`CREATE TABLE message_attachment_join (message_id INTEGER, attachment_id INTEGER);`,
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			t.Fatalf("exec %s: %v", s, err)
		}
	}

	_, _ = db.Exec(`INSERT INTO chat(ROWID, chat_identifier, display_name) VALUES (1, '+15550001', NULL)`)
	_, _ = db.Exec(`INSERT INTO handle(ROWID, id, person_centric_id) VALUES (1, '+15550001', NULL)`)
	_, _ = db.Exec(`INSERT INTO chat_handle_join(chat_id, handle_id) VALUES (1, 1)`)

	_, _ = db.Exec(`INSERT INTO message(ROWID, guid, handle_id, is_from_me, date, date_edited, item_type, text)
		VALUES (1, 'p:0/abc', 1, 0, 1000, 0, 0, 'hello')`)
	_, _ = db.Exec(`INSERT INTO chat_message_join(chat_id, message_id) VALUES (1, 1)`)

	_, _ = db.Exec(`INSERT INTO attachment(ROWID, filename, transfer_name, mime_type, uti, total_bytes, is_sticker, hide_attachment)
		VALUES (1, '~/Library/Messages/Attachments/test.dat', 'test.dat', 'application/octet-stream', 'public.data', 123, 0, 0)`)
	_, _ = db.Exec(`INSERT INTO message_attachment_join(message_id, attachment_id) VALUES (1, 1)`)

	return &Store{db: db}
}

func TestHandleRows(t *testing.T) {
	s := newTestStore(t)
	defer func() { _ = s.Close() }()

	rows, err := s.HandleRows(context.Background())
	if err != nil {
		t.Fatalf("HandleRows: %v", err)
	}
	if len(rows) != 1 || rows[0].ID != "+15550001" {
		t.Fatalf("unexpected rows: %+v", rows)
	}
}

func TestChatRowsAndParticipants(t *testing.T) {
	s := newTestStore(t)
	defer func() { _ = s.Close() }()

	chats, err := s.ChatRows(context.Background())
	if err != nil {
		t.Fatalf("ChatRows: %v", err)
	}
	if len(chats) != 1 || chats[0].ChatIdentifier != "+15550001" {
		t.Fatalf("unexpected chats: %+v", chats)
	}

	participants, err := s.ChatParticipants(context.Background(), 1)
	if err != nil {
		t.Fatalf("ChatParticipants: %v", err)
	}
	if len(participants) != 1 || participants[0] != 1 {
		t.Fatalf("unexpected participants: %v", participants)
	}
}

func TestSnapshotMessages(t *testing.T) {
	s := newTestStore(t)
	defer func() { _ = s.Close() }()

	msgs, err := s.SnapshotMessages(context.Background(), nil)
	if err != nil {
		t.Fatalf("SnapshotMessages: %v", err)
	}
	if len(msgs) != 1 {
		t.Fatalf("expected 1 message, got %d", len(msgs))
	}
	if msgs[0].Text != "hello" {
		t.Fatalf("unexpected text: %q", msgs[0].Text)
	}
	if msgs[0].ChatID == nil || *msgs[0].ChatID != 1 {
		t.Fatalf("expected chat_id 1, got %v", msgs[0].ChatID)
	}
	if msgs[0].NumAttachments != 1 {
		t.Fatalf("expected 1 attachment count, got %d", msgs[0].NumAttachments)
	}
}

func TestAttachmentsForMessage(t *testing.T) {
	s := newTestStore(t)
	defer func() { _ = s.Close() }()

	atts, err := s.AttachmentsForMessage(context.Background(), 1)
	if err != nil {
		t.Fatalf("AttachmentsForMessage: %v", err)
	}
	if len(atts) != 1 {
		t.Fatalf("expected 1 attachment, got %d", len(atts))
	}
	if atts[0].MimeType == nil || *atts[0].MimeType != "application/octet-stream" {
		t.Fatalf("unexpected mime: %+v", atts[0].MimeType)
	}
}

func TestMaxMessageRowID(t *testing.T) {
	s := newTestStore(t)
	defer func() { _ = s.Close() }()

	max, err := s.MaxMessageRowID(context.Background())
	if err != nil {
		t.Fatalf("MaxMessageRowID: %v", err)
	}
	if max != 1 {
		t.Fatalf("expected max rowid 1, got %d", max)
	}
}
