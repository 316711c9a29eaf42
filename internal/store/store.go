// Package store is the sole SQLite access point: it opens the
// Messages chat.db read-only, applies the pragmas that keep polling
// safe against a writer still appending rows, and exposes typed
// snapshot queries consumed by the rest of the reconciler.
//
// Grounded on imsg-rpc's internal/db/db.go (DSN shape, the
// immutable=1 warning, appleTime conversion) and jonathanwilner's
// db_test.go (in-memory fixture style for tests).
package store

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"

	_ "modernc.org/sqlite"

	"github.com/archerheffern/imessage-undeleter/internal/apperr"
	"github.com/archerheffern/imessage-undeleter/internal/model"
	"github.com/archerheffern/imessage-undeleter/internal/querycontext"
)

// appleEpochOffset is the number of seconds between 1970-01-01 and
// 2001-01-01, the zero point Messages timestamps are relative to.
const appleEpochOffset = 978307200

// Store wraps a read-only connection to chat.db.
type Store struct {
	db *sql.DB
}

// Open opens path read-only with a busy timeout tolerant of a writer
// still appending rows concurrently.
//
// immutable=1 is deliberately never used here: it snapshots the file
// at open time and hides every row appended afterward, which would
// make the reconciler blind to new messages (and their eventual
// retraction) for the lifetime of the connection.
func Open(ctx context.Context, path string) (*Store, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&mode=ro", filepath.Clean(path))
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, apperr.New(apperr.Database, "open", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, apperr.New(apperr.Database, "ping", err)
	}
	return &Store{db: db}, nil
}

// Close releases the underlying connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// HandleRows returns every row of the handle table, satisfying
// handle.Store.
func (s *Store) HandleRows(ctx context.Context) ([]model.Handle, error) {
	const q = `SELECT ROWID, id, person_centric_id FROM handle`
	rows, err := s.db.QueryContext(ctx, q)
	if err != nil {
		return nil, apperr.New(apperr.Database, "handle_rows", err)
	}
	defer func() { _ = rows.Close() }()

	var out []model.Handle
	for rows.Next() {
		var h model.Handle
		var person sql.NullString
		if err := rows.Scan(&h.RowID, &h.ID, &person); err != nil {
			return nil, apperr.New(apperr.Database, "handle_rows.scan", err)
		}
		if person.Valid {
			v := person.String
			h.PersonCentricID = &v
		}
		out = append(out, h)
	}
	return out, rows.Err()
}

// ChatRows returns every row of the chat table, satisfying
// conversation.Store.
func (s *Store) ChatRows(ctx context.Context) ([]model.Chat, error) {
	const q = `SELECT ROWID, chat_identifier, display_name FROM chat`
	rows, err := s.db.QueryContext(ctx, q)
	if err != nil {
		return nil, apperr.New(apperr.Database, "chat_rows", err)
	}
	defer func() { _ = rows.Close() }()

	var out []model.Chat
	for rows.Next() {
		var c model.Chat
		var display sql.NullString
		if err := rows.Scan(&c.RowID, &c.ChatIdentifier, &display); err != nil {
			return nil, apperr.New(apperr.Database, "chat_rows.scan", err)
		}
		if display.Valid {
			v := display.String
			c.DisplayName = &v
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// ChatParticipants returns the handle rowids belonging to chatRowID,
// satisfying conversation.Store.
func (s *Store) ChatParticipants(ctx context.Context, chatRowID int) ([]int, error) {
	const q = `SELECT handle_id FROM chat_handle_join WHERE chat_id = ?`
	rows, err := s.db.QueryContext(ctx, q, chatRowID)
	if err != nil {
		return nil, apperr.New(apperr.Database, "chat_participants", err)
	}
	defer func() { _ = rows.Close() }()

	var out []int
	for rows.Next() {
		var id int
		if err := rows.Scan(&id); err != nil {
			return nil, apperr.New(apperr.Database, "chat_participants.scan", err)
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

// SnapshotMessages returns the messages selected by qc's filters in
// ascending rowid order, decorated with attachment counts but not yet
// attachment rows (fetched separately per message via
// AttachmentsForMessage to keep this query cheap on every tick).
func (s *Store) SnapshotMessages(ctx context.Context, qc *querycontext.QueryContext) ([]model.Message, error) {
	q := `
SELECT m.ROWID, m.guid, cmj.chat_id, m.deleted_from, m.handle_id, m.is_from_me,
       m.date, IFNULL(m.date_edited, 0), m.item_type,
       m.associated_message_guid, m.associated_message_type,
       m.expressive_send_style_id, m.subject, m.balloon_bundle_id,
       IFNULL(m.attributedBody, x''), IFNULL(m.message_summary_info, x''),
       IFNULL(m.text, ''),
       (SELECT COUNT(*) FROM message_attachment_join maj WHERE maj.message_id = m.ROWID)
FROM message m
LEFT JOIN chat_message_join cmj ON cmj.message_id = m.ROWID
WHERE 1=1`

	var args []any
	if qc != nil {
		if len(qc.SelectedChatIDs) > 0 {
			q += " AND cmj.chat_id IN (" + placeholders(len(qc.SelectedChatIDs)) + ")"
			for id := range qc.SelectedChatIDs {
				args = append(args, id)
			}
		}
		if len(qc.SelectedHandleIDs) > 0 {
			q += " AND m.handle_id IN (" + placeholders(len(qc.SelectedHandleIDs)) + ")"
			for id := range qc.SelectedHandleIDs {
				args = append(args, id)
			}
		}
	}
	q += " ORDER BY m.ROWID ASC"
	if qc != nil && qc.Limit != nil {
		q += " LIMIT ?"
		args = append(args, *qc.Limit)
	}

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, apperr.New(apperr.Database, "snapshot_messages", err)
	}
	defer func() { _ = rows.Close() }()

	var out []model.Message
	for rows.Next() {
		var m model.Message
		var (
			chatID, handleID, deletedFrom sql.NullInt64
			assocGUID, expressive         sql.NullString
			subject, balloonBundle        sql.NullString
			assocType                     sql.NullInt64
		)
		if err := rows.Scan(
			&m.RowID, &m.GUID, &chatID, &deletedFrom, &handleID, &m.IsFromMe,
			&m.Date, &m.DateEdited, &m.ItemType,
			&assocGUID, &assocType,
			&expressive, &subject, &balloonBundle,
			&m.AttributedBody, &m.MessageSummaryInfo,
			&m.Text, &m.NumAttachments,
		); err != nil {
			return nil, apperr.New(apperr.Database, "snapshot_messages.scan", err)
		}
		if chatID.Valid {
			v := chatID.Int64
			m.ChatID = &v
		}
		if deletedFrom.Valid {
			v := deletedFrom.Int64
			m.DeletedFrom = &v
		}
		if handleID.Valid {
			v := handleID.Int64
			m.HandleID = &v
		}
		if assocGUID.Valid {
			v := assocGUID.String
			m.AssociatedMessageGUID = &v
		}
		if assocType.Valid {
			v := int(assocType.Int64)
			m.AssociatedMessageType = &v
		}
		if expressive.Valid {
			v := expressive.String
			m.ExpressiveSendStyleID = &v
		}
		if subject.Valid {
			v := subject.String
			m.Subject = &v
		}
		if balloonBundle.Valid {
			v := balloonBundle.String
			m.BalloonBundleID = &v
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// AttachmentsForMessage returns attachment metadata joined to a
// message rowid.
func (s *Store) AttachmentsForMessage(ctx context.Context, messageRowID int64) ([]model.Attachment, error) {
	const q = `
SELECT a.ROWID, a.filename, a.transfer_name, a.mime_type, a.uti, a.total_bytes, a.is_sticker, a.hide_attachment
FROM message_attachment_join maj
JOIN attachment a ON a.ROWID = maj.attachment_id
WHERE maj.message_id = ?`

	rows, err := s.db.QueryContext(ctx, q, messageRowID)
	if err != nil {
		return nil, apperr.New(apperr.Database, "attachments_for_message", err)
	}
	defer func() { _ = rows.Close() }()

	var out []model.Attachment
	for rows.Next() {
		var a model.Attachment
		var filename, mime, uti sql.NullString
		if err := rows.Scan(&a.RowID, &filename, &a.TransferName, &mime, &uti, &a.TotalBytes, &a.IsSticker, &a.HideAttachment); err != nil {
			return nil, apperr.New(apperr.Database, "attachments_for_message.scan", err)
		}
		if filename.Valid {
			v := filename.String
			a.Filename = &v
		}
		if mime.Valid {
			v := mime.String
			a.MimeType = &v
		}
		if uti.Valid {
			v := uti.String
			a.UTI = &v
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// MaxMessageRowID returns the highest message rowid currently present
// (0 when the message table is empty). The reconciler's Store interface
// does not include it.
func (s *Store) MaxMessageRowID(ctx context.Context) (int64, error) {
	var max sql.NullInt64
	if err := s.db.QueryRowContext(ctx, "SELECT MAX(ROWID) FROM message").Scan(&max); err != nil {
		return 0, apperr.New(apperr.Database, "max_message_rowid", err)
	}
	return max.Int64, nil
}

func placeholders(n int) string {
	out := make([]byte, 0, n*2-1)
	for i := 0; i < n; i++ {
		if i > 0 {
			out = append(out, ',')
		}
		out = append(out, '?')
	}
	return string(out)
}

// AppleTimeToUnixNano converts a Messages date column (nanoseconds
// since 2001-01-01) to nanoseconds since the Unix epoch.
func AppleTimeToUnixNano(appleNs int64) int64 {
	return appleNs + appleEpochOffset*1_000_000_000
}
