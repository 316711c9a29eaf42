// Package conversation implements the Conversation Resolver: chat
// metadata caching, participant-set deduplication, and sanitized
// filename derivation, grounded on runtime.rs's Config::conversation /
// Config::filename family.
package conversation

import (
	"context"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/archerheffern/imessage-undeleter/internal/model"
)

// maxFilenameLength is the truncation budget runtime.rs's
// filename_from_participants enforces (235 characters, leaving margin
// under common filesystem path-component limits).
const maxFilenameLength = 235

// Store is the minimal read interface this package needs.
type Store interface {
	ChatRows(ctx context.Context) ([]model.Chat, error)
	ChatParticipants(ctx context.Context, chatRowID int) ([]int, error)
}

// Cache builds the chat_rowid -> Chat map and the chat_rowid -> sorted
// participant handle-rowid set.
func Cache(ctx context.Context, s Store) (map[int]model.Chat, map[int][]int, error) {
	rows, err := s.ChatRows(ctx)
	if err != nil {
		return nil, nil, err
	}

	chats := make(map[int]model.Chat, len(rows))
	participants := make(map[int][]int, len(rows))
	for _, c := range rows {
		chats[c.RowID] = c
		ids, err := s.ChatParticipants(ctx, c.RowID)
		if err != nil {
			return nil, nil, err
		}
		sorted := append([]int(nil), ids...)
		sort.Ints(sorted)
		participants[c.RowID] = sorted
	}
	return chats, participants, nil
}

// DedupeChats follows the same first-seen dense-id assignment as
// handle.Dedupe (ascending rowid order), but keyed by the sorted
// participant set rather than the display identifier: two chats with identical participant sets (e.g. a
// 1:1 chat that exists under both an iMessage and SMS service entry)
// collapse to the same dense id.
func DedupeChats(participants map[int][]int) map[int]int {
	rowids := make([]int, 0, len(participants))
	for rowid := range participants {
		rowids = append(rowids, rowid)
	}
	sort.Ints(rowids)

	assigned := make(map[string]int)
	result := make(map[int]int, len(participants))
	next := 0
	for _, rowid := range rowids {
		key := participantKey(participants[rowid])
		id, ok := assigned[key]
		if !ok {
			id = next
			assigned[key] = id
			next++
		}
		result[rowid] = id
	}
	return result
}

func participantKey(ids []int) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = itoa(id)
	}
	return strings.Join(parts, ",")
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var digits []byte
	for n > 0 {
		digits = append([]byte{byte('0' + n%10)}, digits...)
		n /= 10
	}
	if neg {
		digits = append([]byte{'-'}, digits...)
	}
	return string(digits)
}

// Filename derives the sanitized export filename for a chat: the
// display name plus rowid when present, otherwise the deduped
// participant display identifiers joined with ", " and elided with
// "and N others" when the 235-rune budget is exceeded. Filesystem-
// unsafe characters are replaced with '_'.
func Filename(chat model.Chat, participantIDs []int, displayIDs map[int]string) string {
	var raw string
	if chat.DisplayName != nil && *chat.DisplayName != "" {
		raw = truncateRunes(*chat.DisplayName, maxFilenameLength-dashRowidLen(chat.RowID)) + dashRowid(chat.RowID)
	} else {
		raw = filenameFromParticipants(participantIDs, displayIDs)
	}
	return sanitize(raw)
}

func dashRowid(rowid int) string {
	return " - " + itoa(rowid)
}

func dashRowidLen(rowid int) int {
	return utf8.RuneCountInString(dashRowid(rowid))
}

// filenameFromParticipants joins participant display identifiers with
// ", ". When the full join would exceed maxFilenameLength it keeps as
// many leading names as fit alongside an ", and N others" suffix,
// dropping the trailing names that the suffix counts. If not even the
// first name fits with the suffix, it returns the first name truncated
// to maxFilenameLength, with no suffix.
func filenameFromParticipants(participantIDs []int, displayIDs map[int]string) string {
	names := make([]string, 0, len(participantIDs))
	for _, id := range participantIDs {
		if name, ok := displayIDs[id]; ok {
			names = append(names, name)
		}
	}
	if len(names) == 0 {
		return "Unknown"
	}

	full := strings.Join(names, ", ")
	if utf8.RuneCountInString(full) <= maxFilenameLength {
		return full
	}

	// Search downward for the largest prefix count of names whose
	// joined string plus the elision suffix fits the budget.
	for n := len(names) - 1; n >= 1; n-- {
		suffix := ", and " + itoa(len(names)-n) + " others"
		candidate := strings.Join(names[:n], ", ") + suffix
		if utf8.RuneCountInString(candidate) <= maxFilenameLength {
			return candidate
		}
	}
	return truncateRunes(names[0], maxFilenameLength)
}

func truncateRunes(s string, n int) string {
	if n <= 0 {
		return ""
	}
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

// sanitize replaces filesystem-unsafe characters (path separators,
// NUL, control characters) with '_'.
func sanitize(name string) string {
	var b strings.Builder
	b.Grow(len(name))
	for _, r := range name {
		switch {
		case r == '/' || r == '\\' || r == 0:
			b.WriteRune('_')
		case r < 0x20:
			b.WriteRune('_')
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}
