package decode

import (
	"testing"

	"github.com/archerheffern/imessage-undeleter/internal/model"
)

func textPtr(s string) *string { return &s }

// buildEditPayload assembles a minimal message_summary_info blob for
// tests: a part count varint, then per part a status byte, optional
// history count, and per-history-entry {date int64, hasText byte,
// [length varint + bytes]}.
func buildEditPayload(parts []model.EditedPart) []byte {
	var buf []byte
	buf = appendVarint(buf, len(parts))
	for _, p := range parts {
		buf = append(buf, editStatusByteFor(p.Status))
		if p.Status == model.EditStatusOriginal {
			continue
		}
		buf = appendVarint(buf, len(p.History))
		for _, h := range p.History {
			buf = appendInt64(buf, h.Date)
			if h.Text == nil {
				buf = append(buf, editNullTextByte)
			} else {
				buf = append(buf, editHasTextByte)
				buf = appendVarint(buf, len(*h.Text))
				buf = append(buf, []byte(*h.Text)...)
			}
		}
	}
	return buf
}

func editStatusByteFor(s model.EditStatus) byte {
	switch s {
	case model.EditStatusOriginal:
		return editStatusOriginalByte
	case model.EditStatusEdited:
		return editStatusEditedByte
	default:
		return editStatusUnsentByte
	}
}

func appendVarint(buf []byte, n int) []byte {
	for {
		b := byte(n & 0x7f)
		n >>= 7
		if n != 0 {
			b |= 0x80
		}
		buf = append(buf, b)
		if n == 0 {
			break
		}
	}
	return buf
}

func appendInt64(buf []byte, v int64) []byte {
	u := uint64(v)
	for i := 0; i < 8; i++ {
		buf = append(buf, byte(u))
		u >>= 8
	}
	return buf
}

func TestDecodeEditedMessageEmptyPayload(t *testing.T) {
	got, err := DecodeEditedMessage(nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got.Parts) != 0 {
		t.Fatalf("expected zero parts, got %d", len(got.Parts))
	}
}

func TestDecodeEditedMessageOriginalHasNoHistory(t *testing.T) {
	payload := buildEditPayload([]model.EditedPart{{Status: model.EditStatusOriginal}})
	got, err := DecodeEditedMessage(payload)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got.Parts) != 1 || got.Parts[0].Status != model.EditStatusOriginal {
		t.Fatalf("unexpected parts: %+v", got.Parts)
	}
	if len(got.Parts[0].History) != 0 {
		t.Fatalf("expected zero history entries for Original part")
	}
}

func TestDecodeEditedMessageUnsentHasNilTerminalText(t *testing.T) {
	payload := buildEditPayload([]model.EditedPart{
		{Status: model.EditStatusUnsent, History: []model.EditEvent{{Date: 100, Text: nil}}},
	})
	got, err := DecodeEditedMessage(payload)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	part := got.Parts[0]
	if part.Status != model.EditStatusUnsent {
		t.Fatalf("expected Unsent status")
	}
	if len(part.History) != 1 || part.History[0].Text != nil {
		t.Fatalf("expected single terminal entry with nil text, got %+v", part.History)
	}
}

func TestDecodeEditedMessageMixedParts(t *testing.T) {
	// Scenario 6 from spec.md §8: [Original, Edited({d1:"a"},{d2:"b"}), Unsent({d3:nil})]
	payload := buildEditPayload([]model.EditedPart{
		{Status: model.EditStatusOriginal},
		{Status: model.EditStatusEdited, History: []model.EditEvent{
			{Date: 1, Text: textPtr("a")},
			{Date: 2, Text: textPtr("b")},
		}},
		{Status: model.EditStatusUnsent, History: []model.EditEvent{{Date: 3, Text: nil}}},
	})

	first, err := DecodeEditedMessage(payload)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	second, err := DecodeEditedMessage(payload)
	if err != nil {
		t.Fatalf("unexpected error on second decode: %v", err)
	}

	if len(first.Parts) != 3 || len(second.Parts) != 3 {
		t.Fatalf("expected 3 parts on both decodes")
	}
	for i := range first.Parts {
		if first.Parts[i].Status != second.Parts[i].Status {
			t.Fatalf("round-trip mismatch at part %d status", i)
		}
		if len(first.Parts[i].History) != len(second.Parts[i].History) {
			t.Fatalf("round-trip mismatch at part %d history length", i)
		}
	}
}
