package decode

import (
	"encoding/binary"
	"fmt"

	"github.com/archerheffern/imessage-undeleter/internal/apperr"
	"github.com/archerheffern/imessage-undeleter/internal/model"
)

// Edit-history payload framing: a varint part count, then per part a
// status byte; Original parts end there, other parts continue with a
// varint count of history entries, each entry an 8-byte little-endian
// date, a has-text byte, and (when that byte is editHasTextByte) a
// varint-length-prefixed text string. The terminal Unsent entry has no
// text.
const (
	editStatusOriginalByte = 0x00
	editStatusEditedByte   = 0x01
	editStatusUnsentByte   = 0x02
	editNullTextByte       = 0x00
	editHasTextByte        = 0x01
)

// DecodeEditedMessage parses the message_summary_info blob into a
// per-part edit history. An empty or nil blob yields a zero-part
// EditedMessage (no error): most messages have no edit history at
// all, and that is not a decode failure.
func DecodeEditedMessage(summaryInfo []byte) (model.EditedMessage, error) {
	if len(summaryInfo) == 0 {
		return model.EditedMessage{}, nil
	}

	r := &editReader{buf: summaryInfo}
	partCount, err := r.readVarint()
	if err != nil {
		return model.EditedMessage{}, apperr.New(apperr.MessageDecode, "decode_edited.part_count", err)
	}

	parts := make([]model.EditedPart, 0, partCount)
	for i := 0; i < partCount; i++ {
		part, err := r.readPart()
		if err != nil {
			return model.EditedMessage{}, apperr.New(apperr.MessageDecode, fmt.Sprintf("decode_edited.part[%d]", i), err)
		}
		parts = append(parts, part)
	}
	return model.EditedMessage{Parts: parts}, nil
}

type editReader struct {
	buf []byte
	pos int
}

func (r *editReader) eof() bool { return r.pos >= len(r.buf) }

func (r *editReader) readByte() (byte, error) {
	if r.eof() {
		return 0, fmt.Errorf("unexpected end of edit-history payload at offset %d", r.pos)
	}
	b := r.buf[r.pos]
	r.pos++
	return b, nil
}

// readVarint reads a LEB128-style unsigned varint, the compact integer
// encoding typed-stream payloads use for counts and date deltas.
func (r *editReader) readVarint() (int, error) {
	var result int
	var shift uint
	for {
		b, err := r.readByte()
		if err != nil {
			return 0, err
		}
		result |= int(b&0x7f) << shift
		if b&0x80 == 0 {
			break
		}
		shift += 7
		if shift > 63 {
			return 0, fmt.Errorf("varint too long")
		}
	}
	return result, nil
}

func (r *editReader) readInt64() (int64, error) {
	if r.pos+8 > len(r.buf) {
		return 0, fmt.Errorf("unexpected end of edit-history payload reading date at offset %d", r.pos)
	}
	v := int64(binary.LittleEndian.Uint64(r.buf[r.pos : r.pos+8]))
	r.pos += 8
	return v, nil
}

func (r *editReader) readLengthPrefixedString() (string, error) {
	n, err := r.readVarint()
	if err != nil {
		return "", err
	}
	if r.pos+n > len(r.buf) {
		return "", fmt.Errorf("unexpected end of edit-history payload reading string of length %d", n)
	}
	s := string(r.buf[r.pos : r.pos+n])
	r.pos += n
	return s, nil
}

func (r *editReader) readPart() (model.EditedPart, error) {
	statusByte, err := r.readByte()
	if err != nil {
		return model.EditedPart{}, err
	}

	status, err := toEditStatus(statusByte)
	if err != nil {
		return model.EditedPart{}, err
	}

	// Original parts carry zero history entries by construction
	// (spec.md §4.1: "Original parts emit zero history entries").
	if status == model.EditStatusOriginal {
		return model.EditedPart{Status: status}, nil
	}

	histCount, err := r.readVarint()
	if err != nil {
		return model.EditedPart{}, err
	}

	history := make([]model.EditEvent, 0, histCount)
	for i := 0; i < histCount; i++ {
		date, err := r.readInt64()
		if err != nil {
			return model.EditedPart{}, err
		}
		hasText, err := r.readByte()
		if err != nil {
			return model.EditedPart{}, err
		}
		var text *string
		if hasText == editHasTextByte {
			s, err := r.readLengthPrefixedString()
			if err != nil {
				return model.EditedPart{}, err
			}
			text = &s
		}
		history = append(history, model.EditEvent{Date: date, Text: text})
	}

	return model.EditedPart{Status: status, History: history}, nil
}

func toEditStatus(b byte) (model.EditStatus, error) {
	switch b {
	case editStatusOriginalByte:
		return model.EditStatusOriginal, nil
	case editStatusEditedByte:
		return model.EditStatusEdited, nil
	case editStatusUnsentByte:
		return model.EditStatusUnsent, nil
	default:
		return 0, fmt.Errorf("unrecognized edit status byte 0x%02x", b)
	}
}
