// Package logwriter appends one formatted record per retracted
// message to the reconciler's append-only LOGFILE.
//
// Format is unchanged from spec.md §6; sender resolution mirrors
// Config::who() in runtime.rs.
package logwriter

import (
	"fmt"
	"io"
	"time"

	"github.com/archerheffern/imessage-undeleter/internal/apperr"
)

// Record is one retraction event ready to be formatted and appended.
type Record struct {
	Sender          string
	Timestamp       time.Time
	Text            string
	HasText         bool
	AttachmentPaths []string
}

// Append writes one formatted record to w:
//
//	===<sender>:<timestamp>
//	Text: <message text>            (omitted if HasText is false)
//	Attachments:
//	<permanent/<n1>>
//	<permanent/<n2>>
//	…
//
// Records are separated by the "===" line; there is no trailer.
func Append(w io.Writer, rec Record) error {
	var buf []byte
	buf = append(buf, fmt.Sprintf("===%s:%s\n", rec.Sender, rec.Timestamp.Format(time.RFC3339))...)
	if rec.HasText {
		buf = append(buf, fmt.Sprintf("Text: %s\n", rec.Text)...)
	}
	buf = append(buf, "Attachments:\n"...)
	for _, p := range rec.AttachmentPaths {
		buf = append(buf, p+"\n"...)
	}

	if _, err := w.Write(buf); err != nil {
		return apperr.New(apperr.LogWrite, "append", err)
	}
	return nil
}

// Who resolves the display sender for a record: for the device
// owner's own messages (isFromMe), customName is used when
// useCallerID is set and customName is non-empty; every other message
// falls through to the deduped display identifier, or "Unknown" if
// the handle is nil or unresolved. Matches Config::who() in
// runtime.rs, which gates its caller-ID override on is_from_me so a
// contact's message is never mislabeled with the operator's own name.
func Who(handleID *int64, displayIDs map[int]string, customName string, useCallerID, isFromMe bool) string {
	if isFromMe && useCallerID && customName != "" {
		return customName
	}
	if handleID == nil {
		return "Unknown"
	}
	if name, ok := displayIDs[int(*handleID)]; ok {
		return name
	}
	return "Unknown"
}
