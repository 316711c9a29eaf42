// Package model holds the shared data types the reconciler passes
// between its decoder, resolver, and engine packages: Message,
// BubbleComponent, EditedMessage, Handle, Chat, and Attachment.
package model

// Message is one row of the message table, enriched with derived text
// and structured content once GenerateText has run.
type Message struct {
	RowID                  int64
	GUID                   string
	ChatID                 *int64
	DeletedFrom            *int64
	HandleID               *int64
	IsFromMe               bool
	Date                   int64 // Apple epoch, nanoseconds since 2001-01-01
	DateEdited             int64
	NumAttachments         int
	NumReplies             int
	ItemType               int
	AssociatedMessageGUID  *string
	AssociatedMessageType  *int
	ExpressiveSendStyleID  *string
	BalloonBundleID        *string
	Subject                *string
	AttributedBody         []byte
	MessageSummaryInfo     []byte

	// Derived fields, populated by decode.GenerateText.
	Text        string
	Components  []BubbleComponent
	EditedParts *EditedMessage
}

// IsFullyUnsent reports whether every bubble component is Retracted.
// A message with zero components (GenerateText never ran, or the
// archive was empty) is not considered fully unsent.
func (m *Message) IsFullyUnsent() bool {
	if len(m.Components) == 0 {
		return false
	}
	for _, c := range m.Components {
		if _, ok := c.(RetractedComponent); !ok {
			return false
		}
	}
	return true
}

// IsPartEdited reports whether the edit history marks part i as Edited
// (as opposed to Original or Unsent). Out-of-range indices are false.
func (m *Message) IsPartEdited(i int) bool {
	if m.EditedParts == nil || i < 0 || i >= len(m.EditedParts.Parts) {
		return false
	}
	return m.EditedParts.Parts[i].Status == EditStatusEdited
}

// IsReply reports whether this message is a threaded reply to another.
func (m *Message) IsReply() bool {
	return m.ItemType == 0 && m.AssociatedMessageGUID != nil && m.AssociatedMessageType == nil
}

// tapbackTypeMin/Max bound the associated_message_type range Apple
// uses for tapback reactions (love/like/dislike/laugh/emphasize/
// question, each with a +1000 "removed" counterpart starting at 3000
// in newer OS versions, but 2000-2005 covers the classic set this
// reconciler targets).
const (
	tapbackTypeMin = 2000
	tapbackTypeMax = 2005
)

// IsTapback reports whether this message is a tapback (reaction) on
// another message rather than a standalone message.
func (m *Message) IsTapback() bool {
	if m.AssociatedMessageGUID == nil || m.AssociatedMessageType == nil {
		return false
	}
	t := *m.AssociatedMessageType
	return t >= tapbackTypeMin && t <= tapbackTypeMax
}

// IsAnnouncement reports whether this is a group-action system
// message (name change, participant added/removed) rather than
// user-authored content.
func (m *Message) IsAnnouncement() bool {
	return m.ItemType != 0
}

// IsURL reports whether the message carries a rich link preview
// balloon.
func (m *Message) IsURL() bool {
	return m.BalloonBundleID != nil && *m.BalloonBundleID == "com.apple.messages.URLBalloonProvider"
}

// IsHandwriting reports whether the message is a handwritten note
// (the Digital Ink balloon).
func (m *Message) IsHandwriting() bool {
	return m.BalloonBundleID != nil && *m.BalloonBundleID == "com.apple.DigitalInkMessagesApp.DigitalInkMessagesApp"
}

// IsDigitalTouch reports whether the message is a Digital Touch
// effect (heartbeat, sketch, kiss, etc.), distinct from a handwriting
// note.
func (m *Message) IsDigitalTouch() bool {
	return m.BalloonBundleID != nil && *m.BalloonBundleID == "com.apple.DigitalTouchSticker.DigitalTouchSticker"
}

// HasAttachments reports whether the DB recorded any attachments for
// this message.
func (m *Message) HasAttachments() bool {
	return m.NumAttachments > 0
}

// StartedSharingLocation reports whether this message announces the
// start of live location sharing.
func (m *Message) StartedSharingLocation() bool {
	return m.ItemType == 4 && m.GroupActionType() == 1
}

// StoppedSharingLocation reports whether this message announces the
// end of live location sharing.
func (m *Message) StoppedSharingLocation() bool {
	return m.ItemType == 4 && m.GroupActionType() == 2
}

// GroupActionType re-derives the group action code from
// AssociatedMessageType when ItemType marks this as a group/location
// action row; it is a thin accessor kept alongside the Is* helpers so
// callers never need to reach into AssociatedMessageType directly.
func (m *Message) GroupActionType() int {
	if m.AssociatedMessageType == nil {
		return 0
	}
	return *m.AssociatedMessageType
}

// DeletedFromChat reports whether chat_id is absent but deleted_from
// is present -- the "this message's chat was itself deleted" case
// spec.md's Message invariant calls out.
func (m *Message) DeletedFromChat() bool {
	return m.ChatID == nil && m.DeletedFrom != nil
}
