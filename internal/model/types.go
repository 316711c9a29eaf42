package model

// Handle is one row of the handle table: a single addressable
// identifier (phone number, email) for a contact on one service.
type Handle struct {
	RowID           int
	ID              string
	PersonCentricID *string
}

// Chat is one row of the chat table.
type Chat struct {
	RowID          int
	ChatIdentifier string
	DisplayName    *string
}

// Attachment is one row of the attachment table.
type Attachment struct {
	RowID          int64
	Filename       *string // DB-encoded absolute or relative path; nil if never localized
	TransferName   string
	MimeType       *string
	UTI            *string
	TotalBytes     int64
	IsSticker      bool
	HideAttachment bool

	// DetectedMIME is an informational slot for a MIME type sniffed
	// from the resolved source file's magic bytes (attachment.SniffMIME
	// computes one). Neither the store nor the staging path sets it,
	// and it never gates staging/promotion/discard.
	DetectedMIME string
}

// Platform selects which filesystem layout attachment source paths
// are resolved against.
type Platform int

const (
	// PlatformMacOS resolves attachment paths directly against the
	// local filesystem (with ~ expansion and an optional attachment
	// root override).
	PlatformMacOS Platform = iota
	// PlatformIOS resolves attachment paths against a decrypted iOS
	// backup's MediaDomain SHA-1 hash layout.
	PlatformIOS
)

func (p Platform) String() string {
	if p == PlatformIOS {
		return "iOS"
	}
	return "macOS"
}

// AttachmentManagerMode controls how aggressively the stager persists
// attachments ahead of a confirmed retraction.
type AttachmentManagerMode int

const (
	// AttachmentManagerFull stages every new message's attachments
	// immediately, as spec.md describes.
	AttachmentManagerFull AttachmentManagerMode = iota
	// AttachmentManagerDisabled skips attachment staging entirely;
	// only text is preserved on retraction.
	AttachmentManagerDisabled
	// AttachmentManagerCompatible is accepted as a configuration value;
	// the engine stages and promotes attachments in this mode exactly
	// as in Full, with no read-only or path-reference-only fallback.
	AttachmentManagerCompatible
)
