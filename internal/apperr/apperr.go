// Package apperr defines the reconciler's error taxonomy.
//
// Every non-trivial failure path in the system returns a *Error tagged
// with one of the Kind values below, so callers can decide fatal-vs-
// per-tick handling with errors.As instead of string matching.
package apperr

import "fmt"

// Kind classifies a failure into one of the taxonomy members the
// reconciler distinguishes between fatal-at-startup and non-fatal
// per-tick errors.
type Kind int

const (
	// Database covers SQLite open/prepare/step failures. Fatal at
	// startup; non-fatal (tick skipped) once the engine is running.
	Database Kind = iota
	// MessageDecode covers typed-stream or edit-payload parse failures.
	// Always non-fatal; the offending message is excluded for the tick.
	MessageDecode
	// AttachmentSourceMissing means a resolved attachment path does not
	// exist on disk. Non-fatal; the attachment is omitted from staging.
	AttachmentSourceMissing
	// StagingIO covers copy failures into tmp/. Non-fatal.
	StagingIO
	// PromotionIO covers rename failures from tmp/ to permanent/.
	// Non-fatal; the caller is expected to retry on the next tick.
	PromotionIO
	// LogWrite covers append failures to the LOGFILE. Non-fatal; the
	// record is lost.
	LogWrite
	// Config covers invalid paths or missing backup credentials. Fatal
	// at startup.
	Config
)

func (k Kind) String() string {
	switch k {
	case Database:
		return "DatabaseError"
	case MessageDecode:
		return "MessageDecodeError"
	case AttachmentSourceMissing:
		return "AttachmentSourceMissing"
	case StagingIO:
		return "StagingIOError"
	case PromotionIO:
		return "PromotionIOError"
	case LogWrite:
		return "LogWriteError"
	case Config:
		return "ConfigError"
	default:
		return "UnknownError"
	}
}

// Fatal reports whether an error of this kind should abort the
// process rather than simply be logged and skipped. Only Database and
// Config are fatal, and Database only at startup — per-tick database
// errors are handled by the caller skipping the tick, not by consulting
// this method.
func (k Kind) Fatal() bool {
	return k == Database || k == Config
}

// Error wraps an underlying error with a Kind and the operation that
// produced it, e.g. "resolve attachment 412".
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Op == "" {
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %s: %v", e.Kind, e.Op, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Is supports errors.Is(err, apperr.KindSentinel(apperr.Database))
// style matching by comparing Kind rather than identity.
func (e *Error) Is(target error) bool {
	other, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == other.Kind
}

// New constructs a tagged *Error.
func New(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// KindSentinel builds a bare *Error carrying only a Kind, suitable as
// the target of errors.Is(err, apperr.KindSentinel(apperr.Database)).
func KindSentinel(kind Kind) *Error {
	return &Error{Kind: kind}
}
