// Package reconcile implements the Reconciliation Engine: the core
// polling loop that snapshots the message table, diffs it against the
// previous tick, stages new attachments, promotes attachments on
// retraction, and discards attachments for vanished messages.
//
// Grounded on spec.md §4.5/§4.6's tick algorithm; the Run loop's
// ticker/cancellation shape is adapted from the reconciler-style
// background loops in the teacher corpus's channel workers, simplified
// to the single unconditional ticker spec.md §5 calls for.
package reconcile

import (
	"context"
	"io"
	"time"

	"github.com/archerheffern/imessage-undeleter/internal/attachment"
	"github.com/archerheffern/imessage-undeleter/internal/decode"
	"github.com/archerheffern/imessage-undeleter/internal/handle"
	"github.com/archerheffern/imessage-undeleter/internal/logger"
	"github.com/archerheffern/imessage-undeleter/internal/logwriter"
	"github.com/archerheffern/imessage-undeleter/internal/model"
	"github.com/archerheffern/imessage-undeleter/internal/querycontext"
)

// defaultTickInterval is spec.md §9's 500ms operational trade-off
// between retraction responsiveness and I/O cost.
const defaultTickInterval = 500 * time.Millisecond

// Options is the fully populated configuration the core accepts; the
// core package never reads environment variables or config files
// itself (internal/config + cmd/undeleter build this struct).
type Options struct {
	DBPath                string
	ExportPath            string
	AttachmentRoot        string
	Platform              model.Platform
	BackupRoot            string // iOS only
	Query                 querycontext.QueryContext
	CustomName            string
	UseCallerID           bool
	AttachmentManagerMode model.AttachmentManagerMode
	TickInterval          time.Duration
	HomeDir               string // macOS only, owner of DBPath
}

// Store is the minimal read interface the engine needs from the
// database layer, kept narrow like handle.Store/conversation.Store
// for independent testability.
type Store interface {
	handle.Store
	SnapshotMessages(ctx context.Context, qc *querycontext.QueryContext) ([]model.Message, error)
	AttachmentsForMessage(ctx context.Context, messageRowID int64) ([]model.Attachment, error)
}

// stagedMessage is the in-memory record of one live message. Once
// retracted is true, stagedNames holds only the names that failed to
// promote on the retraction tick (or a previous retry) -- per
// spec.md §9's open-question decision, these are retried on
// subsequent ticks rather than abandoned, without appending another
// log record.
type stagedMessage struct {
	message     model.Message
	stagedNames []string
	retracted   bool
}

// TickStats summarizes one Tick invocation for logging/diagnostics.
type TickStats struct {
	Snapshotted  int
	New          int
	Retracted    int
	Vanished     int
	DecodeErrors int
}

// Engine owns the prev state map, the attachment cursor, and the
// handles to the store/stager/log writer it reconciles between.
type Engine struct {
	store Store
	opts  Options

	stager        *attachment.Stager
	logWriter     io.Writer
	handleDisplay map[int]string

	prev   map[int64]stagedMessage
	cursor int
}

// New constructs an Engine: wipes tmp/ (unless attachment staging is
// disabled) and seeds the handle display cache. The attachment cursor
// starts at 0; AllocateName skips names already present in permanent/.
// Errors
// here are startup (Database/Config/StagingIO) and should be treated
// as fatal by the caller.
func New(ctx context.Context, opts Options, st Store, logWriter io.Writer) (*Engine, error) {
	if opts.TickInterval <= 0 {
		opts.TickInterval = defaultTickInterval
	}

	e := &Engine{
		store:     st,
		opts:      opts,
		logWriter: logWriter,
		prev:      make(map[int64]stagedMessage),
	}

	if opts.AttachmentManagerMode != model.AttachmentManagerDisabled {
		stager, err := attachment.NewStager(opts.AttachmentRoot)
		if err != nil {
			return nil, err
		}
		e.stager = stager
	}

	displayIDs, err := handle.Cache(ctx, st)
	if err != nil {
		return nil, err
	}
	e.handleDisplay = displayIDs

	return e, nil
}

// Run executes Tick in a loop until ctx is cancelled, sleeping
// opts.TickInterval between ticks. Cancellation is observed only
// between ticks, matching spec.md §5's single-threaded cooperative
// model: no suspension point exists mid-tick.
func (e *Engine) Run(ctx context.Context) error {
	ticker := time.NewTicker(e.opts.TickInterval)
	defer ticker.Stop()

	for {
		stats, err := e.Tick(ctx)
		if err != nil {
			logger.ErrorCF("reconcile.tick", "tick failed", map[string]any{"error": err.Error()})
		} else {
			logger.DebugCF("reconcile.tick", "tick complete", map[string]any{
				"snapshotted":   stats.Snapshotted,
				"new":           stats.New,
				"retracted":     stats.Retracted,
				"vanished":      stats.Vanished,
				"decode_errors": stats.DecodeErrors,
			})
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// Tick performs one reconciliation pass: snapshot, decode, diff
// against prev, stage/promote/discard attachments, append retraction
// records, and replace prev. It never returns an error for per-row
// failures (decode, missing attachment source, staging I/O) — those
// are logged and the row is handled per spec.md §7's non-fatal policy.
// A returned error here means the snapshot query itself failed
// (DatabaseError), in which case prev is left untouched so the next
// tick retries from the same state.
func (e *Engine) Tick(ctx context.Context) (TickStats, error) {
	var stats TickStats

	rows, err := e.store.SnapshotMessages(ctx, &e.opts.Query)
	if err != nil {
		return stats, err
	}

	seen := make(map[int64]struct{}, len(rows))
	next := make(map[int64]stagedMessage, len(rows))

	for _, msg := range rows {
		if _, dup := seen[msg.RowID]; dup {
			continue
		}
		seen[msg.RowID] = struct{}{}
		stats.Snapshotted++

		if err := decode.GenerateText(&msg); err != nil {
			stats.DecodeErrors++
			logger.WarnCF("reconcile.decode", "message decode failed", map[string]any{
				"rowid": msg.RowID,
				"error": err.Error(),
			})
			// Carry the previous staging forward untouched so a
			// transient decode failure doesn't orphan staged
			// attachments or spuriously discard them.
			if prior, ok := e.prev[msg.RowID]; ok {
				next[msg.RowID] = prior
			}
			continue
		}

		prior, wasPresent := e.prev[msg.RowID]

		if wasPresent && prior.retracted {
			// Already logged; only unpromoted names remain to retry.
			if remaining := e.retryPromote(msg.RowID, prior.stagedNames); len(remaining) > 0 {
				next[msg.RowID] = stagedMessage{message: msg, stagedNames: remaining, retracted: true}
			}
			continue
		}

		if wasPresent {
			entry := stagedMessage{message: msg, stagedNames: prior.stagedNames}

			if msg.IsFullyUnsent() && !prior.message.IsFullyUnsent() {
				// The retracted observation no longer carries the text;
				// the record is built from the last pre-retraction view.
				remaining := e.retract(stagedMessage{message: prior.message, stagedNames: prior.stagedNames})
				stats.Retracted++
				if len(remaining) > 0 {
					next[msg.RowID] = stagedMessage{message: msg, stagedNames: remaining, retracted: true}
				}
				continue // promoted (fully or pending retry), drops from the pre-retraction view
			}

			next[msg.RowID] = entry
			continue
		}

		// Newly observed this tick.
		entry := stagedMessage{message: msg}
		if msg.HasAttachments() && e.stager != nil {
			entry.stagedNames = e.stageAttachments(ctx, msg)
		}

		if msg.IsFullyUnsent() {
			// B3: fully-unsent on first observation promotes immediately.
			remaining := e.retract(entry)
			stats.Retracted++
			stats.New++
			if len(remaining) > 0 {
				next[msg.RowID] = stagedMessage{message: msg, stagedNames: remaining, retracted: true}
			}
			continue
		}

		next[msg.RowID] = entry
		stats.New++
	}

	for rowid, prior := range e.prev {
		if _, ok := seen[rowid]; ok {
			continue
		}
		if prior.retracted {
			// A retracted message whose pending promotions never
			// finished and then vanished from the snapshot: its
			// files are left in tmp/ rather than discarded, but the
			// entry is dropped from prev, so no further promotion
			// is attempted.
			continue
		}
		for _, name := range prior.stagedNames {
			if e.stager == nil {
				continue
			}
			if err := e.stager.Discard(name); err != nil {
				logger.WarnCF("reconcile.discard", "discard failed", map[string]any{
					"rowid": rowid, "name": name, "error": err.Error(),
				})
			}
		}
		stats.Vanished++
	}

	e.prev = next
	return stats, nil
}

// stageAttachments resolves and stages every attachment of msg,
// returning the staged names. Missing sources or staging failures are
// logged and simply omit that attachment from the returned list —
// never fatal to the tick.
func (e *Engine) stageAttachments(ctx context.Context, msg model.Message) []string {
	atts, err := e.store.AttachmentsForMessage(ctx, msg.RowID)
	if err != nil {
		logger.WarnCF("reconcile.attachments", "failed to list attachments", map[string]any{
			"rowid": msg.RowID, "error": err.Error(),
		})
		return nil
	}

	// On iOS, ResolveSourcePath takes the backup root in its dbPath slot.
	dbOrBackupRoot := e.opts.DBPath
	if e.opts.Platform == model.PlatformIOS {
		dbOrBackupRoot = e.opts.BackupRoot
	}

	var names []string
	for _, att := range atts {
		source, ok := attachment.ResolveSourcePath(att, e.opts.Platform, dbOrBackupRoot, e.opts.AttachmentRoot, e.opts.HomeDir)
		if !ok {
			logger.WarnCF("reconcile.attachments", "attachment source missing", map[string]any{
				"rowid": msg.RowID, "attachment_rowid": att.RowID,
			})
			continue
		}

		var name string
		name, e.cursor = e.stager.AllocateName(e.cursor)
		if _, err := e.stager.Stage(source, name); err != nil {
			logger.WarnCF("reconcile.attachments", "staging failed", map[string]any{
				"rowid": msg.RowID, "attachment_rowid": att.RowID, "error": err.Error(),
			})
			continue
		}
		names = append(names, name)
	}
	return names
}

// retract promotes every staged attachment of entry and appends one
// log record listing whatever promoted successfully. It returns the
// names that failed to promote, for the caller to retry on a
// subsequent tick.
func (e *Engine) retract(entry stagedMessage) []string {
	permanentPaths, remaining := e.promoteAll(entry.message.RowID, entry.stagedNames)

	rec := logwriter.Record{
		Sender:          logwriter.Who(entry.message.HandleID, e.handleDisplay, e.opts.CustomName, e.opts.UseCallerID, entry.message.IsFromMe),
		Timestamp:       appleEpochToTime(entry.message.Date),
		Text:            entry.message.Text,
		HasText:         entry.message.Text != "",
		AttachmentPaths: permanentPaths,
	}
	if err := logwriter.Append(e.logWriter, rec); err != nil {
		logger.WarnCF("reconcile.log", "log append failed", map[string]any{
			"rowid": entry.message.RowID, "error": err.Error(),
		})
	}
	return remaining
}

// retryPromote attempts promotion again for names left pending from a
// previous retraction tick; it does not append another log record.
func (e *Engine) retryPromote(rowID int64, names []string) []string {
	_, remaining := e.promoteAll(rowID, names)
	return remaining
}

// promoteAll promotes every name in names, returning the successfully
// promoted permanent/ paths and the names that failed.
func (e *Engine) promoteAll(rowID int64, names []string) (promoted, remaining []string) {
	for _, name := range names {
		if e.stager == nil {
			continue
		}
		path, err := e.stager.Promote(name)
		if err != nil {
			logger.WarnCF("reconcile.promote", "promotion failed", map[string]any{
				"rowid": rowID, "name": name, "error": err.Error(),
			})
			remaining = append(remaining, name)
			continue
		}
		promoted = append(promoted, path)
	}
	return promoted, remaining
}

// appleEpochOffsetSeconds is the offset between 1970-01-01 and
// 2001-01-01, matching store.AppleTimeToUnixNano.
const appleEpochOffsetSeconds = 978307200

func appleEpochToTime(appleNs int64) time.Time {
	unixNs := appleNs + appleEpochOffsetSeconds*1_000_000_000
	return time.Unix(0, unixNs)
}
