// Package attachment resolves an attachment row to a source file on
// disk and stages a copy under the reconciler's working directory so
// the bytes survive even if the original message (and its attachment)
// is later unsent.
//
// Grounded on pkg/attachments/processor.go for type sniffing and on
// imsg-rpc's resolvePath (~ expansion, missing-file tolerance) for
// source resolution.
package attachment

import (
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/h2non/filetype"

	"github.com/archerheffern/imessage-undeleter/internal/apperr"
	"github.com/archerheffern/imessage-undeleter/internal/model"
)

// ResolveSourcePath locates the attachment's bytes on disk for the
// given platform. Returns ("", false) when the attachment cannot be
// located -- callers log this as AttachmentSourceMissing and continue
// without staging it, never treat it as fatal.
func ResolveSourcePath(att model.Attachment, platform model.Platform, dbPath, attachmentRoot, homeDir string) (string, bool) {
	if att.Filename == nil || *att.Filename == "" {
		return "", false
	}

	switch platform {
	case model.PlatformIOS:
		return resolveIOSPath(*att.Filename, dbPath)
	default:
		return resolveMacOSPath(*att.Filename, attachmentRoot, homeDir)
	}
}

func resolveMacOSPath(stored, attachmentRoot, homeDir string) (string, bool) {
	path := stored
	if strings.HasPrefix(path, "~") {
		path = strings.Replace(path, "~", homeDir, 1)
	} else if attachmentRoot != "" && !filepath.IsAbs(path) {
		path = filepath.Join(attachmentRoot, path)
	}
	if info, err := os.Stat(path); err != nil || info.IsDir() {
		return "", false
	}
	return path, true
}

// resolveIOSPath locates an attachment inside a decrypted iOS backup:
// the MediaDomain-relative path is SHA-1 hashed and the result lives
// at <backupRoot>/<hash[:2]>/<hash>. ResolveSourcePath passes its
// dbPath argument through as backupRoot, so for PlatformIOS callers
// supply the backup root directory in that slot.
func resolveIOSPath(stored, backupRoot string) (string, bool) {
	rel := strings.TrimPrefix(stored, "~/")
	sum := sha1.Sum([]byte("MediaDomain-" + rel))
	hash := hex.EncodeToString(sum[:])
	path := filepath.Join(backupRoot, hash[:2], hash)
	if info, err := os.Stat(path); err != nil || info.IsDir() {
		return "", false
	}
	return path, true
}

// SniffMIME reads the first 512 bytes of sourcePath and returns the
// sniffed MIME type, purely informational: it never gates staging,
// promotion, or discard, and a sniff failure is not an error the
// caller needs to propagate.
func SniffMIME(sourcePath string) string {
	f, err := os.Open(sourcePath)
	if err != nil {
		return ""
	}
	defer func() { _ = f.Close() }()

	buf := make([]byte, 512)
	n, _ := f.Read(buf)
	if n == 0 {
		return ""
	}
	kind, err := filetype.Match(buf[:n])
	if err != nil || kind == filetype.Unknown {
		return ""
	}
	return kind.MIME.Value
}

// Stager manages the tmp/ and permanent/ staging directories under a
// root directory.
type Stager struct {
	root    string
	tmpDir  string
	permDir string
}

// NewStager wipes any existing tmp/ directory (staged-but-unpromoted
// copies from a prior crashed run are not trustworthy) and ensures
// permanent/ exists.
func NewStager(root string) (*Stager, error) {
	s := &Stager{
		root:    root,
		tmpDir:  filepath.Join(root, "tmp"),
		permDir: filepath.Join(root, "permanent"),
	}
	if err := os.RemoveAll(s.tmpDir); err != nil {
		return nil, apperr.New(apperr.StagingIO, "wipe_tmp", err)
	}
	if err := os.MkdirAll(s.tmpDir, 0o755); err != nil {
		return nil, apperr.New(apperr.StagingIO, "mkdir_tmp", err)
	}
	if err := os.MkdirAll(s.permDir, 0o755); err != nil {
		return nil, apperr.New(apperr.StagingIO, "mkdir_permanent", err)
	}
	return s, nil
}

// AllocateName returns the smallest free integer name (as a string)
// at or above cursor, scanning both tmp/ and permanent/ so a prior
// restart that left gaps in either directory doesn't collide with a
// freshly staged file (B2/B4 restart-numbering scenario).
func (s *Stager) AllocateName(cursor int) (string, int) {
	taken := make(map[int]struct{})
	for _, dir := range []string{s.tmpDir, s.permDir} {
		entries, err := os.ReadDir(dir)
		if err != nil {
			continue
		}
		for _, e := range entries {
			var n int
			if _, err := fmt.Sscanf(e.Name(), "%d", &n); err == nil {
				taken[n] = struct{}{}
			}
		}
	}
	n := cursor
	for {
		if _, ok := taken[n]; !ok {
			return fmt.Sprintf("%d", n), n + 1
		}
		n++
	}
}

// Stage copies sourcePath into tmp/<name>, writing through a
// same-directory temp file suffixed with a random uuid token before
// the final os.Rename so a crash mid-copy never leaves a half-written
// file under the allocated name.
func (s *Stager) Stage(sourcePath, name string) (string, error) {
	src, err := os.Open(sourcePath)
	if err != nil {
		return "", apperr.New(apperr.StagingIO, "open_source", err)
	}
	defer func() { _ = src.Close() }()

	tmpName := filepath.Join(s.tmpDir, name+".part."+uuid.NewString())
	dst, err := os.Create(tmpName)
	if err != nil {
		return "", apperr.New(apperr.StagingIO, "create_temp", err)
	}
	if _, err := io.Copy(dst, src); err != nil {
		_ = dst.Close()
		_ = os.Remove(tmpName)
		return "", apperr.New(apperr.StagingIO, "copy", err)
	}
	if err := dst.Close(); err != nil {
		_ = os.Remove(tmpName)
		return "", apperr.New(apperr.StagingIO, "close_temp", err)
	}

	finalPath := filepath.Join(s.tmpDir, name)
	if err := os.Rename(tmpName, finalPath); err != nil {
		_ = os.Remove(tmpName)
		return "", apperr.New(apperr.StagingIO, "rename_into_tmp", err)
	}
	return finalPath, nil
}

// Promote moves a staged file from tmp/ to permanent/ on confirmed
// retraction. On failure the caller keeps the corresponding
// StagedMessage entry in its prev map so promotion is retried on the
// next tick (spec.md §9 open-question decision).
func (s *Stager) Promote(name string) (string, error) {
	from := filepath.Join(s.tmpDir, name)
	to := filepath.Join(s.permDir, name)
	if err := os.Rename(from, to); err != nil {
		return "", apperr.New(apperr.PromotionIO, "rename_into_permanent", err)
	}
	return to, nil
}

// Discard removes a staged file from tmp/ when its message vanished
// without being retracted. A missing file is not an error: discard is
// idempotent.
func (s *Stager) Discard(name string) error {
	path := filepath.Join(s.tmpDir, name)
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return apperr.New(apperr.StagingIO, "discard", err)
	}
	return nil
}
