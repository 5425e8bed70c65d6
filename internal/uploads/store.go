// Package uploads stores receipts and documents attached to ledger records.
//
// An upload is acquired into a temporary file, inspected, and then either
// committed into permanent storage or released. Callers always defer Release
// so abandoned uploads never linger on disk.
package uploads

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"

	"github.com/brightnest/cleanops/internal/shared"
)

var (
	ErrUnsupportedType = fmt.Errorf("%w: only images and PDF documents are accepted", shared.ErrValidation)
	ErrTooLarge        = fmt.Errorf("%w: upload exceeds size limit", shared.ErrValidation)
	ErrEmpty           = fmt.Errorf("%w: upload is empty", shared.ErrValidation)
	errReleased        = errors.New("uploads: handle already released")
)

// DefaultMaxBytes caps uploads when no limit is configured.
const DefaultMaxBytes int64 = 10 << 20

// Store owns the upload directory.
type Store struct {
	root     string
	tmp      string
	maxBytes int64
	logger   *slog.Logger
}

// NewStore prepares root (and its temp area) for uploads.
func NewStore(root string, maxBytes int64, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}
	tmp := filepath.Join(root, ".tmp")
	if err := os.MkdirAll(tmp, 0o750); err != nil {
		return nil, fmt.Errorf("uploads: prepare %s: %w", root, err)
	}
	return &Store{root: root, tmp: tmp, maxBytes: maxBytes, logger: logger}, nil
}

// Attachment describes a committed file.
type Attachment struct {
	Name     string `json:"name"`
	Path     string `json:"path"`
	MIMEType string `json:"mime_type"`
	Size     int64  `json:"size"`
}

// Handle is a scoped claim on an uploaded temp file.
type Handle struct {
	store   *Store
	tmpPath string
	name    string
	mime    *mimetype.MIME
	size    int64
	mu      sync.Mutex
	done    bool
}

// Acquire copies r into a temp file, enforcing the size limit and content type.
func (s *Store) Acquire(r io.Reader, filename string) (*Handle, error) {
	f, err := os.CreateTemp(s.tmp, "upload-*")
	if err != nil {
		return nil, fmt.Errorf("uploads: create temp: %w", err)
	}
	h := &Handle{store: s, tmpPath: f.Name(), name: cleanName(filename)}

	n, err := io.Copy(f, io.LimitReader(r, s.maxBytes+1))
	closeErr := f.Close()
	if err == nil {
		err = closeErr
	}
	if err != nil {
		h.Release()
		return nil, fmt.Errorf("uploads: write temp: %w", err)
	}
	switch {
	case n == 0:
		h.Release()
		return nil, ErrEmpty
	case n > s.maxBytes:
		h.Release()
		return nil, ErrTooLarge
	}
	h.size = n

	mt, err := mimetype.DetectFile(h.tmpPath)
	if err != nil {
		h.Release()
		return nil, fmt.Errorf("uploads: detect type: %w", err)
	}
	if !Allowed(mt) {
		h.Release()
		return nil, fmt.Errorf("%w (got %s)", ErrUnsupportedType, mt.String())
	}
	h.mime = mt
	return h, nil
}

// Allowed reports whether the detected type may be stored.
func Allowed(mt *mimetype.MIME) bool {
	for m := mt; m != nil; m = m.Parent() {
		if m.Is("application/pdf") || strings.HasPrefix(m.String(), "image/") {
			return true
		}
	}
	return false
}

// MaxBytes is the largest upload the store accepts.
func (s *Store) MaxBytes() int64 { return s.maxBytes }

// Remove deletes a committed file given the path Commit returned.
func (s *Store) Remove(rel string) error {
	path := filepath.Join(s.root, strings.TrimPrefix(filepath.Clean("/"+rel), "/"))
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("uploads: remove %s: %w", rel, err)
	}
	return nil
}

// MIMEType returns the detected content type.
func (h *Handle) MIMEType() string { return h.mime.String() }

// Size returns the number of bytes received.
func (h *Handle) Size() int64 { return h.size }

// Commit moves the upload under dir (relative to the store root) and returns
// where it landed. A handle can be committed once.
func (h *Handle) Commit(dir string) (*Attachment, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.done {
		return nil, errReleased
	}
	rel := filepath.Join(strings.TrimPrefix(filepath.Clean("/"+dir), "/"), uuid.NewString()+h.mime.Extension())
	dest := filepath.Join(h.store.root, rel)
	if err := os.MkdirAll(filepath.Dir(dest), 0o750); err != nil {
		return nil, fmt.Errorf("uploads: prepare %s: %w", dir, err)
	}
	if err := os.Rename(h.tmpPath, dest); err != nil {
		return nil, fmt.Errorf("uploads: commit: %w", err)
	}
	h.done = true
	return &Attachment{Name: h.name, Path: rel, MIMEType: h.mime.String(), Size: h.size}, nil
}

// Release removes the temp file unless it was committed. It is safe to call
// more than once.
func (h *Handle) Release() {
	if h == nil {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.done {
		return
	}
	h.done = true
	if err := os.Remove(h.tmpPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		h.store.logger.Warn("uploads: release temp file", slog.String("path", h.tmpPath), slog.Any("error", err))
	}
}

func cleanName(name string) string {
	name = filepath.Base(strings.TrimSpace(name))
	if name == "." || name == "/" || name == ".." {
		return "upload"
	}
	return name
}
