package uploads

import (
	"bytes"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brightnest/cleanops/internal/shared"
)

var pngHeader = []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n', 0, 0, 0, 0x0d, 'I', 'H', 'D', 'R'}

func newTestStore(t *testing.T, max int64) *Store {
	t.Helper()
	store, err := NewStore(t.TempDir(), max, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	return store
}

func tempFiles(t *testing.T, s *Store) []os.DirEntry {
	t.Helper()
	entries, err := os.ReadDir(s.tmp)
	require.NoError(t, err)
	return entries
}

func TestAcquireCommitMovesFile(t *testing.T) {
	s := newTestStore(t, 0)

	h, err := s.Acquire(bytes.NewReader(pngHeader), "../receipt.png")
	require.NoError(t, err)
	defer h.Release()
	assert.Equal(t, "image/png", h.MIMEType())

	att, err := h.Commit("invoices/inv-1")
	require.NoError(t, err)
	assert.Equal(t, "receipt.png", att.Name)
	assert.True(t, strings.HasPrefix(att.Path, filepath.Join("invoices", "inv-1")))
	assert.FileExists(t, filepath.Join(s.root, att.Path))
	assert.Empty(t, tempFiles(t, s))

	h.Release()
	assert.FileExists(t, filepath.Join(s.root, att.Path))
}

func TestReleaseWithoutCommitRemovesTemp(t *testing.T) {
	s := newTestStore(t, 0)

	h, err := s.Acquire(strings.NewReader("%PDF-1.4\n%âãÏÓ\n1 0 obj\n<<>>\nendobj\n"), "doc.pdf")
	require.NoError(t, err)
	assert.Equal(t, "application/pdf", h.MIMEType())
	require.Len(t, tempFiles(t, s), 1)

	h.Release()
	h.Release()
	assert.Empty(t, tempFiles(t, s))

	_, err = h.Commit("x")
	assert.Error(t, err)
}

func TestAcquireRejectsUnsupportedType(t *testing.T) {
	s := newTestStore(t, 0)

	_, err := s.Acquire(strings.NewReader("just some text"), "notes.txt")
	assert.ErrorIs(t, err, ErrUnsupportedType)
	assert.ErrorIs(t, err, shared.ErrValidation)
	assert.Empty(t, tempFiles(t, s))
}

func TestAcquireEnforcesLimit(t *testing.T) {
	s := newTestStore(t, 8)

	_, err := s.Acquire(bytes.NewReader(pngHeader), "big.png")
	assert.ErrorIs(t, err, ErrTooLarge)
	assert.Empty(t, tempFiles(t, s))

	_, err = s.Acquire(bytes.NewReader(nil), "empty.png")
	assert.ErrorIs(t, err, ErrEmpty)
}
