package storage

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeString(s string) func(io.Writer) error {
	return func(w io.Writer) error {
		_, err := io.WriteString(w, s)
		return err
	}
}

func TestReportArchive_Store(t *testing.T) {
	dir := t.TempDir()
	a := NewReportArchive(filepath.Join(dir, "exports"), nil)

	path, err := a.Store(context.Background(), "penalties-2026-03.xlsx", writeString("v1"))
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "exports", "penalties-2026-03.xlsx"), path)

	content, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "v1", string(content))
	assert.True(t, a.Exists("penalties-2026-03.xlsx"))
}

func TestReportArchive_FailedWriteKeepsPrevious(t *testing.T) {
	a := NewReportArchive(t.TempDir(), nil)
	ctx := context.Background()

	path, err := a.Store(ctx, "report.xlsx", writeString("good"))
	require.NoError(t, err)

	boom := errors.New("boom")
	_, err = a.Store(ctx, "report.xlsx", func(w io.Writer) error {
		_, _ = io.WriteString(w, "partial")
		return boom
	})
	assert.ErrorIs(t, err, boom)

	content, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "good", string(content))

	names, err := a.List(".xlsx")
	require.NoError(t, err)
	assert.Equal(t, []string{"report.xlsx"}, names)
}

func TestReportArchive_PathEscape(t *testing.T) {
	a := NewReportArchive(t.TempDir(), nil)

	for _, name := range []string{"../outside.xlsx", "../../etc/passwd", ""} {
		_, err := a.Store(context.Background(), name, writeString("x"))
		assert.ErrorIs(t, err, ErrPathEscape, name)
		assert.False(t, a.Exists(name))
	}
}

func TestReportArchive_ListMissingDir(t *testing.T) {
	a := NewReportArchive(filepath.Join(t.TempDir(), "none"), nil)

	names, err := a.List(".xlsx")
	require.NoError(t, err)
	assert.Empty(t, names)
}

func TestReportArchive_CancelledContext(t *testing.T) {
	a := NewReportArchive(t.TempDir(), nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := a.Store(ctx, "report.xlsx", writeString("x"))
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, a.Exists("report.xlsx"))
}
