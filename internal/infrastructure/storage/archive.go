package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"go.uber.org/zap"
)

// ErrPathEscape is returned for names that resolve outside the archive directory
var ErrPathEscape = errors.New("path escapes archive directory")

// ReportArchive keeps generated report files under a base directory
type ReportArchive struct {
	baseDir string
	logger  *zap.Logger
}

// NewReportArchive creates a new ReportArchive rooted at baseDir
func NewReportArchive(baseDir string, logger *zap.Logger) *ReportArchive {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ReportArchive{
		baseDir: baseDir,
		logger:  logger,
	}
}

// Store writes a report under name. Content is produced into a temporary file
// and renamed into place, so a failed write never replaces an existing report.
func (a *ReportArchive) Store(ctx context.Context, name string, write func(io.Writer) error) (string, error) {
	fullPath := a.FullPath(name)
	if err := a.validatePath(fullPath); err != nil {
		return "", err
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	dir := filepath.Dir(fullPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		a.logger.Error("Failed to create archive directory",
			zap.String("path", dir),
			zap.Error(err))
		return "", fmt.Errorf("failed to create directories: %w", err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(fullPath)+".*")
	if err != nil {
		return "", fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()

	werr := write(tmp)
	if cerr := tmp.Close(); werr == nil {
		werr = cerr
	}
	if werr != nil {
		_ = os.Remove(tmpName)
		a.logger.Error("Failed to write report",
			zap.String("path", fullPath),
			zap.Error(werr))
		return "", werr
	}

	if err := os.Rename(tmpName, fullPath); err != nil {
		_ = os.Remove(tmpName)
		return "", fmt.Errorf("failed to move report into place: %w", err)
	}

	a.logger.Info("Report archived", zap.String("path", fullPath))
	return fullPath, nil
}

// Exists reports whether name is present in the archive
func (a *ReportArchive) Exists(name string) bool {
	fullPath := a.FullPath(name)
	if a.validatePath(fullPath) != nil {
		return false
	}
	_, err := os.Stat(fullPath)
	return err == nil
}

// List returns the archived file names with the given suffix, sorted
func (a *ReportArchive) List(suffix string) ([]string, error) {
	entries, err := os.ReadDir(a.baseDir)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read archive: %w", err)
	}

	var names []string
	for _, e := range entries {
		if e.IsDir() || strings.HasPrefix(e.Name(), ".") || !strings.HasSuffix(e.Name(), suffix) {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)
	return names, nil
}

// FullPath converts an archive name to a filesystem path
func (a *ReportArchive) FullPath(name string) string {
	return filepath.Join(a.baseDir, name)
}

// validatePath checks that the path is within baseDir
func (a *ReportArchive) validatePath(fullPath string) error {
	absPath, err := filepath.Abs(fullPath)
	if err != nil {
		return fmt.Errorf("failed to resolve path: %w", err)
	}

	absBase, err := filepath.Abs(a.baseDir)
	if err != nil {
		return fmt.Errorf("failed to resolve base path: %w", err)
	}

	if !strings.HasPrefix(absPath, absBase+string(filepath.Separator)) {
		return fmt.Errorf("%w: %s", ErrPathEscape, fullPath)
	}

	return nil
}
