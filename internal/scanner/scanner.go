// Package scanner enumerates the files of a folder for ingestion.
// Hidden entries (names starting with ".") are always skipped, as are
// directories and files matching the exclude patterns.
package scanner

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/Aman-CERP/searchkit/internal/content"
)

// DefaultMaxFileSize is the default maximum file size (10MB).
const DefaultMaxFileSize = 10 * 1024 * 1024

// FileInfo contains metadata about a discovered file.
type FileInfo struct {
	Path    string    // Relative to the scan root
	AbsPath string    // Absolute path
	Size    int64     // File size in bytes
	ModTime time.Time // Last modification time
	MIME    string    // Detected from the name
}

// Options configures the scanner.
type Options struct {
	// ExcludePatterns are glob-like patterns such as "**/node_modules/**" or "*.log".
	ExcludePatterns []string

	// MaxFileSize skips larger files (0 = 10MB default, negative = no limit).
	MaxFileSize int64

	// FollowSymlinks includes symlinked files.
	FollowSymlinks bool
}

// Listing is the content of one directory level.
type Listing struct {
	Files []FileInfo
	Dirs  []string // absolute paths
}

// ScanResult is returned from the scanner channel.
type ScanResult struct {
	File  *FileInfo
	Error error
}

// Scanner discovers files below a root directory.
type Scanner struct {
	opts Options
}

// New creates a new Scanner.
func New(opts Options) *Scanner {
	if opts.MaxFileSize == 0 {
		opts.MaxFileSize = DefaultMaxFileSize
	}
	return &Scanner{opts: opts}
}

// IsDir reports whether path is an existing directory.
func IsDir(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}

// IsHidden reports whether a path's base name marks it hidden.
func IsHidden(path string) bool {
	base := filepath.Base(path)
	return strings.HasPrefix(base, ".") && base != "." && base != ".."
}

// ListDir returns the visible files and subdirectories directly inside dir,
// sorted by name. root is used to evaluate exclude patterns.
func (s *Scanner) ListDir(root, dir string) (Listing, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return Listing{}, fmt.Errorf("read directory %s: %w", dir, err)
	}

	var listing Listing
	for _, entry := range entries {
		path := filepath.Join(dir, entry.Name())
		relPath, err := filepath.Rel(root, path)
		if err != nil {
			continue
		}
		if entry.IsDir() {
			if !s.skipDir(relPath) {
				listing.Dirs = append(listing.Dirs, path)
			}
			continue
		}
		if fi, ok := s.accept(path, relPath, entry); ok {
			listing.Files = append(listing.Files, fi)
		}
	}
	return listing, nil
}

// Scan streams every visible file below root. The channel is closed when
// the walk completes or ctx is cancelled.
func (s *Scanner) Scan(ctx context.Context, root string) (<-chan ScanResult, error) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("failed to get absolute path: %w", err)
	}
	if !IsDir(absRoot) {
		return nil, fmt.Errorf("root path is not a directory: %s", absRoot)
	}

	results := make(chan ScanResult, 64)
	go func() {
		defer close(results)
		s.walk(ctx, absRoot, results)
	}()
	return results, nil
}

// Files collects Scan results, sorted by path.
func (s *Scanner) Files(ctx context.Context, root string) ([]FileInfo, error) {
	results, err := s.Scan(ctx, root)
	if err != nil {
		return nil, err
	}
	var files []FileInfo
	for r := range results {
		if r.Error != nil {
			return nil, r.Error
		}
		files = append(files, *r.File)
	}
	sort.Slice(files, func(i, j int) bool { return files[i].Path < files[j].Path })
	return files, ctx.Err()
}

func (s *Scanner) walk(ctx context.Context, absRoot string, results chan<- ScanResult) {
	err := filepath.WalkDir(absRoot, func(path string, d fs.DirEntry, err error) error {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if err != nil {
			return nil // Skip entries we can't access
		}

		relPath, err := filepath.Rel(absRoot, path)
		if err != nil || relPath == "." {
			return nil
		}

		if d.IsDir() {
			if s.skipDir(relPath) {
				return filepath.SkipDir
			}
			return nil
		}

		fi, ok := s.accept(path, relPath, d)
		if !ok {
			return nil
		}
		select {
		case results <- ScanResult{File: &fi}:
		case <-ctx.Done():
			return ctx.Err()
		}
		return nil
	})

	if err != nil && err != context.Canceled && err != context.DeadlineExceeded {
		select {
		case results <- ScanResult{Error: err}:
		case <-ctx.Done():
		}
	}
}

// Excluded reports whether a path relative to the scan root would be
// skipped by folder ingestion: hidden at any level, or matched by an
// exclude pattern.
func (s *Scanner) Excluded(relPath string, isDir bool) bool {
	relPath = filepath.Clean(relPath)
	if relPath == "." {
		return false
	}
	parts := strings.Split(relPath, string(filepath.Separator))
	for i := range parts {
		prefix := strings.Join(parts[:i+1], string(filepath.Separator))
		last := i == len(parts)-1
		if !last || isDir {
			if s.skipDir(prefix) {
				return true
			}
			continue
		}
		if IsHidden(prefix) {
			return true
		}
		for _, pattern := range s.opts.ExcludePatterns {
			if matchFilePattern(parts[i], prefix, pattern) {
				return true
			}
		}
	}
	return false
}

func (s *Scanner) skipDir(relPath string) bool {
	if IsHidden(relPath) {
		return true
	}
	for _, pattern := range s.opts.ExcludePatterns {
		if matchDirPattern(relPath, pattern) {
			return true
		}
	}
	return false
}

func (s *Scanner) accept(path, relPath string, d fs.DirEntry) (FileInfo, bool) {
	if IsHidden(relPath) {
		return FileInfo{}, false
	}
	if d.Type()&fs.ModeSymlink != 0 {
		if !s.opts.FollowSymlinks {
			return FileInfo{}, false
		}
		target, err := os.Stat(path)
		if err != nil || !target.Mode().IsRegular() {
			return FileInfo{}, false
		}
	} else if !d.Type().IsRegular() {
		return FileInfo{}, false
	}

	base := filepath.Base(relPath)
	for _, pattern := range s.opts.ExcludePatterns {
		if matchFilePattern(base, relPath, pattern) {
			return FileInfo{}, false
		}
	}

	info, err := os.Stat(path)
	if err != nil {
		return FileInfo{}, false
	}
	if s.opts.MaxFileSize > 0 && info.Size() > s.opts.MaxFileSize {
		return FileInfo{}, false
	}

	return FileInfo{
		Path:    relPath,
		AbsPath: path,
		Size:    info.Size(),
		ModTime: info.ModTime(),
		MIME:    content.DetectMIME(path),
	}, true
}
