package walker

import (
	"fmt"
	"io/fs"
	"mime"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// DefaultMaxFileSize is the largest file the walker returns (512 MB).
const DefaultMaxFileSize int64 = 512 << 20

// FileInfo holds metadata about a single file discovered during traversal.
type FileInfo struct {
	Path        string    // Absolute path on disk.
	RelPath     string    // Path relative to the root directory, slash separated.
	Name        string    // Base file name.
	Size        int64     // File size in bytes.
	ModTime     time.Time // Last modification time.
	ContentType string    // MIME type guessed from the extension, may be empty.
}

// WalkerConfig controls the behaviour of the Walk function.
type WalkerConfig struct {
	RootDir     string   // Root directory to walk.
	Include     []string // Glob patterns; only matching files are included.
	Exclude     []string // Glob patterns; matching files are excluded.
	MaxFileSize int64    // Files larger than this are skipped (0 = use default).
	Accept      func(name string) bool
	SkipBackups bool // Skip numbered Revit backups such as Door.0001.rfa.
}

// Walk traverses the directory tree rooted at config.RootDir and returns
// every regular file that passes filtering, sorted by relative path.
func Walk(config WalkerConfig) ([]FileInfo, error) {
	root, err := filepath.Abs(config.RootDir)
	if err != nil {
		return nil, fmt.Errorf("walker: resolve root: %w", err)
	}

	maxSize := config.MaxFileSize
	if maxSize <= 0 {
		maxSize = DefaultMaxFileSize
	}

	var files []FileInfo

	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			if path == root {
				return walkErr
			}
			// Skip entries we cannot read instead of aborting.
			return nil
		}

		name := d.Name()

		// Skip default-excluded directories.
		if d.IsDir() {
			if path != root && shouldExcludeDir(name) {
				return filepath.SkipDir
			}
			return nil
		}

		// Only process regular files.
		if !d.Type().IsRegular() {
			return nil
		}

		if config.Accept != nil && !config.Accept(name) {
			return nil
		}
		if config.SkipBackups && IsRevitBackup(name) {
			return nil
		}

		relPath, err := filepath.Rel(root, path)
		if err != nil {
			return nil
		}

		// Apply user-defined include/exclude filters.
		if !MatchesInclude(relPath, config.Include) {
			return nil
		}
		if MatchesExclude(relPath, config.Exclude) {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return nil
		}

		// Skip files exceeding the size limit.
		if info.Size() > maxSize {
			return nil
		}

		files = append(files, FileInfo{
			Path:        path,
			RelPath:     filepath.ToSlash(relPath),
			Name:        name,
			Size:        info.Size(),
			ModTime:     info.ModTime(),
			ContentType: mime.TypeByExtension(strings.ToLower(filepath.Ext(name))),
		})

		return nil
	})

	if err != nil {
		return nil, fmt.Errorf("walker: traversal: %w", err)
	}

	sort.Slice(files, func(i, j int) bool { return files[i].RelPath < files[j].RelPath })
	return files, nil
}
