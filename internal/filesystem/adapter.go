package filesystem

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// writeBufferSize is the buffer placed in front of every temp file.
const writeBufferSize = 64 * 1024

// FileStats holds basic statistics about a file.
type FileStats struct {
	Size    int64
	IsDir   bool
	ModTime time.Time
	Mode    os.FileMode
}

// FileSystemAdapter defines an interface for interacting with the file system.
// Engines depend on it so tests can inject failures into the write path.
type FileSystemAdapter interface {
	ReadFileBytes(filePath string) ([]byte, error)
	// WriteAtomic streams new content for filePath into a temporary file in the
	// same directory and renames it over filePath once fill succeeds. On any
	// failure the temporary file is removed and filePath is left untouched.
	WriteAtomic(filePath string, perm os.FileMode, fill func(w io.Writer) error) error
	WriteFileBytesAtomic(filePath string, content []byte, perm os.FileMode) error
	FileExists(filePath string) (bool, error)
	GetFileStats(filePath string) (*FileStats, error)
	IsWritable(dir string) (bool, error)
	ListDir(path string) ([]DirEntryInfo, error)
}

// DirEntryInfo holds information about a directory entry.
type DirEntryInfo struct {
	Name     string
	IsDir    bool
	IsHidden bool // Helper based on name
	Mode     os.FileMode
	ModTime  time.Time
	Size     int64
}

// TempPattern returns the os.CreateTemp pattern used for filePath. Temp files
// are dot-prefixed so directory walks skip them.
func TempPattern(filePath string) string {
	return "." + filepath.Base(filePath) + ".tmp-*"
}

// isTempName reports whether name looks like a temp file left by WriteAtomic.
func isTempName(name string) bool {
	return strings.HasPrefix(name, ".") && strings.Contains(name, ".tmp-")
}

// CheckWritable creates and removes a dot-prefixed scratch file in dir.
func CheckWritable(dir string) error {
	info, err := os.Stat(dir)
	if err != nil {
		return fmt.Errorf("could not stat path %s: %w", dir, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("path is not a directory: %s", dir)
	}
	tmp, err := os.CreateTemp(dir, ".writable-check-*")
	if err != nil {
		return fmt.Errorf("directory %s is not writable: %w", dir, err)
	}
	name := tmp.Name()
	_ = tmp.Close()
	return os.Remove(name)
}

// DefaultFileSystemAdapter is the standard implementation of FileSystemAdapter using the os package.
type DefaultFileSystemAdapter struct {
	rename func(oldpath, newpath string) error
}

// NewDefaultFileSystemAdapter creates a new DefaultFileSystemAdapter.
func NewDefaultFileSystemAdapter() *DefaultFileSystemAdapter {
	return &DefaultFileSystemAdapter{rename: os.Rename}
}

// ReadFileBytes reads the entire file into a byte slice.
func (fs *DefaultFileSystemAdapter) ReadFileBytes(filePath string) ([]byte, error) {
	content, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %s: %w", filePath, err)
	}
	return content, nil
}

// WriteAtomic implements FileSystemAdapter. Errors returned by fill are passed
// through unchanged so callers can keep their own error types.
func (fs *DefaultFileSystemAdapter) WriteAtomic(filePath string, perm os.FileMode, fill func(w io.Writer) error) error {
	dir := filepath.Dir(filePath)

	tempFile, err := os.CreateTemp(dir, TempPattern(filePath))
	if err != nil {
		return fmt.Errorf("failed to create temporary file in %s: %w", dir, err)
	}
	tempName := tempFile.Name()
	committed := false
	defer func() {
		if !committed {
			_ = tempFile.Close()
			_ = os.Remove(tempName)
		}
	}()

	bw := bufio.NewWriterSize(tempFile, writeBufferSize)
	if err := fill(bw); err != nil {
		return err
	}
	if err := bw.Flush(); err != nil {
		return fmt.Errorf("failed to write to temporary file %s: %w", tempName, err)
	}
	if err := tempFile.Chmod(perm); err != nil {
		return fmt.Errorf("failed to set permissions on temporary file %s: %w", tempName, err)
	}
	if err := tempFile.Sync(); err != nil {
		return fmt.Errorf("failed to sync temporary file %s: %w", tempName, err)
	}
	if err := tempFile.Close(); err != nil {
		return fmt.Errorf("failed to close temporary file %s: %w", tempName, err)
	}

	rename := fs.rename
	if rename == nil {
		rename = os.Rename
	}
	if err := rename(tempName, filePath); err != nil {
		return fmt.Errorf("failed to rename temporary file %s to %s: %w", tempName, filePath, err)
	}
	committed = true
	return nil
}

// WriteFileBytesAtomic writes content to a file atomically.
func (fs *DefaultFileSystemAdapter) WriteFileBytesAtomic(filePath string, content []byte, perm os.FileMode) error {
	return fs.WriteAtomic(filePath, perm, func(w io.Writer) error {
		_, err := w.Write(content)
		return err
	})
}

// FileExists checks if a file exists.
func (fs *DefaultFileSystemAdapter) FileExists(filePath string) (bool, error) {
	_, err := os.Stat(filePath)
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, fmt.Errorf("error checking if file exists %s: %w", filePath, err)
}

// GetFileStats retrieves statistics for a given file.
func (fs *DefaultFileSystemAdapter) GetFileStats(filePath string) (*FileStats, error) {
	info, err := os.Stat(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to get file stats for %s: %w", filePath, err)
	}

	return &FileStats{
		Size:    info.Size(),
		IsDir:   info.IsDir(),
		ModTime: info.ModTime(),
		Mode:    info.Mode().Perm(),
	}, nil
}

// IsWritable reports whether a file can be created in the directory.
func (fs *DefaultFileSystemAdapter) IsWritable(path string) (bool, error) {
	if err := CheckWritable(path); err != nil {
		return false, err
	}
	return true, nil
}

// Ensure DefaultFileSystemAdapter implements FileSystemAdapter
var _ FileSystemAdapter = (*DefaultFileSystemAdapter)(nil)

// ListDir lists the contents of a directory sorted by name.
func (fs *DefaultFileSystemAdapter) ListDir(path string) ([]DirEntryInfo, error) {
	entries, err := os.ReadDir(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read directory %s: %w", path, err)
	}

	dirEntries := make([]DirEntryInfo, 0, len(entries))
	for _, entry := range entries {
		// Skip in-flight WriteAtomic temp files.
		if !entry.IsDir() && isTempName(entry.Name()) {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			// Removed between ReadDir and Info.
			if os.IsNotExist(err) {
				continue
			}
			return nil, fmt.Errorf("failed to get info for entry %s in %s: %w", entry.Name(), path, err)
		}

		dirEntries = append(dirEntries, DirEntryInfo{
			Name:     info.Name(),
			IsDir:    info.IsDir(),
			IsHidden: strings.HasPrefix(info.Name(), "."),
			Mode:     info.Mode().Perm(),
			ModTime:  info.ModTime(),
			Size:     info.Size(),
		})
	}
	return dirEntries, nil
}
