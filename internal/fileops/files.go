package fileops

import (
	"context"
	stdErrors "errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"syscall"
	"time"
	"unicode/utf8"

	"github.com/dustin/go-humanize"
	"github.com/gabriel-vasile/mimetype"

	"hybrid-filesystem/internal/errors"
	"hybrid-filesystem/internal/models"
	"hybrid-filesystem/internal/textenc"
)

// ReadFile returns the file content decoded from its detected encoding.
func (s *Service) ReadFile(ctx context.Context, path string) (string, error) {
	rp, info, err := s.resolver.ResolveFile(path)
	if err != nil {
		return "", err
	}
	if s.maxFileSize > 0 && info.Size() > s.maxFileSize {
		return "", errors.FileTooLarge(rp.Path, int(s.maxFileSize/(1024*1024)))
	}
	data, err := s.fsAdapter.ReadFileBytes(rp.Path)
	if err != nil {
		return "", errors.FromOS(rp.Path, "read", err)
	}
	enc := s.detector.DetectBytes(data[:min(len(data), textenc.SniffSize)], len(data) > textenc.SniffSize)
	text, err := textenc.Decode(enc, data)
	if err != nil {
		return "", errors.Wrap(errors.KindInvalidOperation, err, "cannot decode '%s' as %s", rp.Path, enc)
	}
	return text, nil
}

// WriteFile replaces the file with content, creating parent directories.
// Existing permissions are kept; new files get 0644.
func (s *Service) WriteFile(ctx context.Context, path, content string) (string, error) {
	rp, err := s.resolver.Resolve(path)
	if err != nil {
		return "", err
	}
	perm := os.FileMode(0o644)
	if st, err := s.fsAdapter.GetFileStats(rp.Path); err == nil {
		if st.IsDir {
			return "", errors.NotAFile(rp.Path)
		}
		perm = st.Mode.Perm()
	}
	if err := os.MkdirAll(filepath.Dir(rp.Path), 0o755); err != nil {
		return "", errors.FromOS(rp.Path, "mkdir", err)
	}
	if err := s.fsAdapter.WriteFileBytesAtomic(rp.Path, []byte(content), perm); err != nil {
		return "", errors.FromOS(rp.Path, "write", err)
	}
	return fmt.Sprintf("Successfully wrote %d characters to %s", utf8.RuneCountInString(content), rp.Path), nil
}

// destination resolves dst, placing the file inside it when dst is an
// existing directory.
func (s *Service) destination(dst, srcName string) (string, error) {
	rp, err := s.resolver.Resolve(dst)
	if err != nil {
		return "", err
	}
	if st, err := os.Stat(rp.Path); err == nil && st.IsDir() {
		return s.destination(filepath.Join(rp.Path, srcName), srcName)
	}
	return rp.Path, nil
}

// CopyFile copies source to destination atomically, keeping the mode and
// modification time.
func (s *Service) CopyFile(ctx context.Context, source, destination string) (string, error) {
	src, info, err := s.resolver.ResolveFile(source)
	if err != nil {
		return "", err
	}
	dst, err := s.destination(destination, filepath.Base(src.Path))
	if err != nil {
		return "", err
	}
	if dst == src.Path {
		return "", errors.InvalidOperation("source and destination are the same file: %s", src.Path)
	}
	if err := s.copyInto(src.Path, dst, info); err != nil {
		return "", err
	}
	return fmt.Sprintf("Copied: %s → %s (%d bytes)", filepath.Base(src.Path), filepath.Base(dst), info.Size()), nil
}

func (s *Service) copyInto(src, dst string, info os.FileInfo) error {
	in, err := os.Open(src)
	if err != nil {
		return errors.FromOS(src, "open", err)
	}
	defer in.Close()

	if err := s.fsAdapter.WriteAtomic(dst, info.Mode().Perm(), func(w io.Writer) error {
		_, err := io.Copy(w, in)
		return err
	}); err != nil {
		return errors.FromOS(dst, "copy", err)
	}
	_ = os.Chtimes(dst, time.Now(), info.ModTime())
	return nil
}

// MoveFile renames source to destination, copying across filesystems when a
// rename is not possible.
func (s *Service) MoveFile(ctx context.Context, source, destination string) (string, error) {
	src, err := s.resolver.Resolve(source)
	if err != nil {
		return "", err
	}
	info, err := os.Lstat(src.Path)
	if err != nil {
		return "", errors.FromOS(src.Path, "stat", err)
	}
	if s.isRoot(src.Path) {
		return "", errors.InvalidOperation("cannot move allowed directory %s", src.Path)
	}
	dst, err := s.destination(destination, filepath.Base(src.Path))
	if err != nil {
		return "", err
	}

	if err := os.Rename(src.Path, dst); err != nil {
		var linkErr *os.LinkError
		if !stdErrors.As(err, &linkErr) || !stdErrors.Is(linkErr.Err, syscall.EXDEV) || !info.Mode().IsRegular() {
			return "", errors.FromOS(src.Path, "move", err)
		}
		if err := s.copyInto(src.Path, dst, info); err != nil {
			return "", err
		}
		if err := os.Remove(src.Path); err != nil {
			return "", errors.FromOS(src.Path, "remove", err)
		}
	}
	return fmt.Sprintf("Moved: %s → %s", filepath.Base(src.Path), filepath.Base(dst)), nil
}

// DeleteFile removes a file or directory tree. Without force it only asks
// for confirmation.
func (s *Service) DeleteFile(ctx context.Context, path string, force bool) (string, error) {
	rp, err := s.resolver.Resolve(path)
	if err != nil {
		return "", err
	}
	info, err := os.Lstat(rp.Path)
	if err != nil {
		return "", errors.FromOS(rp.Path, "stat", err)
	}
	name := filepath.Base(rp.Path)
	if !force {
		return fmt.Sprintf("Delete %s? Use force=true to confirm", name), nil
	}
	if info.IsDir() {
		if s.isRoot(rp.Path) {
			return "", errors.InvalidOperation("refusing to delete allowed directory %s", rp.Path)
		}
		if err := os.RemoveAll(rp.Path); err != nil {
			return "", errors.FromOS(rp.Path, "delete", err)
		}
		return fmt.Sprintf("Deleted directory: %s", name), nil
	}
	if err := os.Remove(rp.Path); err != nil {
		return "", errors.FromOS(rp.Path, "delete", err)
	}
	return fmt.Sprintf("Deleted: %s", name), nil
}

func (s *Service) isRoot(p string) bool {
	for _, root := range s.resolver.Allowed().Roots() {
		if root == p {
			return true
		}
	}
	return false
}

// backupName is "<stem>.backup_<timestamp>" next to the original.
func backupName(path, stamp string) string {
	base := filepath.Base(path)
	stem := strings.TrimSuffix(base, filepath.Ext(base))
	if stem == "" {
		stem = base
	}
	return filepath.Join(filepath.Dir(path), stem+".backup_"+stamp)
}

// BackupFile copies the file to a timestamped sibling.
func (s *Service) BackupFile(ctx context.Context, path string) (string, error) {
	rp, info, err := s.resolver.ResolveFile(path)
	if err != nil {
		return "", err
	}
	dst := backupName(rp.Path, s.now().Format(backupTimeLayout))
	if err := s.copyInto(rp.Path, dst, info); err != nil {
		return "", err
	}
	return fmt.Sprintf("Backup created: %s (%d bytes)", filepath.Base(dst), info.Size()), nil
}

// BackupFiles backs up every path with one shared timestamp. All paths must
// exist before any copy is made.
func (s *Service) BackupFiles(ctx context.Context, paths []string) (string, error) {
	if len(paths) == 0 {
		return "", errors.InvalidParams("paths", "at least one file path is required")
	}
	type source struct {
		path string
		info os.FileInfo
	}
	sources := make([]source, 0, len(paths))
	var missing []string
	for _, p := range paths {
		rp, info, err := s.resolver.ResolveFile(p)
		if err != nil {
			if errors.KindOf(err) == errors.KindFileNotFound {
				missing = append(missing, p)
				continue
			}
			return "", err
		}
		sources = append(sources, source{rp.Path, info})
	}
	if len(missing) > 0 {
		return "", errors.New(errors.KindFileNotFound, "Files not found: %s", strings.Join(missing, ", "))
	}

	stamp := s.now().Format(backupTimeLayout)
	var total uint64
	done, failed := 0, 0
	for _, src := range sources {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		if err := s.copyInto(src.path, backupName(src.path, stamp), src.info); err != nil {
			failed++
			continue
		}
		done++
		total += uint64(src.info.Size())
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Backup completed: %d files backed up", done)
	if total > 0 {
		fmt.Fprintf(&b, " (%s total)", humanize.IBytes(total))
	}
	if failed > 0 {
		fmt.Fprintf(&b, ", %d failed", failed)
	}
	if done > 0 {
		fmt.Fprintf(&b, "\nBackup timestamp: %s", stamp)
	}
	return b.String(), nil
}

// FileExists answers "Yes" or "No". Paths outside the allowed directories are
// still an error.
func (s *Service) FileExists(ctx context.Context, path string) (string, error) {
	rp, err := s.resolver.Resolve(path)
	if err != nil {
		return "", err
	}
	ok, err := s.fsAdapter.FileExists(rp.Path)
	if err != nil {
		return "", errors.FromOS(rp.Path, "stat", err)
	}
	if ok {
		return "Yes", nil
	}
	return "No", nil
}

// FileInfo describes a file or directory without reading it whole.
func (s *Service) FileInfo(ctx context.Context, path string) (models.FileInfo, error) {
	rp, err := s.resolver.Resolve(path)
	if err != nil {
		return models.FileInfo{}, err
	}
	st, err := s.fsAdapter.GetFileStats(rp.Path)
	if err != nil {
		return models.FileInfo{}, errors.FromOS(rp.Path, "stat", err)
	}
	info := models.FileInfo{
		Name:     filepath.Base(rp.Path),
		Path:     rp.Path,
		Size:     st.Size,
		Modified: st.ModTime.Format(time.RFC3339),
		IsDir:    st.IsDir,
		Readable: st.Mode.Perm()&0o444 != 0,
	}
	if st.IsDir {
		info.Writable, _ = s.fsAdapter.IsWritable(rp.Path)
	} else {
		info.Writable = st.Mode.Perm()&0o222 != 0
	}
	if !st.IsDir {
		if mt, err := mimetype.DetectFile(rp.Path); err == nil {
			info.MimeType = mt.String()
		}
		if strings.HasPrefix(info.MimeType, "text/") {
			info.Encoding = s.detector.Detect(rp.Path)
		}
	}
	return info, nil
}

// DescribeFileInfo renders a FileInfo on one line.
func DescribeFileInfo(fi models.FileInfo) string {
	kind := "file"
	if fi.IsDir {
		kind = "directory"
	}
	modified := fi.Modified
	if t, err := time.Parse(time.RFC3339, fi.Modified); err == nil {
		modified = humanize.Time(t)
	}
	out := fmt.Sprintf("%s: %s, %s, modified %s", fi.Name, kind, humanize.IBytes(uint64(fi.Size)), modified)
	if fi.MimeType != "" {
		out += ", " + fi.MimeType
	}
	if fi.Encoding != "" {
		out += ", " + fi.Encoding
	}
	return out
}
