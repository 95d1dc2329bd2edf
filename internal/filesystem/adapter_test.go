package filesystem

import (
	"errors"
	"io"
	"os"
	"path/filepath"
	"sort"
	"testing"
)

func listNames(t *testing.T, dir string) []string {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir(%s): %v", dir, err)
	}
	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	sort.Strings(names)
	return names
}

func TestDefaultFileSystemAdapter_WriteAtomic(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "file.txt")
	if err := os.WriteFile(target, []byte("original\n"), 0o640); err != nil {
		t.Fatal(err)
	}
	adapter := NewDefaultFileSystemAdapter()

	err := adapter.WriteAtomic(target, 0o640, func(w io.Writer) error {
		_, err := io.WriteString(w, "replaced\n")
		return err
	})
	if err != nil {
		t.Fatalf("WriteAtomic() error = %v", err)
	}

	got, _ := os.ReadFile(target)
	if string(got) != "replaced\n" {
		t.Errorf("content = %q, want %q", got, "replaced\n")
	}
	info, _ := os.Stat(target)
	if info.Mode().Perm() != 0o640 {
		t.Errorf("perm = %o, want 640", info.Mode().Perm())
	}
	if names := listNames(t, dir); len(names) != 1 {
		t.Errorf("directory contains %v, want only file.txt", names)
	}
}

func TestDefaultFileSystemAdapter_WriteAtomicFillError(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "file.txt")
	if err := os.WriteFile(target, []byte("original\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	adapter := NewDefaultFileSystemAdapter()
	boom := errors.New("disk full")

	err := adapter.WriteAtomic(target, 0o644, func(w io.Writer) error {
		_, _ = io.WriteString(w, "partial")
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("WriteAtomic() error = %v, want %v", err, boom)
	}

	got, _ := os.ReadFile(target)
	if string(got) != "original\n" {
		t.Errorf("original modified: %q", got)
	}
	if names := listNames(t, dir); len(names) != 1 {
		t.Errorf("temp file left behind: %v", names)
	}
}

func TestDefaultFileSystemAdapter_WriteAtomicRenameError(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "file.txt")
	if err := os.WriteFile(target, []byte("original\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	adapter := &DefaultFileSystemAdapter{rename: func(string, string) error {
		return errors.New("cross-device link")
	}}

	if err := adapter.WriteFileBytesAtomic(target, []byte("new\n"), 0o644); err == nil {
		t.Fatal("expected rename failure")
	}
	got, _ := os.ReadFile(target)
	if string(got) != "original\n" {
		t.Errorf("original modified: %q", got)
	}
	if names := listNames(t, dir); len(names) != 1 {
		t.Errorf("temp file left behind: %v", names)
	}
}

func TestDefaultFileSystemAdapter_FileExists(t *testing.T) {
	dir := t.TempDir()
	adapter := NewDefaultFileSystemAdapter()
	existing := filepath.Join(dir, "a")
	if err := os.WriteFile(existing, nil, 0o644); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name string
		path string
		want bool
	}{
		{"existing", existing, true},
		{"missing", filepath.Join(dir, "b"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := adapter.FileExists(tt.path)
			if err != nil {
				t.Fatalf("FileExists() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("FileExists() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestDefaultFileSystemAdapter_ListDir(t *testing.T) {
	dir := t.TempDir()
	adapter := NewDefaultFileSystemAdapter()
	for _, name := range []string{"b.txt", ".hidden", "a.txt", ".b.txt.tmp-12345"} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("x"), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	if err := os.Mkdir(filepath.Join(dir, "sub"), 0o755); err != nil {
		t.Fatal(err)
	}

	entries, err := adapter.ListDir(dir)
	if err != nil {
		t.Fatalf("ListDir() error = %v", err)
	}
	want := []string{".hidden", "a.txt", "b.txt", "sub"}
	if len(entries) != len(want) {
		t.Fatalf("ListDir() returned %d entries, want %d", len(entries), len(want))
	}
	for i, e := range entries {
		if e.Name != want[i] {
			t.Errorf("entry %d = %s, want %s", i, e.Name, want[i])
		}
	}
	if !entries[0].IsHidden || entries[1].IsHidden {
		t.Errorf("IsHidden flags wrong: %+v", entries[:2])
	}
	if !entries[3].IsDir {
		t.Errorf("sub should be a directory")
	}

	if _, err := adapter.ListDir(filepath.Join(dir, "missing")); err == nil {
		t.Errorf("expected error for missing directory")
	}
}

func TestCheckWritable(t *testing.T) {
	dir := t.TempDir()
	if err := CheckWritable(dir); err != nil {
		t.Errorf("CheckWritable() error = %v", err)
	}
	file := filepath.Join(dir, "f")
	if err := os.WriteFile(file, nil, 0o644); err != nil {
		t.Fatal(err)
	}
	if err := CheckWritable(file); err == nil {
		t.Errorf("expected error for regular file")
	}
	if names := listNames(t, dir); len(names) != 1 {
		t.Errorf("scratch file left behind: %v", names)
	}
}

func TestIsTempName(t *testing.T) {
	if !isTempName(".file.txt.tmp-12345") {
		t.Error("expected temp name to match")
	}
	if isTempName("file.txt") {
		t.Error("regular name matched")
	}
}
