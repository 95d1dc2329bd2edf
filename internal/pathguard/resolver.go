// Package pathguard canonicalizes caller-supplied paths and authorizes them
// against the configured allow-list. Every component that touches the
// filesystem goes through a Resolver first.
package pathguard

import (
	stdErrors "errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"hybrid-filesystem/internal/errors"
)

// WindowsMaxPath is the classic MAX_PATH limit enforced on Windows.
const WindowsMaxPath = 260

// AllowedDirectorySet is the immutable list of canonical directory roots.
// Build it once at startup with NewAllowedDirectorySet and share it freely.
type AllowedDirectorySet struct {
	roots    []string
	foldCase bool
}

// NewAllowedDirectorySet canonicalizes dirs (home expansion, absolute path,
// symlink resolution). Every entry must exist and be a directory.
func NewAllowedDirectorySet(dirs []string, foldCase bool) (AllowedDirectorySet, error) {
	if len(dirs) == 0 {
		return AllowedDirectorySet{}, fmt.Errorf("at least one allowed directory is required")
	}
	set := AllowedDirectorySet{foldCase: foldCase}
	seen := make(map[string]bool, len(dirs))
	for _, d := range dirs {
		expanded, err := expandHome(d)
		if err != nil {
			return AllowedDirectorySet{}, err
		}
		abs, err := filepath.Abs(expanded)
		if err != nil {
			return AllowedDirectorySet{}, fmt.Errorf("could not make %q absolute: %w", d, err)
		}
		resolved, err := filepath.EvalSymlinks(abs)
		if err != nil {
			return AllowedDirectorySet{}, fmt.Errorf("allowed directory %q: %w", d, err)
		}
		info, err := os.Stat(resolved)
		if err != nil {
			return AllowedDirectorySet{}, fmt.Errorf("allowed directory %q: %w", d, err)
		}
		if !info.IsDir() {
			return AllowedDirectorySet{}, fmt.Errorf("allowed directory %q is not a directory", d)
		}
		if seen[set.key(resolved)] {
			continue
		}
		seen[set.key(resolved)] = true
		set.roots = append(set.roots, resolved)
	}
	return set, nil
}

// DefaultFoldCase reports whether the platform's default filesystems compare
// names case-insensitively.
func DefaultFoldCase() bool {
	return runtime.GOOS == "windows" || runtime.GOOS == "darwin"
}

// Roots returns a copy of the canonical roots in configuration order.
func (s AllowedDirectorySet) Roots() []string {
	out := make([]string, len(s.roots))
	copy(out, s.roots)
	return out
}

// Primary is the first configured root; relative paths resolve against it.
func (s AllowedDirectorySet) Primary() string {
	if len(s.roots) == 0 {
		return ""
	}
	return s.roots[0]
}

func (s AllowedDirectorySet) key(p string) string {
	if s.foldCase {
		return strings.ToLower(p)
	}
	return p
}

// contains returns the root that authorizes p, if any. The match is on whole
// path components so that /data never authorizes /database.
func (s AllowedDirectorySet) contains(p string) (string, bool) {
	kp := s.key(p)
	for _, root := range s.roots {
		kr := s.key(root)
		if kp == kr {
			return root, true
		}
		prefix := kr
		if !strings.HasSuffix(prefix, string(filepath.Separator)) {
			prefix += string(filepath.Separator)
		}
		if strings.HasPrefix(kp, prefix) {
			return root, true
		}
	}
	return "", false
}

// ResolvedPath is an absolute, canonical path that lies inside an allowed root.
type ResolvedPath struct {
	Path string
	Root string
}

func (r ResolvedPath) String() string { return r.Path }

// Resolver turns raw caller paths into ResolvedPaths. It holds no mutable
// state and is safe for concurrent use.
type Resolver struct {
	allowed      AllowedDirectorySet
	enforceLimit bool
}

// NewResolver creates a Resolver over the given set. The Windows path length
// check is enabled only when running on Windows.
func NewResolver(allowed AllowedDirectorySet) *Resolver {
	return &Resolver{allowed: allowed, enforceLimit: runtime.GOOS == "windows"}
}

// Allowed exposes the set the resolver authorizes against.
func (r *Resolver) Allowed() AllowedDirectorySet { return r.allowed }

// Resolve expands, canonicalizes and authorizes raw. Targets that do not
// exist yet are allowed; their nearest existing ancestor is resolved for
// symlinks instead.
func (r *Resolver) Resolve(raw string) (ResolvedPath, error) {
	if strings.TrimSpace(raw) == "" {
		return ResolvedPath{}, errors.InvalidParams("path", "path must not be empty")
	}
	if strings.ContainsRune(raw, 0) {
		return ResolvedPath{}, errors.InvalidParams("path", "path contains a NUL byte")
	}

	expanded, err := expandHome(raw)
	if err != nil {
		return ResolvedPath{}, errors.Wrap(errors.KindIOFailure, err, "could not expand home directory")
	}
	if !filepath.IsAbs(expanded) {
		expanded = filepath.Join(r.allowed.Primary(), expanded)
	}
	abs := filepath.Clean(expanded)

	if r.enforceLimit && len(abs) > WindowsMaxPath {
		return ResolvedPath{}, errors.PathTooLong(abs, WindowsMaxPath)
	}

	canonical, err := evalExistingPrefix(abs)
	if err != nil {
		return ResolvedPath{}, errors.FromOS(abs, "resolve", err)
	}

	root, ok := r.allowed.contains(canonical)
	if !ok {
		return ResolvedPath{}, errors.AccessDenied(raw)
	}
	return ResolvedPath{Path: canonical, Root: root}, nil
}

// ResolveFile resolves raw and requires it to be an existing regular file.
func (r *Resolver) ResolveFile(raw string) (ResolvedPath, os.FileInfo, error) {
	rp, err := r.Resolve(raw)
	if err != nil {
		return ResolvedPath{}, nil, err
	}
	info, err := os.Stat(rp.Path)
	if err != nil {
		return ResolvedPath{}, nil, errors.FromOS(rp.Path, "stat", err)
	}
	if !info.Mode().IsRegular() {
		return ResolvedPath{}, nil, errors.NotAFile(rp.Path)
	}
	return rp, info, nil
}

// ResolveDir resolves raw and requires it to be an existing directory.
func (r *Resolver) ResolveDir(raw string) (ResolvedPath, error) {
	rp, err := r.Resolve(raw)
	if err != nil {
		return ResolvedPath{}, err
	}
	info, err := os.Stat(rp.Path)
	if err != nil {
		return ResolvedPath{}, errors.FromOS(rp.Path, "stat", err)
	}
	if !info.IsDir() {
		return ResolvedPath{}, errors.New(errors.KindInvalidOperation, "'%s' is not a directory", rp.Path)
	}
	return rp, nil
}

// evalExistingPrefix resolves symlinks in the longest existing prefix of p
// and re-attaches the components that do not exist yet.
func evalExistingPrefix(p string) (string, error) {
	var missing []string
	cur := p
	for {
		resolved, err := filepath.EvalSymlinks(cur)
		if err == nil {
			for i := len(missing) - 1; i >= 0; i-- {
				resolved = filepath.Join(resolved, missing[i])
			}
			return resolved, nil
		}
		if !stdErrors.Is(err, fs.ErrNotExist) {
			return "", err
		}
		parent := filepath.Dir(cur)
		if parent == cur {
			return p, nil
		}
		missing = append(missing, filepath.Base(cur))
		cur = parent
	}
}

func expandHome(p string) (string, error) {
	if p != "~" && !strings.HasPrefix(p, "~/") && !strings.HasPrefix(p, `~\`) {
		return p, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	if p == "~" {
		return home, nil
	}
	return filepath.Join(home, p[2:]), nil
}
