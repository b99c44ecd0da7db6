// Package security confines the files the server reads and writes to its
// working directory.
package security

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Workspace is the directory templates, data files and outputs live in.
// Relative paths are taken relative to it; absolute paths must point
// inside it.
type Workspace struct {
	root string
}

// NewWorkspace creates a workspace rooted at dir. The directory does not
// have to exist yet.
func NewWorkspace(dir string) (*Workspace, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, fmt.Errorf("workspace directory cannot be empty")
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve workspace directory: %w", err)
	}
	return &Workspace{root: filepath.Clean(abs)}, nil
}

// Root returns the absolute workspace directory
func (w *Workspace) Root() string {
	return w.root
}

// Resolve returns the absolute form of path after checking it stays inside
// the workspace, symlinks included.
func (w *Workspace) Resolve(path string) (string, error) {
	path = strings.ReplaceAll(path, "\x00", "")
	if strings.TrimSpace(path) == "" {
		return "", fmt.Errorf("path cannot be empty")
	}

	if !filepath.IsAbs(path) {
		path = filepath.Join(w.root, path)
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("failed to resolve path: %w", err)
	}
	abs = filepath.Clean(abs)

	if !w.contains(abs) {
		return "", fmt.Errorf("path is outside the workspace: %s", path)
	}
	if real, ok := evalExisting(abs); ok && !w.contains(real) {
		return "", fmt.Errorf("path leaves the workspace through a symlink: %s", path)
	}
	return abs, nil
}

// ResolveFile resolves path and checks that it names an existing regular
// file no larger than maxSize bytes (0 disables the limit).
func (w *Workspace) ResolveFile(path string, maxSize int64) (string, os.FileInfo, error) {
	abs, err := w.Resolve(path)
	if err != nil {
		return "", nil, err
	}
	info, err := os.Stat(abs)
	if os.IsNotExist(err) {
		return "", nil, fmt.Errorf("file does not exist: %s", path)
	}
	if err != nil {
		return "", nil, fmt.Errorf("cannot access file: %w", err)
	}
	if info.IsDir() {
		return "", nil, fmt.Errorf("path is a directory, not a file: %s", path)
	}
	if maxSize > 0 && info.Size() > maxSize {
		return "", nil, fmt.Errorf("file too large: %d bytes (max: %d bytes)", info.Size(), maxSize)
	}
	return abs, info, nil
}

// ResolveOutput resolves the destination of a write. The target must not
// be an existing directory.
func (w *Workspace) ResolveOutput(path string) (string, error) {
	abs, err := w.Resolve(path)
	if err != nil {
		return "", err
	}
	if abs == w.root {
		return "", fmt.Errorf("output path names the workspace itself")
	}
	if info, err := os.Stat(abs); err == nil && info.IsDir() {
		return "", fmt.Errorf("output path is a directory: %s", path)
	}
	return abs, nil
}

func (w *Workspace) contains(abs string) bool {
	if abs == w.root {
		return true
	}
	root := w.root
	if real, ok := evalExisting(root); ok {
		if abs == real || strings.HasPrefix(abs, withSep(real)) {
			return true
		}
	}
	return strings.HasPrefix(abs, withSep(root))
}

// evalExisting resolves symlinks in the longest existing prefix of path
// and appends the remainder unchanged.
func evalExisting(path string) (string, bool) {
	rest := ""
	for p := path; ; {
		if real, err := filepath.EvalSymlinks(p); err == nil {
			return filepath.Join(real, rest), true
		}
		parent := filepath.Dir(p)
		if parent == p {
			return "", false
		}
		rest = filepath.Join(filepath.Base(p), rest)
		p = parent
	}
}

func withSep(dir string) string {
	if strings.HasSuffix(dir, string(filepath.Separator)) {
		return dir
	}
	return dir + string(filepath.Separator)
}
