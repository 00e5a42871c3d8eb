// Package fsauthority enforces a path allow-list for all writes the
// research pipeline performs, per C7.
package fsauthority

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Authority validates candidate paths against a fixed set of allow-listed
// root directories and performs writes once a path clears validation.
type Authority struct {
	roots []string // each an absolute, symlink-resolved canonical root
}

// New resolves each configured root to its canonical absolute form. Roots
// that don't yet exist are resolved against their nearest existing
// ancestor so a fresh output directory can still be named as a root.
func New(roots []string) (*Authority, error) {
	if len(roots) == 0 {
		return nil, fmt.Errorf("fsauthority: at least one allow-list root is required")
	}

	canonical := make([]string, 0, len(roots))
	for _, r := range roots {
		resolved, err := canonicalize(r)
		if err != nil {
			return nil, fmt.Errorf("fsauthority: resolving root %q: %w", r, err)
		}
		canonical = append(canonical, resolved)
	}
	return &Authority{roots: canonical}, nil
}

// Roots returns the canonical allow-list, for the /allowed_roots endpoint.
func (a *Authority) Roots() []string {
	out := make([]string, len(a.roots))
	copy(out, a.roots)
	return out
}

// ValidationResult is the outcome of checking a candidate path.
type ValidationResult struct {
	Path         string
	IsAllowed    bool
	ResolvedPath string
	Reason       string
}

// Validate reports whether path, once resolved, is contained in (or equal
// to) at least one allow-list root. Resolution failures and out-of-root
// symlink targets are both rejected without echoing filesystem internals
// beyond the requested path.
func (a *Authority) Validate(path string) ValidationResult {
	resolved, err := canonicalize(path)
	if err != nil {
		return ValidationResult{Path: path, IsAllowed: false, Reason: "path could not be resolved"}
	}

	for _, root := range a.roots {
		if withinRoot(resolved, root) {
			return ValidationResult{Path: path, IsAllowed: true, ResolvedPath: resolved}
		}
	}
	return ValidationResult{Path: path, IsAllowed: false, Reason: "path is outside every allow-listed root"}
}

// ErrPathDisallowed is returned by Save when path fails Validate.
type ErrPathDisallowed struct {
	Path string
}

func (e *ErrPathDisallowed) Error() string {
	return fmt.Sprintf("fsauthority: path %q is not allowed", e.Path)
}

// Save validates path, creates any missing parent directories, and writes
// content as UTF-8 text, reporting the exact byte count written.
func (a *Authority) Save(path, content string) (bytesWritten int, err error) {
	result := a.Validate(path)
	if !result.IsAllowed {
		return 0, &ErrPathDisallowed{Path: path}
	}

	target := result.ResolvedPath
	if target == "" {
		target, err = filepath.Abs(path)
		if err != nil {
			return 0, err
		}
	}

	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return 0, err
	}

	if err := os.WriteFile(target, []byte(content), 0o644); err != nil {
		return 0, err
	}

	return len(content), nil
}

// canonicalize resolves path to an absolute form with symlinks and `..`
// segments removed. When the path (or a suffix of it) does not yet exist,
// resolution walks up to the nearest existing ancestor, resolves that, and
// re-appends the missing suffix — so a not-yet-created file under an
// allow-listed root still validates correctly.
func canonicalize(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}

	if resolved, err := filepath.EvalSymlinks(abs); err == nil {
		return filepath.Clean(resolved), nil
	}

	// Walk up to the nearest existing ancestor.
	dir := abs
	var missing []string
	for {
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", fmt.Errorf("no existing ancestor found for %q", path)
		}
		missing = append([]string{filepath.Base(dir)}, missing...)
		dir = parent

		if resolved, err := filepath.EvalSymlinks(dir); err == nil {
			full := filepath.Join(append([]string{resolved}, missing...)...)
			return filepath.Clean(full), nil
		}
	}
}

// withinRoot reports whether candidate is root itself or a descendant of
// it, using a path-segment-aware comparison (not a naive string prefix).
func withinRoot(candidate, root string) bool {
	rel, err := filepath.Rel(root, candidate)
	if err != nil {
		return false
	}
	if rel == "." {
		return true
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}
