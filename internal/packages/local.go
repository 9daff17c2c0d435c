// Package packages keeps uploaded application packages on local disk until they
// are signed and published.
package packages

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// ErrTooLarge is returned when an upload exceeds the configured limit.
var ErrTooLarge = errors.New("package exceeds size limit")

var unsafeChars = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// LocalStore writes packages into a single directory shared by all users.
// File names are prefixed with a random id so uploads never collide.
type LocalStore struct {
	dir     string
	maxSize int64
}

// NewLocalStore creates the directory if needed. maxSize <= 0 disables the limit.
func NewLocalStore(dir string, maxSize int64) (*LocalStore, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve package directory: %w", err)
	}

	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create package directory: %w", err)
	}

	return &LocalStore{dir: abs, maxSize: maxSize}, nil
}

// Dir returns the absolute package directory.
func (s *LocalStore) Dir() string {
	return s.dir
}

// Save streams r into a new file and returns its absolute path and size. A
// partial file is removed on error.
func (s *LocalStore) Save(filename string, r io.Reader) (string, int64, error) {
	path := filepath.Join(s.dir, uuid.New().String()+"_"+SanitizeName(filename))

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return "", 0, fmt.Errorf("failed to create package file: %w", err)
	}

	src := r
	if s.maxSize > 0 {
		src = io.LimitReader(r, s.maxSize+1)
	}

	n, err := io.Copy(f, src)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err == nil && s.maxSize > 0 && n > s.maxSize {
		err = ErrTooLarge
	}
	if err != nil {
		_ = os.Remove(path)
		if errors.Is(err, ErrTooLarge) {
			return "", 0, err
		}
		return "", 0, fmt.Errorf("failed to write package file: %w", err)
	}

	log.Debug().Str("path", path).Int64("size", n).Msg("Saved package")

	return path, n, nil
}

// Exists reports whether a package file is still present.
func (s *LocalStore) Exists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}

// Remove deletes a package file. Missing files are not an error. Paths outside
// the package directory are refused.
func (s *LocalStore) Remove(path string) error {
	if !s.contains(path) {
		return fmt.Errorf("refusing to remove %q outside package directory", path)
	}

	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to remove package file: %w", err)
	}
	return nil
}

func (s *LocalStore) contains(path string) bool {
	rel, err := filepath.Rel(s.dir, filepath.Clean(path))
	if err != nil {
		return false
	}
	return rel != "." && !strings.HasPrefix(rel, "..") && !filepath.IsAbs(rel)
}

// SanitizeName reduces a user supplied file name to a safe base name.
func SanitizeName(name string) string {
	base := filepath.Base(strings.ReplaceAll(name, "\\", "/"))
	base = unsafeChars.ReplaceAllString(base, "_")
	base = strings.TrimLeft(base, ".")
	if base == "" || base == "_" {
		return "package.ipa"
	}
	return base
}
