// Package uploads stores user-submitted files in named upload sets. Each
// set has an extension allow-list and a destination directory resolved from
// configuration, and its files are served back under /_uploads/<set>/.
package uploads

import (
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/crypto/blake2b"
)

// Documents is the default document extension list
var Documents = []string{"rtf", "odf", "ods", "gnumeric", "abw", "doc", "docx", "xls", "xlsx"}

// URLPrefix is where upload sets are served
const URLPrefix = "/_uploads"

var (
	// ErrNotAllowed is returned when a file's extension is not permitted
	ErrNotAllowed = errors.New("upload not allowed")
	// ErrNotConfigured is returned by a set used before Configure
	ErrNotConfigured = errors.New("upload set not configured")
)

// Set is a named collection of uploaded files
type Set struct {
	Name       string
	extensions map[string]struct{}
	order      []string
	dest       string
}

// NewSet creates an upload set accepting the given extensions
func NewSet(name string, extensions []string) *Set {
	s := &Set{Name: name, extensions: make(map[string]struct{}, len(extensions))}
	for _, ext := range extensions {
		ext = strings.ToLower(ext)
		if _, dup := s.extensions[ext]; dup {
			continue
		}
		s.extensions[ext] = struct{}{}
		s.order = append(s.order, ext)
	}
	return s
}

// Configure resolves the destination directory: dest when set, otherwise
// defaultDest/<name>. Both empty is an error.
func (s *Set) Configure(dest, defaultDest string) error {
	switch {
	case dest != "":
		s.dest = dest
	case defaultDest != "":
		s.dest = filepath.Join(defaultDest, s.Name)
	default:
		return fmt.Errorf("no destination for upload set %s", s.Name)
	}
	return nil
}

// Destination returns the configured directory
func (s *Set) Destination() string {
	return s.dest
}

// Extensions lists the allowed extensions in the order given to NewSet
func (s *Set) Extensions() []string {
	return append([]string(nil), s.order...)
}

// Accept returns the extensions as an HTML accept attribute value
func (s *Set) Accept() string {
	exts := s.Extensions()
	for i, ext := range exts {
		exts[i] = "." + ext
	}
	return strings.Join(exts, ",")
}

// ExtensionAllowed reports whether ext (without dot) is accepted
func (s *Set) ExtensionAllowed(ext string) bool {
	_, ok := s.extensions[strings.ToLower(ext)]
	return ok
}

// FileAllowed reports whether name has an accepted extension
func (s *Set) FileAllowed(name string) bool {
	return s.ExtensionAllowed(Extension(name))
}

// Path returns the on-disk location of a stored file
func (s *Set) Path(name string) string {
	return filepath.Join(s.dest, name)
}

// URL returns the public URL of a stored file
func (s *Set) URL(name string) string {
	return URLPrefix + "/" + s.Name + "/" + url.PathEscape(name)
}

// Saved describes a stored upload
type Saved struct {
	Name     string
	Path     string
	Size     int64
	Checksum string
}

// Save stores src under a secured version of name. An existing file with
// the same name is never overwritten; the new file becomes name_1.ext,
// name_2.ext and so on.
func (s *Set) Save(src io.Reader, name string) (*Saved, error) {
	if s.dest == "" {
		return nil, ErrNotConfigured
	}

	name = lowercaseExt(SecureFilename(name))
	if name == "" || !s.FileAllowed(name) {
		return nil, ErrNotAllowed
	}

	if err := os.MkdirAll(s.dest, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create upload destination: %w", err)
	}

	f, name, err := s.create(name)
	if err != nil {
		return nil, err
	}

	hash, _ := blake2b.New256(nil)
	size, err := io.Copy(io.MultiWriter(f, hash), src)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(f.Name())
		return nil, fmt.Errorf("failed to store %s: %w", name, err)
	}

	return &Saved{
		Name:     name,
		Path:     f.Name(),
		Size:     size,
		Checksum: hex.EncodeToString(hash.Sum(nil)),
	}, nil
}

// create opens a new file for name, resolving conflicts with a numeric suffix
func (s *Set) create(name string) (*os.File, string, error) {
	ext := filepath.Ext(name)
	base := strings.TrimSuffix(name, ext)

	candidate := name
	for count := 1; ; count++ {
		f, err := os.OpenFile(s.Path(candidate), os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
		if err == nil {
			return f, candidate, nil
		}
		if !errors.Is(err, fs.ErrExist) {
			return nil, "", fmt.Errorf("failed to create %s: %w", candidate, err)
		}
		candidate = fmt.Sprintf("%s_%d%s", base, count, ext)
	}
}
