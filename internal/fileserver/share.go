// Package fileserver exposes read-only access to one shared directory
// over HTTP: listing, tabular reads, raw downloads and sheet enumeration.
// It exists so workers that cannot mount the share directly can still
// consume files from it.
package fileserver

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"sharebridge/internal/fault"
)

// FileDescriptor is one entry of a share listing.
type FileDescriptor struct {
	Name     string    `json:"name"`
	Size     int64     `json:"size"`
	Modified time.Time `json:"modified"`
}

// TableSheet names one sub-table of a structured file.
type TableSheet struct {
	Name     string `json:"name"`
	RowCount int    `json:"row_count"`
}

// StructuredRows is a parsed tabular payload. Columns preserves the
// source column order; every entry of Data carries the same key set.
type StructuredRows struct {
	Columns []string         `json:"columns"`
	Data    []map[string]any `json:"data"`
	Shape   [2]int           `json:"shape"`
	Sheet   string           `json:"sheet"`
}

// tabularExts are the extensions the share listing exposes. Legacy .xls
// shows up in listings but is rejected on read, see parse.go.
var tabularExts = map[string]bool{
	".xlsx": true,
	".xlsm": true,
	".xls":  true,
	".csv":  true,
}

// Share arbitrates access to a single root directory. All filename
// arguments are resolved under the root; anything that would escape it
// is rejected before the filesystem is touched.
type Share struct {
	root string
}

func NewShare(root string) (*Share, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fault.Wrap(fault.Access, "invalid root path", err)
	}
	return &Share{root: abs}, nil
}

func (s *Share) Root() string {
	return s.root
}

// Exists reports whether the root is currently reachable, e.g. whether
// the underlying network share is mounted. Used by the health endpoint.
func (s *Share) Exists() bool {
	info, err := os.Stat(s.root)
	return err == nil && info.IsDir()
}

// Resolve turns a client-supplied filename into an absolute path under
// the root. The check is pure path arithmetic so a hostile name never
// reaches the filesystem.
func (s *Share) Resolve(name string) (string, error) {
	if name == "" {
		return "", fault.New(fault.Access, "empty filename")
	}
	if filepath.IsAbs(name) || strings.ContainsAny(name, `/\`) {
		return "", fault.Newf(fault.Access, "filename %q is not a plain name", name)
	}
	cleaned := filepath.Clean(name)
	if cleaned == "." || cleaned == ".." || strings.HasPrefix(cleaned, "..") {
		return "", fault.Newf(fault.Access, "filename %q escapes the share root", name)
	}
	joined := filepath.Join(s.root, cleaned)
	if joined != s.root && !strings.HasPrefix(joined, s.root+string(filepath.Separator)) {
		return "", fault.Newf(fault.Access, "filename %q escapes the share root", name)
	}
	return joined, nil
}

// Stat resolves name and verifies the file exists.
func (s *Share) Stat(name string) (string, error) {
	path, err := s.Resolve(name)
	if err != nil {
		return "", err
	}
	info, err := os.Stat(path)
	if errors.Is(err, fs.ErrNotExist) {
		return "", fault.Newf(fault.NotFound, "file %s not found", name)
	}
	if err != nil {
		return "", fault.Wrap(fault.Access, "cannot stat "+name, err)
	}
	if info.IsDir() {
		return "", fault.Newf(fault.NotFound, "file %s not found", name)
	}
	return path, nil
}

// List returns the tabular files in the root directory. Entries that
// cannot be stat'ed are skipped, matching the behavior of a share where
// individual files may be locked by another host.
func (s *Share) List() ([]FileDescriptor, error) {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		return nil, fault.Wrap(fault.Access, "share root unreachable", err)
	}

	files := make([]FileDescriptor, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || !tabularExts[strings.ToLower(filepath.Ext(entry.Name()))] {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		files = append(files, FileDescriptor{
			Name:     entry.Name(),
			Size:     info.Size(),
			Modified: info.ModTime().UTC(),
		})
	}
	return files, nil
}
