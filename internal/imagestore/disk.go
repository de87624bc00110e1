// Package imagestore keeps uploaded retinal images.
package imagestore

import (
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// UploadsDir is the directory under the static root that holds uploads.
const UploadsDir = "uploads"

// Stored describes a saved upload.
type Stored struct {
	// RelPath is slash separated and relative to the static root, e.g. "uploads/<id>.png".
	RelPath string
	// FullPath is the location on the local filesystem.
	FullPath string
	Size     int64
}

// DiskStore writes uploads to unique files under a static root.
type DiskStore struct {
	root string
}

// NewDiskStore creates the uploads directory under root if needed.
func NewDiskStore(root string) (*DiskStore, error) {
	if err := os.MkdirAll(filepath.Join(root, UploadsDir), 0o755); err != nil {
		return nil, fmt.Errorf("create uploads dir: %w", err)
	}
	return &DiskStore{root: root}, nil
}

// Root returns the static root directory.
func (s *DiskStore) Root() string {
	return s.root
}

// Save copies src into a new file named after a fresh UUID. The extension of
// filename is kept when it is a known image extension, otherwise ".png" is used.
func (s *DiskStore) Save(ctx context.Context, src io.Reader, filename string) (*Stored, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	rel := path.Join(UploadsDir, uuid.NewString()+imageExt(filename))
	full := filepath.Join(s.root, filepath.FromSlash(rel))

	f, err := os.OpenFile(full, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return nil, fmt.Errorf("create upload file: %w", err)
	}
	n, err := io.Copy(f, src)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(full)
		return nil, fmt.Errorf("write upload file: %w", err)
	}
	return &Stored{RelPath: rel, FullPath: full, Size: n}, nil
}

// Remove deletes a previously saved upload. A missing file is not an error.
func (s *DiskStore) Remove(stored *Stored) error {
	if stored == nil {
		return nil
	}
	if err := os.Remove(stored.FullPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove upload file: %w", err)
	}
	return nil
}

func imageExt(filename string) string {
	switch ext := strings.ToLower(filepath.Ext(filename)); ext {
	case ".png", ".jpg", ".jpeg":
		return ext
	default:
		return ".png"
	}
}
