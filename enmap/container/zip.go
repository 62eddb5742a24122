package container

import (
	"archive/zip"
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"sync"
)

// Zip is a product packed into a single zip archive. Rasters are located
// through GDAL's /vsizip/ virtual file system.
type Zip struct {
	path string

	mu     sync.Mutex
	r      *zip.ReadCloser
	files  map[string]*zip.File
	names  []string
	closed bool
}

// OpenZip opens the archive at path.
func OpenZip(path string) (*Zip, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("container: resolve %s: %w", path, err)
	}
	r, err := zip.OpenReader(abs)
	if err != nil {
		return nil, fmt.Errorf("container: open archive %s: %w", path, err)
	}
	z := &Zip{path: abs, r: r, files: make(map[string]*zip.File)}
	for _, f := range r.File {
		if f.FileInfo().IsDir() || strings.HasSuffix(f.Name, "/") {
			continue
		}
		z.files[f.Name] = f
		z.names = append(z.names, f.Name)
	}
	return z, nil
}

// Name returns the absolute archive path.
func (z *Zip) Name() string {
	return z.path
}

// List returns the archive entries, directories excluded.
func (z *Zip) List(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	z.mu.Lock()
	defer z.mu.Unlock()
	if z.closed {
		return nil, ErrClosed
	}
	return sorted(z.names), nil
}

func (z *Zip) entry(name string) (*zip.File, error) {
	z.mu.Lock()
	defer z.mu.Unlock()
	if z.closed {
		return nil, ErrClosed
	}
	n, err := resolve(z.names, name)
	if err != nil {
		return nil, err
	}
	return z.files[n], nil
}

// Open opens an archive entry.
func (z *Zip) Open(ctx context.Context, name string) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f, err := z.entry(name)
	if err != nil {
		return nil, err
	}
	rc, err := f.Open()
	if err != nil {
		return nil, fmt.Errorf("container: open %s in %s: %w", name, z.path, err)
	}
	return rc, nil
}

// Locate returns the /vsizip/ path of an entry.
func (z *Zip) Locate(name string) (string, error) {
	f, err := z.entry(name)
	if err != nil {
		return "", err
	}
	return "/vsizip/" + filepath.ToSlash(z.path) + "/" + f.Name, nil
}

// Close closes the archive.
func (z *Zip) Close() error {
	z.mu.Lock()
	defer z.mu.Unlock()
	if z.closed {
		return nil
	}
	z.closed = true
	return z.r.Close()
}
