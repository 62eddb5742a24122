package container

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
)

// Dir is a product unpacked into a local directory.
type Dir struct {
	root string

	mu     sync.Mutex
	names  []string
	closed bool
}

// OpenDir opens the directory at root.
func OpenDir(root string) (*Dir, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("container: resolve %s: %w", root, err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("container: stat %s: %w", root, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("container: %s is not a directory", root)
	}
	return &Dir{root: abs}, nil
}

// Name returns the absolute directory path.
func (d *Dir) Name() string {
	return d.root
}

// List walks the directory tree once and caches the result.
func (d *Dir) List(ctx context.Context) ([]string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil, ErrClosed
	}
	if d.names != nil {
		return sorted(d.names), nil
	}
	var names []string
	err := filepath.WalkDir(d.root, func(p string, entry fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if entry.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(d.root, p)
		if err != nil {
			return err
		}
		names = append(names, filepath.ToSlash(rel))
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("container: list %s: %w", d.root, err)
	}
	if names == nil {
		names = []string{}
	}
	d.names = names
	return sorted(names), nil
}

func (d *Dir) path(name string) (string, error) {
	names, err := d.List(context.Background())
	if err != nil {
		return "", err
	}
	rel, err := resolve(names, name)
	if err != nil {
		return "", err
	}
	return filepath.Join(d.root, filepath.FromSlash(rel)), nil
}

// Open opens a file of the directory.
func (d *Dir) Open(ctx context.Context, name string) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p, err := d.path(name)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(p)
	if err != nil {
		return nil, fmt.Errorf("container: open %s: %w", name, err)
	}
	return f, nil
}

// Locate returns the absolute file path.
func (d *Dir) Locate(name string) (string, error) {
	return d.path(name)
}

// Close marks the container closed. The directory itself is left in place.
func (d *Dir) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closed = true
	return nil
}
