// Package container gives uniform access to the files of a product stored
// in a directory, a zip archive, or under an S3 or GCS prefix.
package container

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"sort"
	"strings"
)

var (
	// ErrNotFound is returned when a file is not part of the container.
	ErrNotFound = errors.New("container: file not found")
	// ErrClosed is returned by operations on a closed container.
	ErrClosed = errors.New("container: closed")
)

// Container is a read-only product file set.
type Container interface {
	// Name identifies the container, typically its path or URI.
	Name() string
	// List returns the slash separated names of all files.
	List(ctx context.Context) ([]string, error)
	// Open opens a file by its listed name or by its base name.
	Open(ctx context.Context, name string) (io.ReadCloser, error)
	// Locate returns a path under which the raster decoder can open the file.
	Locate(name string) (string, error)
	Close() error
}

// resolve finds name among names, first as an exact entry and then by base
// name, so that files declared in the metadata document are found inside a
// nested product folder.
func resolve(names []string, name string) (string, error) {
	clean := strings.TrimPrefix(path.Clean(strings.ReplaceAll(name, "\\", "/")), "/")
	for _, n := range names {
		if n == clean {
			return n, nil
		}
	}
	base := path.Base(clean)
	for _, n := range names {
		if path.Base(n) == base {
			return n, nil
		}
	}
	return "", fmt.Errorf("%w: %s", ErrNotFound, name)
}

func sorted(names []string) []string {
	out := append([]string(nil), names...)
	sort.Strings(out)
	return out
}
