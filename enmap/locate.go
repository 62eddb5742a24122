package enmap

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/example/go-enmap/enmap/container"
	"github.com/example/go-enmap/enmap/naming"
)

// openContainer maps a location onto a container. Zip files and
// directories are used as they are; any other file stands for the folder
// it lies in.
func openContainer(ctx context.Context, location string, cfg *config) (container.Container, error) {
	if container.IsRemote(location) {
		store, err := cfg.store(location)
		if err != nil {
			return nil, err
		}
		return container.OpenRemote(ctx, store, location, cfg.remote...)
	}
	info, err := os.Stat(location)
	if err != nil {
		return nil, fmt.Errorf("enmap: %w", err)
	}
	switch {
	case info.IsDir():
		return container.OpenDir(location)
	case isZip(location):
		return container.OpenZip(location)
	default:
		return container.OpenDir(filepath.Dir(location))
	}
}

func (c *config) store(uri string) (container.Store, error) {
	scheme, _, _, err := container.ParseURI(uri)
	if err != nil {
		return nil, err
	}
	store, ok := c.stores[scheme]
	if !ok {
		return nil, fmt.Errorf("%w: %s", container.ErrUnsupportedScheme, scheme)
	}
	return store, nil
}

func isZip(name string) bool {
	return strings.EqualFold(filepath.Ext(name), ".zip")
}

// Qualify reports whether location holds an EnMAP product. It lists the
// files only and never fails; every error counts as Unable. Remote
// locations are listed without fetching; a single remote archive is judged
// by its name.
func Qualify(ctx context.Context, location string, opts ...Option) (q Qualification) {
	defer func() {
		if r := recover(); r != nil {
			q = Unable
		}
	}()
	cfg, err := newConfig(opts)
	if err != nil {
		return Unable
	}
	names, err := listLocation(ctx, location, cfg)
	if err != nil {
		cfg.logger.Debug("qualify: cannot list location", "location", location, "error", err)
		return Unable
	}
	if _, ok := naming.Classify(names); ok {
		return Intended
	}
	if len(names) == 1 {
		if _, ok := naming.ClassifyArchive(names[0]); ok && container.IsRemote(location) {
			return Intended
		}
	}
	return Unable
}

func listLocation(ctx context.Context, location string, cfg *config) ([]string, error) {
	if container.IsRemote(location) {
		store, err := cfg.store(location)
		if err != nil {
			return nil, err
		}
		return container.ListRemote(ctx, store, location)
	}
	if location == "" {
		return nil, fmt.Errorf("enmap: empty location")
	}
	c, err := openContainer(ctx, location, cfg)
	if err != nil {
		return nil, err
	}
	defer c.Close()
	return c.List(ctx)
}
