package container

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
)

// ErrUnsupportedScheme is returned for URIs no registered store serves.
var ErrUnsupportedScheme = errors.New("container: unsupported scheme")

type remoteConfig struct {
	workDir     string
	concurrency int
	progress    ProgressFunc
}

// RemoteOption customises how a remote product is fetched.
type RemoteOption func(*remoteConfig)

// WithWorkDir fetches into dir. The directory is kept on Close; without
// this option a temporary directory is created and removed again.
func WithWorkDir(dir string) RemoteOption {
	return func(cfg *remoteConfig) {
		cfg.workDir = dir
	}
}

// WithFetchConcurrency specifies the number of objects to fetch in parallel.
func WithFetchConcurrency(n int) RemoteOption {
	return func(cfg *remoteConfig) {
		if n > 0 {
			cfg.concurrency = n
		}
	}
}

// WithProgress registers a callback to receive fetch progress notifications.
func WithProgress(fn ProgressFunc) RemoteOption {
	return func(cfg *remoteConfig) {
		cfg.progress = fn
	}
}

func (c *remoteConfig) ensureDefaults() {
	if c.concurrency <= 0 {
		c.concurrency = 4
	}
}

// ParseURI splits scheme://bucket/prefix into its parts.
func ParseURI(uri string) (scheme, bucket, prefix string, err error) {
	u, err := url.Parse(uri)
	if err != nil {
		return "", "", "", fmt.Errorf("container: parse %q: %w", uri, err)
	}
	if u.Scheme == "" || u.Host == "" {
		return "", "", "", fmt.Errorf("container: %q is not a bucket URI", uri)
	}
	return strings.ToLower(u.Scheme), u.Host, strings.TrimPrefix(u.Path, "/"), nil
}

// IsRemote reports whether location looks like a bucket URI.
func IsRemote(location string) bool {
	i := strings.Index(location, "://")
	return i > 1 && !strings.ContainsAny(location[:i], `/\`)
}

// Remote is a product fetched from an object store into a local working
// directory and served from there.
type Remote struct {
	uri     string
	local   Container
	workDir string
	owned   bool
}

// ListRemote returns the file names below uri without fetching anything.
func ListRemote(ctx context.Context, store Store, uri string) ([]string, error) {
	_, _, prefix, objects, err := listRemote(ctx, store, uri)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(objects))
	for _, obj := range objects {
		names = append(names, relativeKey(prefix, obj.Key))
	}
	return sorted(names), nil
}

func listRemote(ctx context.Context, store Store, uri string) (string, string, string, []Object, error) {
	scheme, bucket, prefix, err := ParseURI(uri)
	if err != nil {
		return "", "", "", nil, err
	}
	if store == nil || store.Scheme() != scheme {
		return "", "", "", nil, fmt.Errorf("%w: %s", ErrUnsupportedScheme, scheme)
	}
	all, err := store.List(ctx, bucket, prefix)
	if err != nil {
		return "", "", "", nil, fmt.Errorf("container: list %s: %w", uri, err)
	}
	objects := make([]Object, 0, len(all))
	for _, obj := range all {
		if strings.HasSuffix(obj.Key, "/") || !underPrefix(prefix, obj.Key) {
			continue
		}
		objects = append(objects, obj)
	}
	if len(objects) == 0 {
		return "", "", "", nil, fmt.Errorf("%w: %s", ErrNotFound, uri)
	}
	return scheme, bucket, prefix, objects, nil
}

// OpenRemote fetches the product below uri. A prefix naming a single zip
// object is opened as an archive, anything else as a directory.
func OpenRemote(ctx context.Context, store Store, uri string, opts ...RemoteOption) (*Remote, error) {
	cfg := remoteConfig{}
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}
	cfg.ensureDefaults()

	_, bucket, prefix, objects, err := listRemote(ctx, store, uri)
	if err != nil {
		return nil, err
	}

	r := &Remote{uri: uri, workDir: cfg.workDir}
	if r.workDir == "" {
		dir, err := os.MkdirTemp("", "enmap-")
		if err != nil {
			return nil, fmt.Errorf("container: create work directory: %w", err)
		}
		r.workDir = dir
		r.owned = true
	}

	f := &fetcher{concurrency: cfg.concurrency, progress: cfg.progress}
	if err := f.fetchAll(ctx, store, bucket, prefix, objects, r.workDir); err != nil {
		r.cleanup()
		return nil, err
	}

	if len(objects) == 1 && strings.EqualFold(path.Ext(objects[0].Key), ".zip") {
		z, err := OpenZip(filepath.Join(r.workDir, filepath.FromSlash(relativeKey(prefix, objects[0].Key))))
		if err != nil {
			r.cleanup()
			return nil, err
		}
		r.local = z
		return r, nil
	}
	d, err := OpenDir(r.workDir)
	if err != nil {
		r.cleanup()
		return nil, err
	}
	r.local = d
	return r, nil
}

// Name returns the remote URI.
func (r *Remote) Name() string {
	return r.uri
}

// WorkDir returns the local directory holding the fetched files.
func (r *Remote) WorkDir() string {
	return r.workDir
}

func (r *Remote) List(ctx context.Context) ([]string, error) {
	return r.local.List(ctx)
}

func (r *Remote) Open(ctx context.Context, name string) (io.ReadCloser, error) {
	return r.local.Open(ctx, name)
}

func (r *Remote) Locate(name string) (string, error) {
	return r.local.Locate(name)
}

// Close closes the local copy and removes a temporary working directory.
func (r *Remote) Close() error {
	var err error
	if r.local != nil {
		err = r.local.Close()
	}
	if rmErr := r.cleanup(); err == nil {
		err = rmErr
	}
	return err
}

func (r *Remote) cleanup() error {
	if !r.owned || r.workDir == "" {
		return nil
	}
	dir := r.workDir
	r.owned = false
	if err := os.RemoveAll(dir); err != nil {
		return fmt.Errorf("container: remove work directory: %w", err)
	}
	return nil
}
