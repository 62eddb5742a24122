package container

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"
)

// ErrUnsafeKey is returned for object keys that would be written outside the
// work directory.
var ErrUnsafeKey = errors.New("container: object key escapes the work directory")

// Object is a remote file below a product prefix.
type Object struct {
	Key  string
	Size int64
}

// Store lists and fetches objects of a bucket.
type Store interface {
	// Scheme is the URI scheme served by the store, e.g. "s3".
	Scheme() string
	List(ctx context.Context, bucket, prefix string) ([]Object, error)
	// Fetch writes the object into w and returns the byte count.
	Fetch(ctx context.Context, bucket, key string, w Writer) (int64, error)
}

// Writer is a destination for object downloads. Multipart downloads write
// at offsets, streaming downloads write sequentially.
type Writer interface {
	io.Writer
	io.WriterAt
}

// ProgressFunc is invoked as bytes are written for an individual file.
type ProgressFunc func(FileProgress)

// FileProgress reports fetch progress for a single file.
type FileProgress struct {
	Location   string
	FileName   string
	Downloaded int64
	Total      int64
}

type fetcher struct {
	concurrency int
	progress    ProgressFunc
}

// fetchAll downloads objects into destDir, keeping the key path below
// prefix. Each file is written to a .part sibling and renamed on success.
func (f *fetcher) fetchAll(ctx context.Context, store Store, bucket, prefix string, objects []Object, destDir string) error {
	if destDir == "" {
		return errors.New("container: destination directory is required")
	}
	if len(objects) == 0 {
		return errors.New("container: nothing to fetch")
	}
	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return fmt.Errorf("container: create destination directory: %w", err)
	}
	concurrency := f.concurrency
	if concurrency <= 0 {
		concurrency = 1
	}

	g, ctx := errgroup.WithContext(ctx)
	sem := make(chan struct{}, concurrency)
	location := store.Scheme() + "://" + bucket + "/" + prefix

	for _, obj := range objects {
		obj := obj
		g.Go(func() error {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case sem <- struct{}{}:
			}
			defer func() { <-sem }()

			return f.fetchFile(ctx, store, bucket, location, relativeKey(prefix, obj.Key), destDir, obj)
		})
	}
	return g.Wait()
}

func (f *fetcher) fetchFile(ctx context.Context, store Store, bucket, location, rel, destDir string, obj Object) (err error) {
	if rel == "" {
		return fmt.Errorf("container: could not determine file name for %s", obj.Key)
	}
	if !filepath.IsLocal(filepath.FromSlash(rel)) {
		return fmt.Errorf("%w: %s", ErrUnsafeKey, obj.Key)
	}
	finalPath := filepath.Join(destDir, filepath.FromSlash(rel))
	if err := os.MkdirAll(filepath.Dir(finalPath), 0o755); err != nil {
		return fmt.Errorf("container: create directory: %w", err)
	}
	tmpPath := finalPath + ".part"

	out, err := os.Create(tmpPath)
	if err != nil {
		return fmt.Errorf("container: create temp file: %w", err)
	}
	defer func() {
		out.Close()
		if err != nil {
			os.Remove(tmpPath)
		}
	}()

	writer := newProgressWriter(out, f.progress, FileProgress{
		Location: location,
		FileName: rel,
		Total:    obj.Size,
	})

	n, err := store.Fetch(ctx, bucket, obj.Key, writer)
	if err != nil {
		return fmt.Errorf("container: fetch %s: %w", obj.Key, err)
	}
	if obj.Size > 0 && n != obj.Size {
		return fmt.Errorf("container: size mismatch for %s: expected %d got %d", rel, obj.Size, n)
	}

	if err = out.Close(); err != nil {
		return fmt.Errorf("container: close temp file: %w", err)
	}
	if err = os.Rename(tmpPath, finalPath); err != nil {
		return fmt.Errorf("container: rename temp file: %w", err)
	}
	return nil
}

// relativeKey strips the directory part of prefix from key. A prefix that
// names a single object yields the object's base name.
func relativeKey(prefix, key string) string {
	if key == prefix {
		return path.Base(key)
	}
	return strings.TrimPrefix(key, prefixDir(prefix))
}

// underPrefix reports whether key is the object prefix names or lies in the
// directory it names. Siblings sharing the prefix text, such as P_other/x
// for prefix P, are not.
func underPrefix(prefix, key string) bool {
	return key == prefix || strings.HasPrefix(key, prefixDir(prefix))
}

func prefixDir(prefix string) string {
	if prefix == "" || strings.HasSuffix(prefix, "/") {
		return prefix
	}
	return prefix + "/"
}

type progressWriter struct {
	dst      Writer
	progress ProgressFunc

	mu   sync.Mutex
	meta FileProgress
}

func newProgressWriter(dst Writer, fn ProgressFunc, meta FileProgress) *progressWriter {
	return &progressWriter{dst: dst, progress: fn, meta: meta}
}

func (w *progressWriter) Write(p []byte) (int, error) {
	n, err := w.dst.Write(p)
	w.report(n)
	return n, err
}

func (w *progressWriter) WriteAt(p []byte, off int64) (int, error) {
	n, err := w.dst.WriteAt(p, off)
	w.report(n)
	return n, err
}

func (w *progressWriter) report(n int) {
	if n <= 0 {
		return
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	w.meta.Downloaded += int64(n)
	if w.progress != nil {
		w.progress(w.meta)
	}
}
