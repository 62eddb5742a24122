// Package imagery joins the raster files of a product into index
// addressable series of single band images.
package imagery

import (
	"context"
	"errors"
	"fmt"
	"image"
	"sync"

	"github.com/example/go-enmap/enmap/container"
	"github.com/example/go-enmap/enmap/meta"
	"github.com/example/go-enmap/enmap/raster"
)

// ErrBandCountMismatch is returned when a raster file holds fewer bands
// than the metadata declares for it.
var ErrBandCountMismatch = errors.New("imagery: band count mismatch")

// Key selects the logical content of a series.
type Key string

const (
	// Spectral is the spectral cube.
	Spectral Key = meta.KeySpectralImage
	// PixelMask is the per spectral band defective pixel cube.
	PixelMask Key = meta.KeyPixelMask
)

// Quality returns the key of a single quality file, e.g.
// meta.KeyQualityCloud or meta.KeyQualityTestFlagsVNIR.
func Quality(fileKey string) Key {
	return Key(fileKey)
}

// Series is an ordered sequence of single band images. For L1B spectral
// and pixel mask content it spans a VNIR and a SWIR file; otherwise it
// covers the bands of one file. The series owns its datasets.
type Series struct {
	key       Key
	vnir      raster.Dataset
	swir      raster.Dataset
	vnirCount int
	total     int

	closeOnce sync.Once
	closeErr  error
}

// OpenSeries opens the raster files behind key.
func OpenSeries(ctx context.Context, c container.Container, o raster.Opener, md meta.Metadata, key Key) (*Series, error) {
	switch key {
	case Spectral, PixelMask:
		switch md.Level() {
		case meta.LevelL1B:
			return openSplit(ctx, c, o, md, key)
		case meta.LevelL1C, meta.LevelL2A:
			return openSingle(ctx, c, o, md, key)
		default:
			return nil, fmt.Errorf("imagery: %w: %s", meta.ErrUnknownProcessingLevel, md.Level())
		}
	default:
		return openSingle(ctx, c, o, md, key)
	}
}

func openFile(ctx context.Context, c container.Container, o raster.Opener, md meta.Metadata, fileKey string) (raster.Dataset, error) {
	name, err := meta.RequireFile(md, fileKey)
	if err != nil {
		return nil, err
	}
	p, err := c.Locate(name)
	if err != nil {
		return nil, fmt.Errorf("imagery: locate %s: %w", name, err)
	}
	ds, err := o.Open(ctx, p)
	if err != nil {
		return nil, fmt.Errorf("imagery: open %s: %w", name, err)
	}
	return ds, nil
}

func openSingle(ctx context.Context, c container.Container, o raster.Opener, md meta.Metadata, key Key) (*Series, error) {
	ds, err := openFile(ctx, c, o, md, string(key))
	if err != nil {
		return nil, err
	}
	n := ds.BandCount()
	return &Series{key: key, vnir: ds, vnirCount: n, total: n}, nil
}

func openSplit(ctx context.Context, c container.Container, o raster.Opener, md meta.Metadata, key Key) (*Series, error) {
	vnirCount, err := md.VNIRBandCount()
	if err != nil {
		return nil, err
	}
	swirCount, err := md.SWIRBandCount()
	if err != nil {
		return nil, err
	}

	vnir, err := openFile(ctx, c, o, md, string(key)+"_VNIR")
	if err != nil {
		return nil, err
	}
	if vnir.BandCount() < vnirCount {
		vnir.Close()
		return nil, fmt.Errorf("%w: %s_VNIR has %d bands, want %d", ErrBandCountMismatch, key, vnir.BandCount(), vnirCount)
	}
	swir, err := openFile(ctx, c, o, md, string(key)+"_SWIR")
	if err != nil {
		vnir.Close()
		return nil, err
	}
	if swir.BandCount() < swirCount {
		swir.Close()
		vnir.Close()
		return nil, fmt.Errorf("%w: %s_SWIR has %d bands, want %d", ErrBandCountMismatch, key, swir.BandCount(), swirCount)
	}
	return &Series{
		key:       key,
		vnir:      vnir,
		swir:      swir,
		vnirCount: vnirCount,
		total:     vnirCount + swirCount,
	}, nil
}

// Key returns the logical content of the series.
func (s *Series) Key() Key {
	return s.key
}

// BandCount returns the number of images in the series.
func (s *Series) BandCount() int {
	return s.total
}

// Split reports whether the series spans a VNIR and a SWIR file.
func (s *Series) Split() bool {
	return s.swir != nil
}

// ImageAt returns the zero-based image i.
func (s *Series) ImageAt(i int) (Image, error) {
	if i < 0 || i >= s.total {
		return Image{}, fmt.Errorf("%w: %d not in [0, %d)", meta.ErrIndexOutOfRange, i, s.total)
	}
	if s.swir != nil && i >= s.vnirCount {
		return Image{ds: s.swir, band: i - s.vnirCount}, nil
	}
	return Image{ds: s.vnir, band: i}, nil
}

// TileSize returns the native block size of the first file.
func (s *Series) TileSize() image.Point {
	return s.vnir.BlockSize()
}

// Size returns the raster dimension of the series.
func (s *Series) Size() image.Point {
	return s.vnir.Size()
}

// Datasets returns the underlying files, VNIR first.
func (s *Series) Datasets() []raster.Dataset {
	if s.swir != nil {
		return []raster.Dataset{s.vnir, s.swir}
	}
	return []raster.Dataset{s.vnir}
}

// Close closes every dataset exactly once, SWIR before VNIR.
func (s *Series) Close() error {
	s.closeOnce.Do(func() {
		var errs []error
		if s.swir != nil {
			if err := s.swir.Close(); err != nil {
				errs = append(errs, err)
			}
		}
		if err := s.vnir.Close(); err != nil {
			errs = append(errs, err)
		}
		s.closeErr = errors.Join(errs...)
	})
	return s.closeErr
}

// Image is a single band view of a dataset.
type Image struct {
	ds   raster.Dataset
	band int
}

// Dataset returns the file the image reads from.
func (im Image) Dataset() raster.Dataset {
	return im.ds
}

// Band returns the zero-based band within Dataset.
func (im Image) Band() int {
	return im.band
}

// Size returns the raster dimension.
func (im Image) Size() image.Point {
	return im.ds.Size()
}

// ReadTile reads rect of the band into dst.
func (im Image) ReadTile(rect image.Rectangle, dst []int32) error {
	return im.ds.Read(im.band, rect, dst)
}
