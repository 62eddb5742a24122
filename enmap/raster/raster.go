// Package raster abstracts the single-file raster decoder used to read
// EnMAP GeoTIFF, JPEG2000 and ENVI files.
package raster

import (
	"context"
	"errors"
	"fmt"
	"image"
)

var (
	// ErrClosed is returned by operations on a closed dataset.
	ErrClosed = errors.New("raster: dataset closed")
	// ErrBandOutOfRange is returned for band indexes outside the dataset.
	ErrBandOutOfRange = errors.New("raster: band out of range")
)

// Dataset is one opened raster file. Implementations are not required to be
// safe for concurrent reads.
type Dataset interface {
	// Size returns the raster dimension in pixels.
	Size() image.Point
	// BandCount returns the number of bands in the file.
	BandCount() int
	// BlockSize returns the native tile size of the file.
	BlockSize() image.Point
	// Read copies rect of the zero-based band into dst, row by row.
	Read(band int, rect image.Rectangle, dst []int32) error
	// Transform returns the file's own pixel-to-map transform. ok is false
	// when the file carries none.
	Transform() (t Affine, ok bool)
	Close() error
}

// Opener opens raster datasets by decoder path.
type Opener interface {
	Open(ctx context.Context, path string) (Dataset, error)
}

// OpenerFunc adapts a function to the Opener interface.
type OpenerFunc func(ctx context.Context, path string) (Dataset, error)

// Open calls f.
func (f OpenerFunc) Open(ctx context.Context, path string) (Dataset, error) {
	return f(ctx, path)
}

// Affine is a six term geo transform in GDAL order: origin x, pixel width,
// row rotation, origin y, column rotation, pixel height.
type Affine [6]float64

// Origin returns the map coordinate of the upper left pixel corner.
func (a Affine) Origin() (x, y float64) {
	return a[0], a[3]
}

// NorthUp reports whether the transform has no rotation terms.
func (a Affine) NorthUp() bool {
	return a[2] == 0 && a[4] == 0
}

// Apply maps the pixel coordinate (px, py) to map coordinates.
func (a Affine) Apply(px, py float64) (x, y float64) {
	return a[0] + px*a[1] + py*a[2], a[3] + px*a[4] + py*a[5]
}

// CheckRead validates a read request against a dataset geometry.
func CheckRead(size image.Point, bands, band int, rect image.Rectangle, dst []int32) error {
	if band < 0 || band >= bands {
		return fmt.Errorf("%w: %d not in [0, %d)", ErrBandOutOfRange, band, bands)
	}
	if rect.Empty() || !rect.In(image.Rect(0, 0, size.X, size.Y)) {
		return fmt.Errorf("raster: rectangle %v outside %dx%d raster", rect, size.X, size.Y)
	}
	if len(dst) < rect.Dx()*rect.Dy() {
		return fmt.Errorf("raster: buffer holds %d samples, need %d", len(dst), rect.Dx()*rect.Dy())
	}
	return nil
}
