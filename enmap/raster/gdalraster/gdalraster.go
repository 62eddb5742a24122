// Package gdalraster decodes EnMAP raster files through the GDAL library.
// It is the only package of the module that needs cgo and libgdal.
package gdalraster

import (
	"context"
	"fmt"
	"image"
	"sync"

	"github.com/airbusgeo/godal"

	"github.com/example/go-enmap/enmap/raster"
)

var registerOnce sync.Once

// Opener opens datasets through GDAL. Paths may use GDAL virtual file
// systems such as /vsizip/.
type Opener struct{}

// New registers the GDAL drivers on first use.
func New() *Opener {
	registerOnce.Do(godal.RegisterAll)
	return &Opener{}
}

// Open implements raster.Opener.
func (o *Opener) Open(ctx context.Context, path string) (raster.Dataset, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	ds, err := godal.Open(path)
	if err != nil {
		return nil, fmt.Errorf("gdalraster: open %s: %w", path, err)
	}
	st := ds.Structure()
	return &dataset{
		ds:    ds,
		bands: ds.Bands(),
		size:  image.Pt(st.SizeX, st.SizeY),
		block: image.Pt(st.BlockSizeX, st.BlockSizeY),
	}, nil
}

type dataset struct {
	ds     *godal.Dataset
	bands  []godal.Band
	size   image.Point
	block  image.Point
	closed bool
}

func (d *dataset) Size() image.Point {
	return d.size
}

func (d *dataset) BandCount() int {
	return len(d.bands)
}

func (d *dataset) BlockSize() image.Point {
	return d.block
}

func (d *dataset) Read(band int, rect image.Rectangle, dst []int32) error {
	if d.closed {
		return raster.ErrClosed
	}
	if err := raster.CheckRead(d.size, len(d.bands), band, rect, dst); err != nil {
		return err
	}
	n := rect.Dx() * rect.Dy()
	if err := d.bands[band].Read(rect.Min.X, rect.Min.Y, dst[:n], rect.Dx(), rect.Dy()); err != nil {
		return fmt.Errorf("gdalraster: read band %d %v: %w", band, rect, err)
	}
	return nil
}

func (d *dataset) Transform() (raster.Affine, bool) {
	gt, err := d.ds.GeoTransform()
	if err != nil {
		return raster.Affine{}, false
	}
	return raster.Affine(gt), true
}

func (d *dataset) Close() error {
	if d.closed {
		return nil
	}
	d.closed = true
	return d.ds.Close()
}
