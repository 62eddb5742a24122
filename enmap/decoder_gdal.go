//go:build cgo && !nogdal

package enmap

import (
	"github.com/example/go-enmap/enmap/raster"
	"github.com/example/go-enmap/enmap/raster/gdalraster"
)

func defaultOpener() raster.Opener {
	return gdalraster.New()
}
