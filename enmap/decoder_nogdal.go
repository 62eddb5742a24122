//go:build !cgo || nogdal

package enmap

import (
	"context"
	"fmt"

	"github.com/example/go-enmap/enmap/raster"
)

// defaultOpener fails every open; pass WithOpener or build with cgo and
// without the nogdal tag.
func defaultOpener() raster.Opener {
	return raster.OpenerFunc(func(_ context.Context, path string) (raster.Dataset, error) {
		return nil, fmt.Errorf("%w: %s", ErrNoDecoder, path)
	})
}
