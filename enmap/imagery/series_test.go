package imagery

import (
	"context"
	"errors"
	"image"
	"testing"

	"github.com/example/go-enmap/enmap/container"
	"github.com/example/go-enmap/enmap/meta"
	"github.com/example/go-enmap/enmap/raster"
)

type fakeMeta struct {
	meta.Metadata
	level meta.Level
	vnir  int
	swir  int
	files map[string]string
}

func (f fakeMeta) Level() meta.Level           { return f.level }
func (f fakeMeta) VNIRBandCount() (int, error) { return f.vnir, nil }
func (f fakeMeta) SWIRBandCount() (int, error) { return f.swir, nil }

func (f fakeMeta) FileName(k string) (string, bool) {
	name, ok := f.files[k]
	return name, ok
}

func fill(b, x, y int) int32 {
	return int32(b*1000 + y*10 + x)
}

func splitFixture(vnirBands, swirBands int) (fakeMeta, container.Container, *raster.Memory, *raster.Memory, *raster.MemoryOpener) {
	md := fakeMeta{
		level: meta.LevelL1B,
		vnir:  4,
		swir:  6,
		files: map[string]string{
			meta.KeySpectralImageVNIR: "P-SPECTRAL_IMAGE_VNIR.TIF",
			meta.KeySpectralImageSWIR: "P-SPECTRAL_IMAGE_SWIR.TIF",
		},
	}
	c := container.NewMemory("mem", map[string][]byte{
		"P-SPECTRAL_IMAGE_VNIR.TIF": nil,
		"P-SPECTRAL_IMAGE_SWIR.TIF": nil,
	})
	vnir := raster.NewMemory("P-SPECTRAL_IMAGE_VNIR.TIF", 3, 2, vnirBands, fill)
	swir := raster.NewMemory("P-SPECTRAL_IMAGE_SWIR.TIF", 3, 2, swirBands, fill)
	return md, c, vnir, swir, raster.NewMemoryOpener(vnir, swir)
}

func TestSplitIndexMapping(t *testing.T) {
	md, c, vnir, swir, o := splitFixture(4, 6)
	s, err := OpenSeries(context.Background(), c, o, md, Spectral)
	if err != nil {
		t.Fatalf("OpenSeries returned error: %v", err)
	}
	defer s.Close()
	if s.BandCount() != 10 || !s.Split() {
		t.Fatalf("expected 10 split bands, got %d", s.BandCount())
	}

	im, err := s.ImageAt(3)
	if err != nil {
		t.Fatalf("ImageAt(3) returned error: %v", err)
	}
	if im.Dataset() != vnir || im.Band() != 3 {
		t.Fatalf("ImageAt(3) resolved to %v band %d", im.Dataset(), im.Band())
	}
	im, err = s.ImageAt(4)
	if err != nil {
		t.Fatalf("ImageAt(4) returned error: %v", err)
	}
	if im.Dataset() != swir || im.Band() != 0 {
		t.Fatalf("ImageAt(4) resolved to %v band %d", im.Dataset(), im.Band())
	}
	for _, i := range []int{10, -1} {
		if _, err := s.ImageAt(i); !errors.Is(err, meta.ErrIndexOutOfRange) {
			t.Fatalf("ImageAt(%d): expected ErrIndexOutOfRange, got %v", i, err)
		}
	}
}

func TestImageReadTile(t *testing.T) {
	md, c, _, _, o := splitFixture(4, 6)
	s, err := OpenSeries(context.Background(), c, o, md, Spectral)
	if err != nil {
		t.Fatalf("OpenSeries returned error: %v", err)
	}
	defer s.Close()
	im, _ := s.ImageAt(9)
	dst := make([]int32, 2)
	if err := im.ReadTile(image.Rect(1, 1, 3, 2), dst); err != nil {
		t.Fatalf("ReadTile returned error: %v", err)
	}
	if dst[0] != 5011 || dst[1] != 5012 {
		t.Fatalf("unexpected samples %v", dst)
	}
	if im.Size() != image.Pt(3, 2) || s.TileSize() != image.Pt(3, 2) {
		t.Fatalf("unexpected geometry %v %v", im.Size(), s.TileSize())
	}
}

func TestCloseOnce(t *testing.T) {
	md, c, vnir, swir, o := splitFixture(4, 6)
	s, err := OpenSeries(context.Background(), c, o, md, Spectral)
	if err != nil {
		t.Fatalf("OpenSeries returned error: %v", err)
	}
	s.Close()
	s.Close()
	if vnir.Closes() != 1 || swir.Closes() != 1 {
		t.Fatalf("expected single closes, got vnir=%d swir=%d", vnir.Closes(), swir.Closes())
	}
}

func TestSWIRFailureClosesVNIR(t *testing.T) {
	md, c, vnir, _, _ := splitFixture(4, 6)
	o := raster.NewMemoryOpener(vnir)
	if _, err := OpenSeries(context.Background(), c, o, md, Spectral); err == nil {
		t.Fatalf("expected error when SWIR cannot be opened")
	}
	if vnir.Closes() != 1 {
		t.Fatalf("expected VNIR closed exactly once, got %d", vnir.Closes())
	}
}

func TestBandCountMismatch(t *testing.T) {
	md, c, vnir, swir, o := splitFixture(4, 5)
	if _, err := OpenSeries(context.Background(), c, o, md, Spectral); !errors.Is(err, ErrBandCountMismatch) {
		t.Fatalf("expected ErrBandCountMismatch, got %v", err)
	}
	if vnir.Closes() != 1 || swir.Closes() != 1 {
		t.Fatalf("expected both datasets closed, got vnir=%d swir=%d", vnir.Closes(), swir.Closes())
	}
}

func TestMergedSeries(t *testing.T) {
	md := fakeMeta{level: meta.LevelL2A, files: map[string]string{
		meta.KeySpectralImage: "P-SPECTRAL_IMAGE.TIF",
		meta.KeyQualityCloud:  "P-QL_QUALITY_CLOUD.TIF",
	}}
	c := container.NewMemory("mem", map[string][]byte{"P-SPECTRAL_IMAGE.TIF": nil, "P-QL_QUALITY_CLOUD.TIF": nil})
	cube := raster.NewMemory("P-SPECTRAL_IMAGE.TIF", 2, 2, 7, fill)
	cloud := raster.NewMemory("P-QL_QUALITY_CLOUD.TIF", 2, 2, 1, nil)
	o := raster.NewMemoryOpener(cube, cloud)

	s, err := OpenSeries(context.Background(), c, o, md, Spectral)
	if err != nil {
		t.Fatalf("OpenSeries returned error: %v", err)
	}
	if s.BandCount() != 7 || s.Split() {
		t.Fatalf("expected 7 merged bands, got %d", s.BandCount())
	}
	im, _ := s.ImageAt(6)
	if im.Dataset() != cube || im.Band() != 6 {
		t.Fatalf("unexpected mapping for index 6")
	}
	s.Close()

	q, err := OpenSeries(context.Background(), c, o, md, Quality(meta.KeyQualityCloud))
	if err != nil {
		t.Fatalf("OpenSeries(cloud) returned error: %v", err)
	}
	if q.BandCount() != 1 || len(q.Datasets()) != 1 {
		t.Fatalf("expected single band quality series")
	}
	q.Close()
}

func TestMissingFile(t *testing.T) {
	md := fakeMeta{level: meta.LevelL1C, files: map[string]string{}}
	c := container.NewMemory("mem", nil)
	if _, err := OpenSeries(context.Background(), c, raster.NewMemoryOpener(), md, PixelMask); !errors.Is(err, meta.ErrFileNotFound) {
		t.Fatalf("expected ErrFileNotFound, got %v", err)
	}
}
