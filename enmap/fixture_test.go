package enmap

import (
	"bytes"
	"context"
	"image"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"sync"
	"testing"

	"github.com/example/go-enmap/enmap/container"
	"github.com/example/go-enmap/enmap/meta"
	"github.com/example/go-enmap/enmap/raster"
)

const (
	l1bBase = "ENMAP01-____L1B-DT000326721_20170626T102020Z_001_V000204_20200406T201930Z"
	l2aBase = "ENMAP01-____L2A-DT000326721_20170626T102020Z_001_V000204_20200406T201930Z"

	sceneWidth  = 6
	sceneHeight = 4
)

var (
	widthPattern  = regexp.MustCompile(`(<widthOf(?:Ortho)?Scene>)\d+(<)`)
	heightPattern = regexp.MustCompile(`(<heightOf(?:Ortho)?Scene>)\d+(<)`)
	classesAffine = raster.Affine{600000, 30, 0, 5300000, 0, -30}
)

// synthProduct holds the files of a synthetic product. Raster samples of
// spectral band k (1-based) are (k-1)*100 + 10*y + x.
type synthProduct struct {
	base     string
	metadata []byte
	rasters  map[string]*raster.Memory
}

func base(level meta.Level) string {
	if level == meta.LevelL1B {
		return l1bBase
	}
	return l2aBase
}

func loadMetadata(t *testing.T, level meta.Level) []byte {
	t.Helper()
	data, err := os.ReadFile(filepath.Join("meta", "testdata", base(level)+meta.MetadataSuffix))
	if err != nil {
		t.Fatalf("read metadata fixture: %v", err)
	}
	data = widthPattern.ReplaceAll(data, []byte("${1}6${2}"))
	return heightPattern.ReplaceAll(data, []byte("${1}4${2}"))
}

func spectralFill(offset int) func(b, x, y int) int32 {
	return func(b, x, y int) int32 {
		return int32((b+offset)*100 + y*10 + x)
	}
}

// newProduct builds the rasters of a product. name maps a file name onto
// the path the raster decoder is asked to open.
func newProduct(t *testing.T, level meta.Level, name func(file string) string) *synthProduct {
	t.Helper()
	p := &synthProduct{base: base(level), metadata: loadMetadata(t, level), rasters: make(map[string]*raster.Memory)}
	add := func(suffix string, bands int, fill func(b, x, y int) int32) *raster.Memory {
		file := p.base + "-" + suffix
		ds := raster.NewMemory(name(file), sceneWidth, sceneHeight, bands, fill)
		p.rasters[suffix] = ds
		return ds
	}

	if level == meta.LevelL1B {
		add("SPECTRAL_IMAGE_VNIR.TIF", 2, spectralFill(0)).Block = image.Pt(3, 2)
		add("SPECTRAL_IMAGE_SWIR.TIF", 3, spectralFill(2)).Block = image.Pt(3, 2)
		add("QL_PIXELMASK_VNIR.TIF", 2, nil)
		add("QL_PIXELMASK_SWIR.TIF", 3, nil)
		add("QL_QUALITY_TESTFLAGS_VNIR.TIF", 1, nil)
		add("QL_QUALITY_TESTFLAGS_SWIR.TIF", 1, nil)
	} else {
		add("SPECTRAL_IMAGE.TIF", 4, spectralFill(0)).Block = image.Pt(3, 2)
		add("QL_PIXELMASK.TIF", 4, func(b, x, y int) int32 { return int32((x + b) % 2) })
		add("QL_QUALITY_TESTFLAGS.TIF", 1, nil)
	}
	classes := add("QL_QUALITY_CLASSES.TIF", 1, func(_, x, _ int) int32 { return int32(x % 3) })
	affine := classesAffine
	classes.Affine = &affine
	for _, q := range []string{"CLOUD", "CLOUDSHADOW", "HAZE", "CIRRUS", "SNOW"} {
		add("QL_QUALITY_"+q+".TIF", 1, nil)
	}
	return p
}

func (p *synthProduct) metadataName() string {
	return p.base + meta.MetadataSuffix
}

func (p *synthProduct) opener(skip ...string) *raster.MemoryOpener {
	var ds []*raster.Memory
	for suffix, m := range p.rasters {
		if !contains(skip, suffix) {
			ds = append(ds, m)
		}
	}
	return raster.NewMemoryOpener(ds...)
}

func (p *synthProduct) files(folder string, skip ...string) map[string][]byte {
	files := map[string][]byte{folder + p.metadataName(): p.metadata}
	for suffix := range p.rasters {
		if !contains(skip, suffix) {
			files[folder+p.base+"-"+suffix] = nil
		}
	}
	return files
}

// memoryProduct returns a product held in a memory container under a
// product folder.
func memoryProduct(t *testing.T, level meta.Level) (*synthProduct, *container.Memory) {
	t.Helper()
	folder := base(level) + "/"
	p := newProduct(t, level, func(file string) string { return folder + file })
	return p, container.NewMemory("mem://"+p.base, p.files(folder))
}

// allClosed reports whether every raster was closed as often as opened.
func (p *synthProduct) allClosed(t *testing.T) {
	t.Helper()
	for suffix, ds := range p.rasters {
		if ds.Opens() != ds.Closes() {
			t.Fatalf("%s opened %d times, closed %d times", suffix, ds.Opens(), ds.Closes())
		}
	}
}

func writeProduct(t *testing.T, dir string, files map[string][]byte) {
	t.Helper()
	for name, data := range files {
		p := filepath.Join(dir, filepath.FromSlash(name))
		if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
			t.Fatalf("mkdir: %v", err)
		}
		if err := os.WriteFile(p, data, 0o644); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
	}
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

// bucketStore serves objects from memory for one URI scheme.
type bucketStore struct {
	scheme  string
	objects map[string][]byte

	mu      sync.Mutex
	fetched int
}

func (s *bucketStore) Scheme() string { return s.scheme }

func (s *bucketStore) List(ctx context.Context, bucket, prefix string) ([]container.Object, error) {
	var out []container.Object
	for k, v := range s.objects {
		if strings.HasPrefix(k, prefix) {
			out = append(out, container.Object{Key: k, Size: int64(len(v))})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

func (s *bucketStore) Fetch(ctx context.Context, bucket, key string, w container.Writer) (int64, error) {
	s.mu.Lock()
	s.fetched++
	s.mu.Unlock()
	n, err := bytes.NewReader(s.objects[key]).WriteTo(w)
	return n, err
}
