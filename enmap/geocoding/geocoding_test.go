package geocoding

import (
	"bytes"
	"context"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/go-enmap/enmap/container"
	"github.com/example/go-enmap/enmap/meta"
	"github.com/example/go-enmap/enmap/raster"
)

const (
	productID   = "DT000326721_20170626T102020Z_001_V000204_20200406T201930Z"
	l2aFixture  = "ENMAP01-____L2A-" + productID + "-METADATA.XML"
	l1bFixture  = "ENMAP01-____L1B-" + productID + "-METADATA.XML"
	classesFile = "ENMAP01-____L2A-" + productID + "-QL_QUALITY_CLASSES.TIF"
)

func loadMetadata(t *testing.T, name string, edits ...string) meta.Metadata {
	t.Helper()
	data, err := os.ReadFile(filepath.Join("..", "meta", "testdata", name))
	require.NoError(t, err)
	doc := string(data)
	for i := 0; i+1 < len(edits); i += 2 {
		require.Contains(t, doc, edits[i])
		doc = strings.Replace(doc, edits[i], edits[i+1], 1)
	}
	md, err := meta.Parse([]byte(doc))
	require.NoError(t, err)
	return md
}

func TestEPSG(t *testing.T) {
	cases := map[string]int{
		"UTM zone 32 North": 32632,
		"UTM zone 32 South": 32732,
		"UTM_Zone32_North":  32632,
		"UTM_Zone5_South":   32705,
		"UTM_Zone5_North":   32605,
		"UTM_Zone05_North":  32605,
		"UTM zone 9":        32709,
		"LAEA-ETRS89":       3035,
		"Geographic":        4326,
	}
	for projection, want := range cases {
		got, err := EPSG(projection)
		require.NoError(t, err, projection)
		assert.Equal(t, want, got, projection)
	}
	for _, projection := range []string{"", "Mercator", "UTM zone 61 North", "UTM zone North", "UTM_Zone123_North", "UTM_Zone0_North", "geographic"} {
		_, err := EPSG(projection)
		assert.ErrorIs(t, err, ErrUnknownProjection, projection)
	}
}

func TestSelectTiePoint(t *testing.T) {
	md := loadMetadata(t, l1bFixture)
	d, err := Selector{}.Select(context.Background(), md)
	require.NoError(t, err)
	tp, ok := d.(TiePoint)
	require.True(t, ok, "expected TiePoint, got %T", d)

	assert.Equal(t, [4]float64{47.974854, 47.917313, 47.703251, 47.646027}, tp.Latitudes)
	assert.Equal(t, [4]float64{11.089172, 11.489935, 10.991294, 11.389551}, tp.Longitudes)
	assert.Equal(t, 30.0, tp.PixelSizeMeters)
	assert.Equal(t, "EPSG:4326", tp.CRS())

	ring := tp.Footprint()
	require.Len(t, ring, 5)
	assert.Equal(t, ring[0], ring[4])
	assert.Equal(t, 11.389551, ring[2][0])
}

func classesFixture(affine *raster.Affine) (container.Container, *raster.Memory, raster.Opener) {
	c := container.NewMemory("mem", map[string][]byte{classesFile: nil})
	ds := raster.NewMemory(classesFile, 4, 4, 1, nil)
	ds.Affine = affine
	return c, ds, raster.NewMemoryOpener(ds)
}

func TestSelectMapProjected(t *testing.T) {
	md := loadMetadata(t, l2aFixture)
	c, ds, o := classesFixture(&raster.Affine{600000, 30, 0, 5320000, 0, -30})

	d, err := Selector{Container: c, Opener: o}.Select(context.Background(), md)
	require.NoError(t, err)
	mp, ok := d.(MapProjected)
	require.True(t, ok, "expected MapProjected, got %T", d)

	assert.Equal(t, MapProjected{
		EPSG:           32632,
		Resolution:     30,
		OriginEasting:  600000,
		OriginNorthing: 5320000,
		Width:          1000,
		Height:         1024,
	}, mp)
	assert.Equal(t, "EPSG:32632", mp.CRS())
	assert.Equal(t, 1, ds.Closes(), "classes raster must be closed after reading the origin")

	b := mp.Bounds()
	assert.Equal(t, 630000.0, b.Max[0])
	assert.Equal(t, 5320000.0-1024*30, b.Min[1])
}

func TestSelectSoftFailures(t *testing.T) {
	var logs bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&logs, nil))
	md := loadMetadata(t, l2aFixture)

	c, _, o := classesFixture(nil)
	d, err := Selector{Container: c, Opener: o, Logger: logger}.Select(context.Background(), md)
	require.NoError(t, err)
	assert.Nil(t, d)
	assert.Contains(t, logs.String(), "no affine transform")

	logs.Reset()
	empty := container.NewMemory("mem", nil)
	d, err = Selector{Container: empty, Opener: raster.NewMemoryOpener(), Logger: logger}.Select(context.Background(), md)
	require.NoError(t, err)
	assert.Nil(t, d)
	assert.Contains(t, logs.String(), "classes raster missing")
}

func TestSelectHardFailures(t *testing.T) {
	md := loadMetadata(t, l2aFixture, "UTM_Zone32_North", "Mercator")
	c, _, o := classesFixture(&raster.Affine{0, 30, 0, 0, 0, -30})
	_, err := Selector{Container: c, Opener: o}.Select(context.Background(), md)
	assert.ErrorIs(t, err, ErrUnknownProjection)
}

func TestNotAvailableResolution(t *testing.T) {
	md := loadMetadata(t, l2aFixture, "<resolution>30</resolution>", "<resolution>na</resolution>")
	c, _, o := classesFixture(&raster.Affine{1, 30, 0, 2, 0, -30})
	d, err := Selector{Container: c, Opener: o}.Select(context.Background(), md)
	require.NoError(t, err)
	assert.True(t, math.IsNaN(d.(MapProjected).Resolution))
}
