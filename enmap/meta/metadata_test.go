package meta

import (
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/go-enmap/enmap/product"
)

const (
	l2aName = "ENMAP01-____L2A-DT000326721_20170626T102020Z_001_V000204_20200406T201930Z"
	l1bName = "ENMAP01-____L1B-DT000326721_20170626T102020Z_001_V000204_20200406T201930Z"
)

func readFixture(t *testing.T, name string) string {
	t.Helper()
	data, err := os.ReadFile(filepath.Join("testdata", name+MetadataSuffix))
	require.NoError(t, err)
	return string(data)
}

func parseFixture(t *testing.T, name string, edits ...string) Metadata {
	t.Helper()
	doc := readFixture(t, name)
	for i := 0; i+1 < len(edits); i += 2 {
		require.Contains(t, doc, edits[i])
		doc = strings.Replace(doc, edits[i], edits[i+1], 1)
	}
	md, err := Parse([]byte(doc))
	require.NoError(t, err)
	return md
}

func TestL2AScalars(t *testing.T) {
	md := parseFixture(t, l2aName)
	require.IsType(t, &L2AMetadata{}, md)

	assert.Equal(t, LevelL2A, md.Level())

	name, err := md.ProductName()
	require.NoError(t, err)
	assert.Equal(t, l2aName, name)
	assert.Len(t, name, ProductNameLength)

	productType, err := md.ProductType()
	require.NoError(t, err)
	assert.Equal(t, "ENMAP_L2A", productType)

	schema, err := md.SchemaVersion()
	require.NoError(t, err)
	assert.Equal(t, "01.02.00", schema)

	revision, err := md.ProcessingVersion()
	require.NoError(t, err)
	assert.Equal(t, "01.02.04", revision)

	l0, err := md.L0ProcessingVersion()
	require.NoError(t, err)
	assert.Equal(t, "01.00.02", l0)

	format, err := md.ProductFormat()
	require.NoError(t, err)
	assert.Equal(t, FormatGeoTIFF, format)

	size, err := md.SceneSize()
	require.NoError(t, err)
	assert.Equal(t, Size{Width: 1000, Height: 1024}, size)
}

func TestL2ATimes(t *testing.T) {
	md := parseFixture(t, l2aName)

	start, err := md.StartTime()
	require.NoError(t, err)
	assert.Equal(t, time.UTC, start.Location())
	assert.Equal(t, time.Date(2017, 6, 26, 10, 20, 20, 999_000_000, time.UTC), start)

	stop, err := md.StopTime()
	require.NoError(t, err)
	assert.Equal(t, time.Date(2017, 6, 26, 10, 20, 25, 545_000_000, time.UTC), stop)
}

func TestL2AAngles(t *testing.T) {
	md := parseFixture(t, l2aName)

	cases := []struct {
		name    string
		get     func() (Angles, error)
		corners [4]float64
		center  float64
	}{
		{"sun elevation", md.SunElevation, [4]float64{62.843017, 63.025996, 63.232013, 63.048052}, 63.038384},
		{"sun azimuth", md.SunAzimuth, [4]float64{148.98072, 149.614311, 149.224083, 148.59262}, 149.106702},
		{"across off nadir", md.AcrossOffNadir, [4]float64{1.27641076292, -1.35358251158, -1.4507597324, 1.17928885285}, -0.0871606570525},
		{"along off nadir", md.AlongOffNadir, [4]float64{-0.0692040225255, -0.0695301149423, -0.167785438271, -0.16870825914}, -0.11880695872},
		{"scene azimuth", md.SceneAzimuth, [4]float64{14.2906888082, 14.2906888082, 14.2149804324, 14.2149804324}, 14.2528346203},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := tc.get()
			require.NoError(t, err)
			for i := range tc.corners {
				assert.InDelta(t, tc.corners[i], got.Corners[i], 1e-9)
			}
			assert.InDelta(t, tc.center, got.Center, 1e-9)
		})
	}
}

func TestSpatialCoverageClosesRing(t *testing.T) {
	md := parseFixture(t, l2aName)

	ring, err := md.SpatialCoverage()
	require.NoError(t, err)
	require.Len(t, ring, 5)
	assert.Equal(t, ring[0], ring[4])
	assert.InDelta(t, 11.089172, ring[0][0], 1e-9)
	assert.InDelta(t, 47.974854, ring[0][1], 1e-9)
	assert.InDelta(t, 11.389551, ring[2][0], 1e-9)

	orthoMD, ok := md.(Ortho)
	require.True(t, ok)
	orthoRing, err := orthoMD.OrthoSpatialCoverage()
	require.NoError(t, err)
	assert.Equal(t, orthoRing[0], orthoRing[4])
	assert.InDelta(t, 47.98, orthoRing[4][1], 1e-9)
}

func TestGeoReferencing(t *testing.T) {
	md := parseFixture(t, l2aName).(Ortho)
	ref, err := md.GeoReferencing()
	require.NoError(t, err)
	assert.Equal(t, "UTM_Zone32_North", ref.Projection)
	assert.Equal(t, 30.0, ref.Resolution)

	na := parseFixture(t, l2aName, "<resolution>30</resolution>", "<resolution>na</resolution>").(Ortho)
	ref, err = na.GeoReferencing()
	require.NoError(t, err)
	assert.True(t, math.IsNaN(ref.Resolution))

	bad := parseFixture(t, l2aName, "<resolution>30</resolution>", "<resolution>thirty</resolution>").(Ortho)
	_, err = bad.GeoReferencing()
	assert.ErrorIs(t, err, ErrFieldMalformed)
}

func TestBandCharacterisation(t *testing.T) {
	md := parseFixture(t, l2aName)

	n, err := md.NumSpectralBands()
	require.NoError(t, err)
	assert.Equal(t, 4, n)

	wl, err := md.CentralWavelength(0)
	require.NoError(t, err)
	assert.Equal(t, 418.24, wl)

	fwhm, err := md.Bandwidth(1)
	require.NoError(t, err)
	assert.Equal(t, 6.9956, fwhm)

	gain, err := md.BandScaling(3)
	require.NoError(t, err)
	assert.Equal(t, 0.0002, gain)

	offset, err := md.BandOffset(3)
	require.NoError(t, err)
	assert.Equal(t, 0.5, offset)

	_, err = md.CentralWavelength(4)
	assert.ErrorIs(t, err, ErrIndexOutOfRange)
	_, err = md.CentralWavelength(-1)
	assert.ErrorIs(t, err, ErrIndexOutOfRange)

	desc, err := md.SpectralDescription(0)
	require.NoError(t, err)
	assert.Equal(t, "Surface reflectance @418.24", desc)
	assert.Equal(t, "", md.SpectralUnit())
	assert.Equal(t, product.TypeInt16, md.SpectralDataType())

	indices, err := md.SpectralIndices()
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2, 3, 4}, indices)
}

func TestSpectralBandCountsMustAgree(t *testing.T) {
	md := parseFixture(t, l2aName, "<channels>4</channels>", "<channels>5</channels>")

	_, err := md.NumSpectralBands()
	assert.ErrorIs(t, err, ErrBandCountMismatch)
	_, err = md.SpectralIndices()
	assert.ErrorIs(t, err, ErrBandCountMismatch)
	_, err = md.CentralWavelength(0)
	assert.ErrorIs(t, err, ErrBandCountMismatch)

	md = parseFixture(t, l2aName, "<vnir>\n        <channels>2</channels>", "<vnir>\n        <channels>3</channels>")
	_, err = md.NumSpectralBands()
	assert.ErrorIs(t, err, ErrBandCountMismatch)
}

func TestL2ABackgroundOverride(t *testing.T) {
	md := parseFixture(t, l2aName)
	bg, err := md.BackgroundValue()
	require.NoError(t, err)
	assert.Equal(t, float64(L2ABackgroundValue), bg)
}

func TestL1CRadiance(t *testing.T) {
	md := parseFixture(t, l2aName, "<level>L2A</level>", "<level>L1C</level>")
	require.IsType(t, &L1CMetadata{}, md)

	desc, err := md.SpectralDescription(2)
	require.NoError(t, err)
	assert.Equal(t, "Sensor radiance @904.78", desc)
	assert.Equal(t, "W/m^2/sr/nm", md.SpectralUnit())
	assert.Equal(t, product.TypeUint16, md.SpectralDataType())

	bg, err := md.BackgroundValue()
	require.NoError(t, err)
	assert.Equal(t, 0.0, bg)
}

func TestL1B(t *testing.T) {
	md := parseFixture(t, l1bName)
	l1b, ok := md.(*L1BMetadata)
	require.True(t, ok)

	size, err := md.SceneSize()
	require.NoError(t, err)
	assert.Equal(t, Size{Width: 1000, Height: 1024}, size)

	n, err := md.NumSpectralBands()
	require.NoError(t, err)
	assert.Equal(t, 5, n)

	nv, err := md.VNIRBandCount()
	require.NoError(t, err)
	assert.Equal(t, 2, nv)

	ns, err := md.SWIRBandCount()
	require.NoError(t, err)
	assert.Equal(t, 3, ns)

	corners, err := l1b.CornerCoordinates()
	require.NoError(t, err)
	assert.Equal(t, [4]float64{47.974854, 47.917313, 47.703251, 47.646027}, corners.Latitudes)
	assert.Equal(t, [4]float64{11.089172, 11.489935, 10.991294, 11.389551}, corners.Longitudes)
	assert.Equal(t, NominalPixelSize, l1b.PixelSize())

	wl, err := md.CentralWavelength(4)
	require.NoError(t, err)
	assert.Equal(t, 2448.46, wl)

	name, ok := md.FileName(KeySpectralImageSWIR)
	require.True(t, ok)
	assert.Equal(t, l1bName+"-SPECTRAL_IMAGE_SWIR.TIF", name)

	_, ok = md.FileName(KeySpectralImage)
	assert.False(t, ok)
}

func TestFileNameMap(t *testing.T) {
	md := parseFixture(t, l2aName)
	files := md.FileNames()

	assert.Equal(t, l2aName+"-METADATA.XML", files[KeyMetadata])
	assert.Equal(t, l2aName+"-SPECTRAL_IMAGE.TIF", files[KeySpectralImage])
	assert.Equal(t, l2aName+"-QL_QUALITY_CLOUD.TIF", files[KeyQualityCloud])
	assert.Equal(t, l2aName+"-QL_QUALITY_CLOUDSHADOW.TIF", files[KeyQualityCloudShadow])
	assert.Equal(t, l2aName+"-QL_PIXELMASK.TIF", files[KeyPixelMask])
	assert.Len(t, files, len(FileKeys(LevelL2A)))

	delete(files, KeyMetadata)
	_, ok := md.FileName(KeyMetadata)
	assert.True(t, ok, "FileNames must return a copy")
}

func TestMissingAndMalformedFields(t *testing.T) {
	md := parseFixture(t, l2aName, "<center>63.038384</center>", "")
	_, err := md.SunElevation()
	require.ErrorIs(t, err, ErrFieldMissing)
	var missing *FieldMissingError
	require.ErrorAs(t, err, &missing)
	assert.Equal(t, "/level_X/specific/sunElevationAngle/center", missing.Path)

	md = parseFixture(t, l2aName, "<widthOfOrthoScene>1000</widthOfOrthoScene>", "<widthOfOrthoScene>wide</widthOfOrthoScene>")
	_, err = md.SceneSize()
	require.ErrorIs(t, err, ErrFieldMalformed)
	var malformed *FieldMalformedError
	require.ErrorAs(t, err, &malformed)
	assert.Equal(t, "wide", malformed.Raw)

	md = parseFixture(t, l2aName, "<upper_left>62.843017</upper_left>\n      <upper_right>63.025996</upper_right>", "")
	_, err = md.SunElevation()
	assert.ErrorIs(t, err, ErrFieldMissing)

	md = parseFixture(t, l2aName, "<name>"+l2aName, "<name>ENMAP01")
	_, err = md.ProductName()
	assert.ErrorIs(t, err, ErrFieldMalformed)
}

func TestParseErrors(t *testing.T) {
	doc := readFixture(t, l2aName)

	_, err := Parse([]byte(strings.Replace(doc, "<level>L2A</level>", "<level>L3X</level>", 1)))
	assert.ErrorIs(t, err, ErrUnknownProcessingLevel)

	_, err = Parse([]byte(strings.Replace(doc, "<level>L2A</level>", "", 1)))
	assert.ErrorIs(t, err, ErrFieldMissing)

	_, err = Parse([]byte("<level_X><base>"))
	assert.Error(t, err)
}

func TestParseTime(t *testing.T) {
	got, err := ParseTime("2017-06-26T10:20:20.999936Z")
	require.NoError(t, err)
	assert.Equal(t, 20, got.Second())
	assert.Equal(t, 999_000_000, got.Nanosecond())

	got, err = ParseTime("2017-06-26T12:20:25.545157+02:00")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2017, 6, 26, 10, 20, 25, 545_000_000, time.UTC), got)

	got, err = ParseTime("2017-06-26T12:20:25.000001+02")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2017, 6, 26, 10, 20, 25, 0, time.UTC), got)

	_, err = ParseTime("2017-06-26 10:20:20")
	assert.Error(t, err)
}

func TestMetadataRoot(t *testing.T) {
	md := parseFixture(t, l2aName)
	root := md.MetadataRoot()
	require.NotNil(t, root)
	assert.Equal(t, "level_X", root.Name)

	base := root.Element("base")
	require.NotNil(t, base)
	level := base.Element("level")
	require.NotNil(t, level)
	value, ok := level.Attribute("value")
	require.True(t, ok)
	assert.Equal(t, "L2A", value)

	band := root.Element("specific").Element("bandCharacterisation").Element("bandID")
	require.NotNil(t, band)
	number, ok := band.Attribute("number")
	require.True(t, ok)
	assert.Equal(t, "1", number)
}
