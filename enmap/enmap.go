// Package enmap opens EnMAP L1B, L1C and L2A hyperspectral products into a
// normalized product with spectral bands, quality flag bands, viewing
// geometry tie-point grids, a geocoding and the metadata tree.
//
// A product is read from a directory, a zip archive, any file inside the
// product folder, or an s3:// or gs:// prefix:
//
//	s, err := enmap.Open(ctx, "/data/ENMAP01-____L2A-DT0000001280_20220609T081227Z_013_V010111_20221108T091508Z")
//	if err != nil {
//		return err
//	}
//	defer s.Close()
//	refl, err := s.ReadGeophysical(ctx, "band_047", image.Rect(0, 0, 256, 256))
package enmap

// Tie-point grid names.
const (
	SceneAzimuthGrid   = "scene_azimuth"
	SunAzimuthGrid     = "sun_azimuth"
	SunElevationGrid   = "sun_elevation"
	AcrossOffNadirGrid = "across_off_nadir"
	AlongOffNadirGrid  = "along_off_nadir"
	LatitudeGrid       = "latitude"
	LongitudeGrid      = "longitude"
)

// AutoGrouping groups the spectral, pixel mask and quality bands.
const AutoGrouping = "band:PIXELMASK:QUALITY"

// ReaderDescriptor describes the reader to format registries.
type ReaderDescriptor struct {
	FormatName  string
	Extensions  []string
	Description string
}

// Descriptor is the registry entry of this reader.
var Descriptor = ReaderDescriptor{
	FormatName:  "EnMAP L1B/L1C/L2A",
	Extensions:  []string{".zip", ".xml"},
	Description: "EnMAP L1B/L1C/L2A Product Reader",
}

// RGBProfile names three bands forming a true or false colour composite.
type RGBProfile struct {
	Name  string
	Red   string
	Green string
	Blue  string
}

// RGBProfiles lists the default composites.
var RGBProfiles = []RGBProfile{
	{Name: "EnMAP VNIR", Red: "band_071", Green: "band_047", Blue: "band_026"},
	{Name: "EnMAP SWIR", Red: "band_188", Green: "band_146", Blue: "band_103"},
}

// Qualification tells whether a location holds a product this package reads.
type Qualification int

const (
	Unable Qualification = iota
	Intended
)

func (q Qualification) String() string {
	if q == Intended {
		return "intended"
	}
	return "unable"
}
