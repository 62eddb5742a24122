// Package meta parses EnMAP product metadata documents into a typed,
// processing-level specific view.
package meta

import (
	"bytes"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/antchfx/xmlquery"
	"github.com/paulmach/orb"

	"github.com/example/go-enmap/enmap/product"
)

const (
	// ProductNameLength is the fixed length of an EnMAP product identifier.
	ProductNameLength = 73
	// NominalPixelSize is the ground sampling distance of the L1B swath in meters.
	NominalPixelSize = 30.0
	// L2ABackgroundValue replaces the declared L2A background value, which is
	// not reliable in the delivered documents.
	L2ABackgroundValue = -32768

	notAvailable = "NA"
)

const (
	xpLevel                = "/level_X/base/level"
	xpName                 = "/level_X/metadata/name"
	xpFormat               = "/level_X/base/format"
	xpSchemaVersion        = "/level_X/metadata/schema/versionSchema"
	xpRevision             = "/level_X/base/revision"
	xpArchivedVersion      = "/level_X/base/archivedVersion"
	xpProductFormat        = "/level_X/processing/productFormat"
	xpStartTime            = "/level_X/base/temporalCoverage/startTime"
	xpStopTime             = "/level_X/base/temporalCoverage/stopTime"
	xpWidth                = "/level_X/specific/widthOfScene"
	xpHeight               = "/level_X/specific/heightOfScene"
	xpOrthoWidth           = "/level_X/specific/widthOfOrthoScene"
	xpOrthoHeight          = "/level_X/specific/heightOfOrthoScene"
	xpCoverage             = "/level_X/base/spatialCoverage/boundingPolygon"
	xpOrthoCoverage        = "/level_X/specific/spatialCoverageOfOrthoScene/boundingPolygon"
	xpProjection           = "/level_X/product/ortho/projection"
	xpResolution           = "/level_X/product/ortho/resolution"
	xpMergedChannels       = "/level_X/product/image/merge/channels"
	xpVNIRChannels         = "/level_X/product/image/vnir/channels"
	xpSWIRChannels         = "/level_X/product/image/swir/channels"
	xpBand                 = "/level_X/specific/bandCharacterisation/bandID[@number='%d']/%s"
	xpBackground           = "/level_X/specific/backgroundValue"
	xpAngles               = "/level_X/specific/%s/*"
	xpAngleCenter          = "/level_X/specific/%s/center"
	xpCornerCoordinate     = xpCoverage + "/point[frame='%s']/%s"
	sunElevationAngle      = "sunElevationAngle"
	sunAzimuthAngle        = "sunAzimuthAngle"
	acrossOffNadirAngle    = "acrossOffNadirAngle"
	alongOffNadirAngle     = "alongOffNadirAngle"
	sceneAzimuthAngle      = "sceneAzimuthAngle"
	radianceUnit           = "W/m^2/sr/nm"
	radianceDescription    = "Sensor radiance @%s"
	reflectanceDescription = "Surface reflectance @%s"
)

// cornerFrames lists the swath corners in tie-point grid order.
var cornerFrames = [4]string{"upper_left", "upper_right", "lower_left", "lower_right"}

// Size is a scene dimension in pixels.
type Size struct {
	Width  int
	Height int
}

// Angles holds one viewing or illumination angle at the four scene corners
// (upper left, upper right, lower left, lower right) and the scene center.
type Angles struct {
	Corners [4]float64
	Center  float64
}

// GeoReferencing describes the map grid of an orthorectified product.
// Resolution is NaN when the document declares it as not available.
type GeoReferencing struct {
	Projection string
	Resolution float64
	RefX       float64
	RefY       float64
}

// Corners holds the swath corner coordinates in tie-point grid order.
type Corners struct {
	Latitudes  [4]float64
	Longitudes [4]float64
}

// Metadata is the level independent view of a product metadata document.
// The concrete value is one of *L1BMetadata, *L1CMetadata or *L2AMetadata.
type Metadata interface {
	Level() Level
	ProductName() (string, error)
	ProductType() (string, error)
	SchemaVersion() (string, error)
	ProcessingVersion() (string, error)
	L0ProcessingVersion() (string, error)
	ProductFormat() (Format, error)
	StartTime() (time.Time, error)
	StopTime() (time.Time, error)
	SceneSize() (Size, error)
	SunElevation() (Angles, error)
	SunAzimuth() (Angles, error)
	AcrossOffNadir() (Angles, error)
	AlongOffNadir() (Angles, error)
	SceneAzimuth() (Angles, error)
	SpatialCoverage() (orb.Ring, error)
	NumSpectralBands() (int, error)
	VNIRBandCount() (int, error)
	SWIRBandCount() (int, error)
	SpectralIndices() ([]int, error)
	CentralWavelength(index int) (float64, error)
	Bandwidth(index int) (float64, error)
	BandScaling(index int) (float64, error)
	BandOffset(index int) (float64, error)
	SpectralDescription(index int) (string, error)
	SpectralUnit() string
	SpectralDataType() product.DataType
	BackgroundValue() (float64, error)
	FileName(key string) (string, bool)
	FileNames() map[string]string
	MetadataRoot() *product.MetadataElement
}

// Ortho is implemented by the orthorectified levels L1C and L2A.
type Ortho interface {
	Metadata
	GeoReferencing() (GeoReferencing, error)
	OrthoSpatialCoverage() (orb.Ring, error)
}

// Read parses a metadata document from r.
func Read(r io.Reader) (Metadata, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("meta: read document: %w", err)
	}
	return Parse(data)
}

// Parse determines the processing level and returns the matching metadata type.
func Parse(data []byte) (Metadata, error) {
	root, err := xmlquery.Parse(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("meta: parse document: %w", err)
	}
	doc := &document{root: root}
	raw, err := doc.text(xpLevel)
	if err != nil {
		return nil, err
	}
	level, err := ParseLevel(raw)
	if err != nil {
		return nil, err
	}
	names, err := doc.texts(productFileInformationXPath)
	if err != nil {
		return nil, err
	}
	c := &common{
		doc:   doc,
		level: level,
		files: MatchFileNames(names, FileKeys(level)),
	}
	switch level {
	case LevelL1B:
		return &L1BMetadata{common: c}, nil
	case LevelL1C:
		return &L1CMetadata{ortho: ortho{common: c}}, nil
	case LevelL2A:
		return &L2AMetadata{ortho: ortho{common: c}}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownProcessingLevel, raw)
	}
}

const productFileInformationXPath = "/level_X/product/productFileInformation/*/name"

// common implements the accessors shared by every level.
type common struct {
	doc   *document
	level Level
	files map[string]string
}

func (c *common) Level() Level {
	return c.level
}

// ProductName returns the product identifier, the first 73 characters of
// the declared metadata file name.
func (c *common) ProductName() (string, error) {
	name, err := c.doc.text(xpName)
	if err != nil {
		return "", err
	}
	if len(name) < ProductNameLength {
		return "", &FieldMalformedError{Path: xpName, Raw: name}
	}
	return name[:ProductNameLength], nil
}

func (c *common) ProductType() (string, error) {
	return c.doc.text(xpFormat)
}

func (c *common) SchemaVersion() (string, error) {
	return c.doc.text(xpSchemaVersion)
}

func (c *common) ProcessingVersion() (string, error) {
	return c.doc.text(xpRevision)
}

func (c *common) L0ProcessingVersion() (string, error) {
	return c.doc.text(xpArchivedVersion)
}

func (c *common) ProductFormat() (Format, error) {
	raw, err := c.doc.text(xpProductFormat)
	if err != nil {
		return "", err
	}
	f, err := ParseFormat(raw)
	if err != nil {
		return "", &FieldMalformedError{Path: xpProductFormat, Raw: raw, Err: err}
	}
	return f, nil
}

func (c *common) StartTime() (time.Time, error) {
	return c.doc.time(xpStartTime)
}

func (c *common) StopTime() (time.Time, error) {
	return c.doc.time(xpStopTime)
}

func (c *common) SceneSize() (Size, error) {
	wp, hp := xpOrthoWidth, xpOrthoHeight
	switch c.level {
	case LevelL1B:
		wp, hp = xpWidth, xpHeight
	case LevelL1C, LevelL2A:
	default:
		return Size{}, fmt.Errorf("%w: %q", ErrUnknownProcessingLevel, c.level)
	}
	w, err := c.doc.int(wp)
	if err != nil {
		return Size{}, err
	}
	h, err := c.doc.int(hp)
	if err != nil {
		return Size{}, err
	}
	return Size{Width: w, Height: h}, nil
}

func (c *common) SunElevation() (Angles, error) {
	return c.angles(sunElevationAngle)
}

func (c *common) SunAzimuth() (Angles, error) {
	return c.angles(sunAzimuthAngle)
}

func (c *common) AcrossOffNadir() (Angles, error) {
	return c.angles(acrossOffNadirAngle)
}

func (c *common) AlongOffNadir() (Angles, error) {
	return c.angles(alongOffNadirAngle)
}

func (c *common) SceneAzimuth() (Angles, error) {
	return c.angles(sceneAzimuthAngle)
}

func (c *common) angles(element string) (Angles, error) {
	corners, err := c.doc.floats(fmt.Sprintf(xpAngles, element), 4)
	if err != nil {
		return Angles{}, err
	}
	center, err := c.doc.float(fmt.Sprintf(xpAngleCenter, element))
	if err != nil {
		return Angles{}, err
	}
	var a Angles
	copy(a.Corners[:], corners)
	a.Center = center
	return a, nil
}

// SpatialCoverage returns the closed 5-point scene footprint.
func (c *common) SpatialCoverage() (orb.Ring, error) {
	return c.polygon(xpCoverage)
}

// polygon reads five lat/lon points and forces the closing point onto the
// first one; the delivered values differ in the last digits.
func (c *common) polygon(base string) (orb.Ring, error) {
	lats, err := c.doc.floats(base+"/*/latitude", 5)
	if err != nil {
		return nil, err
	}
	lons, err := c.doc.floats(base+"/*/longitude", 5)
	if err != nil {
		return nil, err
	}
	lats[4] = lats[0]
	lons[4] = lons[0]
	ring := make(orb.Ring, 5)
	for i := range ring {
		ring[i] = orb.Point{lons[i], lats[i]}
	}
	return ring, nil
}

// NumSpectralBands returns the number of spectral bands. L1C and L2A
// documents carry a merged channel count, which must equal the sum of the
// VNIR and SWIR counts.
func (c *common) NumSpectralBands() (int, error) {
	switch c.level {
	case LevelL1B:
		return c.detectorBandCount()
	case LevelL1C, LevelL2A:
		merged, err := c.doc.int(xpMergedChannels)
		if err != nil {
			return 0, err
		}
		n, err := c.detectorBandCount()
		if err != nil {
			return 0, err
		}
		if merged != n {
			return 0, fmt.Errorf("%w: %d merged channels, %d VNIR and SWIR channels", ErrBandCountMismatch, merged, n)
		}
		return merged, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnknownProcessingLevel, c.level)
	}
}

func (c *common) detectorBandCount() (int, error) {
	nv, err := c.VNIRBandCount()
	if err != nil {
		return 0, err
	}
	ns, err := c.SWIRBandCount()
	if err != nil {
		return 0, err
	}
	return nv + ns, nil
}

func (c *common) VNIRBandCount() (int, error) {
	return c.doc.int(xpVNIRChannels)
}

func (c *common) SWIRBandCount() (int, error) {
	return c.doc.int(xpSWIRChannels)
}

// SpectralIndices returns the 1-based spectral indices of the VNIR bands
// followed by those of the SWIR bands.
func (c *common) SpectralIndices() ([]int, error) {
	n, err := c.NumSpectralBands()
	if err != nil {
		return nil, err
	}
	indices := make([]int, 0, n)
	for i := 1; i <= n; i++ {
		indices = append(indices, i)
	}
	return indices, nil
}

func (c *common) CentralWavelength(index int) (float64, error) {
	return c.bandValue(index, "wavelengthCenterOfBand")
}

func (c *common) Bandwidth(index int) (float64, error) {
	return c.bandValue(index, "FWHMOfBand")
}

func (c *common) BandScaling(index int) (float64, error) {
	return c.bandValue(index, "GainOfBand")
}

func (c *common) BandOffset(index int) (float64, error) {
	return c.bandValue(index, "OffsetOfBand")
}

// bandValue resolves a zero-based band index against the one-based
// bandID numbering of the document.
func (c *common) bandValue(index int, field string) (float64, error) {
	n, err := c.NumSpectralBands()
	if err != nil {
		return 0, err
	}
	if index < 0 || index >= n {
		return 0, fmt.Errorf("%w: %d not in [0, %d)", ErrIndexOutOfRange, index, n)
	}
	return c.doc.float(fmt.Sprintf(xpBand, index+1, field))
}

func (c *common) BackgroundValue() (float64, error) {
	return c.doc.float(xpBackground)
}

func (c *common) SpectralDescription(index int) (string, error) {
	wl, err := c.CentralWavelength(index)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf(radianceDescription, formatWavelength(wl)), nil
}

func (c *common) SpectralUnit() string {
	return radianceUnit
}

func (c *common) SpectralDataType() product.DataType {
	return product.TypeUint16
}

func (c *common) FileName(key string) (string, bool) {
	name, ok := c.files[key]
	return name, ok
}

// FileNames returns a copy of the logical key to file name map.
func (c *common) FileNames() map[string]string {
	out := make(map[string]string, len(c.files))
	for k, v := range c.files {
		out[k] = v
	}
	return out
}

// MetadataRoot converts the document into a product metadata tree.
func (c *common) MetadataRoot() *product.MetadataElement {
	for n := c.doc.root.FirstChild; n != nil; n = n.NextSibling {
		if n.Type == xmlquery.ElementNode {
			return convertNode(n)
		}
	}
	return product.NewElement("level_X")
}

func convertNode(n *xmlquery.Node) *product.MetadataElement {
	el := product.NewElement(n.Data)
	for _, attr := range n.Attr {
		el.AddAttribute(attr.Name.Local, attr.Value)
	}
	hasChildElements := false
	for child := n.FirstChild; child != nil; child = child.NextSibling {
		if child.Type == xmlquery.ElementNode {
			hasChildElements = true
			el.AddElement(convertNode(child))
		}
	}
	if !hasChildElements {
		if text := strings.TrimSpace(n.InnerText()); text != "" {
			el.AddAttribute("value", text)
		}
	}
	return el
}

// formatWavelength prints a wavelength with the shortest single precision
// representation, e.g. 418.24.
func formatWavelength(v float64) string {
	return strconv.FormatFloat(float64(float32(v)), 'f', -1, 32)
}

// L1BMetadata is the metadata of a raw swath product.
type L1BMetadata struct {
	*common
}

// CornerCoordinates returns the swath corners used for tie-point geocoding.
func (m *L1BMetadata) CornerCoordinates() (Corners, error) {
	var out Corners
	for i, frame := range cornerFrames {
		lat, err := m.doc.float(fmt.Sprintf(xpCornerCoordinate, frame, "latitude"))
		if err != nil {
			return Corners{}, err
		}
		lon, err := m.doc.float(fmt.Sprintf(xpCornerCoordinate, frame, "longitude"))
		if err != nil {
			return Corners{}, err
		}
		out.Latitudes[i] = lat
		out.Longitudes[i] = lon
	}
	return out, nil
}

// PixelSize returns the nominal ground sampling distance in meters.
func (m *L1BMetadata) PixelSize() float64 {
	return NominalPixelSize
}

type ortho struct {
	*common
}

// GeoReferencing returns the map projection and resolution.
func (o ortho) GeoReferencing() (GeoReferencing, error) {
	projection, err := o.doc.text(xpProjection)
	if err != nil {
		return GeoReferencing{}, err
	}
	raw, err := o.doc.text(xpResolution)
	if err != nil {
		return GeoReferencing{}, err
	}
	resolution := math.NaN()
	if !strings.EqualFold(raw, notAvailable) {
		resolution, err = parseFloat(xpResolution, raw)
		if err != nil {
			return GeoReferencing{}, err
		}
	}
	return GeoReferencing{Projection: projection, Resolution: resolution}, nil
}

// OrthoSpatialCoverage returns the closed footprint of the ortho scene.
func (o ortho) OrthoSpatialCoverage() (orb.Ring, error) {
	return o.polygon(xpOrthoCoverage)
}

// L1CMetadata is the metadata of an orthorectified radiance product.
type L1CMetadata struct {
	ortho
}

// L2AMetadata is the metadata of an orthorectified surface reflectance product.
type L2AMetadata struct {
	ortho
}

func (m *L2AMetadata) SpectralDescription(index int) (string, error) {
	wl, err := m.CentralWavelength(index)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf(reflectanceDescription, formatWavelength(wl)), nil
}

func (m *L2AMetadata) SpectralUnit() string {
	return ""
}

func (m *L2AMetadata) SpectralDataType() product.DataType {
	return product.TypeInt16
}

// BackgroundValue always returns -32768 for L2A products.
func (m *L2AMetadata) BackgroundValue() (float64, error) {
	return L2ABackgroundValue, nil
}
