// Package geocoding selects the scene geocoding of a product: corner tie
// points for the L1B swath, a map projection for the orthorectified levels.
package geocoding

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/paulmach/orb"

	"github.com/example/go-enmap/enmap/container"
	"github.com/example/go-enmap/enmap/meta"
	"github.com/example/go-enmap/enmap/raster"
)

// ErrUnknownProjection is returned for projection strings outside the
// supported grammar.
var ErrUnknownProjection = errors.New("geocoding: unknown projection")

// Descriptor is either a TiePoint or a MapProjected value.
type Descriptor interface {
	// CRS returns the coordinate reference system as "EPSG:<code>".
	CRS() string
	descriptor()
}

// TiePoint geocodes a swath by its four corner coordinates in the order
// upper left, upper right, lower left, lower right.
type TiePoint struct {
	Latitudes       [4]float64
	Longitudes      [4]float64
	PixelSizeMeters float64
}

func (TiePoint) descriptor() {}

// CRS implements Descriptor. Corner coordinates are WGS84.
func (TiePoint) CRS() string {
	return "EPSG:4326"
}

// Footprint returns the corner ring, closed, in UL, UR, LR, LL order.
func (t TiePoint) Footprint() orb.Ring {
	return orb.Ring{
		{t.Longitudes[0], t.Latitudes[0]},
		{t.Longitudes[1], t.Latitudes[1]},
		{t.Longitudes[3], t.Latitudes[3]},
		{t.Longitudes[2], t.Latitudes[2]},
		{t.Longitudes[0], t.Latitudes[0]},
	}
}

// MapProjected geocodes an orthorectified scene on a regular map grid.
type MapProjected struct {
	EPSG           int
	Resolution     float64
	OriginEasting  float64
	OriginNorthing float64
	RefX           float64
	RefY           float64
	Width          int
	Height         int
}

func (MapProjected) descriptor() {}

// CRS implements Descriptor.
func (m MapProjected) CRS() string {
	return fmt.Sprintf("EPSG:%d", m.EPSG)
}

// Transform returns the pixel to map transform, north up.
func (m MapProjected) Transform() raster.Affine {
	return raster.Affine{
		m.OriginEasting - m.RefX*m.Resolution, m.Resolution, 0,
		m.OriginNorthing + m.RefY*m.Resolution, 0, -m.Resolution,
	}
}

// Bounds returns the map extent of the scene.
func (m MapProjected) Bounds() orb.Bound {
	t := m.Transform()
	minX, maxY := t.Apply(0, 0)
	maxX, minY := t.Apply(float64(m.Width), float64(m.Height))
	return orb.Bound{Min: orb.Point{minX, minY}, Max: orb.Point{maxX, maxY}}
}

var utmPattern = regexp.MustCompile(`^UTM[ _]?[Zz]one[ _]?(\d{1,2})(\D.*)?$`)

// EPSG decodes a projection string: "UTM zone NN North" is 326NN, any
// other UTM hemisphere 327NN, "LAEA-ETRS89" 3035 and "Geographic" 4326.
// The zone may be written with one or two digits; UTM_Zone5_North and
// UTM_Zone05_North both give 32605.
func EPSG(projection string) (int, error) {
	p := strings.TrimSpace(projection)
	switch p {
	case "LAEA-ETRS89":
		return 3035, nil
	case "Geographic":
		return 4326, nil
	}
	m := utmPattern.FindStringSubmatch(p)
	if m == nil {
		return 0, fmt.Errorf("%w: %q", ErrUnknownProjection, projection)
	}
	zone, err := strconv.Atoi(m[1])
	if err != nil || zone < 1 || zone > 60 {
		return 0, fmt.Errorf("%w: %q", ErrUnknownProjection, projection)
	}
	if strings.HasSuffix(m[2], "North") {
		return 32600 + zone, nil
	}
	return 32700 + zone, nil
}

// Selector builds the descriptor for a product. The map origin of the
// orthorectified levels is read from the QUALITY_CLASSES raster.
type Selector struct {
	Container container.Container
	Opener    raster.Opener
	Logger    *slog.Logger
}

func (s Selector) logger() *slog.Logger {
	if s.Logger != nil {
		return s.Logger
	}
	return slog.Default()
}

// Select returns the descriptor for md. A nil descriptor with a nil error
// means the map origin could not be resolved and the product carries no
// geocoding.
func (s Selector) Select(ctx context.Context, md meta.Metadata) (Descriptor, error) {
	switch md.Level() {
	case meta.LevelL1B:
		l1b, ok := md.(*meta.L1BMetadata)
		if !ok {
			return nil, fmt.Errorf("geocoding: L1B level on %T", md)
		}
		return tiePoint(l1b)
	case meta.LevelL1C, meta.LevelL2A:
		ortho, ok := md.(meta.Ortho)
		if !ok {
			return nil, fmt.Errorf("geocoding: %s level on %T", md.Level(), md)
		}
		return s.mapProjected(ctx, ortho)
	default:
		return nil, fmt.Errorf("geocoding: %w: %s", meta.ErrUnknownProcessingLevel, md.Level())
	}
}

func tiePoint(md *meta.L1BMetadata) (Descriptor, error) {
	corners, err := md.CornerCoordinates()
	if err != nil {
		return nil, err
	}
	return TiePoint{
		Latitudes:       corners.Latitudes,
		Longitudes:      corners.Longitudes,
		PixelSizeMeters: md.PixelSize(),
	}, nil
}

func (s Selector) mapProjected(ctx context.Context, md meta.Ortho) (Descriptor, error) {
	ref, err := md.GeoReferencing()
	if err != nil {
		return nil, err
	}
	code, err := EPSG(ref.Projection)
	if err != nil {
		return nil, err
	}
	size, err := md.SceneSize()
	if err != nil {
		return nil, err
	}
	easting, northing, ok := s.origin(ctx, md)
	if !ok {
		return nil, nil
	}
	return MapProjected{
		EPSG:           code,
		Resolution:     ref.Resolution,
		OriginEasting:  easting,
		OriginNorthing: northing,
		RefX:           ref.RefX,
		RefY:           ref.RefY,
		Width:          size.Width,
		Height:         size.Height,
	}, nil
}

// origin reads the translation of the classes raster transform. Every
// failure is logged and reported as ok == false.
func (s Selector) origin(ctx context.Context, md meta.Metadata) (easting, northing float64, ok bool) {
	log := s.logger().With("key", meta.KeyQualityClasses)
	if s.Container == nil || s.Opener == nil {
		log.Warn("no raster access for map origin, geocoding not set")
		return 0, 0, false
	}
	name, err := meta.RequireFile(md, meta.KeyQualityClasses)
	if err != nil {
		log.Warn("classes raster not declared, geocoding not set", "error", err)
		return 0, 0, false
	}
	p, err := s.Container.Locate(name)
	if err != nil {
		log.Warn("classes raster missing, geocoding not set", "file", name, "error", err)
		return 0, 0, false
	}
	ds, err := s.Opener.Open(ctx, p)
	if err != nil {
		log.Warn("classes raster unreadable, geocoding not set", "file", name, "error", err)
		return 0, 0, false
	}
	defer ds.Close()
	t, ok := ds.Transform()
	if !ok {
		log.Warn("classes raster has no affine transform, geocoding not set", "file", name)
		return 0, 0, false
	}
	x, y := t.Origin()
	if math.IsNaN(x) || math.IsNaN(y) {
		log.Warn("classes raster origin undefined, geocoding not set", "file", name)
		return 0, 0, false
	}
	return x, y, true
}
