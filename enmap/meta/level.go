package meta

import (
	"fmt"
	"strings"
)

// Level identifies an EnMAP processing level.
type Level string

const (
	LevelL1B Level = "L1B"
	LevelL1C Level = "L1C"
	LevelL2A Level = "L2A"
)

// Levels lists the supported processing levels in pipeline order.
var Levels = []Level{LevelL1B, LevelL1C, LevelL2A}

// String returns the underlying string value.
func (l Level) String() string {
	return string(l)
}

// Split reports whether the level delivers the VNIR and SWIR detector
// arrays as two separate raster files.
func (l Level) Split() bool {
	return l == LevelL1B
}

// ParseLevel maps the metadata level field onto a Level.
func ParseLevel(raw string) (Level, error) {
	switch lvl := Level(strings.ToUpper(strings.TrimSpace(raw))); lvl {
	case LevelL1B, LevelL1C, LevelL2A:
		return lvl, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownProcessingLevel, raw)
	}
}

// Format is the EnMAP product delivery format.
type Format string

const (
	FormatBSQ      Format = "BSQ+Metadata"
	FormatBIL      Format = "BIL+Metadata"
	FormatBIP      Format = "BIP+Metadata"
	FormatJPEG2000 Format = "JPEG2000+Metadata"
	FormatGeoTIFF  Format = "GeoTIFF+Metadata"
)

// String returns the underlying string value.
func (f Format) String() string {
	return string(f)
}

// ParseFormat accepts both the delivery name ("GeoTIFF+Metadata") and its
// identifier form ("GeoTIFF_Metadata").
func ParseFormat(raw string) (Format, error) {
	name := strings.ReplaceAll(strings.TrimSpace(raw), "_", "+")
	for _, f := range []Format{FormatBSQ, FormatBIL, FormatBIP, FormatJPEG2000, FormatGeoTIFF} {
		if strings.EqualFold(name, string(f)) {
			return f, nil
		}
	}
	return "", fmt.Errorf("meta: unknown product format %q", raw)
}
