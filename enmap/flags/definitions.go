package flags

import (
	"fmt"
	"image/color"

	"github.com/example/go-enmap/enmap/meta"
	"github.com/example/go-enmap/enmap/product"
)

// Definition is one named bit pattern of a quality layer. A series
// definition is replicated once per spectral band.
type Definition struct {
	Name         string
	Mask         uint32
	Value        uint32
	Description  string
	Color        color.RGBA
	Transparency float64
	Series       bool
}

// Layer describes a quality layer: its flag table and sample type.
type Layer struct {
	Key         string
	DataType    product.DataType
	Definitions []Definition
}

func rgb(r, g, b uint8) color.RGBA {
	return color.RGBA{R: r, G: g, B: b, A: 0xff}
}

var (
	classesLayer = Layer{
		Key:      meta.KeyQualityClasses,
		DataType: product.TypeUint8,
		Definitions: []Definition{
			{Name: "LAND", Mask: 0x03, Value: 1, Description: "Land pixel", Color: rgb(0x8b, 0x5a, 0x2b), Transparency: 0.5},
			{Name: "WATER", Mask: 0x03, Value: 2, Description: "Water pixel", Color: rgb(0x00, 0x00, 0xff), Transparency: 0.5},
			{Name: "BACKGROUND", Mask: 0x03, Value: 0, Description: "Background pixel", Color: rgb(0x80, 0x80, 0x80), Transparency: 0.5},
		},
	}
	cloudLayer = Layer{
		Key:      meta.KeyQualityCloud,
		DataType: product.TypeUint8,
		Definitions: []Definition{
			{Name: "CLOUD", Mask: 0x01, Value: 1, Description: "Cloud pixel", Color: rgb(0xff, 0xff, 0xff), Transparency: 0.5},
		},
	}
	cloudShadowLayer = Layer{
		Key:      meta.KeyQualityCloudShadow,
		DataType: product.TypeUint8,
		Definitions: []Definition{
			{Name: "CLOUD_SHADOW", Mask: 0x01, Value: 1, Description: "Cloud shadow pixel", Color: rgb(0x40, 0x40, 0x40), Transparency: 0.5},
		},
	}
	hazeLayer = Layer{
		Key:      meta.KeyQualityHaze,
		DataType: product.TypeUint8,
		Definitions: []Definition{
			{Name: "HAZE", Mask: 0x01, Value: 1, Description: "Haze pixel", Color: rgb(0xc8, 0xc8, 0xc8), Transparency: 0.5},
		},
	}
	cirrusLayer = Layer{
		Key:      meta.KeyQualityCirrus,
		DataType: product.TypeUint8,
		Definitions: []Definition{
			{Name: "THIN", Mask: 0x03, Value: 1, Description: "Thin cirrus pixel", Color: rgb(0xe0, 0xff, 0xff), Transparency: 0.5},
			{Name: "MEDIUM", Mask: 0x03, Value: 2, Description: "Medium cirrus pixel", Color: rgb(0xaf, 0xee, 0xee), Transparency: 0.5},
			{Name: "THICK", Mask: 0x03, Value: 3, Description: "Thick cirrus pixel", Color: rgb(0x5f, 0x9e, 0xa0), Transparency: 0.5},
		},
	}
	snowLayer = Layer{
		Key:      meta.KeyQualitySnow,
		DataType: product.TypeUint8,
		Definitions: []Definition{
			{Name: "SNOW", Mask: 0x01, Value: 1, Description: "Snow pixel", Color: rgb(0xff, 0xfa, 0xfa), Transparency: 0.5},
		},
	}
	pixelMaskLayer = Layer{
		Key:      meta.KeyPixelMask,
		DataType: product.TypeUint8,
		Definitions: []Definition{
			{Name: "DEFECTIVE", Mask: 0x01, Value: 1, Description: "Defective detector pixel", Color: rgb(0xff, 0x00, 0x00), Transparency: 0.5, Series: true},
		},
	}
)

// testFlagDefinitions is shared by the merged test flags layer and the
// L1B VNIR and SWIR layers.
var testFlagDefinitions = []Definition{
	{Name: "NOMINAL", Mask: 0x001, Value: 0x001, Description: "Nominal quality", Color: rgb(0x00, 0xc8, 0x00), Transparency: 0.5},
	{Name: "REDUCED", Mask: 0x002, Value: 0x002, Description: "Reduced quality", Color: rgb(0xff, 0xff, 0x00), Transparency: 0.5},
	{Name: "LOW", Mask: 0x004, Value: 0x004, Description: "Low quality", Color: rgb(0xff, 0xa5, 0x00), Transparency: 0.5},
	{Name: "NOT", Mask: 0x008, Value: 0x008, Description: "Not usable", Color: rgb(0xff, 0x00, 0x00), Transparency: 0.5},
	{Name: "INTERPOLATED_SWIR", Mask: 0x010, Value: 0x010, Description: "Interpolated SWIR pixel", Color: rgb(0x80, 0x00, 0x80), Transparency: 0.5},
	{Name: "INTERPOLATED_VNIR", Mask: 0x020, Value: 0x020, Description: "Interpolated VNIR pixel", Color: rgb(0xda, 0x70, 0xd6), Transparency: 0.5},
	{Name: "SATURATION_SWIR", Mask: 0x040, Value: 0x040, Description: "Saturated SWIR pixel", Color: rgb(0x8b, 0x00, 0x00), Transparency: 0.5},
	{Name: "SATURATION_VNIR", Mask: 0x080, Value: 0x080, Description: "Saturated VNIR pixel", Color: rgb(0xdc, 0x14, 0x3c), Transparency: 0.5},
	{Name: "ARTEFACT_SWIR", Mask: 0x100, Value: 0x100, Description: "Artefact in SWIR", Color: rgb(0x00, 0x00, 0x8b), Transparency: 0.5},
	{Name: "ARTEFACT_VNIR", Mask: 0x200, Value: 0x200, Description: "Artefact in VNIR", Color: rgb(0x41, 0x69, 0xe1), Transparency: 0.5},
}

func testFlagsLayer(key string) Layer {
	return Layer{Key: key, DataType: product.TypeUint16, Definitions: testFlagDefinitions}
}

// Layers returns the quality layers of a level in composition order. The
// pixel mask cube comes last.
func Layers(level meta.Level) ([]Layer, error) {
	layers := []Layer{classesLayer, hazeLayer, cloudLayer, cirrusLayer, cloudShadowLayer, snowLayer}
	switch level {
	case meta.LevelL1B:
		layers = append(layers, testFlagsLayer(meta.KeyQualityTestFlagsVNIR), testFlagsLayer(meta.KeyQualityTestFlagsSWIR))
	case meta.LevelL1C, meta.LevelL2A:
		layers = append(layers, testFlagsLayer(meta.KeyQualityTestFlags))
	default:
		return nil, fmt.Errorf("flags: %w: %s", meta.ErrUnknownProcessingLevel, level)
	}
	return append(layers, pixelMaskLayer), nil
}
