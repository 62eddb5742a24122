// Package flags expands the quality layer flag tables of a product into
// flag codings and mask expressions bound to physical bands.
package flags

import (
	"errors"
	"fmt"

	"github.com/example/go-enmap/enmap/imagery"
	"github.com/example/go-enmap/enmap/meta"
	"github.com/example/go-enmap/enmap/product"
)

var (
	// ErrUnknownKey is returned for keys that name no quality layer.
	ErrUnknownKey = errors.New("flags: unknown quality key")
	// ErrLevelKey is returned for keys the processing level does not carry,
	// such as the VNIR and SWIR test flags outside L1B.
	ErrLevelKey = errors.New("flags: quality key not part of level")
)

// Binding ties one physical flag band to its coding, its masks and the
// series image delivering its samples. Bindings of one series definition
// share the same coding.
type Binding struct {
	BandName string
	DataType product.DataType
	Coding   *product.FlagCoding
	Masks    []*product.Mask
	Series   imagery.Key
	Index    int
}

// Expression returns the mask expression selecting value under mask in band.
func Expression(band string, mask, value uint32) string {
	return fmt.Sprintf("(%s & %d) == %d", band, mask, value)
}

// SeriesBandName returns the name of the zero-based image i of a series.
func SeriesBandName(key string, i int) string {
	return fmt.Sprintf("%s_%03d", key, i+1)
}

func layerFor(key string) (Layer, bool) {
	switch key {
	case meta.KeyQualityClasses:
		return classesLayer, true
	case meta.KeyQualityCloud:
		return cloudLayer, true
	case meta.KeyQualityCloudShadow:
		return cloudShadowLayer, true
	case meta.KeyQualityHaze:
		return hazeLayer, true
	case meta.KeyQualityCirrus:
		return cirrusLayer, true
	case meta.KeyQualitySnow:
		return snowLayer, true
	case meta.KeyQualityTestFlags, meta.KeyQualityTestFlagsVNIR, meta.KeyQualityTestFlagsSWIR:
		return testFlagsLayer(key), true
	case meta.KeyPixelMask:
		return pixelMaskLayer, true
	}
	return Layer{}, false
}

// Expand returns the bindings of one quality key. On L1B the test flags and
// pixel mask keys split into VNIR and SWIR bands.
func Expand(key string, md meta.Metadata) ([]Binding, error) {
	layer, ok := layerFor(key)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownKey, key)
	}
	level := md.Level()
	switch level {
	case meta.LevelL1B, meta.LevelL1C, meta.LevelL2A:
	default:
		return nil, fmt.Errorf("flags: %w: %s", meta.ErrUnknownProcessingLevel, level)
	}
	if (key == meta.KeyQualityTestFlagsVNIR || key == meta.KeyQualityTestFlagsSWIR) && level != meta.LevelL1B {
		return nil, fmt.Errorf("%w: %s on %s", ErrLevelKey, key, level)
	}

	switch {
	case key == meta.KeyPixelMask:
		return expandPixelMask(layer, md)
	case key == meta.KeyQualityTestFlags && level == meta.LevelL1B:
		vnir, err := single(testFlagsLayer(meta.KeyQualityTestFlagsVNIR))
		if err != nil {
			return nil, err
		}
		swir, err := single(testFlagsLayer(meta.KeyQualityTestFlagsSWIR))
		if err != nil {
			return nil, err
		}
		return append(vnir, swir...), nil
	default:
		return single(layer)
	}
}

// ExpandAll returns the bindings of every quality layer of the product's
// level. The pixel mask cube is left out when pixelMasks is false.
func ExpandAll(md meta.Metadata, pixelMasks bool) ([]Binding, error) {
	layers, err := Layers(md.Level())
	if err != nil {
		return nil, err
	}
	var out []Binding
	for _, layer := range layers {
		if layer.Key == meta.KeyPixelMask && !pixelMasks {
			continue
		}
		bindings, err := Expand(layer.Key, md)
		if err != nil {
			return nil, err
		}
		out = append(out, bindings...)
	}
	return out, nil
}

func single(layer Layer) ([]Binding, error) {
	coding := product.NewFlagCoding(layer.Key)
	b := Binding{
		BandName: layer.Key,
		DataType: layer.DataType,
		Coding:   coding,
		Series:   imagery.Quality(layer.Key),
	}
	for _, def := range layer.Definitions {
		if err := coding.AddFlag(product.Flag{Name: def.Name, Mask: def.Mask, Value: def.Value, Description: def.Description}); err != nil {
			return nil, err
		}
		b.Masks = append(b.Masks, mask(layer.Key, def))
	}
	return []Binding{b}, nil
}

func expandPixelMask(layer Layer, md meta.Metadata) ([]Binding, error) {
	if md.Level() != meta.LevelL1B {
		n, err := md.NumSpectralBands()
		if err != nil {
			return nil, err
		}
		return series(layer, layer.Key, n, 0)
	}
	vnirCount, err := md.VNIRBandCount()
	if err != nil {
		return nil, err
	}
	swirCount, err := md.SWIRBandCount()
	if err != nil {
		return nil, err
	}
	vnir, err := series(layer, meta.KeyPixelMaskVNIR, vnirCount, 0)
	if err != nil {
		return nil, err
	}
	swir, err := series(layer, meta.KeyPixelMaskSWIR, swirCount, vnirCount)
	if err != nil {
		return nil, err
	}
	return append(vnir, swir...), nil
}

// series expands layer into n bands named codingName_001 and up. Band i
// reads image offset+i of the pixel mask series.
func series(layer Layer, codingName string, n, offset int) ([]Binding, error) {
	coding := product.NewFlagCoding(codingName)
	out := make([]Binding, 0, n)
	for i := 0; i < n; i++ {
		band := SeriesBandName(codingName, i)
		b := Binding{
			BandName: band,
			DataType: layer.DataType,
			Coding:   coding,
			Series:   imagery.PixelMask,
			Index:    offset + i,
		}
		for _, def := range layer.Definitions {
			name := def.Name
			if def.Series {
				name = SeriesBandName(def.Name, i)
			}
			if err := coding.AddFlag(product.Flag{Name: name, Mask: def.Mask, Value: def.Value, Description: def.Description}); err != nil {
				return nil, err
			}
			b.Masks = append(b.Masks, mask(band, def))
		}
		out = append(out, b)
	}
	return out, nil
}

func mask(band string, def Definition) *product.Mask {
	return &product.Mask{
		Name:         band + "_" + def.Name,
		Expression:   Expression(band, def.Mask, def.Value),
		Description:  def.Description,
		Color:        def.Color,
		Transparency: def.Transparency,
	}
}
