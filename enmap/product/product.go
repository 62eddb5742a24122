// Package product holds the normalized, in-memory representation of an
// opened satellite product: bands, tie-point grids, flag codings, masks,
// one geocoding and a metadata tree.
package product

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"time"
)

var (
	// ErrDuplicateName is returned when a node name is already taken.
	ErrDuplicateName = errors.New("product: duplicate node name")
	// ErrSealed is returned when a sealed product is modified.
	ErrSealed = errors.New("product: product is sealed")
	// ErrNotRegistered is returned when a band source is attached before the
	// band was added to a product.
	ErrNotRegistered = errors.New("product: band not added to a product")
	// ErrCodingNotRegistered is returned when a flag band refers to a coding
	// that is not part of the product's flag coding group.
	ErrCodingNotRegistered = errors.New("product: flag coding not registered")
	// ErrSourceAttached is returned when a sample coding is set after the
	// band's pixel source.
	ErrSourceAttached = errors.New("product: band source already attached")
)

// DataType is the sample type of a raster band.
type DataType int

const (
	TypeUint8 DataType = iota + 1
	TypeInt16
	TypeUint16
	TypeInt32
	TypeFloat32
)

func (t DataType) String() string {
	switch t {
	case TypeUint8:
		return "uint8"
	case TypeInt16:
		return "int16"
	case TypeUint16:
		return "uint16"
	case TypeInt32:
		return "int32"
	case TypeFloat32:
		return "float32"
	default:
		return fmt.Sprintf("DataType(%d)", int(t))
	}
}

// GeoCoding is implemented by the geocoding descriptors attached to a product.
type GeoCoding interface {
	// CRS returns the coordinate reference system identifier, e.g. "EPSG:32632".
	CRS() string
}

// Source delivers the pixels of one band.
type Source interface {
	Size() image.Point
	ReadTile(rect image.Rectangle, dst []int32) error
}

// Product is the assembled product. It is built once and sealed; after
// Seal every mutating call fails with ErrSealed.
type Product struct {
	Name              string
	Type              string
	Width             int
	Height            int
	StartTime         time.Time
	StopTime          time.Time
	PreferredTileSize image.Point
	AutoGrouping      string

	geoCoding     GeoCoding
	bands         []*Band
	tiePointGrids []*TiePointGrid
	flagCodings   []*FlagCoding
	masks         []*Mask
	metadata      *MetadataElement
	names         map[string]struct{}
	sealed        bool
}

// New creates an empty product of the given scene size.
func New(name, productType string, width, height int) *Product {
	return &Product{
		Name:     name,
		Type:     productType,
		Width:    width,
		Height:   height,
		metadata: NewElement("metadata"),
		names:    make(map[string]struct{}),
	}
}

// Seal freezes the product structure.
func (p *Product) Seal() {
	p.sealed = true
}

// Sealed reports whether Seal was called.
func (p *Product) Sealed() bool {
	return p.sealed
}

func (p *Product) claim(name string) error {
	if p.sealed {
		return ErrSealed
	}
	if name == "" {
		return errors.New("product: node name cannot be empty")
	}
	if _, ok := p.names[name]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateName, name)
	}
	p.names[name] = struct{}{}
	return nil
}

// SetGeoCoding attaches the scene geocoding.
func (p *Product) SetGeoCoding(gc GeoCoding) error {
	if p.sealed {
		return ErrSealed
	}
	p.geoCoding = gc
	return nil
}

// GeoCoding returns the scene geocoding, nil if none is set.
func (p *Product) GeoCoding() GeoCoding {
	return p.geoCoding
}

// AddBand registers a band. A band carrying a sample coding may only be
// added once that coding is part of the product.
func (p *Product) AddBand(b *Band) error {
	if b == nil {
		return errors.New("product: nil band")
	}
	if b.coding != nil && p.FlagCoding(b.coding.Name) != b.coding {
		return fmt.Errorf("%w: %s", ErrCodingNotRegistered, b.coding.Name)
	}
	if err := p.claim(b.Name); err != nil {
		return err
	}
	b.product = p
	p.bands = append(p.bands, b)
	return nil
}

// Band looks a band up by name.
func (p *Product) Band(name string) *Band {
	for _, b := range p.bands {
		if b.Name == name {
			return b
		}
	}
	return nil
}

// Bands returns the bands in registration order.
func (p *Product) Bands() []*Band {
	return append([]*Band(nil), p.bands...)
}

// AddTiePointGrid registers a tie-point grid.
func (p *Product) AddTiePointGrid(g *TiePointGrid) error {
	if g == nil {
		return errors.New("product: nil tie-point grid")
	}
	if err := p.claim(g.Name); err != nil {
		return err
	}
	p.tiePointGrids = append(p.tiePointGrids, g)
	return nil
}

// TiePointGrid looks a grid up by name.
func (p *Product) TiePointGrid(name string) *TiePointGrid {
	for _, g := range p.tiePointGrids {
		if g.Name == name {
			return g
		}
	}
	return nil
}

// TiePointGrids returns the grids in registration order.
func (p *Product) TiePointGrids() []*TiePointGrid {
	return append([]*TiePointGrid(nil), p.tiePointGrids...)
}

// AddFlagCoding registers a flag coding in the product's flag coding group.
func (p *Product) AddFlagCoding(fc *FlagCoding) error {
	if p.sealed {
		return ErrSealed
	}
	if fc == nil {
		return errors.New("product: nil flag coding")
	}
	if p.FlagCoding(fc.Name) != nil {
		return fmt.Errorf("%w: flag coding %s", ErrDuplicateName, fc.Name)
	}
	p.flagCodings = append(p.flagCodings, fc)
	return nil
}

// FlagCoding looks a flag coding up by name.
func (p *Product) FlagCoding(name string) *FlagCoding {
	for _, fc := range p.flagCodings {
		if fc.Name == name {
			return fc
		}
	}
	return nil
}

// FlagCodings returns the flag coding group.
func (p *Product) FlagCodings() []*FlagCoding {
	return append([]*FlagCoding(nil), p.flagCodings...)
}

// AddMask registers a mask.
func (p *Product) AddMask(m *Mask) error {
	if m == nil {
		return errors.New("product: nil mask")
	}
	if err := p.claim(m.Name); err != nil {
		return err
	}
	p.masks = append(p.masks, m)
	return nil
}

// Mask looks a mask up by name.
func (p *Product) Mask(name string) *Mask {
	for _, m := range p.masks {
		if m.Name == name {
			return m
		}
	}
	return nil
}

// Masks returns the masks in registration order.
func (p *Product) Masks() []*Mask {
	return append([]*Mask(nil), p.masks...)
}

// MetadataRoot returns the root of the metadata tree.
func (p *Product) MetadataRoot() *MetadataElement {
	return p.metadata
}

// Band is one raster layer of a product.
type Band struct {
	Name          string
	DataType      DataType
	Width         int
	Height        int
	SpectralIndex int
	Wavelength    float64
	Bandwidth     float64
	Description   string
	Unit          string
	ScalingFactor float64
	ScalingOffset float64
	NoDataValue   float64
	NoDataUsed    bool

	coding  *FlagCoding
	source  Source
	product *Product
}

// NewBand creates an unscaled, non-spectral band.
func NewBand(name string, dataType DataType, width, height int) *Band {
	return &Band{
		Name:          name,
		DataType:      dataType,
		Width:         width,
		Height:        height,
		SpectralIndex: -1,
		ScalingFactor: 1,
	}
}

// SetSampleCoding marks the band as a flag band. It must precede SetSource.
func (b *Band) SetSampleCoding(fc *FlagCoding) error {
	if b.source != nil {
		return fmt.Errorf("%w: %s", ErrSourceAttached, b.Name)
	}
	b.coding = fc
	return nil
}

// SampleCoding returns the flag coding, nil for non-flag bands.
func (b *Band) SampleCoding() *FlagCoding {
	return b.coding
}

// IsFlagBand reports whether a sample coding is attached.
func (b *Band) IsFlagBand() bool {
	return b.coding != nil
}

// SetSource attaches the pixel source. The band must already belong to a
// product.
func (b *Band) SetSource(src Source) error {
	if b.product == nil {
		return fmt.Errorf("%w: %s", ErrNotRegistered, b.Name)
	}
	if src == nil {
		return fmt.Errorf("product: nil source for band %s", b.Name)
	}
	b.source = src
	return nil
}

// Source returns the attached pixel source.
func (b *Band) Source() Source {
	return b.source
}

// Scale converts a raw sample into its geophysical value. No-data samples
// map to NaN when no-data is in use.
func (b *Band) Scale(raw int32) float64 {
	if b.NoDataUsed && float64(raw) == b.NoDataValue {
		return nan
	}
	return float64(raw)*b.ScalingFactor + b.ScalingOffset
}

// Flag is one named bit pattern of a flag coding.
type Flag struct {
	Name        string
	Mask        uint32
	Value       uint32
	Description string
}

// FlagCoding groups the flags interpreting the samples of one flag band.
type FlagCoding struct {
	Name  string
	Flags []Flag
}

// NewFlagCoding creates an empty flag coding.
func NewFlagCoding(name string) *FlagCoding {
	return &FlagCoding{Name: name}
}

// AddFlag appends a flag. Flag names are unique within a coding.
func (fc *FlagCoding) AddFlag(f Flag) error {
	for _, existing := range fc.Flags {
		if existing.Name == f.Name {
			return fmt.Errorf("%w: flag %s in %s", ErrDuplicateName, f.Name, fc.Name)
		}
	}
	fc.Flags = append(fc.Flags, f)
	return nil
}

// Flag looks a flag up by name.
func (fc *FlagCoding) Flag(name string) (Flag, bool) {
	for _, f := range fc.Flags {
		if f.Name == name {
			return f, true
		}
	}
	return Flag{}, false
}

// Mask is a named boolean per-pixel condition over the product bands.
type Mask struct {
	Name         string
	Expression   string
	Description  string
	Color        color.RGBA
	Transparency float64
}
