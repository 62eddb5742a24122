package product

import (
	"fmt"
	"math"
)

var nan = math.NaN()

// TiePointGrid is a sparse grid of values interpolated bilinearly to pixel
// positions.
type TiePointGrid struct {
	Name         string
	Unit         string
	GridWidth    int
	GridHeight   int
	OffsetX      float64
	OffsetY      float64
	SubSamplingX float64
	SubSamplingY float64
	Data         []float32
}

// NewTiePointGrid validates the grid geometry against the data length.
func NewTiePointGrid(name string, gridWidth, gridHeight int, offsetX, offsetY, subX, subY float64, data []float32) (*TiePointGrid, error) {
	if gridWidth < 2 || gridHeight < 2 {
		return nil, fmt.Errorf("product: tie-point grid %s must be at least 2x2", name)
	}
	if len(data) != gridWidth*gridHeight {
		return nil, fmt.Errorf("product: tie-point grid %s has %d values, want %d", name, len(data), gridWidth*gridHeight)
	}
	if subX <= 0 || subY <= 0 {
		return nil, fmt.Errorf("product: tie-point grid %s sub-sampling must be positive", name)
	}
	return &TiePointGrid{
		Name:         name,
		GridWidth:    gridWidth,
		GridHeight:   gridHeight,
		OffsetX:      offsetX,
		OffsetY:      offsetY,
		SubSamplingX: subX,
		SubSamplingY: subY,
		Data:         append([]float32(nil), data...),
	}, nil
}

// Value returns the interpolated value at pixel coordinate (x, y). Positions
// outside the grid are extrapolated from the border cells.
func (g *TiePointGrid) Value(x, y float64) float64 {
	fi := (x - g.OffsetX) / g.SubSamplingX
	fj := (y - g.OffsetY) / g.SubSamplingY
	i := clampCell(int(math.Floor(fi)), g.GridWidth)
	j := clampCell(int(math.Floor(fj)), g.GridHeight)
	wi := fi - float64(i)
	wj := fj - float64(j)

	v00 := float64(g.Data[j*g.GridWidth+i])
	v10 := float64(g.Data[j*g.GridWidth+i+1])
	v01 := float64(g.Data[(j+1)*g.GridWidth+i])
	v11 := float64(g.Data[(j+1)*g.GridWidth+i+1])
	return v00 + wi*(v10-v00) + wj*(v01-v00) + wi*wj*(v11+v00-v01-v10)
}

func clampCell(c, n int) int {
	if c < 0 {
		return 0
	}
	if c > n-2 {
		return n - 2
	}
	return c
}
