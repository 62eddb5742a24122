package raster

import (
	"context"
	"fmt"
	"image"
	"os"
	"sync"
)

// Memory is an in-memory dataset. Band b holds Size.X*Size.Y samples in
// row-major order.
type Memory struct {
	Name      string
	Width     int
	Height    int
	Block     image.Point
	Bands     [][]int32
	Affine    *Affine
	ReadCount int

	mu        sync.Mutex
	opens     int
	closes    int
	lateReads int
}

// NewMemory creates a dataset whose sample at (x, y) of band b is fill(b, x, y).
func NewMemory(name string, width, height, bands int, fill func(b, x, y int) int32) *Memory {
	m := &Memory{Name: name, Width: width, Height: height, Block: image.Pt(width, height)}
	for b := 0; b < bands; b++ {
		data := make([]int32, width*height)
		for y := 0; y < height; y++ {
			for x := 0; x < width; x++ {
				if fill != nil {
					data[y*width+x] = fill(b, x, y)
				}
			}
		}
		m.Bands = append(m.Bands, data)
	}
	return m
}

func (m *Memory) Size() image.Point {
	return image.Pt(m.Width, m.Height)
}

func (m *Memory) BandCount() int {
	return len(m.Bands)
}

func (m *Memory) BlockSize() image.Point {
	return m.Block
}

func (m *Memory) Read(band int, rect image.Rectangle, dst []int32) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closes >= max(m.opens, 1) {
		m.lateReads++
		return ErrClosed
	}
	if err := CheckRead(m.Size(), len(m.Bands), band, rect, dst); err != nil {
		return err
	}
	m.ReadCount++
	i := 0
	for y := rect.Min.Y; y < rect.Max.Y; y++ {
		row := m.Bands[band][y*m.Width : (y+1)*m.Width]
		i += copy(dst[i:], row[rect.Min.X:rect.Max.X])
	}
	return nil
}

func (m *Memory) Transform() (Affine, bool) {
	if m.Affine == nil {
		return Affine{}, false
	}
	return *m.Affine, true
}

// Close counts every call; Closes reports the count. The dataset stays
// readable while fewer closes than opens through a MemoryOpener were seen.
func (m *Memory) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closes++
	return nil
}

// Closes returns how often Close was called.
func (m *Memory) Closes() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closes
}

// ReadsAfterClose returns how many reads arrived once the dataset was closed.
func (m *Memory) ReadsAfterClose() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lateReads
}

// Opens returns how often the dataset was opened through a MemoryOpener.
func (m *Memory) Opens() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.opens
}

// MemoryOpener serves Memory datasets by path. Unknown paths fail with an
// error wrapping os.ErrNotExist.
type MemoryOpener struct {
	mu       sync.Mutex
	datasets map[string]*Memory
	opened   []string
}

// NewMemoryOpener registers the given datasets under their Name.
func NewMemoryOpener(datasets ...*Memory) *MemoryOpener {
	o := &MemoryOpener{datasets: make(map[string]*Memory)}
	for _, ds := range datasets {
		o.datasets[ds.Name] = ds
	}
	return o
}

// Open implements Opener.
func (o *MemoryOpener) Open(ctx context.Context, path string) (Dataset, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	ds, ok := o.datasets[path]
	if !ok {
		return nil, fmt.Errorf("raster: open %s: %w", path, os.ErrNotExist)
	}
	o.opened = append(o.opened, path)
	ds.mu.Lock()
	ds.opens++
	ds.mu.Unlock()
	return ds, nil
}

// Opened lists the paths opened so far, in order.
func (o *MemoryOpener) Opened() []string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]string(nil), o.opened...)
}
