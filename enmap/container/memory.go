package container

import (
	"bytes"
	"context"
	"io"
	"sync"
)

// Memory holds product files in memory. Locate returns the resolved file
// name unchanged, which pairs with raster.MemoryOpener.
type Memory struct {
	name string

	mu     sync.Mutex
	files  map[string][]byte
	closes int
}

// NewMemory creates a container with the given files.
func NewMemory(name string, files map[string][]byte) *Memory {
	m := &Memory{name: name, files: make(map[string][]byte, len(files))}
	for k, v := range files {
		m.files[k] = v
	}
	return m
}

func (m *Memory) Name() string {
	return m.name
}

func (m *Memory) names() []string {
	out := make([]string, 0, len(m.files))
	for k := range m.files {
		out = append(out, k)
	}
	return sorted(out)
}

func (m *Memory) List(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closes > 0 {
		return nil, ErrClosed
	}
	return m.names(), nil
}

func (m *Memory) Open(ctx context.Context, name string) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closes > 0 {
		return nil, ErrClosed
	}
	n, err := resolve(m.names(), name)
	if err != nil {
		return nil, err
	}
	return io.NopCloser(bytes.NewReader(m.files[n])), nil
}

func (m *Memory) Locate(name string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closes > 0 {
		return "", ErrClosed
	}
	return resolve(m.names(), name)
}

// Close counts every call; Closes reports the count.
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
