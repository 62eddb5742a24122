package tiles

import (
	"errors"
	"image"
	"sync"
	"sync/atomic"
	"testing"
)

type countingSource struct {
	reads  atomic.Int32
	active atomic.Int32
	peak   atomic.Int32
	err    error
}

func (s *countingSource) ReadTile(rect image.Rectangle, dst []int32) error {
	if n := s.active.Add(1); n > s.peak.Load() {
		s.peak.Store(n)
	}
	defer s.active.Add(-1)
	s.reads.Add(1)
	if s.err != nil {
		return s.err
	}
	for i := range dst {
		dst[i] = int32(rect.Min.X + i)
	}
	return nil
}

func TestFetchCaches(t *testing.T) {
	f, err := New(4)
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	src := &countingSource{}
	rect := image.Rect(10, 0, 12, 1)
	for i := 0; i < 3; i++ {
		dst := make([]int32, 2)
		if err := f.Fetch("band_001", src, rect, dst); err != nil {
			t.Fatalf("Fetch returned error: %v", err)
		}
		if dst[0] != 10 || dst[1] != 11 {
			t.Fatalf("unexpected samples %v", dst)
		}
	}
	if got := src.reads.Load(); got != 1 {
		t.Fatalf("expected one decoder read, got %d", got)
	}
	if f.Len() != 1 {
		t.Fatalf("expected one cached tile, got %d", f.Len())
	}
	f.Purge()
	if f.Len() != 0 {
		t.Fatalf("expected empty cache after purge")
	}
}

func TestFetchWithoutCache(t *testing.T) {
	f, err := New(0)
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	src := &countingSource{}
	rect := image.Rect(0, 0, 1, 1)
	f.Fetch("b", src, rect, make([]int32, 1))
	f.Fetch("b", src, rect, make([]int32, 1))
	if got := src.reads.Load(); got != 2 {
		t.Fatalf("expected two decoder reads, got %d", got)
	}
}

func TestFetchSerialisesDecoderCalls(t *testing.T) {
	f, _ := New(0)
	src := &countingSource{}
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			rect := image.Rect(i, 0, i+1, 1)
			if err := f.Fetch("b", src, rect, make([]int32, 1)); err != nil {
				t.Errorf("Fetch returned error: %v", err)
			}
		}(i)
	}
	wg.Wait()
	if peak := src.peak.Load(); peak != 1 {
		t.Fatalf("expected serialised decoder calls, peak concurrency %d", peak)
	}
}

func TestFetchErrors(t *testing.T) {
	f, _ := New(2)
	boom := errors.New("boom")
	src := &countingSource{err: boom}
	if err := f.Fetch("b", src, image.Rect(0, 0, 2, 2), make([]int32, 4)); !errors.Is(err, boom) {
		t.Fatalf("expected decoder error, got %v", err)
	}
	if f.Len() != 0 {
		t.Fatalf("failed reads must not be cached")
	}
	if err := f.Fetch("b", src, image.Rect(0, 0, 2, 2), make([]int32, 3)); err == nil {
		t.Fatalf("expected short buffer error")
	}
}

// releasableSource counts reads that start after its release ran.
type releasableSource struct {
	released  atomic.Bool
	lateReads atomic.Int32
}

func (s *releasableSource) ReadTile(rect image.Rectangle, dst []int32) error {
	if s.released.Load() {
		s.lateReads.Add(1)
	}
	return nil
}

func TestCloseWaitsForDecoderCalls(t *testing.T) {
	f, _ := New(0)
	src := &releasableSource{}
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 200; j++ {
				err := f.Fetch("b", src, image.Rect(0, 0, 1, 1), make([]int32, 1))
				if errors.Is(err, ErrClosed) {
					return
				}
				if err != nil {
					t.Errorf("Fetch returned error: %v", err)
					return
				}
			}
		}()
	}

	releases := 0
	if err := f.Close(func() error {
		releases++
		src.released.Store(true)
		return nil
	}); err != nil {
		t.Fatalf("Close returned error: %v", err)
	}
	wg.Wait()

	if n := src.lateReads.Load(); n != 0 {
		t.Fatalf("expected no decoder reads after release, got %d", n)
	}
	if err := f.Close(func() error { releases++; return nil }); err != nil || releases != 1 {
		t.Fatalf("expected a single release, got %d (%v)", releases, err)
	}
	if err := f.Fetch("b", src, image.Rect(0, 0, 1, 1), make([]int32, 1)); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
}

func TestClosePurgesAndReturnsReleaseError(t *testing.T) {
	f, _ := New(4)
	f.Fetch("b", &countingSource{}, image.Rect(0, 0, 1, 1), make([]int32, 1))
	boom := errors.New("boom")
	if err := f.Close(func() error { return boom }); !errors.Is(err, boom) {
		t.Fatalf("expected release error, got %v", err)
	}
	if f.Len() != 0 {
		t.Fatalf("expected empty cache after close")
	}
}
