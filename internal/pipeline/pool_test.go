package pipeline

import (
	"errors"
	"sync"
	"testing"
)

func newTestPool(t *testing.T, size int) *Pool {
	t.Helper()
	p, err := NewPool(size, VideoShape(4, 2))
	if err != nil {
		t.Fatalf("NewPool failed: %v", err)
	}
	return p
}

func TestNewPoolValidation(t *testing.T) {
	tests := []struct {
		name    string
		size    int
		shape   Shape
		wantErr bool
	}{
		{"valid video", 3, VideoShape(640, 480), false},
		{"valid audio", 2, AudioShape(48000, 2, 2, 480), false},
		{"zero size", 0, VideoShape(640, 480), true},
		{"negative size", -1, VideoShape(640, 480), true},
		{"odd width", 1, VideoShape(641, 480), true},
		{"empty video", 1, VideoShape(0, 0), true},
		{"empty audio", 1, AudioShape(48000, 0, 2, 480), true},
		{"unknown kind", 1, Shape{Kind: "text"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewPool(tt.size, tt.shape)
			if (err != nil) != tt.wantErr {
				t.Errorf("NewPool() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestShapeSize(t *testing.T) {
	if got := VideoShape(1280, 720).Size(); got != 1280*720*3/2 {
		t.Errorf("video size = %d, want %d", got, 1280*720*3/2)
	}
	if got := AudioShape(48000, 2, 2, 480).Size(); got != 1920 {
		t.Errorf("audio size = %d, want 1920", got)
	}
}

func TestPoolAcquireUntilEmpty(t *testing.T) {
	for _, size := range []int{1, 2, 5, 50} {
		p := newTestPool(t, size)

		seen := make(map[*Buffer]bool)
		for i := 0; i < size; i++ {
			buf, ok := p.Acquire()
			if !ok {
				t.Fatalf("size %d: Acquire %d returned none", size, i)
			}
			if seen[buf] {
				t.Fatalf("size %d: buffer handed out twice", size)
			}
			seen[buf] = true
		}

		if _, ok := p.Acquire(); ok {
			t.Errorf("size %d: expected none after %d acquires", size, size)
		}
		if p.InUse() != size {
			t.Errorf("size %d: InUse = %d", size, p.InUse())
		}

		for buf := range seen {
			if err := p.Release(buf); err != nil {
				t.Fatalf("Release failed: %v", err)
			}
		}
		if p.Idle() != size {
			t.Errorf("size %d: Idle = %d after releasing all", size, p.Idle())
		}
	}
}

func TestPoolReleaseResetsStampKeepsPayload(t *testing.T) {
	p := newTestPool(t, 1)

	buf, _ := p.Acquire()
	buf.Stamp = 42
	buf.Silent = true
	buf.Data[0] = 0xAB

	if err := p.Release(buf); err != nil {
		t.Fatalf("Release failed: %v", err)
	}

	again, _ := p.Acquire()
	if again != buf {
		t.Fatal("expected the same buffer back from a pool of one")
	}
	if again.Stamp != 0 {
		t.Errorf("Stamp = %d, want 0", again.Stamp)
	}
	if again.Silent {
		t.Error("Silent should be cleared on release")
	}
	if again.Data[0] != 0xAB {
		t.Error("payload should be reused as-is, not cleared")
	}
}

func TestPoolDoubleRelease(t *testing.T) {
	p := newTestPool(t, 2)

	buf, _ := p.Acquire()
	if err := p.Release(buf); err != nil {
		t.Fatalf("first Release failed: %v", err)
	}
	if err := p.Release(buf); !errors.Is(err, ErrDoubleRelease) {
		t.Errorf("second Release error = %v, want ErrDoubleRelease", err)
	}
	if p.Idle() != 2 {
		t.Errorf("Idle = %d, want 2", p.Idle())
	}
}

func TestPoolForeignBuffer(t *testing.T) {
	p1 := newTestPool(t, 1)
	p2 := newTestPool(t, 1)

	buf, _ := p1.Acquire()
	if err := p2.Release(buf); !errors.Is(err, ErrForeignBuffer) {
		t.Errorf("Release to other pool error = %v, want ErrForeignBuffer", err)
	}
	if err := p2.Release(&Buffer{}); !errors.Is(err, ErrForeignBuffer) {
		t.Errorf("Release of zero buffer error = %v, want ErrForeignBuffer", err)
	}
	if err := p2.Release(nil); !errors.Is(err, ErrForeignBuffer) {
		t.Errorf("Release(nil) error = %v, want ErrForeignBuffer", err)
	}
}

func TestPoolAcquireDoesNotAllocate(t *testing.T) {
	p := newTestPool(t, 4)

	allocs := testing.AllocsPerRun(100, func() {
		buf, ok := p.Acquire()
		if !ok {
			t.Fatal("unexpected empty pool")
		}
		_ = p.Release(buf)
	})
	if allocs != 0 {
		t.Errorf("Acquire/Release allocated %.1f times per run", allocs)
	}
}

func TestPoolConcurrentNeverExceedsCapacity(t *testing.T) {
	const size = 3
	p := newTestPool(t, size)

	var (
		mu      sync.Mutex
		out     int
		maxSeen int
		wg      sync.WaitGroup
	)

	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 500; i++ {
				buf, ok := p.Acquire()
				if !ok {
					continue
				}
				mu.Lock()
				out++
				if out > maxSeen {
					maxSeen = out
				}
				mu.Unlock()

				mu.Lock()
				out--
				mu.Unlock()
				if err := p.Release(buf); err != nil {
					t.Errorf("Release failed: %v", err)
					return
				}
			}
		}()
	}
	wg.Wait()

	if maxSeen > size {
		t.Errorf("saw %d buffers outside the pool, capacity %d", maxSeen, size)
	}
	if p.Idle() != size {
		t.Errorf("Idle = %d, want %d", p.Idle(), size)
	}
}

func TestBufferPlanes(t *testing.T) {
	p, err := NewPool(1, VideoShape(4, 2))
	if err != nil {
		t.Fatalf("NewPool failed: %v", err)
	}
	buf, _ := p.Acquire()

	y, u, v := buf.Planes()
	if len(y) != 8 || len(u) != 2 || len(v) != 2 {
		t.Errorf("plane sizes = %d/%d/%d, want 8/2/2", len(y), len(u), len(v))
	}
}
