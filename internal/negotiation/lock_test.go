package negotiation

import (
	"sync"
	"testing"
)

func TestLockerSerializesSameID(t *testing.T) {
	l := newLocker()

	var (
		wg      sync.WaitGroup
		current int
		max     int
		mu      sync.Mutex
	)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			release := l.acquire(7)
			defer release()
			mu.Lock()
			current++
			if current > max {
				max = current
			}
			mu.Unlock()
			mu.Lock()
			current--
			mu.Unlock()
		}()
	}
	wg.Wait()
	if max != 1 {
		t.Fatalf("max concurrent holders = %d, want 1", max)
	}
}

func TestLockerDropsIdleEntries(t *testing.T) {
	l := newLocker()

	release := l.acquire(1)
	release2 := l.acquire(2)
	release()
	release2()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(id uint) {
			defer wg.Done()
			rel := l.acquire(id % 3)
			rel()
		}(uint(i))
	}
	wg.Wait()

	l.mu.Lock()
	n := len(l.locks)
	l.mu.Unlock()
	if n != 0 {
		t.Fatalf("locker retained %d entries after release, want 0", n)
	}
}
