package keylock

import (
	"errors"
	"sync"
	"testing"
)

func TestStriped_SerializesSameKey(t *testing.T) {
	l := New(8)
	counter := 0
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = l.Do("user-1", func() error {
				v := counter
				counter = v + 1
				return nil
			})
		}()
	}
	wg.Wait()
	if counter != 50 {
		t.Errorf("counter = %d, want 50", counter)
	}
}

func TestStriped_DoReturnsError(t *testing.T) {
	l := New(0)
	want := errors.New("boom")
	if err := l.Do("k", func() error { return want }); !errors.Is(err, want) {
		t.Errorf("Do err = %v, want %v", err, want)
	}
	// Lock must have been released.
	unlock := l.Lock("k")
	unlock()
}
