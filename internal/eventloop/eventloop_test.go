package eventloop

import (
	"context"
	"sync"
	"testing"
	"time"
)

func TestRunPending_FIFO(t *testing.T) {
	l := New()
	var got []int
	for i := 0; i < 5; i++ {
		l.Post(func() { got = append(got, i) })
	}

	if n := l.Len(); n != 5 {
		t.Fatalf("Len = %d, want 5", n)
	}
	if n := l.RunPending(); n != 5 {
		t.Fatalf("RunPending = %d, want 5", n)
	}
	for i, v := range got {
		if v != i {
			t.Fatalf("order = %v, want ascending", got)
		}
	}
	if n := l.RunPending(); n != 0 {
		t.Errorf("second RunPending = %d, want 0", n)
	}
}

func TestRunPending_RunsNestedPosts(t *testing.T) {
	l := New()
	var got []string
	l.Post(func() {
		got = append(got, "outer")
		l.Post(func() { got = append(got, "inner") })
	})

	if n := l.RunPending(); n != 2 {
		t.Fatalf("RunPending = %d, want 2", n)
	}
	if len(got) != 2 || got[0] != "outer" || got[1] != "inner" {
		t.Errorf("got %v", got)
	}
}

func TestPost_Concurrent(t *testing.T) {
	l := New()
	const n = 100

	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			l.Post(func() {})
		}()
	}
	wg.Wait()

	if ran := l.RunPending(); ran != n {
		t.Errorf("RunPending = %d, want %d", ran, n)
	}
}

func TestRun_StopsOnCancel(t *testing.T) {
	l := New()
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- l.Run(ctx) }()

	ran := make(chan struct{})
	l.Post(func() { close(ran) })

	select {
	case <-ran:
	case <-time.After(5 * time.Second):
		t.Fatal("posted task did not run")
	}

	cancel()
	select {
	case err := <-done:
		if err != context.Canceled {
			t.Errorf("Run returned %v, want context.Canceled", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
