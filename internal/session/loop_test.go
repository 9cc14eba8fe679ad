package session

import (
	"context"
	"errors"
	"sync"
	"testing"
)

func TestLoopRunsInOrder(t *testing.T) {
	l := NewLoop(8)
	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() { errc <- l.Run(ctx) }()

	var got []int
	for i := 0; i < 20; i++ {
		if !l.Post(func() { got = append(got, i) }) {
			t.Fatalf("Post %d refused", i)
		}
	}
	if !l.Call(func() {}) {
		t.Fatal("Call refused")
	}
	for i, v := range got {
		if v != i {
			t.Fatalf("got %v, want ascending", got)
		}
	}
	if len(got) != 20 {
		t.Fatalf("ran %d closures", len(got))
	}

	cancel()
	if err := <-errc; !errors.Is(err, context.Canceled) {
		t.Fatalf("Run = %v", err)
	}
	if l.Post(func() {}) {
		t.Fatal("Post accepted after stop")
	}
	if l.Call(func() {}) {
		t.Fatal("Call succeeded after stop")
	}
}

func TestLoopSerialisesConcurrentPosts(t *testing.T) {
	l := NewLoop(1)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go l.Run(ctx)

	counter := 0
	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				l.Post(func() { counter++ })
			}
		}()
	}
	wg.Wait()

	var n int
	l.Call(func() { n = counter })
	if n != 800 {
		t.Fatalf("counter = %d, want 800", n)
	}
}
