package events

import (
	"sync"
	"testing"
	"time"

	"github.com/backscale/backscale/pkg/scaling"
)

func TestSubscribeReceivesPublished(t *testing.T) {
	h := NewHub()
	ch, cancel := h.Subscribe()
	defer cancel()

	h.Publish(scaling.TickResult{TickID: "abc", Status: scaling.StatusNoop})

	select {
	case res := <-ch:
		if res.TickID != "abc" {
			t.Fatalf("expected tick abc, got %s", res.TickID)
		}
	case <-time.After(time.Second):
		t.Fatalf("expected a delivered result")
	}
}

func TestCancelRemovesSubscriber(t *testing.T) {
	h := NewHub()
	_, cancel := h.Subscribe()
	if h.Count() != 1 {
		t.Fatalf("expected 1 subscriber, got %d", h.Count())
	}
	cancel()
	cancel() // idempotent
	if h.Count() != 0 {
		t.Fatalf("expected 0 subscribers after cancel, got %d", h.Count())
	}
}

func TestPublishNeverBlocks(t *testing.T) {
	h := NewHub()
	_, cancel := h.Subscribe()
	defer cancel()

	// Overfill the subscriber buffer; publishes must drop, not stall.
	done := make(chan struct{})
	go func() {
		for i := 0; i < subscriberBuffer*2; i++ {
			h.Publish(scaling.TickResult{Status: scaling.StatusNoop})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("publish blocked on a slow subscriber")
	}
}

func TestPublishDuringCancelDoesNotPanic(t *testing.T) {
	// Watchers disconnect while the tick loop is publishing; a publish must
	// never land on a channel a concurrent cancel has closed.
	h := NewHub()

	stop := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-stop:
				return
			default:
				h.Publish(scaling.TickResult{Status: scaling.StatusNoop})
			}
		}
	}()

	for i := 0; i < 500; i++ {
		ch, cancel := h.Subscribe()
		go func() {
			for range ch {
			}
		}()
		cancel()
	}

	close(stop)
	wg.Wait()
	if h.Count() != 0 {
		t.Fatalf("expected no subscribers left, got %d", h.Count())
	}
}

func TestPublishToMultipleSubscribers(t *testing.T) {
	h := NewHub()
	a, cancelA := h.Subscribe()
	b, cancelB := h.Subscribe()
	defer cancelA()
	defer cancelB()

	h.Publish(scaling.TickResult{TickID: "t1"})

	for _, ch := range []<-chan scaling.TickResult{a, b} {
		select {
		case res := <-ch:
			if res.TickID != "t1" {
				t.Fatalf("expected t1, got %s", res.TickID)
			}
		case <-time.After(time.Second):
			t.Fatalf("subscriber missed the result")
		}
	}
}
