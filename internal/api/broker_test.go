package api

import (
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
)

func TestBrokerFanOut(t *testing.T) {
	b := NewBroker()
	ch1 := b.Subscribe("run-1")
	ch2 := b.Subscribe("run-1")
	other := b.Subscribe("run-2")

	b.Publish("run-1", SSEEvent{Type: "run.progress", Data: map[string]any{"reward": 10.0}})

	for i, ch := range []chan SSEEvent{ch1, ch2} {
		select {
		case evt := <-ch:
			if evt.Type != "run.progress" {
				t.Fatalf("sub %d: unexpected type %s", i, evt.Type)
			}
		case <-time.After(time.Second):
			t.Fatalf("sub %d: no event", i)
		}
	}
	select {
	case evt := <-other:
		t.Fatalf("run-2 subscriber got event %v", evt)
	default:
	}

	b.Unsubscribe("run-1", ch1)
	if _, ok := <-ch1; ok {
		t.Fatal("expected closed channel after unsubscribe")
	}
	b.Unsubscribe("run-1", ch2)
	b.Unsubscribe("run-2", other)
}

func TestBrokerDropsWhenSubscriberIsFull(t *testing.T) {
	b := NewBroker()
	ch := b.Subscribe("run-1")
	// Fill the buffer and keep publishing; the publisher must not block.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 100; i++ {
			b.Publish("run-1", SSEEvent{Type: "run.progress"})
		}
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("publish blocked on a slow subscriber")
	}
	b.Unsubscribe("run-1", ch)
}

func TestRedisBrokerRoundTrip(t *testing.T) {
	mr := miniredis.RunT(t)
	b, err := NewRedisBroker("redis://" + mr.Addr())
	if err != nil {
		t.Fatal(err)
	}

	ch := b.Subscribe("run-1")
	b.Publish("run-1", SSEEvent{Type: "run.completed", Data: map[string]any{"runId": "run-1"}})

	select {
	case evt := <-ch:
		if evt.Type != "run.completed" {
			t.Fatalf("unexpected type %s", evt.Type)
		}
		if evt.Data["runId"] != "run-1" {
			t.Fatalf("unexpected data %v", evt.Data)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no event from redis broker")
	}

	b.Unsubscribe("run-1", ch)
	select {
	case _, ok := <-ch:
		if ok {
			t.Fatal("expected channel to close after unsubscribe")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("channel not closed after unsubscribe")
	}
}
