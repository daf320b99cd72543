package ptysession

import "testing"

func TestEmitter_PublishOutputReachesSubscribers(t *testing.T) {
	e := newEmitter()
	var got []byte
	e.subscribeOutput(func(data []byte, _ OutputEvent) { got = data })
	e.publishOutput([]byte("hi"), OutputEvent{Type: EventText})
	if string(got) != "hi" {
		t.Fatalf("expected subscriber to receive published bytes, got %q", got)
	}
}

func TestEmitter_DetachIsIdempotentAndStopsDelivery(t *testing.T) {
	e := newEmitter()
	calls := 0
	detach := e.subscribeOutput(func(_ []byte, _ OutputEvent) { calls++ })
	e.publishOutput([]byte("a"), OutputEvent{})
	detach()
	detach()
	e.publishOutput([]byte("b"), OutputEvent{})
	if calls != 1 {
		t.Fatalf("expected exactly 1 delivery before detach, got %d", calls)
	}
}

func TestEmitter_PublishExitReachesAllSubscribers(t *testing.T) {
	e := newEmitter()
	var a, b int
	e.subscribeExit(func(code int) { a = code })
	e.subscribeExit(func(code int) { b = code })
	e.publishExit(7)
	if a != 7 || b != 7 {
		t.Fatalf("expected both subscribers to see exit code 7, got a=%d b=%d", a, b)
	}
}
