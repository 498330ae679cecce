package eventbus

import "testing"

func TestSubscribePrefixFilter(t *testing.T) {
	t.Parallel()

	b := New()
	funnel, unsubF := b.Subscribe("funnel.", 4)
	defer unsubF()
	all, unsubA := b.Subscribe("", 4)
	defer unsubA()

	b.Publish(Event{Type: "funnel.start"})
	b.Publish(Event{Type: "broadcast.done"})

	if len(funnel) != 1 {
		t.Fatalf("funnel subscriber got %d events, want 1", len(funnel))
	}
	if len(all) != 2 {
		t.Fatalf("catch-all subscriber got %d events, want 2", len(all))
	}
	e := <-funnel
	if e.Type != "funnel.start" || e.Time.IsZero() {
		t.Fatalf("unexpected event %+v", e)
	}
}

func TestPublishDropsWhenFull(t *testing.T) {
	t.Parallel()

	b := New()
	_, unsub := b.Subscribe("", 1)
	b.Publish(Event{Type: "a"})
	b.Publish(Event{Type: "b"})
	if b.Dropped() != 1 {
		t.Fatalf("dropped=%d want 1", b.Dropped())
	}
	unsub()
	unsub()
	b.Publish(Event{Type: "c"}) // no subscribers, no panic
}
