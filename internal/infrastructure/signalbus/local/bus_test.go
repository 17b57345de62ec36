package local

import (
	"context"
	"testing"

	"github.com/GoBeromsu/My-awesome-RA/internal/core/domain"
)

func TestBusDeliversInSubscriptionOrder(t *testing.T) {
	bus := New()
	var got []string
	_, _ = bus.Subscribe(domain.SignalReferencesUpdated, func(_ context.Context, sig domain.Signal) {
		got = append(got, "first:"+sig.SessionID)
	})
	_, _ = bus.Subscribe(domain.SignalReferencesUpdated, func(_ context.Context, sig domain.Signal) {
		got = append(got, "second:"+sig.SessionID)
	})
	_, _ = bus.Subscribe(domain.SignalShowEvidencePanel, func(context.Context, domain.Signal) {
		got = append(got, "other")
	})

	for _, id := range []string{"a", "b"} {
		if err := bus.Publish(context.Background(), domain.Signal{Name: domain.SignalReferencesUpdated, SessionID: id}); err != nil {
			t.Fatalf("Publish() error = %v", err)
		}
	}

	want := []string{"first:a", "second:a", "first:b", "second:b"}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got %v, want %v", got, want)
		}
	}
}

func TestBusUnsubscribeIsIdempotent(t *testing.T) {
	bus := New()
	calls := 0
	unsubscribe, _ := bus.Subscribe(domain.SignalParagraphChanged, func(context.Context, domain.Signal) { calls++ })
	keep, _ := bus.Subscribe(domain.SignalParagraphChanged, func(context.Context, domain.Signal) {})
	defer keep()

	unsubscribe()
	unsubscribe()
	_ = bus.Publish(context.Background(), domain.Signal{Name: domain.SignalParagraphChanged})

	if calls != 0 {
		t.Fatalf("unsubscribed handler ran %d times", calls)
	}
	if n := bus.Subscribers(domain.SignalParagraphChanged); n != 1 {
		t.Fatalf("expected 1 subscriber, got %d", n)
	}
}

func TestBusAllowsPublishFromHandler(t *testing.T) {
	bus := New()
	var shown bool
	_, _ = bus.Subscribe(domain.SignalShowEvidencePanel, func(context.Context, domain.Signal) { shown = true })
	_, _ = bus.Subscribe(domain.SignalParagraphChanged, func(ctx context.Context, sig domain.Signal) {
		_ = bus.Publish(ctx, domain.Signal{Name: domain.SignalShowEvidencePanel, SessionID: sig.SessionID})
	})

	_ = bus.Publish(context.Background(), domain.Signal{Name: domain.SignalParagraphChanged, SessionID: "s"})
	if !shown {
		t.Fatal("nested publish was not delivered")
	}
}
