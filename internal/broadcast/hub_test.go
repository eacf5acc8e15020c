package broadcast

import (
	"testing"
	"time"

	"github.com/rs/zerolog"

	"printproof/internal/domain"
)

func recvEvent(t *testing.T, sub *Subscription) domain.ProgressEvent {
	t.Helper()
	select {
	case ev, ok := <-sub.C:
		if !ok {
			t.Fatal("subscription closed unexpectedly")
		}
		return ev
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
	}
	return domain.ProgressEvent{}
}

func recvClosed(t *testing.T, sub *Subscription) {
	t.Helper()
	select {
	case _, ok := <-sub.C:
		if ok {
			t.Fatal("expected closed channel, got event")
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for channel close")
	}
}

func TestHubDeliversToJobSubscribers(t *testing.T) {
	hub := NewHub(zerolog.Nop(), 4)
	subA, cancelA := hub.Subscribe("job-1")
	defer cancelA()
	subB, cancelB := hub.Subscribe("job-1")
	defer cancelB()
	other, cancelOther := hub.Subscribe("job-2")
	defer cancelOther()

	hub.Publish("job-1", domain.NewProgress(1, "converting master", 5))

	for _, sub := range []*Subscription{subA, subB} {
		ev := recvEvent(t, sub)
		if ev.Stage != 1 || ev.Percent != 5 {
			t.Fatalf("event = %+v", ev)
		}
	}

	select {
	case ev := <-other.C:
		t.Fatalf("job-2 subscriber received job-1 event: %+v", ev)
	default:
	}
}

func TestHubNoReplayForLateSubscribers(t *testing.T) {
	hub := NewHub(zerolog.Nop(), 4)

	hub.Publish("job-1", domain.NewProgress(1, "converting master", 5))

	sub, cancel := hub.Subscribe("job-1")
	defer cancel()

	select {
	case ev := <-sub.C:
		t.Fatalf("late subscriber received replayed event: %+v", ev)
	default:
	}

	hub.Publish("job-1", domain.NewProgress(2, "converting sample", 15))
	if ev := recvEvent(t, sub); ev.Stage != 2 {
		t.Fatalf("event = %+v", ev)
	}
}

func TestHubTerminalEventClosesTopic(t *testing.T) {
	hub := NewHub(zerolog.Nop(), 4)
	sub, cancel := hub.Subscribe("job-1")
	defer cancel()

	hub.Publish("job-1", domain.NewDone())

	ev := recvEvent(t, sub)
	if ev.Kind != domain.ProgressKindDone {
		t.Fatalf("Kind = %q, want done", ev.Kind)
	}
	recvClosed(t, sub)

	if n := hub.SubscriberCount("job-1"); n != 0 {
		t.Fatalf("SubscriberCount = %d, want 0", n)
	}
	if n := hub.TopicCount(); n != 0 {
		t.Fatalf("TopicCount = %d, want 0", n)
	}
}

func TestHubDropsSlowSubscriber(t *testing.T) {
	hub := NewHub(zerolog.Nop(), 1)
	slow, cancelSlow := hub.Subscribe("job-1")
	defer cancelSlow()
	fast, cancelFast := hub.Subscribe("job-1")
	defer cancelFast()

	// Nobody drains slow, so its single-slot buffer fills on the first
	// publish and the second publish evicts it.
	hub.Publish("job-1", domain.NewProgress(1, "a", 5))
	hub.Publish("job-1", domain.NewProgress(2, "b", 15))

	if ev := recvEvent(t, fast); ev.Stage != 1 {
		t.Fatalf("fast first event = %+v", ev)
	}
	if ev := recvEvent(t, fast); ev.Stage != 2 {
		t.Fatalf("fast second event = %+v", ev)
	}

	// Slow still has the buffered first event, then its channel closes.
	if ev := recvEvent(t, slow); ev.Stage != 1 {
		t.Fatalf("slow buffered event = %+v", ev)
	}
	recvClosed(t, slow)

	if n := hub.SubscriberCount("job-1"); n != 1 {
		t.Fatalf("SubscriberCount = %d, want 1", n)
	}
}

func TestHubUnsubscribeRemovesEmptyTopic(t *testing.T) {
	hub := NewHub(zerolog.Nop(), 4)
	sub, cancel := hub.Subscribe("job-1")

	cancel()
	recvClosed(t, sub)
	// A second cancel is a no-op.
	cancel()

	if n := hub.TopicCount(); n != 0 {
		t.Fatalf("TopicCount = %d, want 0", n)
	}

	// Publishing to the empty topic is a harmless no-op.
	hub.Publish("job-1", domain.NewProgress(1, "a", 5))
}

func TestHubPublishAfterTerminalReachesNobody(t *testing.T) {
	hub := NewHub(zerolog.Nop(), 4)
	sub, cancel := hub.Subscribe("job-1")
	defer cancel()

	hub.Publish("job-1", domain.NewError("boom"))

	ev := recvEvent(t, sub)
	if ev.Kind != domain.ProgressKindError || ev.Message != "boom" {
		t.Fatalf("event = %+v", ev)
	}
	recvClosed(t, sub)

	// The topic is gone; a straggling publish must not panic.
	hub.Publish("job-1", domain.NewProgress(6, "late", 85))
}
