package services

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestEventBus_PubSub(t *testing.T) {
	bus := NewEventBus(testLogger())

	runID := "run-123"

	ch, unsub := bus.Subscribe(runID)
	defer unsub()

	event := Event{
		RunID:     runID,
		Type:      EventTypePhase,
		Data:      `{"phase":"generating"}`,
		Timestamp: time.Now().UnixMilli(),
	}
	bus.Publish(event)

	select {
	case received := <-ch:
		assert.Equal(t, event.RunID, received.RunID)
		assert.Equal(t, event.Data, received.Data)
	case <-time.After(1 * time.Second):
		t.Fatal("timed out waiting for event")
	}
}

func TestEventBus_Unsubscribe(t *testing.T) {
	bus := NewEventBus(testLogger())
	runID := "run-456"

	ch, unsub := bus.Subscribe(runID)
	unsub()

	bus.Publish(Event{RunID: runID, Type: EventTypeDraft, Data: "should not receive"})

	// Unsubscribe closes the channel.
	select {
	case e, ok := <-ch:
		if ok {
			t.Fatalf("received event after unsubscribe: %v", e)
		}
	case <-time.After(100 * time.Millisecond):
		t.Fatal("channel not closed after unsubscribe")
	}
}

func TestEventBus_MultipleSubscribers(t *testing.T) {
	bus := NewEventBus(testLogger())
	runID := "run-multi"

	ch1, unsub1 := bus.Subscribe(runID)
	defer unsub1()
	ch2, unsub2 := bus.Subscribe(runID)
	defer unsub2()

	bus.Publish(Event{RunID: runID, Data: "broadcast"})

	timeout := time.After(1 * time.Second)

	got1 := false
	got2 := false

	for i := 0; i < 2; i++ {
		select {
		case <-ch1:
			got1 = true
		case <-ch2:
			got2 = true
		case <-timeout:
			t.Fatal("timeout")
		}
	}

	assert.True(t, got1)
	assert.True(t, got2)
}

func TestEventBus_IsolatedByRun(t *testing.T) {
	bus := NewEventBus(testLogger())

	chA, unsubA := bus.Subscribe("run-a")
	defer unsubA()

	bus.Publish(Event{RunID: "run-b", Data: "other run"})

	select {
	case e := <-chA:
		t.Fatalf("received event for another run: %v", e)
	case <-time.After(50 * time.Millisecond):
	}
}
