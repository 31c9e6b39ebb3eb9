package eventbus

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPublishNoSubscribersIsNoop(t *testing.T) {
	b := New(0)
	assert.NotPanics(t, func() {
		b.Publish(Event{Type: RunStarted, RunID: "r1"})
	})
}

func TestSubscribeReceivesInOrder(t *testing.T) {
	b := New(0)
	sub := b.Subscribe()
	defer sub.Close()

	b.Publish(Event{Type: RunStarted, RunID: "r1"})
	b.Publish(Event{Type: StepStarted, RunID: "r1", StepIndex: 0})
	b.Publish(Event{Type: RunFinished, RunID: "r1"})

	want := []Type{RunStarted, StepStarted, RunFinished}
	for _, w := range want {
		select {
		case e := <-sub.Events:
			assert.Equal(t, w, e.Type)
		case <-time.After(time.Second):
			t.Fatalf("timed out waiting for %s", w)
		}
	}
}

func TestMultipleSubscribersEachSeeFullStream(t *testing.T) {
	b := New(0)
	sub1 := b.Subscribe()
	sub2 := b.Subscribe()
	defer sub1.Close()
	defer sub2.Close()

	b.Publish(Event{Type: RunStarted, RunID: "r1"})

	for _, sub := range []*Subscription{sub1, sub2} {
		select {
		case e := <-sub.Events:
			assert.Equal(t, RunStarted, e.Type)
		case <-time.After(time.Second):
			t.Fatal("timed out")
		}
	}
}

func TestLaggingSubscriberGetsLagNotification(t *testing.T) {
	b := New(2) // tiny buffer to force overflow
	sub := b.Subscribe()
	defer sub.Close()

	// Fill the buffer, then overflow it without draining: two events
	// buffer, eight drop and accrue as lag.
	for i := 0; i < 10; i++ {
		b.Publish(Event{Type: Custom, RunID: "r1", Name: "tick"})
	}

	// Drain the buffered events so the subscriber catches up.
	for i := 0; i < 2; i++ {
		select {
		case <-sub.Events:
		case <-time.After(time.Second):
			t.Fatal("timed out draining buffered events")
		}
	}

	// The next successful send flushes the lag count first, in place of
	// the data that was dropped.
	b.Publish(Event{Type: Custom, RunID: "r1", Name: "tick"})

	select {
	case e := <-sub.Events:
		require.Equal(t, Lag, e.Type)
		assert.Equal(t, 8, e.LagCount)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for lag notification")
	}

	select {
	case e := <-sub.Events:
		assert.Equal(t, Custom, e.Type)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for the event after the lag notification")
	}
}

func TestUnsubscribeClosesChannel(t *testing.T) {
	b := New(0)
	sub := b.Subscribe()
	assert.Equal(t, 1, b.SubscriberCount())
	sub.Close()
	assert.Equal(t, 0, b.SubscriberCount())

	_, ok := <-sub.Events
	assert.False(t, ok, "channel should be closed after unsubscribe")
}

func TestCloseIsIdempotent(t *testing.T) {
	b := New(0)
	sub := b.Subscribe()
	assert.NotPanics(t, func() {
		sub.Close()
		sub.Close()
	})
}

func TestCloseDuringPublishDoesNotPanic(t *testing.T) {
	// A subscribe-stream client disconnecting mid-run closes its
	// subscription while the agent loop is still publishing from
	// another goroutine. That interleaving must never panic.
	b := New(1) // tiny buffer keeps the send path busy

	var wg sync.WaitGroup
	for round := 0; round < 50; round++ {
		sub := b.Subscribe()

		wg.Add(2)
		go func() {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				b.Publish(Event{Type: Custom, RunID: "race", Name: "tick"})
			}
		}()
		go func() {
			defer wg.Done()
			sub.Close()
		}()
		wg.Wait()
	}
}

func TestPublishAfterCloseIsDropped(t *testing.T) {
	b := New(0)
	sub := b.Subscribe()
	sub.Close()

	assert.NotPanics(t, func() {
		b.Publish(Event{Type: RunStarted, RunID: "r1"})
	})
}
