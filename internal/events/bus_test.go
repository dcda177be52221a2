package events

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func receive(t *testing.T, s *Subscription) Event {
	t.Helper()
	select {
	case e, ok := <-s.C():
		require.True(t, ok, "subscription closed")
		return e
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
		return Event{}
	}
}

func TestBus_DeliversInPublishOrder(t *testing.T) {
	bus := NewBus()
	defer bus.Close()
	sub := bus.Subscribe()

	for i := 0; i < 100; i++ {
		bus.Publish(Event{Type: JobAdded, JobID: fmt.Sprintf("job-%03d", i)})
	}
	for i := 0; i < 100; i++ {
		assert.Equal(t, fmt.Sprintf("job-%03d", i), receive(t, sub).JobID)
	}
}

func TestBus_FiltersByType(t *testing.T) {
	bus := NewBus()
	defer bus.Close()
	sub := bus.Subscribe(JobFailed)

	bus.Publish(Event{Type: JobAdded, JobID: "a"})
	bus.Publish(Event{Type: JobFailed, JobID: "b"})

	assert.Equal(t, "b", receive(t, sub).JobID)
}

func TestBus_PublishNeverBlocks(t *testing.T) {
	bus := NewBus()
	defer bus.Close()
	_ = bus.Subscribe() // never read

	done := make(chan struct{})
	go func() {
		for i := 0; i < 10000; i++ {
			bus.Publish(Event{Type: JobAdded})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("publish blocked on a slow subscriber")
	}
}

func TestBus_PerJobOrderingAcrossPublishers(t *testing.T) {
	bus := NewBus()
	defer bus.Close()
	sub := bus.Subscribe()

	var wg sync.WaitGroup
	for j := 0; j < 10; j++ {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			for _, typ := range []Type{JobAdded, JobStarted, JobCompleted} {
				bus.Publish(Event{Type: typ, JobID: id})
			}
		}(fmt.Sprintf("job-%d", j))
	}
	wg.Wait()

	seen := map[string][]Type{}
	for i := 0; i < 30; i++ {
		e := receive(t, sub)
		seen[e.JobID] = append(seen[e.JobID], e.Type)
	}
	for id, types := range seen {
		assert.Equal(t, []Type{JobAdded, JobStarted, JobCompleted}, types, id)
	}
}

func TestSubscription_Close(t *testing.T) {
	bus := NewBus()
	defer bus.Close()
	sub := bus.Subscribe()
	sub.Close()
	sub.Close()

	_, ok := <-sub.C()
	assert.False(t, ok)

	bus.Publish(Event{Type: JobAdded}) // no subscriber left, no panic
}

func TestBus_CloseEndsSubscriptions(t *testing.T) {
	bus := NewBus()
	sub := bus.Subscribe()
	bus.Close()

	_, ok := <-sub.C()
	assert.False(t, ok)

	late := bus.Subscribe()
	_, ok = <-late.C()
	assert.False(t, ok)
}
