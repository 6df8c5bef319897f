package auth

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBroadcasterFanOut(t *testing.T) {
	b := NewBroadcaster(nil)
	first := b.Subscribe(1)
	second := b.Subscribe(1)
	assert.Equal(t, 2, b.Len())

	b.Publish(Event{Kind: EventSignedIn})

	assert.Equal(t, EventSignedIn, (<-first.C).Kind)
	assert.Equal(t, EventSignedIn, (<-second.C).Kind)
}

func TestBroadcasterDropsWhenFull(t *testing.T) {
	b := NewBroadcaster(nil)
	sub := b.Subscribe(1)

	b.Publish(Event{Kind: EventSignedIn})
	b.Publish(Event{Kind: EventSignedOut})

	assert.Equal(t, EventSignedIn, (<-sub.C).Kind)
	select {
	case ev := <-sub.C:
		t.Fatalf("unexpected event %s", ev.Kind)
	default:
	}
}

func TestBroadcasterUnsubscribeClosesChannel(t *testing.T) {
	b := NewBroadcaster(nil)
	sub := b.Subscribe(1)

	b.Unsubscribe(sub)
	b.Unsubscribe(sub)

	_, open := <-sub.C
	assert.False(t, open)
	assert.Equal(t, 0, b.Len())
}

func TestBroadcasterClose(t *testing.T) {
	b := NewBroadcaster(nil)
	sub := b.Subscribe(1)
	b.Close()

	_, open := <-sub.C
	assert.False(t, open)

	late := b.Subscribe(1)
	_, open = <-late.C
	assert.False(t, open)

	b.Publish(Event{Kind: EventSignedIn})
}
