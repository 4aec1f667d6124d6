package session

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agroscan/agroscan-core/src/models"
)

func receive(t *testing.T, ch <-chan *models.UserProfile) *models.UserProfile {
	t.Helper()
	select {
	case p := <-ch:
		return p
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for session update")
		return nil
	}
}

func TestState_ReplaysLatestOnSubscribe(t *testing.T) {
	s := New()
	s.Set(&models.UserProfile{Email: "a@b.com"})

	ch, cancel := s.Subscribe()
	defer cancel()

	got := receive(t, ch)
	require.NotNil(t, got)
	assert.Equal(t, "a@b.com", got.Email)
}

func TestState_ReplaysNilWhenSignedOut(t *testing.T) {
	s := New()

	ch, cancel := s.Subscribe()
	defer cancel()

	assert.Nil(t, receive(t, ch))
}

func TestState_DeliversInOrder(t *testing.T) {
	s := New()

	ch, cancel := s.Subscribe()
	defer cancel()
	receive(t, ch) // initial replay

	s.Set(&models.UserProfile{Email: "first@b.com"})
	s.Set(&models.UserProfile{Email: "second@b.com"})
	s.Set(nil)

	assert.Equal(t, "first@b.com", receive(t, ch).Email)
	assert.Equal(t, "second@b.com", receive(t, ch).Email)
	assert.Nil(t, receive(t, ch))
}

func TestState_MultipleSubscribers(t *testing.T) {
	s := New()

	ch1, cancel1 := s.Subscribe()
	defer cancel1()
	ch2, cancel2 := s.Subscribe()
	receive(t, ch1)
	receive(t, ch2)

	s.Set(&models.UserProfile{Email: "a@b.com"})
	assert.Equal(t, "a@b.com", receive(t, ch1).Email)
	assert.Equal(t, "a@b.com", receive(t, ch2).Email)

	// Detaching one observer must not affect the other.
	cancel2()
	s.Set(&models.UserProfile{Email: "c@d.com"})
	assert.Equal(t, "c@d.com", receive(t, ch1).Email)
}

func TestState_CancelTwiceIsSafe(t *testing.T) {
	s := New()

	_, cancel := s.Subscribe()
	cancel()
	cancel()

	s.Set(&models.UserProfile{Email: "a@b.com"})
	assert.Equal(t, "a@b.com", s.Current().Email)
}

func TestState_SlowSubscriberKeepsLatest(t *testing.T) {
	s := New()

	ch, cancel := s.Subscribe()
	defer cancel()

	// Overflow the buffer without draining; the latest value must survive.
	for i := 0; i < subscriberBuffer*2; i++ {
		s.Set(&models.UserProfile{Email: "stale@b.com"})
	}
	s.Set(&models.UserProfile{Email: "latest@b.com"})

	var last *models.UserProfile
	for {
		select {
		case p := <-ch:
			last = p
			continue
		default:
		}
		break
	}

	require.NotNil(t, last)
	assert.Equal(t, "latest@b.com", last.Email)
}

func TestState_CurrentSnapshot(t *testing.T) {
	s := New()
	assert.Nil(t, s.Current())

	s.Set(&models.UserProfile{Email: "a@b.com"})
	assert.Equal(t, "a@b.com", s.Current().Email)

	s.Set(nil)
	assert.Nil(t, s.Current())
}
