package session

import (
	"sync"

	"github.com/agroscan/agroscan-core/src/models"
)

// subscriberBuffer bounds each subscriber channel. A subscriber that falls
// this far behind loses its oldest updates but always ends on the latest
// value.
const subscriberBuffer = 16

// State holds the current signed-in user and fans changes out to
// subscribers. A new subscriber immediately receives the latest value;
// subsequent values arrive in the order they were set.
type State struct {
	mu      sync.Mutex
	current *models.UserProfile
	subs    map[int]chan *models.UserProfile
	nextID  int
}

func New() *State {
	return &State{
		subs: make(map[int]chan *models.UserProfile),
	}
}

// Set publishes the signed-in user to all subscribers. nil means signed out.
func (s *State) Set(profile *models.UserProfile) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.current = profile
	for _, ch := range s.subs {
		s.send(ch, profile)
	}
}

// Current returns the most recently set value without subscribing.
func (s *State) Current() *models.UserProfile {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

// Subscribe registers an observer. The returned channel first delivers the
// current value, then every later Set in order. The cancel func detaches the
// observer and closes the channel; it is safe to call more than once.
func (s *State) Subscribe() (<-chan *models.UserProfile, func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.nextID
	s.nextID++

	ch := make(chan *models.UserProfile, subscriberBuffer)
	ch <- s.current
	s.subs[id] = ch

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			delete(s.subs, id)
			close(ch)
		})
	}

	return ch, cancel
}

// send never blocks: Set is the only writer and it holds the lock, so after
// evicting the oldest buffered value there is always room for the new one.
func (s *State) send(ch chan *models.UserProfile, profile *models.UserProfile) {
	select {
	case ch <- profile:
	default:
		select {
		case <-ch:
		default:
		}
		ch <- profile
	}
}
