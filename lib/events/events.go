// Package events provides a minimal typed listener registry.
package events

type Listener[E any] func(E)

// Source fans events out to registered listeners in registration order.
// Registration and dispatch are expected to happen on one event loop, so
// there is no locking.
type Source[E any] struct {
	listeners []Listener[E]
}

func (s *Source[E]) Subscribe(l Listener[E]) {
	s.listeners = append(s.listeners, l)
}

func (s *Source[E]) Dispatch(e E) {
	for _, l := range s.listeners {
		l(e)
	}
}
