package transport

import "sync"

// subscribers is a set of callbacks for one event family. emit calls them
// synchronously in registration order.
type subscribers[T any] struct {
	mu    sync.Mutex
	next  int
	order []int
	fns   map[int]func(T)
}

func (s *subscribers[T]) add(fn func(T)) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fns == nil {
		s.fns = make(map[int]func(T))
	}
	id := s.next
	s.next++
	s.fns[id] = fn
	s.order = append(s.order, id)

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			delete(s.fns, id)
			for i, v := range s.order {
				if v == id {
					s.order = append(s.order[:i], s.order[i+1:]...)
					break
				}
			}
		})
	}
}

func (s *subscribers[T]) emit(v T) {
	s.mu.Lock()
	fns := make([]func(T), 0, len(s.order))
	for _, id := range s.order {
		fns = append(fns, s.fns[id])
	}
	s.mu.Unlock()
	for _, fn := range fns {
		fn(v)
	}
}

func (s *subscribers[T]) len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.fns)
}
