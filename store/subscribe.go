package store

import (
	"context"

	"github.com/hazyhaar/lunexa/internal/watch"
)

// Subscribe registers for change notifications. A subscriber that falls
// behind by more than buffer notifications misses the excess; writers never
// block. cancel unregisters and closes the channel.
func (s *Store) Subscribe(buffer int) (<-chan Change, func()) {
	if buffer < 1 {
		buffer = 1
	}
	ch := make(chan Change, buffer)

	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.subs[id] = ch
	s.mu.Unlock()

	cancel := func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if c, ok := s.subs[id]; ok {
			close(c)
			delete(s.subs, id)
		}
	}
	return ch, cancel
}

func (s *Store) publish(c Change) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, ch := range s.subs {
		select {
		case ch <- c:
		default:
			s.logger.Debug("store: subscriber lagging, change dropped", "keys", c.Keys)
		}
	}
}

// Watch polls the database for commits made by other processes and
// publishes them as external changes. It blocks until ctx is cancelled.
func (s *Store) Watch(ctx context.Context) {
	w := watch.New(s.db, watch.Options{
		Interval: s.cfg.WatchInterval,
		Debounce: s.cfg.WatchDebounce,
		Logger:   s.logger,
	})
	w.OnChange(ctx, func() error {
		s.publish(Change{External: true})
		return nil
	})
}
