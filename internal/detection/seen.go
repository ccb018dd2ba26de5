package detection

import (
	"container/list"
	"sync"
)

// SeenSet is a bounded LRU set of mint addresses.
type SeenSet struct {
	mu       sync.Mutex
	capacity int
	order    *list.List
	items    map[string]*list.Element
}

func NewSeenSet(capacity int) *SeenSet {
	if capacity <= 0 {
		capacity = 1
	}
	return &SeenSet{
		capacity: capacity,
		order:    list.New(),
		items:    make(map[string]*list.Element, capacity),
	}
}

// Add inserts mint and reports whether it was new. A repeat refreshes recency.
func (s *SeenSet) Add(mint string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if el, ok := s.items[mint]; ok {
		s.order.MoveToFront(el)
		return false
	}
	if s.order.Len() >= s.capacity {
		if oldest := s.order.Back(); oldest != nil {
			s.order.Remove(oldest)
			delete(s.items, oldest.Value.(string))
		}
	}
	s.items[mint] = s.order.PushFront(mint)
	return true
}

func (s *SeenSet) Contains(mint string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.items[mint]
	return ok
}

func (s *SeenSet) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.order.Len()
}
