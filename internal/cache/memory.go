package cache

import (
	"container/list"
	"context"
	"sync"
	"time"
)

// Memory is an in-process LRU Store with TTL. It is the fallback when no
// Redis address is configured.
type Memory struct {
	capacity   int
	defaultTTL time.Duration
	now        func() time.Time

	mu    sync.Mutex
	items map[string]*entry
	order *list.List
}

type entry struct {
	key       string
	value     []byte
	expiresAt time.Time
	elem      *list.Element
}

// NewMemory returns a Memory store. capacity <= 0 defaults to 1024 and
// defaultTTL <= 0 to one minute.
func NewMemory(capacity int, defaultTTL time.Duration) *Memory {
	if capacity <= 0 {
		capacity = 1024
	}
	if defaultTTL <= 0 {
		defaultTTL = time.Minute
	}
	return &Memory{
		capacity:   capacity,
		defaultTTL: defaultTTL,
		now:        time.Now,
		items:      make(map[string]*entry),
		order:      list.New(),
	}
}

func (m *Memory) Get(_ context.Context, key string) ([]byte, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.items[key]
	if !ok {
		return nil, false, nil
	}
	if !m.now().Before(e.expiresAt) {
		m.remove(e)
		return nil, false, nil
	}
	m.order.MoveToFront(e.elem)
	return e.value, true, nil
}

func (m *Memory) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = m.defaultTTL
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	exp := m.now().Add(ttl)
	if e, ok := m.items[key]; ok {
		e.value, e.expiresAt = value, exp
		m.order.MoveToFront(e.elem)
		return nil
	}
	for len(m.items) >= m.capacity {
		oldest := m.order.Back()
		if oldest == nil {
			break
		}
		m.remove(oldest.Value.(*entry))
	}
	e := &entry{key: key, value: value, expiresAt: exp}
	e.elem = m.order.PushFront(e)
	m.items[key] = e
	return nil
}

func (m *Memory) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if e, ok := m.items[key]; ok {
		m.remove(e)
	}
	return nil
}

// Len reports the number of stored entries, expired ones included.
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.items)
}

// must hold mu
func (m *Memory) remove(e *entry) {
	m.order.Remove(e.elem)
	delete(m.items, e.key)
}
