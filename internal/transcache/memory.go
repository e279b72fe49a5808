package transcache

import (
	"container/list"
	"context"
	"sync"

	"subburn/internal/transcript"
)

// Memory is an in-process LRU cache. A capacity of zero or less is
// unbounded.
type Memory struct {
	mu       sync.Mutex
	capacity int
	order    *list.List
	items    map[string]*list.Element
}

type memoryItem struct {
	key   string
	value transcript.Transcription
}

// NewMemory returns an empty Memory cache.
func NewMemory(capacity int) *Memory {
	return &Memory{
		capacity: capacity,
		order:    list.New(),
		items:    make(map[string]*list.Element),
	}
}

func (m *Memory) Get(_ context.Context, fp string) (transcript.Transcription, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	el, ok := m.items[fp]
	if !ok {
		return transcript.Transcription{}, false, nil
	}
	m.order.MoveToFront(el)
	return el.Value.(*memoryItem).value, true, nil
}

// Put stores t unless fp is already present.
func (m *Memory) Put(_ context.Context, fp string, t transcript.Transcription) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if el, ok := m.items[fp]; ok {
		m.order.MoveToFront(el)
		return nil
	}
	m.items[fp] = m.order.PushFront(&memoryItem{key: fp, value: t})
	for m.capacity > 0 && m.order.Len() > m.capacity {
		oldest := m.order.Back()
		m.order.Remove(oldest)
		delete(m.items, oldest.Value.(*memoryItem).key)
	}
	return nil
}

// Remove drops fp if present.
func (m *Memory) Remove(fp string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if el, ok := m.items[fp]; ok {
		m.order.Remove(el)
		delete(m.items, fp)
	}
}

// Len returns the number of stored entries.
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.order.Len()
}
