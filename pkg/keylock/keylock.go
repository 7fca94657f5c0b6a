// Package keylock 提供按键加锁的互斥量，不同键之间互不阻塞。
package keylock

import "sync"

type entry struct {
	mu   sync.Mutex
	refs int
}

// Map 按键加锁。零值可直接使用。
type Map[K comparable] struct {
	mu    sync.Mutex
	locks map[K]*entry
}

// Lock 获取 key 对应的锁，返回释放函数。未被引用的键会被回收。
func (m *Map[K]) Lock(key K) (unlock func()) {
	m.mu.Lock()
	if m.locks == nil {
		m.locks = make(map[K]*entry)
	}
	e, ok := m.locks[key]
	if !ok {
		e = &entry{}
		m.locks[key] = e
	}
	e.refs++
	m.mu.Unlock()

	e.mu.Lock()
	return func() {
		e.mu.Unlock()
		m.mu.Lock()
		e.refs--
		if e.refs == 0 {
			delete(m.locks, key)
		}
		m.mu.Unlock()
	}
}

// Len 返回当前持有或等待中的键数量。
func (m *Map[K]) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.locks)
}
