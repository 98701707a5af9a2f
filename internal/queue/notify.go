package queue

import "sync"

// notifier is a minimal per-store observer list. Notifications carry no
// payload; listeners re-query the store for the current backlog.
type notifier struct {
	mu        sync.Mutex
	listeners map[int]func()
	nextID    int
}

// subscribe registers a listener and returns a function that removes it.
func (n *notifier) subscribe(fn func()) func() {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.listeners == nil {
		n.listeners = make(map[int]func())
	}
	id := n.nextID
	n.nextID++
	n.listeners[id] = fn

	return func() {
		n.mu.Lock()
		defer n.mu.Unlock()
		delete(n.listeners, id)
	}
}

// publish invokes every registered listener.
func (n *notifier) publish() {
	n.mu.Lock()
	fns := make([]func(), 0, len(n.listeners))
	for _, fn := range n.listeners {
		fns = append(fns, fn)
	}
	n.mu.Unlock()

	for _, fn := range fns {
		fn()
	}
}
