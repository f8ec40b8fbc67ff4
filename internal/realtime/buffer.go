package realtime

import "sync"

type message struct {
	event Event
	prev  *message
}

// buffer is an unbounded FIFO between the socket reader and the dispatcher,
// so a slow handler never stalls heartbeats.
type buffer struct {
	lock   sync.Mutex
	head   *message
	tail   *message
	size   int
	notify chan struct{}
}

func newBuffer() *buffer {
	return &buffer{notify: make(chan struct{}, 1)}
}

func (b *buffer) PushBack(e Event) {
	b.lock.Lock()
	msg := &message{event: e}
	if b.head == nil {
		b.head = msg
		b.tail = msg
	} else {
		b.tail.prev = msg
		b.tail = msg
	}
	b.size++
	b.lock.Unlock()

	select {
	case b.notify <- struct{}{}:
	default:
	}
}

func (b *buffer) Pop() (Event, bool) {
	b.lock.Lock()
	defer b.lock.Unlock()

	if b.head == nil {
		return Event{}, false
	}
	tmp := b.head
	if b.head.prev != nil {
		b.head = b.head.prev
	} else {
		// removing the last one
		b.head = nil
		b.tail = nil
	}
	b.size--
	return tmp.event, true
}

func (b *buffer) Size() int {
	b.lock.Lock()
	defer b.lock.Unlock()
	return b.size
}
