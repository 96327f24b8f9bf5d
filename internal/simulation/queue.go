package simulation

import "sync"

// EventQueue - неограниченная очередь событий: много производителей, один потребитель.
// Emit никогда не блокирует, поэтому воркеры не ждут медленного потребителя.
// После Close очередь отдаёт накопленные события и закрывает канал Events.
type EventQueue struct {
	mu     sync.Mutex
	items  []Event
	closed bool
	notify chan struct{}
	out    chan Event
}

// NewEventQueue создаёт очередь и запускает горутину доставки
func NewEventQueue() *EventQueue {
	q := &EventQueue{
		notify: make(chan struct{}, 1),
		out:    make(chan Event, 64),
	}
	go q.pump()
	return q
}

// Emit добавляет событие в очередь. События после Close отбрасываются.
func (q *EventQueue) Emit(ev Event) {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.items = append(q.items, ev)
	q.mu.Unlock()
	q.wake()
}

// Close завершает приём событий
func (q *EventQueue) Close() {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()
	q.wake()
}

// Events возвращает канал доставки; закрывается после Close и выдачи всех событий
func (q *EventQueue) Events() <-chan Event {
	return q.out
}

// Len возвращает количество ещё не переданных в канал событий
func (q *EventQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

func (q *EventQueue) wake() {
	select {
	case q.notify <- struct{}{}:
	default:
	}
}

func (q *EventQueue) pump() {
	defer close(q.out)
	for {
		q.mu.Lock()
		if len(q.items) == 0 {
			closed := q.closed
			q.mu.Unlock()
			if closed {
				return
			}
			<-q.notify
			continue
		}
		batch := q.items
		q.items = nil
		q.mu.Unlock()

		for _, ev := range batch {
			q.out <- ev
		}
	}
}
