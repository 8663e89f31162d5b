package live

import (
	"context"
	"sync"
	"time"
)

// Change announces that a unit's requests changed. Subscribers re-query on
// every change, so a change carries no record data.
type Change struct {
	UnitID    string    `json:"unit_id"`
	RequestID string    `json:"request_id"`
	Kind      string    `json:"kind"`
	Version   int       `json:"version"`
	At        time.Time `json:"at"`
}

const (
	ChangeCreated = "created"
	ChangeUpdated = "updated"
)

// Notifier fans changes out to listeners of a unit.
type Notifier interface {
	Publish(ctx context.Context, change Change) error
	// Listen delivers changes for unitID until ctx is done or stop is
	// called. Bursts may be coalesced into a single delivery.
	Listen(ctx context.Context, unitID string) (changes <-chan Change, stop func(), err error)
}

// mailbox holds at most one value; a newer offer replaces an unread one.
type mailbox[T any] struct {
	mu sync.Mutex
	ch chan T
}

func newMailbox[T any]() *mailbox[T] {
	return &mailbox[T]{ch: make(chan T, 1)}
}

func (m *mailbox[T]) offer(v T) {
	m.mu.Lock()
	defer m.mu.Unlock()
	select {
	case <-m.ch:
	default:
	}
	m.ch <- v
}

// LocalNotifier delivers changes inside one process.
type LocalNotifier struct {
	mu        sync.Mutex
	next      int
	listeners map[string]map[int]*mailbox[Change]
}

func NewLocalNotifier() *LocalNotifier {
	return &LocalNotifier{listeners: make(map[string]map[int]*mailbox[Change])}
}

func (n *LocalNotifier) Publish(_ context.Context, change Change) error {
	n.mu.Lock()
	targets := make([]*mailbox[Change], 0, len(n.listeners[change.UnitID]))
	for _, box := range n.listeners[change.UnitID] {
		targets = append(targets, box)
	}
	n.mu.Unlock()

	for _, box := range targets {
		box.offer(change)
	}
	return nil
}

func (n *LocalNotifier) Listen(ctx context.Context, unitID string) (<-chan Change, func(), error) {
	box := newMailbox[Change]()

	n.mu.Lock()
	id := n.next
	n.next++
	if n.listeners[unitID] == nil {
		n.listeners[unitID] = make(map[int]*mailbox[Change])
	}
	n.listeners[unitID][id] = box
	n.mu.Unlock()

	var once sync.Once
	stop := func() {
		once.Do(func() {
			n.mu.Lock()
			defer n.mu.Unlock()
			delete(n.listeners[unitID], id)
			if len(n.listeners[unitID]) == 0 {
				delete(n.listeners, unitID)
			}
		})
	}
	go func() {
		<-ctx.Done()
		stop()
	}()
	return box.ch, stop, nil
}

// Listeners reports how many listeners are registered for unitID.
func (n *LocalNotifier) Listeners(unitID string) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.listeners[unitID])
}
