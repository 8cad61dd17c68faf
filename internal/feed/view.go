package feed

import (
	"sync"
	"time"

	"github.com/TimBasler1996/Melora-sub001/internal/broadcast"
	"github.com/TimBasler1996/Melora-sub001/internal/geo"
)

// View is an immutable snapshot of the visible set.
// Items is shared between readers and must not be modified.
type View struct {
	Items      []broadcast.Enriched
	Err        error
	Location   *geo.Point
	Generation uint64
	UpdatedAt  time.Time
}

// Len returns the number of visible broadcasts.
func (v View) Len() int {
	return len(v.Items)
}

// Contains reports whether the broadcast with id is visible.
func (v View) Contains(id string) bool {
	for _, it := range v.Items {
		if it.ID == id {
			return true
		}
	}
	return false
}

// Find returns the visible broadcast with id.
func (v View) Find(id string) (broadcast.Enriched, bool) {
	for _, it := range v.Items {
		if it.ID == id {
			return it, true
		}
	}
	return broadcast.Enriched{}, false
}

// publisher stores the latest View and fans it out to subscribers.
// Each subscriber channel holds at most one View; a slow reader only ever
// misses intermediate views, never the latest one.
type publisher struct {
	mu   sync.RWMutex
	view View

	subsMu sync.Mutex
	nextID int
	subs   map[int]chan View
}

func newPublisher() *publisher {
	return &publisher{subs: make(map[int]chan View)}
}

func (p *publisher) current() View {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.view
}

func (p *publisher) publish(v View) {
	p.mu.Lock()
	p.view = v
	p.mu.Unlock()

	p.subsMu.Lock()
	defer p.subsMu.Unlock()
	for _, ch := range p.subs {
		offerLatest(ch, v)
	}
}

func (p *publisher) subscribe() (<-chan View, func()) {
	ch := make(chan View, 1)

	p.subsMu.Lock()
	id := p.nextID
	p.nextID++
	p.subs[id] = ch
	ch <- p.current()
	p.subsMu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			p.subsMu.Lock()
			delete(p.subs, id)
			close(ch)
			p.subsMu.Unlock()
		})
	}
	return ch, cancel
}

func (p *publisher) subscriberCount() int {
	p.subsMu.Lock()
	defer p.subsMu.Unlock()
	return len(p.subs)
}

// offerLatest replaces any undelivered view in ch with v.
func offerLatest(ch chan View, v View) {
	select {
	case <-ch:
	default:
	}
	select {
	case ch <- v:
	default:
	}
}
