package docstore

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"
)

// Op identifies a store operation for error injection.
type Op string

// Operations that can be made to fail with Memory.FailNext.
const (
	OpGet    Op = "get"
	OpGetAll Op = "get_all"
	OpAdd    Op = "add"
	OpUpdate Op = "update"
	OpListen Op = "listen"
)

type failKey struct {
	op         Op
	collection string
}

// Memory is an in-memory Store. Used for testing and development.
// Thread-safe. Listeners are notified synchronously, in write order.
type Memory struct {
	// notifyMu serializes write+deliver so listeners observe snapshots in order.
	notifyMu sync.Mutex

	mu          sync.Mutex
	collections map[string]map[string]map[string]any
	listeners   map[string]map[*memoryListener]struct{}
	failures    map[failKey][]error
	docFailures map[string]error // collection/id -> error for Get
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		collections: make(map[string]map[string]map[string]any),
		listeners:   make(map[string]map[*memoryListener]struct{}),
		failures:    make(map[failKey][]error),
		docFailures: make(map[string]error),
	}
}

type memoryListener struct {
	store      *Memory
	collection string
	fn         ListenFunc

	mu      sync.Mutex
	stopped bool
}

func (l *memoryListener) deliver(docs []Document, err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.stopped {
		return
	}
	l.fn(docs, err)
	if err != nil {
		l.stopped = true
	}
}

// Stop ends the subscription.
func (l *memoryListener) Stop() {
	l.mu.Lock()
	l.stopped = true
	l.mu.Unlock()

	l.store.mu.Lock()
	delete(l.store.listeners[l.collection], l)
	l.store.mu.Unlock()
}

// FailNext makes the next call of op on collection return err.
// Multiple calls queue multiple failures.
func (m *Memory) FailNext(op Op, collection string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := failKey{op: op, collection: collection}
	m.failures[key] = append(m.failures[key], err)
}

// FailGet makes every Get of the given document return err until cleared with a nil err.
func (m *Memory) FailGet(collection, id string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := collection + "/" + id
	if err == nil {
		delete(m.docFailures, key)
		return
	}
	m.docFailures[key] = err
}

// BreakListeners delivers err to every listener of collection, ending those subscriptions.
func (m *Memory) BreakListeners(collection string, err error) {
	m.notifyMu.Lock()
	defer m.notifyMu.Unlock()

	m.mu.Lock()
	ls := m.listenersLocked(collection)
	delete(m.listeners, collection)
	m.mu.Unlock()

	for _, l := range ls {
		l.deliver(nil, err)
	}
}

// ListenerCount returns the number of active listeners on collection.
func (m *Memory) ListenerCount(collection string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.listeners[collection])
}

func (m *Memory) takeFailure(op Op, collection string) error {
	key := failKey{op: op, collection: collection}
	queue := m.failures[key]
	if len(queue) == 0 {
		return nil
	}
	err := queue[0]
	if len(queue) == 1 {
		delete(m.failures, key)
	} else {
		m.failures[key] = queue[1:]
	}
	return err
}

// Listen subscribes to collection and synchronously delivers the current set.
func (m *Memory) Listen(ctx context.Context, collection string, fn ListenFunc) (Listener, error) {
	if collection == "" {
		return nil, ErrEmptyCollection
	}
	if fn == nil {
		return nil, ErrNilListenFunc
	}

	m.notifyMu.Lock()
	defer m.notifyMu.Unlock()

	m.mu.Lock()
	if err := m.takeFailure(OpListen, collection); err != nil {
		m.mu.Unlock()
		return nil, err
	}
	l := &memoryListener{store: m, collection: collection, fn: fn}
	if m.listeners[collection] == nil {
		m.listeners[collection] = make(map[*memoryListener]struct{})
	}
	m.listeners[collection][l] = struct{}{}
	snapshot := m.snapshotLocked(collection)
	m.mu.Unlock()

	l.deliver(snapshot, nil)
	return l, nil
}

// GetAll returns every document in collection ordered by id.
func (m *Memory) GetAll(ctx context.Context, collection string) ([]Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if collection == "" {
		return nil, ErrEmptyCollection
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.takeFailure(OpGetAll, collection); err != nil {
		return nil, err
	}
	return m.snapshotLocked(collection), nil
}

// Get returns a single document.
func (m *Memory) Get(ctx context.Context, collection, id string) (Document, error) {
	if err := ctx.Err(); err != nil {
		return Document{}, err
	}
	if collection == "" {
		return Document{}, ErrEmptyCollection
	}
	if id == "" {
		return Document{}, ErrEmptyDocumentID
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.takeFailure(OpGet, collection); err != nil {
		return Document{}, err
	}
	if err := m.docFailures[collection+"/"+id]; err != nil {
		return Document{}, err
	}
	fields, ok := m.collections[collection][id]
	if !ok {
		return Document{}, ErrNotFound
	}
	return Document{ID: id, Fields: cloneFields(fields)}, nil
}

// Add stores a new document under a generated UUID.
func (m *Memory) Add(ctx context.Context, collection string, fields map[string]any) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if collection == "" {
		return "", ErrEmptyCollection
	}

	m.mu.Lock()
	err := m.takeFailure(OpAdd, collection)
	m.mu.Unlock()
	if err != nil {
		return "", err
	}

	id := uuid.New().String()
	m.write(collection, func() {
		m.collectionLocked(collection)[id] = cloneFields(fields)
	})
	return id, nil
}

// Update merges fields into an existing document.
func (m *Memory) Update(ctx context.Context, collection, id string, fields map[string]any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if collection == "" {
		return ErrEmptyCollection
	}
	if id == "" {
		return ErrEmptyDocumentID
	}

	m.mu.Lock()
	if err := m.takeFailure(OpUpdate, collection); err != nil {
		m.mu.Unlock()
		return err
	}
	_, ok := m.collections[collection][id]
	m.mu.Unlock()
	if !ok {
		return ErrNotFound
	}

	m.write(collection, func() {
		doc := m.collectionLocked(collection)[id]
		if doc == nil {
			doc = make(map[string]any, len(fields))
			m.collectionLocked(collection)[id] = doc
		}
		for k, v := range fields {
			doc[k] = v
		}
	})
	return nil
}

// Set creates or replaces the document with the given id.
func (m *Memory) Set(collection, id string, fields map[string]any) {
	m.write(collection, func() {
		m.collectionLocked(collection)[id] = cloneFields(fields)
	})
}

// Delete removes a document if it exists.
func (m *Memory) Delete(collection, id string) {
	m.write(collection, func() {
		delete(m.collectionLocked(collection), id)
	})
}

// Count returns the number of documents in collection.
func (m *Memory) Count(collection string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.collections[collection])
}

// write applies mutate and notifies the collection's listeners with the new set.
func (m *Memory) write(collection string, mutate func()) {
	m.notifyMu.Lock()
	defer m.notifyMu.Unlock()

	m.mu.Lock()
	mutate()
	snapshot := m.snapshotLocked(collection)
	ls := m.listenersLocked(collection)
	m.mu.Unlock()

	for _, l := range ls {
		l.deliver(snapshot, nil)
	}
}

func (m *Memory) collectionLocked(collection string) map[string]map[string]any {
	c, ok := m.collections[collection]
	if !ok {
		c = make(map[string]map[string]any)
		m.collections[collection] = c
	}
	return c
}

func (m *Memory) listenersLocked(collection string) []*memoryListener {
	ls := make([]*memoryListener, 0, len(m.listeners[collection]))
	for l := range m.listeners[collection] {
		ls = append(ls, l)
	}
	return ls
}

func (m *Memory) snapshotLocked(collection string) []Document {
	docs := make([]Document, 0, len(m.collections[collection]))
	for id, fields := range m.collections[collection] {
		docs = append(docs, Document{ID: id, Fields: cloneFields(fields)})
	}
	sort.Slice(docs, func(i, j int) bool { return docs[i].ID < docs[j].ID })
	return docs
}
