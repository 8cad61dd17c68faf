// Package docstore defines the remote document store capability consumed by the
// engine, with in-memory and MongoDB implementations.
//
// Listeners receive the complete current document set of a collection on every
// change, never a delta. Consumers must treat each delivery as a replacement.
package docstore

import (
	"context"
	"errors"
)

// Collection names used by the engine.
const (
	CollectionBroadcasts          = "broadcasts"
	CollectionUsers               = "users"
	CollectionLikes               = "likes"
	CollectionBroadcastLikeEvents = "broadcast_like_events"
	CollectionMessages            = "messages"
	CollectionChats               = "chats"
)

// Store errors.
var (
	ErrNotFound        = errors.New("document not found")
	ErrEmptyCollection = errors.New("collection name cannot be empty")
	ErrEmptyDocumentID = errors.New("document id cannot be empty")
	ErrListenerFailed  = errors.New("listener failed")
	ErrNilListenFunc   = errors.New("listen callback cannot be nil")
)

// Document is a single stored document.
type Document struct {
	ID     string
	Fields map[string]any
}

// ListenFunc receives either the full current document set of a collection or
// a terminal error. After an error no further calls are made.
// Implementations may invoke it from any goroutine.
type ListenFunc func(docs []Document, err error)

// Listener is an active collection subscription.
type Listener interface {
	// Stop ends the subscription. Safe to call more than once.
	Stop()
}

// Store is the document store capability.
type Store interface {
	// Listen subscribes to a collection. The current set is delivered once on
	// subscribe and again after every change.
	Listen(ctx context.Context, collection string, fn ListenFunc) (Listener, error)

	// GetAll reads the full current document set of a collection.
	GetAll(ctx context.Context, collection string) ([]Document, error)

	// Get reads one document. Returns ErrNotFound if it does not exist.
	Get(ctx context.Context, collection, id string) (Document, error)

	// Add appends a new document and returns its generated id.
	Add(ctx context.Context, collection string, fields map[string]any) (string, error)

	// Update merges fields into an existing document. Returns ErrNotFound if it does not exist.
	Update(ctx context.Context, collection, id string, fields map[string]any) error
}

// cloneFields returns a shallow copy of fields so callers cannot mutate stored state.
func cloneFields(fields map[string]any) map[string]any {
	out := make(map[string]any, len(fields))
	for k, v := range fields {
		out[k] = v
	}
	return out
}
