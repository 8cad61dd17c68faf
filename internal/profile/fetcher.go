// Package profile resolves broadcaster ids to profiles through a memoizing,
// deduplicating cache with parallel fan-out.
package profile

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/TimBasler1996/Melora-sub001/internal/broadcast"
	"github.com/TimBasler1996/Melora-sub001/internal/docstore"
	"github.com/TimBasler1996/Melora-sub001/internal/tracing"
)

// ErrProfileNotFound is returned when no profile exists for an id.
var ErrProfileNotFound = errors.New("profile not found")

// Fetcher loads one profile.
type Fetcher interface {
	FetchProfile(ctx context.Context, id string) (broadcast.Profile, error)
}

// FetcherFunc adapts a function to Fetcher.
type FetcherFunc func(ctx context.Context, id string) (broadcast.Profile, error)

// FetchProfile calls f.
func (f FetcherFunc) FetchProfile(ctx context.Context, id string) (broadcast.Profile, error) {
	return f(ctx, id)
}

// DocumentFetcher reads profiles from the users collection.
type DocumentFetcher struct {
	store docstore.Store
	now   func() time.Time
}

// NewDocumentFetcher creates a Fetcher over store.
func NewDocumentFetcher(store docstore.Store) *DocumentFetcher {
	return &DocumentFetcher{store: store, now: time.Now}
}

// FetchProfile reads and decodes the users document with the given id.
func (f *DocumentFetcher) FetchProfile(ctx context.Context, id string) (p broadcast.Profile, err error) {
	ctx, endSpan := tracing.StartSpan(ctx, "profile.fetch", attribute.String("user.id", id))
	defer func() { endSpan(err) }()

	doc, err := f.store.Get(ctx, docstore.CollectionUsers, id)
	if errors.Is(err, docstore.ErrNotFound) {
		return broadcast.Profile{}, fmt.Errorf("%s: %w", id, ErrProfileNotFound)
	}
	if err != nil {
		return broadcast.Profile{}, fmt.Errorf("fetch profile %s: %w", id, err)
	}
	return broadcast.ProfileFromFields(doc.ID, doc.Fields, f.now())
}
