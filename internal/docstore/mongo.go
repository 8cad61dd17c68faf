package docstore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/TimBasler1996/Melora-sub001/internal/tracing"
)

// DefaultConnectTimeout bounds the initial MongoDB connect and ping.
const DefaultConnectTimeout = 15 * time.Second

// Connect opens a MongoDB client and verifies it with a ping.
func Connect(ctx context.Context, uri string) (*mongo.Client, error) {
	ctx, cancel := context.WithTimeout(ctx, DefaultConnectTimeout)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connect mongodb: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("ping mongodb: %w", err)
	}
	return client, nil
}

// Mongo is a Store backed by a MongoDB database.
// Listen uses change streams as a change signal and re-reads the whole collection
// on every change, so subscribers always receive the full set.
type Mongo struct {
	db     *mongo.Database
	logger *slog.Logger
}

// NewMongo creates a Store over db.
func NewMongo(db *mongo.Database, logger *slog.Logger) *Mongo {
	if logger == nil {
		logger = slog.Default()
	}
	return &Mongo{db: db, logger: logger}
}

type mongoListener struct {
	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once
}

// Stop cancels the change stream and waits for the watch goroutine to exit.
func (l *mongoListener) Stop() {
	l.once.Do(func() {
		l.cancel()
		<-l.done
	})
}

// Listen delivers the current set, then watches the collection and re-delivers
// the full set after every change event.
func (m *Mongo) Listen(ctx context.Context, collection string, fn ListenFunc) (Listener, error) {
	if collection == "" {
		return nil, ErrEmptyCollection
	}
	if fn == nil {
		return nil, ErrNilListenFunc
	}

	watchCtx, cancel := context.WithCancel(ctx)
	spanCtx, endSpan := tracing.StartStoreSpan(watchCtx, collection, tracing.StoreOperationWatch)
	stream, err := m.db.Collection(collection).Watch(spanCtx, mongo.Pipeline{},
		options.ChangeStream().SetFullDocument(options.UpdateLookup))
	endSpan(err)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("watch %s: %w", collection, err)
	}

	l := &mongoListener{cancel: cancel, done: make(chan struct{})}
	go func() {
		defer close(l.done)
		defer stream.Close(context.Background())

		if !m.deliverAll(watchCtx, collection, fn) {
			return
		}
		for stream.Next(watchCtx) {
			if !m.deliverAll(watchCtx, collection, fn) {
				return
			}
		}
		if watchCtx.Err() != nil {
			return
		}
		err := stream.Err()
		if err == nil {
			err = errors.New("change stream closed")
		}
		m.logger.Warn("mongodb change stream ended",
			slog.String("collection", collection),
			slog.String("error", err.Error()))
		fn(nil, fmt.Errorf("%w: %s: %v", ErrListenerFailed, collection, err))
	}()
	return l, nil
}

// deliverAll reads the collection and hands it to fn. Returns false when the
// subscription has ended.
func (m *Mongo) deliverAll(ctx context.Context, collection string, fn ListenFunc) bool {
	docs, err := m.GetAll(ctx, collection)
	if ctx.Err() != nil {
		return false
	}
	if err != nil {
		fn(nil, fmt.Errorf("%w: %s: %v", ErrListenerFailed, collection, err))
		return false
	}
	fn(docs, nil)
	return true
}

// GetAll reads every document in collection.
func (m *Mongo) GetAll(ctx context.Context, collection string) (docs []Document, err error) {
	if collection == "" {
		return nil, ErrEmptyCollection
	}
	ctx, endSpan := tracing.StartStoreSpan(ctx, collection, tracing.StoreOperationQuery)
	defer func() { endSpan(err) }()

	cursor, err := m.db.Collection(collection).Find(ctx, bson.D{})
	if err != nil {
		return nil, fmt.Errorf("find %s: %w", collection, err)
	}
	defer cursor.Close(ctx)

	var raw []bson.M
	if err := cursor.All(ctx, &raw); err != nil {
		return nil, fmt.Errorf("decode %s: %w", collection, err)
	}

	docs = make([]Document, 0, len(raw))
	for _, r := range raw {
		docs = append(docs, toDocument(r))
	}
	return docs, nil
}

// Get reads a document by id. Both string and ObjectID keys are matched.
func (m *Mongo) Get(ctx context.Context, collection, id string) (doc Document, err error) {
	if collection == "" {
		return Document{}, ErrEmptyCollection
	}
	if id == "" {
		return Document{}, ErrEmptyDocumentID
	}
	ctx, endSpan := tracing.StartStoreSpan(ctx, collection, tracing.StoreOperationQuery)
	defer func() { endSpan(err) }()

	var raw bson.M
	err = m.db.Collection(collection).FindOne(ctx, idFilter(id)).Decode(&raw)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return Document{}, ErrNotFound
	}
	if err != nil {
		return Document{}, fmt.Errorf("find %s/%s: %w", collection, id, err)
	}
	return toDocument(raw), nil
}

// Add inserts fields under a new hex ObjectID string key.
func (m *Mongo) Add(ctx context.Context, collection string, fields map[string]any) (id string, err error) {
	if collection == "" {
		return "", ErrEmptyCollection
	}
	ctx, endSpan := tracing.StartStoreSpan(ctx, collection, tracing.StoreOperationInsert)
	defer func() { endSpan(err) }()

	id = primitive.NewObjectID().Hex()
	doc := bson.M{"_id": id}
	for k, v := range fields {
		doc[k] = v
	}
	if _, err := m.db.Collection(collection).InsertOne(ctx, doc); err != nil {
		return "", fmt.Errorf("insert %s: %w", collection, err)
	}
	return id, nil
}

// Update sets fields on an existing document.
func (m *Mongo) Update(ctx context.Context, collection, id string, fields map[string]any) (err error) {
	if collection == "" {
		return ErrEmptyCollection
	}
	if id == "" {
		return ErrEmptyDocumentID
	}
	ctx, endSpan := tracing.StartStoreSpan(ctx, collection, tracing.StoreOperationUpdate)
	defer func() { endSpan(err) }()

	set := bson.M{}
	for k, v := range fields {
		set[k] = v
	}
	res, err := m.db.Collection(collection).UpdateOne(ctx, idFilter(id), bson.M{"$set": set})
	if err != nil {
		return fmt.Errorf("update %s/%s: %w", collection, id, err)
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

// idFilter matches id as a string key, and as an ObjectID when it is valid hex.
func idFilter(id string) bson.M {
	if oid, err := primitive.ObjectIDFromHex(id); err == nil {
		return bson.M{"_id": bson.M{"$in": bson.A{id, oid}}}
	}
	return bson.M{"_id": id}
}

func toDocument(raw bson.M) Document {
	doc := Document{Fields: make(map[string]any, len(raw))}
	for k, v := range raw {
		if k == "_id" {
			doc.ID = idString(v)
			continue
		}
		doc.Fields[k] = normalizeValue(v)
	}
	return doc
}

func idString(v any) string {
	switch id := v.(type) {
	case string:
		return id
	case primitive.ObjectID:
		return id.Hex()
	default:
		return fmt.Sprint(id)
	}
}

// normalizeValue converts BSON driver types into plain Go values so that
// decoders only deal with maps, slices, strings, numbers and time.Time.
func normalizeValue(v any) any {
	switch val := v.(type) {
	case primitive.M:
		out := make(map[string]any, len(val))
		for k, inner := range val {
			out[k] = normalizeValue(inner)
		}
		return out
	case primitive.D:
		out := make(map[string]any, len(val))
		for _, e := range val {
			out[e.Key] = normalizeValue(e.Value)
		}
		return out
	case primitive.A:
		out := make([]any, len(val))
		for i, inner := range val {
			out[i] = normalizeValue(inner)
		}
		return out
	case primitive.DateTime:
		return val.Time().UTC()
	case primitive.Timestamp:
		return time.Unix(int64(val.T), 0).UTC()
	case primitive.ObjectID:
		return val.Hex()
	default:
		return v
	}
}
