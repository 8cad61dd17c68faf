package interaction

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/TimBasler1996/Melora-sub001/internal/broadcast"
	"github.com/TimBasler1996/Melora-sub001/internal/docstore"
)

// MessageTypeLike marks chat messages created from a like.
const MessageTypeLike = "like"

// LikeIssuer creates the durable like entity and returns its id.
type LikeIssuer interface {
	IssueLike(ctx context.Context, event broadcast.LikeEvent) (string, error)
}

// EventRecorder appends the broadcast-scoped record of a like.
type EventRecorder interface {
	RecordLikeEvent(ctx context.Context, likeID string, event broadcast.LikeEvent) error
}

// ChatSender delivers the message attached to a like and returns the message id.
type ChatSender interface {
	SendLikeMessage(ctx context.Context, msg ChatMessage) (string, error)
}

// ChatMessage is a chat message referencing a track and the like that carried it.
type ChatMessage struct {
	ChatID     string
	SenderID   string
	SenderName string
	ReceiverID string
	LikeID     string
	TrackID    string
	TrackTitle string
	Text       string
	CreatedAt  time.Time
}

// ChatID returns the id of the direct chat between two users. The id does not
// depend on argument order.
func ChatID(a, b string) string {
	ids := []string{a, b}
	sort.Strings(ids)
	return strings.Join(ids, "_")
}

// DocumentWriters implements LikeIssuer, EventRecorder and ChatSender on a
// document store.
type DocumentWriters struct {
	store  docstore.Store
	logger *slog.Logger
}

// NewDocumentWriters creates the document-backed workflow writers.
func NewDocumentWriters(store docstore.Store, logger *slog.Logger) *DocumentWriters {
	if logger == nil {
		logger = slog.Default()
	}
	return &DocumentWriters{store: store, logger: logger}
}

// IssueLike appends event to the likes collection.
func (w *DocumentWriters) IssueLike(ctx context.Context, event broadcast.LikeEvent) (string, error) {
	id, err := w.store.Add(ctx, docstore.CollectionLikes, event.Fields())
	if err != nil {
		return "", fmt.Errorf("add like: %w", err)
	}
	return id, nil
}

// RecordLikeEvent appends event to the broadcast_like_events collection.
func (w *DocumentWriters) RecordLikeEvent(ctx context.Context, likeID string, event broadcast.LikeEvent) error {
	fields := event.Fields()
	fields["likeId"] = likeID
	fields["broadcastId"] = event.BroadcastID
	if _, err := w.store.Add(ctx, docstore.CollectionBroadcastLikeEvents, fields); err != nil {
		return fmt.Errorf("add broadcast like event: %w", err)
	}
	return nil
}

// SendLikeMessage appends msg to the messages collection and updates the
// chat's last-message summary. A chat that does not exist yet is left to the
// chat service to create.
func (w *DocumentWriters) SendLikeMessage(ctx context.Context, msg ChatMessage) (string, error) {
	chatID := msg.ChatID
	if chatID == "" {
		chatID = ChatID(msg.SenderID, msg.ReceiverID)
	}
	id, err := w.store.Add(ctx, docstore.CollectionMessages, map[string]any{
		"chatId":     chatID,
		"type":       MessageTypeLike,
		"senderId":   msg.SenderID,
		"senderName": msg.SenderName,
		"receiverId": msg.ReceiverID,
		"likeId":     msg.LikeID,
		"trackId":    msg.TrackID,
		"trackTitle": msg.TrackTitle,
		"text":       msg.Text,
		"createdAt":  msg.CreatedAt,
	})
	if err != nil {
		return "", fmt.Errorf("add message: %w", err)
	}

	err = w.store.Update(ctx, docstore.CollectionChats, chatID, map[string]any{
		"lastMessage":   msg.Text,
		"lastMessageAt": msg.CreatedAt,
		"lastSenderId":  msg.SenderID,
	})
	switch {
	case errors.Is(err, docstore.ErrNotFound):
		w.logger.Debug("chat summary not updated, chat does not exist",
			"chat_id", chatID,
			"message_id", id,
		)
	case err != nil:
		// The message itself is stored; a stale summary is not a send failure.
		w.logger.Warn("failed to update chat summary",
			"chat_id", chatID,
			"message_id", id,
			"error", err,
		)
	}
	return id, nil
}
