package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/TimBasler1996/Melora-sub001/internal/broadcast"
	"github.com/TimBasler1996/Melora-sub001/internal/feed"
	"github.com/TimBasler1996/Melora-sub001/internal/geo"
	"github.com/TimBasler1996/Melora-sub001/internal/middleware"
	"github.com/TimBasler1996/Melora-sub001/internal/stream"
	"github.com/TimBasler1996/Melora-sub001/internal/validate"
)

// maxBodyBytes bounds JSON request bodies.
const maxBodyBytes = 64 << 10

// FeedService is the part of the feed synchronizer served over HTTP.
type FeedService interface {
	View() feed.View
	Refresh(ctx context.Context) error
	NearbyNow(ctx context.Context) ([]broadcast.Enriched, error)
	UpdateLocation(ctx context.Context, p *geo.Point) error
	MuteUser(ctx context.Context, id string) error
	MuteTrack(ctx context.Context, id string) error
}

// FeedHandlers serves the visible set, location updates and mutes.
type FeedHandlers struct {
	feed        FeedService
	broadcaster *stream.Broadcaster
	upgrader    websocket.Upgrader
}

// NewFeedHandlers creates feed handlers. broadcaster may be nil, in which
// case GET /feed/ws answers 404.
func NewFeedHandlers(feedService FeedService, broadcaster *stream.Broadcaster) *FeedHandlers {
	return &FeedHandlers{
		feed:        feedService,
		broadcaster: broadcaster,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// The daemon serves a single local user.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// NearbyResponse is the body of GET /feed/nearby.
type NearbyResponse struct {
	Items []broadcast.Enriched `json:"items"`
}

// LocationRequest is the body of POST /location. Omitting both coordinates
// clears the location.
type LocationRequest struct {
	Latitude  *float64 `json:"latitude"`
	Longitude *float64 `json:"longitude"`
}

// MuteRequest is the body of POST /mutes/users and POST /mutes/tracks.
type MuteRequest struct {
	ID string `json:"id"`
}

// GetFeed handles GET /feed and returns the current view.
func (h *FeedHandlers) GetFeed(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r.Context(), http.StatusOK, stream.NewMessage(h.feed.View()))
}

// Nearby handles GET /feed/nearby with a one-shot read that leaves the
// visible set untouched.
func (h *FeedHandlers) Nearby(w http.ResponseWriter, r *http.Request) {
	items, err := h.feed.NearbyNow(r.Context())
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	if items == nil {
		items = []broadcast.Enriched{}
	}
	writeJSON(w, r.Context(), http.StatusOK, NearbyResponse{Items: items})
}

// Refresh handles POST /feed/refresh and returns the view it produced.
func (h *FeedHandlers) Refresh(w http.ResponseWriter, r *http.Request) {
	if err := h.feed.Refresh(r.Context()); err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, r.Context(), http.StatusOK, stream.NewMessage(h.feed.View()))
}

// UpdateLocation handles POST /location.
func (h *FeedHandlers) UpdateLocation(w http.ResponseWriter, r *http.Request) {
	var req LocationRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	var p *geo.Point
	switch {
	case req.Latitude == nil && req.Longitude == nil:
	case req.Latitude == nil || req.Longitude == nil:
		WriteError(w, r.Context(), http.StatusBadRequest, ErrCodeValidation, "latitude and longitude must be set together")
		return
	default:
		p = &geo.Point{Lat: *req.Latitude, Lng: *req.Longitude}
	}

	if err := h.feed.UpdateLocation(r.Context(), p); err != nil {
		writeDomainError(w, r, err)
		return
	}
	if p != nil {
		slog.InfoContext(r.Context(), "location update accepted", "cell", p.Cell())
	} else {
		slog.InfoContext(r.Context(), "location clear accepted")
	}
	writeJSON(w, r.Context(), http.StatusOK, stream.NewMessage(h.feed.View()))
}

// MuteUser handles POST /mutes/users.
func (h *FeedHandlers) MuteUser(w http.ResponseWriter, r *http.Request) {
	h.mute(w, r, h.feed.MuteUser)
}

// MuteTrack handles POST /mutes/tracks.
func (h *FeedHandlers) MuteTrack(w http.ResponseWriter, r *http.Request) {
	h.mute(w, r, h.feed.MuteTrack)
}

func (h *FeedHandlers) mute(w http.ResponseWriter, r *http.Request, mute func(context.Context, string) error) {
	var req MuteRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	id, err := validate.ID(req.ID)
	if err != nil {
		writeValidationError(w, r, "id", err)
		return
	}
	if err := mute(r.Context(), id); err != nil {
		writeDomainError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Subscribe handles GET /feed/ws and streams every published view to the client.
func (h *FeedHandlers) Subscribe(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.broadcaster == nil {
		WriteError(w, ctx, http.StatusNotFound, ErrCodeNotFound, "Live updates are not enabled")
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.ErrorContext(ctx, "failed to upgrade websocket connection", "error", err)
		return
	}

	requestID := middleware.GetRequestID(ctx)
	slog.InfoContext(ctx, "websocket client subscribed to feed", "request_id", requestID)
	if err := h.broadcaster.Serve(ctx, conn); err != nil {
		slog.WarnContext(ctx, "websocket feed subscription ended", "error", err, "request_id", requestID)
		return
	}
	slog.InfoContext(ctx, "websocket client unsubscribed", "request_id", requestID)
}

// writeValidationError answers 400 for a field rejected by the validate package.
func writeValidationError(w http.ResponseWriter, r *http.Request, field string, err error) {
	msg := field + " is invalid"
	switch {
	case errors.Is(err, validate.ErrEmpty):
		msg = field + " is required"
	case errors.Is(err, validate.ErrStringTooLong):
		msg = field + " is too long"
	case errors.Is(err, validate.ErrInvalidCharacters):
		msg = field + " contains invalid characters"
	}
	WriteError(w, r.Context(), http.StatusBadRequest, ErrCodeValidation, msg)
}

// decodeJSON decodes the request body into v. It writes a 400 response and
// returns false when the body is malformed.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			WriteError(w, r.Context(), http.StatusBadRequest, ErrCodeBadRequest, "Request body is required")
			return false
		}
		WriteError(w, r.Context(), http.StatusBadRequest, ErrCodeBadRequest, "Invalid JSON in request body")
		return false
	}
	return true
}
