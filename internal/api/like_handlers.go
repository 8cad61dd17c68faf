package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/TimBasler1996/Melora-sub001/internal/auth"
	"github.com/TimBasler1996/Melora-sub001/internal/broadcast"
	"github.com/TimBasler1996/Melora-sub001/internal/feed"
	"github.com/TimBasler1996/Melora-sub001/internal/interaction"
	"github.com/TimBasler1996/Melora-sub001/internal/middleware"
	"github.com/TimBasler1996/Melora-sub001/internal/validate"
)

// LikeService runs the like workflow.
type LikeService interface {
	SendLike(ctx context.Context, target broadcast.Enriched, from broadcast.Profile, message string) (interaction.Record, error)
	Resume(ctx context.Context, rec interaction.Record, from broadcast.Profile) (interaction.Record, error)
	IsLiked(broadcastID string) bool
	HasMessage(broadcastID string) bool
}

// ViewSource returns the current visible set.
type ViewSource interface {
	View() feed.View
}

// ProfileResolver resolves profiles by user id.
type ProfileResolver interface {
	Resolve(ctx context.Context, ids []string) map[string]broadcast.Profile
}

// LikeHandlers serves the like workflow against visible broadcasts.
type LikeHandlers struct {
	likes    LikeService
	views    ViewSource
	profiles ProfileResolver
	session  auth.Session
}

// NewLikeHandlers creates like handlers.
func NewLikeHandlers(likes LikeService, views ViewSource, profiles ProfileResolver, session auth.Session) *LikeHandlers {
	return &LikeHandlers{
		likes:    likes,
		views:    views,
		profiles: profiles,
		session:  session,
	}
}

// LikeRequest is the body of POST /likes.
type LikeRequest struct {
	BroadcastID string `json:"broadcast_id"`
	Message     string `json:"message,omitempty"`
}

// LikeResponse is the body of POST /likes and POST /likes/resume.
// Error is set when the workflow stopped early or a later step failed; the
// record can then be passed to POST /likes/resume.
type LikeResponse struct {
	Record     interaction.Record `json:"record"`
	Liked      bool               `json:"liked"`
	HasMessage bool               `json:"has_message"`
	Error      *ErrorDetail       `json:"error,omitempty"`
}

// LikeStatusResponse is the body of GET /likes/status.
type LikeStatusResponse struct {
	BroadcastID string `json:"broadcast_id"`
	Liked       bool   `json:"liked"`
	HasMessage  bool   `json:"has_message"`
}

// SendLike handles POST /likes. The target must be in the visible set.
func (h *LikeHandlers) SendLike(w http.ResponseWriter, r *http.Request) {
	from, ok := h.sender(w, r)
	if !ok {
		return
	}

	var req LikeRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	id, err := validate.ID(req.BroadcastID)
	if err != nil {
		writeValidationError(w, r, "broadcast_id", err)
		return
	}
	message, err := validate.Message(req.Message)
	if err != nil {
		writeValidationError(w, r, "message", err)
		return
	}

	target, found := h.views.View().Find(id)
	if !found {
		WriteError(w, r.Context(), http.StatusNotFound, ErrCodeBroadcastNotVisible, "Broadcast is not in the visible feed")
		return
	}

	rec, err := h.likes.SendLike(r.Context(), target, from, message)
	h.writeRecord(w, r, rec, err)
}

// Resume handles POST /likes/resume with a record returned by an earlier call.
func (h *LikeHandlers) Resume(w http.ResponseWriter, r *http.Request) {
	from, ok := h.sender(w, r)
	if !ok {
		return
	}

	var rec interaction.Record
	if !decodeJSON(w, r, &rec) {
		return
	}
	if _, err := validate.ID(rec.BroadcastID); err != nil {
		writeValidationError(w, r, "broadcast_id", err)
		return
	}
	if err := rec.Resumable(); err != nil {
		writeDomainError(w, r, err)
		return
	}

	rec, err := h.likes.Resume(r.Context(), rec, from)
	h.writeRecord(w, r, rec, err)
}

// Status handles GET /likes/status?broadcast_id=.
func (h *LikeHandlers) Status(w http.ResponseWriter, r *http.Request) {
	id, err := validate.ID(r.URL.Query().Get("broadcast_id"))
	if err != nil {
		writeValidationError(w, r, "broadcast_id", err)
		return
	}
	writeJSON(w, r.Context(), http.StatusOK, LikeStatusResponse{
		BroadcastID: id,
		Liked:       h.likes.IsLiked(id),
		HasMessage:  h.likes.HasMessage(id),
	})
}

// sender resolves the signed-in user's profile. A user without a stored
// profile sends under their id alone.
func (h *LikeHandlers) sender(w http.ResponseWriter, r *http.Request) (broadcast.Profile, bool) {
	userID, err := auth.RequireUserID(r.Context(), h.session)
	if err != nil {
		writeDomainError(w, r, err)
		return broadcast.Profile{}, false
	}
	middleware.SetUserID(r.Context(), userID)

	if p, ok := h.profiles.Resolve(r.Context(), []string{userID})[userID]; ok {
		return p, true
	}
	return broadcast.Profile{ID: userID}, true
}

// writeRecord answers with the record. Failures after the like was issued
// still answer 200 with the error attached; earlier failures use the error's
// status so clients can tell nothing was liked.
func (h *LikeHandlers) writeRecord(w http.ResponseWriter, r *http.Request, rec interaction.Record, err error) {
	resp := LikeResponse{
		Record:     rec,
		Liked:      rec.BroadcastID != "" && h.likes.IsLiked(rec.BroadcastID),
		HasMessage: rec.BroadcastID != "" && h.likes.HasMessage(rec.BroadcastID),
	}
	if err == nil {
		writeJSON(w, r.Context(), http.StatusOK, resp)
		return
	}

	var stepErr *interaction.StepError
	if !errors.As(err, &stepErr) {
		writeDomainError(w, r, err)
		return
	}

	code := ErrorCode(err)
	middleware.SetErrorCode(r.Context(), code)
	resp.Error = &ErrorDetail{Code: code, Message: err.Error()}
	status := http.StatusOK
	if !rec.Done() {
		status = StatusCodeMapping(code)
	}
	slog.WarnContext(r.Context(), "like workflow incomplete",
		"broadcast_id", rec.BroadcastID,
		"stage", rec.Stage,
		"error", err,
	)
	writeJSON(w, r.Context(), status, resp)
}
