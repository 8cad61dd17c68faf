package interaction

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/singleflight"

	"github.com/TimBasler1996/Melora-sub001/internal/auth"
	"github.com/TimBasler1996/Melora-sub001/internal/broadcast"
	"github.com/TimBasler1996/Melora-sub001/internal/prefs"
	"github.com/TimBasler1996/Melora-sub001/internal/tracing"
)

// Config holds optional dependencies of an Orchestrator.
type Config struct {
	Logger  *slog.Logger
	Metrics *Metrics
}

// Writers groups the store collaborators of the like workflow.
type Writers struct {
	Likes  LikeIssuer
	Events EventRecorder
	Chat   ChatSender
}

// Orchestrator executes the like workflow for the current user.
type Orchestrator struct {
	session auth.Session
	prefs   *prefs.Manager
	writers Writers
	logger  *slog.Logger
	metrics *Metrics
	now     func() time.Time

	// flights collapses concurrent identical likes from the same user.
	flights singleflight.Group
}

// NewOrchestrator creates an Orchestrator.
func NewOrchestrator(config Config, session auth.Session, prefsManager *prefs.Manager, writers Writers) *Orchestrator {
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{
		session: session,
		prefs:   prefsManager,
		writers: writers,
		logger:  logger,
		metrics: config.Metrics,
		now:     time.Now,
	}
}

// SendLike likes target on behalf of the current user, with an optional
// message. from supplies the sender's display name for the chat message.
//
// A failure in the like or event step aborts the workflow and returns a
// *StepError with the record at its last completed stage. A failed message
// still marks the broadcast as liked; the completed record is returned along
// with a *StepError for StepMessage.
//
// Concurrent calls with the same target and message share one execution.
func (o *Orchestrator) SendLike(ctx context.Context, target broadcast.Enriched, from broadcast.Profile, message string) (Record, error) {
	userID, err := auth.RequireUserID(ctx, o.session)
	if err != nil {
		return Record{}, err
	}
	if target.ID == "" || target.UserID() == "" {
		return Record{}, ErrInvalidTarget
	}
	if err := o.ensurePrefs(ctx, userID); err != nil {
		return Record{}, err
	}

	event := broadcast.NewLikeEvent(userID, target, message, o.now().UTC())
	key := userID + "\x00" + target.ID + "\x00" + event.Message

	leader := false
	ch := o.flights.DoChan(key, func() (any, error) {
		leader = true
		rec := Record{BroadcastID: target.ID, Event: event, Stage: StagePending}
		return o.run(ctx, rec, from)
	})

	select {
	case res := <-ch:
		if !leader {
			o.metrics.incDeduplicated()
		}
		rec, _ := res.Val.(Record)
		return rec, res.Err
	case <-ctx.Done():
		return Record{}, ctx.Err()
	}
}

// Resume continues rec from its recorded stage. A completed record whose
// message failed retries the message. Other completed records are returned
// unchanged. Records that fail Record.Resumable are rejected without writes.
func (o *Orchestrator) Resume(ctx context.Context, rec Record, from broadcast.Profile) (Record, error) {
	userID, err := auth.RequireUserID(ctx, o.session)
	if err != nil {
		return rec, err
	}
	if rec.Event.SenderID != userID {
		return rec, ErrSenderMismatch
	}
	if err := rec.Resumable(); err != nil {
		return rec, err
	}
	if err := o.ensurePrefs(ctx, userID); err != nil {
		return rec, err
	}

	switch {
	case rec.Done() && rec.MessageStage == StageMessageFailed:
		rec.Stage = StageEventRecorded
	case rec.Done():
		return rec, nil
	case rec.Stage == StageMessageFailed:
		rec.Stage = StageEventRecorded
	}
	return o.run(ctx, rec, from)
}

// IsLiked reports whether the current user liked broadcastID.
func (o *Orchestrator) IsLiked(broadcastID string) bool {
	return o.prefs.IsLiked(broadcastID)
}

// HasMessage reports whether the current user sent a message with a like on broadcastID.
func (o *Orchestrator) HasMessage(broadcastID string) bool {
	return o.prefs.HasMessage(broadcastID)
}

func (o *Orchestrator) ensurePrefs(ctx context.Context, userID string) error {
	if o.prefs.UserID() == userID {
		return nil
	}
	if err := o.prefs.Load(ctx, userID); err != nil {
		return fmt.Errorf("load preferences: %w", err)
	}
	return nil
}

func (o *Orchestrator) run(ctx context.Context, rec Record, from broadcast.Profile) (Record, error) {
	start := time.Now()
	ctx, endSpan := tracing.StartSpan(ctx, "interaction.send_like",
		attribute.String("broadcast.id", rec.BroadcastID),
		attribute.String("interaction.start_stage", string(rec.Stage)),
	)

	rec, err := o.advance(ctx, rec, from)
	endSpan(err)
	o.metrics.observeDuration(time.Since(start).Seconds())

	outcome := OutcomeCompleted
	switch {
	case err != nil && rec.Done():
		outcome = OutcomePartial
	case err != nil:
		outcome = OutcomeFailed
	}
	o.metrics.incLikes(outcome)

	o.logger.Info("like workflow finished",
		"broadcast_id", rec.BroadcastID,
		"receiver_id", rec.Event.ReceiverID,
		"like_id", rec.LikeID,
		"stage", string(rec.Stage),
		"outcome", outcome,
	)
	return rec, err
}

// advance walks rec through the remaining stages.
func (o *Orchestrator) advance(ctx context.Context, rec Record, from broadcast.Profile) (Record, error) {
	var messageErr, persistErr error
	for {
		switch rec.Stage {
		case StagePending:
			var likeID string
			err := o.step(ctx, StepLike, func(ctx context.Context) (err error) {
				likeID, err = o.writers.Likes.IssueLike(ctx, rec.Event)
				return err
			})
			if err != nil {
				return rec, o.stepFailed(rec, StepLike, err)
			}
			rec.LikeID = likeID
			rec.Stage = StageLikeCreated

		case StageLikeCreated:
			err := o.step(ctx, StepEvent, func(ctx context.Context) error {
				return o.writers.Events.RecordLikeEvent(ctx, rec.LikeID, rec.Event)
			})
			if err != nil {
				return rec, o.stepFailed(rec, StepEvent, err)
			}
			rec.Stage = StageEventRecorded

		case StageEventRecorded:
			if !rec.Event.HasMessage() {
				rec.Stage = StageMessageSkipped
				rec.MessageStage = StageMessageSkipped
				continue
			}
			var messageID string
			err := o.step(ctx, StepMessage, func(ctx context.Context) (err error) {
				messageID, err = o.writers.Chat.SendLikeMessage(ctx, o.chatMessage(rec, from))
				return err
			})
			if err != nil {
				messageErr = o.stepFailed(rec, StepMessage, err)
				rec.Stage = StageMessageFailed
				rec.MessageStage = StageMessageFailed
				continue
			}
			rec.MessageID = messageID
			rec.Stage = StageMessageSent
			rec.MessageStage = StageMessageSent
			if err := o.prefs.MarkMessaged(ctx, rec.BroadcastID); err != nil {
				persistErr = o.stepFailed(rec, StepPersist, err)
			}

		case StageMessageSent, StageMessageSkipped, StageMessageFailed:
			if err := o.prefs.MarkLiked(ctx, rec.BroadcastID); err != nil && persistErr == nil {
				persistErr = o.stepFailed(rec, StepPersist, err)
			}
			rec.Stage = StageCompleted

		case StageCompleted:
			if messageErr != nil {
				return rec, messageErr
			}
			return rec, persistErr

		default:
			return rec, fmt.Errorf("%w: %q", ErrUnknownStage, rec.Stage)
		}
	}
}

func (o *Orchestrator) step(ctx context.Context, step Step, fn func(context.Context) error) error {
	ctx, endSpan := tracing.StartSpan(ctx, "interaction."+string(step))
	err := fn(ctx)
	endSpan(err)
	return err
}

func (o *Orchestrator) stepFailed(rec Record, step Step, err error) error {
	o.metrics.incStepFailure(step)
	o.logger.Warn("like workflow step failed",
		"broadcast_id", rec.BroadcastID,
		"step", string(step),
		"stage", string(rec.Stage),
		"error", err,
	)
	return &StepError{Step: step, Stage: rec.Stage, Err: err}
}

func (o *Orchestrator) chatMessage(rec Record, from broadcast.Profile) ChatMessage {
	return ChatMessage{
		ChatID:     ChatID(rec.Event.SenderID, rec.Event.ReceiverID),
		SenderID:   rec.Event.SenderID,
		SenderName: from.DisplayName(),
		ReceiverID: rec.Event.ReceiverID,
		LikeID:     rec.LikeID,
		TrackID:    rec.Event.TrackID,
		TrackTitle: rec.Event.TrackTitle,
		Text:       rec.Event.Message,
		CreatedAt:  rec.Event.CreatedAt,
	}
}
