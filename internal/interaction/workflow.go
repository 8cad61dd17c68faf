// Package interaction runs the like workflow against a broadcast: issue the
// like, record the broadcast-scoped event, optionally send a chat message, and
// mark the broadcast as liked in the local preference store.
//
// The workflow is not transactional. Each step is a named stage in Record so a
// partially completed like can be resumed from where it stopped.
package interaction

import (
	"errors"
	"fmt"

	"github.com/TimBasler1996/Melora-sub001/internal/broadcast"
)

// ErrInteractionWrite is wrapped by every StepError.
var ErrInteractionWrite = errors.New("interaction write failed")

// ErrSenderMismatch is returned when resuming a record sent by a different user.
var ErrSenderMismatch = errors.New("record was sent by a different user")

// ErrInvalidTarget is returned when the target broadcast has no id or no author.
var ErrInvalidTarget = errors.New("target broadcast must have an id and an author")

// ErrUnknownStage is returned when resuming a record with an unrecognized stage.
var ErrUnknownStage = errors.New("unknown workflow stage")

// ErrNotResumable is returned when a record cannot be continued from its stage.
var ErrNotResumable = errors.New("record cannot be resumed")

// Stage is the position of a like in the workflow.
type Stage string

// Workflow stages, in order. Exactly one of the message stages is visited.
const (
	StagePending        Stage = "pending"
	StageLikeCreated    Stage = "like_created"
	StageEventRecorded  Stage = "event_recorded"
	StageMessageSent    Stage = "message_sent"
	StageMessageSkipped Stage = "message_skipped"
	StageMessageFailed  Stage = "message_failed"
	StageCompleted      Stage = "completed"
)

// Step names the write that failed.
type Step string

// Workflow steps.
const (
	StepLike    Step = "like"
	StepEvent   Step = "event"
	StepMessage Step = "message"
	StepPersist Step = "persist"
)

// Record tracks one like through the workflow.
type Record struct {
	BroadcastID string              `json:"broadcast_id"`
	Event       broadcast.LikeEvent `json:"event"`
	Stage       Stage               `json:"stage"`
	LikeID      string              `json:"like_id,omitempty"`
	MessageID   string              `json:"message_id,omitempty"`

	// MessageStage is the message stage visited, kept after completion.
	MessageStage Stage `json:"message_stage,omitempty"`
}

// Done reports whether the workflow reached StageCompleted.
func (r Record) Done() bool {
	return r.Stage == StageCompleted
}

// Resumable reports whether the workflow can continue from r. Past
// StagePending the like must exist, so its id is required. The transient
// message stages never appear on a returned record.
func (r Record) Resumable() error {
	switch r.Stage {
	case StagePending:
		return nil
	case StageLikeCreated, StageEventRecorded, StageMessageFailed, StageCompleted:
		if r.LikeID == "" {
			return fmt.Errorf("%w: stage %s without like id", ErrNotResumable, r.Stage)
		}
		return nil
	case StageMessageSent, StageMessageSkipped:
		return fmt.Errorf("%w: stage %s", ErrNotResumable, r.Stage)
	default:
		return fmt.Errorf("%w: %q", ErrUnknownStage, r.Stage)
	}
}

// StepError reports a failed workflow step. Stages completed before the
// failure stay in place.
type StepError struct {
	Step  Step
	Stage Stage
	Err   error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("%s step failed at stage %s: %v", e.Step, e.Stage, e.Err)
}

// Unwrap exposes both ErrInteractionWrite and the underlying cause.
func (e *StepError) Unwrap() []error {
	return []error{ErrInteractionWrite, e.Err}
}

// IsStep reports whether err is a StepError for step.
func IsStep(err error, step Step) bool {
	var se *StepError
	return errors.As(err, &se) && se.Step == step
}
