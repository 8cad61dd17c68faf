package interaction

import (
	"errors"
	"testing"
)

func TestRecord_Resumable(t *testing.T) {
	tests := []struct {
		name    string
		rec     Record
		wantErr error
	}{
		{name: "pending", rec: Record{Stage: StagePending}},
		{name: "like created", rec: Record{Stage: StageLikeCreated, LikeID: "l1"}},
		{name: "event recorded", rec: Record{Stage: StageEventRecorded, LikeID: "l1"}},
		{name: "message failed", rec: Record{Stage: StageMessageFailed, LikeID: "l1"}},
		{name: "completed", rec: Record{Stage: StageCompleted, LikeID: "l1", MessageStage: StageMessageSent}},
		{name: "like created without id", rec: Record{Stage: StageLikeCreated}, wantErr: ErrNotResumable},
		{name: "completed without id", rec: Record{Stage: StageCompleted}, wantErr: ErrNotResumable},
		{name: "message sent", rec: Record{Stage: StageMessageSent, LikeID: "l1"}, wantErr: ErrNotResumable},
		{name: "message skipped", rec: Record{Stage: StageMessageSkipped, LikeID: "l1"}, wantErr: ErrNotResumable},
		{name: "unknown", rec: Record{Stage: "bogus", LikeID: "l1"}, wantErr: ErrUnknownStage},
		{name: "empty", rec: Record{}, wantErr: ErrUnknownStage},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.rec.Resumable()
			if tt.wantErr == nil {
				if err != nil {
					t.Errorf("Resumable() error = %v, want nil", err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Resumable() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}
