package types_test

import (
	"testing"

	"github.com/m-mizutani/gt"
	"github.com/nik45114/kbcore/pkg/domain/types"
)

func TestDraftStatus_IsValid(t *testing.T) {
	tests := []struct {
		name   string
		status types.DraftStatus
		want   bool
	}{
		{name: "pending", status: types.DraftStatusPending, want: true},
		{name: "approved", status: types.DraftStatusApproved, want: true},
		{name: "rejected", status: types.DraftStatusRejected, want: true},
		{name: "unknown", status: types.DraftStatus("edited"), want: false},
		{name: "empty", status: types.DraftStatus(""), want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gt.Value(t, tt.status.IsValid()).Equal(tt.want)
		})
	}
}

func TestDraftStatus_IsTerminal(t *testing.T) {
	gt.Bool(t, types.DraftStatusPending.IsTerminal()).False()
	gt.Bool(t, types.DraftStatusApproved.IsTerminal()).True()
	gt.Bool(t, types.DraftStatusRejected.IsTerminal()).True()
}

func TestParseDraftStatus(t *testing.T) {
	for _, s := range types.AllDraftStatuses() {
		parsed, err := types.ParseDraftStatus(s.String())
		gt.NoError(t, err).Required()
		gt.Value(t, parsed).Equal(s)
	}

	_, err := types.ParseDraftStatus("done")
	gt.Value(t, err).NotNil()
}

func TestAnswerMode_IsValid(t *testing.T) {
	gt.Bool(t, types.AnswerModeCorpus.IsValid()).True()
	gt.Bool(t, types.AnswerModeUncertain.IsValid()).True()
	gt.Bool(t, types.AnswerModeFallback.IsValid()).True()
	gt.Bool(t, types.AnswerMode("llm").IsValid()).False()
}
