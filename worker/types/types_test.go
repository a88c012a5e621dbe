package types

import (
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tomyedwab/sqlight/engine"
	"github.com/tomyedwab/sqlight/storage"
	"github.com/tomyedwab/sqlight/worker"
)

func TestFromError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want ErrorPayload
	}{
		{
			name: "prepare failure",
			err:  &engine.Error{Op: engine.OpPrepare, Code: 1, Message: "near \"SELEC\": syntax error"},
			want: ErrorPayload{Kind: KindPrepareFailed, Code: 1, Message: "near \"SELEC\": syntax error"},
		},
		{
			name: "step failure",
			err:  fmt.Errorf("run: %w", &engine.Error{Op: engine.OpStep, Code: 19, Message: "constraint"}),
			want: ErrorPayload{Kind: KindStepFailed, Code: 19, Message: "constraint"},
		},
		{
			name: "open failure",
			err:  &engine.Error{Op: engine.OpOpen, Code: 14, Message: "unable to open"},
			want: ErrorPayload{Kind: KindOpenDB, Code: 14, Message: "unable to open"},
		},
		{
			name: "unsupported column type",
			err:  &engine.UnsupportedColumnTypeError{Type: 9},
			want: ErrorPayload{Kind: KindUnsupportedColumnType, Code: 9, Message: "the column type is not supported: 9"},
		},
		{
			name: "backend failure",
			err:  &worker.BackendError{Op: worker.OpLoadDB, Err: storage.ErrInvalidImage},
			want: ErrorPayload{Kind: KindLoadDB, Message: storage.ErrInvalidImage.Error()},
		},
		{
			name: "invalid state",
			err:  fmt.Errorf("%w: step_in", worker.ErrInvalidState),
			want: ErrorPayload{Kind: KindInvalidState, Message: "invalid state: step_in"},
		},
		{
			name: "pool not installed",
			err:  storage.ErrNotInitialized,
			want: ErrorPayload{Kind: KindUnexpected, Message: storage.ErrNotInitialized.Error()},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := FromError(tt.err)
			require.NotNil(t, got)
			assert.Equal(t, tt.want, *got)
		})
	}
	assert.Nil(t, FromError(nil))
}

func TestRemoteErrorMatchesSentinels(t *testing.T) {
	for _, sentinel := range []error{
		worker.ErrNotFound,
		worker.ErrInvalidState,
		engine.ErrInvalidText,
		storage.ErrBackendOpened,
		ErrBadRequest,
	} {
		err := FromError(fmt.Errorf("wrapped: %w", sentinel)).Err()
		assert.ErrorIs(t, err, sentinel)
	}

	err := FromError(&engine.Error{Op: engine.OpStep, Code: 1, Message: "boom"}).Err()
	var remote *RemoteError
	require.True(t, errors.As(err, &remote))
	assert.Equal(t, KindStepFailed, remote.Kind)
	assert.False(t, errors.Is(err, worker.ErrInvalidState))
}

func TestResponseJSON(t *testing.T) {
	result := engine.Finish()
	resp := Response{Command: CommandStepOver, Result: &result}
	data, err := json.Marshal(resp)
	require.NoError(t, err)
	assert.JSONEq(t, `{"command":"step_over","result":{"finish":true}}`, string(data))

	var req Request
	require.NoError(t, json.Unmarshal([]byte(`{"command":"load_db","id":"x","data":"AAE="}`), &req))
	assert.Equal(t, Request{Command: CommandLoadDB, ID: "x", Data: []byte{0, 1}}, req)
}
