package send

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	apperrors "sendqueue/internal/errors"
	"sendqueue/internal/models"
	"sendqueue/pkg/transport/types"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		code      apperrors.ErrorCode
		retryable bool
		stop      bool
	}{
		{"network", &types.NetworkError{Op: "dial", Err: errors.New("refused")}, apperrors.ErrCodeNetwork, true, false},
		{"server error", &types.HTTPError{Code: 502}, apperrors.ErrCodeServer, true, false},
		{"rate limited", &types.HTTPError{Code: 429}, apperrors.ErrCodeRateLimit, true, false},
		{"request timeout", &types.HTTPError{Code: 408}, apperrors.ErrCodeServer, true, false},
		{"sealed sender rejected", &types.HTTPError{Code: 401}, apperrors.ErrCodeAuthentication, true, false},
		{"server asked to stop", &types.HTTPError{Code: 508}, apperrors.ErrCodeServerStop, false, true},
		{"challenge status", &types.HTTPError{Code: 428}, apperrors.ErrCodeChallenge, false, true},
		{"challenge", &types.ChallengeError{}, apperrors.ErrCodeChallenge, false, true},
		{"unregistered", fmt.Errorf("wrapped: %w", &types.UnregisteredUserError{}), apperrors.ErrCodeUnregistered, false, false},
		{"identity key", &types.OutgoingIdentityKeyError{}, apperrors.ErrCodeIdentityKey, false, false},
		{"bad request", &types.HTTPError{Code: 400}, apperrors.ErrCodeServer, false, false},
		{"deadline", context.DeadlineExceeded, apperrors.ErrCodeNetwork, true, false},
		{"app error", apperrors.New(apperrors.ErrCodeUntrusted, "x"), apperrors.ErrCodeUntrusted, false, false},
		{"unknown", errors.New("surprise"), apperrors.ErrCodeSendFailed, true, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := Classify(tt.err)
			assert.Equal(t, tt.code, c.Code)
			assert.Equal(t, tt.retryable, c.Retryable)
			assert.Equal(t, tt.stop, c.Stop)
		})
	}
	assert.Equal(t, Classification{}, Classify(nil))
}

func quietEntry() *logrus.Entry {
	return logrus.NewEntry(quietLogger())
}

func TestHandleSendErrors_AllPermanentIsTerminal(t *testing.T) {
	err := HandleSendErrors(context.Background(), SendErrorsParams{
		Errors: []types.TargetError{{Target: "a", Err: &types.UnregisteredUserError{ServiceID: "a"}}},
		Log:    quietEntry(),
	})

	require.Error(t, err)
	assert.False(t, apperrors.IsRetryable(err))
	var unregistered *types.UnregisteredUserError
	assert.ErrorAs(t, err, &unregistered)
}

func TestHandleSendErrors_AnyTransientRetries(t *testing.T) {
	err := HandleSendErrors(context.Background(), SendErrorsParams{
		Errors: []types.TargetError{
			{Target: "a", Err: &types.UnregisteredUserError{ServiceID: "a"}},
			{Target: "b", Err: &types.HTTPError{Code: 503}},
		},
		TimeRemaining: time.Hour,
		Log:           quietEntry(),
	})

	require.Error(t, err)
	assert.True(t, apperrors.IsRetryable(err))
	assert.Equal(t, apperrors.ErrCodeServer, apperrors.GetCode(err))
}

func TestHandleSendErrors_StopMarksFailedAndEnds(t *testing.T) {
	var marked error
	err := HandleSendErrors(context.Background(), SendErrorsParams{
		Errors: []types.TargetError{
			{Target: "a", Err: &types.HTTPError{Code: 503}},
			{Target: "b", Err: &types.HTTPError{Code: 508}},
		},
		MarkFailed: func(ctx context.Context, err error) { marked = err },
		Log:        quietEntry(),
	})

	assert.NoError(t, err)
	require.Error(t, marked)
	assert.Equal(t, apperrors.ErrCodeServerStop, apperrors.GetCode(marked))
}

func TestHandleSendErrors_RateLimitWaitBoundedByTimeRemaining(t *testing.T) {
	start := time.Now()
	err := HandleSendErrors(context.Background(), SendErrorsParams{
		Errors:        []types.TargetError{{Target: "a", Err: &types.HTTPError{Code: 429, RetryAfter: time.Hour}}},
		TimeRemaining: 20 * time.Millisecond,
		Log:           quietEntry(),
	})

	assert.True(t, apperrors.IsRetryable(err))
	assert.GreaterOrEqual(t, time.Since(start), 20*time.Millisecond)
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestHandleSendErrors_NoWaitOnFinalAttempt(t *testing.T) {
	start := time.Now()
	err := HandleSendErrors(context.Background(), SendErrorsParams{
		Errors:         []types.TargetError{{Target: "a", Err: &types.HTTPError{Code: 429, RetryAfter: time.Hour}}},
		TimeRemaining:  time.Hour,
		IsFinalAttempt: true,
		Log:            quietEntry(),
	})

	assert.Error(t, err)
	assert.Less(t, time.Since(start), time.Second)
}

func TestHandleSendErrors_Empty(t *testing.T) {
	err := HandleSendErrors(context.Background(), SendErrorsParams{})
	assert.Error(t, err)
}

func TestSendErrorsFrom(t *testing.T) {
	at := time.Unix(1700000000, 0)
	err := apperrors.Wrap(types.NewSendMessageProtoError(&types.SendResult{Failed: []types.TargetError{
		{Target: "aci-p2", Err: &types.UnregisteredUserError{ServiceID: "aci-p2"}},
		{Target: "aci-x", Err: &types.HTTPError{Code: 500}},
	}}), apperrors.ErrCodeSendFailed, "send failed")

	got := SendErrorsFrom(err, map[string]string{"aci-p2": "p2"}, at)

	assert.Equal(t, []models.SendError{
		{ConversationID: "p2", ServiceID: "aci-p2", Code: "UNREGISTERED", Message: "user aci-p2 is not registered", At: at},
		{ServiceID: "aci-x", Code: "SERVER", Message: "http error 500", At: at},
	}, got)

	single := SendErrorsFrom(errors.New("boom"), nil, at)
	require.Len(t, single, 1)
	assert.Equal(t, "boom", single[0].Message)
	assert.Nil(t, SendErrorsFrom(nil, nil, at))
}
