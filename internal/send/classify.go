package send

import (
	"context"
	"errors"
	"net/http"
	"time"

	apperrors "sendqueue/internal/errors"
	"sendqueue/internal/models"
	"sendqueue/internal/retry"
	"sendqueue/pkg/transport/types"

	"github.com/sirupsen/logrus"
)

// Classification is the verdict on one delivery error.
type Classification struct {
	Code      apperrors.ErrorCode
	Retryable bool
	// Stop means the server asked us to stop sending (508 or a spam
	// challenge); no further attempts are made.
	Stop       bool
	RetryAfter time.Duration
}

// Classify maps a transport or handler error to a delivery decision.
func Classify(err error) Classification {
	if err == nil {
		return Classification{}
	}
	if appErr, ok := apperrors.As(err); ok {
		return Classification{
			Code:      appErr.Code,
			Retryable: appErr.Retryable,
			Stop:      appErr.Code == apperrors.ErrCodeServerStop || appErr.Code == apperrors.ErrCodeChallenge,
		}
	}

	var (
		netErr       *types.NetworkError
		httpErr      *types.HTTPError
		unregistered *types.UnregisteredUserError
		identity     *types.OutgoingIdentityKeyError
		challenge    *types.ChallengeError
	)
	switch {
	case errors.As(err, &challenge):
		return Classification{Code: apperrors.ErrCodeChallenge, Stop: true, RetryAfter: challenge.RetryAfter}
	case errors.As(err, &unregistered):
		return Classification{Code: apperrors.ErrCodeUnregistered}
	case errors.As(err, &identity):
		return Classification{Code: apperrors.ErrCodeIdentityKey}
	case errors.As(err, &httpErr):
		return classifyStatus(httpErr.Code, httpErr.RetryAfter)
	case errors.As(err, &netErr):
		return Classification{Code: apperrors.ErrCodeNetwork, Retryable: true}
	case errors.Is(err, context.DeadlineExceeded):
		return Classification{Code: apperrors.ErrCodeNetwork, Retryable: true}
	}

	// Unknown failures are treated as transient; the deadline bounds them.
	return Classification{Code: apperrors.ErrCodeSendFailed, Retryable: true}
}

func classifyStatus(status int, retryAfter time.Duration) Classification {
	switch status {
	case http.StatusUnauthorized:
		// Sealed-sender rejection: the next attempt goes out unsealed.
		return Classification{Code: apperrors.ErrCodeAuthentication, Retryable: true}
	case http.StatusRequestEntityTooLarge, http.StatusTooManyRequests:
		return Classification{Code: apperrors.ErrCodeRateLimit, Retryable: true, RetryAfter: retryAfter}
	}
	appErr := apperrors.NewTransportError("send", status, nil)
	return Classification{
		Code:      appErr.Code,
		Retryable: appErr.Retryable,
		Stop:      appErr.Code == apperrors.ErrCodeServerStop || appErr.Code == apperrors.ErrCodeChallenge,
	}
}

// SendErrorsParams describes a failed attempt for HandleSendErrors.
type SendErrorsParams struct {
	Errors         []types.TargetError
	IsFinalAttempt bool
	TimeRemaining  time.Duration
	// MarkFailed finalizes the owning entity when the server asks us to stop.
	MarkFailed func(ctx context.Context, err error)
	Log        *logrus.Entry
}

// HandleSendErrors turns the per-target errors of an attempt into the error
// the queue acts on. It returns nil only after the server asked us to stop,
// in which case MarkFailed has already run. Otherwise the result is
// retryable when any target failed transiently, and terminal when every
// failure was permanent. Rate-limited attempts wait out the server's
// retry-after hint, bounded by the time remaining.
func HandleSendErrors(ctx context.Context, params SendErrorsParams) error {
	log := params.Log
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	if len(params.Errors) == 0 {
		return apperrors.New(apperrors.ErrCodeSendFailed, "send failed without per-target errors")
	}

	proto := types.NewSendMessageProtoError(&types.SendResult{Failed: params.Errors})

	var (
		retryable  bool
		stop       bool
		code       = apperrors.ErrCodeSendFailed
		retryAfter time.Duration
	)
	for _, te := range params.Errors {
		c := Classify(te.Err)
		if c.Stop {
			stop = true
			code = c.Code
		}
		if c.Retryable {
			retryable = true
			if code == apperrors.ErrCodeSendFailed {
				code = c.Code
			}
		}
		if c.RetryAfter > retryAfter {
			retryAfter = c.RetryAfter
		}
	}

	log.WithFields(logrus.Fields{
		"errors":    len(params.Errors),
		"retryable": retryable,
		"final":     params.IsFinalAttempt,
	}).Info("Send attempt failed")

	if stop {
		stopErr := apperrors.Wrap(proto, code, "server asked us to stop sending")
		log.WithField("code", code).Warn("Giving up on job")
		if params.MarkFailed != nil {
			params.MarkFailed(ctx, stopErr)
		}
		return nil
	}

	if !retryable {
		return apperrors.Wrap(proto, code, "send failed permanently")
	}

	if retryAfter > 0 && !params.IsFinalAttempt {
		wait := retryAfter
		if params.TimeRemaining < wait {
			wait = params.TimeRemaining
		}
		log.WithField("retry_after", wait.String()).Info("Rate limited, waiting before next attempt")
		if err := retry.Sleep(ctx, wait); err != nil {
			return err
		}
	}
	return apperrors.WrapRetryable(proto, code, "send failed")
}

// SendErrorsFrom flattens err into the per-participant records saved on a
// message. conversationByTarget maps transport targets back to
// conversation ids; unknown targets keep an empty conversation id.
func SendErrorsFrom(err error, conversationByTarget map[string]string, at time.Time) []models.SendError {
	if err == nil {
		return nil
	}
	var proto *types.SendMessageProtoError
	if !errors.As(err, &proto) || len(proto.Errors) == 0 {
		return []models.SendError{{
			Code:    string(Classify(err).Code),
			Message: err.Error(),
			At:      at,
		}}
	}

	out := make([]models.SendError, 0, len(proto.Errors))
	for _, te := range proto.Errors {
		out = append(out, models.SendError{
			ConversationID: conversationByTarget[te.Target],
			ServiceID:      te.Target,
			Code:           string(Classify(te.Err).Code),
			Message:        te.Err.Error(),
			At:             at,
		})
	}
	return out
}
