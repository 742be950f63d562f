package send

import (
	"context"
	"time"

	apperrors "sendqueue/internal/errors"
	"sendqueue/internal/metrics"
	"sendqueue/internal/models"
	"sendqueue/internal/privacy"
	"sendqueue/pkg/transport/types"

	"github.com/sirupsen/logrus"
)

// Deps are the collaborators shared by every delivery handler.
type Deps struct {
	Repository  Repository
	Transport   types.Transport
	Attachments AttachmentLoader
	Notifier    Notifier
	Logger      *logrus.Logger
	Metrics     *metrics.Registry
	Now         func() time.Time
}

func (d Deps) withDefaults() Deps {
	if d.Logger == nil {
		d.Logger = logrus.New()
	}
	if d.Metrics == nil {
		d.Metrics = metrics.GetRegistry()
	}
	if d.Now == nil {
		d.Now = time.Now
	}
	return d
}

func isNotFound(err error) bool {
	return apperrors.HasCode(err, apperrors.ErrCodeNotFound)
}

func storageError(operation string, err error) error {
	return apperrors.WrapRetryable(err, apperrors.ErrCodeDatabaseQuery, operation+" failed")
}

// applyRecipientState persists what a send taught us about individual
// recipients: unregistered users, changed identity keys and sealed-sender
// rejections. Conversations are only written when something changed.
func (d Deps) applyRecipientState(ctx context.Context, log *logrus.Entry, result *types.SendResult, r *recipients) {
	changed := make(map[string]*models.Conversation)
	load := func(target string) *models.Conversation {
		id := r.ConversationFor(target)
		if id == "" {
			return nil
		}
		if conv, ok := changed[id]; ok {
			return conv
		}
		conv, err := d.Repository.GetConversation(ctx, id)
		if err != nil {
			log.WithError(err).WithField("conversation_id", privacy.MaskConversationID(id)).Warn("Failed to load recipient conversation")
			return nil
		}
		changed[id] = conv
		return conv
	}

	for _, target := range result.SealedSenderDowngrades {
		if conv := load(target); conv != nil {
			conv.SealedSender = models.SealedSenderDisabled
		}
	}
	for _, failure := range result.Failed {
		code := Classify(failure.Err).Code
		switch code {
		case apperrors.ErrCodeUnregistered:
			if conv := load(failure.Target); conv != nil {
				conv.Unregistered = true
			}
		case apperrors.ErrCodeIdentityKey:
			if conv := load(failure.Target); conv != nil {
				conv.Untrusted = true
			}
		case apperrors.ErrCodeAuthentication:
			if conv := load(failure.Target); conv != nil {
				conv.SealedSender = models.SealedSenderDisabled
			}
		default:
			continue
		}
		d.Metrics.IncrementCounter(metrics.SendRecipientFailures, map[string]string{"code": string(code)}, "Recipients that failed permanently or changed state")
	}

	for id, conv := range changed {
		if err := d.Repository.UpdateConversation(ctx, conv); err != nil {
			log.WithError(err).WithField("conversation_id", privacy.MaskConversationID(id)).Warn("Failed to update recipient conversation")
		}
	}
}

// isPermanentForTarget reports whether a per-target error means the target
// will not get this content no matter how often we retry.
func isPermanentForTarget(err error) bool {
	switch Classify(err).Code {
	case apperrors.ErrCodeUnregistered, apperrors.ErrCodeIdentityKey:
		return true
	}
	return false
}
