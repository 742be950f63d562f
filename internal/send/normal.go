package send

import (
	"context"
	"encoding/json"
	"fmt"

	apperrors "sendqueue/internal/errors"
	"sendqueue/internal/jobs"
	"sendqueue/internal/models"
	"sendqueue/internal/privacy"
	"sendqueue/pkg/transport/types"

	"github.com/sirupsen/logrus"
)

// NormalMessageHandler delivers an outgoing message to every participant of
// its conversation that does not have it yet.
type NormalMessageHandler struct {
	deps Deps
}

func NewNormalMessageHandler(deps Deps) *NormalMessageHandler {
	return &NormalMessageHandler{deps: deps.withDefaults()}
}

func (h *NormalMessageHandler) Parse(payload json.RawMessage) (jobs.Job, error) {
	var data models.NormalMessageJobData
	if err := json.Unmarshal(payload, &data); err != nil {
		return nil, err
	}
	if data.MessageID == "" || data.ConversationID == "" {
		return nil, fmt.Errorf("messageId and conversationId are required")
	}
	return &normalMessageJob{deps: h.deps, data: data}, nil
}

type normalMessageJob struct {
	deps Deps
	data models.NormalMessageJobData
	// conversationByTarget is remembered from the last attempt so MarkFailed
	// can attribute per-target errors.
	conversationByTarget map[string]string
}

func (j *normalMessageJob) LaneKey() string {
	return j.data.ConversationID
}

func (j *normalMessageJob) Run(ctx context.Context, info jobs.RunInfo) error {
	d := j.deps
	log := info.Log.WithFields(logrus.Fields{
		"message_id":      privacy.MaskMessageID(j.data.MessageID),
		"conversation_id": privacy.MaskConversationID(j.data.ConversationID),
	})

	msg, err := d.Repository.GetMessage(ctx, j.data.MessageID)
	if err != nil {
		if isNotFound(err) {
			log.Info("Message no longer exists, nothing to send")
			return nil
		}
		return storageError("load message", err)
	}
	if !msg.IsOutgoing() {
		log.Warn("Message is not outgoing, skipping")
		return nil
	}
	if msg.Erased || msg.DeletedForEveryone {
		log.Info("Message was deleted, skipping")
		return nil
	}
	if msg.ConversationID != j.data.ConversationID {
		log.Error("Message belongs to a different conversation than the job, skipping")
		return nil
	}

	if !info.ShouldContinue {
		log.Info("Ran out of time, marking message failed")
		j.markMessageFailed(ctx, msg, apperrors.NewDeadlineError(info.JobID, 0), log)
		return nil
	}

	conv, err := d.Repository.GetConversation(ctx, j.data.ConversationID)
	if err != nil {
		if isNotFound(err) {
			log.Warn("Conversation no longer exists, skipping")
			return nil
		}
		return storageError("load conversation", err)
	}
	ourID, err := d.Repository.GetOurConversationID(ctx)
	if err != nil {
		return storageError("load our conversation", err)
	}

	ids := make([]string, 0, len(msg.SendStateByConversationID))
	for id := range msg.SendStateByConversationID {
		ids = append(ids, id)
	}
	r, err := resolveRecipients(ctx, d.Repository, ids, recipientFilter{
		conversation: conv,
		ourID:        ourID,
		isSent: func(id string) bool {
			return msg.SendStateByConversationID[id].Status.IsSent()
		},
	})
	if err != nil {
		return storageError("resolve recipients", err)
	}
	j.conversationByTarget = r.conversationByTarget

	if len(r.Untrusted) > 0 {
		log.WithField("untrusted", len(r.Untrusted)).Warn("Conversation has untrusted participants, not sending")
		if d.Notifier != nil {
			d.Notifier.ConversationStoppedByMissingVerification(ctx, conv.ID, r.Untrusted)
		}
		j.markMessageFailed(ctx, msg, apperrors.NewUntrustedError(r.Untrusted), log)
		return nil
	}

	if len(r.All) == 0 {
		log.Warn("No recipients left to send to")
		return nil
	}

	content, err := d.buildMessageContent(ctx, msg, conv, j.data.Revision, log)
	if err != nil {
		return apperrors.Wrap(err, apperrors.ErrCodeSendFailed, "failed to build message content")
	}
	options := types.SendOptions{UnsealedTargets: r.unsealed, Urgent: true}

	var (
		result   *types.SendResult
		sendErr  error
		syncOnly bool
	)
	switch {
	case len(r.WithoutMe) == 0:
		if !conv.IsMe && !conv.IsGroup() && len(r.AlreadySent) == 0 {
			log.Warn("No valid recipients")
			j.markMessageFailed(ctx, msg, apperrors.New(apperrors.ErrCodeSendFailed, "No valid recipients"), log)
			return nil
		}
		syncOnly = true
		log.Info("Sending sync message only")
		result, sendErr = d.Transport.SendSyncMessageOnly(ctx, types.SyncSendRequest{
			Timestamp: content.Timestamp,
			Sync: types.SyncContent{
				Sent:                 &content,
				DestinationServiceID: conv.SendTarget(),
			},
			Options: options,
		})
	case conv.IsGroup():
		log.WithField("recipients", len(r.WithoutMe)).Info("Sending group message")
		result, sendErr = d.Transport.SendToGroup(ctx, types.GroupSendRequest{
			GroupID:    conv.GroupID,
			Revision:   j.data.Revision,
			Recipients: r.Targets(r.WithoutMe),
			Content:    content,
			Options:    options,
		})
	default:
		if reason := directRefusal(conv); reason != "" {
			log.WithField("reason", reason).Warn("Refusing to send to conversation")
			j.markMessageFailed(ctx, msg, apperrors.New(apperrors.ErrCodeSendFailed, reason), log)
			return nil
		}
		log.Info("Sending direct message")
		result, sendErr = d.Transport.SendMessageToIdentifier(ctx, types.DirectSendRequest{
			Identifier: conv.ServiceID,
			Content:    content,
			Options:    options,
		})
	}

	if sendErr != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return HandleSendErrors(ctx, SendErrorsParams{
			Errors:         []types.TargetError{{Err: sendErr}},
			IsFinalAttempt: info.IsFinalAttempt,
			TimeRemaining:  info.TimeRemaining,
			MarkFailed:     j.MarkFailed,
			Log:            log,
		})
	}

	d.applyRecipientState(ctx, log, result, r)
	if err := j.recordResult(ctx, result, r, ourID, syncOnly); err != nil {
		return err
	}

	if result.FullySent() {
		log.WithField("succeeded", len(result.Succeeded)).Info("Message sent")
		return nil
	}
	return HandleSendErrors(ctx, SendErrorsParams{
		Errors:         result.Failed,
		IsFinalAttempt: info.IsFinalAttempt,
		TimeRemaining:  info.TimeRemaining,
		MarkFailed:     j.MarkFailed,
		Log:            log,
	})
}

// recordResult folds a send result into the message's per-participant
// state. The message is reloaded so concurrent edits to other fields are
// not overwritten.
func (j *normalMessageJob) recordResult(ctx context.Context, result *types.SendResult, r *recipients, ourID string, syncOnly bool) error {
	d := j.deps
	msg, err := d.Repository.GetMessage(ctx, j.data.MessageID)
	if err != nil {
		if isNotFound(err) {
			return nil
		}
		return storageError("reload message", err)
	}

	now := d.Now()
	for _, target := range result.Succeeded {
		if id := r.ConversationFor(target); id != "" {
			msg.SetSendState(id, models.SendStatusSent, now)
		}
	}
	// Our own devices get the sent transcript once any peer accepted the
	// message, or directly for a sync-only send.
	if r.Includes(ourID) && (syncOnly || len(result.Succeeded) > 0) {
		msg.SetSendState(ourID, models.SendStatusSent, now)
	}
	for _, failure := range result.Failed {
		if !isPermanentForTarget(failure.Err) {
			continue
		}
		if id := r.ConversationFor(failure.Target); id != "" {
			msg.SetSendState(id, models.SendStatusFailed, now)
		}
	}

	if err := d.Repository.SaveMessage(ctx, msg); err != nil {
		return storageError("save message", err)
	}
	return nil
}

// MarkFailed records a terminal failure: every participant still pending
// becomes failed and the per-target errors are saved on the message.
func (j *normalMessageJob) MarkFailed(ctx context.Context, err error) {
	log := j.deps.Logger.WithField("message_id", privacy.MaskMessageID(j.data.MessageID))
	msg, getErr := j.deps.Repository.GetMessage(ctx, j.data.MessageID)
	if getErr != nil {
		if !isNotFound(getErr) {
			log.WithError(getErr).Error("Failed to load message to mark it failed")
		}
		return
	}
	j.markMessageFailed(ctx, msg, err, log)
}

func (j *normalMessageJob) markMessageFailed(ctx context.Context, msg *models.Message, err error, log *logrus.Entry) {
	msg.MarkFailed(SendErrorsFrom(err, j.conversationByTarget, j.deps.Now()), j.deps.Now())
	if saveErr := j.deps.Repository.SaveMessage(ctx, msg); saveErr != nil {
		log.WithError(saveErr).Error("Failed to save failed message")
	}
}

// directRefusal explains why a direct conversation cannot receive messages,
// or returns "".
func directRefusal(conv *models.Conversation) string {
	switch {
	case conv.IsMe:
		return ""
	case conv.Unregistered:
		return "recipient is not registered"
	case conv.Blocked:
		return "recipient is blocked"
	case !conv.Accepted:
		return "message request not accepted"
	}
	return ""
}
