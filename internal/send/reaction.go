package send

import (
	"context"
	"encoding/json"
	"fmt"

	"sendqueue/internal/jobs"
	"sendqueue/internal/models"
	"sendqueue/internal/privacy"
	"sendqueue/pkg/transport/types"

	"github.com/sirupsen/logrus"
)

// ReactionHandler delivers our newest pending reaction on a message.
// Older pending reactions from us are superseded and never sent.
type ReactionHandler struct {
	deps Deps
}

func NewReactionHandler(deps Deps) *ReactionHandler {
	return &ReactionHandler{deps: deps.withDefaults()}
}

func (h *ReactionHandler) Parse(payload json.RawMessage) (jobs.Job, error) {
	var data models.ReactionJobData
	if err := json.Unmarshal(payload, &data); err != nil {
		return nil, err
	}
	if data.MessageID == "" || data.ConversationID == "" {
		return nil, fmt.Errorf("messageId and conversationId are required")
	}
	return &reactionJob{deps: h.deps, data: data}, nil
}

type reactionJob struct {
	deps Deps
	data models.ReactionJobData
}

func (j *reactionJob) LaneKey() string {
	return j.data.ConversationID
}

func (j *reactionJob) Run(ctx context.Context, info jobs.RunInfo) error {
	d := j.deps
	log := info.Log.WithFields(logrus.Fields{
		"message_id":      privacy.MaskMessageID(j.data.MessageID),
		"conversation_id": privacy.MaskConversationID(j.data.ConversationID),
	})

	msg, err := d.Repository.GetMessage(ctx, j.data.MessageID)
	if err != nil {
		if isNotFound(err) {
			log.Info("Message no longer exists, dropping reaction")
			return nil
		}
		return storageError("load message", err)
	}
	ourID, err := d.Repository.GetOurConversationID(ctx)
	if err != nil {
		return storageError("load our conversation", err)
	}

	reaction, emojiToRemove := models.NewestPendingOutgoingReaction(msg.Reactions, ourID)
	if reaction == nil {
		log.Info("No pending reaction to send")
		return nil
	}
	msg.Reactions = models.DropSupersededReactions(msg.Reactions, ourID, reaction)

	conv, err := d.Repository.GetConversation(ctx, j.data.ConversationID)
	if err != nil && !isNotFound(err) {
		return storageError("load conversation", err)
	}
	if reason := cannotReact(msg, conv); reason != "" {
		log.WithField("reason", reason).Info("Cannot react, marking reaction failed")
		return j.failReaction(ctx, msg, reaction)
	}
	if reaction.IsRetraction() && emojiToRemove == "" {
		log.Info("Retraction has no earlier reaction to remove, dropping it")
		return j.failReaction(ctx, msg, reaction)
	}
	if !info.ShouldContinue {
		log.Info("Ran out of time, marking reaction failed")
		return j.failReaction(ctx, msg, reaction)
	}

	r, err := resolveRecipients(ctx, d.Repository, reaction.UnsentConversationIDs(), recipientFilter{
		conversation: conv,
		ourID:        ourID,
		skipBlocked:  true,
	})
	if err != nil {
		return storageError("resolve recipients", err)
	}
	if len(r.Untrusted) > 0 {
		log.WithField("untrusted", len(r.Untrusted)).Warn("Conversation has untrusted participants, not sending reaction")
		if d.Notifier != nil {
			d.Notifier.ConversationStoppedByMissingVerification(ctx, conv.ID, r.Untrusted)
		}
		return j.failReaction(ctx, msg, reaction)
	}

	wire := types.Reaction{
		Emoji:                 reaction.Emoji,
		TargetAuthorServiceID: reaction.TargetAuthorID,
		TargetTimestamp:       reaction.TargetTimestamp,
	}
	if reaction.IsRetraction() {
		wire.Emoji = emojiToRemove
		wire.Remove = true
	}
	content := types.MessageContent{
		Timestamp: reaction.Timestamp,
		Reaction:  &wire,
	}
	if conv.IsGroup() {
		content.GroupID = conv.GroupID
		content.GroupRevision = j.data.Revision
	}
	options := types.SendOptions{UnsealedTargets: r.unsealed}

	var (
		result     *types.SendResult
		sendErr    error
		successful []string
	)
	switch {
	case len(r.WithoutMe) == 0:
		log.Info("Sending reaction sync message only")
		result, sendErr = d.Transport.SendSyncMessageOnly(ctx, types.SyncSendRequest{
			Timestamp: content.Timestamp,
			Sync:      types.SyncContent{Sent: &content, DestinationServiceID: conv.SendTarget()},
			Options:   options,
		})
		if sendErr == nil {
			successful = append(successful, ourID)
		}
	case conv.IsGroup():
		log.WithField("recipients", len(r.WithoutMe)).Info("Sending group reaction")
		result, sendErr = d.Transport.SendToGroup(ctx, types.GroupSendRequest{
			GroupID:    conv.GroupID,
			Revision:   j.data.Revision,
			Recipients: r.Targets(r.WithoutMe),
			Content:    content,
			Options:    options,
		})
	default:
		if reason := directRefusal(conv); reason != "" {
			log.WithField("reason", reason).Warn("Refusing to send reaction")
			return j.failReaction(ctx, msg, reaction)
		}
		log.Info("Sending direct reaction")
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
		if err := j.saveReactions(ctx, msg); err != nil {
			return err
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
	for _, target := range result.Succeeded {
		if id := r.ConversationFor(target); id != "" {
			successful = append(successful, id)
		}
	}
	if len(result.Succeeded) > 0 && r.Includes(ourID) {
		successful = append(successful, ourID)
	}

	msg.Reactions = models.MarkOutgoingReactionSent(msg.Reactions, reaction, successful)
	if err := j.saveReactions(ctx, msg); err != nil {
		return err
	}

	if result.FullySent() {
		log.WithField("succeeded", len(successful)).Info("Reaction sent")
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

// MarkFailed gives up on our newest pending reaction.
func (j *reactionJob) MarkFailed(ctx context.Context, err error) {
	log := j.deps.Logger.WithField("message_id", privacy.MaskMessageID(j.data.MessageID))
	msg, getErr := j.deps.Repository.GetMessage(ctx, j.data.MessageID)
	if getErr != nil {
		if !isNotFound(getErr) {
			log.WithError(getErr).Error("Failed to load message to mark reaction failed")
		}
		return
	}
	ourID, idErr := j.deps.Repository.GetOurConversationID(ctx)
	if idErr != nil {
		log.WithError(idErr).Error("Failed to load our conversation to mark reaction failed")
		return
	}
	reaction, _ := models.NewestPendingOutgoingReaction(msg.Reactions, ourID)
	if reaction == nil {
		return
	}
	log.WithError(err).Warn("Reaction failed")
	if saveErr := j.failReaction(ctx, msg, reaction); saveErr != nil {
		log.WithError(saveErr).Error("Failed to save failed reaction")
	}
}

func (j *reactionJob) failReaction(ctx context.Context, msg *models.Message, reaction *models.Reaction) error {
	msg.Reactions = models.MarkOutgoingReactionFailed(msg.Reactions, reaction)
	return j.saveReactions(ctx, msg)
}

func (j *reactionJob) saveReactions(ctx context.Context, msg *models.Message) error {
	if err := j.deps.Repository.SaveMessage(ctx, msg); err != nil {
		return storageError("save reactions", err)
	}
	return nil
}

// cannotReact explains why a reaction on msg cannot be delivered, or returns "".
func cannotReact(msg *models.Message, conv *models.Conversation) string {
	switch {
	case conv == nil:
		return "conversation no longer exists"
	case msg.Erased || msg.DeletedForEveryone:
		return "message was deleted"
	case msg.ConversationID != conv.ID:
		return "message belongs to another conversation"
	}
	return ""
}
