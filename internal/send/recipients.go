package send

import (
	"context"
	"sort"

	apperrors "sendqueue/internal/errors"
	"sendqueue/internal/models"
)

// recipients is the outcome of resolving the participants of one attempt.
type recipients struct {
	// All holds conversation ids still to be sent to, including ours.
	All []string
	// WithoutMe is All minus our own conversation.
	WithoutMe []string
	// Untrusted participants block the whole attempt.
	Untrusted []string
	// AlreadySent participants received an earlier attempt.
	AlreadySent []string

	targetByConversation map[string]string
	conversationByTarget map[string]string
	unsealed             []string
}

func (r *recipients) Targets(conversationIDs []string) []string {
	out := make([]string, 0, len(conversationIDs))
	for _, id := range conversationIDs {
		if target := r.targetByConversation[id]; target != "" {
			out = append(out, target)
		}
	}
	return out
}

func (r *recipients) ConversationFor(target string) string {
	return r.conversationByTarget[target]
}

func (r *recipients) Includes(conversationID string) bool {
	for _, id := range r.All {
		if id == conversationID {
			return true
		}
	}
	return false
}

type recipientFilter struct {
	conversation *models.Conversation
	ourID        string
	skipBlocked  bool
	// isSent reports whether a participant already has the content.
	isSent func(conversationID string) bool
}

// resolveRecipients walks the participant ids in sorted order and sorts
// them into the buckets of recipients. Unknown participants, members that
// left the group, unregistered users and participants without a
// deliverable identifier are skipped.
func resolveRecipients(ctx context.Context, repo Repository, ids []string, filter recipientFilter) (*recipients, error) {
	sorted := append([]string(nil), ids...)
	sort.Strings(sorted)

	out := &recipients{
		targetByConversation: make(map[string]string),
		conversationByTarget: make(map[string]string),
	}
	for _, id := range sorted {
		participant, err := repo.GetConversation(ctx, id)
		if err != nil {
			if apperrors.HasCode(err, apperrors.ErrCodeNotFound) {
				continue
			}
			return nil, err
		}

		isMe := participant.IsMe || id == filter.ourID
		if !isMe && !filter.conversation.HasMember(id) {
			continue
		}
		if participant.Untrusted {
			out.Untrusted = append(out.Untrusted, id)
			continue
		}
		if participant.Unregistered {
			continue
		}
		if filter.skipBlocked && participant.Blocked && !isMe {
			continue
		}
		target := participant.SendTarget()
		if target == "" {
			continue
		}
		if filter.isSent != nil && filter.isSent(id) {
			out.AlreadySent = append(out.AlreadySent, id)
			continue
		}

		out.targetByConversation[id] = target
		out.conversationByTarget[target] = id
		out.All = append(out.All, id)
		if !isMe {
			out.WithoutMe = append(out.WithoutMe, id)
			if participant.SealedSender == models.SealedSenderDisabled {
				out.unsealed = append(out.unsealed, target)
			}
		}
	}
	return out, nil
}
