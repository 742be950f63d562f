package models

import (
	"sort"
)

// Reaction is an emoji reaction on a message. An empty Emoji is a retraction.
// A reaction is pending while IsSentByConversationID is non-nil.
type Reaction struct {
	Emoji                  string          `json:"emoji,omitempty"`
	FromID                 string          `json:"fromId"`
	TargetAuthorID         string          `json:"targetAuthorId"`
	TargetTimestamp        int64           `json:"targetTimestamp"`
	Timestamp              int64           `json:"timestamp"`
	IsSentByConversationID map[string]bool `json:"isSentByConversationId,omitempty"`
}

func (r *Reaction) IsRetraction() bool {
	return r.Emoji == ""
}

func (r *Reaction) IsPending() bool {
	return r.IsSentByConversationID != nil
}

func (r *Reaction) IsFullySent() bool {
	for _, sent := range r.IsSentByConversationID {
		if !sent {
			return false
		}
	}
	return true
}

func (r *Reaction) isCompletelyUnsent() bool {
	for _, sent := range r.IsSentByConversationID {
		if sent {
			return false
		}
	}
	return true
}

func (r *Reaction) sameAs(other *Reaction) bool {
	return r.FromID == other.FromID && r.Timestamp == other.Timestamp
}

// UnsentConversationIDs lists participants that have not acknowledged the
// reaction, sorted for stable iteration.
func (r *Reaction) UnsentConversationIDs() []string {
	ids := make([]string, 0, len(r.IsSentByConversationID))
	for id, sent := range r.IsSentByConversationID {
		if !sent {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids
}

func (r Reaction) Clone() Reaction {
	if r.IsSentByConversationID != nil {
		m := make(map[string]bool, len(r.IsSentByConversationID))
		for k, v := range r.IsSentByConversationID {
			m[k] = v
		}
		r.IsSentByConversationID = m
	}
	return r
}

// NewestPendingOutgoingReaction finds the most recent pending reaction from
// ourID. When that reaction is a retraction, emojiToRemove is the emoji of the
// newest earlier reaction from us, which is what the peers need to remove.
func NewestPendingOutgoingReaction(reactions []Reaction, ourID string) (*Reaction, string) {
	var newest *Reaction
	for i := range reactions {
		r := &reactions[i]
		if r.FromID != ourID || !r.IsPending() {
			continue
		}
		if newest == nil || r.Timestamp > newest.Timestamp {
			newest = r
		}
	}
	if newest == nil {
		return nil, ""
	}

	pending := newest.Clone()
	if !pending.IsRetraction() {
		return &pending, ""
	}

	var previous *Reaction
	for i := range reactions {
		r := &reactions[i]
		if r.FromID != ourID || r.IsRetraction() || r.Timestamp >= pending.Timestamp {
			continue
		}
		if previous == nil || r.Timestamp > previous.Timestamp {
			previous = r
		}
	}
	if previous == nil {
		return &pending, ""
	}
	return &pending, previous.Emoji
}

// DropSupersededReactions removes pending reactions from ourID older than
// newest. They were never the user's latest intent and must not be sent.
func DropSupersededReactions(reactions []Reaction, ourID string, newest *Reaction) []Reaction {
	out := make([]Reaction, 0, len(reactions))
	for _, r := range reactions {
		if r.FromID == ourID && r.IsPending() && r.Timestamp < newest.Timestamp {
			continue
		}
		out = append(out, r)
	}
	return out
}

// MarkOutgoingReactionSent records the participants that acknowledged the
// reaction. Once every participant has it, earlier reactions from the same
// sender are removed, and a retraction disappears entirely.
func MarkOutgoingReactionSent(reactions []Reaction, reaction *Reaction, sentTo []string) []Reaction {
	updated := reaction.Clone()
	if updated.IsSentByConversationID == nil {
		updated.IsSentByConversationID = make(map[string]bool)
	}
	for _, id := range sentTo {
		if _, tracked := updated.IsSentByConversationID[id]; tracked {
			updated.IsSentByConversationID[id] = true
		}
	}

	fullySent := updated.IsFullySent()
	out := make([]Reaction, 0, len(reactions))
	for _, r := range reactions {
		if r.sameAs(&updated) {
			if fullySent {
				if updated.IsRetraction() {
					continue
				}
				updated.IsSentByConversationID = nil
			}
			out = append(out, updated)
			continue
		}
		if fullySent && r.FromID == updated.FromID && r.Timestamp < updated.Timestamp {
			continue
		}
		out = append(out, r)
	}
	return out
}

// MarkOutgoingReactionFailed gives up on a pending reaction. A retraction or a
// reaction nobody received is dropped; otherwise it stops being pending.
func MarkOutgoingReactionFailed(reactions []Reaction, reaction *Reaction) []Reaction {
	out := make([]Reaction, 0, len(reactions))
	for _, r := range reactions {
		if !r.sameAs(reaction) {
			out = append(out, r)
			continue
		}
		if r.IsRetraction() || r.isCompletelyUnsent() {
			continue
		}
		r.IsSentByConversationID = nil
		out = append(out, r)
	}
	return out
}
