package models

type ConversationType string

const (
	ConversationTypeDirect ConversationType = "direct"
	ConversationTypeGroup  ConversationType = "group"
)

// SealedSenderMode tracks whether anonymous delivery is used for a recipient.
type SealedSenderMode int

const (
	SealedSenderUnknown SealedSenderMode = iota
	SealedSenderEnabled
	SealedSenderDisabled
	SealedSenderUnrestricted
)

// Conversation is the view of a contact or group the send jobs depend on.
type Conversation struct {
	ID             string           `json:"id"`
	Type           ConversationType `json:"type"`
	ServiceID      string           `json:"serviceId,omitempty"`
	GroupID        string           `json:"groupId,omitempty"`
	Revision       int              `json:"revision,omitempty"`
	MemberIDs      []string         `json:"memberIds,omitempty"`
	IsMe           bool             `json:"isMe,omitempty"`
	Untrusted      bool             `json:"untrusted,omitempty"`
	Unregistered   bool             `json:"unregistered,omitempty"`
	Blocked        bool             `json:"blocked,omitempty"`
	Accepted       bool             `json:"accepted"`
	SealedSender   SealedSenderMode `json:"sealedSender"`
	ExpireTimer    int              `json:"expireTimer,omitempty"`
	ProfileSharing bool             `json:"profileSharing,omitempty"`
}

func (c *Conversation) IsGroup() bool {
	return c.Type == ConversationTypeGroup
}

func (c *Conversation) IsDirect() bool {
	return c.Type == ConversationTypeDirect
}

// HasMember reports whether conversationID belongs to this group. Direct
// conversations contain only themselves.
func (c *Conversation) HasMember(conversationID string) bool {
	if !c.IsGroup() {
		return c.ID == conversationID
	}
	for _, id := range c.MemberIDs {
		if id == conversationID {
			return true
		}
	}
	return false
}

// SendTarget returns the identifier to deliver to, or "" when there is none.
func (c *Conversation) SendTarget() string {
	if c.IsGroup() {
		return ""
	}
	return c.ServiceID
}

// Clone returns a copy safe to mutate.
func (c *Conversation) Clone() *Conversation {
	if c == nil {
		return nil
	}
	out := *c
	out.MemberIDs = append([]string(nil), c.MemberIDs...)
	return &out
}
