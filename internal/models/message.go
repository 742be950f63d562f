package models

import (
	"time"
)

type MessageType string

const (
	MessageTypeOutgoing MessageType = "outgoing"
	MessageTypeIncoming MessageType = "incoming"
)

// SendStatus is the per-participant delivery status of a message or reaction.
type SendStatus string

const (
	SendStatusPending SendStatus = "pending"
	SendStatusSent    SendStatus = "sent"
	SendStatusFailed  SendStatus = "failed"
)

func (s SendStatus) IsSent() bool {
	return s == SendStatusSent
}

func (s SendStatus) IsFailed() bool {
	return s == SendStatusFailed
}

type SendState struct {
	Status    SendStatus `json:"status"`
	UpdatedAt time.Time  `json:"updatedAt"`
}

// Transition moves the state to next. Sent is terminal: once a participant has
// the message it never goes back to pending or failed.
func (s SendState) Transition(next SendStatus, at time.Time) SendState {
	if s.Status == next || s.Status == SendStatusSent {
		return s
	}
	return SendState{Status: next, UpdatedAt: at}
}

// SendError records why delivery to one participant failed.
type SendError struct {
	ConversationID string    `json:"conversationId,omitempty"`
	ServiceID      string    `json:"serviceId,omitempty"`
	Code           string    `json:"code"`
	Message        string    `json:"message"`
	At             time.Time `json:"at"`
}

type Attachment struct {
	ID          string `json:"id"`
	ContentType string `json:"contentType"`
	Path        string `json:"path,omitempty"`
	Size        int64  `json:"size"`
	Data        []byte `json:"-"`
}

type LinkPreview struct {
	URL   string      `json:"url"`
	Title string      `json:"title,omitempty"`
	Image *Attachment `json:"image,omitempty"`
}

type Quote struct {
	ID              int64        `json:"id"`
	AuthorServiceID string       `json:"authorServiceId"`
	Text            string       `json:"text,omitempty"`
	Attachments     []Attachment `json:"attachments,omitempty"`
}

type Sticker struct {
	PackID    string      `json:"packId"`
	StickerID int         `json:"stickerId"`
	Data      *Attachment `json:"data,omitempty"`
}

// Message is the subset of a stored message the delivery jobs read and write.
type Message struct {
	ID                 string      `json:"id"`
	ConversationID     string      `json:"conversationId"`
	Type               MessageType `json:"type"`
	Body               string      `json:"body,omitempty"`
	SentAt             int64       `json:"sentAt,omitempty"`
	Timestamp          int64       `json:"timestamp,omitempty"`
	SourceServiceID    string      `json:"sourceServiceId,omitempty"`
	ExpireTimer        int         `json:"expireTimer,omitempty"`
	Erased             bool        `json:"erased,omitempty"`
	DeletedForEveryone bool        `json:"deletedForEveryone,omitempty"`

	Attachments []Attachment  `json:"attachments,omitempty"`
	Preview     []LinkPreview `json:"preview,omitempty"`
	Quote       *Quote        `json:"quote,omitempty"`
	Sticker     *Sticker      `json:"sticker,omitempty"`

	SendStateByConversationID map[string]SendState `json:"sendStateByConversationId,omitempty"`
	Errors                    []SendError          `json:"errors,omitempty"`
	Reactions                 []Reaction           `json:"reactions,omitempty"`
}

func (m *Message) IsOutgoing() bool {
	return m.Type == MessageTypeOutgoing
}

func (m *Message) IsIncoming() bool {
	return m.Type == MessageTypeIncoming
}

// SetSendState applies a status transition for one participant.
func (m *Message) SetSendState(conversationID string, status SendStatus, at time.Time) {
	if m.SendStateByConversationID == nil {
		m.SendStateByConversationID = make(map[string]SendState)
	}
	current, ok := m.SendStateByConversationID[conversationID]
	if !ok {
		m.SendStateByConversationID[conversationID] = SendState{Status: status, UpdatedAt: at}
		return
	}
	m.SendStateByConversationID[conversationID] = current.Transition(status, at)
}

// IsFullySent reports whether every tracked participant has the message.
func (m *Message) IsFullySent() bool {
	if len(m.SendStateByConversationID) == 0 {
		return false
	}
	for _, state := range m.SendStateByConversationID {
		if !state.Status.IsSent() {
			return false
		}
	}
	return true
}

// HasFailedParticipant reports whether any participant is marked failed.
func (m *Message) HasFailedParticipant() bool {
	for _, state := range m.SendStateByConversationID {
		if state.Status.IsFailed() {
			return true
		}
	}
	return false
}

// MarkFailed moves every participant that has not received the message to
// failed and replaces the saved error list.
func (m *Message) MarkFailed(errs []SendError, at time.Time) {
	for id, state := range m.SendStateByConversationID {
		if state.Status == SendStatusPending {
			m.SendStateByConversationID[id] = state.Transition(SendStatusFailed, at)
		}
	}
	m.Errors = append([]SendError(nil), errs...)
}

// ResetFailed moves failed participants back to pending for a manual retry
// and returns how many were reset.
func (m *Message) ResetFailed(at time.Time) int {
	count := 0
	for id, state := range m.SendStateByConversationID {
		if state.Status.IsFailed() {
			m.SendStateByConversationID[id] = SendState{Status: SendStatusPending, UpdatedAt: at}
			count++
		}
	}
	if count > 0 {
		m.Errors = nil
	}
	return count
}

// Clone returns a deep copy of the message.
func (m *Message) Clone() *Message {
	if m == nil {
		return nil
	}
	out := *m
	out.Attachments = append([]Attachment(nil), m.Attachments...)
	out.Preview = append([]LinkPreview(nil), m.Preview...)
	out.Errors = append([]SendError(nil), m.Errors...)
	if m.Quote != nil {
		q := *m.Quote
		out.Quote = &q
	}
	if m.Sticker != nil {
		s := *m.Sticker
		out.Sticker = &s
	}
	if m.SendStateByConversationID != nil {
		out.SendStateByConversationID = make(map[string]SendState, len(m.SendStateByConversationID))
		for k, v := range m.SendStateByConversationID {
			out.SendStateByConversationID[k] = v
		}
	}
	if m.Reactions != nil {
		out.Reactions = make([]Reaction, len(m.Reactions))
		for i, r := range m.Reactions {
			out.Reactions[i] = r.Clone()
		}
	}
	return &out
}
