package types

// Attachment is an uploaded-or-inline attachment pointer sent with a message.
type Attachment struct {
	ID          string `json:"id"`
	ContentType string `json:"contentType"`
	Size        int64  `json:"size"`
	Data        []byte `json:"data,omitempty"`
}

type Preview struct {
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

// Reaction is the wire form of a reaction. Remove marks a retraction, in
// which case Emoji carries the emoji being retracted.
type Reaction struct {
	Emoji                 string `json:"emoji"`
	Remove                bool   `json:"remove,omitempty"`
	TargetAuthorServiceID string `json:"targetAuthorServiceId"`
	TargetTimestamp       int64  `json:"targetTimestamp"`
}

// MessageContent is the payload of a data message.
type MessageContent struct {
	Timestamp     int64        `json:"timestamp"`
	Body          string       `json:"body,omitempty"`
	Attachments   []Attachment `json:"attachments,omitempty"`
	Preview       []Preview    `json:"preview,omitempty"`
	Quote         *Quote       `json:"quote,omitempty"`
	Sticker       *Sticker     `json:"sticker,omitempty"`
	Reaction      *Reaction    `json:"reaction,omitempty"`
	ExpireTimer   int          `json:"expireTimer,omitempty"`
	GroupID       string       `json:"groupId,omitempty"`
	GroupRevision *int         `json:"groupRevision,omitempty"`
}

type SyncKind string

const (
	SyncKindRead         SyncKind = "read"
	SyncKindView         SyncKind = "view"
	SyncKindViewOnceOpen SyncKind = "viewOnceOpen"
)

// SyncEntry identifies one message acknowledged on another device.
type SyncEntry struct {
	SenderE164 string `json:"senderE164,omitempty"`
	SenderACI  string `json:"senderAci,omitempty"`
	Timestamp  int64  `json:"timestamp"`
}

// SyncContent is a sync-only payload delivered to the user's own devices.
// Exactly one of Sent or Entries is populated.
type SyncContent struct {
	Kind    SyncKind        `json:"kind,omitempty"`
	Entries []SyncEntry     `json:"entries,omitempty"`
	Sent    *MessageContent `json:"sent,omitempty"`
	// DestinationServiceID is set when Sent mirrors a direct message.
	DestinationServiceID string `json:"destinationServiceId,omitempty"`
}

// SendOptions tunes a single send.
type SendOptions struct {
	// UnsealedTargets are recipients that must not receive sealed-sender envelopes.
	UnsealedTargets []string `json:"unsealedTargets,omitempty"`
	Urgent          bool     `json:"urgent,omitempty"`
}

type DirectSendRequest struct {
	Identifier string         `json:"identifier"`
	Content    MessageContent `json:"content"`
	Options    SendOptions    `json:"options"`
}

type GroupSendRequest struct {
	GroupID    string         `json:"groupId"`
	Revision   *int           `json:"revision,omitempty"`
	Recipients []string       `json:"recipients"`
	Content    MessageContent `json:"content"`
	Options    SendOptions    `json:"options"`
}

type SyncSendRequest struct {
	Timestamp int64       `json:"timestamp"`
	Sync      SyncContent `json:"sync"`
	Options   SendOptions `json:"options"`
}

// SendResult is the per-target outcome of one send call.
type SendResult struct {
	Timestamp              int64         `json:"timestamp"`
	Succeeded              []string      `json:"succeeded"`
	Failed                 []TargetError `json:"failed,omitempty"`
	SealedSenderDowngrades []string      `json:"sealedSenderDowngrades,omitempty"`
}

// FullySent reports whether no target failed.
func (r *SendResult) FullySent() bool {
	return r != nil && len(r.Failed) == 0
}

// Errors returns the per-target errors in target order.
func (r *SendResult) Errors() []error {
	if r == nil {
		return nil
	}
	out := make([]error, 0, len(r.Failed))
	for _, f := range r.Failed {
		out = append(out, f.Err)
	}
	return out
}
