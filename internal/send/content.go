package send

import (
	"context"
	"fmt"

	"sendqueue/internal/metrics"
	"sendqueue/internal/models"
	"sendqueue/internal/privacy"
	"sendqueue/pkg/transport/types"

	"github.com/sirupsen/logrus"
)

// messageTimestamp picks the timestamp peers will know the message by:
// SentAt, then Timestamp, then now. Either fallback indicates a
// malformed message and is logged as an error.
func (d Deps) messageTimestamp(msg *models.Message, log *logrus.Entry) int64 {
	if msg.SentAt > 0 {
		return msg.SentAt
	}
	if msg.Timestamp > 0 {
		log.WithField("message_id", privacy.MaskMessageID(msg.ID)).Error("Message has no sent timestamp, using its creation timestamp")
		return msg.Timestamp
	}
	log.WithField("message_id", privacy.MaskMessageID(msg.ID)).Error("Message has no timestamp at all, using current time")
	d.Metrics.IncrementCounter(metrics.SendTimestampFallback, nil, "Sends that fell back to the current time")
	return d.Now().UnixMilli()
}

func (d Deps) loadAttachment(ctx context.Context, att models.Attachment) (types.Attachment, error) {
	out := types.Attachment{ID: att.ID, ContentType: att.ContentType, Size: att.Size, Data: att.Data}
	if len(out.Data) > 0 || d.Attachments == nil || att.Path == "" {
		return out, nil
	}
	data, err := d.Attachments.LoadAttachment(ctx, att)
	if err != nil {
		return types.Attachment{}, fmt.Errorf("failed to load attachment %s: %w", att.ID, err)
	}
	out.Data = data
	if out.Size == 0 {
		out.Size = int64(len(data))
	}
	return out, nil
}

func (d Deps) loadOptionalAttachment(ctx context.Context, att *models.Attachment) (*types.Attachment, error) {
	if att == nil {
		return nil, nil
	}
	loaded, err := d.loadAttachment(ctx, *att)
	if err != nil {
		return nil, err
	}
	return &loaded, nil
}

// buildMessageContent assembles the wire content of msg, loading attachment
// bytes for the body, link previews, quote thumbnails and sticker.
func (d Deps) buildMessageContent(ctx context.Context, msg *models.Message, conv *models.Conversation, revision *int, log *logrus.Entry) (types.MessageContent, error) {
	content := types.MessageContent{
		Timestamp:   d.messageTimestamp(msg, log),
		Body:        msg.Body,
		ExpireTimer: msg.ExpireTimer,
	}
	if conv.IsGroup() {
		content.GroupID = conv.GroupID
		content.GroupRevision = revision
	}

	for _, att := range msg.Attachments {
		loaded, err := d.loadAttachment(ctx, att)
		if err != nil {
			return types.MessageContent{}, err
		}
		content.Attachments = append(content.Attachments, loaded)
	}

	for _, p := range msg.Preview {
		image, err := d.loadOptionalAttachment(ctx, p.Image)
		if err != nil {
			return types.MessageContent{}, err
		}
		content.Preview = append(content.Preview, types.Preview{URL: p.URL, Title: p.Title, Image: image})
	}

	if msg.Quote != nil {
		quote := &types.Quote{
			ID:              msg.Quote.ID,
			AuthorServiceID: msg.Quote.AuthorServiceID,
			Text:            msg.Quote.Text,
		}
		for _, att := range msg.Quote.Attachments {
			loaded, err := d.loadAttachment(ctx, att)
			if err != nil {
				return types.MessageContent{}, err
			}
			quote.Attachments = append(quote.Attachments, loaded)
		}
		content.Quote = quote
	}

	if msg.Sticker != nil {
		data, err := d.loadOptionalAttachment(ctx, msg.Sticker.Data)
		if err != nil {
			return types.MessageContent{}, err
		}
		content.Sticker = &types.Sticker{PackID: msg.Sticker.PackID, StickerID: msg.Sticker.StickerID, Data: data}
	}

	return content, nil
}
