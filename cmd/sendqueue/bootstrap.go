package main

import (
	"context"
	"fmt"

	apperrors "sendqueue/internal/errors"
	"sendqueue/internal/models"
	"sendqueue/internal/privacy"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// selfStore is the slice of the repository needed to set up Note to Self.
type selfStore interface {
	GetOurConversationID(ctx context.Context) (string, error)
	GetConversation(ctx context.Context, id string) (*models.Conversation, error)
	UpdateConversation(ctx context.Context, conv *models.Conversation) error
	SetOurConversationID(ctx context.Context, id string) error
}

// ensureSelfConversation creates the conversation representing our own
// account on first start, and keeps its service id in line with config.
func ensureSelfConversation(ctx context.Context, store selfStore, ownServiceID string, logger *logrus.Logger) error {
	id, err := store.GetOurConversationID(ctx)
	switch {
	case err == nil:
		conv, err := store.GetConversation(ctx, id)
		if err != nil {
			return fmt.Errorf("failed to load own conversation: %w", err)
		}
		if ownServiceID == "" || conv.ServiceID == ownServiceID {
			return nil
		}
		conv.ServiceID = ownServiceID
		if err := store.UpdateConversation(ctx, conv); err != nil {
			return fmt.Errorf("failed to update own conversation: %w", err)
		}
		logger.WithField("service_id", privacy.MaskServiceID(ownServiceID)).Info("Updated own service id")
		return nil
	case !apperrors.HasCode(err, apperrors.ErrCodeNotFound):
		return fmt.Errorf("failed to load own conversation id: %w", err)
	}

	conv := &models.Conversation{
		ID:        uuid.NewString(),
		Type:      models.ConversationTypeDirect,
		ServiceID: ownServiceID,
		IsMe:      true,
		Accepted:  true,
	}
	if err := store.UpdateConversation(ctx, conv); err != nil {
		return fmt.Errorf("failed to create own conversation: %w", err)
	}
	if err := store.SetOurConversationID(ctx, conv.ID); err != nil {
		return fmt.Errorf("failed to record own conversation: %w", err)
	}
	logger.WithField("conversation_id", privacy.MaskConversationID(conv.ID)).Info("Created own conversation")
	return nil
}

// logNotifier surfaces untrusted-identity stops in the log for the operator.
type logNotifier struct {
	logger *logrus.Logger
}

func (n *logNotifier) ConversationStoppedByMissingVerification(ctx context.Context, conversationID string, untrustedIDs []string) {
	masked := make([]string, 0, len(untrustedIDs))
	for _, id := range untrustedIDs {
		masked = append(masked, privacy.MaskConversationID(id))
	}
	n.logger.WithFields(logrus.Fields{
		"conversation_id": privacy.MaskConversationID(conversationID),
		"untrusted":       masked,
	}).Warn("Send stopped until safety numbers are verified")
}

// configureLogger applies the configured level. Levels more verbose than
// info need the verbose flag, since debug output includes identifiers.
func configureLogger(logger *logrus.Logger, level string, verbose bool) {
	if verbose {
		logger.SetLevel(logrus.DebugLevel)
		return
	}
	if level == "" {
		logger.SetLevel(logrus.InfoLevel)
		return
	}
	parsed, err := logrus.ParseLevel(level)
	if err != nil {
		logger.Warnf("Invalid log level %q, defaulting to info", level)
		logger.SetLevel(logrus.InfoLevel)
		return
	}
	if parsed > logrus.InfoLevel {
		parsed = logrus.InfoLevel
	}
	logger.SetLevel(parsed)
}
