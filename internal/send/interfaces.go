package send

import (
	"context"

	"sendqueue/internal/jobs"
	"sendqueue/internal/models"
)

// Repository is the message store the delivery jobs read and update.
// Lookups of unknown ids return an error carrying apperrors.ErrCodeNotFound.
type Repository interface {
	GetMessage(ctx context.Context, id string) (*models.Message, error)
	SaveMessage(ctx context.Context, msg *models.Message) error
	GetConversation(ctx context.Context, id string) (*models.Conversation, error)
	// GetOurConversationID returns the conversation that represents the
	// local user (Note to Self).
	GetOurConversationID(ctx context.Context) (string, error)
	UpdateConversation(ctx context.Context, conv *models.Conversation) error
}

// AttachmentLoader reads attachment bytes from local storage before upload.
type AttachmentLoader interface {
	LoadAttachment(ctx context.Context, att models.Attachment) ([]byte, error)
}

// Notifier tells the host application about sends it must surface to the user.
type Notifier interface {
	ConversationStoppedByMissingVerification(ctx context.Context, conversationID string, untrustedIDs []string)
}

// Queue is the part of the job queue the service needs.
type Queue interface {
	Register(jobType models.JobType, handler jobs.Handler)
	Add(ctx context.Context, jobType models.JobType, payload interface{}, opts jobs.AddOptions) (*models.JobRecord, error)
}
