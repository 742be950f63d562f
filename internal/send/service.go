package send

import (
	"context"

	apperrors "sendqueue/internal/errors"
	"sendqueue/internal/jobs"
	"sendqueue/internal/models"
	"sendqueue/internal/privacy"

	"github.com/sirupsen/logrus"
)

// Service wires the delivery handlers into a queue and offers typed
// enqueue helpers to the rest of the application.
type Service struct {
	queue Queue
	deps  Deps
}

// ServiceOption configures a Service.
type ServiceOption func(*serviceConfig)

type serviceConfig struct {
	syncChunkSize int
}

// WithSyncChunkSize caps how many acknowledgements go into one sync message.
func WithSyncChunkSize(n int) ServiceOption {
	return func(c *serviceConfig) {
		c.syncChunkSize = n
	}
}

// NewService registers a handler for every job type on queue.
func NewService(queue Queue, deps Deps, opts ...ServiceOption) *Service {
	cfg := serviceConfig{}
	for _, opt := range opts {
		opt(&cfg)
	}
	deps = deps.withDefaults()

	queue.Register(models.JobTypeNormalMessage, NewNormalMessageHandler(deps))
	queue.Register(models.JobTypeReaction, NewReactionHandler(deps))
	for _, kind := range []models.SyncKind{models.SyncKindRead, models.SyncKindView, models.SyncKindViewOnceOpen} {
		queue.Register(models.JobTypeForSyncKind(kind), NewSyncHandler(deps, kind, cfg.syncChunkSize))
	}
	return &Service{queue: queue, deps: deps}
}

// EnqueueNormalMessage schedules delivery of an outgoing message.
func (s *Service) EnqueueNormalMessage(ctx context.Context, messageID, conversationID string, revision *int) (*models.JobRecord, error) {
	return s.queue.Add(ctx, models.JobTypeNormalMessage, models.NormalMessageJobData{
		MessageID:      messageID,
		ConversationID: conversationID,
		Revision:       revision,
	}, jobs.AddOptions{})
}

// EnqueueReaction schedules delivery of our newest pending reaction on a message.
func (s *Service) EnqueueReaction(ctx context.Context, messageID, conversationID string, revision *int) (*models.JobRecord, error) {
	return s.queue.Add(ctx, models.JobTypeReaction, models.ReactionJobData{
		MessageID:      messageID,
		ConversationID: conversationID,
		Revision:       revision,
	}, jobs.AddOptions{})
}

func (s *Service) EnqueueReadSyncs(ctx context.Context, syncs []models.SyncRecord) (*models.JobRecord, error) {
	return s.enqueueSyncs(ctx, models.SyncKindRead, syncs)
}

func (s *Service) EnqueueViewSyncs(ctx context.Context, syncs []models.SyncRecord) (*models.JobRecord, error) {
	return s.enqueueSyncs(ctx, models.SyncKindView, syncs)
}

func (s *Service) EnqueueViewOnceOpenSyncs(ctx context.Context, syncs []models.SyncRecord) (*models.JobRecord, error) {
	return s.enqueueSyncs(ctx, models.SyncKindViewOnceOpen, syncs)
}

func (s *Service) enqueueSyncs(ctx context.Context, kind models.SyncKind, syncs []models.SyncRecord) (*models.JobRecord, error) {
	if syncs == nil {
		syncs = []models.SyncRecord{}
	}
	return s.queue.Add(ctx, models.JobTypeForSyncKind(kind), models.SyncJobData{Syncs: syncs}, jobs.AddOptions{})
}

// RetryFailedMessage moves the failed participants of a message back to
// pending and schedules a fresh delivery job for them.
func (s *Service) RetryFailedMessage(ctx context.Context, messageID string) (*models.JobRecord, error) {
	msg, err := s.deps.Repository.GetMessage(ctx, messageID)
	if err != nil {
		return nil, err
	}
	if !msg.IsOutgoing() {
		return nil, apperrors.NewValidationError("message_id", messageID, "only outgoing messages can be retried")
	}

	reset := msg.ResetFailed(s.deps.Now())
	if reset == 0 {
		return nil, apperrors.NewValidationError("message_id", messageID, "message has no failed recipients")
	}
	if err := s.deps.Repository.SaveMessage(ctx, msg); err != nil {
		return nil, apperrors.NewDatabaseError("save message", err)
	}

	s.deps.Logger.WithFields(logrus.Fields{
		"message_id": privacy.MaskMessageID(messageID),
		"reset":      reset,
	}).Info("Retrying failed message")
	return s.EnqueueNormalMessage(ctx, msg.ID, msg.ConversationID, nil)
}
