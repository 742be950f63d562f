package send

import (
	"context"
	"encoding/json"
	"sync"

	"sendqueue/internal/constants"
	"sendqueue/internal/jobs"
	"sendqueue/internal/models"
	"sendqueue/pkg/transport/types"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// SyncHandler tells our other devices which messages were read, viewed or
// opened. One handler is registered per sync kind.
type SyncHandler struct {
	deps      Deps
	kind      models.SyncKind
	chunkSize int
}

func NewSyncHandler(deps Deps, kind models.SyncKind, chunkSize int) *SyncHandler {
	if chunkSize <= 0 {
		chunkSize = constants.DefaultSyncChunkSize
	}
	return &SyncHandler{deps: deps.withDefaults(), kind: kind, chunkSize: chunkSize}
}

func (h *SyncHandler) Kind() models.SyncKind {
	return h.kind
}

func (h *SyncHandler) Parse(payload json.RawMessage) (jobs.Job, error) {
	var data models.SyncJobData
	if err := json.Unmarshal(payload, &data); err != nil {
		return nil, err
	}
	return &syncJob{handler: h, data: data}, nil
}

type syncJob struct {
	handler *SyncHandler
	data    models.SyncJobData
}

// LaneKey is empty: sync batches are independent of each other.
func (j *syncJob) LaneKey() string {
	return ""
}

// NeedsGate is false for an empty batch, which completes without a send.
func (j *syncJob) NeedsGate() bool {
	return len(j.data.Syncs) > 0
}

func (j *syncJob) Run(ctx context.Context, info jobs.RunInfo) error {
	h := j.handler
	log := info.Log.WithFields(logrus.Fields{
		"sync_kind": h.kind,
		"syncs":     len(j.data.Syncs),
	})

	if len(j.data.Syncs) == 0 {
		log.Debug("Empty sync batch, nothing to send")
		return nil
	}
	if !info.ShouldContinue {
		log.Info("Giving up on sync batch")
		return nil
	}

	chunks := chunkSyncs(j.data.Syncs, h.chunkSize)
	timestamp := h.deps.Now().UnixMilli()

	var (
		mu     sync.Mutex
		failed []types.TargetError
	)
	g, gctx := errgroup.WithContext(ctx)
	for _, chunk := range chunks {
		chunk := chunk
		g.Go(func() error {
			result, err := h.deps.Transport.SendSyncMessageOnly(gctx, types.SyncSendRequest{
				Timestamp: timestamp,
				Sync: types.SyncContent{
					Kind:    types.SyncKind(h.kind),
					Entries: syncEntries(chunk),
				},
			})
			if err != nil && ctx.Err() != nil {
				return ctx.Err()
			}

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				failed = append(failed, types.TargetError{Err: err})
				return nil
			}
			failed = append(failed, result.Failed...)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	if len(failed) == 0 {
		log.WithField("chunks", len(chunks)).Info("Sync batch sent")
		return nil
	}
	return HandleSendErrors(ctx, SendErrorsParams{
		Errors:         failed,
		IsFinalAttempt: info.IsFinalAttempt,
		TimeRemaining:  info.TimeRemaining,
		MarkFailed:     j.MarkFailed,
		Log:            log,
	})
}

// MarkFailed only logs: sync failures are never shown to the user.
func (j *syncJob) MarkFailed(ctx context.Context, err error) {
	j.handler.deps.Logger.WithError(err).WithFields(logrus.Fields{
		"sync_kind": j.handler.kind,
		"syncs":     len(j.data.Syncs),
	}).Warn("Sync batch failed")
}

func chunkSyncs(syncs []models.SyncRecord, size int) [][]models.SyncRecord {
	var chunks [][]models.SyncRecord
	for start := 0; start < len(syncs); start += size {
		end := start + size
		if end > len(syncs) {
			end = len(syncs)
		}
		chunks = append(chunks, syncs[start:end])
	}
	return chunks
}

func syncEntries(syncs []models.SyncRecord) []types.SyncEntry {
	out := make([]types.SyncEntry, 0, len(syncs))
	for _, s := range syncs {
		out = append(out, types.SyncEntry{
			SenderE164: s.SenderE164,
			SenderACI:  s.SenderACI,
			Timestamp:  s.Timestamp,
		})
	}
	return out
}
