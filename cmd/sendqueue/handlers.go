package main

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	apperrors "sendqueue/internal/errors"
	"sendqueue/internal/jobs"
	"sendqueue/internal/middleware"
	"sendqueue/internal/models"
	"sendqueue/internal/tracing"
	"sendqueue/internal/validation"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
)

const maxRequestBodyBytes = 1 << 20

// jobView is a job record without its payload, which may hold message ids
// the admin does not need.
type jobView struct {
	ID          string         `json:"id"`
	Type        models.JobType `json:"type"`
	EnqueuedAt  time.Time      `json:"enqueuedAt"`
	ExpiresAt   time.Time      `json:"expiresAt"`
	Attempt     int            `json:"attempt"`
	MaxAttempts int            `json:"maxAttempts"`
}

func newJobView(record *models.JobRecord) jobView {
	return jobView{
		ID:          record.ID,
		Type:        record.Type,
		EnqueuedAt:  record.EnqueuedAt,
		ExpiresAt:   record.ExpiresAt(),
		Attempt:     record.Attempt,
		MaxAttempts: record.MaxAttempts,
	}
}

type enqueueRequest struct {
	ConversationID string `json:"conversationId"`
	Revision       *int   `json:"revision,omitempty"`
}

type syncRequest struct {
	Syncs []models.SyncRecord `json:"syncs"`
}

func (s *Server) writeJSON(w http.ResponseWriter, r *http.Request, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-cache, no-store, must-revalidate")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.WithFields(logrus.Fields{
			"request_id": tracing.GetRequestID(r.Context()),
			"error":      err,
		}).Error("Failed to encode response")
	}
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := apperrors.HTTPStatusCode(err)
	if status >= http.StatusInternalServerError {
		tracing.RecordError(r.Context(), err)
		s.logger.WithFields(logrus.Fields{
			"request_id": tracing.GetRequestID(r.Context()),
			"error":      err,
		}).Error("Admin request failed")
	}
	middleware.WriteError(w, err)
}

func decodeBody(r *http.Request, out interface{}) error {
	decoder := json.NewDecoder(io.LimitReader(r.Body, maxRequestBodyBytes))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(out); err != nil {
		return apperrors.NewValidationError("body", "", err.Error())
	}
	return nil
}

func (s *Server) handleHealth() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		status := http.StatusOK
		body := map[string]interface{}{
			"status":           "healthy",
			"transport_online": s.deps.Transport.IsOnline(),
		}
		if err := s.deps.Storage.Ping(ctx); err != nil {
			status = http.StatusServiceUnavailable
			body["status"] = "unhealthy"
			body["storage"] = "unreachable"
			s.logger.WithError(err).Warn("Health check failed to reach storage")
		}
		s.writeJSON(w, r, status, body)
	}
}

func (s *Server) handleMetrics() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.writeJSON(w, r, http.StatusOK, s.deps.Registry.GetAllMetrics())
	}
}

func (s *Server) handleTransport() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		stats := s.deps.Transport.BreakerStats()
		s.writeJSON(w, r, http.StatusOK, map[string]interface{}{
			"online":  s.deps.Transport.IsOnline(),
			"state":   stats.State.String(),
			"breaker": stats,
		})
	}
}

func (s *Server) handleBacklog() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.writeJSON(w, r, http.StatusOK, s.deps.Backlog.Last())
	}
}

func (s *Server) handleListJobs() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		records, err := s.deps.Jobs.ListPending(r.Context())
		if err != nil {
			s.writeError(w, r, apperrors.NewDatabaseError("list jobs", err))
			return
		}
		filter := models.JobType(r.URL.Query().Get("type"))
		views := make([]jobView, 0, len(records))
		for _, record := range records {
			if filter != "" && record.Type != filter {
				continue
			}
			views = append(views, newJobView(record))
		}
		s.writeJSON(w, r, http.StatusOK, map[string]interface{}{
			"jobs":  views,
			"count": len(views),
		})
	}
}

func (s *Server) handleGetJob() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := mux.Vars(r)["id"]
		record, err := s.deps.Jobs.Get(r.Context(), id)
		if err != nil {
			s.writeError(w, r, jobLookupError(id, err))
			return
		}
		s.writeJSON(w, r, http.StatusOK, newJobView(record))
	}
}

func (s *Server) handleDeleteJob() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := mux.Vars(r)["id"]
		if _, err := s.deps.Jobs.Get(r.Context(), id); err != nil {
			s.writeError(w, r, jobLookupError(id, err))
			return
		}
		if err := s.deps.Jobs.Delete(r.Context(), id); err != nil {
			s.writeError(w, r, apperrors.NewDatabaseError("delete job", err))
			return
		}
		s.logger.WithField("job_id", id).Warn("Job deleted by admin")
		w.WriteHeader(http.StatusNoContent)
	}
}

func validateAll(errs ...error) error {
	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}

func jobLookupError(id string, err error) error {
	if errors.Is(err, jobs.ErrJobNotFound) {
		return apperrors.NewNotFoundError("job", id)
	}
	return apperrors.NewDatabaseError("get job", err)
}

type enqueueFunc func(ctx context.Context, messageID, conversationID string, revision *int) (*models.JobRecord, error)

func (s *Server) handleEnqueueMessage() http.HandlerFunc {
	return s.enqueueForMessage(s.deps.Sender.EnqueueNormalMessage)
}

func (s *Server) handleEnqueueReaction() http.HandlerFunc {
	return s.enqueueForMessage(s.deps.Sender.EnqueueReaction)
}

func (s *Server) enqueueForMessage(enqueue enqueueFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req enqueueRequest
		if err := decodeBody(r, &req); err != nil {
			s.writeError(w, r, err)
			return
		}
		messageID := mux.Vars(r)["id"]
		if err := validateAll(
			validation.ValidateIdentifier("messageId", messageID),
			validation.ValidateIdentifier("conversationId", req.ConversationID),
			validation.ValidateRevision(req.Revision),
		); err != nil {
			s.writeError(w, r, err)
			return
		}
		record, err := enqueue(r.Context(), messageID, req.ConversationID, req.Revision)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		s.writeJSON(w, r, http.StatusAccepted, newJobView(record))
	}
}

func (s *Server) handleRetryMessage() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		messageID := mux.Vars(r)["id"]
		if err := validation.ValidateIdentifier("messageId", messageID); err != nil {
			s.writeError(w, r, err)
			return
		}
		record, err := s.deps.Sender.RetryFailedMessage(r.Context(), messageID)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		s.writeJSON(w, r, http.StatusAccepted, newJobView(record))
	}
}

func (s *Server) handleEnqueueSyncs() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var enqueue func(context.Context, []models.SyncRecord) (*models.JobRecord, error)
		kind := models.SyncKind(mux.Vars(r)["kind"])
		switch kind {
		case models.SyncKindRead:
			enqueue = s.deps.Sender.EnqueueReadSyncs
		case models.SyncKindView:
			enqueue = s.deps.Sender.EnqueueViewSyncs
		case models.SyncKindViewOnceOpen:
			enqueue = s.deps.Sender.EnqueueViewOnceOpenSyncs
		default:
			s.writeError(w, r, apperrors.NewValidationError("kind", string(kind), "unknown sync kind"))
			return
		}

		var req syncRequest
		if err := decodeBody(r, &req); err != nil {
			s.writeError(w, r, err)
			return
		}
		if err := validation.ValidateSyncRecords(req.Syncs); err != nil {
			s.writeError(w, r, err)
			return
		}
		record, err := enqueue(r.Context(), req.Syncs)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		s.writeJSON(w, r, http.StatusAccepted, newJobView(record))
	}
}
