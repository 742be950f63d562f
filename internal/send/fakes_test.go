package send

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	apperrors "sendqueue/internal/errors"
	"sendqueue/internal/jobs"
	"sendqueue/internal/metrics"
	"sendqueue/internal/models"
	"sendqueue/internal/retry"
	"sendqueue/pkg/transport/types"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
)

const (
	ourID       = "conv-me"
	ourACI      = "aci-me"
	testTimeout = 5 * time.Second
)

type fakeRepo struct {
	mu            sync.Mutex
	messages      map[string]*models.Message
	conversations map[string]*models.Conversation
	saves         int
}

func newFakeRepo() *fakeRepo {
	repo := &fakeRepo{
		messages:      make(map[string]*models.Message),
		conversations: make(map[string]*models.Conversation),
	}
	repo.putConversation(&models.Conversation{
		ID:        ourID,
		Type:      models.ConversationTypeDirect,
		ServiceID: ourACI,
		IsMe:      true,
		Accepted:  true,
	})
	return repo
}

func (r *fakeRepo) GetMessage(ctx context.Context, id string) (*models.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	msg, ok := r.messages[id]
	if !ok {
		return nil, apperrors.NewNotFoundError("message", id)
	}
	return msg.Clone(), nil
}

func (r *fakeRepo) SaveMessage(ctx context.Context, msg *models.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.messages[msg.ID] = msg.Clone()
	r.saves++
	return nil
}

func (r *fakeRepo) GetConversation(ctx context.Context, id string) (*models.Conversation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	conv, ok := r.conversations[id]
	if !ok {
		return nil, apperrors.NewNotFoundError("conversation", id)
	}
	return conv.Clone(), nil
}

func (r *fakeRepo) GetOurConversationID(ctx context.Context) (string, error) {
	return ourID, nil
}

func (r *fakeRepo) UpdateConversation(ctx context.Context, conv *models.Conversation) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.conversations[conv.ID] = conv.Clone()
	return nil
}

func (r *fakeRepo) putConversation(conv *models.Conversation) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.conversations[conv.ID] = conv.Clone()
}

func (r *fakeRepo) putMessage(msg *models.Message) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.messages[msg.ID] = msg.Clone()
}

func (r *fakeRepo) message(t *testing.T, id string) *models.Message {
	msg, err := r.GetMessage(context.Background(), id)
	require.NoError(t, err)
	return msg
}

func (r *fakeRepo) conversation(t *testing.T, id string) *models.Conversation {
	conv, err := r.GetConversation(context.Background(), id)
	require.NoError(t, err)
	return conv
}

// addContact registers a direct conversation whose service id is "aci-"+id.
func (r *fakeRepo) addContact(id string, mutate ...func(*models.Conversation)) *models.Conversation {
	conv := &models.Conversation{
		ID:        id,
		Type:      models.ConversationTypeDirect,
		ServiceID: "aci-" + id,
		Accepted:  true,
	}
	for _, m := range mutate {
		m(conv)
	}
	r.putConversation(conv)
	return conv
}

func (r *fakeRepo) addGroup(id string, members ...string) *models.Conversation {
	conv := &models.Conversation{
		ID:        id,
		Type:      models.ConversationTypeGroup,
		GroupID:   "group-" + id,
		MemberIDs: append([]string{ourID}, members...),
		Accepted:  true,
	}
	r.putConversation(conv)
	return conv
}

type transportCall struct {
	Kind   string
	Direct types.DirectSendRequest
	Group  types.GroupSendRequest
	Sync   types.SyncSendRequest
}

// fakeTransport succeeds for every target unless failures or callErr say
// otherwise.
type fakeTransport struct {
	mu       sync.Mutex
	calls    []transportCall
	failures map[string]error
	callErr  error
	// callErrs is consumed one per call before callErr applies.
	callErrs []error
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{failures: make(map[string]error)}
}

func (f *fakeTransport) failTarget(target string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failures[target] = err
}

func (f *fakeTransport) Calls() []transportCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]transportCall(nil), f.calls...)
}

func (f *fakeTransport) nextErr() error {
	if len(f.callErrs) > 0 {
		err := f.callErrs[0]
		f.callErrs = f.callErrs[1:]
		return err
	}
	return f.callErr
}

func (f *fakeTransport) result(targets []string) *types.SendResult {
	result := &types.SendResult{Timestamp: 1}
	for _, target := range targets {
		if err, ok := f.failures[target]; ok {
			result.Failed = append(result.Failed, types.TargetError{Target: target, Err: err})
			continue
		}
		result.Succeeded = append(result.Succeeded, target)
	}
	return result
}

func (f *fakeTransport) SendMessageToIdentifier(ctx context.Context, req types.DirectSendRequest) (*types.SendResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, transportCall{Kind: "direct", Direct: req})
	if err := f.nextErr(); err != nil {
		return nil, err
	}
	return f.result([]string{req.Identifier}), nil
}

func (f *fakeTransport) SendToGroup(ctx context.Context, req types.GroupSendRequest) (*types.SendResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, transportCall{Kind: "group", Group: req})
	if err := f.nextErr(); err != nil {
		return nil, err
	}
	return f.result(req.Recipients), nil
}

func (f *fakeTransport) SendSyncMessageOnly(ctx context.Context, req types.SyncSendRequest) (*types.SendResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, transportCall{Kind: "sync", Sync: req})
	if err := f.nextErr(); err != nil {
		return nil, err
	}
	return &types.SendResult{Timestamp: req.Timestamp, Succeeded: []string{ourACI}}, nil
}

type recordingNotifier struct {
	mu    sync.Mutex
	calls map[string][]string
}

func (n *recordingNotifier) ConversationStoppedByMissingVerification(ctx context.Context, conversationID string, untrustedIDs []string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.calls == nil {
		n.calls = make(map[string][]string)
	}
	n.calls[conversationID] = append([]string(nil), untrustedIDs...)
}

type fakeLoader map[string][]byte

func (l fakeLoader) LoadAttachment(ctx context.Context, att models.Attachment) ([]byte, error) {
	data, ok := l[att.Path]
	if !ok {
		return nil, apperrors.NewNotFoundError("attachment", att.Path)
	}
	return data, nil
}

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.FatalLevel)
	return logger
}

type harness struct {
	repo      *fakeRepo
	transport *fakeTransport
	notifier  *recordingNotifier
	metrics   *metrics.Registry
	deps      Deps
	now       time.Time
}

func newHarness() *harness {
	h := &harness{
		repo:      newFakeRepo(),
		transport: newFakeTransport(),
		notifier:  &recordingNotifier{},
		metrics:   metrics.NewRegistry(),
		now:       time.UnixMilli(1700000000000),
	}
	h.deps = Deps{
		Repository:  h.repo,
		Transport:   h.transport,
		Attachments: fakeLoader{},
		Notifier:    h.notifier,
		Logger:      quietLogger(),
		Metrics:     h.metrics,
		Now:         func() time.Time { return h.now },
	}
	return h
}

func (h *harness) runInfo(attempt int) jobs.RunInfo {
	return jobs.RunInfo{
		JobID:          "job-1",
		Attempt:        attempt,
		MaxAttempts:    10,
		TimeRemaining:  time.Hour,
		IsFinalAttempt: attempt >= 10,
		ShouldContinue: true,
		Log:            logrus.NewEntry(quietLogger()),
	}
}

func (h *harness) parse(t *testing.T, handler jobs.Handler, payload interface{}) jobs.Job {
	raw, err := json.Marshal(payload)
	require.NoError(t, err)
	job, err := handler.Parse(raw)
	require.NoError(t, err)
	return job
}

// newQueue builds a queue with an always-open gate and no backoff.
func (h *harness) newQueue(t *testing.T, store jobs.Store) (*jobs.Queue, *Service) {
	return h.newQueueWithGate(t, store, newGate(true, true, retry.Curve{}))
}

func newGate(linked, online bool, curve retry.Curve) *jobs.Gate {
	barrier := jobs.NewReadyBarrier()
	barrier.MarkReady()
	return jobs.NewGate(
		jobs.IdentityFunc(func() bool { return linked }),
		jobs.ConnectivityFunc(func() bool { return online }),
		barrier,
		quietLogger(),
		jobs.WithBackoffCurve(curve),
	)
}

func (h *harness) newQueueWithGate(t *testing.T, store jobs.Store, gate *jobs.Gate) (*jobs.Queue, *Service) {
	queue := jobs.NewQueue(store, gate, quietLogger(),
		jobs.WithMetrics(h.metrics),
		jobs.WithPollInterval(10*time.Millisecond),
	)
	service := NewService(queue, h.deps)
	t.Cleanup(queue.Stop)
	return queue, service
}

func waitIdle(t *testing.T, queue *jobs.Queue) {
	ctx, cancel := context.WithTimeout(context.Background(), testTimeout)
	defer cancel()
	require.NoError(t, queue.WaitIdle(ctx))
}

func pendingStates(ids ...string) map[string]models.SendState {
	out := make(map[string]models.SendState, len(ids))
	for _, id := range ids {
		out[id] = models.SendState{Status: models.SendStatusPending}
	}
	return out
}
