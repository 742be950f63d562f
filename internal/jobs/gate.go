package jobs

import (
	"context"
	"sync"
	"time"

	"sendqueue/internal/constants"
	"sendqueue/internal/retry"

	"github.com/sirupsen/logrus"
)

// Identity reports whether this device finished linking to an account.
type Identity interface {
	IsDeviceLinked() bool
}

// Connectivity reports whether the transport can currently reach the server.
type Connectivity interface {
	IsOnline() bool
}

// Storage exposes a barrier that is closed once local storage has loaded.
type Storage interface {
	Ready() <-chan struct{}
}

// IdentityFunc adapts a function to Identity.
type IdentityFunc func() bool

func (f IdentityFunc) IsDeviceLinked() bool { return f() }

// ConnectivityFunc adapts a function to Connectivity.
type ConnectivityFunc func() bool

func (f ConnectivityFunc) IsOnline() bool { return f() }

// ReadyBarrier is a one-shot Storage implementation.
type ReadyBarrier struct {
	once sync.Once
	ch   chan struct{}
}

func NewReadyBarrier() *ReadyBarrier {
	return &ReadyBarrier{ch: make(chan struct{})}
}

// MarkReady releases every waiter. Calling it again is a no-op.
func (b *ReadyBarrier) MarkReady() {
	b.once.Do(func() { close(b.ch) })
}

func (b *ReadyBarrier) Ready() <-chan struct{} {
	return b.ch
}

// GateParams describes the attempt about to run.
type GateParams struct {
	Attempt       int
	TimeRemaining time.Duration
	SkipWait      bool
}

// ContinuationGate decides whether an attempt is worth making right now.
type ContinuationGate interface {
	ShouldContinue(ctx context.Context, params GateParams) bool
}

type GateOption func(*Gate)

// WithBackoffCurve replaces the sleep schedule between attempts.
func WithBackoffCurve(curve retry.Curve) GateOption {
	return func(g *Gate) {
		g.curve = curve
	}
}

// WithOnlinePollInterval sets how often connectivity is re-checked while offline.
func WithOnlinePollInterval(d time.Duration) GateOption {
	return func(g *Gate) {
		if d > 0 {
			g.onlinePoll = d
		}
	}
}

// Gate is the ContinuationGate shared by every job type.
type Gate struct {
	identity     Identity
	connectivity Connectivity
	storage      Storage
	curve        retry.Curve
	onlinePoll   time.Duration
	logger       *logrus.Logger
}

func NewGate(identity Identity, connectivity Connectivity, storage Storage, logger *logrus.Logger, opts ...GateOption) *Gate {
	g := &Gate{
		identity:     identity,
		connectivity: connectivity,
		storage:      storage,
		curve:        retry.DefaultCurve(),
		onlinePoll:   constants.DefaultOnlinePollIntervalMs * time.Millisecond,
		logger:       logger,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// ShouldContinue returns false when the deadline has passed, connectivity
// does not return in time, or the device is not linked. Otherwise it sleeps
// for the attempt's backoff, unless SkipWait is set, and returns true.
func (g *Gate) ShouldContinue(ctx context.Context, params GateParams) bool {
	log := g.logger.WithField("attempt", params.Attempt)

	if params.TimeRemaining <= 0 {
		log.Info("Job has no time remaining, giving up")
		return false
	}

	linked := g.identity.IsDeviceLinked()
	if linked && !g.waitForOnline(ctx, params.TimeRemaining) {
		log.WithField("time_remaining", params.TimeRemaining).Info("Did not come online in time, giving up")
		return false
	}

	if !g.waitForStorage(ctx) {
		return false
	}

	if !linked {
		log.Warn("Device is not linked, giving up")
		return false
	}

	if params.SkipWait {
		return true
	}

	sleep := g.curve.SleepTime(params.Attempt)
	if sleep > params.TimeRemaining {
		sleep = params.TimeRemaining
	}
	log.WithField("sleep", sleep).Debug("Backing off before attempt")
	return retry.Sleep(ctx, sleep) == nil
}

func (g *Gate) waitForOnline(ctx context.Context, limit time.Duration) bool {
	if g.connectivity.IsOnline() {
		return true
	}

	timer := time.NewTimer(limit)
	defer timer.Stop()
	ticker := time.NewTicker(g.onlinePoll)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return false
		case <-timer.C:
			return g.connectivity.IsOnline()
		case <-ticker.C:
			if g.connectivity.IsOnline() {
				return true
			}
		}
	}
}

func (g *Gate) waitForStorage(ctx context.Context) bool {
	if g.storage == nil {
		return true
	}
	select {
	case <-g.storage.Ready():
		return true
	case <-ctx.Done():
		return false
	}
}
