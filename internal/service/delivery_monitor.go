package service

import (
	"context"
	"sync"
	"time"

	"sendqueue/internal/metrics"
	"sendqueue/internal/models"

	"github.com/sirupsen/logrus"
)

// PendingJobLister is the part of the job store the monitor samples.
type PendingJobLister interface {
	ListPending(ctx context.Context) ([]*models.JobRecord, error)
}

// Connectivity reports whether the transport is connected.
type Connectivity interface {
	IsOnline() bool
}

// Backlog is one sample of the job store.
type Backlog struct {
	Pending   int                    `json:"pending"`
	ByType    map[models.JobType]int `json:"byType"`
	Stale     int                    `json:"stale"`
	OldestAge time.Duration          `json:"oldestAgeNs"`
	Online    bool                   `json:"online"`
	SampledAt time.Time              `json:"sampledAt"`
}

// DeliveryMonitor periodically reports the size and age of the job backlog
// and whether the transport is online.
type DeliveryMonitor struct {
	store         PendingJobLister
	connectivity  Connectivity
	registry      *metrics.Registry
	checkInterval time.Duration
	logger        *logrus.Logger
	now           func() time.Time
	stopCh        chan struct{}
	stopOnce      sync.Once

	mu             sync.Mutex
	staleThreshold time.Duration
	last           Backlog
	wasOnline      *bool
}

func NewDeliveryMonitor(store PendingJobLister, connectivity Connectivity, checkInterval, staleThreshold time.Duration, logger *logrus.Logger) *DeliveryMonitor {
	return &DeliveryMonitor{
		store:          store,
		connectivity:   connectivity,
		registry:       metrics.GetRegistry(),
		checkInterval:  checkInterval,
		staleThreshold: staleThreshold,
		logger:         logger,
		now:            time.Now,
		stopCh:         make(chan struct{}),
	}
}

// WithRegistry records gauges into registry instead of the global one.
func (m *DeliveryMonitor) WithRegistry(registry *metrics.Registry) *DeliveryMonitor {
	m.registry = registry
	return m
}

// SetStaleThreshold changes the age after which a job counts as stale.
func (m *DeliveryMonitor) SetStaleThreshold(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.staleThreshold = d
}

func (m *DeliveryMonitor) Start(ctx context.Context) {
	ticker := time.NewTicker(m.checkInterval)
	defer ticker.Stop()

	m.logger.WithFields(logrus.Fields{
		"check_interval":  m.checkInterval,
		"stale_threshold": m.staleThreshold,
	}).Info("Starting delivery monitor")

	m.Check(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-m.stopCh:
			return
		case <-ticker.C:
			m.Check(ctx)
		}
	}
}

func (m *DeliveryMonitor) Stop() {
	m.stopOnce.Do(func() { close(m.stopCh) })
}

// Last returns the most recent sample.
func (m *DeliveryMonitor) Last() Backlog {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.last
}

// Check samples the store once and updates the gauges.
func (m *DeliveryMonitor) Check(ctx context.Context) {
	records, err := m.store.ListPending(ctx)
	if err != nil {
		m.logger.WithError(err).Error("Failed to sample job backlog")
		return
	}

	m.mu.Lock()
	threshold := m.staleThreshold
	m.mu.Unlock()

	now := m.now()
	backlog := Backlog{
		Pending:   len(records),
		ByType:    make(map[models.JobType]int),
		SampledAt: now,
	}
	for _, r := range records {
		backlog.ByType[r.Type]++
		age := now.Sub(r.EnqueuedAt)
		if age > backlog.OldestAge {
			backlog.OldestAge = age
		}
		if threshold > 0 && age > threshold {
			backlog.Stale++
		}
	}
	if m.connectivity != nil {
		backlog.Online = m.connectivity.IsOnline()
	}

	m.registry.SetGauge("jobs_pending", float64(backlog.Pending), nil, "Jobs waiting in the store")
	for jobType, n := range backlog.ByType {
		m.registry.SetGauge("jobs_pending_by_type", float64(n), map[string]string{"job_type": string(jobType)}, "Jobs waiting in the store per type")
	}
	m.registry.SetGauge("jobs_oldest_age_seconds", backlog.OldestAge.Seconds(), nil, "Age of the oldest stored job")
	m.registry.SetGauge("jobs_stale", float64(backlog.Stale), nil, "Jobs older than the stale threshold")
	if m.connectivity != nil {
		m.registry.SetGauge("transport_online", boolGauge(backlog.Online), nil, "Whether the relay connection is up")
	}

	if backlog.Stale > 0 {
		m.logger.WithFields(logrus.Fields{
			"stale_count": backlog.Stale,
			"threshold":   threshold,
			"oldest_age":  backlog.OldestAge.String(),
		}).Warn("Jobs are waiting longer than the stale threshold")
	}

	m.mu.Lock()
	m.last = backlog
	changed := m.connectivity != nil && (m.wasOnline == nil || *m.wasOnline != backlog.Online)
	if m.connectivity != nil {
		online := backlog.Online
		m.wasOnline = &online
	}
	m.mu.Unlock()

	if changed {
		m.logger.WithField("online", backlog.Online).Info("Transport connectivity changed")
	}
}

func boolGauge(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
