package config

import (
	"context"
	"crypto/sha256"
	"os"
	"sync"
	"time"

	"sendqueue/internal/constants"
	"sendqueue/internal/models"

	"github.com/sirupsen/logrus"
)

// ChangeFunc receives the previous and the freshly loaded configuration.
type ChangeFunc func(old, updated *models.Config)

// ConfigWatcher polls the configuration file and reloads it when its
// contents change. Only a file that passes LoadConfig replaces the current
// configuration.
type ConfigWatcher struct {
	path     string
	logger   *logrus.Logger
	interval time.Duration

	mu        sync.RWMutex
	current   *models.Config
	digest    [sha256.Size]byte
	modTime   time.Time
	callbacks []ChangeFunc
}

func NewConfigWatcher(path string, logger *logrus.Logger) *ConfigWatcher {
	return &ConfigWatcher{
		path:     path,
		logger:   logger,
		interval: constants.DefaultConfigWatchIntervalMs * time.Millisecond,
	}
}

// SetInterval changes the polling interval. Call before Start.
func (cw *ConfigWatcher) SetInterval(d time.Duration) {
	if d > 0 {
		cw.interval = d
	}
}

// OnConfigChange registers a callback run after every successful reload.
func (cw *ConfigWatcher) OnConfigChange(fn ChangeFunc) {
	cw.mu.Lock()
	defer cw.mu.Unlock()
	cw.callbacks = append(cw.callbacks, fn)
}

func (cw *ConfigWatcher) GetConfig() *models.Config {
	cw.mu.RLock()
	defer cw.mu.RUnlock()
	return cw.current
}

// Start loads the file and then polls it until ctx is done.
func (cw *ConfigWatcher) Start(ctx context.Context) error {
	if _, err := cw.load(); err != nil {
		return err
	}
	cw.logger.WithField("path", cw.path).Info("Configuration watcher started")

	ticker := time.NewTicker(cw.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			cw.logger.Info("Configuration watcher stopping")
			return nil
		case <-ticker.C:
			cw.poll()
		}
	}
}

func (cw *ConfigWatcher) poll() {
	stat, err := os.Stat(cw.path)
	if err != nil {
		cw.logger.WithError(err).Error("Failed to stat configuration file")
		return
	}
	cw.mu.RLock()
	unchanged := stat.ModTime().Equal(cw.modTime)
	cw.mu.RUnlock()
	if unchanged {
		return
	}

	old, err := cw.load()
	if err != nil {
		cw.logger.WithError(err).Error("Failed to reload configuration, keeping the previous one")
		return
	}
	if old == nil {
		return
	}

	updated := cw.GetConfig()
	cw.logger.Info("Configuration reloaded")
	cw.logChanges(old, updated)

	cw.mu.RLock()
	callbacks := append([]ChangeFunc(nil), cw.callbacks...)
	cw.mu.RUnlock()
	for _, fn := range callbacks {
		cw.notify(fn, old, updated)
	}
}

// load reads the file and swaps it in when its contents differ from the
// current digest. It returns the replaced configuration, or nil when the
// contents were unchanged.
func (cw *ConfigWatcher) load() (*models.Config, error) {
	stat, err := os.Stat(cw.path)
	if err != nil {
		return nil, err
	}
	raw, err := os.ReadFile(cw.path)
	if err != nil {
		return nil, err
	}
	digest := sha256.Sum256(raw)

	cw.mu.Lock()
	if cw.current != nil && digest == cw.digest {
		cw.modTime = stat.ModTime()
		cw.mu.Unlock()
		return nil, nil
	}
	cw.mu.Unlock()

	cfg, err := LoadConfig(cw.path)
	if err != nil {
		// Remember the timestamp so a broken file is reported once.
		cw.mu.Lock()
		cw.modTime = stat.ModTime()
		cw.mu.Unlock()
		return nil, err
	}

	cw.mu.Lock()
	defer cw.mu.Unlock()
	old := cw.current
	cw.current = cfg
	cw.digest = digest
	cw.modTime = stat.ModTime()
	if old == nil {
		return nil, nil
	}
	return old, nil
}

func (cw *ConfigWatcher) notify(fn ChangeFunc, old, updated *models.Config) {
	defer func() {
		if r := recover(); r != nil {
			cw.logger.WithField("panic", r).Error("Config change callback panicked")
		}
	}()
	fn(old, updated)
}

func (cw *ConfigWatcher) logChanges(old, updated *models.Config) {
	if old.LogLevel != updated.LogLevel {
		cw.logger.WithFields(logrus.Fields{
			"old": old.LogLevel,
			"new": updated.LogLevel,
		}).Info("Log level changed")
	}
	if old.Monitor.StaleJobThresholdMin != updated.Monitor.StaleJobThresholdMin {
		cw.logger.WithFields(logrus.Fields{
			"old": old.Monitor.StaleJobThresholdMin,
			"new": updated.Monitor.StaleJobThresholdMin,
		}).Info("Stale job threshold changed")
	}
	if sections := RestartRequired(old, updated); len(sections) > 0 {
		cw.logger.WithField("sections", sections).Warn("Settings changed that only apply after a restart")
	}
}

// RestartRequired names the config sections that differ between old and
// updated and are only read at startup.
func RestartRequired(old, updated *models.Config) []string {
	var sections []string
	if old.Database != updated.Database {
		sections = append(sections, "database")
	}
	if old.Transport != updated.Transport {
		sections = append(sections, "transport")
	}
	if old.Queue != updated.Queue {
		sections = append(sections, "queue")
	}
	if old.Server != updated.Server {
		sections = append(sections, "server")
	}
	if old.Attachments != updated.Attachments {
		sections = append(sections, "attachments")
	}
	return sections
}
