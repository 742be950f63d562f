package config

import (
	"context"
	"os"
	"sync"
	"testing"
	"time"

	"sendqueue/internal/models"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.FatalLevel)
	return logger
}

func TestConfigWatcher_StartInvalidPath(t *testing.T) {
	watcher := NewConfigWatcher("/nonexistent/config.json", quietLogger())
	assert.Error(t, watcher.Start(context.Background()))
}

func TestConfigWatcher_ReloadsOnChange(t *testing.T) {
	path := writeConfig(t, minimalConfig)
	watcher := NewConfigWatcher(path, quietLogger())
	watcher.SetInterval(10 * time.Millisecond)

	var (
		mu     sync.Mutex
		levels []string
	)
	watcher.OnConfigChange(func(old, cfg *models.Config) {
		mu.Lock()
		levels = append(levels, old.LogLevel+"->"+cfg.LogLevel)
		mu.Unlock()
	})
	watcher.OnConfigChange(func(old, cfg *models.Config) {
		panic("callback failure must not stop the watcher")
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- watcher.Start(ctx) }()

	require.Eventually(t, func() bool { return watcher.GetConfig() != nil }, 5*time.Second, 5*time.Millisecond)
	assert.Equal(t, "info", watcher.GetConfig().LogLevel)

	updated := `{
		"database": {"path": "sendqueue.db"},
		"transport": {"url": "ws://127.0.0.1:9000/relay"},
		"log_level": "warn"
	}`
	require.NoError(t, os.WriteFile(path, []byte(updated), 0600))
	future := time.Now().Add(time.Minute)
	require.NoError(t, os.Chtimes(path, future, future))

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(levels) == 1 && levels[0] == "info->warn"
	}, 5*time.Second, 10*time.Millisecond)
	assert.Equal(t, "warn", watcher.GetConfig().LogLevel)

	cancel()
	assert.NoError(t, <-done)
}

func TestConfigWatcher_KeepsConfigOnBadReload(t *testing.T) {
	path := writeConfig(t, minimalConfig)
	watcher := NewConfigWatcher(path, quietLogger())
	watcher.SetInterval(10 * time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = watcher.Start(ctx) }()
	require.Eventually(t, func() bool { return watcher.GetConfig() != nil }, 5*time.Second, 5*time.Millisecond)

	require.NoError(t, os.WriteFile(path, []byte(`{broken`), 0600))
	future := time.Now().Add(time.Minute)
	require.NoError(t, os.Chtimes(path, future, future))

	time.Sleep(100 * time.Millisecond)
	require.NotNil(t, watcher.GetConfig())
	assert.Equal(t, "sendqueue.db", watcher.GetConfig().Database.Path)
}

func TestConfigWatcher_IgnoresTouchWithoutChange(t *testing.T) {
	path := writeConfig(t, minimalConfig)
	watcher := NewConfigWatcher(path, quietLogger())
	watcher.SetInterval(10 * time.Millisecond)

	var (
		mu    sync.Mutex
		calls int
	)
	watcher.OnConfigChange(func(old, cfg *models.Config) {
		mu.Lock()
		calls++
		mu.Unlock()
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = watcher.Start(ctx) }()
	require.Eventually(t, func() bool { return watcher.GetConfig() != nil }, 5*time.Second, 5*time.Millisecond)

	future := time.Now().Add(time.Minute)
	require.NoError(t, os.Chtimes(path, future, future))
	time.Sleep(100 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Zero(t, calls)
}

func TestRestartRequired(t *testing.T) {
	old := &models.Config{LogLevel: "info"}
	old.Database.Path = "a.db"
	old.Queue.PollIntervalMs = 1000

	updated := *old
	updated.LogLevel = "warn"
	assert.Empty(t, RestartRequired(old, &updated))

	updated.Database.Path = "b.db"
	updated.Queue.PollIntervalMs = 500
	assert.Equal(t, []string{"database", "queue"}, RestartRequired(old, &updated))
}
