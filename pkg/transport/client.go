package transport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"sendqueue/internal/retry"
	"sendqueue/pkg/circuitbreaker"
	"sendqueue/pkg/transport/types"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

const maxFrameBytes = 32 << 20

// Config holds the relay connection settings.
type Config struct {
	URL              string
	AuthToken        string
	Timeout          time.Duration
	HandshakeTimeout time.Duration
	MaxFailures      uint32
	BreakerTimeout   time.Duration
	// Reconnect controls the delay between dial attempts in Run.
	Reconnect retry.BackoffConfig
}

type callResult struct {
	frame types.ResponseFrame
	err   error
}

// Client is a websocket transport to the message relay. Calls are
// multiplexed over a single connection and matched to responses by ID.
type Client struct {
	cfg     Config
	breaker *circuitbreaker.CircuitBreaker
	logger  *logrus.Logger

	mu      sync.Mutex
	conn    *websocket.Conn
	pending map[string]chan callResult
	online  atomic.Bool
	closed  atomic.Bool
}

var _ types.OnlineTransport = (*Client)(nil)

func NewClient(cfg Config, logger *logrus.Logger) *Client {
	if logger == nil {
		logger = logrus.New()
		logger.SetLevel(logrus.WarnLevel)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.HandshakeTimeout <= 0 {
		cfg.HandshakeTimeout = 5 * time.Second
	}
	if cfg.BreakerTimeout <= 0 {
		cfg.BreakerTimeout = 30 * time.Second
	}
	if cfg.Reconnect.InitialDelay <= 0 {
		cfg.Reconnect = retry.BackoffConfig{
			InitialDelay: 500 * time.Millisecond,
			MaxDelay:     time.Minute,
			Multiplier:   2,
			MaxAttempts:  1,
			Jitter:       true,
		}
	}
	cfg.URL = strings.TrimSuffix(cfg.URL, "/")

	c := &Client{
		cfg:     cfg,
		logger:  logger,
		pending: make(map[string]chan callResult),
	}
	c.breaker = circuitbreaker.New("relay", cfg.MaxFailures, cfg.BreakerTimeout,
		circuitbreaker.WithLogger(logger),
		circuitbreaker.WithFailurePredicate(isNetworkError),
	)
	return c
}

// IsOnline reports whether a relay connection is currently open.
func (c *Client) IsOnline() bool {
	return c.online.Load()
}

// BreakerStats exposes the circuit breaker counters for the admin surface.
func (c *Client) BreakerStats() circuitbreaker.Stats {
	return c.breaker.GetStats()
}

// Connect dials the relay if no connection is open.
func (c *Client) Connect(ctx context.Context) error {
	_, err := c.ensureConn(ctx)
	return err
}

// Run keeps the connection open until ctx is done, redialing with backoff
// whenever it drops.
func (c *Client) Run(ctx context.Context) {
	backoff := retry.NewBackoff(c.cfg.Reconnect)
	attempt := 0
	for ctx.Err() == nil && !c.closed.Load() {
		if c.IsOnline() {
			attempt = 0
			if err := retry.Sleep(ctx, c.cfg.HandshakeTimeout); err != nil {
				return
			}
			continue
		}
		attempt++
		if err := c.Connect(ctx); err != nil {
			delay := backoff.GetNextDelay(attempt)
			c.logger.WithError(err).WithFields(logrus.Fields{
				"attempt": attempt,
				"retry":   delay.String(),
			}).Warn("Relay connection failed")
			if err := retry.Sleep(ctx, delay); err != nil {
				return
			}
		}
	}
}

// Close shuts the connection down and fails any in-flight calls.
func (c *Client) Close() error {
	c.closed.Store(true)
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return nil
	}
	err := conn.Close(websocket.StatusNormalClosure, "client closing")
	c.dropConn(conn, errors.New("client closed"))
	return err
}

func (c *Client) SendMessageToIdentifier(ctx context.Context, req types.DirectSendRequest) (*types.SendResult, error) {
	return c.call(ctx, types.FrameSendDirect, req)
}

func (c *Client) SendToGroup(ctx context.Context, req types.GroupSendRequest) (*types.SendResult, error) {
	return c.call(ctx, types.FrameSendGroup, req)
}

func (c *Client) SendSyncMessageOnly(ctx context.Context, req types.SyncSendRequest) (*types.SendResult, error) {
	return c.call(ctx, types.FrameSendSync, req)
}

func (c *Client) call(ctx context.Context, frameType string, body interface{}) (*types.SendResult, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s request: %w", frameType, err)
	}

	var result *types.SendResult
	err = c.breaker.Execute(ctx, func(ctx context.Context) error {
		frame, err := c.roundTrip(ctx, types.RequestFrame{
			ID:   uuid.NewString(),
			Type: frameType,
			Body: payload,
		})
		if err != nil {
			return err
		}
		if frame.Error != nil {
			return frame.Error.Err()
		}
		result = frame.Result.SendResult()
		return nil
	})
	if circuitbreaker.IsCircuitBreakerError(err) {
		return nil, &types.NetworkError{Op: frameType, Err: err}
	}
	if err != nil {
		return nil, err
	}

	c.logger.WithFields(logrus.Fields{
		"type":      frameType,
		"succeeded": len(result.Succeeded),
		"failed":    len(result.Failed),
	}).Debug("Relay call completed")
	return result, nil
}

func (c *Client) roundTrip(ctx context.Context, req types.RequestFrame) (types.ResponseFrame, error) {
	conn, err := c.ensureConn(ctx)
	if err != nil {
		return types.ResponseFrame{}, err
	}

	ch := make(chan callResult, 1)
	c.mu.Lock()
	c.pending[req.ID] = ch
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		delete(c.pending, req.ID)
		c.mu.Unlock()
	}()

	callCtx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	if err := wsjson.Write(callCtx, conn, req); err != nil {
		if ctx.Err() != nil {
			return types.ResponseFrame{}, ctx.Err()
		}
		c.dropConn(conn, err)
		return types.ResponseFrame{}, &types.NetworkError{Op: req.Type, Err: err}
	}

	select {
	case res := <-ch:
		return res.frame, res.err
	case <-callCtx.Done():
		if ctx.Err() != nil {
			return types.ResponseFrame{}, ctx.Err()
		}
		return types.ResponseFrame{}, &types.NetworkError{Op: req.Type, Err: callCtx.Err()}
	}
}

func (c *Client) ensureConn(ctx context.Context) (*websocket.Conn, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn != nil {
		return c.conn, nil
	}
	if c.closed.Load() {
		return nil, &types.NetworkError{Op: "dial", Err: errors.New("client closed")}
	}

	dialCtx, cancel := context.WithTimeout(ctx, c.cfg.HandshakeTimeout)
	defer cancel()

	header := http.Header{}
	if c.cfg.AuthToken != "" {
		header.Set("Authorization", "Bearer "+c.cfg.AuthToken)
	}
	conn, resp, err := websocket.Dial(dialCtx, c.cfg.URL, &websocket.DialOptions{HTTPHeader: header})
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusUnauthorized {
			return nil, &types.HTTPError{Code: resp.StatusCode, Message: "relay rejected credentials"}
		}
		return nil, &types.NetworkError{Op: "dial", Err: err}
	}
	conn.SetReadLimit(maxFrameBytes)

	c.conn = conn
	c.online.Store(true)
	c.logger.WithField("url", c.cfg.URL).Info("Connected to relay")
	go c.readLoop(conn)
	return conn, nil
}

func (c *Client) readLoop(conn *websocket.Conn) {
	for {
		var frame types.ResponseFrame
		if err := wsjson.Read(context.Background(), conn, &frame); err != nil {
			c.dropConn(conn, err)
			return
		}

		c.mu.Lock()
		ch, ok := c.pending[frame.ID]
		c.mu.Unlock()
		if !ok {
			c.logger.WithField("frame_id", frame.ID).Debug("Dropping response for unknown call")
			continue
		}
		ch <- callResult{frame: frame}
	}
}

// dropConn forgets conn if it is still current and fails every waiting call.
func (c *Client) dropConn(conn *websocket.Conn, cause error) {
	c.mu.Lock()
	if c.conn != conn {
		c.mu.Unlock()
		return
	}
	c.conn = nil
	c.online.Store(false)
	waiting := c.pending
	c.pending = make(map[string]chan callResult)
	c.mu.Unlock()

	_ = conn.CloseNow()
	for _, ch := range waiting {
		select {
		case ch <- callResult{err: &types.NetworkError{Op: "read", Err: cause}}:
		default:
		}
	}

	if websocket.CloseStatus(cause) == websocket.StatusNormalClosure || c.closed.Load() {
		c.logger.Debug("Relay connection closed")
		return
	}
	c.logger.WithError(cause).Warn("Relay connection lost")
}

func isNetworkError(err error) bool {
	var netErr *types.NetworkError
	return errors.As(err, &netErr)
}
