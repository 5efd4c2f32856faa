package stream

import (
	"context"
	"encoding/json"
	"log/slog"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"
)

// escalateAfter is the consecutive connect-failure count that gets
// reported at error level for the supervisor to see.
const escalateAfter = 5

// TokenSource supplies the desired subscription set.
type TokenSource interface {
	ActivePositionTokenIDs(ctx context.Context, limit int) ([]string, error)
}

// Config configures the Streamer.
type Config struct {
	URL        string
	APIKey     string
	Secret     string
	Passphrase string

	SyncInterval      time.Duration
	ReconnectBaseWait time.Duration
	ReconnectMaxWait  time.Duration
	PingInterval      time.Duration
	PingTimeout       time.Duration
	WriteTimeout      time.Duration
	BufferSize        int
	MaxFrameSize      int64
	TokenLimit        int
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		SyncInterval:      60 * time.Second,
		ReconnectBaseWait: 1 * time.Second,
		ReconnectMaxWait:  60 * time.Second,
		PingInterval:      30 * time.Second,
		PingTimeout:       10 * time.Second,
		WriteTimeout:      5 * time.Second,
		BufferSize:        1000,
		MaxFrameSize:      10 << 20,
		TokenLimit:        500,
	}
}

// Streamer owns the WebSocket connection: reconnect with backoff,
// subscription synchronization, and frame dispatch. It is the only writer
// of the socket.
type Streamer struct {
	cfg    Config
	tokens TokenSource
	router *Router
	logger *slog.Logger

	// newClient is swapped in tests.
	newClient func(ClientConfig, *slog.Logger) Client

	syncCh          chan struct{}
	connectFailures atomic.Int64

	mu      sync.RWMutex
	client  Client
	current map[string]struct{}
	state   string

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewStreamer creates a Streamer.
func NewStreamer(cfg Config, tokens TokenSource, router *Router, logger *slog.Logger) *Streamer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Streamer{
		cfg:       cfg,
		tokens:    tokens,
		router:    router,
		logger:    logger.With("component", "streamer"),
		newClient: NewClient,
		syncCh:    make(chan struct{}, 1),
		current:   make(map[string]struct{}),
		state:     "disconnected",
	}
}

// Start launches the stream worker.
func (s *Streamer) Start(ctx context.Context) error {
	s.ctx, s.cancel = context.WithCancel(ctx)

	s.wg.Add(1)
	go s.run()

	s.logger.Info("streamer started", "sync_interval", s.cfg.SyncInterval)
	return nil
}

// Stop shuts the worker down, waiting up to ctx for the drain.
func (s *Streamer) Stop(ctx context.Context) error {
	s.logger.Info("stopping streamer")

	if s.cancel != nil {
		s.cancel()
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Info("streamer stopped")
	case <-ctx.Done():
		s.logger.Warn("streamer stop timed out")
	}
	return nil
}

// TriggerSync forces a subscription sync on the next loop iteration. The
// trading layer calls this right after a user's trade changes their
// position set.
func (s *Streamer) TriggerSync() {
	select {
	case s.syncCh <- struct{}{}:
	default:
	}
}

// State reports the connection state for the health endpoint.
func (s *Streamer) State() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Subscribed returns the size of the current subscription set.
func (s *Streamer) Subscribed() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.current)
}

// ConnectFailures reports the consecutive failed connect attempts, zero
// while connected. The health endpoint surfaces it.
func (s *Streamer) ConnectFailures() int64 {
	return s.connectFailures.Load()
}

func (s *Streamer) setState(state string) {
	s.mu.Lock()
	s.state = state
	s.mu.Unlock()
}

// run is the worker loop: connect, resync subscriptions, then read frames
// until the connection drops.
func (s *Streamer) run() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.cfg.SyncInterval)
	defer ticker.Stop()

	for {
		client := s.connect()
		if client == nil {
			s.setState("disconnected")
			return
		}
		s.setState("streaming")

		// The server has no memory of prior subscriptions.
		s.mu.Lock()
		s.client = client
		s.current = make(map[string]struct{})
		s.mu.Unlock()

		s.syncSubscriptions(s.ctx)

	read:
		for {
			select {
			case <-s.ctx.Done():
				client.Close()
				s.setState("disconnected")
				return
			case msg := <-client.Messages():
				s.router.Dispatch(s.ctx, msg.Data)
			case err := <-client.Errors():
				s.logger.Warn("stream error, reconnecting", "error", err)
				client.Close()
				break read
			case <-ticker.C:
				s.syncSubscriptions(s.ctx)
			case <-s.syncCh:
				s.syncSubscriptions(s.ctx)
			}
		}
	}
}

// connect dials with exponential backoff and jitter until it succeeds or
// the worker is cancelled. Returns nil only on cancellation.
func (s *Streamer) connect() Client {
	s.setState("connecting")

	wait := s.cfg.ReconnectBaseWait
	failures := 0

	for {
		if s.ctx.Err() != nil {
			return nil
		}

		cfg := ClientConfig{
			URL:          s.cfg.URL,
			APIKey:       s.cfg.APIKey,
			Secret:       s.cfg.Secret,
			Passphrase:   s.cfg.Passphrase,
			PingInterval: s.cfg.PingInterval,
			PingTimeout:  s.cfg.PingTimeout,
			WriteTimeout: s.cfg.WriteTimeout,
			BufferSize:   s.cfg.BufferSize,
			MaxFrameSize: s.cfg.MaxFrameSize,
		}
		client := s.newClient(cfg, s.logger)

		err := client.Connect(s.ctx)
		if err == nil {
			s.connectFailures.Store(0)
			s.logger.Info("stream connected")
			return client
		}

		failures++
		s.connectFailures.Store(int64(failures))
		level := slog.LevelWarn
		if failures >= escalateAfter {
			level = slog.LevelError
		}
		s.logger.Log(s.ctx, level, "stream connect failed",
			"attempt", failures,
			"wait", wait,
			"error", err,
		)

		select {
		case <-s.ctx.Done():
			return nil
		case <-time.After(jitter(wait)):
		}

		wait *= 2
		if wait > s.cfg.ReconnectMaxWait {
			wait = s.cfg.ReconnectMaxWait
		}
	}
}

// syncSubscriptions diffs the desired token set against the current one and
// sends the deltas.
func (s *Streamer) syncSubscriptions(ctx context.Context) {
	desired, err := s.tokens.ActivePositionTokenIDs(ctx, s.cfg.TokenLimit)
	if err != nil {
		s.logger.Error("desired subscription set unavailable", "error", err)
		return
	}

	desiredSet := make(map[string]struct{}, len(desired))
	for _, id := range desired {
		desiredSet[id] = struct{}{}
	}

	s.mu.RLock()
	client := s.client
	var add, drop []string
	for id := range desiredSet {
		if _, ok := s.current[id]; !ok {
			add = append(add, id)
		}
	}
	for id := range s.current {
		if _, ok := desiredSet[id]; !ok {
			drop = append(drop, id)
		}
	}
	s.mu.RUnlock()

	if client == nil || (len(add) == 0 && len(drop) == 0) {
		return
	}

	if len(drop) > 0 {
		if err := s.sendFrame(client, "unsubscribe", drop); err != nil {
			s.logger.Warn("unsubscribe failed", "count", len(drop), "error", err)
			return
		}
	}
	if len(add) > 0 {
		if err := s.sendFrame(client, "subscribe", add); err != nil {
			s.logger.Warn("subscribe failed", "count", len(add), "error", err)
			return
		}
	}

	s.mu.Lock()
	s.current = desiredSet
	s.mu.Unlock()

	s.logger.Debug("subscriptions synced",
		"subscribed", len(add),
		"unsubscribed", len(drop),
		"total", len(desiredSet),
	)
}

func (s *Streamer) sendFrame(client Client, action string, assetIDs []string) error {
	frame, err := json.Marshal(SubscribeFrame{
		Action:   action,
		Type:     "market",
		AssetIDs: assetIDs,
	})
	if err != nil {
		return err
	}
	return client.Send(frame)
}

// jitter returns d with up to 10% random skew either way.
func jitter(d time.Duration) time.Duration {
	skew := time.Duration(rand.Int63n(int64(d) / 5))
	return d - d/10 + skew
}
