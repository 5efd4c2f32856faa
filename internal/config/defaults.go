package config

import "time"

// Default values for optional configuration fields.
const (
	DefaultGammaURL = "https://gamma-api.polymarket.com"
	DefaultClobURL  = "https://clob.polymarket.com"
	DefaultWSURL    = "wss://ws-subscriptions-clob.polymarket.com/ws/market"

	DefaultAPITimeout = 30 * time.Second
	DefaultMaxRetries = 3

	DefaultDBPort   = 5432
	DefaultDBSSL    = "prefer"
	DefaultMaxConns = 3
	DefaultMinConns = 1

	DefaultPollInterval  = 60 * time.Second
	DefaultEventsPages   = 200
	DefaultPageSize      = 200
	DefaultUpsertChunk   = 500
	DefaultUrgentWindow  = 2 * time.Hour
	DefaultHighCount     = 12
	DefaultMediumCount   = 3
	DefaultSmallCount    = 1
	DefaultSmallEvery    = 3
	DefaultProposedLimit = 1000
	DefaultHealthEvery   = 60

	DefaultSyncInterval      = 60 * time.Second
	DefaultReconnectBaseWait = 1 * time.Second
	DefaultReconnectMaxWait  = 60 * time.Second
	DefaultPingInterval      = 30 * time.Second
	DefaultPingTimeout       = 10 * time.Second
	DefaultWriteTimeout      = 5 * time.Second
	DefaultStreamBuffer      = 1000
	DefaultMaxFrameBytes     = 10 << 20 // 10 MiB
	DefaultTokenLimit        = 500

	DefaultTPSLInterval = 10 * time.Second
	DefaultRedeemTTL    = 5 * time.Minute

	DefaultHealthPort = 8080
)

func (c *PipelineConfig) applyDefaults() {
	if c.API.GammaURL == "" {
		c.API.GammaURL = DefaultGammaURL
	}
	if c.API.ClobURL == "" {
		c.API.ClobURL = DefaultClobURL
	}
	if c.API.WSURL == "" {
		c.API.WSURL = DefaultWSURL
	}
	if c.API.Timeout == 0 {
		c.API.Timeout = DefaultAPITimeout
	}
	if c.API.MaxRetries == 0 {
		c.API.MaxRetries = DefaultMaxRetries
	}

	if c.Database.Port == 0 {
		c.Database.Port = DefaultDBPort
	}
	if c.Database.SSLMode == "" {
		c.Database.SSLMode = DefaultDBSSL
	}
	if c.Database.MaxConns == 0 {
		c.Database.MaxConns = DefaultMaxConns
	}
	if c.Database.MinConns == 0 {
		c.Database.MinConns = DefaultMinConns
	}

	if c.Poller.Interval == 0 {
		c.Poller.Interval = DefaultPollInterval
	}
	if c.Poller.EventsPages == 0 {
		c.Poller.EventsPages = DefaultEventsPages
	}
	if c.Poller.PageSize == 0 {
		c.Poller.PageSize = DefaultPageSize
	}
	if c.Poller.UpsertChunk == 0 {
		c.Poller.UpsertChunk = DefaultUpsertChunk
	}
	if c.Poller.UrgentWindow == 0 {
		c.Poller.UrgentWindow = DefaultUrgentWindow
	}
	if c.Poller.HighCount == 0 {
		c.Poller.HighCount = DefaultHighCount
	}
	if c.Poller.MediumCount == 0 {
		c.Poller.MediumCount = DefaultMediumCount
	}
	if c.Poller.SmallCount == 0 {
		c.Poller.SmallCount = DefaultSmallCount
	}
	if c.Poller.SmallEvery == 0 {
		c.Poller.SmallEvery = DefaultSmallEvery
	}
	if c.Poller.ProposedLimit == 0 {
		c.Poller.ProposedLimit = DefaultProposedLimit
	}
	if c.Poller.HealthEvery == 0 {
		c.Poller.HealthEvery = DefaultHealthEvery
	}

	if c.Stream.SyncInterval == 0 {
		c.Stream.SyncInterval = DefaultSyncInterval
	}
	if c.Stream.ReconnectBaseWait == 0 {
		c.Stream.ReconnectBaseWait = DefaultReconnectBaseWait
	}
	if c.Stream.ReconnectMaxWait == 0 {
		c.Stream.ReconnectMaxWait = DefaultReconnectMaxWait
	}
	if c.Stream.PingInterval == 0 {
		c.Stream.PingInterval = DefaultPingInterval
	}
	if c.Stream.PingTimeout == 0 {
		c.Stream.PingTimeout = DefaultPingTimeout
	}
	if c.Stream.WriteTimeout == 0 {
		c.Stream.WriteTimeout = DefaultWriteTimeout
	}
	if c.Stream.BufferSize == 0 {
		c.Stream.BufferSize = DefaultStreamBuffer
	}
	if c.Stream.MaxFrameBytes == 0 {
		c.Stream.MaxFrameBytes = DefaultMaxFrameBytes
	}
	if c.Stream.TokenLimit == 0 {
		c.Stream.TokenLimit = DefaultTokenLimit
	}

	if c.Monitor.TPSLInterval == 0 {
		c.Monitor.TPSLInterval = DefaultTPSLInterval
	}
	if c.Monitor.RedeemTTL == 0 {
		c.Monitor.RedeemTTL = DefaultRedeemTTL
	}

	if c.Health.Port == 0 {
		c.Health.Port = DefaultHealthPort
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
}
