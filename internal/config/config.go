package config

import "time"

// PipelineConfig is the root configuration for a pipeline instance.
type PipelineConfig struct {
	Instance InstanceConfig `yaml:"instance"`
	API      APIConfig      `yaml:"api"`
	Database DBConfig       `yaml:"database"`
	Poller   PollerConfig   `yaml:"poller"`
	Stream   StreamConfig   `yaml:"stream"`
	Monitor  MonitorConfig  `yaml:"monitor"`
	Health   HealthConfig   `yaml:"health"`
	LogLevel string         `yaml:"log_level"`
}

// InstanceConfig identifies this pipeline instance.
type InstanceConfig struct {
	ID string `yaml:"id"`
}

// APIConfig holds upstream Polymarket API settings.
type APIConfig struct {
	GammaURL   string        `yaml:"gamma_url"`    // events + markets REST
	ClobURL    string        `yaml:"clob_url"`     // bulk prices REST
	WSURL      string        `yaml:"ws_url"`       // CLOB market stream
	APIKey     string        `yaml:"api_key"`      // opaque WS credentials
	Secret     string        `yaml:"secret"`       //
	Passphrase string        `yaml:"passphrase"`   //
	Timeout    time.Duration `yaml:"timeout"`      // per-request HTTP timeout
	MaxRetries int           `yaml:"max_retries"`
}

// DBConfig holds the Postgres connection.
type DBConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Name     string `yaml:"name"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	SSLMode  string `yaml:"ssl_mode"`
	MaxConns int    `yaml:"max_conns"`
	MinConns int    `yaml:"min_conns"`

	// PgBouncer in transaction-pooling mode cannot host prepared statements.
	SimpleProtocol bool `yaml:"simple_protocol"`
}

// PollerConfig holds ingestion cycle settings.
type PollerConfig struct {
	Enabled       bool          `yaml:"enabled"`
	Interval      time.Duration `yaml:"interval"`        // one cycle per interval
	EventsPages   int           `yaml:"events_pages"`    // Pass 1 page cap
	PageSize      int           `yaml:"page_size"`       // events/markets page size
	UpsertChunk   int           `yaml:"upsert_chunk"`    // rows per store batch
	UrgentWindow  time.Duration `yaml:"urgent_window"`   // TIER 1 expiry window
	HighCount     int           `yaml:"high_count"`      // TIER 2 per cycle
	MediumCount   int           `yaml:"medium_count"`    // TIER 3 per cycle
	SmallCount    int           `yaml:"small_count"`     // TIER 4 per rotation
	SmallEvery    int           `yaml:"small_every"`     // TIER 4 cadence (cycles)
	ProposedLimit int           `yaml:"proposed_limit"`  // Pass 4 row cap
	HealthEvery   int           `yaml:"health_every"`    // freshness sweep cadence (cycles)
}

// StreamConfig holds WebSocket streamer settings.
type StreamConfig struct {
	Enabled           bool          `yaml:"enabled"`
	SyncInterval      time.Duration `yaml:"sync_interval"`       // subscription diff cadence
	ReconnectBaseWait time.Duration `yaml:"reconnect_base_wait"`
	ReconnectMaxWait  time.Duration `yaml:"reconnect_max_wait"`
	PingInterval      time.Duration `yaml:"ping_interval"`
	PingTimeout       time.Duration `yaml:"ping_timeout"`
	WriteTimeout      time.Duration `yaml:"write_timeout"`
	BufferSize        int           `yaml:"buffer_size"`
	MaxFrameBytes     int64         `yaml:"max_frame_bytes"`
	TokenLimit        int           `yaml:"token_limit"` // cap on subscribed token IDs
}

// MonitorConfig holds TP/SL monitor settings.
type MonitorConfig struct {
	TPSLEnabled  bool          `yaml:"tpsl_enabled"`
	TPSLInterval time.Duration `yaml:"tpsl_interval"`
	RedeemTTL    time.Duration `yaml:"redeem_ttl"` // redeemable result cache TTL
}

// HealthConfig holds the health endpoint settings.
type HealthConfig struct {
	Port int `yaml:"port"`
}
