// Package config loads the aggregator's settings from defaults, an optional
// config.yaml and AGGREGATOR_* environment variables. Secrets come only from
// their own plain environment variables.
package config

import (
	"net"
	"net/url"
	"strconv"
	"time"
)

// PostgreSQL sslmode values.
const (
	SSLModeDisable    = "disable"
	SSLModeRequire    = "require"
	SSLModeVerifyCA   = "verify-ca"
	SSLModeVerifyFull = "verify-full"
)

// EnvPrefix prefixes every environment override (AGGREGATOR_SERVER_HTTP_PORT, ...).
const EnvPrefix = "AGGREGATOR"

// Config is the root of the settings tree. Keys are the mapstructure names,
// so server.http_port maps to Server.HTTPPort.
type Config struct {
	Server      ServerConfig      `mapstructure:"server"`
	Database    DatabaseConfig    `mapstructure:"database"`
	Temporal    TemporalConfig    `mapstructure:"temporal"`
	Logging     LoggingConfig     `mapstructure:"logging"`
	Metrics     MetricsConfig     `mapstructure:"metrics"`
	Kafka       KafkaConfig       `mapstructure:"kafka"`
	Sources     SourcesConfig     `mapstructure:"sources"`
	Aggregation AggregationConfig `mapstructure:"aggregation"`
}

// ServerConfig binds the REST API, the gRPC health service and the metrics
// endpoint on one host.
type ServerConfig struct {
	Host        string `mapstructure:"host"`
	HTTPPort    int    `mapstructure:"http_port" validate:"min=1,max=65535"`
	GRPCPort    int    `mapstructure:"grpc_port" validate:"min=1,max=65535"`
	MetricsPort int    `mapstructure:"metrics_port" validate:"min=1,max=65535"`

	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

func (c *ServerConfig) HTTPAddress() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.HTTPPort))
}

func (c *ServerConfig) GRPCAddress() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.GRPCPort))
}

func (c *ServerConfig) MetricsAddress() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.MetricsPort))
}

// DatabaseConfig locates the records database and sizes its pool.
type DatabaseConfig struct {
	Host string `mapstructure:"host" validate:"required"`
	Port int    `mapstructure:"port" validate:"min=1,max=65535"`
	User string `mapstructure:"user"`
	Name string `mapstructure:"name" validate:"required"`
	// Password is read from DATABASE_PASSWORD only.
	Password string `mapstructure:"-"`
	SSLMode  string `mapstructure:"ssl_mode" validate:"oneof=disable require verify-ca verify-full"`

	MaxConns          int32         `mapstructure:"max_conns"`
	MinConns          int32         `mapstructure:"min_conns" validate:"min=0"`
	MaxConnLifetime   time.Duration `mapstructure:"max_conn_lifetime"`
	MaxConnIdleTime   time.Duration `mapstructure:"max_conn_idle_time"`
	HealthCheckPeriod time.Duration `mapstructure:"health_check_period"`
	ConnectTimeout    time.Duration `mapstructure:"connect_timeout"`

	// MigrationPath overrides the embedded migrations with a directory on disk.
	MigrationPath string `mapstructure:"migration_path"`
	AutoMigrate   bool   `mapstructure:"auto_migrate"`
}

// DSN renders the settings as a postgres:// URL.
func (c *DatabaseConfig) DSN() string {
	q := url.Values{"sslmode": {c.SSLMode}}
	if c.ConnectTimeout > 0 {
		q.Set("connect_timeout", strconv.Itoa(int(c.ConnectTimeout.Seconds())))
	}
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(c.User, c.Password),
		Host:     net.JoinHostPort(c.Host, strconv.Itoa(c.Port)),
		Path:     "/" + c.Name,
		RawQuery: q.Encode(),
	}
	return u.String()
}

// TemporalConfig points the refresh worker at its Temporal frontend.
type TemporalConfig struct {
	HostPort  string `mapstructure:"host_port" validate:"required"`
	Namespace string `mapstructure:"namespace"`
	TaskQueue string `mapstructure:"task_queue" validate:"required"`
	// RefreshInterval schedules RefreshWorkflow; zero disables the schedule.
	RefreshInterval time.Duration     `mapstructure:"refresh_interval" validate:"min=0"`
	TLS             TemporalTLSConfig `mapstructure:"tls"`
	// ActivityConcurrency bounds concurrent activities on this worker.
	ActivityConcurrency int           `mapstructure:"activity_concurrency" validate:"min=0"`
	StopTimeout         time.Duration `mapstructure:"stop_timeout" validate:"min=0"`
}

// TemporalTLSConfig enables TLS, optionally mutual, to the Temporal frontend.
type TemporalTLSConfig struct {
	Enabled    bool   `mapstructure:"enabled"`
	CertFile   string `mapstructure:"cert_file" validate:"required_with=KeyFile"`
	KeyFile    string `mapstructure:"key_file" validate:"required_with=CertFile"`
	CAFile     string `mapstructure:"ca_file"`
	ServerName string `mapstructure:"server_name"`
}

// LoggingConfig selects the zerolog level, encoding and destination.
type LoggingConfig struct {
	Level string `mapstructure:"level" validate:"loglevel"`
	// Format is json, or console for human-readable output.
	Format string `mapstructure:"format" validate:"oneof=json console pretty"`
	// Output is stdout, stderr or a file path.
	Output     string `mapstructure:"output"`
	AddSource  bool   `mapstructure:"add_source"`
	TimeFormat string `mapstructure:"time_format"`
}

type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path" validate:"required_if=Enabled true"`
}

// KafkaConfig configures the records-ingested publisher and the consumer of
// on-demand refresh requests.
type KafkaConfig struct {
	Enabled      bool          `mapstructure:"enabled"`
	Brokers      []string      `mapstructure:"brokers" validate:"required_if=Enabled true"`
	Topic        string        `mapstructure:"topic"`
	BatchSize    int           `mapstructure:"batch_size" validate:"min=0"`
	BatchTimeout time.Duration `mapstructure:"batch_timeout"`
	// RefreshTopic carries refresh requests to the worker. Empty disables
	// the listener.
	RefreshTopic string `mapstructure:"refresh_topic"`
	GroupID      string `mapstructure:"group_id"`
}

// SourcesConfig has one entry per external provider.
type SourcesConfig struct {
	ArXiv         SourceConfig `mapstructure:"arxiv"`
	PubMedCentral SourceConfig `mapstructure:"pubmed_central"`
	DOAJ          SourceConfig `mapstructure:"doaj"`
	CORE          SourceConfig `mapstructure:"core"`
	NewsAPI       SourceConfig `mapstructure:"newsapi"`
	Ticketmaster  SourceConfig `mapstructure:"ticketmaster"`
	AllEvents     SourceConfig `mapstructure:"allevents"`
}

// SourceConfig tunes one provider's client. A disabled provider is never
// registered.
type SourceConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	BaseURL string `mapstructure:"base_url" validate:"required_if=Enabled true"`
	// APIKey is loaded from the provider's plain environment variable.
	APIKey string `mapstructure:"-"`

	Timeout   time.Duration `mapstructure:"timeout"`
	RateLimit float64       `mapstructure:"rate_limit" validate:"min=0"`
	Burst     int           `mapstructure:"burst" validate:"min=0"`
	// MaxRetries bounds retries of transient failures; negative disables retries.
	MaxRetries int `mapstructure:"max_retries"`
	MaxResults int `mapstructure:"max_results" validate:"min=0"`
	// CacheTTL is the freshness window of the source's cache, if it has one.
	CacheTTL time.Duration `mapstructure:"cache_ttl" validate:"min=0"`
}

// AggregationConfig holds fan-out and feed settings.
type AggregationConfig struct {
	// MaxResultsPerSource caps per-source limits of multi-source fetches.
	MaxResultsPerSource int `mapstructure:"max_results_per_source" validate:"min=1,max=50"`
	// DetailConcurrency bounds concurrent PubMed Central detail fetches.
	DetailConcurrency int    `mapstructure:"detail_concurrency" validate:"min=1"`
	DefaultQuery      string `mapstructure:"default_query"`
	NewsQuery         string `mapstructure:"news_query"`
	City              string `mapstructure:"city"`
	CountryCode       string `mapstructure:"country_code"`
	// FeedLimit is how many persisted items GET /news and GET /events return.
	FeedLimit int `mapstructure:"feed_limit" validate:"min=1,max=100"`
}
