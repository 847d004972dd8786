package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// secretEnv maps each secret to the plain variable it is read from. The
// fields carry mapstructure:"-" so no config file can set them.
var secretEnv = map[string]func(*Config) *string{
	"DATABASE_PASSWORD":    func(c *Config) *string { return &c.Database.Password },
	"NEWS_API_KEY":         func(c *Config) *string { return &c.Sources.NewsAPI.APIKey },
	"TICKETMASTER_API_KEY": func(c *Config) *string { return &c.Sources.Ticketmaster.APIKey },
	"CORE_API_KEY":         func(c *Config) *string { return &c.Sources.CORE.APIKey },
	"NCBI_API_KEY":         func(c *Config) *string { return &c.Sources.PubMedCentral.APIKey },
}

// Load merges defaults, config.yaml (from ., ./config or
// /etc/materials-aggregator) and AGGREGATOR_* variables, then validates.
func Load() (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	for _, dir := range []string{".", "./config", "/etc/materials-aggregator"} {
		v.AddConfigPath(dir)
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	for env, field := range secretEnv {
		*field(&cfg) = os.Getenv(env)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}

// sourceDefaults are the per-provider defaults; every provider starts enabled.
type sourceDefaults struct {
	baseURL    string
	rateLimit  float64
	burst      int
	maxResults int
	cacheTTL   time.Duration
}

var providerDefaults = map[string]sourceDefaults{
	"arxiv":          {"https://export.arxiv.org/api", 0.5, 1, 50, 0},
	"pubmed_central": {"https://eutils.ncbi.nlm.nih.gov/entrez/eutils", 3, 3, 20, 0},
	"doaj":           {"https://doaj.org/api/v2", 2, 2, 20, 0},
	"core":           {"https://api.core.ac.uk/v3", 1, 1, 20, 0},
	"newsapi":        {"https://newsapi.org/v2", 1, 2, 20, 20 * time.Minute},
	"ticketmaster":   {"https://app.ticketmaster.com/discovery/v2", 4, 4, 20, 20 * time.Minute},
	"allevents":      {"https://allevents.in", 1, 1, 20, 30 * time.Minute},
}

func setDefaults(v *viper.Viper) {
	defaults := map[string]any{
		"server.host":             "0.0.0.0",
		"server.http_port":        8080,
		"server.grpc_port":        9090,
		"server.metrics_port":     9091,
		"server.read_timeout":     "30s",
		"server.write_timeout":    "90s",
		"server.shutdown_timeout": "30s",

		"database.host": "localhost",
		"database.port": 5432,
		"database.user": "aggregator",
		"database.name": "materials_aggregator",
		// Local development sets AGGREGATOR_DATABASE_SSL_MODE=disable.
		"database.ssl_mode":            SSLModeRequire,
		"database.max_conns":           20,
		"database.min_conns":           2,
		"database.max_conn_lifetime":   "1h",
		"database.max_conn_idle_time":  "30m",
		"database.health_check_period": "30s",
		"database.connect_timeout":     "10s",
		"database.migration_path":      "",
		"database.auto_migrate":        false,

		"temporal.host_port":            "localhost:7233",
		"temporal.namespace":            "default",
		"temporal.task_queue":           "materials-aggregator-refresh",
		"temporal.refresh_interval":     "30m",
		"temporal.tls.enabled":          false,
		"temporal.tls.cert_file":        "",
		"temporal.tls.key_file":         "",
		"temporal.tls.ca_file":          "",
		"temporal.tls.server_name":      "",
		"temporal.activity_concurrency": 20,
		"temporal.stop_timeout":         "30s",

		"logging.level":       "info",
		"logging.format":      "json",
		"logging.output":      "stdout",
		"logging.add_source":  false,
		"logging.time_format": time.RFC3339,

		"metrics.enabled": true,
		"metrics.path":    "/metrics",

		"kafka.enabled":       false,
		"kafka.brokers":       []string{"localhost:9092"},
		"kafka.topic":         "records.ingested",
		"kafka.batch_size":    100,
		"kafka.batch_timeout": "10ms",
		"kafka.refresh_topic": "records.refresh-requested",
		"kafka.group_id":      "materials-aggregator-worker",

		"aggregation.max_results_per_source": 50,
		"aggregation.detail_concurrency":     4,
		"aggregation.default_query":          "materials science",
		"aggregation.news_query":             "chandigarh",
		"aggregation.city":                   "Chandigarh",
		"aggregation.country_code":           "IN",
		"aggregation.feed_limit":             10,
	}
	for key, value := range defaults {
		v.SetDefault(key, value)
	}

	for name, d := range providerDefaults {
		prefix := "sources." + name + "."
		v.SetDefault(prefix+"enabled", true)
		v.SetDefault(prefix+"base_url", d.baseURL)
		v.SetDefault(prefix+"timeout", "30s")
		v.SetDefault(prefix+"rate_limit", d.rateLimit)
		v.SetDefault(prefix+"burst", d.burst)
		v.SetDefault(prefix+"max_retries", 3)
		v.SetDefault(prefix+"max_results", d.maxResults)
		v.SetDefault(prefix+"cache_ttl", d.cacheTTL)
	}
}
