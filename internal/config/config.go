// Package config contains all knobs and defaults used to configure scimctl
// and the identity provider it talks to.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"
)

const (
	DefaultScope   = "urn:opc:idm:__myscopes__"
	DefaultTimeout = 30 * time.Second

	// DefaultSearchSize is how many users each search page asks for.
	DefaultSearchSize = 100
	// DefaultBatchSize is the number of operations sent in one bulk call.
	DefaultBatchSize = 20
	// DefaultWorkers is the number of bulk calls allowed in flight.
	DefaultWorkers = 4
	// DefaultIdleDays defines an idle user as one who has not logged in for this many days.
	DefaultIdleDays = 90
)

// LogConfig defines log specific settings. For unattended runs we recommend
// using the 'json' log format.
type LogConfig struct {
	// Format is the log format to use in the log output (e.g. 'text' or 'json')
	Format string

	// Level is the log level to use in the log output (e.g. 'none', 'debug', or 'info')
	Level string

	// Format of the timestamp in the log output (e.g. 'Unix'(default) or 'ISO8601')
	TimestampFormat string
}

type TraceConfig struct {
	Enabled     bool
	OTLP        OTLPTraceConfig `mapstructure:"otlp"`
	SampleRatio float64
	ServiceName string
}

type OTLPTraceConfig struct {
	Endpoint string
	TLS      OTLPTraceTLSConfig
}

type OTLPTraceTLSConfig struct {
	Enabled bool
}

// MetricConfig defines where the counters of a run are published.
type MetricConfig struct {
	// Pushgateway is the URL of a Prometheus pushgateway. Metrics are not published when empty.
	Pushgateway string
	Job         string
}

// JournalConfig defines the local audit trail of runs.
type JournalConfig struct {
	// Path is the SQLite database file. The journal is disabled when empty.
	Path    string
	Timeout time.Duration
}

// PipelineConfig tunes the search, batch and submit stages.
type PipelineConfig struct {
	SearchSize int
	BatchSize  int
	Workers    int
}

type Config struct {
	// IAMURL is the base URL of the identity provider, e.g. https://idcs-xxxx.identity.oraclecloud.com
	IAMURL       string `mapstructure:"iamurl"`
	ClientID     string `mapstructure:"client_id"`
	ClientSecret string `mapstructure:"client_secret"`

	// Scope is requested with the client credentials grant.
	Scope string

	// Timeout bounds each HTTP exchange with the identity provider.
	Timeout time.Duration

	Log      LogConfig
	Trace    TraceConfig
	Metrics  MetricConfig
	Journal  JournalConfig
	Pipeline PipelineConfig
}

func (cfg *Config) Verify() error {
	var missing []string
	if cfg.IAMURL == "" {
		missing = append(missing, "iamurl")
	}
	if cfg.ClientID == "" {
		missing = append(missing, "client_id")
	}
	if cfg.ClientSecret == "" {
		missing = append(missing, "client_secret")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required config: %s", strings.Join(missing, ", "))
	}

	u, err := url.Parse(cfg.IAMURL)
	if err != nil || (u.Scheme != "https" && u.Scheme != "http") || u.Host == "" {
		return fmt.Errorf("config 'iamurl' must be an absolute http(s) URL, got %q", cfg.IAMURL)
	}

	if cfg.Timeout <= 0 {
		return errors.New("config 'timeout' must be a positive duration")
	}

	if cfg.Log.Format != "text" && cfg.Log.Format != "json" {
		return fmt.Errorf("config 'log.format' must be one of ['text', 'json']")
	}

	if cfg.Log.Level != "none" &&
		cfg.Log.Level != "debug" &&
		cfg.Log.Level != "info" &&
		cfg.Log.Level != "warn" &&
		cfg.Log.Level != "error" &&
		cfg.Log.Level != "panic" &&
		cfg.Log.Level != "fatal" {
		return fmt.Errorf(
			"config 'log.level' must be one of ['none', 'debug', 'info', 'warn', 'error', 'panic', 'fatal']",
		)
	}

	if cfg.Log.TimestampFormat != "Unix" && cfg.Log.TimestampFormat != "ISO8601" {
		return fmt.Errorf("config 'log.TimestampFormat' must be one of ['Unix', 'ISO8601']")
	}

	if cfg.Trace.Enabled && cfg.Trace.OTLP.Endpoint == "" {
		return errors.New("config 'trace.otlp.endpoint' must be set when tracing is enabled")
	}

	if cfg.Pipeline.SearchSize < 1 {
		return errors.New("config 'pipeline.searchSize' must be a positive integer")
	}
	if cfg.Pipeline.BatchSize < 1 {
		return errors.New("config 'pipeline.batchSize' must be a positive integer")
	}
	if cfg.Pipeline.Workers < 1 {
		return errors.New("config 'pipeline.workers' must be a positive integer")
	}

	return nil
}

// TokenURL is the OAuth2 token endpoint of the identity provider.
func (cfg *Config) TokenURL() string {
	return strings.TrimSuffix(cfg.IAMURL, "/") + "/oauth2/v1/token"
}

// MaskedSecret returns the client secret with all but the last four characters hidden.
func (cfg *Config) MaskedSecret() string {
	const visible = 4
	if len(cfg.ClientSecret) <= visible {
		return strings.Repeat("*", len(cfg.ClientSecret))
	}
	return strings.Repeat("*", len(cfg.ClientSecret)-visible) + cfg.ClientSecret[len(cfg.ClientSecret)-visible:]
}

// DefaultConfig is the scimctl default configuration.
func DefaultConfig() *Config {
	return &Config{
		Scope:   DefaultScope,
		Timeout: DefaultTimeout,
		Log: LogConfig{
			Format:          "text",
			Level:           "info",
			TimestampFormat: "Unix",
		},
		Trace: TraceConfig{
			Enabled: false,
			OTLP: OTLPTraceConfig{
				Endpoint: "0.0.0.0:4317",
				TLS: OTLPTraceTLSConfig{
					Enabled: false,
				},
			},
			SampleRatio: 1,
			ServiceName: "scimctl",
		},
		Metrics: MetricConfig{
			Job: "scimctl",
		},
		Journal: JournalConfig{
			Timeout: 5 * time.Second,
		},
		Pipeline: PipelineConfig{
			SearchSize: DefaultSearchSize,
			BatchSize:  DefaultBatchSize,
			Workers:    DefaultWorkers,
		},
	}
}
