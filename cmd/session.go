package cmd

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/viper"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/zap"

	"github.com/idcs-tools/scimctl/internal/config"
	"github.com/idcs-tools/scimctl/internal/iam"
	"github.com/idcs-tools/scimctl/internal/journal"
	"github.com/idcs-tools/scimctl/pkg/logger"
	"github.com/idcs-tools/scimctl/pkg/telemetry"
)

const shutdownTimeout = 5 * time.Second

// ReadConfig returns the configuration merged from flags, environment and the config file.
func ReadConfig() (*config.Config, error) {
	cfg := config.DefaultConfig()

	viper.SetTypeByDefaultValue(true)
	err := viper.ReadInConfig()
	if err != nil {
		if !errors.As(err, &viper.ConfigFileNotFoundError{}) {
			return nil, fmt.Errorf("failed to load config: %w", err)
		}
	}

	if err := viper.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return cfg, nil
}

// session holds everything one command execution talks to.
type session struct {
	config         *config.Config
	runID          string
	command        string
	logger         logger.Logger
	client         *iam.Client
	journal        journal.Journal
	registry       *prometheus.Registry
	tracerProvider *sdktrace.TracerProvider
}

func newSession(ctx context.Context, command string) (*session, error) {
	cfg, err := ReadConfig()
	if err != nil {
		return nil, err
	}
	if err := cfg.Verify(); err != nil {
		return nil, err
	}

	log, err := logger.NewLogger(cfg.Log.Format, cfg.Log.Level, cfg.Log.TimestampFormat)
	if err != nil {
		return nil, err
	}

	s := &session{
		config:   cfg,
		runID:    uuid.NewString(),
		command:  command,
		journal:  journal.Noop{},
		registry: prometheus.NewRegistry(),
	}
	s.logger = log.With(zap.String("run_id", s.runID), zap.String("command", command))
	s.logger.Info("starting up")

	if cfg.Trace.Enabled {
		opts := []telemetry.TracerOption{
			telemetry.WithOTLPEndpoint(cfg.Trace.OTLP.Endpoint),
			telemetry.WithServiceName(cfg.Trace.ServiceName),
			telemetry.WithSamplingRatio(cfg.Trace.SampleRatio),
		}
		if !cfg.Trace.OTLP.TLS.Enabled {
			opts = append(opts, telemetry.WithOTLPInsecure())
		}
		if s.tracerProvider, err = telemetry.NewTracerProvider(opts...); err != nil {
			return nil, err
		}
	}

	s.client, err = iam.New(ctx, cfg, iam.WithLogger(s.logger))
	if err != nil {
		s.close(ctx)
		return nil, err
	}

	if cfg.Journal.Path != "" {
		j, err := journal.Open(ctx, cfg.Journal.Path, cfg.Journal.Timeout, s.logger)
		if err != nil {
			s.close(ctx)
			return nil, fmt.Errorf("open journal: %w", err)
		}
		s.journal = j
	}

	return s, nil
}

// close publishes the metrics of the run and releases the session resources.
// Failures are logged since the work of the run is already done.
func (s *session) close(ctx context.Context) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()

	if s.config.Metrics.Pushgateway != "" {
		if err := telemetry.PushMetrics(ctx, s.config.Metrics.Pushgateway, s.config.Metrics.Job, s.runID, s.registry); err != nil {
			s.logger.Warn("failed to push metrics", zap.Error(err))
		}
	}

	if err := s.journal.Close(); err != nil {
		s.logger.Warn("failed to close journal", zap.Error(err))
	}

	if s.tracerProvider != nil {
		if err := s.tracerProvider.Shutdown(ctx); err != nil {
			s.logger.Warn("failed to flush traces", zap.Error(err))
		}
	}
}
