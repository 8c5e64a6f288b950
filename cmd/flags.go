package cmd

import (
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/idcs-tools/scimctl/cmd/util"
	"github.com/idcs-tools/scimctl/internal/config"
)

const (
	searchSizeFlag = "search-size"
	batchSizeFlag  = "batch-size"
	workersFlag    = "workers"
	idleDaysFlag   = "idle-days"
	countFlag      = "count"
	seedFlag       = "seed"

	searchSizeConf = "pipeline.searchSize"
	batchSizeConf  = "pipeline.batchSize"
	workersConf    = "pipeline.workers"
	idleDaysConf   = "idleDays"
	countConf      = "count"
	seedConf       = "seed"
)

// bindGlobalFlags binds the flags shared by every command to the equivalent
// config value being managed by viper.
func bindGlobalFlags(flags *pflag.FlagSet) {
	defaultConfig := config.DefaultConfig()

	flags.String("iamurl", defaultConfig.IAMURL, "the base URL of the identity domain (e.g. 'https://idcs-0123.identity.oraclecloud.com')")
	util.MustBindPFlag("iamurl", flags.Lookup("iamurl"))
	util.MustBindEnv("iamurl", "SCIMCTL_IAMURL")

	flags.String("client-id", defaultConfig.ClientID, "the OAuth client id used to authenticate")
	util.MustBindPFlag("client_id", flags.Lookup("client-id"))
	util.MustBindEnv("client_id", "SCIMCTL_CLIENT_ID")

	flags.String("client-secret", defaultConfig.ClientSecret, "the OAuth client secret used to authenticate")
	util.MustBindPFlag("client_secret", flags.Lookup("client-secret"))
	util.MustBindEnv("client_secret", "SCIMCTL_CLIENT_SECRET")

	flags.String("scope", defaultConfig.Scope, "the scope requested with the client credentials grant")
	util.MustBindPFlag("scope", flags.Lookup("scope"))
	util.MustBindEnv("scope", "SCIMCTL_SCOPE")

	flags.Duration("timeout", defaultConfig.Timeout, "the timeout of each request to the identity domain")
	util.MustBindPFlag("timeout", flags.Lookup("timeout"))
	util.MustBindEnv("timeout", "SCIMCTL_TIMEOUT")

	flags.String("log-format", defaultConfig.Log.Format, "the log format to output logs in")
	util.MustBindPFlag("log.format", flags.Lookup("log-format"))
	util.MustBindEnv("log.format", "SCIMCTL_LOG_FORMAT")

	flags.String("log-level", defaultConfig.Log.Level, "the log level to use")
	util.MustBindPFlag("log.level", flags.Lookup("log-level"))
	util.MustBindEnv("log.level", "SCIMCTL_LOG_LEVEL")

	flags.String("log-timestamp-format", defaultConfig.Log.TimestampFormat, "the timestamp format to use for log messages")
	util.MustBindPFlag("log.timestampFormat", flags.Lookup("log-timestamp-format"))
	util.MustBindEnv("log.timestampFormat", "SCIMCTL_LOG_TIMESTAMP_FORMAT")

	flags.Bool("trace-enabled", defaultConfig.Trace.Enabled, "enable tracing")
	util.MustBindPFlag("trace.enabled", flags.Lookup("trace-enabled"))
	util.MustBindEnv("trace.enabled", "SCIMCTL_TRACE_ENABLED")

	flags.String("trace-otlp-endpoint", defaultConfig.Trace.OTLP.Endpoint, "the endpoint of the trace collector")
	util.MustBindPFlag("trace.otlp.endpoint", flags.Lookup("trace-otlp-endpoint"))
	util.MustBindEnv("trace.otlp.endpoint", "SCIMCTL_TRACE_OTLP_ENDPOINT")

	flags.Bool("trace-otlp-tls-enabled", defaultConfig.Trace.OTLP.TLS.Enabled, "use TLS connection for trace collector")
	util.MustBindPFlag("trace.otlp.tls.enabled", flags.Lookup("trace-otlp-tls-enabled"))
	util.MustBindEnv("trace.otlp.tls.enabled", "SCIMCTL_TRACE_OTLP_TLS_ENABLED")

	flags.Float64("trace-sample-ratio", defaultConfig.Trace.SampleRatio, "the fraction of traces to sample. 1 means all, 0 means none.")
	util.MustBindPFlag("trace.sampleRatio", flags.Lookup("trace-sample-ratio"))
	util.MustBindEnv("trace.sampleRatio", "SCIMCTL_TRACE_SAMPLE_RATIO")

	flags.String("trace-service-name", defaultConfig.Trace.ServiceName, "the service name included in sampled traces")
	util.MustBindPFlag("trace.serviceName", flags.Lookup("trace-service-name"))
	util.MustBindEnv("trace.serviceName", "SCIMCTL_TRACE_SERVICE_NAME")

	flags.String("metrics-pushgateway", defaultConfig.Metrics.Pushgateway, "the Prometheus pushgateway receiving the metrics of a run (disabled when empty)")
	util.MustBindPFlag("metrics.pushgateway", flags.Lookup("metrics-pushgateway"))
	util.MustBindEnv("metrics.pushgateway", "SCIMCTL_METRICS_PUSHGATEWAY")

	flags.String("metrics-job", defaultConfig.Metrics.Job, "the job name the metrics are pushed under")
	util.MustBindPFlag("metrics.job", flags.Lookup("metrics-job"))
	util.MustBindEnv("metrics.job", "SCIMCTL_METRICS_JOB")

	flags.String("journal-path", defaultConfig.Journal.Path, "the SQLite file recording every run and bulk request (disabled when empty)")
	util.MustBindPFlag("journal.path", flags.Lookup("journal-path"))
	util.MustBindEnv("journal.path", "SCIMCTL_JOURNAL_PATH")

	flags.Duration("journal-timeout", defaultConfig.Journal.Timeout, "how long to wait for the journal database to become available")
	util.MustBindPFlag("journal.timeout", flags.Lookup("journal-timeout"))
	util.MustBindEnv("journal.timeout", "SCIMCTL_JOURNAL_TIMEOUT")
}

// addPipelineFlags declares the tuning flags of a bulk command with its own defaults.
// A searchSize of zero omits the search flag for commands that do not search.
func addPipelineFlags(flags *pflag.FlagSet, searchSize, batchSize, workers int) {
	if searchSize > 0 {
		flags.Int(searchSizeFlag, searchSize, "how many users each search page asks for")
	}
	flags.Int(batchSizeFlag, batchSize, "the number of operations sent in one bulk request")
	flags.Int(workersFlag, workers, "the number of bulk requests allowed in flight")
}

// bindCommandFlagsFunc binds the flags of the running command only, so that
// commands declaring the same flag with different defaults do not override
// each other.
func bindCommandFlagsFunc(flags *pflag.FlagSet) func(*cobra.Command, []string) {
	return func(_ *cobra.Command, _ []string) {
		bindings := []struct {
			flag, key, env string
		}{
			{searchSizeFlag, searchSizeConf, "SCIMCTL_PIPELINE_SEARCH_SIZE"},
			{batchSizeFlag, batchSizeConf, "SCIMCTL_PIPELINE_BATCH_SIZE"},
			{workersFlag, workersConf, "SCIMCTL_PIPELINE_WORKERS"},
			{idleDaysFlag, idleDaysConf, "SCIMCTL_IDLE_DAYS"},
			{countFlag, countConf, "SCIMCTL_COUNT"},
			{seedFlag, seedConf, "SCIMCTL_SEED"},
		}
		for _, b := range bindings {
			if flag := flags.Lookup(b.flag); flag != nil {
				util.MustBindPFlag(b.key, flag)
				util.MustBindEnv(b.key, b.env)
			}
		}
	}
}
