package cmd

import (
	"bytes"
	"context"
	"testing"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/require"

	"github.com/idcs-tools/scimctl/cmd/util"
	"github.com/idcs-tools/scimctl/internal/config"
	"github.com/idcs-tools/scimctl/internal/mocks"
)

const (
	testClientID     = "client"
	testClientSecret = "secret"
)

func newTestServer(t *testing.T) *mocks.MockIdentityServer {
	t.Helper()
	server, err := mocks.NewMockIdentityServer(testClientID, testClientSecret)
	require.NoError(t, err)
	t.Cleanup(server.Close)
	return server
}

// credentialArgs points a command at server and silences its logs.
func credentialArgs(server *mocks.MockIdentityServer) []string {
	return []string{
		"--iamurl", server.URL,
		"--client-id", testClientID,
		"--client-secret", testClientSecret,
		"--log-level", "none",
	}
}

func newTestRootCommand(t *testing.T, commands ...*cobra.Command) *cobra.Command {
	t.Helper()
	t.Cleanup(viper.Reset)

	root := NewRootCommand()
	if len(commands) == 0 {
		commands = []*cobra.Command{
			NewCleanIdleUsersCommand(),
			NewCleanUsersCommand(),
			NewFakeUsersCommand(),
			NewAppCommand(),
			NewJournalCommand(),
			NewVersionCommand(),
		}
	}
	root.AddCommand(commands...)
	return root
}

// execute runs scimctl with args and returns what it printed.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()

	root := newTestRootCommand(t)
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)

	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func TestVersionCommand(t *testing.T) {
	util.PrepareTempConfigDir(t)

	out, err := execute(t, "version")
	require.NoError(t, err)
	require.Equal(t, "scimctl Version dev Date unknown commit id none\n", out)
}

func TestMissingCredentials(t *testing.T) {
	util.PrepareTempConfigDir(t)

	_, err := execute(t, "clean-users", "--log-level", "none")
	require.ErrorContains(t, err, "missing required config: iamurl, client_id, client_secret")
}

func TestInvalidURL(t *testing.T) {
	util.PrepareTempConfigDir(t)

	_, err := execute(t, "clean-users", "--iamurl", "idcs.example.com", "--client-id", "a", "--client-secret", "b")
	require.ErrorContains(t, err, "must be an absolute http(s) URL")
}

func TestNoConfigDefaultValues(t *testing.T) {
	util.PrepareTempConfigDir(t)

	cleanIdle := NewCleanIdleUsersCommand()
	cleanIdle.RunE = func(_ *cobra.Command, _ []string) error {
		cfg, err := ReadConfig()
		require.NoError(t, err)
		require.Equal(t, config.DefaultConfig(), cfg)
		require.Equal(t, config.DefaultIdleDays, viper.GetInt(idleDaysConf))
		return nil
	}

	root := newTestRootCommand(t, cleanIdle)
	root.SetArgs([]string{"clean-idle-users"})
	require.NoError(t, root.Execute())
}

func TestCommandDefaultsDiffer(t *testing.T) {
	for _, tc := range []struct {
		name       string
		command    func() *cobra.Command
		searchSize int
		batchSize  int
		workers    int
	}{
		{"clean-idle-users", NewCleanIdleUsersCommand, config.DefaultSearchSize, config.DefaultBatchSize, config.DefaultWorkers},
		{"clean-users", NewCleanUsersCommand, cleanUsersSearchSize, cleanUsersBatchSize, cleanUsersWorkers},
		{"fake-users", NewFakeUsersCommand, config.DefaultSearchSize, fakeUsersBatchSize, fakeUsersWorkers},
	} {
		t.Run(tc.name, func(t *testing.T) {
			util.PrepareTempConfigDir(t)

			command := tc.command()
			command.RunE = func(_ *cobra.Command, _ []string) error {
				cfg, err := ReadConfig()
				require.NoError(t, err)
				require.Equal(t, config.PipelineConfig{
					SearchSize: tc.searchSize,
					BatchSize:  tc.batchSize,
					Workers:    tc.workers,
				}, cfg.Pipeline)
				return nil
			}

			root := newTestRootCommand(t, command)
			root.SetArgs([]string{tc.name})
			require.NoError(t, root.Execute())
		})
	}
}

func TestConfigFileValuesAreParsed(t *testing.T) {
	util.PrepareTempConfigFile(t, `iamurl: https://idcs-0123.identity.oraclecloud.com
client_id: from-file
client_secret: file-secret
timeout: 10s
log:
  level: warn
pipeline:
  batchSize: 50
journal:
  path: /tmp/journal.db
`)

	cleanUsers := NewCleanUsersCommand()
	cleanUsers.RunE = func(_ *cobra.Command, _ []string) error {
		cfg, err := ReadConfig()
		require.NoError(t, err)
		require.NoError(t, cfg.Verify())
		require.Equal(t, "https://idcs-0123.identity.oraclecloud.com", cfg.IAMURL)
		require.Equal(t, "from-file", cfg.ClientID)
		require.Equal(t, "file-secret", cfg.ClientSecret)
		require.Equal(t, "warn", cfg.Log.Level)
		require.Equal(t, "/tmp/journal.db", cfg.Journal.Path)
		// the file wins over the command default, the flag wins over the file
		require.Equal(t, 50, cfg.Pipeline.BatchSize)
		require.Equal(t, 3, cfg.Pipeline.Workers)
		require.Equal(t, cleanUsersSearchSize, cfg.Pipeline.SearchSize)
		return nil
	}

	root := newTestRootCommand(t, cleanUsers)
	root.SetArgs([]string{"clean-users", "--workers", "3"})
	require.NoError(t, root.Execute())
}

func TestConfigIsMerged(t *testing.T) {
	util.PrepareTempConfigFile(t, `iamurl: https://idcs-0123.identity.oraclecloud.com
client_id: from-file
`)
	t.Setenv("SCIMCTL_CLIENT_SECRET", "env-secret")
	t.Setenv("SCIMCTL_PIPELINE_WORKERS", "7")

	fakeUsers := NewFakeUsersCommand()
	fakeUsers.RunE = func(_ *cobra.Command, _ []string) error {
		cfg, err := ReadConfig()
		require.NoError(t, err)
		require.Equal(t, "from-file", cfg.ClientID)
		require.Equal(t, "env-secret", cfg.ClientSecret)
		require.Equal(t, 7, cfg.Pipeline.Workers)
		require.Equal(t, 12, viper.GetInt(countConf))
		return nil
	}

	root := newTestRootCommand(t, fakeUsers)
	root.SetArgs([]string{"fake-users", "--count", "12"})
	require.NoError(t, root.Execute())
}

func TestLocalFlagsDoNotShadowGlobalFlags(t *testing.T) {
	root := newTestRootCommand(t)
	global := root.PersistentFlags()

	var walk func(*cobra.Command)
	walk = func(c *cobra.Command) {
		// Flags holds only the command's own flags until it is executed
		c.Flags().VisitAll(func(f *pflag.Flag) {
			require.Nil(t, global.Lookup(f.Name), "%s declares --%s which is a global flag", c.CommandPath(), f.Name)
		})
		for _, sub := range c.Commands() {
			walk(sub)
		}
	}
	for _, c := range root.Commands() {
		walk(c)
	}
}
