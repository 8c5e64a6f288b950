// Package cmd contains all the commands included in the binary file.
package cmd

import (
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// ConfigName is the base name of the configuration file, without extension.
const ConfigName = "IAMClientConfig"

// NewRootCommand enables all children commands to read flags from CLI flags, environment variables prefixed with SCIMCTL, or IAMClientConfig.{json,yaml} (in that order).
func NewRootCommand() *cobra.Command {
	viper.SetConfigName(ConfigName)

	viper.SetEnvPrefix("SCIMCTL")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	viper.AutomaticEnv()

	configPaths := []string{"/etc/scimctl", "$HOME/.scimctl", "."}
	for _, path := range configPaths {
		viper.AddConfigPath(path)
	}

	cmd := &cobra.Command{
		Use:   "scimctl",
		Short: "Administer users and OAuth apps of an identity domain through its SCIM API",
		Long: `Administer users and OAuth apps of an identity domain through its SCIM API.

The bulk commands page through users with a cursor on the user id, group the
resulting operations into bulk requests and send them concurrently.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	bindGlobalFlags(cmd.PersistentFlags())

	return cmd
}
