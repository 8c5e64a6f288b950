package main

import (
	"fmt"
	"os"

	"github.com/idcs-tools/scimctl/cmd"
	"github.com/idcs-tools/scimctl/pkg/errors"
)

func main() {
	rootCmd := cmd.NewRootCommand()

	rootCmd.AddCommand(
		cmd.NewCleanIdleUsersCommand(),
		cmd.NewCleanUsersCommand(),
		cmd.NewFakeUsersCommand(),
		cmd.NewAppCommand(),
		cmd.NewJournalCommand(),
		cmd.NewVersionCommand(),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, errors.Stack(err))
		os.Exit(1)
	}
}
