package cmd

import (
	"errors"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/idcs-tools/scimctl/internal/journal"
	"github.com/idcs-tools/scimctl/pkg/logger"
)

const (
	journalLimitFlag = "limit"
	journalRunFlag   = "run"
)

// NewJournalCommand returns the command listing the journaled runs.
func NewJournalCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "journal",
		Short: "List the runs recorded in the journal",
		Long:  "List the most recent runs recorded in the journal, or the bulk requests of one run with --run.",
		RunE:  runJournal,
		Args:  cobra.NoArgs,
	}

	flags := cmd.Flags()
	flags.Uint64(journalLimitFlag, 20, "the maximum number of runs to list")
	flags.String(journalRunFlag, "", "list the bulk requests of this run")

	return cmd
}

func runJournal(cmd *cobra.Command, _ []string) error {
	cfg, err := ReadConfig()
	if err != nil {
		return err
	}
	if cfg.Journal.Path == "" {
		return errors.New("no journal configured, set --journal-path")
	}

	j, err := journal.Open(cmd.Context(), cfg.Journal.Path, cfg.Journal.Timeout, logger.NewNoopLogger())
	if err != nil {
		return err
	}
	defer j.Close()

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)

	if runID, _ := cmd.Flags().GetString(journalRunFlag); runID != "" {
		batches, err := j.Batches(cmd.Context(), runID)
		if err != nil {
			return err
		}
		if _, err := fmt.Fprintln(w, "TASK\tOPERATIONS\tOUTCOME\tFAILED_OPERATIONS\tDURATION\tERROR"); err != nil {
			return err
		}
		for _, b := range batches {
			if _, err := fmt.Fprintf(w, "%d\t%d\t%s\t%d\t%s\t%s\n",
				b.Task, b.Operations, b.Outcome, b.OperationFailures, b.Duration, b.Error); err != nil {
				return err
			}
		}
		return w.Flush()
	}

	limit, _ := cmd.Flags().GetUint64(journalLimitFlag)
	runs, err := j.Runs(cmd.Context(), limit)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintln(w, "RUN\tCOMMAND\tSTARTED\tDISCOVERED\tBATCHES\tFAILED\tERROR"); err != nil {
		return err
	}
	for _, r := range runs {
		if _, err := fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%d\t%d\t%s\n",
			r.ID, r.Command, r.StartedAt.Format(time.RFC3339), r.Discovered, r.Batches, r.Failed, r.Error); err != nil {
			return err
		}
	}
	return w.Flush()
}
