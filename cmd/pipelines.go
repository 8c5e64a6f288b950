package cmd

import (
	"context"
	"fmt"
	"iter"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/idcs-tools/scimctl/internal/batch"
	"github.com/idcs-tools/scimctl/internal/config"
	"github.com/idcs-tools/scimctl/internal/fakeuser"
	"github.com/idcs-tools/scimctl/internal/journal"
	"github.com/idcs-tools/scimctl/internal/pipeline"
	"github.com/idcs-tools/scimctl/internal/search"
	"github.com/idcs-tools/scimctl/internal/submit"
	pkgerrors "github.com/idcs-tools/scimctl/pkg/errors"
	"github.com/idcs-tools/scimctl/pkg/scim"
)

const (
	cleanUsersSearchSize = 1000
	cleanUsersBatchSize  = 100
	cleanUsersWorkers    = 1

	fakeUsersCount     = 1000
	fakeUsersBatchSize = 100
	fakeUsersWorkers   = 10
)

func NewCleanIdleUsersCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "clean-idle-users",
		Short: "Delete users who have not logged in recently",
		Long: `Delete every user whose last successful login is older than --idle-days.

Users are deleted with forceDelete, so users owning resources are removed too.`,
		RunE: runCleanIdleUsers,
		Args: cobra.NoArgs,
	}

	flags := cmd.Flags()
	addPipelineFlags(flags, config.DefaultSearchSize, config.DefaultBatchSize, config.DefaultWorkers)
	flags.Int(idleDaysFlag, config.DefaultIdleDays, "delete users who have not logged in for this many days")

	// NOTE: if you add a new flag here, update bindCommandFlagsFunc, too

	cmd.PreRun = bindCommandFlagsFunc(flags)

	return cmd
}

func NewCleanUsersCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "clean-users",
		Short: "Delete the users created by this client",
		Long:  "Delete every user created by the OAuth app scimctl authenticates as, such as the users added by fake-users.",
		RunE:  runCleanUsers,
		Args:  cobra.NoArgs,
	}

	flags := cmd.Flags()
	addPipelineFlags(flags, cleanUsersSearchSize, cleanUsersBatchSize, cleanUsersWorkers)

	cmd.PreRun = bindCommandFlagsFunc(flags)

	return cmd
}

func NewFakeUsersCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "fake-users",
		Short: "Create synthetic users",
		Long:  "Create --count users with random names. Welcome notifications are suppressed.",
		RunE:  runFakeUsers,
		Args:  cobra.NoArgs,
	}

	flags := cmd.Flags()
	addPipelineFlags(flags, 0, fakeUsersBatchSize, fakeUsersWorkers)
	flags.Int(countFlag, fakeUsersCount, "the number of users to create")
	flags.Uint64(seedFlag, 0, "the seed of the name generator (random when 0)")

	cmd.PreRun = bindCommandFlagsFunc(flags)

	return cmd
}

// idleFilter matches the users whose last successful login is before now minus days.
func idleFilter(now time.Time, days int) string {
	return scim.Lt(scim.AttrLastSuccessfulLoginDate, scim.DateTime(now.AddDate(0, 0, -days)))
}

// createdByFilter matches the users created by the app with the given id.
func createdByFilter(appID string) string {
	return scim.Eq(scim.AttrCreatedBy, appID)
}

func runCleanIdleUsers(cmd *cobra.Command, _ []string) error {
	days := viper.GetInt(idleDaysConf)
	if days < 1 {
		return fmt.Errorf("--%s must be at least 1, got %d", idleDaysFlag, days)
	}

	return withSession(cmd, func(ctx context.Context, s *session) error {
		now := time.Now()
		s.logger.Info("will delete users who have not logged in since", zap.Time("cutoff", now.UTC().AddDate(0, 0, -days)))

		return s.runSearchPipeline(ctx, idleFilter(now, days), batch.DeleteUser(true))
	})
}

func runCleanUsers(cmd *cobra.Command, _ []string) error {
	return withSession(cmd, func(ctx context.Context, s *session) error {
		appID, err := s.client.MyAppID(ctx)
		if err != nil {
			return fmt.Errorf("resolve own app id: %w", err)
		}

		return s.runSearchPipeline(ctx, createdByFilter(appID), batch.DeleteUser(false))
	})
}

func runFakeUsers(cmd *cobra.Command, _ []string) error {
	count := viper.GetInt(countConf)
	if count < 0 {
		return fmt.Errorf("--%s must not be negative, got %d", countFlag, count)
	}

	return withSession(cmd, func(ctx context.Context, s *session) error {
		generator := fakeuser.New(viper.GetUint64(seedConf))
		return s.runPipeline(ctx, pipeline.Generate(count, generator.Next), batch.CreateUser)
	})
}

// withSession runs fn with a session for the command and attaches a stack
// trace to the error that aborts the command.
func withSession(cmd *cobra.Command, fn func(context.Context, *session) error) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	s, err := newSession(ctx, cmd.Name())
	if err != nil {
		return pkgerrors.ErrorWithStack(err)
	}
	defer s.close(ctx)

	if err := fn(ctx, s); err != nil {
		s.logger.Error("command failed", zap.Error(err))
		return pkgerrors.ErrorWithStack(err)
	}
	return nil
}

func (s *session) runSearchPipeline(ctx context.Context, filter string, op batch.OperationFunc[scim.User]) error {
	searcher, err := search.New(s.client, filter, s.config.Pipeline.SearchSize, search.WithLogger(s.logger))
	if err != nil {
		return err
	}
	return s.runPipeline(ctx, searcher.All(ctx), op)
}

// runPipeline sends an operation for every record and journals the run.
func (s *session) runPipeline(ctx context.Context, records iter.Seq2[scim.User, error], op batch.OperationFunc[scim.User]) error {
	acc, err := batch.New(s.config.Pipeline.BatchSize, op)
	if err != nil {
		return err
	}
	submitter := submit.New(s.client, s.config.Pipeline.Workers,
		submit.WithLogger(s.logger),
		submit.WithRegisterer(s.registry),
	)

	err = s.journal.StartRun(ctx, journal.Run{
		ID:        s.runID,
		Command:   s.command,
		ClientID:  s.client.ClientID(),
		StartedAt: time.Now(),
	})
	if err != nil {
		return fmt.Errorf("journal run: %w", err)
	}

	summary, runErr := pipeline.Run(ctx, pipeline.Pipeline{
		Name:        s.command,
		Records:     records,
		Accumulator: acc,
		Submitter:   submitter,
		Logger:      s.logger,
	})

	for _, outcome := range summary.Outcomes {
		if err := s.journal.RecordBatch(ctx, s.runID, outcome); err != nil {
			s.logger.Warn("failed to journal batch", zap.Int("task", outcome.Task), zap.Error(err))
		}
	}
	err = s.journal.FinishRun(ctx, s.runID, journal.Result{
		Discovered:        summary.Discovered,
		Batches:           summary.Batches,
		Succeeded:         summary.Succeeded,
		Failed:            summary.Failed,
		OperationFailures: summary.OperationFailures,
		Err:               runErr,
	})
	if err != nil {
		s.logger.Warn("failed to journal run result", zap.Error(err))
	}

	if summary.Failed > 0 {
		s.logger.Error("some bulk requests failed and were not retried", zap.Int("failed", summary.Failed))
	}
	return runErr
}
