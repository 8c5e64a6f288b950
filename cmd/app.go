package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

const (
	appNameFlag        = "name"
	appRedirectURIFlag = "redirect-uri"
	appIDFlag          = "id"
	appClientIDFlag    = "app-client-id"
	appRoleFlag        = "role"
	appGroupFlag       = "group"

	defaultAppRole = "Identity Domain Administrator"
)

// NewAppCommand groups the commands managing OAuth apps.
func NewAppCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "app",
		Short: "Manage OAuth apps",
		Long:  "Create, delete and grant roles for the OAuth apps of the identity domain.",
		Args:  cobra.NoArgs,
	}

	cmd.AddCommand(newAppCreateCommand(), newAppDeleteCommand(), newAppGrantRoleCommand())

	return cmd
}

func newAppCreateCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create and activate a confidential OAuth app",
		Long:  "Create a confidential OAuth app allowed to use the authorization code grant, activate it and print its client id and secret.",
		RunE:  runAppCreate,
		Args:  cobra.NoArgs,
	}

	flags := cmd.Flags()
	flags.String(appNameFlag, "", "the display name of the app")
	flags.StringSlice(appRedirectURIFlag, nil, "the redirect URIs of the app")
	_ = cmd.MarkFlagRequired(appNameFlag)

	return cmd
}

func newAppDeleteCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "delete",
		Short: "Deactivate and delete an OAuth app",
		Long:  "Deactivate and delete an OAuth app identified either by its id or by its OAuth client id.",
		RunE:  runAppDelete,
		Args:  cobra.NoArgs,
	}

	flags := cmd.Flags()
	flags.String(appIDFlag, "", "the id of the app")
	flags.String(appClientIDFlag, "", "the OAuth client id of the app")
	cmd.MarkFlagsMutuallyExclusive(appIDFlag, appClientIDFlag)
	cmd.MarkFlagsOneRequired(appIDFlag, appClientIDFlag)

	return cmd
}

func newAppGrantRoleCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "grant-role",
		Short: "Grant an app role to a group",
		Long:  "Grant an app role of the identity domain to every member of a group.",
		RunE:  runAppGrantRole,
		Args:  cobra.NoArgs,
	}

	flags := cmd.Flags()
	flags.String(appRoleFlag, defaultAppRole, "the display name of the app role")
	flags.String(appGroupFlag, "", "the display name of the group")
	_ = cmd.MarkFlagRequired(appGroupFlag)

	return cmd
}

func runAppCreate(cmd *cobra.Command, _ []string) error {
	name, _ := cmd.Flags().GetString(appNameFlag)
	redirectURIs, _ := cmd.Flags().GetStringSlice(appRedirectURIFlag)

	return withSession(cmd, func(ctx context.Context, s *session) error {
		clientID, clientSecret, err := s.client.CreateApp(ctx, name, redirectURIs)
		if err != nil {
			return fmt.Errorf("create app %q: %w", name, err)
		}
		s.logger.Info("created app", zap.String("display_name", name), zap.String("app_client_id", clientID))

		_, err = fmt.Fprintf(cmd.OutOrStdout(), "client_id: %s\nclient_secret: %s\n", clientID, clientSecret)
		return err
	})
}

func runAppDelete(cmd *cobra.Command, _ []string) error {
	id, _ := cmd.Flags().GetString(appIDFlag)
	clientID, _ := cmd.Flags().GetString(appClientIDFlag)

	return withSession(cmd, func(ctx context.Context, s *session) error {
		var err error
		if id != "" {
			err = s.client.DeleteApp(ctx, id)
		} else {
			err = s.client.DeleteAppWithClientID(ctx, clientID)
		}
		if err != nil {
			return fmt.Errorf("delete app: %w", err)
		}
		s.logger.Info("deleted app", zap.String("app_id", id), zap.String("app_client_id", clientID))
		return nil
	})
}

func runAppGrantRole(cmd *cobra.Command, _ []string) error {
	role, _ := cmd.Flags().GetString(appRoleFlag)
	group, _ := cmd.Flags().GetString(appGroupFlag)

	return withSession(cmd, func(ctx context.Context, s *session) error {
		if err := s.client.GrantAppRoleToGroup(ctx, role, group); err != nil {
			return fmt.Errorf("grant %q to group %q: %w", role, group, err)
		}
		s.logger.Info("granted app role", zap.String("role", role), zap.String("group", group))
		return nil
	})
}
