package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/MarcoPoloResearchLab/cordis/internal/config"
	"github.com/MarcoPoloResearchLab/cordis/internal/diagnostics"
	"github.com/MarcoPoloResearchLab/cordis/internal/roles"
	"github.com/MarcoPoloResearchLab/cordis/internal/routing"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

const commandTimeout = 30 * time.Second

func newAssignRoleCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "assign-role <identity-id> <role>",
		Short: "Set the role of an existing profile (admin, manager, user)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			role, err := roles.Parse(args[1])
			if err != nil {
				return err
			}

			appConfig, err := config.Load(viper.GetViper())
			if err != nil {
				return err
			}
			app, err := newApplication(cmd.Context(), appConfig)
			if err != nil {
				return err
			}
			defer app.Close()

			ctx, cancel := commandContext(cmd.Context(), commandTimeout)
			defer cancel()
			profile, err := app.profiles.AssignRole(ctx, args[0], role)
			if err != nil {
				return err
			}
			app.logger.Info("role assigned from cli", zap.String("identity_id", profile.ID), zap.String("role", profile.Role))
			fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\t%s\n", profile.ID, profile.Email, profile.Role)
			return nil
		},
	}
}

func newDiagnoseCommand() *cobra.Command {
	var (
		identityID  string
		token       string
		currentPath string
	)
	cmd := &cobra.Command{
		Use:   "diagnose",
		Short: "Report how an identity or session token moves through the role router",
		RunE: func(cmd *cobra.Command, args []string) error {
			if (identityID == "") == (token == "") {
				return errors.New("exactly one of --identity or --token is required")
			}

			appConfig, err := config.Load(viper.GetViper())
			if err != nil {
				return err
			}
			app, err := newApplication(cmd.Context(), appConfig)
			if err != nil {
				return err
			}
			defer app.Close()

			ctx, cancel := commandContext(cmd.Context(), commandTimeout)
			defer cancel()
			var report diagnostics.Report
			if token != "" {
				report = app.diagnostics.ReportToken(ctx, token, currentPath)
			} else {
				report = app.diagnostics.ReportIdentity(ctx, identityID, currentPath)
			}

			encoder := json.NewEncoder(cmd.OutOrStdout())
			encoder.SetIndent("", "  ")
			return encoder.Encode(report)
		},
	}
	cmd.Flags().StringVar(&identityID, "identity", "", "Identity id to diagnose")
	cmd.Flags().StringVar(&token, "token", "", "Raw session token to diagnose")
	cmd.Flags().StringVar(&currentPath, "path", routing.RoleRouterPath, "Page path the request would arrive on")
	return cmd
}
