package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/scheduled-publisher/internal/failover"
	"github.com/JakeFAU/scheduled-publisher/internal/server"
)

func newDBCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "db",
		Short: "Inspects and operates the database topology",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "status",
			Short: "Shows the configured backends and the active primary",
			RunE: withController(func(cmd *cobra.Command, ctrl *failover.Controller) error {
				t := ctrl.Topology()
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "active:    %s (index %d)\n", t.Active, t.ActiveIndex)
				fmt.Fprintf(out, "primaries: %s\n", strings.Join(t.Primaries, ", "))
				backup := t.Backup
				if backup == "" {
					backup = "(none)"
				}
				fmt.Fprintf(out, "backup:    %s\n", backup)
				return nil
			}),
		},
		&cobra.Command{
			Use:   "switch",
			Short: "Cuts over to the next primary through the backup",
			RunE: withController(func(cmd *cobra.Command, ctrl *failover.Controller) error {
				cut, err := ctrl.Switch(cmd.Context())
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "switched %s -> %s (cutover %s)\n", cut.From, cut.To, cut.ID)
				return nil
			}),
		},
		&cobra.Command{
			Use:   "backup",
			Short: "Copies the active primary's document to the backup",
			RunE: withController(func(cmd *cobra.Command, ctrl *failover.Controller) error {
				if err := ctrl.Backup(cmd.Context()); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "backup written from %s\n", ctrl.ActiveName())
				return nil
			}),
		},
	)
	return cmd
}

func withController(fn func(*cobra.Command, *failover.Controller) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, _ []string) error {
		rt, err := resolveRuntime(cmd.Context())
		if err != nil {
			return err
		}
		ctrl, err := server.OpenController(cmd.Context(), rt.cfg.Database, nil, rt.logger)
		if err != nil {
			return err
		}
		defer func() {
			if cerr := ctrl.Close(); cerr != nil {
				rt.logger.Warn("close backends failed", zap.Error(cerr))
			}
		}()
		return fn(cmd, ctrl)
	}
}
