package cmd

import (
	"context"
	"fmt"

	"arkmanager/internal/app"
	"arkmanager/internal/domain"
	"arkmanager/pkg/sdk"

	"github.com/spf13/cobra"
)

var (
	shutdownRestart bool
	shutdownUpdate  string
	shutdownNoGrace bool
	updateType      string
	updateValidate  bool
	branchName      string
)

var backupCmd = &cobra.Command{
	Use:   "backup <profile>",
	Short: "Save the world and archive the profile's save data",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		if UseDaemon {
			p := remoteProfile(args[0])
			submit(func(ctx context.Context) (*sdk.Run, error) { return Client.Backup(ctx, p.ID) })
			return
		}
		withProfile(args[0], func(ctx context.Context, c *app.Container, s domain.ProfileSnapshot) domain.ExitCode {
			return c.Orchestrator.PerformBackup(ctx, s)
		})
	},
}

var shutdownCmd = &cobra.Command{
	Use:   "shutdown <profile>",
	Short: "Warn players, save and stop the server, optionally updating and restarting it",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ut, ok := domain.ParseUpdateType(shutdownUpdate)
		if !ok {
			return fmt.Errorf("invalid --update value %q (none, server, mods, all)", shutdownUpdate)
		}
		if UseDaemon {
			p := remoteProfile(args[0])
			req := sdk.ShutdownRequest{Restart: shutdownRestart, Update: ut.String(), NoGrace: shutdownNoGrace}
			submit(func(ctx context.Context) (*sdk.Run, error) { return Client.Shutdown(ctx, p.ID, req) })
			return nil
		}
		withProfile(args[0], func(ctx context.Context, c *app.Container, s domain.ProfileSnapshot) domain.ExitCode {
			return c.Orchestrator.PerformShutdown(ctx, s, shutdownRestart, ut, !shutdownNoGrace)
		})
		return nil
	},
}

var stopCmd = &cobra.Command{
	Use:   "stop <profile>",
	Short: "Stop the server immediately, without warnings or a countdown",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		if UseDaemon {
			p := remoteProfile(args[0])
			submit(func(ctx context.Context) (*sdk.Run, error) { return Client.Stop(ctx, p.ID) })
			return
		}
		withProfile(args[0], func(ctx context.Context, c *app.Container, s domain.ProfileSnapshot) domain.ExitCode {
			return c.Orchestrator.PerformStop(ctx, s)
		})
	},
}

var startCmd = &cobra.Command{
	Use:   "start <profile>",
	Short: "Start the server if it is not running",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		if UseDaemon {
			p := remoteProfile(args[0])
			submit(func(ctx context.Context) (*sdk.Run, error) { return Client.Start(ctx, p.ID) })
			return
		}
		withProfile(args[0], func(ctx context.Context, c *app.Container, s domain.ProfileSnapshot) domain.ExitCode {
			return c.Orchestrator.PerformStart(ctx, s)
		})
	},
}

var updateCmd = &cobra.Command{
	Use:   "update <profile>",
	Short: "Refresh the cache and copy server and mod files into the install",
	Long: "Refresh the shared cache and copy server and mod files into the profile's install.\n" +
		"A running server is warned, stopped, updated and started again.",
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ut, ok := domain.ParseUpdateType(updateType)
		if !ok || ut == domain.UpdateNone {
			return fmt.Errorf("invalid --update value %q (server, mods, all)", updateType)
		}
		if UseDaemon {
			p := remoteProfile(args[0])
			req := sdk.UpdateRequest{Update: ut.String(), Validate: updateValidate}
			submit(func(ctx context.Context) (*sdk.Run, error) { return Client.Update(ctx, p.ID, req) })
			return nil
		}
		withProfile(args[0], func(ctx context.Context, c *app.Container, s domain.ProfileSnapshot) domain.ExitCode {
			return c.Orchestrator.PerformUpdateFiles(ctx, s, ut, updateValidate)
		})
		return nil
	},
}

var updateBranchCmd = &cobra.Command{
	Use:   "update-branch <appId>",
	Short: "Update a branch cache once and roll it out to every auto-update profile on it",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		key := domain.BranchKey{AppID: args[0], Branch: branchName}
		if UseDaemon {
			submit(func(ctx context.Context) (*sdk.Run, error) {
				return Client.UpdateBranch(ctx, sdk.Branch{AppID: key.AppID, Branch: key.Branch})
			})
			return
		}
		withLocal(func(ctx context.Context, c *app.Container) domain.ExitCode {
			for _, s := range c.Registry.ForBranch(key) {
				if s.BranchPassword != "" {
					key.Password = s.BranchPassword
					break
				}
			}
			return c.Orchestrator.PerformUpdate(ctx, key)
		})
	},
}

func init() {
	shutdownCmd.Flags().BoolVar(&shutdownRestart, "restart", false, "start the server again afterwards")
	shutdownCmd.Flags().StringVar(&shutdownUpdate, "update", "none", "update while stopped: none, server, mods or all")
	shutdownCmd.Flags().BoolVar(&shutdownNoGrace, "no-grace", false, "skip the player warning countdown")

	updateCmd.Flags().StringVar(&updateType, "update", "all", "what to update: server, mods or all")
	updateCmd.Flags().BoolVar(&updateValidate, "validate", false, "ask steamcmd to validate the cache")

	updateBranchCmd.Flags().StringVar(&branchName, "branch", "", "beta branch name (empty for public)")

	RootCmd.AddCommand(backupCmd, shutdownCmd, stopCmd, startCmd, updateCmd, updateBranchCmd)
}
