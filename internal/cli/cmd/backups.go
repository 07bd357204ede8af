package cmd

import (
	"context"
	"fmt"

	"arkmanager/internal/cli/ui"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var backupsCmd = &cobra.Command{
	Use:   "backups",
	Short: "Browse and restore a profile's backups on the daemon",
}

var backupsListCmd = &cobra.Command{
	Use:   "list <profile>",
	Short: "List backups, newest first",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		p := remoteProfile(args[0])
		backups, err := Client.ListBackups(context.Background(), p.ID)
		if err != nil {
			log.Fatal().Err(err).Msg("Error listing backups")
		}
		fmt.Println(ui.Backups(backups))
	},
}

var backupsRestoreCmd = &cobra.Command{
	Use:   "restore <profile> <name>",
	Short: "Restore a backup over the save directory (server must be stopped)",
	Args:  cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		p := remoteProfile(args[0])
		if err := Client.RestoreBackup(context.Background(), p.ID, args[1]); err != nil {
			log.Fatal().Err(err).Msg("Error restoring backup")
		}
		fmt.Printf("Backup %s restored to %s.\n", args[1], p.Name)
	},
}

var backupsDeleteCmd = &cobra.Command{
	Use:   "delete <profile> <name>",
	Short: "Delete a backup",
	Args:  cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		p := remoteProfile(args[0])
		if err := Client.DeleteBackup(context.Background(), p.ID, args[1]); err != nil {
			log.Fatal().Err(err).Msg("Error deleting backup")
		}
		fmt.Println("Backup deleted successfully.")
	},
}

func init() {
	backupsCmd.AddCommand(backupsListCmd, backupsRestoreCmd, backupsDeleteCmd)
	RootCmd.AddCommand(backupsCmd)
}
