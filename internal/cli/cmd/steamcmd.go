package cmd

import (
	"context"
	"fmt"
	"os"

	"arkmanager/internal/steamcmd"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var steamcmdCmd = &cobra.Command{
	Use:   "steamcmd",
	Short: "Manage the local steamcmd installation",
}

var steamcmdInstallCmd = &cobra.Command{
	Use:   "install",
	Short: "Download steamcmd to the configured path if it is missing",
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := loadConfig()
		if err != nil {
			log.Fatal().Err(err).Msg("Could not load configuration")
		}
		ctx, stop := signalContext()
		defer stop()

		client := steamcmd.NewClient(cfg.SteamCmd.Path, steamcmd.Login{}, cfg.SteamCmd.CaptureOutput)
		if err := client.Ensure(ctx); err != nil {
			log.Error().Err(err).Msg("steamcmd installation failed")
			stop()
			os.Exit(1)
		}
		fmt.Printf("steamcmd ready at %s\n", cfg.SteamCmd.Path)
	},
}

func init() {
	steamcmdCmd.AddCommand(steamcmdInstallCmd)
	RootCmd.AddCommand(steamcmdCmd)
}
