package cmd

import (
	"context"
	"fmt"
	"os"

	"arkmanager/internal/cli/ui"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "Inspect operations submitted to the daemon",
}

var runsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recent runs, newest first",
	Run: func(cmd *cobra.Command, args []string) {
		runs, err := Client.ListRuns(context.Background())
		if err != nil {
			log.Fatal().Err(err).Msg("Error listing runs")
		}
		fmt.Println(ui.Runs(runs))
	},
}

var runsCancelCmd = &cobra.Command{
	Use:   "cancel <run-id>",
	Short: "Cancel a running operation",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		run, err := Client.CancelRun(context.Background(), args[0])
		if err != nil {
			log.Fatal().Err(err).Msg("Error cancelling run")
		}
		fmt.Printf("Cancellation requested for %s (%s %s)\n", run.ID, run.Op, run.Target)
	},
}

var runsWaitCmd = &cobra.Command{
	Use:   "wait <run-id>",
	Short: "Wait for a run to finish and exit with its code",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		run, err := Client.WaitRun(context.Background(), args[0])
		if err != nil {
			log.Fatal().Err(err).Msg("Error waiting for run")
		}
		fmt.Println(ui.ExitCode(run.ExitCode, run.Result))
		os.Exit(run.ExitCode)
	},
}

func init() {
	runsCmd.AddCommand(runsListCmd, runsCancelCmd, runsWaitCmd)
	RootCmd.AddCommand(runsCmd)
}
