package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"arkmanager/internal/cli/ui"
	"arkmanager/pkg/sdk"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var profilesCmd = &cobra.Command{
	Use:     "profiles",
	Aliases: []string{"profile"},
	Short:   "Manage server profiles on the daemon",
}

var profilesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List profiles with their current status",
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()
		profiles, err := Client.ListProfiles(ctx)
		if err != nil {
			log.Fatal().Err(err).Msg("Error listing profiles")
		}
		statuses := make(map[string]*sdk.Status, len(profiles))
		for _, p := range profiles {
			if st, err := Client.GetStatus(ctx, p.ID); err == nil {
				statuses[p.ID] = st
			}
		}
		fmt.Println(ui.Profiles(profiles, statuses))
	},
}

var profilesShowCmd = &cobra.Command{
	Use:   "status <profile>",
	Short: "Show the status of one profile",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		p := remoteProfile(args[0])
		st, err := Client.GetStatus(context.Background(), p.ID)
		if err != nil {
			log.Fatal().Err(err).Msg("Error fetching status")
		}
		fmt.Println(ui.Status(*p, *st))
	},
}

var profilesPlayersCmd = &cobra.Command{
	Use:   "players <profile>",
	Short: "List known players and who is online",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		p := remoteProfile(args[0])
		players, err := Client.GetPlayers(context.Background(), p.ID)
		if err != nil {
			log.Fatal().Err(err).Msg("Error fetching players")
		}
		fmt.Println(ui.Players(players))
	},
}

var profilesCreateCmd = &cobra.Command{
	Use:   "create <file.json>",
	Short: "Create a profile from a JSON document (use - for stdin)",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		p := readProfile(args[0])
		created, err := Client.CreateProfile(context.Background(), p)
		if err != nil {
			log.Fatal().Err(err).Msg("Error creating profile")
		}
		fmt.Printf("Profile %s created (%s), ports %d/%d/%d\n",
			created.Name, created.ID, created.ServerPort, created.QueryPort, created.RconPort)
	},
}

var profilesDeleteCmd = &cobra.Command{
	Use:   "delete <profile>",
	Short: "Remove a profile (install and save files are kept)",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		p := remoteProfile(args[0])
		if err := Client.DeleteProfile(context.Background(), p.ID); err != nil {
			log.Fatal().Err(err).Msg("Error deleting profile")
		}
		fmt.Printf("Profile %s deleted.\n", p.Name)
	},
}

var branchesCmd = &cobra.Command{
	Use:   "branches",
	Short: "List the branches profiles are bound to",
	Run: func(cmd *cobra.Command, args []string) {
		branches, err := Client.ListBranches(context.Background())
		if err != nil {
			log.Fatal().Err(err).Msg("Error listing branches")
		}
		fmt.Println(ui.Branches(branches))
	},
}

var rconCmd = &cobra.Command{
	Use:   "rcon <profile> <command...>",
	Short: "Send a console command through the daemon's RCON session",
	Args:  cobra.MinimumNArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		p := remoteProfile(args[0])
		lines, err := Client.Rcon(context.Background(), p.ID, strings.Join(args[1:], " "))
		if err != nil {
			log.Fatal().Err(err).Msg("RCON command failed")
		}
		for _, l := range lines {
			fmt.Println(l)
		}
	},
}

func readProfile(path string) sdk.Profile {
	f := os.Stdin
	if path != "-" {
		var err error
		if f, err = os.Open(path); err != nil {
			log.Fatal().Err(err).Msg("Could not open profile file")
		}
		defer f.Close()
	}
	var p sdk.Profile
	if err := json.NewDecoder(f).Decode(&p); err != nil {
		log.Fatal().Err(err).Msg("Invalid profile document")
	}
	return p
}

func init() {
	profilesCmd.AddCommand(profilesListCmd, profilesShowCmd, profilesPlayersCmd, profilesCreateCmd, profilesDeleteCmd)
	RootCmd.AddCommand(profilesCmd, branchesCmd, rconCmd)
}
