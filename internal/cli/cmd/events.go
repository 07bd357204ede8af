package cmd

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"arkmanager/internal/cli/ui"
	"arkmanager/pkg/sdk"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var eventsConsole bool

var eventsCmd = &cobra.Command{
	Use:   "events <profile>",
	Short: "Stream status changes, alerts and console output for a profile",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		p := remoteProfile(args[0])
		wsURL, err := Client.GetWebSocketURL(fmt.Sprintf("/ws/profiles/%s/events", p.ID))
		if err != nil {
			log.Fatal().Err(err).Msg("Error parsing base URL")
		}

		conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
		if err != nil {
			log.Fatal().Err(err).Msg("Could not connect to event stream")
		}
		defer conn.Close()

		if eventsConsole {
			go func() {
				scanner := bufio.NewScanner(os.Stdin)
				for scanner.Scan() {
					line := strings.TrimSpace(scanner.Text())
					if line == "" {
						continue
					}
					if err := conn.WriteMessage(websocket.TextMessage, []byte(line)); err != nil {
						return
					}
				}
			}()
		}

		for {
			_, message, err := conn.ReadMessage()
			if err != nil {
				if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
					log.Error().Err(err).Msg("Event stream closed")
				}
				return
			}
			var ev sdk.Event
			if err := json.Unmarshal(message, &ev); err != nil {
				continue
			}
			fmt.Println(ui.Event(ev.At, ev.Type, describeEvent(ev)))
		}
	},
}

func describeEvent(ev sdk.Event) string {
	switch ev.Type {
	case "status":
		var st sdk.Status
		if json.Unmarshal(ev.Data, &st) == nil {
			return fmt.Sprintf("%s players=%d", st.StatusName(), st.OnlinePlayerCount)
		}
	case "alert":
		var a struct {
			Type    string `json:"type"`
			Message string `json:"message"`
		}
		if json.Unmarshal(ev.Data, &a) == nil {
			return fmt.Sprintf("[%s] %s", a.Type, a.Message)
		}
	case "output", "chat":
		var out struct {
			Command string   `json:"command"`
			Lines   []string `json:"lines"`
		}
		if json.Unmarshal(ev.Data, &out) == nil {
			return fmt.Sprintf("> %s\n%s", out.Command, strings.Join(out.Lines, "\n"))
		}
	case "player_joined", "player_left":
		var pl struct {
			Player sdk.Player `json:"player"`
		}
		if json.Unmarshal(ev.Data, &pl) == nil {
			return fmt.Sprintf("%s (%s)", pl.Player.Name, pl.Player.ID)
		}
	}
	return string(ev.Data)
}

func init() {
	eventsCmd.Flags().BoolVar(&eventsConsole, "console", false, "send lines read from stdin to the server console")
	RootCmd.AddCommand(eventsCmd)
}
