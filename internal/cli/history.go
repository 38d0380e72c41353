package cli

import (
	"fmt"
	"net/http"

	"github.com/spf13/cobra"

	"github.com/codevelop/roomchat-go/roomchat"
	"github.com/codevelop/roomchat-go/roomchat/rest"
)

var historyPage int

// historyCmd represents the history command
var historyCmd = &cobra.Command{
	Use:   "history <room>",
	Short: "Print the recent messages of a room, or one older page",
	Long: `Print the messages shown when a room is opened. With --page N, print
page N of older history instead (page 1 is the first page before the recent ones).`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		room := roomchat.RoomID(args[0])
		client := newHistoryClient()

		var (
			msgs []roomchat.Message
			err  error
		)
		if historyPage > 0 {
			msgs, err = client.FetchPage(cmd.Context(), room, historyPage)
		} else {
			msgs, err = client.FetchInitial(cmd.Context(), room)
		}
		if err != nil {
			return fmt.Errorf("failed to fetch history: %w", err)
		}

		log := roomchat.NewMessageLog(room, appCfg.Dedupe)
		log.Replace(msgs)
		if log.Len() == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "no messages")
			return nil
		}
		writeEntries(cmd.OutOrStdout(), log.Entries(), appCfg.Auth.SenderID)
		return nil
	},
}

func newHistoryClient() *rest.Client {
	client := rest.NewClient(appCfg.API.BaseURL)
	client.SetToken(appCfg.Auth.Token)
	client.SetLogger(logger)
	if appCfg.API.Timeout > 0 {
		client.SetHTTPClient(&http.Client{Timeout: appCfg.API.Timeout})
	}
	return client
}

func init() {
	rootCmd.AddCommand(historyCmd)
	historyCmd.Flags().IntVarP(&historyPage, "page", "p", 0, "Older page to print (0 prints the recent messages)")
}
