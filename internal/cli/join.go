package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"

	"github.com/spf13/cobra"

	"github.com/codevelop/roomchat-go/roomchat"
)

// joinCmd represents the join command
var joinCmd = &cobra.Command{
	Use:   "join <room>",
	Short: "Join a room and chat interactively",
	Long: `Join a room, print live messages as they arrive and send every line you type.

Commands:
  /older       load the previous page of history
  /room <id>   switch to another room
  /quit        leave`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
		defer stop()

		session := roomchat.NewSession(appCfg.Session(), newHistoryClient(), roomchat.WithLogger(logger))
		defer session.Close()

		errOut := cmd.ErrOrStderr()
		session.OnError(func(err error) {
			fmt.Fprintln(errOut, errorStyle.Render(err.Error()))
		})

		r := &renderer{out: cmd.OutOrStdout(), self: session.SenderID()}
		if err := session.SelectRoom(ctx, roomchat.RoomID(args[0])); err != nil {
			if !appCfg.Reconnect.Enabled {
				return fmt.Errorf("failed to join room %s: %w", args[0], err)
			}
		}
		return chatLoop(ctx, session, cmd.InOrStdin(), r)
	},
}

func chatLoop(ctx context.Context, s *roomchat.Session, in io.Reader, r *renderer) error {
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-s.Changes():
			r.render(s.Snapshot())
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			if quit := handleLine(ctx, s, line, r.out); quit {
				return nil
			}
		}
	}
}

// handleLine runs one line of user input and reports whether to leave.
func handleLine(ctx context.Context, s *roomchat.Session, line string, out io.Writer) bool {
	cmd, arg := parseLine(line)
	var err error
	switch cmd {
	case "quit":
		return true
	case "older":
		err = s.LoadOlder(ctx)
	case "room":
		if arg == "" {
			err = fmt.Errorf("usage: /room <id>")
			break
		}
		err = s.SelectRoom(ctx, roomchat.RoomID(arg))
	case "":
		if strings.TrimSpace(arg) == "" {
			return false
		}
		s.SetInput(arg)
		err = s.Submit(ctx)
	default:
		err = fmt.Errorf("unknown command /%s", cmd)
	}
	if err != nil {
		fmt.Fprintln(out, errorStyle.Render(err.Error()))
	}
	return false
}

// parseLine splits "/cmd arg" input. Plain text comes back with an empty command.
func parseLine(line string) (cmd, arg string) {
	trimmed := strings.TrimSpace(line)
	if !strings.HasPrefix(trimmed, "/") {
		return "", line
	}
	cmd, arg, _ = strings.Cut(trimmed[1:], " ")
	return strings.ToLower(cmd), strings.TrimSpace(arg)
}

func init() {
	rootCmd.AddCommand(joinCmd)
}
