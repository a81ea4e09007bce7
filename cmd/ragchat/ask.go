package main

import (
	"encoding/json"
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	ragchat "github.com/alibaba/higress/plugins/golang-filter/mcp-server/servers/ragchat"
	"github.com/alibaba/higress/plugins/golang-filter/mcp-server/servers/ragchat/common/logger"
)

func newAskCmd(opts *rootOptions) *cobra.Command {
	var sessionID string
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "ask [question]",
		Short: "Answer one question and exit",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := opts.client(cmd.Context())
			if err != nil {
				return err
			}
			defer client.Close()

			res, err := client.Answer(cmd.Context(), strings.Join(args, " "), sessionID)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(ragchat.NewChatResponse(res))
			}
			fmt.Fprintln(out, res.Answer)
			fmt.Fprintf(cmd.ErrOrStderr(), "session: %s\n", res.SessionID)
			return nil
		},
	}
	cmd.Flags().StringVarP(&sessionID, "session", "s", "", "session to continue")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the full result as JSON")
	return cmd
}

func newChatCmd(opts *rootOptions) *cobra.Command {
	var sessionID string
	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Interactive chat in the terminal",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := opts.client(cmd.Context())
			if err != nil {
				return err
			}
			defer client.Close()
			// keep log lines off the alternate screen
			logger.SetLevel(logger.ParseLevel("error"))

			m := newChatModel(cmd.Context(), client, sessionID)
			_, err = tea.NewProgram(m, tea.WithAltScreen()).Run()
			return err
		},
	}
	cmd.Flags().StringVarP(&sessionID, "session", "s", "", "session to continue")
	return cmd
}
