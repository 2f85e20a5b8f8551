package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"tgbroadcast/internal/broadcast"
	"tgbroadcast/internal/config"
)

func sendCmd() *cobra.Command {
	var (
		token     string
		message   string
		parseMode string
	)
	cmd := &cobra.Command{
		Use:   "send",
		Short: "Broadcast one message and print the report as JSON",
		Example: `  BOT_TOKEN=123:abc broadcastd send -m "<b>hello</b>"
  echo "hello" | broadcastd send --parse-mode plain -m -`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if token == "" {
				token = os.Getenv(config.EnvBotToken)
			}
			if message == "-" {
				b, err := io.ReadAll(cmd.InOrStdin())
				if err != nil {
					return err
				}
				message = strings.TrimRight(string(b), "\n")
			}
			mode, err := broadcast.ParseParseMode(parseMode)
			if err != nil {
				return err
			}

			ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.Close()

			rep, err := a.RunOnce(ctx, broadcast.Request{
				Token:     token,
				Message:   message,
				ParseMode: mode,
				Origin:    "cli",
			})
			if err != nil {
				if errors.Is(err, broadcast.ErrUnauthorized) {
					return fmt.Errorf("%w (set --token or %s)", err, config.EnvBotToken)
				}
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(rep)
		},
	}
	cmd.Flags().StringVarP(&token, "token", "t", "", "bot token (default $"+config.EnvBotToken+")")
	cmd.Flags().StringVarP(&message, "message", "m", "", `message body; "-" reads stdin`)
	cmd.Flags().StringVarP(&parseMode, "parse-mode", "p", "HTML", "HTML, Markdown or Plain")
	_ = cmd.MarkFlagRequired("message")
	return cmd
}
