package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"twmailer/backend/internal/client"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	var (
		timeout    time.Duration
		idleWindow time.Duration
	)

	cmd := &cobra.Command{
		Use:   "twmailer-client <ip> <port>",
		Short: "Interactive console client for the twmailer server",
		Long: `Connects to a twmailer server and reads commands from standard input.

Valid commands are SEND, LIST, READ, DEL and QUIT. Each command prompts
for its fields; a message body ends with a line containing only ".".`,
		Args:         cobra.ExactArgs(2),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			port, err := strconv.Atoi(args[1])
			if err != nil || port < 1 || port > 65535 {
				return fmt.Errorf("invalid port %q", args[1])
			}
			if net.ParseIP(args[0]) == nil {
				return fmt.Errorf("invalid IP address format %q", args[0])
			}

			ctx, cancel := context.WithTimeout(context.Background(), timeout)
			defer cancel()

			c, err := client.Dial(ctx, net.JoinHostPort(args[0], args[1]), client.Options{
				Timeout:    timeout,
				IdleWindow: idleWindow,
			})
			if err != nil {
				return err
			}
			defer c.Close()

			return newConsole(c, cmd.InOrStdin(), cmd.OutOrStdout(), cmd.ErrOrStderr()).Run()
		},
	}

	cmd.Flags().DurationVar(&timeout, "timeout", client.DefaultTimeout, "connect and response timeout")
	cmd.Flags().DurationVar(&idleWindow, "idle-window", client.DefaultIdleWindow, "how long to wait for more READ output")
	return cmd
}
