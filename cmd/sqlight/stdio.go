package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/tomyedwab/sqlight/transport"
)

type cmdStdio struct {
	global *cmdGlobal
}

func (c *cmdStdio) Command() *cobra.Command {
	cmd := &cobra.Command{}
	cmd.Use = "stdio"
	cmd.Short = "Serve the worker on standard input and output"
	cmd.Long = `Description:
  Serve the worker on standard input and output

  Requests are read one JSON message per line from stdin and responses are
  written the same way to stdout. Logs go to stderr.
`
	cmd.RunE = c.Run

	return cmd
}

func (c *cmdStdio) Run(cmd *cobra.Command, args []string) error {
	h, cleanup, err := c.global.newHost()
	if err != nil {
		return err
	}
	defer cleanup()

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	return h.Serve(ctx, transport.NewStdioConn(os.Stdin, os.Stdout))
}
