package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/tomyedwab/sqlight/engine"
	"github.com/tomyedwab/sqlight/transport"
	"github.com/tomyedwab/sqlight/worker"
	"github.com/tomyedwab/sqlight/worker/client"
)

type cmdRun struct {
	global *cmdGlobal

	flagDB      string
	flagPersist bool
	flagClear   bool
	flagStep    bool
	flagLoad    string
	flagSave    string
	flagRemote  string
	flagToken   string
}

func (c *cmdRun) Command() *cobra.Command {
	cmd := &cobra.Command{}
	cmd.Use = "run [<file>|-]"
	cmd.Short = "Run a SQL script"
	cmd.Long = `Description:
  Run a SQL script

  Every statement of the script is executed in order and its rows are
  printed as a table. With --step the script is stepped into statement by
  statement and every row is fetched on its own.

  If <file> is "-" or missing, the script is read from standard input.
`
	cmd.Flags().StringVar(&c.flagDB, "db", "run.db", "Database file name")
	cmd.Flags().BoolVar(&c.flagPersist, "persist", false, "Use the persistent storage pool")
	cmd.Flags().BoolVar(&c.flagClear, "clear", false, "Start from an empty database")
	cmd.Flags().BoolVar(&c.flagStep, "step", false, "Fetch rows one at a time")
	cmd.Flags().StringVar(&c.flagLoad, "load", "", "Load this database file before running")
	cmd.Flags().StringVar(&c.flagSave, "save", "", "Save the database to this file after running")
	cmd.Flags().StringVar(&c.flagRemote, "remote", "", "Websocket URL of a worker to run on")
	cmd.Flags().StringVar(&c.flagToken, "token", "", "Bearer token for --remote")
	cmd.RunE = c.Run

	return cmd
}

func (c *cmdRun) Run(cmd *cobra.Command, args []string) error {
	if len(args) > 1 {
		_ = cmd.Help()
		return fmt.Errorf("Too many arguments")
	}

	var script []byte
	var err error
	if len(args) == 0 || args[0] == "-" {
		script, err = io.ReadAll(os.Stdin)
	} else {
		script, err = os.ReadFile(args[0])
	}
	if err != nil {
		return fmt.Errorf("Failed to read script: %w", err)
	}

	ctx := cmd.Context()
	c2, closeClient, err := c.connect(ctx)
	if err != nil {
		return err
	}
	defer closeClient()

	id, err := c2.Open(ctx, c.flagDB, c.flagPersist)
	if err != nil {
		return err
	}

	if c.flagLoad != "" {
		data, err := os.ReadFile(c.flagLoad)
		if err != nil {
			return fmt.Errorf("Failed to read database: %w", err)
		}
		if err := c2.LoadDB(ctx, id, data); err != nil {
			return err
		}
	}

	if err := c2.Prepare(ctx, id, string(script), c.flagClear); err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if c.flagStep {
		err = stepScript(ctx, c2, id, out)
	} else {
		var results []engine.StatementResult
		results, err = c2.Continue(ctx, id)
		for _, result := range results {
			printResult(out, result)
		}
	}
	if err != nil {
		return err
	}

	if c.flagSave != "" {
		_, data, err := c2.DownloadDB(ctx, id)
		if err != nil {
			return err
		}
		if err := os.WriteFile(c.flagSave, data, 0o644); err != nil {
			return fmt.Errorf("Failed to save database: %w", err)
		}
	}
	return nil
}

// connect returns a client for the remote worker, or for a worker in this
// process when no remote is set.
func (c *cmdRun) connect(ctx context.Context) (*client.Client, func(), error) {
	if c.flagRemote != "" {
		remote, err := transport.Dial(ctx, c.flagRemote, c.flagToken)
		if err != nil {
			return nil, nil, err
		}
		return client.New(remote.Call), func() { remote.Close() }, nil
	}

	h, cleanup, err := c.global.newHost()
	if err != nil {
		return nil, nil, err
	}
	return client.New(h.HandleRequest), cleanup, nil
}

// stepScript steps into each statement in turn and fetches its rows one at
// a time, printing each row as it arrives.
func stepScript(ctx context.Context, c *client.Client, id string, out io.Writer) error {
	for {
		err := c.StepIn(ctx, id)
		if errors.Is(err, worker.ErrInvalidState) {
			// No statements left.
			return nil
		}
		if err != nil {
			return err
		}

		for {
			result, err := c.StepOver(ctx, id)
			if err != nil {
				return err
			}
			if result.Step.Done {
				break
			}
			printResult(out, result)
		}
	}
}

func printResult(out io.Writer, result engine.StatementResult) {
	if result.IsFinish() {
		return
	}
	fmt.Fprintf(out, "-- [%d:%d] %s\n", result.Step.Position.Start(), result.Step.Position.End(), strings.TrimSpace(result.Step.SQL))
	if result.Step.Values == nil {
		fmt.Fprintln(out)
		return
	}

	table := tablewriter.NewWriter(out)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetAutoWrapText(false)
	table.SetAutoFormatHeaders(false)
	table.SetHeader(result.Step.Values.Columns)
	for _, row := range result.Step.Values.Rows {
		data := make([]string, 0, len(row))
		for _, value := range row {
			data = append(data, value.String())
		}
		table.Append(data)
	}
	table.Render()
	fmt.Fprintln(out)
}
