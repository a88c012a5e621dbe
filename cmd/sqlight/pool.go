package main

import (
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
)

type cmdPool struct {
	global *cmdGlobal

	flagAdd    int
	flagReduce int
}

func (c *cmdPool) Command() *cobra.Command {
	cmd := &cobra.Command{}
	cmd.Use = "pool"
	cmd.Short = "Show or resize the persistent storage pool"
	cmd.Long = `Description:
  Show or resize the persistent storage pool

  Prints the pool capacity and the files it holds. The pool cannot be
  inspected while a worker is using it.
`
	cmd.Flags().IntVar(&c.flagAdd, "add", 0, "Add this many slots")
	cmd.Flags().IntVar(&c.flagReduce, "reduce", 0, "Remove up to this many free slots")
	cmd.RunE = c.Run

	return cmd
}

func (c *cmdPool) Run(cmd *cobra.Command, args []string) error {
	store := c.global.newStorage()
	defer store.Close()

	ctx := cmd.Context()
	pool, err := store.InstallPool(ctx)
	if err != nil {
		return err
	}
	if c.flagAdd > 0 {
		if _, err := pool.AddCapacity(ctx, c.flagAdd); err != nil {
			return err
		}
	}
	if c.flagReduce > 0 {
		if _, err := pool.ReduceCapacity(c.flagReduce); err != nil {
			return err
		}
	}

	files, err := pool.Files()
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Directory: %s\n", c.global.config.PoolDir)
	fmt.Fprintf(out, "Capacity:  %d slots\n", pool.Capacity())
	fmt.Fprintf(out, "Files:     %d\n", pool.FileCount())
	if len(files) == 0 {
		return nil
	}

	table := tablewriter.NewWriter(out)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetHeader([]string{"PATH", "SIZE"})
	var total int64
	for _, file := range files {
		table.Append([]string{file.Path, humanize.IBytes(uint64(file.Size))})
		total += file.Size
	}
	table.SetFooter([]string{"TOTAL", humanize.IBytes(uint64(total))})
	table.Render()
	return nil
}
