package main

import (
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/psaab/bigsh/pkg/cli"
)

func newShellCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "shell",
		Short: "Start the interactive shell",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGTERM)
			defer stop()

			b, err := a.open(ctx)
			if err != nil {
				return err
			}
			defer b.close()
			g, err := a.generator(b)
			if err != nil {
				return err
			}
			store, closeStore, err := a.snapshots()
			if err != nil {
				return err
			}
			defer closeStore()

			var histFile string
			if home, err := os.UserHomeDir(); err == nil {
				histFile = filepath.Join(home, ".bigsh_history")
			}
			sh := cli.New(cli.Config{
				Generator:   g,
				Querier:     b.querier,
				Mutator:     b.mutator,
				Store:       store,
				Logs:        a.logs,
				Invalidate:  b.invalidate,
				Options:     a.options(),
				HistoryFile: histFile,
				Logger:      a.log,
			})
			err = sh.Run(ctx)
			a.writeMetrics()
			return err
		},
	}
}
