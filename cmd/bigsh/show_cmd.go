package main

import (
	"github.com/spf13/cobra"

	"github.com/psaab/bigsh/pkg/cli"
)

// oneShot opens the datastore, runs a single shell command and writes the
// run metrics.
func (a *app) oneShot(cmd *cobra.Command, words ...string) error {
	ctx := cmd.Context()
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

	sh := cli.New(cli.Config{
		Generator: g,
		Querier:   b.querier,
		Store:     store,
		Logs:      a.logs,
		Options:   a.options(),
		Out:       cmd.OutOrStdout(),
		Logger:    a.log,
	})
	err = sh.Execute(ctx, shellLine(words...))
	a.writeMetrics()
	return err
}

func newRunningConfigCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:     "running-config [path...] [key=value...]",
		Aliases: []string{"run"},
		Short:   "Print the configuration as CLI commands",
		Long: `Print the configuration as the CLI commands that recreate it. With no
path every top-level path is walked. key=value pairs narrow a single path.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.oneShot(cmd, append([]string{"show", "running-config"}, args...)...)
		},
	}
}

func newSelectorCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "selector <path> [query|create|update|replace|delete] [key=value...]",
		Short: "Print the datastore selector built for a path",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.oneShot(cmd, append([]string{"show", "selector"}, args...)...)
		},
	}
}

func newSchemaCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "schema [path]",
		Short: "Describe a schema node, or list the top-level paths",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 {
				return a.oneShot(cmd, "show", "top-paths")
			}
			return a.oneShot(cmd, "show", "schema", args[0])
		},
	}
}
