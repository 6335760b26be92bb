package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/psaab/bigsh/pkg/command"
	"github.com/psaab/bigsh/pkg/config"
	"github.com/psaab/bigsh/pkg/configstore"
	"github.com/psaab/bigsh/pkg/datastore"
	"github.com/psaab/bigsh/pkg/logging"
	"github.com/psaab/bigsh/pkg/metrics"
	"github.com/psaab/bigsh/pkg/runconfig"
	"github.com/psaab/bigsh/pkg/schema"
)

// Version is stamped at build time.
var Version = "dev"

// app holds the state shared by every subcommand.
type app struct {
	configFile string
	settings   *config.Settings
	flags      config.Settings
	logs       *logging.Buffer
	log        *slog.Logger
	metrics    *metrics.Collector
}

func newRootCmd() *cobra.Command {
	a := &app{logs: logging.NewBuffer(1000), metrics: metrics.New()}
	root := &cobra.Command{
		Use:   "bigsh",
		Short: "Show a controller's configuration as CLI commands",
		Long: `bigsh walks the controller's configuration tree with its schema and
prints the shortest CLI commands that would recreate it, nested in the
submodes where they are entered.`,
		Version:           Version,
		SilenceUsage:      true,
		PersistentPreRunE: a.setup,
		Example: `  # Print the whole running config from a local data file
  bigsh --schema-file schema.json --descriptor commands.yaml --data-file data.yaml running-config

  # Print one switch from a controller
  bigsh --transport rest --controller https://ctl:8443 running-config core/switch dpid=00:00:00:00:00:00:00:01

  # Start the interactive shell
  bigsh --config bigsh.yaml shell`,
	}

	pf := root.PersistentFlags()
	pf.StringVarP(&a.configFile, "config", "c", "", "Settings file (YAML)")
	pf.StringVar(&a.flags.Transport, "transport", "", "Datastore transport: rest, grpc or file")
	pf.StringVar(&a.flags.Controller, "controller", "", "Controller base URL for the rest transport")
	pf.StringVar(&a.flags.GRPCAddr, "grpc-addr", "", "Datastore address for the grpc transport")
	pf.StringVar(&a.flags.Token, "token", "", "Bearer token for the controller")
	pf.StringVar(&a.flags.SchemaFile, "schema-file", "", "Schema JSON file")
	pf.StringSliceVar(&a.flags.DescriptorFiles, "descriptor", nil, "Command descriptor file (repeatable)")
	pf.StringVar(&a.flags.DataFile, "data-file", "", "Configuration data file for the file transport")
	pf.DurationVar(&a.flags.Timeout, "timeout", 0, "Datastore request timeout")
	pf.IntVar(&a.flags.SubsetSearchLimit, "subset-limit", 0, "Largest field set searched for partial commands")
	pf.BoolVar(&a.flags.Detail, "detail", false, "Include values equal to their schema default")
	pf.StringVar(&a.flags.HistoryDB, "history-db", "", "Snapshot archive (sqlite)")
	pf.StringVar(&a.flags.LogLevel, "log-level", "", "Log level: debug, info, warn or error")
	pf.StringVar(&a.flags.MetricsFile, "metrics-file", "", "Write run metrics in Prometheus text format to this file")

	root.AddCommand(
		newRunningConfigCmd(a),
		newSelectorCmd(a),
		newSchemaCmd(a),
		newShellCmd(a),
		newServeCmd(a),
	)
	return root
}

// setup loads the settings file, applies explicitly set flags over it and
// installs the default logger.
func (a *app) setup(cmd *cobra.Command, _ []string) error {
	s := config.Defaults()
	if a.configFile != "" {
		loaded, err := config.Load(a.configFile)
		if err != nil {
			return err
		}
		s = loaded
	}
	a.override(cmd, s)
	if err := s.Validate(); err != nil {
		return err
	}
	a.settings = s

	level, err := logging.ParseLevel(s.LogLevel)
	if err != nil {
		return err
	}
	a.log = logging.Setup(level, os.Stderr, a.logs)
	return nil
}

func (a *app) override(cmd *cobra.Command, s *config.Settings) {
	changed := cmd.Flags().Changed
	f := &a.flags
	if changed("transport") {
		s.Transport = f.Transport
	}
	if changed("controller") {
		s.Controller = f.Controller
	}
	if changed("grpc-addr") {
		s.GRPCAddr = f.GRPCAddr
	}
	if changed("token") {
		s.Token = f.Token
	}
	if changed("schema-file") {
		s.SchemaFile = f.SchemaFile
	}
	if changed("descriptor") {
		s.DescriptorFiles = f.DescriptorFiles
	}
	if changed("data-file") {
		s.DataFile = f.DataFile
	}
	if changed("timeout") {
		s.Timeout = f.Timeout
	}
	if changed("subset-limit") {
		s.SubsetSearchLimit = f.SubsetSearchLimit
	}
	if changed("detail") {
		s.Detail = f.Detail
	}
	if changed("history-db") {
		s.HistoryDB = f.HistoryDB
	}
	if changed("log-level") {
		s.LogLevel = f.LogLevel
	}
	if changed("metrics-file") {
		s.MetricsFile = f.MetricsFile
	}
}

// backend is an opened datastore with its schema.
type backend struct {
	model      *schema.Model
	schemaJSON []byte
	querier    datastore.Querier
	mutator    datastore.Mutator
	store      datastore.Store // nil unless the data is local
	invalidate func()
	close      func() error
}

// open connects to the datastore named by the settings.
func (a *app) open(ctx context.Context) (*backend, error) {
	s := a.settings
	b := &backend{close: func() error { return nil }}

	if s.SchemaFile != "" {
		data, err := os.ReadFile(s.SchemaFile)
		if err != nil {
			return nil, fmt.Errorf("read schema: %w", err)
		}
		m, err := schema.ParseModel(data)
		if err != nil {
			return nil, fmt.Errorf("schema %s: %w", s.SchemaFile, err)
		}
		b.model, b.schemaJSON = m, data
	}

	switch s.Transport {
	case config.TransportFile:
		mem, err := datastore.LoadMemory(b.model, s.DataFile)
		if err != nil {
			return nil, err
		}
		b.querier, b.mutator, b.store = mem, mem, mem
	case config.TransportREST:
		c := datastore.NewClient(datastore.ClientConfig{
			BaseURL:  s.Controller,
			Token:    s.Token,
			Timeout:  s.Timeout,
			Retries:  s.Retries,
			CacheTTL: s.CacheTTL,
			Logger:   a.log,
		})
		if b.model != nil {
			c.SetModel(b.model)
		} else {
			m, err := c.Model(ctx)
			if err != nil {
				return nil, err
			}
			b.model = m
		}
		b.querier, b.mutator, b.invalidate = c, c, c.Invalidate
	case config.TransportGRPC:
		conn, err := grpc.NewClient(s.GRPCAddr, grpc.WithTransportCredentials(insecure.NewCredentials()))
		if err != nil {
			return nil, fmt.Errorf("grpc dial %s: %w", s.GRPCAddr, err)
		}
		c := datastore.NewGRPCClient(conn, b.model)
		b.querier, b.mutator, b.close = c, c, conn.Close
	default:
		return nil, fmt.Errorf("unknown transport %q", s.Transport)
	}
	return b, nil
}

func (a *app) generator(b *backend) (*runconfig.Generator, error) {
	reg, err := command.LoadFiles(a.settings.DescriptorFiles...)
	if err != nil {
		return nil, err
	}
	return runconfig.NewGenerator(b.model, reg,
		runconfig.WithLogger(a.log),
		runconfig.WithObserver(a.metrics)), nil
}

func (a *app) options() runconfig.Options {
	return runconfig.Options{
		Detail:      a.settings.Detail,
		SubsetLimit: a.settings.SubsetSearchLimit,
	}
}

// snapshots returns the snapshot store, backed by the archive when one is
// configured. The returned func closes the archive.
func (a *app) snapshots() (*configstore.Store, func(), error) {
	if a.settings.HistoryDB == "" {
		return configstore.New(a.settings.HistorySize, nil, a.log), func() {}, nil
	}
	arch, err := configstore.OpenArchive(a.settings.HistoryDB, a.log)
	if err != nil {
		return nil, nil, err
	}
	return configstore.New(a.settings.HistorySize, arch, a.log), func() { arch.Close() }, nil
}

// writeMetrics stores the collected run metrics when a textfile is set.
func (a *app) writeMetrics() {
	if a.settings.MetricsFile == "" {
		return
	}
	start := time.Now()
	if err := a.metrics.WriteTextfile(a.settings.MetricsFile); err != nil {
		a.log.Warn("writing metrics failed", "file", a.settings.MetricsFile, "err", err)
		return
	}
	a.log.Debug("metrics written", "file", a.settings.MetricsFile, "elapsed", time.Since(start))
}

// shellLine joins command-line arguments into one shell input line,
// quoting values the shell lexer would otherwise split.
func shellLine(words ...string) string {
	out := make([]string, len(words))
	for i, w := range words {
		if !strings.ContainsAny(w, " \t\"'|") {
			out[i] = w
			continue
		}
		if k, v, ok := strings.Cut(w, "="); ok && !strings.ContainsAny(k, " \t\"'|") {
			out[i] = k + "=" + strconv.Quote(v)
			continue
		}
		out[i] = strconv.Quote(w)
	}
	return strings.Join(out, " ")
}
