package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"morphogen/internal/config"
	"morphogen/pkg/morphogen"
)

const exportsDir = "exports"

// globalFlags are shared by every subcommand.
type globalFlags struct {
	configPath   string
	storeKind    string
	dbPath       string
	artifactsDir string
	verbose      bool
	jsonOut      bool
}

func main() {
	if err := run(context.Background(), os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string) error {
	root := newRootCmd()
	root.SetArgs(args)
	return root.ExecuteContext(ctx)
}

func newRootCmd() *cobra.Command {
	flags := &globalFlags{}
	var logger *zap.Logger

	root := &cobra.Command{
		Use:   "morphogenctl",
		Short: "Match intents against a morphism catalog and synthesize folds for the gaps",
		Long: `morphogenctl drives a morphism registry from the command line.

Intents are matched against the catalog by vocabulary, fuzzy similarity and
recorded co-usage. When the catalog has a gap, example input/output pairs
can be handed to the evolutionary synthesizer, which searches for a fold
that reproduces them.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			var err error
			logger, err = buildLogger(flags)
			if err != nil {
				return fmt.Errorf("failed to initialize logger: %w", err)
			}
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if logger != nil {
				_ = logger.Sync()
			}
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&flags.configPath, "config", "", "YAML config file (defaults apply when empty)")
	pf.StringVar(&flags.storeKind, "store", "", "store backend: memory|sqlite (overrides config)")
	pf.StringVar(&flags.dbPath, "db-path", "", "sqlite database path (overrides config)")
	pf.StringVar(&flags.artifactsDir, "artifacts-dir", "", "run artifacts directory (overrides config)")
	pf.BoolVarP(&flags.verbose, "verbose", "v", false, "enable debug logging")
	pf.BoolVar(&flags.jsonOut, "json", false, "emit JSON instead of text")

	open := func(cmd *cobra.Command) (*morphogen.Client, error) {
		return openClient(cmd.Context(), flags, logger)
	}

	root.AddCommand(
		newInitCmd(flags, open),
		newCatalogCmd(flags, open),
		newRegisterCmd(flags, open),
		newReviseCmd(flags, open),
		newMatchCmd(flags, open),
		newUsageCmd(flags, open),
		newSynthesizeCmd(flags, open),
		newResolveCmd(flags, open),
		newRunsCmd(flags, open),
		newLineageCmd(flags, open),
		newFitnessCmd(flags, open),
		newDiagnosticsCmd(flags, open),
		newExportCmd(flags, open),
		newConfigCmd(flags),
	)
	return root
}

type openFunc func(cmd *cobra.Command) (*morphogen.Client, error)

func buildLogger(flags *globalFlags) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	loaded, err := config.Load(flags.configPath)
	if err != nil {
		return nil, err
	}
	level, err := zapcore.ParseLevel(loaded.Logging.Level)
	if err != nil {
		return nil, err
	}
	if flags.verbose {
		level = zapcore.DebugLevel
	}
	cfg.Level = zap.NewAtomicLevelAt(level)
	return cfg.Build()
}

func loadConfig(flags *globalFlags) (config.Config, error) {
	cfg, err := config.Load(flags.configPath)
	if err != nil {
		return config.Config{}, err
	}
	if flags.storeKind != "" {
		cfg.Storage.Backend = flags.storeKind
	}
	if flags.dbPath != "" {
		cfg.Storage.SQLitePath = flags.dbPath
	}
	if flags.artifactsDir != "" {
		cfg.Storage.ArtifactsDir = flags.artifactsDir
	}
	return cfg, nil
}

func openClient(ctx context.Context, flags *globalFlags, logger *zap.Logger) (*morphogen.Client, error) {
	cfg, err := loadConfig(flags)
	if err != nil {
		return nil, err
	}
	client, err := morphogen.New(morphogen.Options{
		Config:     &cfg,
		ExportsDir: exportsDir,
		Logger:     logger,
	})
	if err != nil {
		return nil, err
	}
	if err := client.Init(ctx); err != nil {
		_ = client.Close()
		return nil, err
	}
	return client, nil
}

func newInitCmd(flags *globalFlags, open openFunc) *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Initialize the store and load the starter catalog",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			client, err := open(cmd)
			if err != nil {
				return err
			}
			defer client.Close()
			if err := client.Save(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "initialized store=%s morphisms=%d\n", client.Config().Storage.Backend, client.Registry().Len())
			return nil
		},
	}
}
