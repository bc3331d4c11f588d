package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/liliang-cn/facevec"
	"github.com/liliang-cn/facevec/internal/config"
	"github.com/liliang-cn/facevec/internal/encoding"
	"github.com/liliang-cn/facevec/pkg/core"
)

// app carries global flags and the resolved configuration across commands
type app struct {
	configPath string
	dbPath     string
	dimensions int
	logLevel   string
	logFormat  string

	cfg    *config.Config
	logger *zap.Logger
}

func newRootCmd() *cobra.Command {
	a := &app{}

	rootCmd := &cobra.Command{
		Use:           "facevec",
		Short:         "CLI tool for face embedding storage and search",
		Long:          `A command-line interface for storing face embeddings in SQLite and finding their nearest neighbors.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.configure(cmd)
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if a.logger != nil {
				_ = a.logger.Sync()
			}
		},
	}

	// Global flags
	flags := rootCmd.PersistentFlags()
	flags.StringVarP(&a.configPath, "config", "c", "", "YAML config file")
	flags.StringVarP(&a.dbPath, "db", "d", "faces.db", "Database file path")
	flags.IntVarP(&a.dimensions, "dimensions", "n", core.DefaultDimension, "Embedding dimensions")
	flags.StringVar(&a.logLevel, "log-level", "warn", "Log level (debug, info, warn, error)")
	flags.StringVar(&a.logFormat, "log-format", "console", "Log format (console, json)")

	rootCmd.AddCommand(
		a.addCmd(),
		a.getCmd(),
		a.queryCmd(),
		a.searchCmd(),
		a.deleteCmd(),
		a.countCmd(),
		a.statsCmd(),
		a.rebuildCmd(),
		a.exportCmd(),
		a.importCmd(),
		a.backupCmd(),
	)

	return rootCmd
}

// configure resolves defaults, the config file, the environment and explicit flags, in that order
func (a *app) configure(cmd *cobra.Command) error {
	cfg, err := config.Load(a.configPath)
	if err != nil {
		return err
	}

	flags := cmd.Flags()
	if flags.Changed("db") {
		cfg.DB.Path = a.dbPath
	}
	if flags.Changed("dimensions") {
		cfg.DB.Dimension = a.dimensions
	}
	if flags.Changed("log-level") {
		cfg.Log.Level = a.logLevel
	}
	if flags.Changed("log-format") {
		cfg.Log.Format = a.logFormat
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger, err := newLogger(cfg.Log)
	if err != nil {
		return err
	}

	a.cfg = cfg
	a.logger = logger
	return nil
}

func newLogger(cfg config.LogConfig) (*zap.Logger, error) {
	level, err := cfg.ZapLevel()
	if err != nil {
		return nil, err
	}

	zcfg := zap.NewProductionConfig()
	if cfg.Format == "console" {
		zcfg = zap.NewDevelopmentConfig()
	}
	zcfg.Level = zap.NewAtomicLevelAt(level)
	zcfg.OutputPaths = []string{"stderr"}
	zcfg.ErrorOutputPaths = []string{"stderr"}

	logger, err := zcfg.Build()
	if err != nil {
		return nil, fmt.Errorf("failed to build logger: %w", err)
	}
	return logger, nil
}

func (a *app) openDB(ctx context.Context) (*facevec.DB, error) {
	db, err := facevec.Open(ctx, a.cfg.Facevec(), facevec.WithLogger(core.NewZapLogger(a.logger)))
	if err != nil {
		return nil, fmt.Errorf("failed to open database %s: %w", a.cfg.DB.Path, err)
	}
	return db, nil
}

// readVector takes the vector from a comma-separated string or a raw float32 blob file
func (a *app) readVector(csv, file string) ([]float32, error) {
	switch {
	case csv != "" && file != "":
		return nil, fmt.Errorf("use either --vector or --vector-file, not both")
	case csv != "":
		return parseVector(csv)
	case file != "":
		data, err := os.ReadFile(file)
		if err != nil {
			return nil, fmt.Errorf("failed to read vector file: %w", err)
		}
		vec, err := encoding.DecodeVector(data, a.cfg.DB.Dimension)
		if err != nil {
			return nil, fmt.Errorf("invalid vector file %s: %w", file, err)
		}
		return vec, nil
	default:
		return nil, fmt.Errorf("vector is required (--vector or --vector-file)")
	}
}

func parseVector(str string) ([]float32, error) {
	parts := strings.Split(str, ",")
	vector := make([]float32, 0, len(parts))
	for _, part := range parts {
		val, err := strconv.ParseFloat(strings.TrimSpace(part), 32)
		if err != nil {
			return nil, fmt.Errorf("invalid vector format: %w", err)
		}
		vector = append(vector, float32(val))
	}
	return vector, nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		stop()
		log.Fatal(err)
	}
}
