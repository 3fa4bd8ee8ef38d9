package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/msageha/cmdrelay/internal/logging"
	"github.com/msageha/cmdrelay/internal/model"
	"github.com/msageha/cmdrelay/internal/setup"
	"github.com/msageha/cmdrelay/internal/store"
)

var (
	dataDirFlag string
	configFlag  string
	logLevel    string
)

var rootCmd = &cobra.Command{
	Use:   "cmdrelay",
	Short: "Exchange commands and results through a shared CSV file",
	Long: `cmdrelay appends commands to a CSV record store and reports the
results a worker process writes back into the same file.

The data directory defaults to "shared" next to the executable and holds
config.yaml, the store and the logs directory.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&dataDirFlag, "dir", "", "Data directory (default: <executable dir>/shared)")
	rootCmd.PersistentFlags().StringVar(&configFlag, "config", "", "Config file (default: <dir>/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Override logging.level (debug, info, warn, error)")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// env is what every subcommand needs after flags and config are resolved.
type env struct {
	dataDir string
	cfg     model.Config
	logger  *zap.SugaredLogger
	store   *store.Store
}

func (e *env) close() {
	_ = e.logger.Sync()
}

func resolveDataDir() (string, error) {
	if dataDirFlag != "" {
		return filepath.Abs(dataDirFlag)
	}
	exe, err := os.Executable()
	if err != nil {
		return "", fmt.Errorf("locate executable: %w", err)
	}
	if resolved, err := filepath.EvalSymlinks(exe); err == nil {
		exe = resolved
	}
	return filepath.Join(filepath.Dir(exe), model.DataDirName), nil
}

func resolveConfigPath(dataDir string) string {
	if configFlag != "" {
		return configFlag
	}
	return filepath.Join(dataDir, model.ConfigFileName)
}

func loadEnv() (*env, error) {
	dataDir, err := resolveDataDir()
	if err != nil {
		return nil, err
	}

	cfg, err := model.LoadConfig(resolveConfigPath(dataDir))
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}

	logger, err := logging.New(cfg.Logging, dataDir, os.Stderr)
	if err != nil {
		return nil, fmt.Errorf("init logging: %w", err)
	}

	s := store.New(setup.StorePath(dataDir, cfg), store.WithBackup(cfg.Store.Backup))
	return &env{dataDir: dataDir, cfg: cfg, logger: logger, store: s}, nil
}

func sourceOr(flag string, cfg model.Config) string {
	if flag != "" {
		return flag
	}
	return cfg.Source
}
