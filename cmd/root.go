package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"mediarecon/internal"
)

// Version is overridden at build time or from the embedded VERSION file.
var Version = "dev"

var (
	configFlag  string
	verboseFlag bool
	logFileFlag string
)

var rootCmd = &cobra.Command{
	Use:           "mediarecon",
	Short:         "Reconcile media collections and their capture timestamps",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func Execute() error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()
	return rootCmd.ExecuteContext(ctx)
}

// ApplyVersion copies Version onto the root command.
func ApplyVersion() {
	rootCmd.Version = Version
}

// runtime is the configuration and logger shared by every subcommand.
type runtime struct {
	conf   *internal.Config
	logger *zap.Logger
	close  func() error
}

func loadRuntime() (*runtime, error) {
	conf, err := internal.LoadConfig(configFlag)
	if err != nil {
		return nil, err
	}
	logPath := conf.LogFile
	if logFileFlag != "" {
		logPath = logFileFlag
	}
	logger, closeFn, err := internal.NewLogger(logPath, verboseFlag)
	if err != nil {
		return nil, err
	}
	return &runtime{conf: conf, logger: logger, close: closeFn}, nil
}

func requireDir(path string) error {
	info, err := os.Stat(path)
	if err != nil || !info.IsDir() {
		return fmt.Errorf("folder does not exist or is not a directory: %s: %w", path, internal.ErrNotFound)
	}
	return nil
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFlag, "config", "", "Config file (default <user config dir>/mediarecon/mediarecon.toml)")
	rootCmd.PersistentFlags().BoolVarP(&verboseFlag, "verbose", "v", false, "Log debug output to the console")
	rootCmd.PersistentFlags().StringVar(&logFileFlag, "log-file", "", "Log file for warnings and errors (overrides config)")
	ApplyVersion()
}
