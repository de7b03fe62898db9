// Package main implements the suggestctl CLI for working with suggestion
// model files: validating them and running conversations through an engine.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/suggestkit/suggestkit/internal/config"
)

var (
	// configPath is the optional YAML config file.
	configPath string
	// modelPath overrides the config's model path.
	modelPath string
	// version information
	version = "dev"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "suggestctl",
	Short: "CLI for conversation action suggestion models",
	Long: `suggestctl works with suggestion model files.
It validates model definitions and runs conversations through a compiled engine.`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file path")
	rootCmd.PersistentFlags().StringVar(&modelPath, "model", "", "model definition file (overrides config)")
	rootCmd.AddCommand(suggestCmd)
	rootCmd.AddCommand(validateCmd)
}

// loadConfig resolves the effective configuration for a command run.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if modelPath != "" {
		cfg.Model.Path = modelPath
	}
	return cfg, nil
}

// newLogger builds the process logger from config, the same way the server
// side would.
func newLogger(cfg *config.Config) (*zap.Logger, error) {
	var level zapcore.Level
	if err := level.Set(cfg.Logging.Level); err != nil {
		return nil, fmt.Errorf("invalid log level: %w", err)
	}
	zapCfg := zap.NewProductionConfig()
	if cfg.Logging.Development {
		zapCfg = zap.NewDevelopmentConfig()
	}
	zapCfg.Level = zap.NewAtomicLevelAt(level)
	return zapCfg.Build()
}
