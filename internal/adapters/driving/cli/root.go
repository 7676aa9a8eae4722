// Package cli implements the milo command line.
package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/milo/internal/config"
	"github.com/custodia-labs/milo/internal/core/domain"
	"github.com/custodia-labs/milo/internal/logger"
)

// version is set at build time through SetVersion.
var version = "dev"

var (
	cfgFile   string
	verbose   bool
	storeFlag string
)

var rootCmd = &cobra.Command{
	Use:   "milo",
	Short: "Ask questions about your documents",
	Long: `milo ingests local documents into a vector store and answers questions
from the passages most similar to them.

Typical use:
  milo setup
  milo ingest ~/notes
  milo query "When is the next billing run?"`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(_ *cobra.Command, _ []string) {
		logger.SetVerbose(verbose)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default ~/.milo/config.toml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	rootCmd.PersistentFlags().StringVar(&storeFlag, "store", "", "vector store backend: postgres, sqlite or memory")
}

// SetVersion sets the version reported by 'milo version'.
func SetVersion(v string) {
	if v != "" {
		version = v
	}
}

// Execute runs the root command until it finishes or the process is
// interrupted.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return rootCmd.ExecuteContext(ctx)
}

// configPath returns --config or the default location.
func configPath() (string, error) {
	if cfgFile != "" {
		return cfgFile, nil
	}
	return config.DefaultPath()
}

// loadConfig reads .env, the config file and the --store override.
func loadConfig() (*config.Config, error) {
	userEnv, err := config.DotEnvPath()
	if err != nil {
		return nil, err
	}
	// The working directory's .env wins over ~/.milo/.env.
	if err := config.LoadDotEnv(".env", userEnv); err != nil {
		return nil, err
	}
	path, err := configPath()
	if err != nil {
		return nil, err
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	if storeFlag != "" {
		cfg.Store.Backend = storeFlag
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
	}
	logger.Debug("config loaded from %s (store=%s)", path, cfg.Store.Backend)
	return cfg, nil
}

// describeError turns pipeline errors into the message shown to users.
func describeError(err error) error {
	switch {
	case errors.Is(err, domain.ErrStoreUnavailable):
		return fmt.Errorf("the vector store could not be reached: %w", err)
	case errors.Is(err, domain.ErrCorruptRecord):
		return fmt.Errorf("a stored passage could not be read, re-ingest with 'milo ingest --clear': %w", err)
	case errors.Is(err, domain.ErrDimensionMismatch):
		return fmt.Errorf("embedding size does not match the store, check embedding.model and store.dimensions: %w", err)
	case errors.Is(err, domain.ErrLLMUnavailable), errors.Is(err, domain.ErrEmbeddingUnavailable):
		return fmt.Errorf("%w\nRun 'milo setup' to configure providers", err)
	default:
		return err
	}
}
