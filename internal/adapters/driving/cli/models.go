package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/milo/internal/adapters/driven/ai"
	"github.com/custodia-labs/milo/internal/config"
	"github.com/custodia-labs/milo/internal/core/domain"
)

var modelsEmbedding bool

var modelsCmd = &cobra.Command{
	Use:   "models",
	Short: "List the models the configured provider offers",
	Long: `Lists the models of the configured LLM provider, or of the embedding
provider with --embedding. The model in use is marked with *.`,
	Args: cobra.NoArgs,
	RunE: runModelsList,
}

var modelsUseCmd = &cobra.Command{
	Use:   "use NAME",
	Short: "Switch to a model the provider offers",
	Args:  cobra.ExactArgs(1),
	RunE:  runModelsUse,
}

var modelsResetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Switch back to the provider's default model",
	Args:  cobra.NoArgs,
	RunE:  runModelsReset,
}

func init() {
	modelsCmd.PersistentFlags().BoolVar(&modelsEmbedding, "embedding", false, "use the embedding provider")
	modelsCmd.AddCommand(modelsUseCmd, modelsResetCmd)
	rootCmd.AddCommand(modelsCmd)
}

// listProviderModels lists the models of the configured provider. Tests
// replace it.
var listProviderModels = func(ctx context.Context, cfg *config.Config, embedding bool) ([]string, error) {
	if embedding {
		return ai.ListEmbeddingModels(ctx, cfg.EmbeddingSettings())
	}
	return ai.ListLLMModels(ctx, cfg.LLMSettings())
}

// currentModel returns the provider and model the command acts on.
func currentModel(cfg *config.Config) (provider, model string) {
	if modelsEmbedding {
		return cfg.Embedding.Provider, cfg.Embedding.Model
	}
	return cfg.LLM.Provider, cfg.LLM.Model
}

func runModelsList(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	names, err := listProviderModels(cmd.Context(), cfg, modelsEmbedding)
	if err != nil {
		return describeError(err)
	}

	provider, current := currentModel(cfg)
	cmd.Printf("Current model: %s (%s)\n\n", current, provider)
	if len(names) == 0 {
		cmd.Println("No models available.")
		return nil
	}
	cmd.Println("Available models:")
	for _, name := range names {
		marker := " "
		if sameModel(name, current) {
			marker = "*"
		}
		cmd.Printf("  %s %s\n", marker, name)
	}
	return nil
}

func runModelsUse(cmd *cobra.Command, args []string) error {
	model := strings.TrimSpace(args[0])
	if model == "" {
		return fmt.Errorf("%w: model name is empty", domain.ErrInvalidInput)
	}
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	names, err := listProviderModels(cmd.Context(), cfg, modelsEmbedding)
	if err != nil {
		return describeError(err)
	}
	if !hasModel(names, model) {
		return fmt.Errorf("%w: model %q not found. Available models:\n  %s",
			domain.ErrNotFound, model, strings.Join(names, "\n  "))
	}
	return switchModel(cmd, cfg, model)
}

func runModelsReset(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	provider, _ := currentModel(cfg)
	defaults := domain.DefaultLLMModels()
	if modelsEmbedding {
		defaults = domain.DefaultEmbeddingModels()
	}
	model, ok := defaults[domain.AIProvider(provider)]
	if !ok {
		return fmt.Errorf("%w: no default model for provider %q", domain.ErrUnsupportedType, provider)
	}
	return switchModel(cmd, cfg, model)
}

// switchModel writes model to the config file. A new embedding model also
// sets the store dimensions when they are known, since stored vectors from
// the old model can no longer be compared.
func switchModel(cmd *cobra.Command, cfg *config.Config, model string) error {
	path, err := configPath()
	if err != nil {
		return err
	}

	if !modelsEmbedding {
		cfg.LLM.Model = model
	} else {
		previous := cfg.Embedding.Model
		cfg.Embedding.Model = model
		if dims, ok := domain.EmbeddingDimensions()[baseModel(model)]; ok {
			cfg.Store.Dimensions = dims
			cfg.Embedding.Dimensions = 0
		}
		if previous != model {
			fmt.Fprintln(cmd.ErrOrStderr(),
				"Stored passages were embedded with "+previous+"; run 'milo ingest --clear PATH' to re-embed them.")
		}
	}

	if err := cfg.Validate(); err != nil {
		return err
	}
	if err := cfg.Save(path); err != nil {
		return fmt.Errorf("failed to save config: %w", err)
	}
	cmd.Printf("Switched to model: %s\n", model)
	return nil
}

// hasModel reports whether model is offered. An untagged name matches its
// ":latest" tag, as Ollama resolves it.
func hasModel(names []string, model string) bool {
	for _, name := range names {
		if sameModel(name, model) {
			return true
		}
	}
	return false
}

func sameModel(name, model string) bool {
	return name == model || name == model+":latest"
}

func baseModel(model string) string {
	name, _, _ := strings.Cut(model, ":")
	return name
}
