package cli

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/custodia-labs/milo/internal/adapters/driven/ai"
	"github.com/custodia-labs/milo/internal/config"
	"github.com/custodia-labs/milo/internal/core/domain"
)

var setupCmd = &cobra.Command{
	Use:   "setup",
	Short: "Interactive setup wizard",
	Long: `Walks through choosing a vector store, an embedding provider and an
LLM provider, checks that each one answers, writes the config file and
creates the store schema.

API keys are written to ~/.milo/.env, never to the config file.`,
	Args: cobra.NoArgs,
	RunE: runSetup,
}

func init() {
	rootCmd.AddCommand(setupCmd)
}

func runSetup(cmd *cobra.Command, _ []string) error {
	path, err := configPath()
	if err != nil {
		return err
	}
	cfg, err := loadConfig()
	if err != nil {
		// Start over from defaults rather than refuse to fix a broken file.
		cmd.Printf("Warning: %v\nStarting from defaults.\n\n", err)
		cfg = config.Default()
	}

	cmd.Println("milo Setup Wizard")
	cmd.Println("=================")
	cmd.Println()

	reader := bufio.NewReader(cmd.InOrStdin())

	cmd.Println("Step 1: Vector Store")
	cmd.Println("--------------------")
	configureStore(cmd, reader, cfg)

	cmd.Println("Step 2: Embedding Provider")
	cmd.Println("--------------------------")
	if err := configureEmbedding(cmd, reader, cfg); err != nil {
		return err
	}

	cmd.Println("Step 3: LLM Provider")
	cmd.Println("--------------------")
	if err := configureLLM(cmd, reader, cfg); err != nil {
		return err
	}

	if err := cfg.Validate(); err != nil {
		return err
	}
	if err := cfg.Save(path); err != nil {
		return fmt.Errorf("failed to save config: %w", err)
	}
	cmd.Printf("Configuration written to %s\n", path)

	cmd.Print("Preparing store... ")
	store, err := openStore(cmd.Context(), cfg)
	if err != nil {
		cmd.Println("FAILED")
		return describeError(err)
	}
	defer store.Close()
	if err := store.Setup(cmd.Context()); err != nil {
		cmd.Println("FAILED")
		return describeError(err)
	}
	cmd.Println("OK")

	cmd.Println()
	cmd.Println("Setup Complete!")
	cmd.Println("===============")
	cmd.Println("Next: milo ingest PATH")
	return nil
}

func configureStore(cmd *cobra.Command, reader *bufio.Reader, cfg *config.Config) {
	backends := domain.AllStoreBackends()
	current := 1
	for i, b := range backends {
		cmd.Printf("  %d. %s\n", i+1, b)
		if string(b) == cfg.Store.Backend {
			current = i + 1
		}
	}
	cmd.Printf("\nEnter choice [%d]: ", current)
	idx := parseChoice(readLine(reader), len(backends), current)
	cfg.Store.Backend = string(backends[idx-1])

	if backends[idx-1] == domain.StoreBackendPostgres {
		cmd.Printf("Connection string (or set %s) [%s]: ", config.EnvConnection, maskConnection(cfg.Store.Connection))
		if conn := readLine(reader); conn != "" {
			cfg.Store.Connection = conn
		}
	}
	cmd.Println()
}

//nolint:dupl // Mirrors configureLLM; kept apart for CLI flow clarity
func configureEmbedding(cmd *cobra.Command, reader *bufio.Reader, cfg *config.Config) error {
	provider := chooseProvider(cmd, reader, domain.AllEmbeddingProviders(), cfg.Embedding.Provider)
	if string(provider) != cfg.Embedding.Provider {
		cfg.Embedding.Model = domain.DefaultEmbeddingModels()[provider]
		cfg.Embedding.BaseURL = ""
	}
	cfg.Embedding.Provider = string(provider)

	cfg.Embedding.Model = prompt(cmd, reader, "Model name", cfg.Embedding.Model)
	cfg.Embedding.BaseURL = promptBaseURL(cmd, reader, provider, cfg.Embedding.BaseURL)

	dims := cfg.Store.Dimensions
	if known := domain.EmbeddingDimensions()[cfg.Embedding.Model]; known > 0 {
		dims = known
	}
	d, err := strconv.Atoi(prompt(cmd, reader, "Vector dimensions", strconv.Itoa(dims)))
	if err != nil || d <= 0 {
		return fmt.Errorf("%w: dimensions must be a positive number", domain.ErrInvalidInput)
	}
	cfg.Store.Dimensions = d
	cfg.Embedding.Dimensions = 0

	if err := ensureAPIKey(cmd, reader, provider); err != nil {
		return err
	}

	settings := cfg.EmbeddingSettings()
	cmd.Print("Validating configuration... ")
	if err := ai.NewConfigValidator().ValidateEmbedding(&settings); err != nil {
		cmd.Printf("FAILED: %v\n", err)
		return fmt.Errorf("embedding configuration validation failed: %w", err)
	}
	cmd.Println("OK")
	cmd.Printf("Embedding provider configured: %s (%s, %d dims)\n\n", provider.Description(), cfg.Embedding.Model, d)
	return nil
}

//nolint:dupl // Mirrors configureEmbedding; kept apart for CLI flow clarity
func configureLLM(cmd *cobra.Command, reader *bufio.Reader, cfg *config.Config) error {
	provider := chooseProvider(cmd, reader, domain.AllLLMProviders(), cfg.LLM.Provider)
	if string(provider) != cfg.LLM.Provider {
		cfg.LLM.Model = domain.DefaultLLMModels()[provider]
		cfg.LLM.BaseURL = ""
	}
	cfg.LLM.Provider = string(provider)

	cfg.LLM.Model = prompt(cmd, reader, "Model name", cfg.LLM.Model)
	cfg.LLM.BaseURL = promptBaseURL(cmd, reader, provider, cfg.LLM.BaseURL)

	if err := ensureAPIKey(cmd, reader, provider); err != nil {
		return err
	}

	settings := cfg.LLMSettings()
	cmd.Print("Validating configuration... ")
	if err := ai.NewConfigValidator().ValidateLLM(&settings); err != nil {
		cmd.Printf("FAILED: %v\n", err)
		return fmt.Errorf("LLM configuration validation failed: %w", err)
	}
	cmd.Println("OK")
	cmd.Printf("LLM provider configured: %s (%s)\n\n", provider.Description(), cfg.LLM.Model)
	return nil
}

func chooseProvider(
	cmd *cobra.Command, reader *bufio.Reader, providers []domain.AIProvider, current string,
) domain.AIProvider {
	def := 1
	for i, p := range providers {
		cmd.Printf("  %d. %s\n", i+1, p.Description())
		if string(p) == current {
			def = i + 1
		}
	}
	cmd.Printf("\nEnter choice [%d]: ", def)
	return providers[parseChoice(readLine(reader), len(providers), def)-1]
}

func promptBaseURL(cmd *cobra.Command, reader *bufio.Reader, provider domain.AIProvider, current string) string {
	if provider != domain.AIProviderOllama {
		return current
	}
	if current == "" {
		current = config.DefaultOllamaURL
	}
	return prompt(cmd, reader, "Ollama URL", current)
}

// ensureAPIKey asks for a key the environment lacks and stores it in
// ~/.milo/.env.
func ensureAPIKey(cmd *cobra.Command, reader *bufio.Reader, provider domain.AIProvider) error {
	if !provider.RequiresAPIKey() {
		return nil
	}
	envName := config.EnvOpenAIKey
	if provider == domain.AIProviderAnthropic {
		envName = config.EnvAnthropicKey
	}
	if key := os.Getenv(envName); key != "" {
		cmd.Printf("Using %s from the environment (%s)\n", envName, maskAPIKey(key))
		return nil
	}

	cmd.Printf("Enter API key (%s): ", envName)
	key := readPassword(reader)
	cmd.Println()
	if key == "" {
		return errors.New("API key is required for this provider")
	}

	path, err := config.DotEnvPath()
	if err != nil {
		return err
	}
	if err := config.SetDotEnv(path, envName, key); err != nil {
		return err
	}
	cmd.Printf("Saved %s to %s\n", envName, path)
	return os.Setenv(envName, key)
}

// Helper functions.

func prompt(cmd *cobra.Command, reader *bufio.Reader, label, def string) string {
	cmd.Printf("%s [%s]: ", label, def)
	if v := readLine(reader); v != "" {
		return v
	}
	return def
}

//nolint:errcheck // CLI helper, error ignored for UX
func readLine(reader *bufio.Reader) string {
	input, _ := reader.ReadString('\n')
	return strings.TrimSpace(input)
}

func parseChoice(input string, maxVal, defaultVal int) int {
	if input == "" {
		return defaultVal
	}
	val, err := strconv.Atoi(input)
	if err != nil || val < 1 || val > maxVal {
		return defaultVal
	}
	return val
}

// readPassword reads without echo when stdin is a terminal.
func readPassword(reader *bufio.Reader) string {
	if isInteractive() {
		password, err := term.ReadPassword(int(os.Stdin.Fd()))
		if err == nil {
			return strings.TrimSpace(string(password))
		}
	}
	return readLine(reader)
}

func maskAPIKey(key string) string {
	if len(key) <= 8 {
		return "****"
	}
	return key[:4] + "..." + key[len(key)-4:]
}

// maskConnection hides the password of a postgres URL.
func maskConnection(conn string) string {
	if conn == "" {
		return "not set"
	}
	scheme, rest, ok := strings.Cut(conn, "://")
	if !ok {
		return conn
	}
	creds, host, ok := strings.Cut(rest, "@")
	if !ok {
		return conn
	}
	user, _, hasPassword := strings.Cut(creds, ":")
	if !hasPassword {
		return conn
	}
	return scheme + "://" + user + ":****@" + host
}
