package cli

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/milo/internal/config"
	"github.com/custodia-labs/milo/internal/core/domain"
	"github.com/custodia-labs/milo/internal/core/ports/driving"
	"github.com/custodia-labs/milo/internal/core/services"
)

var (
	queryModel       string
	queryThreshold   float64
	queryTopK        int
	queryConnection  string
	queryLocale      string
	queryJSON        bool
	queryContextOnly bool
	queryCite        bool
)

var queryCmd = &cobra.Command{
	Use:   "query [question]",
	Short: "Answer a question from stored documents",
	Long: `Embeds the question, retrieves the most similar passages and asks the
language model to answer from them.

Passages scoring below --threshold (0-100) are dropped. When none reach it,
the closest passages are used anyway and milo says so.

With --cite the model answers per source document, and each answer is
printed with the document it came from.`,
	Args: cobra.ExactArgs(1),
	RunE: runQuery,
}

func init() {
	queryCmd.Flags().StringVarP(&queryModel, "model", "m", "", "LLM model (default from config)")
	queryCmd.Flags().Float64VarP(&queryThreshold, "threshold", "t", -1, "minimum relevance 0-100 (default from config)")
	queryCmd.Flags().IntVarP(&queryTopK, "top-k", "k", 0, "number of passages to retrieve (default from config)")
	queryCmd.Flags().StringVar(&queryConnection, "connection", "", "postgres connection string")
	queryCmd.Flags().StringVar(&queryLocale, "locale", "", "prompt wording: default or alternate")
	queryCmd.Flags().BoolVar(&queryJSON, "json", false, "output the result as JSON")
	queryCmd.Flags().BoolVar(&queryContextOnly, "context-only", false, "print the retrieved context without generating")
	queryCmd.Flags().BoolVar(&queryCite, "cite", false, "answer per source document")
	queryCmd.MarkFlagsMutuallyExclusive("context-only", "cite")
	rootCmd.AddCommand(queryCmd)
}

func adjustQuery(cfg *config.Config) error {
	if queryModel != "" {
		cfg.LLM.Model = queryModel
	}
	if queryConnection != "" {
		cfg.Store.Connection = queryConnection
	}
	if queryThreshold >= 0 {
		cfg.Retrieval.Threshold = queryThreshold
	}
	if queryTopK > 0 {
		cfg.Retrieval.TopK = queryTopK
	}
	if queryLocale != "" {
		cfg.Retrieval.Locale = queryLocale
	}
	return nil
}

func queryOptions(cfg *config.Config) driving.QueryOptions {
	return driving.QueryOptions{
		Retrieval: cfg.RetrievalOptions(),
		Locale:    cfg.Locale(),
		Cited:     queryCite,
	}
}

func runQuery(cmd *cobra.Command, args []string) error {
	question := strings.TrimSpace(args[0])
	if question == "" {
		return fmt.Errorf("%w: question is empty", domain.ErrInvalidInput)
	}
	ctx := cmd.Context()

	return withServices(ctx, needs{llm: !queryContextOnly}, adjustQuery, func(svc *Services) error {
		opts := queryOptions(svc.Config)

		if queryContextOnly {
			retrieval, err := svc.Query.Retrieve(ctx, question, opts)
			if err != nil {
				return err
			}
			if queryJSON {
				return printJSON(cmd, retrieval)
			}
			printFallbackNote(cmd, retrieval.FellBack, retrieval.Threshold)
			cmd.Print(services.FormatContext(retrieval.Results, opts.Locale))
			return nil
		}

		answer, err := svc.Query.Ask(ctx, question, opts)
		if err != nil {
			return err
		}
		if queryJSON {
			return printJSON(cmd, answerJSON(answer))
		}
		printFallbackNote(cmd, answer.FellBack, opts.Retrieval.Threshold)
		cmd.Println(answer.Text)
		if opts.Cited {
			return nil
		}
		if sources := answer.Sources(); len(sources) > 0 {
			cmd.Println()
			cmd.Println("Sources:")
			for _, s := range sources {
				cmd.Printf("  %s\n", s)
			}
		}
		return nil
	})
}

func printFallbackNote(cmd *cobra.Command, fellBack bool, threshold float64) {
	if fellBack {
		fmt.Fprintf(cmd.ErrOrStderr(),
			"No documents met the %.0f%% threshold; using the closest matches.\n", threshold)
	}
}

type answerOutput struct {
	Question string                   `json:"question"`
	Answer   string                   `json:"answer"`
	Model    string                   `json:"model"`
	FellBack bool                     `json:"fell_back"`
	Sources  []string                 `json:"sources"`
	Context  []domain.RetrievalResult `json:"context"`

	Citations []domain.Citation `json:"citations,omitempty"`
	NoAnswer  bool              `json:"no_answer,omitempty"`
}

func answerJSON(a *domain.Answer) answerOutput {
	return answerOutput{
		Question: a.Question,
		Answer:   a.Text,
		Model:    a.Model,
		FellBack: a.FellBack,
		Sources:  a.Sources(),
		Context:  a.Context,

		Citations: a.Citations,
		NoAnswer:  a.NoAnswer,
	}
}

func printJSON(cmd *cobra.Command, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal result: %w", err)
	}
	cmd.Println(string(data))
	return nil
}
