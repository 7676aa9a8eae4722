package cli

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/milo/internal/adapters/driving/tui"
	"github.com/custodia-labs/milo/internal/config"
	"github.com/custodia-labs/milo/internal/core/domain"
	"github.com/custodia-labs/milo/internal/core/ports/driven"
	"github.com/custodia-labs/milo/internal/core/ports/driving"
)

var (
	chatPlain     bool
	chatModel     string
	chatThreshold float64
	chatTopK      int
	chatLocale    string
)

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Hold a conversation about stored documents",
	Long: `Opens an interactive chat. Every question retrieves fresh passages; earlier
turns are sent along so follow-up questions work.

In a terminal this starts a full-screen interface. With --plain, or when
stdin is not a terminal, questions are read one per line until "exit" or
the end of input.`,
	Args: cobra.NoArgs,
	RunE: runChat,
}

func init() {
	chatCmd.Flags().BoolVar(&chatPlain, "plain", false, "line-by-line mode without the full-screen interface")
	chatCmd.Flags().StringVarP(&chatModel, "model", "m", "", "LLM model (default from config)")
	chatCmd.Flags().Float64VarP(&chatThreshold, "threshold", "t", -1, "minimum relevance 0-100 (default from config)")
	chatCmd.Flags().IntVarP(&chatTopK, "top-k", "k", 0, "number of passages to retrieve (default from config)")
	chatCmd.Flags().StringVar(&chatLocale, "locale", "", "prompt wording: default or alternate")
	rootCmd.AddCommand(chatCmd)
}

func adjustChat(cfg *config.Config) error {
	if chatModel != "" {
		cfg.LLM.Model = chatModel
	}
	if chatThreshold >= 0 {
		cfg.Retrieval.Threshold = chatThreshold
	}
	if chatTopK > 0 {
		cfg.Retrieval.TopK = chatTopK
	}
	if chatLocale != "" {
		cfg.Retrieval.Locale = chatLocale
	}
	return nil
}

func runChat(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	return withServices(ctx, needs{llm: true}, adjustChat, func(svc *Services) error {
		opts := queryOptions(svc.Config)

		if chatPlain || !isInteractive() {
			return lineChat(cmd, svc.Query, opts)
		}

		app, err := tui.NewApp(&tui.Ports{
			Query:   svc.Query,
			Options: opts,
			Model:   svc.LLMModel,
		})
		if err != nil {
			return err
		}
		return app.WithContext(ctx).Run()
	})
}

// lineChat reads one question per line from the command's input.
func lineChat(cmd *cobra.Command, query driving.QueryService, opts driving.QueryOptions) error {
	ctx := cmd.Context()
	reader := bufio.NewReader(cmd.InOrStdin())
	var history []driven.ChatMessage

	for {
		cmd.Print("> ")
		line, err := reader.ReadString('\n')
		question := strings.TrimSpace(line)
		if question == "" || question == "exit" || question == "quit" {
			if question == "" && err == nil {
				continue
			}
			return nil
		}

		answer, askErr := query.Chat(ctx, history, question, opts)
		switch {
		case askErr == nil:
			printFallbackNote(cmd, answer.FellBack, opts.Retrieval.Threshold)
			cmd.Println(answer.Text)
			if sources := answer.Sources(); len(sources) > 0 {
				cmd.Printf("Sources: %s\n", strings.Join(sources, ", "))
			}
			cmd.Println()
			history = append(history,
				driven.ChatMessage{Role: driven.RoleUser, Content: question},
				driven.ChatMessage{Role: driven.RoleAssistant, Content: answer.Text},
			)
		case domain.IsFatal(askErr):
			return askErr
		default:
			fmt.Fprintf(cmd.ErrOrStderr(), "Error: %v\n", describeError(askErr))
		}

		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
	}
}
