package cli

import (
	"bufio"
	"errors"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"
)

var clearYes bool

var clearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Delete every stored record",
	Long: `Deletes all stored chunks and their embeddings.
Asks for confirmation unless --yes is given.`,
	Args: cobra.NoArgs,
	RunE: runClear,
}

func init() {
	clearCmd.Flags().BoolVarP(&clearYes, "yes", "y", false, "do not ask for confirmation")
	rootCmd.AddCommand(clearCmd)
}

// isInteractive reports whether stdin is a terminal. Tests replace it.
var isInteractive = func() bool {
	return term.IsTerminal(int(os.Stdin.Fd()))
}

func runClear(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	return withServices(ctx, needs{}, nil, func(svc *Services) error {
		count, err := svc.Store.Count(ctx)
		if err != nil {
			return err
		}
		if count == 0 {
			cmd.Println("The store is already empty.")
			return nil
		}

		if !clearYes {
			if !isInteractive() {
				return errors.New("refusing to clear without --yes when stdin is not a terminal")
			}
			cmd.Printf("Delete all %d records? [y/N]: ", count)
			answer := strings.ToLower(readLine(bufio.NewReader(cmd.InOrStdin())))
			if answer != "y" && answer != "yes" {
				cmd.Println("Aborted.")
				return nil
			}
		}

		if err := svc.Ingest.Clear(ctx); err != nil {
			return err
		}
		cmd.Printf("Deleted %d records.\n", count)
		return nil
	})
}
