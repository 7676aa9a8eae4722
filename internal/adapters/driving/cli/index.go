package cli

import (
	"github.com/spf13/cobra"
)

var indexCmd = &cobra.Command{
	Use:   "index",
	Short: "Build the similarity index",
	Long: `Builds the approximate nearest-neighbour index on stored embeddings.
Run it after a large ingest. Stores without an index accept the command
and do nothing.`,
	Args: cobra.NoArgs,
	RunE: runIndex,
}

func init() {
	rootCmd.AddCommand(indexCmd)
}

func runIndex(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	return withServices(ctx, needs{}, nil, func(svc *Services) error {
		if err := svc.Ingest.BuildIndex(ctx); err != nil {
			return err
		}
		cmd.Printf("Index ready on %s store.\n", svc.Config.Store.Backend)
		return nil
	})
}
