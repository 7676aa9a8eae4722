package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/milo/internal/config"
	"github.com/custodia-labs/milo/internal/connectors/filesystem"
	"github.com/custodia-labs/milo/internal/core/domain"
	"github.com/custodia-labs/milo/internal/core/ports/driving"
	"github.com/custodia-labs/milo/internal/logger"
)

var (
	ingestClear     bool
	ingestIndex     bool
	ingestWatch     bool
	ingestStrategy  string
	ingestChunkSize int
	ingestOverlap   int
)

var ingestCmd = &cobra.Command{
	Use:   "ingest [path...]",
	Short: "Load documents into the vector store",
	Long: `Loads .txt, .md, .json and .pdf files, splits them into overlapping
chunks, embeds each chunk and stores it.

Ingestion is additive: running it twice stores the documents twice.
Use --clear to empty the store first. Unreadable files are reported and
skipped.

With --watch, milo keeps running and re-ingests files as they are created
or modified, replacing their earlier records.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runIngest,
}

func init() {
	ingestCmd.Flags().BoolVar(&ingestClear, "clear", false, "delete all stored records before loading")
	ingestCmd.Flags().BoolVar(&ingestIndex, "index", false, "build the similarity index after loading")
	ingestCmd.Flags().BoolVarP(&ingestWatch, "watch", "w", false, "keep watching the paths for changes")
	ingestCmd.Flags().StringVar(&ingestStrategy, "strategy", "", "chunking strategy: fixed or llm")
	ingestCmd.Flags().IntVar(&ingestChunkSize, "chunk-size", 0, "maximum chunk length in bytes")
	ingestCmd.Flags().IntVar(&ingestOverlap, "overlap", -1, "bytes shared by consecutive chunks")
	rootCmd.AddCommand(ingestCmd)
}

func adjustChunking(cfg *config.Config) error {
	if ingestStrategy != "" {
		cfg.Chunking.Strategy = ingestStrategy
	}
	if ingestChunkSize > 0 {
		cfg.Chunking.ChunkSize = ingestChunkSize
	}
	if ingestOverlap >= 0 {
		cfg.Chunking.Overlap = ingestOverlap
	}
	return nil
}

func runIngest(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	n := needs{llm: ingestStrategy == string(domain.ChunkStrategyLLM)}

	return withServices(ctx, n, adjustChunking, func(svc *Services) error {
		opts := driving.IngestOptions{Clear: ingestClear}
		for i, path := range args {
			// The index is built once, after the last path.
			opts.BuildIndex = ingestIndex && i == len(args)-1
			report, err := svc.Ingest.IngestPath(ctx, path, opts)
			if report != nil {
				printReport(cmd, path, report)
			}
			if err != nil {
				return fmt.Errorf("ingest %s: %w", path, err)
			}
			opts.Clear = false
		}

		if !ingestWatch {
			return nil
		}
		return watchPaths(ctx, cmd, svc, args)
	})
}

func printReport(cmd *cobra.Command, path string, report *driving.IngestReport) {
	cmd.Printf("Ingested %s: %d documents, %d chunks in %s (run %s)\n",
		path, report.Documents, report.Chunks, report.Duration().Round(time.Millisecond), report.RunID)
	if len(report.Failures) > 0 {
		cmd.Printf("Skipped %d files:\n", len(report.Failures))
		for _, f := range report.Failures {
			cmd.Printf("  %s: %v\n", f.Path, f.Err)
		}
	}
}

// watchPaths re-ingests changed files under every directory in paths until
// ctx is cancelled. Changes are ingested one at a time.
func watchPaths(ctx context.Context, cmd *cobra.Command, svc *Services, paths []string) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	merged := make(chan filesystem.Change)
	var wg sync.WaitGroup
	for _, path := range paths {
		info, err := os.Stat(path)
		if err != nil {
			return err
		}
		if !info.IsDir() {
			logger.Warn("not watching %s: not a directory", path)
			continue
		}

		w := filesystem.NewWatcher(path, svc.Loader)
		changes, err := w.Watch(ctx)
		if err != nil {
			return fmt.Errorf("watch %s: %w", path, err)
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer w.Close()
			for c := range changes {
				select {
				case merged <- c:
				case <-ctx.Done():
					return
				}
			}
		}()
	}
	go func() {
		wg.Wait()
		close(merged)
	}()

	cmd.Println("Watching for changes. Press Ctrl+C to stop.")
	for c := range merged {
		n, err := svc.Ingest.IngestFile(ctx, c.Path)
		switch {
		case errors.Is(err, domain.ErrLoad):
			logger.Warn("skipping %s: %v", c.Path, err)
		case err != nil:
			return fmt.Errorf("re-ingest %s: %w", c.Path, err)
		default:
			cmd.Printf("%s %s: %d chunks\n", c.Type, c.Path, n)
		}
	}
	return nil
}
