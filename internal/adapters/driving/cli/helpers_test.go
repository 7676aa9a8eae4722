package cli

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/milo/internal/adapters/driven/storage/memory"
	"github.com/custodia-labs/milo/internal/config"
	"github.com/custodia-labs/milo/internal/core/domain"
	"github.com/custodia-labs/milo/internal/core/ports/driven"
	"github.com/custodia-labs/milo/internal/core/ports/driving"
)

// fakeIngest records the calls commands make.
type fakeIngest struct {
	paths   []string
	opts    []driving.IngestOptions
	report  *driving.IngestReport
	err     error
	cleared bool
	indexed bool
}

func (f *fakeIngest) IngestPath(_ context.Context, path string, opts driving.IngestOptions) (*driving.IngestReport, error) {
	f.paths = append(f.paths, path)
	f.opts = append(f.opts, opts)
	if opts.Clear {
		f.cleared = true
	}
	if opts.BuildIndex {
		f.indexed = true
	}
	if f.report != nil {
		return f.report, f.err
	}
	start := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	return &driving.IngestReport{
		RunID:      "run-1",
		Documents:  2,
		Chunks:     7,
		StartedAt:  start,
		FinishedAt: start.Add(1500 * time.Millisecond),
	}, f.err
}

func (f *fakeIngest) IngestFile(context.Context, string) (int, error) { return 1, f.err }

func (f *fakeIngest) IngestDocument(context.Context, domain.Document) (int, error) { return 1, f.err }

func (f *fakeIngest) Clear(context.Context) error {
	f.cleared = true
	return f.err
}

func (f *fakeIngest) BuildIndex(context.Context) error {
	f.indexed = true
	return f.err
}

// fakeQuery answers from canned values and records the options it saw.
type fakeQuery struct {
	retrieval *domain.Retrieval
	answer    *domain.Answer
	err       error

	questions []string
	opts      driving.QueryOptions
	histories [][]driven.ChatMessage
}

func (f *fakeQuery) Retrieve(_ context.Context, q string, opts driving.QueryOptions) (*domain.Retrieval, error) {
	f.questions = append(f.questions, q)
	f.opts = opts
	if f.err != nil {
		return nil, f.err
	}
	return f.retrieval, nil
}

func (f *fakeQuery) Ask(ctx context.Context, q string, opts driving.QueryOptions) (*domain.Answer, error) {
	return f.Chat(ctx, nil, q, opts)
}

func (f *fakeQuery) Chat(
	_ context.Context, history []driven.ChatMessage, q string, opts driving.QueryOptions,
) (*domain.Answer, error) {
	f.questions = append(f.questions, q)
	f.opts = opts
	f.histories = append(f.histories, history)
	if f.err != nil {
		return nil, f.err
	}
	a := *f.answer
	a.Question = q
	return &a, nil
}

// testEnv is what setupTestServices wires into the commands.
type testEnv struct {
	ingest *fakeIngest
	query  *fakeQuery
	store  driven.VectorStore
	needs  []needs
	cfg    *config.Config
}

func samplePassages() []domain.RetrievalResult {
	return []domain.RetrievalResult{
		{
			ChunkID:    1,
			Content:    "Invoices are sent on the first working day.",
			Similarity: 84.2,
			Metadata:   domain.Metadata{Source: "/docs/billing.md", Filename: "billing.md", Type: "md"},
		},
		{
			ChunkID:    2,
			Content:    "Late invoices accrue interest.",
			Similarity: 76.9,
			Metadata:   domain.Metadata{Source: "/docs/terms.pdf", Filename: "terms.pdf", Type: "pdf"},
		},
	}
}

// setupTestServices isolates HOME and the environment and replaces
// openServices with fakes. Flags are reset when the test ends.
func setupTestServices(t *testing.T) *testEnv {
	t.Helper()

	home := t.TempDir()
	t.Setenv("HOME", home)
	for _, name := range []string{
		config.EnvStore, config.EnvConnection, config.EnvOllamaBaseURL,
		config.EnvOpenAIKey, config.EnvAnthropicKey,
	} {
		t.Setenv(name, "")
	}
	t.Chdir(home)

	env := &testEnv{
		ingest: &fakeIngest{},
		query: &fakeQuery{
			retrieval: &domain.Retrieval{Results: samplePassages(), Threshold: 70},
			answer: &domain.Answer{
				Text:    "Invoices go out on the first working day.",
				Model:   "test-model",
				Context: samplePassages(),
			},
		},
		store: memory.NewVectorStore(4),
	}

	original := openServices
	openServices = func(_ context.Context, cfg *config.Config, n needs) (*Services, error) {
		env.needs = append(env.needs, n)
		env.cfg = cfg
		return &Services{
			Config:   cfg,
			Ingest:   env.ingest,
			Query:    env.query,
			Store:    env.store,
			LLMModel: "test-model",
		}, nil
	}
	t.Cleanup(func() {
		openServices = original
		resetFlags(rootCmd)
	})
	return env
}

// setInteractive overrides terminal detection for the test.
func setInteractive(t *testing.T, v bool) {
	t.Helper()
	original := isInteractive
	isInteractive = func() bool { return v }
	t.Cleanup(func() { isInteractive = original })
}

// resetFlags restores every flag to its default so commands do not leak
// state between tests.
func resetFlags(cmd *cobra.Command) {
	reset := func(f *pflag.Flag) {
		_ = f.Value.Set(f.DefValue)
		f.Changed = false
	}
	cmd.Flags().VisitAll(reset)
	cmd.PersistentFlags().VisitAll(reset)
	for _, c := range cmd.Commands() {
		resetFlags(c)
	}
}

// execute runs the root command with args and returns stdout and stderr.
func execute(t *testing.T, stdin string, args ...string) (string, string, error) {
	t.Helper()

	stdout, stderr := new(bytes.Buffer), new(bytes.Buffer)
	rootCmd.SetOut(stdout)
	rootCmd.SetErr(stderr)
	rootCmd.SetIn(strings.NewReader(stdin))
	rootCmd.SetArgs(args)
	defer func() {
		rootCmd.SetArgs(nil)
		rootCmd.SetIn(nil)
		resetFlags(rootCmd)
	}()

	err := rootCmd.ExecuteContext(context.Background())
	return stdout.String(), stderr.String(), err
}

func requireExecute(t *testing.T, stdin string, args ...string) (string, string) {
	t.Helper()
	out, errOut, err := execute(t, stdin, args...)
	require.NoError(t, err, "stderr: %s", errOut)
	return out, errOut
}
