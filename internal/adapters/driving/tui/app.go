package tui

import (
	"context"
	"errors"
	"fmt"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/custodia-labs/milo/internal/adapters/driving/tui/keymap"
	"github.com/custodia-labs/milo/internal/adapters/driving/tui/messages"
	"github.com/custodia-labs/milo/internal/adapters/driving/tui/styles"
	"github.com/custodia-labs/milo/internal/adapters/driving/tui/views/chat"
)

// App is the TUI application following the Elm architecture.
// It implements tea.Model for use with Bubbletea.
type App struct {
	ports    *Ports
	ctx      context.Context
	chatView *chat.View

	width  int
	height int
	ready  bool
}

// Ensure App implements tea.Model.
var _ tea.Model = (*App)(nil)

// NewApp creates a new TUI application with the given ports.
func NewApp(ports *Ports) (*App, error) {
	if err := ports.Validate(); err != nil {
		return nil, fmt.Errorf("creating app: %w", err)
	}

	view := chat.NewView(styles.DefaultStyles(), keymap.DefaultKeyMap(), ports.Query, ports.Options)
	view.SetModel(ports.Model)

	return &App{
		ports:    ports,
		ctx:      context.Background(),
		chatView: view,
	}, nil
}

// WithContext sets the context for the app.
func (a *App) WithContext(ctx context.Context) *App {
	a.ctx = ctx
	a.chatView.WithContext(ctx)
	return a
}

// Init implements tea.Model.
func (a *App) Init() tea.Cmd {
	return tea.Batch(
		tea.SetWindowTitle("milo"),
		a.chatView.Init(),
	)
}

// Update implements tea.Model.
func (a *App) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		a.width = msg.Width
		a.height = msg.Height
		a.ready = true

	case messages.Quit:
		return a, tea.Quit
	}

	a.chatView, cmd = a.chatView.Update(msg)
	return a, cmd
}

// View implements tea.Model.
func (a *App) View() string {
	if !a.ready {
		return "Initialising..."
	}
	return a.chatView.View()
}

// Run starts the TUI and blocks until the user quits or ctx is cancelled.
func (a *App) Run() error {
	p := tea.NewProgram(a, tea.WithAltScreen(), tea.WithContext(a.ctx))
	_, err := p.Run()
	if errors.Is(err, tea.ErrProgramKilled) && a.ctx.Err() != nil {
		return nil
	}
	return err
}

// Ready returns whether the app has received its first window size.
func (a *App) Ready() bool {
	return a.ready
}

// Chat returns the chat view.
func (a *App) Chat() *chat.View {
	return a.chatView
}
