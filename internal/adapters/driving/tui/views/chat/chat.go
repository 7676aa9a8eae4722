// Package chat provides the conversation view for the TUI.
package chat

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/custodia-labs/milo/internal/adapters/driving/tui/components/input"
	"github.com/custodia-labs/milo/internal/adapters/driving/tui/components/status"
	"github.com/custodia-labs/milo/internal/adapters/driving/tui/keymap"
	"github.com/custodia-labs/milo/internal/adapters/driving/tui/messages"
	"github.com/custodia-labs/milo/internal/adapters/driving/tui/styles"
	"github.com/custodia-labs/milo/internal/core/domain"
	"github.com/custodia-labs/milo/internal/core/ports/driven"
	"github.com/custodia-labs/milo/internal/core/ports/driving"
	"github.com/custodia-labs/milo/internal/core/services"
)

// turn is one question and its outcome.
type turn struct {
	question string
	answer   *domain.Answer
	err      error
}

// View is the chat transcript, question box and status bar.
type View struct {
	styles     *styles.Styles
	keymap     *keymap.KeyMap
	input      *input.QuestionInput
	transcript viewport.Model
	statusbar  *status.Bar

	query driving.QueryService
	opts  driving.QueryOptions
	ctx   context.Context

	// history holds answered turns in the order sent to the model.
	history []driven.ChatMessage
	turns   []turn
	pending string

	showSources bool
	showHelp    bool
	width       int
	height      int
}

// NewView creates a chat view over query.
func NewView(
	s *styles.Styles,
	km *keymap.KeyMap,
	query driving.QueryService,
	opts driving.QueryOptions,
) *View {
	if s == nil {
		s = styles.DefaultStyles()
	}
	if km == nil {
		km = keymap.DefaultKeyMap()
	}

	v := &View{
		styles:     s,
		keymap:     km,
		input:      input.NewQuestionInput(s),
		transcript: viewport.New(80, 16),
		statusbar:  status.NewBar(s, km),
		query:      query,
		opts:       opts,
		ctx:        context.Background(),
	}
	v.SetDimensions(80, 24)
	return v
}

// WithContext sets the context passed to the query service.
func (v *View) WithContext(ctx context.Context) *View {
	v.ctx = ctx
	return v
}

// SetModel shows the generator's name in the status bar.
func (v *View) SetModel(model string) {
	v.statusbar.SetModel(model)
}

// Init initialises the view.
func (v *View) Init() tea.Cmd {
	return v.input.Init()
}

// Update handles messages for the chat view.
func (v *View) Update(msg tea.Msg) (*View, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		v.SetDimensions(msg.Width, msg.Height)
		return v, nil

	case tea.KeyMsg:
		return v.handleKeyMsg(msg)

	case messages.QuestionSubmitted:
		return v, v.submit(msg.Question)

	case messages.AnswerReceived:
		v.handleAnswer(msg)
		return v, nil

	case messages.ErrorOccurred:
		v.statusbar.SetState(status.StateError)
		v.statusbar.SetMessage(msg.Err.Error())
		return v, nil
	}

	var cmd tea.Cmd
	v.input, cmd = v.input.Update(msg)
	return v, cmd
}

func (v *View) handleKeyMsg(msg tea.KeyMsg) (*View, tea.Cmd) {
	switch {
	case key.Matches(msg, v.keymap.Quit):
		return v, tea.Quit

	case key.Matches(msg, v.keymap.Help):
		v.showHelp = !v.showHelp
		return v, nil

	case key.Matches(msg, v.keymap.Sources):
		v.showSources = !v.showSources
		v.refresh()
		return v, nil

	case key.Matches(msg, v.keymap.Reset):
		v.Reset()
		return v, nil

	case key.Matches(msg, v.keymap.ScrollUp), key.Matches(msg, v.keymap.ScrollDown):
		var cmd tea.Cmd
		v.transcript, cmd = v.transcript.Update(msg)
		return v, cmd

	case key.Matches(msg, v.keymap.Send):
		question := v.input.Value()
		if question == "" || v.Busy() {
			return v, nil
		}
		v.input.Reset()
		return v, v.submit(question)
	}

	var cmd tea.Cmd
	v.input, cmd = v.input.Update(msg)
	return v, cmd
}

// submit starts answering question and returns the command that does it.
func (v *View) submit(question string) tea.Cmd {
	if v.Busy() {
		return nil
	}
	v.pending = question
	v.statusbar.SetState(status.StateThinking)
	v.refresh()

	ctx, query, opts := v.ctx, v.query, v.opts
	history := append([]driven.ChatMessage(nil), v.history...)
	return func() tea.Msg {
		answer, err := query.Chat(ctx, history, question, opts)
		return messages.AnswerReceived{Question: question, Answer: answer, Err: err}
	}
}

func (v *View) handleAnswer(msg messages.AnswerReceived) {
	v.pending = ""
	v.turns = append(v.turns, turn{question: msg.Question, answer: msg.Answer, err: msg.Err})

	if msg.Err != nil {
		v.statusbar.SetState(status.StateError)
		v.statusbar.SetMessage(msg.Err.Error())
	} else {
		v.history = append(v.history,
			driven.ChatMessage{Role: driven.RoleUser, Content: msg.Question},
			driven.ChatMessage{Role: driven.RoleAssistant, Content: msg.Answer.Text},
		)
		v.statusbar.SetState(status.StateReady)
		v.statusbar.SetMessage("")
		v.statusbar.SetFellBack(msg.Answer.FellBack)
	}
	v.statusbar.SetTurns(len(v.history) / 2)
	v.refresh()
}

// refresh re-renders the transcript and scrolls to the latest turn.
func (v *View) refresh() {
	v.transcript.SetContent(v.render())
	v.transcript.GotoBottom()
}

func (v *View) render() string {
	if len(v.turns) == 0 && v.pending == "" {
		return v.styles.Muted.Render("Ask a question about your ingested documents.")
	}

	var b strings.Builder
	for _, t := range v.turns {
		b.WriteString(v.renderQuestion(t.question))
		if t.err != nil {
			b.WriteString(v.styles.Error.Render("error: " + t.err.Error()))
			b.WriteString("\n\n")
			continue
		}
		b.WriteString(v.renderAnswer(t.answer))
	}
	if v.pending != "" {
		b.WriteString(v.renderQuestion(v.pending))
		b.WriteString(v.styles.Muted.Render("..."))
	}
	return strings.TrimRight(b.String(), "\n")
}

func (v *View) renderQuestion(q string) string {
	return v.styles.User.Render("you") + " " + v.wrap(q) + "\n"
}

func (v *View) renderAnswer(a *domain.Answer) string {
	var b strings.Builder
	b.WriteString(v.styles.Assistant.Render("milo") + " " + v.wrap(a.Text) + "\n")

	if a.FellBack {
		b.WriteString(v.styles.Warning.Render(
			fmt.Sprintf("  no passage met the %.0f%% threshold; closest matches used", v.opts.Retrieval.Threshold)))
		b.WriteString("\n")
	}

	if v.showSources {
		for _, r := range a.Context {
			b.WriteString(v.styles.Relevance(r.Similarity, v.opts.Retrieval.Threshold).Render(
				fmt.Sprintf("  %s (%.1f%%)", services.SourceLabel(r.Metadata), r.Similarity)))
			b.WriteString("\n")
		}
	} else if sources := a.Sources(); len(sources) > 0 {
		b.WriteString(v.styles.Muted.Render("  sources: " + strings.Join(sources, ", ")))
		b.WriteString("\n")
	}
	b.WriteString("\n")
	return b.String()
}

func (v *View) wrap(s string) string {
	width := v.transcript.Width - 6
	if width < 20 {
		return s
	}
	return lipgloss.NewStyle().Width(width).Render(s)
}

// View renders the chat view.
func (v *View) View() string {
	header := v.styles.Title.Render("milo") + " " +
		v.styles.Muted.Render(fmt.Sprintf("top %d, threshold %.0f%%", v.opts.Retrieval.TopK, v.opts.Retrieval.Threshold))

	body := v.transcript.View()
	if v.showHelp {
		body = v.helpView()
	}

	return lipgloss.JoinVertical(lipgloss.Left,
		header,
		body,
		v.input.View(),
		v.statusbar.View(),
	)
}

func (v *View) helpView() string {
	var lines []string
	for _, group := range v.keymap.FullHelp() {
		for _, b := range group {
			h := b.Help()
			lines = append(lines, fmt.Sprintf("%-8s %s", h.Key, h.Desc))
		}
	}
	return v.styles.Help.Render(strings.Join(lines, "\n"))
}

// SetDimensions sizes the transcript to fill what the other parts leave.
func (v *View) SetDimensions(width, height int) {
	v.width = width
	v.height = height

	// header, input box (3) and status bar
	transcriptHeight := height - 5
	if transcriptHeight < 3 {
		transcriptHeight = 3
	}
	v.transcript.Width = width
	v.transcript.Height = transcriptHeight
	v.input.SetWidth(width)
	v.statusbar.SetWidth(width)
	v.refresh()
}

// Reset forgets the conversation.
func (v *View) Reset() {
	v.history = nil
	v.turns = nil
	v.pending = ""
	v.input.Reset()
	v.statusbar.Clear()
	v.refresh()
}

// Busy reports whether an answer is being generated.
func (v *View) Busy() bool {
	return v.pending != ""
}

// History returns the conversation sent with the next question.
func (v *View) History() []driven.ChatMessage {
	return v.history
}

// Transcript returns the rendered conversation.
func (v *View) Transcript() string {
	return v.render()
}

// ShowingSources reports whether passage lists are expanded.
func (v *View) ShowingSources() bool {
	return v.showSources
}

// ShowingHelp reports whether the help overlay is visible.
func (v *View) ShowingHelp() bool {
	return v.showHelp
}

// StatusBar exposes the status bar.
func (v *View) StatusBar() *status.Bar {
	return v.statusbar
}
