// Package status provides status bar components for the TUI.
package status

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/lipgloss"

	"github.com/custodia-labs/milo/internal/adapters/driving/tui/keymap"
	"github.com/custodia-labs/milo/internal/adapters/driving/tui/styles"
)

// State represents the current application state for display.
type State string

const (
	StateReady    State = "ready"
	StateThinking State = "thinking"
	StateError    State = "error"
)

// Bar displays the model, the last answer's fallback flag and key hints.
type Bar struct {
	styles   *styles.Styles
	keymap   *keymap.KeyMap
	state    State
	message  string
	model    string
	fellBack bool
	turns    int
	width    int
}

// NewBar creates a new status bar component.
func NewBar(s *styles.Styles, km *keymap.KeyMap) *Bar {
	if s == nil {
		s = styles.DefaultStyles()
	}
	if km == nil {
		km = keymap.DefaultKeyMap()
	}

	return &Bar{
		styles: s,
		keymap: km,
		state:  StateReady,
		width:  80,
	}
}

// View renders the status bar.
func (s *Bar) View() string {
	left := s.renderLeft()
	right := s.renderRight()

	padding := s.width - lipgloss.Width(left) - lipgloss.Width(right)
	if padding < 1 {
		padding = 1
	}

	return s.styles.StatusBar.Width(s.width).Render(
		left + strings.Repeat(" ", padding) + right,
	)
}

func (s *Bar) renderLeft() string {
	var parts []string
	if s.model != "" {
		parts = append(parts, s.styles.Muted.Render(s.model))
	}

	switch s.state {
	case StateThinking:
		parts = append(parts, s.styles.Muted.Render("Thinking..."))
	case StateError:
		msg := "Error"
		if s.message != "" {
			msg = fmt.Sprintf("Error: %s", s.message)
		}
		parts = append(parts, s.styles.Error.Render(msg))
	case StateReady:
		if s.turns > 0 {
			parts = append(parts, s.styles.Normal.Render(fmt.Sprintf("%d turns", s.turns)))
		} else {
			parts = append(parts, s.styles.Muted.Render("Ready"))
		}
		if s.fellBack {
			parts = append(parts, s.styles.Warning.Render("below threshold"))
		}
	}
	return strings.Join(parts, " | ")
}

func (s *Bar) renderRight() string {
	return s.styles.Muted.Render(hints(s.keymap.ShortHelp()))
}

func hints(bindings []key.Binding) string {
	out := make([]string, 0, len(bindings))
	for _, b := range bindings {
		h := b.Help()
		out = append(out, fmt.Sprintf("%s: %s", h.Key, h.Desc))
	}
	return strings.Join(out, " | ")
}

// SetState sets the current state.
func (s *Bar) SetState(state State) {
	s.state = state
}

// State returns the current state.
func (s *Bar) State() State {
	return s.state
}

// SetMessage sets the error message.
func (s *Bar) SetMessage(message string) {
	s.message = message
}

// Message returns the current message.
func (s *Bar) Message() string {
	return s.message
}

// SetModel sets the model name shown on the left.
func (s *Bar) SetModel(model string) {
	s.model = model
}

// SetFellBack records whether the last answer used below-threshold passages.
func (s *Bar) SetFellBack(fellBack bool) {
	s.fellBack = fellBack
}

// FellBack reports the last answer's fallback flag.
func (s *Bar) FellBack() bool {
	return s.fellBack
}

// SetTurns sets the number of answered questions.
func (s *Bar) SetTurns(n int) {
	s.turns = n
}

// SetWidth sets the status bar width.
func (s *Bar) SetWidth(width int) {
	s.width = width
}

// Width returns the current width.
func (s *Bar) Width() int {
	return s.width
}

// Clear resets the status bar to default state.
func (s *Bar) Clear() {
	s.state = StateReady
	s.message = ""
	s.fellBack = false
	s.turns = 0
}
