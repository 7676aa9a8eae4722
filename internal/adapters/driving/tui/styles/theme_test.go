package styles

import (
	"testing"

	"github.com/charmbracelet/lipgloss"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultTheme(t *testing.T) {
	theme := DefaultTheme()

	require.NotNil(t, theme)
	assert.NotEmpty(t, string(theme.Primary))
	assert.NotEmpty(t, string(theme.Secondary))
	assert.NotEmpty(t, string(theme.Foreground))
	assert.NotEmpty(t, string(theme.Muted))
	assert.NotEmpty(t, string(theme.Warning))
	assert.NotEmpty(t, string(theme.Error))
	assert.NotEmpty(t, string(theme.Border))
	assert.NotEmpty(t, string(theme.Bar))
}

func TestDefaultTheme_SpeakersAreDistinct(t *testing.T) {
	theme := DefaultTheme()
	assert.NotEqual(t, theme.Primary, theme.Secondary)
	assert.NotEqual(t, theme.Warning, theme.Error)
}

func TestNewStyles(t *testing.T) {
	t.Run("with theme", func(t *testing.T) {
		theme := DefaultTheme()
		s := NewStyles(theme)
		require.NotNil(t, s)
		assert.Equal(t, theme, s.Theme())
	})

	t.Run("nil theme uses default", func(t *testing.T) {
		s := NewStyles(nil)
		require.NotNil(t, s)
		assert.Equal(t, DefaultTheme(), s.Theme())
	})
}

func TestStyles_AllStylesInitialised(t *testing.T) {
	s := DefaultStyles()

	for name, style := range map[string]lipgloss.Style{
		"Title":      s.Title,
		"User":       s.User,
		"Assistant":  s.Assistant,
		"Normal":     s.Normal,
		"Muted":      s.Muted,
		"Warning":    s.Warning,
		"Error":      s.Error,
		"InputField": s.InputField,
		"StatusBar":  s.StatusBar,
		"Help":       s.Help,
	} {
		t.Run(name, func(t *testing.T) {
			assert.NotEqual(t, lipgloss.Style{}, style)
			assert.Contains(t, style.Render("test text"), "test text")
		})
	}
}

func TestStyles_Relevance(t *testing.T) {
	s := DefaultStyles()

	above := s.Relevance(82.5, 70)
	at := s.Relevance(70, 70)
	below := s.Relevance(64.9, 70)

	assert.Equal(t, lipgloss.TerminalColor(s.Theme().Match), above.GetForeground())
	assert.Equal(t, lipgloss.TerminalColor(s.Theme().Match), at.GetForeground())
	assert.Equal(t, lipgloss.TerminalColor(s.Theme().Warning), below.GetForeground())
}
