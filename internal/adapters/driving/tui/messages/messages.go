// Package messages defines Bubbletea message types for the TUI.
package messages

import (
	"github.com/custodia-labs/milo/internal/core/domain"
)

// QuestionSubmitted is sent when the user sends a question.
type QuestionSubmitted struct {
	Question string
}

// AnswerReceived carries the generated answer back to the model.
type AnswerReceived struct {
	Question string
	Answer   *domain.Answer
	Err      error
}

// ErrorOccurred signals that an error happened.
type ErrorOccurred struct {
	Err error
}

// Quit signals the application should exit.
type Quit struct{}
