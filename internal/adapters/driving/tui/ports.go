// Package tui provides the interactive chat interface for milo.
// It implements a driving adapter following hexagonal architecture principles.
package tui

import (
	"github.com/custodia-labs/milo/internal/core/ports/driving"
)

// Ports aggregates the driving ports required by the TUI.
type Ports struct {
	// Query answers questions within a conversation.
	Query driving.QueryService

	// Options apply to every question asked in the session.
	Options driving.QueryOptions

	// Model is shown in the status bar.
	Model string
}

// Validate ensures all required ports are set.
func (p *Ports) Validate() error {
	if p.Query == nil {
		return ErrMissingQueryService
	}
	return nil
}
