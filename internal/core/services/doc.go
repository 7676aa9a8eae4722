// Package services implements the driving port interfaces.
// Services contain the core pipeline logic (ranking, context formatting,
// ingestion and question answering) and orchestrate calls to driven ports.
//
// Services are pure Go with no external dependencies beyond the ports.
package services
