// Package postprocessors provides the chunking strategies that split loaded
// documents before embedding, and a registry that builds them by name.
package postprocessors
