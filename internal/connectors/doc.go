// Package connectors holds the document loaders that feed ingestion.
// Each loader implements driven.DocumentLoader for one kind of origin;
// the filesystem loader is the only one today.
package connectors
