// Package file provides file-based implementations of driven port interfaces.
//
// Adapters:
//   - PromptStore: user-editable prompt templates under ~/.milo/prompts
package file
