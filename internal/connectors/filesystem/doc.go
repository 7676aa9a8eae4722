// Package filesystem loads documents from local files and watches
// directories for changes.
//
// Plain text formats (.txt, .md, .json) are read verbatim; PDF text is
// extracted with github.com/ledongthuc/pdf. Hidden files and directories are
// skipped.
package filesystem
