package filesystem

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/ledongthuc/pdf"

	"github.com/custodia-labs/milo/internal/core/domain"
	"github.com/custodia-labs/milo/internal/core/ports/driven"
	"github.com/custodia-labs/milo/internal/logger"
)

// Ensure Loader implements the interface.
var _ driven.DocumentLoader = (*Loader)(nil)

// DefaultMaxFileSize bounds the size of a single loaded file.
const DefaultMaxFileSize = 50 << 20

// extractor returns the text content of a file.
type extractor func(path string) (string, error)

// Loader reads supported files into documents.
type Loader struct {
	extractors  map[string]extractor
	maxFileSize int64
}

// Option configures the loader.
type Option func(*Loader)

// WithMaxFileSize sets the largest file the loader will read.
func WithMaxFileSize(n int64) Option {
	return func(l *Loader) {
		l.maxFileSize = n
	}
}

// NewLoader creates a loader for .txt, .md, .json and .pdf files.
func NewLoader(opts ...Option) *Loader {
	l := &Loader{
		extractors: map[string]extractor{
			".txt":  readText,
			".md":   readText,
			".json": readText,
			".pdf":  readPDF,
		},
		maxFileSize: DefaultMaxFileSize,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Supports reports whether path has a supported extension.
func (l *Loader) Supports(path string) bool {
	_, ok := l.extractors[strings.ToLower(filepath.Ext(path))]
	return ok
}

// Load reads path, which may be a file or a directory. Directories are
// walked recursively in lexical order. Files that cannot be read are
// returned as failures; the error result is reserved for a missing root or
// a cancelled context.
func (l *Loader) Load(ctx context.Context, path string) ([]domain.Document, []domain.LoadFailure, error) {
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil, fmt.Errorf("%w: %s", domain.ErrNotFound, path)
		}
		return nil, nil, err
	}

	if !info.IsDir() {
		doc, err := l.LoadFile(ctx, path)
		if err != nil {
			var failure domain.LoadFailure
			if errors.As(err, &failure) {
				return nil, []domain.LoadFailure{failure}, nil
			}
			return nil, nil, err
		}
		return []domain.Document{doc}, nil, nil
	}

	var (
		docs     []domain.Document
		failures []domain.LoadFailure
	)
	err = filepath.WalkDir(path, func(p string, d fs.DirEntry, walkErr error) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		if walkErr != nil {
			failures = append(failures, domain.LoadFailure{Path: p, Err: walkErr})
			if d != nil && d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if p != path && isHidden(d.Name()) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() || !d.Type().IsRegular() {
			return nil
		}
		if !l.Supports(p) {
			logger.Debug("Skipping unsupported file %s", p)
			return nil
		}

		doc, err := l.LoadFile(ctx, p)
		if err != nil {
			var failure domain.LoadFailure
			if errors.As(err, &failure) {
				failures = append(failures, failure)
				return nil
			}
			return err
		}
		docs = append(docs, doc)
		return nil
	})
	if err != nil {
		return docs, failures, err
	}

	logger.Debug("Loaded %d documents from %s (%d failed)", len(docs), path, len(failures))
	return docs, failures, nil
}

// LoadFile reads a single file. Read and parse failures are returned as
// domain.LoadFailure values.
func (l *Loader) LoadFile(ctx context.Context, path string) (domain.Document, error) {
	if err := ctx.Err(); err != nil {
		return domain.Document{}, err
	}

	ext := strings.ToLower(filepath.Ext(path))
	extract, ok := l.extractors[ext]
	if !ok {
		return domain.Document{}, domain.LoadFailure{
			Path: path,
			Err:  fmt.Errorf("%w: %q", domain.ErrUnsupportedType, ext),
		}
	}

	info, err := os.Stat(path)
	if err != nil {
		return domain.Document{}, domain.LoadFailure{Path: path, Err: err}
	}
	if info.IsDir() {
		return domain.Document{}, domain.LoadFailure{Path: path, Err: errors.New("is a directory")}
	}
	if l.maxFileSize > 0 && info.Size() > l.maxFileSize {
		return domain.Document{}, domain.LoadFailure{
			Path: path,
			Err:  fmt.Errorf("file is %d bytes, limit %d", info.Size(), l.maxFileSize),
		}
	}

	content, err := extract(path)
	if err != nil {
		return domain.Document{}, domain.LoadFailure{Path: path, Err: err}
	}

	return domain.Document{
		Content: content,
		Metadata: domain.Metadata{
			Source:   path,
			Filename: filepath.Base(path),
			Type:     strings.TrimPrefix(ext, "."),
			Extra: map[string]any{
				domain.MetaSize:     info.Size(),
				domain.MetaModified: info.ModTime().UTC().Format(time.RFC3339),
			},
		},
	}, nil
}

// readText reads a UTF-8 text file.
func readText(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	if !utf8.Valid(data) {
		return "", errors.New("content is not valid UTF-8")
	}
	return string(data), nil
}

// readPDF extracts the plain text of a PDF.
func readPDF(path string) (text string, err error) {
	// The pdf reader panics on some malformed files.
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("malformed pdf: %v", r)
		}
	}()

	f, r, err := pdf.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	plain, err := r.GetPlainText()
	if err != nil {
		return "", err
	}
	var buf bytes.Buffer
	if _, err := io.Copy(&buf, plain); err != nil {
		return "", err
	}
	if strings.TrimSpace(buf.String()) == "" {
		return "", errors.New("no text could be extracted")
	}
	return buf.String(), nil
}

// isHidden reports whether any element of path starts with a dot.
// "." and ".." are not hidden.
func isHidden(path string) bool {
	for _, part := range strings.Split(filepath.ToSlash(path), "/") {
		if part != "" && part != "." && part != ".." && strings.HasPrefix(part, ".") {
			return true
		}
	}
	return false
}
