// Package source turns local files and uploads into research documents.
package source

import (
	"errors"
	"fmt"
	"io"
	"mime"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/gabriel-vasile/mimetype"
	"github.com/timmy/deepresearch/internal/domain"
	"github.com/timmy/deepresearch/internal/logger"
)

// DefaultMaxBytes is the per-document size cap used when none is configured.
const DefaultMaxBytes int64 = 1 << 20

// ErrTooLarge is returned for a document above the size cap.
var ErrTooLarge = errors.New("document exceeds size limit")

// extensions the sniffer reports as plain text or octet-stream.
var extensionTypes = map[string]string{
	".md":       "text/markdown",
	".markdown": "text/markdown",
	".csv":      "text/csv",
	".tsv":      "text/tab-separated-values",
	".yaml":     "application/yaml",
	".yml":      "application/yaml",
	".toml":     "application/toml",
	".sql":      "application/sql",
	".rst":      "text/x-rst",
	".org":      "text/x-org",
}

// Loader reads documents from disk or from uploaded bytes.
type Loader struct {
	maxBytes int64
}

// NewLoader creates a loader. maxBytes <= 0 uses DefaultMaxBytes.
func NewLoader(maxBytes int64) *Loader {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}
	return &Loader{maxBytes: maxBytes}
}

// LoadFiles reads every path into a document. Directories contribute their
// regular, non-hidden files; subdirectories are not descended into.
// Parameters:
//   - paths: files or directories.
//
// Returns:
//   - []domain.Document: one document per file, in argument then directory order.
//   - error: non-nil if a path can't be read or a file is above the cap.
func (l *Loader) LoadFiles(paths ...string) ([]domain.Document, error) {
	var docs []domain.Document
	for _, p := range paths {
		info, err := os.Stat(p)
		if err != nil {
			return nil, fmt.Errorf("failed to stat %s: %w", p, err)
		}
		if !info.IsDir() {
			doc, err := l.loadFile(p)
			if err != nil {
				return nil, err
			}
			docs = append(docs, doc)
			continue
		}

		entries, err := os.ReadDir(p)
		if err != nil {
			return nil, fmt.Errorf("failed to read directory %s: %w", p, err)
		}
		for _, entry := range entries {
			if entry.IsDir() || strings.HasPrefix(entry.Name(), ".") || !entry.Type().IsRegular() {
				continue
			}
			doc, err := l.loadFile(filepath.Join(p, entry.Name()))
			if err != nil {
				return nil, err
			}
			docs = append(docs, doc)
		}
	}
	return docs, nil
}

// FromReader reads an uploaded document, refusing anything above the cap.
func (l *Loader) FromReader(name string, r io.Reader) (domain.Document, error) {
	data, err := io.ReadAll(io.LimitReader(r, l.maxBytes+1))
	if err != nil {
		return domain.Document{}, fmt.Errorf("failed to read %s: %w", name, err)
	}
	return l.FromUpload(name, data)
}

// FromUpload builds a document from in-memory bytes.
func (l *Loader) FromUpload(name string, data []byte) (domain.Document, error) {
	if int64(len(data)) > l.maxBytes {
		return domain.Document{}, fmt.Errorf("%w: %s is larger than %d bytes", ErrTooLarge, name, l.maxBytes)
	}

	mimeType, textual := DetectMIME(name, data)
	doc := domain.Document{Name: filepath.Base(name), MIMEType: mimeType}
	if textual {
		doc.Content = string(data)
	} else {
		logger.Info("Document %s is %s, it will not be inlined", doc.Name, mimeType)
	}
	return doc, nil
}

func (l *Loader) loadFile(path string) (domain.Document, error) {
	f, err := os.Open(path)
	if err != nil {
		return domain.Document{}, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()
	return l.FromReader(path, f)
}

// DetectMIME sniffs data and falls back to the file extension when the
// content alone is ambiguous. The second result reports whether the
// document is text that can be inlined.
func DetectMIME(name string, data []byte) (string, bool) {
	detected := mimetype.Detect(data)
	mt := baseType(detected.String())

	if mt == "text/plain" || mt == "application/octet-stream" {
		if byExt := extensionType(name); byExt != "" {
			if mt == "text/plain" || (domain.IsTextMIME(byExt) && utf8.Valid(data)) {
				mt = byExt
			}
		}
	}

	textual := domain.IsTextMIME(mt)
	for m := detected; !textual && m != nil; m = m.Parent() {
		if m.Is("text/plain") {
			textual = true
		}
	}
	return mt, textual && utf8.Valid(data)
}

func extensionType(name string) string {
	ext := strings.ToLower(filepath.Ext(name))
	if ext == "" {
		return ""
	}
	if t, ok := extensionTypes[ext]; ok {
		return t
	}
	return baseType(mime.TypeByExtension(ext))
}

func baseType(mt string) string {
	if i := strings.Index(mt, ";"); i != -1 {
		mt = mt[:i]
	}
	return strings.ToLower(strings.TrimSpace(mt))
}
