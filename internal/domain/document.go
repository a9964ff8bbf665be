package domain

import "strings"

// Document is a named blob supplied as research context.
// Content holds decoded text only when MIMEType is text-like.
type Document struct {
	Name     string `json:"name"`
	MIMEType string `json:"mime_type"`
	Content  string `json:"content,omitempty"`
}

var textualMIMETypes = map[string]bool{
	"application/json":       true,
	"application/xml":        true,
	"application/x-yaml":     true,
	"application/yaml":       true,
	"application/javascript": true,
	"application/x-sh":       true,
	"application/toml":       true,
	"application/sql":        true,
}

// IsTextMIME reports whether documents of this mime type are inlined as text.
func IsTextMIME(mimeType string) bool {
	mt := strings.ToLower(strings.TrimSpace(mimeType))
	if i := strings.Index(mt, ";"); i != -1 {
		mt = strings.TrimSpace(mt[:i])
	}
	if strings.HasPrefix(mt, "text/") {
		return true
	}
	return textualMIMETypes[mt]
}

// IsText reports whether the document carries inlineable text.
func (d Document) IsText() bool {
	return IsTextMIME(d.MIMEType) && d.Content != ""
}
