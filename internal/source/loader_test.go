package source

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// 1x1 transparent PNG.
var pngBytes = []byte{
	0x89, 0x50, 0x4e, 0x47, 0x0d, 0x0a, 0x1a, 0x0a, 0x00, 0x00, 0x00, 0x0d,
	0x49, 0x48, 0x44, 0x52, 0x00, 0x00, 0x00, 0x01, 0x00, 0x00, 0x00, 0x01,
	0x08, 0x06, 0x00, 0x00, 0x00, 0x1f, 0x15, 0xc4, 0x89, 0x00, 0x00, 0x00,
	0x0a, 0x49, 0x44, 0x41, 0x54, 0x78, 0x9c, 0x63, 0x00, 0x01, 0x00, 0x00,
	0x05, 0x00, 0x01, 0x0d, 0x0a, 0x2d, 0xb4, 0x00, 0x00, 0x00, 0x00, 0x49,
	0x45, 0x4e, 0x44, 0xae, 0x42, 0x60, 0x82,
}

func writeFile(t *testing.T, dir, name string, data []byte) string {
	t.Helper()
	p := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(p, data, 0o644))
	return p
}

func TestDetectMIME(t *testing.T) {
	tests := []struct {
		name     string
		file     string
		data     []byte
		wantType string
		wantText bool
	}{
		{name: "markdown by extension", file: "notes.md", data: []byte("# Title\n\nbody"), wantType: "text/markdown", wantText: true},
		{name: "plain text", file: "notes.txt", data: []byte("hello"), wantType: "text/plain", wantText: true},
		{name: "json", file: "data.json", data: []byte(`{"a": 1}`), wantType: "application/json", wantText: true},
		{name: "png", file: "pixel.png", data: pngBytes, wantType: "image/png", wantText: false},
		{name: "png with misleading name", file: "pixel.txt", data: pngBytes, wantType: "image/png", wantText: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mt, text := DetectMIME(tt.file, tt.data)
			assert.Equal(t, tt.wantType, mt)
			assert.Equal(t, tt.wantText, text)
		})
	}
}

func TestLoader_FromUpload(t *testing.T) {
	l := NewLoader(0)

	doc, err := l.FromUpload("dir/notes.md", []byte("# Notes"))
	require.NoError(t, err)
	assert.Equal(t, "notes.md", doc.Name)
	assert.Equal(t, "# Notes", doc.Content)
	assert.True(t, doc.IsText())

	doc, err = l.FromUpload("pixel.png", pngBytes)
	require.NoError(t, err)
	assert.Equal(t, "image/png", doc.MIMEType)
	assert.Empty(t, doc.Content)
	assert.False(t, doc.IsText())
}

func TestLoader_FromUploadInvalidUTF8IsNotInlined(t *testing.T) {
	l := NewLoader(0)

	doc, err := l.FromUpload("broken.txt", []byte{'o', 'k', 0xff, 0xfe, '\n'})
	require.NoError(t, err)
	assert.Equal(t, "broken.txt", doc.Name)
	assert.Empty(t, doc.Content)
	assert.False(t, doc.IsText())
}

func TestLoader_SizeCap(t *testing.T) {
	l := NewLoader(8)

	_, err := l.FromUpload("big.txt", []byte("123456789"))
	assert.ErrorIs(t, err, ErrTooLarge)

	_, err = l.FromReader("big.txt", strings.NewReader(strings.Repeat("x", 100)))
	assert.ErrorIs(t, err, ErrTooLarge)

	doc, err := l.FromReader("ok.txt", bytes.NewReader([]byte("12345678")))
	require.NoError(t, err)
	assert.Equal(t, "12345678", doc.Content)
}

func TestLoader_LoadFiles(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a.txt", []byte("alpha"))
	writeFile(t, dir, "b.md", []byte("# beta"))
	writeFile(t, dir, ".hidden", []byte("skip me"))
	sub := filepath.Join(dir, "nested")
	require.NoError(t, os.Mkdir(sub, 0o755))
	writeFile(t, sub, "deep.txt", []byte("not loaded"))

	single := writeFile(t, t.TempDir(), "single.json", []byte(`[1,2]`))

	docs, err := NewLoader(0).LoadFiles(single, dir)
	require.NoError(t, err)
	require.Len(t, docs, 3)
	assert.Equal(t, "single.json", docs[0].Name)
	assert.Equal(t, "a.txt", docs[1].Name)
	assert.Equal(t, "alpha", docs[1].Content)
	assert.Equal(t, "b.md", docs[2].Name)
	assert.Equal(t, "text/markdown", docs[2].MIMEType)
}

func TestLoader_LoadFilesMissing(t *testing.T) {
	_, err := NewLoader(0).LoadFiles(filepath.Join(t.TempDir(), "missing.txt"))
	assert.Error(t, err)
}
