package rag

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/ledongthuc/pdf"
)

// Document is the text content of one source file.
type Document struct {
	Path string
	Text string
}

// ReadDocuments reads every path in order. PDF files contribute their plain
// text. A missing path fails with ErrDocumentNotFound.
func ReadDocuments(paths []string) ([]Document, error) {
	docs := make([]Document, 0, len(paths))
	for _, path := range paths {
		text, err := readDocument(path)
		if err != nil {
			return nil, err
		}
		docs = append(docs, Document{Path: path, Text: text})
	}
	return docs, nil
}

// ChunkDocuments chunks each document in order and concatenates the
// fragments, so no chunk spans two documents.
func ChunkDocuments(docs []Document, width int) []string {
	var chunks []string
	for _, doc := range docs {
		chunks = append(chunks, Chunk(doc.Text, width)...)
	}
	return chunks
}

func readDocument(path string) (string, error) {
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", fmt.Errorf("%w: %s", ErrDocumentNotFound, path)
		}
		return "", fmt.Errorf("rag: stat document %q: %w", path, err)
	}
	if strings.EqualFold(filepath.Ext(path), ".pdf") {
		return readPDF(path)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("rag: read document %q: %w", path, err)
	}
	return string(data), nil
}

func readPDF(path string) (string, error) {
	f, rdr, err := pdf.Open(path)
	if err != nil {
		return "", fmt.Errorf("rag: open pdf %q: %w", path, err)
	}
	defer f.Close()

	b, err := rdr.GetPlainText()
	if err != nil {
		return "", fmt.Errorf("rag: read pdf text %q: %w", path, err)
	}
	var buf bytes.Buffer
	if _, err := io.Copy(&buf, b); err != nil {
		return "", fmt.Errorf("rag: read pdf buffer %q: %w", path, err)
	}
	return buf.String(), nil
}
