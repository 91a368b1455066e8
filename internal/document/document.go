// Package document extracts supplementary text from user-supplied files and frames it
// for inclusion in a council prompt.
package document

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/gen2brain/go-fitz"

	"aicouncil/internal/logger"
)

const (
	startMarker = "--- DOCUMENT CONTEXT ---"
	endMarker   = "--- END DOCUMENT CONTEXT ---"
)

// ErrUnsupportedType is returned for files that are not .txt, .md or .pdf.
var ErrUnsupportedType = errors.New("unsupported file type")

// CleanPath trims whitespace and surrounding quotes from a pasted path.
func CleanPath(raw string) string {
	return strings.Trim(strings.TrimSpace(raw), `"'`)
}

// Load returns the text content of the file at path. Text and Markdown files are read
// as UTF-8; PDF text is extracted page by page.
func Load(path string) (string, error) {
	path = CleanPath(path)

	info, err := os.Stat(path)
	if err != nil {
		return "", fmt.Errorf("file not found at '%s': %w", path, err)
	}
	if info.IsDir() {
		return "", fmt.Errorf("'%s' is a directory", path)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".txt", ".md":
		data, err := os.ReadFile(path)
		if err != nil {
			return "", fmt.Errorf("could not read file: %w", err)
		}
		if !utf8.Valid(data) {
			return "", fmt.Errorf("could not read file: '%s' is not valid UTF-8", path)
		}
		return string(data), nil
	case ".pdf":
		return loadPDF(path)
	default:
		return "", fmt.Errorf("%w: %s", ErrUnsupportedType, filepath.Ext(path))
	}
}

func loadPDF(path string) (string, error) {
	doc, err := fitz.New(path)
	if err != nil {
		return "", fmt.Errorf("failed to open PDF document: %w", err)
	}
	defer func() {
		_ = doc.Close() // Ignore error on close
	}()

	var content strings.Builder
	for page := 0; page < doc.NumPage(); page++ {
		text, err := doc.Text(page)
		if err != nil {
			return "", fmt.Errorf("failed to extract text from page %d: %w", page+1, err)
		}
		content.WriteString(text)
	}

	logger.Debug("PDF text extracted", "path", path, "pages", doc.NumPage(), "chars", content.Len())
	return content.String(), nil
}

// Wrap frames content with the document context markers.
func Wrap(content string) string {
	return startMarker + "\n" + content + "\n" + endMarker + "\n\n"
}

// StripContext returns the part of prompt after the document context, trimmed.
// A prompt without document context is returned trimmed.
func StripContext(prompt string) string {
	if i := strings.LastIndex(prompt, endMarker); i >= 0 {
		prompt = prompt[i+len(endMarker):]
	}
	return strings.TrimSpace(prompt)
}
