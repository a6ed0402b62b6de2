package assistants

import (
	"bytes"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"github.com/ledongthuc/pdf"
)

// ExtractKnowledge converts an uploaded knowledge base file to plain
// text, truncated to MaxKnowledgeLen. PDF and plain text files are
// supported.
func ExtractKnowledge(filename string, data []byte) (string, error) {
	var text string

	switch {
	case strings.HasSuffix(strings.ToLower(filename), ".pdf"):
		extracted, err := extractPDFText(data)
		if err != nil {
			return "", fmt.Errorf("failed to extract PDF text: %w", err)
		}
		text = extracted

	default:
		if !utf8.Valid(data) {
			return "", fmt.Errorf("%w: file is not valid UTF-8 text", ErrInvalid)
		}
		text = string(data)
	}

	return truncateKnowledge(strings.TrimSpace(text)), nil
}

// truncateKnowledge caps s at MaxKnowledgeLen bytes, backing up so a
// multi-byte rune is never split.
func truncateKnowledge(s string) string {
	if len(s) <= MaxKnowledgeLen {
		return s
	}
	cut := MaxKnowledgeLen
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}

// extractPDFText pulls the text layer out of each page.
func extractPDFText(data []byte) (string, error) {
	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", err
	}

	plain, err := reader.GetPlainText()
	if err != nil {
		return "", err
	}

	var buf bytes.Buffer
	if _, err := io.Copy(&buf, plain); err != nil {
		return "", err
	}
	return buf.String(), nil
}
