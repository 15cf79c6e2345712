package resume

import (
	"bytes"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/ledongthuc/pdf"
)

// ErrNoText is returned when a PDF has no extractable text layer, e.g. a
// scanned image.
var ErrNoText = errors.New("pdf contains no extractable text")

var blankRuns = regexp.MustCompile(`\n{3,}`)

// ExtractPDFText returns the plain text of the PDF at path.
func ExtractPDFText(path string) (string, error) {
	f, r, err := pdf.Open(path)
	if err != nil {
		return "", fmt.Errorf("opening pdf: %w", err)
	}
	defer f.Close()

	plain, err := r.GetPlainText()
	if err != nil {
		return "", fmt.Errorf("reading pdf text: %w", err)
	}
	var buf bytes.Buffer
	if _, err := buf.ReadFrom(plain); err != nil {
		return "", fmt.Errorf("reading pdf text: %w", err)
	}

	text := normalize(buf.String())
	if text == "" {
		return "", ErrNoText
	}
	return text, nil
}

// normalize trims trailing spaces on each line and collapses long blank
// runs.
func normalize(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	lines := strings.Split(s, "\n")
	for i, l := range lines {
		lines[i] = strings.TrimRight(l, " \t")
	}
	s = strings.Join(lines, "\n")
	return strings.TrimSpace(blankRuns.ReplaceAllString(s, "\n\n"))
}

// FromText builds a Document holding imported text only. Structured
// fields are left for the user or the assistant to fill.
func FromText(text string) Document {
	return Document{RawText: text}
}
