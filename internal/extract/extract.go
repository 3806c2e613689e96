// Package extract converts uploaded document bytes into plain text for
// chunking. Each supported format has one extractor, selected by file
// extension.
package extract

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
)

// Format identifies a supported document format.
type Format string

const (
	FormatText     Format = "text"
	FormatPDF      Format = "pdf"
	FormatDOCX     Format = "docx"
	FormatMarkdown Format = "markdown"
	FormatHTML     Format = "html"
	FormatCSV      Format = "csv"
	FormatUnknown  Format = ""
)

// ErrUnsupportedFormat is returned for extensions no extractor handles.
var ErrUnsupportedFormat = errors.New("unsupported file format")

// DetectFormat picks the format from the filename extension.
func DetectFormat(filename string) Format {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".txt":
		return FormatText
	case ".pdf":
		return FormatPDF
	case ".docx":
		return FormatDOCX
	case ".md", ".markdown":
		return FormatMarkdown
	case ".html", ".htm":
		return FormatHTML
	case ".csv":
		return FormatCSV
	default:
		return FormatUnknown
	}
}

// Supported reports whether the filename maps to a known format.
func Supported(filename string) bool {
	return DetectFormat(filename) != FormatUnknown
}

// Text extracts the plain text content of a document. The text is passed
// through as-is beyond format decoding; no sanitization happens here.
func Text(filename string, content []byte) (string, error) {
	switch f := DetectFormat(filename); f {
	case FormatText:
		return string(content), nil
	case FormatPDF:
		return pdfText(content)
	case FormatDOCX:
		return docxText(content)
	case FormatMarkdown:
		return markdownText(content)
	case FormatHTML:
		return htmlText(content)
	case FormatCSV:
		return csvText(content)
	default:
		return "", fmt.Errorf("%w: %s", ErrUnsupportedFormat, filepath.Ext(filename))
	}
}
