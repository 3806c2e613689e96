package extract

import (
	"errors"
	"strings"
	"testing"
)

func TestDetectFormat(t *testing.T) {
	tests := []struct {
		filename string
		want     Format
	}{
		{"notes.txt", FormatText},
		{"report.PDF", FormatPDF},
		{"contract.docx", FormatDOCX},
		{"readme.md", FormatMarkdown},
		{"readme.markdown", FormatMarkdown},
		{"page.html", FormatHTML},
		{"page.htm", FormatHTML},
		{"data.csv", FormatCSV},
		{"slides.pptx", FormatUnknown},
		{"sheet.xlsx", FormatUnknown},
		{"noextension", FormatUnknown},
	}
	for _, tt := range tests {
		if got := DetectFormat(tt.filename); got != tt.want {
			t.Errorf("DetectFormat(%q) = %q, want %q", tt.filename, got, tt.want)
		}
	}
}

func TestTextPassthrough(t *testing.T) {
	content := "plain text\twith\x00control characters\n"
	got, err := Text("notes.txt", []byte(content))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// No sanitization: bytes pass through unchanged.
	if got != content {
		t.Errorf("expected passthrough, got %q", got)
	}
}

func TestTextUnsupported(t *testing.T) {
	_, err := Text("slides.pptx", []byte("x"))
	if !errors.Is(err, ErrUnsupportedFormat) {
		t.Fatalf("expected ErrUnsupportedFormat, got %v", err)
	}
}

func TestCSVText(t *testing.T) {
	content := "Name,Department\nJohn Doe,Engineering\nJane Smith,Marketing\n"
	got, err := Text("people.csv", []byte(content))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(got, "Name: John Doe") {
		t.Errorf("expected header-labelled cells, got %q", got)
	}
	if !strings.Contains(got, "Department: Marketing") {
		t.Errorf("expected header-labelled cells, got %q", got)
	}
}

func TestHTMLTextStripsChrome(t *testing.T) {
	content := `<html><head><title>T</title><style>.a{}</style></head>
<body><nav>Menu Menu</nav><h1>Welcome</h1><p>Main content here.</p>
<script>var x = 1;</script><footer>Copyright</footer></body></html>`
	got, err := Text("page.html", []byte(content))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(got, "Welcome") || !strings.Contains(got, "Main content here.") {
		t.Errorf("expected body content, got %q", got)
	}
	for _, stripped := range []string{"Menu Menu", "var x", "Copyright", ".a{}"} {
		if strings.Contains(got, stripped) {
			t.Errorf("expected %q to be stripped, got %q", stripped, got)
		}
	}
}

func TestMarkdownText(t *testing.T) {
	content := "# Title\n\nFirst paragraph of text.\n\n- item one\n- item two\n"
	got, err := Text("readme.md", []byte(content))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, want := range []string{"Title", "First paragraph of text.", "item one", "item two"} {
		if !strings.Contains(got, want) {
			t.Errorf("expected %q in extracted text, got %q", want, got)
		}
	}
	if strings.Contains(got, "# Title") {
		t.Errorf("expected markdown markers stripped from headings, got %q", got)
	}
}
