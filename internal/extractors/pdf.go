package extractors

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"github.com/ledongthuc/pdf"

	"github.com/tamgam-edu/diya-core/internal/core/domain"
)

// ErrNoTextLayer is returned for PDFs whose pages carry no extractable text,
// typically page scans without OCR.
var ErrNoTextLayer = errors.New("pdf has no text layer")

// CommandRunner executes external commands.
type CommandRunner interface {
	Run(ctx context.Context, name string, args ...string) ([]byte, error)
}

// ExecRunner runs commands with os/exec.
type ExecRunner struct{}

func (ExecRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).Output()
}

// PDFExtractor prefers pdftotext when installed and falls back to a
// pure-Go reader.
type PDFExtractor struct {
	runner   CommandRunner
	lookPath func(string) (string, error)
}

// NewPDFExtractor uses pdftotext from PATH when available.
func NewPDFExtractor() *PDFExtractor {
	return &PDFExtractor{runner: ExecRunner{}, lookPath: exec.LookPath}
}

// NewPDFExtractorWithRunner injects the command runner (for tests).
// A nil runner disables the pdftotext path.
func NewPDFExtractorWithRunner(runner CommandRunner) *PDFExtractor {
	return &PDFExtractor{
		runner:   runner,
		lookPath: func(name string) (string, error) { return name, nil },
	}
}

func (e *PDFExtractor) Extensions() []string {
	return []string{".pdf"}
}

func (e *PDFExtractor) MimeTypes() []string {
	return []string{"application/pdf", "application/x-pdf"}
}

func (e *PDFExtractor) Extract(ctx context.Context, data []byte, hint string) (*domain.ExtractedText, error) {
	if !bytes.HasPrefix(bytes.TrimLeft(data, "\x00\t\r\n "), []byte("%PDF")) {
		return nil, domain.NewExtractionError(hint, errors.New("missing %PDF header"))
	}

	var causes []error
	if e.runner != nil {
		if _, err := e.lookPath("pdftotext"); err == nil {
			res, err := e.extractWithTool(ctx, data)
			if err == nil {
				return res, nil
			}
			causes = append(causes, err)
		}
	}

	res, err := extractWithReader(data)
	if err == nil {
		return res, nil
	}
	causes = append(causes, err)
	return nil, domain.NewExtractionError(hint, errors.Join(causes...))
}

func (e *PDFExtractor) extractWithTool(ctx context.Context, data []byte) (*domain.ExtractedText, error) {
	tmp, err := os.CreateTemp("", "diya-*.pdf")
	if err != nil {
		return nil, fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return nil, fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return nil, fmt.Errorf("close temp file: %w", err)
	}

	out, err := e.runner.Run(ctx, "pdftotext", "-layout", "-enc", "UTF-8", tmp.Name(), "-")
	if err != nil {
		return nil, fmt.Errorf("pdftotext: %w", err)
	}
	return textFromPages(strings.Split(string(out), "\f"))
}

// extractWithReader recovers from parser panics on damaged files and keeps
// whatever pages decoded cleanly.
func extractWithReader(data []byte) (res *domain.ExtractedText, err error) {
	defer func() {
		if r := recover(); r != nil {
			res, err = nil, fmt.Errorf("pdf parser: %v", r)
		}
	}()

	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("open pdf: %w", err)
	}

	n := reader.NumPage()
	pages := make([]string, 0, n)
	for i := 1; i <= n; i++ {
		pages = append(pages, readPage(reader, i))
	}
	return textFromPages(pages)
}

func readPage(reader *pdf.Reader, i int) (text string) {
	defer func() {
		if recover() != nil {
			text = ""
		}
	}()
	p := reader.Page(i)
	if p.V.IsNull() {
		return ""
	}
	text, err := p.GetPlainText(nil)
	if err != nil {
		return ""
	}
	return text
}

func textFromPages(pages []string) (*domain.ExtractedText, error) {
	var parts []string
	for _, p := range pages {
		if s := NormalizeWhitespace(p); s != "" {
			parts = append(parts, s)
		}
	}
	if len(parts) == 0 {
		return nil, ErrNoTextLayer
	}
	units := len(pages)
	if strings.TrimSpace(pages[len(pages)-1]) == "" && units > 1 {
		// pdftotext terminates the last page with a form feed
		units--
	}
	return &domain.ExtractedText{Text: strings.Join(parts, "\n\n"), Units: units}, nil
}
