package extractors

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/tamgam-edu/diya-core/internal/core/domain"
)

// DOCXExtractor reads word/document.xml from an OOXML archive.
type DOCXExtractor struct{}

func (e *DOCXExtractor) Extensions() []string {
	return []string{".docx"}
}

func (e *DOCXExtractor) MimeTypes() []string {
	return []string{"application/vnd.openxmlformats-officedocument.wordprocessingml.document"}
}

func (e *DOCXExtractor) Extract(_ context.Context, data []byte, hint string) (*domain.ExtractedText, error) {
	reader, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, domain.NewExtractionError(hint, fmt.Errorf("open archive: %w", err))
	}

	body, err := readZipFile(reader, "word/document.xml")
	if err != nil {
		return nil, domain.NewExtractionError(hint, err)
	}

	text := NormalizeWhitespace(parseDocumentXML(body))
	if text == "" {
		return nil, domain.NewExtractionError(hint, errors.New("document contains no text"))
	}
	return &domain.ExtractedText{Text: text, Units: pseudoPages(text)}, nil
}

func readZipFile(reader *zip.Reader, name string) ([]byte, error) {
	for _, file := range reader.File {
		if file.Name != name {
			continue
		}
		rc, err := file.Open()
		if err != nil {
			return nil, fmt.Errorf("open %s: %w", name, err)
		}
		defer rc.Close()
		b, err := io.ReadAll(rc)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", name, err)
		}
		return b, nil
	}
	return nil, fmt.Errorf("%s missing from archive", name)
}

// parseDocumentXML streams w:p / w:t elements so a truncated or partly
// malformed document still yields the paragraphs read before the damage.
func parseDocumentXML(content []byte) string {
	dec := xml.NewDecoder(bytes.NewReader(content))
	dec.Strict = false

	var (
		out    strings.Builder
		para   strings.Builder
		inText bool
	)
	flush := func() {
		if s := strings.TrimSpace(para.String()); s != "" {
			out.WriteString(s)
			out.WriteString("\n")
		}
		para.Reset()
	}

	for {
		tok, err := dec.Token()
		if err != nil {
			break
		}
		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "t":
				inText = true
			case "tab":
				para.WriteString("\t")
			case "br", "cr":
				para.WriteString("\n")
			}
		case xml.EndElement:
			switch t.Name.Local {
			case "t":
				inText = false
			case "p":
				flush()
			}
		case xml.CharData:
			if inText {
				para.Write(t)
			}
		}
	}
	flush()
	return out.String()
}
