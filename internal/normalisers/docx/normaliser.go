package docx

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/custodia-labs/townhall/internal/core/domain"
	"github.com/custodia-labs/townhall/internal/core/ports/driven"
	"github.com/custodia-labs/townhall/internal/normalisers"
)

// Ensure Normaliser implements the interface.
var _ driven.Normaliser = (*Normaliser)(nil)

// maxPartSize bounds how much of one archive member is read.
const maxPartSize = 64 << 20

// Normaliser handles DOCX documents.
type Normaliser struct{}

// New creates a new DOCX normaliser.
func New() *Normaliser {
	return &Normaliser{}
}

// SupportedMIMETypes returns the MIME types this normaliser handles.
func (n *Normaliser) SupportedMIMETypes() []string {
	return []string{
		"application/vnd.openxmlformats-officedocument.wordprocessingml.document",
	}
}

// Priority returns the selection priority.
func (n *Normaliser) Priority() int {
	return 50
}

// Normalise extracts paragraphs and tables from word/document.xml. Table
// cells on one row are joined with " | ".
func (n *Normaliser) Normalise(_ context.Context, raw *domain.RawDocument) (*domain.NormaliseResult, error) {
	if raw == nil {
		return nil, domain.ErrInvalidInput
	}

	reader, err := zip.NewReader(bytes.NewReader(raw.Content), int64(len(raw.Content)))
	if err != nil {
		return nil, fmt.Errorf("%w: not a docx archive: %v", domain.ErrInvalidInput, err)
	}

	body, err := readPart(reader, "word/document.xml")
	if err != nil {
		return nil, err
	}
	text, heading, err := parseDocument(body)
	if err != nil {
		return nil, fmt.Errorf("%w: parsing document.xml: %v", domain.ErrInvalidInput, err)
	}

	title := coreTitle(reader)
	if title == "" {
		title = heading
	}
	if title == "" {
		title = normalisers.TitleFromURL(raw.SourceURL)
	}

	metadata := normalisers.CopyMetadata(raw.Metadata)
	metadata["format"] = "docx"

	return &domain.NormaliseResult{
		Title:    title,
		Type:     domain.DocumentTypeText,
		Text:     normalisers.CleanLines(text),
		Metadata: metadata,
	}, nil
}

// readPart returns the bytes of one archive member, or nil when it is absent.
func readPart(reader *zip.Reader, name string) ([]byte, error) {
	for _, file := range reader.File {
		if file.Name != name {
			continue
		}
		rc, err := file.Open()
		if err != nil {
			return nil, fmt.Errorf("opening %s: %w", name, err)
		}
		defer rc.Close()

		content, err := io.ReadAll(io.LimitReader(rc, maxPartSize))
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", name, err)
		}
		return content, nil
	}
	return nil, nil
}

// parseDocument walks the WordprocessingML token stream. It returns the text
// and the first paragraph styled as a title or top-level heading.
func parseDocument(content []byte) (string, string, error) {
	if len(content) == 0 {
		return "", "", nil
	}

	var (
		out       strings.Builder
		para      strings.Builder
		heading   string
		inText    bool
		isHeading bool
		cellDepth int
	)

	dec := xml.NewDecoder(bytes.NewReader(content))
	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return "", "", err
		}

		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "p":
				para.Reset()
				isHeading = false
			case "pStyle":
				style := strings.ToLower(attr(t, "val"))
				isHeading = style == "title" || style == "heading1" || style == "nadpis1"
			case "t":
				inText = true
			case "tab":
				para.WriteByte('\t')
			case "br", "cr":
				para.WriteByte('\n')
			case "tc":
				cellDepth++
			}

		case xml.EndElement:
			switch t.Name.Local {
			case "t":
				inText = false
			case "p":
				line := strings.TrimSpace(para.String())
				if isHeading && heading == "" {
					heading = line
				}
				out.WriteString(line)
				if cellDepth > 0 {
					out.WriteByte(' ')
				} else {
					out.WriteString("\n\n")
				}
			case "tc":
				cellDepth--
				out.WriteString("| ")
			case "tr":
				out.WriteByte('\n')
			case "tbl":
				out.WriteByte('\n')
			}

		case xml.CharData:
			if inText {
				para.Write(t)
			}
		}
	}

	return out.String(), heading, nil
}

func attr(el xml.StartElement, local string) string {
	for _, a := range el.Attr {
		if a.Name.Local == local {
			return a.Value
		}
	}
	return ""
}

// coreTitle reads dc:title from docProps/core.xml.
func coreTitle(reader *zip.Reader) string {
	content, err := readPart(reader, "docProps/core.xml")
	if err != nil || len(content) == 0 {
		return ""
	}
	var core struct {
		Title string `xml:"title"`
	}
	if err := xml.Unmarshal(content, &core); err != nil {
		return ""
	}
	return strings.TrimSpace(core.Title)
}
