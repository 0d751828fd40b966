package extract

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/gabriel-vasile/mimetype"
	"github.com/ledongthuc/pdf"
)

// Accepted upload types.
const (
	MimePDF  = "application/pdf"
	MimeDOC  = "application/msword"
	MimeDOCX = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
)

// DefaultMaxTextBytes caps the extracted plain text kept per document.
const DefaultMaxTextBytes = 1 << 20

var (
	ErrUnsupportedMimeType = errors.New("unsupported mime type")
	ErrContentMismatch     = errors.New("content does not match declared type")
	ErrExtractFailed       = errors.New("extraction failed")
)

var allowed = map[string]struct{}{
	MimePDF:  {},
	MimeDOC:  {},
	MimeDOCX: {},
}

// IsAllowed reports whether mimeType is one of the accepted upload types.
func IsAllowed(mimeType string) bool {
	_, ok := allowed[mimeType]
	return ok
}

// Content is the text and optional markup pulled from a document.
type Content struct {
	Text string
	HTML string
}

// Converter turns legacy Word binaries into DOCX.
type Converter interface {
	ConvertDocToDocx(ctx context.Context, data []byte) ([]byte, error)
}

// Extractor turns uploaded binaries into Content.
type Extractor struct {
	Converter    Converter
	MaxTextBytes int
}

// New builds an Extractor. conv may be nil, in which case DOC files yield empty content.
func New(conv Converter) *Extractor {
	return &Extractor{Converter: conv, MaxTextBytes: DefaultMaxTextBytes}
}

// Extract pulls plain text and HTML from data. It has no side effects.
func (e *Extractor) Extract(ctx context.Context, mimeType string, data []byte) (Content, error) {
	if err := ctx.Err(); err != nil {
		return Content{}, err
	}

	var (
		content Content
		err     error
	)
	switch mimeType {
	case MimePDF:
		content.Text, err = extractPDF(data)
	case MimeDOCX:
		content, err = extractDOCX(data)
	case MimeDOC:
		if e == nil || e.Converter == nil {
			return Content{}, nil
		}
		converted, convErr := e.Converter.ConvertDocToDocx(ctx, data)
		if convErr != nil {
			return Content{}, fmt.Errorf("%w: convert doc: %v", ErrExtractFailed, convErr)
		}
		content, err = extractDOCX(converted)
	default:
		return Content{}, fmt.Errorf("%w: %s", ErrUnsupportedMimeType, mimeType)
	}
	if err != nil {
		return Content{}, fmt.Errorf("%w: %s: %v", ErrExtractFailed, mimeType, err)
	}

	max := DefaultMaxTextBytes
	if e != nil && e.MaxTextBytes > 0 {
		max = e.MaxTextBytes
	}
	content.Text = truncateBytes(normalizeText(content.Text), max)
	return content, nil
}

// NormalizeMimeType lowercases the declared type and drops parameters.
func NormalizeMimeType(mimeType string) string {
	return strings.ToLower(strings.TrimSpace(strings.Split(mimeType, ";")[0]))
}

// CheckContent sniffs data and reports when its bytes contradict mimeType.
func CheckContent(mimeType string, data []byte) error {
	detected := mimetype.Detect(data)
	var accept []string
	switch mimeType {
	case MimePDF:
		accept = []string{MimePDF}
	case MimeDOCX:
		accept = []string{MimeDOCX, "application/zip"}
	case MimeDOC:
		accept = []string{MimeDOC, "application/x-ole-storage"}
	default:
		return fmt.Errorf("%w: %s", ErrUnsupportedMimeType, mimeType)
	}
	for m := detected; m != nil; m = m.Parent() {
		for _, want := range accept {
			if m.Is(want) {
				return nil
			}
		}
	}
	return fmt.Errorf("%w: declared %s, detected %s", ErrContentMismatch, mimeType, detected.String())
}

func extractPDF(data []byte) (text string, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			text = ""
			err = fmt.Errorf("pdf parser panic: %v", rec)
		}
	}()

	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", err
	}

	pages := make([]string, 0, reader.NumPage())
	for i := 1; i <= reader.NumPage(); i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		plain, err := page.GetPlainText(nil)
		if err != nil {
			return "", fmt.Errorf("page %d: %w", i, err)
		}
		pages = append(pages, plain)
	}
	return strings.Join(pages, "\n"), nil
}

var manyNewlines = regexp.MustCompile(`\n{3,}`)

func normalizeText(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = manyNewlines.ReplaceAllString(s, "\n\n")
	return strings.TrimSpace(s)
}

func truncateBytes(s string, max int) string {
	if max <= 0 || len(s) <= max {
		return s
	}
	cut := max
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}

func readAllLimited(r io.Reader, limit int64) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(r, limit+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > limit {
		return nil, fmt.Errorf("entry exceeds %d bytes", limit)
	}
	return data, nil
}
