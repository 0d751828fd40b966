package extract

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
)

const docxNS = `xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main"`

func buildDOCX(t *testing.T, body string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	files := map[string]string{
		"[Content_Types].xml": `<?xml version="1.0" encoding="UTF-8"?><Types xmlns="http://schemas.openxmlformats.org/package/2006/content-types"><Override PartName="/word/document.xml" ContentType="application/vnd.openxmlformats-officedocument.wordprocessingml.document.main+xml"/></Types>`,
		"word/document.xml":   `<?xml version="1.0" encoding="UTF-8"?><w:document ` + docxNS + `><w:body>` + body + `</w:body></w:document>`,
	}
	for _, name := range []string{"[Content_Types].xml", "word/document.xml"} {
		w, err := zw.Create(name)
		if err != nil {
			t.Fatalf("create %s: %v", name, err)
		}
		if _, err := w.Write([]byte(files[name])); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("close zip: %v", err)
	}
	return buf.Bytes()
}

// buildPDF writes a minimal PDF with one text line per page and a valid xref table.
func buildPDF(pages []string) []byte {
	var objects []string
	n := len(pages)
	kids := make([]string, n)
	for i := range pages {
		kids[i] = fmt.Sprintf("%d 0 R", 4+2*i)
	}
	objects = append(objects,
		"<< /Type /Catalog /Pages 2 0 R >>",
		fmt.Sprintf("<< /Type /Pages /Kids [%s] /Count %d >>", strings.Join(kids, " "), n),
		"<< /Type /Font /Subtype /Type1 /BaseFont /Helvetica /Encoding /WinAnsiEncoding >>",
	)
	for i, text := range pages {
		stream := fmt.Sprintf("BT /F1 12 Tf 72 712 Td (%s) Tj ET", text)
		objects = append(objects,
			fmt.Sprintf("<< /Type /Page /Parent 2 0 R /MediaBox [0 0 612 792] /Resources << /Font << /F1 3 0 R >> >> /Contents %d 0 R >>", 5+2*i),
			fmt.Sprintf("<< /Length %d >>\nstream\n%s\nendstream", len(stream), stream),
		)
	}

	var buf bytes.Buffer
	buf.WriteString("%PDF-1.4\n")
	offsets := make([]int, len(objects))
	for i, obj := range objects {
		offsets[i] = buf.Len()
		fmt.Fprintf(&buf, "%d 0 obj\n%s\nendobj\n", i+1, obj)
	}
	xref := buf.Len()
	fmt.Fprintf(&buf, "xref\n0 %d\n", len(objects)+1)
	buf.WriteString("0000000000 65535 f \n")
	for _, off := range offsets {
		fmt.Fprintf(&buf, "%010d 00000 n \n", off)
	}
	fmt.Fprintf(&buf, "trailer\n<< /Size %d /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF\n", len(objects)+1, xref)
	return buf.Bytes()
}

func TestExtractDOCXTextAndHTML(t *testing.T) {
	body := `
<w:p><w:pPr><w:pStyle w:val="Heading1"/></w:pPr><w:r><w:t>Quarterly Report</w:t></w:r></w:p>
<w:p><w:r><w:t xml:space="preserve">Revenue was </w:t></w:r><w:r><w:rPr><w:b/></w:rPr><w:t>up</w:t></w:r><w:r><w:rPr><w:i/></w:rPr><w:t> sharply</w:t></w:r><w:r><w:t> &amp; costs &lt;flat&gt;.</w:t></w:r></w:p>
<w:p><w:pPr><w:numPr><w:ilvl w:val="0"/><w:numId w:val="1"/></w:numPr></w:pPr><w:r><w:t>First</w:t></w:r></w:p>
<w:p><w:pPr><w:numPr><w:ilvl w:val="0"/><w:numId w:val="1"/></w:numPr></w:pPr><w:r><w:t>Second</w:t></w:r></w:p>
<w:tbl><w:tr><w:tc><w:p><w:r><w:t>A1</w:t></w:r></w:p></w:tc><w:tc><w:p><w:r><w:t>B1</w:t></w:r></w:p></w:tc></w:tr></w:tbl>
<w:p><w:r><w:rPr><w:u w:val="single"/></w:rPr><w:t>Signed</w:t></w:r><w:r><w:br/><w:t>CFO</w:t></w:r></w:p>`

	content, err := New(nil).Extract(context.Background(), MimeDOCX, buildDOCX(t, body))
	if err != nil {
		t.Fatalf("extract: %v", err)
	}

	for _, want := range []string{"Quarterly Report", "Revenue was up sharply & costs <flat>.", "First\nSecond", "A1\tB1", "Signed\nCFO"} {
		if !strings.Contains(content.Text, want) {
			t.Fatalf("text missing %q:\n%s", want, content.Text)
		}
	}
	for _, want := range []string{
		"<h1>Quarterly Report</h1>",
		"<strong>up</strong>",
		"<em> sharply</em>",
		"&amp; costs &lt;flat&gt;.",
		"<ul><li>First</li><li>Second</li></ul>",
		"<table><tr><td><p>A1</p></td><td><p>B1</p></td></tr></table>",
		"<u>Signed</u><br>CFO",
	} {
		if !strings.Contains(content.HTML, want) {
			t.Fatalf("html missing %q:\n%s", want, content.HTML)
		}
	}
}

func TestExtractPDFPages(t *testing.T) {
	data := buildPDF([]string{"Hello page one", "Goodbye page two"})
	content, err := New(nil).Extract(context.Background(), MimePDF, data)
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	if !strings.Contains(content.Text, "Hello page one") || !strings.Contains(content.Text, "Goodbye page two") {
		t.Fatalf("unexpected text %q", content.Text)
	}
	if content.HTML != "" {
		t.Fatalf("expected no html for pdf, got %q", content.HTML)
	}
}

func TestExtractCorruptPDFReturnsError(t *testing.T) {
	data := append([]byte("%PDF-1.4\n"), bytes.Repeat([]byte{0x00, 0xff}, 256)...)
	_, err := New(nil).Extract(context.Background(), MimePDF, data)
	if !errors.Is(err, ErrExtractFailed) {
		t.Fatalf("expected ErrExtractFailed, got %v", err)
	}
}

type fakeConverter struct {
	out []byte
	err error
}

func (f fakeConverter) ConvertDocToDocx(ctx context.Context, data []byte) ([]byte, error) {
	return f.out, f.err
}

func TestExtractDOCWithoutConverterIsEmpty(t *testing.T) {
	content, err := New(nil).Extract(context.Background(), MimeDOC, []byte{0xD0, 0xCF, 0x11, 0xE0})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if content.Text != "" || content.HTML != "" {
		t.Fatalf("expected empty content, got %+v", content)
	}
}

func TestExtractDOCThroughConverter(t *testing.T) {
	docx := buildDOCX(t, `<w:p><w:r><w:t>Converted body</w:t></w:r></w:p>`)
	content, err := New(fakeConverter{out: docx}).Extract(context.Background(), MimeDOC, []byte("legacy"))
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	if content.Text != "Converted body" {
		t.Fatalf("unexpected text %q", content.Text)
	}

	_, err = New(fakeConverter{err: errors.New("quota")}).Extract(context.Background(), MimeDOC, []byte("legacy"))
	if !errors.Is(err, ErrExtractFailed) {
		t.Fatalf("expected ErrExtractFailed, got %v", err)
	}
}

func TestExtractUnsupported(t *testing.T) {
	_, err := New(nil).Extract(context.Background(), "image/png", []byte("x"))
	if !errors.Is(err, ErrUnsupportedMimeType) {
		t.Fatalf("expected ErrUnsupportedMimeType, got %v", err)
	}
}

func TestNormalizeText(t *testing.T) {
	got := normalizeText("  a\r\nb\n\n\n\n\nc \n")
	if got != "a\nb\n\nc" {
		t.Fatalf("unexpected %q", got)
	}
}

func TestTextCappedOnRuneBoundary(t *testing.T) {
	e := &Extractor{MaxTextBytes: 5}
	docx := buildDOCX(t, `<w:p><w:r><w:t>abcdé fgh</w:t></w:r></w:p>`)
	content, err := e.Extract(context.Background(), MimeDOCX, docx)
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	if content.Text != "abcd" {
		t.Fatalf("expected rune-safe cut, got %q", content.Text)
	}
}

func TestNormalizeMimeType(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Application/PDF; charset=binary", MimePDF},
		{"  " + MimeDOCX + " ", MimeDOCX},
		{"application/zip", "application/zip"},
		{"application/x-zip-compressed", "application/x-zip-compressed"},
	}
	for _, tt := range tests {
		got := NormalizeMimeType(tt.in)
		if got != tt.want {
			t.Fatalf("NormalizeMimeType(%q) = %q, want %q", tt.in, got, tt.want)
		}
		if strings.HasPrefix(tt.in, "application/zip") || strings.HasPrefix(tt.in, "application/x-zip") {
			if IsAllowed(got) {
				t.Fatalf("zip declaration %q must stay outside the allow-list", tt.in)
			}
		}
	}
}

func TestCheckContent(t *testing.T) {
	pdfBytes := buildPDF([]string{"x"})
	docx := buildDOCX(t, `<w:p><w:r><w:t>x</w:t></w:r></w:p>`)

	if err := CheckContent(MimePDF, pdfBytes); err != nil {
		t.Fatalf("pdf: %v", err)
	}
	if err := CheckContent(MimeDOCX, docx); err != nil {
		t.Fatalf("docx: %v", err)
	}
	if err := CheckContent(MimePDF, docx); !errors.Is(err, ErrContentMismatch) {
		t.Fatalf("expected mismatch for docx declared as pdf, got %v", err)
	}
	if err := CheckContent(MimeDOCX, []byte("plain text, not a zip")); !errors.Is(err, ErrContentMismatch) {
		t.Fatalf("expected mismatch for text declared as docx, got %v", err)
	}
	if !IsAllowed(MimeDOC) || IsAllowed("image/png") {
		t.Fatalf("unexpected allow-list result")
	}
}
