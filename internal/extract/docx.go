package extract

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"errors"
	"html"
	"io"
	"strings"
)

const maxDocumentXMLBytes = 64 << 20

func findDocumentXML(zr *zip.Reader) *zip.File {
	for _, f := range zr.File {
		if strings.ReplaceAll(f.Name, "\\", "/") == "word/document.xml" {
			return f
		}
	}
	return nil
}

func extractDOCX(data []byte) (Content, error) {
	if len(data) == 0 {
		return Content{}, errors.New("empty docx data")
	}
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return Content{}, err
	}
	docFile := findDocumentXML(zr)
	if docFile == nil {
		return Content{}, errors.New("document.xml file not found")
	}

	rc, err := docFile.Open()
	if err != nil {
		return Content{}, err
	}
	defer rc.Close()

	raw, err := readAllLimited(rc, maxDocumentXMLBytes)
	if err != nil {
		return Content{}, err
	}
	return renderDocumentXML(raw)
}

type runFormat struct {
	bold      bool
	italic    bool
	underline bool
}

type paragraph struct {
	style    string
	numbered bool
	text     strings.Builder
	html     strings.Builder
}

type cell struct {
	text []string
	html strings.Builder
}

// docxRenderer walks WordprocessingML tokens and writes plain text and HTML.
type docxRenderer struct {
	text strings.Builder
	html strings.Builder

	para   *paragraph
	run    runFormat
	inPPr  bool
	inRPr  bool
	inText bool
	inList bool

	tableDepth int
	rowCells   []string
	cell       *cell
}

func renderDocumentXML(raw []byte) (Content, error) {
	r := &docxRenderer{}
	dec := xml.NewDecoder(bytes.NewReader(raw))
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return Content{}, err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			r.start(t)
		case xml.EndElement:
			r.end(t)
		case xml.CharData:
			if r.inText && r.para != nil {
				r.write(string(t))
			}
		}
	}
	r.closeList()
	return Content{Text: r.text.String(), HTML: r.html.String()}, nil
}

func (r *docxRenderer) start(t xml.StartElement) {
	switch t.Name.Local {
	case "p":
		r.para = &paragraph{}
	case "pPr":
		r.inPPr = true
	case "pStyle":
		if r.para != nil && r.inPPr {
			r.para.style = attr(t, "val")
		}
	case "numPr":
		if r.para != nil && r.inPPr {
			r.para.numbered = true
		}
	case "r":
		r.run = runFormat{}
	case "rPr":
		r.inRPr = true
	case "b":
		if r.inRPr && !r.inPPr {
			r.run.bold = toggleOn(t)
		}
	case "i":
		if r.inRPr && !r.inPPr {
			r.run.italic = toggleOn(t)
		}
	case "u":
		if r.inRPr && !r.inPPr {
			v := attr(t, "val")
			r.run.underline = v != "none" && toggleOn(t)
		}
	case "t":
		r.inText = true
	case "tab":
		if r.para != nil && !r.inPPr {
			r.para.text.WriteString("\t")
			r.para.html.WriteString(" ")
		}
	case "br", "cr":
		if r.para != nil && !r.inPPr {
			r.para.text.WriteString("\n")
			r.para.html.WriteString("<br>")
		}
	case "tbl":
		r.closeList()
		if r.tableDepth == 0 {
			r.html.WriteString("<table>")
		}
		r.tableDepth++
	case "tr":
		if r.tableDepth == 1 {
			r.html.WriteString("<tr>")
			r.rowCells = r.rowCells[:0]
		}
	case "tc":
		if r.tableDepth == 1 {
			r.cell = &cell{}
		}
	}
}

func (r *docxRenderer) end(t xml.EndElement) {
	switch t.Name.Local {
	case "p":
		r.flushParagraph()
	case "pPr":
		r.inPPr = false
	case "rPr":
		r.inRPr = false
	case "t":
		r.inText = false
	case "tc":
		if r.tableDepth == 1 && r.cell != nil {
			r.html.WriteString("<td>")
			r.html.WriteString(r.cell.html.String())
			r.html.WriteString("</td>")
			r.rowCells = append(r.rowCells, strings.Join(r.cell.text, " "))
			r.cell = nil
		}
	case "tr":
		if r.tableDepth == 1 {
			r.html.WriteString("</tr>")
			r.text.WriteString(strings.Join(r.rowCells, "\t"))
			r.text.WriteString("\n")
		}
	case "tbl":
		r.tableDepth--
		if r.tableDepth == 0 {
			r.html.WriteString("</table>")
		}
	}
}

func (r *docxRenderer) write(s string) {
	r.para.text.WriteString(s)

	escaped := html.EscapeString(s)
	if r.run.underline {
		escaped = "<u>" + escaped + "</u>"
	}
	if r.run.italic {
		escaped = "<em>" + escaped + "</em>"
	}
	if r.run.bold {
		escaped = "<strong>" + escaped + "</strong>"
	}
	r.para.html.WriteString(escaped)
}

func (r *docxRenderer) flushParagraph() {
	p := r.para
	r.para = nil
	if p == nil {
		return
	}
	text := p.text.String()
	markup := p.html.String()

	if r.tableDepth > 0 {
		if r.cell != nil {
			if strings.TrimSpace(text) != "" {
				r.cell.text = append(r.cell.text, text)
			}
			if markup != "" {
				r.cell.html.WriteString("<p>" + markup + "</p>")
			}
		}
		return
	}

	r.text.WriteString(text)
	r.text.WriteString("\n")
	if strings.TrimSpace(text) == "" {
		return
	}

	if p.numbered {
		if !r.inList {
			r.html.WriteString("<ul>")
			r.inList = true
		}
		r.html.WriteString("<li>" + markup + "</li>")
		return
	}
	r.closeList()
	tag := headingTag(p.style)
	r.html.WriteString("<" + tag + ">" + markup + "</" + tag + ">")
}

func (r *docxRenderer) closeList() {
	if r.inList {
		r.html.WriteString("</ul>")
		r.inList = false
	}
}

func headingTag(style string) string {
	s := strings.ToLower(strings.ReplaceAll(style, " ", ""))
	switch s {
	case "title":
		return "h1"
	case "subtitle":
		return "h2"
	}
	if strings.HasPrefix(s, "heading") && len(s) == len("heading")+1 {
		if lvl := s[len(s)-1]; lvl >= '1' && lvl <= '6' {
			return "h" + string(lvl)
		}
	}
	return "p"
}

func attr(t xml.StartElement, local string) string {
	for _, a := range t.Attr {
		if a.Name.Local == local {
			return a.Value
		}
	}
	return ""
}

func toggleOn(t xml.StartElement) bool {
	switch strings.ToLower(attr(t, "val")) {
	case "false", "0", "off":
		return false
	default:
		return true
	}
}
