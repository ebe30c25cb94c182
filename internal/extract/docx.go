package extract

import (
	"archive/zip"
	"encoding/xml"
	"io"
	"strings"
)

const docxBody = "word/document.xml"

// docx returns body paragraphs followed by table rows, one per line, with
// non-empty cells joined by " | ".
func docx(r io.ReaderAt, size int64) (string, error) {
	zr, err := zip.NewReader(r, size)
	if err != nil {
		return "", fail("docx", "Error extracting text from DOCX: "+err.Error(), err)
	}

	var doc *zip.File
	for _, f := range zr.File {
		if f.Name == docxBody {
			doc = f
			break
		}
	}
	if doc == nil {
		return "", fail("docx", "Error extracting text from DOCX: missing "+docxBody, nil)
	}

	rc, err := doc.Open()
	if err != nil {
		return "", fail("docx", "Error extracting text from DOCX: "+err.Error(), err)
	}
	defer rc.Close()

	paragraphs, rows, err := walkDocument(rc)
	if err != nil {
		return "", fail("docx", "Error extracting text from DOCX: "+err.Error(), err)
	}

	text := strings.TrimSpace(strings.Join(append(paragraphs, rows...), "\n"))
	if text == "" {
		return "", fail("docx", "No text found in document", nil)
	}
	return text, nil
}

// walkDocument streams WordprocessingML and collects top-level paragraph
// text and table rows
func walkDocument(r io.Reader) (paragraphs, rows []string, err error) {
	dec := xml.NewDecoder(r)

	var (
		para      strings.Builder
		cellParas []string
		cells     []string
		tblDepth  int
	)

	for {
		tok, err := dec.Token()
		if err == io.EOF {
			return paragraphs, rows, nil
		}
		if err != nil {
			return nil, nil, err
		}

		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "tbl":
				tblDepth++
			case "tr":
				cells = cells[:0]
			case "tc":
				cellParas = cellParas[:0]
			case "p":
				para.Reset()
			case "t":
				var s string
				if err := dec.DecodeElement(&s, &t); err != nil {
					return nil, nil, err
				}
				para.WriteString(s)
			case "tab":
				para.WriteByte('\t')
			case "br", "cr":
				para.WriteByte('\n')
			}
		case xml.EndElement:
			switch t.Name.Local {
			case "p":
				if tblDepth > 0 {
					cellParas = append(cellParas, para.String())
				} else if strings.TrimSpace(para.String()) != "" {
					paragraphs = append(paragraphs, para.String())
				}
			case "tc":
				if cell := strings.TrimSpace(strings.Join(cellParas, "\n")); cell != "" {
					cells = append(cells, cell)
				}
			case "tr":
				if len(cells) > 0 {
					rows = append(rows, strings.Join(cells, " | "))
				}
			case "tbl":
				tblDepth--
			}
		}
	}
}
