package extract

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
)

// Office Open XML documents are plain zip containers; the text lives in a
// handful of well-known XML parts, so token scanning is enough here.

func openZip(data []byte) (*zip.Reader, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("open container: %w", err)
	}
	return zr, nil
}

func readZipFile(zr *zip.Reader, name string) ([]byte, error) {
	for _, f := range zr.File {
		if f.Name == name {
			rc, err := f.Open()
			if err != nil {
				return nil, err
			}
			defer rc.Close()
			return io.ReadAll(rc)
		}
	}
	return nil, fmt.Errorf("missing part %s", name)
}

// docxText extracts paragraph text from word/document.xml.
func docxText(data []byte) (string, error) {
	zr, err := openZip(data)
	if err != nil {
		return "", err
	}

	doc, err := readZipFile(zr, "word/document.xml")
	if err != nil {
		return "", fmt.Errorf("docx: %w", err)
	}

	paragraphs, err := collectParagraphs(doc, "p", "t")
	if err != nil {
		return "", fmt.Errorf("docx parse: %w", err)
	}
	return strings.Join(paragraphs, "\n"), nil
}

// pptxText extracts slide text from ppt/slides/*.xml in slide order.
func pptxText(data []byte) (string, error) {
	zr, err := openZip(data)
	if err != nil {
		return "", err
	}

	var names []string
	for _, f := range zr.File {
		if strings.HasPrefix(f.Name, "ppt/slides/slide") && strings.HasSuffix(f.Name, ".xml") {
			names = append(names, f.Name)
		}
	}
	sort.Slice(names, func(i, j int) bool {
		return slideNumber(names[i]) < slideNumber(names[j])
	})

	var lines []string
	for _, name := range names {
		slide, err := readZipFile(zr, name)
		if err != nil {
			return "", err
		}
		paragraphs, err := collectParagraphs(slide, "p", "t")
		if err != nil {
			return "", fmt.Errorf("pptx parse %s: %w", name, err)
		}
		lines = append(lines, paragraphs...)
	}
	return strings.Join(lines, "\n"), nil
}

func slideNumber(name string) int {
	digits := strings.TrimSuffix(strings.TrimPrefix(name, "ppt/slides/slide"), ".xml")
	n, _ := strconv.Atoi(digits)
	return n
}

// collectParagraphs gathers the text runs inside each paragraph element.
// Word uses <w:p>/<w:t>, presentations use <a:p>/<a:t>; namespaces are
// ignored and only the local names matter.
func collectParagraphs(doc []byte, paraTag, textTag string) ([]string, error) {
	dec := xml.NewDecoder(bytes.NewReader(doc))

	var paragraphs []string
	var current strings.Builder
	inText := false
	depth := 0

	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}

		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case paraTag:
				depth++
				current.Reset()
			case textTag:
				inText = true
			}
		case xml.EndElement:
			switch t.Name.Local {
			case paraTag:
				depth--
				if text := strings.TrimSpace(current.String()); text != "" {
					paragraphs = append(paragraphs, text)
				}
			case textTag:
				inText = false
			}
		case xml.CharData:
			if inText && depth > 0 {
				current.Write(t)
			}
		}
	}
	return paragraphs, nil
}

// xlsxRows extracts cell values from every worksheet, in sheet order, with
// shared strings resolved and column gaps filled.
func xlsxRows(data []byte) ([][]string, error) {
	zr, err := openZip(data)
	if err != nil {
		return nil, err
	}

	shared, err := sharedStrings(zr)
	if err != nil {
		return nil, err
	}

	var sheets []string
	for _, f := range zr.File {
		if strings.HasPrefix(f.Name, "xl/worksheets/sheet") && strings.HasSuffix(f.Name, ".xml") {
			sheets = append(sheets, f.Name)
		}
	}
	sort.Strings(sheets)

	var rows [][]string
	for _, name := range sheets {
		sheet, err := readZipFile(zr, name)
		if err != nil {
			return nil, err
		}
		sheetRows, err := parseSheet(sheet, shared)
		if err != nil {
			return nil, fmt.Errorf("xlsx parse %s: %w", name, err)
		}
		rows = append(rows, sheetRows...)
	}
	return rows, nil
}

// sharedStrings reads xl/sharedStrings.xml; missing part means no shared strings.
func sharedStrings(zr *zip.Reader) ([]string, error) {
	data, err := readZipFile(zr, "xl/sharedStrings.xml")
	if err != nil {
		return nil, nil
	}

	dec := xml.NewDecoder(bytes.NewReader(data))
	var strs []string
	var current strings.Builder
	inItem := false
	inText := false

	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}

		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "si":
				inItem = true
				current.Reset()
			case "t":
				inText = true
			}
		case xml.EndElement:
			switch t.Name.Local {
			case "si":
				inItem = false
				strs = append(strs, current.String())
			case "t":
				inText = false
			}
		case xml.CharData:
			if inItem && inText {
				current.Write(t)
			}
		}
	}
	return strs, nil
}

type xlsxCell struct {
	R string `xml:"r,attr"`
	T string `xml:"t,attr"`
	V string `xml:"v"`
	IS struct {
		T string `xml:"t"`
	} `xml:"is"`
}

func parseSheet(data []byte, shared []string) ([][]string, error) {
	dec := xml.NewDecoder(bytes.NewReader(data))
	var rows [][]string

	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}

		start, ok := tok.(xml.StartElement)
		if !ok || start.Name.Local != "row" {
			continue
		}

		var row struct {
			Cells []xlsxCell `xml:"c"`
		}
		if err := dec.DecodeElement(&row, &start); err != nil {
			return nil, err
		}

		var cells []string
		for _, c := range row.Cells {
			col := columnIndex(c.R)
			for len(cells) < col {
				cells = append(cells, "")
			}
			cells = append(cells, cellValue(c, shared))
		}
		rows = append(rows, cells)
	}
	return rows, nil
}

func cellValue(c xlsxCell, shared []string) string {
	switch c.T {
	case "s":
		idx, err := strconv.Atoi(strings.TrimSpace(c.V))
		if err == nil && idx >= 0 && idx < len(shared) {
			return shared[idx]
		}
		return ""
	case "inlineStr":
		return c.IS.T
	default:
		return c.V
	}
}

// columnIndex converts the letter part of a cell reference ("B2") to a
// zero-based column index.
func columnIndex(ref string) int {
	col := 0
	for _, r := range ref {
		if r < 'A' || r > 'Z' {
			break
		}
		col = col*26 + int(r-'A') + 1
	}
	if col == 0 {
		return 0
	}
	return col - 1
}
