package extract

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/ledongthuc/pdf"
)

// pdfText extracts page-by-page text, prefixing each page with its marker.
func pdfText(data []byte) (string, error) {
	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("pdf reader: %w", err)
	}

	var pages []string
	for i := 1; i <= reader.NumPage(); i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			// A single unreadable page should not sink the document.
			text = ""
		}
		pages = append(pages, fmt.Sprintf("[[PAGE:%d]]\n%s", i, text))
	}

	if len(pages) == 0 {
		return "", fmt.Errorf("pdf contains no readable pages")
	}
	return strings.Join(pages, "\n"), nil
}
