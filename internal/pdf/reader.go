package pdf

import (
	"fmt"
	"strings"

	"github.com/ledongthuc/pdf"
)

const pageBreak = "\n\n--- Page Break ---\n\n"

// Reader extracts plain text from PDF files. Overlay fills are checked
// with it, since their values exist only as page content.
type Reader struct {
	maxTextSize int
}

// NewReader creates a new PDF reader
func NewReader() *Reader {
	return &Reader{
		maxTextSize: 10 * 1024 * 1024, // 10MB text limit
	}
}

// ReadText extracts the text of the file at path. The path must already
// have been checked against the workspace.
func (r *Reader) ReadText(path string, size int64) (*PDFReadTextResult, error) {
	f, pdfReader, err := pdf.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open PDF: %w", err)
	}
	defer f.Close()

	content, err := r.extractTextContent(pdfReader)
	if err != nil {
		return nil, fmt.Errorf("failed to extract text content: %w", err)
	}

	return &PDFReadTextResult{
		Content: content,
		Path:    path,
		Pages:   pdfReader.NumPage(),
		Size:    size,
	}, nil
}

func (r *Reader) extractTextContent(pdfReader *pdf.Reader) (text string, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("text extraction failed: %v", p)
		}
	}()

	var builder strings.Builder
	for pageNum := 1; pageNum <= pdfReader.NumPage(); pageNum++ {
		page := pdfReader.Page(pageNum)
		if page.V.IsNull() {
			continue
		}

		content, err := page.GetPlainText(nil)
		if err != nil {
			continue
		}

		if builder.Len()+len(content) > r.maxTextSize {
			if remaining := r.maxTextSize - builder.Len(); remaining > 0 {
				builder.WriteString(content[:remaining])
			}
			break
		}
		builder.WriteString(content)

		if pageNum < pdfReader.NumPage() {
			builder.WriteString(pageBreak)
		}
	}

	return builder.String(), nil
}
