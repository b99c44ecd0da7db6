package pdf

import (
	"fmt"
	"os"
	"strings"

	"github.com/ledongthuc/pdf"

	"github.com/a3tai/mcp-pdf-form-filler/internal/pdf/custom"
	pdferrors "github.com/a3tai/mcp-pdf-form-filler/internal/pdf/errors"
	"github.com/a3tai/mcp-pdf-form-filler/internal/pdf/forms"
)

// Validator checks whether a file can be used as a template
type Validator struct {
	maxFileSize int64
}

// NewValidator creates a new PDF validator with the specified constraints
func NewValidator(maxFileSize int64) *Validator {
	return &Validator{
		maxFileSize: maxFileSize,
	}
}

// ValidateFile checks the file at path, which must already have been
// resolved inside the workspace. Problems with the file are reported in
// the result, not as an error.
func (v *Validator) ValidateFile(path string, info os.FileInfo, data []byte) *PDFValidateFileResult {
	result := &PDFValidateFileResult{Path: path}

	if err := v.ValidateFileInfo(path, info); err != nil {
		result.Message = err.Error()
		return result
	}

	doc, err := custom.Load(data)
	if err != nil {
		result.Message = fmt.Sprintf("invalid PDF file: %v", err)
		return result
	}
	result.Pages = len(doc.Pages())
	result.Recovered = doc.Recovered()

	index, err := forms.Resolve(doc)
	switch {
	case err == nil:
		result.HasForm = true
		result.FieldCount = index.Len()
	case pdferrors.IsKind(err, pdferrors.KindNoFormFields):
		result.Message = "document has no AcroForm; only the overlay policy can fill it"
	default:
		result.Message = err.Error()
		return result
	}

	result.Valid = true
	if msg := v.checkTextLayer(path); msg != "" {
		result.Message = joinMessages(result.Message, msg)
	}
	return result
}

// ValidateFileInfo performs basic validation on file info without opening the PDF
func (v *Validator) ValidateFileInfo(filePath string, fileInfo os.FileInfo) error {
	if fileInfo.IsDir() {
		return fmt.Errorf("path is a directory, not a file: %s", filePath)
	}

	if !strings.HasSuffix(strings.ToLower(filePath), ".pdf") {
		return fmt.Errorf("file is not a PDF: %s", filePath)
	}

	if fileInfo.Size() == 0 {
		return fmt.Errorf("file is empty: %s", filePath)
	}

	if v.maxFileSize > 0 && fileInfo.Size() > v.maxFileSize {
		return fmt.Errorf("file too large: %d bytes (max: %d bytes)",
			fileInfo.Size(), v.maxFileSize)
	}

	return nil
}

// checkTextLayer opens the file with the text extractor. A failure does
// not make the template unusable for filling.
func (v *Validator) checkTextLayer(path string) (msg string) {
	defer func() {
		if p := recover(); p != nil {
			msg = fmt.Sprintf("text layer cannot be read: %v", p)
		}
	}()

	f, _, err := pdf.Open(path)
	if err != nil {
		return fmt.Sprintf("text layer cannot be read: %v", err)
	}
	f.Close()
	return ""
}

func joinMessages(a, b string) string {
	if a == "" {
		return b
	}
	return a + "; " + b
}
