package pdf

import "github.com/a3tai/mcp-pdf-form-filler/internal/pdf/extraction"

// FileInfo represents information about a file in the workspace
type FileInfo struct {
	Path         string `json:"path"`
	Name         string `json:"name"`
	Kind         string `json:"kind"` // "pdf", "data" or "profile"
	Size         int64  `json:"size"`
	ModifiedTime string `json:"modified_time"`
}

// Request Types

// PDFFillFormRequest represents a request to fill a template. Values are
// taken from the records selected by IDs in the data file, or from Values
// when no data file is given.
type PDFFillFormRequest struct {
	TemplatePath string                 `json:"template_path"`
	DataPath     string                 `json:"data_path,omitempty"`
	IDs          []string               `json:"ids,omitempty"`
	Values       map[string]interface{} `json:"values,omitempty"`
	ProfilePath  string                 `json:"profile_path,omitempty"`
	Group        string                 `json:"group,omitempty"`
	Policy       string                 `json:"policy,omitempty"`
	ReadOnly     *bool                  `json:"read_only,omitempty"`
	OutputPath   string                 `json:"output_path,omitempty"`
	Verify       bool                   `json:"verify,omitempty"`
}

// PDFListFieldsRequest represents a request to list the fields of a form
type PDFListFieldsRequest struct {
	Path string `json:"path"`
}

// PDFListRecordsRequest represents a request to list the records of a data file
type PDFListRecordsRequest struct {
	Path     string `json:"path"`
	IDColumn string `json:"id_column,omitempty"`
	Limit    int    `json:"limit,omitempty"`
}

// PDFValidateFileRequest represents a request to validate a PDF file
type PDFValidateFileRequest struct {
	Path string `json:"path"`
}

// PDFReadTextRequest represents a request to extract the text of a PDF file
type PDFReadTextRequest struct {
	Path string `json:"path"`
}

// PDFVerifyOutputRequest represents a request to re-read a filled document
// and compare its field values
type PDFVerifyOutputRequest struct {
	Path     string            `json:"path"`
	Expected map[string]string `json:"expected,omitempty"`
}

// PDFServerInfoRequest represents a request to get server information and capabilities
type PDFServerInfoRequest struct {
	// No parameters needed for server info
}

// Response Types

// PDFFillFormResult represents the result of a fill
type PDFFillFormResult struct {
	RequestID    string                 `json:"request_id"`
	OutputPath   string                 `json:"output_path"`
	Size         int64                  `json:"size"`
	Policy       string                 `json:"policy"`
	IDs          []string               `json:"ids,omitempty"`
	Values       map[string]string      `json:"values"`
	Written      []string               `json:"written"`
	Warnings     []string               `json:"warnings,omitempty"`
	Recovered    bool                   `json:"recovered,omitempty"`
	Verification *PDFVerifyOutputResult `json:"verification,omitempty"`
}

// FieldInfo describes one form field
type FieldInfo struct {
	Name     string `json:"name"`
	Type     string `json:"type"`
	Value    string `json:"value,omitempty"`
	ReadOnly bool   `json:"read_only,omitempty"`
	OnState  string `json:"on_state,omitempty"`
	Widgets  int    `json:"widgets"`
	Pages    []int  `json:"pages,omitempty"` // 1-based
}

// PDFListFieldsResult represents the fields of a form
type PDFListFieldsResult struct {
	Path            string      `json:"path"`
	Fields          []FieldInfo `json:"fields"`
	TotalCount      int         `json:"total_count"`
	NeedAppearances bool        `json:"need_appearances"`
}

// PDFListRecordsResult represents the records of a data file
type PDFListRecordsResult struct {
	Path       string   `json:"path"`
	IDColumn   string   `json:"id_column"`
	Columns    []string `json:"columns"`
	IDs        []string `json:"ids"`
	TotalCount int      `json:"total_count"`
	Truncated  bool     `json:"truncated,omitempty"`
}

// PDFValidateFileResult represents the result of a PDF validation operation
type PDFValidateFileResult struct {
	Valid      bool   `json:"valid"`
	Path       string `json:"path"`
	Message    string `json:"message,omitempty"`
	Pages      int    `json:"pages,omitempty"`
	HasForm    bool   `json:"has_form"`
	FieldCount int    `json:"field_count,omitempty"`
	Recovered  bool   `json:"recovered,omitempty"`
}

// PDFReadTextResult represents the text content of a PDF file
type PDFReadTextResult struct {
	Content string `json:"content"`
	Path    string `json:"path"`
	Pages   int    `json:"pages"`
	Size    int64  `json:"size"`
}

// PDFVerifyOutputResult represents what an independent reader finds in a
// filled document
type PDFVerifyOutputResult struct {
	Path       string                `json:"path"`
	OK         bool                  `json:"ok"`
	Report     *extraction.Report    `json:"report"`
	Mismatches []extraction.Mismatch `json:"mismatches,omitempty"`
}

// PDFServerInfoResult represents server information and usage guidance
type PDFServerInfoResult struct {
	ServerName        string     `json:"server_name"`
	Version           string     `json:"version"`
	DefaultDirectory  string     `json:"default_directory"`
	MaxFileSize       int64      `json:"max_file_size"`
	DefaultPolicy     string     `json:"default_policy"`
	Policies          []string   `json:"policies"`
	AvailableTools    []ToolInfo `json:"available_tools"`
	DirectoryContents []FileInfo `json:"directory_contents"`
	UsageGuidance     string     `json:"usage_guidance"`
}

// ToolInfo represents information about an available tool
type ToolInfo struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Usage       string `json:"usage"`
	Parameters  string `json:"parameters"`
}
