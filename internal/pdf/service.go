package pdf

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/edsrzf/mmap-go"
	"github.com/google/uuid"

	"github.com/a3tai/mcp-pdf-form-filler/internal/binding"
	"github.com/a3tai/mcp-pdf-form-filler/internal/datasource"
	"github.com/a3tai/mcp-pdf-form-filler/internal/pdf/custom"
	"github.com/a3tai/mcp-pdf-form-filler/internal/pdf/extraction"
	"github.com/a3tai/mcp-pdf-form-filler/internal/pdf/fill"
	"github.com/a3tai/mcp-pdf-form-filler/internal/pdf/forms"
	"github.com/a3tai/mcp-pdf-form-filler/internal/pdf/security"
)

// Defaults are the server-wide settings a request can override
type Defaults struct {
	ProfilePath string
	Policy      string
	IDColumn    string
}

// Service handles form filling by orchestrating the PDF components
type Service struct {
	maxFileSize int64
	workspace   *security.Workspace
	reader      *Reader
	validator   *Validator
	formReader  *extraction.FormReader
	scanner     *WorkspaceScanner
	listings    *listingCache
	defaults    Defaults
}

// NewService creates a new PDF service working inside directory
func NewService(maxFileSize int64, directory string, defaults Defaults) (*Service, error) {
	workspace, err := security.NewWorkspace(directory)
	if err != nil {
		return nil, fmt.Errorf("failed to create workspace: %w", err)
	}
	if defaults.Policy != "" {
		if _, err := forms.ParsePolicy(defaults.Policy); err != nil {
			return nil, err
		}
	}

	return &Service{
		maxFileSize: maxFileSize,
		workspace:   workspace,
		reader:      NewReader(),
		validator:   NewValidator(maxFileSize),
		formReader:  extraction.NewFormReader(),
		scanner:     NewWorkspaceScanner(5, 200, 3*time.Second),
		listings:    newListingCache(5 * time.Minute),
		defaults:    defaults,
	}, nil
}

// PDFFillForm fills a template and writes the result into the workspace.
// Nothing is written unless the whole fill succeeds.
func (s *Service) PDFFillForm(ctx context.Context, req PDFFillFormRequest) (*PDFFillFormResult, error) {
	requestID := uuid.NewString()
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	templatePath, _, err := s.workspace.ResolveFile(req.TemplatePath, s.maxFileSize)
	if err != nil {
		return nil, fmt.Errorf("security validation failed: %w", err)
	}

	profile, fromFile, err := s.loadProfile(req.ProfilePath)
	if err != nil {
		return nil, err
	}
	policy, err := s.policy(req.Policy, profile, fromFile)
	if err != nil {
		return nil, err
	}
	readOnly := profile.ReadOnly
	if req.ReadOnly != nil {
		readOnly = *req.ReadOnly
	}
	groupDefaults, err := profile.GroupDefaults(req.Group)
	if err != nil {
		return nil, err
	}

	template, release, err := mapTemplate(templatePath)
	if err != nil {
		return nil, err
	}
	defer release()

	var res *fill.Result
	switch {
	case req.DataPath != "":
		res, err = s.fillFromData(template, req, profile, fromFile, policy, readOnly, groupDefaults)
	case len(req.Values) > 0:
		values := make(binding.ValueBinding, len(req.Values)+len(groupDefaults))
		for name, v := range req.Values {
			values[name] = v
		}
		for name, v := range groupDefaults {
			values[name] = v
		}
		res, err = fill.FillValues(template, values, fill.Options{Policy: policy, ReadOnly: readOnly})
	default:
		return nil, fmt.Errorf("either data_path with ids or values is required")
	}
	if err != nil {
		log.Printf("[%s] fill of %s failed: %v", requestID, templatePath, err)
		return nil, err
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	outName := req.OutputPath
	if outName == "" {
		if len(req.IDs) > 0 {
			outName = profile.OutputName(req.IDs)
		} else {
			base := strings.TrimSuffix(filepath.Base(templatePath), filepath.Ext(templatePath))
			outName = "filled_" + base + ".pdf"
		}
	}
	outPath, err := s.workspace.ResolveOutput(outName)
	if err != nil {
		return nil, fmt.Errorf("security validation failed: %w", err)
	}
	if err := writeAtomic(outPath, res.PDF); err != nil {
		return nil, err
	}
	s.listings.invalidate(s.workspace.Root())

	result := &PDFFillFormResult{
		RequestID:  requestID,
		OutputPath: outPath,
		Size:       int64(len(res.PDF)),
		Policy:     policy.String(),
		IDs:        req.IDs,
		Values:     make(map[string]string, len(res.Binding)),
		Written:    res.Written,
		Recovered:  res.Recovered,
	}
	for name, v := range res.Binding {
		if text, ok := binding.Text(v); ok {
			result.Values[name] = text
		}
	}
	for _, w := range res.Warnings {
		result.Warnings = append(result.Warnings, w.String())
	}

	if req.Verify {
		result.Verification, err = s.verify(outPath, res.PDF, res.Stored)
		if err != nil {
			return nil, err
		}
	}

	log.Printf("[%s] filled %s -> %s (%d fields, %d warnings, policy %s)",
		requestID, templatePath, outPath, len(res.Written), len(res.Warnings), policy)
	return result, nil
}

func (s *Service) fillFromData(template []byte, req PDFFillFormRequest, profile *datasource.Profile,
	fromFile bool, policy forms.RenderPolicy, readOnly bool, groupDefaults map[string]binding.Value,
) (*fill.Result, error) {
	table, err := s.loadTable(req.DataPath, s.idColumn(profile, fromFile))
	if err != nil {
		return nil, err
	}
	rules, err := profile.Rules()
	if err != nil {
		return nil, err
	}
	return fill.FillForm(template, fill.Request{
		FieldToColumn: profile.Fields,
		SelectedIDs:   req.IDs,
		GroupDefaults: groupDefaults,
		Aggregation:   rules,
		Policy:        policy,
		Source:        table,
		ReadOnly:      readOnly,
	})
}

// PDFListFields lists the fields of a form
func (s *Service) PDFListFields(req PDFListFieldsRequest) (*PDFListFieldsResult, error) {
	path, _, err := s.workspace.ResolveFile(req.Path, s.maxFileSize)
	if err != nil {
		return nil, fmt.Errorf("security validation failed: %w", err)
	}
	data, release, err := mapTemplate(path)
	if err != nil {
		return nil, err
	}
	defer release()

	doc, err := custom.Load(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse PDF: %w", err)
	}
	index, err := forms.Resolve(doc)
	if err != nil {
		return nil, err
	}

	result := &PDFListFieldsResult{
		Path:            path,
		Fields:          []FieldInfo{},
		NeedAppearances: index.AcroForm.GetBool("NeedAppearances"),
	}
	for _, f := range index.Fields() {
		info := FieldInfo{
			Name:     f.Name,
			Type:     f.Type.String(),
			Value:    f.Value,
			ReadOnly: f.ReadOnly(),
			Widgets:  len(f.Widgets),
		}
		seen := make(map[int]bool)
		for _, w := range f.Widgets {
			if info.OnState == "" {
				info.OnState = w.OnState
			}
			if w.Page >= 0 && !seen[w.Page] {
				seen[w.Page] = true
				info.Pages = append(info.Pages, w.Page+1)
			}
		}
		result.Fields = append(result.Fields, info)
	}
	result.TotalCount = len(result.Fields)
	return result, nil
}

// PDFListRecords lists the identifiers and columns of a data file
func (s *Service) PDFListRecords(req PDFListRecordsRequest) (*PDFListRecordsResult, error) {
	idColumn := req.IDColumn
	if idColumn == "" {
		profile, fromFile, err := s.loadProfile("")
		if err != nil {
			return nil, err
		}
		idColumn = s.idColumn(profile, fromFile)
	}
	table, err := s.loadTable(req.Path, idColumn)
	if err != nil {
		return nil, err
	}

	ids := table.IDs()
	result := &PDFListRecordsResult{
		Path:       req.Path,
		IDColumn:   table.IDColumn(),
		Columns:    table.Columns(),
		TotalCount: len(ids),
	}
	if req.Limit > 0 && len(ids) > req.Limit {
		ids = ids[:req.Limit]
		result.Truncated = true
	}
	result.IDs = ids
	return result, nil
}

// PDFValidateFile reports whether a file can be used as a template
func (s *Service) PDFValidateFile(req PDFValidateFileRequest) (*PDFValidateFileResult, error) {
	path, err := s.workspace.Resolve(req.Path)
	if err != nil {
		return nil, fmt.Errorf("security validation failed: %w", err)
	}
	info, err := os.Stat(path)
	if err != nil {
		return &PDFValidateFileResult{Path: path, Message: fmt.Sprintf("cannot access file: %v", err)}, nil
	}
	if err := s.validator.ValidateFileInfo(path, info); err != nil {
		return &PDFValidateFileResult{Path: path, Message: err.Error()}, nil
	}

	data, release, err := mapTemplate(path)
	if err != nil {
		return &PDFValidateFileResult{Path: path, Message: err.Error()}, nil
	}
	defer release()
	return s.validator.ValidateFile(path, info, data), nil
}

// PDFReadText extracts the text of a PDF file
func (s *Service) PDFReadText(req PDFReadTextRequest) (*PDFReadTextResult, error) {
	path, info, err := s.workspace.ResolveFile(req.Path, s.maxFileSize)
	if err != nil {
		return nil, fmt.Errorf("security validation failed: %w", err)
	}
	return s.reader.ReadText(path, info.Size())
}

// VerifyOutput re-reads a document with pdfcpu and compares the expected
// field values
func (s *Service) VerifyOutput(req PDFVerifyOutputRequest) (*PDFVerifyOutputResult, error) {
	path, _, err := s.workspace.ResolveFile(req.Path, s.maxFileSize)
	if err != nil {
		return nil, fmt.Errorf("security validation failed: %w", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}
	return s.verify(path, data, req.Expected)
}

func (s *Service) verify(path string, data []byte, expected map[string]string) (*PDFVerifyOutputResult, error) {
	report, err := s.formReader.Read(data)
	if err != nil {
		return nil, fmt.Errorf("verification failed: %w", err)
	}
	mismatches := report.Compare(expected)
	return &PDFVerifyOutputResult{
		Path:       path,
		OK:         len(mismatches) == 0,
		Report:     report,
		Mismatches: mismatches,
	}, nil
}

// GetMaxFileSize returns the maximum file size limit
func (s *Service) GetMaxFileSize() int64 {
	return s.maxFileSize
}

// Directory returns the workspace directory
func (s *Service) Directory() string {
	return s.workspace.Root()
}

// DefaultPolicy returns the policy used when neither the request nor a
// profile names one
func (s *Service) DefaultPolicy() forms.RenderPolicy {
	if p, err := forms.ParsePolicy(s.defaults.Policy); err == nil && s.defaults.Policy != "" {
		return p
	}
	return forms.PolicySynthesized
}

// ValidateConfiguration validates the service configuration
func (s *Service) ValidateConfiguration() error {
	if s.maxFileSize <= 0 {
		return fmt.Errorf("maxFileSize must be greater than 0")
	}

	if s.maxFileSize > 1024*1024*1024 { // 1GB limit
		return fmt.Errorf("maxFileSize cannot exceed 1GB")
	}

	return nil
}

// loadProfile loads the profile at path, the configured one, or the
// built-in default. fromFile reports whether a file was read.
func (s *Service) loadProfile(path string) (*datasource.Profile, bool, error) {
	if path == "" {
		path = s.defaults.ProfilePath
	}
	if path == "" {
		return datasource.DefaultProfile(), false, nil
	}
	resolved, _, err := s.workspace.ResolveFile(path, s.maxFileSize)
	if err != nil {
		return nil, false, fmt.Errorf("security validation failed: %w", err)
	}
	profile, err := datasource.LoadProfile(resolved)
	if err != nil {
		return nil, false, err
	}
	return profile, true, nil
}

// policy picks the render policy: request, then profile file, then server
// default, then the built-in profile.
func (s *Service) policy(name string, profile *datasource.Profile, fromFile bool) (forms.RenderPolicy, error) {
	switch {
	case name != "":
	case fromFile:
		name = profile.Policy
	case s.defaults.Policy != "":
		name = s.defaults.Policy
	default:
		name = profile.Policy
	}
	return forms.ParsePolicy(name)
}

func (s *Service) idColumn(profile *datasource.Profile, fromFile bool) string {
	if !fromFile && s.defaults.IDColumn != "" {
		return s.defaults.IDColumn
	}
	return profile.IDColumn
}

func (s *Service) loadTable(path, idColumn string) (*datasource.Table, error) {
	resolved, _, err := s.workspace.ResolveFile(path, s.maxFileSize)
	if err != nil {
		return nil, fmt.Errorf("security validation failed: %w", err)
	}
	return datasource.LoadTable(resolved, idColumn)
}

// mapTemplate maps the file at path read-only. release must be called once
// the bytes are no longer used.
func mapTemplate(path string) ([]byte, func(), error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open file: %w", err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, nil, fmt.Errorf("failed to stat file: %w", err)
	}
	if info.Size() == 0 {
		f.Close()
		return []byte{}, func() {}, nil
	}

	m, err := mmap.Map(f, mmap.RDONLY, 0)
	if err != nil {
		f.Close()
		return nil, nil, fmt.Errorf("failed to map file: %w", err)
	}
	return m, func() {
		_ = m.Unmap()
		f.Close()
	}, nil
}

// writeAtomic writes data next to path and renames it into place
func writeAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temporary file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to write output: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to write output: %w", err)
	}
	if err := os.Chmod(tmpName, 0644); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to set output permissions: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to move output into place: %w", err)
	}
	return nil
}
