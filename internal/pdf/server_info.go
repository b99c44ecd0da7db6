package pdf

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/a3tai/mcp-pdf-form-filler/internal/descriptions"
	"github.com/a3tai/mcp-pdf-form-filler/internal/pdf/forms"
)

// File kinds listed in the workspace
const (
	KindPDF     = "pdf"
	KindData    = "data"
	KindProfile = "profile"
)

var fileKinds = map[string]string{
	".pdf":  KindPDF,
	".csv":  KindData,
	".tsv":  KindData,
	".xlsx": KindData,
	".xlsm": KindData,
	".yaml": KindProfile,
	".yml":  KindProfile,
}

// listingCache keeps workspace listings for a limited time
type listingCache struct {
	mu      sync.Mutex
	ttl     time.Duration
	entries map[string]listing
}

type listing struct {
	files   []FileInfo
	scanned time.Time
}

func newListingCache(ttl time.Duration) *listingCache {
	return &listingCache{ttl: ttl, entries: make(map[string]listing)}
}

func (c *listingCache) get(dir string) ([]FileInfo, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[dir]
	if !ok || time.Since(entry.scanned) > c.ttl {
		return nil, false
	}
	return entry.files, true
}

func (c *listingCache) set(dir string, files []FileInfo) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[dir] = listing{files: files, scanned: time.Now()}
}

func (c *listingCache) invalidate(dir string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, dir)
}

// WorkspaceScanner lists the templates, data files and profiles below a
// directory, bounded in depth, count and time.
type WorkspaceScanner struct {
	maxDepth  int
	fileLimit int
	timeLimit time.Duration
}

// NewWorkspaceScanner creates a scanner with the given limits; zero
// disables a limit
func NewWorkspaceScanner(maxDepth, fileLimit int, timeLimit time.Duration) *WorkspaceScanner {
	return &WorkspaceScanner{
		maxDepth:  maxDepth,
		fileLimit: fileLimit,
		timeLimit: timeLimit,
	}
}

// Scan walks root. Hidden entries and symlinks are skipped. The bool
// result reports whether a limit cut the listing short.
func (s *WorkspaceScanner) Scan(ctx context.Context, root string) ([]FileInfo, bool, error) {
	start := time.Now()
	files := []FileInfo{}
	truncated := false

	var walk func(dir string, depth int) error
	walk = func(dir string, depth int) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		if s.maxDepth > 0 && depth >= s.maxDepth {
			return nil
		}

		entries, err := os.ReadDir(dir)
		if err != nil {
			return nil
		}
		for _, entry := range entries {
			if s.fileLimit > 0 && len(files) >= s.fileLimit ||
				s.timeLimit > 0 && time.Since(start) > s.timeLimit {
				truncated = true
				return nil
			}
			if strings.HasPrefix(entry.Name(), ".") || entry.Type()&os.ModeSymlink != 0 {
				continue
			}

			path := filepath.Join(dir, entry.Name())
			if entry.IsDir() {
				if err := walk(path, depth+1); err != nil {
					return err
				}
				continue
			}

			kind, ok := fileKinds[strings.ToLower(filepath.Ext(entry.Name()))]
			if !ok {
				continue
			}
			info, err := entry.Info()
			if err != nil {
				continue
			}
			files = append(files, FileInfo{
				Path:         path,
				Name:         entry.Name(),
				Kind:         kind,
				Size:         info.Size(),
				ModifiedTime: info.ModTime().Format("2006-01-02 15:04:05"),
			})
		}
		return nil
	}

	err := walk(root, 0)
	sort.Slice(files, func(i, j int) bool { return files[i].Path < files[j].Path })
	return files, truncated, err
}

// PDFServerInfo returns server information, the workspace contents and
// usage guidance
func (s *Service) PDFServerInfo(ctx context.Context, _ PDFServerInfoRequest, serverName, version string) (*PDFServerInfoResult, error) {
	dir := s.workspace.Root()

	files, ok := s.listings.get(dir)
	if !ok {
		scanCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()

		var err error
		files, _, err = s.scanner.Scan(scanCtx, dir)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			files = []FileInfo{}
		} else {
			s.listings.set(dir, files)
		}
	}

	var policies []string
	for _, p := range []forms.RenderPolicy{forms.PolicyViewerRegenerate, forms.PolicySynthesized, forms.PolicyOverlay} {
		policies = append(policies, p.String())
	}

	return &PDFServerInfoResult{
		ServerName:        serverName,
		Version:           version,
		DefaultDirectory:  dir,
		MaxFileSize:       s.maxFileSize,
		DefaultPolicy:     s.DefaultPolicy().String(),
		Policies:          policies,
		AvailableTools:    availableTools(),
		DirectoryContents: files,
		UsageGuidance:     s.usageGuidance(),
	}, nil
}

func availableTools() []ToolInfo {
	return []ToolInfo{
		{
			Name:        "pdf_fill_form",
			Description: descriptions.GetToolDescription("pdf_fill_form"),
			Usage:       "Fill a template from data file records or from explicit values and write the result into the workspace.",
			Parameters: "template_path (required), data_path + ids (records to bind) or values (JSON object), " +
				"profile_path, group, policy, read_only, output_path, verify (all optional)",
		},
		{
			Name:        "pdf_list_fields",
			Description: descriptions.GetToolDescription("pdf_list_fields"),
			Usage:       "Inspect a template before mapping columns to it.",
			Parameters:  "path (required): template path, relative to the workspace or absolute inside it",
		},
		{
			Name:        "pdf_list_records",
			Description: descriptions.GetToolDescription("pdf_list_records"),
			Usage:       "See which identifiers and columns a data file offers.",
			Parameters:  "path (required): CSV or XLSX file, id_column (optional), limit (optional)",
		},
		{
			Name:        "pdf_validate_file",
			Description: descriptions.GetToolDescription("pdf_validate_file"),
			Usage:       "Check that a file parses and whether it carries an AcroForm.",
			Parameters:  "path (required): PDF path",
		},
		{
			Name:        "pdf_read_text",
			Description: descriptions.GetToolDescription("pdf_read_text"),
			Usage:       "Read back page text, for example to check an overlay fill.",
			Parameters:  "path (required): PDF path",
		},
		{
			Name:        "pdf_verify_output",
			Description: descriptions.GetToolDescription("pdf_verify_output"),
			Usage:       "Re-read a filled document with an independent parser and compare field values.",
			Parameters:  "path (required): PDF path, expected (optional): JSON object of field values",
		},
		{
			Name:        "pdf_server_info",
			Description: descriptions.GetToolDescription("pdf_server_info"),
			Usage:       "Get the workspace directory, its templates, data files and profiles, and the policies.",
			Parameters:  "none",
		},
	}
}

func (s *Service) usageGuidance() string {
	maxFileSizeMB := s.maxFileSize / (1024 * 1024)

	return fmt.Sprintf(`PDF Form Filler Usage Guide:

1. DISCOVER:
   - Use 'pdf_server_info' to list templates (.pdf), data files (.csv, .xlsx) and profiles (.yaml)
   - Use 'pdf_list_fields' on a template to see its field names and types
   - Use 'pdf_list_records' on a data file to see its identifiers and columns

2. FILL:
   - Use 'pdf_fill_form' with data_path and ids to fill from records
   - Several ids fill one document; columns that differ between the records need
     an aggregation rule (max, sum, first) in the profile
   - Use 'group' to add an organisation's fixed values from the profile
   - Or pass 'values' directly as a JSON object of field name to value

3. RENDER POLICIES:
   - "synthesized" (default): appearance streams are built for every filled field
   - "viewer": the viewer is asked to regenerate appearances
   - "overlay": values are also drawn as page text, for templates without a form

4. CHECK:
   - Set 'verify' or use 'pdf_verify_output' to re-read the output independently
   - Use 'pdf_read_text' to check overlay output

IMPORTANT NOTES:
- Paths are relative to %s or absolute inside it
- The server can handle files up to %dMB
- Output is written only when the whole fill succeeds
- Encrypted templates are not supported`, s.workspace.Root(), maxFileSizeMB)
}
