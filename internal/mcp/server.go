package mcp

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/a3tai/mcp-pdf-form-filler/internal/binding"
	"github.com/a3tai/mcp-pdf-form-filler/internal/config"
	"github.com/a3tai/mcp-pdf-form-filler/internal/descriptions"
	"github.com/a3tai/mcp-pdf-form-filler/internal/pdf"
)

const shutdownTimeout = 5 * time.Second

// Server represents the MCP server instance
type Server struct {
	config     *config.Config
	pdfService *pdf.Service
	mcpServer  *server.MCPServer
	tools      []string
}

// NewServer creates a new MCP server instance
func NewServer(cfg *config.Config, pdfService *pdf.Service) (*Server, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	if pdfService == nil {
		return nil, fmt.Errorf("pdfService cannot be nil")
	}

	mcpServer := server.NewMCPServer(
		cfg.ServerName,
		cfg.Version,
		server.WithToolCapabilities(false),
		server.WithRecovery(),
	)

	s := &Server{
		config:     cfg,
		pdfService: pdfService,
		mcpServer:  mcpServer,
	}

	s.registerTools()

	return s, nil
}

func (s *Server) addTool(tool mcp.Tool, handler server.ToolHandlerFunc) {
	s.mcpServer.AddTool(tool, handler)
	s.tools = append(s.tools, tool.Name)
}

// Tools returns the names of the registered tools
func (s *Server) Tools() []string {
	return append([]string(nil), s.tools...)
}

// registerTools registers all available MCP tools
func (s *Server) registerTools() {
	s.addTool(mcp.NewTool(
		"pdf_fill_form",
		mcp.WithDescription(descriptions.GetToolDescription("pdf_fill_form")),
		mcp.WithString("template_path",
			mcp.Required(),
			mcp.Description("Path to the AcroForm template, inside the workspace"),
		),
		mcp.WithString("data_path",
			mcp.Description("Data file (CSV or XLSX) holding the records to bind"),
		),
		mcp.WithArray("ids",
			mcp.Description("Record identifiers to fill into one document"),
			mcp.Items(map[string]any{"type": "string"}),
		),
		mcp.WithObject("values",
			mcp.Description("Field values by full field name, used instead of data_path and ids"),
		),
		mcp.WithString("profile_path",
			mcp.Description("Fill profile (YAML) mapping columns to fields"),
		),
		mcp.WithString("group",
			mcp.Description("Profile group whose fixed values are added"),
		),
		mcp.WithString("policy",
			mcp.Description("Render policy"),
			mcp.Enum("viewer", "synthesized", "overlay"),
		),
		mcp.WithBoolean("read_only",
			mcp.Description("Mark the written fields read-only"),
		),
		mcp.WithString("output_path",
			mcp.Description("Where to write the filled document; derived from the ids when empty"),
		),
		mcp.WithBoolean("verify",
			mcp.Description("Re-read the output with an independent parser"),
		),
	), s.handlePDFFillForm)

	s.addTool(mcp.NewTool(
		"pdf_list_fields",
		mcp.WithDescription(descriptions.GetToolDescription("pdf_list_fields")),
		mcp.WithString("path",
			mcp.Required(),
			mcp.Description("Path to the PDF file"),
		),
	), s.handlePDFListFields)

	s.addTool(mcp.NewTool(
		"pdf_list_records",
		mcp.WithDescription(descriptions.GetToolDescription("pdf_list_records")),
		mcp.WithString("path",
			mcp.Required(),
			mcp.Description("Path to the CSV or XLSX data file"),
		),
		mcp.WithString("id_column",
			mcp.Description("Identifier column; the configured default (PRODUCTO) when empty"),
		),
		mcp.WithNumber("limit",
			mcp.Description("Maximum number of identifiers to return"),
			mcp.Min(0),
		),
	), s.handlePDFListRecords)

	s.addTool(mcp.NewTool(
		"pdf_validate_file",
		mcp.WithDescription(descriptions.GetToolDescription("pdf_validate_file")),
		mcp.WithString("path",
			mcp.Required(),
			mcp.Description("Path to the PDF file"),
		),
	), s.handlePDFValidateFile)

	s.addTool(mcp.NewTool(
		"pdf_read_text",
		mcp.WithDescription(descriptions.GetToolDescription("pdf_read_text")),
		mcp.WithString("path",
			mcp.Required(),
			mcp.Description("Path to the PDF file"),
		),
	), s.handlePDFReadText)

	s.addTool(mcp.NewTool(
		"pdf_verify_output",
		mcp.WithDescription(descriptions.GetToolDescription("pdf_verify_output")),
		mcp.WithString("path",
			mcp.Required(),
			mcp.Description("Path to the filled PDF file"),
		),
		mcp.WithObject("expected",
			mcp.Description("Expected field values by full field name"),
		),
	), s.handlePDFVerifyOutput)

	s.addTool(mcp.NewTool(
		"pdf_server_info",
		mcp.WithDescription(descriptions.GetToolDescription("pdf_server_info")),
	), s.handlePDFServerInfo)
}

// Handler functions
func (s *Server) handlePDFFillForm(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	templatePath, err := request.RequireString("template_path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	args := request.GetArguments()

	req := pdf.PDFFillFormRequest{
		TemplatePath: templatePath,
		DataPath:     request.GetString("data_path", ""),
		IDs:          stringList(args["ids"]),
		ProfilePath:  request.GetString("profile_path", ""),
		Group:        request.GetString("group", ""),
		Policy:       request.GetString("policy", ""),
		OutputPath:   request.GetString("output_path", ""),
		Verify:       request.GetBool("verify", false),
	}
	if values, ok := args["values"].(map[string]any); ok {
		req.Values = values
	}
	if _, ok := args["read_only"]; ok {
		readOnly := request.GetBool("read_only", false)
		req.ReadOnly = &readOnly
	}

	result, err := s.pdfService.PDFFillForm(ctx, req)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	return mcp.NewToolResultText(s.formatPDFFillFormResult(result)), nil
}

func (s *Server) handlePDFListFields(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := request.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	result, err := s.pdfService.PDFListFields(pdf.PDFListFieldsRequest{Path: path})
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	return mcp.NewToolResultText(s.formatPDFListFieldsResult(result)), nil
}

func (s *Server) handlePDFListRecords(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := request.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	req := pdf.PDFListRecordsRequest{
		Path:     path,
		IDColumn: request.GetString("id_column", ""),
		Limit:    request.GetInt("limit", 0),
	}
	result, err := s.pdfService.PDFListRecords(req)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	return mcp.NewToolResultText(s.formatPDFListRecordsResult(result)), nil
}

func (s *Server) handlePDFValidateFile(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := request.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	result, err := s.pdfService.PDFValidateFile(pdf.PDFValidateFileRequest{Path: path})
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	var responseText string
	if result.Valid {
		responseText = fmt.Sprintf("PDF file %s is valid and readable\n", result.Path)
		responseText += fmt.Sprintf("Pages: %d\n", result.Pages)
		if result.HasForm {
			responseText += fmt.Sprintf("Form fields: %d\n", result.FieldCount)
		}
		if result.Recovered {
			responseText += "Cross-reference table was damaged and has been rebuilt\n"
		}
		if result.Message != "" {
			responseText += fmt.Sprintf("Note: %s\n", result.Message)
		}
	} else {
		responseText = fmt.Sprintf("PDF validation failed for %s: %s", result.Path, result.Message)
	}

	return mcp.NewToolResultText(responseText), nil
}

func (s *Server) handlePDFReadText(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := request.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	result, err := s.pdfService.PDFReadText(pdf.PDFReadTextRequest{Path: path})
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	responseText := fmt.Sprintf("Successfully read PDF: %s\n", result.Path)
	responseText += fmt.Sprintf("Pages: %d\n", result.Pages)
	responseText += fmt.Sprintf("Size: %d bytes\n", result.Size)
	responseText += "\nContent:\n"
	responseText += result.Content

	return mcp.NewToolResultText(responseText), nil
}

func (s *Server) handlePDFVerifyOutput(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := request.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	req := pdf.PDFVerifyOutputRequest{Path: path}
	if expected, ok := request.GetArguments()["expected"].(map[string]any); ok {
		req.Expected = make(map[string]string, len(expected))
		for name, v := range expected {
			text, _ := binding.Text(v)
			req.Expected[name] = text
		}
	}

	result, err := s.pdfService.VerifyOutput(req)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	return mcp.NewToolResultText(s.formatPDFVerifyOutputResult(result)), nil
}

func (s *Server) handlePDFServerInfo(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	result, err := s.pdfService.PDFServerInfo(ctx, pdf.PDFServerInfoRequest{}, s.config.ServerName, s.config.Version)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	return mcp.NewToolResultText(s.formatPDFServerInfoResult(result)), nil
}

// stringList accepts identifiers sent as strings or as JSON numbers
func stringList(v any) []string {
	items, ok := v.([]any)
	if !ok {
		if list, ok := v.([]string); ok {
			return list
		}
		return nil
	}
	out := make([]string, 0, len(items))
	for _, item := range items {
		if text, ok := binding.Text(item); ok && text != "" {
			out = append(out, text)
		}
	}
	return out
}

// Formatting methods
func (s *Server) formatPDFFillFormResult(result *pdf.PDFFillFormResult) string {
	text := fmt.Sprintf("Filled form written to: %s\n", result.OutputPath)
	text += fmt.Sprintf("Size: %d bytes\n", result.Size)
	text += fmt.Sprintf("Policy: %s\n", result.Policy)
	if len(result.IDs) > 0 {
		text += fmt.Sprintf("Records: %s\n", strings.Join(result.IDs, ", "))
	}
	if result.Recovered {
		text += "Template cross-reference table was damaged and has been rebuilt\n"
	}

	names := make([]string, 0, len(result.Values))
	for name := range result.Values {
		names = append(names, name)
	}
	sort.Strings(names)
	text += fmt.Sprintf("\nFields written (%d):\n", len(result.Written))
	for _, name := range names {
		text += fmt.Sprintf("  %s = %q\n", name, result.Values[name])
	}

	if len(result.Warnings) > 0 {
		text += "\nWarnings:\n"
		for _, w := range result.Warnings {
			text += fmt.Sprintf("  - %s\n", w)
		}
	}

	if result.Verification != nil {
		text += "\n" + s.formatPDFVerifyOutputResult(result.Verification)
	}

	return text
}

func (s *Server) formatPDFListFieldsResult(result *pdf.PDFListFieldsResult) string {
	text := fmt.Sprintf("Found %d form field(s) in: %s\n", result.TotalCount, result.Path)
	if result.NeedAppearances {
		text += "NeedAppearances is set; viewers regenerate field appearances\n"
	}
	text += "\n"

	for i, field := range result.Fields {
		text += fmt.Sprintf("%d. %s (%s)\n", i+1, field.Name, field.Type)
		if field.Value != "" {
			text += fmt.Sprintf("   Value: %s\n", field.Value)
		}
		if field.OnState != "" {
			text += fmt.Sprintf("   On state: %s\n", field.OnState)
		}
		if field.ReadOnly {
			text += "   Read-only\n"
		}
		if len(field.Pages) > 0 {
			pages := make([]string, len(field.Pages))
			for j, p := range field.Pages {
				pages[j] = fmt.Sprint(p)
			}
			text += fmt.Sprintf("   Widgets: %d on page(s) %s\n", field.Widgets, strings.Join(pages, ", "))
		} else {
			text += fmt.Sprintf("   Widgets: %d\n", field.Widgets)
		}
	}

	return text
}

func (s *Server) formatPDFListRecordsResult(result *pdf.PDFListRecordsResult) string {
	text := fmt.Sprintf("Found %d record(s) in: %s\n", result.TotalCount, result.Path)
	text += fmt.Sprintf("Identifier column: %s\n", result.IDColumn)
	text += fmt.Sprintf("Columns: %s\n", strings.Join(result.Columns, ", "))
	text += fmt.Sprintf("\nIdentifiers:\n  %s\n", strings.Join(result.IDs, ", "))
	if result.Truncated {
		text += fmt.Sprintf("  ... and %d more\n", result.TotalCount-len(result.IDs))
	}
	return text
}

func (s *Server) formatPDFVerifyOutputResult(result *pdf.PDFVerifyOutputResult) string {
	var text string
	if result.OK {
		text = fmt.Sprintf("Verification passed for %s\n", result.Path)
	} else {
		text = fmt.Sprintf("Verification found %d mismatch(es) in %s\n", len(result.Mismatches), result.Path)
		for _, m := range result.Mismatches {
			text += fmt.Sprintf("  - %s\n", m.String())
		}
	}
	if result.Report != nil {
		text += fmt.Sprintf("Pages: %d, fields read: %d\n", result.Report.Pages, len(result.Report.Fields))
		if !result.Report.Valid {
			text += fmt.Sprintf("Structural validation: %s\n", result.Report.ValidationError)
		}
	}
	return text
}

func (s *Server) formatPDFServerInfoResult(result *pdf.PDFServerInfoResult) string {
	text := fmt.Sprintf("📋 %s v%s - Server Information\n", result.ServerName, result.Version)
	text += fmt.Sprintf("📁 Workspace: %s\n", result.DefaultDirectory)
	text += fmt.Sprintf("📏 Max File Size: %d MB\n", result.MaxFileSize/(1024*1024))
	text += fmt.Sprintf("🎨 Render Policy: %s (available: %s)\n\n", result.DefaultPolicy, strings.Join(result.Policies, ", "))

	if len(result.DirectoryContents) > 0 {
		text += fmt.Sprintf("📂 Workspace Contents (%d files found):\n", len(result.DirectoryContents))
		for i, file := range result.DirectoryContents {
			if i >= 20 {
				text += fmt.Sprintf("   ... and %d more files\n", len(result.DirectoryContents)-20)
				break
			}
			text += fmt.Sprintf("   %d. [%s] %s (%d bytes)\n", i+1, file.Kind, file.Name, file.Size)
		}
		text += "\n"
	} else {
		text += "📂 Workspace Contents: No templates, data files or profiles found\n\n"
	}

	text += "🛠️  Available Tools:\n"
	for _, tool := range result.AvailableTools {
		text += fmt.Sprintf("\n• %s\n", tool.Name)
		text += fmt.Sprintf("  Usage: %s\n", tool.Usage)
		text += fmt.Sprintf("  Parameters: %s\n", tool.Parameters)
	}

	text += "\n" + result.UsageGuidance

	return text
}

// Run starts the MCP server in the configured mode
func (s *Server) Run(ctx context.Context) error {
	if s.config.IsServerMode() {
		return s.runServerMode(ctx)
	}
	return s.runStdioMode(ctx)
}

// runStdioMode runs the server in stdio mode
func (s *Server) runStdioMode(_ context.Context) error {
	if s.config.IsDebug() {
		log.Printf("Starting PDF form filler MCP server in stdio mode")
		log.Printf("Workspace: %s", s.config.PDFDirectory)
	}

	if err := server.ServeStdio(s.mcpServer); err != nil {
		return fmt.Errorf("failed to serve stdio: %w", err)
	}
	return nil
}

// runServerMode serves MCP over streamable HTTP until ctx is cancelled
func (s *Server) runServerMode(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.config.Address(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	httpServer := server.NewStreamableHTTPServer(s.mcpServer, server.WithStreamableHTTPServer(srv))
	mux := http.NewServeMux()
	mux.Handle("/mcp", httpServer)
	srv.Handler = mux

	errCh := make(chan error, 1)
	go func() {
		log.Printf("Starting PDF form filler MCP server on http://%s/mcp", s.config.Address())
		errCh <- httpServer.Start(s.config.Address())
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("failed to serve http: %w", err)
		}
		return nil
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("failed to shut down http server: %w", err)
		}
		return nil
	}
}
