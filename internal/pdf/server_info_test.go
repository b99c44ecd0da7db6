package pdf

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestServerInfo(t *testing.T) {
	service, dir := newTestService(t)
	if err := os.MkdirAll(filepath.Join(dir, "profiles", ".hidden"), 0o755); err != nil {
		t.Fatal(err)
	}
	for _, name := range []string{"profiles/climagas.yml", "profiles/.hidden/x.pdf", ".secret.pdf"} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("x"), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	result, err := service.PDFServerInfo(context.Background(), PDFServerInfoRequest{}, "test-server", "1.0.0-test")
	if err != nil {
		t.Fatalf("Server info failed: %v", err)
	}

	if result.ServerName != "test-server" || result.Version != "1.0.0-test" {
		t.Errorf("unexpected name/version %s %s", result.ServerName, result.Version)
	}
	if result.DefaultDirectory != dir {
		t.Errorf("Expected directory %s, got %s", dir, result.DefaultDirectory)
	}
	if result.DefaultPolicy != "synthesized" {
		t.Errorf("DefaultPolicy = %s", result.DefaultPolicy)
	}
	if len(result.Policies) != 3 {
		t.Errorf("expected 3 policies, got %v", result.Policies)
	}

	kinds := make(map[string]string)
	for _, f := range result.DirectoryContents {
		rel, _ := filepath.Rel(dir, f.Path)
		kinds[rel] = f.Kind
	}
	want := map[string]string{
		"template.pdf":  KindPDF,
		"productos.csv": KindData,
		"profile.yaml":  KindProfile,
		filepath.Join("profiles", "climagas.yml"): KindProfile,
	}
	if len(kinds) != len(want) {
		t.Errorf("DirectoryContents = %v, want %v", kinds, want)
	}
	for name, kind := range want {
		if kinds[name] != kind {
			t.Errorf("%s: kind %q, want %q", name, kinds[name], kind)
		}
	}

	expectedTools := []string{
		"pdf_fill_form", "pdf_list_fields", "pdf_list_records", "pdf_validate_file",
		"pdf_read_text", "pdf_verify_output", "pdf_server_info",
	}
	toolNames := make(map[string]bool)
	for _, tool := range result.AvailableTools {
		toolNames[tool.Name] = true
		if tool.Description == "" || tool.Usage == "" || tool.Parameters == "" {
			t.Errorf("tool %s has empty fields", tool.Name)
		}
	}
	for _, name := range expectedTools {
		if !toolNames[name] {
			t.Errorf("Expected tool %s not found in available tools", name)
		}
	}

	if result.UsageGuidance == "" {
		t.Error("Usage guidance should not be empty")
	}
}

func TestServerInfoListingIsRefreshedAfterFill(t *testing.T) {
	service, _ := newTestService(t)
	ctx := context.Background()

	before, err := service.PDFServerInfo(ctx, PDFServerInfoRequest{}, "s", "v")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := service.PDFFillForm(ctx, PDFFillFormRequest{
		TemplatePath: "template.pdf",
		Values:       map[string]interface{}{"Administrativo": "Ana"},
	}); err != nil {
		t.Fatal(err)
	}
	after, err := service.PDFServerInfo(ctx, PDFServerInfoRequest{}, "s", "v")
	if err != nil {
		t.Fatal(err)
	}
	if len(after.DirectoryContents) != len(before.DirectoryContents)+1 {
		t.Errorf("expected the output to be listed, got %d then %d files",
			len(before.DirectoryContents), len(after.DirectoryContents))
	}
}

func TestWorkspaceScannerLimits(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"a.pdf", "b.pdf", "c.pdf", "deep/d/e.pdf"} {
		path := filepath.Join(dir, name)
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(path, []byte("x"), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	files, truncated, err := NewWorkspaceScanner(0, 2, 0).Scan(context.Background(), dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(files) != 2 || !truncated {
		t.Errorf("file limit: got %d files, truncated=%v", len(files), truncated)
	}

	files, _, err = NewWorkspaceScanner(2, 0, 0).Scan(context.Background(), dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(files) != 3 {
		t.Errorf("depth limit: got %d files, want 3", len(files))
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, _, err := NewWorkspaceScanner(0, 0, time.Second).Scan(ctx, dir); err == nil {
		t.Error("expected cancellation error")
	}
}
