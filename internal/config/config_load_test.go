package config

import (
	"os"
	"strings"
	"testing"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

var envVars = []string{
	"MCP_PDF_MODE", "MCP_PDF_HOST", "MCP_PDF_PORT", "MCP_PDF_DIR", "MCP_PDF_LOG_LEVEL",
	"MCP_PDF_MAX_FILE_SIZE", "MCP_PDF_PROFILE", "MCP_PDF_POLICY", "MCP_PDF_ID_COLUMN",
}

func resetFlags() {
	pflag.CommandLine = pflag.NewFlagSet(os.Args[0], pflag.ContinueOnError)
	viper.Reset()
}

func clearEnvVars() {
	for _, name := range envVars {
		os.Unsetenv(name)
	}
}

// withArgs runs LoadFromFlags with the given arguments and a clean flag set
func withArgs(t *testing.T, args ...string) (*Config, error) {
	t.Helper()
	originalArgs := os.Args
	t.Cleanup(func() {
		os.Args = originalArgs
		resetFlags()
		clearEnvVars()
	})

	os.Args = append([]string{"mcp-pdf-form-filler"}, args...)
	resetFlags()
	return LoadFromFlags()
}

func TestLoadFromFlags_DefaultConfig(t *testing.T) {
	clearEnvVars()
	cfg, err := withArgs(t)
	if err != nil {
		t.Fatalf("LoadFromFlags() unexpected error: %v", err)
	}

	if cfg.Mode != "stdio" {
		t.Errorf("LoadFromFlags() Mode = %v, want %v", cfg.Mode, "stdio")
	}
	if cfg.Host != "127.0.0.1" {
		t.Errorf("LoadFromFlags() Host = %v, want %v", cfg.Host, "127.0.0.1")
	}
	if cfg.Port != 8080 {
		t.Errorf("LoadFromFlags() Port = %v, want %v", cfg.Port, 8080)
	}
	if cfg.LogLevel != "info" {
		t.Errorf("LoadFromFlags() LogLevel = %v, want %v", cfg.LogLevel, "info")
	}
	if cfg.MaxFileSize != 100*1024*1024 {
		t.Errorf("LoadFromFlags() MaxFileSize = %v, want %v", cfg.MaxFileSize, 100*1024*1024)
	}
	if cfg.Policy != "synthesized" {
		t.Errorf("LoadFromFlags() Policy = %v, want synthesized", cfg.Policy)
	}
	if cfg.PDFDirectory == "" {
		t.Error("LoadFromFlags() PDFDirectory should not be empty")
	}
}

func TestLoadFromFlags_ValidFlags(t *testing.T) {
	tests := []struct {
		name            string
		args            []string
		wantMode        string
		wantPort        int
		wantLogLevel    string
		wantMaxFileSize int64
		wantPolicy      string
		wantProfile     string
		wantIDColumn    string
	}{
		{
			name:            "stdio mode with custom directory",
			wantMode:        "stdio",
			wantPort:        8080,
			wantLogLevel:    "info",
			wantMaxFileSize: 100 * 1024 * 1024,
			wantPolicy:      "synthesized",
		},
		{
			name:            "server mode with custom port",
			args:            []string{"--mode=server", "--port=9090"},
			wantMode:        "server",
			wantPort:        9090,
			wantLogLevel:    "info",
			wantMaxFileSize: 100 * 1024 * 1024,
			wantPolicy:      "synthesized",
		},
		{
			name:            "debug logging and max file size",
			args:            []string{"--log-level=debug", "--max-file-size=50000000"},
			wantMode:        "stdio",
			wantPort:        8080,
			wantLogLevel:    "debug",
			wantMaxFileSize: 50000000,
			wantPolicy:      "synthesized",
		},
		{
			name:            "fill defaults",
			args:            []string{"--profile=ficha.yaml", "--policy=overlay", "--id-column=REF"},
			wantMode:        "stdio",
			wantPort:        8080,
			wantLogLevel:    "info",
			wantMaxFileSize: 100 * 1024 * 1024,
			wantPolicy:      "overlay",
			wantProfile:     "ficha.yaml",
			wantIDColumn:    "REF",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnvVars()
			tempDir := t.TempDir()
			cfg, err := withArgs(t, append(tt.args, "--dir="+tempDir)...)
			if err != nil {
				t.Fatalf("LoadFromFlags() unexpected error: %v", err)
			}

			if cfg.Mode != tt.wantMode {
				t.Errorf("Mode = %v, want %v", cfg.Mode, tt.wantMode)
			}
			if cfg.Port != tt.wantPort {
				t.Errorf("Port = %v, want %v", cfg.Port, tt.wantPort)
			}
			if cfg.LogLevel != tt.wantLogLevel {
				t.Errorf("LogLevel = %v, want %v", cfg.LogLevel, tt.wantLogLevel)
			}
			if cfg.MaxFileSize != tt.wantMaxFileSize {
				t.Errorf("MaxFileSize = %v, want %v", cfg.MaxFileSize, tt.wantMaxFileSize)
			}
			if cfg.Policy != tt.wantPolicy {
				t.Errorf("Policy = %v, want %v", cfg.Policy, tt.wantPolicy)
			}
			if cfg.ProfilePath != tt.wantProfile {
				t.Errorf("ProfilePath = %v, want %v", cfg.ProfilePath, tt.wantProfile)
			}
			if cfg.IDColumn != tt.wantIDColumn {
				t.Errorf("IDColumn = %v, want %v", cfg.IDColumn, tt.wantIDColumn)
			}
			if cfg.PDFDirectory != tempDir {
				t.Errorf("PDFDirectory = %v, want %v", cfg.PDFDirectory, tempDir)
			}
		})
	}
}

func TestLoadFromFlags_EnvironmentVariables(t *testing.T) {
	clearEnvVars()
	tempDir := t.TempDir()

	t.Setenv("MCP_PDF_MODE", "server")
	t.Setenv("MCP_PDF_HOST", "192.168.1.1")
	t.Setenv("MCP_PDF_PORT", "3000")
	t.Setenv("MCP_PDF_DIR", tempDir)
	t.Setenv("MCP_PDF_LOG_LEVEL", "warn")
	t.Setenv("MCP_PDF_MAX_FILE_SIZE", "200000000")
	t.Setenv("MCP_PDF_POLICY", "viewer")
	t.Setenv("MCP_PDF_ID_COLUMN", "Codigo")

	cfg, err := withArgs(t)
	if err != nil {
		t.Fatalf("LoadFromFlags() unexpected error: %v", err)
	}

	if cfg.Mode != "server" {
		t.Errorf("Mode = %v, want %v", cfg.Mode, "server")
	}
	if cfg.Host != "192.168.1.1" {
		t.Errorf("Host = %v, want %v", cfg.Host, "192.168.1.1")
	}
	if cfg.Port != 3000 {
		t.Errorf("Port = %v, want %v", cfg.Port, 3000)
	}
	if cfg.LogLevel != "warn" {
		t.Errorf("LogLevel = %v, want %v", cfg.LogLevel, "warn")
	}
	if cfg.MaxFileSize != 200000000 {
		t.Errorf("MaxFileSize = %v, want %v", cfg.MaxFileSize, 200000000)
	}
	if cfg.Policy != "viewer" {
		t.Errorf("Policy = %v, want viewer", cfg.Policy)
	}
	if cfg.IDColumn != "Codigo" {
		t.Errorf("IDColumn = %v, want Codigo", cfg.IDColumn)
	}
}

func TestLoadFromFlags_FlagOverridesEnvironment(t *testing.T) {
	clearEnvVars()
	t.Setenv("MCP_PDF_MODE", "server")
	t.Setenv("MCP_PDF_HOST", "192.168.1.1")
	t.Setenv("MCP_PDF_PORT", "3000")
	t.Setenv("MCP_PDF_POLICY", "overlay")

	cfg, err := withArgs(t, "--mode=stdio", "--host=localhost", "--port=8888", "--policy=viewer", "--dir="+t.TempDir())
	if err != nil {
		t.Fatalf("LoadFromFlags() unexpected error: %v", err)
	}

	if cfg.Mode != "stdio" {
		t.Errorf("Mode = %v, want %v (should override env)", cfg.Mode, "stdio")
	}
	if cfg.Host != "localhost" {
		t.Errorf("Host = %v, want %v (should override env)", cfg.Host, "localhost")
	}
	if cfg.Port != 8888 {
		t.Errorf("Port = %v, want %v (should override env)", cfg.Port, 8888)
	}
	if cfg.Policy != "viewer" {
		t.Errorf("Policy = %v, want viewer (should override env)", cfg.Policy)
	}
}

func TestLoadFromFlags_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		args    []string
		wantErr string
	}{
		{name: "mode", args: []string{"--mode=invalid"}, wantErr: "mode must be either 'stdio' or 'server'"},
		{name: "port", args: []string{"--mode=server", "--port=99999"}, wantErr: "port must be between 1 and 65535"},
		{name: "log level", args: []string{"--log-level=invalid"}, wantErr: "invalid log level"},
		{name: "policy", args: []string{"--policy=flatten"}, wantErr: "unknown render policy"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnvVars()
			_, err := withArgs(t, append(tt.args, "--dir="+t.TempDir())...)
			if err == nil {
				t.Fatalf("LoadFromFlags() expected error for invalid %s", tt.name)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("LoadFromFlags() error = %v, want error containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestLoadFromFlags_VersionFlag(t *testing.T) {
	clearEnvVars()
	_, err := withArgs(t, "--version")
	if err == nil {
		t.Fatal("LoadFromFlags() expected version error")
	}
	if err.Error() != "version requested" {
		t.Errorf("LoadFromFlags() error = %v, want 'version requested'", err)
	}
}
