package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/pflag"

	"github.com/a3tai/mcp-pdf-form-filler/internal/datasource"
	"github.com/a3tai/mcp-pdf-form-filler/internal/pdf/extraction"
	"github.com/a3tai/mcp-pdf-form-filler/internal/pdf/fill"
	"github.com/a3tai/mcp-pdf-form-filler/internal/pdf/forms"
)

// options are the parsed command line flags
type options struct {
	Template string
	Data     string
	Profile  string
	IDs      []string
	Group    string
	Policy   string
	Output   string
	OutDir   string
	Each     bool
	ReadOnly bool
	Verify   bool
	Format   string

	readOnlySet bool
}

// FillOutput describes one written document
type FillOutput struct {
	IDs        []string          `json:"ids"`
	OutputPath string            `json:"output_path"`
	Policy     string            `json:"policy"`
	Values     map[string]string `json:"values"`
	Warnings   []string          `json:"warnings,omitempty"`
	Recovered  bool              `json:"recovered,omitempty"`
	Mismatches []string          `json:"mismatches,omitempty"`
}

func main() {
	opts, err := parseFlags(os.Args[1:])
	if err != nil {
		if err == pflag.ErrHelp {
			return
		}
		fmt.Fprintf(os.Stderr, "Error: %v\n\n", err)
		printUsage(os.Stderr)
		os.Exit(2)
	}

	outputs, err := run(opts)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	if err := writeResults(os.Stdout, opts.Format, outputs); err != nil {
		fmt.Fprintf(os.Stderr, "Error outputting results: %v\n", err)
		os.Exit(1)
	}
	for _, out := range outputs {
		if len(out.Mismatches) > 0 {
			os.Exit(3)
		}
	}
}

func parseFlags(args []string) (*options, error) {
	opts := &options{}
	fs := pflag.NewFlagSet("pdf_fill_form", pflag.ContinueOnError)
	fs.SetOutput(io.Discard)
	fs.StringVarP(&opts.Template, "template", "t", "", "AcroForm template to fill")
	fs.StringVarP(&opts.Data, "data", "d", "", "Data file (CSV or XLSX)")
	fs.StringVarP(&opts.Profile, "profile", "p", "", "Fill profile (YAML); the built-in profile when empty")
	fs.StringSliceVarP(&opts.IDs, "ids", "i", nil, "Record identifiers, comma separated")
	fs.StringVarP(&opts.Group, "group", "g", "", "Profile group whose fixed values are added")
	fs.StringVar(&opts.Policy, "policy", "", "Render policy (viewer, synthesized, overlay); the profile's when empty")
	fs.StringVarP(&opts.Output, "output", "o", "", "Output file; derived from the identifiers when empty")
	fs.StringVar(&opts.OutDir, "out-dir", ".", "Directory for derived output names")
	fs.BoolVar(&opts.Each, "each", false, "Write one document per identifier instead of one for all")
	fs.BoolVar(&opts.ReadOnly, "read-only", false, "Mark written fields read-only (overrides the profile)")
	fs.BoolVar(&opts.Verify, "verify", false, "Re-read each output with an independent parser")
	fs.StringVar(&opts.Format, "format", "text", "Output format: text, json")
	help := fs.BoolP("help", "h", false, "Show help message")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if *help {
		printHelp(os.Stdout, fs)
		return nil, pflag.ErrHelp
	}
	if opts.Template == "" {
		return nil, fmt.Errorf("--template is required")
	}
	if opts.Data == "" || len(opts.IDs) == 0 {
		return nil, fmt.Errorf("--data and --ids are required")
	}
	if opts.Each && opts.Output != "" {
		return nil, fmt.Errorf("--output cannot be combined with --each")
	}
	if opts.Format != "text" && opts.Format != "json" {
		return nil, fmt.Errorf("unknown format %q", opts.Format)
	}
	opts.readOnlySet = fs.Changed("read-only")
	return opts, nil
}

// run fills the template once, or once per identifier with --each, and
// writes the outputs. Nothing is written for a batch entry that fails.
func run(opts *options) ([]FillOutput, error) {
	template, err := os.ReadFile(opts.Template)
	if err != nil {
		return nil, fmt.Errorf("failed to read template: %w", err)
	}
	profile, err := datasource.LoadProfileOrDefault(opts.Profile)
	if err != nil {
		return nil, err
	}
	table, err := datasource.LoadTable(opts.Data, profile.IDColumn)
	if err != nil {
		return nil, err
	}
	rules, err := profile.Rules()
	if err != nil {
		return nil, err
	}
	groupDefaults, err := profile.GroupDefaults(opts.Group)
	if err != nil {
		return nil, err
	}

	policyName := opts.Policy
	if policyName == "" {
		policyName = profile.Policy
	}
	policy, err := forms.ParsePolicy(policyName)
	if err != nil {
		return nil, err
	}
	readOnly := profile.ReadOnly
	if opts.readOnlySet {
		readOnly = opts.ReadOnly
	}

	batches := [][]string{opts.IDs}
	if opts.Each {
		batches = batches[:0]
		for _, id := range opts.IDs {
			batches = append(batches, []string{id})
		}
	}

	verifier := extraction.NewFormReader()
	var outputs []FillOutput
	for _, ids := range batches {
		res, err := fill.FillForm(template, fill.Request{
			FieldToColumn: profile.Fields,
			SelectedIDs:   ids,
			GroupDefaults: groupDefaults,
			Aggregation:   rules,
			Policy:        policy,
			Source:        table,
			ReadOnly:      readOnly,
		})
		if err != nil {
			return outputs, fmt.Errorf("identifiers %s: %w", strings.Join(ids, ","), err)
		}

		outPath := opts.Output
		if outPath == "" {
			outPath = filepath.Join(opts.OutDir, profile.OutputName(ids))
		}
		if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
			return outputs, fmt.Errorf("failed to create output directory: %w", err)
		}
		if err := os.WriteFile(outPath, res.PDF, 0o644); err != nil {
			return outputs, fmt.Errorf("failed to write output: %w", err)
		}

		out := FillOutput{
			IDs:        ids,
			OutputPath: outPath,
			Policy:     policy.String(),
			Values:     res.Stored,
			Recovered:  res.Recovered,
		}
		for _, w := range res.Warnings {
			out.Warnings = append(out.Warnings, w.String())
		}
		if opts.Verify {
			report, err := verifier.Read(res.PDF)
			if err != nil {
				return outputs, fmt.Errorf("verification of %s failed: %w", outPath, err)
			}
			for _, m := range report.Compare(res.Stored) {
				out.Mismatches = append(out.Mismatches, m.String())
			}
		}
		outputs = append(outputs, out)
	}
	return outputs, nil
}

func writeResults(w io.Writer, format string, outputs []FillOutput) error {
	if format == "json" {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(outputs)
	}

	for _, out := range outputs {
		fmt.Fprintf(w, "%s  (ids %s, policy %s, %d fields)\n",
			out.OutputPath, strings.Join(out.IDs, ","), out.Policy, len(out.Values))
		for _, warning := range out.Warnings {
			fmt.Fprintf(w, "  warning: %s\n", warning)
		}
		for _, m := range out.Mismatches {
			fmt.Fprintf(w, "  mismatch: %s\n", m)
		}
	}
	return nil
}

func printHelp(w io.Writer, fs *pflag.FlagSet) {
	fmt.Fprintln(w, "PDF Fill Form - Fill AcroForm templates from CSV or XLSX records")
	fmt.Fprintln(w)
	printUsage(w)
	fmt.Fprintln(w)
	fmt.Fprintln(w, "OPTIONS:")
	fmt.Fprint(w, fs.FlagUsages())
	fmt.Fprintln(w)
	fmt.Fprintln(w, "EXAMPLES:")
	fmt.Fprintln(w, "  pdf_fill_form -t ficha.pdf -d productos.xlsx -i 1043")
	fmt.Fprintln(w, "  pdf_fill_form -t ficha.pdf -d productos.csv -p ficha.yaml -i 1043,1044 -g climagas")
	fmt.Fprintln(w, "  pdf_fill_form -t ficha.pdf -d productos.csv -i 1043,1044 --each --out-dir out --verify --format json")
}

func printUsage(w io.Writer) {
	fmt.Fprintln(w, "USAGE:")
	fmt.Fprintln(w, "  pdf_fill_form --template <pdf> --data <csv|xlsx> --ids <id,...> [OPTIONS]")
}
