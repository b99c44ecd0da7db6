package datasource

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/a3tai/mcp-pdf-form-filler/internal/binding"
	"github.com/a3tai/mcp-pdf-form-filler/internal/pdf/forms"
)

// Profile describes how a template is filled from a data file: which
// column feeds which field, how batches are combined and which fixed
// values each organisation adds.
type Profile struct {
	IDColumn      string                       `yaml:"id_column"`
	Policy        string                       `yaml:"policy"`
	ReadOnly      bool                         `yaml:"read_only"`
	OutputPattern string                       `yaml:"output_pattern"`
	Fields        map[string]string            `yaml:"fields"`
	Aggregation   map[string]string            `yaml:"aggregation,omitempty"`
	Groups        map[string]map[string]string `yaml:"groups,omitempty"`
}

// DefaultOutputPattern names output files; {id} is replaced by the
// selected identifiers.
const DefaultOutputPattern = "pdf_producto_{id}.pdf"

// DefaultProfile maps the technical data sheet fields filled from the
// product spreadsheet.
func DefaultProfile() *Profile {
	return &Profile{
		IDColumn:      DefaultIDColumn,
		Policy:        forms.PolicySynthesized.String(),
		ReadOnly:      true,
		OutputPattern: DefaultOutputPattern,
		Fields: map[string]string{
			"Potencia Nominal kW":                                "Potencia Nominal kW",
			"Fecha de solicitud de licencia de obra en su defec": "Fecha de solicitud de licencia de obra en su defect",
			"Potencia total inicial":                             "Potencia total inicial",
			"Potencia a modificar":                               "Potencia a modificar",
			"Potencia total final":                               "Potencia total final",
			"Administrativo":                                     "Administrativo",
		},
	}
}

// LoadProfile reads a YAML profile. Settings it leaves out keep their
// default values; a profile without fields uses the default mapping.
func LoadProfile(path string) (*Profile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read profile: %w", err)
	}
	return ParseProfile(data)
}

// LoadProfileOrDefault loads path, or returns the default profile when
// path is empty.
func LoadProfileOrDefault(path string) (*Profile, error) {
	if path == "" {
		return DefaultProfile(), nil
	}
	return LoadProfile(path)
}

// ParseProfile decodes YAML profile data
func ParseProfile(data []byte) (*Profile, error) {
	var p Profile
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("failed to parse profile: %w", err)
	}

	def := DefaultProfile()
	if p.IDColumn == "" {
		p.IDColumn = def.IDColumn
	}
	if p.Policy == "" {
		p.Policy = def.Policy
	}
	if p.OutputPattern == "" {
		p.OutputPattern = def.OutputPattern
	}
	if len(p.Fields) == 0 {
		p.Fields = def.Fields
	}

	if err := p.Validate(); err != nil {
		return nil, err
	}
	return &p, nil
}

// Save writes the profile as YAML
func (p *Profile) Save(path string) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create profile directory: %w", err)
		}
	}
	data, err := yaml.Marshal(p)
	if err != nil {
		return fmt.Errorf("failed to marshal profile: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write profile: %w", err)
	}
	return nil
}

// Validate checks the policy name and aggregation rules
func (p *Profile) Validate() error {
	if _, err := forms.ParsePolicy(p.Policy); err != nil {
		return err
	}
	if _, err := p.Rules(); err != nil {
		return err
	}
	if !strings.Contains(p.OutputPattern, "{id}") {
		return fmt.Errorf("output pattern %q must contain {id}", p.OutputPattern)
	}
	return nil
}

// RenderPolicy returns the parsed policy
func (p *Profile) RenderPolicy() (forms.RenderPolicy, error) {
	return forms.ParsePolicy(p.Policy)
}

// Rules returns the parsed aggregation rules
func (p *Profile) Rules() (map[string]binding.AggregationRule, error) {
	rules := make(map[string]binding.AggregationRule, len(p.Aggregation))
	for field, name := range p.Aggregation {
		rule, err := binding.ParseRule(name)
		if err != nil {
			return nil, fmt.Errorf("field %q: %w", field, err)
		}
		rules[field] = rule
	}
	return rules, nil
}

// GroupNames returns the sorted organisation names
func (p *Profile) GroupNames() []string {
	names := make([]string, 0, len(p.Groups))
	for name := range p.Groups {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// GroupDefaults returns the fixed values of group. An empty name selects
// no group.
func (p *Profile) GroupDefaults(group string) (map[string]binding.Value, error) {
	if group == "" {
		return nil, nil
	}
	values, ok := p.Groups[group]
	if !ok {
		return nil, fmt.Errorf("unknown group %q (known: %s)", group, strings.Join(p.GroupNames(), ", "))
	}
	out := make(map[string]binding.Value, len(values))
	for field, v := range values {
		out[field] = v
	}
	return out, nil
}

var unsafeName = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// OutputName returns the file name for a fill of ids
func (p *Profile) OutputName(ids []string) string {
	parts := make([]string, 0, len(ids))
	for _, id := range ids {
		if s := unsafeName.ReplaceAllString(strings.TrimSpace(id), "_"); s != "" {
			parts = append(parts, s)
		}
	}
	pattern := p.OutputPattern
	if pattern == "" {
		pattern = DefaultOutputPattern
	}
	return strings.ReplaceAll(pattern, "{id}", strings.Join(parts, "_"))
}
