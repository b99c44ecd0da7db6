package descriptions

// Tool descriptions with practical examples and use cases

const (
	// Filling
	PDFFillFormDescription = `Fill an AcroForm PDF template from data file records or explicit values and write the filled copy.

**When to use:** Need a completed form (a technical sheet, a registration, a declaration) built from a CSV or Excel export or from a handful of values.

**Why it's useful:** Binds records to field names through a profile, aggregates several records into one document, and makes sure every filled value is visible in any viewer by building appearance streams.

**Examples:**
• One record: "Fill ficha.pdf with product 1043 from productos.csv using profiles/ficha.yaml"
• Several records: "Fill ficha.pdf with products 1043 and 1044; take the maximum rated power"
• Organisation defaults: "Fill ficha.pdf for product 1043 with the climagas group values"
• Direct values: "Fill solicitud.pdf with NIF B87512345 and tick Acepto"

**Common workflows:**
1. Discover: pdf_list_fields on the template → pdf_list_records on the data file → write a profile
2. Fill: pdf_fill_form with data_path, ids and profile_path → check warnings
3. Check: set verify=true or call pdf_verify_output on the result

**Best practices:** Nothing is written when any field fails, so a reported error means no partial output. Use the "overlay" policy only for templates whose form layer is missing or unreliable.`

	PDFListFieldsDescription = `List the fillable fields of a PDF template with their types, current values and widget pages.

**When to use:** Before writing a profile, to learn the exact field names a template uses, or to inspect a filled document.

**Why it's useful:** Field names in real templates are often cryptic ("Textfield-110"); this shows the full dotted name, the checkbox on-state and where each widget sits.

**Examples:**
• Mapping columns: "List the fields of ficha.pdf so I can map the CSV columns to them"
• Checkbox states: "What value turns on the Acepto checkbox in solicitud.pdf?"

**Common workflows:**
1. Profile authoring: List fields → match columns → write profile fields and aggregations
2. Debugging: Fill → list fields on the output → compare values

**Best practices:** Use the reported on_state for checkboxes; any other truthy value is mapped to it automatically.`

	PDFListRecordsDescription = `List the identifiers and columns of a CSV or XLSX data file.

**When to use:** Need to know which records can be filled, or which column holds the record identifier.

**Why it's useful:** Reads the first sheet of .xlsx workbooks, detects the CSV delimiter (comma, semicolon or tab) and shows the identifiers exactly as pdf_fill_form will look them up.

**Examples:**
• Record discovery: "Which product ids are in productos.csv?"
• Column check: "What columns does the climagas export have?"

**Common workflows:**
1. Pick records: pdf_list_records → choose ids → pdf_fill_form
2. Profile authoring: pdf_list_records for columns + pdf_list_fields for fields → profile

**Best practices:** Pass id_column when the identifier column is not the configured default (PRODUCTO); set limit for large exports.`

	PDFValidateFileDescription = `Verify that a PDF parses and report whether it carries a fillable form.

**When to use:** Before filling a template you have not used before, or when a fill reports a corrupt document.

**Why it's useful:** Reports the page count, the number of form fields and whether the file needed cross-reference recovery, so a broken template is caught before any data is bound.

**Examples:**
• Template check: "Is ficha.pdf a usable form template?"
• Upload check: "Validate the template the client sent before filling it"

**Common workflows:**
1. New template: Validate → list fields → fill
2. Fill failure: Validate → inspect the message → repair or use the overlay policy

**Best practices:** A valid file without a form can still be filled with the "overlay" policy.`

	PDFReadTextDescription = `Extract the page text of a PDF document.

**When to use:** Need to read a document's printed text, for example to check what an overlay fill drew on the pages.

**Why it's useful:** Uses an independent text extractor, so it shows what a reader of the printed page would see.

**Examples:**
• Overlay check: "Read the text of pdf_producto_1043.pdf to confirm the values were drawn"
• Template text: "What does page 1 of ficha.pdf say?"

**Common workflows:**
1. Overlay fill → pdf_read_text → confirm values appear on the page

**Best practices:** Form field values only appear here when they were drawn with the overlay policy; use pdf_list_fields for form values.`

	PDFVerifyOutputDescription = `Re-read a filled PDF with an independent parser and compare its field values.

**When to use:** After a fill, to confirm that another PDF implementation sees the values that were written.

**Why it's useful:** Catches documents that parse with one reader but not with others, and values that did not land in the fields they were meant for.

**Examples:**
• After a fill: "Verify pdf_producto_1043.pdf contains the expected rated power"
• Audit: "Check out/filled.pdf has NIF B87512345"

**Common workflows:**
1. Fill → pdf_verify_output with the values the fill reported → fix any mismatch

**Best practices:** Pass expected values as a JSON object of field name to value; without them the tool only reports what it read.`

	PDFServerInfoDescription = `Get server settings, available tools, the workspace contents and the render policies.

**When to use:** At the start of a session, to find the templates, data files and profiles available and the server defaults.

**Why it's useful:** Lists .pdf, .csv, .xlsx and .yaml files of the workspace in one call and explains the fill workflow.

**Examples:**
• Discovery: "What templates and data files can I use?"
• Settings: "Which render policy does the server use by default?"

**Common workflows:**
1. Session start: Server info → list fields / list records → fill

**Best practices:** The listing is cached briefly and refreshed after every fill.`
)

// ToolDescriptions maps tool names to their descriptions
var ToolDescriptions = map[string]string{
	"pdf_fill_form":     PDFFillFormDescription,
	"pdf_list_fields":   PDFListFieldsDescription,
	"pdf_list_records":  PDFListRecordsDescription,
	"pdf_validate_file": PDFValidateFileDescription,
	"pdf_read_text":     PDFReadTextDescription,
	"pdf_verify_output": PDFVerifyOutputDescription,
	"pdf_server_info":   PDFServerInfoDescription,
}

// GetToolDescription returns the description for a tool
func GetToolDescription(toolName string) string {
	if desc, exists := ToolDescriptions[toolName]; exists {
		return desc
	}
	return "Tool description not available"
}

// GetAllToolNames returns a list of all available tool names
func GetAllToolNames() []string {
	var names []string
	for name := range ToolDescriptions {
		names = append(names, name)
	}
	return names
}
