package extraction

import (
	"fmt"
	"strings"
	"text/template"

	"invoicepipe/internal/slicer"
	"invoicepipe/pkg/models"
)

const rulesBlock = `### TARGET SCHEMA
Return a JSON object with EXACTLY these four keys:
1. "invoice_number": (string) The unique invoice identifier (e.g., "INV-2025-1234").
2. "company_name": (string) The name of the VENDOR/SUPPLIER issuing the invoice (the entity getting paid).
3. "invoice_date": (string) The date of issue in format YYYY-MM-DD.
4. "total_amount": (number) The final amount due.

### CRITICAL EXTRACTION RULES
- COMPANY NAME:
  - Prefer header or logo text and labels such as "Supplier", "Vendor", "From", "Remit To".
  - Ignore entities labeled {{quoted .Rules.VendorIgnoreLabels}}.
  - NEGATIVE CONSTRAINT: the company is NEVER {{quoted .Rules.ClientExclusions}}. These are the clients. Look for the OTHER company name.
- INVOICE NUMBER:
  - Pick the value nearest the labels {{quoted .Rules.InvoiceNumberLabels}}. Alphanumeric values are allowed.
- DATE:
  - Prefer the labels {{quoted .Rules.DateLabels}}. Do not use "Due Date" unless no invoice date exists.
  - Normalize to YYYY-MM-DD from formats like DD Mon YYYY, MM/DD/YYYY, DD/MM/YYYY (e.g., "Oct 10, 2023" -> "2023-10-10").
- TOTAL AMOUNT:
  - Look for {{quoted .Rules.TotalLabels}}.
  - Never use {{quoted .Rules.TotalIgnoreLabels}} amounts.
  - Output a JSON number (e.g., 1250.50): remove currency symbols and thousands separators, parentheses mean negative.
`

const outputBlock = `
### OUTPUT
Return ONLY the raw JSON object with exactly the four keys. Use null for a value you cannot find.
Do not output markdown blocks or any explanation.

JSON:
`

const fullPageTemplate = `### SYSTEM INSTRUCTIONS
You are a specialized data extraction AI. Read the complete invoice text below and extract structured data into a valid JSON object.

` + rulesBlock + `
### INPUT TEXT (FULL PAGE)
{{.Payload}}
` + outputBlock

const headerFooterTemplate = `### SYSTEM INSTRUCTIONS
You are a specialized data extraction AI. Read the provided invoice text segments and extract structured data into a valid JSON object.

` + rulesBlock + `
### INPUT TEXT (OCR FRAGMENTS)
The following text contains the Header (top of page) and Footer (bottom of page) of the document. The middle was removed.

{{.Payload}}
` + outputBlock

var templateFuncs = template.FuncMap{
	"quoted": func(items []string) string {
		q := make([]string, len(items))
		for i, s := range items {
			q[i] = `"` + s + `"`
		}
		return strings.Join(q, ", ")
	},
}

var templates = map[models.ExtractionMethod]*template.Template{
	models.MethodFullPage:     template.Must(template.New("full_page").Funcs(templateFuncs).Parse(fullPageTemplate)),
	models.MethodHeaderFooter: template.Must(template.New("header_footer").Funcs(templateFuncs).Parse(headerFooterTemplate)),
}

type promptData struct {
	Payload string
	Rules   Rules
}

// BuildPrompt renders the template keyed by the decision's strategy.
func BuildPrompt(d slicer.Decision, rules Rules) (string, error) {
	const op = "BuildPrompt"

	tmpl, ok := templates[d.Strategy]
	if !ok {
		return "", fmt.Errorf("%s: no prompt template for strategy %q", op, d.Strategy)
	}

	var b strings.Builder
	if err := tmpl.Execute(&b, promptData{Payload: d.Payload, Rules: rules}); err != nil {
		return "", fmt.Errorf("%s: failed to render %s template: %w", op, d.Strategy, err)
	}
	return b.String(), nil
}
