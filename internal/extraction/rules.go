package extraction

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Rules are the business constants embedded into every prompt. They are data
// so the client list and label synonyms can change without a release.
type Rules struct {
	// ClientExclusions are names that are never the vendor.
	ClientExclusions []string `yaml:"client_exclusions"`

	// VendorIgnoreLabels mark blocks that name the client rather than the vendor.
	VendorIgnoreLabels []string `yaml:"vendor_ignore_labels"`

	InvoiceNumberLabels []string `yaml:"invoice_number_labels"`
	DateLabels          []string `yaml:"date_labels"`

	// TotalLabels are accepted synonyms for the amount due.
	TotalLabels []string `yaml:"total_labels"`

	// TotalIgnoreLabels are amounts that must never be reported as the total.
	TotalIgnoreLabels []string `yaml:"total_ignore_labels"`
}

// DefaultRules returns the built-in rule set.
func DefaultRules() Rules {
	return Rules{
		ClientExclusions: []string{
			"Toronto Waterfront Revitalization Corporation",
			"Toronto Waterfront Revitalization",
			"Waterfront Toronto",
			"TWRC",
			"Waterfront",
		},
		VendorIgnoreLabels: []string{
			"Bill To", "Ship To", "Client", "Owner", "Project", "Funding Recipient", "Attention",
		},
		InvoiceNumberLabels: []string{
			"Invoice", "Invoice No", "Invoice #", "Inv.", "Facture", "No. de facture",
		},
		DateLabels: []string{
			"Invoice Date", "Date of Issue", "Date", "Date de facture",
		},
		TotalLabels: []string{
			"Current Invoice", "Total", "Balance Due", "Total Payable", "Amount Due", "Montant dû", "Solde dû",
		},
		TotalIgnoreLabels: []string{
			"Subtotal", "Tax", "Paid to date",
		},
	}
}

// Merge overlays every non-empty list of o onto r.
func (r Rules) Merge(o Rules) Rules {
	pick := func(base, over []string) []string {
		if len(over) > 0 {
			return over
		}
		return base
	}
	return Rules{
		ClientExclusions:    pick(r.ClientExclusions, o.ClientExclusions),
		VendorIgnoreLabels:  pick(r.VendorIgnoreLabels, o.VendorIgnoreLabels),
		InvoiceNumberLabels: pick(r.InvoiceNumberLabels, o.InvoiceNumberLabels),
		DateLabels:          pick(r.DateLabels, o.DateLabels),
		TotalLabels:         pick(r.TotalLabels, o.TotalLabels),
		TotalIgnoreLabels:   pick(r.TotalIgnoreLabels, o.TotalIgnoreLabels),
	}
}

// LoadRules reads a YAML rules document and merges it over the defaults.
func LoadRules(path string) (Rules, error) {
	const op = "LoadRules"

	data, err := os.ReadFile(path)
	if err != nil {
		return Rules{}, fmt.Errorf("%s: failed to read rules file: %w", op, err)
	}

	var override Rules
	if err := yaml.Unmarshal(data, &override); err != nil {
		return Rules{}, fmt.Errorf("%s: failed to parse rules file %s: %w", op, path, err)
	}

	return DefaultRules().Merge(override), nil
}
