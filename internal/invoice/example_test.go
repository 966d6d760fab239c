package invoice_test

import (
	"fmt"

	"invoicepipe/internal/invoice"
	"invoicepipe/pkg/models"
)

// ExampleParse shows a fenced model answer being reduced to its JSON object.
func ExampleParse() {
	raw := "Sure! Here is the data:\n```json\n" +
		`{"invoice_number":"123","company_name":"Acme Co","invoice_date":"2023-10-10","total_amount":1234.56}` +
		"\n```"

	res, err := invoice.Parse(raw)
	if err != nil {
		fmt.Println(err)
		return
	}

	fmt.Println(models.StringValue(res.InvoiceNumber))
	fmt.Println(models.StringValue(res.CompanyName))
	fmt.Println(models.StringValue(res.InvoiceDate))
	fmt.Println(models.FormatAmount(res.TotalAmount))
	fmt.Println(res.Confidence)
	// Output:
	// 123
	// Acme Co
	// 2023-10-10
	// 1234.56
	// 1
}

// ExampleConfidence scores a partial answer: parsed cleanly, two keys present,
// a plausible total and no ISO date.
func ExampleConfidence() {
	c := invoice.Confidence(invoice.Signals{
		WellFormed:     true,
		PresentKeys:    2,
		PlausibleTotal: true,
	}, invoice.DefaultWeights())
	fmt.Println(c)
	// Output: 0.6
}

func ExampleNormalizeDate() {
	for _, in := range []string{"Oct 10, 2023", "10/13/2023", "13/10/2023", "1er octobre 2023", "sometime in fall"} {
		out, ok := invoice.NormalizeDate(in)
		fmt.Println(out, ok)
	}
	// Output:
	// 2023-10-10 true
	// 2023-10-13 true
	// 2023-10-13 true
	// 2023-10-01 true
	// sometime in fall false
}

func ExampleParseAmount() {
	for _, in := range []string{"$1,234.56", "1.234,56 €", "(250.00)", "CA$ 1 000,5"} {
		v, _ := invoice.ParseAmount(in)
		fmt.Printf("%.2f\n", v)
	}
	// Output:
	// 1234.56
	// 1234.56
	// -250.00
	// 1000.50
}
