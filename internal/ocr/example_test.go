package ocr_test

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"invoicepipe/internal/ocr"
	"invoicepipe/internal/raster"
)

// ExampleNormalize shows the whitespace cleanup applied to recognized text.
func ExampleNormalize() {
	raw := "INVOICE   #123\r\nAcme Co\t \n\n\n\nTotal: $1,234.56"
	fmt.Println(ocr.Normalize(raw))
	// Output:
	// INVOICE #123
	// Acme Co
	//
	// Total: $1,234.56
}

// ExampleService_ProcessPDF demonstrates first-page OCR of a PDF with tesseract.
func ExampleService_ProcessPDF() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pdf, err := os.ReadFile("sample_invoice.pdf")
	if err != nil {
		log.Fatalf("Failed to read PDF: %v", err)
	}

	cfg := ocr.DefaultConfig()
	cfg.DPI = raster.DPIHigh

	svc := ocr.NewService(
		raster.NewPdftoppmRasterizer(raster.DefaultConfig(), nil),
		ocr.NewTesseractRecognizer("", nil),
		cfg,
	)

	result, err := svc.ProcessPDF(ctx, pdf)
	if err != nil {
		log.Fatalf("OCR failed: %v", err)
	}

	fmt.Printf("%d of %d pages, %d chars via %s\n",
		result.PageCount, result.TotalPages, len(result.Text), result.Method)
}
