package cmd

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"invoicepipe/internal/logger"
	"invoicepipe/internal/pipeline"
)

var ocrCmd = &cobra.Command{
	Use:   "ocr [file]",
	Short: "Print the text the pipeline reads from a document",
	Long: `Rasterize and recognize a document with the configured OCR backend
(OCR_BACKEND) and print the text, exactly as it would be handed to the
slicer. Spreadsheets and text files are read natively.

Only the first MAX_OCR_PAGES pages of a PDF are processed.`,
	Example: `  # Recognize the first page of invoice.pdf
  invoicepipe ocr invoice.pdf

  # Include metadata and output as JSON
  invoicepipe ocr invoice.pdf --json -o result.json`,
	Args: cobra.ExactArgs(1),
	RunE: runOCR,
}

// OCROutput represents the JSON output structure when --json flag is used
type OCROutput struct {
	Text               string `json:"text"`
	Method             string `json:"method"`
	PageCount          int    `json:"page_count,omitempty"`
	FileName           string `json:"file_name"`
	FileSize           int    `json:"file_size"`
	ProcessingDuration string `json:"processing_duration"`
}

func init() {
	rootCmd.AddCommand(ocrCmd)

	ocrCmd.Flags().StringP("output", "o", "", "Output file path (default: stdout)")
	ocrCmd.Flags().BoolP("metadata", "m", false, "Print a metadata header before the text")
	ocrCmd.Flags().Bool("json", false, "Output as JSON")
}

func runOCR(cmd *cobra.Command, args []string) error {
	log := logger.WithComponent("ocr")

	outputPath, _ := cmd.Flags().GetString("output")
	includeMetadata, _ := cmd.Flags().GetBool("metadata")
	jsonOutput, _ := cmd.Flags().GetBool("json")
	path := args[0]

	data, err := readInputFile(path)
	if err != nil {
		return err
	}

	ctx, stop := signalContext()
	defer stop()

	a, err := newApp(ctx, appNeeds{ocr: true}, log)
	if err != nil {
		return err
	}
	defer a.Close()

	start := time.Now()
	text, err := a.processor.ReadText(ctx, filepath.Base(path), data)
	if err != nil {
		return fmt.Errorf("%s: %w", pipeline.Kind(err), err)
	}
	elapsed := time.Since(start)

	log.Info().
		Str("file", path).
		Str("method", text.Method).
		Int("pages", text.Pages).
		Int("text_length", len(text.Content)).
		Dur("duration", elapsed).
		Msg("Text read")

	var out []byte
	switch {
	case jsonOutput:
		out, err = json.MarshalIndent(OCROutput{
			Text:               text.Content,
			Method:             text.Method,
			PageCount:          text.Pages,
			FileName:           filepath.Base(path),
			FileSize:           len(data),
			ProcessingDuration: elapsed.String(),
		}, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to create JSON output: %w", err)
		}
	case includeMetadata:
		var b strings.Builder
		fmt.Fprintf(&b, "=== OCR Results for %s ===\n", filepath.Base(path))
		fmt.Fprintf(&b, "File size: %d bytes\n", len(data))
		fmt.Fprintf(&b, "Method: %s\n", text.Method)
		fmt.Fprintf(&b, "Pages processed: %d\n", text.Pages)
		fmt.Fprintf(&b, "Characters: %d\n", len([]rune(text.Content)))
		fmt.Fprintf(&b, "Processing time: %v\n", elapsed)
		b.WriteString("\n=== Extracted Text ===\n\n")
		b.WriteString(text.Content)
		out = []byte(b.String())
	default:
		out = []byte(text.Content)
	}
	return writeOutput(outputPath, append(out, '\n'))
}
