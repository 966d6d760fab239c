package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"invoicepipe/internal/logger"
	"invoicepipe/internal/pipeline"
	"invoicepipe/pkg/models"
)

var extractCmd = &cobra.Command{
	Use:   "extract [file]",
	Short: "Extract invoice fields from a local document",
	Long: `Run a single local document through the whole pipeline (OCR or native
reading, slicing, model extraction, parsing) and print the result as JSON.
Nothing is written to the record store.

Supported files: PDF, PNG/JPEG/TIFF/BMP/GIF images, XLSX spreadsheets and
plain text.`,
	Example: `  # Extract with the default model
  invoicepipe extract invoice.pdf

  # Extract with another model and save the JSON
  invoicepipe extract scan.png --model llama-3-8b.gguf -o result.json`,
	Args: cobra.ExactArgs(1),
	RunE: runExtract,
}

// ExtractOutput is the JSON printed by the extract command.
type ExtractOutput struct {
	File          string                  `json:"file"`
	InvoiceNumber *string                 `json:"invoice_number"`
	CompanyName   *string                 `json:"company_name"`
	InvoiceDate   *string                 `json:"invoice_date"`
	TotalAmount   *float64                `json:"total_amount"`
	Confidence    float64                 `json:"confidence"`
	Method        models.ExtractionMethod `json:"extraction_method"`
	OCRMethod     string                  `json:"ocr_method"`
	Model         string                  `json:"model"`
	TimeTaken     string                  `json:"time_taken"`
}

func init() {
	rootCmd.AddCommand(extractCmd)

	extractCmd.Flags().String("model", "", "Model to use (default: DEFAULT_MODEL)")
	extractCmd.Flags().StringP("output", "o", "", "Output file path (default: stdout)")
}

func runExtract(cmd *cobra.Command, args []string) error {
	log := logger.WithComponent("extract")

	model, _ := cmd.Flags().GetString("model")
	outputPath, _ := cmd.Flags().GetString("output")
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

	if model == "" {
		model = a.cfg.DefaultModel
	}
	engine, err := a.newEngine(model)
	if err != nil {
		return err
	}

	res, err := a.processor.ProcessBytes(ctx, filepath.Base(path), data, engine)
	if err != nil {
		log.Error().Err(err).Str("kind", pipeline.Kind(err)).Msg("Extraction failed")
		return fmt.Errorf("%s: %w", pipeline.Kind(err), err)
	}

	out, err := json.MarshalIndent(ExtractOutput{
		File:          filepath.Base(path),
		InvoiceNumber: res.InvoiceNumber,
		CompanyName:   res.CompanyName,
		InvoiceDate:   res.InvoiceDate,
		TotalAmount:   res.TotalAmount,
		Confidence:    res.Confidence,
		Method:        res.Method,
		OCRMethod:     res.OCRMethod,
		Model:         res.Model,
		TimeTaken:     models.FormatTimeTaken(res.Elapsed),
	}, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to create JSON output: %w", err)
	}
	return writeOutput(outputPath, append(out, '\n'))
}

// readInputFile reads a local document, rejecting directories and empty files.
func readInputFile(path string) ([]byte, error) {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("file not found: %s", path)
		}
		return nil, fmt.Errorf("error accessing file: %w", err)
	}
	if !info.Mode().IsRegular() {
		return nil, fmt.Errorf("path is not a regular file: %s", path)
	}
	if info.Size() == 0 {
		return nil, fmt.Errorf("file is empty: %s", path)
	}
	return os.ReadFile(path)
}

// writeOutput writes to outputPath, or stdout when it is empty.
func writeOutput(outputPath string, data []byte) error {
	if outputPath == "" {
		_, err := os.Stdout.Write(data)
		return err
	}
	if err := os.WriteFile(outputPath, data, 0o644); err != nil {
		return fmt.Errorf("failed to write output file: %w", err)
	}
	return nil
}
