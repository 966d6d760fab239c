package ocr

import (
	"context"
	"fmt"
	"strings"

	documentai "cloud.google.com/go/documentai/apiv1"
	"cloud.google.com/go/documentai/apiv1/documentaipb"
	"google.golang.org/api/option"
)

// DocumentAIConfig identifies a Document AI OCR processor.
type DocumentAIConfig struct {
	ProjectID        string
	Location         string
	ProcessorID      string
	ProcessorVersion string
}

// ProcessorName returns the fully qualified processor resource name.
func (c DocumentAIConfig) ProcessorName() string {
	name := fmt.Sprintf("projects/%s/locations/%s/processors/%s", c.ProjectID, c.Location, c.ProcessorID)
	if c.ProcessorVersion != "" {
		name += "/processorVersions/" + c.ProcessorVersion
	}
	return name
}

// DocumentAIRecognizer implements Recognizer with a Document AI OCR processor.
type DocumentAIRecognizer struct {
	client *documentai.DocumentProcessorClient
	config DocumentAIConfig
}

// NewDocumentAIRecognizer creates a Document AI backend with credentials from environment.
func NewDocumentAIRecognizer(ctx context.Context, cfg DocumentAIConfig) (*DocumentAIRecognizer, error) {
	const op = "NewDocumentAIRecognizer"

	if cfg.ProjectID == "" || cfg.ProcessorID == "" {
		return nil, NewOCRError(op, ErrUnknownBackend, "GOOGLE_CLOUD_PROJECT and DOCUMENT_AI_PROCESSOR_ID are required")
	}
	if cfg.Location == "" {
		cfg.Location = "us"
	}

	var opts []option.ClientOption
	if cfg.Location != "us" {
		opts = append(opts, option.WithEndpoint(fmt.Sprintf("%s-documentai.googleapis.com:443", cfg.Location)))
	}
	creds := googleCredentialOptions()
	opts = append(opts, creds...)

	client, err := documentai.NewDocumentProcessorClient(ctx, opts...)
	if err != nil {
		if len(creds) == 0 {
			return nil, WrapOCRError(op, ErrMissingCredentials, "no credentials found in environment")
		}
		return nil, WrapOCRError(op, err, fmt.Sprintf("failed to create Document AI client for location: %s", cfg.Location))
	}

	return &DocumentAIRecognizer{client: client, config: cfg}, nil
}

// Method implements Recognizer.
func (d *DocumentAIRecognizer) Method() string {
	return "documentai"
}

// Recognize implements Recognizer.
func (d *DocumentAIRecognizer) Recognize(ctx context.Context, png []byte, _ string) (string, error) {
	const op = "DocumentAIRecognize"

	if len(png) > MaxImageSizeBytes {
		return "", WrapOCRError(op, ErrImageTooLarge, fmt.Sprintf("image size: %d bytes", len(png)))
	}

	req := &documentaipb.ProcessRequest{
		Name: d.config.ProcessorName(),
		Source: &documentaipb.ProcessRequest_RawDocument{
			RawDocument: &documentaipb.RawDocument{
				Content:  png,
				MimeType: "image/png",
			},
		},
	}

	resp, err := d.client.ProcessDocument(ctx, req)
	if err != nil {
		return "", WrapOCRError(op, ErrOCRFailed, describeDocumentAIError(err))
	}
	if resp.Document == nil {
		return "", nil
	}
	return resp.Document.Text, nil
}

// describeDocumentAIError turns gRPC status text into a short reason.
func describeDocumentAIError(err error) string {
	msg := err.Error()
	switch {
	case strings.Contains(msg, "PermissionDenied"), strings.Contains(msg, "PERMISSION_DENIED"):
		return "insufficient permissions for Document AI"
	case strings.Contains(msg, "ResourceExhausted"), strings.Contains(msg, "QUOTA_EXCEEDED"):
		return "Document AI API quota exceeded"
	case strings.Contains(msg, "NotFound"), strings.Contains(msg, "NOT_FOUND"):
		return "processor not found"
	case strings.Contains(msg, "InvalidArgument"), strings.Contains(msg, "INVALID_ARGUMENT"):
		return "image format not supported or corrupted"
	}
	return fmt.Sprintf("Document AI call failed: %v", err)
}

// Close closes the underlying Document AI client.
func (d *DocumentAIRecognizer) Close() error {
	if d.client != nil {
		return d.client.Close()
	}
	return nil
}
