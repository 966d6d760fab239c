package ocr

import (
	"context"
	"fmt"

	vision "cloud.google.com/go/vision/v2/apiv1"
	"cloud.google.com/go/vision/v2/apiv1/visionpb"
)

// MaxImageSizeBytes is the request size limit of the Google backends (20MB).
const MaxImageSizeBytes = 20 * 1024 * 1024

// VisionRecognizer implements Recognizer using Google Cloud Vision API.
type VisionRecognizer struct {
	client *vision.ImageAnnotatorClient
}

// NewVisionRecognizer creates a Vision backend with credentials from environment.
func NewVisionRecognizer(ctx context.Context) (*VisionRecognizer, error) {
	const op = "NewVisionRecognizer"

	opts := googleCredentialOptions()
	client, err := vision.NewImageAnnotatorClient(ctx, opts...)
	if err != nil {
		if len(opts) == 0 {
			return nil, WrapOCRError(op, ErrMissingCredentials, "no credentials found in environment")
		}
		return nil, WrapOCRError(op, err, "failed to create Vision client")
	}

	return &VisionRecognizer{client: client}, nil
}

// NewVisionRecognizerWithClient creates a Vision backend with an explicit client.
func NewVisionRecognizerWithClient(client *vision.ImageAnnotatorClient) *VisionRecognizer {
	return &VisionRecognizer{client: client}
}

// Method implements Recognizer.
func (g *VisionRecognizer) Method() string {
	return "vision"
}

// Recognize implements Recognizer with document text detection on one image.
func (g *VisionRecognizer) Recognize(ctx context.Context, png []byte, language string) (string, error) {
	const op = "VisionRecognize"

	if len(png) > MaxImageSizeBytes {
		return "", WrapOCRError(op, ErrImageTooLarge, fmt.Sprintf("image size: %d bytes", len(png)))
	}

	req := &visionpb.BatchAnnotateImagesRequest{
		Requests: []*visionpb.AnnotateImageRequest{
			{
				Image: &visionpb.Image{Content: png},
				Features: []*visionpb.Feature{
					{Type: visionpb.Feature_DOCUMENT_TEXT_DETECTION},
				},
				ImageContext: &visionpb.ImageContext{
					LanguageHints: languageHints(language),
				},
			},
		},
	}

	resp, err := g.client.BatchAnnotateImages(ctx, req)
	if err != nil {
		return "", WrapOCRError(op, ErrOCRFailed, fmt.Sprintf("Vision API call failed: %v", err))
	}
	if len(resp.Responses) == 0 {
		return "", WrapOCRError(op, ErrOCRFailed, "no response from Vision API")
	}

	page := resp.Responses[0]
	if page.Error != nil {
		return "", WrapOCRError(op, ErrOCRFailed, fmt.Sprintf("Vision API error: %s", page.Error.Message))
	}

	// No annotation means no text was detected, which is not a failure.
	if page.FullTextAnnotation == nil {
		return "", nil
	}
	return page.FullTextAnnotation.Text, nil
}

// Close closes the underlying Vision client.
func (g *VisionRecognizer) Close() error {
	if g.client != nil {
		return g.client.Close()
	}
	return nil
}
