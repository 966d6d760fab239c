package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"invoicepipe/internal/config"
	"invoicepipe/internal/docsource"
	"invoicepipe/internal/extraction"
	"invoicepipe/internal/invoice"
	"invoicepipe/internal/jobs"
	"invoicepipe/internal/ocr"
	"invoicepipe/internal/pipeline"
	"invoicepipe/internal/raster"
	"invoicepipe/internal/recordstore"
)

// app holds the collaborators shared by the commands.
type app struct {
	cfg        *config.Config
	store      recordstore.Store
	source     docsource.Source
	ocr        *ocr.Service
	recognizer ocr.Recognizer
	processor  *pipeline.Processor
	log        zerolog.Logger
}

// appNeeds selects which collaborators a command builds.
type appNeeds struct {
	store  bool
	source bool
	ocr    bool
}

func newApp(ctx context.Context, needs appNeeds, log zerolog.Logger) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	a := &app{cfg: cfg, log: log}

	if needs.ocr {
		rec, err := ocr.NewRecognizer(ctx, cfg.OCRBackendConfig(), nil)
		if err != nil {
			return nil, handleOCRSetupError(err, log)
		}
		a.recognizer = rec
		a.ocr = ocr.NewService(raster.NewPdftoppmRasterizer(cfg.RasterConfig(), nil), rec, cfg.OCRConfig())
	}

	if needs.source {
		src, err := newSource(cfg)
		if err != nil {
			a.Close()
			return nil, err
		}
		a.source = src
	}

	if needs.store {
		store, err := recordstore.Open(ctx, cfg.RecordStoreConfig())
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("failed to open record store: %w", err)
		}
		a.store = store
	}

	if needs.ocr {
		a.processor = pipeline.NewProcessor(a.source, a.ocr, cfg.SlicerConfig(),
			invoice.NewParser(cfg.Weights(), cfg.Rules().ClientExclusions))
	}
	return a, nil
}

func newSource(cfg *config.Config) (docsource.Source, error) {
	switch cfg.DocSource {
	case "gcdocs":
		return docsource.NewGCDocsClient(cfg.GCDocsConfig()), nil
	case "local":
		return docsource.NewLocalDir(cfg.LocalDocsDir), nil
	}
	return nil, fmt.Errorf("%w: %q", docsource.ErrUnknownSource, cfg.DocSource)
}

// urlTemplate is the browser link template for synced records.
func (a *app) urlTemplate() string {
	if a.cfg.DocSource == "gcdocs" {
		return a.cfg.GCDocsAppURL
	}
	return ""
}

// newEngine builds an extraction engine that owns a fresh model handle.
func (a *app) newEngine(model string) (*extraction.Engine, error) {
	c, err := extraction.NewCompleter(a.cfg.ProviderConfig(), model)
	if err != nil {
		return nil, err
	}
	return extraction.NewEngine(c, a.cfg.Rules(), a.cfg.Sampling()), nil
}

func (a *app) extractorFactory() jobs.ExtractorFactory {
	return func(model string) (pipeline.Extractor, error) {
		e, err := a.newEngine(model)
		if err != nil {
			return nil, err
		}
		return e, nil
	}
}

func (a *app) newController() *jobs.Controller {
	return jobs.NewController(a.store, a.processor, a.extractorFactory(), a.cfg.JobsConfig())
}

func (a *app) listModels() ([]string, error) {
	return extraction.ListModels(a.cfg.ModelsDir)
}

// Close releases the store and any cloud OCR client.
func (a *app) Close() {
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.log.Warn().Err(err).Msg("Failed to close record store")
		}
	}
	if c, ok := a.recognizer.(interface{ Close() error }); ok {
		if err := c.Close(); err != nil {
			a.log.Warn().Err(err).Msg("Failed to close OCR client")
		}
	}
}

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

// handleOCRSetupError gives actionable hints for backend setup failures.
func handleOCRSetupError(err error, log zerolog.Logger) error {
	log.Error().Err(err).Msg("Failed to create OCR backend")

	switch {
	case errors.Is(err, ocr.ErrUnknownBackend):
		return fmt.Errorf("unknown OCR backend. Set OCR_BACKEND to tesseract, vision or documentai: %w", err)
	case errors.Is(err, ocr.ErrMissingCredentials):
		return fmt.Errorf("Google Cloud credentials not configured. Please set one of:\n\n" +
			"1. Export GOOGLE_APPLICATION_CREDENTIALS with path to service account JSON:\n" +
			"   export GOOGLE_APPLICATION_CREDENTIALS=/path/to/service-account-key.json\n\n" +
			"2. Export GOOGLE_CREDENTIALS with inline JSON\n\n" +
			"3. Or use OCR_BACKEND=tesseract for local recognition")
	}
	return fmt.Errorf("failed to create OCR backend: %w", err)
}
