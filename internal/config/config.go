// Package config loads settings from the environment (optionally seeded from
// a .env file by main) and hands each package its typed sub-configuration.
//
// Only the settings of the selected backends are required: RECORD_STORE
// decides which store variables must be set, DOC_SOURCE which source
// variables, OCR_BACKEND which cloud variables.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
	"invoicepipe/internal/docsource"
	"invoicepipe/internal/extraction"
	"invoicepipe/internal/invoice"
	"invoicepipe/internal/jobs"
	"invoicepipe/internal/logger"
	"invoicepipe/internal/ocr"
	"invoicepipe/internal/raster"
	"invoicepipe/internal/recordstore"
	"invoicepipe/internal/slicer"
)

type Config struct {
	// HTTP server
	HTTPAddr string

	// LLM Configuration
	LLMProvider     string
	LLMBaseURL      string
	OpenAIAPIKey    string
	AnthropicAPIKey string
	OllamaURL       string
	ModelsDir       string
	DefaultModel    string
	LLMTemperature  float64
	LLMMaxTokens    int
	LLMStop         []string

	// OCR Configuration
	OCRBackend     string
	OCRLanguage    string
	OCRDPI         string
	MaxOCRPages    int
	OCRContrast    float64
	OCRSharpen     float64
	PdftoppmPath   string
	PdfinfoPath    string
	TesseractPath  string
	RenderCacheDir string

	// Google Cloud Configuration (vision and documentai backends)
	GoogleCloudProject         string
	GoogleCloudLocation        string
	DocumentAIProcessorID      string
	DocumentAIProcessorVersion string

	// Slicing Configuration
	SliceMaxPageChars int
	SliceHeaderChars  int
	SliceFooterChars  int

	// Extraction rules
	RulesFile        string
	ClientExclusions []string

	// Record store Configuration
	RecordStore            string
	SQLitePath             string
	GoogleSheetURL         string
	GoogleSheetWorksheet   string
	SharePointTenantID     string
	SharePointClientID     string
	SharePointClientSecret string
	SharePointHost         string
	SharePointSite         string
	SharePointList         string

	// Document source Configuration
	DocSource        string
	GCDocsBaseURL    string
	GCDocsAppURL     string
	GCDocsUsername   string
	GCDocsPassword   string
	GCDocsFolderNode string
	GCDocsTimeout    time.Duration
	LocalDocsDir     string
	SyncSchedule     string

	// Batch job Configuration
	ConsoleLogLimit  int
	DefaultBatchSize int
	MaxStoreFailures int

	// Logging Configuration
	LogLevel      string
	LogFormat     string
	LogTimeFormat string
	LogOutput     string

	rules   extraction.Rules
	weights invoice.Weights
}

// rulesFile is the layout of RULES_FILE: the extraction rule lists at the
// top level plus an optional confidence section.
type rulesFile struct {
	Confidence invoice.Weights `yaml:"confidence"`
}

func Load() (*Config, error) {
	config := &Config{
		HTTPAddr: getEnv("HTTP_ADDR", ":8080"),

		LLMProvider:     strings.ToLower(getEnv("LLM_PROVIDER", extraction.ProviderOpenAI)),
		LLMBaseURL:      getEnv("LLM_BASE_URL", "http://localhost:8081/v1"),
		OpenAIAPIKey:    getEnv("OPENAI_API_KEY", ""),
		AnthropicAPIKey: getEnv("ANTHROPIC_API_KEY", ""),
		OllamaURL:       getEnv("OLLAMA_URL", "http://localhost:11434"),
		ModelsDir:       getEnv("MODELS_DIR", "models"),
		DefaultModel:    getEnv("DEFAULT_MODEL", extraction.DefaultModel),
		LLMTemperature:  getEnvFloat("LLM_TEMPERATURE", 0.1),
		LLMMaxTokens:    getEnvInt("LLM_MAX_TOKENS", 512),
		LLMStop:         getEnvList("LLM_STOP", []string{"###", "\n\n\n"}),

		OCRBackend:     strings.ToLower(getEnv("OCR_BACKEND", "tesseract")),
		OCRLanguage:    getEnv("OCR_LANGUAGE", "eng"),
		OCRDPI:         getEnv("OCR_DPI", "normal"),
		MaxOCRPages:    getEnvInt("MAX_OCR_PAGES", 1),
		OCRContrast:    getEnvFloat("OCR_CONTRAST", 20),
		OCRSharpen:     getEnvFloat("OCR_SHARPEN", 1.0),
		PdftoppmPath:   getEnv("PDFTOPPM_PATH", "pdftoppm"),
		PdfinfoPath:    getEnv("PDFINFO_PATH", "pdfinfo"),
		TesseractPath:  getEnv("TESSERACT_PATH", "tesseract"),
		RenderCacheDir: getEnv("RENDER_CACHE_DIR", ""),

		GoogleCloudProject:         getEnv("GOOGLE_CLOUD_PROJECT", ""),
		GoogleCloudLocation:        getEnv("GOOGLE_CLOUD_LOCATION", "us"),
		DocumentAIProcessorID:      getEnv("DOCUMENT_AI_PROCESSOR_ID", ""),
		DocumentAIProcessorVersion: getEnv("DOCUMENT_AI_PROCESSOR_VERSION", ""),

		SliceMaxPageChars: getEnvInt("SLICE_MAX_PAGE_CHARS", 2000),
		SliceHeaderChars:  getEnvInt("SLICE_HEADER_CHARS", 1200),
		SliceFooterChars:  getEnvInt("SLICE_FOOTER_CHARS", 800),

		RulesFile:        getEnv("RULES_FILE", ""),
		ClientExclusions: getEnvList("CLIENT_EXCLUSIONS", nil),

		RecordStore:            strings.ToLower(getEnv("RECORD_STORE", "sqlite")),
		SQLitePath:             getEnv("SQLITE_PATH", "invoices.db"),
		GoogleSheetURL:         getEnv("GOOGLE_SHEET_URL", ""),
		GoogleSheetWorksheet:   getEnv("GOOGLE_SHEET_WORKSHEET", "Invoices"),
		SharePointTenantID:     getEnv("SHAREPOINT_TENANT_ID", ""),
		SharePointClientID:     getEnv("SHAREPOINT_CLIENT_ID", ""),
		SharePointClientSecret: getEnv("SHAREPOINT_CLIENT_SECRET", ""),
		SharePointHost:         getEnv("SHAREPOINT_HOST", ""),
		SharePointSite:         getEnv("SHAREPOINT_SITE", ""),
		SharePointList:         getEnv("SHAREPOINT_LIST", ""),

		DocSource:        strings.ToLower(getEnv("DOC_SOURCE", "gcdocs")),
		GCDocsBaseURL:    getEnv("GCDOCS_BASE_URL", "https://gcdocs.gc.ca/infc/llisapi.dll/api/v1"),
		GCDocsAppURL:     getEnv("GCDOCS_APP_URL", "https://gcdocs.gc.ca/infc/llisapi.dll/app/nodes/%s"),
		GCDocsUsername:   getEnv("GCDOCS_USERNAME", ""),
		GCDocsPassword:   getEnv("GCDOCS_PASSWORD", ""),
		GCDocsFolderNode: getEnv("GCDOCS_FOLDER_NODE", "32495273"),
		GCDocsTimeout:    getEnvDuration("GCDOCS_TIMEOUT", 2*time.Minute),
		LocalDocsDir:     getEnv("LOCAL_DOCS_DIR", "documents"),
		SyncSchedule:     getEnv("SYNC_SCHEDULE", ""),

		ConsoleLogLimit:  getEnvInt("CONSOLE_LOG_LIMIT", 500),
		DefaultBatchSize: getEnvInt("DEFAULT_BATCH_SIZE", 10),
		MaxStoreFailures: getEnvInt("MAX_STORE_FAILURES", 3),

		LogLevel:      getEnv("LOG_LEVEL", "info"),
		LogFormat:     getEnv("LOG_FORMAT", "console"),
		LogTimeFormat: getEnv("LOG_TIME_FORMAT", "2006-01-02T15:04:05Z07:00"),
		LogOutput:     getEnv("LOG_OUTPUT", "stdout"),
	}

	if err := config.validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	if err := config.loadRules(); err != nil {
		return nil, err
	}

	return config, nil
}

func (c *Config) validate() error {
	switch c.LLMProvider {
	case extraction.ProviderOpenAI, extraction.ProviderOllama:
	case extraction.ProviderAnthropic:
		if c.AnthropicAPIKey == "" {
			return fmt.Errorf("ANTHROPIC_API_KEY is required for LLM_PROVIDER=anthropic")
		}
	default:
		return fmt.Errorf("LLM_PROVIDER must be openai, anthropic or ollama, got %q", c.LLMProvider)
	}

	if c.LLMTemperature < 0 || c.LLMTemperature > 2 {
		return fmt.Errorf("LLM_TEMPERATURE must be between 0 and 2")
	}
	if c.LLMMaxTokens <= 0 {
		return fmt.Errorf("LLM_MAX_TOKENS must be positive")
	}

	switch c.OCRBackend {
	case "tesseract", "vision":
	case "documentai":
		if c.GoogleCloudProject == "" {
			return fmt.Errorf("GOOGLE_CLOUD_PROJECT is required for OCR_BACKEND=documentai")
		}
		if c.DocumentAIProcessorID == "" {
			return fmt.Errorf("DOCUMENT_AI_PROCESSOR_ID is required for OCR_BACKEND=documentai")
		}
	default:
		return fmt.Errorf("OCR_BACKEND must be tesseract, vision or documentai, got %q", c.OCRBackend)
	}
	if _, err := raster.ParseDPI(c.OCRDPI); err != nil {
		return fmt.Errorf("OCR_DPI: %w", err)
	}
	if c.MaxOCRPages < 0 {
		return fmt.Errorf("MAX_OCR_PAGES must not be negative")
	}

	if c.SliceMaxPageChars <= 0 || c.SliceHeaderChars < 0 || c.SliceFooterChars < 0 {
		return fmt.Errorf("SLICE_MAX_PAGE_CHARS must be positive and header/footer sizes non-negative")
	}

	switch c.RecordStore {
	case "sqlite":
		if c.SQLitePath == "" {
			return fmt.Errorf("SQLITE_PATH is required for RECORD_STORE=sqlite")
		}
	case "sheets":
		if c.GoogleSheetURL == "" {
			return fmt.Errorf("GOOGLE_SHEET_URL is required for RECORD_STORE=sheets")
		}
	case "sharepoint":
		for name, v := range map[string]string{
			"SHAREPOINT_TENANT_ID":     c.SharePointTenantID,
			"SHAREPOINT_CLIENT_ID":     c.SharePointClientID,
			"SHAREPOINT_CLIENT_SECRET": c.SharePointClientSecret,
			"SHAREPOINT_HOST":          c.SharePointHost,
			"SHAREPOINT_LIST":          c.SharePointList,
		} {
			if v == "" {
				return fmt.Errorf("%s is required for RECORD_STORE=sharepoint", name)
			}
		}
	case "memory":
	default:
		return fmt.Errorf("RECORD_STORE must be sqlite, sheets, sharepoint or memory, got %q", c.RecordStore)
	}

	switch c.DocSource {
	case "gcdocs":
		if c.GCDocsUsername == "" || c.GCDocsPassword == "" {
			return fmt.Errorf("GCDOCS_USERNAME and GCDOCS_PASSWORD are required for DOC_SOURCE=gcdocs")
		}
	case "local":
	default:
		return fmt.Errorf("DOC_SOURCE must be gcdocs or local, got %q", c.DocSource)
	}

	if c.SyncSchedule != "" {
		if _, err := docsource.ParseSchedule(c.SyncSchedule); err != nil {
			return fmt.Errorf("SYNC_SCHEDULE: %w", err)
		}
	}
	return nil
}

// loadRules merges the rules file and CLIENT_EXCLUSIONS over the built-in defaults.
func (c *Config) loadRules() error {
	c.rules = extraction.DefaultRules()
	c.weights = invoice.DefaultWeights()

	if c.RulesFile != "" {
		rules, err := extraction.LoadRules(c.RulesFile)
		if err != nil {
			return err
		}
		c.rules = rules

		data, err := os.ReadFile(c.RulesFile)
		if err != nil {
			return fmt.Errorf("failed to read rules file: %w", err)
		}
		var f rulesFile
		if err := yaml.Unmarshal(data, &f); err != nil {
			return fmt.Errorf("failed to parse rules file %s: %w", c.RulesFile, err)
		}
		c.weights = c.weights.Merge(f.Confidence)
	}

	if len(c.ClientExclusions) > 0 {
		c.rules = c.rules.Merge(extraction.Rules{ClientExclusions: c.ClientExclusions})
	}
	return nil
}

// GetLoggerConfig returns a logger configuration from the main config
func (c *Config) GetLoggerConfig() logger.LogConfig {
	return logger.LogConfig{
		Level:      c.LogLevel,
		Format:     c.LogFormat,
		TimeFormat: c.LogTimeFormat,
		Output:     c.LogOutput,
	}
}

// RasterConfig returns the rasterizer settings.
func (c *Config) RasterConfig() raster.Config {
	return raster.Config{
		PdftoppmPath: c.PdftoppmPath,
		PdfinfoPath:  c.PdfinfoPath,
		CacheDir:     c.RenderCacheDir,
	}
}

// OCRConfig returns the document recognition settings.
func (c *Config) OCRConfig() ocr.Config {
	dpi, _ := raster.ParseDPI(c.OCRDPI)
	return ocr.Config{
		Language: c.OCRLanguage,
		DPI:      dpi,
		MaxPages: c.MaxOCRPages,
		Preprocess: ocr.Preprocess{
			Grayscale: c.OCRContrast != 0 || c.OCRSharpen != 0,
			Contrast:  c.OCRContrast,
			Sharpen:   c.OCRSharpen,
		},
	}
}

// OCRBackendConfig returns the recognizer backend selection.
func (c *Config) OCRBackendConfig() ocr.BackendConfig {
	return ocr.BackendConfig{
		Backend:       c.OCRBackend,
		TesseractPath: c.TesseractPath,
		DocumentAI: ocr.DocumentAIConfig{
			ProjectID:        c.GoogleCloudProject,
			Location:         c.GoogleCloudLocation,
			ProcessorID:      c.DocumentAIProcessorID,
			ProcessorVersion: c.DocumentAIProcessorVersion,
		},
	}
}

// SlicerConfig returns the slicing thresholds.
func (c *Config) SlicerConfig() slicer.Config {
	return slicer.Config{
		MaxPageChars: c.SliceMaxPageChars,
		HeaderChars:  c.SliceHeaderChars,
		FooterChars:  c.SliceFooterChars,
	}
}

// Sampling returns the model sampling settings.
func (c *Config) Sampling() extraction.Sampling {
	return extraction.Sampling{
		Temperature: c.LLMTemperature,
		MaxTokens:   c.LLMMaxTokens,
		Stop:        c.LLMStop,
	}
}

// ProviderConfig returns the LLM provider settings.
func (c *Config) ProviderConfig() extraction.ProviderConfig {
	return extraction.ProviderConfig{
		Provider:        c.LLMProvider,
		BaseURL:         c.LLMBaseURL,
		APIKey:          c.OpenAIAPIKey,
		AnthropicAPIKey: c.AnthropicAPIKey,
		OllamaURL:       c.OllamaURL,
		ModelsDir:       c.ModelsDir,
	}
}

// Rules returns the extraction rules after file and environment overrides.
func (c *Config) Rules() extraction.Rules {
	return c.rules
}

// Weights returns the confidence weights after file overrides.
func (c *Config) Weights() invoice.Weights {
	return c.weights
}

// RecordStoreConfig returns the record store selection.
func (c *Config) RecordStoreConfig() recordstore.Config {
	return recordstore.Config{
		Backend:    c.RecordStore,
		SQLitePath: c.SQLitePath,
		SheetURL:   c.GoogleSheetURL,
		Worksheet:  c.GoogleSheetWorksheet,
		SharePoint: recordstore.SharePointConfig{
			TenantID:     c.SharePointTenantID,
			ClientID:     c.SharePointClientID,
			ClientSecret: c.SharePointClientSecret,
			Host:         c.SharePointHost,
			Site:         c.SharePointSite,
			List:         c.SharePointList,
		},
	}
}

// GCDocsConfig returns the Content Server client settings.
func (c *Config) GCDocsConfig() docsource.GCDocsConfig {
	return docsource.GCDocsConfig{
		BaseURL:  c.GCDocsBaseURL,
		Username: c.GCDocsUsername,
		Password: c.GCDocsPassword,
		Timeout:  c.GCDocsTimeout,
	}
}

// JobsConfig returns the batch controller settings.
func (c *Config) JobsConfig() jobs.Config {
	return jobs.Config{
		LogLimit:         c.ConsoleLogLimit,
		DefaultBatchSize: c.DefaultBatchSize,
		DefaultModel:     c.DefaultModel,
		MaxStoreFailures: c.MaxStoreFailures,
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(strings.TrimSpace(value)); err == nil {
			return n
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(strings.TrimSpace(value), 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(strings.TrimSpace(value)); err == nil {
			return d
		}
	}
	return defaultValue
}

// getEnvList splits a comma separated value. Escaped newlines ("\n") are
// unescaped so stop sequences can be set from a .env file.
func getEnvList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		part = strings.ReplaceAll(strings.Trim(part, " \t"), `\n`, "\n")
		if part == "" {
			continue
		}
		out = append(out, part)
	}
	return out
}
