package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"invoicepipe/internal/raster"
)

func localEnv(t *testing.T) {
	t.Setenv("DOC_SOURCE", "local")
	t.Setenv("RECORD_STORE", "memory")
}

func TestLoadDefaults(t *testing.T) {
	localEnv(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.HTTPAddr)
	assert.Equal(t, "openai", cfg.LLMProvider)
	assert.Equal(t, "mistral-7b.gguf", cfg.DefaultModel)
	assert.Equal(t, []string{"###", "\n\n\n"}, cfg.Sampling().Stop)
	assert.InDelta(t, 0.1, cfg.Sampling().Temperature, 1e-9)
	assert.Equal(t, raster.DPINormal, cfg.OCRConfig().DPI)
	assert.Equal(t, 1, cfg.OCRConfig().MaxPages)
	assert.Equal(t, 2000, cfg.SlicerConfig().MaxPageChars)
	assert.Equal(t, 10, cfg.JobsConfig().DefaultBatchSize)
	assert.NotEmpty(t, cfg.Rules().ClientExclusions)
	assert.InDelta(t, 0.15, cfg.Weights().PerKey, 1e-9)
}

func TestLoadValidation(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{"gcdocs needs credentials", map[string]string{"DOC_SOURCE": "gcdocs"}},
		{"sheets needs url", map[string]string{"RECORD_STORE": "sheets"}},
		{"sharepoint needs tenant", map[string]string{"RECORD_STORE": "sharepoint"}},
		{"unknown store", map[string]string{"RECORD_STORE": "excel"}},
		{"anthropic needs key", map[string]string{"LLM_PROVIDER": "anthropic"}},
		{"bad dpi", map[string]string{"OCR_DPI": "ultra"}},
		{"documentai needs processor", map[string]string{"OCR_BACKEND": "documentai"}},
		{"bad schedule", map[string]string{"SYNC_SCHEDULE": "hourly"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			localEnv(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := Load()
			assert.Error(t, err)
		})
	}
}

func TestRulesOverrides(t *testing.T) {
	localEnv(t)
	path := filepath.Join(t.TempDir(), "rules.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
total_labels: ["Montant dû", "Amount Due"]
confidence:
  well_formed: 0.4
`), 0o644))
	t.Setenv("RULES_FILE", path)
	t.Setenv("CLIENT_EXCLUSIONS", "Acme Client Corp, Other Client")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, []string{"Montant dû", "Amount Due"}, cfg.Rules().TotalLabels)
	assert.Equal(t, []string{"Acme Client Corp", "Other Client"}, cfg.Rules().ClientExclusions)
	assert.InDelta(t, 0.4, cfg.Weights().WellFormed, 1e-9)
	assert.InDelta(t, 0.15, cfg.Weights().PerKey, 1e-9, "unset weights keep their defaults")
}

func TestGetEnvList(t *testing.T) {
	t.Setenv("TEST_LIST", `###, \n\n\n ,,stop`)
	assert.Equal(t, []string{"###", "\n\n\n", "stop"}, getEnvList("TEST_LIST", nil))
	assert.Equal(t, []string{"x"}, getEnvList("TEST_LIST_UNSET", []string{"x"}))
}
