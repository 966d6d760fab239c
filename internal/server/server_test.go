package server

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"invoicepipe/internal/docsource"
	"invoicepipe/internal/jobs"
	"invoicepipe/internal/pipeline"
	"invoicepipe/internal/recordstore"
	"invoicepipe/internal/slicer"
	"invoicepipe/pkg/models"
)

type stubExtractor struct{}

func (stubExtractor) Extract(context.Context, slicer.Decision) (string, error) { return "{}", nil }
func (stubExtractor) Model() string                                             { return "mistral-7b.gguf" }

type gatedProcessor struct {
	gate chan struct{}
}

func (g *gatedProcessor) Process(_ context.Context, rec models.Record, _ pipeline.Extractor) (*models.ExtractionResult, error) {
	if g.gate != nil {
		<-g.gate
	}
	num := "INV-" + rec.NodeID
	return &models.ExtractionResult{InvoiceNumber: &num, Confidence: 0.35, Method: models.MethodFullPage}, nil
}

func newTestServer(t *testing.T, proc jobs.Processor, docs int) (*httptest.Server, *jobs.Controller) {
	t.Helper()
	recs := make([]models.Record, docs)
	for i := range recs {
		recs[i] = models.NewRecord(fmt.Sprint(i+1), fmt.Sprintf("doc%d.pdf", i+1), "")
	}
	ctrl := jobs.NewController(recordstore.NewMemoryStore(recs...), proc,
		func(string) (pipeline.Extractor, error) { return stubExtractor{}, nil },
		jobs.DefaultConfig())

	srv := New(context.Background(), Config{
		Jobs:         ctrl,
		Models:       func() ([]string, error) { return []string{"llama-3.gguf", "mistral-7b.gguf"}, nil },
		DefaultModel: "mistral-7b.gguf",
		Syncer: docsource.NewSyncer(
			staticSource{{ID: "1", Name: "doc1.pdf"}, {ID: "9", Name: "new.pdf"}},
			recordstore.NewMemoryStore(models.NewRecord("1", "doc1.pdf", "")), ""),
		SyncFolder: "42",
	})
	ts := httptest.NewServer(srv)
	t.Cleanup(ts.Close)
	return ts, ctrl
}

type staticSource []models.Node

func (s staticSource) ListFolder(context.Context, string) ([]models.Node, error) { return s, nil }
func (s staticSource) Download(context.Context, string) ([]byte, error)          { return nil, nil }

// readEvents collects data lines until the done marker.
func readEvents(t *testing.T, resp *http.Response) []string {
	t.Helper()
	defer resp.Body.Close()
	require.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	var lines []string
	sc := bufio.NewScanner(resp.Body)
	for sc.Scan() {
		line, ok := strings.CutPrefix(sc.Text(), "data: ")
		if !ok {
			continue
		}
		lines = append(lines, line)
		if line == DoneMarker {
			return lines
		}
	}
	t.Fatalf("stream ended without %s: %v", DoneMarker, lines)
	return nil
}

func TestProcessStream(t *testing.T) {
	ts, _ := newTestServer(t, &gatedProcessor{}, 2)

	resp, err := http.Post(ts.URL+"/api/process?stream=1", "application/json", strings.NewReader(`{"count":2}`))
	require.NoError(t, err)
	lines := readEvents(t, resp)

	joined := strings.Join(lines, "\n")
	assert.Contains(t, joined, "Starting batch: 2 documents")
	assert.Contains(t, joined, "[2/2] doc2.pdf: invoice=INV-2")
	assert.Equal(t, DoneMarker, lines[len(lines)-1])
}

func TestProcessBusyAndStatus(t *testing.T) {
	proc := &gatedProcessor{gate: make(chan struct{})}
	ts, ctrl := newTestServer(t, proc, 3)

	resp, err := http.Post(ts.URL+"/api/process", "application/json", strings.NewReader(`{"count":3,"model":"llama-3.gguf"}`))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)

	resp, err = http.Post(ts.URL+"/api/process", "application/json", nil)
	require.NoError(t, err)
	var body map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	resp.Body.Close()
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Equal(t, "busy", body["error"])

	var st jobs.State
	require.Eventually(t, func() bool {
		getJSON(t, ts.URL+"/api/status", &st)
		return strings.Contains(strings.Join(st.ConsoleLogs, "\n"), "[1/3] Processing")
	}, 5*time.Second, 10*time.Millisecond)
	assert.True(t, st.IsProcessing)
	assert.Equal(t, 3, st.TotalCount)
	assert.Equal(t, "llama-3.gguf", st.SelectedModel)

	resp, err = http.Post(ts.URL+"/api/cancel", "", nil)
	require.NoError(t, err)
	var cancel map[string]bool
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&cancel))
	resp.Body.Close()
	assert.True(t, cancel["cancel_requested"])

	close(proc.gate)
	ctx, stop := context.WithTimeout(context.Background(), 5*time.Second)
	defer stop()
	_, err = ctrl.Wait(ctx)
	require.NoError(t, err)

	getJSON(t, ts.URL+"/api/status", &st)
	assert.False(t, st.IsProcessing)
	assert.Equal(t, jobs.StatusCancelled, st.Status)
	assert.Equal(t, 1, st.CurrentCount)

	// A late stream replays the console and ends immediately.
	resp, err = http.Get(ts.URL + "/api/process/stream?since=0")
	require.NoError(t, err)
	lines := readEvents(t, resp)
	assert.Contains(t, strings.Join(lines, "\n"), "Batch cancelled after 1 of 3 documents.")

	resp, err = http.Post(ts.URL+"/api/cancel", "", nil)
	require.NoError(t, err)
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&cancel))
	resp.Body.Close()
	assert.False(t, cancel["cancel_requested"], "cancel is idempotent when idle")
}

func TestStreamBadSince(t *testing.T) {
	ts, _ := newTestServer(t, &gatedProcessor{}, 0)
	resp, err := http.Get(ts.URL + "/api/process/stream?since=abc")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestModelsAndHealth(t *testing.T) {
	ts, _ := newTestServer(t, &gatedProcessor{}, 0)

	var body struct {
		Models  []string `json:"models"`
		Default string   `json:"default"`
	}
	getJSON(t, ts.URL+"/api/models", &body)
	assert.Equal(t, []string{"llama-3.gguf", "mistral-7b.gguf"}, body.Models)
	assert.Equal(t, "mistral-7b.gguf", body.Default)

	resp, err := http.Get(ts.URL + "/healthz")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get("X-Request-ID"))
}

func TestSyncStream(t *testing.T) {
	ts, _ := newTestServer(t, &gatedProcessor{}, 0)

	resp, err := http.Post(ts.URL+"/api/sync", "", nil)
	require.NoError(t, err)
	lines := readEvents(t, resp)

	joined := strings.Join(lines, "\n")
	assert.Contains(t, joined, "Found 2 nodes in folder 42")
	assert.Contains(t, joined, "[1/2] Skipped doc1.pdf (already present)")
	assert.Contains(t, joined, "[2/2] Created record for new.pdf")
}

func getJSON(t *testing.T, url string, v any) {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.NoError(t, json.NewDecoder(resp.Body).Decode(v))
}
