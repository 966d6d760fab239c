package recordstore

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"invoicepipe/pkg/models"
)

type fakeGraph struct {
	mu      sync.Mutex
	srv     *httptest.Server
	patched map[string]map[string]any
	posted  []map[string]any
}

func newFakeGraph(t *testing.T) *fakeGraph {
	g := &fakeGraph{patched: map[string]map[string]any{}}

	mux := http.NewServeMux()
	mux.HandleFunc("/sites/contoso.sharepoint.com:/sites/DataScience", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]any{"id": "site-1"})
	})
	mux.HandleFunc("/sites/site-1/lists", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]any{"value": []map[string]any{
			{"id": "list-other", "name": "Other", "displayName": "Other"},
			{"id": "list-1", "name": "invoiceverificationtestlist", "displayName": "Invoice Verification"},
		}})
	})
	mux.HandleFunc("/sites/site-1/lists/list-1/items", func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPost:
			var body map[string]map[string]any
			_ = json.NewDecoder(r.Body).Decode(&body)
			g.mu.Lock()
			g.posted = append(g.posted, body["fields"])
			g.mu.Unlock()
			writeJSON(w, map[string]any{"id": "77"})
		case r.URL.Query().Get("page") == "2":
			writeJSON(w, map[string]any{"value": []map[string]any{
				{"id": "3", "fields": map[string]any{"NodeID": "100", "AI_Processed": false}},
			}})
		default:
			assert.Equal(t, "fields", r.URL.Query().Get("expand"))
			writeJSON(w, map[string]any{
				"value": []map[string]any{
					{"id": "1", "fields": map[string]any{"NodeID": "300", "AI_Processed": false, "Title": "a.pdf"}},
					{"id": "2", "fields": map[string]any{"NodeID": "200", "AI_Processed": true}},
				},
				"@odata.nextLink": g.srv.URL + "/sites/site-1/lists/list-1/items?page=2",
			})
		}
	})
	mux.HandleFunc("/sites/site-1/lists/list-1/items/1/fields", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPatch, r.Method)
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		g.mu.Lock()
		g.patched["1"] = body
		g.mu.Unlock()
		writeJSON(w, body)
	})

	g.srv = httptest.NewServer(mux)
	t.Cleanup(g.srv.Close)
	return g
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func newTestSharePoint(t *testing.T, g *fakeGraph) *SharePointStore {
	s, err := NewSharePointStoreWithClient(context.Background(), g.srv.Client(), SharePointConfig{
		Host:     "contoso.sharepoint.com",
		Site:     "DataScience",
		List:     "Invoice Verification",
		GraphURL: g.srv.URL,
	})
	require.NoError(t, err)
	return s
}

func TestSharePointListFollowsNextLink(t *testing.T) {
	g := newFakeGraph(t)
	s := newTestSharePoint(t, g)

	pending, err := s.ListUnprocessed(context.Background(), 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"100", "300"}, nodeIDs(pending))
	assert.Equal(t, "3", pending[0].ID)
	assert.Equal(t, "a.pdf", pending[1].Title)
}

func TestSharePointWrites(t *testing.T) {
	g := newFakeGraph(t)
	s := newTestSharePoint(t, g)
	ctx := context.Background()

	created, err := s.Create(ctx, models.NewRecord("400", "d.pdf", "https://gcdocs/400"))
	require.NoError(t, err)
	assert.Equal(t, "77", created.ID)
	require.Len(t, g.posted, 1)
	assert.Equal(t, "400", g.posted[0]["NodeID"])
	assert.Equal(t, false, g.posted[0]["AI_Processed"])
	assert.NotContains(t, g.posted[0], "Human_Validated")

	total := 42.0
	err = s.WriteAI(ctx, models.Record{ID: "1"}, models.AIUpdate{InvoiceNumber: "X-1", TotalAmount: &total, Confidence: 0.5})
	require.NoError(t, err)

	patch := g.patched["1"]
	assert.Equal(t, "X-1", patch["AI_InvoiceNumber"])
	assert.Equal(t, 42.0, patch["AI_TotalAmount"])
	assert.Equal(t, true, patch["AI_Processed"])
	for key := range patch {
		assert.NotContains(t, key, "Human_", "the batch job never writes reviewer columns")
	}
}

func TestSharePointUnknownList(t *testing.T) {
	g := newFakeGraph(t)
	_, err := NewSharePointStoreWithClient(context.Background(), g.srv.Client(), SharePointConfig{
		Host: "contoso.sharepoint.com", Site: "DataScience", List: "missing", GraphURL: g.srv.URL,
	})
	assert.ErrorIs(t, err, ErrNotFound)
}
