package docsource

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"invoicepipe/internal/recordstore"
	"invoicepipe/pkg/models"
)

func newFakeGCDocs(t *testing.T) (*httptest.Server, *atomic.Int32) {
	logins := &atomic.Int32{}
	expireOnce := &atomic.Bool{}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /auth", func(w http.ResponseWriter, r *http.Request) {
		assert.NoError(t, r.ParseForm())
		if r.PostForm.Get("username") != "svc" || r.PostForm.Get("password") != "secret" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		n := logins.Add(1)
		fmt.Fprintf(w, `{"ticket":"t%d"}`, n)
	})
	mux.HandleFunc("GET /nodes/42/nodes", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("otcsticket") == "" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		switch r.URL.Query().Get("page") {
		case "1":
			fmt.Fprint(w, `{"data":[{"id":101,"name":"a.pdf","type":144},{"id":7,"name":"Archive","type":0}],"paging":{"next":{"page":2}}}`)
		case "2":
			fmt.Fprint(w, `{"results":[{"id":99,"name":"b.pdf","type":144}],"paging":{"next":null}}`)
		default:
			t.Errorf("unexpected page %s", r.URL.Query().Get("page"))
		}
	})
	mux.HandleFunc("GET /nodes/101/content", func(w http.ResponseWriter, r *http.Request) {
		// The first ticket is treated as expired once.
		if r.Header.Get("otcsticket") == "t1" && expireOnce.CompareAndSwap(false, true) {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		fmt.Fprint(w, "%PDF-1.4 content")
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv, logins
}

func TestGCDocsListFolderPaginates(t *testing.T) {
	srv, logins := newFakeGCDocs(t)
	c := NewGCDocsClient(GCDocsConfig{BaseURL: srv.URL, Username: "svc", Password: "secret"})

	nodes, err := c.ListFolder(context.Background(), "42")
	require.NoError(t, err)

	require.Len(t, nodes, 2, "folders are skipped")
	assert.Equal(t, "101", nodes[0].ID)
	assert.Equal(t, "a.pdf", nodes[0].Name)
	assert.Equal(t, "99", nodes[1].ID)
	assert.Equal(t, int32(1), logins.Load())
}

func TestGCDocsDownloadReauthenticates(t *testing.T) {
	srv, logins := newFakeGCDocs(t)
	c := NewGCDocsClient(GCDocsConfig{BaseURL: srv.URL, Username: "svc", Password: "secret"})

	data, err := c.Download(context.Background(), "101")
	require.NoError(t, err)
	assert.Equal(t, "%PDF-1.4 content", string(data))
	assert.Equal(t, int32(2), logins.Load())

	_, err = c.Download(context.Background(), "555")
	var dlErr *DownloadError
	require.ErrorAs(t, err, &dlErr)
	assert.ErrorIs(t, err, ErrNodeNotFound)
}

func TestGCDocsBadCredentials(t *testing.T) {
	srv, _ := newFakeGCDocs(t)
	c := NewGCDocsClient(GCDocsConfig{BaseURL: srv.URL, Username: "svc", Password: "wrong"})

	_, err := c.ListFolder(context.Background(), "42")
	assert.ErrorIs(t, err, ErrAuth)
}

func TestLocalDir(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "b.pdf"), []byte("B"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "a.xlsx"), []byte("A"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, ".hidden"), nil, 0o644))
	require.NoError(t, os.Mkdir(filepath.Join(root, "sub"), 0o755))

	src := NewLocalDir(root)
	nodes, err := src.ListFolder(context.Background(), "")
	require.NoError(t, err)
	require.Len(t, nodes, 2)
	assert.Equal(t, "a.xlsx", nodes[0].ID)

	data, err := src.Download(context.Background(), "b.pdf")
	require.NoError(t, err)
	assert.Equal(t, "B", string(data))

	_, err = src.Download(context.Background(), "../../etc/passwd")
	assert.ErrorIs(t, err, ErrNodeNotFound)
}

func TestNodeURL(t *testing.T) {
	assert.Equal(t, "https://gcdocs.gc.ca/infc/llisapi.dll/app/nodes/101",
		NodeURL("https://gcdocs.gc.ca/infc/llisapi.dll/app/nodes/%s", "101"))
	assert.Equal(t, "https://x/nodes/5", NodeURL("https://x/nodes/", "5"))
	assert.Empty(t, NodeURL("", "5"))
}

type staticSource struct {
	nodes []models.Node
}

func (s staticSource) ListFolder(context.Context, string) ([]models.Node, error) { return s.nodes, nil }
func (s staticSource) Download(context.Context, string) ([]byte, error)          { return nil, nil }

type failingCreateStore struct {
	*recordstore.MemoryStore
	failNode string
}

func (s failingCreateStore) Create(ctx context.Context, rec models.Record) (models.Record, error) {
	if rec.NodeID == s.failNode {
		return models.Record{}, recordstore.NewRecordStoreError("Create", errors.New("throttled"), "fake")
	}
	return s.MemoryStore.Create(ctx, rec)
}

func TestSync(t *testing.T) {
	store := failingCreateStore{
		MemoryStore: recordstore.NewMemoryStore(models.NewRecord("1", "old.pdf", "")),
		failNode:    "3",
	}
	src := staticSource{nodes: []models.Node{
		{ID: "1", Name: "old.pdf"},
		{ID: "2", Name: "new.pdf"},
		{ID: "3", Name: "bad.pdf"},
	}}

	var lines []string
	res, err := NewSyncer(src, store, "https://gcdocs/app/nodes/%s").Sync(context.Background(), "42", func(s string) {
		lines = append(lines, s)
	})
	require.NoError(t, err)
	assert.Equal(t, SyncResult{Total: 3, Created: 1, Skipped: 1, Errors: 1}, res)
	assert.Contains(t, lines[0], "Found 3 nodes")
	assert.Contains(t, lines[len(lines)-1], "Sync complete")

	all, err := store.List(context.Background())
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "https://gcdocs/app/nodes/2", all[1].GCDocsURL)
	assert.False(t, all[1].AIProcessed)
}

func TestSyncRejectsConcurrentRun(t *testing.T) {
	s := NewSyncer(staticSource{}, recordstore.NewMemoryStore(), "")
	s.running.Lock()
	defer s.running.Unlock()

	_, err := s.Sync(context.Background(), "42", nil)
	assert.ErrorIs(t, err, ErrSyncRunning)
}

func TestParseSchedule(t *testing.T) {
	sched, err := ParseSchedule("0 9 * * 1-5")
	require.NoError(t, err)

	friday := time.Date(2026, 10, 16, 10, 0, 0, 0, time.UTC)
	assert.Equal(t, time.Date(2026, 10, 19, 9, 0, 0, 0, time.UTC), sched.Next(friday))

	_, err = ParseSchedule("every day")
	assert.Error(t, err)
}

func TestSchedulerStopsOnCancel(t *testing.T) {
	s, err := NewScheduler("0 0 1 1 *", NewSyncer(staticSource{}, recordstore.NewMemoryStore(), ""), "42")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("scheduler did not stop")
	}
}
