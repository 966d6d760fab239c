package recordstore

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/rs/zerolog"
	"golang.org/x/oauth2/clientcredentials"
	"invoicepipe/internal/logger"
	"invoicepipe/pkg/models"
)

// DefaultGraphURL is the Microsoft Graph v1.0 endpoint.
const DefaultGraphURL = "https://graph.microsoft.com/v1.0"

// SharePointConfig locates the list and the app registration used to reach it.
type SharePointConfig struct {
	TenantID     string
	ClientID     string
	ClientSecret string
	// Host is the tenant's SharePoint host, e.g. "contoso.sharepoint.com".
	Host string
	Site string
	List string
	// GraphURL overrides DefaultGraphURL.
	GraphURL string
}

// SharePointStore keeps records as items of a SharePoint list. Column
// internal names must match the record column names.
type SharePointStore struct {
	client   *http.Client
	graphURL string
	siteID   string
	listID   string
	log      zerolog.Logger
}

// NewSharePointStore authenticates with the client credentials flow.
func NewSharePointStore(ctx context.Context, cfg SharePointConfig) (*SharePointStore, error) {
	cc := clientcredentials.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		TokenURL:     fmt.Sprintf("https://login.microsoftonline.com/%s/oauth2/v2.0/token", cfg.TenantID),
		Scopes:       []string{"https://graph.microsoft.com/.default"},
	}
	return NewSharePointStoreWithClient(ctx, cc.Client(ctx), cfg)
}

// NewSharePointStoreWithClient resolves the site and list IDs using client.
func NewSharePointStoreWithClient(ctx context.Context, client *http.Client, cfg SharePointConfig) (*SharePointStore, error) {
	const op = "NewSharePointStore"

	graphURL := strings.TrimRight(cfg.GraphURL, "/")
	if graphURL == "" {
		graphURL = DefaultGraphURL
	}

	s := &SharePointStore{
		client:   client,
		graphURL: graphURL,
		log:      logger.WithComponent("sharepoint"),
	}

	var site struct {
		ID string `json:"id"`
	}
	if err := s.do(ctx, http.MethodGet, fmt.Sprintf("/sites/%s:/sites/%s", cfg.Host, url.PathEscape(cfg.Site)), nil, &site); err != nil {
		return nil, NewRecordStoreError(op, fmt.Errorf("failed to resolve site %s: %w", cfg.Site, err), "sharepoint")
	}
	s.siteID = site.ID

	var lists struct {
		Value []struct {
			ID          string `json:"id"`
			Name        string `json:"name"`
			DisplayName string `json:"displayName"`
		} `json:"value"`
	}
	if err := s.do(ctx, http.MethodGet, "/sites/"+s.siteID+"/lists", nil, &lists); err != nil {
		return nil, NewRecordStoreError(op, fmt.Errorf("failed to list lists: %w", err), "sharepoint")
	}
	for _, l := range lists.Value {
		if strings.EqualFold(l.DisplayName, cfg.List) || strings.EqualFold(l.Name, cfg.List) {
			s.listID = l.ID
			break
		}
	}
	if s.listID == "" {
		return nil, NewRecordStoreError(op, fmt.Errorf("%w: list %q", ErrNotFound, cfg.List), "sharepoint")
	}

	s.log.Info().Str("site_id", s.siteID).Str("list_id", s.listID).Msg("Connected to SharePoint list")
	return s, nil
}

func (s *SharePointStore) itemsPath() string {
	return "/sites/" + s.siteID + "/lists/" + s.listID + "/items"
}

// do sends a Graph request. path may be absolute (an @odata.nextLink).
func (s *SharePointStore) do(ctx context.Context, method, path string, body any, out any) error {
	target := path
	if !strings.HasPrefix(path, "http://") && !strings.HasPrefix(path, "https://") {
		target = s.graphURL + path
	}

	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		reader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("graph %s %s: status %d: %s", method, path, resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode graph response: %w", err)
	}
	return nil
}

// List follows @odata.nextLink until every item is read.
func (s *SharePointStore) List(ctx context.Context) ([]models.Record, error) {
	const op = "List"

	var recs []models.Record
	next := s.itemsPath() + "?expand=fields&$top=500"
	for next != "" {
		var page struct {
			Value []struct {
				ID     string         `json:"id"`
				Fields map[string]any `json:"fields"`
			} `json:"value"`
			NextLink string `json:"@odata.nextLink"`
		}
		if err := s.do(ctx, http.MethodGet, next, nil, &page); err != nil {
			return nil, NewRecordStoreError(op, err, "sharepoint")
		}
		for _, item := range page.Value {
			recs = append(recs, fromFields(item.ID, item.Fields))
		}
		next = page.NextLink
	}

	s.log.Debug().Int("records", len(recs)).Msg("Read list items")
	SortByNodeID(recs)
	return recs, nil
}

// ListUnprocessed implements Store.
func (s *SharePointStore) ListUnprocessed(ctx context.Context, limit int) ([]models.Record, error) {
	all, err := s.List(ctx)
	if err != nil {
		return nil, wrap("ListUnprocessed", err, "sharepoint")
	}
	return unprocessed(all, limit), nil
}

// Create posts a new list item.
func (s *SharePointStore) Create(ctx context.Context, rec models.Record) (models.Record, error) {
	const op = "Create"

	var created struct {
		ID string `json:"id"`
	}
	body := map[string]any{"fields": newRecordFields(rec)}
	if err := s.do(ctx, http.MethodPost, s.itemsPath(), body, &created); err != nil {
		return models.Record{}, NewRecordStoreError(op, err, "sharepoint")
	}

	rec.ID = created.ID
	rec.AIProcessed = false
	return rec, nil
}

// WriteAI patches the item's fields.
func (s *SharePointStore) WriteAI(ctx context.Context, rec models.Record, u models.AIUpdate) error {
	const op = "WriteAI"

	if rec.ID == "" {
		return NewRecordStoreError(op, fmt.Errorf("%w: empty item id", ErrNotFound), "sharepoint")
	}
	if err := s.do(ctx, http.MethodPatch, s.itemsPath()+"/"+rec.ID+"/fields", aiFields(u), nil); err != nil {
		return NewRecordStoreError(op, err, "sharepoint")
	}
	return nil
}

// Close is a no-op.
func (s *SharePointStore) Close() error { return nil }
