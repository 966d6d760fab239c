package docsource

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"invoicepipe/internal/logger"
	"invoicepipe/pkg/models"
)

// Content Server node types.
const (
	NodeTypeFolder   = 0
	NodeTypeDocument = 144
)

// maxPages bounds folder pagination against a server that never stops paging.
const maxPages = 1000

// GCDocsConfig configures the Content Server client.
type GCDocsConfig struct {
	// BaseURL is the REST root, e.g. https://gcdocs.gc.ca/infc/llisapi.dll/api/v1
	BaseURL  string
	Username string
	Password string
	Timeout  time.Duration
}

// GCDocsClient talks to the Content Server REST API. It logs in lazily and
// logs in again once when a request is rejected with 401.
type GCDocsClient struct {
	cfg    GCDocsConfig
	http   *http.Client
	log    zerolog.Logger
	mu     sync.Mutex
	ticket string
}

// NewGCDocsClient creates a client.
func NewGCDocsClient(cfg GCDocsConfig) *GCDocsClient {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 2 * time.Minute
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return &GCDocsClient{
		cfg:  cfg,
		http: &http.Client{Timeout: timeout},
		log:  logger.WithComponent("gcdocs"),
	}
}

// Login obtains an authentication ticket.
func (c *GCDocsClient) Login(ctx context.Context) error {
	const op = "Login"

	form := url.Values{}
	form.Set("username", c.cfg.Username)
	form.Set("password", c.cfg.Password)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/auth", strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return fmt.Errorf("%s: %w: status %d", op, ErrAuth, resp.StatusCode)
	}
	if resp.StatusCode >= 300 {
		return fmt.Errorf("%s: unexpected status %d", op, resp.StatusCode)
	}

	var body struct {
		Ticket string `json:"ticket"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return fmt.Errorf("%s: failed to decode auth response: %w", op, err)
	}
	if body.Ticket == "" {
		return fmt.Errorf("%s: %w: empty ticket", op, ErrAuth)
	}

	c.mu.Lock()
	c.ticket = body.Ticket
	c.mu.Unlock()

	c.log.Info().Str("user", c.cfg.Username).Msg("Logged in to GCDocs")
	return nil
}

func (c *GCDocsClient) currentTicket(ctx context.Context) (string, error) {
	c.mu.Lock()
	t := c.ticket
	c.mu.Unlock()
	if t != "" {
		return t, nil
	}
	if err := c.Login(ctx); err != nil {
		return "", err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ticket, nil
}

// get performs an authenticated GET and returns the open response on 2xx.
func (c *GCDocsClient) get(ctx context.Context, path string) (*http.Response, error) {
	for attempt := 0; attempt < 2; attempt++ {
		ticket, err := c.currentTicket(ctx)
		if err != nil {
			return nil, err
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.BaseURL+path, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("otcsticket", ticket)

		resp, err := c.http.Do(req)
		if err != nil {
			return nil, err
		}

		switch {
		case resp.StatusCode == http.StatusUnauthorized && attempt == 0:
			resp.Body.Close()
			c.log.Debug().Msg("Ticket expired, logging in again")
			c.mu.Lock()
			c.ticket = ""
			c.mu.Unlock()
			continue
		case resp.StatusCode == http.StatusNotFound:
			resp.Body.Close()
			return nil, ErrNodeNotFound
		case resp.StatusCode >= 300:
			msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
			resp.Body.Close()
			return nil, fmt.Errorf("GET %s: status %d: %s", path, resp.StatusCode, strings.TrimSpace(string(msg)))
		}
		return resp, nil
	}
	return nil, ErrAuth
}

type nodePage struct {
	Data    []rawNode `json:"data"`
	Results []rawNode `json:"results"`
	Paging  struct {
		Next  json.RawMessage `json:"next"`
		Total int             `json:"total"`
	} `json:"paging"`
	Total int `json:"total"`
}

type rawNode struct {
	ID   json.Number `json:"id"`
	Name string      `json:"name"`
	Type *int        `json:"type"`
	Size int64       `json:"size"`
}

// ListFolder pages through the folder's children. Sub-folders are skipped.
func (c *GCDocsClient) ListFolder(ctx context.Context, folder string) ([]models.Node, error) {
	const op = "GCDocsClient.ListFolder"

	seen := make(map[string]struct{})
	var nodes []models.Node

	for page := 1; page <= maxPages; page++ {
		resp, err := c.get(ctx, fmt.Sprintf("/nodes/%s/nodes?page=%d", url.PathEscape(folder), page))
		if err != nil {
			return nil, fmt.Errorf("%s: page %d: %w", op, page, err)
		}

		var p nodePage
		err = json.NewDecoder(resp.Body).Decode(&p)
		resp.Body.Close()
		if err != nil {
			return nil, fmt.Errorf("%s: failed to decode page %d: %w", op, page, err)
		}

		items := p.Data
		if len(items) == 0 {
			items = p.Results
		}

		added := 0
		for _, n := range items {
			id := n.ID.String()
			if _, dup := seen[id]; dup {
				continue
			}
			seen[id] = struct{}{}
			added++
			node := models.Node{ID: id, Name: n.Name, Size: n.Size}
			if n.Type != nil {
				if *n.Type == NodeTypeFolder {
					continue
				}
				node.Type = *n.Type
			}
			nodes = append(nodes, node)
		}

		c.log.Debug().Int("page", page).Int("added", added).Int("total", len(seen)).Msg("Fetched folder page")

		hasNext := len(p.Paging.Next) > 0 && string(p.Paging.Next) != "null"
		if !hasNext || added == 0 {
			break
		}
	}

	c.log.Info().Str("folder", folder).Int("nodes", len(nodes)).Msg("Listed folder")
	return nodes, nil
}

// Download fetches a node's content.
func (c *GCDocsClient) Download(ctx context.Context, nodeID string) ([]byte, error) {
	if _, err := strconv.ParseInt(nodeID, 10, 64); err != nil {
		return nil, &DownloadError{NodeID: nodeID, Err: fmt.Errorf("%w: invalid id", ErrNodeNotFound)}
	}

	resp, err := c.get(ctx, "/nodes/"+nodeID+"/content")
	if err != nil {
		return nil, &DownloadError{NodeID: nodeID, Err: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &DownloadError{NodeID: nodeID, Err: err}
	}
	return data, nil
}

// NodeURL renders the browser link for a node from a template containing one %s.
func NodeURL(template, nodeID string) string {
	if template == "" {
		return ""
	}
	if !strings.Contains(template, "%s") {
		return strings.TrimRight(template, "/") + "/" + nodeID
	}
	return fmt.Sprintf(template, nodeID)
}
