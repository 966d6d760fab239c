// Package docsource lists and downloads source documents and keeps the
// record store in step with the source folder.
//
// Sources (DOC_SOURCE):
//   - gcdocs: an OpenText Content Server REST API (GCDOCS_BASE_URL, GCDOCS_USERNAME, GCDOCS_PASSWORD)
//   - local: a directory of files (LOCAL_DOCS_DIR), for development and tests
package docsource

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"invoicepipe/pkg/models"
)

// Source is the document source contract.
type Source interface {
	// ListFolder returns the document nodes directly inside folder.
	ListFolder(ctx context.Context, folder string) ([]models.Node, error)
	// Download returns the content of a document node.
	Download(ctx context.Context, nodeID string) ([]byte, error)
}

// Common document source errors
var (
	// ErrAuth is returned when the source rejects the credentials.
	ErrAuth = errors.New("document source authentication failed")

	// ErrNodeNotFound is returned for an unknown node ID.
	ErrNodeNotFound = errors.New("node not found")

	// ErrUnknownSource is returned for an unsupported DOC_SOURCE value.
	ErrUnknownSource = errors.New("unknown document source")
)

// DownloadError marks a document that could not be fetched.
type DownloadError struct {
	NodeID string
	Err    error
}

// Error implements the error interface.
func (e *DownloadError) Error() string {
	return fmt.Sprintf("docsource: download of node %s failed: %v", e.NodeID, e.Err)
}

// Unwrap returns the underlying error for error unwrapping.
func (e *DownloadError) Unwrap() error {
	return e.Err
}

// LocalDir serves files from a directory. A file's node ID is its name,
// and the folder argument names a subdirectory ("" or "." for the root).
type LocalDir struct {
	Root string
}

// NewLocalDir returns a source rooted at dir.
func NewLocalDir(dir string) *LocalDir {
	return &LocalDir{Root: dir}
}

// ListFolder implements Source. Node IDs are paths relative to Root.
func (d *LocalDir) ListFolder(_ context.Context, folder string) ([]models.Node, error) {
	const op = "LocalDir.ListFolder"

	dir := filepath.Join(d.Root, filepath.Clean("/"+folder))
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	var nodes []models.Node
	for _, e := range entries {
		if e.IsDir() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		info, err := e.Info()
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		rel, err := filepath.Rel(d.Root, filepath.Join(dir, e.Name()))
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		nodes = append(nodes, models.Node{
			ID:   filepath.ToSlash(rel),
			Name: e.Name(),
			Size: info.Size(),
		})
	}
	sort.Slice(nodes, func(i, j int) bool { return nodes[i].ID < nodes[j].ID })
	return nodes, nil
}

// Download implements Source.
func (d *LocalDir) Download(_ context.Context, nodeID string) ([]byte, error) {
	path := filepath.Join(d.Root, filepath.Clean("/"+nodeID))
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			err = fmt.Errorf("%w: %s", ErrNodeNotFound, nodeID)
		}
		return nil, &DownloadError{NodeID: nodeID, Err: err}
	}
	return data, nil
}
