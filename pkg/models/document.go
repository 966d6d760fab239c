package models

// Node is one entry of a document source folder.
type Node struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	// Type is the source's node type; folders are skipped during sync.
	Type int   `json:"type,omitempty"`
	Size int64 `json:"size,omitempty"`
}
