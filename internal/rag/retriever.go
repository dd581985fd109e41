package rag

import "context"

// Result is one retrieved document chunk.
type Result struct {
	ID       string         `json:"id"`
	Content  string         `json:"content"`
	Score    float32        `json:"score"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// Source returns the originating document name, if recorded.
func (r Result) Source() string {
	if r.Metadata == nil {
		return ""
	}
	if src, ok := r.Metadata["source"].(string); ok {
		return src
	}
	return ""
}

// Retriever finds document chunks relevant to a query.
type Retriever interface {
	Search(ctx context.Context, query string, limit int) ([]Result, error)
	Close() error
}

// Indexer manages the document index behind a Retriever.
type Indexer interface {
	IngestFile(ctx context.Context, path string) (int, error)
	DeleteDocument(ctx context.Context, name string) error
	ReloadDocuments(ctx context.Context, dir string) (int, error)
}
