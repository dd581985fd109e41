package rag

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"

	"emochat/internal/config"

	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"
)

const (
	chunkSize    = 1000
	chunkOverlap = 200
)

// QdrantRetriever indexes document chunks in qdrant and searches them
// by embedding similarity.
type QdrantRetriever struct {
	client     *qdrant.Client
	embedder   *EmbeddingClient
	loader     *DocumentLoader
	collection string
	vectorSize uint64
	workers    int
}

func NewQdrantRetriever(ctx context.Context, cfg *config.Config) (*QdrantRetriever, error) {
	client, err := qdrant.NewClient(&qdrant.Config{
		Host: cfg.Qdrant.Host,
		Port: cfg.Qdrant.Port,
	})
	if err != nil {
		return nil, fmt.Errorf("create qdrant client: %w", err)
	}

	loader, err := NewDocumentLoader(ctx)
	if err != nil {
		return nil, err
	}

	r := &QdrantRetriever{
		client:     client,
		embedder:   NewEmbeddingClient(cfg.Embedding),
		loader:     loader,
		collection: cfg.Qdrant.Collection,
		vectorSize: cfg.Qdrant.VectorSize,
		workers:    cfg.BasicConfig.IngestWorkers,
	}
	if err := r.ensureCollection(ctx); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *QdrantRetriever) ensureCollection(ctx context.Context) error {
	collections, err := r.client.ListCollections(ctx)
	if err != nil {
		return fmt.Errorf("list qdrant collections: %w", err)
	}
	for _, name := range collections {
		if name == r.collection {
			return nil
		}
	}

	err = r.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: r.collection,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     r.vectorSize,
			Distance: qdrant.Distance_Cosine,
		}),
	})
	if err != nil {
		return fmt.Errorf("create qdrant collection %s: %w", r.collection, err)
	}
	log.Printf("created qdrant collection %s (dim %d)", r.collection, r.vectorSize)
	return nil
}

func (r *QdrantRetriever) Search(ctx context.Context, query string, limit int) ([]Result, error) {
	if limit <= 0 {
		limit = 3
	}
	vector, err := r.embedder.EmbedText(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	lim := uint64(limit)
	hits, err := r.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: r.collection,
		Query:          qdrant.NewQuery(vector...),
		Limit:          &lim,
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, fmt.Errorf("query qdrant: %w", err)
	}

	results := make([]Result, 0, len(hits))
	for _, hit := range hits {
		result := Result{
			Score:    hit.GetScore(),
			Metadata: map[string]any{},
		}
		if id := hit.GetId(); id != nil {
			result.ID = id.GetUuid()
		}
		for key, value := range hit.GetPayload() {
			switch key {
			case "content":
				result.Content = value.GetStringValue()
			default:
				result.Metadata[key] = valueToAny(value)
			}
		}
		results = append(results, result)
	}
	return results, nil
}

func valueToAny(v *qdrant.Value) any {
	switch kind := v.GetKind().(type) {
	case *qdrant.Value_StringValue:
		return kind.StringValue
	case *qdrant.Value_IntegerValue:
		return kind.IntegerValue
	case *qdrant.Value_DoubleValue:
		return kind.DoubleValue
	case *qdrant.Value_BoolValue:
		return kind.BoolValue
	default:
		return v.String()
	}
}

// IngestFile chunks, embeds and indexes one document. Existing chunks
// for the same document are replaced first.
func (r *QdrantRetriever) IngestFile(ctx context.Context, path string) (int, error) {
	name := filepath.Base(path)
	if !IsSupportedFile(name) {
		return 0, fmt.Errorf("unsupported file type: %s", name)
	}

	text, err := r.loader.LoadText(ctx, path)
	if err != nil {
		return 0, err
	}
	chunks := SplitText(text, chunkSize, chunkOverlap)
	if len(chunks) == 0 {
		return 0, nil
	}

	vectors, err := r.embedder.EmbedTexts(ctx, chunks)
	if err != nil {
		return 0, fmt.Errorf("embed chunks for %s: %w", name, err)
	}

	if err := r.DeleteDocument(ctx, name); err != nil {
		return 0, err
	}

	points := make([]*qdrant.PointStruct, len(chunks))
	for i, chunk := range chunks {
		points[i] = &qdrant.PointStruct{
			Id:      qdrant.NewID(uuid.NewString()),
			Vectors: qdrant.NewVectors(vectors[i]...),
			Payload: qdrant.NewValueMap(map[string]interface{}{
				"content":     chunk,
				"source":      name,
				"chunk_index": i,
			}),
		}
	}

	_, err = r.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: r.collection,
		Points:         points,
	})
	if err != nil {
		return 0, fmt.Errorf("upsert chunks for %s: %w", name, err)
	}
	return len(points), nil
}

// DeleteDocument removes all chunks indexed for a document name.
func (r *QdrantRetriever) DeleteDocument(ctx context.Context, name string) error {
	_, err := r.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: r.collection,
		Points: &qdrant.PointsSelector{
			PointsSelectorOneOf: &qdrant.PointsSelector_Filter{
				Filter: &qdrant.Filter{
					Must: []*qdrant.Condition{
						qdrant.NewMatch("source", name),
					},
				},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("delete chunks for %s: %w", name, err)
	}
	return nil
}

// ReloadDocuments reindexes every supported file in dir using a
// bounded worker pool. Individual file failures are logged and
// skipped; the returned count is total chunks indexed.
func (r *QdrantRetriever) ReloadDocuments(ctx context.Context, dir string) (int, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0, fmt.Errorf("read documents dir: %w", err)
	}

	var paths []string
	for _, entry := range entries {
		if entry.IsDir() || !IsSupportedFile(entry.Name()) {
			continue
		}
		paths = append(paths, filepath.Join(dir, entry.Name()))
	}
	if len(paths) == 0 {
		return 0, nil
	}

	workers := r.workers
	if workers <= 0 {
		workers = 1
	}
	if workers > len(paths) {
		workers = len(paths)
	}

	jobs := make(chan string)
	var (
		wg    sync.WaitGroup
		mu    sync.Mutex
		total int
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for path := range jobs {
				count, err := r.IngestFile(ctx, path)
				if err != nil {
					log.Printf("ingest %s failed: %v", path, err)
					continue
				}
				mu.Lock()
				total += count
				mu.Unlock()
			}
		}()
	}

	for _, path := range paths {
		select {
		case jobs <- path:
		case <-ctx.Done():
			close(jobs)
			wg.Wait()
			return total, ctx.Err()
		}
	}
	close(jobs)
	wg.Wait()
	return total, nil
}

func (r *QdrantRetriever) Close() error {
	return r.client.Close()
}
