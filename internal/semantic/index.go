package semantic

import (
	"context"
	"fmt"

	chromem "github.com/philippgille/chromem-go"
)

const edgeCollection = "edges"

// Match is one fuzzy hit against the index.
type Match struct {
	EdgeID     string  `json:"edge_id"`
	Similarity float32 `json:"similarity"`
}

// Index stores edge-id embeddings in chromem-go and answers similarity
// queries.
type Index struct {
	db       *chromem.DB
	embedder Embedder
}

// IndexConfig holds index configuration.
type IndexConfig struct {
	PersistPath string // empty = in-memory only
	Embedder    Embedder
}

// NewIndex creates a vector index.
func NewIndex(cfg IndexConfig) (*Index, error) {
	if cfg.Embedder == nil {
		cfg.Embedder = NewHashEmbedder(128)
	}
	var db *chromem.DB
	var err error
	if cfg.PersistPath != "" {
		db, err = chromem.NewPersistentDB(cfg.PersistPath, false)
		if err != nil {
			return nil, fmt.Errorf("failed to create persistent vector index: %w", err)
		}
	} else {
		db = chromem.NewDB()
	}
	return &Index{db: db, embedder: cfg.Embedder}, nil
}

func (ix *Index) collection() (*chromem.Collection, error) {
	if c := ix.db.GetCollection(edgeCollection, nil); c != nil {
		return c, nil
	}
	return ix.db.CreateCollection(edgeCollection, nil, nil)
}

// IndexEdge embeds and stores one edge id.
func (ix *Index) IndexEdge(ctx context.Context, edgeID string) error {
	collection, err := ix.collection()
	if err != nil {
		return fmt.Errorf("failed to open edge collection: %w", err)
	}
	embedding, err := ix.embedder.Embed(ctx, edgeID)
	if err != nil {
		return fmt.Errorf("failed to embed %s: %w", edgeID, err)
	}
	err = collection.AddDocument(ctx, chromem.Document{
		ID:        edgeID,
		Content:   edgeID,
		Embedding: embedding,
	})
	if err != nil {
		return fmt.Errorf("failed to index %s: %w", edgeID, err)
	}
	return nil
}

// RemoveEdge drops an edge from the index.
func (ix *Index) RemoveEdge(ctx context.Context, edgeID string) error {
	collection := ix.db.GetCollection(edgeCollection, nil)
	if collection == nil {
		return nil
	}
	return collection.Delete(ctx, nil, nil, edgeID)
}

// Search returns up to limit edges similar to the query text, filtered by a
// minimum cosine similarity.
func (ix *Index) Search(ctx context.Context, query string, limit int, minSimilarity float32) ([]Match, error) {
	if limit <= 0 {
		limit = 10
	}
	collection := ix.db.GetCollection(edgeCollection, nil)
	if collection == nil || collection.Count() == 0 {
		return nil, nil
	}
	if limit > collection.Count() {
		limit = collection.Count()
	}

	embedding, err := ix.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}
	results, err := collection.QueryEmbedding(ctx, embedding, limit, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("semantic search failed: %w", err)
	}

	matches := make([]Match, 0, len(results))
	for _, r := range results {
		if r.Similarity < minSimilarity {
			continue
		}
		matches = append(matches, Match{EdgeID: r.ID, Similarity: r.Similarity})
	}
	return matches, nil
}

// Len returns the number of indexed edges.
func (ix *Index) Len() int {
	if c := ix.db.GetCollection(edgeCollection, nil); c != nil {
		return c.Count()
	}
	return 0
}

// Reset drops the whole index.
func (ix *Index) Reset() {
	ix.db.DeleteCollection(edgeCollection)
}
