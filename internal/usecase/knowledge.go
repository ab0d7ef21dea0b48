package usecase

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"researchkb/internal/adapter/chunker"
	"researchkb/internal/adapter/store"
	"researchkb/internal/adapter/vectorindex"
	"researchkb/internal/domain"
	"researchkb/internal/port"
)

// KnowledgeBase owns the document lifecycle: chunking, embedding, indexing
// and semantic retrieval. One writer at a time; reads run concurrently with
// each other but never observe a half-committed mutation.
type KnowledgeBase struct {
	registry *store.Registry
	index    *vectorindex.Index[domain.ChunkMeta]
	chunker  *chunker.TextChunker
	embedder port.Embedder
	logger   *zap.Logger

	mu sync.RWMutex
}

func NewKnowledgeBase(
	registry *store.Registry,
	index *vectorindex.Index[domain.ChunkMeta],
	chunker *chunker.TextChunker,
	embedder port.Embedder,
	logger *zap.Logger,
) *KnowledgeBase {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &KnowledgeBase{
		registry: registry,
		index:    index,
		chunker:  chunker,
		embedder: embedder,
		logger:   logger,
	}
}

// AddResult reports a completed document insertion.
type AddResult struct {
	DocID      string
	ChunkCount int
}

// AddTextContent chunks and embeds content, then commits the document, its
// chunks and their vector records. Embeddings are computed before the write
// lock is taken, so a slow provider never blocks readers; an embedding
// failure leaves the store untouched.
func (k *KnowledgeBase) AddTextContent(content, title, category string, tags []string, source string) (AddResult, error) {
	if strings.TrimSpace(content) == "" {
		return AddResult{}, domain.ErrEmptyContent
	}

	docID := uuid.NewString()
	chunks := k.chunker.Chunk(docID, content)
	if len(chunks) == 0 {
		return AddResult{}, domain.ErrEmptyContent
	}

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}

	vectors, err := k.embedder.Embed(texts)
	if err != nil {
		return AddResult{}, fmt.Errorf("%w: %w", domain.ErrEmbedding, err)
	}
	if len(vectors) != len(chunks) {
		return AddResult{}, fmt.Errorf("%w: provider returned %d vectors for %d chunks",
			domain.ErrEmbedding, len(vectors), len(chunks))
	}
	for _, v := range vectors {
		if len(v) != k.index.Dimension() {
			return AddResult{}, &domain.DimensionError{Want: k.index.Dimension(), Got: len(v)}
		}
	}

	doc := domain.Document{
		ID:            docID,
		Title:         title,
		Category:      category,
		Tags:          tags,
		Source:        source,
		CreatedAt:     time.Now(),
		ContentLength: utf8.RuneCountInString(content),
		ChunkIDs:      make([]string, len(chunks)),
	}
	for i, c := range chunks {
		doc.ChunkIDs[i] = c.ID
	}

	meta := domain.ChunkMeta{
		DocID:    docID,
		Category: category,
		Tags:     tags,
		Title:    title,
	}

	k.mu.Lock()
	defer k.mu.Unlock()

	if err := k.registry.PutDocument(doc, chunks); err != nil {
		return AddResult{}, fmt.Errorf("failed to store document: %w", err)
	}
	for i, c := range chunks {
		if err := k.index.Upsert(c.ID, vectors[i], meta); err != nil {
			return AddResult{}, fmt.Errorf("failed to index chunk %s: %w", c.ID, err)
		}
	}

	k.logger.Info("document added",
		zap.String("doc_id", docID),
		zap.String("title", title),
		zap.Int("chunks", len(chunks)))

	return AddResult{DocID: docID, ChunkCount: len(chunks)}, nil
}

// AddFile reads a text file and adds it as a document titled after its base
// name, with the file path recorded as provenance.
func (k *KnowledgeBase) AddFile(path, category string, tags []string) (AddResult, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return AddResult{}, fmt.Errorf("failed to read file: %w", err)
	}
	return k.AddTextContent(string(data), filepath.Base(path), category, tags, path)
}

// SearchKnowledge embeds the query and returns the topK most similar chunks,
// each carrying its text and the parent document's metadata. A non-empty
// category restricts candidates before ranking.
func (k *KnowledgeBase) SearchKnowledge(query string, topK int, category string) ([]domain.SearchResult, error) {
	vectors, err := k.embedder.Embed([]string{query})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrEmbedding, err)
	}
	if len(vectors) == 0 {
		return nil, fmt.Errorf("%w: provider returned no vector for query", domain.ErrEmbedding)
	}

	var filter func(domain.ChunkMeta) bool
	if category != "" {
		filter = func(m domain.ChunkMeta) bool {
			return m.Category == category
		}
	}

	k.mu.RLock()
	defer k.mu.RUnlock()

	hits, err := k.index.Search(vectors[0], topK, filter)
	if err != nil {
		return nil, err
	}

	results := make([]domain.SearchResult, 0, len(hits))
	for _, hit := range hits {
		chunk, err := k.registry.GetChunk(hit.Key)
		if err != nil {
			k.logger.Warn("indexed chunk missing from registry", zap.String("chunk_id", hit.Key))
			continue
		}
		result := domain.SearchResult{
			ChunkID:  hit.Key,
			DocID:    hit.Meta.DocID,
			Text:     chunk.Text,
			Score:    hit.Score,
			Title:    hit.Meta.Title,
			Category: hit.Meta.Category,
			Tags:     hit.Meta.Tags,
		}
		// Parent document is the source of truth for metadata.
		if doc, err := k.registry.GetDocument(hit.Meta.DocID); err == nil {
			result.Title = doc.Title
			result.Category = doc.Category
			result.Tags = doc.Tags
		}
		results = append(results, result)
	}
	return results, nil
}

// ListDocuments returns all documents, newest first.
func (k *KnowledgeBase) ListDocuments() ([]domain.Document, error) {
	k.mu.RLock()
	defer k.mu.RUnlock()

	docs, err := k.registry.ListDocuments()
	if err != nil {
		return nil, err
	}
	sort.Slice(docs, func(i, j int) bool {
		if !docs[i].CreatedAt.Equal(docs[j].CreatedAt) {
			return docs[i].CreatedAt.After(docs[j].CreatedAt)
		}
		return docs[i].ID < docs[j].ID
	})
	return docs, nil
}

// DeleteDocument removes the document and cascades deletion of its chunks
// from the registry and the vector index.
func (k *KnowledgeBase) DeleteDocument(docID string) error {
	k.mu.Lock()
	defer k.mu.Unlock()

	doc, err := k.registry.DeleteDocument(docID)
	if err != nil {
		return err
	}
	for _, chunkID := range doc.ChunkIDs {
		if err := k.index.Delete(chunkID); err != nil {
			return fmt.Errorf("failed to delete chunk %s from index: %w", chunkID, err)
		}
	}

	k.logger.Info("document deleted",
		zap.String("doc_id", docID),
		zap.Int("chunks", len(doc.ChunkIDs)))
	return nil
}

// GetStatistics folds the registry into corpus-level counts.
func (k *KnowledgeBase) GetStatistics() (domain.Stats, error) {
	k.mu.RLock()
	defer k.mu.RUnlock()

	docs, err := k.registry.ListDocuments()
	if err != nil {
		return domain.Stats{}, err
	}

	stats := domain.Stats{Categories: make(map[string]int)}
	tags := make(map[string]struct{})
	for _, doc := range docs {
		stats.TotalDocuments++
		stats.TotalChunks += len(doc.ChunkIDs)
		stats.TotalContentLength += doc.ContentLength
		if doc.Category != "" {
			stats.Categories[doc.Category]++
		}
		for _, tag := range doc.Tags {
			tags[tag] = struct{}{}
		}
	}
	stats.UniqueTags = len(tags)
	return stats, nil
}
