package usecase

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"researchkb/internal/adapter/store"
	"researchkb/internal/adapter/vectorindex"
	"researchkb/internal/domain"
	"researchkb/internal/port"
)

// ResearchMemory stores synthesized research results keyed by the query they
// answered and retrieves prior work by topical similarity. It is append-only:
// a new entry never deletes or merges with similar earlier entries, ranking
// at retrieval time is the only dedup signal.
type ResearchMemory struct {
	registry *store.Registry
	index    *vectorindex.Index[domain.ResearchMeta]
	embedder port.Embedder
	logger   *zap.Logger

	mu sync.RWMutex
}

func NewResearchMemory(
	registry *store.Registry,
	index *vectorindex.Index[domain.ResearchMeta],
	embedder port.Embedder,
	logger *zap.Logger,
) *ResearchMemory {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ResearchMemory{
		registry: registry,
		index:    index,
		embedder: embedder,
		logger:   logger,
	}
}

// ResearchSummary is the synthesized result handed over by a caller.
type ResearchSummary struct {
	Summary   string
	KeyPoints []string
	Sources   []domain.Source
}

// StoreResearch embeds the query and stores a new research entry. An
// embedding failure aborts with nothing stored.
func (m *ResearchMemory) StoreResearch(query string, summary ResearchSummary) (string, error) {
	if strings.TrimSpace(query) == "" {
		return "", domain.ErrEmptyContent
	}

	vectors, err := m.embedder.Embed([]string{query})
	if err != nil {
		return "", fmt.Errorf("%w: %w", domain.ErrEmbedding, err)
	}
	if len(vectors) == 0 {
		return "", fmt.Errorf("%w: provider returned no vector for query", domain.ErrEmbedding)
	}
	if len(vectors[0]) != m.index.Dimension() {
		return "", &domain.DimensionError{Want: m.index.Dimension(), Got: len(vectors[0])}
	}

	entry := domain.ResearchEntry{
		ID:        uuid.NewString(),
		Query:     query,
		Summary:   summary.Summary,
		KeyPoints: summary.KeyPoints,
		Sources:   summary.Sources,
		CreatedAt: time.Now(),
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.registry.PutResearch(entry); err != nil {
		return "", fmt.Errorf("failed to store research entry: %w", err)
	}
	meta := domain.ResearchMeta{
		ResearchID: entry.ID,
		Query:      query,
		CreatedAt:  entry.CreatedAt.Unix(),
	}
	if err := m.index.Upsert(entry.ID, vectors[0], meta); err != nil {
		return "", fmt.Errorf("failed to index research entry: %w", err)
	}

	m.logger.Info("research stored",
		zap.String("research_id", entry.ID),
		zap.String("query", query))
	return entry.ID, nil
}

// FindRelatedResearch returns up to limit prior entries by similarity to
// query. minScore > 0 drops weaker matches; 0 returns up to limit regardless
// of score.
func (m *ResearchMemory) FindRelatedResearch(query string, limit int, minScore float64) ([]domain.RelatedResearch, error) {
	vectors, err := m.embedder.Embed([]string{query})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrEmbedding, err)
	}
	if len(vectors) == 0 {
		return nil, fmt.Errorf("%w: provider returned no vector for query", domain.ErrEmbedding)
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	hits, err := m.index.Search(vectors[0], limit, nil)
	if err != nil {
		return nil, err
	}

	related := make([]domain.RelatedResearch, 0, len(hits))
	for _, hit := range hits {
		if minScore > 0 && hit.Score < minScore {
			continue
		}
		entry, err := m.registry.GetResearch(hit.Meta.ResearchID)
		if err != nil {
			m.logger.Warn("indexed research entry missing from registry",
				zap.String("research_id", hit.Meta.ResearchID))
			continue
		}
		related = append(related, domain.RelatedResearch{Entry: entry, Score: hit.Score})
	}
	return related, nil
}

// Count returns the number of stored research entries.
func (m *ResearchMemory) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.index.Count()
}
