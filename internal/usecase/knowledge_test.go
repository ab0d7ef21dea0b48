package usecase

import (
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"researchkb/internal/adapter/chunker"
	"researchkb/internal/adapter/embedding"
	"researchkb/internal/adapter/store"
	"researchkb/internal/adapter/vectorindex"
	"researchkb/internal/domain"
	"researchkb/internal/port"
)

type failingEmbedder struct{}

func (failingEmbedder) Embed([]string) ([][]float32, error) {
	return nil, errors.New("provider down")
}
func (failingEmbedder) Dimension() int    { return 64 }
func (failingEmbedder) ModelName() string { return "failing" }

// wrongDimEmbedder reports one dimension but returns another.
type wrongDimEmbedder struct{}

func (wrongDimEmbedder) Embed(texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range out {
		out[i] = make([]float32, 16)
	}
	return out, nil
}
func (wrongDimEmbedder) Dimension() int    { return 64 }
func (wrongDimEmbedder) ModelName() string { return "wrong-dim" }

func newTestKB(t *testing.T, embedder port.Embedder) *KnowledgeBase {
	t.Helper()
	dir := t.TempDir()

	registry, err := store.NewRegistry(filepath.Join(dir, "registry.db"), nil)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { registry.Close() })

	index, err := vectorindex.Open[domain.ChunkMeta](filepath.Join(dir, "index.db"), embedder.Dimension(), nil)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { index.Close() })

	textChunker, err := chunker.NewTextChunker(200, 20)
	if err != nil {
		t.Fatal(err)
	}

	return NewKnowledgeBase(registry, index, textChunker, embedder, nil)
}

func TestAddAndSearchScenario(t *testing.T) {
	kb := newTestKB(t, embedding.NewHashEmbedder(64))

	content := `Deep learning uses multi-layer neural networks to learn feature
representations. Convolutional neural networks excel at image recognition,
while recurrent networks handle sequences.`

	result, err := kb.AddTextContent(content, "Deep Learning Basics", "machine_learning",
		[]string{"deep-learning", "nn"}, "")
	if err != nil {
		t.Fatal(err)
	}
	if result.DocID == "" {
		t.Error("expected a doc id")
	}
	if result.ChunkCount < 1 {
		t.Errorf("expected at least 1 chunk, got %d", result.ChunkCount)
	}

	results, err := kb.SearchKnowledge("neural network architectures", 3, "")
	if err != nil {
		t.Fatal(err)
	}
	if len(results) == 0 {
		t.Fatal("expected search results")
	}

	found := false
	for _, r := range results {
		if r.DocID == result.DocID && strings.Contains(r.Text, "neural networks") {
			found = true
			if r.Title != "Deep Learning Basics" {
				t.Errorf("expected parent title, got %q", r.Title)
			}
			if r.Category != "machine_learning" {
				t.Errorf("expected parent category, got %q", r.Category)
			}
		}
	}
	if !found {
		t.Error("expected the added document's chunk among the top results")
	}

	stats, err := kb.GetStatistics()
	if err != nil {
		t.Fatal(err)
	}
	if stats.TotalDocuments != 1 {
		t.Errorf("expected 1 document, got %d", stats.TotalDocuments)
	}
	if stats.Categories["machine_learning"] != 1 {
		t.Errorf("expected categories {machine_learning: 1}, got %v", stats.Categories)
	}
	if stats.UniqueTags != 2 {
		t.Errorf("expected 2 unique tags, got %d", stats.UniqueTags)
	}
	if stats.TotalChunks != result.ChunkCount {
		t.Errorf("expected %d chunks, got %d", result.ChunkCount, stats.TotalChunks)
	}
}

func TestSearchRelevanceOrdering(t *testing.T) {
	kb := newTestKB(t, embedding.NewHashEmbedder(64))

	content := "Goroutines communicate over channels. Buffered channels decouple sender and receiver."
	if _, err := kb.AddTextContent(content, "Concurrency Notes", "golang", nil, ""); err != nil {
		t.Fatal(err)
	}

	related, err := kb.SearchKnowledge("goroutines and channels", 1, "")
	if err != nil {
		t.Fatal(err)
	}
	unrelated, err := kb.SearchKnowledge("quantum botany zebra migration", 1, "")
	if err != nil {
		t.Fatal(err)
	}

	if len(related) == 0 {
		t.Fatal("expected a result for the related query")
	}
	if len(unrelated) > 0 && unrelated[0].Score > related[0].Score {
		t.Errorf("unrelated query scored higher: %f > %f", unrelated[0].Score, related[0].Score)
	}
	if !strings.Contains(related[0].Text, "channels") {
		t.Errorf("expected matching chunk text, got %q", related[0].Text)
	}
}

func TestSearchCategoryFilter(t *testing.T) {
	kb := newTestKB(t, embedding.NewHashEmbedder(64))

	if _, err := kb.AddTextContent("Neural networks for image recognition.", "ML Doc", "machine_learning", nil, ""); err != nil {
		t.Fatal(err)
	}
	if _, err := kb.AddTextContent("Neural networks in popular culture.", "Culture Doc", "culture", nil, ""); err != nil {
		t.Fatal(err)
	}

	results, err := kb.SearchKnowledge("neural networks", 10, "culture")
	if err != nil {
		t.Fatal(err)
	}
	if len(results) == 0 {
		t.Fatal("expected filtered results")
	}
	for _, r := range results {
		if r.Category != "culture" {
			t.Errorf("filter leaked category %q", r.Category)
		}
	}
}

func TestAddEmptyContent(t *testing.T) {
	kb := newTestKB(t, embedding.NewHashEmbedder(64))

	if _, err := kb.AddTextContent("", "Empty", "", nil, ""); !errors.Is(err, domain.ErrEmptyContent) {
		t.Errorf("expected ErrEmptyContent, got %v", err)
	}
	if _, err := kb.AddTextContent("  \n ", "Blank", "", nil, ""); !errors.Is(err, domain.ErrEmptyContent) {
		t.Errorf("expected ErrEmptyContent for whitespace, got %v", err)
	}

	stats, err := kb.GetStatistics()
	if err != nil {
		t.Fatal(err)
	}
	if stats.TotalDocuments != 0 {
		t.Errorf("rejected adds must not create documents, got %d", stats.TotalDocuments)
	}
}

func TestAddEmbeddingFailureLeavesNoState(t *testing.T) {
	kb := newTestKB(t, failingEmbedder{})

	_, err := kb.AddTextContent("some content", "Doc", "cat", nil, "")
	if !errors.Is(err, domain.ErrEmbedding) {
		t.Fatalf("expected ErrEmbedding, got %v", err)
	}

	docs, err := kb.ListDocuments()
	if err != nil {
		t.Fatal(err)
	}
	if len(docs) != 0 {
		t.Errorf("failed add must not leave documents behind, got %d", len(docs))
	}
}

func TestAddDimensionMismatchLeavesNoState(t *testing.T) {
	kb := newTestKB(t, wrongDimEmbedder{})

	_, err := kb.AddTextContent("some content", "Doc", "cat", nil, "")
	if !errors.Is(err, domain.ErrDimensionMismatch) {
		t.Fatalf("expected ErrDimensionMismatch, got %v", err)
	}

	docs, err := kb.ListDocuments()
	if err != nil {
		t.Fatal(err)
	}
	if len(docs) != 0 {
		t.Errorf("failed add must not leave documents behind, got %d", len(docs))
	}
}

func TestDeleteDocumentCascade(t *testing.T) {
	kb := newTestKB(t, embedding.NewHashEmbedder(64))

	keep, err := kb.AddTextContent("Postgres indexing strategies and vacuum tuning.", "DB Doc", "databases", nil, "")
	if err != nil {
		t.Fatal(err)
	}
	drop, err := kb.AddTextContent("Sailing knots and rigging for small boats.", "Sailing Doc", "hobbies", nil, "")
	if err != nil {
		t.Fatal(err)
	}

	if err := kb.DeleteDocument(drop.DocID); err != nil {
		t.Fatal(err)
	}

	for _, topK := range []int{1, 5, 50} {
		results, err := kb.SearchKnowledge("sailing knots rigging", topK, "")
		if err != nil {
			t.Fatal(err)
		}
		for _, r := range results {
			if r.DocID == drop.DocID {
				t.Errorf("deleted document surfaced in search with top_k=%d", topK)
			}
		}
	}

	// Second delete: NotFound, state unchanged.
	if err := kb.DeleteDocument(drop.DocID); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("expected ErrNotFound on second delete, got %v", err)
	}

	docs, err := kb.ListDocuments()
	if err != nil {
		t.Fatal(err)
	}
	if len(docs) != 1 || docs[0].ID != keep.DocID {
		t.Errorf("expected only the kept document, got %d docs", len(docs))
	}
}

func TestListDocumentsNewestFirst(t *testing.T) {
	kb := newTestKB(t, embedding.NewHashEmbedder(64))

	for _, title := range []string{"First", "Second", "Third"} {
		if _, err := kb.AddTextContent("content for "+title, title, "", nil, ""); err != nil {
			t.Fatal(err)
		}
	}

	docs, err := kb.ListDocuments()
	if err != nil {
		t.Fatal(err)
	}
	if len(docs) != 3 {
		t.Fatalf("expected 3 documents, got %d", len(docs))
	}
	for i := 1; i < len(docs); i++ {
		if docs[i].CreatedAt.After(docs[i-1].CreatedAt) {
			t.Error("documents not ordered newest first")
		}
	}
}

func TestKnowledgePersistsAcrossReopen(t *testing.T) {
	dir := t.TempDir()
	embedder := embedding.NewHashEmbedder(64)
	textChunker, err := chunker.NewTextChunker(200, 20)
	if err != nil {
		t.Fatal(err)
	}

	open := func() (*KnowledgeBase, func()) {
		registry, err := store.NewRegistry(filepath.Join(dir, "registry.db"), nil)
		if err != nil {
			t.Fatal(err)
		}
		index, err := vectorindex.Open[domain.ChunkMeta](filepath.Join(dir, "index.db"), embedder.Dimension(), nil)
		if err != nil {
			t.Fatal(err)
		}
		kb := NewKnowledgeBase(registry, index, textChunker, embedder, nil)
		return kb, func() {
			index.Close()
			registry.Close()
		}
	}

	kb, closeKB := open()
	added, err := kb.AddTextContent("Vector search with cosine similarity.", "Search Doc", "search", nil, "")
	if err != nil {
		t.Fatal(err)
	}
	closeKB()

	kb, closeKB = open()
	defer closeKB()

	results, err := kb.SearchKnowledge("cosine similarity search", 3, "")
	if err != nil {
		t.Fatal(err)
	}
	if len(results) == 0 {
		t.Fatal("expected results after reopen")
	}
	if results[0].DocID != added.DocID {
		t.Errorf("expected persisted document, got %s", results[0].DocID)
	}
}
