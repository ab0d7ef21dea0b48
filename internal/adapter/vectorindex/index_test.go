package vectorindex

import (
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"

	"researchkb/internal/domain"
)

type testMeta struct {
	Category string `json:"category"`
}

func openTestIndex(t *testing.T, dimension int) (*Index[testMeta], string) {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "index.db")
	idx, err := Open[testMeta](path, dimension, nil)
	if err != nil {
		t.Fatal(err)
	}
	return idx, path
}

func TestIndexSearchOrder(t *testing.T) {
	idx, _ := openTestIndex(t, 2)
	defer idx.Close()

	// Angles from the query vector (1, 0).
	if err := idx.Upsert("exact", []float32{1, 0}, testMeta{}); err != nil {
		t.Fatal(err)
	}
	if err := idx.Upsert("close", []float32{1, 0.5}, testMeta{}); err != nil {
		t.Fatal(err)
	}
	if err := idx.Upsert("far", []float32{0, 1}, testMeta{}); err != nil {
		t.Fatal(err)
	}

	results, err := idx.Search([]float32{1, 0}, 3, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 3 {
		t.Fatalf("expected 3 results, got %d", len(results))
	}
	want := []string{"exact", "close", "far"}
	for i, key := range want {
		if results[i].Key != key {
			t.Errorf("result %d: expected %s, got %s", i, key, results[i].Key)
		}
	}
	if results[0].Score < results[1].Score || results[1].Score < results[2].Score {
		t.Error("scores not descending")
	}
	if math.Abs(results[0].Score-1.0) > 1e-6 {
		t.Errorf("exact match score = %f, want 1.0", results[0].Score)
	}
}

func TestIndexTopKLimit(t *testing.T) {
	idx, _ := openTestIndex(t, 2)
	defer idx.Close()

	for _, key := range []string{"a", "b", "c", "d"} {
		if err := idx.Upsert(key, []float32{1, 1}, testMeta{}); err != nil {
			t.Fatal(err)
		}
	}

	results, err := idx.Search([]float32{1, 1}, 2, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 2 {
		t.Errorf("expected 2 results, got %d", len(results))
	}

	results, err = idx.Search([]float32{1, 1}, 10, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 4 {
		t.Errorf("expected all 4 results, got %d", len(results))
	}
}

func TestIndexTieBreakMostRecentFirst(t *testing.T) {
	idx, _ := openTestIndex(t, 2)
	defer idx.Close()

	// Identical vectors score identically; insertion order breaks the tie.
	for _, key := range []string{"first", "second", "third"} {
		if err := idx.Upsert(key, []float32{1, 2}, testMeta{}); err != nil {
			t.Fatal(err)
		}
	}

	results, err := idx.Search([]float32{1, 2}, 3, nil)
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"third", "second", "first"}
	for i, key := range want {
		if results[i].Key != key {
			t.Errorf("result %d: expected %s, got %s", i, key, results[i].Key)
		}
	}
}

func TestIndexFilterBeforeRanking(t *testing.T) {
	idx, _ := openTestIndex(t, 2)
	defer idx.Close()

	// The best-scoring records are all in the wrong category; with the
	// filter applied before ranking, k=2 still returns 2 matching records.
	if err := idx.Upsert("wrong1", []float32{1, 0}, testMeta{Category: "other"}); err != nil {
		t.Fatal(err)
	}
	if err := idx.Upsert("wrong2", []float32{1, 0.1}, testMeta{Category: "other"}); err != nil {
		t.Fatal(err)
	}
	if err := idx.Upsert("match1", []float32{0.5, 1}, testMeta{Category: "ml"}); err != nil {
		t.Fatal(err)
	}
	if err := idx.Upsert("match2", []float32{0, 1}, testMeta{Category: "ml"}); err != nil {
		t.Fatal(err)
	}

	results, err := idx.Search([]float32{1, 0}, 2, func(m testMeta) bool {
		return m.Category == "ml"
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 filtered results, got %d", len(results))
	}
	for _, r := range results {
		if r.Meta.Category != "ml" {
			t.Errorf("result %s has category %s", r.Key, r.Meta.Category)
		}
	}
	if results[0].Key != "match1" {
		t.Errorf("expected match1 first, got %s", results[0].Key)
	}
}

func TestIndexDimensionMismatch(t *testing.T) {
	idx, _ := openTestIndex(t, 3)
	defer idx.Close()

	err := idx.Upsert("a", []float32{1, 2}, testMeta{})
	if !errors.Is(err, domain.ErrDimensionMismatch) {
		t.Errorf("expected dimension mismatch, got %v", err)
	}

	var dimErr *domain.DimensionError
	if !errors.As(err, &dimErr) {
		t.Fatal("expected *domain.DimensionError")
	}
	if dimErr.Want != 3 || dimErr.Got != 2 {
		t.Errorf("unexpected dimensions: want=%d got=%d", dimErr.Want, dimErr.Got)
	}

	if _, err := idx.Search([]float32{1}, 1, nil); !errors.Is(err, domain.ErrDimensionMismatch) {
		t.Errorf("expected dimension mismatch on search, got %v", err)
	}

	if idx.Count() != 0 {
		t.Error("rejected upsert must not leave state behind")
	}
}

func TestIndexUpsertReplaces(t *testing.T) {
	idx, _ := openTestIndex(t, 2)
	defer idx.Close()

	if err := idx.Upsert("a", []float32{1, 0}, testMeta{Category: "old"}); err != nil {
		t.Fatal(err)
	}
	if err := idx.Upsert("a", []float32{0, 1}, testMeta{Category: "new"}); err != nil {
		t.Fatal(err)
	}

	if idx.Count() != 1 {
		t.Fatalf("expected 1 record after replace, got %d", idx.Count())
	}

	results, err := idx.Search([]float32{0, 1}, 1, nil)
	if err != nil {
		t.Fatal(err)
	}
	if results[0].Meta.Category != "new" {
		t.Errorf("expected replaced metadata, got %s", results[0].Meta.Category)
	}
}

func TestIndexDeleteAbsentKey(t *testing.T) {
	idx, _ := openTestIndex(t, 2)
	defer idx.Close()

	if err := idx.Delete("missing"); err != nil {
		t.Errorf("delete of absent key should be a no-op, got %v", err)
	}

	if err := idx.Upsert("a", []float32{1, 0}, testMeta{}); err != nil {
		t.Fatal(err)
	}
	if err := idx.Delete("a"); err != nil {
		t.Fatal(err)
	}
	if idx.Count() != 0 {
		t.Errorf("expected empty index after delete, got %d records", idx.Count())
	}
}

func TestIndexPersistenceRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "index.db")

	idx, err := Open[testMeta](path, 3, nil)
	if err != nil {
		t.Fatal(err)
	}
	vectors := map[string][]float32{
		"a": {1, 0, 0},
		"b": {0.7, 0.7, 0},
		"c": {0, 0, 1},
	}
	for key, vec := range vectors {
		if err := idx.Upsert(key, vec, testMeta{Category: key}); err != nil {
			t.Fatal(err)
		}
	}
	query := []float32{1, 0.2, 0}
	before, err := idx.Search(query, 3, nil)
	if err != nil {
		t.Fatal(err)
	}
	idx.Close()

	reopened, err := Open[testMeta](path, 3, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer reopened.Close()

	after, err := reopened.Search(query, 3, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(after) != len(before) {
		t.Fatalf("result counts differ: %d vs %d", len(before), len(after))
	}
	for i := range before {
		if after[i].Key != before[i].Key {
			t.Errorf("result %d: key %s vs %s", i, before[i].Key, after[i].Key)
		}
		if math.Abs(after[i].Score-before[i].Score) > 1e-9 {
			t.Errorf("result %d: score %f vs %f", i, before[i].Score, after[i].Score)
		}
		if after[i].Meta != before[i].Meta {
			t.Errorf("result %d: metadata differs", i)
		}
	}
}

func TestIndexDimensionChangeStartsEmpty(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "index.db")

	idx, err := Open[testMeta](path, 2, nil)
	if err != nil {
		t.Fatal(err)
	}
	if err := idx.Upsert("a", []float32{1, 0}, testMeta{}); err != nil {
		t.Fatal(err)
	}
	idx.Close()

	reopened, err := Open[testMeta](path, 4, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer reopened.Close()

	if reopened.Count() != 0 {
		t.Errorf("expected empty index after dimension change, got %d records", reopened.Count())
	}
	if err := reopened.Upsert("b", []float32{1, 0, 0, 0}, testMeta{}); err != nil {
		t.Errorf("reopened index must accept new dimension: %v", err)
	}
}

func TestIndexCorruptFileStartsEmpty(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "index.db")

	if err := os.WriteFile(path, []byte("this is not a database"), 0600); err != nil {
		t.Fatal(err)
	}

	idx, err := Open[testMeta](path, 2, nil)
	if err != nil {
		t.Fatalf("corrupt file must degrade to empty index, got %v", err)
	}
	defer idx.Close()

	if idx.Count() != 0 {
		t.Errorf("expected empty index, got %d records", idx.Count())
	}
	if err := idx.Upsert("a", []float32{1, 0}, testMeta{}); err != nil {
		t.Errorf("degraded index must be writable: %v", err)
	}
}

func TestIndexZeroVector(t *testing.T) {
	idx, _ := openTestIndex(t, 2)
	defer idx.Close()

	if err := idx.Upsert("zero", []float32{0, 0}, testMeta{}); err != nil {
		t.Fatal(err)
	}
	results, err := idx.Search([]float32{1, 0}, 1, nil)
	if err != nil {
		t.Fatal(err)
	}
	if results[0].Score != 0 {
		t.Errorf("zero vector should score 0, got %f", results[0].Score)
	}
}
