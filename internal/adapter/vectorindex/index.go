package vectorindex

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"sort"
	"sync"

	"go.etcd.io/bbolt"
	"go.uber.org/zap"

	"researchkb/internal/domain"
)

var (
	bucketVectors = []byte("vectors")
	bucketMeta    = []byte("meta")
	keyDimension  = []byte("dimension")
	keyFormat     = []byte("format")
)

// formatVersion guards the on-disk record layout. A file written by an
// incompatible version is discarded on open rather than misread.
const formatVersion = 1

// Index is a bbolt-backed vector index over records tagged with a closed
// metadata struct M. Vectors are L2-normalized at insertion so search is a
// single dot product per candidate; search is an exact linear scan over an
// in-memory copy of all records, write-through to disk on every mutation.
type Index[M any] struct {
	db        *bbolt.DB
	dimension int
	logger    *zap.Logger

	mu      sync.RWMutex
	records map[string]record[M]
	nextSeq uint64
}

type record[M any] struct {
	vector []float32
	meta   M
	seq    uint64
}

type storedRecord[M any] struct {
	Vector []float32 `json:"v"`
	Meta   M         `json:"m"`
	Seq    uint64    `json:"s"`
}

// Result is a single search hit.
type Result[M any] struct {
	Key   string
	Score float64
	Meta  M
}

// Open opens (or creates) the index file at path. A missing file starts
// empty; a corrupt file or a dimension/format mismatch is discarded and the
// index starts empty with a warning, never failing the caller.
func Open[M any](path string, dimension int, logger *zap.Logger) (*Index[M], error) {
	if dimension <= 0 {
		return nil, fmt.Errorf("%w: dimension must be positive, got %d", domain.ErrConfiguration, dimension)
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	db, err := bbolt.Open(path, 0600, nil)
	if err != nil {
		logger.Warn("index file unreadable, starting empty",
			zap.String("path", path), zap.Error(err))
		if rmErr := os.Remove(path); rmErr != nil && !os.IsNotExist(rmErr) {
			return nil, fmt.Errorf("failed to reset index file: %w", rmErr)
		}
		db, err = bbolt.Open(path, 0600, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to open index file: %w", err)
		}
	}

	idx := &Index[M]{
		db:        db,
		dimension: dimension,
		logger:    logger,
		records:   make(map[string]record[M]),
		nextSeq:   1,
	}

	if err := idx.load(path); err != nil {
		db.Close()
		return nil, err
	}

	return idx, nil
}

func (x *Index[M]) load(path string) error {
	return x.db.Update(func(tx *bbolt.Tx) error {
		meta, err := tx.CreateBucketIfNotExists(bucketMeta)
		if err != nil {
			return fmt.Errorf("failed to create meta bucket: %w", err)
		}
		vectors, err := tx.CreateBucketIfNotExists(bucketVectors)
		if err != nil {
			return fmt.Errorf("failed to create vectors bucket: %w", err)
		}

		if !x.compatible(meta) {
			x.logger.Warn("index file incompatible, starting empty",
				zap.String("path", path),
				zap.Int("dimension", x.dimension))
			if err := tx.DeleteBucket(bucketVectors); err != nil {
				return err
			}
			if vectors, err = tx.CreateBucket(bucketVectors); err != nil {
				return err
			}
		}

		if err := meta.Put(keyDimension, u64bytes(uint64(x.dimension))); err != nil {
			return err
		}
		if err := meta.Put(keyFormat, u64bytes(formatVersion)); err != nil {
			return err
		}

		return vectors.ForEach(func(k, v []byte) error {
			var stored storedRecord[M]
			if err := json.Unmarshal(v, &stored); err != nil || len(stored.Vector) != x.dimension {
				x.logger.Warn("skipping corrupt index record", zap.String("key", string(k)))
				return nil
			}
			x.records[string(k)] = record[M]{
				vector: stored.Vector,
				meta:   stored.Meta,
				seq:    stored.Seq,
			}
			if stored.Seq >= x.nextSeq {
				x.nextSeq = stored.Seq + 1
			}
			return nil
		})
	})
}

// compatible reports whether the persisted meta bucket matches this index's
// configuration. An empty meta bucket (fresh file) is compatible.
func (x *Index[M]) compatible(meta *bbolt.Bucket) bool {
	dim := meta.Get(keyDimension)
	format := meta.Get(keyFormat)
	if dim == nil && format == nil {
		return true
	}
	if len(dim) != 8 || len(format) != 8 {
		return false
	}
	return binary.BigEndian.Uint64(dim) == uint64(x.dimension) &&
		binary.BigEndian.Uint64(format) == formatVersion
}

// Upsert inserts or replaces the record for key. The vector is normalized
// before storage; its length must match the index dimension.
func (x *Index[M]) Upsert(key string, vector []float32, meta M) error {
	if len(vector) != x.dimension {
		return &domain.DimensionError{Want: x.dimension, Got: len(vector)}
	}

	normalized := normalize(vector)

	x.mu.Lock()
	defer x.mu.Unlock()

	seq := x.nextSeq
	stored := storedRecord[M]{Vector: normalized, Meta: meta, Seq: seq}
	data, err := json.Marshal(stored)
	if err != nil {
		return err
	}

	err = x.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketVectors).Put([]byte(key), data)
	})
	if err != nil {
		return fmt.Errorf("failed to persist vector record: %w", err)
	}

	x.records[key] = record[M]{vector: normalized, meta: meta, seq: seq}
	x.nextSeq++
	return nil
}

// Delete removes the record for key. Deleting an absent key is a no-op.
func (x *Index[M]) Delete(key string) error {
	x.mu.Lock()
	defer x.mu.Unlock()

	err := x.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketVectors).Delete([]byte(key))
	})
	if err != nil {
		return fmt.Errorf("failed to delete vector record: %w", err)
	}

	delete(x.records, key)
	return nil
}

// Search returns up to k records ordered by descending cosine similarity to
// query, ties broken by most recent insertion. filter, when non-nil, is
// applied before ranking so k reflects matching records.
func (x *Index[M]) Search(query []float32, k int, filter func(M) bool) ([]Result[M], error) {
	if len(query) != x.dimension {
		return nil, &domain.DimensionError{Want: x.dimension, Got: len(query)}
	}
	if k <= 0 {
		return nil, nil
	}

	q := normalize(query)

	x.mu.RLock()
	defer x.mu.RUnlock()

	type scored struct {
		key   string
		score float64
		seq   uint64
		meta  M
	}

	candidates := make([]scored, 0, len(x.records))
	for key, rec := range x.records {
		if filter != nil && !filter(rec.meta) {
			continue
		}
		candidates = append(candidates, scored{
			key:   key,
			score: dot(q, rec.vector),
			seq:   rec.seq,
			meta:  rec.meta,
		})
	}

	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].score != candidates[j].score {
			return candidates[i].score > candidates[j].score
		}
		return candidates[i].seq > candidates[j].seq
	})

	if k > len(candidates) {
		k = len(candidates)
	}

	results := make([]Result[M], k)
	for i := 0; i < k; i++ {
		results[i] = Result[M]{
			Key:   candidates[i].key,
			Score: candidates[i].score,
			Meta:  candidates[i].meta,
		}
	}
	return results, nil
}

// Count returns the number of records in the index.
func (x *Index[M]) Count() int {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return len(x.records)
}

// Dimension returns the configured vector dimension.
func (x *Index[M]) Dimension() int {
	return x.dimension
}

// Close closes the underlying index file.
func (x *Index[M]) Close() error {
	return x.db.Close()
}

// normalize returns the L2-normalized copy of v. A zero vector is returned
// unchanged so it scores 0 against everything instead of NaN.
func normalize(v []float32) []float32 {
	var sum float64
	for _, f := range v {
		sum += float64(f) * float64(f)
	}
	norm := math.Sqrt(sum)
	out := make([]float32, len(v))
	if norm == 0 {
		copy(out, v)
		return out
	}
	for i, f := range v {
		out[i] = float32(float64(f) / norm)
	}
	return out
}

func dot(a, b []float32) float64 {
	var sum float64
	for i := range a {
		sum += float64(a[i]) * float64(b[i])
	}
	return sum
}

func u64bytes(v uint64) []byte {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, v)
	return buf
}
