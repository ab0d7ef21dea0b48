package store

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"go.etcd.io/bbolt"
	"go.uber.org/zap"

	"researchkb/internal/domain"
)

var (
	bucketDocs     = []byte("docs")
	bucketChunks   = []byte("chunks")
	bucketBlobs    = []byte("blobs")
	bucketResearch = []byte("research")
)

// Registry is the bbolt-backed source of truth for documents, chunk text and
// research entries. Vector indexes are derived from it and rebuildable.
type Registry struct {
	db     *bbolt.DB
	logger *zap.Logger
}

// NewRegistry opens (or creates) the registry file at path. An unreadable
// file is discarded and the registry starts empty with a warning.
func NewRegistry(path string, logger *zap.Logger) (*Registry, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	db, err := bbolt.Open(path, 0600, nil)
	if err != nil {
		logger.Warn("registry file unreadable, starting empty",
			zap.String("path", path), zap.Error(err))
		if rmErr := os.Remove(path); rmErr != nil && !os.IsNotExist(rmErr) {
			return nil, fmt.Errorf("failed to reset registry file: %w", rmErr)
		}
		db, err = bbolt.Open(path, 0600, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to open registry file: %w", err)
		}
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		buckets := [][]byte{bucketDocs, bucketChunks, bucketBlobs, bucketResearch}
		for _, b := range buckets {
			if _, err := tx.CreateBucketIfNotExists(b); err != nil {
				return fmt.Errorf("failed to create bucket %s: %w", b, err)
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &Registry{db: db, logger: logger}, nil
}

func (r *Registry) Close() error {
	return r.db.Close()
}

type docMeta struct {
	Title         string   `json:"title"`
	Category      string   `json:"category"`
	Tags          []string `json:"tags,omitempty"`
	Source        string   `json:"source,omitempty"`
	CreatedAt     int64    `json:"created_at"`
	ContentLength int      `json:"content_length"`
	ChunkIDs      []string `json:"chunk_ids"`
}

type chunkMeta struct {
	DocID    string `json:"doc_id"`
	Position int    `json:"position"`
}

// PutDocument stores the document and all its chunks in one transaction, so
// readers observe either none or all of them.
func (r *Registry) PutDocument(doc domain.Document, chunks []domain.Chunk) error {
	return r.db.Update(func(tx *bbolt.Tx) error {
		meta := docMeta{
			Title:         doc.Title,
			Category:      doc.Category,
			Tags:          doc.Tags,
			Source:        doc.Source,
			CreatedAt:     doc.CreatedAt.Unix(),
			ContentLength: doc.ContentLength,
			ChunkIDs:      doc.ChunkIDs,
		}
		data, err := json.Marshal(meta)
		if err != nil {
			return err
		}
		if err := tx.Bucket(bucketDocs).Put([]byte(doc.ID), data); err != nil {
			return err
		}

		chunkBucket := tx.Bucket(bucketChunks)
		blobBucket := tx.Bucket(bucketBlobs)
		for _, chunk := range chunks {
			cm := chunkMeta{DocID: chunk.DocID, Position: chunk.Position}
			cmData, err := json.Marshal(cm)
			if err != nil {
				return err
			}
			if err := chunkBucket.Put([]byte(chunk.ID), cmData); err != nil {
				return err
			}
			if err := blobBucket.Put([]byte(chunk.ID), []byte(chunk.Text)); err != nil {
				return err
			}
		}
		return nil
	})
}

func (r *Registry) GetDocument(id string) (domain.Document, error) {
	var doc domain.Document
	err := r.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket(bucketDocs).Get([]byte(id))
		if data == nil {
			return fmt.Errorf("document %s: %w", id, domain.ErrNotFound)
		}
		var meta docMeta
		if err := json.Unmarshal(data, &meta); err != nil {
			return err
		}
		doc = docFromMeta(id, meta)
		return nil
	})
	return doc, err
}

func (r *Registry) ListDocuments() ([]domain.Document, error) {
	var docs []domain.Document
	err := r.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketDocs).ForEach(func(k, v []byte) error {
			var meta docMeta
			if err := json.Unmarshal(v, &meta); err != nil {
				r.logger.Warn("skipping corrupt document record", zap.String("doc_id", string(k)))
				return nil
			}
			docs = append(docs, docFromMeta(string(k), meta))
			return nil
		})
	})
	return docs, err
}

// DeleteDocument removes the document and all its chunks. Returns the
// deleted document so callers can cascade vector-record deletion.
func (r *Registry) DeleteDocument(id string) (domain.Document, error) {
	var doc domain.Document
	err := r.db.Update(func(tx *bbolt.Tx) error {
		docBucket := tx.Bucket(bucketDocs)
		data := docBucket.Get([]byte(id))
		if data == nil {
			return fmt.Errorf("document %s: %w", id, domain.ErrNotFound)
		}
		var meta docMeta
		if err := json.Unmarshal(data, &meta); err != nil {
			return err
		}
		doc = docFromMeta(id, meta)

		chunkBucket := tx.Bucket(bucketChunks)
		blobBucket := tx.Bucket(bucketBlobs)
		for _, chunkID := range meta.ChunkIDs {
			if err := chunkBucket.Delete([]byte(chunkID)); err != nil {
				return err
			}
			if err := blobBucket.Delete([]byte(chunkID)); err != nil {
				return err
			}
		}
		return docBucket.Delete([]byte(id))
	})
	return doc, err
}

func (r *Registry) GetChunk(id string) (domain.Chunk, error) {
	var chunk domain.Chunk
	err := r.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket(bucketChunks).Get([]byte(id))
		if data == nil {
			return fmt.Errorf("chunk %s: %w", id, domain.ErrNotFound)
		}
		var meta chunkMeta
		if err := json.Unmarshal(data, &meta); err != nil {
			return err
		}
		text := tx.Bucket(bucketBlobs).Get([]byte(id))
		chunk = domain.Chunk{
			ID:       id,
			DocID:    meta.DocID,
			Position: meta.Position,
			Text:     string(text),
		}
		return nil
	})
	return chunk, err
}

type researchMeta struct {
	Query     string          `json:"query"`
	Summary   string          `json:"summary"`
	KeyPoints []string        `json:"key_points,omitempty"`
	Sources   []domain.Source `json:"sources,omitempty"`
	CreatedAt int64           `json:"created_at"`
}

func (r *Registry) PutResearch(entry domain.ResearchEntry) error {
	return r.db.Update(func(tx *bbolt.Tx) error {
		meta := researchMeta{
			Query:     entry.Query,
			Summary:   entry.Summary,
			KeyPoints: entry.KeyPoints,
			Sources:   entry.Sources,
			CreatedAt: entry.CreatedAt.Unix(),
		}
		data, err := json.Marshal(meta)
		if err != nil {
			return err
		}
		return tx.Bucket(bucketResearch).Put([]byte(entry.ID), data)
	})
}

func (r *Registry) GetResearch(id string) (domain.ResearchEntry, error) {
	var entry domain.ResearchEntry
	err := r.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket(bucketResearch).Get([]byte(id))
		if data == nil {
			return fmt.Errorf("research entry %s: %w", id, domain.ErrNotFound)
		}
		var meta researchMeta
		if err := json.Unmarshal(data, &meta); err != nil {
			return err
		}
		entry = domain.ResearchEntry{
			ID:        id,
			Query:     meta.Query,
			Summary:   meta.Summary,
			KeyPoints: meta.KeyPoints,
			Sources:   meta.Sources,
			CreatedAt: time.Unix(meta.CreatedAt, 0),
		}
		return nil
	})
	return entry, err
}

func docFromMeta(id string, meta docMeta) domain.Document {
	return domain.Document{
		ID:            id,
		Title:         meta.Title,
		Category:      meta.Category,
		Tags:          meta.Tags,
		Source:        meta.Source,
		CreatedAt:     time.Unix(meta.CreatedAt, 0),
		ContentLength: meta.ContentLength,
		ChunkIDs:      meta.ChunkIDs,
	}
}
