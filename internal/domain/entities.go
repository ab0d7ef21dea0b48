package domain

import "time"

type Document struct {
	ID            string
	Title         string
	Category      string
	Tags          []string
	Source        string
	CreatedAt     time.Time
	ContentLength int
	ChunkIDs      []string
}

type Chunk struct {
	ID       string
	DocID    string
	Position int
	Text     string
}

// ChunkMeta is the metadata carried by a chunk's vector record. Chunk text
// stays in the registry and is resolved through DocID at search time.
type ChunkMeta struct {
	DocID    string   `json:"doc_id"`
	Category string   `json:"category"`
	Tags     []string `json:"tags,omitempty"`
	Title    string   `json:"title"`
}

type SearchResult struct {
	ChunkID  string
	DocID    string
	Text     string
	Score    float64
	Title    string
	Category string
	Tags     []string
}

type Source struct {
	Title string `json:"title"`
	URL   string `json:"url"`
}

type ResearchEntry struct {
	ID        string
	Query     string
	Summary   string
	KeyPoints []string
	Sources   []Source
	CreatedAt time.Time
}

// ResearchMeta is the metadata carried by a research entry's vector record.
type ResearchMeta struct {
	ResearchID string `json:"research_id"`
	Query      string `json:"query"`
	CreatedAt  int64  `json:"created_at"`
}

type RelatedResearch struct {
	Entry ResearchEntry
	Score float64
}

type Stats struct {
	TotalDocuments     int
	TotalChunks        int
	TotalContentLength int
	Categories         map[string]int
	UniqueTags         int
}
