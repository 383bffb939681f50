package types

import (
	"time"

	"github.com/google/uuid"
)

// Strategy selects how candidates are retrieved for a question.
type Strategy string

const (
	StrategySemantic Strategy = "semantic"
	StrategyLexical  Strategy = "lexical"
)

type Confidence string

const (
	ConfidenceHigh   Confidence = "high"
	ConfidenceMedium Confidence = "medium"
	ConfidenceLow    Confidence = "low"
)

type DocumentStatus string

const (
	StatusDraft    DocumentStatus = "draft"
	StatusActive   DocumentStatus = "active"
	StatusArchived DocumentStatus = "archived"
	StatusFailed   DocumentStatus = "failed"
)

// PageText is the extracted text of one page. Page numbers start at 1.
type PageText struct {
	PageNumber int
	Text       string
}

type SentenceUnit struct {
	Text       string
	PageNumber int
}

// Chunk is the unit of retrieval. Index is the 0-based position inside
// its document; Embedding is nil when the chunk was stored without a vector.
type Chunk struct {
	ID            uuid.UUID
	DocumentID    uuid.UUID
	Index         int
	Content       string
	ContentTokens int
	ContentHash   string
	PageStart     int
	PageEnd       int
	Section       string
	Embedding     []float32
}

// CachedEmbedding is keyed by the digest of the exact chunk text.
type CachedEmbedding struct {
	ContentHash  string
	Embedding    []float32
	Tokens       int
	ModelVersion string
	CreatedAt    time.Time
}

// Candidate is a scored chunk returned by one retrieval strategy.
// PageStart and PageEnd are 0 when the page is unknown.
type Candidate struct {
	ChunkID         uuid.UUID
	DocumentID      uuid.UUID
	DocumentTitle   string
	DocumentVersion string
	Content         string
	Score           float64
	PageStart       int
	PageEnd         int
	Section         string
}

type RankedResult struct {
	Candidate
	Rank int
}

type QueryOutcome struct {
	Confidence Confidence
	Groundable bool
	Reranked   []RankedResult
}

type Document struct {
	ID            uuid.UUID      `json:"id"`
	CanonicalID   uuid.UUID      `json:"canonical_id"`
	VersionNum    int            `json:"version_num"`
	IsLatest      bool           `json:"is_latest"`
	Title         string         `json:"title"`
	Source        string         `json:"source,omitempty"`
	Category      string         `json:"category,omitempty"`
	ProductFamily string         `json:"product_family,omitempty"`
	Version       string         `json:"version,omitempty"`
	Language      string         `json:"language"`
	Status        DocumentStatus `json:"status"`
	StoragePath   string         `json:"storage_path"`
	Checksum      string         `json:"checksum"`
	CreatedAt     time.Time      `json:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at"`
}

type DocumentFilter struct {
	Category     string
	Status       DocumentStatus
	CollectionID uuid.NullUUID
}

type Collection struct {
	ID          uuid.UUID `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	IsDefault   bool      `json:"is_default"`
	CreatedAt   time.Time `json:"created_at"`
}

type QueryLog struct {
	ID           uuid.UUID
	UserID       string
	CollectionID uuid.UUID
	Mode         string
	Question     string
	Answer       string
	Citations    []Citation
	Confidence   Confidence
	LatencyMS    int64
	Chunks       []RankedResult
}

type Feedback struct {
	ID        uuid.UUID `json:"id"`
	QueryID   uuid.UUID `json:"query_id"`
	UserID    string    `json:"-"`
	Rating    int       `json:"rating"`
	IssueType string    `json:"issue_type,omitempty"`
	Comment   string    `json:"comment,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}
