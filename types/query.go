package types

import (
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

type Validater interface {
	Validate() map[string]string
}

func Validate(v Validater) map[string]string {
	return v.Validate()
}

type QueryParams struct {
	CollectionID string `json:"collection_id" validate:"required,uuid"`
	Mode         string `json:"mode" validate:"required,oneof=technical sales investor"`
	Question     string `json:"question" validate:"required,min=3,max=2000"`
	Constraints  string `json:"constraints,omitempty" validate:"max=2000"`
	Language     string `json:"language,omitempty" validate:"omitempty,oneof=sv en"`
}

type CollectionParams struct {
	Name        string `json:"name" validate:"required,max=200"`
	Description string `json:"description"`
	IsDefault   bool   `json:"is_default"`
}

type FeedbackParams struct {
	QueryID   string `json:"query_id" validate:"required,uuid"`
	Rating    int    `json:"rating" validate:"required,min=1,max=5"`
	IssueType string `json:"issue_type,omitempty" validate:"omitempty,oneof=wrong missing unclear too_long other"`
	Comment   string `json:"comment,omitempty" validate:"max=4000"`
}

// DocumentParams carries the form fields of a document upload.
type DocumentParams struct {
	Title         string   `form:"title" validate:"required,max=500"`
	Source        string   `form:"source"`
	Category      string   `form:"category"`
	ProductFamily string   `form:"product_family"`
	Version       string   `form:"version"`
	Language      string   `form:"language" validate:"omitempty,oneof=sv en"`
	CanonicalID   string   `form:"canonical_id" validate:"omitempty,uuid"`
	CollectionIDs []string `form:"-" validate:"dive,uuid"`
}

func (params *QueryParams) Validate() map[string]string {
	return validateStruct(params)
}

func (params *CollectionParams) Validate() map[string]string {
	return validateStruct(params)
}

func (params *FeedbackParams) Validate() map[string]string {
	return validateStruct(params)
}

func (params *DocumentParams) Validate() map[string]string {
	return validateStruct(params)
}

func validateStruct(s any) map[string]string {
	validate := validator.New()
	if err := validate.Struct(s); err != nil {
		errs, ok := err.(validator.ValidationErrors)
		if !ok {
			return map[string]string{"request": err.Error()}
		}
		errors := make(map[string]string)
		for _, e := range errs {
			errors[e.Field()] = fmt.Sprintf("failed on '%s' tag", e.Tag())
		}
		return errors
	}
	return nil
}

type Citation struct {
	ChunkID         uuid.UUID `json:"chunk_id"`
	DocumentID      uuid.UUID `json:"document_id"`
	DocumentTitle   string    `json:"document_title"`
	DocumentVersion string    `json:"document_version,omitempty"`
	PageStart       int       `json:"page_start,omitempty"`
	PageEnd         int       `json:"page_end,omitempty"`
	Section         string    `json:"section,omitempty"`
	ContentPreview  string    `json:"content_preview"`
}

type RetrievedChunk struct {
	ChunkID       uuid.UUID `json:"chunk_id"`
	DocumentID    uuid.UUID `json:"document_id"`
	DocumentTitle string    `json:"document_title"`
	Content       string    `json:"content"`
	Score         float64   `json:"score"`
	Rank          int       `json:"rank"`
	PageStart     int       `json:"page_start,omitempty"`
	PageEnd       int       `json:"page_end,omitempty"`
	Section       string    `json:"section,omitempty"`
}

type QueryResponse struct {
	QueryID         uuid.UUID        `json:"query_id"`
	Answer          string           `json:"answer"`
	Citations       []Citation       `json:"citations"`
	RetrievedChunks []RetrievedChunk `json:"retrieved_chunks"`
	Confidence      Confidence       `json:"confidence"`
	LatencyMS       int64            `json:"latency_ms"`
}

type DocumentListResponse struct {
	Documents []Document `json:"documents"`
	Total     int        `json:"total"`
}

type IngestResponse struct {
	Document Document `json:"document"`
	Chunks   int      `json:"chunks"`
	Warnings []string `json:"warnings,omitempty"`
}

type ConfigResponse struct {
	Strategy           Strategy `json:"retrieval_strategy"`
	EmbeddingModel     string   `json:"embedding_model,omitempty"`
	ChunkTargetTokens  int      `json:"chunk_target_tokens"`
	ChunkOverlapTokens int      `json:"chunk_overlap_tokens"`
	ChunkMaxTokens     int      `json:"chunk_max_tokens"`
	PoolSize           int      `json:"retrieval_pool_size"`
	TopK               int      `json:"retrieval_top_k"`
	ScoreThreshold     float64  `json:"retrieval_score_threshold"`
	WeakMatchThreshold float64  `json:"weak_match_score_threshold"`
}
