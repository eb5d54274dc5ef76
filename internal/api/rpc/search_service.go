// Package rpc provides Connect service implementations for the tariff engine.
package rpc

import (
	"context"
	"errors"

	"connectrpc.com/connect"
	"github.com/google/uuid"

	"github.com/emsi-ai/tariff-engine/internal/chat"
	"github.com/emsi-ai/tariff-engine/internal/observability"
	"github.com/emsi-ai/tariff-engine/internal/retrieval"
)

// SearchService implements the Connect search and chat service.
type SearchService struct {
	logger    *observability.Logger
	retriever *retrieval.Service
	chat      *chat.Service
}

// NewSearchService creates a new search service.
func NewSearchService(logger *observability.Logger, retriever *retrieval.Service, chatSvc *chat.Service) *SearchService {
	return &SearchService{
		logger:    logger,
		retriever: retriever,
		chat:      chatSvc,
	}
}

// SearchRequest represents the Connect search request message.
type SearchRequest struct {
	Query string `json:"query"`
	TopK  int32  `json:"top_k,omitempty"`
	// ChunksOnly skips metadata fusion and returns vector-ranked chunks.
	ChunksOnly bool `json:"chunks_only,omitempty"`
}

// SearchResponse represents the Connect search response message.
type SearchResponse struct {
	Query   string         `json:"query"`
	Results []*ChunkResult `json:"results"`
}

// ChunkResult represents a scored chunk in the Connect response.
type ChunkResult struct {
	ChunkID       string  `json:"chunk_id"`
	Text          string  `json:"text"`
	CodeSH        string  `json:"code_sh,omitempty"`
	VectorScore   float64 `json:"vector_score"`
	MetadataScore float64 `json:"metadata_score"`
	Score         float64 `json:"score"`
	Source        string  `json:"source"`
}

// Search handles Connect search queries.
func (s *SearchService) Search(ctx context.Context, req *connect.Request[SearchRequest]) (*connect.Response[SearchResponse], error) {
	msg := req.Msg

	if msg.Query == "" {
		return nil, connect.NewError(connect.CodeInvalidArgument, errors.New("query is required"))
	}

	topK := int(msg.TopK)

	var (
		results []retrieval.SearchResult
		err     error
	)
	if msg.ChunksOnly {
		results, err = s.retriever.FindRelevantChunks(ctx, msg.Query, topK)
	} else {
		results, err = s.retriever.SearchHybrid(ctx, msg.Query, topK)
	}
	if err != nil {
		s.logger.Error().Err(err).Str("query", msg.Query).Msg("Search failed")
		return nil, connect.NewError(connect.CodeInternal, err)
	}

	resp := &SearchResponse{
		Query:   msg.Query,
		Results: make([]*ChunkResult, 0, len(results)),
	}
	for _, r := range results {
		resp.Results = append(resp.Results, &ChunkResult{
			ChunkID:       r.ChunkID,
			Text:          r.Text,
			CodeSH:        r.CodeSH,
			VectorScore:   r.VectorScore,
			MetadataScore: r.MetadataScore,
			Score:         r.Score,
			Source:        string(r.Source),
		})
	}

	return connect.NewResponse(resp), nil
}

// AskRequest represents the Connect chat request message.
type AskRequest struct {
	SessionID string `json:"session_id,omitempty"`
	Question  string `json:"question"`
}

// AskResponse represents the Connect chat response message.
type AskResponse struct {
	SessionID string `json:"session_id"`
	Answer    string `json:"answer"`
}

// Ask handles a Connect chat turn.
func (s *SearchService) Ask(ctx context.Context, req *connect.Request[AskRequest]) (*connect.Response[AskResponse], error) {
	msg := req.Msg

	if msg.Question == "" {
		return nil, connect.NewError(connect.CodeInvalidArgument, errors.New("question is required"))
	}

	sessionID := msg.SessionID
	if sessionID == "" {
		sessionID = uuid.New().String()
	}

	answer, err := s.chat.Ask(ctx, sessionID, msg.Question)
	if err != nil {
		s.logger.Error().Err(err).Str("session_id", sessionID).Msg("Chat turn failed")
		return nil, connect.NewError(connect.CodeInternal, err)
	}

	return connect.NewResponse(&AskResponse{
		SessionID: sessionID,
		Answer:    answer,
	}), nil
}
