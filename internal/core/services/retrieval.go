package services

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/tamgam-edu/diya-core/internal/core/domain"
	"github.com/tamgam-edu/diya-core/internal/core/ports/driven"
	"github.com/tamgam-edu/diya-core/internal/core/ports/driving"
	"github.com/tamgam-edu/diya-core/internal/runtime"
)

// Ensure retrievalService implements RetrievalService
var _ driving.RetrievalService = (*retrievalService)(nil)

// historyTurns is how many prior turns are replayed into the prompt
const historyTurns = 6

// retrievalService implements the RetrievalService interface
type retrievalService struct {
	vectors  driven.VectorStore
	services *runtime.Services // Dynamic AI services
	logger   *slog.Logger
}

// NewRetrievalService creates a new RetrievalService.
// AI services are read from runtime.Services on every call.
func NewRetrievalService(vectors driven.VectorStore, services *runtime.Services, logger *slog.Logger) driving.RetrievalService {
	if logger == nil {
		logger = slog.Default()
	}
	return &retrievalService{
		vectors:  vectors,
		services: services,
		logger:   logger,
	}
}

// Search embeds the query and returns the nearest chunks with citations.
// When no query vector is available the result list is empty, not an error.
func (s *retrievalService) Search(ctx context.Context, query string, filter domain.SearchFilter, opts domain.SearchOptions) (*domain.SearchResponse, error) {
	if strings.TrimSpace(query) == "" {
		return nil, fmt.Errorf("%w: query is required", domain.ErrInvalidInput)
	}
	for _, ct := range filter.ContentTypes {
		if !ct.Valid() {
			return nil, fmt.Errorf("%w: unknown content type %q", domain.ErrInvalidInput, ct)
		}
	}
	opts = opts.Normalize()

	resp := &domain.SearchResponse{
		Query:     query,
		Results:   []*domain.SearchResult{},
		Citations: []string{},
	}

	embedder := s.services.EmbeddingService()
	if embedder == nil {
		s.logger.Warn("search without embedding service, returning no results")
		return resp, nil
	}
	vec := embedder.Embed(ctx, query)
	if vec == nil {
		s.logger.Warn("query embedding unavailable, returning no results")
		return resp, nil
	}

	results, err := s.vectors.Search(ctx, vec, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("search failed: %w", err)
	}

	kept := results[:0]
	for _, r := range results {
		if r.Distance <= opts.Floor() {
			kept = append(kept, r)
		}
	}
	if len(kept) > opts.TopK {
		kept = kept[:opts.TopK]
	}
	resp.Results = kept
	resp.Citations = domain.CitationLabels(kept)
	return resp, nil
}

// Answer retrieves context for the question and asks the generator.
// Total credential exhaustion is returned as ErrAllCredentialsExhausted.
func (s *retrievalService) Answer(ctx context.Context, req domain.AskRequest) (*domain.Answer, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	gen := s.services.AnswerGenerator()
	if gen == nil {
		return nil, fmt.Errorf("%w: answer generator not configured", domain.ErrServiceUnavailable)
	}

	found, err := s.Search(ctx, req.Question, req.Filter, req.Options)
	if err != nil {
		return nil, err
	}

	prompt := BuildPrompt(req, found.Results)
	text, err := gen.Generate(ctx, prompt)
	if err != nil {
		s.logger.Error("answer generation failed", "error", err)
		return nil, err
	}

	return &domain.Answer{
		Answer:      strings.TrimSpace(text),
		Citations:   found.Citations,
		SourcesUsed: len(found.Results),
	}, nil
}

// Stats reports embedding coverage for a class, or the whole store.
func (s *retrievalService) Stats(ctx context.Context, classID string) (*domain.EmbeddingStats, error) {
	return s.vectors.Stats(ctx, classID)
}

// CredentialStatus reports the key pool state.
func (s *retrievalService) CredentialStatus(_ context.Context) domain.CredentialPoolStatus {
	return s.services.CredentialStatus()
}

var personas = map[int]string{
	1: `You are Diya, a warm and patient AI tutor for Indian school students.
This student is a beginner. Use very simple language, real-world examples from everyday Indian life,
and break everything into tiny steps. Encourage them often.`,
	2: `You are Diya, a friendly AI tutor for Indian school students.
This student is developing their understanding. Use simple language with worked examples.
Give gentle hints before full explanations. Connect concepts to things they already know.`,
	3: `You are Diya, a helpful AI tutor for Indian school students.
This student has standard understanding. Give clear, structured explanations with examples.
Balance conceptual depth with accessibility. Encourage curiosity.`,
	4: `You are Diya, an AI tutor for advanced Indian school students.
This student is advanced. Be concise and precise. Include deeper patterns and competitive exam angles.
Challenge them with follow-up questions.`,
	5: `You are Diya, an AI tutor for highly advanced Indian school students.
This student is at expert level. Engage peer-to-peer. Discuss edge cases, proofs, and research angles.
Ask probing questions to deepen their thinking.`,
}

const contextInstructions = `Based on the above context and the conversation history, answer the student's question.
If the context doesn't contain enough information, answer from your general knowledge but say so.
Keep your answer focused and appropriate for the student's level.
Always respond in English.`

// BuildPrompt renders the grounded prompt. Without results the context
// block is omitted and the model answers from general knowledge.
func BuildPrompt(req domain.AskRequest, results []*domain.SearchResult) string {
	persona, ok := personas[req.Level]
	if !ok {
		persona = personas[domain.DefaultLevel]
	}

	var b strings.Builder
	b.WriteString(persona)
	b.WriteString("\n\n")

	excerpts := make([]string, 0, len(results))
	for _, r := range results {
		if t := strings.TrimSpace(r.ChunkText); t != "" {
			excerpts = append(excerpts, t)
		}
	}
	if len(excerpts) > 0 {
		b.WriteString("Here are relevant excerpts from class materials to help answer the question:\n\n")
		b.WriteString(strings.Join(excerpts, "\n\n---\n\n"))
		b.WriteString("\n\n")
		b.WriteString(contextInstructions)
		b.WriteString("\n\n")
	}

	history := req.History
	if len(history) > historyTurns {
		history = history[len(history)-historyTurns:]
	}
	if len(history) > 0 {
		b.WriteString("Conversation history:\n")
		for _, turn := range history {
			role := "Diya"
			if turn.Role == "user" {
				role = "Student"
			}
			fmt.Fprintf(&b, "%s: %s\n\n", role, strings.TrimSpace(turn.Content))
		}
	}

	fmt.Fprintf(&b, "Student: %s\n\nDiya:", strings.TrimSpace(req.Question))
	return b.String()
}
