// Package rag sequences retrieval, answer generation, and answer
// classification into a single request/response unit. The machine is a
// strictly linear three-stage pipeline; each stage only adds fields to the
// state, and any gateway failure aborts the whole invocation with no
// partial result.
package rag

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/DocSenseAI/docsense-mvp/engine/domain"
	"github.com/DocSenseAI/docsense-mvp/pkg/fn"
)

// Retriever abstracts tenant-scoped nearest-neighbour retrieval.
type Retriever interface {
	Retrieve(ctx context.Context, question string, tenantID int64, topK int) ([]domain.Chunk, error)
}

// AnswerGateway abstracts the chat capability.
type AnswerGateway interface {
	Chat(ctx context.Context, system, user string) (string, error)
}

// Options configures the pipeline.
type Options struct {
	TopK int
}

// DefaultOptions returns sensible defaults.
func DefaultOptions() Options {
	return Options{TopK: 4}
}

const systemPrompt = "Jestes asystentem do analiz i raportow firmowych."

// Pipeline state, one type per stage. Each stage's output type statically
// guarantees the fields visible to the next stage.

// Query is the initial state of an invocation.
type Query struct {
	TenantID int64
	Question string
}

// Retrieved is a Query with its context attached. Chunks may be empty;
// empty context is valid input to generation.
type Retrieved struct {
	Query
	Chunks []domain.Chunk
}

// Generated is a Retrieved with the model's trimmed answer.
type Generated struct {
	Retrieved
	Answer string
}

// Classified is the terminal state.
type Classified struct {
	Generated
	Label domain.Label
}

// Answer is what Ask returns to callers.
type Answer struct {
	Text    string       `json:"answer"`
	Label   domain.Label `json:"label"`
	Sources []string     `json:"sources"`
}

// Service runs the pipeline.
type Service struct {
	retriever Retriever
	chat      AnswerGateway
	run       fn.Stage[Query, Classified]
	opts      Options
	logger    *slog.Logger
}

// New creates a pipeline Service.
func New(retriever Retriever, chat AnswerGateway, opts Options, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.TopK < 1 {
		opts.TopK = DefaultOptions().TopK
	}
	s := &Service{retriever: retriever, chat: chat, opts: opts, logger: logger}

	retrieveStage := fn.TracedStage("rag.retrieve", s.retrieveStage)
	logRetrieved := fn.TapStage(func(_ context.Context, r Retrieved) {
		logger.Debug("context retrieved", "tenant_id", r.TenantID, "chunks", len(r.Chunks))
	})
	generateStage := fn.TracedStage("rag.generate", s.generateStage)
	classifyStage := fn.TracedStage("rag.classify", classifyStage)
	s.run = fn.Then(fn.Then(fn.Then(retrieveStage, logRetrieved), generateStage), classifyStage)
	return s
}

// Ask runs one question through retrieve, generate, and classify. Sources
// are the unique document names of the retrieved chunks, in retrieval order.
func (s *Service) Ask(ctx context.Context, tenantID int64, question string) (*Answer, error) {
	out, err := s.run(ctx, Query{TenantID: tenantID, Question: question}).Unwrap()
	if err != nil {
		return nil, err
	}

	sources := fn.Unique(fn.Map(out.Chunks, func(c domain.Chunk) string { return c.Source }))
	s.logger.Info("pipeline done",
		"tenant_id", tenantID,
		"label", out.Label,
		"chunks", len(out.Chunks),
	)
	return &Answer{Text: out.Answer, Label: out.Label, Sources: sources}, nil
}

func (s *Service) retrieveStage(ctx context.Context, q Query) fn.Result[Retrieved] {
	chunks, err := s.retriever.Retrieve(ctx, q.Question, q.TenantID, s.opts.TopK)
	if err != nil {
		return fn.Err[Retrieved](err)
	}
	return fn.Ok(Retrieved{Query: q, Chunks: chunks})
}

func (s *Service) generateStage(ctx context.Context, r Retrieved) fn.Result[Generated] {
	reply, err := s.chat.Chat(ctx, systemPrompt, BuildPrompt(r.Question, r.Chunks))
	if err != nil {
		return fn.Err[Generated](fmt.Errorf("rag: generate: %w", errors.Join(domain.ErrAnswerGateway, err)))
	}
	return fn.Ok(Generated{Retrieved: r, Answer: strings.TrimSpace(reply)})
}

func classifyStage(_ context.Context, g Generated) fn.Result[Classified] {
	return fn.Ok(Classified{Generated: g, Label: Classify(g.Answer)})
}

// Classify labels an answer. NoAnswer only on an exact, case-sensitive
// sentinel match; trailing whitespace or different casing means Answered.
func Classify(answer string) domain.Label {
	if answer == domain.NoDataSentinel {
		return domain.NoAnswer
	}
	return domain.Answered
}

// BuildPrompt formats the user prompt: the instruction to rely only on the
// provided context and to answer with the sentinel when it is insufficient,
// then the question and the retrieved chunk texts in retrieval order,
// separated by blank lines.
func BuildPrompt(question string, chunks []domain.Chunk) string {
	texts := fn.Map(chunks, func(c domain.Chunk) string { return c.Text })
	return fmt.Sprintf(
		"Use only context from company documents. If data is insufficient, answer exactly: %s.\n\nPytanie: %s\n\nKontekst:\n%s",
		domain.NoDataSentinel, question, strings.Join(texts, "\n\n"),
	)
}
