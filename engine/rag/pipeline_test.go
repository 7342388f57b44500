package rag

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/DocSenseAI/docsense-mvp/engine/domain"
)

// --- mocks ---

type mockRetriever struct {
	chunks   []domain.Chunk
	err      error
	lastTopK int
}

func (m *mockRetriever) Retrieve(_ context.Context, _ string, _ int64, topK int) ([]domain.Chunk, error) {
	m.lastTopK = topK
	return m.chunks, m.err
}

type mockChat struct {
	reply      string
	err        error
	lastSystem string
	lastUser   string
}

func (m *mockChat) Chat(_ context.Context, system, user string) (string, error) {
	m.lastSystem = system
	m.lastUser = user
	return m.reply, m.err
}

// --- tests ---

func TestAsk_Success(t *testing.T) {
	retriever := &mockRetriever{chunks: []domain.Chunk{
		{Source: "raport.pdf", Text: "przychody wzrosly o 12%"},
		{Source: "notatka.md", Text: "koszty spadly"},
		{Source: "raport.pdf", Text: "marza stabilna"},
	}}
	chat := &mockChat{reply: "  Przychody wzrosly o 12%.  "}
	svc := New(retriever, chat, Options{TopK: 4}, nil)

	ans, err := svc.Ask(context.Background(), 5, "Jak zmienily sie przychody?")
	if err != nil {
		t.Fatalf("Ask: %v", err)
	}
	if ans.Text != "Przychody wzrosly o 12%." {
		t.Errorf("answer not trimmed: %q", ans.Text)
	}
	if ans.Label != domain.Answered {
		t.Errorf("label = %s, want ANSWERED", ans.Label)
	}
	// Unique sources, retrieval order preserved.
	if len(ans.Sources) != 2 || ans.Sources[0] != "raport.pdf" || ans.Sources[1] != "notatka.md" {
		t.Errorf("sources = %v", ans.Sources)
	}
	if retriever.lastTopK != 4 {
		t.Errorf("topK = %d, want 4", retriever.lastTopK)
	}
}

func TestAsk_PromptContainsContextAndSentinel(t *testing.T) {
	retriever := &mockRetriever{chunks: []domain.Chunk{
		{Source: "a", Text: "pierwszy"},
		{Source: "b", Text: "drugi"},
	}}
	chat := &mockChat{reply: "ok"}
	svc := New(retriever, chat, DefaultOptions(), nil)

	if _, err := svc.Ask(context.Background(), 1, "pytanie?"); err != nil {
		t.Fatalf("Ask: %v", err)
	}
	if chat.lastSystem != systemPrompt {
		t.Errorf("system prompt = %q", chat.lastSystem)
	}
	if !strings.Contains(chat.lastUser, "pierwszy\n\ndrugi") {
		t.Errorf("chunks not joined by blank line:\n%s", chat.lastUser)
	}
	if !strings.Contains(chat.lastUser, domain.NoDataSentinel) {
		t.Error("prompt missing sentinel instruction")
	}
	if !strings.Contains(chat.lastUser, "pytanie?") {
		t.Error("prompt missing question")
	}
}

func TestAsk_EmptyRetrievalStillAnswers(t *testing.T) {
	retriever := &mockRetriever{} // no chunks, no error
	chat := &mockChat{reply: domain.NoDataSentinel}
	svc := New(retriever, chat, DefaultOptions(), nil)

	ans, err := svc.Ask(context.Background(), 1, "q")
	if err != nil {
		t.Fatalf("Ask must not fail on empty context: %v", err)
	}
	if ans.Label != domain.NoAnswer {
		t.Errorf("label = %s, want NO_ANSWER", ans.Label)
	}
	if len(ans.Sources) != 0 {
		t.Errorf("sources = %v, want none", ans.Sources)
	}
}

func TestAsk_ChatFailureAbortsWithNoPartialResult(t *testing.T) {
	retriever := &mockRetriever{chunks: []domain.Chunk{{Source: "a", Text: "ctx"}}}
	chat := &mockChat{err: errors.New("model offline")}
	svc := New(retriever, chat, DefaultOptions(), nil)

	ans, err := svc.Ask(context.Background(), 1, "q")
	if !errors.Is(err, domain.ErrAnswerGateway) {
		t.Fatalf("err = %v, want ErrAnswerGateway", err)
	}
	if ans != nil {
		t.Fatalf("expected no partial result, got %+v", ans)
	}
}

func TestAsk_RetrieverFailureAborts(t *testing.T) {
	retriever := &mockRetriever{err: errors.Join(domain.ErrEmbeddingUnavailable, errors.New("down"))}
	svc := New(retriever, &mockChat{}, DefaultOptions(), nil)

	if _, err := svc.Ask(context.Background(), 1, "q"); !errors.Is(err, domain.ErrEmbeddingUnavailable) {
		t.Fatalf("err = %v, want ErrEmbeddingUnavailable", err)
	}
}

func TestClassify(t *testing.T) {
	cases := []struct {
		answer string
		want   domain.Label
	}{
		{"BRAK_DANYCH", domain.NoAnswer},
		{"BRAK_DANYCH ", domain.Answered},
		{" BRAK_DANYCH", domain.Answered},
		{"brak_danych", domain.Answered},
		{"", domain.Answered},
		{"Zysk wyniósł 3 mln.", domain.Answered},
	}
	for _, tc := range cases {
		if got := Classify(tc.answer); got != tc.want {
			t.Errorf("Classify(%q) = %s, want %s", tc.answer, got, tc.want)
		}
	}
}
