package retrieve

import (
	"context"
	"errors"
	"testing"

	"github.com/DocSenseAI/docsense-mvp/engine/domain"
	"github.com/DocSenseAI/docsense-mvp/engine/semantic"
)

type stubEmbedder struct {
	vec []float32
	err error
}

func (s *stubEmbedder) Embed(_ context.Context, _ string) ([]float32, error) {
	return s.vec, s.err
}

// tenantIndex is a fixed two-tenant index that honours the tenant filter the
// way the real store does, regardless of vector proximity.
type tenantIndex struct {
	hits []semantic.Hit
	err  error
}

func (f *tenantIndex) SearchTenant(_ context.Context, _ []float32, topK int, tenantID int64) ([]semantic.Hit, error) {
	if f.err != nil {
		return nil, f.err
	}
	var out []semantic.Hit
	for _, h := range f.hits {
		if h.TenantID == tenantID && len(out) < topK {
			out = append(out, h)
		}
	}
	return out, nil
}

func TestRetrieve_TenantIsolation(t *testing.T) {
	idx := &tenantIndex{hits: []semantic.Hit{
		// The other tenant's record scores higher but must never leak.
		{ID: "x", Score: 0.99, TenantID: 2, Source: "other.txt", Text: "cudze dane"},
		{ID: "a", Score: 0.60, TenantID: 1, Source: "mine.txt", Text: "moje dane"},
	}}
	r := New(&stubEmbedder{vec: []float32{1, 0}}, idx, nil)

	chunks, err := r.Retrieve(context.Background(), "pytanie", 1, 4)
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	if len(chunks) != 1 {
		t.Fatalf("expected 1 chunk, got %d", len(chunks))
	}
	if chunks[0].Source != "mine.txt" {
		t.Fatalf("cross-tenant leak: %+v", chunks[0])
	}
}

func TestRetrieve_DropsMalformedHits(t *testing.T) {
	idx := &tenantIndex{hits: []semantic.Hit{
		{ID: "a", Score: 0.9, TenantID: 1, Source: "a.txt", Text: "alfa"},
		{ID: "b", Score: 0.8, TenantID: 1, Malformed: true},
		{ID: "c", Score: 0.7, TenantID: 1, Source: "c.txt", Text: "gamma"},
	}}
	r := New(&stubEmbedder{vec: []float32{1}}, idx, nil)

	chunks, err := r.Retrieve(context.Background(), "q", 1, 4)
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	if len(chunks) != 2 {
		t.Fatalf("expected 2 chunks, got %d: %+v", len(chunks), chunks)
	}
	if chunks[0].Text != "alfa" || chunks[1].Text != "gamma" {
		t.Fatalf("order not preserved: %+v", chunks)
	}
}

func TestRetrieve_IndexUnavailableDegradesToEmpty(t *testing.T) {
	idx := &tenantIndex{err: errors.Join(domain.ErrIndexUnavailable, errors.New("refused"))}
	r := New(&stubEmbedder{vec: []float32{1}}, idx, nil)

	chunks, err := r.Retrieve(context.Background(), "q", 1, 4)
	if err != nil {
		t.Fatalf("expected degradation, got error: %v", err)
	}
	if len(chunks) != 0 {
		t.Fatalf("expected empty result, got %+v", chunks)
	}
}

func TestRetrieve_OtherSearchErrorsPropagate(t *testing.T) {
	idx := &tenantIndex{err: errors.New("programming error")}
	r := New(&stubEmbedder{vec: []float32{1}}, idx, nil)

	if _, err := r.Retrieve(context.Background(), "q", 1, 4); err == nil {
		t.Fatal("expected error to propagate")
	}
}

func TestRetrieve_EmbedFailurePropagates(t *testing.T) {
	r := New(&stubEmbedder{err: errors.New("down")}, &tenantIndex{}, nil)

	_, err := r.Retrieve(context.Background(), "q", 1, 4)
	if !errors.Is(err, domain.ErrEmbeddingUnavailable) {
		t.Fatalf("err = %v, want ErrEmbeddingUnavailable", err)
	}
}

func TestRetrieve_TopKValidation(t *testing.T) {
	r := New(&stubEmbedder{vec: []float32{1}}, &tenantIndex{}, nil)
	_, err := r.Retrieve(context.Background(), "q", 1, 0)
	if !errors.Is(err, domain.ErrInvalidParameter) {
		t.Fatalf("err = %v, want ErrInvalidParameter", err)
	}
}
