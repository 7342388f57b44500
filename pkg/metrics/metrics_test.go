package metrics

import (
	"net/http/httptest"
	"strings"
	"testing"
)

func TestCounter(t *testing.T) {
	r := New()
	c := r.Counter("requests_total", "Total requests.")
	c.Inc()
	c.Add(2)
	if c.Value() != 3 {
		t.Fatalf("expected 3, got %d", c.Value())
	}

	again := r.Counter("requests_total", "")
	if again != c {
		t.Fatal("same name should return same counter")
	}
}

func TestGauge(t *testing.T) {
	r := New()
	g := r.Gauge("in_flight", "")
	g.Set(5)
	g.Inc()
	g.Dec()
	g.Dec()
	if g.Value() != 4 {
		t.Fatalf("expected 4, got %d", g.Value())
	}
}

func TestHistogramCumulativeBuckets(t *testing.T) {
	r := New()
	h := r.Histogram("latency_seconds", "", []float64{0.1, 1, 10})
	h.Observe(0.05)
	h.Observe(0.5)
	h.Observe(5)

	out := r.Render()
	want := []string{
		`latency_seconds_bucket{le="0.1"} 1`,
		`latency_seconds_bucket{le="1"} 2`,
		`latency_seconds_bucket{le="10"} 3`,
		`latency_seconds_bucket{le="+Inf"} 3`,
		`latency_seconds_count 3`,
	}
	for _, w := range want {
		if !strings.Contains(out, w) {
			t.Fatalf("render missing %q:\n%s", w, out)
		}
	}
}

func TestWithLabels(t *testing.T) {
	if got := WithLabels("foo", "k", "v"); got != `foo{k="v"}` {
		t.Fatalf("unexpected %q", got)
	}
	if got := WithLabels("foo"); got != "foo" {
		t.Fatalf("no labels should return name, got %q", got)
	}
	if got := WithLabels("foo", "odd"); got != "foo" {
		t.Fatalf("odd pairs should return name, got %q", got)
	}
}

func TestRenderGroupsLabelledSeries(t *testing.T) {
	r := New()
	r.Counter(WithLabels("jobs_total", "status", "ok"), "Jobs.").Inc()
	r.Counter(WithLabels("jobs_total", "status", "failed"), "").Add(2)

	out := r.Render()
	if strings.Count(out, "# TYPE jobs_total counter") != 1 {
		t.Fatalf("family header should appear once:\n%s", out)
	}
	if !strings.Contains(out, `jobs_total{status="ok"} 1`) || !strings.Contains(out, `jobs_total{status="failed"} 2`) {
		t.Fatalf("missing labelled series:\n%s", out)
	}
}

func TestHandlerContentType(t *testing.T) {
	r := New()
	r.Counter("x_total", "").Inc()

	rec := httptest.NewRecorder()
	r.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/plain") {
		t.Fatalf("unexpected content type %q", ct)
	}
	if !strings.Contains(rec.Body.String(), "x_total 1") {
		t.Fatalf("body missing metric:\n%s", rec.Body.String())
	}
}
