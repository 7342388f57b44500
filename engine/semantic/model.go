package semantic

// Payload is the metadata persisted alongside each vector. The tenant id is
// the isolation boundary; every search filters on it.
type Payload struct {
	TenantID   int64
	DocumentID int64
	Source     string
	Text       string
}

// VectorRecord is the unit persisted in the similarity index. The ID is a
// pure function of (tenant, document, chunk index), so upserts overwrite
// rather than duplicate.
type VectorRecord struct {
	ID        string
	Embedding []float32
	Payload   Payload
}

// Hit is a single similarity-search result, best-to-worst ordering is the
// index's own ranking. Malformed is set when the stored payload is missing
// its text or source field; readers apply a tolerant read path and drop
// such hits.
type Hit struct {
	ID        string
	Score     float32
	TenantID  int64
	Source    string
	Text      string
	Malformed bool
}
