// Package domain holds the shared types and error taxonomy of the document
// question-answering engine.
package domain

import "time"

// Chunk is a trimmed, bounded-length piece of a source document. It is the
// unit of embedding and retrieval.
type Chunk struct {
	Source string `json:"source"`
	Text   string `json:"text"`
}

// Label classifies a generated answer.
type Label string

const (
	// Answered means the model produced an answer from the retrieved context.
	Answered Label = "ANSWERED"
	// NoAnswer means the model returned the no-data sentinel verbatim.
	NoAnswer Label = "NO_ANSWER"
)

// NoDataSentinel is the exact string the chat model must return when the
// retrieved context is insufficient. Classification compares against it
// case-sensitively, with no normalization.
const NoDataSentinel = "BRAK_DANYCH"

// User owns documents and reports. The user id is the tenant boundary for
// the vector index: retrieval never crosses it.
type User struct {
	ID           int64     `json:"id"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
}

// Document is the bookkeeping record for one uploaded file. The indexed
// vectors reference it through the (tenant_id, document_id) payload pair.
type Document struct {
	ID               int64     `json:"id"`
	UserID           int64     `json:"-"`
	OriginalFilename string    `json:"filename"`
	StoragePath      string    `json:"-"`
	ContentType      string    `json:"content_type"`
	UploadedAt       time.Time `json:"uploaded_at"`
}

// Report is one persisted question/answer record.
type Report struct {
	ID        int64     `json:"id"`
	UserID    int64     `json:"-"`
	Question  string    `json:"question"`
	Answer    string    `json:"answer"`
	Label     Label     `json:"label"`
	Sources   []string  `json:"sources"`
	CreatedAt time.Time `json:"created_at"`
}
