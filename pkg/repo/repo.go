// Package repo persists users, documents, and reports in SQLite.
package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/DocSenseAI/docsense-mvp/engine/domain"
)

var (
	ErrNotFound   = errors.New("not found")
	ErrEmailTaken = errors.New("email already registered")
)

const schema = `
CREATE TABLE IF NOT EXISTS users (
	id            INTEGER PRIMARY KEY AUTOINCREMENT,
	email         TEXT NOT NULL UNIQUE,
	password_hash TEXT NOT NULL,
	created_at    TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);
CREATE TABLE IF NOT EXISTS documents (
	id                INTEGER PRIMARY KEY AUTOINCREMENT,
	user_id           INTEGER NOT NULL REFERENCES users(id),
	original_filename TEXT NOT NULL,
	storage_path      TEXT NOT NULL,
	content_type      TEXT NOT NULL DEFAULT '',
	uploaded_at       TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);
CREATE TABLE IF NOT EXISTS reports (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	user_id    INTEGER NOT NULL REFERENCES users(id),
	question   TEXT NOT NULL,
	answer     TEXT NOT NULL,
	label      TEXT NOT NULL,
	sources    TEXT NOT NULL DEFAULT '[]',
	created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_documents_user ON documents(user_id);
CREATE INDEX IF NOT EXISTS idx_reports_user ON reports(user_id);
`

// Store is the SQLite-backed persistence layer.
type Store struct {
	db *sql.DB
}

// Open opens (creating if needed) the database at path and applies the
// schema. WAL mode is enabled for concurrent readers.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("repo: open database: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("repo: enable foreign keys: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("repo: apply schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// --- Users ---

// CreateUser inserts a user and returns it with the assigned id.
func (s *Store) CreateUser(ctx context.Context, email, passwordHash string) (domain.User, error) {
	res, err := s.db.ExecContext(ctx,
		"INSERT INTO users (email, password_hash) VALUES (?, ?)", email, passwordHash)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE") {
			return domain.User{}, ErrEmailTaken
		}
		return domain.User{}, fmt.Errorf("repo: create user: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return domain.User{}, fmt.Errorf("repo: create user: %w", err)
	}
	return s.UserByID(ctx, id)
}

// UserByEmail looks up a user by email.
func (s *Store) UserByEmail(ctx context.Context, email string) (domain.User, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT id, email, password_hash, created_at FROM users WHERE email = ?", email)
	return scanUser(row)
}

// UserByID looks up a user by id.
func (s *Store) UserByID(ctx context.Context, id int64) (domain.User, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT id, email, password_hash, created_at FROM users WHERE id = ?", id)
	return scanUser(row)
}

func scanUser(row *sql.Row) (domain.User, error) {
	var u domain.User
	err := row.Scan(&u.ID, &u.Email, &u.PasswordHash, &u.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.User{}, ErrNotFound
	}
	if err != nil {
		return domain.User{}, fmt.Errorf("repo: scan user: %w", err)
	}
	return u, nil
}

// --- Documents ---

// CreateDocument inserts a document record and returns it with the
// assigned id.
func (s *Store) CreateDocument(ctx context.Context, d domain.Document) (domain.Document, error) {
	res, err := s.db.ExecContext(ctx,
		"INSERT INTO documents (user_id, original_filename, storage_path, content_type) VALUES (?, ?, ?, ?)",
		d.UserID, d.OriginalFilename, d.StoragePath, d.ContentType)
	if err != nil {
		return domain.Document{}, fmt.Errorf("repo: create document: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return domain.Document{}, fmt.Errorf("repo: create document: %w", err)
	}
	return s.DocumentByID(ctx, id, d.UserID)
}

// DocumentByID looks up one of userID's documents.
func (s *Store) DocumentByID(ctx context.Context, id, userID int64) (domain.Document, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT id, user_id, original_filename, storage_path, content_type, uploaded_at FROM documents WHERE id = ? AND user_id = ?",
		id, userID)
	var d domain.Document
	err := row.Scan(&d.ID, &d.UserID, &d.OriginalFilename, &d.StoragePath, &d.ContentType, &d.UploadedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Document{}, ErrNotFound
	}
	if err != nil {
		return domain.Document{}, fmt.Errorf("repo: scan document: %w", err)
	}
	return d, nil
}

// DocumentsByUser lists userID's documents, newest first.
func (s *Store) DocumentsByUser(ctx context.Context, userID int64) ([]domain.Document, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, user_id, original_filename, storage_path, content_type, uploaded_at FROM documents WHERE user_id = ? ORDER BY uploaded_at DESC, id DESC",
		userID)
	if err != nil {
		return nil, fmt.Errorf("repo: list documents: %w", err)
	}
	defer rows.Close()

	var out []domain.Document
	for rows.Next() {
		var d domain.Document
		if err := rows.Scan(&d.ID, &d.UserID, &d.OriginalFilename, &d.StoragePath, &d.ContentType, &d.UploadedAt); err != nil {
			return nil, fmt.Errorf("repo: scan document: %w", err)
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// DeleteDocument removes one of userID's documents. Deleting a missing
// document returns ErrNotFound.
func (s *Store) DeleteDocument(ctx context.Context, id, userID int64) error {
	res, err := s.db.ExecContext(ctx,
		"DELETE FROM documents WHERE id = ? AND user_id = ?", id, userID)
	if err != nil {
		return fmt.Errorf("repo: delete document: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("repo: delete document: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// --- Reports ---

// CreateReport inserts a report and returns it with the assigned id.
// Sources are stored as a JSON array.
func (s *Store) CreateReport(ctx context.Context, r domain.Report) (domain.Report, error) {
	sources := r.Sources
	if sources == nil {
		sources = []string{}
	}
	encoded, err := json.Marshal(sources)
	if err != nil {
		return domain.Report{}, fmt.Errorf("repo: encode sources: %w", err)
	}
	res, err := s.db.ExecContext(ctx,
		"INSERT INTO reports (user_id, question, answer, label, sources) VALUES (?, ?, ?, ?, ?)",
		r.UserID, r.Question, r.Answer, string(r.Label), string(encoded))
	if err != nil {
		return domain.Report{}, fmt.Errorf("repo: create report: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return domain.Report{}, fmt.Errorf("repo: create report: %w", err)
	}
	return s.ReportByID(ctx, id, r.UserID)
}

// ReportByID looks up one of userID's reports.
func (s *Store) ReportByID(ctx context.Context, id, userID int64) (domain.Report, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT id, user_id, question, answer, label, sources, created_at FROM reports WHERE id = ? AND user_id = ?",
		id, userID)
	return scanReport(row.Scan)
}

// ReportsByUser lists userID's reports, newest first.
func (s *Store) ReportsByUser(ctx context.Context, userID int64) ([]domain.Report, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, user_id, question, answer, label, sources, created_at FROM reports WHERE user_id = ? ORDER BY created_at DESC, id DESC",
		userID)
	if err != nil {
		return nil, fmt.Errorf("repo: list reports: %w", err)
	}
	defer rows.Close()

	var out []domain.Report
	for rows.Next() {
		r, err := scanReport(rows.Scan)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func scanReport(scan func(...any) error) (domain.Report, error) {
	var r domain.Report
	var label, sources string
	var createdAt time.Time
	err := scan(&r.ID, &r.UserID, &r.Question, &r.Answer, &label, &sources, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Report{}, ErrNotFound
	}
	if err != nil {
		return domain.Report{}, fmt.Errorf("repo: scan report: %w", err)
	}
	r.Label = domain.Label(label)
	r.CreatedAt = createdAt
	if err := json.Unmarshal([]byte(sources), &r.Sources); err != nil {
		return domain.Report{}, fmt.Errorf("repo: decode sources: %w", err)
	}
	return r, nil
}
