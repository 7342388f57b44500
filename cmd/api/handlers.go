package main

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"

	"github.com/DocSenseAI/docsense-mvp/engine/domain"
	"github.com/DocSenseAI/docsense-mvp/engine/extract"
	"github.com/DocSenseAI/docsense-mvp/engine/index"
	"github.com/DocSenseAI/docsense-mvp/engine/rag"
	"github.com/DocSenseAI/docsense-mvp/pkg/auth"
	"github.com/DocSenseAI/docsense-mvp/pkg/config"
	"github.com/DocSenseAI/docsense-mvp/pkg/metrics"
	"github.com/DocSenseAI/docsense-mvp/pkg/mid"
	"github.com/DocSenseAI/docsense-mvp/pkg/natsutil"
	"github.com/DocSenseAI/docsense-mvp/pkg/repo"
	"github.com/DocSenseAI/docsense-mvp/pkg/resilience"
)

const maxUploadBytes = 32 << 20

// vectorPurger is the slice of the vector store the handlers need.
type vectorPurger interface {
	DeleteByDocument(ctx context.Context, tenantID, documentID int64) error
}

type server struct {
	cfg     *config.Config
	logger  *slog.Logger
	store   *repo.Store
	vectors vectorPurger
	indexer *index.Indexer
	rag     *rag.Service
	tokens  *auth.TokenIssuer
	nc      *nats.Conn

	uploads *metrics.Counter
	reports *metrics.Counter
	askTime *metrics.Histogram
}

func handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// --- Auth ---

type credentialsRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type authResponse struct {
	Token string      `json:"token"`
	User  domain.User `json:"user"`
}

func (s *server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := domain.ValidateEmail(req.Email); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := domain.ValidatePassword(req.Password); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		s.logger.Error("password hash failed", "err", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	user, err := s.store.CreateUser(r.Context(), req.Email, hash)
	if errors.Is(err, repo.ErrEmailTaken) {
		writeError(w, http.StatusConflict, "email already registered")
		return
	}
	if err != nil {
		s.logger.Error("create user failed", "err", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	writeJSON(w, http.StatusCreated, authResponse{
		Token: s.tokens.Issue(strconv.FormatInt(user.ID, 10)),
		User:  user,
	})
}

func (s *server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	user, err := s.store.UserByEmail(r.Context(), req.Email)
	if errors.Is(err, repo.ErrNotFound) || (err == nil && !auth.VerifyPassword(user.PasswordHash, req.Password)) {
		writeError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}
	if err != nil {
		s.logger.Error("user lookup failed", "err", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	writeJSON(w, http.StatusOK, authResponse{
		Token: s.tokens.Issue(strconv.FormatInt(user.ID, 10)),
		User:  user,
	})
}

func (s *server) handleMe(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	user, err := s.store.UserByID(r.Context(), userID)
	if errors.Is(err, repo.ErrNotFound) {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	if err != nil {
		s.logger.Error("user lookup failed", "err", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	writeJSON(w, http.StatusOK, user)
}

// --- Documents ---

type uploadResponse struct {
	Document domain.Document `json:"document"`
	Chunks   int             `json:"chunks_indexed"`
}

func (s *server) handleUpload(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "file field is required")
		return
	}
	defer file.Close()

	if !extract.Supported(header.Filename) {
		writeError(w, http.StatusUnsupportedMediaType, "unsupported file type")
		return
	}
	data, err := io.ReadAll(file)
	if err != nil {
		writeError(w, http.StatusBadRequest, "read upload failed")
		return
	}

	storagePath := filepath.Join(s.cfg.Storage.Dir,
		uuid.NewString()+filepath.Ext(header.Filename))
	if err := os.WriteFile(storagePath, data, 0o644); err != nil {
		s.logger.Error("store upload failed", "err", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	doc, err := s.store.CreateDocument(r.Context(), domain.Document{
		UserID:           userID,
		OriginalFilename: header.Filename,
		StoragePath:      storagePath,
		ContentType:      header.Header.Get("Content-Type"),
	})
	if err != nil {
		s.logger.Error("create document failed", "err", err)
		os.Remove(storagePath)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	// Extraction and indexing failures roll back the upload so the
	// document list never shows files that are not searchable.
	chunks, err := s.extractAndIndex(r, doc, data)
	if err != nil {
		s.compensateUpload(r, doc)
		if errors.Is(err, domain.ErrUnsupportedFile) {
			writeError(w, http.StatusUnsupportedMediaType, "unsupported file type")
			return
		}
		s.logger.Error("index upload failed", "err", err, "document_id", doc.ID)
		writeError(w, http.StatusBadGateway, "indexing failed")
		return
	}

	s.uploads.Inc()
	writeJSON(w, http.StatusCreated, uploadResponse{Document: doc, Chunks: chunks})
}

func (s *server) extractAndIndex(r *http.Request, doc domain.Document, data []byte) (int, error) {
	text, err := extract.FromBytes(doc.OriginalFilename, data)
	if err != nil {
		return 0, err
	}
	return s.indexer.Index(r.Context(), index.Document{
		TenantID:   doc.UserID,
		DocumentID: doc.ID,
		Source:     doc.OriginalFilename,
		Text:       text,
	})
}

func (s *server) compensateUpload(r *http.Request, doc domain.Document) {
	if err := s.store.DeleteDocument(r.Context(), doc.ID, doc.UserID); err != nil {
		s.logger.Error("upload rollback: delete row failed", "err", err, "document_id", doc.ID)
	}
	if err := os.Remove(doc.StoragePath); err != nil {
		s.logger.Error("upload rollback: remove file failed", "err", err, "path", doc.StoragePath)
	}
}

func (s *server) handleListDocuments(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	docs, err := s.store.DocumentsByUser(r.Context(), userID)
	if err != nil {
		s.logger.Error("list documents failed", "err", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	if docs == nil {
		docs = []domain.Document{}
	}
	writeJSON(w, http.StatusOK, docs)
}

func (s *server) handleDeleteDocument(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	docID, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid document id")
		return
	}

	doc, err := s.store.DocumentByID(r.Context(), docID, userID)
	if errors.Is(err, repo.ErrNotFound) {
		writeError(w, http.StatusNotFound, "document not found")
		return
	}
	if err != nil {
		s.logger.Error("document lookup failed", "err", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	// Purge vectors first; a dangling row is recoverable, dangling
	// vectors would keep serving deleted content.
	if err := s.vectors.DeleteByDocument(r.Context(), userID, docID); err != nil {
		s.logger.Error("vector purge failed", "err", err, "document_id", docID)
		writeError(w, http.StatusBadGateway, "vector purge failed")
		return
	}
	if err := s.store.DeleteDocument(r.Context(), docID, userID); err != nil {
		s.logger.Error("delete document failed", "err", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	if err := os.Remove(doc.StoragePath); err != nil && !errors.Is(err, os.ErrNotExist) {
		s.logger.Warn("remove stored file failed", "err", err, "path", doc.StoragePath)
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *server) handleReindexDocument(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	if s.nc == nil {
		writeError(w, http.StatusServiceUnavailable, "re-indexing is not configured")
		return
	}
	docID, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid document id")
		return
	}
	doc, err := s.store.DocumentByID(r.Context(), docID, userID)
	if errors.Is(err, repo.ErrNotFound) {
		writeError(w, http.StatusNotFound, "document not found")
		return
	}
	if err != nil {
		s.logger.Error("document lookup failed", "err", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	job := index.Job{
		TenantID:   userID,
		DocumentID: doc.ID,
		Source:     doc.OriginalFilename,
		Path:       doc.StoragePath,
	}
	if err := natsutil.Publish(r.Context(), s.nc, index.SubjectReindex, job); err != nil {
		s.logger.Error("publish reindex job failed", "err", err, "document_id", doc.ID)
		writeError(w, http.StatusBadGateway, "publish failed")
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{"document_id": doc.ID, "status": "queued"})
}

// --- Reports ---

type generateRequest struct {
	Question string `json:"question"`
}

func (s *server) handleGenerateReport(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	var req generateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := domain.ValidateQuestion(req.Question); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	start := time.Now()
	answer, err := s.rag.Ask(r.Context(), userID, req.Question)
	s.askTime.Since(start)
	if err != nil {
		status := http.StatusBadGateway
		if errors.Is(err, domain.ErrInvalidParameter) {
			status = http.StatusBadRequest
		}
		if errors.Is(err, resilience.ErrCircuitOpen) {
			status = http.StatusServiceUnavailable
		}
		s.logger.Error("report generation failed", "err", err, "user_id", userID)
		writeError(w, status, "report generation failed")
		return
	}

	report, err := s.store.CreateReport(r.Context(), domain.Report{
		UserID:   userID,
		Question: req.Question,
		Answer:   answer.Text,
		Label:    answer.Label,
		Sources:  answer.Sources,
	})
	if err != nil {
		s.logger.Error("persist report failed", "err", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	s.reports.Inc()
	writeJSON(w, http.StatusCreated, report)
}

func (s *server) handleReportHistory(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	reports, err := s.store.ReportsByUser(r.Context(), userID)
	if err != nil {
		s.logger.Error("list reports failed", "err", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	if reports == nil {
		reports = []domain.Report{}
	}
	writeJSON(w, http.StatusOK, reports)
}

func (s *server) handleReportByID(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	reportID, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid report id")
		return
	}
	report, err := s.store.ReportByID(r.Context(), reportID, userID)
	if errors.Is(err, repo.ErrNotFound) {
		writeError(w, http.StatusNotFound, "report not found")
		return
	}
	if err != nil {
		s.logger.Error("report lookup failed", "err", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	writeJSON(w, http.StatusOK, report)
}

// --- Helpers ---

// currentUser returns the authenticated user id from the token subject.
func currentUser(r *http.Request) (int64, bool) {
	subject, ok := mid.Subject(r.Context())
	if !ok {
		return 0, false
	}
	id, err := strconv.ParseInt(subject, 10, 64)
	if err != nil {
		return 0, false
	}
	return id, true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
