package api

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"docqa/internal/config"
	"docqa/internal/metrics"
	"docqa/internal/models"
	"docqa/internal/providers"
	"docqa/internal/rag"
	"docqa/internal/storage"
	"docqa/internal/util"
	"docqa/internal/vector"
	"docqa/internal/workflows"

	"github.com/google/uuid"
	enumspb "go.temporal.io/api/enums/v1"
	tclient "go.temporal.io/sdk/client"
)

var supportedFileTypes = map[string]bool{
	"pdf": true,
	"csv": true,
	"md":  true,
	"txt": true,
}

type Server struct {
	cfg       config.Config
	db        *storage.DB
	docRepo   *storage.DocumentRepo
	queryRepo *storage.QueryRepo
	store     *vector.Store
	providers *providers.Manager
	engine    *rag.Engine
	temporal  tclient.Client
	log       *slog.Logger
}

func NewServer(cfg config.Config, log *slog.Logger) *Server {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	db, err := storage.NewDB(ctx, cfg.PostgresURL)
	if err != nil {
		panic(err)
	}
	pm, err := providers.NewManager(cfg)
	if err != nil {
		panic(err)
	}
	tc, err := tclient.Dial(tclient.Options{HostPort: cfg.TemporalAddress})
	if err != nil {
		panic(err)
	}
	if log == nil {
		log = slog.Default()
	}
	docRepo := storage.NewDocumentRepo(db)
	queryRepo := storage.NewQueryRepo(db)
	store := vector.NewStore(db.Pool)
	cascade := providers.NewCascade(pm, providers.CascadeOptions{
		MaxAttempts:    cfg.ProviderMaxAttempts,
		AttemptTimeout: time.Duration(cfg.ProviderTimeoutSecs) * time.Second,
	}, log)
	engine := rag.NewEngine(cascade, cascade, store, docRepo, queryRepo, rag.Options{
		DefaultTopK:      cfg.DefaultTopK,
		DefaultThreshold: cfg.DefaultThreshold,
		QueryTimeout:     time.Duration(cfg.QueryTimeoutSecs) * time.Second,
	}, log)
	return &Server{
		cfg:       cfg,
		db:        db,
		docRepo:   docRepo,
		queryRepo: queryRepo,
		store:     store,
		providers: pm,
		engine:    engine,
		temporal:  tc,
		log:       log,
	}
}

func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", s.handleHealthz)
	mux.HandleFunc("/documents/upload", s.handleUpload)
	mux.HandleFunc("/documents", s.handleDocuments)
	mux.HandleFunc("/documents/", s.handleDocumentScoped)
	mux.HandleFunc("/query", s.handleQuery)
	mux.HandleFunc("/queries", s.handleQueries)
	mux.HandleFunc("/queries/", s.handleQueryScoped)
	mux.HandleFunc("/metrics/", s.handleMetrics)
	mux.HandleFunc("/system/reset", s.handleReset)
	return withCORS(mux)
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeErr(w, http.StatusMethodNotAllowed, fmt.Errorf("method not allowed"))
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxUploadBytes+(1<<20))
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		writeErr(w, http.StatusBadRequest, fmt.Errorf("parse multipart: %w", err))
		return
	}

	fh, ok := firstFile(r.MultipartForm.File, "file")
	if !ok {
		writeErr(w, http.StatusBadRequest, fmt.Errorf("no file provided"))
		return
	}

	// Format and size are rejected here, before any extraction work.
	fileType := strings.TrimPrefix(strings.ToLower(filepath.Ext(fh.Filename)), ".")
	if !supportedFileTypes[fileType] {
		writeErr(w, http.StatusBadRequest, util.ErrUnsupportedFormat)
		return
	}
	if fh.Size > s.cfg.MaxUploadBytes {
		writeErr(w, http.StatusRequestEntityTooLarge, util.ErrFileTooLarge)
		return
	}

	if err := util.EnsureDir(s.cfg.UploadRoot); err != nil {
		writeErr(w, http.StatusInternalServerError, err)
		return
	}
	documentID := uuid.NewString()
	savedPath, err := saveUploadedFile(s.cfg.UploadRoot, documentID, fh)
	if err != nil {
		writeErr(w, http.StatusInternalServerError, err)
		return
	}

	doc := models.Document{
		DocumentID:      documentID,
		FileName:        filepath.Base(fh.Filename),
		FileType:        fileType,
		FileSize:        fh.Size,
		FilePath:        savedPath,
		EmbeddingStatus: models.StatusPending,
		UploadedAt:      time.Now().UTC(),
	}
	if err := s.docRepo.Create(r.Context(), doc); err != nil {
		writeErr(w, http.StatusInternalServerError, err)
		return
	}

	we, err := s.temporal.ExecuteWorkflow(r.Context(), tclient.StartWorkflowOptions{
		ID:                    "ingest-" + documentID,
		TaskQueue:             s.cfg.TemporalTaskQueue,
		WorkflowIDReusePolicy: enumspb.WORKFLOW_ID_REUSE_POLICY_ALLOW_DUPLICATE,
	}, workflows.DocumentIngestWorkflow, workflows.DocumentIngestInput{
		DocumentID:      documentID,
		FileName:        doc.FileName,
		FilePath:        savedPath,
		FileType:        fileType,
		ChunkSize:       s.cfg.ChunkSize,
		ChunkOverlap:    s.cfg.ChunkOverlap,
		EmbedProviders:  len(s.providers.EmbedProviders()),
		CooldownSeconds: s.cfg.ProviderCooldownSecs,
	})
	if err != nil {
		writeErr(w, http.StatusConflict, err)
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]any{
		"document_id":      documentID,
		"file_name":        doc.FileName,
		"embedding_status": doc.EmbeddingStatus,
		"workflow_id":      we.GetID(),
		"run_id":           we.GetRunID(),
	})
}

func (s *Server) handleDocuments(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeErr(w, http.StatusMethodNotAllowed, fmt.Errorf("method not allowed"))
		return
	}
	limit, offset := pagination(r, 50)
	docs, total, err := s.docRepo.List(r.Context(), limit, offset)
	if err != nil {
		writeErr(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"documents": docs, "total": total})
}

func (s *Server) handleDocumentScoped(w http.ResponseWriter, r *http.Request) {
	parts := strings.Split(strings.Trim(strings.TrimPrefix(r.URL.Path, "/documents/"), "/"), "/")
	if len(parts) < 1 || parts[0] == "" {
		writeErr(w, http.StatusNotFound, fmt.Errorf("not found"))
		return
	}
	documentID := parts[0]

	if len(parts) == 2 && parts[1] == "progress" {
		if r.Method != http.MethodGet {
			writeErr(w, http.StatusMethodNotAllowed, fmt.Errorf("method not allowed"))
			return
		}
		s.handleProgress(w, r, documentID)
		return
	}
	if len(parts) == 2 && parts[1] == "reingest" {
		if r.Method != http.MethodPost {
			writeErr(w, http.StatusMethodNotAllowed, fmt.Errorf("method not allowed"))
			return
		}
		s.handleReingest(w, r, documentID)
		return
	}
	if len(parts) != 1 {
		writeErr(w, http.StatusNotFound, fmt.Errorf("not found"))
		return
	}

	switch r.Method {
	case http.MethodGet:
		doc, err := s.docRepo.Get(r.Context(), documentID)
		if err != nil {
			writeErr(w, http.StatusNotFound, err)
			return
		}
		writeJSON(w, http.StatusOK, doc)
	case http.MethodDelete:
		s.handleDelete(w, r, documentID)
	default:
		writeErr(w, http.StatusMethodNotAllowed, fmt.Errorf("method not allowed"))
	}
}

func (s *Server) handleProgress(w http.ResponseWriter, r *http.Request, documentID string) {
	var status workflows.IngestStatus
	resp, err := s.temporal.QueryWorkflow(r.Context(), "ingest-"+documentID, "", workflows.QueryGetIngestStatus)
	if err != nil {
		// No live workflow to query; derive progress from the stored row.
		doc, dErr := s.docRepo.Get(r.Context(), documentID)
		if dErr != nil {
			writeErr(w, http.StatusNotFound, dErr)
			return
		}
		writeJSON(w, http.StatusOK, workflows.IngestStatus{
			DocumentID: doc.DocumentID,
			Status:     doc.EmbeddingStatus,
			FailStage:  doc.FailStage,
			FailReason: doc.FailReason,
			ChunkCount: doc.ChunkCount,
		})
		return
	}
	if err := resp.Get(&status); err != nil {
		writeErr(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, status)
}

// handleReingest replays the full pipeline for an existing document, for
// example after a failed ingestion or a provider change. Existing vectors
// are cleared inside the workflow before the new run writes its own.
func (s *Server) handleReingest(w http.ResponseWriter, r *http.Request, documentID string) {
	doc, err := s.docRepo.Get(r.Context(), documentID)
	if err != nil {
		writeErr(w, http.StatusNotFound, err)
		return
	}
	we, err := s.temporal.ExecuteWorkflow(r.Context(), tclient.StartWorkflowOptions{
		ID:                    "ingest-" + documentID,
		TaskQueue:             s.cfg.TemporalTaskQueue,
		WorkflowIDReusePolicy: enumspb.WORKFLOW_ID_REUSE_POLICY_ALLOW_DUPLICATE,
	}, workflows.DocumentIngestWorkflow, workflows.DocumentIngestInput{
		DocumentID:                  documentID,
		FileName:                    doc.FileName,
		FilePath:                    doc.FilePath,
		FileType:                    doc.FileType,
		ChunkSize:                   s.cfg.ChunkSize,
		ChunkOverlap:                s.cfg.ChunkOverlap,
		EmbedProviders:              len(s.providers.EmbedProviders()),
		PreferredEmbedProviderIndex: s.providers.FindEmbedProviderIndex(doc.EmbedProvider),
		CooldownSeconds:             s.cfg.ProviderCooldownSecs,
		Reingest:                    true,
	})
	if err != nil {
		writeErr(w, http.StatusConflict, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{
		"document_id": documentID,
		"workflow_id": we.GetID(),
		"run_id":      we.GetRunID(),
	})
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request, documentID string) {
	doc, err := s.docRepo.Get(r.Context(), documentID)
	if err != nil {
		writeErr(w, http.StatusNotFound, err)
		return
	}

	// An in-flight ingestion must stop before its rows disappear under it.
	if err := s.temporal.CancelWorkflow(r.Context(), "ingest-"+documentID, ""); err != nil {
		s.log.Debug("cancel ingest workflow", "document_id", documentID, "err", err)
	}

	// Vectors go first so a half-finished delete never leaves orphaned
	// chunks behind a missing document row.
	var lastErr error
	for attempt := 0; attempt < 3; attempt++ {
		if lastErr = s.store.DeleteByDocument(r.Context(), documentID); lastErr == nil {
			break
		}
		time.Sleep(time.Duration(attempt+1) * 200 * time.Millisecond)
	}
	if lastErr != nil {
		writeErr(w, http.StatusInternalServerError, lastErr)
		return
	}
	if err := s.docRepo.Delete(r.Context(), documentID); err != nil {
		writeErr(w, http.StatusInternalServerError, err)
		return
	}
	if doc.FilePath != "" {
		if err := os.Remove(doc.FilePath); err != nil && !os.IsNotExist(err) {
			s.log.Warn("remove uploaded file failed", "document_id", documentID, "err", err)
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"deleted": documentID})
}

func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeErr(w, http.StatusMethodNotAllowed, fmt.Errorf("method not allowed"))
		return
	}
	var req rag.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErr(w, http.StatusBadRequest, fmt.Errorf("invalid json: %w", err))
		return
	}
	req.QueryText = strings.TrimSpace(req.QueryText)
	if req.QueryText == "" {
		writeErr(w, http.StatusBadRequest, fmt.Errorf("query_text is required"))
		return
	}
	if req.SimilarityThreshold < 0 || req.SimilarityThreshold > 1.1 {
		writeErr(w, http.StatusBadRequest, fmt.Errorf("similarity_threshold out of range"))
		return
	}

	record := s.engine.Answer(r.Context(), req)
	code := http.StatusOK
	if record.Status == models.QueryError {
		code = http.StatusBadGateway
	}
	writeJSON(w, code, record)
}

func (s *Server) handleQueries(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeErr(w, http.StatusMethodNotAllowed, fmt.Errorf("method not allowed"))
		return
	}
	limit, offset := pagination(r, 50)
	queries, total, err := s.queryRepo.List(r.Context(), limit, offset)
	if err != nil {
		writeErr(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"queries": queries, "total": total})
}

func (s *Server) handleQueryScoped(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeErr(w, http.StatusMethodNotAllowed, fmt.Errorf("method not allowed"))
		return
	}
	queryID := strings.Trim(strings.TrimPrefix(r.URL.Path, "/queries/"), "/")
	if queryID == "" {
		writeErr(w, http.StatusNotFound, fmt.Errorf("not found"))
		return
	}
	q, err := s.queryRepo.Get(r.Context(), queryID)
	if err != nil {
		writeErr(w, http.StatusNotFound, err)
		return
	}
	writeJSON(w, http.StatusOK, q)
}

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeErr(w, http.StatusMethodNotAllowed, fmt.Errorf("method not allowed"))
		return
	}
	metric := strings.Trim(strings.TrimPrefix(r.URL.Path, "/metrics/"), "/")
	days := queryInt(r, "days", 30)
	limit := queryInt(r, "limit", 10)
	if days <= 0 || days > 365 {
		writeErr(w, http.StatusBadRequest, fmt.Errorf("days out of range"))
		return
	}

	now := time.Now().UTC()
	records, err := s.queryRepo.ListSince(r.Context(), now.AddDate(0, 0, -days))
	if err != nil {
		writeErr(w, http.StatusInternalServerError, err)
		return
	}

	var opts metrics.Options
	switch metric {
	case "summary":
		writeJSON(w, http.StatusOK, metrics.Summary(records, days, limit, now, opts))
	case "daily-volume":
		writeJSON(w, http.StatusOK, map[string]any{"daily_volume": metrics.DailyVolume(records, days, now)})
	case "latency":
		writeJSON(w, http.StatusOK, map[string]any{"average_latency": metrics.AverageLatency(records, days, now)})
	case "success-rate":
		writeJSON(w, http.StatusOK, map[string]any{"success_rate": metrics.SuccessRates(records, days, now, opts)})
	case "top-queries":
		writeJSON(w, http.StatusOK, map[string]any{"top_queries": metrics.TopQueries(records, limit)})
	case "top-documents":
		writeJSON(w, http.StatusOK, map[string]any{"top_documents": metrics.TopDocuments(records, limit)})
	default:
		writeErr(w, http.StatusNotFound, fmt.Errorf("not found"))
	}
}

func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeErr(w, http.StatusMethodNotAllowed, fmt.Errorf("method not allowed"))
		return
	}
	if err := s.queryRepo.ResetAll(r.Context()); err != nil {
		writeErr(w, http.StatusInternalServerError, err)
		return
	}
	if err := s.docRepo.ResetAll(r.Context()); err != nil {
		writeErr(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"reset": true})
}

func saveUploadedFile(dstDir, documentID string, fh *multipart.FileHeader) (string, error) {
	src, err := fh.Open()
	if err != nil {
		return "", fmt.Errorf("open upload: %w", err)
	}
	defer src.Close()

	tmp, err := os.CreateTemp(dstDir, "upload-*")
	if err != nil {
		return "", fmt.Errorf("create temp file: %w", err)
	}
	defer func() {
		_ = tmp.Close()
	}()

	if _, err := io.Copy(tmp, src); err != nil {
		return "", fmt.Errorf("write upload: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return "", err
	}

	finalPath := filepath.Join(dstDir, documentID+filepath.Ext(fh.Filename))
	if err := os.Rename(tmp.Name(), finalPath); err != nil {
		return "", fmt.Errorf("atomic move upload: %w", err)
	}
	return finalPath, nil
}

func firstFile(m map[string][]*multipart.FileHeader, key string) (*multipart.FileHeader, bool) {
	if v := m[key]; len(v) > 0 {
		return v[0], true
	}
	for _, v := range m {
		if len(v) > 0 {
			return v[0], true
		}
	}
	return nil, false
}

func pagination(r *http.Request, defaultLimit int) (limit, offset int) {
	limit = queryInt(r, "limit", defaultLimit)
	offset = queryInt(r, "offset", 0)
	if limit <= 0 || limit > 200 {
		limit = defaultLimit
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}

func queryInt(r *http.Request, key string, fallback int) int {
	v := r.URL.Query().Get(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeErr(w http.ResponseWriter, code int, err error) {
	msg := "request failed"
	if err != nil {
		msg = err.Error()
	}
	if code >= 500 {
		msg = "internal server error"
	}
	writeJSON(w, code, map[string]any{"error": map[string]any{"message": msg}})
}

func withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		w.Header().Set("Access-Control-Allow-Methods", "GET,POST,DELETE,OPTIONS")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}
