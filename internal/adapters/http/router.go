package httpadapter

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/kirillkom/dokeep/internal/config"
	"github.com/kirillkom/dokeep/internal/core/domain"
	"github.com/kirillkom/dokeep/internal/core/ports"
	"github.com/kirillkom/dokeep/internal/core/usecase"
	"github.com/kirillkom/dokeep/internal/observability/metrics"
)

const (
	serviceName = "api"

	defaultMaxUploadBytes = 50 << 20
	backpressureWait      = 250 * time.Millisecond
)

type Router struct {
	cfg       config.Config
	ingestUC  ports.DocumentIngestor
	docs      ports.DocumentReader
	previewUC ports.DocumentPreviewer
	metrics   *metrics.HTTPServerMetrics
}

func NewRouter(
	cfg config.Config,
	ingestUC ports.DocumentIngestor,
	docs ports.DocumentReader,
	previewUC ports.DocumentPreviewer,
) *Router {
	return &Router{
		cfg:       cfg,
		ingestUC:  ingestUC,
		docs:      docs,
		previewUC: previewUC,
	}
}

// WithMetrics enables request metrics and the /metrics endpoint.
func (rt *Router) WithMetrics(m *metrics.HTTPServerMetrics) *Router {
	rt.metrics = m
	return rt
}

// Handler panics if the embedded OpenAPI document is invalid.
func (rt *Router) Handler() http.Handler {
	validator, err := newRequestValidator()
	if err != nil {
		panic(err)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", rt.healthz)
	mux.HandleFunc("GET /openapi.yaml", serveOpenAPIDocument)
	mux.HandleFunc("POST /v1/documents", rt.uploadDocument)
	mux.HandleFunc("GET /v1/documents/{id}", rt.getDocumentByID)
	mux.HandleFunc("POST /v1/documents/{id}/enqueue", rt.enqueueDocument)
	mux.HandleFunc("POST /v1/preview/thumbnail", rt.previewThumbnail)
	mux.HandleFunc("POST /v1/preview/ocr", rt.previewOCR)
	if rt.metrics != nil {
		mux.Handle("GET /metrics", rt.metrics.Handler())
	}

	var handler http.Handler = validator.middleware(mux)
	handler = backpressureMiddleware(handler, rt.cfg.APIMaxInFlight, backpressureWait)
	handler = rateLimitMiddleware(handler, rt.cfg.APIRateLimitRPS, rt.cfg.APIRateLimitBurst)
	if rt.metrics != nil {
		handler = rt.metrics.Middleware(serviceName, handler)
	}
	handler = accessLogMiddleware(handler)
	return requestIDMiddleware(handler)
}

func (rt *Router) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (rt *Router) uploadDocument(w http.ResponseWriter, r *http.Request) {
	data, filename, ok := rt.readMultipartFile(w, r)
	if !ok {
		return
	}

	meta, err := uploadMetadata(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	ack, err := rt.ingestUC.Upload(r.Context(), filename, meta, bytes.NewReader(data))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if rt.metrics != nil {
		rt.metrics.RecordEnqueued(serviceName, "upload", usecase.NormalizeExtension(filepath.Ext(filename)))
	}
	writeJSON(w, http.StatusAccepted, ack)
}

func (rt *Router) enqueueDocument(w http.ResponseWriter, r *http.Request) {
	id, ok := documentIDFromPath(w, r)
	if !ok {
		return
	}
	ext := r.URL.Query().Get("ext")

	body := http.MaxBytesReader(w, r.Body, rt.maxUploadBytes())
	ack, err := rt.ingestUC.Enqueue(r.Context(), id, ext, body)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
			return
		}
		writeDomainError(w, err)
		return
	}
	if rt.metrics != nil {
		rt.metrics.RecordEnqueued(serviceName, "enqueue", usecase.NormalizeExtension(ext))
	}
	writeJSON(w, http.StatusAccepted, ack)
}

func (rt *Router) getDocumentByID(w http.ResponseWriter, r *http.Request) {
	id, ok := documentIDFromPath(w, r)
	if !ok {
		return
	}

	doc, err := rt.docs.GetByID(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

func (rt *Router) previewThumbnail(w http.ResponseWriter, r *http.Request) {
	data, filename, ok := rt.readMultipartFile(w, r)
	if !ok {
		return
	}

	thumbnail, err := rt.previewUC.Thumbnail(r.Context(), filename, data)
	rt.recordPreview("thumbnail", err)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	w.Header().Set("Content-Type", "image/jpeg")
	w.Header().Set("Content-Length", strconv.Itoa(len(thumbnail)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(thumbnail)
}

func (rt *Router) previewOCR(w http.ResponseWriter, r *http.Request) {
	data, filename, ok := rt.readMultipartFile(w, r)
	if !ok {
		return
	}

	text, err := rt.previewUC.OCR(r.Context(), filename, data)
	rt.recordPreview("ocr", err)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"text": text})
}

func (rt *Router) readMultipartFile(w http.ResponseWriter, r *http.Request) ([]byte, string, bool) {
	r.Body = http.MaxBytesReader(w, r.Body, rt.maxUploadBytes())

	file, fileHeader, err := r.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
			return nil, "", false
		}
		writeError(w, http.StatusBadRequest, "multipart field 'file' is required")
		return nil, "", false
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("read multipart file: %v", err))
		return nil, "", false
	}
	return data, fileHeader.Filename, true
}

// uploadMetadata reads the optional title, summary and created_date
// (YYYY-MM-DD) form fields. Call after the multipart form is parsed.
func uploadMetadata(r *http.Request) (domain.UploadMetadata, error) {
	meta := domain.UploadMetadata{
		Title:   strings.TrimSpace(r.FormValue("title")),
		Summary: strings.TrimSpace(r.FormValue("summary")),
	}
	if raw := strings.TrimSpace(r.FormValue("created_date")); raw != "" {
		date, err := time.Parse(time.DateOnly, raw)
		if err != nil {
			return domain.UploadMetadata{}, fmt.Errorf("created_date must be YYYY-MM-DD: %q", raw)
		}
		meta.CreatedDate = &date
	}
	return meta, nil
}

func (rt *Router) maxUploadBytes() int64 {
	if rt.cfg.MaxUploadBytes > 0 {
		return rt.cfg.MaxUploadBytes
	}
	return defaultMaxUploadBytes
}

func (rt *Router) recordPreview(kind string, err error) {
	if rt.metrics != nil {
		rt.metrics.RecordPreview(serviceName, kind, err)
	}
}

func documentIDFromPath(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, "document id must be a positive integer")
		return 0, false
	}
	return id, true
}

func writeDomainError(w http.ResponseWriter, err error) {
	writeError(w, mapErrorToHTTPStatus(err), err.Error())
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
