// Package api provides the HTTP handlers for the property dashboard.
package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"propdash/internal/domain"
	"propdash/internal/service/dashboard"
	"propdash/internal/session"
)

// multipartOverhead is the allowance on top of the file size ceiling for
// multipart framing and other form fields.
const multipartOverhead = 1 << 20

// maxJSONBody bounds filter request bodies.
const maxJSONBody = 1 << 20

// Handler serves the dashboard API.
type Handler struct {
	dashboard *dashboard.Service
	store     *session.Store
	maxUpload int64
	logger    *slog.Logger
}

// NewHandler creates a Handler. maxUpload is the file size ceiling in bytes.
func NewHandler(svc *dashboard.Service, store *session.Store, maxUpload int64, logger *slog.Logger) *Handler {
	return &Handler{dashboard: svc, store: store, maxUpload: maxUpload, logger: logger}
}

// Upload handles POST /api/upload.
func (h *Handler) Upload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUpload+multipartOverhead)

	file, header, err := r.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		switch {
		case errors.As(err, &tooLarge):
			writeError(w, h.logger, domain.ErrProcessing(domain.CodeFileTooLarge,
				"File too large (max: %d bytes)", h.maxUpload))
		default:
			writeError(w, h.logger, domain.ErrValidation(domain.CodeNoFile, "No file provided"))
		}
		return
	}
	defer file.Close()

	var buf bytes.Buffer
	if _, err := io.Copy(&buf, file); err != nil {
		writeError(w, h.logger, domain.ErrValidation(domain.CodeNoFile, "Unable to read uploaded file"))
		return
	}

	res, err := h.dashboard.Upload(r.Context(), header.Filename, buf.Bytes())
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, uploadResponse{
		Success:   true,
		Message:   "File processed successfully",
		SessionID: res.SessionID,
		Filters:   res.Bounds,
		Warnings:  nonNil(res.Warnings),
		Metadata:  res.Metadata,
	})
}

// Data handles POST /api/data.
func (h *Handler) Data(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decodeFilter(w, r)
	if !ok {
		return
	}
	res, err := h.dashboard.Query(r.Context(), req.SessionID, req.spec())
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	rows := make([]map[string]any, 0, len(res.Page.Rows))
	for _, s := range res.Page.Rows {
		rows = append(rows, saleToRow(s))
	}
	writeJSON(w, http.StatusOK, dataResponse{
		Metrics: res.Metrics,
		Charts:  res.Charts,
		Table: tablePage{
			Data:      rows,
			TotalRows: res.Page.TotalRows,
			Page:      res.Page.Page,
			PageSize:  res.Page.PageSize,
		},
		Warnings: nonNil(res.Warnings),
	})
}

// Export handles POST /api/export. The CSV is buffered so a failure never
// produces a truncated attachment.
func (h *Handler) Export(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decodeFilter(w, r)
	if !ok {
		return
	}
	var buf bytes.Buffer
	if err := h.dashboard.Export(r.Context(), req.SessionID, req.spec(), &buf); err != nil {
		writeError(w, h.logger, err)
		return
	}
	name := fmt.Sprintf("property_sales_%s.csv", time.Now().UTC().Format("20060102_150405"))
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	w.WriteHeader(http.StatusOK)
	_, _ = buf.WriteTo(w)
}

// GetSession handles GET /api/session/{id}.
func (h *Handler) GetSession(w http.ResponseWriter, r *http.Request) {
	info, exists, err := h.dashboard.Check(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	if !exists {
		writeJSON(w, http.StatusNotFound, sessionResponse{Exists: false})
		return
	}
	writeJSON(w, http.StatusOK, sessionResponse{
		Exists:           true,
		CreatedAt:        &info.CreatedAt,
		LastAccessed:     &info.LastAccessedAt,
		RowCount:         info.Metadata.RowCount,
		ColumnCount:      info.Metadata.ColumnCount,
		OriginalFilename: info.Metadata.OriginalFilename,
		Encoding:         info.Metadata.DetectedEncoding,
	})
}

// DeleteSession handles DELETE /api/session/{id}.
func (h *Handler) DeleteSession(w http.ResponseWriter, r *http.Request) {
	if err := h.dashboard.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "message": "Session deleted"})
}

// Health handles GET /health.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{Status: "healthy", SessionBackend: h.store.BackendName()}
	if n, ok := h.store.Len(); ok {
		resp.Sessions = &n
	}
	status := http.StatusOK
	if err := h.store.Ping(r.Context()); err != nil {
		h.logger.Warn("session backend unhealthy", "error", err)
		resp.Status = "degraded"
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, resp)
}

func (h *Handler) decodeFilter(w http.ResponseWriter, r *http.Request) (filterRequest, bool) {
	var req filterRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxJSONBody))
	if err := dec.Decode(&req); err != nil {
		writeError(w, h.logger, domain.ErrValidation(domain.CodeValidation, "Invalid request body: %v", err))
		return filterRequest{}, false
	}
	return req, true
}
