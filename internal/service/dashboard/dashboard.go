// Package dashboard orchestrates uploads, queries and exports over the
// ingestion normalizer, session store and query engine.
package dashboard

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"propdash/internal/domain"
	"propdash/internal/metrics"
	"propdash/internal/service/ingestion"
	"propdash/internal/service/query"
	"propdash/internal/session"
)

const msgSessionExpired = "Session not found or expired. Please upload your file again."

// ExportHeader is the first record of every export.
var ExportHeader = []string{
	"Property house number",
	"Property street name",
	"Property locality",
	"Purchase price",
	"Contract date",
	"Primary purpose",
	"Property ID",
}

// UploadResult is returned after a file is accepted.
type UploadResult struct {
	SessionID string
	Bounds    domain.Bounds
	Warnings  []string
	Metadata  domain.SessionMetadata
}

// Service is the dashboard facade.
type Service struct {
	normalizer *ingestion.Normalizer
	store      *session.Store
	engine     *query.Engine
	metrics    *metrics.Metrics
	logger     *slog.Logger
}

// New creates a Service.
func New(normalizer *ingestion.Normalizer, store *session.Store, engine *query.Engine, m *metrics.Metrics, logger *slog.Logger) *Service {
	return &Service{normalizer: normalizer, store: store, engine: engine, metrics: m, logger: logger}
}

// Upload validates and ingests a file, then stores it as a new session.
func (s *Service) Upload(ctx context.Context, filename string, raw []byte) (*UploadResult, error) {
	if strings.TrimSpace(filename) == "" {
		s.metrics.Uploads.WithLabelValues(metrics.UploadRejected).Inc()
		return nil, domain.ErrValidation(domain.CodeNoFile, "No file selected")
	}
	if !strings.EqualFold(filepath.Ext(filename), ".csv") {
		s.metrics.Uploads.WithLabelValues(metrics.UploadRejected).Inc()
		return nil, domain.ErrValidation(domain.CodeInvalidFileType, "Invalid file type. Please upload a CSV file.")
	}

	res, err := s.normalizer.Process(raw, filepath.Base(filename))
	if err != nil {
		s.metrics.Uploads.WithLabelValues(metrics.UploadRejected).Inc()
		s.logger.Info("upload rejected", "filename", filename, "error", err)
		return nil, err
	}

	id, err := s.store.Create(ctx, res.Table, res.Metadata)
	if err != nil {
		s.metrics.Uploads.WithLabelValues(metrics.UploadFailed).Inc()
		return nil, err
	}
	s.metrics.Uploads.WithLabelValues(metrics.UploadAccepted).Inc()
	s.metrics.UploadedRows.Add(float64(len(res.Table.Rows)))
	s.metrics.SessionsCreated.Inc()

	s.logger.Info("upload accepted", "session_id", id, "filename", filename,
		"rows", res.Metadata.RowCount, "encoding", res.Metadata.DetectedEncoding, "warnings", len(res.Warnings))
	return &UploadResult{SessionID: id, Bounds: res.Bounds, Warnings: res.Warnings, Metadata: res.Metadata}, nil
}

// Query evaluates spec against the session's table.
func (s *Service) Query(ctx context.Context, id string, spec domain.FilterSpec) (*domain.QueryResult, error) {
	table, err := s.table(ctx, id)
	if err != nil {
		return nil, err
	}
	started := time.Now()
	res := s.engine.Evaluate(table, spec)
	s.metrics.ObserveQuery("data", started)
	return &res, nil
}

// Check reports whether id is live and, if so, its metadata.
func (s *Service) Check(ctx context.Context, id string) (*domain.SessionInfo, bool, error) {
	if id == "" {
		return nil, false, domain.ErrValidation(domain.CodeMissingSession, "No session ID provided")
	}
	info, err := s.store.GetInfo(ctx, id)
	var nf *domain.NotFoundError
	var se *domain.StorageError
	switch {
	case err == nil:
		return info, true, nil
	case errors.As(err, &nf):
		return nil, false, nil
	case errors.As(err, &se) && se.Code == domain.CodeSessionCorrupt:
		return nil, false, nil
	default:
		return nil, false, err
	}
}

// Export writes the full filtered and sorted set as CSV.
func (s *Service) Export(ctx context.Context, id string, spec domain.FilterSpec, w io.Writer) error {
	table, err := s.table(ctx, id)
	if err != nil {
		return err
	}
	started := time.Now()
	rows, warnings := s.engine.Sorted(table, spec)
	for _, w := range warnings {
		s.logger.Warn("export filter warning", "session_id", id, "warning", w)
	}

	cw := csv.NewWriter(w)
	if err := cw.Write(ExportHeader); err != nil {
		return fmt.Errorf("write export header: %w", err)
	}
	for _, r := range rows {
		rec := []string{
			deref(r.HouseNumber),
			deref(r.StreetName),
			r.Locality,
			strconv.FormatFloat(r.PurchasePrice, 'f', -1, 64),
			r.ContractDate.Format(domain.DateLayout),
			deref(r.PrimaryPurpose),
			r.PropertyID,
		}
		if err := cw.Write(rec); err != nil {
			return fmt.Errorf("write export row: %w", err)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("flush export: %w", err)
	}
	s.metrics.ObserveQuery("export", started)
	s.logger.Info("export written", "session_id", id, "rows", len(rows))
	return nil
}

// Delete removes the session.
func (s *Service) Delete(ctx context.Context, id string) error {
	if id == "" {
		return domain.ErrValidation(domain.CodeMissingSession, "No session ID provided")
	}
	return s.store.Delete(ctx, id)
}

// table resolves a session id to its table, folding absence and corruption
// into SESSION_EXPIRED.
func (s *Service) table(ctx context.Context, id string) (*domain.Table, error) {
	if id == "" {
		return nil, domain.ErrValidation(domain.CodeMissingSession, "No session ID provided")
	}
	table, err := s.store.Get(ctx, id)
	if err == nil {
		return table, nil
	}

	var nf *domain.NotFoundError
	var se *domain.StorageError
	switch {
	case errors.As(err, &nf):
		return nil, domain.ErrValidation(domain.CodeSessionExpired, msgSessionExpired)
	case errors.As(err, &se) && se.Code == domain.CodeSessionCorrupt:
		s.logger.Error("discarding unreadable session", "session_id", id, "error", err)
		_ = s.store.Delete(ctx, id)
		return nil, domain.ErrValidation(domain.CodeSessionExpired, msgSessionExpired)
	default:
		return nil, err
	}
}

func deref(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}
