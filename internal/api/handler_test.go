package api

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"propdash/internal/metrics"
	"propdash/internal/middleware"
	"propdash/internal/service/admission"
	"propdash/internal/service/dashboard"
	"propdash/internal/service/ingestion"
	"propdash/internal/service/query"
	"propdash/internal/session"
)

const salesCSV = "PropertyID,PropertyLocality,PurchasePrice,ContractDate\n" +
	"1,Sydney,500000,2023-01-01\n" +
	"2,Melbourne,600000,2023-01-02\n" +
	"1,Sydney,550000,2023-06-01\n"

func setupTestServer(t *testing.T, maxUpload int64, cfg RouterConfig) *httptest.Server {
	t.Helper()
	logger := slog.New(slog.DiscardHandler)
	m := metrics.New()
	store := session.NewStore(session.NewMemoryBackend(), time.Hour, logger)
	svc := dashboard.New(ingestion.New(maxUpload, logger), store, query.NewEngine(logger), m, logger)
	if cfg.Metrics == nil {
		cfg.Metrics = m.Handler()
	}
	srv := httptest.NewServer(NewRouter(NewHandler(svc, store, maxUpload, logger), cfg))
	t.Cleanup(srv.Close)
	return srv
}

func uploadFile(t *testing.T, srv *httptest.Server, field, filename, content string) *http.Response {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, err := mw.CreateFormFile(field, filename)
	require.NoError(t, err)
	_, err = io.WriteString(fw, content)
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	resp, err := http.Post(srv.URL+"/api/upload", mw.FormDataContentType(), &body)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func postJSON(t *testing.T, srv *httptest.Server, path string, v any) *http.Response {
	t.Helper()
	b, err := json.Marshal(v)
	require.NoError(t, err)
	resp, err := http.Post(srv.URL+path, "application/json", bytes.NewReader(b))
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

func mustUpload(t *testing.T, srv *httptest.Server) uploadResponse {
	t.Helper()
	resp := uploadFile(t, srv, "file", "sales.csv", salesCSV)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	return decode[uploadResponse](t, resp)
}

func errorCodeOf(t *testing.T, resp *http.Response) string {
	t.Helper()
	return decode[errorBody](t, resp).Error.Code
}

func TestAPI_UploadAndQuery(t *testing.T) {
	srv := setupTestServer(t, 1<<20, RouterConfig{})
	up := mustUpload(t, srv)

	assert.True(t, up.Success)
	assert.Equal(t, "File processed successfully", up.Message)
	require.NotEmpty(t, up.SessionID)
	assert.Equal(t, []string{"Melbourne", "Sydney"}, up.Filters.Localities)
	assert.Equal(t, [2]float64{500000, 600000}, up.Filters.PriceRange)
	assert.Equal(t, [2]string{"2023-01-01", "2023-06-01"}, up.Filters.DateRange)
	assert.Equal(t, 3, up.Metadata.RowCount)

	resp := postJSON(t, srv, "/api/data", map[string]any{
		"session_id":    up.SessionID,
		"repeatSales":   true,
		"sortDirection": "asc",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	data := decode[dataResponse](t, resp)

	assert.Equal(t, 2, data.Metrics.Count)
	assert.Equal(t, 1050000.0, data.Metrics.Sum)
	assert.Equal(t, 2, data.Table.TotalRows)
	assert.Equal(t, 1, data.Table.Page)
	assert.Equal(t, 10, data.Table.PageSize)
	require.Len(t, data.Table.Data, 2)
	assert.Equal(t, "1", data.Table.Data[0]["Property ID"])
	assert.Equal(t, "2023-01-01", data.Table.Data[0]["Contract date"])
	assert.Equal(t, "2023-06-01", data.Table.Data[1]["Contract date"])
	assert.Nil(t, data.Table.Data[0]["Primary purpose"])
	assert.Equal(t, []string{"Sydney"}, data.Charts.SalesBySuburb.Labels)
	assert.NotNil(t, data.Warnings)
}

func TestAPI_EmptySuburbsYieldsNoRows(t *testing.T) {
	srv := setupTestServer(t, 1<<20, RouterConfig{})
	up := mustUpload(t, srv)

	resp := postJSON(t, srv, "/api/data", map[string]any{"session_id": up.SessionID, "suburbs": []string{}})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	data := decode[dataResponse](t, resp)
	assert.Equal(t, 0, data.Table.TotalRows)
	assert.Empty(t, data.Table.Data)

	resp = postJSON(t, srv, "/api/data", map[string]any{"session_id": up.SessionID, "suburbs": nil})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, 3, decode[dataResponse](t, resp).Table.TotalRows)
}

func TestAPI_UploadErrors(t *testing.T) {
	tests := []struct {
		name       string
		field      string
		filename   string
		content    string
		wantStatus int
		wantCode   string
	}{
		{"missing file part", "other", "sales.csv", salesCSV, http.StatusBadRequest, "NO_FILE"},
		{"not csv", "file", "sales.xlsx", salesCSV, http.StatusBadRequest, "INVALID_FILE_TYPE"},
		{"missing columns", "file", "sales.csv", "a,b\n1,2\n", http.StatusBadRequest, "MISSING_COLUMNS"},
		{"header only", "file", "sales.csv", "PropertyID,Locality,Price,Date\n", http.StatusBadRequest, "EMPTY_DATA"},
		{"too large", "file", "sales.csv", salesCSV + strings.Repeat("3,Perth,1,2023-01-01\n", 20), http.StatusRequestEntityTooLarge, "FILE_TOO_LARGE"},
	}
	srv := setupTestServer(t, 256, RouterConfig{})
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			resp := uploadFile(t, srv, tc.field, tc.filename, tc.content)
			assert.Equal(t, tc.wantStatus, resp.StatusCode)
			assert.Equal(t, tc.wantCode, errorCodeOf(t, resp))
		})
	}
}

func TestAPI_DataErrors(t *testing.T) {
	srv := setupTestServer(t, 1<<20, RouterConfig{})

	resp := postJSON(t, srv, "/api/data", map[string]any{})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "MISSING_SESSION", errorCodeOf(t, resp))

	resp = postJSON(t, srv, "/api/data", map[string]any{"session_id": "nope"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	body := decode[errorBody](t, resp)
	assert.Equal(t, "SESSION_EXPIRED", body.Error.Code)
	assert.Equal(t, "Session not found or expired. Please upload your file again.", body.Error.Message)
	assert.NotEmpty(t, body.Error.Timestamp)

	raw, err := http.Post(srv.URL+"/api/data", "application/json", strings.NewReader("{not json"))
	require.NoError(t, err)
	defer raw.Body.Close()
	assert.Equal(t, http.StatusBadRequest, raw.StatusCode)
	assert.Equal(t, "VALIDATION_ERROR", errorCodeOf(t, raw))
}

func TestAPI_Export(t *testing.T) {
	srv := setupTestServer(t, 1<<20, RouterConfig{})
	up := mustUpload(t, srv)

	resp := postJSON(t, srv, "/api/export", map[string]any{
		"session_id":    up.SessionID,
		"suburbs":       []string{"Sydney"},
		"sortDirection": "asc",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/csv; charset=utf-8", resp.Header.Get("Content-Type"))
	assert.Contains(t, resp.Header.Get("Content-Disposition"), "attachment; filename=")

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(body)), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, strings.Join(dashboard.ExportHeader, ","), lines[0])
	assert.Equal(t, ",,Sydney,500000,2023-01-01,,1", lines[1])
	assert.Equal(t, ",,Sydney,550000,2023-06-01,,1", lines[2])

	resp = postJSON(t, srv, "/api/export", map[string]any{"session_id": "gone"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestAPI_SessionLifecycle(t *testing.T) {
	srv := setupTestServer(t, 1<<20, RouterConfig{})
	up := mustUpload(t, srv)
	url := srv.URL + "/api/session/" + up.SessionID

	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	info := decode[sessionResponse](t, resp)
	assert.True(t, info.Exists)
	assert.Equal(t, 3, info.RowCount)
	assert.Equal(t, 4, info.ColumnCount)
	assert.Equal(t, "sales.csv", info.OriginalFilename)
	assert.Equal(t, "utf-8", info.Encoding)
	require.NotNil(t, info.CreatedAt)

	req, err := http.NewRequest(http.MethodDelete, url, nil)
	require.NoError(t, err)
	del, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer del.Body.Close()
	assert.Equal(t, http.StatusOK, del.StatusCode)

	gone, err := http.Get(url)
	require.NoError(t, err)
	defer gone.Body.Close()
	assert.Equal(t, http.StatusNotFound, gone.StatusCode)
	assert.False(t, decode[sessionResponse](t, gone).Exists)
}

func TestAPI_HealthAndMetrics(t *testing.T) {
	srv := setupTestServer(t, 1<<20, RouterConfig{})
	mustUpload(t, srv)

	resp, err := http.Get(srv.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	health := decode[healthResponse](t, resp)
	assert.Equal(t, "healthy", health.Status)
	assert.Equal(t, "memory", health.SessionBackend)
	require.NotNil(t, health.Sessions)
	assert.Equal(t, 1, *health.Sessions)
	assert.NotEmpty(t, resp.Header.Get("X-Request-ID"))

	m, err := http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	defer m.Body.Close()
	body, err := io.ReadAll(m.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `propdash_uploads_total{result="accepted"} 1`)
}

func TestAPI_UploadGate(t *testing.T) {
	ctrl := admission.New(admission.Config{MaxRequests: 1, Window: time.Hour}, slog.New(slog.DiscardHandler))
	srv := setupTestServer(t, 1<<20, RouterConfig{UploadGate: middleware.Admission(ctrl, nil)})

	mustUpload(t, srv)
	resp := uploadFile(t, srv, "file", "sales.csv", salesCSV)
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	assert.Equal(t, "3600", resp.Header.Get("Retry-After"))
	body := decode[errorBody](t, resp)
	assert.Equal(t, "RATE_LIMIT_EXCEEDED", body.Error.Code)
	require.NotNil(t, body.RetryAfter)
	assert.Equal(t, 3600, *body.RetryAfter)

	// Other endpoints are not gated.
	data := postJSON(t, srv, "/api/data", map[string]any{"session_id": "x"})
	assert.Equal(t, http.StatusBadRequest, data.StatusCode)
}

func TestAPI_CORS(t *testing.T) {
	srv := setupTestServer(t, 1<<20, RouterConfig{CORSOrigins: []string{"https://dash.example.com"}})

	req, err := http.NewRequest(http.MethodOptions, srv.URL+"/api/data", nil)
	require.NoError(t, err)
	req.Header.Set("Origin", "https://dash.example.com")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "https://dash.example.com", resp.Header.Get("Access-Control-Allow-Origin"))
}
