package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/askdb/askdb/internal/auth"
	"github.com/askdb/askdb/internal/chart"
	"github.com/askdb/askdb/internal/config"
	"github.com/askdb/askdb/internal/export"
	"github.com/askdb/askdb/internal/pipeline"
	"github.com/askdb/askdb/internal/resultset"
	"github.com/askdb/askdb/internal/schema"
	"github.com/askdb/askdb/internal/storage"
)

type fakePipeline struct {
	description schema.Description
	tablesErr   error
	response    pipeline.Response
	askErr      error
	questions   []string
	tableCalls  int
}

func (f *fakePipeline) Tables(context.Context) (schema.Description, error) {
	f.tableCalls++
	return f.description, f.tablesErr
}

func (f *fakePipeline) Ask(_ context.Context, question string) (pipeline.Response, error) {
	f.questions = append(f.questions, question)
	return f.response, f.askErr
}

type fakeExporter struct {
	result    export.Result
	exportErr error
	body      string
	openErr   error
	openedKey string
}

func (f *fakeExporter) Export(context.Context, string) (export.Result, error) {
	return f.result, f.exportErr
}

func (f *fakeExporter) Open(_ context.Context, key string) (io.ReadCloser, storage.ObjectInfo, error) {
	f.openedKey = key
	if f.openErr != nil {
		return nil, storage.ObjectInfo{}, f.openErr
	}
	return io.NopCloser(strings.NewReader(f.body)), storage.ObjectInfo{Key: key, Size: int64(len(f.body))}, nil
}

func TestHealthEndpoint(t *testing.T) {
	h := NewHandler(loadConfig(t, nil), Dependencies{})
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/v1/health", nil))

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	body := decodeBody(t, rr)
	if body["service"] != "askdb-api" {
		t.Fatalf("service = %v", body["service"])
	}
}

func TestReadyEndpointReturns503WhenDependencyFails(t *testing.T) {
	h := NewHandler(loadConfig(t, nil), Dependencies{
		Readiness: CheckPing("database", func(context.Context) error {
			return errors.New("connection refused")
		}),
	})
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/v1/ready", nil))

	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d", rr.Code)
	}
	body := decodeBody(t, rr)
	if body["error"] != "database is not ready: connection refused" {
		t.Fatalf("error = %v", body["error"])
	}
	if body["error_code"] != "NOT_READY" {
		t.Fatalf("error_code = %v", body["error_code"])
	}
}

func TestQueryReturnsFullResponse(t *testing.T) {
	result := resultset.ResultSet{Columns: []string{"name", "total"}}
	if err := result.Append([]resultset.Value{resultset.String("Alice"), resultset.Number(500)}); err != nil {
		t.Fatalf("Append() error = %v", err)
	}
	fake := &fakePipeline{response: pipeline.Response{
		Query:   "SELECT name, total FROM t",
		Result:  result,
		Summary: "Alice leads.",
		Chart: &chart.Series{
			Type:   "bar",
			Labels: []resultset.Value{resultset.String("Alice")},
			Datasets: []chart.Dataset{{
				Label:           "total",
				Data:            []float64{500},
				BackgroundColor: "rgba(75, 192, 192, 0.6)",
				BorderColor:     "rgba(75, 192, 192, 1)",
				BorderWidth:     1,
			}},
		},
	}}
	h := NewHandler(loadConfig(t, nil), Dependencies{Pipeline: fake})

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, jsonRequest(http.MethodPost, "/api/query", `{"query":"top customers as a chart"}`))
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d body=%s", rr.Code, rr.Body.String())
	}
	want := `{"query":"SELECT name, total FROM t","result":[{"name":"Alice","total":500}],"summary":"Alice leads.","chart":{"type":"bar","labels":["Alice"],"datasets":[{"label":"total","data":[500],"backgroundColor":"rgba(75, 192, 192, 0.6)","borderColor":"rgba(75, 192, 192, 1)","borderWidth":1}]}}`
	if got := strings.TrimSpace(rr.Body.String()); got != want {
		t.Fatalf("body =\n%s\nwant\n%s", got, want)
	}
	if len(fake.questions) != 1 || fake.questions[0] != "top customers as a chart" {
		t.Fatalf("questions = %#v", fake.questions)
	}
}

func TestQueryRequiresQuestion(t *testing.T) {
	for _, body := range []string{`{}`, `{"query":""}`, `{"query":"   "}`, ``} {
		fake := &fakePipeline{}
		h := NewHandler(loadConfig(t, nil), Dependencies{Pipeline: fake})

		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, jsonRequest(http.MethodPost, "/api/query", body))
		if rr.Code != http.StatusBadRequest {
			t.Fatalf("body %q: status = %d", body, rr.Code)
		}
		decoded := decodeBody(t, rr)
		if decoded["error"] != "Query is required" {
			t.Fatalf("body %q: error = %v", body, decoded["error"])
		}
		if len(fake.questions) != 0 {
			t.Fatalf("body %q: pipeline should not be called", body)
		}
	}
}

func TestQueryRejectsMalformedBody(t *testing.T) {
	fake := &fakePipeline{}
	h := NewHandler(loadConfig(t, nil), Dependencies{Pipeline: fake})

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, jsonRequest(http.MethodPost, "/api/query", `{"query":42}`))
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", rr.Code)
	}
	if decodeBody(t, rr)["error_code"] != "INVALID_JSON" {
		t.Fatalf("body = %s", rr.Body.String())
	}
	if len(fake.questions) != 0 {
		t.Fatal("pipeline should not be called")
	}
}

func TestQueryExecutionFailureReturns500WithoutResult(t *testing.T) {
	fake := &fakePipeline{askErr: fmt.Errorf("%w: %w", pipeline.ErrExecution, errors.New(`relation "orders" does not exist`))}
	h := NewHandler(loadConfig(t, nil), Dependencies{Pipeline: fake})

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, jsonRequest(http.MethodPost, "/api/query", `{"query":"show orders"}`))
	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d", rr.Code)
	}
	body := decodeBody(t, rr)
	message, _ := body["error"].(string)
	if !strings.Contains(message, `relation "orders" does not exist`) {
		t.Fatalf("error = %q", message)
	}
	if body["error_code"] != "QUERY_EXECUTION_FAILED" {
		t.Fatalf("error_code = %v", body["error_code"])
	}
	for _, key := range []string{"result", "summary", "chart", "query"} {
		if _, ok := body[key]; ok {
			t.Fatalf("unexpected %q in error body", key)
		}
	}
}

func TestQueryFailureFallsBackToGenericMessage(t *testing.T) {
	fake := &fakePipeline{askErr: errors.New(" ")}
	h := NewHandler(loadConfig(t, nil), Dependencies{Pipeline: fake})

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, jsonRequest(http.MethodPost, "/api/query", `{"query":"anything"}`))
	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d", rr.Code)
	}
	body := decodeBody(t, rr)
	if body["error"] != "An error occurred while processing your query" {
		t.Fatalf("error = %v", body["error"])
	}
	if body["error_code"] != "INTERNAL_ERROR" {
		t.Fatalf("error_code = %v", body["error_code"])
	}
}

func TestTablesEndpoint(t *testing.T) {
	fake := &fakePipeline{description: schema.Description{Tables: []schema.Table{{
		Name:    "customers",
		Columns: []schema.Column{{Name: "id", DataType: "integer", FullType: "integer"}},
	}}}}
	h := NewHandler(loadConfig(t, nil), Dependencies{Pipeline: fake})

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/tables", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	want := `{"customers":[{"name":"id","dataType":"integer","fullType":"integer"}]}`
	if got := strings.TrimSpace(rr.Body.String()); got != want {
		t.Fatalf("body = %s, want %s", got, want)
	}
}

func TestTablesEndpointReturns500OnSchemaFailure(t *testing.T) {
	fake := &fakePipeline{tablesErr: fmt.Errorf("%w: %w", pipeline.ErrSchemaFetch, errors.New("connection reset"))}
	h := NewHandler(loadConfig(t, nil), Dependencies{Pipeline: fake})

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/tables", nil))
	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d", rr.Code)
	}
	body := decodeBody(t, rr)
	if body["error"] != "schema fetch failed: connection reset" {
		t.Fatalf("error = %v", body["error"])
	}
	if body["error_code"] != "SCHEMA_FETCH_FAILED" {
		t.Fatalf("error_code = %v", body["error_code"])
	}
}

func TestExportNotConfigured(t *testing.T) {
	h := NewHandler(loadConfig(t, nil), Dependencies{Pipeline: &fakePipeline{}})

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, jsonRequest(http.MethodPost, "/api/export", `{"query":"all orders"}`))
	if rr.Code != http.StatusNotImplemented {
		t.Fatalf("status = %d", rr.Code)
	}
}

func TestExportEndpoint(t *testing.T) {
	exporter := &fakeExporter{result: export.Result{
		Query:     "SELECT 1",
		ObjectKey: "exports/date=2026-10-14/abc.parquet",
		RowCount:  1,
		SizeBytes: 512,
	}}
	h := NewHandler(loadConfig(t, nil), Dependencies{Exporter: exporter})

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, jsonRequest(http.MethodPost, "/api/export", `{"query":"one row"}`))
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d body=%s", rr.Code, rr.Body.String())
	}
	want := `{"query":"SELECT 1","object_key":"exports/date=2026-10-14/abc.parquet","row_count":1,"size_bytes":512}`
	if got := strings.TrimSpace(rr.Body.String()); got != want {
		t.Fatalf("body = %s, want %s", got, want)
	}
}

func TestExportUploadFailure(t *testing.T) {
	exporter := &fakeExporter{exportErr: fmt.Errorf("%w: %w", export.ErrUpload, errors.New("bucket missing"))}
	h := NewHandler(loadConfig(t, nil), Dependencies{Exporter: exporter})

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, jsonRequest(http.MethodPost, "/api/export", `{"query":"one row"}`))
	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d", rr.Code)
	}
	if decodeBody(t, rr)["error_code"] != "EXPORT_UPLOAD_FAILED" {
		t.Fatalf("body = %s", rr.Body.String())
	}
}

func TestDownloadExport(t *testing.T) {
	exporter := &fakeExporter{body: "PAR1data"}
	h := NewHandler(loadConfig(t, nil), Dependencies{Exporter: exporter})

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/exports/exports/date=2026-10-14/abc.parquet", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d body=%s", rr.Code, rr.Body.String())
	}
	if exporter.openedKey != "exports/date=2026-10-14/abc.parquet" {
		t.Fatalf("opened key = %q", exporter.openedKey)
	}
	if rr.Header().Get("Content-Type") != export.ContentType {
		t.Fatalf("Content-Type = %q", rr.Header().Get("Content-Type"))
	}
	if rr.Header().Get("Content-Disposition") != `attachment; filename="abc.parquet"` {
		t.Fatalf("Content-Disposition = %q", rr.Header().Get("Content-Disposition"))
	}
	if rr.Body.String() != "PAR1data" {
		t.Fatalf("body = %q", rr.Body.String())
	}
}

func TestDownloadExportErrors(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{err: fmt.Errorf("%w: %q", storage.ErrInvalidExportKey, "x"), want: http.StatusBadRequest},
		{err: storage.ErrObjectNotFound, want: http.StatusNotFound},
		{err: errors.New("timeout"), want: http.StatusInternalServerError},
	}
	for _, tc := range tests {
		h := NewHandler(loadConfig(t, nil), Dependencies{Exporter: &fakeExporter{openErr: tc.err}})
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/exports/exports/date=2026-10-14/abc.parquet", nil))
		if rr.Code != tc.want {
			t.Fatalf("error %v: status = %d, want %d", tc.err, rr.Code, tc.want)
		}
	}
}

func TestProtectedRouteRequiresAuth(t *testing.T) {
	cfg := loadConfig(t, map[string]string{"ASKDB_AUTH_REQUIRED": "true"})
	validator, err := auth.NewStaticAPIKeyValidator("k1:analyst:query_reader")
	if err != nil {
		t.Fatalf("validator setup failed: %v", err)
	}

	h := NewHandler(cfg, Dependencies{
		AuthMiddleware: auth.Middleware(nil, validator),
		Pipeline:       &fakePipeline{},
		Exporter:       &fakeExporter{},
	})

	unauthResp := httptest.NewRecorder()
	h.ServeHTTP(unauthResp, httptest.NewRequest(http.MethodGet, "/api/tables", nil))
	if unauthResp.Code != http.StatusUnauthorized {
		t.Fatalf("unauth status = %d", unauthResp.Code)
	}

	authReq := httptest.NewRequest(http.MethodGet, "/api/tables", nil)
	authReq.Header.Set("X-API-Key", "k1")
	authResp := httptest.NewRecorder()
	h.ServeHTTP(authResp, authReq)
	if authResp.Code != http.StatusOK {
		t.Fatalf("auth status = %d", authResp.Code)
	}

	exportReq := jsonRequest(http.MethodPost, "/api/export", `{"query":"x"}`)
	exportReq.Header.Set("X-API-Key", "k1")
	exportResp := httptest.NewRecorder()
	h.ServeHTTP(exportResp, exportReq)
	if exportResp.Code != http.StatusForbidden {
		t.Fatalf("export status = %d, want %d", exportResp.Code, http.StatusForbidden)
	}

	healthResp := httptest.NewRecorder()
	h.ServeHTTP(healthResp, httptest.NewRequest(http.MethodGet, "/v1/health", nil))
	if healthResp.Code != http.StatusOK {
		t.Fatalf("health status = %d", healthResp.Code)
	}
}

func TestAuthRequiredWithoutMiddlewareFailsClosed(t *testing.T) {
	h := NewHandler(loadConfig(t, map[string]string{"ASKDB_AUTH_REQUIRED": "true"}), Dependencies{Pipeline: &fakePipeline{}})

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/tables", nil))
	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d", rr.Code)
	}
}

func TestErrorBodyCarriesTraceID(t *testing.T) {
	h := NewHandler(loadConfig(t, nil), Dependencies{Pipeline: &fakePipeline{}})

	req := jsonRequest(http.MethodPost, "/api/query", `{}`)
	req.Header.Set("X-Trace-ID", "trace-123")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	if decodeBody(t, rr)["trace_id"] != "trace-123" {
		t.Fatalf("body = %s", rr.Body.String())
	}
}

func TestCombineReadinessChecksStopsOnFirstFailure(t *testing.T) {
	order := make([]int, 0, 3)
	combined := CombineReadinessChecks(
		func(_ context.Context) error {
			order = append(order, 1)
			return nil
		},
		nil,
		func(_ context.Context) error {
			order = append(order, 2)
			return errors.New("boom")
		},
		func(_ context.Context) error {
			order = append(order, 3)
			return nil
		},
	)

	err := combined(context.Background())
	if err == nil {
		t.Fatal("expected error")
	}
	if len(order) != 2 || order[0] != 1 || order[1] != 2 {
		t.Fatalf("execution order = %#v", order)
	}
}

func loadConfig(t *testing.T, env map[string]string) config.Config {
	t.Helper()
	if env == nil {
		env = map[string]string{}
	}
	cfg, err := config.Load("askdb-api", mapLookup(env))
	if err != nil {
		t.Fatalf("config load failed: %v", err)
	}
	return cfg
}

func jsonRequest(method, target, body string) *http.Request {
	req := httptest.NewRequest(method, target, bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func decodeBody(t *testing.T, rr *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body %q: %v", rr.Body.String(), err)
	}
	return body
}

func mapLookup(values map[string]string) config.LookupFunc {
	return func(key string) (string, bool) {
		value, ok := values[key]
		return value, ok
	}
}
