/*
handlers_test.go - Unit tests for API handlers

Tests for:
- Costing endpoints (batch, single, export)
- Scheme document upload and cache invalidation
- Admin endpoints and the cache warmer
*/
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/warp/scheme-engine/batch"
	"github.com/warp/scheme-engine/cache"
	"github.com/warp/scheme-engine/export"
	"github.com/warp/scheme-engine/loader"
	"github.com/warp/scheme-engine/scheme"
	"github.com/warp/scheme-engine/store/memory"
	"github.com/warp/scheme-engine/store/seed"
)

type testServer struct {
	handler *Handler
	router  http.Handler
	store   *memory.Store
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	st := memory.New()
	require.NoError(t, seed.Demo(context.Background(), st))
	frames := cache.New(loader.New(st, nil), cache.Options{})
	runner := batch.NewRunner(frames, st, batch.Options{Workers: 2})
	h := NewHandler(runner, st, nil, nil)
	return &testServer{handler: h, router: NewRouter(h, nil), store: st}
}

func (s *testServer) do(t *testing.T, method, path string, body string) *httptest.ResponseRecorder {
	t.Helper()
	var rd io.Reader
	if body != "" {
		rd = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, rd)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

type tableJSON struct {
	Columns []string         `json:"columns"`
	Rows    []map[string]any `json:"rows"`
}

type costingJSON struct {
	Success     bool             `json:"success"`
	RecordCount int              `json:"record_count"`
	ErrorKind   scheme.ErrorKind `json:"error_kind"`
	Data        tableJSON        `json:"data"`
}

// =============================================================================
// COSTING
// =============================================================================

func TestGetCosting_MainVolume(t *testing.T) {
	// GIVEN: The demo scheme
	s := newTestServer(t)

	// WHEN: Requesting the main volume costing
	rec := s.do(t, http.MethodGet, "/api/costing/"+seed.DemoSchemeID+"?calculation_type=main_volume", "")

	// THEN: Two accounts and the GRAND TOTAL come back
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	resp := decode[costingJSON](t, rec)
	assert.True(t, resp.Success)
	assert.Equal(t, 2, resp.RecordCount)
	require.Len(t, resp.Data.Rows, 3)
	assert.Equal(t, "A100", resp.Data.Rows[0]["Credit Account"])
	assert.Equal(t, float64(300), resp.Data.Rows[0]["Total Payout"])
	assert.Equal(t, float64(4200), resp.Data.Rows[2]["Total Payout"])
}

func TestGetCosting_ErrorStatus(t *testing.T) {
	tests := []struct {
		name   string
		path   string
		status int
		kind   scheme.ErrorKind
	}{
		{"unknown scheme", "/api/costing/NOPE", http.StatusNotFound, scheme.KindConfigNotFound},
		{"unknown type", "/api/costing/" + seed.DemoSchemeID + "?calculation_type=weekly", http.StatusBadRequest, scheme.KindInvalidRequest},
		{"index out of range", "/api/costing/" + seed.DemoSchemeID + "?calculation_type=additional_value&scheme_index=5", http.StatusBadRequest, scheme.KindInvalidRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestServer(t)

			rec := s.do(t, http.MethodGet, tt.path, "")

			assert.Equal(t, tt.status, rec.Code)
			resp := decode[costingJSON](t, rec)
			assert.False(t, resp.Success)
			assert.Equal(t, tt.kind, resp.ErrorKind)
		})
	}
}

func TestGetCosting_BadQuery(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodGet, "/api/costing/"+seed.DemoSchemeID+"?scheme_index=first", "")

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Invalid query", decode[ErrorResponse](t, rec).Error)
}

func TestRunBatch_ArrayBody(t *testing.T) {
	// GIVEN: One valid and one invalid request
	s := newTestServer(t)
	body := `[
		{"scheme_id": "` + seed.DemoSchemeID + `", "calculation_type": "summary_main_volume"},
		{"scheme_id": "NOPE", "calculation_type": "main_value"}
	]`

	// WHEN: Posting the batch
	rec := s.do(t, http.MethodPost, "/api/costing/batch", body)

	// THEN: The batch succeeds as a whole with per-request outcomes in order
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var resp struct {
		Results   []costingJSON `json:"results"`
		Succeeded int           `json:"succeeded"`
		Failed    int           `json:"failed"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Results, 2)
	assert.Equal(t, 1, resp.Succeeded)
	assert.Equal(t, 1, resp.Failed)
	assert.True(t, resp.Results[0].Success)
	assert.Equal(t, 0, resp.Results[0].RecordCount)
	assert.Equal(t, scheme.KindConfigNotFound, resp.Results[1].ErrorKind)
}

func TestRunBatch_ObjectBody(t *testing.T) {
	s := newTestServer(t)
	body := `{"requests": [{"scheme_id": "` + seed.DemoSchemeID + `", "calculation_type": "additional_volume", "scheme_index": 0}]}`

	rec := s.do(t, http.MethodPost, "/api/costing/batch", body)

	require.Equal(t, http.StatusOK, rec.Code)
	resp := decode[BatchResponse](t, rec)
	require.Len(t, resp.Results, 1)
	assert.True(t, resp.Results[0].Success, resp.Results[0].Detail)
	assert.Equal(t, 1, resp.Results[0].RecordCount)
}

func TestRunBatch_InvalidJSON(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodPost, "/api/costing/batch", `[{"scheme_id":`)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

// =============================================================================
// EXPORT
// =============================================================================

func TestExportCosting_Download(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodGet, "/api/costing/"+seed.DemoSchemeID+"/export.xlsx?calculation_type=main_volume", "")

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, export.ContentType, rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Header().Get("Content-Disposition"), seed.DemoSchemeID+"_main_volume.xlsx")

	f, err := excelize.OpenReader(bytes.NewReader(rec.Body.Bytes()))
	require.NoError(t, err)
	defer f.Close()
	rows, err := f.GetRows(export.DefaultSheet)
	require.NoError(t, err)
	assert.Len(t, rows, 4)
}

type capturePutter struct {
	key string
}

func (c *capturePutter) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	c.key = aws.ToString(in.Key)
	return &s3.PutObjectOutput{}, nil
}

func TestExportCosting_Upload(t *testing.T) {
	// GIVEN: No bucket configured
	s := newTestServer(t)
	path := "/api/costing/" + seed.DemoSchemeID + "/export.xlsx?upload=true"

	// THEN: Upload is not available
	rec := s.do(t, http.MethodGet, path, "")
	assert.Equal(t, http.StatusNotImplemented, rec.Code)

	// GIVEN: A bucket sink
	putter := &capturePutter{}
	s.handler.Sink = &export.S3Sink{Client: putter, Bucket: "exports", Prefix: "costing"}

	// WHEN: Uploading
	rec = s.do(t, http.MethodGet, path, "")

	// THEN: The object key is reported
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	resp := decode[ExportUploadResponse](t, rec)
	assert.Equal(t, "exports", resp.Bucket)
	assert.Equal(t, "costing/"+seed.DemoSchemeID+"/"+seed.DemoSchemeID+"_main_value.xlsx", resp.Key)
	assert.Equal(t, resp.Key, putter.key)
}

// =============================================================================
// SCHEMES
// =============================================================================

func TestPutScheme_Malformed(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodPut, "/api/schemes/BAD", `{"scheme_id": "BAD"}`)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	resp := decode[ErrorResponse](t, rec)
	assert.Equal(t, string(scheme.KindConfigMalformed), resp.Code)
	details, ok := resp.Details.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "main", details["field"])

	_, err := s.store.GetScheme(context.Background(), "BAD")
	assert.ErrorIs(t, err, scheme.ErrConfigNotFound)
}

func TestPutScheme_InvalidatesCache(t *testing.T) {
	// GIVEN: A cached costing of the demo scheme
	s := newTestServer(t)
	rec := s.do(t, http.MethodGet, "/api/costing/"+seed.DemoSchemeID, "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, 1, s.handler.Runner.Cache().Len())

	// WHEN: Replacing the document with one that pays 10 per unit on every slab
	doc := `{
	  "applicable": {"states": ["Kerala"]},
	  "main": {
	    "scheme_base": "volume",
	    "base_periods": [{"from": "2024-03-31", "to": "2024-06-29"}],
	    "scheme_period": {"from": "2025-03-31", "to": "2025-06-29"},
	    "slabs": [{"slab_start": 0, "rebate_per_litre": 10}],
	    "products": {"categories": ["Emulsion"]}
	  }
	}`
	rec = s.do(t, http.MethodPut, "/api/schemes/"+seed.DemoSchemeID, doc)

	// THEN: The cached frame is dropped and the next costing uses the new slabs
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	saved := decode[SchemeSavedResponse](t, rec)
	assert.True(t, saved.Invalidated)
	assert.Equal(t, 0, saved.Additional)
	assert.Equal(t, 0, s.handler.Runner.Cache().Len())

	rec = s.do(t, http.MethodGet, "/api/costing/"+seed.DemoSchemeID+"?calculation_type=main_volume", "")
	require.Equal(t, http.StatusOK, rec.Code)
	resp := decode[costingJSON](t, rec)
	assert.Equal(t, float64(1500), resp.Data.Rows[0]["Total Payout"])
}

func TestGetScheme(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodGet, "/api/schemes/"+seed.DemoSchemeID, "")

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var doc map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &doc))
	assert.Equal(t, seed.DemoSchemeID, doc["scheme_id"])
	assert.Contains(t, doc, "main")
	assert.Len(t, doc["additional"], 1)

	rec = s.do(t, http.MethodGet, "/api/schemes/NOPE", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

// =============================================================================
// ADMIN
// =============================================================================

func TestCacheEndpoints(t *testing.T) {
	s := newTestServer(t)
	s.do(t, http.MethodGet, "/api/costing/"+seed.DemoSchemeID, "")
	s.do(t, http.MethodGet, "/api/costing/"+seed.DemoSchemeID, "")

	rec := s.do(t, http.MethodGet, "/api/admin/cache", "")
	require.Equal(t, http.StatusOK, rec.Code)
	stats := decode[CacheStatsResponse](t, rec)
	assert.Equal(t, 1, stats.Entries)
	assert.Equal(t, int64(1), stats.Hits)
	assert.Equal(t, int64(1), stats.Misses)

	rec = s.do(t, http.MethodDelete, "/api/admin/cache/"+seed.DemoSchemeID, "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, 0, s.handler.Runner.Cache().Len())
}

func TestLoadDemo(t *testing.T) {
	// GIVEN: An empty store
	st := memory.New()
	frames := cache.New(loader.New(st, nil), cache.Options{})
	h := NewHandler(batch.NewRunner(frames, st, batch.Options{}), st, nil, nil)
	router := NewRouter(h, []string{"http://localhost:3000"})

	// WHEN: Loading the demo data
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/scenarios/demo", nil))

	// THEN: The demo scheme is available
	require.Equal(t, http.StatusOK, rec.Code)
	_, err := st.GetScheme(context.Background(), seed.DemoSchemeID)
	assert.NoError(t, err)
}

func TestHealth(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodGet, "/healthz", "")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestCacheWarmer_RunNow(t *testing.T) {
	// GIVEN: A warmer for the demo scheme and an unknown one
	s := newTestServer(t)
	w := NewCacheWarmer(s.handler.Runner.Cache(), []string{seed.DemoSchemeID, "NOPE"}, nil)

	// WHEN: Running two passes
	first := w.RunNow()
	second := w.RunNow()

	// THEN: The demo frame loads once; the unknown scheme is skipped quietly
	assert.Equal(t, 1, first)
	assert.Equal(t, 0, second)
	_, ok := s.handler.Runner.Cache().Get(seed.DemoSchemeID)
	assert.True(t, ok)
	assert.Equal(t, 1, s.store.SalesCalls())
}

func TestCacheWarmer_StartStop(t *testing.T) {
	s := newTestServer(t)
	w := NewCacheWarmer(s.handler.Runner.Cache(), []string{seed.DemoSchemeID}, nil)

	w.Start()
	w.Stop()
	w.Stop()

	_, ok := s.handler.Runner.Cache().Get(seed.DemoSchemeID)
	assert.True(t, ok)

	disabled := NewCacheWarmer(s.handler.Runner.Cache(), nil, nil)
	assert.False(t, disabled.Enabled)
	disabled.Start()
	disabled.Stop()
}
