/*
handlers.go - HTTP API handlers for scheme costing

PURPOSE:
  A thin projection of the batch runner over HTTP, plus the maintenance
  endpoints around it (scheme documents, demo data, cache).

ENDPOINTS:
  Costing:
    POST   /api/costing/batch                       Run many requests
    GET    /api/costing/{schemeID}                  Run one request
    GET    /api/costing/{schemeID}/export.xlsx      Download (or upload) a workbook

  Schemes:
    GET    /api/schemes/{schemeID}                  Normalised stored document
    PUT    /api/schemes/{schemeID}                  Validate and store a document

  Admin:
    GET    /api/admin/cache                         Cache statistics
    DELETE /api/admin/cache/{schemeID}              Drop a cached frame
    POST   /api/scenarios/demo                      Load the demo data set

ERROR HANDLING:
  The batch endpoint always answers 200: failures are per-request records.
  Single-request endpoints map the error kind to a status:
  - 400: ConfigMalformed, InvalidRequest
  - 404: ConfigNotFound
  - 502: LoadError
  - 504: Timeout
  - 500: InternalArithmetic

SEE ALSO:
  - server.go: router setup and middleware
  - batch/request.go: request and response contract
*/
package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/sirupsen/logrus"

	"github.com/warp/scheme-engine/batch"
	"github.com/warp/scheme-engine/export"
	"github.com/warp/scheme-engine/factory"
	"github.com/warp/scheme-engine/scheme"
	"github.com/warp/scheme-engine/store/seed"
)

const maxBodyBytes = 4 << 20

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds the dependencies of every endpoint.
type Handler struct {
	Runner  *batch.Runner
	Store   scheme.ReadWriter
	Factory *factory.SchemeFactory
	// Sink is optional; without it export uploads answer 501.
	Sink *export.S3Sink
	Log  *logrus.Entry
}

// NewHandler creates a handler.
func NewHandler(runner *batch.Runner, store scheme.ReadWriter, sink *export.S3Sink, log *logrus.Entry) *Handler {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Handler{
		Runner:  runner,
		Store:   store,
		Factory: factory.NewSchemeFactory(),
		Sink:    sink,
		Log:     log.WithField("component", "api"),
	}
}

// =============================================================================
// COSTING ENDPOINTS
// =============================================================================

// RunBatch executes a list of costing requests.
// POST /api/costing/batch
func (h *Handler) RunBatch(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Failed to read body", err)
		return
	}
	reqs, err := decodeBatch(body)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON", err)
		return
	}

	start := time.Now()
	results := h.Runner.RunBatch(r.Context(), reqs)

	resp := BatchResponse{Results: results, ExecutionTimeS: time.Since(start).Seconds()}
	for _, res := range results {
		if res.Success {
			resp.Succeeded++
		} else {
			resp.Failed++
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

func decodeBatch(body []byte) ([]batch.Request, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		var reqs []batch.Request
		if err := json.Unmarshal(trimmed, &reqs); err != nil {
			return nil, err
		}
		return reqs, nil
	}
	var br BatchRequest
	if err := json.Unmarshal(trimmed, &br); err != nil {
		return nil, err
	}
	return br.Requests, nil
}

// GetCosting runs one request described by the path and query.
// GET /api/costing/{schemeID}?calculation_type=main_value&scheme_index=0
func (h *Handler) GetCosting(w http.ResponseWriter, r *http.Request) {
	req, err := requestFromQuery(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid query", err)
		return
	}

	resp := h.Runner.Run(r.Context(), req)
	if !resp.Success {
		writeJSON(w, statusFor(resp.ErrorKind), resp)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// ExportCosting renders one request as a workbook. With ?upload=true the
// workbook goes to the configured bucket instead.
// GET /api/costing/{schemeID}/export.xlsx
func (h *Handler) ExportCosting(w http.ResponseWriter, r *http.Request) {
	req, err := requestFromQuery(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid query", err)
		return
	}

	resp := h.Runner.Run(r.Context(), req)
	if !resp.Success {
		writeJSON(w, statusFor(resp.ErrorKind), resp)
		return
	}
	if resp.Table == nil {
		writeError(w, http.StatusNotFound, "No sales match the scheme filters", nil)
		return
	}

	filename := fmt.Sprintf("%s_%s.xlsx", req.SchemeID, req.CalculationType)

	if upload, _ := strconv.ParseBool(r.URL.Query().Get("upload")); upload {
		if h.Sink == nil {
			writeError(w, http.StatusNotImplemented, "Export bucket not configured", nil)
			return
		}
		key, err := h.Sink.Put(r.Context(), req.SchemeID+"/"+filename, resp.Table)
		if err != nil {
			h.Log.WithError(err).WithField("scheme_id", req.SchemeID).Error("export upload failed")
			writeError(w, http.StatusBadGateway, "Failed to upload export", err)
			return
		}
		writeJSON(w, http.StatusCreated, ExportUploadResponse{Bucket: h.Sink.Bucket, Key: key})
		return
	}

	body, err := export.XLSX(resp.Table, "")
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to render export", err)
		return
	}
	w.Header().Set("Content-Type", export.ContentType)
	w.Header().Set("Content-Disposition", "attachment; filename="+filename)
	w.WriteHeader(http.StatusOK)
	w.Write(body)
}

func requestFromQuery(r *http.Request) (batch.Request, error) {
	q := r.URL.Query()
	req := batch.Request{
		SchemeID:        chi.URLParam(r, "schemeID"),
		CalculationType: batch.CalculationType(q.Get("calculation_type")),
	}
	if req.CalculationType == "" {
		req.CalculationType = batch.MainValue
	}
	if s := q.Get("scheme_index"); s != "" {
		i, err := strconv.Atoi(s)
		if err != nil {
			return req, fmt.Errorf("scheme_index: %w", err)
		}
		req.SchemeIndex = &i
	}
	if s := q.Get("timeout_s"); s != "" {
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return req, fmt.Errorf("timeout_s: %w", err)
		}
		req.TimeoutS = f
	}
	return req, nil
}

func statusFor(kind scheme.ErrorKind) int {
	switch kind {
	case scheme.KindConfigNotFound:
		return http.StatusNotFound
	case scheme.KindConfigMalformed, scheme.KindInvalidRequest:
		return http.StatusBadRequest
	case scheme.KindLoadError:
		return http.StatusBadGateway
	case scheme.KindTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// =============================================================================
// SCHEME ENDPOINTS
// =============================================================================

// GetScheme returns the stored document re-serialised in normal form.
// GET /api/schemes/{schemeID}
func (h *Handler) GetScheme(w http.ResponseWriter, r *http.Request) {
	schemeID := chi.URLParam(r, "schemeID")

	doc, err := h.Store.GetScheme(r.Context(), schemeID)
	if err != nil {
		if scheme.IsNotFound(err) {
			writeError(w, http.StatusNotFound, "Scheme not found", err)
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to get scheme", err)
		return
	}
	cfg, err := h.Factory.Parse(schemeID, doc)
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, "Stored scheme is malformed", err)
		return
	}
	writeJSON(w, http.StatusOK, factory.ToDocument(cfg))
}

// PutScheme validates and stores a document, then drops any cached frame.
// PUT /api/schemes/{schemeID}
func (h *Handler) PutScheme(w http.ResponseWriter, r *http.Request) {
	schemeID := chi.URLParam(r, "schemeID")
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Failed to read body", err)
		return
	}

	cfg, err := h.Factory.Parse(schemeID, body)
	if err != nil {
		var me *scheme.MalformedError
		if errors.As(err, &me) {
			writeJSON(w, http.StatusBadRequest, ErrorResponse{
				Error:   "Malformed scheme",
				Code:    string(scheme.KindConfigMalformed),
				Details: map[string]string{"field": me.Field, "reason": me.Reason},
			})
			return
		}
		writeError(w, http.StatusBadRequest, "Invalid scheme", err)
		return
	}

	if err := h.Store.SaveScheme(r.Context(), schemeID, body); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to save scheme", err)
		return
	}
	_, cached := h.Runner.Cache().Get(schemeID)
	h.Runner.Cache().Invalidate(schemeID)

	writeJSON(w, http.StatusOK, SchemeSavedResponse{
		SchemeID:    schemeID,
		Additional:  len(cfg.Additional),
		Invalidated: cached,
	})
}

// =============================================================================
// ADMIN ENDPOINTS
// =============================================================================

// CacheStats reports the frame cache.
// GET /api/admin/cache
func (h *Handler) CacheStats(w http.ResponseWriter, r *http.Request) {
	c := h.Runner.Cache()
	writeJSON(w, http.StatusOK, CacheStatsResponse{Entries: c.Len(), Stats: c.Stats()})
}

// InvalidateCache drops one scheme's cached frame.
// DELETE /api/admin/cache/{schemeID}
func (h *Handler) InvalidateCache(w http.ResponseWriter, r *http.Request) {
	h.Runner.Cache().Invalidate(chi.URLParam(r, "schemeID"))
	w.WriteHeader(http.StatusNoContent)
}

// LoadDemo writes the demo data set.
// POST /api/scenarios/demo
func (h *Handler) LoadDemo(w http.ResponseWriter, r *http.Request) {
	if err := seed.Demo(r.Context(), h.Store); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to load demo data", err)
		return
	}
	h.Runner.Cache().Invalidate(seed.DemoSchemeID)
	writeJSON(w, http.StatusOK, map[string]string{"scheme_id": seed.DemoSchemeID})
}

// Health answers liveness probes.
// GET /healthz
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// =============================================================================
// HELPERS
// =============================================================================

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}
