/*
dto.go - Data Transfer Objects for API requests and responses

NAMING CONVENTION:
  - *Request: request body types from clients
  - *Response: response wrappers

Costing requests and responses are batch.Request and batch.Response
directly; the batch package owns that contract.
*/
package api

import (
	"github.com/warp/scheme-engine/batch"
	"github.com/warp/scheme-engine/cache"
)

// BatchRequest accepts either a bare JSON array of requests or
// {"requests": [...]}.
type BatchRequest struct {
	Requests []batch.Request `json:"requests"`
}

// BatchResponse wraps the per-request results.
type BatchResponse struct {
	Results        []batch.Response `json:"results"`
	Succeeded      int              `json:"succeeded"`
	Failed         int              `json:"failed"`
	ExecutionTimeS float64          `json:"execution_time_s"`
}

// SchemeSavedResponse confirms a stored document.
type SchemeSavedResponse struct {
	SchemeID    string `json:"scheme_id"`
	Additional  int    `json:"additional_schemes"`
	Invalidated bool   `json:"cache_invalidated"`
}

// ExportUploadResponse names the uploaded object.
type ExportUploadResponse struct {
	Bucket string `json:"bucket"`
	Key    string `json:"key"`
}

// CacheStatsResponse reports the frame cache.
type CacheStatsResponse struct {
	Entries int `json:"entries"`
	cache.Stats
}

// ErrorResponse is the standard error response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details any    `json:"details,omitempty"`
}
