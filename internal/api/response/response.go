package response

import (
	"encoding/json"
	"log/slog"
	"net/http"
)

// Code is the machine-readable error code carried in an error envelope.
type Code string

// Error codes returned by the API.
const (
	CodeInvalidRequest          Code = "INVALID_REQUEST"
	CodeInvalidToken            Code = "INVALID_TOKEN"
	CodeRateLimitExceeded       Code = "RATE_LIMIT_EXCEEDED"
	CodeInternal                Code = "INTERNAL_ERROR"
	CodeNotImplemented          Code = "NOT_IMPLEMENTED"
	CodeDegraded                Code = "DEGRADED"
	CodeCredentialsUnavailable  Code = "CREDENTIALS_UNAVAILABLE"
	CodeCredentialNotConfigured Code = "CREDENTIAL_NOT_CONFIGURED"
	CodeCredentialNotFound      Code = "CREDENTIAL_NOT_FOUND"
	CodeJobActive               Code = "JOB_ACTIVE"
	CodeJobStoreUnavailable     Code = "JOB_STORE_UNAVAILABLE"
	CodeJobNotFound             Code = "JOB_NOT_FOUND"
	CodeRunNotFound             Code = "RUN_NOT_FOUND"
	CodeReportNotFound          Code = "REPORT_NOT_FOUND"
	CodeArchiveUnavailable      Code = "ARCHIVE_UNAVAILABLE"
)

type envelope struct {
	Data any `json:"data"`
}

type listEnvelope struct {
	Data any      `json:"data"`
	Meta ListMeta `json:"meta"`
}

type errorEnvelope struct {
	Error errorBody `json:"error"`
}

type errorBody struct {
	Code    Code   `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

// ListMeta describes a filtered, newest-first listing. Lists are capped by
// Limit rather than paged.
type ListMeta struct {
	Count   int               `json:"count"`
	Limit   int               `json:"limit,omitempty"`
	Filters map[string]string `json:"filters,omitempty"`
}

func JSON(w http.ResponseWriter, data any) {
	writeJSON(w, http.StatusOK, envelope{Data: data})
}

func Accepted(w http.ResponseWriter, data any) {
	writeJSON(w, http.StatusAccepted, envelope{Data: data})
}

// List writes items with meta. Count is taken from the number of items.
func List[T any](w http.ResponseWriter, items []T, meta ListMeta) {
	if items == nil {
		items = []T{}
	}
	meta.Count = len(items)
	writeJSON(w, http.StatusOK, listEnvelope{Data: items, Meta: meta})
}

func Error(w http.ResponseWriter, status int, code Code, message string, details any) {
	writeJSON(w, status, errorEnvelope{Error: errorBody{
		Code:    code,
		Message: message,
		Details: details,
	}})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("write response body", "error", err)
	}
}
