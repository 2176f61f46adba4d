package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/kiranshivaraju/scanhunter/internal/api/response"
	"github.com/kiranshivaraju/scanhunter/internal/credentials"
	"github.com/kiranshivaraju/scanhunter/internal/store"
)

// CredentialWriter seals and stores a credential value.
type CredentialWriter interface {
	Put(ctx context.Context, name, value string) error
}

// CredentialAdmin lists and removes stored credentials. Values are never read
// back through the API.
type CredentialAdmin interface {
	ListCredentialNames(ctx context.Context) ([]string, error)
	DeleteCredential(ctx context.Context, name string) error
}

// NewPutCredentialHandler returns an http.HandlerFunc for
// PUT /api/v1/credentials/{name}.
func NewPutCredentialHandler(cw CredentialWriter) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		name := chi.URLParam(r, "name")
		if !credentials.ValidName(name) {
			response.Error(w, http.StatusBadRequest, response.CodeInvalidRequest, credentials.ErrInvalidName.Error(), nil)
			return
		}

		var req struct {
			Value string `json:"value"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			response.Error(w, http.StatusBadRequest, response.CodeInvalidRequest, "Invalid JSON body", nil)
			return
		}
		if req.Value == "" {
			response.Error(w, http.StatusBadRequest, response.CodeInvalidRequest, "value is required", nil)
			return
		}

		if err := cw.Put(r.Context(), name, req.Value); err != nil {
			slog.Error("storing credential failed", "name", name, "error", err)
			response.Error(w, http.StatusInternalServerError, response.CodeInternal,
				"An unexpected error occurred", nil)
			return
		}

		slog.Info("credential stored", "name", name)
		w.WriteHeader(http.StatusNoContent)
	}
}

// NewListCredentialsHandler returns an http.HandlerFunc for
// GET /api/v1/credentials.
func NewListCredentialsHandler(admin CredentialAdmin) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		names, err := admin.ListCredentialNames(r.Context())
		if err != nil {
			slog.Error("listing credentials failed", "error", err)
			response.Error(w, http.StatusInternalServerError, response.CodeInternal,
				"An unexpected error occurred", nil)
			return
		}
		if names == nil {
			names = []string{}
		}
		response.JSON(w, map[string]any{"names": names})
	}
}

// NewDeleteCredentialHandler returns an http.HandlerFunc for
// DELETE /api/v1/credentials/{name}.
func NewDeleteCredentialHandler(admin CredentialAdmin) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		name := chi.URLParam(r, "name")

		err := admin.DeleteCredential(r.Context(), name)
		if errors.Is(err, store.ErrNotFound) {
			response.Error(w, http.StatusNotFound, response.CodeCredentialNotFound, "Credential not found", nil)
			return
		}
		if err != nil {
			slog.Error("deleting credential failed", "name", name, "error", err)
			response.Error(w, http.StatusInternalServerError, response.CodeInternal,
				"An unexpected error occurred", nil)
			return
		}

		slog.Info("credential deleted", "name", name)
		w.WriteHeader(http.StatusNoContent)
	}
}
