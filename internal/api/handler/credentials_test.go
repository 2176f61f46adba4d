package handler_test

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/kiranshivaraju/scanhunter/internal/api/handler"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func credentialRouter(admin *fakeCredAdmin) http.Handler {
	r := chi.NewRouter()
	r.Put("/api/v1/credentials/{name}", handler.NewPutCredentialHandler(admin))
	r.Get("/api/v1/credentials", handler.NewListCredentialsHandler(admin))
	r.Delete("/api/v1/credentials/{name}", handler.NewDeleteCredentialHandler(admin))
	return r
}

func do(h http.Handler, method, target, body string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(method, target, strings.NewReader(body)))
	return rec
}

func TestPutCredential(t *testing.T) {
	admin := newFakeCredAdmin()
	r := credentialRouter(admin)

	rec := do(r, http.MethodPut, "/api/v1/credentials/github_token", `{"value":"ghs_abc"}`)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "ghs_abc", admin.values["github_token"])
}

func TestPutCredential_Invalid(t *testing.T) {
	tests := []struct {
		name   string
		target string
		body   string
	}{
		{"bad name", "/api/v1/credentials/GitHub-Token", `{"value":"x"}`},
		{"bad json", "/api/v1/credentials/github_token", `{`},
		{"empty value", "/api/v1/credentials/github_token", `{"value":""}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			admin := newFakeCredAdmin()
			rec := do(credentialRouter(admin), http.MethodPut, tt.target, tt.body)

			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Empty(t, admin.values)
		})
	}
}

func TestPutCredential_StoreError(t *testing.T) {
	admin := newFakeCredAdmin()
	admin.err = errBoom

	rec := do(credentialRouter(admin), http.MethodPut, "/api/v1/credentials/github_token", `{"value":"ghs_abc"}`)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), "ghs_abc")
}

func TestListCredentials_NamesOnly(t *testing.T) {
	admin := newFakeCredAdmin()
	admin.values["github_token"] = "ghs_secret_value"
	r := credentialRouter(admin)

	rec := do(r, http.MethodGet, "/api/v1/credentials", "")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"names":["github_token"]}`, string(decode(t, rec).Data))
	assert.NotContains(t, rec.Body.String(), "ghs_secret_value")
}

func TestListCredentials_Empty(t *testing.T) {
	rec := do(credentialRouter(newFakeCredAdmin()), http.MethodGet, "/api/v1/credentials", "")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"names":[]}`, string(decode(t, rec).Data))
}

func TestDeleteCredential(t *testing.T) {
	admin := newFakeCredAdmin()
	admin.values["alert_webhook_url"] = "https://hooks.example.com"
	r := credentialRouter(admin)

	rec := do(r, http.MethodDelete, "/api/v1/credentials/alert_webhook_url", "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Empty(t, admin.values)

	rec = do(r, http.MethodDelete, "/api/v1/credentials/alert_webhook_url", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "CREDENTIAL_NOT_FOUND", decode(t, rec).Error.Code)
}
