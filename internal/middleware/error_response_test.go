package middleware

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/hitoshi/catalyst/internal/model"
)

// TestWriteError_APIError は統一エラーフォーマットとステータスが書き込まれることを検証する。
func TestWriteError_APIError(t *testing.T) {
	tests := []struct {
		err        error
		wantStatus int
		wantCode   string
	}{
		{model.NewEmailTakenError(), http.StatusConflict, "EMAIL_TAKEN"},
		{model.NewInvalidCredentialsError(), http.StatusUnauthorized, "INVALID_CREDENTIALS"},
		{model.NewUnauthorizedError(), http.StatusUnauthorized, "UNAUTHORIZED"},
		{model.NewInvalidOrExpiredStateError(), http.StatusBadRequest, "INVALID_OR_EXPIRED_STATE"},
		{model.NewAuthFailedError(), http.StatusUnauthorized, "AUTH_FAILED"},
		{model.NewMalformedAssertionError(), http.StatusBadRequest, "MALFORMED_ASSERTION"},
		{model.NewExternalIdentityTakenError(), http.StatusConflict, "EXTERNAL_IDENTITY_TAKEN"},
		{model.NewAccountNotFoundError(), http.StatusNotFound, "ACCOUNT_NOT_FOUND"},
		{model.NewUpstreamProviderError(), http.StatusBadGateway, "UPSTREAM_PROVIDER_ERROR"},
		{model.NewMissingConfigurationError("STEAM_API_KEY"), http.StatusInternalServerError, "MISSING_CONFIGURATION"},
		{fmt.Errorf("wrapped: %w", model.NewSteamNotLinkedError()), http.StatusConflict, "STEAM_NOT_LINKED"},
	}
	for _, tt := range tests {
		t.Run(tt.wantCode, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			w := httptest.NewRecorder()
			WriteError(w, req, tt.err)

			if w.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", w.Code, tt.wantStatus)
			}
			if ct := w.Header().Get("Content-Type"); !strings.HasPrefix(ct, "application/json") {
				t.Errorf("Content-Type = %q", ct)
			}
			var body ErrorResponseBody
			if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
				t.Fatalf("failed to decode body: %v", err)
			}
			if body.Error.Code != tt.wantCode {
				t.Errorf("code = %q, want %q", body.Error.Code, tt.wantCode)
			}
			if body.Error.Message == "" {
				t.Error("message should not be empty")
			}
		})
	}
}

// TestWriteError_UnclassifiedHidesDetails は分類されないエラーの詳細がクライアントに返らないことを検証する。
func TestWriteError_UnclassifiedHidesDetails(t *testing.T) {
	var buf bytes.Buffer
	prev := slog.Default()
	slog.SetDefault(slog.New(slog.NewJSONHandler(&buf, nil)))
	defer slog.SetDefault(prev)

	req := httptest.NewRequest(http.MethodPost, "/auth/login", nil)
	w := httptest.NewRecorder()
	WriteError(w, req, errors.New("pq: password authentication failed for user catalyst"))

	if w.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", w.Code)
	}
	if strings.Contains(w.Body.String(), "pq:") {
		t.Errorf("internal details leaked: %s", w.Body.String())
	}
	var body ErrorResponseBody
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("failed to decode body: %v", err)
	}
	if body.Error.Code != model.ErrCodeInternal {
		t.Errorf("code = %q, want %q", body.Error.Code, model.ErrCodeInternal)
	}
	if !strings.Contains(buf.String(), "password authentication failed") {
		t.Error("internal error should be logged server-side")
	}
}

// TestRecoveryMiddleware_Returns500 はpanicが500レスポンスに変換されることを検証する。
func TestRecoveryMiddleware_Returns500(t *testing.T) {
	var buf bytes.Buffer
	prev := slog.Default()
	slog.SetDefault(slog.New(slog.NewJSONHandler(&buf, nil)))
	defer slog.SetDefault(prev)

	handler := NewRecoveryMiddleware()(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))

	if w.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", w.Code)
	}
	if !strings.Contains(buf.String(), "panic recovered") {
		t.Error("panic should be logged")
	}
}

// TestSecurityHeadersMiddleware はセキュリティヘッダーが付与されることを検証する。
func TestSecurityHeadersMiddleware(t *testing.T) {
	handler := NewSecurityHeadersMiddleware()(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))

	want := map[string]string{
		"X-Content-Type-Options": "nosniff",
		"X-Frame-Options":        "DENY",
		"Cache-Control":          "no-store",
	}
	for k, v := range want {
		if got := w.Header().Get(k); got != v {
			t.Errorf("%s = %q, want %q", k, got, v)
		}
	}
}
