// Package handler はHTTPハンドラーを提供する。
package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"

	"github.com/go-chi/render"

	"github.com/hitoshi/catalyst/internal/broker"
	"github.com/hitoshi/catalyst/internal/metrics"
	"github.com/hitoshi/catalyst/internal/middleware"
	"github.com/hitoshi/catalyst/internal/model"
)

// AccountService は認証ハンドラーが必要とするアカウント操作のインターフェース。
type AccountService interface {
	CreateAccount(ctx context.Context, email, password string) (*model.Account, error)
	VerifyCredentials(ctx context.Context, email, password string) (*model.Account, error)
}

// SessionService は認証ハンドラーが必要とするセッション操作のインターフェース。
type SessionService interface {
	Issue(ctx context.Context, accountID string) (string, error)
	Revoke(ctx context.Context, token string) error
	SweepIfDue(ctx context.Context)
}

// FederatedLogin はSteamログインのハンドシェイクのインターフェース。
type FederatedLogin interface {
	Start(ctx context.Context, accountID string) (string, error)
	Callback(ctx context.Context, params url.Values) broker.Outcome
}

// CookieConfig はセッションCookieの設定。
type CookieConfig struct {
	Name   string
	Domain string
	Secure bool
	MaxAge int // 秒
}

// AuthHandlerConfig は認証ハンドラーの設定。
type AuthHandlerConfig struct {
	Cookie      CookieConfig
	FrontendURL string // Steam callback後のリダイレクト先
	// AllowAnonymousSteamStart がtrueなら未ログインでもSteamログインを開始できる。
	AllowAnonymousSteamStart bool
}

// AuthHandler は認証関連のHTTPハンドラー。
type AuthHandler struct {
	accounts  AccountService
	sessions  SessionService
	federated FederatedLogin
	metrics   metrics.MetricsCollector
	config    AuthHandlerConfig
}

// NewAuthHandler はAuthHandlerを生成する。
func NewAuthHandler(
	accounts AccountService,
	sessions SessionService,
	federated FederatedLogin,
	collector metrics.MetricsCollector,
	config AuthHandlerConfig,
) *AuthHandler {
	if collector == nil {
		collector = metrics.Nop{}
	}
	return &AuthHandler{
		accounts:  accounts,
		sessions:  sessions,
		federated: federated,
		metrics:   collector,
		config:    config,
	}
}

// credentialsRequest は登録・ログインのリクエストボディ。
type credentialsRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// authorizationURLResponse はSteamログイン開始のレスポンス。
type authorizationURLResponse struct {
	AuthorizationURL string `json:"authorizationUrl"`
}

// Register はメールアドレスとパスワードでアカウントを作成し、セッションを発行する。
// POST /auth/register
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	h.sessions.SweepIfDue(r.Context())

	req, ok := decodeCredentials(w, r)
	if !ok {
		h.metrics.RecordRegistration(model.ErrCodeInvalidInput)
		return
	}

	account, err := h.accounts.CreateAccount(r.Context(), req.Email, req.Password)
	if err != nil {
		h.metrics.RecordRegistration(outcomeOf(err))
		middleware.WriteError(w, r, err)
		return
	}

	if !h.issueSession(w, r, account) {
		return
	}
	h.metrics.RecordRegistration(metrics.OutcomeSuccess)
	writeJSON(w, r, http.StatusCreated, authResponse{User: toUserResponse(account)})
}

// Login はメールアドレスとパスワードを検証し、新しいセッションを発行する。
// POST /auth/login
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	h.sessions.SweepIfDue(r.Context())

	req, ok := decodeCredentials(w, r)
	if !ok {
		h.metrics.RecordLogin(model.ErrCodeInvalidInput)
		return
	}

	account, err := h.accounts.VerifyCredentials(r.Context(), req.Email, req.Password)
	if err != nil {
		h.metrics.RecordLogin(outcomeOf(err))
		middleware.WriteError(w, r, err)
		return
	}

	if !h.issueSession(w, r, account) {
		return
	}
	h.metrics.RecordLogin(metrics.OutcomeSuccess)
	writeJSON(w, r, http.StatusOK, authResponse{User: toUserResponse(account)})
}

// Logout は現在のセッションを破棄し、Cookieをクリアする。
// POST /auth/logout
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	token := middleware.SessionTokenFromContext(r.Context())
	if err := h.sessions.Revoke(r.Context(), token); err != nil {
		middleware.WriteError(w, r, err)
		return
	}
	h.clearSessionCookie(w)
	w.WriteHeader(http.StatusNoContent)
}

// Session は現在のセッションのユーザー情報を返す。
// GET /auth/session
func (h *AuthHandler) Session(w http.ResponseWriter, r *http.Request) {
	h.sessions.SweepIfDue(r.Context())

	account, ok := middleware.AccountFromContext(r.Context())
	if !ok {
		middleware.WriteAPIError(w, r, model.NewUnauthorizedError())
		return
	}
	writeJSON(w, r, http.StatusOK, authResponse{User: toUserResponse(account)})
}

// SteamStart はSteamログインを開始し、認可URLを返す。
// ログイン済みなら完了時にそのアカウントへ連携する。
// GET /auth/steam/start
func (h *AuthHandler) SteamStart(w http.ResponseWriter, r *http.Request) {
	var accountID string
	if account, ok := middleware.AccountFromContext(r.Context()); ok {
		accountID = account.ID
	} else if !h.config.AllowAnonymousSteamStart {
		middleware.WriteAPIError(w, r, model.NewUnauthorizedError())
		return
	}

	authURL, err := h.federated.Start(r.Context(), accountID)
	if err != nil {
		middleware.WriteError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, authorizationURLResponse{AuthorizationURL: authURL})
}

// SteamCallback はSteamからのリダイレクトを処理し、結果をフロントエンドへのリダイレクトで伝える。
// GET /auth/steam/callback
func (h *AuthHandler) SteamCallback(w http.ResponseWriter, r *http.Request) {
	params := url.Values{}
	switch outcome := h.federated.Callback(r.Context(), r.URL.Query()).(type) {
	case broker.Linked:
		h.setSessionCookie(w, outcome.SessionToken)
		params.Set("status", "success")
		params.Set("userId", outcome.Account.ID)
		params.Set("steamId", outcome.ExternalID)
		params.Set("syncedGames", strconv.Itoa(outcome.SyncedCount))
	case broker.Rejected:
		params.Set("status", "error")
		params.Set("message", outcome.Reason.Message)
	default:
		params.Set("status", "error")
		params.Set("message", model.NewInternalError().Message)
	}
	http.Redirect(w, r, h.frontendRedirectURL(params), http.StatusFound)
}

// issueSession はセッションを発行してCookieを設定する。失敗時はエラーレスポンスを書き込みfalseを返す。
func (h *AuthHandler) issueSession(w http.ResponseWriter, r *http.Request, account *model.Account) bool {
	token, err := h.sessions.Issue(r.Context(), account.ID)
	if err != nil {
		middleware.WriteError(w, r, err)
		return false
	}
	h.setSessionCookie(w, token)
	return true
}

func (h *AuthHandler) setSessionCookie(w http.ResponseWriter, token string) {
	http.SetCookie(w, &http.Cookie{
		Name:     h.config.Cookie.Name,
		Value:    token,
		Path:     "/",
		Domain:   h.config.Cookie.Domain,
		MaxAge:   h.config.Cookie.MaxAge,
		HttpOnly: true,
		Secure:   h.config.Cookie.Secure,
		SameSite: http.SameSiteLaxMode,
	})
}

func (h *AuthHandler) clearSessionCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     h.config.Cookie.Name,
		Value:    "",
		Path:     "/",
		Domain:   h.config.Cookie.Domain,
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.config.Cookie.Secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// frontendRedirectURL はFRONTEND_URLに結果のクエリパラメータを付与する。
// FRONTEND_URLに既存のクエリがあれば保持する。
func (h *AuthHandler) frontendRedirectURL(params url.Values) string {
	u, err := url.Parse(h.config.FrontendURL)
	if err != nil {
		slog.Error("invalid frontend url", slog.String("error", err.Error()))
		return "/?" + params.Encode()
	}
	q := u.Query()
	for k, vs := range params {
		q[k] = vs
	}
	u.RawQuery = q.Encode()
	return u.String()
}

// decodeCredentials はリクエストボディを解析する。失敗時はINVALID_INPUTを書き込みfalseを返す。
func decodeCredentials(w http.ResponseWriter, r *http.Request) (credentialsRequest, bool) {
	var req credentialsRequest
	if err := render.DecodeJSON(r.Body, &req); err != nil {
		middleware.WriteAPIError(w, r, model.NewInvalidInputError("リクエストボディの解析に失敗しました。"))
		return req, false
	}
	return req, true
}

// outcomeOf はメトリクスの結果ラベルを返す。
func outcomeOf(err error) string {
	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		return apiErr.Code
	}
	return model.ErrCodeInternal
}
