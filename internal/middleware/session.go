// Package middleware はHTTPミドルウェアを提供する。
package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/hitoshi/catalyst/internal/model"
)

// contextKey はコンテキストに値を格納するための型安全なキー。
type contextKey string

// accountContextKey はリクエストコンテキストに認証済みアカウントを格納するためのキー。
var accountContextKey = contextKey("account")

// sessionTokenContextKey はリクエストコンテキストに生トークンを格納するためのキー。ログアウトで使う。
var sessionTokenContextKey = contextKey("session_token")

// SessionValidator はセッショントークンの検証に必要なインターフェース。
type SessionValidator interface {
	Validate(ctx context.Context, token string) (*model.Account, error)
}

// NewSessionMiddleware はCookie（またはAuthorization: Bearer）からセッショントークンを読み取り、
// 有効性を検証するミドルウェアを返す。
// 認証済みアカウントをリクエストコンテキストに注入する。
// 未認証リクエストには401 UNAUTHORIZEDを返す。
func NewSessionMiddleware(validator SessionValidator, cookieName string) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := TokenFromRequest(r, cookieName)
			if token == "" {
				WriteError(w, r, model.NewUnauthorizedError())
				return
			}

			account, err := validator.Validate(r.Context(), token)
			if err != nil {
				WriteError(w, r, err)
				return
			}

			next.ServeHTTP(w, r.WithContext(withSession(r.Context(), account, token)))
		})
	}
}

// NewOptionalSessionMiddleware は有効なセッションがあればアカウントを注入し、なければそのまま通すミドルウェアを返す。
func NewOptionalSessionMiddleware(validator SessionValidator, cookieName string) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := TokenFromRequest(r, cookieName)
			if token == "" {
				next.ServeHTTP(w, r)
				return
			}

			account, err := validator.Validate(r.Context(), token)
			if errors.Is(err, model.ErrUnauthorized) {
				next.ServeHTTP(w, r)
				return
			}
			if err != nil {
				WriteError(w, r, err)
				return
			}

			next.ServeHTTP(w, r.WithContext(withSession(r.Context(), account, token)))
		})
	}
}

// TokenFromRequest はCookieまたはAuthorizationヘッダーからセッショントークンを取り出す。
// Cookieを優先する。
func TokenFromRequest(r *http.Request, cookieName string) string {
	if cookie, err := r.Cookie(cookieName); err == nil && cookie.Value != "" {
		return cookie.Value
	}
	if scheme, token, ok := strings.Cut(r.Header.Get("Authorization"), " "); ok && strings.EqualFold(scheme, "Bearer") {
		return strings.TrimSpace(token)
	}
	return ""
}

// AccountFromContext はリクエストコンテキストから認証済みアカウントを取得する。
// セッションミドルウェアを通過したリクエストでのみ有効。
func AccountFromContext(ctx context.Context) (*model.Account, bool) {
	account, ok := ctx.Value(accountContextKey).(*model.Account)
	return account, ok && account != nil
}

// SessionTokenFromContext はリクエストコンテキストから生トークンを取得する。
func SessionTokenFromContext(ctx context.Context) string {
	token, _ := ctx.Value(sessionTokenContextKey).(string)
	return token
}

// ContextWithAccount はコンテキストにアカウントを注入する。
// テストやミドルウェア以外のコンテキスト生成で使用する。
func ContextWithAccount(ctx context.Context, account *model.Account) context.Context {
	return context.WithValue(ctx, accountContextKey, account)
}

func withSession(ctx context.Context, account *model.Account, token string) context.Context {
	setLoggedAccount(ctx, account.ID)
	ctx = context.WithValue(ctx, accountContextKey, account)
	return context.WithValue(ctx, sessionTokenContextKey, token)
}
