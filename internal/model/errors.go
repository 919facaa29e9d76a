// Package model はドメインモデルを定義する。
package model

import (
	"fmt"
	"net/http"
)

// APIError は統一エラーフォーマットを表す。
// トランスポート層で {error:{code,message}} とHTTPステータスに変換される。
type APIError struct {
	Code    string // エラーコード
	Message string // ユーザー向けメッセージ
	Status  int    // HTTPステータスコード
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Is はエラーコードが一致する場合にtrueを返す。
// errors.Is(err, model.ErrEmailTaken) のように比較できる。
func (e *APIError) Is(target error) bool {
	t, ok := target.(*APIError)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// 定義済みエラーコード
const (
	ErrCodeEmailTaken            = "EMAIL_TAKEN"
	ErrCodeInvalidCredentials    = "INVALID_CREDENTIALS"
	ErrCodeUnauthorized          = "UNAUTHORIZED"
	ErrCodeInvalidOrExpiredState = "INVALID_OR_EXPIRED_STATE"
	ErrCodeAuthFailed            = "AUTH_FAILED"
	ErrCodeMalformedAssertion    = "MALFORMED_ASSERTION"
	ErrCodeExternalIdentityTaken = "EXTERNAL_IDENTITY_TAKEN"
	ErrCodeAccountNotFound       = "ACCOUNT_NOT_FOUND"
	ErrCodeUpstreamProviderError = "UPSTREAM_PROVIDER_ERROR"
	ErrCodeMissingConfiguration  = "MISSING_CONFIGURATION"
	ErrCodeInvalidInput          = "INVALID_INPUT"
	ErrCodeSteamNotLinked        = "STEAM_NOT_LINKED"
	ErrCodeRateLimited           = "RATE_LIMITED"
	ErrCodeInternal              = "INTERNAL_ERROR"
)

// errors.Is 比較用のセンチネル。メッセージは比較に使われない。
var (
	ErrEmailTaken            = &APIError{Code: ErrCodeEmailTaken}
	ErrInvalidCredentials    = &APIError{Code: ErrCodeInvalidCredentials}
	ErrUnauthorized          = &APIError{Code: ErrCodeUnauthorized}
	ErrInvalidOrExpiredState = &APIError{Code: ErrCodeInvalidOrExpiredState}
	ErrAuthFailed            = &APIError{Code: ErrCodeAuthFailed}
	ErrMalformedAssertion    = &APIError{Code: ErrCodeMalformedAssertion}
	ErrExternalIdentityTaken = &APIError{Code: ErrCodeExternalIdentityTaken}
	ErrAccountNotFound       = &APIError{Code: ErrCodeAccountNotFound}
	ErrUpstreamProvider      = &APIError{Code: ErrCodeUpstreamProviderError}
	ErrMissingConfiguration  = &APIError{Code: ErrCodeMissingConfiguration}
	ErrInvalidInput          = &APIError{Code: ErrCodeInvalidInput}
	ErrSteamNotLinked        = &APIError{Code: ErrCodeSteamNotLinked}
)

// NewEmailTakenError はメールアドレス重複エラーを生成する。
func NewEmailTakenError() *APIError {
	return &APIError{
		Code:    ErrCodeEmailTaken,
		Message: "このメールアドレスは既に使用されています。",
		Status:  http.StatusConflict,
	}
}

// NewInvalidCredentialsError は認証情報不一致エラーを生成する。
// メールアドレス未登録とパスワード誤りを区別しない。
func NewInvalidCredentialsError() *APIError {
	return &APIError{
		Code:    ErrCodeInvalidCredentials,
		Message: "メールアドレスまたはパスワードが正しくありません。",
		Status:  http.StatusUnauthorized,
	}
}

// NewUnauthorizedError は未認証エラーを生成する。
func NewUnauthorizedError() *APIError {
	return &APIError{
		Code:    ErrCodeUnauthorized,
		Message: "ログインが必要です。",
		Status:  http.StatusUnauthorized,
	}
}

// NewInvalidOrExpiredStateError は認可stateが無効または期限切れの場合のエラーを生成する。
func NewInvalidOrExpiredStateError() *APIError {
	return &APIError{
		Code:    ErrCodeInvalidOrExpiredState,
		Message: "ログイン要求が無効か期限切れです。もう一度お試しください。",
		Status:  http.StatusBadRequest,
	}
}

// NewAuthFailedError は外部プロバイダーによる認証拒否エラーを生成する。
func NewAuthFailedError() *APIError {
	return &APIError{
		Code:    ErrCodeAuthFailed,
		Message: "Steamでの認証に失敗しました。",
		Status:  http.StatusUnauthorized,
	}
}

// NewMalformedAssertionError はプロバイダーのアサーションを解釈できない場合のエラーを生成する。
func NewMalformedAssertionError() *APIError {
	return &APIError{
		Code:    ErrCodeMalformedAssertion,
		Message: "Steamから不正な応答を受け取りました。",
		Status:  http.StatusBadRequest,
	}
}

// NewExternalIdentityTakenError は外部IDが別アカウントに紐付け済みの場合のエラーを生成する。
func NewExternalIdentityTakenError() *APIError {
	return &APIError{
		Code:    ErrCodeExternalIdentityTaken,
		Message: "このSteamアカウントは既に別のユーザーに紐付けられています。",
		Status:  http.StatusConflict,
	}
}

// NewAccountNotFoundError はアカウントが見つからない場合のエラーを生成する。
func NewAccountNotFoundError() *APIError {
	return &APIError{
		Code:    ErrCodeAccountNotFound,
		Message: "アカウントが見つかりません。",
		Status:  http.StatusNotFound,
	}
}

// NewUpstreamProviderError は外部プロバイダーとの通信失敗エラーを生成する。
func NewUpstreamProviderError() *APIError {
	return &APIError{
		Code:    ErrCodeUpstreamProviderError,
		Message: "Steamとの通信に失敗しました。しばらく待ってから再度お試しください。",
		Status:  http.StatusBadGateway,
	}
}

// NewMissingConfigurationError は必要な設定が欠けている場合のエラーを生成する。
func NewMissingConfigurationError(name string) *APIError {
	return &APIError{
		Code:    ErrCodeMissingConfiguration,
		Message: fmt.Sprintf("サーバー設定が不足しています: %s", name),
		Status:  http.StatusInternalServerError,
	}
}

// NewInvalidInputError は入力値検証エラーを生成する。
func NewInvalidInputError(reason string) *APIError {
	return &APIError{
		Code:    ErrCodeInvalidInput,
		Message: reason,
		Status:  http.StatusBadRequest,
	}
}

// NewSteamNotLinkedError はSteam未連携のアカウントで同期しようとした場合のエラーを生成する。
func NewSteamNotLinkedError() *APIError {
	return &APIError{
		Code:    ErrCodeSteamNotLinked,
		Message: "Steamアカウントが連携されていません。",
		Status:  http.StatusConflict,
	}
}

// NewRateLimitedError はレート制限超過エラーを生成する。
func NewRateLimitedError() *APIError {
	return &APIError{
		Code:    ErrCodeRateLimited,
		Message: "リクエストが多すぎます。しばらく待ってから再度お試しください。",
		Status:  http.StatusTooManyRequests,
	}
}

// NewInternalError は内部エラーを生成する。詳細はログのみに記録する。
func NewInternalError() *APIError {
	return &APIError{
		Code:    ErrCodeInternal,
		Message: "内部エラーが発生しました。",
		Status:  http.StatusInternalServerError,
	}
}
