package middleware

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/render"

	"github.com/hitoshi/catalyst/internal/model"
)

// ErrorResponseBody はAPIエラーレスポンスの統一フォーマット {error:{code,message}}。
type ErrorResponseBody struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail はエラーの詳細。
type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// WriteError はエラーを統一フォーマットのHTTPレスポンスに変換して書き込む。
// model.APIError以外のエラーは内容をログのみに記録し、汎用の500を返す。
func WriteError(w http.ResponseWriter, r *http.Request, err error) {
	var apiErr *model.APIError
	if !errors.As(err, &apiErr) || apiErr.Status == 0 {
		slog.Error("unhandled error",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.String("error", err.Error()),
		)
		apiErr = model.NewInternalError()
	}
	WriteAPIError(w, r, apiErr)
}

// WriteAPIError はAPIErrorをそのままレスポンスに書き込む。
func WriteAPIError(w http.ResponseWriter, r *http.Request, apiErr *model.APIError) {
	render.Status(r, apiErr.Status)
	render.JSON(w, r, ErrorResponseBody{
		Error: ErrorDetail{Code: apiErr.Code, Message: apiErr.Message},
	})
}
