package credential

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/hitoshi/catalyst/internal/model"
)

// パスワード長の制約（文字数）
const (
	MinPasswordLength = 8
	MaxPasswordLength = 128
)

var emailFolder = cases.Lower(language.Und)

// NormalizeEmail はメールアドレスを前後空白除去・小文字化し、形式を検証する。
func NormalizeEmail(raw string) (string, error) {
	email := emailFolder.String(strings.TrimSpace(raw))
	if !looksLikeEmail(email) {
		return "", model.NewInvalidInputError("メールアドレスの形式が正しくありません。")
	}
	return email, nil
}

// ValidatePassword はパスワードの長さを検証する。
func ValidatePassword(password string) error {
	n := utf8.RuneCountInString(password)
	if n < MinPasswordLength || n > MaxPasswordLength {
		return model.NewInvalidInputError("パスワードは8文字以上128文字以下で入力してください。")
	}
	return nil
}

// looksLikeEmail は local@domain.tld 形式かを緩く判定する。
func looksLikeEmail(s string) bool {
	if strings.IndexFunc(s, unicode.IsSpace) >= 0 {
		return false
	}
	local, domain, ok := strings.Cut(s, "@")
	if !ok || local == "" || domain == "" || strings.Contains(domain, "@") {
		return false
	}
	if !strings.Contains(domain, ".") {
		return false
	}
	return !strings.HasPrefix(domain, ".") && !strings.HasSuffix(domain, ".")
}
