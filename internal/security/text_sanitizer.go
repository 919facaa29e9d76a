// Package security はアプリケーションのセキュリティ機能を提供する。
//
// TextSanitizer は外部プロバイダーから受け取った表示用文字列（ゲーム名など）から
// マークアップと制御文字を取り除き、プレーンテキストに正規化する。
package security

import (
	"html"
	"strings"
	"unicode"

	"github.com/microcosm-cc/bluemonday"
)

// TextSanitizer はプレーンテキスト化のインターフェース。
type TextSanitizer interface {
	// SanitizeText は全てのHTMLタグを除去し、実体参照を復元し、
	// 制御文字を除いて連続する空白を1つにまとめた文字列を返す。
	// 結果はHTMLエスケープ済みではないため、表示側でエスケープすること。
	SanitizeText(raw string) string
}

// textSanitizer はTextSanitizerの実装。
// bluemondayのポリシーはスレッドセーフに共有できる。
type textSanitizer struct {
	policy *bluemonday.Policy
}

// NewTextSanitizer はタグを一切許可しないポリシーでTextSanitizerを生成する。
func NewTextSanitizer() TextSanitizer {
	return &textSanitizer{policy: bluemonday.StrictPolicy()}
}

// SanitizeText はrawをプレーンテキストに正規化する。
func (s *textSanitizer) SanitizeText(raw string) string {
	if raw == "" {
		return ""
	}
	text := html.UnescapeString(s.policy.Sanitize(raw))
	text = strings.Map(func(r rune) rune {
		if unicode.IsControl(r) && !unicode.IsSpace(r) {
			return -1
		}
		return r
	}, text)
	return strings.Join(strings.Fields(text), " ")
}
