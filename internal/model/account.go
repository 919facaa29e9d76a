// Package model はドメインモデルを定義する。
package model

import "time"

// Account はローカルアカウントを表す。
// パスワード認証と外部ID（Steam）連携のどちらか、または両方でアドレス可能。
type Account struct {
	ID           string
	Email        string // 正規化済み。Steamのみのアカウントでは空
	PasswordHash string // パスワードアカウントのみ
	SteamID      string // 連携済みSteam ID。未連携なら空
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// HasPassword はパスワード認証が可能なアカウントかを返す。
func (a *Account) HasPassword() bool {
	return a.PasswordHash != ""
}

// SteamLinked はSteam IDが連携済みかを返す。
func (a *Account) SteamLinked() bool {
	return a.SteamID != ""
}

// Session はログインセッションを表す。
// 生トークンは永続化せず、そのハッシュを主キーとする。
// 有効性は now < ExpiresAt からのみ導出する。
type Session struct {
	TokenHash  string
	AccountID  string
	CreatedAt  time.Time
	ExpiresAt  time.Time
	LastSeenAt time.Time
}

// ValidAt は指定時刻においてセッションが有効かを返す。
func (s *Session) ValidAt(now time.Time) bool {
	return now.Before(s.ExpiresAt)
}

// PendingState は外部ログイン開始から callback までの使い捨て状態を表す。
// プロセスメモリのみに保持する。
type PendingState struct {
	State     string
	AccountID string // ログイン済みで開始した場合のアカウントID。未ログインなら空
	ExpiresAt time.Time
}
