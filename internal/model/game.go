package model

import "time"

// ProviderSteam はSteamライブラリのプロバイダー名。
const ProviderSteam = "steam"

// LibraryGame は外部プロバイダーから同期したゲームを表す。
type LibraryGame struct {
	AccountID       string
	Provider        string
	ExternalID      string
	Name            string
	PlaytimeMinutes int64
	ArtworkURL      string // 無い場合は空
	LastSyncedAt    time.Time
}

// Key はライブラリ内で一意な表示用IDを返す。
func (g *LibraryGame) Key() string {
	return g.Provider + ":" + g.ExternalID
}
