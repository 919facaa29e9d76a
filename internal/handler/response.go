package handler

import (
	"net/http"
	"time"

	"github.com/go-chi/render"

	"github.com/hitoshi/catalyst/internal/model"
)

// userResponse は公開ユーザー情報のAPIレスポンス。
type userResponse struct {
	ID          string  `json:"id"`
	Email       string  `json:"email"`
	SteamLinked bool    `json:"steamLinked"`
	SteamID     *string `json:"steamId"`
}

// authResponse は登録・ログイン・セッション確認のレスポンス。
type authResponse struct {
	User userResponse `json:"user"`
}

func toUserResponse(a *model.Account) userResponse {
	resp := userResponse{
		ID:          a.ID,
		Email:       a.Email,
		SteamLinked: a.SteamLinked(),
	}
	if a.SteamLinked() {
		steamID := a.SteamID
		resp.SteamID = &steamID
	}
	return resp
}

// gameResponse はライブラリのゲーム1件のレスポンス。
type gameResponse struct {
	ID              string  `json:"id"`
	Provider        string  `json:"provider"`
	ExternalID      string  `json:"externalId"`
	Name            string  `json:"name"`
	PlaytimeMinutes int64   `json:"playtimeMinutes"`
	ArtworkURL      *string `json:"artworkUrl"`
	LastSyncedAt    string  `json:"lastSyncedAt"`
}

func toGameResponse(g *model.LibraryGame) gameResponse {
	resp := gameResponse{
		ID:              g.Key(),
		Provider:        g.Provider,
		ExternalID:      g.ExternalID,
		Name:            g.Name,
		PlaytimeMinutes: g.PlaytimeMinutes,
		LastSyncedAt:    g.LastSyncedAt.UTC().Format(time.RFC3339),
	}
	if g.ArtworkURL != "" {
		artwork := g.ArtworkURL
		resp.ArtworkURL = &artwork
	}
	return resp
}

// writeJSON はステータスコードとJSONボディを書き込む。
func writeJSON(w http.ResponseWriter, r *http.Request, status int, v any) {
	render.Status(r, status)
	render.JSON(w, r, v)
}
