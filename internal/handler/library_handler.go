package handler

import (
	"context"
	"net/http"

	"github.com/hitoshi/catalyst/internal/middleware"
	"github.com/hitoshi/catalyst/internal/model"
)

// LibraryService はライブラリハンドラーが必要とするサービスインターフェース。
type LibraryService interface {
	Sync(ctx context.Context, account *model.Account) (int, error)
	List(ctx context.Context, accountID string) ([]model.LibraryGame, error)
}

// LibraryHandler はゲームライブラリのHTTPハンドラー。
type LibraryHandler struct {
	service LibraryService
}

// NewLibraryHandler はLibraryHandlerを生成する。
func NewLibraryHandler(service LibraryService) *LibraryHandler {
	return &LibraryHandler{service: service}
}

type libraryResponse struct {
	UserID string         `json:"userId"`
	Total  int            `json:"total"`
	Games  []gameResponse `json:"games"`
}

type steamStatusResponse struct {
	UserID   string  `json:"userId"`
	Provider string  `json:"provider"`
	Linked   bool    `json:"linked"`
	SteamID  *string `json:"steamId"`
}

type steamSyncResponse struct {
	UserID      string `json:"userId"`
	Provider    string `json:"provider"`
	SyncedGames int    `json:"syncedGames"`
}

// List はアカウントのライブラリ一覧を返す。
// GET /library
func (h *LibraryHandler) List(w http.ResponseWriter, r *http.Request) {
	account, ok := middleware.AccountFromContext(r.Context())
	if !ok {
		middleware.WriteAPIError(w, r, model.NewUnauthorizedError())
		return
	}

	games, err := h.service.List(r.Context(), account.ID)
	if err != nil {
		middleware.WriteError(w, r, err)
		return
	}

	resp := libraryResponse{
		UserID: account.ID,
		Total:  len(games),
		Games:  make([]gameResponse, 0, len(games)),
	}
	for i := range games {
		resp.Games = append(resp.Games, toGameResponse(&games[i]))
	}
	writeJSON(w, r, http.StatusOK, resp)
}

// SteamStatus はSteam連携状態を返す。
// GET /library/steam
func (h *LibraryHandler) SteamStatus(w http.ResponseWriter, r *http.Request) {
	account, ok := middleware.AccountFromContext(r.Context())
	if !ok {
		middleware.WriteAPIError(w, r, model.NewUnauthorizedError())
		return
	}
	user := toUserResponse(account)
	writeJSON(w, r, http.StatusOK, steamStatusResponse{
		UserID:   account.ID,
		Provider: model.ProviderSteam,
		Linked:   user.SteamLinked,
		SteamID:  user.SteamID,
	})
}

// SyncSteam はSteamライブラリを同期し、件数を返す。
// POST /library/steam/sync
func (h *LibraryHandler) SyncSteam(w http.ResponseWriter, r *http.Request) {
	account, ok := middleware.AccountFromContext(r.Context())
	if !ok {
		middleware.WriteAPIError(w, r, model.NewUnauthorizedError())
		return
	}

	n, err := h.service.Sync(r.Context(), account)
	if err != nil {
		middleware.WriteError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, steamSyncResponse{
		UserID:      account.ID,
		Provider:    model.ProviderSteam,
		SyncedGames: n,
	})
}
