// Package library はSteamの所有ゲームをローカルのライブラリへ同期する。
package library

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/hitoshi/catalyst/internal/metrics"
	"github.com/hitoshi/catalyst/internal/model"
	"github.com/hitoshi/catalyst/internal/repository"
	"github.com/hitoshi/catalyst/internal/security"
	"github.com/hitoshi/catalyst/internal/steam"
)

// OwnedGamesFetcher はSteamの所有ゲーム取得のインターフェース。
type OwnedGamesFetcher interface {
	HasAPIKey() bool
	GetOwnedGames(ctx context.Context, steamID string) ([]steam.OwnedGame, error)
}

// Syncer はライブラリ同期サービス。
type Syncer struct {
	games     repository.GameRepository
	fetcher   OwnedGamesFetcher
	sanitizer security.TextSanitizer
	metrics   metrics.MetricsCollector
	now       func() time.Time
}

// NewSyncer はSyncerを生成する。
func NewSyncer(
	games repository.GameRepository,
	fetcher OwnedGamesFetcher,
	sanitizer security.TextSanitizer,
	collector metrics.MetricsCollector,
) *Syncer {
	if sanitizer == nil {
		sanitizer = security.NewTextSanitizer()
	}
	if collector == nil {
		collector = metrics.Nop{}
	}
	return &Syncer{
		games:     games,
		fetcher:   fetcher,
		sanitizer: sanitizer,
		metrics:   collector,
		now:       time.Now,
	}
}

// Sync はアカウントのSteamライブラリを取得し、保存済みの一覧を置き換えて件数を返す。
// Steam未連携の場合はSteamNotLinked、APIキー未設定の場合はMissingConfigurationを返す。
func (s *Syncer) Sync(ctx context.Context, account *model.Account) (int, error) {
	if !account.SteamLinked() {
		return 0, model.NewSteamNotLinkedError()
	}
	if !s.fetcher.HasAPIKey() {
		return 0, model.NewMissingConfigurationError("STEAM_API_KEY")
	}

	start := time.Now()
	owned, err := s.fetcher.GetOwnedGames(ctx, account.SteamID)
	s.metrics.RecordProviderLatency("owned_games", time.Since(start))
	if err != nil {
		slog.Error("failed to fetch steam library",
			slog.String("account_id", account.ID),
			slog.String("error", err.Error()),
		)
		return 0, model.NewUpstreamProviderError()
	}

	syncedAt := s.now().UTC()
	games := make([]model.LibraryGame, 0, len(owned))
	for _, g := range owned {
		games = append(games, s.toLibraryGame(account.ID, g, syncedAt))
	}

	if err := s.games.ReplaceProviderGames(ctx, account.ID, model.ProviderSteam, games); err != nil {
		return 0, fmt.Errorf("failed to replace steam games: %w", err)
	}

	s.metrics.RecordGamesSynced(len(games))
	slog.Info("steam library synced",
		slog.String("account_id", account.ID),
		slog.Int("game_count", len(games)),
	)
	return len(games), nil
}

// SyncBestEffort はログイン処理から呼ばれる同期。失敗しても0件として扱い、エラーは返さない。
func (s *Syncer) SyncBestEffort(ctx context.Context, account *model.Account) int {
	n, err := s.Sync(ctx, account)
	if err == nil {
		return n
	}
	if errors.Is(err, model.ErrMissingConfiguration) {
		slog.Debug("steam library sync skipped: api key not configured",
			slog.String("account_id", account.ID),
		)
		return 0
	}
	slog.Warn("steam library sync failed during login",
		slog.String("account_id", account.ID),
		slog.String("error", err.Error()),
	)
	return 0
}

// List はアカウントのライブラリを名前順で返す。
func (s *Syncer) List(ctx context.Context, accountID string) ([]model.LibraryGame, error) {
	games, err := s.games.ListByAccount(ctx, accountID)
	if err != nil {
		return nil, fmt.Errorf("failed to list library: %w", err)
	}
	return games, nil
}

func (s *Syncer) toLibraryGame(accountID string, g steam.OwnedGame, syncedAt time.Time) model.LibraryGame {
	externalID := strconv.FormatInt(g.AppID, 10)
	name := s.sanitizer.SanitizeText(g.Name)
	if name == "" {
		name = "Steam App " + externalID
	}
	playtime := g.PlaytimeForever
	if playtime < 0 {
		playtime = 0
	}
	return model.LibraryGame{
		AccountID:       accountID,
		Provider:        model.ProviderSteam,
		ExternalID:      externalID,
		Name:            name,
		PlaytimeMinutes: playtime,
		ArtworkURL:      g.ArtworkURL(),
		LastSyncedAt:    syncedAt,
	}
}
