package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hitoshi/catalyst/internal/model"
)

// SQLiteGameRepo はSQLiteを使用したライブラリゲームリポジトリ。
type SQLiteGameRepo struct {
	db *sql.DB
}

// NewSQLiteGameRepo はSQLiteGameRepoを生成する。
func NewSQLiteGameRepo(db *sql.DB) *SQLiteGameRepo {
	return &SQLiteGameRepo{db: db}
}

// ReplaceProviderGames はアカウント・プロバイダー単位でゲーム一覧を置き換える。
func (r *SQLiteGameRepo) ReplaceProviderGames(ctx context.Context, accountID, provider string, games []model.LibraryGame) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM library_games WHERE account_id = ? AND provider = ?`,
		accountID, provider,
	); err != nil {
		return fmt.Errorf("failed to delete library games: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT OR REPLACE INTO library_games
		   (account_id, provider, external_id, name, playtime_minutes, artwork_url, last_synced_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
	)
	if err != nil {
		return fmt.Errorf("failed to prepare library game insert: %w", err)
	}
	defer stmt.Close()

	for _, g := range games {
		if _, err := stmt.ExecContext(ctx,
			accountID, provider, g.ExternalID, g.Name, g.PlaytimeMinutes,
			nullString(g.ArtworkURL), toMillis(g.LastSyncedAt),
		); err != nil {
			return fmt.Errorf("failed to insert library game %s: %w", g.ExternalID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit library games: %w", err)
	}
	return nil
}

// ListByAccount はアカウントのゲーム一覧を名前順で返す。
func (r *SQLiteGameRepo) ListByAccount(ctx context.Context, accountID string) ([]model.LibraryGame, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT account_id, provider, external_id, name, playtime_minutes, artwork_url, last_synced_at
		 FROM library_games
		 WHERE account_id = ?
		 ORDER BY name COLLATE NOCASE, external_id`,
		accountID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list library games: %w", err)
	}
	defer rows.Close()

	games := []model.LibraryGame{}
	for rows.Next() {
		var (
			g        model.LibraryGame
			artwork  sql.NullString
			syncedAt int64
		)
		if err := rows.Scan(&g.AccountID, &g.Provider, &g.ExternalID, &g.Name,
			&g.PlaytimeMinutes, &artwork, &syncedAt); err != nil {
			return nil, fmt.Errorf("failed to scan library game: %w", err)
		}
		g.ArtworkURL = artwork.String
		g.LastSyncedAt = fromMillis(syncedAt)
		games = append(games, g)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate library games: %w", err)
	}
	return games, nil
}

// compile-time interface check
var _ GameRepository = (*SQLiteGameRepo)(nil)
