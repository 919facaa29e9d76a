package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/hitoshi/catalyst/internal/model"
)

// SQLiteSessionRepo はSQLiteを使用したセッションリポジトリ。
type SQLiteSessionRepo struct {
	db DBTX
}

// NewSQLiteSessionRepo はSQLiteSessionRepoを生成する。
func NewSQLiteSessionRepo(db DBTX) *SQLiteSessionRepo {
	return &SQLiteSessionRepo{db: db}
}

// Create はセッションを作成する。
func (r *SQLiteSessionRepo) Create(ctx context.Context, session *model.Session) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO sessions (token_hash, account_id, created_at, expires_at, last_seen_at)
		 VALUES (?, ?, ?, ?, ?)`,
		session.TokenHash, session.AccountID, toMillis(session.CreatedAt),
		toMillis(session.ExpiresAt), toMillis(session.LastSeenAt),
	)
	if err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}
	return nil
}

// FindActive は有効なセッションを取得する。期限切れの場合はnilを返す。
func (r *SQLiteSessionRepo) FindActive(ctx context.Context, tokenHash string, now time.Time) (*model.Session, error) {
	var (
		session                          model.Session
		createdAt, expiresAt, lastSeenAt int64
	)
	err := r.db.QueryRowContext(ctx,
		`SELECT token_hash, account_id, created_at, expires_at, last_seen_at
		 FROM sessions
		 WHERE token_hash = ? AND expires_at > ?`,
		tokenHash, toMillis(now),
	).Scan(&session.TokenHash, &session.AccountID, &createdAt, &expiresAt, &lastSeenAt)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find session: %w", err)
	}
	session.CreatedAt = fromMillis(createdAt)
	session.ExpiresAt = fromMillis(expiresAt)
	session.LastSeenAt = fromMillis(lastSeenAt)
	return &session, nil
}

// Touch はlast_seen_atを更新する。
func (r *SQLiteSessionRepo) Touch(ctx context.Context, tokenHash string, now time.Time) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE sessions SET last_seen_at = ? WHERE token_hash = ?`,
		toMillis(now), tokenHash,
	)
	if err != nil {
		return fmt.Errorf("failed to touch session: %w", err)
	}
	return nil
}

// DeleteByHash は指定ハッシュのセッションを削除する。
func (r *SQLiteSessionRepo) DeleteByHash(ctx context.Context, tokenHash string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM sessions WHERE token_hash = ?`, tokenHash)
	if err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}

// DeleteExpired は期限切れセッションを削除する。
func (r *SQLiteSessionRepo) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx, `DELETE FROM sessions WHERE expires_at <= ?`, toMillis(now))
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired sessions: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return n, nil
}

// DeleteByAccountID は指定アカウントの全セッションを削除する。
func (r *SQLiteSessionRepo) DeleteByAccountID(ctx context.Context, accountID string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM sessions WHERE account_id = ?`, accountID)
	if err != nil {
		return fmt.Errorf("failed to delete account sessions: %w", err)
	}
	return nil
}

// compile-time interface check
var _ SessionRepository = (*SQLiteSessionRepo)(nil)
