// Package session はセッショントークンの発行・検証・失効・期限切れ削除を提供する。
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/hitoshi/catalyst/internal/metrics"
	"github.com/hitoshi/catalyst/internal/model"
	"github.com/hitoshi/catalyst/internal/repository"
)

// DefaultTTL はセッションの有効期間のデフォルト値（30日）。
const DefaultTTL = 30 * 24 * time.Hour

// opportunisticSweepInterval はリクエスト契機の期限切れ削除の最小間隔。
const opportunisticSweepInterval = time.Minute

// AccountFinder はセッションの所有アカウントを取得するインターフェース。
type AccountFinder interface {
	GetAccount(ctx context.Context, accountID string) (*model.Account, error)
}

// Config はManagerの設定。
type Config struct {
	TTL time.Duration
}

// Manager はSession Manager。
type Manager struct {
	sessions repository.SessionRepository
	accounts AccountFinder
	metrics  metrics.MetricsCollector
	ttl      time.Duration
	now      func() time.Time

	lastSweep atomic.Int64 // UnixNano
}

// NewManager はManagerを生成する。
func NewManager(sessions repository.SessionRepository, accounts AccountFinder, collector metrics.MetricsCollector, cfg Config) *Manager {
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultTTL
	}
	if collector == nil {
		collector = metrics.Nop{}
	}
	return &Manager{
		sessions: sessions,
		accounts: accounts,
		metrics:  collector,
		ttl:      cfg.TTL,
		now:      time.Now,
	}
}

// TTL はセッションの有効期間を返す。
func (m *Manager) TTL() time.Duration {
	return m.ttl
}

// Issue はアカウントのセッションを発行し、生トークンを返す。
// 生トークンが返されるのはこの1回のみで、ハッシュだけが永続化される。
func (m *Manager) Issue(ctx context.Context, accountID string) (string, error) {
	return m.issue(ctx, m.sessions, accountID)
}

// Issuer は指定のセッションリポジトリに対してセッションを発行する。
type Issuer struct {
	manager  *Manager
	sessions repository.SessionRepository
}

// Bind はsessions（トランザクション等）にセッションを保存するIssuerを返す。
func (m *Manager) Bind(sessions repository.SessionRepository) *Issuer {
	return &Issuer{manager: m, sessions: sessions}
}

// Issue はセッションを発行し、生トークンを返す。
func (i *Issuer) Issue(ctx context.Context, accountID string) (string, error) {
	return i.manager.issue(ctx, i.sessions, accountID)
}

func (m *Manager) issue(ctx context.Context, sessions repository.SessionRepository, accountID string) (string, error) {
	token, err := NewToken()
	if err != nil {
		return "", fmt.Errorf("failed to generate session token: %w", err)
	}

	now := m.now().UTC()
	session := &model.Session{
		TokenHash:  HashToken(token),
		AccountID:  accountID,
		CreatedAt:  now,
		ExpiresAt:  now.Add(m.ttl),
		LastSeenAt: now,
	}
	if err := sessions.Create(ctx, session); err != nil {
		return "", fmt.Errorf("failed to save session: %w", err)
	}
	return token, nil
}

// Validate はトークンを検証し、所有アカウントを返す。
// トークンが存在しない・期限切れ・アカウント削除済みの場合はUnauthorizedを返す。
// 成功時はlast_seen_atを更新するが、有効期限は延長しない。
func (m *Manager) Validate(ctx context.Context, token string) (*model.Account, error) {
	if token == "" {
		return nil, model.NewUnauthorizedError()
	}

	now := m.now().UTC()
	hash := HashToken(token)
	session, err := m.sessions.FindActive(ctx, hash, now)
	if err != nil {
		return nil, fmt.Errorf("failed to find session: %w", err)
	}
	if session == nil {
		return nil, model.NewUnauthorizedError()
	}

	account, err := m.accounts.GetAccount(ctx, session.AccountID)
	if errors.Is(err, model.ErrAccountNotFound) {
		return nil, model.NewUnauthorizedError()
	}
	if err != nil {
		return nil, err
	}

	// 最終アクセス時刻の更新は参考値のため失敗しても検証は成功とする
	if err := m.sessions.Touch(ctx, hash, now); err != nil {
		slog.Warn("failed to touch session",
			slog.String("account_id", session.AccountID),
			slog.String("error", err.Error()),
		)
	}
	return account, nil
}

// Revoke はトークンのセッションを削除する。存在しないトークンでもエラーにしない。
func (m *Manager) Revoke(ctx context.Context, token string) error {
	if token == "" {
		return nil
	}
	if err := m.sessions.DeleteByHash(ctx, HashToken(token)); err != nil {
		return fmt.Errorf("failed to revoke session: %w", err)
	}
	return nil
}

// RevokeAll は指定アカウントの全セッションを削除する。
func (m *Manager) RevokeAll(ctx context.Context, accountID string) error {
	if err := m.sessions.DeleteByAccountID(ctx, accountID); err != nil {
		return fmt.Errorf("failed to revoke account sessions: %w", err)
	}
	return nil
}

// SweepExpired はexpires_at <= now のセッションを全て削除し、削除件数を返す。
func (m *Manager) SweepExpired(ctx context.Context, now time.Time) (int64, error) {
	n, err := m.sessions.DeleteExpired(ctx, now)
	if err != nil {
		return 0, fmt.Errorf("failed to sweep expired sessions: %w", err)
	}
	m.lastSweep.Store(now.UnixNano())
	m.metrics.RecordSessionsSwept(n)
	if n > 0 {
		slog.Info("expired sessions swept", slog.Int64("deleted_count", n))
	}
	return n, nil
}

// SweepIfDue は前回の削除から一定時間経過している場合のみ期限切れ削除を行う。
// リクエスト処理の契機で呼ばれ、失敗はログのみに記録する。
func (m *Manager) SweepIfDue(ctx context.Context) {
	now := m.now()
	last := m.lastSweep.Load()
	if now.UnixNano()-last < int64(opportunisticSweepInterval) {
		return
	}
	// 同時に複数のリクエストが削除しないよう先に時刻を確保する
	if !m.lastSweep.CompareAndSwap(last, now.UnixNano()) {
		return
	}
	if _, err := m.SweepExpired(ctx, now.UTC()); err != nil {
		slog.Warn("opportunistic session sweep failed", slog.String("error", err.Error()))
	}
}
