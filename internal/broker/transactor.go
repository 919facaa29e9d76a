package broker

import (
	"context"

	"github.com/hitoshi/catalyst/internal/credential"
	"github.com/hitoshi/catalyst/internal/repository"
	"github.com/hitoshi/catalyst/internal/session"
)

// Transactor はアカウントの紐付けとセッション発行を1つのトランザクションで実行する。
// fnがエラーを返した場合、アカウントとセッションへの変更は残らない。
type Transactor interface {
	InTx(ctx context.Context, fn func(accounts AccountLinker, sessions SessionIssuer) error) error
}

// RepositoryTransactor はリポジトリのトランザクションにStoreとManagerを束ねるTransactor。
type RepositoryTransactor struct {
	repos    *repository.Repositories
	store    *credential.Store
	sessions *session.Manager
}

// NewRepositoryTransactor はRepositoryTransactorを生成する。
func NewRepositoryTransactor(repos *repository.Repositories, store *credential.Store, sessions *session.Manager) *RepositoryTransactor {
	return &RepositoryTransactor{repos: repos, store: store, sessions: sessions}
}

// InTx はトランザクションに束ねたStoreとIssuerでfnを実行する。
func (t *RepositoryTransactor) InTx(ctx context.Context, fn func(accounts AccountLinker, sessions SessionIssuer) error) error {
	return t.repos.InTx(ctx, func(tx *repository.Repositories) error {
		return fn(t.store.WithAccounts(tx.Accounts), t.sessions.Bind(tx.Sessions))
	})
}
