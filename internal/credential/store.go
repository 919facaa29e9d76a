// Package credential はアカウントとパスワード認証情報、外部ID連携を管理する。
package credential

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/catalyst/internal/model"
	"github.com/hitoshi/catalyst/internal/repository"
)

// Store はCredential Store。アカウントの作成・認証・外部ID連携を提供する。
type Store struct {
	accounts repository.AccountRepository
	hasher   *PasswordHasher
	now      func() time.Time
}

// NewStore はStoreを生成する。
func NewStore(accounts repository.AccountRepository, hasher *PasswordHasher) *Store {
	if hasher == nil {
		hasher = NewPasswordHasher(DefaultBcryptCost)
	}
	return &Store{
		accounts: accounts,
		hasher:   hasher,
		now:      time.Now,
	}
}

// WithAccounts は同じ設定で別のアカウントリポジトリ（トランザクション等）を使うStoreを返す。
func (s *Store) WithAccounts(accounts repository.AccountRepository) *Store {
	c := *s
	c.accounts = accounts
	return &c
}

// CreateAccount はメールアドレスとパスワードでアカウントを作成する。
// メールアドレスが既に使われている場合はEmailTakenを返す。
func (s *Store) CreateAccount(ctx context.Context, rawEmail, password string) (*model.Account, error) {
	email, err := NormalizeEmail(rawEmail)
	if err != nil {
		return nil, err
	}
	if err := ValidatePassword(password); err != nil {
		return nil, err
	}

	existing, err := s.accounts.FindByEmail(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("failed to find account by email: %w", err)
	}
	if existing != nil {
		return nil, model.NewEmailTakenError()
	}

	hash, err := s.hasher.Hash(ctx, password)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	account := &model.Account{
		ID:           uuid.New().String(),
		Email:        email,
		PasswordHash: hash,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.accounts.Create(ctx, account); err != nil {
		// 事前チェック後に同じメールアドレスで作成された場合
		if errors.Is(err, repository.ErrDuplicateEmail) {
			return nil, model.NewEmailTakenError()
		}
		return nil, fmt.Errorf("failed to create account: %w", err)
	}

	slog.Info("account registered", slog.String("account_id", account.ID))
	return account, nil
}

// VerifyCredentials はメールアドレスとパスワードを照合する。
// 未登録とパスワード誤りは区別せずInvalidCredentialsを返す。
func (s *Store) VerifyCredentials(ctx context.Context, rawEmail, password string) (*model.Account, error) {
	email, err := NormalizeEmail(rawEmail)
	if err != nil {
		return nil, err
	}
	if err := ValidatePassword(password); err != nil {
		return nil, err
	}

	account, err := s.accounts.FindByEmail(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("failed to find account by email: %w", err)
	}

	hash := ""
	if account != nil {
		hash = account.PasswordHash
	}
	ok, err := s.hasher.Compare(ctx, hash, password)
	if err != nil {
		return nil, err
	}
	if !ok || account == nil {
		return nil, model.NewInvalidCredentialsError()
	}
	return account, nil
}

// LinkExternalIdentity はアカウントにSteam IDを紐付ける。
// 同じアカウントに既に紐付いている場合は何もしない。
// 別のアカウントに紐付いている場合はExternalIdentityTakenを返し、どちらのアカウントも変更しない。
func (s *Store) LinkExternalIdentity(ctx context.Context, accountID, steamID string) (*model.Account, error) {
	account, err := s.accounts.FindByID(ctx, accountID)
	if err != nil {
		return nil, fmt.Errorf("failed to find account: %w", err)
	}
	if account == nil {
		return nil, model.NewAccountNotFoundError()
	}
	if account.SteamID == steamID {
		return account, nil
	}

	owner, err := s.accounts.FindBySteamID(ctx, steamID)
	if err != nil {
		return nil, fmt.Errorf("failed to find account by steam id: %w", err)
	}
	if owner != nil && owner.ID != accountID {
		return nil, model.NewExternalIdentityTakenError()
	}

	// 上のチェックと更新の間に別リクエストが紐付けた場合は一意制約で検出する
	updated, err := s.accounts.UpdateSteamID(ctx, accountID, steamID, s.now().UTC())
	if errors.Is(err, repository.ErrDuplicateSteamID) {
		return nil, model.NewExternalIdentityTakenError()
	}
	if err != nil {
		return nil, fmt.Errorf("failed to link steam id: %w", err)
	}
	if updated == nil {
		return nil, model.NewAccountNotFoundError()
	}

	slog.Info("steam identity linked",
		slog.String("account_id", accountID),
		slog.String("steam_id", steamID),
	)
	return updated, nil
}

// GetOrCreateByExternalID はSteam IDに紐付くアカウントを返す。存在しなければメールアドレス・パスワードなしで作成する。
// 同じSteam IDで同時に呼ばれても作成されるアカウントは1件のみ。
func (s *Store) GetOrCreateByExternalID(ctx context.Context, steamID string) (*model.Account, error) {
	now := s.now().UTC()
	candidate := &model.Account{
		ID:        uuid.New().String(),
		SteamID:   steamID,
		CreatedAt: now,
		UpdatedAt: now,
	}
	account, created, err := s.accounts.InsertOrFindBySteamID(ctx, candidate)
	if err != nil {
		return nil, fmt.Errorf("failed to get or create steam account: %w", err)
	}
	if created {
		slog.Info("account created from steam identity",
			slog.String("account_id", account.ID),
			slog.String("steam_id", steamID),
		)
	}
	return account, nil
}

// GetAccount は指定IDのアカウントを返す。存在しない場合はAccountNotFoundを返す。
func (s *Store) GetAccount(ctx context.Context, accountID string) (*model.Account, error) {
	account, err := s.accounts.FindByID(ctx, accountID)
	if err != nil {
		return nil, fmt.Errorf("failed to find account: %w", err)
	}
	if account == nil {
		return nil, model.NewAccountNotFoundError()
	}
	return account, nil
}
