package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/hitoshi/catalyst/internal/model"
)

// PostgresAccountRepo はPostgreSQLを使用したアカウントリポジトリ。
type PostgresAccountRepo struct {
	db DBTX
}

// NewPostgresAccountRepo はPostgresAccountRepoを生成する。
func NewPostgresAccountRepo(db DBTX) *PostgresAccountRepo {
	return &PostgresAccountRepo{db: db}
}

const pgAccountColumns = `id, email, password_hash, steam_id, created_at, updated_at`

// Create はアカウントを作成する。
func (r *PostgresAccountRepo) Create(ctx context.Context, account *model.Account) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO accounts (`+pgAccountColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		account.ID, nullString(account.Email), nullString(account.PasswordHash),
		nullString(account.SteamID), account.CreatedAt, account.UpdatedAt,
	)
	if err != nil {
		if dup := translatePostgresError(err); dup != err {
			return dup
		}
		return fmt.Errorf("failed to create account: %w", err)
	}
	return nil
}

// FindByID は指定IDのアカウントを取得する。
func (r *PostgresAccountRepo) FindByID(ctx context.Context, id string) (*model.Account, error) {
	return r.findOne(ctx, `SELECT `+pgAccountColumns+` FROM accounts WHERE id = $1`, id)
}

// FindByEmail はメールアドレスでアカウントを取得する。比較は大文字小文字を区別しない。
func (r *PostgresAccountRepo) FindByEmail(ctx context.Context, email string) (*model.Account, error) {
	return r.findOne(ctx, `SELECT `+pgAccountColumns+` FROM accounts WHERE lower(email) = lower($1)`, email)
}

// FindBySteamID はSteam IDでアカウントを取得する。
func (r *PostgresAccountRepo) FindBySteamID(ctx context.Context, steamID string) (*model.Account, error) {
	return r.findOne(ctx, `SELECT `+pgAccountColumns+` FROM accounts WHERE steam_id = $1`, steamID)
}

// UpdateSteamID はSteam IDを更新する。
func (r *PostgresAccountRepo) UpdateSteamID(ctx context.Context, id, steamID string, updatedAt time.Time) (*model.Account, error) {
	row := r.db.QueryRowContext(ctx,
		`UPDATE accounts SET steam_id = $2, updated_at = $3
		 WHERE id = $1
		 RETURNING `+pgAccountColumns,
		id, steamID, updatedAt,
	)
	account, err := scanPostgresAccount(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		if dup := translatePostgresError(err); dup != err {
			return nil, dup
		}
		return nil, fmt.Errorf("failed to update steam id: %w", err)
	}
	return account, nil
}

// InsertOrFindBySteamID はSteam IDのみのアカウントを作成し、競合時は既存アカウントを返す。
// ON CONFLICT DO NOTHING により同時実行でもアカウントは1件しか作られない。
func (r *PostgresAccountRepo) InsertOrFindBySteamID(ctx context.Context, candidate *model.Account) (*model.Account, bool, error) {
	row := r.db.QueryRowContext(ctx,
		`INSERT INTO accounts (`+pgAccountColumns+`)
		 VALUES ($1, NULL, NULL, $2, $3, $4)
		 ON CONFLICT (steam_id) DO NOTHING
		 RETURNING `+pgAccountColumns,
		candidate.ID, candidate.SteamID, candidate.CreatedAt, candidate.UpdatedAt,
	)
	account, err := scanPostgresAccount(row)
	if err == nil {
		return account, true, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, false, fmt.Errorf("failed to insert steam account: %w", err)
	}

	existing, err := r.FindBySteamID(ctx, candidate.SteamID)
	if err != nil {
		return nil, false, err
	}
	if existing == nil {
		return nil, false, fmt.Errorf("failed to insert steam account: conflicting row for %s vanished", candidate.SteamID)
	}
	return existing, false, nil
}

func (r *PostgresAccountRepo) findOne(ctx context.Context, query string, arg any) (*model.Account, error) {
	account, err := scanPostgresAccount(r.db.QueryRowContext(ctx, query, arg))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find account: %w", err)
	}
	return account, nil
}

func scanPostgresAccount(row rowScanner) (*model.Account, error) {
	var (
		account              model.Account
		email, hash, steamID sql.NullString
	)
	if err := row.Scan(&account.ID, &email, &hash, &steamID, &account.CreatedAt, &account.UpdatedAt); err != nil {
		return nil, err
	}
	account.Email = email.String
	account.PasswordHash = hash.String
	account.SteamID = steamID.String
	return &account, nil
}

// compile-time interface check
var _ AccountRepository = (*PostgresAccountRepo)(nil)
