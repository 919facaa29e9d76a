package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/hitoshi/catalyst/internal/model"
)

// SQLiteAccountRepo はSQLiteを使用したアカウントリポジトリ。
// 時刻はUnixミリ秒で保存する。
type SQLiteAccountRepo struct {
	db DBTX
}

// NewSQLiteAccountRepo はSQLiteAccountRepoを生成する。
func NewSQLiteAccountRepo(db DBTX) *SQLiteAccountRepo {
	return &SQLiteAccountRepo{db: db}
}

const sqliteAccountColumns = `id, email, password_hash, steam_id, created_at, updated_at`

// Create はアカウントを作成する。
func (r *SQLiteAccountRepo) Create(ctx context.Context, account *model.Account) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO accounts (`+sqliteAccountColumns+`) VALUES (?, ?, ?, ?, ?, ?)`,
		account.ID, nullString(account.Email), nullString(account.PasswordHash),
		nullString(account.SteamID), toMillis(account.CreatedAt), toMillis(account.UpdatedAt),
	)
	if err != nil {
		if dup := translateSQLiteError(err); dup != err {
			return dup
		}
		return fmt.Errorf("failed to create account: %w", err)
	}
	return nil
}

// FindByID は指定IDのアカウントを取得する。
func (r *SQLiteAccountRepo) FindByID(ctx context.Context, id string) (*model.Account, error) {
	return r.findOne(ctx, `SELECT `+sqliteAccountColumns+` FROM accounts WHERE id = ?`, id)
}

// FindByEmail はメールアドレスでアカウントを取得する。列のNOCASE照合で比較する。
func (r *SQLiteAccountRepo) FindByEmail(ctx context.Context, email string) (*model.Account, error) {
	return r.findOne(ctx, `SELECT `+sqliteAccountColumns+` FROM accounts WHERE email = ?`, email)
}

// FindBySteamID はSteam IDでアカウントを取得する。
func (r *SQLiteAccountRepo) FindBySteamID(ctx context.Context, steamID string) (*model.Account, error) {
	return r.findOne(ctx, `SELECT `+sqliteAccountColumns+` FROM accounts WHERE steam_id = ?`, steamID)
}

// UpdateSteamID はSteam IDを更新する。
func (r *SQLiteAccountRepo) UpdateSteamID(ctx context.Context, id, steamID string, updatedAt time.Time) (*model.Account, error) {
	row := r.db.QueryRowContext(ctx,
		`UPDATE accounts SET steam_id = ?, updated_at = ?
		 WHERE id = ?
		 RETURNING `+sqliteAccountColumns,
		steamID, toMillis(updatedAt), id,
	)
	account, err := scanSQLiteAccount(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		if dup := translateSQLiteError(err); dup != err {
			return nil, dup
		}
		return nil, fmt.Errorf("failed to update steam id: %w", err)
	}
	return account, nil
}

// InsertOrFindBySteamID はSteam IDのみのアカウントを作成し、競合時は既存アカウントを返す。
func (r *SQLiteAccountRepo) InsertOrFindBySteamID(ctx context.Context, candidate *model.Account) (*model.Account, bool, error) {
	row := r.db.QueryRowContext(ctx,
		`INSERT INTO accounts (`+sqliteAccountColumns+`)
		 VALUES (?, NULL, NULL, ?, ?, ?)
		 ON CONFLICT (steam_id) DO NOTHING
		 RETURNING `+sqliteAccountColumns,
		candidate.ID, candidate.SteamID, toMillis(candidate.CreatedAt), toMillis(candidate.UpdatedAt),
	)
	account, err := scanSQLiteAccount(row)
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

func (r *SQLiteAccountRepo) findOne(ctx context.Context, query string, arg any) (*model.Account, error) {
	account, err := scanSQLiteAccount(r.db.QueryRowContext(ctx, query, arg))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find account: %w", err)
	}
	return account, nil
}

func scanSQLiteAccount(row rowScanner) (*model.Account, error) {
	var (
		account              model.Account
		email, hash, steamID sql.NullString
		createdAt, updatedAt int64
	)
	if err := row.Scan(&account.ID, &email, &hash, &steamID, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	account.Email = email.String
	account.PasswordHash = hash.String
	account.SteamID = steamID.String
	account.CreatedAt = fromMillis(createdAt)
	account.UpdatedAt = fromMillis(updatedAt)
	return &account, nil
}

func toMillis(t time.Time) int64 {
	return t.UTC().UnixMilli()
}

func fromMillis(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}

// compile-time interface check
var _ AccountRepository = (*SQLiteAccountRepo)(nil)
