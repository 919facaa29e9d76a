// Package repository はデータ永続化のインターフェースを定義する。
// PostgreSQL（サーバー運用）とSQLite（デスクトップ単体運用）の実装を持つ。
package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/hitoshi/catalyst/internal/database"
	"github.com/hitoshi/catalyst/internal/model"
)

// AccountRepository はアカウントデータの永続化インターフェース。
// メールアドレスとSteam IDの一意性はストレージ層の制約で保証する。
type AccountRepository interface {
	// Create はアカウントを作成する。
	// メールアドレス重複時はErrDuplicateEmail、Steam ID重複時はErrDuplicateSteamIDを返す。
	Create(ctx context.Context, account *model.Account) error

	// FindByID は指定IDのアカウントを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Account, error)

	// FindByEmail は正規化済みメールアドレスでアカウントを取得する。見つからない場合はnilを返す。
	FindByEmail(ctx context.Context, email string) (*model.Account, error)

	// FindBySteamID はSteam IDでアカウントを取得する。見つからない場合はnilを返す。
	FindBySteamID(ctx context.Context, steamID string) (*model.Account, error)

	// UpdateSteamID はアカウントのSteam IDを更新し、更新後のアカウントを返す。
	// アカウントが存在しない場合はnil、別アカウントが同じSteam IDを持つ場合はErrDuplicateSteamIDを返す。
	UpdateSteamID(ctx context.Context, id, steamID string, updatedAt time.Time) (*model.Account, error)

	// InsertOrFindBySteamID はSteam IDのみのアカウントを原子的に作成する。
	// 既に同じSteam IDのアカウントが存在する場合はそれを返す。createdは新規作成したかどうか。
	InsertOrFindBySteamID(ctx context.Context, candidate *model.Account) (account *model.Account, created bool, err error)
}

// SessionRepository はセッションデータの永続化インターフェース。
// キーはトークンのハッシュであり、生トークンは受け取らない。
type SessionRepository interface {
	// Create はセッションを作成する。
	Create(ctx context.Context, session *model.Session) error
	// FindActive はexpires_at > now のセッションを取得する。見つからない場合はnilを返す。
	FindActive(ctx context.Context, tokenHash string, now time.Time) (*model.Session, error)
	// Touch はlast_seen_atを更新する。期限は延長しない。
	Touch(ctx context.Context, tokenHash string, now time.Time) error
	// DeleteByHash は指定ハッシュのセッションを削除する。存在しなくてもエラーにしない。
	DeleteByHash(ctx context.Context, tokenHash string) error
	// DeleteExpired はexpires_at <= now のセッションを全て削除し、削除件数を返す。
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
	// DeleteByAccountID は指定アカウントの全セッションを削除する。
	DeleteByAccountID(ctx context.Context, accountID string) error
}

// GameRepository はライブラリのゲームデータの永続化インターフェース。
type GameRepository interface {
	// ReplaceProviderGames はアカウント・プロバイダー単位でゲーム一覧を置き換える。
	// 削除と挿入は同一トランザクションで行い、途中状態は観測されない。
	ReplaceProviderGames(ctx context.Context, accountID, provider string, games []model.LibraryGame) error
	// ListByAccount はアカウントのゲーム一覧を名前順（大文字小文字無視）で返す。
	ListByAccount(ctx context.Context, accountID string) ([]model.LibraryGame, error)
}

// DBTX は*sql.DBと*sql.Txの共通インターフェース。
// アカウントとセッションのリポジトリはトランザクション内でも使える。
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Repositories はバックエンドごとのリポジトリ実装をまとめた構造体。
type Repositories struct {
	Accounts AccountRepository
	Sessions SessionRepository
	Games    GameRepository

	db      *sql.DB
	backend database.Backend
}

// New はバックエンドに応じたリポジトリ一式を生成する。
func New(db *sql.DB, backend database.Backend) *Repositories {
	repos := newTxBound(db, backend)
	if backend == database.BackendSQLite {
		repos.Games = NewSQLiteGameRepo(db)
	} else {
		repos.Games = NewPostgresGameRepo(db)
	}
	repos.db = db
	repos.backend = backend
	return repos
}

// newTxBound はAccountsとSessionsのみを指定の接続またはトランザクションに束ねて生成する。
func newTxBound(db DBTX, backend database.Backend) *Repositories {
	if backend == database.BackendSQLite {
		return &Repositories{
			Accounts: NewSQLiteAccountRepo(db),
			Sessions: NewSQLiteSessionRepo(db),
		}
	}
	return &Repositories{
		Accounts: NewPostgresAccountRepo(db),
		Sessions: NewPostgresSessionRepo(db),
	}
}

// InTx は1つのトランザクションに束ねたAccountsとSessionsでfnを実行する。
// fnがエラーを返した場合はロールバックし、そのエラーをそのまま返す。
// 渡されるRepositoriesのGamesはnil。SQLiteは接続が1本のため、fn内で元のRepositoriesを使うとデッドロックする。
func (r *Repositories) InTx(ctx context.Context, fn func(tx *Repositories) error) error {
	if r.db == nil {
		return fmt.Errorf("failed to begin transaction: repositories have no database")
	}
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if err := fn(newTxBound(tx, r.backend)); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// rowScanner は*sql.Rowと*sql.Rowsの共通インターフェース。
type rowScanner interface {
	Scan(dest ...any) error
}

// nullString は空文字列をNULLとして扱う。
func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
