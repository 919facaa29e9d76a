package repository

import (
	"errors"
	"strings"

	"github.com/lib/pq"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

var (
	// ErrDuplicateEmail はメールアドレスの一意制約違反を表す。
	ErrDuplicateEmail = errors.New("duplicate email")
	// ErrDuplicateSteamID はSteam IDの一意制約違反を表す。
	ErrDuplicateSteamID = errors.New("duplicate steam id")
)

// PostgreSQLの制約名
const (
	pgUniqueViolation   = "23505"
	pgEmailConstraint   = "accounts_email_lower_key"
	pgSteamIDConstraint = "accounts_steam_id_key"
)

// translatePostgresError は一意制約違反をリポジトリのエラーに変換する。
// 該当しない場合は元のエラーをそのまま返す。
func translatePostgresError(err error) error {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) || pqErr.Code != pgUniqueViolation {
		return err
	}
	switch pqErr.Constraint {
	case pgEmailConstraint:
		return ErrDuplicateEmail
	case pgSteamIDConstraint:
		return ErrDuplicateSteamID
	}
	return err
}

// translateSQLiteError は一意制約違反をリポジトリのエラーに変換する。
// SQLiteは制約名ではなく "UNIQUE constraint failed: table.column" を返す。
func translateSQLiteError(err error) error {
	var sqErr *sqlite.Error
	if !errors.As(err, &sqErr) || sqErr.Code()&0xff != sqlite3.SQLITE_CONSTRAINT {
		return err
	}
	msg := sqErr.Error()
	switch {
	case strings.Contains(msg, "accounts.email"):
		return ErrDuplicateEmail
	case strings.Contains(msg, "accounts.steam_id"):
		return ErrDuplicateSteamID
	}
	return err
}
