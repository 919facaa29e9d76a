package session

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"github.com/google/uuid"
)

// NewToken はセッショントークンを生成する。
// 2つのランダムなUUIDv4をハイフンなしの16進で連結した形式。
func NewToken() (string, error) {
	a, err := uuid.NewRandom()
	if err != nil {
		return "", err
	}
	b, err := uuid.NewRandom()
	if err != nil {
		return "", err
	}
	return simple(a) + "." + simple(b), nil
}

// HashToken はトークンのSHA-256を小文字16進で返す。永続化されるのはこの値のみ。
func HashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

func simple(u uuid.UUID) string {
	return strings.ReplaceAll(u.String(), "-", "")
}
