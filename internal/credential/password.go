package credential

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"runtime"
	"sync"

	"golang.org/x/crypto/bcrypt"
	"golang.org/x/sync/semaphore"
)

// DefaultBcryptCost はパスワードハッシュのコスト係数。
const DefaultBcryptCost = 12

// bcryptは先頭72バイトのみを使う
const bcryptMaxBytes = 72

// PasswordHasher はbcryptによるハッシュ化と照合を行う。
// CPU負荷が高いため同時実行数をセマフォで制限する。
type PasswordHasher struct {
	cost int
	sem  *semaphore.Weighted

	dummyOnce sync.Once
	dummyHash []byte
}

// NewPasswordHasher はPasswordHasherを生成する。costが0以下の場合はDefaultBcryptCostを使う。
func NewPasswordHasher(cost int) *PasswordHasher {
	if cost <= 0 {
		cost = DefaultBcryptCost
	}
	return &PasswordHasher{
		cost: cost,
		sem:  semaphore.NewWeighted(int64(runtime.GOMAXPROCS(0))),
	}
}

// Hash はパスワードをハッシュ化する。
func (h *PasswordHasher) Hash(ctx context.Context, password string) (string, error) {
	if err := h.sem.Acquire(ctx, 1); err != nil {
		return "", fmt.Errorf("failed to acquire hasher slot: %w", err)
	}
	defer h.sem.Release(1)

	hash, err := bcrypt.GenerateFromPassword(truncate(password), h.cost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(hash), nil
}

// Compare はハッシュとパスワードを照合する。不一致の場合はfalseを返す。
// hashが空の場合もダミーハッシュと比較し、照合時間を揃える。
func (h *PasswordHasher) Compare(ctx context.Context, hash, password string) (bool, error) {
	if err := h.sem.Acquire(ctx, 1); err != nil {
		return false, fmt.Errorf("failed to acquire hasher slot: %w", err)
	}
	defer h.sem.Release(1)

	target := []byte(hash)
	if hash == "" {
		target = h.dummy()
	}
	err := bcrypt.CompareHashAndPassword(target, truncate(password))
	if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to compare password: %w", err)
	}
	return hash != "", nil
}

// dummy は存在しないアカウント用の照合対象ハッシュを返す。初回呼び出し時に生成する。
func (h *PasswordHasher) dummy() []byte {
	h.dummyOnce.Do(func() {
		b := make([]byte, 16)
		_, _ = rand.Read(b)
		h.dummyHash, _ = bcrypt.GenerateFromPassword([]byte(hex.EncodeToString(b)), h.cost)
	})
	return h.dummyHash
}

func truncate(password string) []byte {
	b := []byte(password)
	if len(b) > bcryptMaxBytes {
		b = b[:bcryptMaxBytes]
	}
	return b
}
