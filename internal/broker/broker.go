// Package broker はSteam OpenIDによる委譲ログインのハンドシェイクを仲介する。
package broker

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/hitoshi/catalyst/internal/metrics"
	"github.com/hitoshi/catalyst/internal/model"
	"github.com/hitoshi/catalyst/internal/steam"
)

// DefaultStateTTL はstateの有効期間のデフォルト値。
const DefaultStateTTL = 10 * time.Minute

// CallbackPath はSteamからのcallbackを受けるパス。
const CallbackPath = "/auth/steam/callback"

// IdentityProvider はOpenIDプロバイダーとのやり取りのインターフェース。
type IdentityProvider interface {
	// Endpoint はアサーションのop_endpointと一致すべきプロバイダーのURLを返す。
	Endpoint() string
	AuthorizationURL(returnTo, realm string) string
	Verify(ctx context.Context, params url.Values) (bool, error)
}

// AccountLinker はアカウントとSteam IDの紐付けのインターフェース。
type AccountLinker interface {
	LinkExternalIdentity(ctx context.Context, accountID, steamID string) (*model.Account, error)
	GetOrCreateByExternalID(ctx context.Context, steamID string) (*model.Account, error)
}

// SessionIssuer はセッション発行のインターフェース。
type SessionIssuer interface {
	Issue(ctx context.Context, accountID string) (string, error)
}

// CatalogSyncer はライブラリ同期のインターフェース。失敗時は0を返す。
type CatalogSyncer interface {
	SyncBestEffort(ctx context.Context, account *model.Account) int
}

// Config はBrokerの設定。
type Config struct {
	BaseURL  string // realmおよびcallback URLの基点
	StateTTL time.Duration
}

// Broker はFederated Identity Broker。
type Broker struct {
	provider IdentityProvider
	tx       Transactor
	syncer   CatalogSyncer
	states   *PendingStateStore
	metrics  metrics.MetricsCollector

	realm       string
	callbackURL string
	stateTTL    time.Duration
	now         func() time.Time
}

// New はBrokerを生成する。
func New(
	provider IdentityProvider,
	tx Transactor,
	syncer CatalogSyncer,
	states *PendingStateStore,
	collector metrics.MetricsCollector,
	cfg Config,
) *Broker {
	if cfg.StateTTL <= 0 {
		cfg.StateTTL = DefaultStateTTL
	}
	if collector == nil {
		collector = metrics.Nop{}
	}
	base := strings.TrimRight(cfg.BaseURL, "/")
	return &Broker{
		provider:    provider,
		tx:          tx,
		syncer:      syncer,
		states:      states,
		metrics:     collector,
		realm:       base,
		callbackURL: base + CallbackPath,
		stateTTL:    cfg.StateTTL,
		now:         time.Now,
	}
}

// Start は新しいstateを発行し、Steamの認可URLを返す。
// accountIDはログイン済みで開始した場合のアカウントID。未ログインなら空文字列。
func (b *Broker) Start(_ context.Context, accountID string) (string, error) {
	state, err := newState()
	if err != nil {
		return "", fmt.Errorf("failed to generate state: %w", err)
	}

	b.states.Put(model.PendingState{
		State:     state,
		AccountID: accountID,
		ExpiresAt: b.now().Add(b.stateTTL),
	})

	returnTo := b.callbackURL + "?" + url.Values{"state": {state}}.Encode()
	slog.Info("steam login started",
		slog.String("account_id", accountID),
		slog.String("state_prefix", state[:8]),
	)
	return b.provider.AuthorizationURL(returnTo, b.realm), nil
}

// Callback はSteamからのcallbackを処理する。
// stateは最初の参照時に消費され、以降の検証結果に関わらず再利用できない。
// state消費後は呼び出し元の切断に関わらず最後まで処理する。
// アカウントの紐付けとセッション発行は1つのトランザクションで行い、失敗時はどちらも残らない。
func (b *Broker) Callback(ctx context.Context, params url.Values) Outcome {
	state := params.Get("state")
	pending, ok := b.states.Consume(state, b.now())
	if !ok {
		return b.reject(model.NewInvalidOrExpiredStateError(), "")
	}
	ctx = context.WithoutCancel(ctx)

	if mode := params.Get("openid.mode"); mode != steam.ModeIDRes {
		return b.reject(model.NewAuthFailedError(), pending.AccountID, slog.String("openid_mode", mode))
	}
	if reason := b.mismatchedAssertion(params, state); reason != "" {
		return b.reject(model.NewAuthFailedError(), pending.AccountID, slog.String("mismatch", reason))
	}

	start := time.Now()
	valid, err := b.provider.Verify(ctx, params)
	b.metrics.RecordProviderLatency("verify", time.Since(start))
	if err != nil {
		return b.reject(model.NewUpstreamProviderError(), pending.AccountID, slog.String("error", err.Error()))
	}
	if !valid {
		return b.reject(model.NewAuthFailedError(), pending.AccountID)
	}

	steamID, err := steam.ParseClaimedID(params.Get("openid.claimed_id"))
	if err != nil {
		return b.reject(model.NewMalformedAssertionError(), pending.AccountID)
	}

	var (
		account *model.Account
		token   string
	)
	err = b.tx.InTx(ctx, func(accounts AccountLinker, sessions SessionIssuer) error {
		var err error
		if pending.AccountID != "" {
			account, err = accounts.LinkExternalIdentity(ctx, pending.AccountID, steamID)
		} else {
			account, err = accounts.GetOrCreateByExternalID(ctx, steamID)
		}
		if err != nil {
			return err
		}
		token, err = sessions.Issue(ctx, account.ID)
		if err != nil {
			return fmt.Errorf("failed to issue session: %w", err)
		}
		return nil
	})
	if err != nil {
		return b.reject(asAPIError(err), pending.AccountID, slog.String("steam_id", steamID), slog.String("error", err.Error()))
	}

	synced := b.syncer.SyncBestEffort(ctx, account)

	b.metrics.RecordFederatedOutcome(metrics.OutcomeLinked)
	slog.Info("steam login completed",
		slog.String("account_id", account.ID),
		slog.String("steam_id", steamID),
		slog.Int("synced_games", synced),
	)
	return Linked{
		Account:      account,
		ExternalID:   steamID,
		SyncedCount:  synced,
		SessionToken: token,
	}
}

// mismatchedAssertion はアサーションがこのサービスのcallback宛てに設定済みのプロバイダーから発行されたかを確認する。
// 一致しない項目名を返し、問題がなければ空文字列を返す。
func (b *Broker) mismatchedAssertion(params url.Values, state string) string {
	if params.Get("openid.op_endpoint") != b.provider.Endpoint() {
		return "op_endpoint"
	}
	returnTo, err := url.Parse(params.Get("openid.return_to"))
	if err != nil {
		return "return_to"
	}
	if returnTo.Scheme+"://"+returnTo.Host+returnTo.Path != b.callbackURL {
		return "return_to"
	}
	if returnTo.Query().Get("state") != state {
		return "return_to_state"
	}
	return ""
}

// PendingStates はstateの保持数を返す。
func (b *Broker) PendingStates() int {
	return b.states.Len()
}

func (b *Broker) reject(reason *model.APIError, accountID string, attrs ...slog.Attr) Outcome {
	b.metrics.RecordFederatedOutcome(reason.Code)
	args := []any{
		slog.String("reason", reason.Code),
		slog.String("account_id", accountID),
	}
	for _, a := range attrs {
		args = append(args, a)
	}
	slog.Warn("steam login rejected", args...)
	return Rejected{Reason: reason}
}

// asAPIError はドメインエラーをそのまま返し、それ以外は内部エラーに置き換える。
func asAPIError(err error) *model.APIError {
	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		return apiErr
	}
	return model.NewInternalError()
}

// newState は256bitのランダムなstateを生成する。
func newState() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
