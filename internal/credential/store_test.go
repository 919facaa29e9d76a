package credential

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/hitoshi/catalyst/internal/database/dbtest"
	"github.com/hitoshi/catalyst/internal/model"
	"github.com/hitoshi/catalyst/internal/repository"
)

func newSQLiteStore(t *testing.T) (*Store, repository.AccountRepository) {
	t.Helper()
	accounts := repository.NewSQLiteAccountRepo(dbtest.NewSQLite(t))
	return NewStore(accounts, NewPasswordHasher(bcrypt.MinCost)), accounts
}

// --- モック定義 ---

type mockAccountRepo struct {
	createFn                func(ctx context.Context, account *model.Account) error
	findByIDFn              func(ctx context.Context, id string) (*model.Account, error)
	findByEmailFn           func(ctx context.Context, email string) (*model.Account, error)
	findBySteamIDFn         func(ctx context.Context, steamID string) (*model.Account, error)
	updateSteamIDFn         func(ctx context.Context, id, steamID string, updatedAt time.Time) (*model.Account, error)
	insertOrFindBySteamIDFn func(ctx context.Context, candidate *model.Account) (*model.Account, bool, error)
}

func (m *mockAccountRepo) Create(ctx context.Context, account *model.Account) error {
	if m.createFn != nil {
		return m.createFn(ctx, account)
	}
	return nil
}

func (m *mockAccountRepo) FindByID(ctx context.Context, id string) (*model.Account, error) {
	if m.findByIDFn != nil {
		return m.findByIDFn(ctx, id)
	}
	return nil, nil
}

func (m *mockAccountRepo) FindByEmail(ctx context.Context, email string) (*model.Account, error) {
	if m.findByEmailFn != nil {
		return m.findByEmailFn(ctx, email)
	}
	return nil, nil
}

func (m *mockAccountRepo) FindBySteamID(ctx context.Context, steamID string) (*model.Account, error) {
	if m.findBySteamIDFn != nil {
		return m.findBySteamIDFn(ctx, steamID)
	}
	return nil, nil
}

func (m *mockAccountRepo) UpdateSteamID(ctx context.Context, id, steamID string, updatedAt time.Time) (*model.Account, error) {
	if m.updateSteamIDFn != nil {
		return m.updateSteamIDFn(ctx, id, steamID, updatedAt)
	}
	return nil, nil
}

func (m *mockAccountRepo) InsertOrFindBySteamID(ctx context.Context, candidate *model.Account) (*model.Account, bool, error) {
	if m.insertOrFindBySteamIDFn != nil {
		return m.insertOrFindBySteamIDFn(ctx, candidate)
	}
	return candidate, true, nil
}

// --- CreateAccount ---

func TestStore_CreateAccount_NormalizesEmailAndHashes(t *testing.T) {
	store, _ := newSQLiteStore(t)

	account, err := store.CreateAccount(context.Background(), "  Alice@Example.COM ", "password123")
	if err != nil {
		t.Fatalf("CreateAccount() error = %v", err)
	}
	if account.Email != "alice@example.com" {
		t.Errorf("Email = %q, want %q", account.Email, "alice@example.com")
	}
	if account.PasswordHash == "" || account.PasswordHash == "password123" {
		t.Errorf("PasswordHash must be a bcrypt hash, got %q", account.PasswordHash)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(account.PasswordHash), []byte("password123")); err != nil {
		t.Errorf("stored hash does not match password: %v", err)
	}
}

func TestStore_CreateAccount_DuplicateEmailAnyCase(t *testing.T) {
	store, _ := newSQLiteStore(t)
	ctx := context.Background()

	if _, err := store.CreateAccount(ctx, "a@x.com", "password123"); err != nil {
		t.Fatalf("first CreateAccount() error = %v", err)
	}
	_, err := store.CreateAccount(ctx, "A@X.COM", "password456")
	if !errors.Is(err, model.ErrEmailTaken) {
		t.Errorf("second CreateAccount() error = %v, want EmailTaken", err)
	}
}

func TestStore_CreateAccount_RaceOnInsertMapsToEmailTaken(t *testing.T) {
	repo := &mockAccountRepo{
		createFn: func(_ context.Context, _ *model.Account) error {
			return repository.ErrDuplicateEmail
		},
	}
	store := NewStore(repo, NewPasswordHasher(bcrypt.MinCost))

	_, err := store.CreateAccount(context.Background(), "race@example.com", "password123")
	if !errors.Is(err, model.ErrEmailTaken) {
		t.Errorf("CreateAccount() error = %v, want EmailTaken", err)
	}
}

func TestStore_CreateAccount_InvalidInput(t *testing.T) {
	store := NewStore(&mockAccountRepo{}, NewPasswordHasher(bcrypt.MinCost))

	tests := []struct {
		name     string
		email    string
		password string
	}{
		{"missing at", "not-an-email", "password123"},
		{"no domain dot", "a@localhost", "password123"},
		{"short password", "a@x.com", "short"},
		{"long password", "a@x.com", string(make([]rune, 129))},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := store.CreateAccount(context.Background(), tt.email, tt.password)
			if !errors.Is(err, model.ErrInvalidInput) {
				t.Errorf("CreateAccount() error = %v, want InvalidInput", err)
			}
		})
	}
}

// --- VerifyCredentials ---

func TestStore_VerifyCredentials(t *testing.T) {
	store, _ := newSQLiteStore(t)
	ctx := context.Background()

	created, err := store.CreateAccount(ctx, "bob@example.com", "password123")
	if err != nil {
		t.Fatalf("CreateAccount() error = %v", err)
	}

	got, err := store.VerifyCredentials(ctx, "BOB@example.com", "password123")
	if err != nil {
		t.Fatalf("VerifyCredentials() error = %v", err)
	}
	if got.ID != created.ID {
		t.Errorf("ID = %s, want %s", got.ID, created.ID)
	}
}

func TestStore_VerifyCredentials_UnknownAndWrongAreIndistinguishable(t *testing.T) {
	store, _ := newSQLiteStore(t)
	ctx := context.Background()

	if _, err := store.CreateAccount(ctx, "carol@example.com", "password123"); err != nil {
		t.Fatalf("CreateAccount() error = %v", err)
	}

	_, wrongErr := store.VerifyCredentials(ctx, "carol@example.com", "wrongpassword")
	_, unknownErr := store.VerifyCredentials(ctx, "nobody@example.com", "password123")

	var wrong, unknown *model.APIError
	if !errors.As(wrongErr, &wrong) || !errors.As(unknownErr, &unknown) {
		t.Fatalf("expected APIErrors, got %v / %v", wrongErr, unknownErr)
	}
	if wrong.Code != model.ErrCodeInvalidCredentials || *wrong != *unknown {
		t.Errorf("errors differ: %+v vs %+v", wrong, unknown)
	}
}

func TestStore_VerifyCredentials_SteamOnlyAccountHasNoPassword(t *testing.T) {
	repo := &mockAccountRepo{
		findByEmailFn: func(_ context.Context, email string) (*model.Account, error) {
			return &model.Account{ID: "acc-1", Email: email}, nil
		},
	}
	store := NewStore(repo, NewPasswordHasher(bcrypt.MinCost))

	_, err := store.VerifyCredentials(context.Background(), "steam@example.com", "password123")
	if !errors.Is(err, model.ErrInvalidCredentials) {
		t.Errorf("VerifyCredentials() error = %v, want InvalidCredentials", err)
	}
}

// --- LinkExternalIdentity ---

func TestStore_LinkExternalIdentity(t *testing.T) {
	store, _ := newSQLiteStore(t)
	ctx := context.Background()

	account, err := store.CreateAccount(ctx, "link@example.com", "password123")
	if err != nil {
		t.Fatalf("CreateAccount() error = %v", err)
	}

	linked, err := store.LinkExternalIdentity(ctx, account.ID, "76561198000000100")
	if err != nil {
		t.Fatalf("LinkExternalIdentity() error = %v", err)
	}
	if linked.SteamID != "76561198000000100" {
		t.Errorf("SteamID = %q", linked.SteamID)
	}

	// 同じアカウントへの再連携は冪等
	again, err := store.LinkExternalIdentity(ctx, account.ID, "76561198000000100")
	if err != nil {
		t.Fatalf("second LinkExternalIdentity() error = %v", err)
	}
	if again.ID != account.ID {
		t.Errorf("ID = %s, want %s", again.ID, account.ID)
	}
}

func TestStore_LinkExternalIdentity_TakenByOtherAccount(t *testing.T) {
	store, accounts := newSQLiteStore(t)
	ctx := context.Background()

	owner, err := store.CreateAccount(ctx, "owner@example.com", "password123")
	if err != nil {
		t.Fatalf("CreateAccount() error = %v", err)
	}
	other, err := store.CreateAccount(ctx, "other@example.com", "password123")
	if err != nil {
		t.Fatalf("CreateAccount() error = %v", err)
	}
	if _, err := store.LinkExternalIdentity(ctx, owner.ID, "76561198000000200"); err != nil {
		t.Fatalf("LinkExternalIdentity() error = %v", err)
	}

	_, err = store.LinkExternalIdentity(ctx, other.ID, "76561198000000200")
	if !errors.Is(err, model.ErrExternalIdentityTaken) {
		t.Fatalf("LinkExternalIdentity() error = %v, want ExternalIdentityTaken", err)
	}

	// 両アカウントとも変更されていない
	gotOwner, _ := accounts.FindByID(ctx, owner.ID)
	gotOther, _ := accounts.FindByID(ctx, other.ID)
	if gotOwner.SteamID != "76561198000000200" {
		t.Errorf("owner SteamID = %q", gotOwner.SteamID)
	}
	if gotOther.SteamID != "" {
		t.Errorf("other SteamID = %q, want empty", gotOther.SteamID)
	}
}

func TestStore_LinkExternalIdentity_ConstraintRace(t *testing.T) {
	repo := &mockAccountRepo{
		findByIDFn: func(_ context.Context, id string) (*model.Account, error) {
			return &model.Account{ID: id}, nil
		},
		updateSteamIDFn: func(_ context.Context, _, _ string, _ time.Time) (*model.Account, error) {
			return nil, repository.ErrDuplicateSteamID
		},
	}
	store := NewStore(repo, NewPasswordHasher(bcrypt.MinCost))

	_, err := store.LinkExternalIdentity(context.Background(), "acc-1", "76561198000000300")
	if !errors.Is(err, model.ErrExternalIdentityTaken) {
		t.Errorf("LinkExternalIdentity() error = %v, want ExternalIdentityTaken", err)
	}
}

func TestStore_LinkExternalIdentity_AccountNotFound(t *testing.T) {
	store := NewStore(&mockAccountRepo{}, NewPasswordHasher(bcrypt.MinCost))

	_, err := store.LinkExternalIdentity(context.Background(), "missing", "76561198000000400")
	if !errors.Is(err, model.ErrAccountNotFound) {
		t.Errorf("LinkExternalIdentity() error = %v, want AccountNotFound", err)
	}
}

// --- GetOrCreateByExternalID ---

func TestStore_GetOrCreateByExternalID_Concurrent(t *testing.T) {
	store, _ := newSQLiteStore(t)
	ctx := context.Background()

	const workers = 2
	results := make([]*model.Account, workers)
	errs := make([]error, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = store.GetOrCreateByExternalID(ctx, "76561198000000500")
		}(i)
	}
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			t.Fatalf("GetOrCreateByExternalID() #%d error = %v", i, err)
		}
	}
	if results[0].ID != results[1].ID {
		t.Errorf("accounts differ: %s vs %s", results[0].ID, results[1].ID)
	}
	if results[0].Email != "" || results[0].HasPassword() {
		t.Errorf("steam-only account must have no email or password: %+v", results[0])
	}
}

func TestStore_GetOrCreateByExternalID_ReturnsExisting(t *testing.T) {
	store, _ := newSQLiteStore(t)
	ctx := context.Background()

	account, err := store.CreateAccount(ctx, "existing@example.com", "password123")
	if err != nil {
		t.Fatalf("CreateAccount() error = %v", err)
	}
	if _, err := store.LinkExternalIdentity(ctx, account.ID, "76561198000000600"); err != nil {
		t.Fatalf("LinkExternalIdentity() error = %v", err)
	}

	got, err := store.GetOrCreateByExternalID(ctx, "76561198000000600")
	if err != nil {
		t.Fatalf("GetOrCreateByExternalID() error = %v", err)
	}
	if got.ID != account.ID {
		t.Errorf("ID = %s, want existing %s", got.ID, account.ID)
	}
}

// --- GetAccount ---

func TestStore_GetAccount_NotFound(t *testing.T) {
	store := NewStore(&mockAccountRepo{}, NewPasswordHasher(bcrypt.MinCost))

	_, err := store.GetAccount(context.Background(), "missing")
	if !errors.Is(err, model.ErrAccountNotFound) {
		t.Errorf("GetAccount() error = %v, want AccountNotFound", err)
	}
}

func TestStore_GetAccount_RepositoryError(t *testing.T) {
	dbErr := errors.New("connection refused")
	repo := &mockAccountRepo{
		findByIDFn: func(_ context.Context, _ string) (*model.Account, error) {
			return nil, dbErr
		},
	}
	store := NewStore(repo, NewPasswordHasher(bcrypt.MinCost))

	_, err := store.GetAccount(context.Background(), "acc-1")
	if !errors.Is(err, dbErr) {
		t.Errorf("GetAccount() error = %v, want wrapped %v", err, dbErr)
	}
}

// --- WithAccounts ---

func TestStore_WithAccounts_UsesGivenRepository(t *testing.T) {
	base, baseRepo := newSQLiteStore(t)
	var lookedUp string
	bound := &mockAccountRepo{
		findByIDFn: func(_ context.Context, id string) (*model.Account, error) {
			lookedUp = id
			return &model.Account{ID: id}, nil
		},
	}

	got, err := base.WithAccounts(bound).GetAccount(context.Background(), "acc-tx")
	if err != nil {
		t.Fatalf("GetAccount() error = %v", err)
	}
	if got.ID != "acc-tx" || lookedUp != "acc-tx" {
		t.Errorf("GetAccount() = %+v via %q, want lookup through bound repository", got, lookedUp)
	}

	// 元のStoreは元のリポジトリを使い続ける
	if _, err := base.GetAccount(context.Background(), "acc-tx"); !errors.Is(err, model.ErrAccountNotFound) {
		t.Errorf("base GetAccount() error = %v, want AccountNotFound", err)
	}
	if a, _ := baseRepo.FindByID(context.Background(), "acc-tx"); a != nil {
		t.Error("base repository should be untouched")
	}
}
