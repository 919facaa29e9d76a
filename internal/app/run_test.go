package app

import (
	"bytes"
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/hitoshi/catalyst/internal/config"
	"github.com/hitoshi/catalyst/internal/credential"
	"github.com/hitoshi/catalyst/internal/database"
	"github.com/hitoshi/catalyst/internal/repository"
	"github.com/hitoshi/catalyst/internal/session"
)

func TestRun_WithMissingEnv_ReturnsError(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	t.Setenv("BASE_URL", "")
	t.Setenv("FRONTEND_URL", "")

	var buf bytes.Buffer
	if err := Run(&buf, []string{"serve"}); err == nil {
		t.Fatal("Run with missing env should return error")
	}
}

func TestRun_MigrateCommand_SQLite(t *testing.T) {
	setTestEnv(t)

	var buf bytes.Buffer
	if err := Run(&buf, []string{"migrate"}); err != nil {
		t.Fatalf("Run(migrate) error = %v", err)
	}
	if !strings.Contains(buf.String(), "database migrations completed successfully") {
		t.Errorf("expected completion log, got %s", buf.String())
	}
}

func TestRun_SweepCommand_RemovesExpiredSessions(t *testing.T) {
	databaseURL := setTestEnv(t)
	if err := database.RunMigrations(databaseURL); err != nil {
		t.Fatalf("RunMigrations() error = %v", err)
	}

	db, _, err := database.Open(databaseURL)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer db.Close()

	repos := repository.New(db, database.BackendSQLite)
	store := credential.NewStore(repos.Accounts, credential.NewPasswordHasher(bcrypt.MinCost))
	account, err := store.CreateAccount(context.Background(), "sweep@x.com", "password123")
	if err != nil {
		t.Fatalf("CreateAccount() error = %v", err)
	}
	manager := session.NewManager(repos.Sessions, store, nil, session.Config{TTL: time.Millisecond})
	if _, err := manager.Issue(context.Background(), account.ID); err != nil {
		t.Fatalf("Issue() error = %v", err)
	}
	time.Sleep(10 * time.Millisecond)

	var buf bytes.Buffer
	if err := Run(&buf, []string{"sweep"}); err != nil {
		t.Fatalf("Run(sweep) error = %v", err)
	}
	if !strings.Contains(buf.String(), `"deleted_count":1`) {
		t.Errorf("expected one session swept, log: %s", buf.String())
	}
}

func TestRunHealthcheck(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/health" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	_, port, err := net.SplitHostPort(srv.Listener.Addr().String())
	if err != nil {
		t.Fatalf("SplitHostPort: %v", err)
	}
	if err := runHealthcheck(port); err != nil {
		t.Errorf("runHealthcheck() error = %v", err)
	}
}

func TestRunHealthcheck_NothingListening(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	_, port, _ := net.SplitHostPort(ln.Addr().String())
	ln.Close()

	if err := runHealthcheck(port); err == nil {
		t.Error("runHealthcheck() should fail when nothing is listening")
	}
}

// TestServe_StartsAndShutsDown はSQLiteで起動し、/healthと/metricsに応答した後、
// コンテキストのキャンセルで正常終了することを検証する。
func TestServe_StartsAndShutsDown(t *testing.T) {
	setTestEnv(t)
	cfg, err := config.Load()
	if err != nil {
		t.Fatalf("config.Load() error = %v", err)
	}

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	base := "http://" + ln.Addr().String()

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- serve(ctx, cfg, ln) }()

	client := &http.Client{Timeout: time.Second}
	var resp *http.Response
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		resp, err = client.Get(base + "/health")
		if err == nil {
			break
		}
		time.Sleep(20 * time.Millisecond)
	}
	if err != nil {
		cancel()
		t.Fatalf("server did not become ready: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("/health status = %d, want 200", resp.StatusCode)
	}

	resp, err = client.Get(base + "/metrics")
	if err != nil {
		t.Fatalf("GET /metrics: %v", err)
	}
	var body bytes.Buffer
	body.ReadFrom(resp.Body)
	resp.Body.Close()
	if !strings.Contains(body.String(), "catalyst_http_responses_total") {
		t.Errorf("/metrics should expose catalyst metrics")
	}

	cancel()
	select {
	case err := <-errCh:
		if err != nil {
			t.Errorf("serve() error = %v", err)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("serve() did not stop after cancel")
	}
}
