package steam

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
)

func newTestLogger(buf *bytes.Buffer) *slog.Logger {
	return slog.New(slog.NewJSONHandler(buf, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
}

func TestOpenIDClient_AuthorizationURL(t *testing.T) {
	c := NewOpenIDClient(http.DefaultClient, nil, "")

	raw := c.AuthorizationURL("https://api.example.com/auth/steam/callback?state=abc", "https://api.example.com")
	u, err := url.Parse(raw)
	if err != nil {
		t.Fatalf("AuthorizationURL() returned invalid URL: %v", err)
	}
	if got := u.Scheme + "://" + u.Host + u.Path; got != DefaultOpenIDEndpoint {
		t.Errorf("endpoint = %s, want %s", got, DefaultOpenIDEndpoint)
	}

	q := u.Query()
	want := map[string]string{
		"openid.ns":         "http://specs.openid.net/auth/2.0",
		"openid.mode":       "checkid_setup",
		"openid.return_to":  "https://api.example.com/auth/steam/callback?state=abc",
		"openid.realm":      "https://api.example.com",
		"openid.identity":   "http://specs.openid.net/auth/2.0/identifier_select",
		"openid.claimed_id": "http://specs.openid.net/auth/2.0/identifier_select",
	}
	for k, v := range want {
		if q.Get(k) != v {
			t.Errorf("%s = %q, want %q", k, q.Get(k), v)
		}
	}
}

func TestOpenIDClient_Endpoint(t *testing.T) {
	if got := NewOpenIDClient(http.DefaultClient, nil, "").Endpoint(); got != DefaultOpenIDEndpoint {
		t.Errorf("Endpoint() = %s, want %s", got, DefaultOpenIDEndpoint)
	}
	if got := NewOpenIDClient(http.DefaultClient, nil, "http://127.0.0.1:9/openid/login").Endpoint(); got != "http://127.0.0.1:9/openid/login" {
		t.Errorf("Endpoint() = %s, want configured endpoint", got)
	}
}

func TestOpenIDClient_Verify(t *testing.T) {
	tests := []struct {
		name string
		body string
		want bool
	}{
		{"valid", "ns:http://specs.openid.net/auth/2.0\nis_valid:true\n", true},
		{"invalid", "ns:http://specs.openid.net/auth/2.0\nis_valid:false\n", false},
		{"empty", "", false},
		{"crlf", "ns:http://specs.openid.net/auth/2.0\r\nis_valid:true\r\n", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if r.Method != http.MethodPost {
					t.Errorf("method = %s, want POST", r.Method)
				}
				if err := r.ParseForm(); err != nil {
					t.Fatalf("ParseForm() error = %v", err)
				}
				if r.PostForm.Get("openid.mode") != ModeCheckAuthentication {
					t.Errorf("openid.mode = %q, want check_authentication", r.PostForm.Get("openid.mode"))
				}
				if r.PostForm.Get("openid.sig") != "sig" {
					t.Errorf("openid.sig = %q, want passthrough", r.PostForm.Get("openid.sig"))
				}
				if r.PostForm.Has("state") {
					t.Error("non-openid parameters should not be forwarded")
				}
				io.WriteString(w, tt.body)
			}))
			defer server.Close()

			c := NewOpenIDClient(server.Client(), nil, server.URL)
			params := url.Values{
				"openid.mode": {ModeIDRes},
				"openid.sig":  {"sig"},
				"state":       {"abc"},
			}
			got, err := c.Verify(context.Background(), params)
			if err != nil {
				t.Fatalf("Verify() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("Verify() = %v, want %v", got, tt.want)
			}
			// 呼び出し元のパラメータは変更しない
			if params.Get("openid.mode") != ModeIDRes {
				t.Error("Verify() must not mutate the caller's params")
			}
		})
	}
}

func TestOpenIDClient_Verify_ErrorStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	var buf bytes.Buffer
	c := NewOpenIDClient(server.Client(), newTestLogger(&buf), server.URL)
	_, err := c.Verify(context.Background(), url.Values{})
	if err == nil {
		t.Fatal("Verify() should fail on 503")
	}
	if !strings.Contains(buf.String(), "error status") {
		t.Errorf("expected error log, got %s", buf.String())
	}
}

func TestOpenIDClient_Verify_TransportError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	endpoint := server.URL
	server.Close()

	var buf bytes.Buffer
	c := NewOpenIDClient(http.DefaultClient, newTestLogger(&buf), endpoint)
	if _, err := c.Verify(context.Background(), url.Values{}); err == nil {
		t.Fatal("Verify() should fail when the provider is unreachable")
	}
}

func TestParseClaimedID(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{"https://steamcommunity.com/openid/id/76561197960287930", "76561197960287930", false},
		{"http://steamcommunity.com/openid/id/76561197960287930", "76561197960287930", false},
		{"https://steamcommunity.com/openid/id/7656119796028793", "", true},
		{"https://steamcommunity.com/openid/id/765611979602879300", "", true},
		{"https://evil.example.com/openid/id/76561197960287930", "", true},
		{"https://steamcommunity.com/openid/id/76561197960287930/extra", "", true},
		{"", "", true},
	}
	for _, tt := range tests {
		got, err := ParseClaimedID(tt.in)
		if tt.wantErr {
			if !errors.Is(err, ErrMalformedClaimedID) {
				t.Errorf("ParseClaimedID(%q) error = %v, want ErrMalformedClaimedID", tt.in, err)
			}
			continue
		}
		if err != nil || got != tt.want {
			t.Errorf("ParseClaimedID(%q) = %q, %v; want %q", tt.in, got, err, tt.want)
		}
	}
}
