// Package steam はSteam OpenID 2.0によるログインとSteam Web APIの呼び出しを提供する。
package steam

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"regexp"
	"strings"
)

const (
	// DefaultOpenIDEndpoint はSteam OpenIDのエンドポイント。
	DefaultOpenIDEndpoint = "https://steamcommunity.com/openid/login"

	openIDNamespace        = "http://specs.openid.net/auth/2.0"
	openIDIdentifierSelect = "http://specs.openid.net/auth/2.0/identifier_select"

	// maxVerifyBodyBytes は検証レスポンスとして読み取る最大バイト数。
	maxVerifyBodyBytes = 64 << 10
)

// OpenIDのモード値
const (
	ModeCheckIDSetup        = "checkid_setup"
	ModeCheckAuthentication = "check_authentication"
	ModeCancel              = "cancel"
	ModeIDRes               = "id_res"
)

// claimedIDPattern はSteamのclaimed_idから17桁のSteam IDを取り出す。
var claimedIDPattern = regexp.MustCompile(`^https?://steamcommunity\.com/openid/id/(\d{17})$`)

// ErrMalformedClaimedID はclaimed_idがSteamの形式でない場合のエラー。
var ErrMalformedClaimedID = errors.New("malformed steam claimed id")

// OpenIDClient はSteam OpenID 2.0のRelying Party側クライアント。
type OpenIDClient struct {
	httpClient *http.Client
	logger     *slog.Logger
	endpoint   string
}

// NewOpenIDClient はOpenIDClientを生成する。endpointが空の場合はDefaultOpenIDEndpointを使う。
func NewOpenIDClient(httpClient *http.Client, logger *slog.Logger, endpoint string) *OpenIDClient {
	if endpoint == "" {
		endpoint = DefaultOpenIDEndpoint
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &OpenIDClient{
		httpClient: httpClient,
		logger:     logger,
		endpoint:   endpoint,
	}
}

// Endpoint はOpenIDエンドポイントを返す。正規のアサーションのopenid.op_endpointはこの値と一致する。
func (c *OpenIDClient) Endpoint() string {
	return c.endpoint
}

// AuthorizationURL はユーザーをSteamのログイン画面へ誘導するURLを生成する。
// returnToにはstateを含むcallback URL、realmにはサービスのベースURLを渡す。
func (c *OpenIDClient) AuthorizationURL(returnTo, realm string) string {
	params := url.Values{
		"openid.ns":         {openIDNamespace},
		"openid.mode":       {ModeCheckIDSetup},
		"openid.return_to":  {returnTo},
		"openid.realm":      {realm},
		"openid.identity":   {openIDIdentifierSelect},
		"openid.claimed_id": {openIDIdentifierSelect},
	}
	return c.endpoint + "?" + params.Encode()
}

// Verify はcallbackで受け取ったパラメータをcheck_authenticationモードでSteamへ送り返し、
// アサーションが有効かを確認する。通信失敗や非2xxの場合はエラーを返す。
func (c *OpenIDClient) Verify(ctx context.Context, params url.Values) (bool, error) {
	form := url.Values{}
	for key, values := range params {
		if !strings.HasPrefix(key, "openid.") || key == "openid.mode" {
			continue
		}
		form[key] = append([]string(nil), values...)
	}
	form.Set("openid.mode", ModeCheckAuthentication)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return false, fmt.Errorf("failed to create verification request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Error("steam openid verification request failed", slog.String("error", err.Error()))
		return false, fmt.Errorf("verification request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		c.logger.Error("steam openid verification returned error status", slog.Int("http_status", resp.StatusCode))
		return false, fmt.Errorf("verification failed with status %d", resp.StatusCode)
	}

	valid, err := parseIsValid(io.LimitReader(resp.Body, maxVerifyBodyBytes))
	if err != nil {
		return false, fmt.Errorf("failed to read verification response: %w", err)
	}
	return valid, nil
}

// parseIsValid はKey-Value形式のレスポンスに is_valid:true の行があるかを判定する。
func parseIsValid(r io.Reader) (bool, error) {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		key, value, ok := strings.Cut(strings.TrimSpace(scanner.Text()), ":")
		if ok && key == "is_valid" && value == "true" {
			return true, nil
		}
	}
	return false, scanner.Err()
}

// ParseClaimedID はclaimed_idからSteam ID（17桁）を取り出す。
func ParseClaimedID(claimedID string) (string, error) {
	m := claimedIDPattern.FindStringSubmatch(strings.TrimSpace(claimedID))
	if m == nil {
		return "", ErrMalformedClaimedID
	}
	return m[1], nil
}
