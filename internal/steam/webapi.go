package steam

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
)

const (
	// DefaultOwnedGamesEndpoint はGetOwnedGamesのエンドポイント。
	DefaultOwnedGamesEndpoint = "https://api.steampowered.com/IPlayerService/GetOwnedGames/v1/"

	artworkURLFormat = "https://media.steampowered.com/steamcommunity/public/images/apps/%d/%s.jpg"

	maxOwnedGamesBodyBytes = 32 << 20
)

// ErrMissingAPIKey はAPIキー未設定の場合のエラー。
var ErrMissingAPIKey = errors.New("steam web api key is not configured")

// OwnedGame はGetOwnedGamesが返す1件のゲーム。
type OwnedGame struct {
	AppID           int64  `json:"appid"`
	Name            string `json:"name"`
	PlaytimeForever int64  `json:"playtime_forever"`
	ImgLogoURL      string `json:"img_logo_url"`
}

// ArtworkURL はロゴ画像のURLを返す。ロゴハッシュがない場合は空文字列。
func (g OwnedGame) ArtworkURL() string {
	if g.ImgLogoURL == "" {
		return ""
	}
	return fmt.Sprintf(artworkURLFormat, g.AppID, g.ImgLogoURL)
}

type ownedGamesResponse struct {
	Response struct {
		GameCount int         `json:"game_count"`
		Games     []OwnedGame `json:"games"`
	} `json:"response"`
}

// WebAPIClient はSteam Web APIのクライアント。
type WebAPIClient struct {
	httpClient *http.Client
	logger     *slog.Logger
	endpoint   string
	apiKey     string
}

// NewWebAPIClient はWebAPIClientを生成する。endpointが空の場合はDefaultOwnedGamesEndpointを使う。
func NewWebAPIClient(httpClient *http.Client, logger *slog.Logger, endpoint, apiKey string) *WebAPIClient {
	if endpoint == "" {
		endpoint = DefaultOwnedGamesEndpoint
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &WebAPIClient{
		httpClient: httpClient,
		logger:     logger,
		endpoint:   endpoint,
		apiKey:     strings.TrimSpace(apiKey),
	}
}

// HasAPIKey はAPIキーが設定されているかを返す。
func (c *WebAPIClient) HasAPIKey() bool {
	return c.apiKey != ""
}

// GetOwnedGames は所有ゲーム一覧を取得する。無料プレイのゲームも含む。
func (c *WebAPIClient) GetOwnedGames(ctx context.Context, steamID string) ([]OwnedGame, error) {
	if !c.HasAPIKey() {
		return nil, ErrMissingAPIKey
	}

	reqURL, err := url.Parse(c.endpoint)
	if err != nil {
		return nil, fmt.Errorf("failed to parse owned games endpoint: %w", err)
	}
	q := reqURL.Query()
	q.Set("key", c.apiKey)
	q.Set("steamid", steamID)
	q.Set("include_appinfo", "true")
	q.Set("include_played_free_games", "true")
	q.Set("format", "json")
	reqURL.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create owned games request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		// URLにAPIキーが含まれるためエラー文字列はログに出さない
		c.logger.Error("steam owned games request failed", slog.String("steam_id", steamID))
		return nil, fmt.Errorf("owned games request failed: %w", redactURLError(err))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		c.logger.Error("steam owned games returned error status",
			slog.Int("http_status", resp.StatusCode),
			slog.String("steam_id", steamID),
		)
		return nil, fmt.Errorf("owned games request failed with status %d", resp.StatusCode)
	}

	var payload ownedGamesResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxOwnedGamesBodyBytes)).Decode(&payload); err != nil {
		return nil, fmt.Errorf("failed to decode owned games response: %w", err)
	}
	if payload.Response.Games == nil {
		return []OwnedGame{}, nil
	}
	return payload.Response.Games, nil
}

// redactURLError は*url.ErrorからURLを取り除く。
func redactURLError(err error) error {
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return fmt.Errorf("%s: %w", urlErr.Op, urlErr.Err)
	}
	return err
}
