package esign

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/hitoshi/signman/internal/model"
)

// defaultExpiresInSeconds は認証レスポンスにexpires-inが無い場合の
// デフォルトの有効期間（秒）。
const defaultExpiresInSeconds = 3600

// tokenResponse はベンダーのトークンエンドポイントのレスポンス。
// トークンフィールド名はベンダーのバージョンにより2種類存在するため
// 両方を受け付ける。
type tokenResponse struct {
	AccessToken    string `json:"access_token"`
	AccessTokenAlt string `json:"accessToken"`
	TokenType      string `json:"token_type"`
	ExpiresIn      int    `json:"expires_in"`
}

// token はレスポンスに含まれるアクセストークンを返す。
// access_tokenを優先し、無ければaccessTokenを使用する。
func (r *tokenResponse) token() string {
	if r.AccessToken != "" {
		return r.AccessToken
	}
	return r.AccessTokenAlt
}

// Authenticate は有効なベアラートークンを返す。
//
// キャッシュ済みトークンが有効な間はネットワーク呼び出しなしでそれを返す。
// これが最重要の不変条件であり、トークン取得は失効ウィンドウごとに
// 最大1回しか発生しない。キャッシュが無効な場合のみ、クライアント
// クレデンシャルをform-encodedで認証エンドポイントにPOSTし、
// 取得したトークンをConfigSource経由で永続化する。
//
// 接続設定が未完了の場合はconfigurationカテゴリのエラーで失敗する。
func (c *Client) Authenticate(ctx context.Context) (string, error) {
	if !c.store.IsInitialized() {
		return "", model.NewConfigNotInitializedError()
	}

	// キャッシュヒット: 再認証せずそのまま返す
	if c.store.IsTokenValid() {
		conn := c.store.Get(true)
		if conn.AccessToken != nil {
			return *conn.AccessToken, nil
		}
	}

	conn := c.store.Get(true)
	data := url.Values{
		"grant_type":    {"client_credentials"},
		"client_id":     {conn.ClientID},
		"client_secret": {conn.ClientSecret},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.resolveAuthURL(), strings.NewReader(data.Encode()))
	if err != nil {
		return "", model.NewTransportError(err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Error("ベンダー認証エンドポイントの呼び出しに失敗しました",
			slog.String("error", err.Error()),
		)
		return "", model.NewTransportError(err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", model.NewTransportError(err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		c.logger.Error("ベンダー認証が拒否されました",
			slog.Int("http_status", resp.StatusCode),
		)
		return "", model.NewAuthFailedError(resp.StatusCode, string(body))
	}

	var tokenResp tokenResponse
	if err := json.Unmarshal(body, &tokenResp); err != nil {
		return "", model.NewAuthNoTokenError()
	}

	token := tokenResp.token()
	if token == "" {
		return "", model.NewAuthNoTokenError()
	}

	expiresIn := tokenResp.ExpiresIn
	if expiresIn <= 0 {
		expiresIn = defaultExpiresInSeconds
	}

	if err := c.store.UpdateToken(ctx, token, expiresIn); err != nil {
		// 永続化に失敗してもトークン自体は有効なため処理は続行する
		c.logger.Error("取得したトークンの永続化に失敗しました",
			slog.String("error", err.Error()),
		)
	}

	if c.collector != nil {
		c.collector.RecordTokenRefresh()
	}

	slog.Info("ベンダー認証に成功しました",
		slog.Int("expires_in", expiresIn),
	)

	return token, nil
}
