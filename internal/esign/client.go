// Package esign はeSignatureベンダーAPIのクライアントを提供する。
// クライアントクレデンシャル認証によるトークン取得・キャッシュと、
// 全アウトバウンド呼び出しの単一チョークポイントとなるリクエスト処理を含む。
package esign

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/hitoshi/signman/internal/config"
	"github.com/hitoshi/signman/internal/metrics"
	"github.com/hitoshi/signman/internal/model"
	"github.com/hitoshi/signman/internal/security"
)

// defaultDocumentFilename はドキュメントアップロード時のフォールバックファイル名。
const defaultDocumentFilename = "document.pdf"

// ConfigSource はクライアントが必要とする接続設定のインターフェース。
type ConfigSource interface {
	// Get は現在の接続設定のコピーを返す。
	Get(includeSecret bool) *model.Connection
	// IsInitialized は接続設定が完了しているかどうかを返す。
	IsInitialized() bool
	// IsTokenValid はキャッシュ済みトークンが現在有効かどうかを返す。
	IsTokenValid() bool
	// UpdateToken は新しいトークンと失効時刻を永続化する。
	UpdateToken(ctx context.Context, token string, expiresInSeconds int) error
	// ResolveURLs は現在のリージョンに対応するURLの組を返す。
	ResolveURLs() config.Endpoints
}

// Client はベンダーAPIのクライアント。
// すべてのエンドポイント呼び出しはRequestを経由し、認証・ヘッダー付与・
// レスポンス正規化を一元的に行う。リトライは一切行わない。
type Client struct {
	httpClient *http.Client
	store      ConfigSource
	guard      security.URLGuardService
	logger     *slog.Logger
	collector  metrics.MetricsCollector

	// テスト用にURLを差し替え可能。空の場合はResolveURLsの値を使用する。
	authURL    string
	apiBaseURL string
}

// NewClient はClientの新しいインスタンスを生成する。
// httpClientにはタイムアウト設定済みのクライアント
// （本番ではsecurity.URLGuardService.NewSafeClientの生成物）を渡す。
func NewClient(
	httpClient *http.Client,
	store ConfigSource,
	guard security.URLGuardService,
	logger *slog.Logger,
	collector metrics.MetricsCollector,
) *Client {
	return &Client{
		httpClient: httpClient,
		store:      store,
		guard:      guard,
		logger:     logger,
		collector:  collector,
	}
}

// resolveAuthURL は認証エンドポイントのURLを返す。
func (c *Client) resolveAuthURL() string {
	if c.authURL != "" {
		return c.authURL
	}
	return c.store.ResolveURLs().AuthURL
}

// resolveAPIBaseURL はAPIのベースURLを返す。
func (c *Client) resolveAPIBaseURL() string {
	if c.apiBaseURL != "" {
		return c.apiBaseURL
	}
	return c.store.ResolveURLs().APIBaseURL
}

// MultipartFile はmultipart/form-dataでアップロードするファイルを表す。
type MultipartFile struct {
	FieldName   string // フォームフィールド名。空の場合は "file"
	FileName    string // ファイル名。空の場合は document.pdf にフォールバック
	ContentType string
	Data        []byte
}

// RequestOptions はRequestのオプションを表す。
type RequestOptions struct {
	Method    string         // 空の場合はGET
	Body      any            // JSONシリアライズされるボディ。Multipartと排他
	Multipart *MultipartFile // multipart/form-dataボディ
}

// successBody は204およびJSON以外の2xxレスポンスの正規化結果。
type successBody struct {
	Success bool   `json:"success"`
	Text    string `json:"text,omitempty"`
	Status  int    `json:"status,omitempty"`
}

// Request はベンダーAPIへのリクエストを実行し、正規化したJSONボディを返す。
//
// 呼び出しの先頭で必ずAuthenticateを実行する（有効なキャッシュがあれば
// ネットワーク呼び出しなしで再利用される）。レスポンスの正規化:
//   - 204: ボディのパースを試みず {"success":true} を返す
//   - 非2xx: ボディをテキストとして読み、ステータスと生テキストを含む
//     APIErrorで失敗する
//   - 2xx JSON: そのまま返す
//   - 2xx 非JSON: {"success":true,"text":...,"status":...} を返す
//
// ネットワークレベルの例外はすべて統一のAPIErrorに包み直す。
func (c *Client) Request(ctx context.Context, endpoint string, opts RequestOptions) (json.RawMessage, error) {
	token, err := c.Authenticate(ctx)
	if err != nil {
		return nil, err
	}

	method := opts.Method
	if method == "" {
		method = http.MethodGet
	}

	fullURL := c.resolveAPIBaseURL() + "/" + endpoint

	var reqBody io.Reader
	contentType := "application/json"

	switch {
	case opts.Multipart != nil:
		buf := &bytes.Buffer{}
		writer := multipart.NewWriter(buf)
		field := opts.Multipart.FieldName
		if field == "" {
			field = "file"
		}
		filename := opts.Multipart.FileName
		if filename == "" {
			filename = defaultDocumentFilename
		}
		part, err := writer.CreateFormFile(field, filename)
		if err != nil {
			return nil, model.NewTransportError(err)
		}
		if _, err := part.Write(opts.Multipart.Data); err != nil {
			return nil, model.NewTransportError(err)
		}
		if err := writer.Close(); err != nil {
			return nil, model.NewTransportError(err)
		}
		reqBody = buf
		// multipartはライブラリが生成したboundary付きcontent-typeを使用する
		contentType = writer.FormDataContentType()
	case opts.Body != nil:
		data, err := json.Marshal(opts.Body)
		if err != nil {
			return nil, model.NewTransportError(err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, fullURL, reqBody)
	if err != nil {
		return nil, model.NewTransportError(err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", contentType)

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if c.collector != nil {
		c.collector.RecordVendorLatency(time.Since(start))
	}
	if err != nil {
		c.logger.Error("ベンダーAPIの呼び出しに失敗しました",
			slog.String("endpoint", endpointLabel(endpoint)),
			slog.String("error", err.Error()),
		)
		return nil, model.NewTransportError(err)
	}
	defer resp.Body.Close()

	if c.collector != nil {
		c.collector.RecordVendorRequest(endpointLabel(endpoint), resp.StatusCode)
	}

	if resp.StatusCode == http.StatusNoContent {
		return mustMarshal(successBody{Success: true}), nil
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, model.NewTransportError(err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		c.logger.Error("ベンダーAPIがエラーステータスを返しました",
			slog.String("endpoint", endpointLabel(endpoint)),
			slog.Int("http_status", resp.StatusCode),
		)
		return nil, model.NewAPIRequestError(resp.StatusCode, string(body))
	}

	if isJSONContentType(resp.Header.Get("Content-Type")) {
		return json.RawMessage(body), nil
	}
	return mustMarshal(successBody{
		Success: true,
		Text:    string(body),
		Status:  resp.StatusCode,
	}), nil
}

// endpointLabel はメトリクスおよびログ用にクエリ文字列を除いた
// エンドポイントパスを返す。
func endpointLabel(endpoint string) string {
	if i := strings.IndexByte(endpoint, '?'); i >= 0 {
		return endpoint[:i]
	}
	return endpoint
}

// isJSONContentType はContent-TypeヘッダーがJSONを示すかどうかを返す。
func isJSONContentType(ct string) bool {
	return strings.Contains(strings.ToLower(ct), "application/json")
}

// mustMarshal は内部生成の構造体をシリアライズする。
// 入力は固定の構造体のため失敗しない。
func mustMarshal(v any) json.RawMessage {
	data, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return json.RawMessage(data)
}

// mergeDefaults はデフォルト値の上に呼び出し元の指定値を重ねたマップを返す。
func mergeDefaults(defaults, overrides map[string]any) map[string]any {
	merged := make(map[string]any, len(defaults)+len(overrides))
	for k, v := range defaults {
		merged[k] = v
	}
	for k, v := range overrides {
		merged[k] = v
	}
	return merged
}
