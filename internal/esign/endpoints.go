package esign

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/hitoshi/signman/internal/model"
)

// ListPackagesOptions はパッケージ一覧取得のオプションを表す。
type ListPackagesOptions struct {
	// OwnerEmail は一覧の所有者。空の場合は設定のplatformEmailを使用する。
	OwnerEmail string
	// From/To はページネーション範囲。0以下の場合はそれぞれ1/100にデフォルトされる。
	From int
	To   int
}

// Package はベンダーが返すパッケージ（署名トランザクション）を表す。
// Rawにはベンダーのペイロード全体をそのまま保持する。
type Package struct {
	ID           string          `json:"id"`
	Name         string          `json:"name"`
	Status       string          `json:"status"`
	TypeAsString string          `json:"typeAsString"`
	Roles        []Role          `json:"roles"`
	Raw          json.RawMessage `json:"-"`
}

// StatusOrType はパッケージのステータスを返す。
// statusフィールドを優先し、無ければtypeAsStringにフォールバックする。
func (p *Package) StatusOrType() string {
	if p.Status != "" {
		return p.Status
	}
	return p.TypeAsString
}

// Role はパッケージ内の署名者ロールを表す。
type Role struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Email     string `json:"email"`
	Status    string `json:"status"`
}

// DisplayName はロールの表示名を返す。
// nameを優先し、無ければfirstName+lastName、どちらも無ければ "Unknown"。
func (r *Role) DisplayName() string {
	if r.Name != "" {
		return r.Name
	}
	full := strings.TrimSpace(strings.TrimSpace(r.FirstName) + " " + strings.TrimSpace(r.LastName))
	if full != "" {
		return full
	}
	return "Unknown"
}

// listResponse はパッケージ一覧レスポンスのデコード用構造体。
// ベンダーAPIのレスポンス形状は安定しておらず、一覧がpackagesまたは
// resultsのどちらのフィールドで返るか分からないため、両方を明示的な
// フィールドとして受ける。
type listResponse struct {
	Packages []json.RawMessage `json:"packages"`
	Results  []json.RawMessage `json:"results"`
}

// items は一覧の実体を返す。packagesを優先し、無ければresults、
// どちらも無ければ空として扱う。
func (r *listResponse) items() []json.RawMessage {
	if r.Packages != nil {
		return r.Packages
	}
	if r.Results != nil {
		return r.Results
	}
	return nil
}

// encodeOwnerEmail はownerEmailクエリパラメータ用のRFC 3986
// パーセントエンコーディングを行う。
// メールアドレスに含まれる @ は %40、+ は %2B、空白は %20 になる
// （url.QueryEscapeの空白→"+"変換は使用できない）。
func encodeOwnerEmail(email string) string {
	return strings.ReplaceAll(url.QueryEscape(email), "+", "%20")
}

// ListPackages はベンダーのパッケージ一覧を取得する。
// ownerEmailが未指定かつplatformEmailも未設定の場合は
// configurationカテゴリのエラーで失敗する。
func (c *Client) ListPackages(ctx context.Context, opts ListPackagesOptions) ([]Package, error) {
	owner := opts.OwnerEmail
	if owner == "" {
		owner = c.store.Get(false).PlatformEmail
	}
	if owner == "" {
		return nil, model.NewPlatformEmailMissingError()
	}

	from := opts.From
	if from <= 0 {
		from = 1
	}
	to := opts.To
	if to <= 0 {
		to = 100
	}

	// エンドポイントとパラメータ名はベンダーのREST契約そのもの
	endpoint := fmt.Sprintf("cs-packages?ownerEmail=%s&from=%d&to=%d", encodeOwnerEmail(owner), from, to)

	raw, err := c.Request(ctx, endpoint, RequestOptions{Method: http.MethodGet})
	if err != nil {
		return nil, err
	}

	var resp listResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, model.NewTransportError(err)
	}

	items := resp.items()
	packages := make([]Package, 0, len(items))
	for _, item := range items {
		var p Package
		if err := json.Unmarshal(item, &p); err != nil {
			// 個別パッケージのデコード失敗はスキップして残りを処理する
			c.logger.Warn("パッケージのデコードに失敗、スキップします",
				"error", err,
			)
			continue
		}
		p.Raw = item
		packages = append(packages, p)
	}
	return packages, nil
}

// CreatePackage は新しいパッケージを作成する。
// デフォルト値の上に呼び出し元の指定値をマージしたボディをPOSTする。
func (c *Client) CreatePackage(ctx context.Context, overrides map[string]any) (json.RawMessage, error) {
	body := mergeDefaults(map[string]any{
		"name":         "Untitled Transaction",
		"language":     "en",
		"autocomplete": true,
	}, overrides)
	return c.Request(ctx, "cs-packages", RequestOptions{Method: http.MethodPost, Body: body})
}

// AddSigner はパッケージに署名者ロールを追加する。
func (c *Client) AddSigner(ctx context.Context, packageID string, overrides map[string]any) (json.RawMessage, error) {
	body := mergeDefaults(map[string]any{
		"type":         "SIGNER",
		"signingOrder": 1,
	}, overrides)
	endpoint := fmt.Sprintf("cs-packages/%s/roles", packageID)
	return c.Request(ctx, endpoint, RequestOptions{Method: http.MethodPost, Body: body})
}

// AddDocument はパッケージにドキュメントをmultipartでアップロードする。
// ファイル名が空の場合は document.pdf にフォールバックする。
func (c *Client) AddDocument(ctx context.Context, packageID, filename, contentType string, data []byte) (json.RawMessage, error) {
	endpoint := fmt.Sprintf("cs-packages/%s/documents", packageID)
	return c.Request(ctx, endpoint, RequestOptions{
		Method: http.MethodPost,
		Multipart: &MultipartFile{
			FileName:    filename,
			ContentType: contentType,
			Data:        data,
		},
	})
}

// AddSignatureField はドキュメントに署名フィールドを追加する。
func (c *Client) AddSignatureField(ctx context.Context, packageID, documentID string, overrides map[string]any) (json.RawMessage, error) {
	body := mergeDefaults(map[string]any{
		"type":   "SIGNATURE",
		"page":   0,
		"width":  200,
		"height": 50,
	}, overrides)
	endpoint := fmt.Sprintf("cs-packages/%s/documents/%s/fields", packageID, documentID)
	return c.Request(ctx, endpoint, RequestOptions{Method: http.MethodPost, Body: body})
}

// SendPackage はパッケージを送信状態に遷移させる。
func (c *Client) SendPackage(ctx context.Context, packageID string) (json.RawMessage, error) {
	endpoint := fmt.Sprintf("cs-packages/%s", packageID)
	return c.Request(ctx, endpoint, RequestOptions{
		Method: http.MethodPut,
		Body:   map[string]any{"status": "SENT"},
	})
}

// CancelPackage はパッケージをキャンセルする。
func (c *Client) CancelPackage(ctx context.Context, packageID string) (json.RawMessage, error) {
	endpoint := fmt.Sprintf("cs-packages/%s/cancel", packageID)
	return c.Request(ctx, endpoint, RequestOptions{
		Method: http.MethodPut,
		Body:   map[string]any{},
	})
}

// signingURLResponse は署名URL取得レスポンスのデコード用構造体。
// URLのフィールド名もベンダーのバージョンにより揺れがある。
type signingURLResponse struct {
	URL        string `json:"url"`
	SigningURL string `json:"signingUrl"`
}

// GetSigningURL は署名者の署名ページURLを取得する。
func (c *Client) GetSigningURL(ctx context.Context, packageID, roleID string) (string, error) {
	endpoint := fmt.Sprintf("cs-packages/%s/roles/%s/signingUrl", packageID, roleID)
	raw, err := c.Request(ctx, endpoint, RequestOptions{Method: http.MethodGet})
	if err != nil {
		return "", err
	}
	var resp signingURLResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return "", model.NewTransportError(err)
	}
	if resp.URL != "" {
		return resp.URL, nil
	}
	return resp.SigningURL, nil
}

// ResendNotification は署名者への通知メールを再送する。
func (c *Client) ResendNotification(ctx context.Context, packageID, roleID string) (json.RawMessage, error) {
	endpoint := fmt.Sprintf("cs-packages/%s/notifications", packageID)
	return c.Request(ctx, endpoint, RequestOptions{
		Method: http.MethodPost,
		Body:   map[string]any{"roleId": roleID},
	})
}

// signingStatusResponse は署名ステータス取得レスポンスのデコード用構造体。
type signingStatusResponse struct {
	Status       string `json:"status"`
	TypeAsString string `json:"typeAsString"`
}

// GetSigningStatus はパッケージの署名ステータスを取得する。
func (c *Client) GetSigningStatus(ctx context.Context, packageID string) (string, error) {
	endpoint := fmt.Sprintf("cs-packages/%s/signingStatus", packageID)
	raw, err := c.Request(ctx, endpoint, RequestOptions{Method: http.MethodGet})
	if err != nil {
		return "", err
	}
	var resp signingStatusResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return "", model.NewTransportError(err)
	}
	if resp.Status != "" {
		return resp.Status, nil
	}
	return resp.TypeAsString, nil
}

// GetAuditReport はパッケージの監査レポートを取得する。
func (c *Client) GetAuditReport(ctx context.Context, packageID string) (json.RawMessage, error) {
	endpoint := fmt.Sprintf("cs-packages/%s/audit", packageID)
	return c.Request(ctx, endpoint, RequestOptions{Method: http.MethodGet})
}

// authTokenResponse は認証トークン作成レスポンスのデコード用構造体。
type authTokenResponse struct {
	Value string `json:"value"`
	Token string `json:"token"`
}

func (r *authTokenResponse) token() string {
	if r.Value != "" {
		return r.Value
	}
	return r.Token
}

// CreateSenderToken は送信者としてパッケージ画面に入るための
// 認証トークンを作成する。
func (c *Client) CreateSenderToken(ctx context.Context, packageID string) (string, error) {
	raw, err := c.Request(ctx, "authenticationTokens/sender", RequestOptions{
		Method: http.MethodPost,
		Body:   map[string]any{"packageId": packageID},
	})
	if err != nil {
		return "", err
	}
	var resp authTokenResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return "", model.NewTransportError(err)
	}
	return resp.token(), nil
}

// CreateSignerToken は署名フローをシミュレートするための
// 署名者用シングルユース認証トークンを作成する。
func (c *Client) CreateSignerToken(ctx context.Context, packageID, signerID string) (string, error) {
	raw, err := c.Request(ctx, "authenticationTokens/signer/singleUse", RequestOptions{
		Method: http.MethodPost,
		Body:   map[string]any{"packageId": packageID, "signerId": signerID},
	})
	if err != nil {
		return "", err
	}
	var resp authTokenResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return "", model.NewTransportError(err)
	}
	return resp.token(), nil
}

// defaultCallbackEvents はコールバック登録時のデフォルトイベント。
var defaultCallbackEvents = []string{
	"PACKAGE_CREATE",
	"PACKAGE_COMPLETE",
	"PACKAGE_DECLINE",
	"SIGNER_COMPLETE",
}

// RegisterCallbacks はベンダーからのイベント通知を受けるコールバックURLを
// 登録する。URLは登録前にSSRF検証され、プライベートネットワーク宛ての
// URLは拒否される。eventsが空の場合はデフォルトのイベントセットを使用する。
func (c *Client) RegisterCallbacks(ctx context.Context, callbackURL string, events []string) (json.RawMessage, error) {
	if err := c.guard.ValidateCallbackURL(callbackURL); err != nil {
		return nil, model.NewCallbackURLBlockedError(err.Error())
	}
	if len(events) == 0 {
		events = defaultCallbackEvents
	}
	return c.Request(ctx, "callback", RequestOptions{
		Method: http.MethodPost,
		Body:   map[string]any{"url": callbackURL, "events": events},
	})
}
