// Package model はドメインモデルを定義する。
package model

import "fmt"

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
// ベンダーAPIのエラーの場合はHTTPステータスとレスポンスボディを保持する。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: configuration, auth, vendor, not_found, validation
	Action   string // ユーザー向け対処方法

	// ベンダーAPIエラーの詳細。該当しない場合はゼロ値。
	HTTPStatus int    // ベンダーが返したHTTPステータスコード
	Body       string // ベンダーが返した生のレスポンスボディ
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	if e.HTTPStatus != 0 {
		return fmt.Sprintf("[%s] %s (status=%d)", e.Code, e.Message, e.HTTPStatus)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeConfigNotInitialized = "CONFIG_NOT_INITIALIZED"
	ErrCodePlatformEmailMissing = "PLATFORM_EMAIL_NOT_CONFIGURED"
	ErrCodeAuthFailed           = "AUTH_FAILED"
	ErrCodeAPIRequestFailed     = "API_REQUEST_FAILED"
	ErrCodeTransactionNotFound  = "TRANSACTION_NOT_FOUND"
	ErrCodeSignerNotFound       = "SIGNER_NOT_FOUND"
	ErrCodeInvalidRequest       = "INVALID_REQUEST"
	ErrCodeCallbackURLBlocked   = "CALLBACK_URL_BLOCKED"
)

// NewConfigNotInitializedError は未設定の接続情報でベンダー操作を
// 実行しようとした場合のエラーを生成する。
func NewConfigNotInitializedError() *APIError {
	return &APIError{
		Code:     ErrCodeConfigNotInitialized,
		Message:  "接続設定が未完了です。clientId、clientSecret、platformEmailを設定してください。",
		Category: "configuration",
		Action:   "設定画面で認証情報を入力してから再度お試しください。",
	}
}

// NewPlatformEmailMissingError はplatformEmail未設定のまま
// パッケージ一覧を取得しようとした場合のエラーを生成する。
// メッセージ文字列はベンダー連携の既存契約に合わせて英語固定。
func NewPlatformEmailMissingError() *APIError {
	return &APIError{
		Code:     ErrCodePlatformEmailMissing,
		Message:  "Platform email not configured",
		Category: "configuration",
		Action:   "設定画面でplatformEmailを入力してください。",
	}
}

// NewAuthFailedError はベンダーがクライアント認証を拒否した場合の
// エラーを生成する。レスポンスのステータスとボディを保持する。
func NewAuthFailedError(status int, body string) *APIError {
	return &APIError{
		Code:       ErrCodeAuthFailed,
		Message:    fmt.Sprintf("ベンダー認証に失敗しました (status %d)", status),
		Category:   "auth",
		Action:     "clientIdとclientSecretが正しいか確認してください。",
		HTTPStatus: status,
		Body:       body,
	}
}

// NewAuthNoTokenError は認証レスポンスにトークンが含まれない場合の
// エラーを生成する。
func NewAuthNoTokenError() *APIError {
	return &APIError{
		Code:     ErrCodeAuthFailed,
		Message:  "認証レスポンスにアクセストークンが含まれていません。",
		Category: "auth",
		Action:   "リージョン設定がアカウントと一致しているか確認してください。",
	}
}

// NewAPIRequestError は非2xxのベンダーレスポンスのエラーを生成する。
func NewAPIRequestError(status int, body string) *APIError {
	return &APIError{
		Code:       ErrCodeAPIRequestFailed,
		Message:    fmt.Sprintf("ベンダーAPIがステータス %d を返しました", status),
		Category:   "vendor",
		Action:     "しばらく待ってから再度お試しください。",
		HTTPStatus: status,
		Body:       body,
	}
}

// NewTransportError は接続失敗などのネットワークレベルの例外を
// 統一フォーマットに包んで生成する。
func NewTransportError(cause error) *APIError {
	return &APIError{
		Code:     ErrCodeAPIRequestFailed,
		Message:  fmt.Sprintf("ベンダーAPIへのリクエストに失敗しました: %s", cause.Error()),
		Category: "vendor",
		Action:   "ネットワーク接続とリージョン設定を確認してください。",
	}
}

// NewTransactionNotFoundError はローカルに存在しないトランザクションIDを
// 参照した場合のエラーを生成する。
func NewTransactionNotFoundError(id string) *APIError {
	return &APIError{
		Code:     ErrCodeTransactionNotFound,
		Message:  fmt.Sprintf("指定されたトランザクションが見つかりません: %s", id),
		Category: "not_found",
		Action:   "トランザクションIDを確認するか、一覧をリフレッシュしてください。",
	}
}

// NewSignerNotFoundError はトランザクション内に存在しない署名者IDを
// 参照した場合のエラーを生成する。
func NewSignerNotFoundError(signerID string) *APIError {
	return &APIError{
		Code:     ErrCodeSignerNotFound,
		Message:  fmt.Sprintf("指定された署名者が見つかりません: %s", signerID),
		Category: "not_found",
		Action:   "署名者IDを確認してください。",
	}
}

// NewInvalidRequestError は不正なリクエストのエラーを生成する。
func NewInvalidRequestError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidRequest,
		Message:  fmt.Sprintf("無効なリクエストです: %s", reason),
		Category: "validation",
		Action:   "リクエスト内容を確認してください。",
	}
}

// NewCallbackURLBlockedError はセキュリティポリシーによりコールバックURLが
// 拒否された場合のエラーを生成する。
func NewCallbackURLBlockedError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeCallbackURLBlocked,
		Message:  fmt.Sprintf("コールバックURLが許可されていません: %s", reason),
		Category: "validation",
		Action:   "公開されているhttps URLを指定してください。プライベートネットワークへのコールバックは許可されていません。",
	}
}
