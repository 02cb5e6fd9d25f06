// Package model はドメインモデルを定義する。
package model

import (
	"encoding/json"
	"time"
)

// Region はベンダーのデプロイメントリージョンを表す。
// 認証URL・APIベースURLの組を選択するキーとなる。
type Region string

const (
	// RegionUS は米国リージョン。未知のリージョンのフォールバック先でもある。
	RegionUS Region = "us"
	// RegionEU は欧州リージョン。
	RegionEU Region = "eu"
	// RegionAU はオーストラリアリージョン。
	RegionAU Region = "au"
)

// Connection はベンダー接続設定のシングルトンレコードを表す。
// JSONファイルに直接シリアライズされるため、フィールド名は永続化契約の一部。
type Connection struct {
	Region        Region     `json:"region"`
	ClientID      string     `json:"clientId"`
	ClientSecret  string     `json:"clientSecret"`
	PlatformEmail string     `json:"platformEmail"`
	CallbackURL   string     `json:"callbackUrl"`
	AccessToken   *string    `json:"accessToken"`
	TokenExpiry   *time.Time `json:"tokenExpiry"`
	Initialized   bool       `json:"initialized"`
}

// Clone はConnectionのシャローコピーを返す。
// 呼び出し元の変更が内部状態に波及しないようにするために使用する。
func (c *Connection) Clone() *Connection {
	cp := *c
	return &cp
}

// Transaction はベンダー側の署名パッケージのローカルミラーレコードを表す。
// signers/documents/historyはローカル所有フィールドであり、
// リフレッシュ時のマージでは上書きされない。
type Transaction struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Status    string          `json:"status"`
	Created   time.Time       `json:"created"`
	Updated   time.Time       `json:"updated"`
	Signers   []Signer        `json:"signers"`
	Documents []Document      `json:"documents"`
	History   []HistoryEntry  `json:"history"`
	APIData   json.RawMessage `json:"apiData,omitempty"`
}

// ステータスはベンダーの申告値をそのままミラーする自由形式の文字列。
// 以下は既知の値であり、ローカルでの遷移検証は行わない。
const (
	StatusCreated   = "CREATED"
	StatusSent      = "SENT"
	StatusCompleted = "COMPLETED"
	StatusCanceled  = "CANCELED"
)

// Signer はトランザクションの署名者（ベンダー用語ではロール）を表す。
type Signer struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Email  string `json:"email"`
	Status string `json:"status"`
}

// 署名者ステータスの既知の値。ベンダー定義の文字列も許容する。
const (
	SignerStatusPending   = "PENDING"
	SignerStatusCompleted = "COMPLETED"
	SignerStatusDeclined  = "DECLINED"
)

// Document はトランザクションに添付されたドキュメントを表す。
type Document struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Type string `json:"type"`
}

// HistoryEntry はトランザクションの操作履歴の1エントリを表す。
// historyは追記専用のログであり、エントリの更新・削除は行わない。
type HistoryEntry struct {
	Action    string    `json:"action"`
	Timestamp time.Time `json:"timestamp"`
	Details   string    `json:"details"`
}

// 履歴アクションの定義。
const (
	ActionCreated       = "CREATED"
	ActionDiscovered    = "DISCOVERED"
	ActionSent          = "SENT"
	ActionCancel        = "CANCEL"
	ActionResend        = "RESEND_NOTIFICATION"
	ActionSigningURL    = "SIGNING_URL"
	ActionStatusRefresh = "STATUS_REFRESH"
	ActionSignerAdded   = "SIGNER_ADDED"
	ActionDocumentAdded = "DOCUMENT_ADDED"
	ActionFieldAdded    = "FIELD_ADDED"
)

// AppendHistory は履歴エントリを追記する。
func (t *Transaction) AppendHistory(action, details string, at time.Time) {
	t.History = append(t.History, HistoryEntry{
		Action:    action,
		Timestamp: at,
		Details:   details,
	})
}

// FindSigner は指定IDの署名者を返す。見つからない場合はnilを返す。
func (t *Transaction) FindSigner(signerID string) *Signer {
	for i := range t.Signers {
		if t.Signers[i].ID == signerID {
			return &t.Signers[i]
		}
	}
	return nil
}
