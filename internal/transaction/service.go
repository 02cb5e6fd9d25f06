// Package transaction はベンダー側署名パッケージのローカルミラーを管理する。
//
// リモート状態は明示的なリフレッシュ時のみ取得し、ローカル所有フィールド
// （署名者・ドキュメント・履歴）を保持したままID単位でマージする。
// 明示的な変更操作はエラーを伝播するが、リフレッシュ経路のエラーは
// 握りつぶしてローカルデータにフォールバックする（ベンダー到達不能時でも
// 管理画面を使用可能に保つための意図的な非対称）。
package transaction

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hitoshi/signman/internal/esign"
	"github.com/hitoshi/signman/internal/metrics"
	"github.com/hitoshi/signman/internal/model"
	"github.com/hitoshi/signman/internal/repository"
	"github.com/hitoshi/signman/internal/security"
)

// VendorClient はミラーが必要とするベンダーAPI操作のインターフェース。
type VendorClient interface {
	ListPackages(ctx context.Context, opts esign.ListPackagesOptions) ([]esign.Package, error)
	CreatePackage(ctx context.Context, overrides map[string]any) (json.RawMessage, error)
	AddSigner(ctx context.Context, packageID string, overrides map[string]any) (json.RawMessage, error)
	AddDocument(ctx context.Context, packageID, filename, contentType string, data []byte) (json.RawMessage, error)
	AddSignatureField(ctx context.Context, packageID, documentID string, overrides map[string]any) (json.RawMessage, error)
	SendPackage(ctx context.Context, packageID string) (json.RawMessage, error)
	CancelPackage(ctx context.Context, packageID string) (json.RawMessage, error)
	GetSigningURL(ctx context.Context, packageID, roleID string) (string, error)
	ResendNotification(ctx context.Context, packageID, roleID string) (json.RawMessage, error)
	GetSigningStatus(ctx context.Context, packageID string) (string, error)
	GetAuditReport(ctx context.Context, packageID string) (json.RawMessage, error)
}

// ListOptions はGetAllのリフレッシュ時にベンダーへ渡すフィルタを表す。
type ListOptions struct {
	OwnerEmail string
	From       int
	To         int
}

// CreateRequest はトランザクション作成の入力を表す。
type CreateRequest struct {
	Name      string
	Overrides map[string]any
}

// SignerInput は署名者追加の入力を表す。
type SignerInput struct {
	Name  string
	Email string
}

// Mirror はローカルに永続化されたトランザクション一覧を所有するサービス。
//
// インメモリの一覧が常に正であり、変更のたびに一覧全体をJSONファイルに
// 永続化する。プロセスをまたぐ同時書き込みはlast-write-wins。
type Mirror struct {
	repo      repository.TransactionRepository
	api       VendorClient
	sanitizer security.DisplaySanitizerService
	logger    *slog.Logger
	collector metrics.MetricsCollector
	now       func() time.Time // テスト用に差し替え可能
	newID     func() string    // テスト用に差し替え可能

	mu  sync.Mutex
	txs []*model.Transaction
}

// NewMirror はMirrorを生成し、永続化済みのトランザクション一覧を読み込む。
// 読み込み失敗時はログに記録し、空の一覧にフォールバックする（起動を妨げない）。
func NewMirror(
	ctx context.Context,
	repo repository.TransactionRepository,
	api VendorClient,
	sanitizer security.DisplaySanitizerService,
	logger *slog.Logger,
	collector metrics.MetricsCollector,
) *Mirror {
	m := &Mirror{
		repo:      repo,
		api:       api,
		sanitizer: sanitizer,
		logger:    logger,
		collector: collector,
		now:       time.Now,
		newID:     uuid.NewString,
	}

	txs, err := repo.Load(ctx)
	if err != nil {
		logger.Error("トランザクション一覧の読み込みに失敗、空の一覧にフォールバック",
			slog.String("error", err.Error()),
		)
		txs = nil
	}
	m.txs = txs
	return m
}

// GetAll はトランザクション一覧を返す。
//
// refreshがfalseの場合はベンダー呼び出しを一切行わず、現在の一覧を
// そのまま返す（リフレッシュは呼び出しごとのオプトイン）。trueの場合は
// ベンダーの一覧を取得してマージするが、リフレッシュ中のいかなるエラーも
// 送出せず、最後に取得済みのローカル一覧を返す。
func (m *Mirror) GetAll(ctx context.Context, refresh bool, opts ListOptions) []*model.Transaction {
	if refresh {
		m.refreshFromRemote(ctx, opts)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snapshotLocked()
}

// GetByID は指定IDのトランザクションを返す。
// refreshがtrueの場合は先にリモートをマージする（失敗は握りつぶす）。
// 見つからない場合はNotFoundエラーで失敗する。
func (m *Mirror) GetByID(ctx context.Context, id string, refresh bool) (*model.Transaction, error) {
	if refresh {
		m.refreshFromRemote(ctx, ListOptions{})
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	tx := m.findLocked(id)
	if tx == nil {
		return nil, model.NewTransactionNotFoundError(id)
	}
	return cloneTransaction(tx), nil
}

// refreshFromRemote はベンダーの一覧を取得してローカルにマージする。
// エラーはログに記録して握りつぶす。リフレッシュ失敗でローカルデータが
// 失われることはない。
func (m *Mirror) refreshFromRemote(ctx context.Context, opts ListOptions) {
	pkgs, err := m.api.ListPackages(ctx, esign.ListPackagesOptions{
		OwnerEmail: opts.OwnerEmail,
		From:       opts.From,
		To:         opts.To,
	})
	if err != nil {
		m.logger.Warn("リモートからのリフレッシュに失敗、ローカル一覧を使用します",
			slog.String("error", err.Error()),
		)
		if m.collector != nil {
			m.collector.RecordRefreshFailure()
		}
		return
	}

	m.mu.Lock()
	m.mergeFromRemoteLocked(pkgs)
	m.persistLocked(ctx)
	m.mu.Unlock()

	if m.collector != nil {
		m.collector.RecordRefreshSuccess()
	}
}

// Create はベンダーにパッケージを作成し、対応するローカルレコードを作る。
func (m *Mirror) Create(ctx context.Context, req CreateRequest) (*model.Transaction, error) {
	name := req.Name
	if name == "" {
		return nil, model.NewInvalidRequestError("nameは必須です")
	}

	overrides := map[string]any{"name": name}
	for k, v := range req.Overrides {
		overrides[k] = v
	}

	raw, err := m.api.CreatePackage(ctx, overrides)
	if err != nil {
		return nil, err
	}

	id := extractID(raw)
	if id == "" {
		id = m.newID()
	}

	now := m.now()
	tx := &model.Transaction{
		ID:        id,
		Name:      m.sanitizer.Sanitize(name),
		Status:    model.StatusCreated,
		Created:   now,
		Updated:   now,
		Signers:   []model.Signer{},
		Documents: []model.Document{},
		APIData:   raw,
	}
	tx.AppendHistory(model.ActionCreated, fmt.Sprintf("トランザクションを作成しました: %s", tx.Name), now)

	m.mu.Lock()
	defer m.mu.Unlock()
	m.txs = append(m.txs, tx)
	m.persistLocked(ctx)
	return cloneTransaction(tx), nil
}

// Send はトランザクションを送信し、ステータスをSENTに遷移させる。
func (m *Mirror) Send(ctx context.Context, id string) (*model.Transaction, error) {
	return m.mutate(ctx, id, func(tx *model.Transaction) error {
		if _, err := m.api.SendPackage(ctx, tx.ID); err != nil {
			return err
		}
		tx.Status = model.StatusSent
		tx.AppendHistory(model.ActionSent, "署名者への送信を実行しました", m.now())
		return nil
	})
}

// Cancel はトランザクションをキャンセルし、ステータスをCANCELEDに遷移させる。
// 現在のステータスによる遷移の拒否は行わない。既にキャンセル済みでも
// 再度成功し、CANCEL履歴エントリがもう1件追記される。
func (m *Mirror) Cancel(ctx context.Context, id string) (*model.Transaction, error) {
	return m.mutate(ctx, id, func(tx *model.Transaction) error {
		if _, err := m.api.CancelPackage(ctx, tx.ID); err != nil {
			return err
		}
		tx.Status = model.StatusCanceled
		tx.AppendHistory(model.ActionCancel, "トランザクションをキャンセルしました", m.now())
		return nil
	})
}

// RefreshStatus はベンダーの署名ステータスを取得してローカルに反映する。
func (m *Mirror) RefreshStatus(ctx context.Context, id string) (*model.Transaction, error) {
	return m.mutate(ctx, id, func(tx *model.Transaction) error {
		status, err := m.api.GetSigningStatus(ctx, tx.ID)
		if err != nil {
			return err
		}
		if status != "" {
			tx.Status = status
		}
		tx.AppendHistory(model.ActionStatusRefresh, fmt.Sprintf("ステータスを更新しました: %s", tx.Status), m.now())
		return nil
	})
}

// ResendNotification は指定署名者への通知メールを再送する。
func (m *Mirror) ResendNotification(ctx context.Context, id, signerID string) (*model.Transaction, error) {
	return m.mutate(ctx, id, func(tx *model.Transaction) error {
		signer := tx.FindSigner(signerID)
		if signer == nil {
			return model.NewSignerNotFoundError(signerID)
		}
		if _, err := m.api.ResendNotification(ctx, tx.ID, signerID); err != nil {
			return err
		}
		tx.AppendHistory(model.ActionResend, fmt.Sprintf("通知を再送しました: %s", signer.Email), m.now())
		return nil
	})
}

// GetSigningURL は指定署名者の署名ページURLを取得する。
// URLの取得もローカル履歴に記録して永続化する。
func (m *Mirror) GetSigningURL(ctx context.Context, id, signerID string) (string, error) {
	var signingURL string
	_, err := m.mutate(ctx, id, func(tx *model.Transaction) error {
		signer := tx.FindSigner(signerID)
		if signer == nil {
			return model.NewSignerNotFoundError(signerID)
		}
		u, err := m.api.GetSigningURL(ctx, tx.ID, signerID)
		if err != nil {
			return err
		}
		signingURL = u
		tx.AppendHistory(model.ActionSigningURL, fmt.Sprintf("署名URLを取得しました: %s", signer.Email), m.now())
		return nil
	})
	if err != nil {
		return "", err
	}
	return signingURL, nil
}

// AddSigner はベンダーに署名者ロールを追加し、ローカルレコードに反映する。
func (m *Mirror) AddSigner(ctx context.Context, id string, in SignerInput) (*model.Transaction, error) {
	if in.Email == "" {
		return nil, model.NewInvalidRequestError("署名者のemailは必須です")
	}
	return m.mutate(ctx, id, func(tx *model.Transaction) error {
		raw, err := m.api.AddSigner(ctx, tx.ID, map[string]any{
			"name":  in.Name,
			"email": in.Email,
		})
		if err != nil {
			return err
		}

		signerID := extractID(raw)
		if signerID == "" {
			signerID = m.newID()
		}
		name := in.Name
		if name == "" {
			name = "Unknown"
		}
		tx.Signers = append(tx.Signers, model.Signer{
			ID:     signerID,
			Name:   m.sanitizer.Sanitize(name),
			Email:  in.Email,
			Status: model.SignerStatusPending,
		})
		tx.AppendHistory(model.ActionSignerAdded, fmt.Sprintf("署名者を追加しました: %s", in.Email), m.now())
		return nil
	})
}

// AddDocument はベンダーにドキュメントをアップロードし、ローカルレコードに反映する。
func (m *Mirror) AddDocument(ctx context.Context, id, name, contentType string, data []byte) (*model.Transaction, error) {
	if len(data) == 0 {
		return nil, model.NewInvalidRequestError("ドキュメントの内容が空です")
	}
	if contentType == "" {
		contentType = "application/pdf"
	}
	return m.mutate(ctx, id, func(tx *model.Transaction) error {
		raw, err := m.api.AddDocument(ctx, tx.ID, name, contentType, data)
		if err != nil {
			return err
		}

		docID := extractID(raw)
		if docID == "" {
			docID = m.newID()
		}
		docName := name
		if docName == "" {
			docName = "document.pdf"
		}
		tx.Documents = append(tx.Documents, model.Document{
			ID:   docID,
			Name: m.sanitizer.Sanitize(docName),
			Type: contentType,
		})
		tx.AppendHistory(model.ActionDocumentAdded, fmt.Sprintf("ドキュメントを追加しました: %s", docName), m.now())
		return nil
	})
}

// AddSignatureField はドキュメントに署名フィールドを追加する。
// signerIDが指定された場合はローカルの署名者の存在を確認し、
// ベンダーへのリクエストにroleIdとして含める。
func (m *Mirror) AddSignatureField(ctx context.Context, id, documentID, signerID string, overrides map[string]any) (*model.Transaction, error) {
	return m.mutate(ctx, id, func(tx *model.Transaction) error {
		body := map[string]any{}
		for k, v := range overrides {
			body[k] = v
		}
		if signerID != "" {
			if tx.FindSigner(signerID) == nil {
				return model.NewSignerNotFoundError(signerID)
			}
			body["roleId"] = signerID
		}
		if _, err := m.api.AddSignatureField(ctx, tx.ID, documentID, body); err != nil {
			return err
		}
		tx.AppendHistory(model.ActionFieldAdded, fmt.Sprintf("署名フィールドを追加しました: document=%s", documentID), m.now())
		return nil
	})
}

// GetAuditReport はベンダーの監査レポートを取得する。ローカル状態は変更しない。
func (m *Mirror) GetAuditReport(ctx context.Context, id string) (json.RawMessage, error) {
	m.mu.Lock()
	tx := m.findLocked(id)
	m.mu.Unlock()
	if tx == nil {
		return nil, model.NewTransactionNotFoundError(id)
	}
	return m.api.GetAuditReport(ctx, id)
}

// Reset はローカル一覧を空にして永続化する。
func (m *Mirror) Reset(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.txs = []*model.Transaction{}
	return m.persistLocked(ctx)
}

// mutate は変更操作の共通フロー。
// ローカルレコードの検索（NotFoundで失敗）→ fn実行（ベンダー呼び出し含む）
// → 成功時のみ updated を更新して一覧全体を永続化する。
// fnがエラーを返した場合、ローカル状態は一切変更されない（楽観更新なし）。
func (m *Mirror) mutate(ctx context.Context, id string, fn func(tx *model.Transaction) error) (*model.Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	tx := m.findLocked(id)
	if tx == nil {
		return nil, model.NewTransactionNotFoundError(id)
	}

	// ベンダー呼び出し失敗時にロールバックできるよう作業コピーに適用する
	work := cloneTransaction(tx)
	if err := fn(work); err != nil {
		return nil, err
	}
	work.Updated = m.now()

	for i := range m.txs {
		if m.txs[i].ID == id {
			m.txs[i] = work
			break
		}
	}
	m.persistLocked(ctx)
	return cloneTransaction(work), nil
}

// findLocked は指定IDのトランザクションを返す。呼び出し側でロックを保持すること。
func (m *Mirror) findLocked(id string) *model.Transaction {
	for _, tx := range m.txs {
		if tx.ID == id {
			return tx
		}
	}
	return nil
}

// persistLocked は一覧全体を永続化する。失敗はログに記録する。
// 呼び出し側でロックを保持すること。
func (m *Mirror) persistLocked(ctx context.Context) error {
	if err := m.repo.Save(ctx, m.txs); err != nil {
		m.logger.Error("トランザクション一覧の永続化に失敗",
			slog.String("error", err.Error()),
		)
		return err
	}
	return nil
}

// snapshotLocked は一覧のコピーを返す。呼び出し側でロックを保持すること。
func (m *Mirror) snapshotLocked() []*model.Transaction {
	out := make([]*model.Transaction, len(m.txs))
	for i, tx := range m.txs {
		out[i] = cloneTransaction(tx)
	}
	return out
}

// cloneTransaction はトランザクションのディープ寄りのコピーを返す。
// 呼び出し元によるスライスの変更が内部状態に波及しないようにする。
func cloneTransaction(tx *model.Transaction) *model.Transaction {
	cp := *tx
	cp.Signers = append([]model.Signer(nil), tx.Signers...)
	cp.Documents = append([]model.Document(nil), tx.Documents...)
	cp.History = append([]model.HistoryEntry(nil), tx.History...)
	return &cp
}

// idResponse はベンダーレスポンスからのID抽出用構造体。
type idResponse struct {
	ID        string `json:"id"`
	PackageID string `json:"packageId"`
}

// extractID はベンダーレスポンスからリソースIDを抽出する。
// idを優先し、無ければpackageId。どちらも無ければ空文字列を返す。
func extractID(raw json.RawMessage) string {
	var resp idResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return ""
	}
	if resp.ID != "" {
		return resp.ID
	}
	return resp.PackageID
}
