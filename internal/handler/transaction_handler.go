package handler

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/hitoshi/signman/internal/model"
	"github.com/hitoshi/signman/internal/transaction"
)

// TransactionServiceInterface はトランザクションハンドラーが必要とする
// ミラーサービスのインターフェース。
type TransactionServiceInterface interface {
	GetAll(ctx context.Context, refresh bool, opts transaction.ListOptions) []*model.Transaction
	GetByID(ctx context.Context, id string, refresh bool) (*model.Transaction, error)
	Create(ctx context.Context, req transaction.CreateRequest) (*model.Transaction, error)
	Send(ctx context.Context, id string) (*model.Transaction, error)
	Cancel(ctx context.Context, id string) (*model.Transaction, error)
	RefreshStatus(ctx context.Context, id string) (*model.Transaction, error)
	ResendNotification(ctx context.Context, id, signerID string) (*model.Transaction, error)
	GetSigningURL(ctx context.Context, id, signerID string) (string, error)
	AddSigner(ctx context.Context, id string, in transaction.SignerInput) (*model.Transaction, error)
	AddDocument(ctx context.Context, id, name, contentType string, data []byte) (*model.Transaction, error)
	AddSignatureField(ctx context.Context, id, documentID, signerID string, overrides map[string]any) (*model.Transaction, error)
	GetAuditReport(ctx context.Context, id string) (json.RawMessage, error)
	Reset(ctx context.Context) error
}

// SigningTokenCreator は署名フローシミュレーション用のトークン作成
// インターフェース。ベンダークライアントを直接利用する。
type SigningTokenCreator interface {
	CreateSenderToken(ctx context.Context, packageID string) (string, error)
	CreateSignerToken(ctx context.Context, packageID, signerID string) (string, error)
	RegisterCallbacks(ctx context.Context, callbackURL string, events []string) (json.RawMessage, error)
}

// TransactionHandler はトランザクション管理のHTTPハンドラー。
type TransactionHandler struct {
	service TransactionServiceInterface
	tokens  SigningTokenCreator
}

// NewTransactionHandler はTransactionHandlerを生成する。
func NewTransactionHandler(service TransactionServiceInterface, tokens SigningTokenCreator) *TransactionHandler {
	return &TransactionHandler{service: service, tokens: tokens}
}

// createTransactionRequest はトランザクション作成リクエストのボディ。
type createTransactionRequest struct {
	Name      string         `json:"name"`
	Overrides map[string]any `json:"overrides"`
}

// addSignerRequest は署名者追加リクエストのボディ。
type addSignerRequest struct {
	Name  string `json:"name"`
	Email string `json:"email"`
}

// addDocumentRequest はドキュメント追加リクエストのボディ。
// contentはbase64エンコードされたファイル内容。
type addDocumentRequest struct {
	Name    string `json:"name"`
	Type    string `json:"type"`
	Content string `json:"content"`
}

// addFieldRequest は署名フィールド追加リクエストのボディ。
type addFieldRequest struct {
	DocumentID string         `json:"documentId"`
	SignerID   string         `json:"signerId"`
	Overrides  map[string]any `json:"overrides"`
}

// signerIDRequest は署名者IDのみを持つリクエストのボディ。
type signerIDRequest struct {
	SignerID string `json:"signerId"`
}

// registerCallbacksRequest はコールバック登録リクエストのボディ。
type registerCallbacksRequest struct {
	URL    string   `json:"url"`
	Events []string `json:"events"`
}

// listOptionsFromQuery はクエリパラメータからリフレッシュオプションを組み立てる。
func listOptionsFromQuery(r *http.Request) (refresh bool, opts transaction.ListOptions) {
	q := r.URL.Query()
	refresh = q.Get("refresh") == "true"
	opts.OwnerEmail = q.Get("ownerEmail")
	if v, err := strconv.Atoi(q.Get("from")); err == nil {
		opts.From = v
	}
	if v, err := strconv.Atoi(q.Get("to")); err == nil {
		opts.To = v
	}
	return refresh, opts
}

// ListTransactions はトランザクション一覧を取得する。
// refresh=trueの場合のみベンダーAPIを呼び出す。リフレッシュ失敗時も
// 200でローカル一覧を返す。
// GET /api/transactions
func (h *TransactionHandler) ListTransactions(w http.ResponseWriter, r *http.Request) {
	refresh, opts := listOptionsFromQuery(r)
	txs := h.service.GetAll(r.Context(), refresh, opts)
	writeJSON(w, http.StatusOK, txs)
}

// CreateTransaction はトランザクション作成を処理する。
// POST /api/transactions
func (h *TransactionHandler) CreateTransaction(w http.ResponseWriter, r *http.Request) {
	var req createTransactionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest,
			model.NewInvalidRequestError("リクエストボディの解析に失敗しました"))
		return
	}

	tx, err := h.service.Create(r.Context(), transaction.CreateRequest{
		Name:      req.Name,
		Overrides: req.Overrides,
	})
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, tx)
}

// GetTransaction はトランザクション詳細を取得する。
// GET /api/transactions/{id}
func (h *TransactionHandler) GetTransaction(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	refresh := r.URL.Query().Get("refresh") == "true"

	tx, err := h.service.GetByID(r.Context(), id, refresh)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, tx)
}

// SendTransaction はトランザクションを送信する。
// POST /api/transactions/{id}/send
func (h *TransactionHandler) SendTransaction(w http.ResponseWriter, r *http.Request) {
	tx, err := h.service.Send(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, tx)
}

// CancelTransaction はトランザクションをキャンセルする。
// POST /api/transactions/{id}/cancel
func (h *TransactionHandler) CancelTransaction(w http.ResponseWriter, r *http.Request) {
	tx, err := h.service.Cancel(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, tx)
}

// RefreshTransactionStatus はベンダーの署名ステータスをローカルに反映する。
// POST /api/transactions/{id}/refresh
func (h *TransactionHandler) RefreshTransactionStatus(w http.ResponseWriter, r *http.Request) {
	tx, err := h.service.RefreshStatus(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, tx)
}

// ResendNotification は署名者への通知を再送する。
// POST /api/transactions/{id}/resend
func (h *TransactionHandler) ResendNotification(w http.ResponseWriter, r *http.Request) {
	var req signerIDRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest,
			model.NewInvalidRequestError("リクエストボディの解析に失敗しました"))
		return
	}

	tx, err := h.service.ResendNotification(r.Context(), chi.URLParam(r, "id"), req.SignerID)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, tx)
}

// GetSigningURL は署名者の署名ページURLを取得する。
// GET /api/transactions/{id}/signing-url?signerId=...
func (h *TransactionHandler) GetSigningURL(w http.ResponseWriter, r *http.Request) {
	signerID := r.URL.Query().Get("signerId")

	url, err := h.service.GetSigningURL(r.Context(), chi.URLParam(r, "id"), signerID)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"url": url})
}

// AddSigner はトランザクションに署名者を追加する。
// POST /api/transactions/{id}/signers
func (h *TransactionHandler) AddSigner(w http.ResponseWriter, r *http.Request) {
	var req addSignerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest,
			model.NewInvalidRequestError("リクエストボディの解析に失敗しました"))
		return
	}

	tx, err := h.service.AddSigner(r.Context(), chi.URLParam(r, "id"), transaction.SignerInput{
		Name:  req.Name,
		Email: req.Email,
	})
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, tx)
}

// AddDocument はトランザクションにドキュメントを追加する。
// POST /api/transactions/{id}/documents
func (h *TransactionHandler) AddDocument(w http.ResponseWriter, r *http.Request) {
	var req addDocumentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest,
			model.NewInvalidRequestError("リクエストボディの解析に失敗しました"))
		return
	}

	data, err := base64.StdEncoding.DecodeString(req.Content)
	if err != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest,
			model.NewInvalidRequestError("contentはbase64でエンコードしてください"))
		return
	}

	tx, err := h.service.AddDocument(r.Context(), chi.URLParam(r, "id"), req.Name, req.Type, data)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, tx)
}

// AddSignatureField はドキュメントに署名フィールドを追加する。
// POST /api/transactions/{id}/fields
func (h *TransactionHandler) AddSignatureField(w http.ResponseWriter, r *http.Request) {
	var req addFieldRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest,
			model.NewInvalidRequestError("リクエストボディの解析に失敗しました"))
		return
	}

	tx, err := h.service.AddSignatureField(r.Context(), chi.URLParam(r, "id"), req.DocumentID, req.SignerID, req.Overrides)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, tx)
}

// GetAuditReport はベンダーの監査レポートを取得する。
// GET /api/transactions/{id}/audit
func (h *TransactionHandler) GetAuditReport(w http.ResponseWriter, r *http.Request) {
	report, err := h.service.GetAuditReport(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		handleServiceError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write(report)
}

// CreateSignerToken は署名フローシミュレーション用の署名者トークンを作成する。
// POST /api/transactions/{id}/signer-token
func (h *TransactionHandler) CreateSignerToken(w http.ResponseWriter, r *http.Request) {
	var req signerIDRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest,
			model.NewInvalidRequestError("リクエストボディの解析に失敗しました"))
		return
	}

	// ローカルレコードと署名者の存在を先に確認する
	id := chi.URLParam(r, "id")
	tx, err := h.service.GetByID(r.Context(), id, false)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	if tx.FindSigner(req.SignerID) == nil {
		handleServiceError(w, model.NewSignerNotFoundError(req.SignerID))
		return
	}

	token, err := h.tokens.CreateSignerToken(r.Context(), id, req.SignerID)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"token": token})
}

// CreateSenderToken は送信者トークンを作成する。
// POST /api/transactions/{id}/sender-token
func (h *TransactionHandler) CreateSenderToken(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, err := h.service.GetByID(r.Context(), id, false); err != nil {
		handleServiceError(w, err)
		return
	}

	token, err := h.tokens.CreateSenderToken(r.Context(), id)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"token": token})
}

// RegisterCallbacks はベンダーへのコールバックURL登録を処理する。
// POST /api/callbacks
func (h *TransactionHandler) RegisterCallbacks(w http.ResponseWriter, r *http.Request) {
	var req registerCallbacksRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest,
			model.NewInvalidRequestError("リクエストボディの解析に失敗しました"))
		return
	}

	result, err := h.tokens.RegisterCallbacks(r.Context(), req.URL, req.Events)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write(result)
}

// ResetTransactions はローカルのトランザクション一覧を空にする。
// DELETE /api/transactions
func (h *TransactionHandler) ResetTransactions(w http.ResponseWriter, r *http.Request) {
	if err := h.service.Reset(r.Context()); err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}
