package handler

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/hitoshi/signman/internal/model"
	"github.com/hitoshi/signman/internal/transaction"
)

// mockTransactionService はTransactionServiceInterfaceのテスト用モック。
// fnフィールドが未設定の場合はデフォルトの応答を返す。
type mockTransactionService struct {
	getAllFn          func(ctx context.Context, refresh bool, opts transaction.ListOptions) []*model.Transaction
	getByIDFn         func(ctx context.Context, id string, refresh bool) (*model.Transaction, error)
	createFn          func(ctx context.Context, req transaction.CreateRequest) (*model.Transaction, error)
	sendFn            func(ctx context.Context, id string) (*model.Transaction, error)
	cancelFn          func(ctx context.Context, id string) (*model.Transaction, error)
	refreshStatusFn   func(ctx context.Context, id string) (*model.Transaction, error)
	resendFn          func(ctx context.Context, id, signerID string) (*model.Transaction, error)
	getSigningURLFn   func(ctx context.Context, id, signerID string) (string, error)
	addSignerFn       func(ctx context.Context, id string, in transaction.SignerInput) (*model.Transaction, error)
	addDocumentFn     func(ctx context.Context, id, name, contentType string, data []byte) (*model.Transaction, error)
	addFieldFn        func(ctx context.Context, id, documentID, signerID string, overrides map[string]any) (*model.Transaction, error)
	getAuditReportFn  func(ctx context.Context, id string) (json.RawMessage, error)
	resetFn           func(ctx context.Context) error

	calls map[string]int
}

func (m *mockTransactionService) record(name string) {
	if m.calls == nil {
		m.calls = map[string]int{}
	}
	m.calls[name]++
}

func sampleTransaction() *model.Transaction {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	return &model.Transaction{
		ID:      "tx-1",
		Name:    "秘密保持契約",
		Status:  model.StatusCreated,
		Created: now,
		Updated: now,
		Signers: []model.Signer{
			{ID: "signer-1", Name: "Taro Suzuki", Email: "taro@example.com", Status: model.SignerStatusPending},
		},
		Documents: []model.Document{},
		History: []model.HistoryEntry{
			{Action: model.ActionCreated, Timestamp: now, Details: "created"},
		},
	}
}

func (m *mockTransactionService) GetAll(ctx context.Context, refresh bool, opts transaction.ListOptions) []*model.Transaction {
	m.record("GetAll")
	if m.getAllFn != nil {
		return m.getAllFn(ctx, refresh, opts)
	}
	return []*model.Transaction{sampleTransaction()}
}

func (m *mockTransactionService) GetByID(ctx context.Context, id string, refresh bool) (*model.Transaction, error) {
	m.record("GetByID")
	if m.getByIDFn != nil {
		return m.getByIDFn(ctx, id, refresh)
	}
	return sampleTransaction(), nil
}

func (m *mockTransactionService) Create(ctx context.Context, req transaction.CreateRequest) (*model.Transaction, error) {
	m.record("Create")
	if m.createFn != nil {
		return m.createFn(ctx, req)
	}
	return sampleTransaction(), nil
}

func (m *mockTransactionService) Send(ctx context.Context, id string) (*model.Transaction, error) {
	m.record("Send")
	if m.sendFn != nil {
		return m.sendFn(ctx, id)
	}
	return sampleTransaction(), nil
}

func (m *mockTransactionService) Cancel(ctx context.Context, id string) (*model.Transaction, error) {
	m.record("Cancel")
	if m.cancelFn != nil {
		return m.cancelFn(ctx, id)
	}
	return sampleTransaction(), nil
}

func (m *mockTransactionService) RefreshStatus(ctx context.Context, id string) (*model.Transaction, error) {
	m.record("RefreshStatus")
	if m.refreshStatusFn != nil {
		return m.refreshStatusFn(ctx, id)
	}
	return sampleTransaction(), nil
}

func (m *mockTransactionService) ResendNotification(ctx context.Context, id, signerID string) (*model.Transaction, error) {
	m.record("ResendNotification")
	if m.resendFn != nil {
		return m.resendFn(ctx, id, signerID)
	}
	return sampleTransaction(), nil
}

func (m *mockTransactionService) GetSigningURL(ctx context.Context, id, signerID string) (string, error) {
	m.record("GetSigningURL")
	if m.getSigningURLFn != nil {
		return m.getSigningURLFn(ctx, id, signerID)
	}
	return "https://sign.example.com/page", nil
}

func (m *mockTransactionService) AddSigner(ctx context.Context, id string, in transaction.SignerInput) (*model.Transaction, error) {
	m.record("AddSigner")
	if m.addSignerFn != nil {
		return m.addSignerFn(ctx, id, in)
	}
	return sampleTransaction(), nil
}

func (m *mockTransactionService) AddDocument(ctx context.Context, id, name, contentType string, data []byte) (*model.Transaction, error) {
	m.record("AddDocument")
	if m.addDocumentFn != nil {
		return m.addDocumentFn(ctx, id, name, contentType, data)
	}
	return sampleTransaction(), nil
}

func (m *mockTransactionService) AddSignatureField(ctx context.Context, id, documentID, signerID string, overrides map[string]any) (*model.Transaction, error) {
	m.record("AddSignatureField")
	if m.addFieldFn != nil {
		return m.addFieldFn(ctx, id, documentID, signerID, overrides)
	}
	return sampleTransaction(), nil
}

func (m *mockTransactionService) GetAuditReport(ctx context.Context, id string) (json.RawMessage, error) {
	m.record("GetAuditReport")
	if m.getAuditReportFn != nil {
		return m.getAuditReportFn(ctx, id)
	}
	return json.RawMessage(`{"events":[]}`), nil
}

func (m *mockTransactionService) Reset(ctx context.Context) error {
	m.record("Reset")
	if m.resetFn != nil {
		return m.resetFn(ctx)
	}
	return nil
}

var _ TransactionServiceInterface = (*mockTransactionService)(nil)

// mockTokenCreator はSigningTokenCreatorのテスト用モック。
type mockTokenCreator struct {
	senderTokenFn func(ctx context.Context, packageID string) (string, error)
	signerTokenFn func(ctx context.Context, packageID, signerID string) (string, error)
	callbacksFn   func(ctx context.Context, callbackURL string, events []string) (json.RawMessage, error)

	calls map[string]int
}

func (m *mockTokenCreator) record(name string) {
	if m.calls == nil {
		m.calls = map[string]int{}
	}
	m.calls[name]++
}

func (m *mockTokenCreator) CreateSenderToken(ctx context.Context, packageID string) (string, error) {
	m.record("CreateSenderToken")
	if m.senderTokenFn != nil {
		return m.senderTokenFn(ctx, packageID)
	}
	return "sender-token", nil
}

func (m *mockTokenCreator) CreateSignerToken(ctx context.Context, packageID, signerID string) (string, error) {
	m.record("CreateSignerToken")
	if m.signerTokenFn != nil {
		return m.signerTokenFn(ctx, packageID, signerID)
	}
	return "signer-token", nil
}

func (m *mockTokenCreator) RegisterCallbacks(ctx context.Context, callbackURL string, events []string) (json.RawMessage, error) {
	m.record("RegisterCallbacks")
	if m.callbacksFn != nil {
		return m.callbacksFn(ctx, callbackURL, events)
	}
	return json.RawMessage(`{"registered":true}`), nil
}

var _ SigningTokenCreator = (*mockTokenCreator)(nil)

// newTestRouter はテスト用のトランザクションルーティングを構築する。
func newTestRouter(service TransactionServiceInterface, tokens SigningTokenCreator) http.Handler {
	h := NewTransactionHandler(service, tokens)

	r := chi.NewRouter()
	r.Route("/api/transactions", func(r chi.Router) {
		r.Get("/", h.ListTransactions)
		r.Post("/", h.CreateTransaction)
		r.Delete("/", h.ResetTransactions)
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", h.GetTransaction)
			r.Post("/send", h.SendTransaction)
			r.Post("/cancel", h.CancelTransaction)
			r.Post("/refresh", h.RefreshTransactionStatus)
			r.Post("/resend", h.ResendNotification)
			r.Get("/signing-url", h.GetSigningURL)
			r.Post("/signers", h.AddSigner)
			r.Post("/documents", h.AddDocument)
			r.Post("/fields", h.AddSignatureField)
			r.Get("/audit", h.GetAuditReport)
			r.Post("/signer-token", h.CreateSignerToken)
			r.Post("/sender-token", h.CreateSenderToken)
		})
	})
	r.Post("/api/callbacks", h.RegisterCallbacks)
	return r
}

func decodeErrorResponse(t *testing.T, rec *httptest.ResponseRecorder) apiErrorResponse {
	t.Helper()
	var resp apiErrorResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode error response: %v\nbody: %s", err, rec.Body.String())
	}
	return resp
}

func TestListTransactions_QueryOptions(t *testing.T) {
	var gotRefresh bool
	var gotOpts transaction.ListOptions
	service := &mockTransactionService{
		getAllFn: func(ctx context.Context, refresh bool, opts transaction.ListOptions) []*model.Transaction {
			gotRefresh = refresh
			gotOpts = opts
			return []*model.Transaction{}
		},
	}
	router := newTestRouter(service, &mockTokenCreator{})

	req := httptest.NewRequest("GET", "/api/transactions?refresh=true&ownerEmail=a%40b.com&from=5&to=25", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if !gotRefresh {
		t.Error("expected refresh = true")
	}
	if gotOpts.OwnerEmail != "a@b.com" || gotOpts.From != 5 || gotOpts.To != 25 {
		t.Errorf("opts = %+v, want ownerEmail=a@b.com from=5 to=25", gotOpts)
	}

	// 空一覧は null ではなく [] で返る
	if strings.TrimSpace(rec.Body.String()) != "[]" {
		t.Errorf("body = %q, want []", rec.Body.String())
	}
}

func TestCreateTransaction_Returns201(t *testing.T) {
	var gotReq transaction.CreateRequest
	service := &mockTransactionService{
		createFn: func(ctx context.Context, req transaction.CreateRequest) (*model.Transaction, error) {
			gotReq = req
			return sampleTransaction(), nil
		},
	}
	router := newTestRouter(service, &mockTokenCreator{})

	body := strings.NewReader(`{"name": "契約書A", "overrides": {"language": "ja"}}`)
	req := httptest.NewRequest("POST", "/api/transactions", body)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201: %s", rec.Code, rec.Body.String())
	}
	if gotReq.Name != "契約書A" {
		t.Errorf("name = %q, want 契約書A", gotReq.Name)
	}
	if gotReq.Overrides["language"] != "ja" {
		t.Errorf("overrides = %v, want language=ja", gotReq.Overrides)
	}
}

func TestCreateTransaction_InvalidBody(t *testing.T) {
	service := &mockTransactionService{}
	router := newTestRouter(service, &mockTokenCreator{})

	req := httptest.NewRequest("POST", "/api/transactions", strings.NewReader("not json"))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	if service.calls["Create"] != 0 {
		t.Error("service.Create must not be called for invalid body")
	}
}

func TestGetTransaction_NotFoundMapsTo404(t *testing.T) {
	service := &mockTransactionService{
		getByIDFn: func(ctx context.Context, id string, refresh bool) (*model.Transaction, error) {
			return nil, model.NewTransactionNotFoundError(id)
		},
	}
	router := newTestRouter(service, &mockTokenCreator{})

	req := httptest.NewRequest("GET", "/api/transactions/missing", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
	resp := decodeErrorResponse(t, rec)
	if resp.Code != model.ErrCodeTransactionNotFound {
		t.Errorf("code = %q, want %q", resp.Code, model.ErrCodeTransactionNotFound)
	}
}

func TestSendTransaction_ConfigNotInitializedMapsTo409(t *testing.T) {
	service := &mockTransactionService{
		sendFn: func(ctx context.Context, id string) (*model.Transaction, error) {
			return nil, model.NewConfigNotInitializedError()
		},
	}
	router := newTestRouter(service, &mockTokenCreator{})

	req := httptest.NewRequest("POST", "/api/transactions/tx-1/send", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusConflict {
		t.Fatalf("status = %d, want 409", rec.Code)
	}
	resp := decodeErrorResponse(t, rec)
	if resp.Code != model.ErrCodeConfigNotInitialized {
		t.Errorf("code = %q, want %q", resp.Code, model.ErrCodeConfigNotInitialized)
	}
}

func TestCancelTransaction_VendorErrorMapsTo502(t *testing.T) {
	service := &mockTransactionService{
		cancelFn: func(ctx context.Context, id string) (*model.Transaction, error) {
			return nil, model.NewAPIRequestError(422, `{"error":"cannot cancel"}`)
		},
	}
	router := newTestRouter(service, &mockTokenCreator{})

	req := httptest.NewRequest("POST", "/api/transactions/tx-1/cancel", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadGateway {
		t.Fatalf("status = %d, want 502", rec.Code)
	}
	resp := decodeErrorResponse(t, rec)
	if resp.Code != model.ErrCodeAPIRequestFailed {
		t.Errorf("code = %q, want %q", resp.Code, model.ErrCodeAPIRequestFailed)
	}
	// ベンダーのステータスと生ボディが保持される
	if resp.VendorStatus != 422 {
		t.Errorf("vendorStatus = %d, want 422", resp.VendorStatus)
	}
	if resp.VendorBody != `{"error":"cannot cancel"}` {
		t.Errorf("vendorBody = %q", resp.VendorBody)
	}
}

func TestGetSigningURL_ReturnsURL(t *testing.T) {
	var gotID, gotSignerID string
	service := &mockTransactionService{
		getSigningURLFn: func(ctx context.Context, id, signerID string) (string, error) {
			gotID, gotSignerID = id, signerID
			return "https://sign.example.com/s/abc", nil
		},
	}
	router := newTestRouter(service, &mockTokenCreator{})

	req := httptest.NewRequest("GET", "/api/transactions/tx-1/signing-url?signerId=signer-1", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if gotID != "tx-1" || gotSignerID != "signer-1" {
		t.Errorf("id = %q, signerId = %q", gotID, gotSignerID)
	}

	var resp map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp["url"] != "https://sign.example.com/s/abc" {
		t.Errorf("url = %q", resp["url"])
	}
}

func TestAddDocument_DecodesBase64Content(t *testing.T) {
	var gotName, gotType string
	var gotData []byte
	service := &mockTransactionService{
		addDocumentFn: func(ctx context.Context, id, name, contentType string, data []byte) (*model.Transaction, error) {
			gotName, gotType, gotData = name, contentType, data
			return sampleTransaction(), nil
		},
	}
	router := newTestRouter(service, &mockTokenCreator{})

	content := base64.StdEncoding.EncodeToString([]byte("%PDF-1.4 test"))
	body := strings.NewReader(`{"name": "contract.pdf", "type": "application/pdf", "content": "` + content + `"}`)
	req := httptest.NewRequest("POST", "/api/transactions/tx-1/documents", body)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201: %s", rec.Code, rec.Body.String())
	}
	if gotName != "contract.pdf" || gotType != "application/pdf" {
		t.Errorf("name = %q, type = %q", gotName, gotType)
	}
	if string(gotData) != "%PDF-1.4 test" {
		t.Errorf("data = %q, want decoded content", gotData)
	}
}

func TestAddDocument_RejectsInvalidBase64(t *testing.T) {
	service := &mockTransactionService{}
	router := newTestRouter(service, &mockTokenCreator{})

	body := strings.NewReader(`{"name": "contract.pdf", "content": "!!!not-base64!!!"}`)
	req := httptest.NewRequest("POST", "/api/transactions/tx-1/documents", body)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	if service.calls["AddDocument"] != 0 {
		t.Error("service.AddDocument must not be called for invalid base64")
	}
}

func TestAddSignatureField_ForwardsOverrides(t *testing.T) {
	var gotDocID, gotSignerID string
	var gotOverrides map[string]any
	service := &mockTransactionService{
		addFieldFn: func(ctx context.Context, id, documentID, signerID string, overrides map[string]any) (*model.Transaction, error) {
			gotDocID, gotSignerID, gotOverrides = documentID, signerID, overrides
			return sampleTransaction(), nil
		},
	}
	router := newTestRouter(service, &mockTokenCreator{})

	body := strings.NewReader(`{"documentId": "doc-1", "signerId": "signer-1", "overrides": {"page": 2}}`)
	req := httptest.NewRequest("POST", "/api/transactions/tx-1/fields", body)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body.String())
	}
	if gotDocID != "doc-1" || gotSignerID != "signer-1" {
		t.Errorf("documentId = %q, signerId = %q", gotDocID, gotSignerID)
	}
	if gotOverrides["page"] != float64(2) {
		t.Errorf("overrides = %v, want page=2", gotOverrides)
	}
}

func TestCreateSignerToken_UnknownSignerRejectedLocally(t *testing.T) {
	service := &mockTransactionService{}
	tokens := &mockTokenCreator{}
	router := newTestRouter(service, tokens)

	body := strings.NewReader(`{"signerId": "missing-signer"}`)
	req := httptest.NewRequest("POST", "/api/transactions/tx-1/signer-token", body)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
	resp := decodeErrorResponse(t, rec)
	if resp.Code != model.ErrCodeSignerNotFound {
		t.Errorf("code = %q, want %q", resp.Code, model.ErrCodeSignerNotFound)
	}
	// ローカル検証で拒否され、ベンダー呼び出しは行われない
	if tokens.calls["CreateSignerToken"] != 0 {
		t.Error("CreateSignerToken must not be called for unknown signer")
	}
}

func TestCreateSignerToken_Success(t *testing.T) {
	service := &mockTransactionService{}
	tokens := &mockTokenCreator{
		signerTokenFn: func(ctx context.Context, packageID, signerID string) (string, error) {
			if packageID != "tx-1" || signerID != "signer-1" {
				t.Errorf("packageID = %q, signerID = %q", packageID, signerID)
			}
			return "tok-xyz", nil
		},
	}
	router := newTestRouter(service, tokens)

	body := strings.NewReader(`{"signerId": "signer-1"}`)
	req := httptest.NewRequest("POST", "/api/transactions/tx-1/signer-token", body)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201: %s", rec.Code, rec.Body.String())
	}

	var resp map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp["token"] != "tok-xyz" {
		t.Errorf("token = %q, want tok-xyz", resp["token"])
	}
}

func TestCreateSenderToken_UnknownTransaction(t *testing.T) {
	service := &mockTransactionService{
		getByIDFn: func(ctx context.Context, id string, refresh bool) (*model.Transaction, error) {
			return nil, model.NewTransactionNotFoundError(id)
		},
	}
	tokens := &mockTokenCreator{}
	router := newTestRouter(service, tokens)

	req := httptest.NewRequest("POST", "/api/transactions/missing/sender-token", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
	if tokens.calls["CreateSenderToken"] != 0 {
		t.Error("CreateSenderToken must not be called for unknown transaction")
	}
}

func TestRegisterCallbacks_BlockedURLMapsTo403(t *testing.T) {
	tokens := &mockTokenCreator{
		callbacksFn: func(ctx context.Context, callbackURL string, events []string) (json.RawMessage, error) {
			return nil, model.NewCallbackURLBlockedError("private address")
		},
	}
	router := newTestRouter(&mockTransactionService{}, tokens)

	body := strings.NewReader(`{"url": "http://169.254.169.254/latest"}`)
	req := httptest.NewRequest("POST", "/api/callbacks", body)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want 403", rec.Code)
	}
	resp := decodeErrorResponse(t, rec)
	if resp.Code != model.ErrCodeCallbackURLBlocked {
		t.Errorf("code = %q, want %q", resp.Code, model.ErrCodeCallbackURLBlocked)
	}
}

func TestRegisterCallbacks_PassesThroughResult(t *testing.T) {
	var gotURL string
	var gotEvents []string
	tokens := &mockTokenCreator{
		callbacksFn: func(ctx context.Context, callbackURL string, events []string) (json.RawMessage, error) {
			gotURL = callbackURL
			gotEvents = events
			return json.RawMessage(`{"registered":true}`), nil
		},
	}
	router := newTestRouter(&mockTransactionService{}, tokens)

	body := strings.NewReader(`{"url": "https://hooks.example.com/sign", "events": ["PACKAGE_COMPLETE"]}`)
	req := httptest.NewRequest("POST", "/api/callbacks", body)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if gotURL != "https://hooks.example.com/sign" {
		t.Errorf("url = %q", gotURL)
	}
	if len(gotEvents) != 1 || gotEvents[0] != "PACKAGE_COMPLETE" {
		t.Errorf("events = %v", gotEvents)
	}
	if strings.TrimSpace(rec.Body.String()) != `{"registered":true}` {
		t.Errorf("body = %q, want vendor result verbatim", rec.Body.String())
	}
}

func TestGetAuditReport_PassesThroughRawJSON(t *testing.T) {
	service := &mockTransactionService{
		getAuditReportFn: func(ctx context.Context, id string) (json.RawMessage, error) {
			return json.RawMessage(`{"events":[{"type":"SIGNED"}]}`), nil
		},
	}
	router := newTestRouter(service, &mockTokenCreator{})

	req := httptest.NewRequest("GET", "/api/transactions/tx-1/audit", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if rec.Body.String() != `{"events":[{"type":"SIGNED"}]}` {
		t.Errorf("body = %q, want vendor report verbatim", rec.Body.String())
	}
}

func TestResetTransactions_ReturnsSuccess(t *testing.T) {
	service := &mockTransactionService{}
	router := newTestRouter(service, &mockTokenCreator{})

	req := httptest.NewRequest("DELETE", "/api/transactions", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if service.calls["Reset"] != 1 {
		t.Errorf("Reset calls = %d, want 1", service.calls["Reset"])
	}

	var resp map[string]bool
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if !resp["success"] {
		t.Error("expected success = true")
	}
}
