package handler

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/hitoshi/signman/internal/config"
	"github.com/hitoshi/signman/internal/model"
)

// ConfigServiceInterface は設定ハンドラーが必要とするサービスインターフェース。
type ConfigServiceInterface interface {
	// Get は現在の接続設定のコピーを返す。
	Get(includeSecret bool) *model.Connection
	// Update は部分更新をマージして永続化する。
	Update(ctx context.Context, upd config.ConnectionUpdate) error
	// Reset は設定をデフォルトに戻す。
	Reset(ctx context.Context, keepRegion bool) error
	// IsTokenValid はキャッシュ済みトークンが有効かどうかを返す。
	IsTokenValid() bool
}

// ConfigHandler は接続設定のHTTPハンドラー。
type ConfigHandler struct {
	service ConfigServiceInterface
}

// NewConfigHandler はConfigHandlerを生成する。
func NewConfigHandler(service ConfigServiceInterface) *ConfigHandler {
	return &ConfigHandler{service: service}
}

// configResponse は接続設定のAPIレスポンス。
// clientSecretはincludeSecret時のみ含まれ、通常はフィールドごと省略される
// （マスクではなく欠落）。
type configResponse struct {
	Region        model.Region `json:"region"`
	ClientID      string       `json:"clientId"`
	ClientSecret  *string      `json:"clientSecret,omitempty"`
	PlatformEmail string       `json:"platformEmail"`
	CallbackURL   string       `json:"callbackUrl"`
	Initialized   bool         `json:"initialized"`
	TokenValid    bool         `json:"tokenValid"`
}

func (h *ConfigHandler) toResponse(conn *model.Connection, includeSecret bool) configResponse {
	resp := configResponse{
		Region:        conn.Region,
		ClientID:      conn.ClientID,
		PlatformEmail: conn.PlatformEmail,
		CallbackURL:   conn.CallbackURL,
		Initialized:   conn.Initialized,
		TokenValid:    h.service.IsTokenValid(),
	}
	if includeSecret {
		secret := conn.ClientSecret
		resp.ClientSecret = &secret
	}
	return resp
}

// GetConfig は接続設定を取得する。clientSecretはレスポンスに含まれない。
// GET /api/config
func (h *ConfigHandler) GetConfig(w http.ResponseWriter, r *http.Request) {
	conn := h.service.Get(false)
	writeJSON(w, http.StatusOK, h.toResponse(conn, false))
}

// UpdateConfig は接続設定の部分更新を処理する。
// 指定されたフィールドの型が不正な場合は更新全体が失敗し、何も永続化されない。
// PUT /api/config
func (h *ConfigHandler) UpdateConfig(w http.ResponseWriter, r *http.Request) {
	var upd config.ConnectionUpdate
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&upd); err != nil {
		// 文字列以外のclientId等を含む不正なボディはここで拒否される
		writeAPIErrorResponse(w, http.StatusBadRequest,
			model.NewInvalidRequestError("リクエストボディの解析に失敗しました"))
		return
	}

	if err := h.service.Update(r.Context(), upd); err != nil {
		handleServiceError(w, err)
		return
	}

	conn := h.service.Get(false)
	writeJSON(w, http.StatusOK, h.toResponse(conn, false))
}

// ResetConfig は接続設定をデフォルトに戻す。
// keepRegion=trueクエリパラメータで現在のリージョンを維持できる。
// DELETE /api/config
func (h *ConfigHandler) ResetConfig(w http.ResponseWriter, r *http.Request) {
	keepRegion := r.URL.Query().Get("keepRegion") == "true"

	if err := h.service.Reset(r.Context(), keepRegion); err != nil {
		handleServiceError(w, err)
		return
	}

	conn := h.service.Get(false)
	writeJSON(w, http.StatusOK, h.toResponse(conn, false))
}
