// Package handler はAPIエンドポイントのHTTPハンドラーを提供する。
package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/hitoshi/signman/internal/model"
)

// apiErrorResponse は統一エラーフォーマットのレスポンス。
// ベンダーAPIエラーの場合はベンダーのステータスと生ボディを含む。
type apiErrorResponse struct {
	Code         string `json:"code"`
	Message      string `json:"message"`
	Category     string `json:"category"`
	Action       string `json:"action"`
	VendorStatus int    `json:"vendorStatus,omitempty"`
	VendorBody   string `json:"vendorBody,omitempty"`
}

// writeJSON はJSONレスポンスを書き込む。
func writeJSON(w http.ResponseWriter, statusCode int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(v)
}

// writeAPIErrorResponse は統一エラーフォーマットでエラーレスポンスを書き込む。
func writeAPIErrorResponse(w http.ResponseWriter, statusCode int, apiErr *model.APIError) {
	writeJSON(w, statusCode, apiErrorResponse{
		Code:         apiErr.Code,
		Message:      apiErr.Message,
		Category:     apiErr.Category,
		Action:       apiErr.Action,
		VendorStatus: apiErr.HTTPStatus,
		VendorBody:   apiErr.Body,
	})
}

// handleServiceError はサービス層のエラーをHTTPレスポンスにマッピングする。
func handleServiceError(w http.ResponseWriter, err error) {
	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		writeAPIErrorResponse(w, mapAPIErrorToHTTPStatus(apiErr), apiErr)
		return
	}

	// APIError以外のエラーは内部サーバーエラーとして扱う
	slog.Error("internal server error", slog.String("error", err.Error()))
	writeAPIErrorResponse(w, http.StatusInternalServerError, &model.APIError{
		Code:     "INTERNAL_ERROR",
		Message:  "内部エラーが発生しました。",
		Category: "system",
		Action:   "しばらく待ってから再度お試しください。",
	})
}

// mapAPIErrorToHTTPStatus はAPIErrorコードからHTTPステータスコードにマッピングする。
func mapAPIErrorToHTTPStatus(apiErr *model.APIError) int {
	switch apiErr.Code {
	case model.ErrCodeConfigNotInitialized, model.ErrCodePlatformEmailMissing:
		return http.StatusConflict
	case model.ErrCodeAuthFailed, model.ErrCodeAPIRequestFailed:
		return http.StatusBadGateway
	case model.ErrCodeTransactionNotFound, model.ErrCodeSignerNotFound:
		return http.StatusNotFound
	case model.ErrCodeInvalidRequest:
		return http.StatusBadRequest
	case model.ErrCodeCallbackURLBlocked:
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}
