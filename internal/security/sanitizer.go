// Package security はアプリケーションのセキュリティ機能を提供する。
//
// DisplaySanitizerService はベンダーAPIから取得した表示文字列
// （パッケージ名、署名者名など）をサニタイズし、管理画面でのXSSを防ぐ。
// bluemondayのStrictPolicyにより、HTMLタグをすべて除去したプレーンテキスト
// のみを通過させる。
package security

import (
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// DisplaySanitizerService は表示文字列のサニタイズ機能のインターフェースを定義する。
// リモートパッケージのマージ時、ベンダー由来の文字列の保存前に使用される。
type DisplaySanitizerService interface {
	// Sanitize は文字列からHTMLタグをすべて除去して返す。
	// 前後の空白もトリムする。空文字列の入力には空文字列を返す。
	// 同一入力に対して常に同一出力を返す（冪等）。
	Sanitize(raw string) string
}

// displaySanitizer はDisplaySanitizerServiceの実装。
// bluemondayのポリシーを保持し、スレッドセーフにサニタイズ処理を行う。
type displaySanitizer struct {
	policy *bluemonday.Policy
}

// NewDisplaySanitizer はDisplaySanitizerServiceの新しいインスタンスを生成する。
// ベンダー由来の値は表示専用のプレーンテキストとして扱うため、
// タグを一切許可しないStrictPolicyを使用する。
func NewDisplaySanitizer() *displaySanitizer {
	return &displaySanitizer{
		policy: bluemonday.StrictPolicy(),
	}
}

// Sanitize は文字列からHTMLタグをすべて除去して返す。
func (s *displaySanitizer) Sanitize(raw string) string {
	return strings.TrimSpace(s.policy.Sanitize(raw))
}

// compile-time interface check
var _ DisplaySanitizerService = (*displaySanitizer)(nil)
