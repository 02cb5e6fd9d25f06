// Package repository はデータ永続化のインターフェースを定義する。
//
// 永続化形式は2つの独立したJSONドキュメント（接続設定とトランザクション一覧）
// であり、メモリ上の形をそのままシリアライズしたものが外部契約となる。
package repository

import (
	"context"

	"github.com/hitoshi/signman/internal/model"
)

// ConfigRepository は接続設定レコードの永続化インターフェース。
type ConfigRepository interface {
	// Load は永続化された接続設定を取得する。
	// ファイルが存在しない場合は (nil, nil) を返す。
	Load(ctx context.Context) (*model.Connection, error)

	// Save は接続設定レコード全体を永続化する。
	Save(ctx context.Context, conn *model.Connection) error
}

// TransactionRepository はトランザクション一覧の永続化インターフェース。
type TransactionRepository interface {
	// Load は永続化されたトランザクション一覧を取得する。
	// ファイルが存在しない場合は (nil, nil) を返す。
	Load(ctx context.Context) ([]*model.Transaction, error)

	// Save はトランザクション一覧全体を永続化する。
	Save(ctx context.Context, txs []*model.Transaction) error
}
