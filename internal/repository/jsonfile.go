package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/hitoshi/signman/internal/model"
)

// writeJSONFile はJSONドキュメントを一時ファイル経由で書き込む。
// 同一プロセス内での書き込み途中のファイルを読まないためのrename書き込み。
// プロセスをまたぐ同時書き込みはlast-write-winsであり、ファイルロックは行わない
// （サンドボックスの既知の制約として仕様上許容されている）。
func writeJSONFile(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("JSONシリアライズに失敗: %w", err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("データディレクトリの作成に失敗: %w", err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("一時ファイルの作成に失敗: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("一時ファイルへの書き込みに失敗: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("一時ファイルのクローズに失敗: %w", err)
	}

	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("ファイルの置き換えに失敗: %w", err)
	}
	return nil
}

// readJSONFile はJSONドキュメントを読み込んでvにデコードする。
// ファイルが存在しない場合は (false, nil) を返す。
func readJSONFile(path string, v any) (found bool, err error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("ファイルの読み込みに失敗: %w", err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return false, fmt.Errorf("JSONのパースに失敗: %w", err)
	}
	return true, nil
}

// JSONFileConfigRepo はConfigRepositoryのフラットファイル実装。
type JSONFileConfigRepo struct {
	path string
}

// NewJSONFileConfigRepo は指定パスのJSONファイルを使用する
// JSONFileConfigRepoを生成する。
func NewJSONFileConfigRepo(path string) *JSONFileConfigRepo {
	return &JSONFileConfigRepo{path: path}
}

// Load は接続設定レコードをファイルから読み込む。
func (r *JSONFileConfigRepo) Load(ctx context.Context) (*model.Connection, error) {
	var conn model.Connection
	found, err := readJSONFile(r.path, &conn)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, nil
	}
	return &conn, nil
}

// Save は接続設定レコードをファイルに書き込む。
func (r *JSONFileConfigRepo) Save(ctx context.Context, conn *model.Connection) error {
	return writeJSONFile(r.path, conn)
}

// JSONFileTransactionRepo はTransactionRepositoryのフラットファイル実装。
type JSONFileTransactionRepo struct {
	path string
}

// NewJSONFileTransactionRepo は指定パスのJSONファイルを使用する
// JSONFileTransactionRepoを生成する。
func NewJSONFileTransactionRepo(path string) *JSONFileTransactionRepo {
	return &JSONFileTransactionRepo{path: path}
}

// Load はトランザクション一覧をファイルから読み込む。
func (r *JSONFileTransactionRepo) Load(ctx context.Context) ([]*model.Transaction, error) {
	var txs []*model.Transaction
	found, err := readJSONFile(r.path, &txs)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, nil
	}
	return txs, nil
}

// Save はトランザクション一覧をファイルに書き込む。
// 空の一覧は空のJSON配列として書き込まれる（nullにはしない）。
func (r *JSONFileTransactionRepo) Save(ctx context.Context, txs []*model.Transaction) error {
	if txs == nil {
		txs = []*model.Transaction{}
	}
	return writeJSONFile(r.path, txs)
}

// compile-time interface check
var (
	_ ConfigRepository      = (*JSONFileConfigRepo)(nil)
	_ TransactionRepository = (*JSONFileTransactionRepo)(nil)
)
