package config

import (
	"os"
	"strconv"
	"time"
)

// Config はアプリケーション全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
// サンドボックス用途のためすべての項目にデフォルト値がある。
type Config struct {
	// Server
	ServerPort string

	// Data: JSONドキュメントの保存先ディレクトリ
	DataDir string

	// Vendor: ベンダーAPI呼び出しのタイムアウト
	VendorTimeout time.Duration

	// Rate Limit（req/min単位）
	RateLimitGeneral  int
	RateLimitMutation int

	// CORS
	CORSAllowedOrigin string
}

// ConfigFileName は接続設定ドキュメントのファイル名。
const ConfigFileName = "config.json"

// TransactionsFileName はトランザクション一覧ドキュメントのファイル名。
const TransactionsFileName = "transactions.json"

// Load は環境変数からConfigを読み込む。
// すべての項目が任意であり、未設定の場合はデフォルト値を使用する。
func Load() (*Config, error) {
	cfg := &Config{
		ServerPort:        getEnvString("SERVER_PORT", "8080"),
		DataDir:           getEnvString("DATA_DIR", "data"),
		VendorTimeout:     getEnvDuration("VENDOR_TIMEOUT", 30*time.Second),
		RateLimitGeneral:  getEnvInt("RATE_LIMIT_GENERAL", 120),
		RateLimitMutation: getEnvInt("RATE_LIMIT_MUTATION", 30),
		CORSAllowedOrigin: getEnvString("CORS_ALLOWED_ORIGIN", "http://localhost:3000"),
	}
	return cfg, nil
}

func getEnvString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}
