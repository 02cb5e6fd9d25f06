package config

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/hitoshi/signman/internal/model"
	"github.com/hitoshi/signman/internal/repository"
)

// tokenExpiryMargin はトークン失効前の安全マージン。
// 実際の失効時刻より5分早くキャッシュを無効化し、境界付近での401を避ける。
const tokenExpiryMargin = 5 * time.Minute

// Endpoints はリージョンごとのベンダーURLの組を表す。
type Endpoints struct {
	BaseURL    string
	AuthURL    string
	APIBaseURL string
}

// regionEndpoints はリージョンからURLの組への固定の静的テーブル。
var regionEndpoints = map[model.Region]Endpoints{
	model.RegionUS: {
		BaseURL:    "https://coreapps.congacloud.com",
		AuthURL:    "https://login.congacloud.com/api/v1/auth/connect/token",
		APIBaseURL: "https://coreapps.congacloud.com/api/sign/v1",
	},
	model.RegionEU: {
		BaseURL:    "https://coreapps.congacloud.eu",
		AuthURL:    "https://login.congacloud.eu/api/v1/auth/connect/token",
		APIBaseURL: "https://coreapps.congacloud.eu/api/sign/v1",
	},
	model.RegionAU: {
		BaseURL:    "https://coreapps.congacloud.au",
		AuthURL:    "https://login.congacloud.au/api/v1/auth/connect/token",
		APIBaseURL: "https://coreapps.congacloud.au/api/sign/v1",
	},
}

// Store はベンダー接続設定のシングルトンレコードを管理する。
// 永続化の失敗はすべてログに記録してエラー戻り値に変換し、
// 起動を妨げない（Loadで例外を送出しない）。
//
// バッキングファイルへの書き込みはプロセスをまたぐとlast-write-winsになる。
type Store struct {
	repo   repository.ConfigRepository
	logger *slog.Logger
	now    func() time.Time // テスト用に差し替え可能

	mu   sync.RWMutex
	conn *model.Connection
}

// ConnectionUpdate は接続設定の部分更新を表す。
// nilのフィールドは「変更しない」を意味する。
type ConnectionUpdate struct {
	Region        *model.Region `json:"region"`
	ClientID      *string       `json:"clientId"`
	ClientSecret  *string       `json:"clientSecret"`
	PlatformEmail *string       `json:"platformEmail"`
	CallbackURL   *string       `json:"callbackUrl"`
}

// defaultConnection は接続設定のデフォルトレコードを返す。
func defaultConnection() *model.Connection {
	return &model.Connection{
		Region:      model.RegionUS,
		Initialized: false,
	}
}

// NewStore はStoreを生成し、永続化済みの接続設定を読み込む。
// バッキングファイルが存在しない場合はデフォルトレコードを書き込んで返す。
// 読み込み・パースの失敗時はログに記録し、メモリ上のデフォルトにフォールバックする。
func NewStore(ctx context.Context, repo repository.ConfigRepository, logger *slog.Logger) *Store {
	s := &Store{
		repo:   repo,
		logger: logger,
		now:    time.Now,
	}

	conn, err := repo.Load(ctx)
	if err != nil {
		logger.Error("接続設定の読み込みに失敗、デフォルトにフォールバック",
			slog.String("error", err.Error()),
		)
		s.conn = defaultConnection()
		return s
	}

	if conn == nil {
		// 初回起動: デフォルトレコードをブートストラップ
		s.conn = defaultConnection()
		if err := repo.Save(ctx, s.conn); err != nil {
			logger.Error("デフォルト接続設定の書き込みに失敗",
				slog.String("error", err.Error()),
			)
		}
		return s
	}

	// 既存レコードはスキーママイグレーションせずそのまま使用する
	s.conn = conn
	return s
}

// Get は現在の接続設定レコードのシャローコピーを返す。
// includeSecretがfalseの場合、clientSecretは空にクリアされる
// （ハンドラー層でレスポンスから完全に省略される）。
func (s *Store) Get(includeSecret bool) *model.Connection {
	s.mu.RLock()
	defer s.mu.RUnlock()

	cp := s.conn.Clone()
	if !includeSecret {
		cp.ClientSecret = ""
	}
	return cp
}

// Update は部分更新を現在のレコードにマージして永続化する。
// clientIdまたはclientSecretが変更された場合、キャッシュ済みトークンと
// 失効時刻を無効化して再認証を強制する。
// initializedはclientId/clientSecret/platformEmailすべて非空の論理積として再計算する。
func (s *Store) Update(ctx context.Context, upd ConnectionUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	merged := s.conn.Clone()

	if upd.Region != nil {
		merged.Region = *upd.Region
	}
	if upd.ClientID != nil {
		merged.ClientID = *upd.ClientID
	}
	if upd.ClientSecret != nil {
		merged.ClientSecret = *upd.ClientSecret
	}
	if upd.PlatformEmail != nil {
		merged.PlatformEmail = *upd.PlatformEmail
	}
	if upd.CallbackURL != nil {
		merged.CallbackURL = *upd.CallbackURL
	}

	// 認証情報の変更はキャッシュ済みトークンを無効化する
	if merged.ClientID != s.conn.ClientID || merged.ClientSecret != s.conn.ClientSecret {
		merged.AccessToken = nil
		merged.TokenExpiry = nil
	}

	merged.Initialized = merged.ClientID != "" && merged.ClientSecret != "" && merged.PlatformEmail != ""

	if err := s.repo.Save(ctx, merged); err != nil {
		s.logger.Error("接続設定の永続化に失敗",
			slog.String("error", err.Error()),
		)
		return err
	}

	s.conn = merged
	return nil
}

// UpdateToken は新しいアクセストークンと失効時刻を永続化する。
// 失効時刻は now + expiresInSeconds - 5分の安全マージン。
func (s *Store) UpdateToken(ctx context.Context, token string, expiresInSeconds int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	expiry := s.now().Add(time.Duration(expiresInSeconds)*time.Second - tokenExpiryMargin)

	merged := s.conn.Clone()
	merged.AccessToken = &token
	merged.TokenExpiry = &expiry

	if err := s.repo.Save(ctx, merged); err != nil {
		s.logger.Error("トークンの永続化に失敗",
			slog.String("error", err.Error()),
		)
		return err
	}

	s.conn = merged
	return nil
}

// IsTokenValid はキャッシュ済みトークンが現在有効かどうかを返す。
// トークンが無い場合はfalse。失効時刻が無い場合もfalse
// （失効時刻なしのトークンは「常に有効」ではなく「無効」として扱い、
// 再認証を強制する）。それ以外は失効時刻が厳密に未来であれば有効。
func (s *Store) IsTokenValid() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.conn.AccessToken == nil || *s.conn.AccessToken == "" {
		return false
	}
	if s.conn.TokenExpiry == nil {
		return false
	}
	return s.conn.TokenExpiry.After(s.now())
}

// IsInitialized は接続設定が完了しているかどうかを返す。
func (s *Store) IsInitialized() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.conn.Initialized
}

// ResolveURLs は現在のリージョンに対応するURLの組を返す。
// 未知のリージョンの場合はusにフォールバックする。
func (s *Store) ResolveURLs() Endpoints {
	s.mu.RLock()
	region := s.conn.Region
	s.mu.RUnlock()

	if eps, ok := regionEndpoints[region]; ok {
		return eps
	}
	return regionEndpoints[model.RegionUS]
}

// Reset は全フィールドをデフォルトに戻して永続化する。
// keepRegionがtrueの場合は現在のリージョン値を維持する。
func (s *Store) Reset(ctx context.Context, keepRegion bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := defaultConnection()
	if keepRegion {
		next.Region = s.conn.Region
	}

	if err := s.repo.Save(ctx, next); err != nil {
		s.logger.Error("接続設定のリセットの永続化に失敗",
			slog.String("error", err.Error()),
		)
		return err
	}

	s.conn = next
	return nil
}
