package security

import (
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/doyensec/safeurl"
)

// URLGuardService はSSRF防止機能のインターフェースを定義する。
// コールバックURL登録時の事前検証と、ベンダーAPIへの
// アウトバウンドHTTPクライアントの生成に使用される。
type URLGuardService interface {
	// NewSafeClient はSSRF防止機能付きのHTTPクライアントを生成する。
	// safeurlライブラリにより、プライベートIP、ループバック、リンクローカル、
	// メタデータIPへのリクエストがDNS解決後のDialerレベルでブロックされる。
	NewSafeClient(timeout time.Duration) *http.Client

	// ValidateCallbackURL はコールバックURLの安全性を事前に検証する。
	// スキーム、ホスト、IPアドレスの静的検証を行い、
	// 危険なURLの場合はエラーを返す。
	ValidateCallbackURL(rawURL string) error
}

// callbackSchemes はコールバックURLで許可されるスキーム。
// ベンダーからの通知を受けるエンドポイントのためhttpsのみ許可する。
var callbackSchemes = []string{"https"}

// blockedNetworks はコールバック先として拒否されるネットワーク範囲。
// パッケージ初期化時に1回だけパースする。
var blockedNetworks []net.IPNet

func init() {
	cidrs := []string{
		// プライベートIPアドレス (RFC 1918)
		"10.0.0.0/8",
		"172.16.0.0/12",
		"192.168.0.0/16",
		// ループバック (RFC 1122)
		"127.0.0.0/8",
		// リンクローカル (RFC 3927) - クラウドメタデータIP (169.254.169.254) を含む
		"169.254.0.0/16",
		// カレントネットワーク
		"0.0.0.0/8",
		// IPv6ループバック
		"::1/128",
		// IPv6リンクローカル
		"fe80::/10",
		// IPv6ユニークローカル
		"fc00::/7",
	}
	for _, cidr := range cidrs {
		_, network, err := net.ParseCIDR(cidr)
		if err != nil {
			panic(fmt.Sprintf("invalid CIDR in blockedNetworks: %s: %v", cidr, err))
		}
		blockedNetworks = append(blockedNetworks, *network)
	}
}

// urlGuard はURLGuardServiceの実装。
type urlGuard struct{}

// NewURLGuard はURLGuardServiceの新しいインスタンスを生成する。
func NewURLGuard() *urlGuard {
	return &urlGuard{}
}

// NewSafeClient はSSRF防止機能付きのHTTPクライアントを生成する。
// safeurlはnet.DialerのControlフックでDNS解決後のIPアドレスを検証するため、
// DNS再バインディング攻撃にも対応している。
func (g *urlGuard) NewSafeClient(timeout time.Duration) *http.Client {
	config := safeurl.GetConfigBuilder().
		SetTimeout(timeout).
		SetAllowedSchemes("http", "https").
		SetAllowedPorts(80, 443).
		Build()

	wrappedClient := safeurl.Client(config)
	return wrappedClient.Client
}

// ValidateCallbackURL はコールバックURLの安全性を事前に検証する。
// DNS解決を伴わない静的な検証のみを行う。ホストがIPアドレスリテラルの場合は
// ブロック対象ネットワークに含まれないことを確認する。
func (g *urlGuard) ValidateCallbackURL(rawURL string) error {
	if rawURL == "" {
		return fmt.Errorf("URLが空です")
	}

	parsed, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("URLのパースに失敗: %w", err)
	}

	scheme := strings.ToLower(parsed.Scheme)
	if !isCallbackScheme(scheme) {
		return fmt.Errorf("許可されていないスキーム: %s (許可: %v)", scheme, callbackSchemes)
	}

	host := parsed.Hostname()
	if host == "" {
		return fmt.Errorf("ホストが空です: %s", rawURL)
	}

	if ip := net.ParseIP(host); ip != nil {
		for _, network := range blockedNetworks {
			if network.Contains(ip) {
				return fmt.Errorf("ブロック対象のIPアドレスです: %s", host)
			}
		}
	}

	return nil
}

func isCallbackScheme(scheme string) bool {
	for _, s := range callbackSchemes {
		if s == scheme {
			return true
		}
	}
	return false
}

// compile-time interface check
var _ URLGuardService = (*urlGuard)(nil)
