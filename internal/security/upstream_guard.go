// Package security は上流サイトへの接続と上流由来テキストの安全性を担う。
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

// UpstreamGuard は上流向けHTTPクライアントの生成と上流URLの検証を行う。
// 上流のベースURLは環境変数で差し替えられるため、内部ネットワークへ向けられないよう
// 起動時のValidateUpstreamと接続時のDialer検証の両方で防ぐ。
type UpstreamGuard struct {
	allowedPorts []int
}

// NewUpstreamGuard はUpstreamGuardを生成する。
func NewUpstreamGuard() *UpstreamGuard {
	return &UpstreamGuard{allowedPorts: []int{80, 443}}
}

var upstreamSchemes = []string{"http", "https"}

// blockedNetworks はValidateUpstreamで拒否するアドレス範囲。
var blockedNetworks = mustParseCIDRs(
	"10.0.0.0/8",
	"172.16.0.0/12",
	"192.168.0.0/16",
	"127.0.0.0/8",
	"169.254.0.0/16", // クラウドメタデータ (169.254.169.254) を含む
	"0.0.0.0/8",
	"::1/128",
	"fe80::/10",
	"fc00::/7",
)

func mustParseCIDRs(cidrs ...string) []*net.IPNet {
	networks := make([]*net.IPNet, 0, len(cidrs))
	for _, cidr := range cidrs {
		_, network, err := net.ParseCIDR(cidr)
		if err != nil {
			panic(fmt.Sprintf("invalid CIDR %s: %v", cidr, err))
		}
		networks = append(networks, network)
	}
	return networks
}

// NewSafeClient はsafeurlで接続先IPを検証するHTTPクライアントを返す。
// プライベート、ループバック、リンクローカルの各アドレスへの接続はDNS解決後に拒否される。
// レスポンスサイズの制限はplatform.NewClient側で行う。
func (g *UpstreamGuard) NewSafeClient(timeout time.Duration, _ int64) *http.Client {
	cfg := safeurl.GetConfigBuilder().
		SetTimeout(timeout).
		SetAllowedSchemes(upstreamSchemes...).
		SetAllowedPorts(g.allowedPorts...).
		Build()

	return safeurl.Client(cfg).Client
}

// ValidateUpstream は設定された上流URLを起動時に静的に検証する。
// DNS解決は行わない。
func (g *UpstreamGuard) ValidateUpstream(rawURL string) error {
	if rawURL == "" {
		return fmt.Errorf("empty upstream URL")
	}

	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("invalid upstream URL: %w", err)
	}

	scheme := strings.ToLower(u.Scheme)
	if scheme != "http" && scheme != "https" {
		return fmt.Errorf("disallowed scheme %q in %s", u.Scheme, rawURL)
	}

	host := u.Hostname()
	if host == "" {
		return fmt.Errorf("empty host in upstream URL: %s", rawURL)
	}
	if strings.EqualFold(host, "localhost") {
		return fmt.Errorf("blocked host: %s", host)
	}

	if ip := net.ParseIP(host); ip != nil {
		for _, network := range blockedNetworks {
			if network.Contains(ip) {
				return fmt.Errorf("blocked IP address: %s", ip)
			}
		}
	}

	return nil
}
