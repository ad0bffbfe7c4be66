package platform

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/hitoshi/profiletracker/internal/model"
)

// HTTPClientFactory は上流向けのHTTPクライアントを生成するインターフェース。
// 本番ではsecurity.UpstreamGuardを渡し、テストではhttptestのクライアントを返す実装を渡す。
type HTTPClientFactory interface {
	NewSafeClient(timeout time.Duration, maxResponseSize int64) *http.Client
}

// StatusObserver は上流のHTTPステータスを観測するインターフェース。
// metrics.Collector が実装する。
type StatusObserver interface {
	RecordUpstreamStatus(platform string, statusCode int)
}

// ClientConfig は上流向けクライアントの設定。
type ClientConfig struct {
	Platform    model.Platform
	Timeout     time.Duration
	UserAgent   string
	MaxBodySize int64
	Observer    StatusObserver // nilの場合は観測しない
}

// withDefaults は未設定の値にデフォルトを補う。
func (c ClientConfig) withDefaults() ClientConfig {
	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}
	if c.UserAgent == "" {
		c.UserAgent = DefaultUserAgent
	}
	if c.MaxBodySize <= 0 {
		c.MaxBodySize = 5 << 20
	}
	return c
}

// NewClient はfactoryが生成するHTTPクライアントをrestyで包んだ上流向けクライアントを返す。
// 全リクエストにブラウザのUser-Agentを設定し、MaxBodySizeを超えるレスポンスはErrResponseTooLargeで失敗させる。
func NewClient(factory HTTPClientFactory, cfg ClientConfig) *resty.Client {
	cfg = cfg.withDefaults()

	httpClient := factory.NewSafeClient(cfg.Timeout, cfg.MaxBodySize)
	base := httpClient.Transport
	if base == nil {
		base = http.DefaultTransport
	}
	httpClient.Transport = &limitedTransport{base: base, maxBodySize: cfg.MaxBodySize}

	client := resty.NewWithClient(httpClient)
	client.SetTimeout(cfg.Timeout)
	client.SetHeader("User-Agent", cfg.UserAgent)
	client.SetHeader("Accept-Language", "en-US,en;q=0.5")

	if cfg.Observer != nil {
		observer := cfg.Observer
		platformName := string(cfg.Platform)
		client.OnAfterResponse(func(_ *resty.Client, resp *resty.Response) error {
			observer.RecordUpstreamStatus(platformName, resp.StatusCode())
			return nil
		})
	}

	return client
}

// PlainClientFactory はSSRF検証を行わない通常のHTTPクライアントを生成する。
// 上流をローカルのスタブに向ける開発環境とテストで使用する。
type PlainClientFactory struct{}

// NewSafeClient はタイムアウトのみを設定したHTTPクライアントを返す。
func (PlainClientFactory) NewSafeClient(timeout time.Duration, _ int64) *http.Client {
	return &http.Client{Timeout: timeout}
}

// ErrResponseTooLarge はレスポンスボディが上限サイズを超えたことを表す。
var ErrResponseTooLarge = errors.New("response body exceeds size limit")

// limitedTransport はレスポンスボディの読み取り量を制限するRoundTripper。
type limitedTransport struct {
	base        http.RoundTripper
	maxBodySize int64
}

// RoundTrip はベースのRoundTripperに委譲し、ボディを上限付きのReaderで包む。
func (t *limitedTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	resp, err := t.base.RoundTrip(req)
	if err != nil {
		return nil, err
	}
	resp.Body = &limitedBody{
		r:      io.LimitReader(resp.Body, t.maxBodySize+1),
		Closer: resp.Body,
		max:    t.maxBodySize,
	}
	return resp, nil
}

// limitedBody は上限+1バイトまで読み、上限を超えた時点でErrResponseTooLargeを返す。
type limitedBody struct {
	r io.Reader
	io.Closer
	max  int64
	read int64
}

func (b *limitedBody) Read(p []byte) (int, error) {
	n, err := b.r.Read(p)
	b.read += int64(n)
	if b.read > b.max {
		return n, fmt.Errorf("%w (%d bytes)", ErrResponseTooLarge, b.max)
	}
	return n, err
}
