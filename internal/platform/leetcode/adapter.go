// Package leetcode はLeetCodeのGraphQL APIから解答数を取得するアダプタを提供する。
package leetcode

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/hitoshi/profiletracker/internal/model"
	"github.com/hitoshi/profiletracker/internal/platform"
)

// DefaultEndpoint はLeetCodeのGraphQLエンドポイント。
const DefaultEndpoint = "https://leetcode.com/graphql"

// profileQuery は難易度別のAC数を取得する固定のGraphQLドキュメント。
const profileQuery = `
query getUserProfile($username: String!) {
    matchedUser(username: $username) {
        username
        submitStats: submitStatsGlobal {
            acSubmissionNum {
                difficulty
                count
            }
        }
    }
}`

// graphqlRequest はGraphQLリクエストボディ。
type graphqlRequest struct {
	Query     string            `json:"query"`
	Variables map[string]string `json:"variables"`
}

// graphqlResponse はGraphQLレスポンスのうち参照する部分のみを表す。
// errorsは形を問わず存在だけを判定するためRawMessageで受ける。
type graphqlResponse struct {
	Errors json.RawMessage `json:"errors"`
	Data   *struct {
		MatchedUser *struct {
			Username    string `json:"username"`
			SubmitStats struct {
				AcSubmissionNum []struct {
					Difficulty string `json:"difficulty"`
					Count      int    `json:"count"`
				} `json:"acSubmissionNum"`
			} `json:"submitStats"`
		} `json:"matchedUser"`
	} `json:"data"`
}

// Config はアダプタの設定。
type Config struct {
	Endpoint string
	Timeout  time.Duration
}

// Adapter はLeetCodeの統計取得アダプタ。
type Adapter struct {
	client   *resty.Client
	endpoint string
	timeout  time.Duration
	logger   *slog.Logger
}

// NewAdapter はAdapterを生成する。Endpointが空の場合はDefaultEndpointを使用する。
func NewAdapter(client *resty.Client, cfg Config, logger *slog.Logger) *Adapter {
	if cfg.Endpoint == "" {
		cfg.Endpoint = DefaultEndpoint
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = platform.DefaultTimeout
	}
	return &Adapter{
		client:   client,
		endpoint: cfg.Endpoint,
		timeout:  cfg.Timeout,
		logger:   logger,
	}
}

// Platform はmodel.PlatformLeetCodeを返す。
func (a *Adapter) Platform() model.Platform {
	return model.PlatformLeetCode
}

// Fetch はGraphQLクエリを1回発行し、難易度別のAC数を正規化する。
// Easy/Medium/Hard以外の難易度ラベル（"All"など）は無視する。
func (a *Adapter) Fetch(ctx context.Context, userID, handle string) (*model.PlatformStats, error) {
	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	start := time.Now()

	resp, err := a.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetHeader("Referer", "https://leetcode.com/u/"+handle+"/").
		SetBody(graphqlRequest{
			Query:     profileQuery,
			Variables: map[string]string{"username": handle},
		}).
		Post(a.endpoint)
	if err != nil {
		return nil, platform.ClassifyTransportError(ctx, model.PlatformLeetCode, "graphql", err)
	}

	if resp.StatusCode() != http.StatusOK {
		a.logger.Warn("LeetCode APIがエラーステータスを返しました",
			slog.String("handle", handle),
			slog.Int("http_status", resp.StatusCode()),
		)
		return nil, platform.NewUpstreamError(model.PlatformLeetCode, "graphql", resp.StatusCode(), nil)
	}

	var body graphqlResponse
	if err := json.Unmarshal(resp.Body(), &body); err != nil {
		return nil, platform.NewUpstreamError(model.PlatformLeetCode, "graphql", resp.StatusCode(),
			fmt.Errorf("レスポンスJSONのパースに失敗: %w", err))
	}

	if hasGraphQLErrors(body.Errors) {
		a.logger.Warn("LeetCode APIがGraphQLエラーを返しました",
			slog.String("handle", handle),
			slog.String("errors", string(body.Errors)),
		)
		return nil, platform.NewUpstreamError(model.PlatformLeetCode, "graphql", resp.StatusCode(),
			fmt.Errorf("graphql errors: %s", body.Errors))
	}

	if body.Data == nil || body.Data.MatchedUser == nil {
		return nil, platform.NewNotFoundError(model.PlatformLeetCode, handle)
	}

	var easy, medium, hard int
	for _, n := range body.Data.MatchedUser.SubmitStats.AcSubmissionNum {
		switch n.Difficulty {
		case "Easy":
			easy = n.Count
		case "Medium":
			medium = n.Count
		case "Hard":
			hard = n.Count
		}
	}

	stats := model.NewLeetCodeStats(userID, easy, medium, hard)

	a.logger.Info("LeetCodeの統計を取得しました",
		slog.String("handle", handle),
		slog.Int("total_solved", stats.TotalSolved),
		slog.Int("easy", easy),
		slog.Int("medium", medium),
		slog.Int("hard", hard),
		slog.Float64("duration_ms", float64(time.Since(start).Milliseconds())),
	)

	return stats, nil
}

// hasGraphQLErrors はerrorsフィールドが空でない値を持つかを判定する。
func hasGraphQLErrors(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return false
	}
	switch string(trimmed) {
	case "null", "[]":
		return false
	}
	return true
}

// compile-time interface check
var _ platform.Adapter = (*Adapter)(nil)
