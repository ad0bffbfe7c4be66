// Package codechef はCodeChefのプロフィールページ（HTML）から統計を抽出するアダプタを提供する。
package codechef

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/go-resty/resty/v2"
	"golang.org/x/net/html"

	"github.com/hitoshi/profiletracker/internal/model"
	"github.com/hitoshi/profiletracker/internal/platform"
)

// DefaultBaseURL はCodeChefのベースURL。
const DefaultBaseURL = "https://www.codechef.com"

const (
	selectorRatingHeader = "div.rating-header"
	selectorRatingNumber = "div.rating-number"
	selectorRatingStar   = "div.rating-star"
	selectorProblems     = "section.rating-data-section.problems-solved"
	selectorContests     = "section.rating-data-section.contests-attended"

	fullySolvedHeading = "Fully Solved"
	markerChallenge    = "(Challenge)"
	markerContest      = "(Contest)"
)

// Config はアダプタの設定。
type Config struct {
	BaseURL string
	Timeout time.Duration
}

// Adapter はCodeChefの統計取得アダプタ。
type Adapter struct {
	client  *resty.Client
	baseURL string
	timeout time.Duration
	logger  *slog.Logger
}

// NewAdapter はAdapterを生成する。
func NewAdapter(client *resty.Client, cfg Config, logger *slog.Logger) *Adapter {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = platform.DefaultTimeout
	}
	return &Adapter{
		client:  client,
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		timeout: cfg.Timeout,
		logger:  logger,
	}
}

// Platform はmodel.PlatformCodeChefを返す。
func (a *Adapter) Platform() model.Platform {
	return model.PlatformCodeChef
}

// Fetch はプロフィールページを取得して統計を抽出する。
// ページ内のセクションが欠けている場合は該当フィールドを0または空として扱い、失敗にはしない。
func (a *Adapter) Fetch(ctx context.Context, userID, handle string) (*model.PlatformStats, error) {
	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	pageURL := a.baseURL + "/users/" + url.PathEscape(handle)

	resp, err := a.client.R().
		SetContext(ctx).
		SetHeader("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8").
		Get(pageURL)
	if err != nil {
		return nil, platform.ClassifyTransportError(ctx, model.PlatformCodeChef, "profile", err)
	}

	switch resp.StatusCode() {
	case http.StatusOK:
	case http.StatusNotFound:
		return nil, platform.NewNotFoundError(model.PlatformCodeChef, handle)
	default:
		a.logger.Warn("CodeChefがエラーステータスを返しました",
			slog.String("handle", handle),
			slog.Int("http_status", resp.StatusCode()),
		)
		return nil, platform.NewUpstreamError(model.PlatformCodeChef, "profile", resp.StatusCode(), nil)
	}

	root, err := html.Parse(bytes.NewReader(resp.Body()))
	if err != nil {
		return nil, platform.NewUpstreamError(model.PlatformCodeChef, "profile", resp.StatusCode(),
			fmt.Errorf("HTMLのパースに失敗: %w", err))
	}

	stats := ParseProfile(goquery.NewDocumentFromNode(root))
	stats.UserID = userID

	a.logger.Info("CodeChefの統計を取得しました",
		slog.String("handle", handle),
		slog.Int("total_solved", stats.TotalSolved),
		slog.Int("contests_participated", stats.ContestsParticipated),
	)

	return stats, nil
}

// ParseProfile はプロフィールページのドキュメントから統計を抽出する。
// UserIDは設定しない。
func ParseProfile(doc *goquery.Document) *model.PlatformStats {
	stats := &model.PlatformStats{
		Platform: model.PlatformCodeChef,
		CodeChef: &model.CodeChefStats{ProblemCategories: map[string]int{}},
	}

	header := doc.Find(selectorRatingHeader).First()
	stats.ContestRating = parseRating(header.Find(selectorRatingNumber).First().Text())
	stats.HighestRating = parseDigits(header.Find(selectorRatingStar).First().Text())

	for _, entry := range fullySolvedEntries(doc.Find(selectorProblems).First()) {
		stats.CodeChef.ProblemCategories[categorize(entry)]++
		stats.TotalSolved++
	}

	stats.ContestsParticipated = doc.Find(selectorContests).First().Find("p").Length()

	return stats
}

// fullySolvedEntries は "Fully Solved" 見出しの直後にあるarticle内の各pのテキストを返す。
func fullySolvedEntries(section *goquery.Selection) []string {
	heading := section.Find("h5").FilterFunction(func(_ int, s *goquery.Selection) bool {
		return strings.HasPrefix(strings.TrimSpace(s.Text()), fullySolvedHeading)
	}).First()
	if heading.Length() == 0 {
		return nil
	}

	article := heading.NextAllFiltered("article").First()
	if article.Length() == 0 {
		article = heading.Parent().NextAllFiltered("article").First()
	}

	var entries []string
	article.Find("p").Each(func(_ int, p *goquery.Selection) {
		entries = append(entries, strings.TrimSpace(p.Text()))
	})
	return entries
}

// categorize はエントリのテキストからカテゴリを判定する。マーカーがなければpractice。
func categorize(entry string) string {
	switch {
	case strings.Contains(entry, markerChallenge):
		return model.CategoryChallenge
	case strings.Contains(entry, markerContest):
		return model.CategoryContest
	default:
		return model.CategoryPractice
	}
}

func parseRating(text string) *float64 {
	v, err := strconv.ParseFloat(strings.TrimSpace(text), 64)
	if err != nil {
		return nil
	}
	return &v
}

// parseDigits は数字以外を取り除いてから数値に変換する。数字がなければnil。
func parseDigits(text string) *float64 {
	digits := strings.Map(func(r rune) rune {
		if r >= '0' && r <= '9' {
			return r
		}
		return -1
	}, text)
	if digits == "" {
		return nil
	}
	return parseRating(digits)
}

// compile-time interface check
var _ platform.Adapter = (*Adapter)(nil)
