// Package codeforces はCodeForcesの公開REST APIから統計を取得するアダプタを提供する。
package codeforces

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/hitoshi/profiletracker/internal/model"
	"github.com/hitoshi/profiletracker/internal/platform"
)

// DefaultAPIBase はCodeForces APIのベースURL。
const DefaultAPIBase = "https://codeforces.com/api"

// DefaultRank はランク未設定のユーザーに割り当てるランク。
const DefaultRank = "newbie"

const (
	statusOK  = "OK"
	verdictOK = "OK"
)

// envelope はCodeForces APIの共通レスポンス形式。
type envelope struct {
	Status  string          `json:"status"`
	Comment string          `json:"comment"`
	Result  json.RawMessage `json:"result"`
}

type userInfo struct {
	Handle    string   `json:"handle"`
	Rating    *float64 `json:"rating"`
	MaxRating *float64 `json:"maxRating"`
	Rank      string   `json:"rank"`
}

type submission struct {
	Verdict string  `json:"verdict"`
	Problem problem `json:"problem"`
}

type problem struct {
	ContestID      *int     `json:"contestId"`
	ProblemsetName string   `json:"problemsetName"`
	Index          string   `json:"index"`
	Tags           []string `json:"tags"`
}

// key は問題を一意に識別するキー（contestIdとindexの連結）を返す。
func (p problem) key() string {
	prefix := p.ProblemsetName
	if p.ContestID != nil {
		prefix = strconv.Itoa(*p.ContestID)
	}
	return prefix + p.Index
}

type ratingChange struct {
	ContestID int `json:"contestId"`
}

// Config はアダプタの設定。
type Config struct {
	APIBase string
	Timeout time.Duration
}

// Adapter はCodeForcesの統計取得アダプタ。
type Adapter struct {
	client    *resty.Client
	apiBase   string
	timeout   time.Duration
	sanitizer platform.TextSanitizer
	logger    *slog.Logger
}

// NewAdapter はAdapterを生成する。sanitizerがnilの場合はランクとタグをそのまま保存する。
func NewAdapter(client *resty.Client, cfg Config, sanitizer platform.TextSanitizer, logger *slog.Logger) *Adapter {
	if cfg.APIBase == "" {
		cfg.APIBase = DefaultAPIBase
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = platform.DefaultTimeout
	}
	return &Adapter{
		client:    client,
		apiBase:   strings.TrimRight(cfg.APIBase, "/"),
		timeout:   cfg.Timeout,
		sanitizer: platform.SanitizerOrDefault(sanitizer),
		logger:    logger,
	}
}

// Platform はmodel.PlatformCodeForcesを返す。
func (a *Adapter) Platform() model.Platform {
	return model.PlatformCodeForces
}

// Fetch はuser.info、user.status、user.ratingを順に呼び出して統計を組み立てる。
// user.infoとuser.statusの失敗はFetch全体の失敗となる。
// user.ratingはコンテスト参加数のためだけに使い、失敗しても参加数0として続行する。
func (a *Adapter) Fetch(ctx context.Context, userID, handle string) (*model.PlatformStats, error) {
	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	var users []userInfo
	if err := a.call(ctx, "user.info", map[string]string{"handles": handle}, handle, &users); err != nil {
		return nil, err
	}
	if len(users) == 0 {
		return nil, platform.NewNotFoundError(model.PlatformCodeForces, handle)
	}
	info := users[0]

	var submissions []submission
	if err := a.call(ctx, "user.status", map[string]string{"handle": handle}, handle, &submissions); err != nil {
		return nil, err
	}

	solved, tags := tallySolved(submissions)

	contests := 0
	var history []ratingChange
	if err := a.call(ctx, "user.rating", map[string]string{"handle": handle}, handle, &history); err != nil {
		a.logger.Warn("CodeForcesのレーティング履歴を取得できませんでした。コンテスト参加数を0とします",
			slog.String("handle", handle),
			slog.String("error", err.Error()),
		)
	} else {
		contests = len(history)
	}

	rank := a.sanitizer.SanitizeText(info.Rank)
	if rank == "" {
		rank = DefaultRank
	}

	cleanTags := make(map[string]int, len(tags))
	for tag, n := range tags {
		if clean := a.sanitizer.SanitizeText(tag); clean != "" {
			cleanTags[clean] += n
		}
	}

	stats := &model.PlatformStats{
		UserID:               userID,
		Platform:             model.PlatformCodeForces,
		TotalSolved:          solved,
		ContestRating:        info.Rating,
		HighestRating:        info.MaxRating,
		ContestsParticipated: contests,
		CodeForces: &model.CodeForcesStats{
			Rank:        rank,
			ProblemTags: cleanTags,
		},
	}

	a.logger.Info("CodeForcesの統計を取得しました",
		slog.String("handle", handle),
		slog.Int("total_solved", solved),
		slog.Int("contests_participated", contests),
		slog.String("rank", rank),
	)

	return stats, nil
}

// call はAPIメソッドを呼び出し、statusがOKの場合にresultをoutへデコードする。
// "not found" を含むFAILEDレスポンスはNotFound、それ以外の失敗はUpstreamErrorとする。
func (a *Adapter) call(ctx context.Context, method string, params map[string]string, handle string, out any) error {
	resp, err := a.client.R().
		SetContext(ctx).
		SetHeader("Accept", "application/json").
		SetQueryParams(params).
		Get(a.apiBase + "/" + method)
	if err != nil {
		return platform.ClassifyTransportError(ctx, model.PlatformCodeForces, method, err)
	}

	var env envelope
	decodeErr := json.Unmarshal(resp.Body(), &env)

	if decodeErr == nil && env.Status != statusOK && isNotFoundComment(env.Comment) {
		return platform.NewNotFoundError(model.PlatformCodeForces, handle)
	}

	if resp.StatusCode() != http.StatusOK {
		a.logger.Warn("CodeForces APIがエラーステータスを返しました",
			slog.String("method", method),
			slog.String("handle", handle),
			slog.Int("http_status", resp.StatusCode()),
		)
		return platform.NewUpstreamError(model.PlatformCodeForces, method, resp.StatusCode(), nil)
	}
	if decodeErr != nil {
		return platform.NewUpstreamError(model.PlatformCodeForces, method, resp.StatusCode(),
			fmt.Errorf("レスポンスJSONのパースに失敗: %w", decodeErr))
	}
	if env.Status != statusOK {
		return platform.NewUpstreamError(model.PlatformCodeForces, method, resp.StatusCode(),
			fmt.Errorf("api status %q: %s", env.Status, env.Comment))
	}

	if err := json.Unmarshal(env.Result, out); err != nil {
		return platform.NewUpstreamError(model.PlatformCodeForces, method, resp.StatusCode(),
			fmt.Errorf("resultのパースに失敗: %w", err))
	}
	return nil
}

func isNotFoundComment(comment string) bool {
	return strings.Contains(strings.ToLower(comment), "not found")
}

// tallySolved は提出一覧から解答済み問題数とタグ別の問題数を集計する。
// 問題はverdictがOKの提出が1件でもあれば解答済みとし、同じ問題への複数のOKは1回として数える。
// タグは解答済み問題ごとに1回ずつ加算する。
func tallySolved(submissions []submission) (int, map[string]int) {
	solved := make(map[string]struct{})
	tags := make(map[string]int)

	for _, s := range submissions {
		if s.Verdict != verdictOK {
			continue
		}
		key := s.Problem.key()
		if _, ok := solved[key]; ok {
			continue
		}
		solved[key] = struct{}{}

		seen := make(map[string]struct{}, len(s.Problem.Tags))
		for _, tag := range s.Problem.Tags {
			if _, dup := seen[tag]; dup {
				continue
			}
			seen[tag] = struct{}{}
			tags[tag]++
		}
	}

	return len(solved), tags
}

// compile-time interface check
var _ platform.Adapter = (*Adapter)(nil)
