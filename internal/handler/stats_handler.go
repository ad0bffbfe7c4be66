package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/profiletracker/internal/ingest"
)

// UserStatsReader は最新統計を読み取るサービスのインターフェース。
type UserStatsReader interface {
	GetUserStats(ctx context.Context, userID string) (*ingest.UserStats, error)
}

// StatsHandler は統計参照APIのハンドラ。
type StatsHandler struct {
	reader UserStatsReader
	logger *slog.Logger
}

// NewStatsHandler はStatsHandlerの新しいインスタンスを生成する。
func NewStatsHandler(reader UserStatsReader, logger *slog.Logger) *StatsHandler {
	return &StatsHandler{reader: reader, logger: logger}
}

type leetCodeStatsResponse struct {
	TotalSolved          int      `json:"total_solved"`
	EasySolved           int      `json:"easy_solved"`
	MediumSolved         int      `json:"medium_solved"`
	HardSolved           int      `json:"hard_solved"`
	ContestRating        *float64 `json:"contest_rating"`
	ContestsParticipated int      `json:"contests_participated"`
}

type codeChefStatsResponse struct {
	TotalSolved          int            `json:"total_solved"`
	Rating               *float64       `json:"rating"`
	HighestRating        *float64       `json:"highest_rating"`
	ContestsParticipated int            `json:"contests_participated"`
	Categories           map[string]int `json:"categories"`
}

type codeForcesStatsResponse struct {
	TotalSolved          int            `json:"total_solved"`
	Rating               *float64       `json:"rating"`
	Rank                 *string        `json:"rank"`
	ContestsParticipated int            `json:"contests_participated"`
	ProblemTags          map[string]int `json:"problem_tags"`
}

type platformStatsResponse struct {
	LeetCode   leetCodeStatsResponse   `json:"leetcode"`
	CodeChef   codeChefStatsResponse   `json:"codechef"`
	CodeForces codeForcesStatsResponse `json:"codeforces"`
}

type userStatsResponse struct {
	TotalProblemsSolved int                   `json:"total_problems_solved"`
	PlatformStats       platformStatsResponse `json:"platform_stats"`
}

// GetUserStats はユーザーのプラットフォームごとの最新統計を返す。
// GET /user/{user_id}/stats
func (h *StatsHandler) GetUserStats(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "user_id")

	stats, err := h.reader.GetUserStats(r.Context(), userID)
	if err != nil {
		handleServiceError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, toUserStatsResponse(stats))
}

// toUserStatsResponse は記録のないプラットフォームを0/nullで埋めたレスポンスへ変換する。
func toUserStatsResponse(s *ingest.UserStats) userStatsResponse {
	resp := userStatsResponse{
		TotalProblemsSolved: s.TotalSolved,
		PlatformStats: platformStatsResponse{
			CodeChef:   codeChefStatsResponse{Categories: map[string]int{}},
			CodeForces: codeForcesStatsResponse{ProblemTags: map[string]int{}},
		},
	}

	if lc := s.LeetCode; lc != nil {
		out := &resp.PlatformStats.LeetCode
		out.TotalSolved = lc.TotalSolved
		out.ContestRating = lc.ContestRating
		out.ContestsParticipated = lc.ContestsParticipated
		if lc.LeetCode != nil {
			out.EasySolved = lc.LeetCode.EasySolved
			out.MediumSolved = lc.LeetCode.MediumSolved
			out.HardSolved = lc.LeetCode.HardSolved
		}
	}

	if cc := s.CodeChef; cc != nil {
		out := &resp.PlatformStats.CodeChef
		out.TotalSolved = cc.TotalSolved
		out.Rating = cc.ContestRating
		out.HighestRating = cc.HighestRating
		out.ContestsParticipated = cc.ContestsParticipated
		if cc.CodeChef != nil && cc.CodeChef.ProblemCategories != nil {
			out.Categories = cc.CodeChef.ProblemCategories
		}
	}

	if cf := s.CodeForces; cf != nil {
		out := &resp.PlatformStats.CodeForces
		out.TotalSolved = cf.TotalSolved
		out.Rating = cf.ContestRating
		out.ContestsParticipated = cf.ContestsParticipated
		if cf.CodeForces != nil {
			if cf.CodeForces.Rank != "" {
				rank := cf.CodeForces.Rank
				out.Rank = &rank
			}
			if cf.CodeForces.ProblemTags != nil {
				out.ProblemTags = cf.CodeForces.ProblemTags
			}
		}
	}

	return resp
}
