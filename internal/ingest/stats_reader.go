package ingest

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/hitoshi/profiletracker/internal/model"
	"github.com/hitoshi/profiletracker/internal/repository"
)

// UserStats はユーザーのプラットフォームごとの最新統計。
// 記録がないプラットフォームはnilとなる。
type UserStats struct {
	UserID      string
	TotalSolved int
	LeetCode    *model.PlatformStats
	CodeChef    *model.PlatformStats
	CodeForces  *model.PlatformStats
}

// For は指定プラットフォームの最新統計を返す。
func (s *UserStats) For(p model.Platform) *model.PlatformStats {
	switch p {
	case model.PlatformLeetCode:
		return s.LeetCode
	case model.PlatformCodeChef:
		return s.CodeChef
	case model.PlatformCodeForces:
		return s.CodeForces
	}
	return nil
}

// StatsReader は最新統計の読み取りサービス層。
type StatsReader struct {
	profileRepo repository.ProfileRepository
	statsRepo   repository.StatsRepository
}

// NewStatsReader はStatsReaderの新しいインスタンスを生成する。
func NewStatsReader(profileRepo repository.ProfileRepository, statsRepo repository.StatsRepository) *StatsReader {
	return &StatsReader{profileRepo: profileRepo, statsRepo: statsRepo}
}

// GetUserStats はプラットフォームごとの最新レコードと解答数の合計を返す。
// userIDがUUIDでない場合は INVALID_USER_ID、プロフィールがない場合は PROFILE_NOT_FOUND のAPIErrorを返す。
func (r *StatsReader) GetUserStats(ctx context.Context, userID string) (*UserStats, error) {
	if _, err := uuid.Parse(userID); err != nil {
		return nil, model.NewInvalidUserIDError(userID)
	}

	profile, err := r.profileRepo.FindByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("プロフィールの取得に失敗しました: %w", err)
	}
	if profile == nil {
		return nil, model.NewProfileNotFoundError(userID)
	}

	out := &UserStats{UserID: profile.ID}
	for _, p := range model.Platforms {
		latest, err := r.statsRepo.LatestByUserAndPlatform(ctx, profile.ID, p)
		if err != nil {
			return nil, fmt.Errorf("%sの最新統計の取得に失敗しました: %w", p, err)
		}
		if latest == nil {
			continue
		}
		out.TotalSolved += latest.TotalSolved
		switch p {
		case model.PlatformLeetCode:
			out.LeetCode = latest
		case model.PlatformCodeChef:
			out.CodeChef = latest
		case model.PlatformCodeForces:
			out.CodeForces = latest
		}
	}

	return out, nil
}
