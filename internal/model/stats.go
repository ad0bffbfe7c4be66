package model

import (
	"fmt"
	"time"
)

// CodeChefの問題カテゴリ。
const (
	CategoryPractice  = "practice"
	CategoryChallenge = "challenge"
	CategoryContest   = "contest"
)

// PlatformStats はプラットフォーム共通に正規化された統計スナップショット。
// 一度書き込まれたレコードは変更されず、取り込みのたびに新しいレコードが追記される。
// Platformに対応する拡張フィールドを1つだけ持つ。
type PlatformStats struct {
	ID                   string
	UserID               string
	Platform             Platform
	TotalSolved          int
	ContestRating        *float64
	HighestRating        *float64
	ContestsParticipated int
	RecordedAt           time.Time

	LeetCode   *LeetCodeStats
	CodeChef   *CodeChefStats
	CodeForces *CodeForcesStats
}

// LeetCodeStats はLeetCode固有の難易度別解答数。
type LeetCodeStats struct {
	EasySolved   int
	MediumSolved int
	HardSolved   int
}

// CodeChefStats はCodeChef固有のカテゴリ別解答数。
// キーは practice / challenge / contest のいずれか。
type CodeChefStats struct {
	ProblemCategories map[string]int
}

// CodeForcesStats はCodeForces固有のランクとタグ別解答数。
type CodeForcesStats struct {
	Rank        string
	ProblemTags map[string]int
}

// NewLeetCodeStats は難易度別の解答数からLeetCodeの統計を生成する。
// TotalSolvedは常に3つの合計となる。コンテスト情報は取得できないためnull/0とする。
func NewLeetCodeStats(userID string, easy, medium, hard int) *PlatformStats {
	return &PlatformStats{
		UserID:               userID,
		Platform:             PlatformLeetCode,
		TotalSolved:          easy + medium + hard,
		ContestRating:        nil,
		ContestsParticipated: 0,
		LeetCode: &LeetCodeStats{
			EasySolved:   easy,
			MediumSolved: medium,
			HardSolved:   hard,
		},
	}
}

// Validate はレコードの不変条件を検証する。
func (s *PlatformStats) Validate() error {
	if !s.Platform.Valid() {
		return fmt.Errorf("unknown platform: %q", s.Platform)
	}
	if s.UserID == "" {
		return fmt.Errorf("empty user id")
	}
	if s.TotalSolved < 0 || s.ContestsParticipated < 0 {
		return fmt.Errorf("negative counter: total_solved=%d contests_participated=%d",
			s.TotalSolved, s.ContestsParticipated)
	}

	switch s.Platform {
	case PlatformLeetCode:
		if s.LeetCode == nil || s.CodeChef != nil || s.CodeForces != nil {
			return fmt.Errorf("leetcode record must carry only leetcode fields")
		}
		lc := s.LeetCode
		if lc.EasySolved < 0 || lc.MediumSolved < 0 || lc.HardSolved < 0 {
			return fmt.Errorf("negative difficulty counter")
		}
		if sum := lc.EasySolved + lc.MediumSolved + lc.HardSolved; sum != s.TotalSolved {
			return fmt.Errorf("total_solved %d does not match difficulty sum %d", s.TotalSolved, sum)
		}
	case PlatformCodeChef:
		if s.CodeChef == nil || s.LeetCode != nil || s.CodeForces != nil {
			return fmt.Errorf("codechef record must carry only codechef fields")
		}
		for category, n := range s.CodeChef.ProblemCategories {
			switch category {
			case CategoryPractice, CategoryChallenge, CategoryContest:
			default:
				return fmt.Errorf("unknown codechef category: %q", category)
			}
			if n < 0 {
				return fmt.Errorf("negative count for category %q", category)
			}
		}
	case PlatformCodeForces:
		if s.CodeForces == nil || s.LeetCode != nil || s.CodeChef != nil {
			return fmt.Errorf("codeforces record must carry only codeforces fields")
		}
	}

	return nil
}

// IngestStatus は取り込みバッチ全体の結果を表す。
type IngestStatus string

const (
	// IngestStatusSuccess は全プラットフォームの取得と保存が完了したことを表す。
	IngestStatusSuccess IngestStatus = "success"
	// IngestStatusPartial は一部のプラットフォームが失敗またはタイムアウトしたことを表す。
	IngestStatusPartial IngestStatus = "partial"
)
