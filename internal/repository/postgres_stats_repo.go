package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/profiletracker/internal/model"
)

// PostgresStatsRepo はプラットフォームごとの履歴テーブルに統計を追記するリポジトリ。
// leetcode_stats、codechef_stats、codeforces_stats の3テーブルを扱う。
type PostgresStatsRepo struct {
	db *sql.DB
}

// NewPostgresStatsRepo はPostgresStatsRepoを生成する。
func NewPostgresStatsRepo(db *sql.DB) *PostgresStatsRepo {
	return &PostgresStatsRepo{db: db}
}

// Append は統計レコードを検証し、プラットフォームに対応するテーブルへ1行INSERTする。
func (r *PostgresStatsRepo) Append(ctx context.Context, s *model.PlatformStats) error {
	if err := s.Validate(); err != nil {
		return fmt.Errorf("invalid stats record: %w", err)
	}
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	if s.RecordedAt.IsZero() {
		s.RecordedAt = time.Now().UTC()
	}

	var err error
	switch s.Platform {
	case model.PlatformLeetCode:
		lc := s.LeetCode
		_, err = r.db.ExecContext(ctx,
			`INSERT INTO leetcode_stats
			   (id, user_id, total_solved, easy_solved, medium_solved, hard_solved,
			    contest_rating, contests_participated, recorded_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
			s.ID, s.UserID, s.TotalSolved, lc.EasySolved, lc.MediumSolved, lc.HardSolved,
			nullFloat(s.ContestRating), s.ContestsParticipated, s.RecordedAt,
		)

	case model.PlatformCodeChef:
		var categories []byte
		categories, err = encodeCounts(s.CodeChef.ProblemCategories)
		if err != nil {
			return fmt.Errorf("failed to encode problem categories: %w", err)
		}
		_, err = r.db.ExecContext(ctx,
			`INSERT INTO codechef_stats
			   (id, user_id, total_solved, contest_rating, highest_rating,
			    contests_participated, problem_categories, recorded_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
			s.ID, s.UserID, s.TotalSolved, nullFloat(s.ContestRating), nullFloat(s.HighestRating),
			s.ContestsParticipated, string(categories), s.RecordedAt,
		)

	case model.PlatformCodeForces:
		var tags []byte
		tags, err = encodeCounts(s.CodeForces.ProblemTags)
		if err != nil {
			return fmt.Errorf("failed to encode problem tags: %w", err)
		}
		_, err = r.db.ExecContext(ctx,
			`INSERT INTO codeforces_stats
			   (id, user_id, total_solved, contest_rating, highest_rating, rank,
			    contests_participated, problem_tags, recorded_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
			s.ID, s.UserID, s.TotalSolved, nullFloat(s.ContestRating), nullFloat(s.HighestRating),
			s.CodeForces.Rank, s.ContestsParticipated, string(tags), s.RecordedAt,
		)
	}
	if err != nil {
		return fmt.Errorf("failed to insert %s stats: %w", s.Platform, err)
	}
	return nil
}

// LatestByUserAndPlatform は recorded_at が最も新しいレコードを返す。
func (r *PostgresStatsRepo) LatestByUserAndPlatform(ctx context.Context, userID string, p model.Platform) (*model.PlatformStats, error) {
	if _, err := uuid.Parse(userID); err != nil {
		return nil, nil
	}

	s := &model.PlatformStats{UserID: userID, Platform: p}
	var rating, highest sql.NullFloat64
	var err error

	switch p {
	case model.PlatformLeetCode:
		lc := &model.LeetCodeStats{}
		err = r.db.QueryRowContext(ctx,
			`SELECT id, total_solved, easy_solved, medium_solved, hard_solved,
			        contest_rating, contests_participated, recorded_at
			 FROM leetcode_stats WHERE user_id = $1
			 ORDER BY recorded_at DESC LIMIT 1`,
			userID,
		).Scan(&s.ID, &s.TotalSolved, &lc.EasySolved, &lc.MediumSolved, &lc.HardSolved,
			&rating, &s.ContestsParticipated, &s.RecordedAt)
		s.LeetCode = lc

	case model.PlatformCodeChef:
		var categories []byte
		err = r.db.QueryRowContext(ctx,
			`SELECT id, total_solved, contest_rating, highest_rating,
			        contests_participated, problem_categories, recorded_at
			 FROM codechef_stats WHERE user_id = $1
			 ORDER BY recorded_at DESC LIMIT 1`,
			userID,
		).Scan(&s.ID, &s.TotalSolved, &rating, &highest, &s.ContestsParticipated, &categories, &s.RecordedAt)
		if err == nil {
			var counts map[string]int
			counts, err = decodeCounts(categories)
			s.CodeChef = &model.CodeChefStats{ProblemCategories: counts}
		}

	case model.PlatformCodeForces:
		var tags []byte
		cf := &model.CodeForcesStats{}
		err = r.db.QueryRowContext(ctx,
			`SELECT id, total_solved, contest_rating, highest_rating, rank,
			        contests_participated, problem_tags, recorded_at
			 FROM codeforces_stats WHERE user_id = $1
			 ORDER BY recorded_at DESC LIMIT 1`,
			userID,
		).Scan(&s.ID, &s.TotalSolved, &rating, &highest, &cf.Rank, &s.ContestsParticipated, &tags, &s.RecordedAt)
		if err == nil {
			cf.ProblemTags, err = decodeCounts(tags)
			s.CodeForces = cf
		}

	default:
		return nil, fmt.Errorf("unknown platform: %q", p)
	}

	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find latest %s stats: %w", p, err)
	}

	s.ContestRating = floatPtr(rating)
	s.HighestRating = floatPtr(highest)
	return s, nil
}

// encodeCounts は件数マップをJSONBカラム用にエンコードする。nilは空オブジェクトとして保存する。
// lib/pqは[]byteをbyteaとして送るため、呼び出し側は文字列に変換して渡す。
func encodeCounts(m map[string]int) ([]byte, error) {
	if m == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(m)
}

// decodeCounts はJSONBカラムの値を件数マップに戻す。常に非nilのマップを返す。
func decodeCounts(raw []byte) (map[string]int, error) {
	m := map[string]int{}
	if len(raw) == 0 {
		return m, nil
	}
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("failed to decode counts: %w", err)
	}
	if m == nil {
		m = map[string]int{}
	}
	return m, nil
}

func nullFloat(f *float64) sql.NullFloat64 {
	if f == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *f, Valid: true}
}

func floatPtr(nf sql.NullFloat64) *float64 {
	if !nf.Valid {
		return nil
	}
	v := nf.Float64
	return &v
}

// compile-time interface check
var _ StatsRepository = (*PostgresStatsRepo)(nil)
