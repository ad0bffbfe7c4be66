package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/profiletracker/internal/model"
)

const profileColumns = `id, leetcode_url, codechef_url, codeforces_url, created_at, updated_at`

// profileURLColumns はURL照合の順序。
var profileURLColumns = []string{"leetcode_url", "codechef_url", "codeforces_url"}

// PostgresProfileRepo はPostgreSQLを使用したプロフィールリポジトリ。
type PostgresProfileRepo struct {
	db *sql.DB
}

// NewPostgresProfileRepo はPostgresProfileRepoを生成する。
func NewPostgresProfileRepo(db *sql.DB) *PostgresProfileRepo {
	return &PostgresProfileRepo{db: db}
}

// FindByAnyURL は指定されたURLを固定順に照合し、最初に一致したプロフィールを返す。
func (r *PostgresProfileRepo) FindByAnyURL(ctx context.Context, leetcodeURL, codechefURL, codeforcesURL string) (*model.UserProfile, error) {
	urls := []string{leetcodeURL, codechefURL, codeforcesURL}

	for i, column := range profileURLColumns {
		if urls[i] == "" {
			continue
		}
		row := r.db.QueryRowContext(ctx,
			`SELECT `+profileColumns+` FROM user_profiles WHERE `+column+` = $1 ORDER BY created_at LIMIT 1`,
			urls[i],
		)
		p, err := scanProfile(row)
		if err != nil {
			return nil, fmt.Errorf("failed to find profile by %s: %w", column, err)
		}
		if p != nil {
			return p, nil
		}
	}
	return nil, nil
}

// FindByID は指定IDのプロフィールを取得する。UUIDとして不正なIDはnilを返す。
func (r *PostgresProfileRepo) FindByID(ctx context.Context, id string) (*model.UserProfile, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, nil
	}

	row := r.db.QueryRowContext(ctx,
		`SELECT `+profileColumns+` FROM user_profiles WHERE id = $1`,
		id,
	)
	p, err := scanProfile(row)
	if err != nil {
		return nil, fmt.Errorf("failed to find profile by ID: %w", err)
	}
	return p, nil
}

// Create はプロフィールを作成する。
func (r *PostgresProfileRepo) Create(ctx context.Context, p *model.UserProfile) error {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if p.CreatedAt.IsZero() {
		p.CreatedAt = now
	}
	if p.UpdatedAt.IsZero() {
		p.UpdatedAt = p.CreatedAt
	}

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO user_profiles (`+profileColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		p.ID, nullString(p.LeetCodeURL), nullString(p.CodeChefURL), nullString(p.CodeForcesURL),
		p.CreatedAt, p.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert profile: %w", err)
	}
	return nil
}

// UpdateURLs は3つのURLを保存し、updated_atを現在時刻に更新する。
func (r *PostgresProfileRepo) UpdateURLs(ctx context.Context, p *model.UserProfile) error {
	p.UpdatedAt = time.Now().UTC()

	result, err := r.db.ExecContext(ctx,
		`UPDATE user_profiles
		 SET leetcode_url = $2, codechef_url = $3, codeforces_url = $4, updated_at = $5
		 WHERE id = $1`,
		p.ID, nullString(p.LeetCodeURL), nullString(p.CodeChefURL), nullString(p.CodeForcesURL), p.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to update profile: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("profile not found: %s", p.ID)
	}
	return nil
}

// ListAll は全プロフィールを作成順に返す。
func (r *PostgresProfileRepo) ListAll(ctx context.Context) ([]*model.UserProfile, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+profileColumns+` FROM user_profiles ORDER BY created_at, id`,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list profiles: %w", err)
	}
	defer rows.Close()

	var profiles []*model.UserProfile
	for rows.Next() {
		p, err := scanProfile(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan profile: %w", err)
		}
		profiles = append(profiles, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate profiles: %w", err)
	}
	return profiles, nil
}

// rowScanner は*sql.Rowと*sql.Rowsの共通部分。
type rowScanner interface {
	Scan(dest ...any) error
}

// scanProfile は1行をプロフィールに変換する。行がない場合はnilを返す。
func scanProfile(row rowScanner) (*model.UserProfile, error) {
	p := &model.UserProfile{}
	var lc, cc, cf sql.NullString

	err := row.Scan(&p.ID, &lc, &cc, &cf, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	p.LeetCodeURL = nullStringValue(lc)
	p.CodeChefURL = nullStringValue(cc)
	p.CodeForcesURL = nullStringValue(cf)
	return p, nil
}

// nullString は空文字列をNULLとして扱うsql.NullStringを返す。
func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

// nullStringValue はsql.NullStringから文字列を取得する。
func nullStringValue(ns sql.NullString) string {
	if ns.Valid {
		return ns.String
	}
	return ""
}

// compile-time interface check
var _ ProfileRepository = (*PostgresProfileRepo)(nil)
