// Package repository はデータ永続化のインターフェースとPostgreSQL実装を提供する。
package repository

import (
	"context"

	"github.com/hitoshi/profiletracker/internal/model"
)

// ProfileRepository は追跡対象プロフィールの永続化インターフェース。
type ProfileRepository interface {
	// FindByAnyURL は leetcode → codechef → codeforces の順にURLで照合し、最初に一致したプロフィールを返す。
	// 空のURLは照合に使わない。見つからない場合はnilを返す。
	FindByAnyURL(ctx context.Context, leetcodeURL, codechefURL, codeforcesURL string) (*model.UserProfile, error)

	// FindByID は指定IDのプロフィールを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.UserProfile, error)

	// Create はプロフィールを作成する。IDとタイムスタンプが未設定の場合は補う。
	Create(ctx context.Context, p *model.UserProfile) error

	// UpdateURLs は3つのURLを保存し、updated_atを更新する。
	UpdateURLs(ctx context.Context, p *model.UserProfile) error

	// ListAll は全プロフィールを作成順に返す。
	ListAll(ctx context.Context) ([]*model.UserProfile, error)
}

// StatsRepository はプラットフォーム統計の履歴の永続化インターフェース。
// 履歴は追記専用で、既存レコードの更新・削除は提供しない。
type StatsRepository interface {
	// Append は統計レコードを1件追記する。IDとRecordedAtが未設定の場合は補う。
	Append(ctx context.Context, s *model.PlatformStats) error

	// LatestByUserAndPlatform は指定ユーザー・プラットフォームの最新レコードを返す。
	// レコードがない場合はnilを返す。
	LatestByUserAndPlatform(ctx context.Context, userID string, p model.Platform) (*model.PlatformStats, error)
}
