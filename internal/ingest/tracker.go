package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/hitoshi/profiletracker/internal/identity"
	"github.com/hitoshi/profiletracker/internal/model"
	"github.com/hitoshi/profiletracker/internal/repository"
)

// TrackResult はプロフィール追跡リクエストの結果。
type TrackResult struct {
	UserID  string
	Created bool
	Result  *Result
}

// Tracker はプロフィールの登録・更新と統計の取り込みを行うサービス層。
type Tracker struct {
	profileRepo repository.ProfileRepository
	ingester    Ingester
	logger      *slog.Logger
}

// NewTracker はTrackerの新しいインスタンスを生成する。
func NewTracker(profileRepo repository.ProfileRepository, ingester Ingester, logger *slog.Logger) *Tracker {
	return &Tracker{
		profileRepo: profileRepo,
		ingester:    ingester,
		logger:      logger,
	}
}

// TrackProfiles はURLのいずれかに一致するプロフィールを探し、なければ作成する。
// 一致した場合は指定されたURLのみを上書きする。その後、リクエストで指定されたURLについてのみ統計を取り込む。
func (t *Tracker) TrackProfiles(ctx context.Context, urls model.ProfileURLs) (*TrackResult, error) {
	urls = model.ProfileURLs{
		LeetCodeURL:   strings.TrimSpace(urls.LeetCodeURL),
		CodeChefURL:   strings.TrimSpace(urls.CodeChefURL),
		CodeForcesURL: strings.TrimSpace(urls.CodeForcesURL),
	}
	if urls.IsEmpty() {
		return nil, model.NewNoProfileURLError()
	}

	profile, err := t.profileRepo.FindByAnyURL(ctx, urls.LeetCodeURL, urls.CodeChefURL, urls.CodeForcesURL)
	if err != nil {
		return nil, fmt.Errorf("プロフィールの照合に失敗しました: %w", err)
	}

	created := profile == nil
	if created {
		profile = &model.UserProfile{}
		urls.ApplyTo(profile)
		if err := t.profileRepo.Create(ctx, profile); err != nil {
			return nil, fmt.Errorf("プロフィールの作成に失敗しました: %w", err)
		}
		t.logger.Info("プロフィールを作成しました", slog.String("user_id", profile.ID))
	} else {
		urls.ApplyTo(profile)
		if err := t.profileRepo.UpdateURLs(ctx, profile); err != nil {
			return nil, fmt.Errorf("プロフィールの更新に失敗しました: %w", err)
		}
		t.logger.Info("既存のプロフィールを更新しました", slog.String("user_id", profile.ID))
	}

	res, err := t.ingest(ctx, profile.ID, urls)
	if err != nil {
		return nil, err
	}

	return &TrackResult{UserID: profile.ID, Created: created, Result: res}, nil
}

// Refresh はプロフィールに保存されたURLから統計を取り込む。
// ハンドルを導出できなかったURLはログに残し、結果をpartialとする。
func (t *Tracker) Refresh(ctx context.Context, profile *model.UserProfile) (*Result, error) {
	return t.ingest(ctx, profile.ID, model.ProfileURLsOf(profile))
}

// ingest はurlsからハンドルを導出し、userIDの統計として取り込む。
func (t *Tracker) ingest(ctx context.Context, userID string, urls model.ProfileURLs) (*Result, error) {
	targets, rejected := identity.FromURLs(urls)
	for _, rej := range rejected {
		t.logger.Warn("プロフィールURLからハンドルを導出できませんでした",
			slog.String("user_id", userID),
			slog.String("platform", string(rej.Platform)),
			slog.String("url", rej.URL),
			slog.String("error", rej.Err.Error()),
		)
	}

	res, err := t.ingester.Ingest(ctx, userID, targets)
	if err != nil {
		return nil, fmt.Errorf("統計の取り込みに失敗しました: %w", err)
	}
	res.markRejected(rejected)

	return res, nil
}
