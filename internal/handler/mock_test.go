package handler

import (
	"bytes"
	"context"
	"log/slog"

	"github.com/hitoshi/profiletracker/internal/ingest"
	"github.com/hitoshi/profiletracker/internal/model"
)

// --- モック定義 ---

type mockTracker struct {
	trackProfilesFn func(ctx context.Context, urls model.ProfileURLs) (*ingest.TrackResult, error)
}

func (m *mockTracker) TrackProfiles(ctx context.Context, urls model.ProfileURLs) (*ingest.TrackResult, error) {
	if m.trackProfilesFn != nil {
		return m.trackProfilesFn(ctx, urls)
	}
	return &ingest.TrackResult{
		UserID: testUserID,
		Result: &ingest.Result{Status: model.IngestStatusSuccess},
	}, nil
}

type mockStatsReader struct {
	getUserStatsFn func(ctx context.Context, userID string) (*ingest.UserStats, error)
}

func (m *mockStatsReader) GetUserStats(ctx context.Context, userID string) (*ingest.UserStats, error) {
	if m.getUserStatsFn != nil {
		return m.getUserStatsFn(ctx, userID)
	}
	return &ingest.UserStats{UserID: userID}, nil
}

type mockHealthChecker struct {
	pingFn func(ctx context.Context) error
}

func (m *mockHealthChecker) PingContext(ctx context.Context) error {
	if m.pingFn != nil {
		return m.pingFn(ctx)
	}
	return nil
}

const testUserID = "7f1b6c1e-3f55-4a0e-9d6a-2a39a2f7c001"

func newTestLogger(buf *bytes.Buffer) *slog.Logger {
	return slog.New(slog.NewJSONHandler(buf, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
}
