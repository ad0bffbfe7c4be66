package ingest

import (
	"bytes"
	"context"
	"log/slog"
	"sync"

	"github.com/hitoshi/profiletracker/internal/model"
)

// --- モック ---

type fakeAdapter struct {
	platform model.Platform
	fetchFn  func(ctx context.Context, userID, handle string) (*model.PlatformStats, error)
}

func (f *fakeAdapter) Platform() model.Platform { return f.platform }
func (f *fakeAdapter) Fetch(ctx context.Context, userID, handle string) (*model.PlatformStats, error) {
	return f.fetchFn(ctx, userID, handle)
}

// okAdapter は常に最小限の統計を返すアダプタ。
func okAdapter(p model.Platform) *fakeAdapter {
	return &fakeAdapter{platform: p, fetchFn: func(ctx context.Context, userID, handle string) (*model.PlatformStats, error) {
		return sampleStats(p, userID), nil
	}}
}

// hangingAdapter はctxの期限を無視し、releaseが閉じられるまで戻らないアダプタ。
func hangingAdapter(p model.Platform, release <-chan struct{}) *fakeAdapter {
	return &fakeAdapter{platform: p, fetchFn: func(ctx context.Context, userID, handle string) (*model.PlatformStats, error) {
		<-release
		return sampleStats(p, userID), nil
	}}
}

func sampleStats(p model.Platform, userID string) *model.PlatformStats {
	switch p {
	case model.PlatformLeetCode:
		return model.NewLeetCodeStats(userID, 3, 2, 1)
	case model.PlatformCodeChef:
		return &model.PlatformStats{
			UserID: userID, Platform: p, TotalSolved: 1,
			CodeChef: &model.CodeChefStats{ProblemCategories: map[string]int{model.CategoryPractice: 1}},
		}
	default:
		return &model.PlatformStats{
			UserID: userID, Platform: p, TotalSolved: 4,
			CodeForces: &model.CodeForcesStats{Rank: "pupil", ProblemTags: map[string]int{"math": 4}},
		}
	}
}

type mockStatsRepo struct {
	mu       sync.Mutex
	records  []*model.PlatformStats
	appendFn func(ctx context.Context, s *model.PlatformStats) error
	latestFn func(ctx context.Context, userID string, p model.Platform) (*model.PlatformStats, error)
}

func (m *mockStatsRepo) Append(ctx context.Context, s *model.PlatformStats) error {
	if m.appendFn != nil {
		if err := m.appendFn(ctx, s); err != nil {
			return err
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = append(m.records, s)
	return nil
}

func (m *mockStatsRepo) LatestByUserAndPlatform(ctx context.Context, userID string, p model.Platform) (*model.PlatformStats, error) {
	if m.latestFn != nil {
		return m.latestFn(ctx, userID, p)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := len(m.records) - 1; i >= 0; i-- {
		if r := m.records[i]; r.UserID == userID && r.Platform == p {
			return r, nil
		}
	}
	return nil, nil
}

func (m *mockStatsRepo) platforms() map[model.Platform]int {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := map[model.Platform]int{}
	for _, r := range m.records {
		out[r.Platform]++
	}
	return out
}

type mockProfileRepo struct {
	mu          sync.Mutex
	profiles    []*model.UserProfile
	nextID      int
	findByAnyFn func(ctx context.Context, lc, cc, cf string) (*model.UserProfile, error)
	createFn    func(ctx context.Context, p *model.UserProfile) error
}

func (m *mockProfileRepo) FindByAnyURL(ctx context.Context, lc, cc, cf string) (*model.UserProfile, error) {
	if m.findByAnyFn != nil {
		return m.findByAnyFn(ctx, lc, cc, cf)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, want := range []struct {
		p   model.Platform
		url string
	}{{model.PlatformLeetCode, lc}, {model.PlatformCodeChef, cc}, {model.PlatformCodeForces, cf}} {
		if want.url == "" {
			continue
		}
		for _, p := range m.profiles {
			if p.URLFor(want.p) == want.url {
				copied := *p
				return &copied, nil
			}
		}
	}
	return nil, nil
}

func (m *mockProfileRepo) FindByID(ctx context.Context, id string) (*model.UserProfile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range m.profiles {
		if p.ID == id {
			copied := *p
			return &copied, nil
		}
	}
	return nil, nil
}

func (m *mockProfileRepo) Create(ctx context.Context, p *model.UserProfile) error {
	if m.createFn != nil {
		return m.createFn(ctx, p)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	if p.ID == "" {
		p.ID = testUUIDs[m.nextID%len(testUUIDs)]
	}
	copied := *p
	m.profiles = append(m.profiles, &copied)
	return nil
}

func (m *mockProfileRepo) UpdateURLs(ctx context.Context, p *model.UserProfile) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, existing := range m.profiles {
		if existing.ID == p.ID {
			copied := *p
			m.profiles[i] = &copied
			return nil
		}
	}
	return nil
}

func (m *mockProfileRepo) ListAll(ctx context.Context) ([]*model.UserProfile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*model.UserProfile(nil), m.profiles...), nil
}

var testUUIDs = []string{
	"7f1b6c1e-3f55-4a0e-9d6a-2a39a2f7c001",
	"7f1b6c1e-3f55-4a0e-9d6a-2a39a2f7c002",
	"7f1b6c1e-3f55-4a0e-9d6a-2a39a2f7c003",
}

func newTestLogger(buf *bytes.Buffer) *slog.Logger {
	return slog.New(slog.NewJSONHandler(buf, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
}
