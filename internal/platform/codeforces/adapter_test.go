package codeforces

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/hitoshi/profiletracker/internal/model"
	"github.com/hitoshi/profiletracker/internal/platform"
)

const infoOK = `{"status":"OK","result":[{"handle":"tourist","rating":3500,"maxRating":3979,"rank":"legendary grandmaster"}]}`

const statusOKBody = `{"status":"OK","result":[
	{"verdict":"OK","problem":{"contestId":1,"index":"A","tags":["math","greedy"]}},
	{"verdict":"OK","problem":{"contestId":1,"index":"A","tags":["math","greedy"]}},
	{"verdict":"WRONG_ANSWER","problem":{"contestId":1,"index":"B","tags":["dp"]}},
	{"verdict":"OK","problem":{"contestId":2,"index":"C","tags":["math"]}}
]}`

const ratingOK = `{"status":"OK","result":[{"contestId":1},{"contestId":2},{"contestId":5}]}`

// mockAPI はメソッドごとのステータスとボディを返すテスト用サーバー。
type mockAPI struct {
	responses map[string]struct {
		status int
		body   string
	}
}

func newMockAPI() *mockAPI {
	m := &mockAPI{responses: map[string]struct {
		status int
		body   string
	}{}}
	m.set("user.info", http.StatusOK, infoOK)
	m.set("user.status", http.StatusOK, statusOKBody)
	m.set("user.rating", http.StatusOK, ratingOK)
	return m
}

func (m *mockAPI) set(method string, status int, body string) {
	m.responses[method] = struct {
		status int
		body   string
	}{status, body}
}

func (m *mockAPI) serve(t *testing.T) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		method := strings.TrimPrefix(r.URL.Path, "/api/")
		resp, ok := m.responses[method]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		if ua := r.Header.Get("User-Agent"); !strings.Contains(ua, "Mozilla/5.0") {
			t.Errorf("User-Agent = %q, want browser user agent", ua)
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(resp.status)
		w.Write([]byte(resp.body))
	}))
}

func newTestLogger(buf *bytes.Buffer) *slog.Logger {
	return slog.New(slog.NewJSONHandler(buf, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
}

func newTestAdapter(serverURL string, logBuf *bytes.Buffer) *Adapter {
	client := platform.NewClient(platform.PlainClientFactory{}, platform.ClientConfig{
		Platform: model.PlatformCodeForces,
		Timeout:  time.Second,
	})
	return NewAdapter(client, Config{APIBase: serverURL + "/api", Timeout: time.Second}, nil, newTestLogger(logBuf))
}

func TestAdapter_Fetch_Success(t *testing.T) {
	server := newMockAPI().serve(t)
	defer server.Close()

	var buf bytes.Buffer
	stats, err := newTestAdapter(server.URL, &buf).Fetch(context.Background(), "user-1", "tourist")
	if err != nil {
		t.Fatalf("Fetch がエラーを返した: %v", err)
	}

	if stats.TotalSolved != 2 {
		t.Errorf("TotalSolved = %d, want 2", stats.TotalSolved)
	}
	if stats.ContestRating == nil || *stats.ContestRating != 3500 {
		t.Errorf("ContestRating = %v, want 3500", stats.ContestRating)
	}
	if stats.HighestRating == nil || *stats.HighestRating != 3979 {
		t.Errorf("HighestRating = %v, want 3979", stats.HighestRating)
	}
	if stats.ContestsParticipated != 3 {
		t.Errorf("ContestsParticipated = %d, want 3", stats.ContestsParticipated)
	}
	if stats.CodeForces.Rank != "legendary grandmaster" {
		t.Errorf("Rank = %q", stats.CodeForces.Rank)
	}

	want := map[string]int{"math": 2, "greedy": 1}
	if diff := cmp.Diff(want, stats.CodeForces.ProblemTags); diff != "" {
		t.Errorf("ProblemTags mismatch (-want +got):\n%s", diff)
	}
}

func TestAdapter_Fetch_UnratedUserDefaultsToNewbie(t *testing.T) {
	api := newMockAPI()
	api.set("user.info", http.StatusOK, `{"status":"OK","result":[{"handle":"fresh"}]}`)
	api.set("user.status", http.StatusOK, `{"status":"OK","result":[]}`)
	api.set("user.rating", http.StatusOK, `{"status":"OK","result":[]}`)
	server := api.serve(t)
	defer server.Close()

	var buf bytes.Buffer
	stats, err := newTestAdapter(server.URL, &buf).Fetch(context.Background(), "user-1", "fresh")
	if err != nil {
		t.Fatalf("Fetch がエラーを返した: %v", err)
	}
	if stats.CodeForces.Rank != DefaultRank {
		t.Errorf("Rank = %q, want %q", stats.CodeForces.Rank, DefaultRank)
	}
	if stats.ContestRating != nil || stats.HighestRating != nil {
		t.Errorf("ratings = (%v, %v), want nil", stats.ContestRating, stats.HighestRating)
	}
	if stats.TotalSolved != 0 || len(stats.CodeForces.ProblemTags) != 0 {
		t.Errorf("solved = %d tags = %v, want empty", stats.TotalSolved, stats.CodeForces.ProblemTags)
	}
}

func TestAdapter_Fetch_StatusHTTP500_ReturnsUpstreamError(t *testing.T) {
	api := newMockAPI()
	api.set("user.status", http.StatusInternalServerError, "")
	server := api.serve(t)
	defer server.Close()

	var buf bytes.Buffer
	_, err := newTestAdapter(server.URL, &buf).Fetch(context.Background(), "user-1", "tourist")
	if !errors.Is(err, platform.ErrUpstream) {
		t.Fatalf("error = %v, want ErrUpstream", err)
	}

	var fe *platform.FetchError
	if errors.As(err, &fe) && fe.Op != "user.status" {
		t.Errorf("Op = %q, want user.status", fe.Op)
	}
}

func TestAdapter_Fetch_FailedStatus_ReturnsUpstreamError(t *testing.T) {
	api := newMockAPI()
	api.set("user.info", http.StatusOK, `{"status":"FAILED","comment":"Call limit exceeded"}`)
	server := api.serve(t)
	defer server.Close()

	var buf bytes.Buffer
	_, err := newTestAdapter(server.URL, &buf).Fetch(context.Background(), "user-1", "tourist")
	if !errors.Is(err, platform.ErrUpstream) {
		t.Fatalf("error = %v, want ErrUpstream", err)
	}
}

func TestAdapter_Fetch_UnknownHandle_ReturnsNotFound(t *testing.T) {
	api := newMockAPI()
	api.set("user.info", http.StatusBadRequest,
		`{"status":"FAILED","comment":"handles: User with handle ghost not found"}`)
	server := api.serve(t)
	defer server.Close()

	var buf bytes.Buffer
	_, err := newTestAdapter(server.URL, &buf).Fetch(context.Background(), "user-1", "ghost")
	if !errors.Is(err, platform.ErrNotFound) {
		t.Fatalf("error = %v, want ErrNotFound", err)
	}
}

func TestAdapter_Fetch_RatingFailureIsNotFatal(t *testing.T) {
	api := newMockAPI()
	api.set("user.rating", http.StatusServiceUnavailable, "")
	server := api.serve(t)
	defer server.Close()

	var buf bytes.Buffer
	stats, err := newTestAdapter(server.URL, &buf).Fetch(context.Background(), "user-1", "tourist")
	if err != nil {
		t.Fatalf("Fetch がエラーを返した: %v", err)
	}
	if stats.ContestsParticipated != 0 {
		t.Errorf("ContestsParticipated = %d, want 0", stats.ContestsParticipated)
	}
	if stats.TotalSolved != 2 {
		t.Errorf("TotalSolved = %d, want 2", stats.TotalSolved)
	}
	if !strings.Contains(buf.String(), "レーティング履歴") {
		t.Errorf("警告ログが出力されていない: %s", buf.String())
	}
}

type upperSanitizer struct{}

func (upperSanitizer) SanitizeText(raw string) string { return strings.ToUpper(raw) }

func TestAdapter_Fetch_SanitizesRankAndTags(t *testing.T) {
	server := newMockAPI().serve(t)
	defer server.Close()

	var buf bytes.Buffer
	client := platform.NewClient(platform.PlainClientFactory{}, platform.ClientConfig{Platform: model.PlatformCodeForces})
	a := NewAdapter(client, Config{APIBase: server.URL + "/api"}, upperSanitizer{}, newTestLogger(&buf))

	stats, err := a.Fetch(context.Background(), "user-1", "tourist")
	if err != nil {
		t.Fatalf("Fetch がエラーを返した: %v", err)
	}
	if stats.CodeForces.Rank != "LEGENDARY GRANDMASTER" {
		t.Errorf("Rank = %q", stats.CodeForces.Rank)
	}
	if stats.CodeForces.ProblemTags["MATH"] != 2 {
		t.Errorf("ProblemTags = %v", stats.CodeForces.ProblemTags)
	}
}

func accepted(contestID int, index string, tags ...string) submission {
	id := contestID
	return submission{Verdict: verdictOK, Problem: problem{ContestID: &id, Index: index, Tags: tags}}
}

func TestTallySolved_DuplicateAcceptedDoesNotDoubleCount(t *testing.T) {
	subs := []submission{accepted(1, "A", "math"), accepted(1, "A", "math"), accepted(1, "A", "math")}

	solved, tags := tallySolved(subs)
	if solved != 1 {
		t.Errorf("solved = %d, want 1", solved)
	}
	if tags["math"] != 1 {
		t.Errorf("tags[math] = %d, want 1", tags["math"])
	}
}

func TestTallySolved_MonotonicInNewProblems(t *testing.T) {
	var subs []submission
	prev := 0
	for i := 1; i <= 20; i++ {
		subs = append(subs, accepted(i, "A", "impl"))
		if i%3 == 0 {
			// 既に解いた問題の再提出は件数を変えない
			subs = append(subs, accepted(i-1, "A", "impl"))
		}

		solved, tags := tallySolved(subs)
		if solved < prev {
			t.Fatalf("step %d: solved decreased from %d to %d", i, prev, solved)
		}
		if solved != i {
			t.Errorf("step %d: solved = %d, want %d", i, solved, i)
		}
		if tags["impl"] != solved {
			t.Errorf("step %d: tags[impl] = %d, want %d", i, tags["impl"], solved)
		}
		prev = solved
	}
}

func TestTallySolved_IgnoresNonOKAndRepeatedTags(t *testing.T) {
	subs := []submission{
		{Verdict: "TIME_LIMIT_EXCEEDED", Problem: problem{Index: "Z", Tags: []string{"graphs"}}},
		accepted(7, "B", "dp", "dp", "graphs"),
	}

	solved, tags := tallySolved(subs)
	if solved != 1 {
		t.Errorf("solved = %d, want 1", solved)
	}
	if diff := cmp.Diff(map[string]int{"dp": 1, "graphs": 1}, tags); diff != "" {
		t.Errorf("tags mismatch (-want +got):\n%s", diff)
	}
}

func TestProblemKey_GymProblemsWithoutContestID(t *testing.T) {
	p := problem{ProblemsetName: "acmsguru", Index: "100"}
	if got := p.key(); got != "acmsguru100" {
		t.Errorf("key() = %q, want acmsguru100", got)
	}
	id := 1520
	p = problem{ContestID: &id, Index: "F2"}
	if got := p.key(); got != "1520F2" {
		t.Errorf("key() = %q, want 1520F2", got)
	}
}

// 上限を超えるuser.statusはパースエラーではなくサイズ超過の上流エラーとなる
func TestAdapter_Fetch_StatusBodyOverLimit(t *testing.T) {
	api := newMockAPI()
	var body strings.Builder
	body.WriteString(`{"status":"OK","result":[`)
	for i := 0; i < 200; i++ {
		if i > 0 {
			body.WriteString(",")
		}
		body.WriteString(`{"verdict":"OK","problem":{"contestId":1,"index":"A","tags":["math"]}}`)
	}
	body.WriteString(`]}`)
	api.set("user.status", http.StatusOK, body.String())
	server := api.serve(t)
	defer server.Close()

	var buf bytes.Buffer
	client := platform.NewClient(platform.PlainClientFactory{}, platform.ClientConfig{
		Platform:    model.PlatformCodeForces,
		Timeout:     time.Second,
		MaxBodySize: 4096,
	})
	a := NewAdapter(client, Config{APIBase: server.URL + "/api", Timeout: time.Second}, nil, newTestLogger(&buf))

	_, err := a.Fetch(context.Background(), "user-1", "tourist")
	if !errors.Is(err, platform.ErrUpstream) {
		t.Fatalf("error = %v, want ErrUpstream", err)
	}
	if !errors.Is(err, platform.ErrResponseTooLarge) {
		t.Errorf("error = %v, want ErrResponseTooLarge in chain", err)
	}
}
