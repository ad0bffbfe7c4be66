package platform

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/hitoshi/profiletracker/internal/model"
)

func TestFetchError_IsMatchesKind(t *testing.T) {
	cases := []struct {
		err  error
		want error
	}{
		{NewInvalidIdentityError(model.PlatformLeetCode, "https://leetcode.com/"), ErrInvalidIdentity},
		{NewUpstreamError(model.PlatformCodeForces, "user.status", 500, nil), ErrUpstream},
		{NewNotFoundError(model.PlatformCodeChef, "ghost"), ErrNotFound},
		{NewTimeoutError(model.PlatformLeetCode, "graphql", context.DeadlineExceeded), ErrTimeout},
	}

	sentinels := []error{ErrInvalidIdentity, ErrUpstream, ErrNotFound, ErrTimeout}
	for _, tc := range cases {
		for _, s := range sentinels {
			got := errors.Is(tc.err, s)
			if got != (s == tc.want) {
				t.Errorf("errors.Is(%v, %v) = %v", tc.err, s, got)
			}
		}
	}
}

func TestFetchError_WrappedStillMatches(t *testing.T) {
	err := fmt.Errorf("ingest: %w", NewUpstreamError(model.PlatformCodeForces, "user.info", 502, nil))

	if !errors.Is(err, ErrUpstream) {
		t.Error("wrapped FetchError should match ErrUpstream")
	}
	if KindOf(err) != KindUpstream {
		t.Errorf("KindOf = %q, want %q", KindOf(err), KindUpstream)
	}
	if KindOf(errors.New("plain")) != "" {
		t.Error("KindOf(plain error) should be empty")
	}
}

func TestFetchError_ErrorMessage(t *testing.T) {
	err := NewUpstreamError(model.PlatformCodeForces, "user.status", 500, errors.New("boom"))
	want := "codeforces upstream_error (user.status): status 500: boom"
	if err.Error() != want {
		t.Errorf("Error() = %q, want %q", err.Error(), want)
	}
}

func TestClassifyTransportError(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Nanosecond)
	defer cancel()
	<-ctx.Done()

	if err := ClassifyTransportError(ctx, model.PlatformLeetCode, "graphql", errors.New("request canceled")); err.Kind != KindTimeout {
		t.Errorf("Kind = %q, want timeout for expired context", err.Kind)
	}

	err := ClassifyTransportError(context.Background(), model.PlatformLeetCode, "graphql", errors.New("connection refused"))
	if err.Kind != KindUpstream {
		t.Errorf("Kind = %q, want upstream_error", err.Kind)
	}
	if err.StatusCode != 0 {
		t.Errorf("StatusCode = %d, want 0", err.StatusCode)
	}
}
