// Package identity はプロフィールURLからプラットフォーム上のハンドルを導出する。
package identity

import (
	"errors"
	"net/url"
	"strings"

	"github.com/hitoshi/profiletracker/internal/model"
	"github.com/hitoshi/profiletracker/internal/platform"
)

// ErrNotTracked はURLが空で、そのプラットフォームが追跡対象外であることを表す。
// エラーではなく「スキップ」のシグナルとして扱う。
var ErrNotTracked = errors.New("platform not tracked")

// Extract はプロフィールURLからハンドルを導出する。
//   - 空のURL: ErrNotTracked
//   - LeetCode: 最後のパスセグメント。それが "u" の場合（.../u/<handle>）はその前のセグメント
//   - CodeChef / CodeForces: 末尾の "/" を除いた最後のパスセグメント
//
// ハンドルが空になった場合は platform.ErrInvalidIdentity に一致する*platform.FetchErrorを返す。
func Extract(p model.Platform, rawURL string) (string, error) {
	trimmed := strings.TrimSpace(rawURL)
	if trimmed == "" {
		return "", ErrNotTracked
	}

	segments := pathSegments(trimmed)

	var handle string
	switch p {
	case model.PlatformLeetCode:
		handle = leetCodeHandle(segments)
	case model.PlatformCodeChef, model.PlatformCodeForces:
		if len(segments) > 0 {
			handle = segments[len(segments)-1]
		}
	default:
		return "", platform.NewInvalidIdentityError(p, rawURL)
	}

	if handle == "" {
		return "", platform.NewInvalidIdentityError(p, rawURL)
	}
	return handle, nil
}

// leetCodeHandle は /u/<handle> 形式と /<handle> 形式の両方からハンドルを取り出す。
// "/u/alice" と "/u/alice/" は同じ "alice" になる。
func leetCodeHandle(segments []string) string {
	if len(segments) == 0 {
		return ""
	}
	last := segments[len(segments)-1]
	if last == "u" {
		if len(segments) < 2 {
			return ""
		}
		return segments[len(segments)-2]
	}
	return last
}

// pathSegments はURLのパスを空でないセグメントに分割する。
// スキーム付きのURLはクエリとフラグメントを除いたパスのみを対象にする。
// スキームのない入力（"leetcode.com/u/alice" など）はそのまま "/" で分割する。
func pathSegments(raw string) []string {
	path := raw
	if u, err := url.Parse(raw); err == nil && u.Scheme != "" && u.Host != "" {
		path = u.Path
	} else if i := strings.IndexAny(raw, "?#"); i >= 0 {
		path = raw[:i]
	}

	path = strings.Trim(path, "/")
	if path == "" {
		return nil
	}

	parts := strings.Split(path, "/")
	segments := parts[:0]
	for _, s := range parts {
		if s != "" {
			segments = append(segments, s)
		}
	}
	return segments
}

// Rejection はハンドルを導出できなかったプラットフォームとその理由。
type Rejection struct {
	Platform model.Platform
	URL      string
	Err      error
}

// FromURLs は指定されたURLの組から固定順でProfileIdentityの一覧を作る。
// 空のURLは黙ってスキップし、ハンドルを導出できなかったURLはrejectedに入れる。
func FromURLs(urls model.ProfileURLs) (identities []model.ProfileIdentity, rejected []Rejection) {
	for _, p := range model.Platforms {
		raw := urls.URLFor(p)
		handle, err := Extract(p, raw)
		if errors.Is(err, ErrNotTracked) {
			continue
		}
		if err != nil {
			rejected = append(rejected, Rejection{Platform: p, URL: raw, Err: err})
			continue
		}
		identities = append(identities, model.ProfileIdentity{Platform: p, Handle: handle})
	}
	return identities, rejected
}
