// Package model はドメインモデルを定義する。
package model

import "time"

// Platform は統計を取得する競技プログラミングサイトを表す。
type Platform string

const (
	// PlatformLeetCode はLeetCode。
	PlatformLeetCode Platform = "leetcode"
	// PlatformCodeChef はCodeChef。
	PlatformCodeChef Platform = "codechef"
	// PlatformCodeForces はCodeForces。
	PlatformCodeForces Platform = "codeforces"
)

// Platforms は全プラットフォームを固定順（leetcode → codechef → codeforces）で保持する。
// プロフィール照合やレスポンス構築はこの順序に従う。
var Platforms = []Platform{PlatformLeetCode, PlatformCodeChef, PlatformCodeForces}

// Valid は既知のプラットフォームかどうかを返す。
func (p Platform) Valid() bool {
	switch p {
	case PlatformLeetCode, PlatformCodeChef, PlatformCodeForces:
		return true
	}
	return false
}

// ProfileIdentity はプロフィールURLから導出したプラットフォーム上のハンドル。
// URLから決定的に導出され、単体で永続化されることはない。
type ProfileIdentity struct {
	Platform Platform
	Handle   string
}

// UserProfile は追跡対象のユーザーを表す。
// 3つのプロフィールURLのいずれかで照合される。
type UserProfile struct {
	ID            string
	LeetCodeURL   string
	CodeChefURL   string
	CodeForcesURL string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// URLFor は指定プラットフォームのプロフィールURLを返す。未登録の場合は空文字列。
func (p *UserProfile) URLFor(platform Platform) string {
	switch platform {
	case PlatformLeetCode:
		return p.LeetCodeURL
	case PlatformCodeChef:
		return p.CodeChefURL
	case PlatformCodeForces:
		return p.CodeForcesURL
	}
	return ""
}

// ProfileURLs は追跡リクエストで受け取るURLの組。未指定のフィールドは空文字列。
type ProfileURLs struct {
	LeetCodeURL   string
	CodeChefURL   string
	CodeForcesURL string
}

// IsEmpty はURLが1つも指定されていない場合にtrueを返す。
func (u ProfileURLs) IsEmpty() bool {
	return u.LeetCodeURL == "" && u.CodeChefURL == "" && u.CodeForcesURL == ""
}

// URLFor は指定プラットフォームのURLを返す。
func (u ProfileURLs) URLFor(platform Platform) string {
	switch platform {
	case PlatformLeetCode:
		return u.LeetCodeURL
	case PlatformCodeChef:
		return u.CodeChefURL
	case PlatformCodeForces:
		return u.CodeForcesURL
	}
	return ""
}

// ApplyTo は指定されたURLのみをプロフィールへ上書きする。
// 空のフィールドは既存の値を維持する。
func (u ProfileURLs) ApplyTo(p *UserProfile) {
	if u.LeetCodeURL != "" {
		p.LeetCodeURL = u.LeetCodeURL
	}
	if u.CodeChefURL != "" {
		p.CodeChefURL = u.CodeChefURL
	}
	if u.CodeForcesURL != "" {
		p.CodeForcesURL = u.CodeForcesURL
	}
}

// ProfileURLsOf はプロフィールに保存されたURLの組を返す。
func ProfileURLsOf(p *UserProfile) ProfileURLs {
	return ProfileURLs{
		LeetCodeURL:   p.LeetCodeURL,
		CodeChefURL:   p.CodeChefURL,
		CodeForcesURL: p.CodeForcesURL,
	}
}
