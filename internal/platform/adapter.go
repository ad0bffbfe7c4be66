// Package platform は競技プログラミングサイトごとの取得アダプタの共通部分を提供する。
// アダプタのインターフェース、FetchErrorの分類、上流向けHTTPクライアントの構築を含む。
// 各サイトの実装は leetcode、codechef、codeforces サブパッケージにある。
package platform

import (
	"context"
	"time"

	"github.com/hitoshi/profiletracker/internal/model"
)

// DefaultTimeout はアダプタ1回分のネットワーク処理に許される時間。
const DefaultTimeout = 10 * time.Second

// DefaultUserAgent は上流へのリクエストに付与するブラウザのUser-Agent。
// User-Agentがないと上流に拒否されることがある。
const DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36"

// Adapter は1つのプラットフォームから統計を取得し正規化するインターフェース。
// 上流の生レスポンスの形はアダプタ内部に閉じ、戻り値は常に正規化済みのmodel.PlatformStatsとなる。
// 失敗時は*FetchErrorを返す。
type Adapter interface {
	// Platform はアダプタが担当するプラットフォームを返す。
	Platform() model.Platform

	// Fetch はhandleの統計を取得し、userIDを付与したレコードを返す。
	// RecordedAtとIDは保存時に設定される。
	Fetch(ctx context.Context, userID, handle string) (*model.PlatformStats, error)
}

// TextSanitizer は上流由来の自由テキストを保存前に無害化するインターフェース。
// security.TextSanitizerService が実装する。
type TextSanitizer interface {
	SanitizeText(raw string) string
}

// passthroughSanitizer は入力をそのまま返すTextSanitizer。
type passthroughSanitizer struct{}

func (passthroughSanitizer) SanitizeText(raw string) string { return raw }

// SanitizerOrDefault はnilの場合に何もしないTextSanitizerを返す。
func SanitizerOrDefault(s TextSanitizer) TextSanitizer {
	if s == nil {
		return passthroughSanitizer{}
	}
	return s
}
