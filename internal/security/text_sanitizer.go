package security

import (
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// maxTextLength は上流由来テキスト1件あたりの最大文字数。
const maxTextLength = 128

// TextSanitizerService は上流由来の短いテキスト（ランク名やタグ名）からマークアップを除去する。
// bluemondayのStrictPolicyで全てのタグを落とし、エスケープされた実体参照を戻してから空白を整える。
type TextSanitizerService struct {
	policy *bluemonday.Policy
}

// NewTextSanitizer はTextSanitizerServiceを生成する。
func NewTextSanitizer() *TextSanitizerService {
	return &TextSanitizerService{policy: bluemonday.StrictPolicy()}
}

// SanitizeText はタグを除去したプレーンテキストを返す。
// 連続する空白は1つにまとめ、maxTextLength文字を超える部分は切り捨てる。
func (s *TextSanitizerService) SanitizeText(raw string) string {
	if raw == "" {
		return ""
	}

	text := html.UnescapeString(s.policy.Sanitize(raw))
	text = strings.Join(strings.Fields(text), " ")

	if r := []rune(text); len(r) > maxTextLength {
		text = string(r[:maxTextLength])
	}
	return text
}
