package security

import (
	"strings"
	"testing"

	"github.com/hitoshi/profiletracker/internal/platform"
)

func TestSanitizeText(t *testing.T) {
	s := NewTextSanitizer()

	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"プレーンテキストはそのまま", "legendary grandmaster", "legendary grandmaster"},
		{"空文字列", "", ""},
		{"タグを除去", "<b>dp</b>", "dp"},
		{"scriptは中身ごと除去", `math<script>alert(1)</script>`, "math"},
		{"イベント属性付きタグ", `<img src=x onerror=alert(1)>greedy`, "greedy"},
		{"空白を正規化", "  binary \n  search ", "binary search"},
		{"実体参照を戻す", "2-sat &amp; graphs", "2-sat & graphs"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := s.SanitizeText(tt.input); got != tt.want {
				t.Errorf("SanitizeText(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestSanitizeText_Truncates(t *testing.T) {
	s := NewTextSanitizer()
	got := s.SanitizeText(strings.Repeat("あ", maxTextLength+10))
	if n := len([]rune(got)); n != maxTextLength {
		t.Errorf("length = %d, want %d", n, maxTextLength)
	}
}

func TestSanitizeText_Idempotent(t *testing.T) {
	s := NewTextSanitizer()
	once := s.SanitizeText("<em>number theory</em>")
	if twice := s.SanitizeText(once); twice != once {
		t.Errorf("not idempotent: %q -> %q", once, twice)
	}
}

func TestTextSanitizerService_ImplementsTextSanitizer(t *testing.T) {
	var _ platform.TextSanitizer = NewTextSanitizer()
}
