package model

import "fmt"

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: validation, profile, system
	Action   string // ユーザー向け対処方法
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeInvalidRequest  = "INVALID_REQUEST"
	ErrCodeNoProfileURL    = "NO_PROFILE_URL"
	ErrCodeInvalidUserID   = "INVALID_USER_ID"
	ErrCodeProfileNotFound = "PROFILE_NOT_FOUND"
	ErrCodeRateLimited     = "RATE_LIMIT_EXCEEDED"
	ErrCodeInternal        = "INTERNAL_ERROR"
)

// NewInvalidRequestError はリクエストボディ解析失敗エラーを生成する。
func NewInvalidRequestError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalidRequest,
		Message:  "リクエストボディの解析に失敗しました。",
		Category: "validation",
		Action:   "正しいJSON形式でリクエストしてください。",
	}
}

// NewNoProfileURLError はプロフィールURLが1つも指定されていない場合のエラーを生成する。
func NewNoProfileURLError() *APIError {
	return &APIError{
		Code:     ErrCodeNoProfileURL,
		Message:  "プロフィールURLが指定されていません。",
		Category: "validation",
		Action:   "leetcode_url、codechef_url、codeforces_url のいずれかを指定してください。",
	}
}

// NewInvalidUserIDError はユーザーIDの形式が不正な場合のエラーを生成する。
func NewInvalidUserIDError(userID string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidUserID,
		Message:  fmt.Sprintf("無効なユーザーIDです: %s", userID),
		Category: "validation",
		Action:   "追跡登録時に返されたuser_idを指定してください。",
	}
}

// NewProfileNotFoundError はプロフィールが見つからない場合のエラーを生成する。
func NewProfileNotFoundError(userID string) *APIError {
	return &APIError{
		Code:     ErrCodeProfileNotFound,
		Message:  fmt.Sprintf("指定されたプロフィールが見つかりません: %s", userID),
		Category: "profile",
		Action:   "プロフィールを登録してから再度お試しください。",
	}
}

// NewRateLimitError はレート制限超過のエラーを生成する。
func NewRateLimitError() *APIError {
	return &APIError{
		Code:     ErrCodeRateLimited,
		Message:  "リクエストが多すぎます。",
		Category: "system",
		Action:   "Retry-Afterヘッダーの秒数だけ待ってから再度お試しください。",
	}
}

// NewInternalError は内部エラーを生成する。詳細はログにのみ記録する。
func NewInternalError() *APIError {
	return &APIError{
		Code:     ErrCodeInternal,
		Message:  "統計の取り込みまたは参照中に内部エラーが発生しました。",
		Category: "system",
		Action:   "しばらく待ってから再度お試しください。解決しない場合はrequest_idを添えて報告してください。",
	}
}
