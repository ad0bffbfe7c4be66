package platform

import (
	"context"
	"errors"
	"fmt"
	"net"

	"github.com/hitoshi/profiletracker/internal/model"
)

// ErrorKind はアダプタ失敗の分類を表す。
type ErrorKind string

const (
	// KindInvalidIdentity はURLからハンドルを導出できなかったことを表す。
	KindInvalidIdentity ErrorKind = "invalid_identity"
	// KindUpstream は上流が非200またはAPIレベルのエラーを返したことを表す。
	KindUpstream ErrorKind = "upstream_error"
	// KindNotFound は上流にユーザーが存在しないことを表す。
	KindNotFound ErrorKind = "not_found"
	// KindTimeout はアダプタまたはバッチの期限切れを表す。
	KindTimeout ErrorKind = "timeout"
)

// errors.Is で判定するための番兵エラー。
var (
	ErrInvalidIdentity = errors.New("invalid identity")
	ErrUpstream        = errors.New("upstream error")
	ErrNotFound        = errors.New("user not found upstream")
	ErrTimeout         = errors.New("fetch timed out")
)

// FetchError はアダプタ境界で返されるエラー。
// どの種類のエラーもバッチ全体を失敗させることはなく、該当プラットフォームの結果なしとして扱われる。
type FetchError struct {
	Platform   model.Platform
	Kind       ErrorKind
	Op         string // 失敗した処理（例: "user.status"）
	StatusCode int    // 上流のHTTPステータス。該当しない場合は0
	Err        error
}

// Error はerrorインターフェースを実装する。
func (e *FetchError) Error() string {
	msg := fmt.Sprintf("%s %s", e.Platform, e.Kind)
	if e.Op != "" {
		msg += " (" + e.Op + ")"
	}
	if e.StatusCode != 0 {
		msg += fmt.Sprintf(": status %d", e.StatusCode)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap は原因エラーを返す。
func (e *FetchError) Unwrap() error {
	return e.Err
}

// Is はKindに対応する番兵エラーとの比較を可能にする。
func (e *FetchError) Is(target error) bool {
	switch target {
	case ErrInvalidIdentity:
		return e.Kind == KindInvalidIdentity
	case ErrUpstream:
		return e.Kind == KindUpstream
	case ErrNotFound:
		return e.Kind == KindNotFound
	case ErrTimeout:
		return e.Kind == KindTimeout
	}
	return false
}

// NewInvalidIdentityError はハンドル導出失敗のエラーを生成する。
func NewInvalidIdentityError(p model.Platform, rawURL string) *FetchError {
	return &FetchError{
		Platform: p,
		Kind:     KindInvalidIdentity,
		Err:      fmt.Errorf("no handle in url %q", rawURL),
	}
}

// NewUpstreamError は上流エラーを生成する。
func NewUpstreamError(p model.Platform, op string, statusCode int, err error) *FetchError {
	return &FetchError{Platform: p, Kind: KindUpstream, Op: op, StatusCode: statusCode, Err: err}
}

// NewNotFoundError はユーザー未検出エラーを生成する。
func NewNotFoundError(p model.Platform, handle string) *FetchError {
	return &FetchError{
		Platform: p,
		Kind:     KindNotFound,
		Err:      fmt.Errorf("handle %q", handle),
	}
}

// NewTimeoutError はタイムアウトエラーを生成する。
func NewTimeoutError(p model.Platform, op string, err error) *FetchError {
	return &FetchError{Platform: p, Kind: KindTimeout, Op: op, Err: err}
}

// ClassifyTransportError はHTTP送信時のエラーをTimeoutまたはUpstreamErrorに分類する。
// コンテキストの期限切れとnet.Errorのタイムアウトの両方をTimeoutとして扱う。
func ClassifyTransportError(ctx context.Context, p model.Platform, op string, err error) *FetchError {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return NewTimeoutError(p, op, err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return NewTimeoutError(p, op, err)
	}
	return NewUpstreamError(p, op, 0, err)
}

// KindOf はエラーの分類を返す。FetchErrorでない場合は空文字列。
func KindOf(err error) ErrorKind {
	var fe *FetchError
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return ""
}
