package handler

import (
	"context"
	"log/slog"
	"net/http"
)

// HealthChecker は依存先への疎通確認を行うインターフェース。
type HealthChecker interface {
	PingContext(ctx context.Context) error
}

// HealthHandler はヘルスチェックAPIのハンドラ。
type HealthHandler struct {
	checker HealthChecker
	logger  *slog.Logger
}

// NewHealthHandler はHealthHandlerの新しいインスタンスを生成する。
// checkerがnilの場合はプロセスの生存のみを返す。
func NewHealthHandler(checker HealthChecker, logger *slog.Logger) *HealthHandler {
	return &HealthHandler{checker: checker, logger: logger}
}

type healthResponse struct {
	Status string `json:"status"`
}

// Health はデータベースへの疎通を確認する。
// GET /health
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	if h.checker != nil {
		if err := h.checker.PingContext(r.Context()); err != nil {
			h.logger.Error("ヘルスチェックに失敗しました", slog.String("error", err.Error()))
			writeJSON(w, http.StatusServiceUnavailable, healthResponse{Status: "unavailable"})
			return
		}
	}
	writeJSON(w, http.StatusOK, healthResponse{Status: "ok"})
}

type welcomeResponse struct {
	Message string `json:"message"`
}

// Welcome はAPIのルート応答を返す。
// GET /
func Welcome(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, welcomeResponse{Message: "Welcome to Profile Tracker API"})
}
