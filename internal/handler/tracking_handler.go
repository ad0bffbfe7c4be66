package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/hitoshi/profiletracker/internal/ingest"
	"github.com/hitoshi/profiletracker/internal/model"
)

const (
	messageTracked          = "Profiles tracked successfully"
	messagePartiallyTracked = "Profiles partially tracked (some requests failed or timed out)"
)

// ProfileTracker はプロフィールURLの登録と取り込みを行うサービスのインターフェース。
type ProfileTracker interface {
	TrackProfiles(ctx context.Context, urls model.ProfileURLs) (*ingest.TrackResult, error)
}

// TrackingHandler は追跡登録APIのハンドラ。
type TrackingHandler struct {
	tracker ProfileTracker
	logger  *slog.Logger
}

// NewTrackingHandler はTrackingHandlerの新しいインスタンスを生成する。
func NewTrackingHandler(tracker ProfileTracker, logger *slog.Logger) *TrackingHandler {
	return &TrackingHandler{tracker: tracker, logger: logger}
}

type trackProfilesRequest struct {
	LeetCodeURL   string `json:"leetcode_url"`
	CodeChefURL   string `json:"codechef_url"`
	CodeForcesURL string `json:"codeforces_url"`
}

type trackProfilesResponse struct {
	Message string `json:"message"`
	UserID  string `json:"user_id"`
	Status  string `json:"status"`
}

// TrackProfiles はプロフィールURLを登録し、全プラットフォームの統計を取り込む。
// POST /track-profiles
func (h *TrackingHandler) TrackProfiles(w http.ResponseWriter, r *http.Request) {
	var req trackProfilesRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeAPIErrorResponse(w, r, http.StatusBadRequest, model.NewInvalidRequestError())
		return
	}

	out, err := h.tracker.TrackProfiles(r.Context(), model.ProfileURLs{
		LeetCodeURL:   req.LeetCodeURL,
		CodeChefURL:   req.CodeChefURL,
		CodeForcesURL: req.CodeForcesURL,
	})
	if err != nil {
		handleServiceError(w, r, h.logger, err)
		return
	}

	message := messageTracked
	if out.Result.Status != model.IngestStatusSuccess {
		message = messagePartiallyTracked
	}

	writeJSON(w, http.StatusOK, trackProfilesResponse{
		Message: message,
		UserID:  out.UserID,
		Status:  string(out.Result.Status),
	})
}
