package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/hitoshi/feeddigest/internal/report"
)

// StatsServiceInterface は統計ハンドラーが必要とするサービスインターフェース。
type StatsServiceInterface interface {
	// Stats はシステム全体の統計を返す。
	Stats(ctx context.Context) (*report.Stats, error)
}

// StatsHandler は統計APIのHTTPハンドラー。
type StatsHandler struct {
	service StatsServiceInterface
	logger  *slog.Logger
}

// NewStatsHandler はStatsHandlerを生成する。
func NewStatsHandler(service StatsServiceInterface, logger *slog.Logger) *StatsHandler {
	return &StatsHandler{service: service, logger: logger}
}

// GetStats はPost数、Tag数、LLM呼び出し数、総コストを返す。
// GET /api/stats
func (h *StatsHandler) GetStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.service.Stats(r.Context())
	if err != nil {
		h.logger.Error("統計の取得に失敗しました", slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal server error"})
		return
	}
	writeJSON(w, http.StatusOK, stats)
}
