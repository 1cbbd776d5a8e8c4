package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/hitoshi/feeddigest/internal/artifact"
	"github.com/hitoshi/feeddigest/internal/metrics"
	"github.com/hitoshi/feeddigest/internal/middleware"
	"github.com/hitoshi/feeddigest/internal/repository"
)

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	Posts        repository.PostRepository
	Tags         repository.TagRepository
	SummaryStore *artifact.Store
	StatsService StatsServiceInterface
	Gatherer     prometheus.Gatherer
	Logger       *slog.Logger
}

// NewRouter は読み取り専用APIのルーティングとミドルウェアチェーンを
// 構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	RecoveryMiddleware → LoggingMiddleware
func NewRouter(deps *RouterDeps) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.NewRecoveryMiddleware(deps.Logger))
	r.Use(middleware.NewLoggingMiddleware(deps.Logger))

	postHandler := NewPostHandler(deps.Posts, deps.Tags, deps.SummaryStore, deps.Logger)
	statsHandler := NewStatsHandler(deps.StatsService, deps.Logger)

	r.Route("/api", func(r chi.Router) {
		r.Route("/posts", func(r chi.Router) {
			r.Get("/", postHandler.ListPosts)
			r.Get("/{uuid}", postHandler.GetPost)
		})
		r.Get("/search", postHandler.SearchPosts)
		r.Get("/stats", statsHandler.GetStats)
	})

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	if deps.Gatherer != nil {
		r.Method(http.MethodGet, "/metrics", metrics.Handler(deps.Gatherer))
	}

	return r
}
