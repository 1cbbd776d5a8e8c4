// Package handler は読み取り専用APIのHTTPハンドラーを定義する。
package handler

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/feeddigest/internal/artifact"
	"github.com/hitoshi/feeddigest/internal/model"
	"github.com/hitoshi/feeddigest/internal/repository"
)

// defaultPostsPerPage はPost一覧の1回の取得件数（デフォルト）。
const defaultPostsPerPage = 30

// maxPostsPerPage はPost一覧の1回の取得件数の上限。
const maxPostsPerPage = 100

// PostHandler はPost閲覧のHTTPハンドラー。
// 外部へはUUIDのみを公開し、内部のIDスラグは露出させない。
type PostHandler struct {
	posts        repository.PostRepository
	tags         repository.TagRepository
	summaryStore *artifact.Store
	logger       *slog.Logger
}

// NewPostHandler はPostHandlerを生成する。
func NewPostHandler(
	posts repository.PostRepository,
	tags repository.TagRepository,
	summaryStore *artifact.Store,
	logger *slog.Logger,
) *PostHandler {
	return &PostHandler{
		posts:        posts,
		tags:         tags,
		summaryStore: summaryStore,
		logger:       logger,
	}
}

// --- レスポンス型 ---

// postSummaryResponse はPost一覧のサマリーレスポンス。
type postSummaryResponse struct {
	UUID     string    `json:"uuid"`
	Title    string    `json:"title"`
	URL      string    `json:"url"`
	Source   string    `json:"source"`
	PostDate time.Time `json:"post_date"`
	Status   string    `json:"status"`
	Tags     []string  `json:"tags"`
}

// postListResponse はPost一覧のレスポンス。
type postListResponse struct {
	Posts      []postSummaryResponse `json:"posts"`
	NextCursor string                `json:"next_cursor,omitempty"`
	HasMore    bool                  `json:"has_more"`
}

// postDetailResponse はPost詳細のレスポンス。Contentは要約のMarkdown。
type postDetailResponse struct {
	postSummaryResponse
	Content string `json:"content"`
}

// errorResponse はエラーレスポンスのボディ。
type errorResponse struct {
	Error string `json:"error"`
}

// ListPosts はPost一覧をpost_date降順で取得する。
// GET /api/posts?cursor=RFC3339&limit=n
func (h *PostHandler) ListPosts(w http.ResponseWriter, r *http.Request) {
	var cursor time.Time
	if raw := r.URL.Query().Get("cursor"); raw != "" {
		parsed, err := time.Parse(time.RFC3339Nano, raw)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "cursorはRFC3339形式で指定してください"})
			return
		}
		cursor = parsed
	}

	limit := defaultPostsPerPage
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := parsePositiveInt(raw, maxPostsPerPage)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "limitは正の整数で指定してください"})
			return
		}
		limit = parsed
	}

	// has_more判定のために1件余分に取得する
	posts, err := h.posts.List(r.Context(), cursor, limit+1)
	if err != nil {
		h.logger.Error("Post一覧の取得に失敗しました", slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal server error"})
		return
	}

	hasMore := len(posts) > limit
	if hasMore {
		posts = posts[:limit]
	}

	resp := postListResponse{
		Posts:   make([]postSummaryResponse, 0, len(posts)),
		HasMore: hasMore,
	}
	for _, post := range posts {
		summary, err := h.toSummaryResponse(r, post)
		if err != nil {
			h.logger.Error("Postレスポンスの構築に失敗しました",
				slog.String("post_id", post.ID),
				slog.String("error", err.Error()),
			)
			writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal server error"})
			return
		}
		resp.Posts = append(resp.Posts, summary)
	}
	if hasMore && len(posts) > 0 {
		resp.NextCursor = posts[len(posts)-1].PostDate.Format(time.RFC3339Nano)
	}

	writeJSON(w, http.StatusOK, resp)
}

// GetPost はPost詳細を要約コンテンツ付きで取得する。
// GET /api/posts/{uuid}
func (h *PostHandler) GetPost(w http.ResponseWriter, r *http.Request) {
	postUUID := chi.URLParam(r, "uuid")

	post, err := h.posts.FindByUUID(r.Context(), postUUID)
	if err != nil {
		h.logger.Error("Postの取得に失敗しました", slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal server error"})
		return
	}
	if post == nil {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "指定されたPostは存在しません"})
		return
	}

	summary, err := h.toSummaryResponse(r, post)
	if err != nil {
		h.logger.Error("Postレスポンスの構築に失敗しました",
			slog.String("post_id", post.ID),
			slog.String("error", err.Error()),
		)
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal server error"})
		return
	}

	detail := postDetailResponse{postSummaryResponse: summary}

	// 要約がまだ生成されていないPostのContentは空文字列
	if h.summaryStore.Exists(post.ID) {
		content, err := h.summaryStore.Read(post.ID)
		if err != nil {
			h.logger.Error("要約の読み込みに失敗しました",
				slog.String("post_id", post.ID),
				slog.String("error", err.Error()),
			)
			writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal server error"})
			return
		}
		detail.Content = string(content)
	}

	writeJSON(w, http.StatusOK, detail)
}

// SearchPosts はタグ名の部分一致でPostを検索する。
// GET /api/search?tag=xxx
func (h *PostHandler) SearchPosts(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("tag")
	if query == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "tagクエリパラメータは必須です"})
		return
	}

	posts, err := h.posts.SearchByTagName(r.Context(), query, maxPostsPerPage)
	if err != nil {
		h.logger.Error("Post検索に失敗しました", slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal server error"})
		return
	}

	resp := postListResponse{Posts: make([]postSummaryResponse, 0, len(posts))}
	for _, post := range posts {
		summary, err := h.toSummaryResponse(r, post)
		if err != nil {
			h.logger.Error("Postレスポンスの構築に失敗しました",
				slog.String("post_id", post.ID),
				slog.String("error", err.Error()),
			)
			writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal server error"})
			return
		}
		resp.Posts = append(resp.Posts, summary)
	}

	writeJSON(w, http.StatusOK, resp)
}

// toSummaryResponse はPostとそのタグ名からサマリーレスポンスを構築する。
func (h *PostHandler) toSummaryResponse(r *http.Request, post *model.Post) (postSummaryResponse, error) {
	tags, err := h.tags.ListByPostID(r.Context(), post.ID)
	if err != nil {
		return postSummaryResponse{}, err
	}

	names := make([]string, 0, len(tags))
	for _, tag := range tags {
		names = append(names, tag.Name)
	}

	return postSummaryResponse{
		UUID:     post.UUID,
		Title:    post.Title,
		URL:      post.URL,
		Source:   post.Source,
		PostDate: post.PostDate,
		Status:   string(post.Status),
		Tags:     names,
	}, nil
}

// writeJSON はJSONレスポンスを書き込む。
func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

// parsePositiveInt は1以上の整数をパースし、maxを超える値はmaxへ丸める。
func parsePositiveInt(raw string, max int) (int, error) {
	value, err := strconv.Atoi(raw)
	if err != nil {
		return 0, err
	}
	if value < 1 {
		return 0, fmt.Errorf("正の整数ではありません: %d", value)
	}
	if value > max {
		return max, nil
	}
	return value, nil
}
