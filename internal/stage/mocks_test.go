package stage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/time/rate"

	"github.com/hitoshi/feeddigest/internal/artifact"
	"github.com/hitoshi/feeddigest/internal/metrics"
	"github.com/hitoshi/feeddigest/internal/model"
	"github.com/hitoshi/feeddigest/internal/repository"
)

// mockPostRepo はメモリ上のmapで動作するPostRepository実装。
type mockPostRepo struct {
	posts     map[string]*model.Post
	createErr error
	updateErr error
}

var _ repository.PostRepository = (*mockPostRepo)(nil)

func newMockPostRepo() *mockPostRepo {
	return &mockPostRepo{posts: map[string]*model.Post{}}
}

func (m *mockPostRepo) FindByID(ctx context.Context, id string) (*model.Post, error) {
	post, ok := m.posts[id]
	if !ok {
		return nil, nil
	}
	copied := *post
	return &copied, nil
}

func (m *mockPostRepo) FindByUUID(ctx context.Context, uuid string) (*model.Post, error) {
	for _, post := range m.posts {
		if post.UUID == uuid {
			copied := *post
			return &copied, nil
		}
	}
	return nil, nil
}

func (m *mockPostRepo) Create(ctx context.Context, post *model.Post) error {
	if m.createErr != nil {
		return m.createErr
	}
	if _, ok := m.posts[post.ID]; ok {
		return fmt.Errorf("duplicate post id: %s", post.ID)
	}
	copied := *post
	m.posts[post.ID] = &copied
	return nil
}

func (m *mockPostRepo) UpdateStatus(ctx context.Context, id string, status model.PostStatus) error {
	if m.updateErr != nil {
		return m.updateErr
	}
	post, ok := m.posts[id]
	if !ok {
		return model.ErrPostNotFound
	}
	post.Status = status
	return nil
}

func (m *mockPostRepo) ListByStatus(ctx context.Context, status model.PostStatus) ([]*model.Post, error) {
	var result []*model.Post
	for _, post := range m.posts {
		if post.Status == status {
			copied := *post
			result = append(result, &copied)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].PostDate.After(result[j].PostDate)
	})
	return result, nil
}

func (m *mockPostRepo) List(ctx context.Context, cursor time.Time, limit int) ([]*model.Post, error) {
	all, _ := m.ListAll(ctx)
	var result []*model.Post
	for _, post := range all {
		if !cursor.IsZero() && !post.PostDate.Before(cursor) {
			continue
		}
		result = append(result, post)
		if len(result) >= limit {
			break
		}
	}
	return result, nil
}

func (m *mockPostRepo) ListAll(ctx context.Context) ([]*model.Post, error) {
	var result []*model.Post
	for _, post := range m.posts {
		copied := *post
		result = append(result, &copied)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].PostDate.After(result[j].PostDate)
	})
	return result, nil
}

func (m *mockPostRepo) SearchByTagName(ctx context.Context, substr string, limit int) ([]*model.Post, error) {
	return nil, nil
}

func (m *mockPostRepo) DeleteByID(ctx context.Context, id string) error {
	if _, ok := m.posts[id]; !ok {
		return model.ErrPostNotFound
	}
	delete(m.posts, id)
	return nil
}

func (m *mockPostRepo) Count(ctx context.Context) (int, error) {
	return len(m.posts), nil
}

// mockTagRepo はメモリ上のmapで動作するTagRepository実装。
// CreateAllForPostのstatus更新を再現するためPostリポジトリへの参照を持つ。
type mockTagRepo struct {
	tags      map[string][]model.Tag
	posts     *mockPostRepo
	createErr error
}

var _ repository.TagRepository = (*mockTagRepo)(nil)

func newMockTagRepo(posts *mockPostRepo) *mockTagRepo {
	return &mockTagRepo{tags: map[string][]model.Tag{}, posts: posts}
}

func (m *mockTagRepo) CreateAllForPost(ctx context.Context, postID string, tags []model.Tag) error {
	if m.createErr != nil {
		return m.createErr
	}
	m.tags[postID] = append([]model.Tag{}, tags...)
	return m.posts.UpdateStatus(ctx, postID, model.PostStatusTagged)
}

func (m *mockTagRepo) CountByPostID(ctx context.Context, postID string) (int, error) {
	return len(m.tags[postID]), nil
}

func (m *mockTagRepo) ListByPostID(ctx context.Context, postID string) ([]model.Tag, error) {
	return append([]model.Tag{}, m.tags[postID]...), nil
}

func (m *mockTagRepo) Count(ctx context.Context) (int, error) {
	total := 0
	for _, tags := range m.tags {
		total += len(tags)
	}
	return total, nil
}

// mockLlmCallRepo はメモリ上のスライスで動作するLlmCallRepository実装。
type mockLlmCallRepo struct {
	calls []model.LlmCall
}

var _ repository.LlmCallRepository = (*mockLlmCallRepo)(nil)

func (m *mockLlmCallRepo) Create(ctx context.Context, call *model.LlmCall) error {
	m.calls = append(m.calls, *call)
	return nil
}

func (m *mockLlmCallRepo) ListAll(ctx context.Context) ([]model.LlmCall, error) {
	return append([]model.LlmCall{}, m.calls...), nil
}

func (m *mockLlmCallRepo) Count(ctx context.Context) (int, error) {
	return len(m.calls), nil
}

func (m *mockLlmCallRepo) DeleteAll(ctx context.Context) error {
	m.calls = nil
	return nil
}

// mockSource はフィードURLごとに固定のエントリ列を返すfeed.Source実装。
type mockSource struct {
	entries map[string][]model.FeedEntry
	errs    map[string]error
	fetched []string
}

func newMockSource() *mockSource {
	return &mockSource{
		entries: map[string][]model.FeedEntry{},
		errs:    map[string]error{},
	}
}

func (m *mockSource) Fetch(ctx context.Context, feedURL string) ([]model.FeedEntry, error) {
	m.fetched = append(m.fetched, feedURL)
	if err := m.errs[feedURL]; err != nil {
		return nil, err
	}
	return m.entries[feedURL], nil
}

// mockInvoker は固定のレスポンスを返すllm.Invoker実装。
type mockInvoker struct {
	modelID   string
	response  string
	usage     model.Usage
	err       error
	callCount int
	queries   []string
}

func (m *mockInvoker) Invoke(ctx context.Context, systemPrompt, userQuery string, temperature float64, maxTokens int) (string, model.Usage, error) {
	m.callCount++
	m.queries = append(m.queries, userQuery)
	if m.err != nil {
		return "", model.Usage{}, m.err
	}
	return m.response, m.usage, nil
}

func (m *mockInvoker) ModelID() string {
	if m.modelID == "" {
		return "us.amazon.nova-micro-v1:0"
	}
	return m.modelID
}

// plainSanitizer はHTMLの加工を行わないContentSanitizerService実装。
// ステージのテストではサニタイズの中身ではなく呼び出しの有無だけを見る。
type plainSanitizer struct{}

func (plainSanitizer) Sanitize(rawHTML string) string { return rawHTML }

func (plainSanitizer) PlainText(rawHTML string) string {
	return strings.ReplaceAll(strings.ReplaceAll(rawHTML, "<p>", ""), "</p>", "")
}

func testCollector() metrics.PipelineCollector {
	return metrics.NewCollector(prometheus.NewRegistry())
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testLimiter() *rate.Limiter {
	return rate.NewLimiter(rate.Inf, 1)
}

func newTestStore(t *testing.T, ext string) *artifact.Store {
	t.Helper()
	store, err := artifact.NewStore(t.TempDir(), ext)
	if err != nil {
		t.Fatalf("NewStore returned error: %v", err)
	}
	return store
}

var errBackend = errors.New("backend failure")
